package debug

import (
	"context"
	"errors"
	"testing"

	"github.com/dyike/CortexTrade/config"
)

func stubInit(t *testing.T, err error) *int {
	t.Helper()
	calls := 0
	orig := devopsInit
	devopsInit = func(context.Context) error {
		calls++
		return err
	}
	t.Cleanup(func() { devopsInit = orig })
	return &calls
}

func TestEinoDebuggerDisabled(t *testing.T) {
	calls := stubInit(t, nil)
	d := NewEinoDebugger(*config.DefaultConfigWithRoot(t.TempDir()))
	if err := d.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	if *calls != 0 {
		t.Fatalf("devops init called %d times while disabled", *calls)
	}
	if d.DebugURL() != "" {
		t.Fatalf("expected empty url, got %q", d.DebugURL())
	}
}

func TestEinoDebuggerEnabled(t *testing.T) {
	calls := stubInit(t, nil)
	cfg := config.DefaultConfigWithRoot(t.TempDir())
	cfg.EinoDebugEnabled = true
	cfg.EinoDebugPort = 6000

	d := NewEinoDebugger(*cfg)
	if err := d.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	if *calls != 1 {
		t.Fatalf("expected one devops init, got %d", *calls)
	}
	if got := d.DebugURL(); got != "http://localhost:6000" {
		t.Fatalf("unexpected url %q", got)
	}
}

func TestEinoDebuggerInitError(t *testing.T) {
	stubInit(t, errors.New("port in use"))
	cfg := config.DefaultConfigWithRoot(t.TempDir())
	cfg.EinoDebugEnabled = true

	if err := NewEinoDebugger(*cfg).Initialize(context.Background()); err == nil {
		t.Fatal("expected init error")
	}
}
