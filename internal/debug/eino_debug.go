package debug

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino-ext/devops"
	"github.com/dyike/CortexTrade/config"
	"github.com/sirupsen/logrus"
)

// devopsInit is replaced in tests.
var devopsInit = func(ctx context.Context) error {
	return devops.Init(ctx)
}

// EinoDebugger starts the eino visual debug server so compiled pipelines can be
// inspected from the eino devtools.
type EinoDebugger struct {
	enabled bool
	port    int
}

func NewEinoDebugger(cfg config.Config) *EinoDebugger {
	return &EinoDebugger{
		enabled: cfg.EinoDebugEnabled,
		port:    cfg.EinoDebugPort,
	}
}

// Initialize must run before any pipeline is compiled. It is a no-op when
// debugging is disabled.
func (d *EinoDebugger) Initialize(ctx context.Context) error {
	if !d.enabled {
		return nil
	}
	if err := devopsInit(ctx); err != nil {
		return fmt.Errorf("init eino debug server: %w", err)
	}
	logrus.WithField("url", d.DebugURL()).Info("eino debug server started")
	return nil
}

func (d *EinoDebugger) IsEnabled() bool {
	return d.enabled
}

func (d *EinoDebugger) DebugURL() string {
	if !d.enabled {
		return ""
	}
	return fmt.Sprintf("http://localhost:%d", d.port)
}
