package models

import (
	"errors"
	"fmt"
)

// ErrorKind classifies adapter failures.
type ErrorKind string

const (
	KindConfig     ErrorKind = "config"
	KindUpstream   ErrorKind = "upstream"
	KindValidation ErrorKind = "validation"
)

// ErrMissingCredentials is wrapped by adapters whose API key or token is unset.
var ErrMissingCredentials = errors.New("missing credentials")

// AdapterError is the error arm of every external signal and data adapter.
type AdapterError struct {
	Source string
	Kind   ErrorKind
	Err    error
}

func (e *AdapterError) Error() string {
	return fmt.Sprintf("%s: %v", e.Source, e.Err)
}

func (e *AdapterError) Unwrap() error {
	return e.Err
}

func ConfigError(source string, err error) error {
	return &AdapterError{Source: source, Kind: KindConfig, Err: err}
}

func UpstreamError(source string, err error) error {
	return &AdapterError{Source: source, Kind: KindUpstream, Err: err}
}

func ValidationError(source string, err error) error {
	return &AdapterError{Source: source, Kind: KindValidation, Err: err}
}

// KindOf returns the kind of the first AdapterError in err's chain, or "" if none.
func KindOf(err error) ErrorKind {
	var ae *AdapterError
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return ""
}
