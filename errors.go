package cron_manager

import (
	"fmt"

	"github.com/cockroachdb/errors"
)

var (
	ErrValidation        = errors.New("validation failed")
	ErrJobNotFound       = errors.New("job not found")
	ErrJobExists         = errors.New("job already exists")
	ErrInvalidCron       = errors.New("invalid cron expression")
	ErrUnsupportedTarget = errors.New("unsupported execution target")
	ErrMethodNotFound    = errors.New("execution method not found")
	ErrEngineStopped     = errors.New("engine stopped")
	ErrCatalogDisabled   = errors.New("catalog store is not enabled")
)

// EngineError wraps a failure of the scheduling engine. The engine state of the
// named job is ambiguous afterwards, callers surface it and never retry inline.
type EngineError struct {
	Op   string
	Name string
	Err  error
}

func (e *EngineError) Error() string {
	return fmt.Sprintf("engine %s %q: %v", e.Op, e.Name, e.Err)
}

func (e *EngineError) Unwrap() error {
	return e.Err
}

func engineErr(op, name string, err error) error {
	return &EngineError{Op: op, Name: name, Err: err}
}

// IsEngineFailure reports whether err was raised by the scheduling engine.
func IsEngineFailure(err error) bool {
	var ee *EngineError
	return errors.As(err, &ee)
}

func validationErrorf(format string, args ...interface{}) error {
	return errors.Mark(errors.Newf(format, args...), ErrValidation)
}
