package decode

import (
	"errors"
	"fmt"
)

// ErrInvalidConfig is wrapped by every configuration validation failure.
var ErrInvalidConfig = errors.New("invalid decoding config")

type configError struct {
	field string
	msg   string
}

func (e configError) Error() string {
	return fmt.Sprintf("%s: %s", e.field, e.msg)
}

// Field names the offending option.
func (e configError) Field() string {
	return e.field
}

func (e configError) Unwrap() error {
	return ErrInvalidConfig
}

func newConfigError(field, format string, args ...any) error {
	return configError{field: field, msg: fmt.Sprintf(format, args...)}
}

// ScoreError reports a scorer failure. It aborts the whole batch.
type ScoreError struct {
	Step int
	Err  error
}

func (e *ScoreError) Error() string {
	return fmt.Sprintf("score step %d: %v", e.Step, e.Err)
}

func (e *ScoreError) Unwrap() error {
	return e.Err
}
