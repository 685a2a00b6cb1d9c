package dal

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidArgument  = errors.New("invalid argument")
	ErrNotFound         = errors.New("not found")
	ErrExecution        = errors.New("execution failure")
	ErrKeyAlreadyExists = errors.New("key already exists")
	ErrDataTooLong      = errors.New("data too long")
)

func invalidArg(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidArgument, fmt.Sprintf(format, args...))
}

// ExecutionError reports a statement the executor failed to run. Index is the
// position of the failing row within the call, or -1 when the failure cannot be
// attributed to a single row (combined insert, whole-batch failure).
type ExecutionError struct {
	Index int
	Err   error
}

func (e *ExecutionError) Error() string {
	if e.Index < 0 {
		return fmt.Sprintf("%s: %v", ErrExecution, e.Err)
	}
	return fmt.Sprintf("%s at row %d: %v", ErrExecution, e.Index, e.Err)
}

func (e *ExecutionError) Unwrap() []error {
	return []error{ErrExecution, e.Err}
}

func execFailure(index int, err error) error {
	var ee *ExecutionError
	if errors.As(err, &ee) {
		return err
	}
	return &ExecutionError{Index: index, Err: err}
}
