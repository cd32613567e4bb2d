// pkg/ds_err/wrap.go

package ds_err

import (
	cerr "github.com/cockroachdb/errors"
)

func WrapValidationError(err error) error {
	return cerr.WithHint(cerr.WithStack(err), "validation failed")
}

// WrapUnexpected classifies err as UnexpectedError unless it already carries
// an outcome.
func WrapUnexpected(err error, msg string) error {
	if err == nil {
		return nil
	}
	var classified *ClassifiedError
	if cerr.As(err, &classified) {
		return err
	}
	return NewUnexpectedError(msg, cerr.WithStack(err))
}
