package enrich

import (
	"errors"
	"fmt"
)

// Library errors.
var (
	// ErrDuplicateKey is returned by Register when the key is already taken.
	ErrDuplicateKey = errors.New("capability key already registered")

	// ErrEmptyKey is returned when registering under an empty key.
	ErrEmptyKey = errors.New("capability key is empty")

	// ErrNilEnricher is returned when registering a nil enricher.
	ErrNilEnricher = errors.New("enricher is nil")
)

// FatalError reports an unrecoverable enricher state. Enrichers raise it with
// Fatal; Apply recovers it and returns it to the caller so the record can be
// dead-lettered instead of silently passing through unenriched.
type FatalError struct {
	Capability string
	err        error
}

func (e *FatalError) Error() string {
	if e.Capability == "" {
		return "enricher fatal: " + e.err.Error()
	}
	return fmt.Sprintf("enricher %s fatal: %s", e.Capability, e.err.Error())
}

func (e *FatalError) Unwrap() error {
	return e.err
}

// Fatal aborts the current Enrich call with a FatalError. It does not return.
func Fatal(err error) {
	panic(&FatalError{err: err})
}

// IsFatal returns true if err carries a FatalError.
func IsFatal(err error) bool {
	var fatal *FatalError
	return errors.As(err, &fatal)
}
