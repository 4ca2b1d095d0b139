package ctrl

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownCommand is wrapped by every UnknownCommandError.
	ErrUnknownCommand = errors.New("unknown control command")

	// ErrNoHandler is returned when no handler is registered for a command type.
	ErrNoHandler = errors.New("no handler for control command")
)

// UnknownCommandError is a decode failure for a wire tag this build does not
// know. It is terminal: the message is rejected, never retried.
type UnknownCommandError struct {
	Tag string
}

func (e *UnknownCommandError) Error() string {
	return fmt.Sprintf("%s: %q", ErrUnknownCommand.Error(), e.Tag)
}

func (e *UnknownCommandError) Unwrap() error {
	return ErrUnknownCommand
}

// IsUnknownCommand returns true if err is a decode failure for an unknown tag.
func IsUnknownCommand(err error) bool {
	var unknown *UnknownCommandError
	return errors.As(err, &unknown)
}
