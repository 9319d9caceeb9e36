package session

import (
	"errors"
	"fmt"
)

var (
	ErrNoSession      = errors.New("no session")
	ErrCorruptSession = errors.New("corrupt session state")
)

// AuthError is a login or registration rejected by the backend. Message is
// the backend's own text when it sent one.
type AuthError struct {
	Status  int
	Message string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("auth rejected (%d): %s", e.Status, e.Message)
}
