package llm

import (
	"errors"
	"fmt"
)

// AuthError marks provider failures caused by credentials or addressing
// (rejected key, unknown deployment or model). Retrying will not help.
type AuthError struct {
	Provider string
	Err      error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("%s: authentication or deployment error: %v", e.Provider, e.Err)
}

func (e *AuthError) Unwrap() error { return e.Err }

func IsAuthError(err error) bool {
	var authErr *AuthError
	return errors.As(err, &authErr)
}
