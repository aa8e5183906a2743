package postgrest

import (
	"errors"
	"fmt"
)

// Error is a backend failure in PostgREST's error shape.
//
// HTTPClient decodes it from the JSON error body. store.Store builds it
// from driver errors, putting the SQLSTATE or driver error number in Code.
type Error struct {
	// Status is the HTTP status, or 0 for non-HTTP backends.
	Status  int    `json:"-"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details"`
	Hint    string `json:"hint"`
}

func (e *Error) Error() string {
	msg := e.Message
	if e.Code != "" {
		msg = e.Code + ": " + msg
	}
	if e.Status != 0 {
		msg = fmt.Sprintf("%s (HTTP %d)", msg, e.Status)
	}
	return msg
}

// AsError extracts an *Error from err's chain.
func AsError(err error) (*Error, bool) {
	var pe *Error
	if errors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}
