package client

import (
	"errors"
	"fmt"
	"net/http"
)

// APIError is a non-2xx response from the chat service.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("chat service: %s", http.StatusText(e.Status))
	}
	return fmt.Sprintf("chat service: %d %s", e.Status, e.Message)
}

// IsStatus reports whether err is an APIError with the given status.
func IsStatus(err error, status int) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == status
}
