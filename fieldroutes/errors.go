package fieldroutes

import (
	"fmt"
)

// HTTPError is returned when the remote API answers with a non-2xx status.
type HTTPError struct {
	Endpoint   string
	StatusCode int
	Body       string
}

func (e HTTPError) Error() string {
	return fmt.Sprintf("%v returned HTTP %v: %v", e.Endpoint, e.StatusCode, e.Body)
}

// APIError is returned when the remote API reports success=false.
type APIError struct {
	Endpoint string
	Message  string
}

func (e APIError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = "unknown error"
	}
	return fmt.Sprintf("%v reported failure: %v", e.Endpoint, msg)
}
