package appsscript

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrTooManyRedirects is returned when the followed Location redirects again.
	ErrTooManyRedirects = errors.New("apps script: redirect after redirect")
	// ErrMissingLocation is returned for a redirect without a Location header.
	ErrMissingLocation = errors.New("apps script: redirect without Location header")
	// ErrUnexpectedResponse is returned when the body is not a JSON envelope,
	// typically an Apps Script HTML error page or a Google sign-in page.
	ErrUnexpectedResponse = errors.New("apps script: unexpected response")
)

// RemoteError is an {"ok": false} answer from the script.
type RemoteError struct {
	Action  Action
	Message string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("apps script %s: %s", e.Action, e.Message)
}

// HTTPError is a non-2xx, non-redirect HTTP status from the deployment.
type HTTPError struct {
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("apps script: http %d %s", e.StatusCode, http.StatusText(e.StatusCode))
	}
	return fmt.Sprintf("apps script: http %d %s: %s", e.StatusCode, http.StatusText(e.StatusCode), e.Body)
}

// IsRemote reports whether err is an application-level rejection from the script.
func IsRemote(err error) bool {
	var re *RemoteError
	return errors.As(err, &re)
}
