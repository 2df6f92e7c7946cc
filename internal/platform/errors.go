package platform

import (
	"errors"
	"fmt"
)

var (
	// ErrForbidden indicates the remote API is refusing requests; the client
	// holds a backoff window while this condition lasts.
	ErrForbidden = errors.New("platform API access forbidden")

	// ErrTooManyIDs indicates a batch fetch was attempted with more than
	// BatchLimit IDs. This is a programming error.
	ErrTooManyIDs = errors.New("too many IDs for batch fetch")

	// ErrNotJSON indicates the server returned a non-JSON payload where JSON
	// was expected.
	ErrNotJSON = errors.New("server returned unrecognised content type")
)

// HTTPError wraps a non-2xx response status that is not handled specially.
type HTTPError struct {
	Status int
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("platform returned HTTP %d", e.Status)
}

// IsGone reports whether err is a 404 or 410 response, which callers
// interpret as the resource having been deleted remotely.
func IsGone(err error) bool {
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.Status == 404 || httpErr.Status == 410
	}

	return false
}
