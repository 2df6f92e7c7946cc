package crawler

import "errors"

var (
	// ErrInvalidUser means the remote account no longer exists and has
	// been purged from the store.
	ErrInvalidUser = errors.New("user no longer exists on the platform")

	// ErrNoUsersReturned means a discovery page came back empty, so the
	// end of the listing has been reached.
	ErrNoUsersReturned = errors.New("no users returned")
)
