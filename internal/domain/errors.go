package domain

import "errors"

// Sentinel errors for domain operations
var (
	// ErrItemNotFound indicates the requested media item does not exist
	ErrItemNotFound = errors.New("media item not found")

	// ErrServerOffline indicates the remote catalog server is unreachable
	ErrServerOffline = errors.New("media server is unreachable")

	// ErrUnauthorized indicates the server rejected the request token or is
	// overloaded and shedding load. Distinct from ErrItemNotFound: the
	// pipeline aborts on it instead of skipping.
	ErrUnauthorized = errors.New("server rejected request as unauthorized")

	// ErrViewNotFound indicates the requested library view does not exist
	ErrViewNotFound = errors.New("library view not found")

	// ErrQueueUninitialized indicates a play queue operation that requires a
	// remote queue identity before one has been established
	ErrQueueUninitialized = errors.New("play queue has no remote identity")
)
