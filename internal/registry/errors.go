package registry

import "errors"

var (
	// ErrCapacity is returned by CreateOrRebind when the registry already
	// holds max_sessions distinct sessions and the IMEI is not among them.
	ErrCapacity = errors.New("registry: session capacity exceeded")
	// ErrNotFound is returned by the mutators when no session matches the
	// given key.
	ErrNotFound = errors.New("registry: session not found")
)
