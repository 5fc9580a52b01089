package engine

import "errors"

var (
	// ErrMatchingUnavailable is returned when the semantic matcher could not
	// reach its model, timed out, or got output it could not use.
	ErrMatchingUnavailable = errors.New("semantic matching unavailable")

	// ErrNoCategoriesAvailable is returned when an entity must be created but
	// the catalogue has no categories of that kind.
	ErrNoCategoriesAvailable = errors.New("no categories available")

	// ErrInvalidRequest is returned by Resolve for malformed batch requests.
	ErrInvalidRequest = errors.New("invalid resolve request")
)
