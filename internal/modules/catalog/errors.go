package catalog

import "errors"

var (
	ErrNotFound         = errors.New("item not found")
	ErrUnauthenticated  = errors.New("subject required")
	ErrForbidden        = errors.New("subject is not a member")
	ErrTooManyIDs       = errors.New("too many ids")
	ErrInvalidKey       = errors.New("invalid blob key")
	ErrBlobStoreMissing = errors.New("remote blob store is not configured")
)
