package access

import "errors"

var (
	ErrInvalidRequest = errors.New("invalid request")
	ErrBookNotFound   = errors.New("book not found")
)
