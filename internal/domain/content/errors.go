package content

import "errors"

var (
	ErrNotFound = errors.New("not_found")
	ErrConflict = errors.New("already exists")
)
