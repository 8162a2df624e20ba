package delivery

import (
	"errors"

	"bookvault/internal/envelope"
)

var (
	ErrNotFound           = errors.New("not_found")
	ErrInvalidKind        = errors.New("invalid asset kind")
	ErrUnauthenticated    = errors.New("subject required")
	ErrForbidden          = errors.New("access not granted")
	ErrMissingEnvelope    = errors.New("encryption envelope missing")
	ErrStorageUnavailable = errors.New("storage unavailable")
	ErrNoPreview          = errors.New("preview not available")

	// ErrIntegrity is returned when ciphertext fails authentication.
	ErrIntegrity = envelope.ErrIntegrity
)
