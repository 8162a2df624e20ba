package access

import (
	"context"

	"bookvault/internal/domain/content"
)

type GrantRepository interface {
	FindOwner(ctx context.Context, kind content.OwnerKind, id string) (content.Owner, error)
	CreatePurchase(ctx context.Context, p *content.Purchase) (bool, error)
	CreateMembership(ctx context.Context, telegramID int64) (bool, error)
	DeleteMembership(ctx context.Context, telegramID int64) (bool, error)
}
