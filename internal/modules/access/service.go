package access

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"bookvault/internal/domain/content"
)

// Service records access grants on behalf of the payment flow and the bot.
// Every operation is idempotent.
type Service struct {
	repo GrantRepository
	log  *zap.Logger
}

func NewService(repo GrantRepository, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{repo: repo, log: log}
}

func (s *Service) GrantPurchase(ctx context.Context, req GrantPurchaseRequest) (*GrantResponse, error) {
	if req.TelegramID <= 0 || req.BookID == "" {
		return nil, ErrInvalidRequest
	}

	if _, err := s.repo.FindOwner(ctx, content.OwnerBook, req.BookID); err != nil {
		if errors.Is(err, content.ErrNotFound) {
			return nil, ErrBookNotFound
		}
		return nil, fmt.Errorf("find book: %w", err)
	}

	created, err := s.repo.CreatePurchase(ctx, &content.Purchase{
		TelegramID: req.TelegramID,
		BookID:     req.BookID,
		PaymentID:  req.PaymentID,
	})
	if err != nil {
		return nil, fmt.Errorf("record purchase: %w", err)
	}

	if created {
		s.log.Info("purchase granted",
			zap.Int64("telegram_id", req.TelegramID),
			zap.String("book_id", req.BookID),
			zap.String("payment_id", req.PaymentID),
		)
	}
	return &GrantResponse{TelegramID: req.TelegramID, BookID: req.BookID, Created: created}, nil
}

func (s *Service) GrantMembership(ctx context.Context, telegramID int64) (*GrantResponse, error) {
	if telegramID <= 0 {
		return nil, ErrInvalidRequest
	}
	created, err := s.repo.CreateMembership(ctx, telegramID)
	if err != nil {
		return nil, fmt.Errorf("record membership: %w", err)
	}
	if created {
		s.log.Info("membership granted", zap.Int64("telegram_id", telegramID))
	}
	return &GrantResponse{TelegramID: telegramID, Created: created}, nil
}

// RevokeMembership removes a membership. Revoking a missing one is not an error.
func (s *Service) RevokeMembership(ctx context.Context, telegramID int64) (*RevokeResponse, error) {
	if telegramID <= 0 {
		return nil, ErrInvalidRequest
	}
	removed, err := s.repo.DeleteMembership(ctx, telegramID)
	if err != nil {
		return nil, fmt.Errorf("revoke membership: %w", err)
	}
	if removed {
		s.log.Info("membership revoked", zap.Int64("telegram_id", telegramID))
	}
	return &RevokeResponse{TelegramID: telegramID, Removed: removed}, nil
}
