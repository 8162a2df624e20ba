package access

type GrantPurchaseRequest struct {
	TelegramID int64  `json:"telegram_id" validate:"required,gt=0"`
	BookID     string `json:"book_id" validate:"required,max=36"`
	PaymentID  string `json:"payment_id,omitempty" validate:"max=128"`
}

type GrantMembershipRequest struct {
	TelegramID int64 `json:"telegram_id" validate:"required,gt=0"`
}

// GrantResponse reports whether this call recorded the grant or found it
// already present.
type GrantResponse struct {
	TelegramID int64  `json:"telegram_id"`
	BookID     string `json:"book_id,omitempty"`
	Created    bool   `json:"created"`
}

type RevokeResponse struct {
	TelegramID int64 `json:"telegram_id"`
	Removed    bool  `json:"removed"`
}
