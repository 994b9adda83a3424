package checkout

import (
	"time"

	"checkout/internal/domain"
)

type ErrorView struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

type SessionView struct {
	ID        string            `json:"id"`
	BuyerID   string            `json:"buyer_id"`
	Step      domain.Step       `json:"step"`
	Lines     []domain.CartLine `json:"lines"`
	Total     domain.Amount     `json:"total"`
	Phone     string            `json:"phone,omitempty"`
	Network   domain.Network    `json:"network,omitempty"`
	OrderID   string            `json:"order_id,omitempty"`
	Error     *ErrorView        `json:"error,omitempty"`
	UpdatedAt time.Time         `json:"updated_at"`
}

type OrderView struct {
	*domain.Order
	Lines []domain.OrderLine `json:"lines"`
}

func mapSessionToView(s *domain.PaymentSession) *SessionView {
	view := &SessionView{
		ID:        s.ID,
		BuyerID:   s.BuyerID,
		Step:      s.Step,
		Lines:     s.Cart.Lines(),
		Total:     s.Cart.Total(),
		Phone:     s.NormalizedPhone,
		Network:   s.Network,
		OrderID:   s.OrderID,
		UpdatedAt: s.UpdatedAt,
	}
	if view.Phone == "" {
		view.Phone = s.RawPhone
	}
	if s.LastError != nil {
		view.Error = &ErrorView{
			Kind:    domain.ErrorKind(s.LastError),
			Message: domain.UserMessage(s.LastError),
		}
	}
	return view
}
