package domain

import (
	"errors"
	"time"
)

type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusConfirmed OrderStatus = "confirmed"
	OrderStatusFailed    OrderStatus = "failed"
	OrderStatusCancelled OrderStatus = "cancelled"
)

func (s OrderStatus) IsTerminal() bool {
	return s == OrderStatusConfirmed || s == OrderStatusFailed || s == OrderStatusCancelled
}

type Order struct {
	ID            string      `json:"id"`
	BuyerID       string      `json:"buyer_id"`
	TotalAmount   Amount      `json:"total_amount"`
	Status        OrderStatus `json:"status"`
	PaymentMethod Network     `json:"payment_method"`
	PaymentPhone  string      `json:"payment_phone"`
	CreatedAt     time.Time   `json:"created_at"`
	UpdatedAt     time.Time   `json:"updated_at"`
	// CartLines is what the buyer paid for, kept so a late settlement can still reconcile.
	CartLines []SessionLine `json:"-"`
}

type OrderLine struct {
	OrderID   string `json:"order_id"`
	ItemID    string `json:"item_id"`
	Quantity  int    `json:"quantity"`
	UnitPrice Amount `json:"unit_price"`
}

func NewPendingOrder(id, buyerID string, total Amount, method Network, phone string) (*Order, error) {
	if id == "" || buyerID == "" || total <= 0 {
		return nil, errors.New("invalid order data")
	}
	now := time.Now()
	return &Order{
		ID:            id,
		BuyerID:       buyerID,
		TotalAmount:   total,
		Status:        OrderStatusPending,
		PaymentMethod: method,
		PaymentPhone:  phone,
		CreatedAt:     now,
		UpdatedAt:     now,
	}, nil
}

// ReconcileResult is the outcome of a successful reconciliation.
type ReconcileResult struct {
	OrderID string
	Lines   []OrderLine
}

// LinesTotal is the sum of the recorded line prices.
func (r *ReconcileResult) LinesTotal() Amount {
	var total Amount
	for _, l := range r.Lines {
		total += l.UnitPrice * Amount(l.Quantity)
	}
	return total
}
