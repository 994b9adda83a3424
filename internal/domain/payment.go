package domain

// Network is the mobile-money provider that carries the payment.
type Network string

const (
	NetworkProviderA Network = "PROVIDER_A"
	NetworkProviderB Network = "PROVIDER_B"
)

func ParseNetwork(s string) (Network, bool) {
	switch Network(s) {
	case NetworkProviderA, NetworkProviderB:
		return Network(s), true
	}
	return "", false
}

// PaymentStatus is reported by the payment status endpoint.
type PaymentStatus string

const (
	PaymentStatusPending    PaymentStatus = "pending"
	PaymentStatusSuccessful PaymentStatus = "successful"
	PaymentStatusFailed     PaymentStatus = "failed"
	PaymentStatusCancelled  PaymentStatus = "cancelled"
)

func (s PaymentStatus) IsTerminal() bool {
	return s == PaymentStatusSuccessful || s == PaymentStatusFailed || s == PaymentStatusCancelled
}

// PaymentRequest is sent once when a session enters processing.
type PaymentRequest struct {
	Phone     string        `json:"phone"`
	Amount    Amount        `json:"amount"`
	Network   Network       `json:"network"`
	BuyerID   string        `json:"buyer_id"`
	CartLines []SessionLine `json:"cart_lines"`
}

// Notification is the best-effort confirmation message sent after a successful checkout.
type Notification struct {
	Phone     string `json:"phone"`
	OrderID   string `json:"order_id"`
	BuyerName string `json:"buyer_name"`
	Amount    Amount `json:"amount"`
}
