package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"checkout/internal/domain"
	"checkout/internal/metrics"
)

type Dispatcher interface {
	Dispatch(ctx context.Context, n domain.Notification) error
}

type OutboxWriter interface {
	CreateMessageTx(ctx context.Context, querier domain.Querier, msg *domain.OutboxMessage) error
}

// OutboxDispatcher queues buyer notifications in the outbox table. The outbox processor
// publishes them to Kafka and the notifier turns them into SMS.
type OutboxDispatcher struct {
	db         domain.Querier
	outboxRepo OutboxWriter
	topic      string
	logger     *zap.Logger
}

func NewOutboxDispatcher(db domain.Querier, outboxRepo OutboxWriter, topic string, logger *zap.Logger) *OutboxDispatcher {
	return &OutboxDispatcher{
		db:         db,
		outboxRepo: outboxRepo,
		topic:      topic,
		logger:     logger,
	}
}

func (d *OutboxDispatcher) Dispatch(ctx context.Context, n domain.Notification) error {
	if n.Phone == "" {
		metrics.RecordNotification("enqueue", "skipped")
		return &domain.NotificationError{OrderID: n.OrderID, Err: fmt.Errorf("no phone number to notify")}
	}

	payload, err := json.Marshal(n)
	if err != nil {
		metrics.RecordNotification("enqueue", "error")
		return &domain.NotificationError{OrderID: n.OrderID, Err: fmt.Errorf("failed to marshal notification: %w", err)}
	}

	msg := &domain.OutboxMessage{
		ID:        uuid.NewString(),
		Topic:     d.topic,
		Key:       n.OrderID,
		Payload:   payload,
		Status:    domain.OutboxStatusPending,
		CreatedAt: time.Now(),
	}
	if err := d.outboxRepo.CreateMessageTx(ctx, d.db, msg); err != nil {
		metrics.RecordNotification("enqueue", "error")
		return &domain.NotificationError{OrderID: n.OrderID, Err: err}
	}

	metrics.RecordNotification("enqueue", "ok")
	d.logger.Info("Buyer notification queued", zap.String("order_id", n.OrderID), zap.String("message_id", msg.ID))
	return nil
}

// FormatSMS renders the confirmation text sent to the buyer.
func FormatSMS(n domain.Notification) string {
	name := n.BuyerName
	if name == "" {
		name = "there"
	}
	return fmt.Sprintf("Hi %s, your order %s is confirmed. We received %s. Please collect it from the vendor before it expires.",
		name, n.OrderID, n.Amount)
}
