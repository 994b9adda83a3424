package kafka

import (
	"context"
	"encoding/json"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"checkout/internal/domain"
	kafka_infra "checkout/internal/infrastructure/kafka"
	"checkout/internal/infrastructure/sms"
	"checkout/internal/metrics"
	"checkout/internal/notify"
)

// NotificationMessageHandler turns buyer notifications into SMS. Delivery is best effort: a
// failed send is logged and the message is still acknowledged.
func NotificationMessageHandler(sender sms.Sender, senderID string, logger *zap.Logger) kafka_infra.MessageHandler {
	return func(ctx context.Context, msg kafka.Message) error {
		logger.Info("Received buyer notification",
			zap.String("topic", msg.Topic),
			zap.Int("partition", msg.Partition),
			zap.Int64("offset", msg.Offset),
			zap.String("key", string(msg.Key)),
		)

		var n domain.Notification
		if err := json.Unmarshal(msg.Value, &n); err != nil {
			logger.Error("Failed to unmarshal buyer notification",
				zap.Error(err),
				zap.ByteString("value", msg.Value),
				zap.Int64("offset", msg.Offset),
			)
			metrics.RecordNotification("deliver", "malformed")
			return nil
		}

		err := sender.Send(ctx, sms.Message{
			To:   n.Phone,
			From: senderID,
			Text: notify.FormatSMS(n),
		})
		if err != nil {
			notifyErr := &domain.NotificationError{OrderID: n.OrderID, Err: err}
			logger.Warn("Buyer notification was not delivered", zap.String("order_id", n.OrderID), zap.Error(notifyErr))
			metrics.RecordNotification("deliver", "error")
			return nil
		}

		metrics.RecordNotification("deliver", "ok")
		logger.Info("Buyer notification delivered", zap.String("order_id", n.OrderID))
		return nil
	}
}
