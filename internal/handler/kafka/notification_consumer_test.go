package kafka

import (
	"context"
	"errors"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"checkout/internal/infrastructure/sms"
)

type recordingSender struct {
	sent []sms.Message
	err  error
}

func (s *recordingSender) Send(_ context.Context, msg sms.Message) error {
	s.sent = append(s.sent, msg)
	return s.err
}

func TestNotificationMessageHandler_SendsSMS(t *testing.T) {
	sender := &recordingSender{}
	handle := NotificationMessageHandler(sender, "FoodSaver", zaptest.NewLogger(t))

	err := handle(context.Background(), kafka.Message{
		Key:   []byte("abc123"),
		Value: []byte(`{"phone":"+250788123456","order_id":"abc123","buyer_name":"Aline","amount":5000}`),
	})
	require.NoError(t, err)
	require.Len(t, sender.sent, 1)
	assert.Equal(t, "+250788123456", sender.sent[0].To)
	assert.Equal(t, "FoodSaver", sender.sent[0].From)
	assert.Contains(t, sender.sent[0].Text, "abc123")
}

func TestNotificationMessageHandler_FailuresAreAcknowledged(t *testing.T) {
	sender := &recordingSender{err: errors.New("sms api down")}
	handle := NotificationMessageHandler(sender, "FoodSaver", zaptest.NewLogger(t))

	assert.NoError(t, handle(context.Background(), kafka.Message{Value: []byte(`{"phone":"+250788123456","order_id":"abc123"}`)}))
	assert.NoError(t, handle(context.Background(), kafka.Message{Value: []byte(`not json`)}))
	assert.Len(t, sender.sent, 1)
}
