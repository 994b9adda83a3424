package notify

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"checkout/internal/domain"
)

type fakeOutbox struct {
	msgs []*domain.OutboxMessage
	err  error
}

func (f *fakeOutbox) CreateMessageTx(_ context.Context, _ domain.Querier, msg *domain.OutboxMessage) error {
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, msg)
	return nil
}

func TestDispatch_QueuesKeyedMessage(t *testing.T) {
	outbox := &fakeOutbox{}
	d := NewOutboxDispatcher(nil, outbox, "buyer_notifications", zaptest.NewLogger(t, zaptest.Level(zap.InfoLevel)))

	n := domain.Notification{Phone: "+250788123456", OrderID: "abc123", BuyerName: "Aline", Amount: 5000}
	require.NoError(t, d.Dispatch(context.Background(), n))

	require.Len(t, outbox.msgs, 1)
	msg := outbox.msgs[0]
	assert.Equal(t, "buyer_notifications", msg.Topic)
	assert.Equal(t, "abc123", msg.Key)
	assert.Equal(t, domain.OutboxStatusPending, msg.Status)
	_, err := uuid.Parse(msg.ID)
	assert.NoError(t, err)

	var decoded domain.Notification
	require.NoError(t, json.Unmarshal(msg.Payload, &decoded))
	assert.Equal(t, n, decoded)
}

func TestDispatch_FailuresAreNotificationErrors(t *testing.T) {
	outbox := &fakeOutbox{err: errors.New("db down")}
	d := NewOutboxDispatcher(nil, outbox, "buyer_notifications", zaptest.NewLogger(t))

	err := d.Dispatch(context.Background(), domain.Notification{Phone: "+250788123456", OrderID: "abc123"})
	var notifyErr *domain.NotificationError
	require.ErrorAs(t, err, &notifyErr)
	assert.Equal(t, "abc123", notifyErr.OrderID)

	err = d.Dispatch(context.Background(), domain.Notification{OrderID: "abc124"})
	assert.ErrorAs(t, err, &notifyErr)
}

func TestFormatSMS(t *testing.T) {
	text := FormatSMS(domain.Notification{OrderID: "abc123", BuyerName: "Aline", Amount: 5000})
	assert.Contains(t, text, "Aline")
	assert.Contains(t, text, "abc123")
	assert.Contains(t, text, "Frw 5000")
}

func TestDispatch_MessageIDsAreUnique(t *testing.T) {
	outbox := &fakeOutbox{}
	d := NewOutboxDispatcher(nil, outbox, "buyer_notifications", zaptest.NewLogger(t))

	for _, id := range []string{"abc123", "abc124"} {
		require.NoError(t, d.Dispatch(context.Background(), domain.Notification{Phone: "+250788123456", OrderID: id}))
	}
	require.Len(t, outbox.msgs, 2)
	assert.NotEqual(t, outbox.msgs[0].ID, outbox.msgs[1].ID)
}
