package outbox

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"checkout/internal/domain"
	outboxpg "checkout/internal/repository/outbox_repo/postgres"
)

type produced struct {
	key, topic string
	value      []byte
}

type fakeProducer struct {
	failKeys map[string]bool
	sent     []produced
}

func (f *fakeProducer) Produce(_ context.Context, key, topic string, value []byte) error {
	if f.failKeys[key] {
		return errors.New("broker unavailable")
	}
	f.sent = append(f.sent, produced{key: key, topic: topic, value: value})
	return nil
}

func (f *fakeProducer) Close() error { return nil }

var outboxColumns = []string{"id", "topic", "key_value", "payload", "status", "created_at", "sent_at"}

func TestProcessOutboxMessages_PublishesAndMarksSent(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	producer := &fakeProducer{failKeys: map[string]bool{"order-2": true}}
	p := NewProcessor(db, outboxpg.NewOutboxRepository(), producer, time.Second, time.Second, 10,
		zaptest.NewLogger(t, zaptest.Level(zap.InfoLevel)))

	now := time.Now()
	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT (.+) FROM outbox_messages WHERE status = \$1 ORDER BY created_at ASC LIMIT \$2 FOR UPDATE SKIP LOCKED`).
		WithArgs(domain.OutboxStatusPending, 10).
		WillReturnRows(sqlmock.NewRows(outboxColumns).
			AddRow("m1", "buyer_notifications", "order-1", []byte(`{"order_id":"order-1"}`), "PENDING", now, nil).
			AddRow("m2", "buyer_notifications", "order-2", []byte(`{"order_id":"order-2"}`), "PENDING", now, nil))
	mock.ExpectExec(`UPDATE outbox_messages SET status = \$1`).
		WithArgs(domain.OutboxStatusSent, sqlmock.AnyArg(), "m1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	sent := p.processOutboxMessages(context.Background())
	assert.Equal(t, 1, sent)
	require.Len(t, producer.sent, 1)
	assert.Equal(t, "order-1", producer.sent[0].key)
	assert.Equal(t, "buyer_notifications", producer.sent[0].topic)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestProcessOutboxMessages_NothingPending(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	producer := &fakeProducer{}
	p := NewProcessor(db, outboxpg.NewOutboxRepository(), producer, time.Second, time.Second, 10, zaptest.NewLogger(t))

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT (.+) FROM outbox_messages`).
		WillReturnRows(sqlmock.NewRows(outboxColumns))
	mock.ExpectRollback()

	assert.Equal(t, 0, p.processOutboxMessages(context.Background()))
	assert.Empty(t, producer.sent)
	assert.NoError(t, mock.ExpectationsWereMet())
}
