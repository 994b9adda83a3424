package outbox

import (
	"context"
	"database/sql"
	"time"

	"go.uber.org/zap"

	"checkout/internal/domain"
	kafkaInfra "checkout/internal/infrastructure/kafka"
)

type OutboxRepository interface {
	GetPendingMessages(ctx context.Context, querier domain.Querier, limit int) ([]domain.OutboxMessage, error)
	UpdateMessageStatusTx(ctx context.Context, querier domain.Querier, id string, status domain.OutboxMessageStatus) error
}

type Processor struct {
	db            *sql.DB
	outboxRepo    OutboxRepository
	kafkaProducer kafkaInfra.Producer
	pollInterval  time.Duration
	pollTimeout   time.Duration
	batchSize     int
	logger        *zap.Logger
}

func NewProcessor(
	db *sql.DB,
	outboxRepo OutboxRepository,
	kafkaProducer kafkaInfra.Producer,
	pollInterval time.Duration,
	pollTimeout time.Duration,
	batchSize int,
	logger *zap.Logger,
) *Processor {
	return &Processor{
		db:            db,
		outboxRepo:    outboxRepo,
		kafkaProducer: kafkaProducer,
		pollInterval:  pollInterval,
		pollTimeout:   pollTimeout,
		batchSize:     batchSize,
		logger:        logger,
	}
}

// Start polls the outbox until ctx is done.
func (p *Processor) Start(ctx context.Context) {
	p.logger.Info("Starting outbox processor...", zap.Duration("poll_interval", p.pollInterval))
	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("Outbox processor stopped.")
			return
		case <-ticker.C:
			p.processOutboxMessages(ctx)
		}
	}
}

// processOutboxMessages publishes one batch. Rows stay locked for the whole batch so another
// processor instance skips them; a message that fails to publish stays PENDING for the next tick.
func (p *Processor) processOutboxMessages(ctx context.Context) int {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		p.logger.Error("Failed to begin outbox transaction", zap.Error(err))
		return 0
	}
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("Panic while processing outbox, rolling back", zap.Any("panic", r))
			_ = tx.Rollback()
			panic(r)
		}
	}()

	queryCtx, cancel := context.WithTimeout(ctx, p.pollTimeout)
	messages, err := p.outboxRepo.GetPendingMessages(queryCtx, tx, p.batchSize)
	cancel()
	if err != nil {
		p.logger.Error("Failed to get pending outbox messages", zap.Error(err))
		_ = tx.Rollback()
		return 0
	}
	if len(messages) == 0 {
		p.logger.Debug("No pending outbox messages found.")
		_ = tx.Rollback()
		return 0
	}

	p.logger.Info("Found pending outbox messages", zap.Int("count", len(messages)))

	sent := 0
	for _, msg := range messages {
		if err := p.kafkaProducer.Produce(ctx, msg.Key, msg.Topic, msg.Payload); err != nil {
			p.logger.Error("Failed to send message to Kafka",
				zap.String("message_id", msg.ID),
				zap.String("topic", msg.Topic),
				zap.Error(err))
			continue
		}

		if err := p.outboxRepo.UpdateMessageStatusTx(ctx, tx, msg.ID, domain.OutboxStatusSent); err != nil {
			p.logger.Error("Failed to update outbox message status to SENT", zap.String("message_id", msg.ID), zap.Error(err))
			_ = tx.Rollback()
			return 0
		}
		sent++
		p.logger.Info("Message sent to Kafka successfully", zap.String("message_id", msg.ID), zap.String("topic", msg.Topic))
	}

	if err := tx.Commit(); err != nil {
		p.logger.Error("Failed to commit outbox transaction", zap.Error(err))
		return 0
	}
	return sent
}
