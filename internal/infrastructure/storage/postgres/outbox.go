package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"

	"hivepos/internal/core/id"
	"hivepos/internal/domain"
)

const (
	tableOutbox = "sys_outbox"
	tableDLQ    = "sys_outbox_dlq"

	// maxOutboxRetries is the attempt count after which a message is failed.
	maxOutboxRetries = 5
)

// OutboxStatus represents the state of an outbox message.
type OutboxStatus string

const (
	OutboxStatusPending   OutboxStatus = "pending"
	OutboxStatusPublished OutboxStatus = "published"
	OutboxStatusFailed    OutboxStatus = "failed"
)

// OutboxMessage represents a message in the transactional outbox.
type OutboxMessage struct {
	ID            id.ID        `db:"id"`
	AggregateType string       `db:"aggregate_type"` // e.g. "import_batch", "refund"
	AggregateID   id.ID        `db:"aggregate_id"`
	EventType     string       `db:"event_type"` // e.g. "ImportCompleted"
	Payload       []byte       `db:"payload"`
	Status        OutboxStatus `db:"status"`
	RetryCount    int          `db:"retry_count"`
	LastError     *string      `db:"last_error"`
	NextRetryAt   *time.Time   `db:"next_retry_at"`
	CreatedAt     time.Time    `db:"created_at"`
	PublishedAt   *time.Time   `db:"published_at"`
}

var outboxColumns = columnsOf[OutboxMessage]()

// OutboxPublisher writes domain events to the outbox table.
type OutboxPublisher struct {
	repo
}

var _ domain.EventPublisher = (*OutboxPublisher)(nil)

// NewOutboxPublisher creates a new outbox publisher.
func NewOutboxPublisher(txm *TxManager) *OutboxPublisher {
	return &OutboxPublisher{repo: newRepo(txm)}
}

// Publish writes an event within the current transaction.
// MUST be called inside a transaction context.
func (p *OutboxPublisher) Publish(ctx context.Context, event domain.Event) error {
	return p.PublishBatch(ctx, []domain.Event{event})
}

// PublishBatch writes several events in one statement.
func (p *OutboxPublisher) PublishBatch(ctx context.Context, events []domain.Event) error {
	if p.txm.GetTx(ctx) == nil {
		return fmt.Errorf("outbox publish requires transaction context")
	}
	if len(events) == 0 {
		return nil
	}

	now := time.Now().UTC()
	q := p.sq.Insert(tableOutbox).Columns("id", "aggregate_type", "aggregate_id", "event_type", "payload", "status", "created_at")
	for _, event := range events {
		payload, err := json.Marshal(event.Payload)
		if err != nil {
			return fmt.Errorf("marshal %s payload: %w", event.EventType, err)
		}
		q = q.Values(id.New(), event.AggregateType, event.AggregateID, event.EventType, payload, OutboxStatusPending, now)
	}
	return p.exec(ctx, q, "outbox message")
}

// OutboxHandler delivers outbox messages downstream.
type OutboxHandler interface {
	Handle(ctx context.Context, msg *OutboxMessage) error
}

// OutboxRelay reads pending messages and hands them to a handler.
// Used by the background worker.
type OutboxRelay struct {
	repo
	batchSize int
	handler   OutboxHandler
}

// NewOutboxRelay creates a new outbox relay.
func NewOutboxRelay(txm *TxManager, batchSize int, handler OutboxHandler) *OutboxRelay {
	if batchSize <= 0 {
		batchSize = 100
	}
	return &OutboxRelay{
		repo:      newRepo(txm),
		batchSize: batchSize,
		handler:   handler,
	}
}

// BatchSize returns the page size used by ProcessBatch.
func (r *OutboxRelay) BatchSize() int { return r.batchSize }

// ProcessBatch locks a page of due messages and processes them in one
// transaction. Returns the number delivered.
func (r *OutboxRelay) ProcessBatch(ctx context.Context) (int, error) {
	processed := 0
	err := r.txm.RunInTransaction(ctx, func(ctx context.Context) error {
		processed = 0
		q := r.sq.Select(outboxColumns...).From(tableOutbox).
			Where(squirrel.Eq{"status": OutboxStatusPending}).
			Where(squirrel.Or{
				squirrel.Eq{"next_retry_at": nil},
				squirrel.Expr("next_retry_at <= NOW()"),
			}).
			OrderBy("created_at").
			Limit(uint64(r.batchSize)).
			Suffix("FOR UPDATE SKIP LOCKED")

		var messages []*OutboxMessage
		if err := r.selectAll(ctx, &messages, q, "outbox messages"); err != nil {
			return err
		}

		for _, msg := range messages {
			delivered, err := r.processMessage(ctx, msg)
			if err != nil {
				return err
			}
			if delivered {
				processed++
			}
		}
		return nil
	})
	return processed, err
}

// processMessage delivers one message. A handler failure schedules a retry
// with linear backoff and is not returned; only bookkeeping errors are.
func (r *OutboxRelay) processMessage(ctx context.Context, msg *OutboxMessage) (bool, error) {
	if handleErr := r.handler.Handle(ctx, msg); handleErr != nil {
		status := OutboxStatusPending
		if msg.RetryCount+1 >= maxOutboxRetries {
			status = OutboxStatusFailed
		}
		err := r.exec(ctx, r.sq.Update(tableOutbox).
			Set("retry_count", squirrel.Expr("retry_count + 1")).
			Set("last_error", handleErr.Error()).
			Set("next_retry_at", time.Now().UTC().Add(time.Duration(msg.RetryCount+1)*time.Minute)).
			Set("status", status).
			Where(squirrel.Eq{"id": msg.ID}), "outbox message")
		return false, err
	}

	err := r.exec(ctx, r.sq.Update(tableOutbox).
		Set("status", OutboxStatusPublished).
		Set("published_at", time.Now().UTC()).
		Where(squirrel.Eq{"id": msg.ID}), "outbox message")
	return err == nil, err
}

// MoveToDLQ moves failed messages to the dead letter table.
func (r *OutboxRelay) MoveToDLQ(ctx context.Context) (int64, error) {
	tag, err := r.txm.GetQuerier(ctx).Exec(ctx, `
		WITH moved AS (
			DELETE FROM `+tableOutbox+`
			WHERE status = $1 AND retry_count >= $2
			RETURNING *
		)
		INSERT INTO `+tableDLQ+`
		SELECT *, NOW() AS failed_at, last_error AS failure_reason FROM moved
	`, OutboxStatusFailed, maxOutboxRetries)
	if err != nil {
		return 0, fmt.Errorf("move to DLQ: %w", err)
	}
	return tag.RowsAffected(), nil
}

// LogHandler delivers messages to the structured log. It stands in for a
// broker until one is configured.
type LogHandler struct {
	Log func(ctx context.Context, msg string, keysAndValues ...any)
}

func (h LogHandler) Handle(ctx context.Context, msg *OutboxMessage) error {
	h.Log(ctx, "outbox event",
		"event_type", msg.EventType,
		"aggregate_type", msg.AggregateType,
		"aggregate_id", msg.AggregateID,
		"payload", string(msg.Payload),
	)
	return nil
}
