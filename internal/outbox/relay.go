// Package outbox relays staged reservation events from the database to NATS.
package outbox

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

var (
	relayPublishTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "reservation_outbox_publish_total",
		Help: "Total number of relayed reservation events.",
	})
	relayFailTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "reservation_outbox_fail_total",
		Help: "Total number of relay failures after exhausting retries.",
	})
	relayLagSeconds = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "reservation_outbox_lag_seconds",
		Help: "Age of the oldest relayed reservation event in seconds.",
	})
)

type natsPublisher interface {
	PublishMsg(msg *nats.Msg) error
}

// Config defines tunables for the relay loop.
type Config struct {
	PollInterval time.Duration
	BatchSize    int
	RetryMax     int
}

// Relay polls the reservation_outbox table and publishes pending rows in
// insertion order. Rows are claimed with FOR UPDATE SKIP LOCKED so multiple
// replicas can relay concurrently without double-publishing.
type Relay struct {
	db        *sql.DB
	publisher natsPublisher
	logger    *zap.Logger
	cfg       Config
	tracer    trace.Tracer
}

// NewRelay constructs a relay.
func NewRelay(db *sql.DB, conn *nats.Conn, logger *zap.Logger, cfg Config) *Relay {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 200 * time.Millisecond
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.RetryMax <= 0 {
		cfg.RetryMax = 3
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Relay{
		db:        db,
		publisher: conn,
		logger:    logger,
		cfg:       cfg,
		tracer:    otel.Tracer("reservation.outbox.relay"),
	}
}

// Run polls until the context is cancelled.
func (r *Relay) Run(ctx context.Context) error {
	if r.db == nil || r.publisher == nil {
		return errors.New("outbox relay requires database and NATS connection")
	}
	ticker := time.NewTicker(r.cfg.PollInterval)
	defer ticker.Stop()
	for {
		if err := r.relayOnce(ctx); err != nil && !errors.Is(err, context.Canceled) {
			r.logger.Error("outbox batch failed", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

type row struct {
	ID        int64
	Topic     string
	Payload   []byte
	CreatedAt time.Time
}

func (r *Relay) relayOnce(ctx context.Context) error {
	ctx, span := r.tracer.Start(ctx, "outbox.relay")
	defer span.End()

	tx, err := r.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	rows, err := r.claimPending(ctx, tx)
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	if len(rows) == 0 {
		return tx.Commit()
	}

	ids := make([]int64, 0, len(rows))
	maxLag := 0.0
	for _, rec := range rows {
		if err := r.publishWithRetry(ctx, rec); err != nil {
			_ = tx.Rollback()
			return err
		}
		ids = append(ids, rec.ID)
		relayPublishTotal.Inc()
		if lag := time.Since(rec.CreatedAt).Seconds(); lag > maxLag {
			maxLag = lag
		}
	}
	relayLagSeconds.Set(maxLag)

	if err := markPublished(ctx, tx, ids); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

func (r *Relay) claimPending(ctx context.Context, tx *sql.Tx) ([]row, error) {
	result, err := tx.QueryContext(ctx,
		`SELECT id, topic, payload, created_at FROM reservation_outbox
		 WHERE NOT published ORDER BY id LIMIT $1 FOR UPDATE SKIP LOCKED`, r.cfg.BatchSize)
	if err != nil {
		return nil, fmt.Errorf("select outbox: %w", err)
	}
	defer result.Close()
	var rows []row
	for result.Next() {
		var rec row
		if err := result.Scan(&rec.ID, &rec.Topic, &rec.Payload, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan outbox: %w", err)
		}
		rows = append(rows, rec)
	}
	return rows, result.Err()
}

func (r *Relay) publishWithRetry(ctx context.Context, rec row) error {
	msg := nats.NewMsg(rec.Topic)
	msg.Data = rec.Payload
	var attempt int
	for {
		attempt++
		err := r.publisher.PublishMsg(msg)
		if err == nil {
			return nil
		}
		r.logger.Warn("relay publish failed", zap.Error(err), zap.Int("attempt", attempt), zap.Int64("outbox_id", rec.ID))
		if attempt >= r.cfg.RetryMax {
			relayFailTotal.Inc()
			return fmt.Errorf("publish outbox %d: %w", rec.ID, err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt) * 50 * time.Millisecond):
		}
	}
}

func markPublished(ctx context.Context, tx *sql.Tx, ids []int64) error {
	placeholders := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args[i] = id
	}
	query := "UPDATE reservation_outbox SET published = true WHERE id IN (" + strings.Join(placeholders, ",") + ")"
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("mark published: %w", err)
	}
	return nil
}
