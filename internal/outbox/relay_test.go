package outbox

import (
	"context"
	"database/sql"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	natscontainer "github.com/testcontainers/testcontainers-go/modules/nats"
	postgrescontainer "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap"

	_ "github.com/jackc/pgx/v5/stdlib"
)

func TestRelayPublishesPendingRows(t *testing.T) {
	ctx := context.Background()
	pg := startPostgres(t, ctx)
	db := openDB(t, ctx, pg)
	prepareOutboxTable(t, ctx, db)
	insertOutbox(t, ctx, db, "reservation.events", []byte(`{"type":"reservation.booked"}`))

	nc := connectNATS(t, ctx)
	msgCh := make(chan *nats.Msg, 1)
	_, err := nc.Subscribe("reservation.events", func(msg *nats.Msg) {
		msgCh <- msg
	})
	require.NoError(t, err)

	relay := NewRelay(db, nc, zap.NewNop(), Config{PollInterval: 100 * time.Millisecond, BatchSize: 10, RetryMax: 5})
	ctxRelay, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		_ = relay.Run(ctxRelay)
	}()

	select {
	case <-time.After(10 * time.Second):
		t.Fatal("expected relayed event")
	case msg := <-msgCh:
		require.Equal(t, []byte(`{"type":"reservation.booked"}`), msg.Data)
	}

	assertPublished(t, ctx, db, 1)
}

func TestRelayRetriesTransientPublishFailures(t *testing.T) {
	ctx := context.Background()
	pg := startPostgres(t, ctx)
	db := openDB(t, ctx, pg)
	prepareOutboxTable(t, ctx, db)
	insertOutbox(t, ctx, db, "reservation.events", []byte(`{"type":"store.rating_updated"}`))

	nc := connectNATS(t, ctx)
	msgCh := make(chan *nats.Msg, 1)
	_, err := nc.Subscribe("reservation.events", func(msg *nats.Msg) {
		msgCh <- msg
	})
	require.NoError(t, err)

	relay := NewRelay(db, nc, zap.NewNop(), Config{PollInterval: 100 * time.Millisecond, BatchSize: 5, RetryMax: 5})
	relay.publisher = &flakyPublisher{base: nc, failFor: 3}

	ctxRelay, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		_ = relay.Run(ctxRelay)
	}()

	select {
	case <-time.After(15 * time.Second):
		t.Fatal("expected relayed event after retries")
	case msg := <-msgCh:
		require.Equal(t, []byte(`{"type":"store.rating_updated"}`), msg.Data)
	}

	assertPublished(t, ctx, db, 1)
}

type downPublisher struct{}

func (downPublisher) PublishMsg(*nats.Msg) error { return errors.New("broker down") }

func TestPublishRetryStopsOnShutdown(t *testing.T) {
	relay := &Relay{publisher: downPublisher{}, logger: zap.NewNop(), cfg: Config{RetryMax: 10}}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := relay.publishWithRetry(ctx, row{ID: 1, Topic: "reservation.events", Payload: []byte(`{}`)})
	require.ErrorIs(t, err, context.Canceled)
}

type flakyPublisher struct {
	base    *nats.Conn
	failFor int32
}

func (f *flakyPublisher) PublishMsg(msg *nats.Msg) error {
	if atomic.LoadInt32(&f.failFor) > 0 {
		atomic.AddInt32(&f.failFor, -1)
		return errors.New("simulated nats outage")
	}
	return f.base.PublishMsg(msg)
}

func startPostgres(t *testing.T, ctx context.Context) *postgrescontainer.PostgresContainer {
	pg, err := postgrescontainer.Run(ctx, "postgres:16",
		postgrescontainer.WithDatabase("tablebook"),
		postgrescontainer.WithUsername("postgres"),
		postgrescontainer.WithPassword("postgres"),
		testcontainers.WithWaitStrategy(wait.ForLog("database system is ready to accept connections")))
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, pg.Terminate(ctx))
	})
	return pg
}

func openDB(t *testing.T, ctx context.Context, pg *postgrescontainer.PostgresContainer) *sql.DB {
	dsn, err := pg.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)
	db, err := sql.Open("pgx", dsn)
	require.NoError(t, err)
	require.NoError(t, db.PingContext(ctx))
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func connectNATS(t *testing.T, ctx context.Context) *nats.Conn {
	container, err := natscontainer.Run(ctx, "nats:2")
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, container.Terminate(ctx))
	})
	url, err := container.ConnectionString(ctx)
	require.NoError(t, err)
	nc, err := nats.Connect(url)
	require.NoError(t, err)
	t.Cleanup(func() { _ = nc.Drain() })
	return nc
}

func prepareOutboxTable(t *testing.T, ctx context.Context, db *sql.DB) {
	ddl := `CREATE TABLE IF NOT EXISTS reservation_outbox (
id BIGSERIAL PRIMARY KEY,
topic TEXT NOT NULL,
payload BYTEA NOT NULL,
published BOOLEAN NOT NULL DEFAULT FALSE,
created_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`
	_, err := db.ExecContext(ctx, ddl)
	require.NoError(t, err)
}

func insertOutbox(t *testing.T, ctx context.Context, db *sql.DB, topic string, payload []byte) {
	_, err := db.ExecContext(ctx, `INSERT INTO reservation_outbox (topic, payload, published) VALUES ($1, $2, false)`, topic, payload)
	require.NoError(t, err)
}

func assertPublished(t *testing.T, ctx context.Context, db *sql.DB, id int64) {
	var published bool
	row := db.QueryRowContext(ctx, `SELECT published FROM reservation_outbox WHERE id = $1`, id)
	require.NoError(t, row.Scan(&published))
	require.True(t, published)
}
