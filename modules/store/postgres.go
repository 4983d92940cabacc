package store

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"strings"

	"github.com/example/chat-relay/domain/chat"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

const (
	nextSeqQuery = `
INSERT INTO room_sequences (room_id, last_seq) VALUES ($1, 1)
ON CONFLICT (room_id) DO UPDATE SET last_seq = room_sequences.last_seq + 1
RETURNING last_seq`

	insertMessageQuery = `
INSERT INTO messages (room_id, seq, user_id, username, body, created_at)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING created_at`

	listMessagesQuery = `
SELECT seq, room_id, user_id, username, body, created_at
FROM messages
WHERE room_id = $1
ORDER BY seq ASC`
)

// PostgresStore persists history in PostgreSQL through pgx.
// The room_sequences row is locked by the upsert until the transaction ends,
// which serializes appends per room and keeps sequences gapless.
type PostgresStore struct {
	pool *pgxpool.Pool
}

var _ Driver = (*PostgresStore)(nil)

// OpenPostgres connects to databaseURL and applies pending migrations.
func OpenPostgres(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	if databaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required for the postgres driver")
	}

	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if err := migratePostgres(pool); err != nil {
		pool.Close()
		return nil, err
	}

	return NewPostgresStore(pool), nil
}

// NewPostgresStore wraps an existing pool. The schema must already exist.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func migratePostgres(pool *pgxpool.Pool) error {
	db := stdlib.OpenDBFromPool(pool)
	defer db.Close()

	goose.SetBaseFS(migrationsFS)
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("failed to set goose dialect: %w", err)
	}
	if err := goose.Up(db, "migrations"); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

// Name returns the driver name.
func (s *PostgresStore) Name() string {
	return DriverPostgres
}

// Append reserves the next room sequence and inserts the message in one transaction.
func (s *PostgresStore) Append(ctx context.Context, in chat.NewMessage) (*chat.Message, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, unavailable("begin", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	msg := &chat.Message{
		RoomID:   in.RoomID,
		UserID:   in.UserID,
		Username: in.Username,
		Body:     in.Body,
	}

	if err := tx.QueryRow(ctx, nextSeqQuery, in.RoomID).Scan(&msg.ID); err != nil {
		return nil, classifyPgError("reserve sequence", err)
	}

	if err := tx.QueryRow(ctx, insertMessageQuery,
		msg.RoomID, msg.ID, msg.UserID, msg.Username, msg.Body, nowUTC(),
	).Scan(&msg.CreatedAt); err != nil {
		return nil, classifyPgError("insert message", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, unavailable("commit", err)
	}

	msg.CreatedAt = msg.CreatedAt.UTC()
	return msg, nil
}

// ListAll returns the room history ordered by sequence.
func (s *PostgresStore) ListAll(ctx context.Context, roomID string) ([]*chat.Message, error) {
	rows, err := s.pool.Query(ctx, listMessagesQuery, roomID)
	if err != nil {
		return nil, classifyPgError("list", err)
	}
	defer rows.Close()

	result := make([]*chat.Message, 0)
	for rows.Next() {
		var msg chat.Message
		if err := rows.Scan(&msg.ID, &msg.RoomID, &msg.UserID, &msg.Username, &msg.Body, &msg.CreatedAt); err != nil {
			return nil, unavailable("scan", err)
		}
		msg.CreatedAt = msg.CreatedAt.UTC()
		result = append(result, &msg)
	}
	if err := rows.Err(); err != nil {
		return nil, classifyPgError("list", err)
	}
	return result, nil
}

// Ping checks the pool.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close closes the pool.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

// classifyPgError maps data exceptions (SQLSTATE class 22, e.g. a NUL byte in
// a text value) to invalid requests and everything else to store failures.
func classifyPgError(op string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && strings.HasPrefix(pgErr.Code, "22") {
		return fmt.Errorf("%w: %s", chat.ErrInvalidRequest, pgErr.Message)
	}
	return unavailable(op, err)
}
