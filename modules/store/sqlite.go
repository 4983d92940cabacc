package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/example/chat-relay/domain/chat"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// messageRecord is the GORM model of a stored message.
type messageRecord struct {
	ID        uint      `gorm:"primaryKey"`
	RoomID    string    `gorm:"not null;uniqueIndex:idx_messages_room_seq,priority:1"`
	Seq       int64     `gorm:"not null;uniqueIndex:idx_messages_room_seq,priority:2"`
	UserID    string    `gorm:"not null;default:''"`
	Username  string    `gorm:"not null"`
	Body      string    `gorm:"not null"`
	CreatedAt time.Time `gorm:"not null"`
}

// TableName returns the table name for GORM.
func (messageRecord) TableName() string {
	return "messages"
}

func (r messageRecord) toMessage() *chat.Message {
	return &chat.Message{
		ID:        r.Seq,
		RoomID:    r.RoomID,
		UserID:    r.UserID,
		Username:  r.Username,
		Body:      r.Body,
		CreatedAt: r.CreatedAt.UTC(),
	}
}

// SQLiteStore persists history in SQLite through GORM.
// It uses a single connection so appends are serialized by the pool.
type SQLiteStore struct {
	db    *gorm.DB
	sqlDB *sql.DB
	path  string
}

var _ Driver = (*SQLiteStore)(nil)

// OpenSQLite opens (or creates) the database at path and migrates the schema.
func OpenSQLite(path string) (*SQLiteStore, error) {
	if path == "" {
		path = "chat.db"
	}
	dsn := path
	if path != ":memory:" {
		dsn = path + "?_busy_timeout=5000&_journal_mode=WAL"
	}

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(&messageRecord{}); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("failed to migrate sqlite database: %w", err)
	}

	return &SQLiteStore{db: db, sqlDB: sqlDB, path: path}, nil
}

// Name returns the driver name.
func (s *SQLiteStore) Name() string {
	return DriverSQLite
}

// Append stores a message with MAX(seq)+1 of its room.
func (s *SQLiteStore) Append(ctx context.Context, in chat.NewMessage) (*chat.Message, error) {
	rec := messageRecord{
		RoomID:    in.RoomID,
		UserID:    in.UserID,
		Username:  in.Username,
		Body:      in.Body,
		CreatedAt: nowUTC(),
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var last int64
		if err := tx.Model(&messageRecord{}).
			Where("room_id = ?", in.RoomID).
			Select("COALESCE(MAX(seq), 0)").
			Row().
			Scan(&last); err != nil {
			return err
		}
		rec.Seq = last + 1
		return tx.Create(&rec).Error
	})
	if err != nil {
		return nil, unavailable("append", err)
	}

	return rec.toMessage(), nil
}

// ListAll returns the room history ordered by sequence.
func (s *SQLiteStore) ListAll(ctx context.Context, roomID string) ([]*chat.Message, error) {
	var records []messageRecord
	if err := s.db.WithContext(ctx).
		Where("room_id = ?", roomID).
		Order("seq ASC").
		Find(&records).Error; err != nil {
		return nil, unavailable("list", err)
	}

	result := make([]*chat.Message, len(records))
	for i, rec := range records {
		result[i] = rec.toMessage()
	}
	return result, nil
}

// Ping checks the database connection.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.sqlDB.PingContext(ctx)
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.sqlDB.Close()
}

// Path returns the database path.
func (s *SQLiteStore) Path() string {
	return s.path
}
