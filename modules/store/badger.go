package store

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"hash/fnv"
	"net/url"
	"sync"

	"github.com/dgraph-io/badger/v4"
	"github.com/example/chat-relay/domain/chat"
)

// BadgerStore persists history in an embedded Badger database.
//
// Keys:
//
//	seq/<room>            last sequence of the room (big endian uint64)
//	msg/<room>/<seq:020>  JSON encoded message
//
// The room id is path-escaped so it never contains the separator, and the
// zero padded sequence makes a prefix scan return messages in order.
type BadgerStore struct {
	db    *badger.DB
	locks [lockStripes]sync.Mutex
	path  string
}

// lockStripes bounds the number of append locks regardless of room count.
const lockStripes = 64

var _ Driver = (*BadgerStore)(nil)

// OpenBadger opens the database directory at path.
func OpenBadger(path string) (*BadgerStore, error) {
	if path == "" {
		path = "data/badger"
	}
	db, err := badger.Open(badger.DefaultOptions(path).WithLoggingLevel(badger.WARNING))
	if err != nil {
		return nil, fmt.Errorf("failed to open badger database: %w", err)
	}
	s := NewBadgerStore(db)
	s.path = path
	return s, nil
}

// NewBadgerStore wraps an open database.
func NewBadgerStore(db *badger.DB) *BadgerStore {
	return &BadgerStore{db: db}
}

// Name returns the driver name.
func (s *BadgerStore) Name() string {
	return DriverBadger
}

func seqKey(roomID string) []byte {
	return []byte("seq/" + url.PathEscape(roomID))
}

func messagePrefix(roomID string) []byte {
	return []byte("msg/" + url.PathEscape(roomID) + "/")
}

func messageKey(roomID string, seq int64) []byte {
	return []byte(fmt.Sprintf("msg/%s/%020d", url.PathEscape(roomID), seq))
}

// roomLock serializes appends of one room; Badger transactions are
// optimistic and would otherwise conflict on the sequence key. Rooms that
// hash to the same stripe share a lock.
func (s *BadgerStore) roomLock(roomID string) *sync.Mutex {
	return &s.locks[lockStripe(roomID)]
}

func lockStripe(roomID string) uint32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(roomID))
	return h.Sum32() % lockStripes
}

// Append stores the message and bumps the room sequence in one transaction.
func (s *BadgerStore) Append(ctx context.Context, in chat.NewMessage) (*chat.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, unavailable("append", err)
	}

	mu := s.roomLock(in.RoomID)
	mu.Lock()
	defer mu.Unlock()

	var msg chat.Message
	err := s.db.Update(func(txn *badger.Txn) error {
		var last int64
		item, err := txn.Get(seqKey(in.RoomID))
		switch {
		case errors.Is(err, badger.ErrKeyNotFound):
		case err != nil:
			return err
		default:
			if err := item.Value(func(val []byte) error {
				last = int64(binary.BigEndian.Uint64(val))
				return nil
			}); err != nil {
				return err
			}
		}

		msg = chat.Message{
			ID:        last + 1,
			RoomID:    in.RoomID,
			UserID:    in.UserID,
			Username:  in.Username,
			Body:      in.Body,
			CreatedAt: nowUTC(),
		}
		data, err := json.Marshal(msg)
		if err != nil {
			return err
		}

		seq := make([]byte, 8)
		binary.BigEndian.PutUint64(seq, uint64(msg.ID))
		if err := txn.Set(seqKey(in.RoomID), seq); err != nil {
			return err
		}
		return txn.Set(messageKey(in.RoomID, msg.ID), data)
	})
	if err != nil {
		return nil, unavailable("append", err)
	}

	return &msg, nil
}

// ListAll scans the room prefix in key order.
func (s *BadgerStore) ListAll(ctx context.Context, roomID string) ([]*chat.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, unavailable("list", err)
	}

	result := make([]*chat.Message, 0)
	err := s.db.View(func(txn *badger.Txn) error {
		prefix := messagePrefix(roomID)
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.ValidForPrefix(prefix); it.Next() {
			var msg chat.Message
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &msg)
			}); err != nil {
				return err
			}
			result = append(result, &msg)
		}
		return nil
	})
	if err != nil {
		return nil, unavailable("list", err)
	}
	return result, nil
}

// Ping reports whether the database is still open.
func (s *BadgerStore) Ping(_ context.Context) error {
	if s.db.IsClosed() {
		return errors.New("badger database is closed")
	}
	return nil
}

// Close closes the database.
func (s *BadgerStore) Close() error {
	return s.db.Close()
}
