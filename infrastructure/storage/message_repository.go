package storage

import (
	"care-chat/domain"
	"care-chat/errors"
	"context"
	"encoding/binary"
	stderrors "errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
)

const (
	ThreadPrefix      = "thread:"
	messageSequence   = "seq:messages"
	lastCreatedAtKey  = "meta:last_created_at"
	sequenceBandwidth = 256
)

// MessageRepository is the append-only message log backed by BadgerDB.
type MessageRepository struct {
	db      *badger.DB
	log     *slog.Logger
	seq     *badger.Sequence
	stamper *stamper
}

func NewMessageRepository(db *badger.DB, log *slog.Logger) (*MessageRepository, error) {
	seq, err := db.GetSequence([]byte(messageSequence), sequenceBandwidth)
	if err != nil {
		return nil, fmt.Errorf("message sequence: %w", err)
	}
	last, err := loadLastCreatedAt(db)
	if err != nil {
		_ = seq.Release()
		return nil, fmt.Errorf("last created_at: %w", err)
	}
	st := newStamper(time.Nanosecond, seq.Next)
	st.resume(last)
	return &MessageRepository{
		db:      db,
		log:     log,
		seq:     seq,
		stamper: st,
	}, nil
}

// loadLastCreatedAt reads the high-water mark written by Append, zero on a fresh DB.
func loadLastCreatedAt(db *badger.DB) (time.Time, error) {
	var last time.Time
	err := db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(lastCreatedAtKey))
		if stderrors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			if len(val) != 8 {
				return fmt.Errorf("unexpected length %d", len(val))
			}
			last = time.Unix(0, int64(binary.BigEndian.Uint64(val))).UTC()
			return nil
		})
	})
	return last, err
}

// Append persists a message in BadgerDB.
// The key is formatted as "thread:{lo}:{hi}:{timestamp_padded}:{seq_padded}" so that:
//  1. Both directions of a conversation share one prefix.
//  2. A prefix scan returns the thread in chronological order thanks to the
//     19-digit zero padding (lexicographical order).
//  3. The sequence number breaks ties and keeps every key unique.
func (m *MessageRepository) Append(ctx context.Context, draft domain.Draft) (domain.Message, error) {
	if err := ctx.Err(); err != nil {
		return domain.Message{}, errors.StoreUnavailable(err)
	}
	id, err := uuid.NewV7()
	if err != nil {
		return domain.Message{}, errors.StoreUnavailable(err)
	}
	st, err := m.stamper.next()
	if err != nil {
		return domain.Message{}, errors.StoreUnavailable(err)
	}

	message := domain.Message{
		ID:           id.String(),
		Sender:       draft.Sender,
		Receiver:     draft.Receiver,
		ReceiverType: draft.ReceiverType,
		Content:      draft.Content,
		CreatedAt:    st.At,
		Seq:          st.Seq,
	}
	key := messageKey(domain.ThreadOf(draft.Sender, draft.Receiver), st)
	mark := make([]byte, 8)
	binary.BigEndian.PutUint64(mark, uint64(st.At.UnixNano()))
	if err = m.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(key, encodeMessage(message)); err != nil {
			return err
		}
		return txn.Set([]byte(lastCreatedAtKey), mark)
	}); err != nil {
		return domain.Message{}, errors.StoreUnavailable(err)
	}
	return message, nil
}

// Thread retrieves the conversation between a and b using a prefix scan.
// Messages come back oldest first.
func (m *MessageRepository) Thread(ctx context.Context, a, b domain.ParticipantID) ([]domain.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.StoreUnavailable(err)
	}
	prefix := threadKeyPrefix(domain.ThreadOf(a, b))
	messages := make([]domain.Message, 0)

	err := m.db.View(func(txn *badger.Txn) error {
		options := badger.DefaultIteratorOptions
		options.Prefix = prefix
		it := txn.NewIterator(options)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			err := it.Item().Value(func(value []byte) error {
				message, err := DecodeMessage(value)
				if err != nil {
					return err
				}
				messages = append(messages, message)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, errors.StoreUnavailable(err)
	}
	m.log.Debug("Thread loaded", "thread", domain.ThreadOf(a, b).Key(), "count", len(messages))
	return messages, nil
}

// Close releases the leased sequence range. The caller owns the DB handle.
func (m *MessageRepository) Close() error {
	return m.seq.Release()
}

func threadKeyPrefix(thread domain.Thread) []byte {
	return []byte(ThreadPrefix + thread.Key() + ":")
}

func messageKey(thread domain.Thread, st stamp) []byte {
	return []byte(fmt.Sprintf("%s%s:%019d:%020d", ThreadPrefix, thread.Key(), st.At.UnixNano(), st.Seq))
}
