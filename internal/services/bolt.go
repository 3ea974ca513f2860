package services

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/MegaGrindStone/chat-widget/internal/models"
	bolt "go.etcd.io/bbolt"
)

// BoltDB keeps the transcript of every widget session in a BoltDB file, so a reloaded page can show
// the conversation again. Each session has its own bucket of messages keyed by insertion sequence.
type BoltDB struct {
	db *bolt.DB
}

// NewBoltDB creates a new BoltDB instance with the specified file path. The database file is created
// with 0600 permissions if it doesn't exist.
func NewBoltDB(path string) (BoltDB, error) {
	db, err := bolt.Open(path, 0600, nil)
	if err != nil {
		return BoltDB{}, fmt.Errorf("failed to open bolt db: %w", err)
	}

	return BoltDB{db: db}, nil
}

func sessionBucketName(sessionID string) []byte {
	return []byte(fmt.Sprintf("session-%s", sessionID))
}

func sequenceKey(seq uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, seq)
	return b
}

// Messages retrieves the messages of the session in the order they were added.
func (b BoltDB) Messages(_ context.Context, sessionID string) ([]models.Message, error) {
	var messages []models.Message
	err := b.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(sessionBucketName(sessionID))
		if b == nil {
			return nil
		}

		return b.ForEach(func(_, v []byte) error {
			var message models.Message
			if err := json.Unmarshal(v, &message); err != nil {
				return fmt.Errorf("failed to unmarshal message: %w", err)
			}
			messages = append(messages, message)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return messages, nil
}

// AddMessage stores a new message at the end of the session's transcript. The stored ID is the
// message ID prefixed with its sequence number, and is returned.
func (b BoltDB) AddMessage(_ context.Context, sessionID string, message models.Message) (string, error) {
	var newID string
	err := b.db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists(sessionBucketName(sessionID))
		if err != nil {
			return fmt.Errorf("failed to create session bucket: %w", err)
		}

		seq, err := b.NextSequence()
		if err != nil {
			return fmt.Errorf("failed to get next sequence: %w", err)
		}
		newID = fmt.Sprintf("%d-%s", seq, message.ID)
		message.ID = newID

		v, err := json.Marshal(message)
		if err != nil {
			return fmt.Errorf("failed to marshal message: %w", err)
		}

		return b.Put(sequenceKey(seq), v)
	})

	return newID, err
}

// ClearMessages removes the whole transcript of the session. Clearing an unknown session is a no-op.
func (b BoltDB) ClearMessages(_ context.Context, sessionID string) error {
	return b.db.Update(func(tx *bolt.Tx) error {
		err := tx.DeleteBucket(sessionBucketName(sessionID))
		if errors.Is(err, bolt.ErrBucketNotFound) {
			return nil
		}
		return err
	})
}

// Close releases the database file.
func (b BoltDB) Close() error {
	return b.db.Close()
}
