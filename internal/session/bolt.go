package session

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/varsilias/askdesk/pkg/types"
)

var (
	bucketSessions = []byte("sessions")
	bucketMeta     = []byte("session_meta")
)

// BoltStore persists history in a bbolt file: one JSON array per session in
// the sessions bucket, last update time in session_meta.
type BoltStore struct {
	db *bolt.DB
}

func NewBoltStore(path string) (*BoltStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create session dir: %w", err)
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bolt store: %w", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		for _, b := range [][]byte{bucketSessions, bucketMeta} {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return fmt.Errorf("create bucket %s: %w", b, err)
			}
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return &BoltStore{db: db}, nil
}

func (s *BoltStore) Close() error { return s.db.Close() }

func (s *BoltStore) Append(sessionID string, m types.Message) error {
	if sessionID == "" {
		return ErrEmptySessionID
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		msgs, err := readMessages(tx.Bucket(bucketSessions), sessionID)
		if err != nil {
			return err
		}
		msgs = append(msgs, m)
		return writeSession(tx, sessionID, msgs)
	})
}

func (s *BoltStore) Get(sessionID string) ([]types.Message, error) {
	var out []types.Message
	err := s.db.View(func(tx *bolt.Tx) error {
		msgs, err := readMessages(tx.Bucket(bucketSessions), sessionID)
		out = msgs
		return err
	})
	if out == nil {
		out = []types.Message{}
	}
	return out, err
}

func (s *BoltStore) Clear(sessionID string) error {
	if sessionID == "" {
		return ErrEmptySessionID
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return writeSession(tx, sessionID, []types.Message{})
	})
}

func (s *BoltStore) Touch(sessionID string) error {
	if sessionID == "" {
		return ErrEmptySessionID
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		msgs, err := readMessages(tx.Bucket(bucketSessions), sessionID)
		if err != nil {
			return err
		}
		if msgs == nil {
			msgs = []types.Message{}
		}
		return writeSession(tx, sessionID, msgs)
	})
}

func (s *BoltStore) List() ([]Summary, error) {
	var out []Summary
	err := s.db.View(func(tx *bolt.Tx) error {
		meta := tx.Bucket(bucketMeta)
		return tx.Bucket(bucketSessions).ForEach(func(k, v []byte) error {
			var msgs []types.Message
			if err := json.Unmarshal(v, &msgs); err != nil {
				// skip malformed entries instead of failing the whole list
				return nil
			}
			sum := Summary{ID: string(k), Title: titleFrom(msgs)}
			if ts := meta.Get(k); ts != nil {
				_ = sum.Updated.UnmarshalText(ts)
			}
			out = append(out, sum)
			return nil
		})
	})
	return out, err
}

func readMessages(b *bolt.Bucket, sessionID string) ([]types.Message, error) {
	v := b.Get([]byte(sessionID))
	if v == nil {
		return nil, nil
	}
	var msgs []types.Message
	if err := json.Unmarshal(v, &msgs); err != nil {
		return nil, fmt.Errorf("decode session %s: %w", sessionID, err)
	}
	return msgs, nil
}

func writeSession(tx *bolt.Tx, sessionID string, msgs []types.Message) error {
	data, err := json.Marshal(msgs)
	if err != nil {
		return err
	}
	if err := tx.Bucket(bucketSessions).Put([]byte(sessionID), data); err != nil {
		return err
	}
	ts, err := time.Now().UTC().MarshalText()
	if err != nil {
		return err
	}
	return tx.Bucket(bucketMeta).Put([]byte(sessionID), ts)
}
