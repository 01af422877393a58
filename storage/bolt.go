package storage

import (
	"context"
	"encoding/json"
	"fmt"

	bolt "go.etcd.io/bbolt"

	"github.com/ctxgate/ctxgate/compaction"
)

var (
	bucketAutoCompaction = []byte("auto_compaction")
	bucketHistory        = []byte("compaction_history")
)

// BoltStore is a single-file Store backed by bbolt. Suitable for
// single-node deployments that need the audit trail to survive restarts.
type BoltStore struct {
	db *bolt.DB
}

// OpenBolt opens or creates the database file and ensures the buckets
// exist.
func OpenBolt(path string) (*BoltStore, error) {
	db, err := bolt.Open(path, 0o600, nil)
	if err != nil {
		return nil, fmt.Errorf("open bolt store: %w", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{bucketAutoCompaction, bucketHistory} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("init bolt buckets: %w", err)
	}
	return &BoltStore{db: db}, nil
}

func (s *BoltStore) GetAutoCompaction(_ context.Context, sessionID string) (bool, bool, error) {
	var enabled, found bool
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketAutoCompaction).Get([]byte(sessionID))
		if v == nil {
			return nil
		}
		found = true
		enabled = v[0] == 1
		return nil
	})
	return enabled, found, err
}

func (s *BoltStore) SetAutoCompaction(_ context.Context, sessionID string, enabled bool) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		v := []byte{0}
		if enabled {
			v[0] = 1
		}
		return tx.Bucket(bucketAutoCompaction).Put([]byte(sessionID), v)
	})
}

// historyKey orders records per session by insertion sequence.
func historyKey(sessionID string, seq uint64) []byte {
	return []byte(fmt.Sprintf("%s/%016x", sessionID, seq))
}

func (s *BoltStore) AppendCompactionRecord(_ context.Context, record compaction.Record) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal compaction record: %w", err)
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(bucketHistory)
		seq, err := bucket.NextSequence()
		if err != nil {
			return err
		}
		return bucket.Put(historyKey(record.SessionID, seq), data)
	})
}

func (s *BoltStore) GetCompactionHistory(_ context.Context, sessionID string) ([]compaction.Record, error) {
	var records []compaction.Record
	prefix := []byte(sessionID + "/")
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketHistory).Cursor()
		for k, v := c.Seek(prefix); k != nil && len(k) > len(prefix) && string(k[:len(prefix)]) == string(prefix); k, v = c.Next() {
			var record compaction.Record
			if err := json.Unmarshal(v, &record); err != nil {
				return fmt.Errorf("unmarshal compaction record %s: %w", k, err)
			}
			records = append(records, record)
		}
		return nil
	})
	return records, err
}

func (s *BoltStore) Close() error {
	return s.db.Close()
}
