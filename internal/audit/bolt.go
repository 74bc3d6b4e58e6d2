package audit

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"time"

	"go.etcd.io/bbolt"
)

var eventsBucket = []byte("events")

// BoltLog persists events in a bbolt database, keyed by a monotonically
// increasing sequence number so listing returns chronological order.
type BoltLog struct {
	db *bbolt.DB
}

// OpenBoltLog opens (or creates) the audit database at path.
func OpenBoltLog(path string) (*BoltLog, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{
		Timeout: 10 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open audit database: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(eventsBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create events bucket: %w", err)
	}

	return &BoltLog{db: db}, nil
}

// Record implements Logger.
func (bl *BoltLog) Record(event Event) error {
	if event.Kind == "" {
		return fmt.Errorf("event kind cannot be empty")
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	return bl.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(eventsBucket)
		if bucket == nil {
			return fmt.Errorf("events bucket not found")
		}

		seq, err := bucket.NextSequence()
		if err != nil {
			return fmt.Errorf("failed to allocate event sequence: %w", err)
		}

		key := make([]byte, 8)
		binary.BigEndian.PutUint64(key, seq)

		payload, err := json.Marshal(event)
		if err != nil {
			return fmt.Errorf("failed to encode event: %w", err)
		}

		return bucket.Put(key, payload)
	})
}

// List implements Logger. A zero since returns everything; limit <= 0 means
// no limit. The newest events come last.
func (bl *BoltLog) List(since time.Time, limit int) ([]Event, error) {
	var events []Event

	err := bl.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(eventsBucket)
		if bucket == nil {
			return fmt.Errorf("events bucket not found")
		}

		return bucket.ForEach(func(k, v []byte) error {
			if v == nil {
				return nil
			}
			var event Event
			if err := json.Unmarshal(v, &event); err != nil {
				return fmt.Errorf("corrupted audit entry: %w", err)
			}
			if !since.IsZero() && event.Timestamp.Before(since) {
				return nil
			}
			events = append(events, event)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	if limit > 0 && len(events) > limit {
		events = events[len(events)-limit:]
	}
	return events, nil
}

// Close releases the database.
func (bl *BoltLog) Close() error {
	return bl.db.Close()
}

var _ Logger = (*BoltLog)(nil)
var _ Logger = Nop{}
