package store

import (
	bolt "go.etcd.io/bbolt"
)

var cursorsBucket = []byte("cursors")

// OpenEventStore opens the recoverable event-tracking database at path.
func OpenEventStore(path string) (*Recoverable, error) {
	return OpenRecoverable("events", path, cursorsBucket)
}

// EventStore tracks the per-volume event cursor: the ID of the last
// remote change event applied to the replica.
type EventStore struct {
	source func() (*bolt.DB, error)
}

// NewEventStore binds an EventStore to the live database of r.
func NewEventStore(r *Recoverable) *EventStore {
	return &EventStore{source: r.DB}
}

// Cursor returns the last applied event ID for a volume, or empty string.
func (s *EventStore) Cursor(volumeID string) (string, error) {
	db, err := s.source()
	if err != nil {
		return "", err
	}

	var cursor string
	err = db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(cursorsBucket).Get([]byte(volumeID))
		if v != nil {
			cursor = string(v)
		}
		return nil
	})

	return cursor, err
}

// SetCursor persists the last applied event ID for a volume.
func (s *EventStore) SetCursor(volumeID, eventID string) error {
	db, err := s.source()
	if err != nil {
		return err
	}

	return db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(cursorsBucket).Put([]byte(volumeID), []byte(eventID))
	})
}

// Clear drops every cursor. Called when the event system is
// reinitialized after a resync made the old cursors meaningless.
func (s *EventStore) Clear() error {
	db, err := s.source()
	if err != nil {
		return err
	}

	return db.Update(func(tx *bolt.Tx) error {
		if err := tx.DeleteBucket(cursorsBucket); err != nil {
			return err
		}
		_, err := tx.CreateBucket(cursorsBucket)
		return err
	})
}
