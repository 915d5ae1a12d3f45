package models

import (
	"errors"
	"fmt"
	"time"

	"github.com/timshannon/bolthold"
	"go.etcd.io/bbolt"
)

// ErrNotFound is returned when no cached record exists for a lookup.
var ErrNotFound = bolthold.ErrNotFound

// Database wraps the bolthold store holding MediaRecords.
type Database struct {
	store *bolthold.Store
}

// NewDatabase creates a new database connection
func NewDatabase(path string) (*Database, error) {
	store, err := bolthold.Open(path, 0600, &bolthold.Options{
		Options: &bbolt.Options{
			Timeout: 1 * time.Second,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	return &Database{store: store}, nil
}

// Close closes the database connection
func (db *Database) Close() error {
	return db.store.Close()
}

// GetRecord retrieves the cached record for a Plex item of the given kind.
// Returns ErrNotFound when the item has never been reconciled.
func (db *Database) GetRecord(kind MediaKind, plexID int64) (*MediaRecord, error) {
	var recs []*MediaRecord
	err := db.store.Find(&recs, bolthold.Where("PlexID").Eq(plexID).And("Kind").Eq(kind).Index("PlexID"))
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, bolthold.ErrNotFound
	}
	return recs[0], nil
}

// CreateRecord inserts a new record, stamping LastUpdate if unset.
func (db *Database) CreateRecord(rec *MediaRecord) error {
	if rec.LastUpdate.IsZero() {
		rec.LastUpdate = time.Now()
	}
	return db.store.Insert(bolthold.NextSequence(), rec)
}

// UpdateRecord mutates an existing record in place. LastUpdate is refreshed
// and never allowed to move backwards.
func (db *Database) UpdateRecord(rec *MediaRecord) error {
	if now := time.Now(); now.After(rec.LastUpdate) {
		rec.LastUpdate = now
	}
	return db.store.Update(rec.ID, rec)
}

// HasRecord reports whether a cached record exists for the item.
func (db *Database) HasRecord(kind MediaKind, plexID int64) (bool, error) {
	_, err := db.GetRecord(kind, plexID)
	if errors.Is(err, bolthold.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// CountRecords returns the number of cached records of one kind.
func (db *Database) CountRecords(kind MediaKind) (int, error) {
	count, err := db.store.Count(&MediaRecord{}, bolthold.Where("Kind").Eq(kind).Index("Kind"))
	if err != nil {
		return 0, err
	}
	return count, nil
}
