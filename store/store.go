// Package store persists analysis results in badger. Records are keyed by a
// BLAKE2b digest of the track id; a second key space maps the xxhash of each
// computed fingerprint back to its track, so duplicates can be found without
// a scan.
package store

import (
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/OneOfOne/xxhash"
	"github.com/dgraph-io/badger/v3"
	"github.com/opd-ai/trackcore/analysis"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/blake2b"
)

var (
	// ErrNotFound indicates no record exists for the key.
	ErrNotFound = errors.New("record not found")

	// ErrEmptyID indicates a record without a track id.
	ErrEmptyID = errors.New("empty track id")
)

const (
	trackPrefix       = "track/"
	fingerprintPrefix = "fp/"
)

// Record is what the store keeps per track.
type Record struct {
	TrackID     string                     `json:"trackId"`
	Title       string                     `json:"title,omitempty"`
	Artist      string                     `json:"artist,omitempty"`
	Fingerprint analysis.FingerprintResult `json:"fingerprint"`
	Loudness    *analysis.LoudnessResult   `json:"loudness,omitempty"`
	Error       string                     `json:"error,omitempty"`
	AnalyzedAt  time.Time                  `json:"analyzedAt"`
}

// RecordFromResult converts a batch result.
func RecordFromResult(res analysis.TrackResult, at time.Time) Record {
	rec := Record{
		TrackID:     res.Track.ID,
		Title:       res.Track.Title,
		Artist:      res.Track.Artist,
		Fingerprint: res.Fingerprint,
		Loudness:    res.Loudness,
		AnalyzedAt:  at,
	}
	if res.Err != nil {
		rec.Error = res.Err.Error()
	}
	return rec
}

// Store is a badger-backed result store.
type Store struct {
	db *badger.DB
}

// Open opens the store in dir. An empty dir keeps everything in memory.
func Open(dir string) (*Store, error) {
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	if dir == "" {
		opts = opts.WithInMemory(true)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open result store: %w", err)
	}

	logrus.WithFields(logrus.Fields{
		"function":  "Open",
		"dir":       dir,
		"in_memory": dir == "",
	}).Info("Result store opened")
	return &Store{db: db}, nil
}

// Close flushes and closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func trackKey(id string) []byte {
	sum := blake2b.Sum256([]byte(id))
	return []byte(trackPrefix + hex.EncodeToString(sum[:16]))
}

func fingerprintKey(fp string) []byte {
	key := make([]byte, len(fingerprintPrefix)+8)
	copy(key, fingerprintPrefix)
	binary.BigEndian.PutUint64(key[len(fingerprintPrefix):], xxhash.ChecksumString64(fp))
	return key
}

// Save writes rec, replacing any earlier record of the same track. A
// computed fingerprint is indexed as well.
func (s *Store) Save(rec Record) error {
	if rec.TrackID == "" {
		return ErrEmptyID
	}
	value, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode record %s: %w", rec.TrackID, err)
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(trackKey(rec.TrackID), value); err != nil {
			return err
		}
		if rec.Fingerprint.Status == analysis.StatusComputed {
			return txn.Set(fingerprintKey(rec.Fingerprint.Fingerprint), []byte(rec.TrackID))
		}
		return nil
	})
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "Store.Save",
			"track":    rec.TrackID,
			"error":    err.Error(),
		}).Error("Failed to save record")
		return fmt.Errorf("save record %s: %w", rec.TrackID, err)
	}
	return nil
}

// Get returns the record of a track.
func (s *Store) Get(trackID string) (Record, error) {
	var rec Record
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(trackKey(trackID))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &rec)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return Record{}, fmt.Errorf("%w: track %s", ErrNotFound, trackID)
	}
	if err != nil {
		return Record{}, fmt.Errorf("get record %s: %w", trackID, err)
	}
	return rec, nil
}

// LookupFingerprint returns the id of the last track saved with fp.
func (s *Store) LookupFingerprint(fp string) (string, error) {
	var id string
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(fingerprintKey(fp))
		if err != nil {
			return err
		}
		v, err := item.ValueCopy(nil)
		id = string(v)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return "", fmt.Errorf("%w: fingerprint", ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("lookup fingerprint: %w", err)
	}
	return id, nil
}

// Count returns the number of stored track records.
func (s *Store) Count() (int, error) {
	n := 0
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte(trackPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			n++
		}
		return nil
	})
	return n, err
}
