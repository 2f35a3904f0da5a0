package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.etcd.io/bbolt"
)

const (
	BucketRuns = "runs"

	// MaxItems bounds the history; older runs are pruned on Save.
	MaxItems = 100
)

var ErrNotFound = errors.New("run not found")

// Store keeps run history in a bbolt database. Keys are run IDs, which are
// time-ordered UUIDs, so cursor order is chronological.
type Store struct {
	db       *bbolt.DB
	filePath string
}

// DefaultPath returns ~/.loadq/history.db.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".loadq", "history.db"), nil
}

func NewStore(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, err
	}

	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open history %s: %w", path, err)
	}

	// Initialize Buckets
	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(BucketRuns))
		return err
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &Store{
		db:       db,
		filePath: path,
	}, nil
}

func (s *Store) Path() string {
	return s.filePath
}

func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) Save(item HistoryItem) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(BucketRuns))

		data, err := json.Marshal(item)
		if err != nil {
			return err
		}
		if err := b.Put([]byte(item.ID), data); err != nil {
			return err
		}

		// Keep max MaxItems
		n := 0
		c := b.Cursor()
		for k, _ := c.First(); k != nil; k, _ = c.Next() {
			n++
		}
		for excess := n - MaxItems; excess > 0; excess-- {
			c.First()
			if err := c.Delete(); err != nil {
				return err
			}
		}
		return nil
	})
}

// List returns up to limit runs, newest first. A limit of zero or less
// returns everything.
func (s *Store) List(limit int) ([]HistoryItem, error) {
	var items []HistoryItem

	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(BucketRuns))
		c := b.Cursor()

		for k, v := c.Last(); k != nil; k, v = c.Prev() {
			if limit > 0 && len(items) >= limit {
				break
			}
			var item HistoryItem
			if err := json.Unmarshal(v, &item); err != nil {
				return fmt.Errorf("decode run %s: %w", k, err)
			}
			items = append(items, item)
		}
		return nil
	})

	return items, err
}

func (s *Store) Get(id string) (*HistoryItem, error) {
	var item HistoryItem
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(BucketRuns))
		v := b.Get([]byte(id))
		if v == nil {
			return fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return json.Unmarshal(v, &item)
	})
	if err != nil {
		return nil, err
	}
	return &item, nil
}
