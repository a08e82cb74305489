package sim

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/dgraph-io/badger/v4"

	"transfer-agent/internal/native"
)

const jobPrefix = "job/"

// record is the persisted form of one job. Credentials are deliberately
// not part of it; they live only in process memory.
type record struct {
	ID          string            `json:"id"`
	DisplayName string            `json:"display_name"`
	Download    bool              `json:"download"`
	Code        native.StatusCode `json:"code"`
	Files       []native.File     `json:"files"`
	ErrorCount  int               `json:"error_count"`
	Err         *native.JobError  `json:"err,omitempty"`
	Foreground  bool              `json:"foreground"`
	Created     time.Time         `json:"created"`
	Modified    time.Time         `json:"modified"`
}

// store is a thin Badger wrapper holding job records as JSON values.
type store struct {
	db *badger.DB
}

// openStore opens the job store at dir, or an in-memory store when dir is
// empty (tests, throwaway dev runs).
func openStore(dir string) (*store, error) {
	var opts badger.Options
	if dir == "" {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create store dir: %w", err)
		}
		opts = badger.DefaultOptions(dir)
	}
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open job store: %w", err)
	}
	return &store{db: db}, nil
}

func (s *store) Close() error { return s.db.Close() }

func key(id string) []byte { return []byte(jobPrefix + id) }

func getRecord(txn *badger.Txn, id string) (*record, error) {
	item, err := txn.Get(key(id))
	if err != nil {
		return nil, err
	}
	var rec record
	err = item.Value(func(val []byte) error {
		return json.Unmarshal(val, &rec)
	})
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func putRecord(txn *badger.Txn, rec *record) error {
	rec.Modified = time.Now().UTC()
	b, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return txn.Set(key(rec.ID), b)
}

// listIDs returns the ids of every stored job.
func (s *store) listIDs() ([]string, error) {
	var ids []string
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		prefix := []byte(jobPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			ids = append(ids, string(it.Item().Key())[len(jobPrefix):])
		}
		return nil
	})
	return ids, err
}
