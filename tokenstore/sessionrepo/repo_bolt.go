package sessionrepo

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	autherrors "github.com/jrsteele09/go-auth-session/internal/errors"
	bolt "go.etcd.io/bbolt"
)

const (
	boltDirPerm     = fs.FileMode(0o700)
	boltFilePerm    = fs.FileMode(0o600)
	boltOpenTimeout = 5 * time.Second
)

var sessionsBucket = []byte("sessions")

// BoltRepo keeps session records in a bbolt file so they survive restarts.
type BoltRepo struct {
	db  *bolt.DB
	now func() time.Time
}

// OpenBoltRepo opens (creating if needed) the session database at path.
func OpenBoltRepo(path string) (*BoltRepo, error) {
	if err := os.MkdirAll(filepath.Dir(path), boltDirPerm); err != nil {
		return nil, fmt.Errorf("creating session directory: %w", err)
	}

	db, err := bolt.Open(path, boltFilePerm, &bolt.Options{Timeout: boltOpenTimeout})
	if err != nil {
		return nil, fmt.Errorf("opening session db: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(sessionsBucket)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("creating sessions bucket: %w", err)
	}

	return &BoltRepo{db: db, now: time.Now}, nil
}

// Close releases the database file lock.
func (r *BoltRepo) Close() error {
	return r.db.Close()
}

func (r *BoltRepo) read(b *bolt.Bucket, id string) (Record, bool, error) {
	raw := b.Get([]byte(id))
	if raw == nil {
		return Record{}, false, nil
	}
	var rec Record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return Record{}, false, fmt.Errorf("decoding session %s: %w", id, err)
	}
	if rec.Expired(r.now()) {
		return Record{}, false, nil
	}
	return rec, true, nil
}

func put(b *bolt.Bucket, id string, rec Record) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encoding session: %w", err)
	}
	return b.Put([]byte(id), raw)
}

func (r *BoltRepo) Get(_ context.Context, id string) (Record, error) {
	if id == "" {
		return Record{}, fmt.Errorf("sessionID is required")
	}

	var (
		rec   Record
		found bool
	)
	err := r.db.View(func(tx *bolt.Tx) error {
		var err error
		rec, found, err = r.read(tx.Bucket(sessionsBucket), id)
		return err
	})
	if err != nil {
		return Record{}, err
	}
	if !found {
		return Record{}, autherrors.ErrSessionNotFound
	}
	return rec, nil
}

// CompareAndSwap runs the generation check and the write in one bolt
// read-write transaction; bolt serialises writers.
func (r *BoltRepo) CompareAndSwap(_ context.Context, id string, expected uint64, next *Record) error {
	if id == "" {
		return fmt.Errorf("sessionID is required")
	}
	return r.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(sessionsBucket)
		current, found, err := r.read(b, id)
		if err != nil {
			return err
		}
		var gen uint64
		if found {
			gen = current.Generation
		}
		if gen != expected {
			return autherrors.ErrStaleSession
		}
		if next == nil {
			return b.Delete([]byte(id))
		}
		stored := *next
		stored.Generation = expected + 1
		return put(b, id, stored)
	})
}

func (r *BoltRepo) Delete(_ context.Context, id string) error {
	if id == "" {
		return fmt.Errorf("sessionID is required")
	}
	return r.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(sessionsBucket).Delete([]byte(id))
	})
}

// Cleanup drops expired records and reports how many were removed.
func (r *BoltRepo) Cleanup() (int, error) {
	removed := 0
	err := r.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(sessionsBucket)
		var stale [][]byte
		now := r.now()
		err := b.ForEach(func(k, v []byte) error {
			var rec Record
			if err := json.Unmarshal(v, &rec); err != nil || rec.Expired(now) {
				stale = append(stale, append([]byte(nil), k...))
			}
			return nil
		})
		if err != nil {
			return err
		}
		for _, k := range stale {
			if err := b.Delete(k); err != nil {
				return err
			}
		}
		removed = len(stale)
		return nil
	})
	return removed, err
}
