// Package boltstore is the embedded single-file store backend.
package boltstore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spigell/job-seeker/internal/domain"
	"github.com/spigell/job-seeker/internal/store"

	bolt "go.etcd.io/bbolt"
	bolterrors "go.etcd.io/bbolt/errors"
)

var (
	bucketPostings    = []byte("postings")
	bucketResumes     = []byte("resumes")
	bucketMatches     = []byte("matches")
	bucketCheckpoints = []byte("checkpoints")
	bucketRuns        = []byte("runs")

	buckets = [][]byte{bucketPostings, bucketResumes, bucketMatches, bucketCheckpoints, bucketRuns}
)

const (
	defaultOpenTimeout = time.Second
	keySep             = 0
)

// ErrInUse is returned when another process holds the state file.
var ErrInUse = errors.New("state file is in use by another process")

type DB struct {
	db *bolt.DB
}

var _ store.Backend = (*DB)(nil)

// Open opens or creates the state file. bbolt holds an exclusive file lock
// while the DB is open; a second opener gives up after timeout.
func Open(path string, timeout time.Duration) (*DB, error) {
	if timeout <= 0 {
		timeout = defaultOpenTimeout
	}

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating state dir: %w", err)
		}
	}

	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: timeout})
	if errors.Is(err, bolterrors.ErrTimeout) {
		return nil, fmt.Errorf("%w: %s", ErrInUse, path)
	}
	if err != nil {
		return nil, fmt.Errorf("opening state file %s: %w", path, err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range buckets {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return fmt.Errorf("creating bucket %s: %w", name, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &DB{db: db}, nil
}

func (d *DB) Path() string { return d.db.Path() }

func (d *DB) Close() error { return d.db.Close() }

func (d *DB) Update(ctx context.Context, fn func(store.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return d.db.Update(func(btx *bolt.Tx) error {
		if err := fn(&tx{btx: btx}); err != nil {
			return err
		}
		// a cancelled run must not leave a half-finished batch behind
		return ctx.Err()
	})
}

func (d *DB) View(ctx context.Context, fn func(store.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return d.db.View(func(btx *bolt.Tx) error {
		return fn(&tx{btx: btx})
	})
}

type tx struct {
	btx *bolt.Tx
}

func matchKey(jobID, resumeID string) []byte {
	key := make([]byte, 0, len(jobID)+len(resumeID)+1)
	key = append(key, jobID...)
	key = append(key, keySep)
	return append(key, resumeID...)
}

func get[T any](t *tx, bucket, key []byte) (*T, error) {
	data := t.btx.Bucket(bucket).Get(key)
	if data == nil {
		return nil, store.ErrNotFound
	}

	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("decoding %s/%s: %w", bucket, key, err)
	}
	return &v, nil
}

func put(t *tx, bucket, key []byte, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding %s/%s: %w", bucket, key, err)
	}
	return t.btx.Bucket(bucket).Put(key, data)
}

func list[T any](t *tx, bucket, prefix []byte) ([]*T, error) {
	out := make([]*T, 0)
	c := t.btx.Bucket(bucket).Cursor()

	for k, data := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, data = c.Next() {
		var v T
		if err := json.Unmarshal(data, &v); err != nil {
			return nil, fmt.Errorf("decoding %s/%s: %w", bucket, k, err)
		}
		out = append(out, &v)
	}
	return out, nil
}

func (t *tx) GetPosting(id string) (*domain.Posting, error) {
	return get[domain.Posting](t, bucketPostings, []byte(id))
}

func (t *tx) PutPosting(p *domain.Posting) error {
	return put(t, bucketPostings, []byte(p.ID), p)
}

func (t *tx) ListPostings() ([]*domain.Posting, error) {
	return list[domain.Posting](t, bucketPostings, nil)
}

func (t *tx) GetResume(id string) (*domain.Resume, error) {
	return get[domain.Resume](t, bucketResumes, []byte(id))
}

func (t *tx) PutResume(r *domain.Resume) error {
	return put(t, bucketResumes, []byte(r.ID), r)
}

func (t *tx) ListResumes() ([]*domain.Resume, error) {
	return list[domain.Resume](t, bucketResumes, nil)
}

func (t *tx) GetMatch(jobID, resumeID string) (*domain.MatchRecord, error) {
	return get[domain.MatchRecord](t, bucketMatches, matchKey(jobID, resumeID))
}

func (t *tx) PutMatch(rec *domain.MatchRecord) error {
	return put(t, bucketMatches, matchKey(rec.JobID, rec.ResumeID), rec)
}

func (t *tx) MatchesForJob(jobID string) ([]*domain.MatchRecord, error) {
	return list[domain.MatchRecord](t, bucketMatches, matchKey(jobID, ""))
}

func (t *tx) ListMatches() ([]*domain.MatchRecord, error) {
	return list[domain.MatchRecord](t, bucketMatches, nil)
}

func (t *tx) GetCheckpoint(queryKey string) (*domain.Checkpoint, error) {
	return get[domain.Checkpoint](t, bucketCheckpoints, []byte(queryKey))
}

func (t *tx) PutCheckpoint(cp *domain.Checkpoint) error {
	return put(t, bucketCheckpoints, []byte(cp.QueryKey), cp)
}

func (t *tx) DeleteCheckpoint(queryKey string) error {
	return t.btx.Bucket(bucketCheckpoints).Delete([]byte(queryKey))
}

func (t *tx) ListCheckpoints() ([]*domain.Checkpoint, error) {
	return list[domain.Checkpoint](t, bucketCheckpoints, nil)
}

func (t *tx) PutRun(r *domain.RunRecord) error {
	return put(t, bucketRuns, []byte(r.ID), r)
}

func (t *tx) ListRuns() ([]*domain.RunRecord, error) {
	return list[domain.RunRecord](t, bucketRuns, nil)
}
