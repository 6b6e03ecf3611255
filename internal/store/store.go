// Package store keeps postings, résumés, match records, checkpoints and run
// history. It is the only place that decides whether a pair was already
// notified, so every idempotency rule lives here on top of a small
// transactional Backend.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spigell/job-seeker/internal/domain"
)

var (
	ErrNotFound         = errors.New("not found")
	ErrCheckpointRewind = errors.New("checkpoint cannot move backwards")
)

// PersistenceError wraps a failure of the underlying storage. It is fatal
// for a run.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("store %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// Tx is a single storage transaction. Get methods return ErrNotFound for
// missing keys.
type Tx interface {
	GetPosting(id string) (*domain.Posting, error)
	PutPosting(p *domain.Posting) error
	ListPostings() ([]*domain.Posting, error)

	GetResume(id string) (*domain.Resume, error)
	PutResume(r *domain.Resume) error
	ListResumes() ([]*domain.Resume, error)

	GetMatch(jobID, resumeID string) (*domain.MatchRecord, error)
	PutMatch(rec *domain.MatchRecord) error
	MatchesForJob(jobID string) ([]*domain.MatchRecord, error)
	ListMatches() ([]*domain.MatchRecord, error)

	GetCheckpoint(queryKey string) (*domain.Checkpoint, error)
	PutCheckpoint(cp *domain.Checkpoint) error
	DeleteCheckpoint(queryKey string) error
	ListCheckpoints() ([]*domain.Checkpoint, error)

	PutRun(r *domain.RunRecord) error
	ListRuns() ([]*domain.RunRecord, error)
}

// Backend runs functions inside storage transactions. Update commits only
// when fn returns nil.
type Backend interface {
	Update(ctx context.Context, fn func(Tx) error) error
	View(ctx context.Context, fn func(Tx) error) error
	Close() error
}

type Store struct {
	backend   Backend
	threshold int

	// Now is used for every timestamp the store writes.
	Now func() time.Time
}

func New(backend Backend, threshold int) *Store {
	return &Store{
		backend:   backend,
		threshold: threshold,
		Now:       time.Now,
	}
}

func (s *Store) Threshold() int { return s.threshold }

func (s *Store) Close() error {
	if err := s.backend.Close(); err != nil {
		return &PersistenceError{Op: "close", Err: err}
	}
	return nil
}

func (s *Store) now() time.Time {
	return s.Now().UTC()
}

func (s *Store) update(ctx context.Context, op string, fn func(Tx) error) error {
	return wrap(op, s.backend.Update(ctx, fn))
}

func (s *Store) view(ctx context.Context, op string, fn func(Tx) error) error {
	return wrap(op, s.backend.View(ctx, fn))
}

// wrap turns storage failures into PersistenceError and leaves sentinel
// and context errors untouched.
func wrap(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrNotFound),
		errors.Is(err, ErrCheckpointRewind),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return err
	}

	var perr *PersistenceError
	if errors.As(err, &perr) {
		return err
	}
	return &PersistenceError{Op: op, Err: err}
}
