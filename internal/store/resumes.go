package store

import (
	"context"
	"slices"
	"strings"

	"github.com/spigell/job-seeker/internal/domain"
)

func (s *Store) SaveResume(ctx context.Context, r *domain.Resume) error {
	return s.update(ctx, "save resume", func(tx Tx) error {
		return tx.PutResume(r)
	})
}

func (s *Store) GetResume(ctx context.Context, id string) (*domain.Resume, error) {
	var r *domain.Resume
	err := s.view(ctx, "get resume", func(tx Tx) error {
		var err error
		r, err = tx.GetResume(id)
		return err
	})
	return r, err
}

func (s *Store) ListResumes(ctx context.Context) ([]*domain.Resume, error) {
	var out []*domain.Resume
	err := s.view(ctx, "list resumes", func(tx Tx) error {
		var err error
		out, err = tx.ListResumes()
		return err
	})
	if err != nil {
		return nil, err
	}

	slices.SortFunc(out, func(a, b *domain.Resume) int { return strings.Compare(a.ID, b.ID) })
	return out, nil
}

func (s *Store) SaveRun(ctx context.Context, r *domain.RunRecord) error {
	return s.update(ctx, "save run", func(tx Tx) error {
		return tx.PutRun(r)
	})
}

// ListRuns returns the most recent runs first. limit <= 0 returns all of them.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]*domain.RunRecord, error) {
	var out []*domain.RunRecord
	err := s.view(ctx, "list runs", func(tx Tx) error {
		var err error
		out, err = tx.ListRuns()
		return err
	})
	if err != nil {
		return nil, err
	}

	slices.SortFunc(out, func(a, b *domain.RunRecord) int {
		if c := b.StartedAt.Compare(a.StartedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})

	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
