package store

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/spigell/job-seeker/internal/domain"
)

// GetCheckpoint returns ErrNotFound for a query that was never scanned.
func (s *Store) GetCheckpoint(ctx context.Context, queryKey string) (*domain.Checkpoint, error) {
	var cp *domain.Checkpoint
	err := s.view(ctx, "get checkpoint", func(tx Tx) error {
		var err error
		cp, err = tx.GetCheckpoint(queryKey)
		return err
	})
	return cp, err
}

// SaveCheckpoint moves a query cursor forward. Moving it back fails with
// ErrCheckpointRewind; use ResetCheckpoint to start a query over.
func (s *Store) SaveCheckpoint(ctx context.Context, queryKey string, cursor domain.Cursor) error {
	now := s.now()
	return s.update(ctx, "save checkpoint", func(tx Tx) error {
		return advanceCheckpoint(tx, queryKey, cursor, now)
	})
}

func (s *Store) ResetCheckpoint(ctx context.Context, queryKey string) error {
	return s.update(ctx, "reset checkpoint", func(tx Tx) error {
		return tx.DeleteCheckpoint(queryKey)
	})
}

func (s *Store) ListCheckpoints(ctx context.Context) ([]*domain.Checkpoint, error) {
	var out []*domain.Checkpoint
	err := s.view(ctx, "list checkpoints", func(tx Tx) error {
		var err error
		out, err = tx.ListCheckpoints()
		return err
	})
	if err != nil {
		return nil, err
	}

	slices.SortFunc(out, func(a, b *domain.Checkpoint) int { return strings.Compare(a.QueryKey, b.QueryKey) })
	return out, nil
}

func advanceCheckpoint(tx Tx, queryKey string, cursor domain.Cursor, now time.Time) error {
	existing, err := tx.GetCheckpoint(queryKey)
	switch {
	case errors.Is(err, ErrNotFound):
	case err != nil:
		return err
	case cursor.Before(existing.Cursor):
		return fmt.Errorf("%w: query %q at page %d offset %d, got page %d offset %d",
			ErrCheckpointRewind, queryKey,
			existing.Cursor.Page, existing.Cursor.Offset, cursor.Page, cursor.Offset)
	}

	return tx.PutCheckpoint(&domain.Checkpoint{
		QueryKey:  queryKey,
		Cursor:    cursor,
		UpdatedAt: now,
	})
}
