package boltstore

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/spigell/job-seeker/internal/domain"
	"github.com/spigell/job-seeker/internal/store"
)

func openTemp(t *testing.T) (*DB, string) {
	t.Helper()

	path := filepath.Join(t.TempDir(), "nested", "state.db")
	db, err := Open(path, 100*time.Millisecond)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db, path
}

func TestOpenInUse(t *testing.T) {
	t.Parallel()

	db, path := openTemp(t)
	if db.Path() != path {
		t.Fatalf("expected path %s, got %s", path, db.Path())
	}

	if _, err := Open(path, 50*time.Millisecond); !errors.Is(err, ErrInUse) {
		t.Fatalf("expected ErrInUse, got %v", err)
	}

	if err := db.Close(); err != nil {
		t.Fatal(err)
	}
	again, err := Open(path, 50*time.Millisecond)
	if err != nil {
		t.Fatalf("open after close: %v", err)
	}
	again.Close()
}

func TestUpdateRollsBack(t *testing.T) {
	t.Parallel()

	db, _ := openTemp(t)
	ctx := context.Background()

	boom := errors.New("boom")
	err := db.Update(ctx, func(tx store.Tx) error {
		if err := tx.PutPosting(&domain.Posting{ID: "42"}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected the callback error, got %v", err)
	}

	err = db.View(ctx, func(tx store.Tx) error {
		_, err := tx.GetPosting("42")
		return err
	})
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound after rollback, got %v", err)
	}

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	if err := db.View(cancelled, func(store.Tx) error { return nil }); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestMatchesForJobUsesExactPrefix(t *testing.T) {
	t.Parallel()

	db, _ := openTemp(t)
	ctx := context.Background()

	err := db.Update(ctx, func(tx store.Tx) error {
		for _, rec := range []*domain.MatchRecord{
			{JobID: "4", ResumeID: "a.txt", Score: 10},
			{JobID: "42", ResumeID: "a.txt", Score: 20},
			{JobID: "4", ResumeID: "b.txt", Score: 30},
		} {
			if err := tx.PutMatch(rec); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}

	err = db.View(ctx, func(tx store.Tx) error {
		recs, err := tx.MatchesForJob("4")
		if err != nil {
			return err
		}
		if len(recs) != 2 || recs[0].ResumeID != "a.txt" || recs[1].ResumeID != "b.txt" {
			t.Errorf("unexpected matches for job 4: %+v", recs)
		}

		all, err := tx.ListMatches()
		if err != nil {
			return err
		}
		if len(all) != 3 {
			t.Errorf("expected 3 matches, got %d", len(all))
		}
		return nil
	})
	if err != nil {
		t.Fatalf("view: %v", err)
	}
}
