package store

import (
	"cmp"
	"context"
	"errors"
	"slices"
	"strings"
	"time"

	"github.com/spigell/job-seeker/internal/domain"
)

// RecordResult describes how a scored pair relates to what was stored before.
type RecordResult struct {
	IsNew         bool
	Qualifies     bool
	WasQualifying bool
}

// NewlyQualifying reports whether the pair crossed the threshold with this score.
func (r RecordResult) NewlyQualifying() bool {
	return r.Qualifies && !r.WasQualifying
}

// RecordMatch writes the score of a pair. The notified flag of an existing
// record is kept as is, and the stale flag is cleared.
func (s *Store) RecordMatch(ctx context.Context, rec domain.MatchRecord) (RecordResult, error) {
	var res RecordResult
	if rec.ComputedAt.IsZero() {
		rec.ComputedAt = s.now()
	}
	rec.Stale = false

	err := s.update(ctx, "record match", func(tx Tx) error {
		existing, err := tx.GetMatch(rec.JobID, rec.ResumeID)
		switch {
		case errors.Is(err, ErrNotFound):
			res = RecordResult{IsNew: true}
			rec.Notified = false
			rec.NotifiedAt = time.Time{}
		case err != nil:
			return err
		default:
			res.WasQualifying = !existing.Stale && s.qualifies(existing.Score)
			rec.Notified = existing.Notified
			rec.NotifiedAt = existing.NotifiedAt
		}
		res.Qualifies = s.qualifies(rec.Score)

		return tx.PutMatch(&rec)
	})

	return res, err
}

// MarkNotified records that a pair was delivered. Repeated calls are no-ops.
func (s *Store) MarkNotified(ctx context.Context, jobID, resumeID string) error {
	now := s.now()
	return s.update(ctx, "mark notified", func(tx Tx) error {
		rec, err := tx.GetMatch(jobID, resumeID)
		if err != nil {
			return err
		}
		if rec.Notified {
			return nil
		}
		rec.Notified = true
		rec.NotifiedAt = now
		return tx.PutMatch(rec)
	})
}

// ShouldNotify reports whether a pair has a fresh qualifying score that was
// never delivered. Unknown pairs never should.
func (s *Store) ShouldNotify(ctx context.Context, jobID, resumeID string) (bool, error) {
	var ok bool
	err := s.view(ctx, "should notify", func(tx Tx) error {
		rec, err := tx.GetMatch(jobID, resumeID)
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		ok = s.pending(rec)
		return nil
	})
	return ok, err
}

// PendingNotifications returns every pair ShouldNotify holds for, best score first.
func (s *Store) PendingNotifications(ctx context.Context) ([]*domain.MatchRecord, error) {
	all, err := s.ListMatches(ctx)
	if err != nil {
		return nil, err
	}

	pending := make([]*domain.MatchRecord, 0)
	for _, rec := range all {
		if s.pending(rec) {
			pending = append(pending, rec)
		}
	}

	slices.SortStableFunc(pending, func(a, b *domain.MatchRecord) int {
		return cmp.Compare(b.Score, a.Score)
	})
	return pending, nil
}

func (s *Store) GetMatch(ctx context.Context, jobID, resumeID string) (*domain.MatchRecord, error) {
	var rec *domain.MatchRecord
	err := s.view(ctx, "get match", func(tx Tx) error {
		var err error
		rec, err = tx.GetMatch(jobID, resumeID)
		return err
	})
	return rec, err
}

// ListMatches returns all records ordered by job id, then résumé id.
func (s *Store) ListMatches(ctx context.Context) ([]*domain.MatchRecord, error) {
	var out []*domain.MatchRecord
	err := s.view(ctx, "list matches", func(tx Tx) error {
		var err error
		out, err = tx.ListMatches()
		return err
	})
	if err != nil {
		return nil, err
	}

	slices.SortFunc(out, compareMatchKey)
	return out, nil
}

func (s *Store) qualifies(score int) bool {
	return score >= s.threshold
}

func (s *Store) pending(rec *domain.MatchRecord) bool {
	return !rec.Stale && !rec.Notified && s.qualifies(rec.Score)
}

func compareMatchKey(a, b *domain.MatchRecord) int {
	if c := strings.Compare(a.JobID, b.JobID); c != 0 {
		return c
	}
	return strings.Compare(a.ResumeID, b.ResumeID)
}
