package store

import (
	"context"
	"errors"
	"slices"
	"strings"
	"time"

	"github.com/spigell/job-seeker/internal/domain"
)

type UpsertResult struct {
	Created bool
	Changed bool
}

// BatchResult counts what a CommitBatch did to its postings.
type BatchResult struct {
	Created   int
	Changed   int
	Unchanged int
}

// UpsertPosting inserts or refreshes a posting. When its content hash changes
// every match record of the posting becomes stale and may be notified again.
func (s *Store) UpsertPosting(ctx context.Context, p domain.Posting) (UpsertResult, error) {
	var res UpsertResult
	err := s.update(ctx, "upsert posting", func(tx Tx) error {
		var err error
		res, err = upsertPosting(tx, p, s.now())
		return err
	})
	return res, err
}

// CommitBatch stores a page of postings and advances the query checkpoint in
// one transaction. Nothing is written if the cursor would move backwards.
func (s *Store) CommitBatch(ctx context.Context, queryKey string, postings []domain.Posting, cursor domain.Cursor) (BatchResult, error) {
	var res BatchResult
	now := s.now()

	err := s.update(ctx, "commit batch", func(tx Tx) error {
		res = BatchResult{}
		if err := advanceCheckpoint(tx, queryKey, cursor, now); err != nil {
			return err
		}

		for _, p := range postings {
			r, err := upsertPosting(tx, p, now)
			if err != nil {
				return err
			}
			switch {
			case r.Created:
				res.Created++
			case r.Changed:
				res.Changed++
			default:
				res.Unchanged++
			}
		}
		return nil
	})

	return res, err
}

func upsertPosting(tx Tx, p domain.Posting, now time.Time) (UpsertResult, error) {
	p.ContentHash = p.ComputeContentHash()
	p.LastSeenAt = now

	existing, err := tx.GetPosting(p.ID)
	if errors.Is(err, ErrNotFound) {
		p.FirstSeenAt = now
		return UpsertResult{Created: true}, tx.PutPosting(&p)
	}
	if err != nil {
		return UpsertResult{}, err
	}

	if existing.ContentHash == p.ContentHash {
		existing.LastSeenAt = now
		return UpsertResult{}, tx.PutPosting(existing)
	}

	p.FirstSeenAt = existing.FirstSeenAt
	if err := tx.PutPosting(&p); err != nil {
		return UpsertResult{}, err
	}

	records, err := tx.MatchesForJob(p.ID)
	if err != nil {
		return UpsertResult{}, err
	}
	for _, rec := range records {
		rec.Stale = true
		rec.Notified = false
		rec.NotifiedAt = time.Time{}
		if err := tx.PutMatch(rec); err != nil {
			return UpsertResult{}, err
		}
	}

	return UpsertResult{Changed: true}, nil
}

func (s *Store) GetPosting(ctx context.Context, id string) (*domain.Posting, error) {
	var p *domain.Posting
	err := s.view(ctx, "get posting", func(tx Tx) error {
		var err error
		p, err = tx.GetPosting(id)
		return err
	})
	return p, err
}

// ListPostings returns all postings ordered by id.
func (s *Store) ListPostings(ctx context.Context) ([]*domain.Posting, error) {
	var out []*domain.Posting
	err := s.view(ctx, "list postings", func(tx Tx) error {
		var err error
		out, err = tx.ListPostings()
		return err
	})
	if err != nil {
		return nil, err
	}

	slices.SortFunc(out, func(a, b *domain.Posting) int { return strings.Compare(a.ID, b.ID) })
	return out, nil
}
