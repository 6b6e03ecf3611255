// Package source defines how postings are pulled from an upstream listing.
package source

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spigell/job-seeker/internal/domain"
)

// ErrAuthRequired means the upstream refused our credentials. It is fatal.
var ErrAuthRequired = errors.New("upstream requires authentication")

// RateLimitedError asks the caller to slow down.
type RateLimitedError struct {
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("rate limited by upstream, retry after %s", e.RetryAfter)
	}
	return "rate limited by upstream"
}

// Query is one configured search.
type Query struct {
	Key        string
	Keywords   string
	Location   string
	Experience domain.ExperienceRange
	MaxPages   int
}

// Page is one batch of postings and the cursor that follows it.
type Page struct {
	Postings []domain.Posting
	Next     domain.Cursor
	HasMore  bool
}

type Source interface {
	Fetch(ctx context.Context, q Query, cursor domain.Cursor) (Page, error)
}

// NextCursor builds the cursor that follows a page of n postings and stops
// the scan once the query page limit is reached.
func NextCursor(q Query, cur domain.Cursor, postings []domain.Posting, more bool) (domain.Cursor, bool) {
	next := domain.Cursor{
		Page:          cur.Page + 1,
		Offset:        cur.Offset + len(postings),
		LastPostingID: cur.LastPostingID,
	}
	if len(postings) > 0 {
		next.LastPostingID = postings[len(postings)-1].ID
	}

	if q.MaxPages > 0 && next.Page >= q.MaxPages {
		more = false
	}
	next.Exhausted = !more

	return next, more
}
