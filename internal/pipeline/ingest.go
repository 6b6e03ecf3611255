package pipeline

import (
	"context"

	"github.com/spigell/job-seeker/internal/domain"
	"github.com/spigell/job-seeker/internal/logger"
	"github.com/spigell/job-seeker/internal/source"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

type batch struct {
	query    string
	postings []domain.Posting
	next     domain.Cursor
}

// ingest fetches every query from its checkpoint. Queries are fetched
// concurrently while a single committer writes each page together with the
// cursor that follows it.
func (r *run) ingest(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	batches := make(chan batch)
	committed := make(chan error, 1)

	go func() {
		var err error
		for b := range batches {
			if err != nil {
				continue
			}
			res, cerr := r.deps.Store.CommitBatch(ctx, b.query, b.postings, b.next)
			if cerr != nil {
				err = cerr
				cancel()
				continue
			}
			r.report.Run.Ingested += len(b.postings)
			r.report.CreatedPostings += res.Created
			r.report.ChangedPostings += res.Changed
		}
		committed <- err
	}()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.cfg.Workers)

	for _, q := range r.cfg.Searches {
		cur := r.cursors[q.Key]
		if cur.Exhausted {
			r.logger.Info("query already scanned, waiting for commit", zap.String(logger.FieldQuery, q.Key))
			continue
		}
		g.Go(func() error {
			return r.scan(gctx, q, cur, batches)
		})
	}

	fetchErr := g.Wait()
	close(batches)

	if err := <-committed; err != nil {
		return err
	}
	return fetchErr
}

func (r *run) scan(ctx context.Context, q source.Query, cur domain.Cursor, out chan<- batch) error {
	log := r.logger.With(zap.String(logger.FieldQuery, q.Key))
	log.Info("scanning query", zap.Int("page", cur.Page), zap.Int("offset", cur.Offset))

	for {
		page, err := r.deps.Source.Fetch(ctx, q, cur)
		if err != nil {
			return err
		}

		select {
		case out <- batch{query: q.Key, postings: page.Postings, next: page.Next}:
		case <-ctx.Done():
			return ctx.Err()
		}

		log.Debug("fetched page", zap.Int("page", cur.Page), zap.Int("postings", len(page.Postings)))

		if !page.HasMore {
			return nil
		}
		cur = page.Next
	}
}
