package pipeline

import (
	"context"

	"github.com/spigell/job-seeker/internal/domain"
	"github.com/spigell/job-seeker/internal/filtering"
	"github.com/spigell/job-seeker/internal/logger"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

type pair struct {
	posting *domain.Posting
	resume  *domain.Resume
}

// score rates every pair that has no record yet or whose record no longer
// matches the posting or résumé content. Workers compute scores and a single
// committer records them.
func (r *run) score(ctx context.Context) error {
	stored, err := r.deps.Store.ListPostings(ctx)
	if err != nil {
		return err
	}

	postings := make([]domain.Posting, 0, len(stored))
	for _, p := range stored {
		postings = append(postings, *p)
	}

	postings, steps, err := filtering.Run(ctx, filtering.Deps{Logger: r.logger}, r.deps.Filters, postings)
	if err != nil {
		return err
	}
	r.report.Filters = steps

	r.allowed = make(map[string]struct{}, len(postings))
	for _, p := range postings {
		r.allowed[p.ID] = struct{}{}
	}

	pairs, err := r.pairsToScore(ctx, postings)
	if err != nil {
		return err
	}

	r.logger.Info("scoring pairs",
		zap.Int("postings", len(postings)),
		zap.Int("resumes", len(r.resumes)),
		zap.Int("pairs", len(pairs)),
	)
	if len(pairs) == 0 {
		return nil
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	jobs := make(chan pair)
	results := make(chan domain.MatchRecord)

	g.Go(func() error {
		defer close(jobs)
		for _, pr := range pairs {
			select {
			case jobs <- pr:
			case <-gctx.Done():
				return gctx.Err()
			}
		}
		return nil
	})

	for range min(r.cfg.Workers, len(pairs)) {
		g.Go(func() error {
			for pr := range jobs {
				rec := r.rate(pr)
				select {
				case results <- rec:
				case <-gctx.Done():
					return gctx.Err()
				}
			}
			return nil
		})
	}

	done := make(chan error, 1)
	go func() {
		done <- g.Wait()
		close(results)
	}()

	var commitErr error
	for rec := range results {
		if commitErr != nil {
			continue
		}
		res, err := r.deps.Store.RecordMatch(ctx, rec)
		if err != nil {
			commitErr = err
			cancel()
			continue
		}
		r.report.Run.Scored++
		if res.NewlyQualifying() {
			r.report.Run.NewlyQualifying++
		}
	}

	if err := <-done; commitErr == nil && err != nil {
		return err
	}
	return commitErr
}

func (r *run) rate(pr pair) domain.MatchRecord {
	res := r.deps.Engine.Score(pr.resume, pr.posting)

	r.logger.Debug("scored pair",
		append(logger.PairFields(pr.posting.ID, pr.resume.ID),
			zap.Int(logger.FieldScore, res.Score),
			zap.Bool("experience_ok", res.Breakdown.ExperienceOK),
		)...,
	)

	return domain.MatchRecord{
		JobID:       pr.posting.ID,
		ResumeID:    pr.resume.ID,
		Score:       res.Score,
		Breakdown:   res.Breakdown,
		PostingHash: pr.posting.ContentHash,
		ResumeHash:  pr.resume.SourceHash,
		ComputedAt:  r.deps.Now().UTC(),
	}
}

func (r *run) pairsToScore(ctx context.Context, postings []domain.Posting) ([]pair, error) {
	records, err := r.deps.Store.ListMatches(ctx)
	if err != nil {
		return nil, err
	}

	type key struct{ job, resume string }
	existing := make(map[key]*domain.MatchRecord, len(records))
	for _, rec := range records {
		existing[key{rec.JobID, rec.ResumeID}] = rec
	}

	var pairs []pair
	for i := range postings {
		p := &postings[i]
		for _, res := range r.resumes {
			rec, ok := existing[key{p.ID, res.ID}]
			if ok && !rec.Stale && rec.PostingHash == p.ContentHash && rec.ResumeHash == res.SourceHash {
				continue
			}
			pairs = append(pairs, pair{posting: p, resume: res})
		}
	}

	return pairs, nil
}
