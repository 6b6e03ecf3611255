package pipeline

import (
	"context"
	"errors"

	"github.com/spigell/job-seeker/internal/domain"
	"github.com/spigell/job-seeker/internal/logger"
	"github.com/spigell/job-seeker/internal/notify"

	"go.uber.org/zap"
)

// notify hands every pending pair to the notifier. A pair is marked as
// notified only once the notifier accepted it, anything else keeps it
// pending for the next run. Pairs whose posting was filtered out in this run
// or whose résumé is no longer active are held back.
func (r *run) notify(ctx context.Context) error {
	stored, err := r.deps.Store.PendingNotifications(ctx)
	if err != nil {
		return err
	}

	pending := r.deliverable(stored)
	if held := len(stored) - len(pending); held > 0 {
		r.logger.Info("pending matches held back", zap.Int("held", held))
	}
	r.report.Pending = len(pending)

	if len(pending) == 0 {
		r.logger.Info("nothing to notify")
		return nil
	}

	if r.deps.Confirm != nil {
		ok, err := r.deps.Confirm(ctx, pending)
		if err != nil {
			return err
		}
		if !ok {
			r.logger.Info("notifications postponed", zap.Int("pending", len(pending)))
			return nil
		}
	}

	for _, rec := range pending {
		if err := r.notifyOne(ctx, rec); err != nil {
			return err
		}
	}

	return nil
}

func (r *run) deliverable(pending []*domain.MatchRecord) []*domain.MatchRecord {
	active := make(map[string]struct{}, len(r.resumes))
	for _, res := range r.resumes {
		active[res.ID] = struct{}{}
	}

	out := make([]*domain.MatchRecord, 0, len(pending))
	for _, rec := range pending {
		if _, ok := r.allowed[rec.JobID]; !ok {
			continue
		}
		if _, ok := active[rec.ResumeID]; !ok {
			continue
		}
		out = append(out, rec)
	}
	return out
}

func (r *run) notifyOne(ctx context.Context, rec *domain.MatchRecord) error {
	log := r.logger.With(logger.PairFields(rec.JobID, rec.ResumeID)...)

	ok, err := r.deps.Store.ShouldNotify(ctx, rec.JobID, rec.ResumeID)
	if err != nil || !ok {
		return err
	}

	event, err := r.event(ctx, rec)
	if err != nil {
		return err
	}

	outcome, err := r.deps.Notifier.Notify(ctx, event)
	switch {
	case ctx.Err() != nil:
		return ctx.Err()
	case errors.Is(err, notify.ErrRejected), err == nil && outcome == notify.Rejected:
		r.report.Rejected++
		log.Info("notification rejected, keeping it pending", zap.Error(err))
		return nil
	case err != nil:
		r.skip("notification", rec.JobID+"/"+rec.ResumeID, err.Error())
		log.Warn("notification failed, keeping it pending", zap.Error(err))
		return nil
	case outcome != notify.Accepted:
		return nil
	}

	if err := r.deps.Store.MarkNotified(ctx, rec.JobID, rec.ResumeID); err != nil {
		return err
	}
	r.report.Run.Notified++
	r.report.Pending--

	log.Info("notified", zap.Int(logger.FieldScore, rec.Score))
	return nil
}

func (r *run) event(ctx context.Context, rec *domain.MatchRecord) (domain.MatchEvent, error) {
	posting, err := r.deps.Store.GetPosting(ctx, rec.JobID)
	if err != nil {
		return domain.MatchEvent{}, err
	}
	res, err := r.deps.Store.GetResume(ctx, rec.ResumeID)
	if err != nil {
		return domain.MatchEvent{}, err
	}

	return domain.MatchEvent{
		RunID:      r.report.Run.ID,
		Posting:    *posting,
		ResumeID:   res.ID,
		ResumePath: res.SourcePath,
		Contact:    res.Contact(),
		Score:      rec.Score,
		Breakdown:  rec.Breakdown,
	}, nil
}
