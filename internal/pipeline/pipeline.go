// Package pipeline runs one matching pass over the store:
// Init, Ingest, Score, Notify and Commit, or Failed from any of them.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spigell/job-seeker/internal/domain"
	"github.com/spigell/job-seeker/internal/filtering"
	"github.com/spigell/job-seeker/internal/lock"
	"github.com/spigell/job-seeker/internal/logger"
	"github.com/spigell/job-seeker/internal/notify"
	"github.com/spigell/job-seeker/internal/resume"
	"github.com/spigell/job-seeker/internal/similarity"
	"github.com/spigell/job-seeker/internal/source"
	"github.com/spigell/job-seeker/internal/store"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	defaultWorkers = 4
	// Used to persist the outcome of a run whose context is already done.
	finalizeTimeout = 10 * time.Second
)

type Config struct {
	Searches   []source.Query
	ResumesDir string
	Workers    int
	RunTimeout time.Duration
}

// ConfirmFunc is asked before pending matches are handed to the notifier.
// Returning false postpones them to a later run.
type ConfirmFunc func(ctx context.Context, pending []*domain.MatchRecord) (bool, error)

// Deps are the collaborators of a run. Store, Parser and Engine are always
// required, Source only for ingesting modes and Notifier only for matching ones.
type Deps struct {
	Store    *store.Store
	Source   source.Source
	Parser   *resume.Parser
	Engine   *similarity.Engine
	Notifier notify.Notifier
	Locker   lock.Locker
	Filters  []filtering.Filter
	Confirm  ConfirmFunc
	Logger   *zap.Logger

	Now   func() time.Time
	NewID func() string
}

type Pipeline struct {
	cfg  Config
	deps Deps
}

// Report is the outcome of a run.
type Report struct {
	Run             domain.RunRecord `json:"run" yaml:"run"`
	CreatedPostings int              `json:"created_postings" yaml:"created_postings"`
	ChangedPostings int              `json:"changed_postings" yaml:"changed_postings"`
	Resumes         int              `json:"resumes" yaml:"resumes"`
	Rejected        int              `json:"rejected" yaml:"rejected"`
	Pending         int              `json:"pending" yaml:"pending"`
	Filters         []filtering.Step `json:"filters,omitempty" yaml:"filters,omitempty"`
}

func New(cfg Config, deps Deps) (*Pipeline, error) {
	if deps.Store == nil {
		return nil, errors.New("store is required")
	}
	if deps.Parser == nil {
		return nil, errors.New("resume parser is required")
	}
	if deps.Engine == nil {
		return nil, errors.New("similarity engine is required")
	}
	if deps.Locker == nil {
		deps.Locker = lock.NewLocal()
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.NewID == nil {
		deps.NewID = uuid.NewString
	}
	if cfg.Workers <= 0 {
		cfg.Workers = defaultWorkers
	}

	return &Pipeline{cfg: cfg, deps: deps}, nil
}

// run carries the state of a single Run call.
type run struct {
	*Pipeline

	mode    domain.Mode
	logger  *zap.Logger
	report  *Report
	resumes []*domain.Resume
	cursors map[string]domain.Cursor
	// job ids that passed the filters in Score
	allowed map[string]struct{}
}

// Run executes one pass in the given mode. Re-running after a failure is
// always safe: everything committed so far is kept and reused.
func (p *Pipeline) Run(ctx context.Context, mode domain.Mode) (*Report, error) {
	if _, ok := domain.ParseMode(string(mode)); !ok {
		return nil, fmt.Errorf("unknown mode %q", mode)
	}
	if mode.Ingests() && p.deps.Source == nil {
		return nil, fmt.Errorf("mode %s requires a source", mode)
	}
	if mode.Matches() && p.deps.Notifier == nil {
		return nil, fmt.Errorf("mode %s requires a notifier", mode)
	}

	if p.cfg.RunTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.cfg.RunTimeout)
		defer cancel()
	}

	ctx, release, err := p.deps.Locker.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquiring run lock: %w", err)
	}
	defer release()

	r := &run{
		Pipeline: p,
		mode:     mode,
		report: &Report{Run: domain.RunRecord{
			ID:        p.deps.NewID(),
			Mode:      mode,
			StartedAt: p.deps.Now().UTC(),
		}},
		cursors: make(map[string]domain.Cursor),
	}
	r.logger = logger.WithFields(p.deps.Logger, logger.RunFields(r.report.Run.ID, string(mode))...)

	if err := r.execute(ctx); err != nil {
		if cause := context.Cause(ctx); errors.Is(cause, lock.ErrLost) {
			err = fmt.Errorf("%w: %w", cause, err)
		}
		r.fail(ctx, err)
		return r.report, err
	}

	return r.report, nil
}

func (r *run) execute(ctx context.Context) error {
	steps := []struct {
		state   domain.State
		enabled bool
		fn      func(context.Context) error
	}{
		{domain.StateInit, true, r.init},
		{domain.StateIngest, r.mode.Ingests(), r.ingest},
		{domain.StateScore, r.mode.Matches(), r.score},
		{domain.StateNotify, r.mode.Matches(), r.notify},
		{domain.StateCommit, true, r.commit},
	}

	for _, step := range steps {
		if !step.enabled {
			continue
		}
		r.enter(step.state)
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := step.fn(ctx); err != nil {
			return fmt.Errorf("%s: %w", step.state, err)
		}
	}

	r.enter(domain.StateDone)
	return nil
}

func (r *run) enter(state domain.State) {
	r.report.Run.State = state
	r.logger.Info("entering state", zap.String(logger.FieldState, string(state)))
}

// fail persists the failed run record. Work already committed stays in place.
func (r *run) fail(ctx context.Context, cause error) {
	rec := &r.report.Run
	r.logger.Error("run failed", zap.String("failed_in", string(rec.State)), zap.Error(cause))

	rec.State = domain.StateFailed
	rec.Error = cause.Error()
	rec.FinishedAt = r.deps.Now().UTC()

	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), finalizeTimeout)
	defer cancel()
	if err := r.deps.Store.SaveRun(saveCtx, rec); err != nil {
		r.logger.Warn("saving failed run record", zap.Error(err))
	}
}

func (r *run) skip(kind, id, reason string) {
	r.report.Run.Skipped = append(r.report.Run.Skipped, domain.SkippedItem{Kind: kind, ID: id, Reason: reason})
}

func (r *run) init(ctx context.Context) error {
	if r.mode.Matches() {
		if err := r.loadResumes(ctx); err != nil {
			return err
		}
	}

	if r.mode.Ingests() {
		for _, q := range r.cfg.Searches {
			cp, err := r.deps.Store.GetCheckpoint(ctx, q.Key)
			switch {
			case errors.Is(err, store.ErrNotFound):
				r.cursors[q.Key] = domain.Cursor{}
			case err != nil:
				return err
			default:
				r.cursors[q.Key] = cp.Cursor
			}
		}
	}

	return nil
}

// loadResumes parses new or changed résumés and reuses the stored ones.
func (r *run) loadResumes(ctx context.Context) error {
	files, err := r.deps.Parser.Scan(r.cfg.ResumesDir)
	if err != nil {
		return err
	}

	var changed []resume.File
	for _, f := range files {
		existing, err := r.deps.Store.GetResume(ctx, f.ID)
		switch {
		case errors.Is(err, store.ErrNotFound):
			changed = append(changed, f)
		case err != nil:
			return err
		case existing.SourceHash != f.Hash:
			changed = append(changed, f)
		default:
			r.resumes = append(r.resumes, existing)
		}
	}

	parsed, failures, err := r.deps.Parser.ParseFiles(ctx, changed)
	if err != nil {
		return err
	}
	for _, res := range parsed {
		if err := r.deps.Store.SaveResume(ctx, res); err != nil {
			return err
		}
		r.resumes = append(r.resumes, res)
	}
	for _, perr := range failures {
		r.skip("resume", perr.Path, perr.Error())
	}

	r.report.Resumes = len(r.resumes)
	r.logger.Info("resumes loaded",
		zap.Int("active", len(r.resumes)),
		zap.Int("parsed", len(parsed)),
		zap.Int("failed", len(failures)),
	)

	return nil
}

func (r *run) commit(ctx context.Context) error {
	// Every query finished its scan, so the next run starts over to pick up new postings.
	if r.mode.Ingests() {
		for _, q := range r.cfg.Searches {
			if err := r.deps.Store.ResetCheckpoint(ctx, q.Key); err != nil {
				return err
			}
		}
	}

	rec := &r.report.Run
	rec.State = domain.StateDone
	rec.FinishedAt = r.deps.Now().UTC()

	if err := r.deps.Store.SaveRun(ctx, rec); err != nil {
		return err
	}

	r.logger.Info("run finished",
		zap.Int("ingested", rec.Ingested),
		zap.Int("scored", rec.Scored),
		zap.Int("newly_qualifying", rec.NewlyQualifying),
		zap.Int("notified", rec.Notified),
		zap.Int("skipped", len(rec.Skipped)),
	)

	return nil
}
