// Package filtering drops postings that must never be scored.
package filtering

import (
	"context"
	"fmt"

	"github.com/spigell/job-seeker/internal/domain"

	"go.uber.org/zap"
)

// Filter is a single filtering step applied to postings.
type Filter interface {
	Name() string
	Disable(reason string)
	IsEnabled() bool

	Apply(ctx context.Context, deps Deps, postings []domain.Posting) ([]domain.Posting, Step, error)
}

// Deps aggregates dependencies shared across all filtering steps.
type Deps struct {
	Logger *zap.Logger
}

// Step describes the result of executing a filtering step.
type Step struct {
	Name    string `json:"name" yaml:"name"`
	Initial int    `json:"initial" yaml:"initial"`
	Dropped int    `json:"dropped" yaml:"dropped"`
	Left    int    `json:"left" yaml:"left"`
}

// Status represents runtime information about a filter.
type Status struct {
	Name    string
	Enabled bool
	Reason  string
	Details map[string]string
}

type statusProvider interface {
	Status() Status
}

// DisableByName marks a filter with the provided name as disabled while keeping it in the list.
func DisableByName(steps []Filter, name, reason string) {
	for _, step := range steps {
		if step.Name() == name {
			step.Disable(reason)
		}
	}
}

// Run executes the enabled filters in order.
func Run(ctx context.Context, deps Deps, steps []Filter, postings []domain.Posting) ([]domain.Posting, []Step, error) {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}

	results := make([]Step, 0, len(steps))
	for _, step := range steps {
		if !step.IsEnabled() {
			deps.Logger.Debug("filter disabled", zap.String("name", step.Name()))
			continue
		}

		next, info, err := step.Apply(ctx, deps, postings)
		if err != nil {
			return nil, nil, fmt.Errorf("%s: %w", step.Name(), err)
		}
		info.Name = step.Name()

		deps.Logger.Info("filter step",
			zap.String("name", info.Name),
			zap.Int("initial", info.Initial),
			zap.Int("dropped", info.Dropped),
			zap.Int("left", info.Left),
		)

		results = append(results, info)
		postings = next
	}

	return postings, results, nil
}

// Describe returns status entries for the provided filters.
func Describe(steps []Filter) []Status {
	statuses := make([]Status, 0, len(steps))
	for _, step := range steps {
		if reporter, ok := step.(statusProvider); ok {
			statuses = append(statuses, reporter.Status())
			continue
		}

		statuses = append(statuses, Status{
			Name:    step.Name(),
			Enabled: step.IsEnabled(),
		})
	}
	return statuses
}

// exclude splits postings by the predicate, returning what is kept and the dropped ids.
func exclude(postings []domain.Posting, drop func(p *domain.Posting) bool) ([]domain.Posting, []string) {
	kept := make([]domain.Posting, 0, len(postings))
	var dropped []string
	for i := range postings {
		if drop(&postings[i]) {
			dropped = append(dropped, postings[i].ID)
			continue
		}
		kept = append(kept, postings[i])
	}
	return kept, dropped
}

// toggle carries the enabled flag shared by all steps.
type toggle struct {
	disabled bool
	reason   string
}

func (t *toggle) Disable(reason string) {
	t.disabled = true
	t.reason = reason
}

func (t *toggle) IsEnabled() bool { return !t.disabled }
