// Package notify hands new qualifying matches to the outside world.
package notify

import (
	"context"
	"errors"

	"github.com/spigell/job-seeker/internal/domain"
)

// Outcome is what a notifier did with an event.
type Outcome int

const (
	// Rejected leaves the match pending so it is retried by a later run.
	Rejected Outcome = iota
	Accepted
)

func (o Outcome) String() string {
	if o == Accepted {
		return "accepted"
	}
	return "rejected"
}

// ErrRejected is returned by notifiers that refuse an event without a transport failure.
var ErrRejected = errors.New("notification rejected")

type Notifier interface {
	Notify(ctx context.Context, event domain.MatchEvent) (Outcome, error)
}

// Func adapts a function to Notifier.
type Func func(ctx context.Context, event domain.MatchEvent) (Outcome, error)

func (f Func) Notify(ctx context.Context, event domain.MatchEvent) (Outcome, error) {
	return f(ctx, event)
}
