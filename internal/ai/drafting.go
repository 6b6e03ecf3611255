// Package ai decorates notifications with a drafted cover message.
package ai

import (
	"context"
	"strings"

	"github.com/spigell/job-seeker/internal/domain"
	"github.com/spigell/job-seeker/internal/logger"
	"github.com/spigell/job-seeker/internal/notify"

	"go.uber.org/zap"
)

// Drafter writes a short application message for a match.
type Drafter interface {
	Draft(ctx context.Context, resume *domain.Resume, event domain.MatchEvent) (string, error)
}

type ResumeLookup interface {
	GetResume(ctx context.Context, id string) (*domain.Resume, error)
}

// DraftingNotifier asks the drafter for a message before handing the event on.
// Drafting problems never block the notification.
type DraftingNotifier struct {
	next    notify.Notifier
	drafter Drafter
	resumes ResumeLookup
	logger  *zap.Logger
}

var _ notify.Notifier = (*DraftingNotifier)(nil)

func NewDraftingNotifier(next notify.Notifier, drafter Drafter, resumes ResumeLookup, l *zap.Logger) *DraftingNotifier {
	return &DraftingNotifier{
		next:    next,
		drafter: drafter,
		resumes: resumes,
		logger:  logger.WithFields(l),
	}
}

func (d *DraftingNotifier) Notify(ctx context.Context, event domain.MatchEvent) (notify.Outcome, error) {
	if strings.TrimSpace(event.Message) == "" {
		if msg, err := d.draft(ctx, event); err != nil {
			if ctx.Err() != nil {
				return notify.Rejected, ctx.Err()
			}
			d.logger.Warn("drafting message failed, notifying without it",
				append(logger.PairFields(event.Posting.ID, event.ResumeID), zap.Error(err))...,
			)
		} else {
			event.Message = msg
		}
	}

	return d.next.Notify(ctx, event)
}

func (d *DraftingNotifier) draft(ctx context.Context, event domain.MatchEvent) (string, error) {
	resume, err := d.resumes.GetResume(ctx, event.ResumeID)
	if err != nil {
		return "", err
	}
	msg, err := d.drafter.Draft(ctx, resume, event)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(msg), nil
}
