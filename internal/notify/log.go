package notify

import (
	"context"

	"github.com/spigell/job-seeker/internal/domain"
	"github.com/spigell/job-seeker/internal/logger"
	"github.com/spigell/job-seeker/internal/utils"

	"go.uber.org/zap"
)

const messageLogLength = 200

// Log writes every event to the logger and always accepts it.
type Log struct {
	logger *zap.Logger
}

func NewLog(l *zap.Logger) *Log {
	return &Log{logger: logger.WithFields(l)}
}

func (l *Log) Notify(ctx context.Context, event domain.MatchEvent) (Outcome, error) {
	if err := ctx.Err(); err != nil {
		return Rejected, err
	}

	fields := append(logger.PairFields(event.Posting.ID, event.ResumeID),
		zap.String(logger.FieldRunID, event.RunID),
		zap.Int(logger.FieldScore, event.Score),
		zap.Strings("matched_skills", event.Breakdown.MatchedSkills),
	)
	fields = append(fields, logger.StringFields(
		logger.StringField{Key: "title", Value: event.Posting.Title},
		logger.StringField{Key: "company", Value: event.Posting.Company},
		logger.StringField{Key: "url", Value: event.Posting.URL},
		logger.StringField{Key: "email", Value: event.Contact.Email},
	)...)
	if event.Message != "" {
		fields = append(fields, zap.String("message", utils.TruncateForLog(event.Message, messageLogLength)))
	}

	l.logger.Info("new qualifying match", fields...)

	return Accepted, nil
}
