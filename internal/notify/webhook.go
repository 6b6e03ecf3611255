package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/spigell/job-seeker/internal/domain"

	"go.uber.org/zap"
)

const userAgent = "spigell/job-seeker"

// Webhook posts every event as JSON. 2xx accepts the event, 4xx rejects it
// with ErrRejected and anything else is a delivery error.
type Webhook struct {
	url    string
	token  string
	logger *zap.Logger

	HTTPClient *http.Client
}

func NewWebhook(url, token string, logger *zap.Logger) *Webhook {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Webhook{
		url:        url,
		token:      token,
		logger:     logger,
		HTTPClient: &http.Client{Timeout: 10 * time.Second},
	}
}

func (w *Webhook) Notify(ctx context.Context, event domain.MatchEvent) (Outcome, error) {
	body, err := json.Marshal(event)
	if err != nil {
		return Rejected, fmt.Errorf("encoding event: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return Rejected, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Idempotency-Key", idempotencyKey(event))
	if w.token != "" {
		req.Header.Set("Authorization", "Bearer "+w.token)
	}

	resp, err := w.HTTPClient.Do(req)
	if err != nil {
		return Rejected, fmt.Errorf("posting event: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return Accepted, nil
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		w.logger.Warn("webhook rejected event",
			zap.String("job_id", event.Posting.ID),
			zap.String("resume_id", event.ResumeID),
			zap.Int("status", resp.StatusCode),
		)
		return Rejected, fmt.Errorf("%w: webhook responded with %s", ErrRejected, resp.Status)
	default:
		return Rejected, fmt.Errorf("webhook responded with %s", resp.Status)
	}
}

// idempotencyKey stays the same for repeated deliveries of one pair and
// changes when the posting content does.
func idempotencyKey(event domain.MatchEvent) string {
	key := event.Posting.ID + "/" + event.ResumeID
	if event.Posting.ContentHash != "" {
		key += "/" + event.Posting.ContentHash
	}
	return key
}
