package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	_ "embed"

	"github.com/spigell/job-seeker/internal/ai"
	"github.com/spigell/job-seeker/internal/domain"
	"github.com/spigell/job-seeker/internal/utils"

	"go.uber.org/zap"
)

type contentGenerator interface {
	GenerateContent(ctx context.Context, system, message string) (string, error)
}

//go:embed prompt.md
var systemTemplate string

const (
	defaultMaxLogLength     = 200
	defaultTone             = "Friendly"
	maxUserInstructionRunes = 500
	// Résumé text sent to the model is cut to keep prompts small.
	maxResumeRunes = 6000
)

var roleMarkerRe = regexp.MustCompile(`(?i)\[(system|assistant|user|developer)\]`)

// Drafter asks Gemini for a cover message tailored to a match.
type Drafter struct {
	generator    contentGenerator
	tone         string
	instructions string
	maxLogLen    int
	logger       *zap.Logger
}

var _ ai.Drafter = (*Drafter)(nil)

func NewDrafter(generator contentGenerator, tone, instructions string, maxLogLength int, logger *zap.Logger) *Drafter {
	if maxLogLength <= 0 {
		maxLogLength = defaultMaxLogLength
	}
	if tone = strings.TrimSpace(tone); tone == "" {
		tone = defaultTone
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Drafter{
		generator:    generator,
		tone:         tone,
		instructions: instructions,
		maxLogLen:    maxLogLength,
		logger:       logger,
	}
}

func (d *Drafter) Draft(ctx context.Context, resume *domain.Resume, event domain.MatchEvent) (string, error) {
	if resume == nil {
		return "", errors.New("resume is required")
	}

	payload := map[string]any{
		"resume": map[string]any{
			"skills":           resume.Skills,
			"experience_years": resume.ExperienceYears,
			"text":             truncateRunes(resume.RawText, maxResumeRunes),
		},
		"posting": map[string]any{
			"title":       event.Posting.Title,
			"company":     event.Posting.Company,
			"location":    event.Posting.Location,
			"description": event.Posting.Description,
		},
		"matched_skills": event.Breakdown.MatchedSkills,
		"score":          event.Score,
	}

	message, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal draft payload: %w", err)
	}

	system := buildSystemPrompt(d.tone, d.instructions)

	d.logger.Debug("gemini draft request",
		zap.String("job_id", event.Posting.ID),
		zap.String("resume_id", resume.ID),
		zap.Int("prompt_length", utf8.RuneCount(message)),
	)

	raw, err := d.generator.GenerateContent(ctx, system, string(message))
	if err != nil {
		return "", err
	}

	d.logger.Debug("gemini draft response",
		zap.String("job_id", event.Posting.ID),
		zap.String("response_preview", utils.TruncateForLog(raw, d.maxLogLen)),
	)

	return parseResponse(raw)
}

func buildSystemPrompt(tone, instructions string) string {
	prompt := strings.ReplaceAll(systemTemplate, "{{TONE}}", tone)
	return strings.ReplaceAll(prompt, "{{USER_INSTRUCTIONS}}", sanitizeUserInstructions(instructions))
}

// sanitizeUserInstructions renders operator instructions as a single list item.
func sanitizeUserInstructions(input string) string {
	cleaned := roleMarkerRe.ReplaceAllString(input, "")
	cleaned = strings.Join(strings.Fields(cleaned), " ")
	if cleaned == "" {
		return "  - none"
	}
	return "  - " + truncateRunes(cleaned, maxUserInstructionRunes)
}

func truncateRunes(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}

// parseResponse accepts a JSON object with a message key, optionally fenced,
// and falls back to the raw text.
func parseResponse(raw string) (string, error) {
	cleaned := extractJSON(raw)

	var data struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal([]byte(cleaned), &data); err == nil {
		if msg := strings.TrimSpace(data.Message); msg != "" {
			return msg, nil
		}
		return "", errors.New("gemini response has an empty message")
	}

	if strings.HasPrefix(cleaned, "{") {
		return "", fmt.Errorf("parse gemini response: %q", utils.TruncateForLog(cleaned, defaultMaxLogLength))
	}

	return cleaned, nil
}

func extractJSON(raw string) string {
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, "```") {
		raw = strings.TrimPrefix(raw, "```json")
		raw = strings.TrimPrefix(raw, "```")
		raw = strings.TrimSpace(raw)
		if idx := strings.LastIndex(raw, "```"); idx != -1 {
			raw = raw[:idx]
		}
	}
	raw = strings.Trim(raw, "`")
	return strings.TrimSpace(raw)
}
