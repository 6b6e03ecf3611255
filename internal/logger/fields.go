package logger

import (
	"strings"

	"go.uber.org/zap"
)

// Structured field keys shared by the pipeline and its collaborators.
const (
	FieldRunID    = "run_id"
	FieldMode     = "mode"
	FieldState    = "state"
	FieldJobID    = "job_id"
	FieldResumeID = "resume_id"
	FieldQuery    = "query"
	FieldScore    = "score"
	FieldProvider = "ai_provider"
	FieldModel    = "ai_model"
)

// StringField describes a string-valued structured logging field.
type StringField struct {
	Key   string
	Value string
}

// StringFields converts the provided key/value pairs into zap fields, trimming
// whitespace and omitting entries with empty keys or values.
func StringFields(fields ...StringField) []zap.Field {
	result := make([]zap.Field, 0, len(fields))
	for _, field := range fields {
		key := strings.TrimSpace(field.Key)
		if key == "" {
			continue
		}

		value := strings.TrimSpace(field.Value)
		if value == "" {
			continue
		}

		result = append(result, zap.String(key, value))
	}

	return result
}

// WithFields attaches fields to the logger, defaulting to a no-op logger when nil.
func WithFields(logger *zap.Logger, fields ...zap.Field) *zap.Logger {
	if logger == nil {
		logger = zap.NewNop()
	}

	if len(fields) == 0 {
		return logger
	}

	return logger.With(fields...)
}

// RunFields describes a pipeline run.
func RunFields(runID, mode string) []zap.Field {
	return StringFields(
		StringField{Key: FieldRunID, Value: runID},
		StringField{Key: FieldMode, Value: mode},
	)
}

// PairFields identifies one posting/résumé pair.
func PairFields(jobID, resumeID string) []zap.Field {
	return StringFields(
		StringField{Key: FieldJobID, Value: jobID},
		StringField{Key: FieldResumeID, Value: resumeID},
	)
}

// AIFields describes the language model provider and model.
func AIFields(provider, model string) []zap.Field {
	return StringFields(
		StringField{Key: FieldProvider, Value: provider},
		StringField{Key: FieldModel, Value: model},
	)
}
