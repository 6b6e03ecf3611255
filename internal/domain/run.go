package domain

import "time"

// Mode selects which part of the pipeline a run executes.
type Mode string

const (
	ModeScrape Mode = "scrape"
	ModeMatch  Mode = "match"
	ModeFull   Mode = "full"
)

func ParseMode(s string) (Mode, bool) {
	switch Mode(s) {
	case ModeScrape, ModeMatch, ModeFull:
		return Mode(s), true
	default:
		return "", false
	}
}

// Ingests reports whether the mode pulls postings from the source.
func (m Mode) Ingests() bool { return m == ModeScrape || m == ModeFull }

// Matches reports whether the mode scores and notifies.
func (m Mode) Matches() bool { return m == ModeMatch || m == ModeFull }

// State is a step of the run state machine.
type State string

const (
	StateInit   State = "init"
	StateIngest State = "ingest"
	StateScore  State = "score"
	StateNotify State = "notify"
	StateCommit State = "commit"
	StateDone   State = "done"
	StateFailed State = "failed"
)

// SkippedItem is a per-item failure that did not abort the run.
type SkippedItem struct {
	Kind   string `json:"kind" yaml:"kind"`
	ID     string `json:"id" yaml:"id"`
	Reason string `json:"reason" yaml:"reason"`
}

// RunRecord is the persisted summary of a run.
type RunRecord struct {
	ID              string        `json:"id" yaml:"id"`
	Mode            Mode          `json:"mode" yaml:"mode"`
	State           State         `json:"state" yaml:"state"`
	Ingested        int           `json:"ingested" yaml:"ingested"`
	Scored          int           `json:"scored" yaml:"scored"`
	NewlyQualifying int           `json:"newly_qualifying" yaml:"newly_qualifying"`
	Notified        int           `json:"notified" yaml:"notified"`
	Skipped         []SkippedItem `json:"skipped,omitempty" yaml:"skipped,omitempty"`
	StartedAt       time.Time     `json:"started_at" yaml:"started_at"`
	FinishedAt      time.Time     `json:"finished_at" yaml:"finished_at"`
	Error           string        `json:"error,omitempty" yaml:"error,omitempty"`
}
