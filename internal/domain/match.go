package domain

import "time"

// Resume is a parsed candidate résumé.
type Resume struct {
	ID              string    `json:"id"`
	SourcePath      string    `json:"source_path"`
	SourceHash      string    `json:"source_hash"`
	Skills          []string  `json:"skills"`
	ExperienceYears int       `json:"experience_years"`
	RawText         string    `json:"raw_text"`
	Email           string    `json:"email,omitempty"`
	Phone           string    `json:"phone,omitempty"`
	LinkedIn        string    `json:"linkedin,omitempty"`
	GitHub          string    `json:"github,omitempty"`
	ParsedAt        time.Time `json:"parsed_at"`
}

// Breakdown explains how a score was produced.
type Breakdown struct {
	Text           float64  `json:"text"`
	SkillsFraction float64  `json:"skills_fraction"`
	SkillsBonus    float64  `json:"skills_bonus"`
	MatchedSkills  []string `json:"matched_skills,omitempty"`
	MissingSkills  []string `json:"missing_skills,omitempty"`
	ExperienceOK   bool     `json:"experience_ok"`
	Capped         bool     `json:"capped,omitempty"`
}

// MatchRecord is the persisted outcome of scoring one posting against one résumé.
type MatchRecord struct {
	JobID       string    `json:"job_id"`
	ResumeID    string    `json:"resume_id"`
	Score       int       `json:"score"`
	Breakdown   Breakdown `json:"breakdown"`
	PostingHash string    `json:"posting_hash"`
	ResumeHash  string    `json:"resume_hash"`
	Stale       bool      `json:"stale,omitempty"`
	ComputedAt  time.Time `json:"computed_at"`
	Notified    bool      `json:"notified"`
	NotifiedAt  time.Time `json:"notified_at,omitempty"`
}

// Cursor is a resumable scan position inside one search query.
// Exhausted marks a scan that reached its last page.
type Cursor struct {
	Page          int    `json:"page" yaml:"page"`
	Offset        int    `json:"offset" yaml:"offset"`
	LastPostingID string `json:"last_posting_id,omitempty" yaml:"last_posting_id,omitempty"`
	Exhausted     bool   `json:"exhausted,omitempty" yaml:"exhausted,omitempty"`
}

// Before reports whether c points to an earlier position than other.
func (c Cursor) Before(other Cursor) bool {
	if c.Page != other.Page {
		return c.Page < other.Page
	}
	return c.Offset < other.Offset
}

// Checkpoint stores the cursor of a search query.
type Checkpoint struct {
	QueryKey  string    `json:"query_key" yaml:"query_key"`
	Cursor    Cursor    `json:"cursor" yaml:"cursor"`
	UpdatedAt time.Time `json:"updated_at" yaml:"updated_at"`
}

// MatchEvent is handed to a notifier for every new qualifying match.
type MatchEvent struct {
	RunID      string    `json:"run_id"`
	Posting    Posting   `json:"posting"`
	ResumeID   string    `json:"resume_id"`
	ResumePath string    `json:"resume_path"`
	Contact    Contact   `json:"contact"`
	Score      int       `json:"score"`
	Breakdown  Breakdown `json:"breakdown"`
	Message    string    `json:"message,omitempty"`
}

// Contact is the résumé owner contact information carried with an event.
type Contact struct {
	Email    string `json:"email,omitempty"`
	Phone    string `json:"phone,omitempty"`
	LinkedIn string `json:"linkedin,omitempty"`
	GitHub   string `json:"github,omitempty"`
}

func (r *Resume) Contact() Contact {
	return Contact{Email: r.Email, Phone: r.Phone, LinkedIn: r.LinkedIn, GitHub: r.GitHub}
}
