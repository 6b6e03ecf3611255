package domain

import (
	"crypto/sha256"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"
)

// ExperienceRange is the number of years a posting asks for.
// Max == 0 means open-ended, both zero means the posting does not say.
type ExperienceRange struct {
	Min int `json:"min"`
	Max int `json:"max"`
}

func (r ExperienceRange) Specified() bool {
	return r.Min > 0 || r.Max > 0
}

// Contains reports whether the given number of years falls inside the range.
// An unspecified range contains everything.
func (r ExperienceRange) Contains(years int) bool {
	if !r.Specified() {
		return true
	}
	if years < r.Min {
		return false
	}
	return r.Max == 0 || years <= r.Max
}

func (r ExperienceRange) String() string {
	switch {
	case !r.Specified():
		return "any"
	case r.Max == 0:
		return fmt.Sprintf("%d+", r.Min)
	default:
		return fmt.Sprintf("%d-%d", r.Min, r.Max)
	}
}

// Posting is a single job advertisement received from the upstream source.
type Posting struct {
	ID          string          `json:"id"`
	Title       string          `json:"title"`
	Company     string          `json:"company,omitempty"`
	Description string          `json:"description,omitempty"`
	Location    string          `json:"location,omitempty"`
	URL         string          `json:"url,omitempty"`
	Skills      []string        `json:"skills,omitempty"`
	Experience  ExperienceRange `json:"experience"`
	PostedAt    time.Time       `json:"posted_at,omitempty"`
	Query       string          `json:"query,omitempty"`
	ContentHash string          `json:"content_hash"`
	FirstSeenAt time.Time       `json:"first_seen_at"`
	LastSeenAt  time.Time       `json:"last_seen_at"`
}

// ComputeContentHash fingerprints the parts of a posting that affect scoring.
// Skills are hashed in sorted order so a reordered list does not look like a change.
func (p *Posting) ComputeContentHash() string {
	skills := slices.Clone(p.Skills)
	slices.Sort(skills)

	h := sha256.New()
	for _, part := range []string{
		strings.TrimSpace(p.Title),
		strings.TrimSpace(p.Company),
		strings.TrimSpace(p.Location),
		strings.TrimSpace(p.Description),
		strconv.Itoa(p.Experience.Min),
		strconv.Itoa(p.Experience.Max),
		strings.Join(skills, ","),
	} {
		h.Write([]byte(part))
		h.Write([]byte{0})
	}

	return fmt.Sprintf("%x", h.Sum(nil))
}
