// Package similarity scores a résumé against a posting.
//
// The score is an integer in [0, 100] made of a text part (cosine similarity
// of sublinear term frequencies) and a skills bonus. When the posting asks for
// an experience range the résumé does not fit, the score is capped below the
// threshold. Scoring is pure: the same inputs always give the same output.
package similarity

import (
	"math"
	"slices"

	"github.com/spigell/job-seeker/internal/domain"
	"github.com/spigell/job-seeker/internal/textnorm"
)

const (
	DefaultThreshold   = 70
	DefaultSkillsBonus = 30
)

type Config struct {
	Threshold                 int
	SkillsBonus               int
	ExperienceOverlapRequired bool
}

type Engine struct {
	cfg     Config
	lexicon *textnorm.Lexicon
}

type Result struct {
	Score     int
	Breakdown domain.Breakdown
}

func New(cfg Config, lexicon *textnorm.Lexicon) *Engine {
	if lexicon == nil {
		lexicon = textnorm.DefaultLexicon()
	}
	return &Engine{cfg: cfg, lexicon: lexicon}
}

func (e *Engine) Threshold() int { return e.cfg.Threshold }

// Qualifies reports whether a score reaches the threshold.
func (e *Engine) Qualifies(score int) bool { return score >= e.cfg.Threshold }

// PostingSkills returns the canonical skills a posting asks for: lexicon
// phrases found in the description plus the explicit key skills.
func (e *Engine) PostingSkills(p *domain.Posting) []string {
	found := e.lexicon.MatchText(p.Description)
	return union(found, e.lexicon.CanonicalSet(p.Skills))
}

func (e *Engine) Score(r *domain.Resume, p *domain.Posting) Result {
	postingSkills := e.PostingSkills(p)
	resumeSkills := e.lexicon.CanonicalSet(r.Skills)
	matched, missing := intersect(postingSkills, resumeSkills)

	var fraction float64
	if len(postingSkills) > 0 {
		fraction = float64(len(matched)) / float64(len(postingSkills))
	}

	b := domain.Breakdown{
		SkillsFraction: fraction,
		MatchedSkills:  matched,
		MissingSkills:  missing,
		ExperienceOK:   p.Experience.Contains(r.ExperienceYears),
	}

	var score int
	description := textnorm.Normalize(p.Description)
	if len(description) == 0 {
		if len(postingSkills) > 0 && len(resumeSkills) > 0 {
			b.SkillsBonus = fraction * 100
			score = int(math.Round(b.SkillsBonus))
		}
	} else {
		b.Text = Cosine(textnorm.Normalize(r.RawText), description) * 100
		b.SkillsBonus = fraction * float64(e.cfg.SkillsBonus)
		score = int(math.Round(b.Text + b.SkillsBonus))
	}
	score = min(max(score, 0), 100)

	if e.cfg.ExperienceOverlapRequired && !b.ExperienceOK {
		limit := max(e.cfg.Threshold-1, 0)
		if score > limit {
			score = limit
			b.Capped = true
		}
	}

	return Result{Score: score, Breakdown: b}
}

// Cosine returns the cosine similarity of two token sequences weighted by
// 1 + ln(tf). Terms are visited in sorted order so the float sums are stable.
func Cosine(a, b []string) float64 {
	wa, wb := weights(a), weights(b)
	if len(wa) == 0 || len(wb) == 0 {
		return 0
	}

	terms := make([]string, 0, len(wa)+len(wb))
	for t := range wa {
		terms = append(terms, t)
	}
	for t := range wb {
		if _, ok := wa[t]; !ok {
			terms = append(terms, t)
		}
	}
	slices.Sort(terms)

	var dot, na, nb float64
	for _, t := range terms {
		x, y := wa[t], wb[t]
		dot += x * y
		na += x * x
		nb += y * y
	}

	if na == 0 || nb == 0 {
		return 0
	}

	return min(dot/(math.Sqrt(na)*math.Sqrt(nb)), 1)
}

func weights(tokens []string) map[string]float64 {
	tf := make(map[string]int, len(tokens))
	for _, t := range tokens {
		tf[t]++
	}

	w := make(map[string]float64, len(tf))
	for t, n := range tf {
		w[t] = 1 + math.Log(float64(n))
	}
	return w
}

// both inputs are sorted sets
func intersect(want, have []string) (matched, missing []string) {
	for _, s := range want {
		if _, ok := slices.BinarySearch(have, s); ok {
			matched = append(matched, s)
		} else {
			missing = append(missing, s)
		}
	}
	return matched, missing
}

func union(a, b []string) []string {
	out := slices.Concat(a, b)
	slices.Sort(out)
	return slices.Compact(out)
}
