package filtering

import (
	"context"
	"slices"
	"strings"

	"github.com/spigell/job-seeker/internal/domain"
	"github.com/spigell/job-seeker/internal/textnorm"

	"go.uber.org/zap"
)

type titleWordsFilter struct {
	toggle
	phrases [][]string
	words   []string
}

// NewExcludedTitleWords drops postings whose title contains one of the phrases,
// e.g. "intern" or "team lead".
func NewExcludedTitleWords(words []string) Filter {
	f := &titleWordsFilter{}
	for _, w := range words {
		if tokens := textnorm.Phrase(w); len(tokens) > 0 {
			f.phrases = append(f.phrases, tokens)
			f.words = append(f.words, strings.TrimSpace(w))
		}
	}
	return f
}

func (f *titleWordsFilter) Name() string { return "excluded_title_words" }

func (f *titleWordsFilter) Apply(_ context.Context, deps Deps, postings []domain.Posting) ([]domain.Posting, Step, error) {
	initial := len(postings)
	if len(f.phrases) == 0 {
		return postings, Step{Initial: initial, Left: initial}, nil
	}

	kept, dropped := exclude(postings, func(p *domain.Posting) bool {
		title := textnorm.Phrase(p.Title)
		for _, phrase := range f.phrases {
			if containsPhrase(title, phrase) {
				return true
			}
		}
		return false
	})

	if len(dropped) > 0 {
		deps.Logger.Info("excluding postings by title",
			zap.Strings("excluded_words", f.words),
			zap.Strings("excluded_postings", dropped),
			zap.Int("postings_left", len(kept)),
		)
	}

	return kept, Step{Initial: initial, Dropped: len(dropped), Left: len(kept)}, nil
}

func containsPhrase(tokens, phrase []string) bool {
	for i := 0; i+len(phrase) <= len(tokens); i++ {
		if slices.Equal(tokens[i:i+len(phrase)], phrase) {
			return true
		}
	}
	return false
}

func (f *titleWordsFilter) Status() Status {
	details := map[string]string{}
	if len(f.words) > 0 {
		details["words"] = strings.Join(f.words, ",")
	}
	return Status{Name: f.Name(), Enabled: f.IsEnabled(), Reason: f.reason, Details: details}
}
