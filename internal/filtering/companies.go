package filtering

import (
	"context"
	"strings"

	"github.com/spigell/job-seeker/internal/domain"

	"go.uber.org/zap"
)

type companiesFilter struct {
	toggle
	companies map[string]struct{}
	names     []string
}

// NewExcludedCompanies drops postings of the listed companies. Names are compared case-insensitively.
func NewExcludedCompanies(companies []string) Filter {
	f := &companiesFilter{companies: make(map[string]struct{}, len(companies))}
	for _, c := range companies {
		if key := companyKey(c); key != "" {
			f.companies[key] = struct{}{}
			f.names = append(f.names, strings.TrimSpace(c))
		}
	}
	return f
}

func companyKey(name string) string {
	return strings.ToLower(strings.Join(strings.Fields(name), " "))
}

func (f *companiesFilter) Name() string { return "excluded_companies" }

func (f *companiesFilter) Apply(_ context.Context, deps Deps, postings []domain.Posting) ([]domain.Posting, Step, error) {
	initial := len(postings)
	if len(f.companies) == 0 {
		return postings, Step{Initial: initial, Left: initial}, nil
	}

	kept, dropped := exclude(postings, func(p *domain.Posting) bool {
		_, ok := f.companies[companyKey(p.Company)]
		return ok
	})

	if len(dropped) > 0 {
		deps.Logger.Info("excluding postings by company",
			zap.Strings("excluded_companies", f.names),
			zap.Strings("excluded_postings", dropped),
			zap.Int("postings_left", len(kept)),
		)
	}

	return kept, Step{Initial: initial, Dropped: len(dropped), Left: len(kept)}, nil
}

func (f *companiesFilter) Status() Status {
	details := map[string]string{}
	if len(f.names) > 0 {
		details["companies"] = strings.Join(f.names, ",")
	}
	return Status{Name: f.Name(), Enabled: f.IsEnabled(), Reason: f.reason, Details: details}
}
