package store

import (
	"cmp"
	"context"
	"math"
	"slices"

	"github.com/spigell/job-seeker/internal/domain"
)

const topCompanies = 10

type CompanyCount struct {
	Company    string `json:"company" yaml:"company"`
	Qualifying int    `json:"qualifying" yaml:"qualifying"`
}

// Stats summarizes the state for reporting.
type Stats struct {
	Postings     int                 `json:"postings" yaml:"postings"`
	Resumes      int                 `json:"resumes" yaml:"resumes"`
	Matches      int                 `json:"matches" yaml:"matches"`
	Qualifying   int                 `json:"qualifying" yaml:"qualifying"`
	Notified     int                 `json:"notified" yaml:"notified"`
	Pending      int                 `json:"pending" yaml:"pending"`
	Stale        int                 `json:"stale" yaml:"stale"`
	AverageScore float64             `json:"average_score" yaml:"average_score"`
	Threshold    int                 `json:"threshold" yaml:"threshold"`
	TopCompanies []CompanyCount      `json:"top_companies" yaml:"top_companies"`
	Checkpoints  []*domain.Checkpoint `json:"checkpoints" yaml:"checkpoints"`
}

func (s *Store) Stats(ctx context.Context) (*Stats, error) {
	st := &Stats{Threshold: s.threshold}

	err := s.view(ctx, "stats", func(tx Tx) error {
		postings, err := tx.ListPostings()
		if err != nil {
			return err
		}
		resumes, err := tx.ListResumes()
		if err != nil {
			return err
		}
		matches, err := tx.ListMatches()
		if err != nil {
			return err
		}
		checkpoints, err := tx.ListCheckpoints()
		if err != nil {
			return err
		}

		st.Postings = len(postings)
		st.Resumes = len(resumes)
		st.Matches = len(matches)
		st.Checkpoints = checkpoints

		companies := make(map[string]string, len(postings))
		for _, p := range postings {
			companies[p.ID] = p.Company
		}

		perCompany := make(map[string]int)
		total := 0
		for _, rec := range matches {
			total += rec.Score
			if rec.Stale {
				st.Stale++
			}
			if rec.Notified {
				st.Notified++
			}
			if s.pending(rec) {
				st.Pending++
			}
			if !rec.Stale && s.qualifies(rec.Score) {
				st.Qualifying++
				if c := companies[rec.JobID]; c != "" {
					perCompany[c]++
				}
			}
		}

		if len(matches) > 0 {
			st.AverageScore = math.Round(float64(total)/float64(len(matches))*10) / 10
		}

		for c, n := range perCompany {
			st.TopCompanies = append(st.TopCompanies, CompanyCount{Company: c, Qualifying: n})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	slices.SortFunc(st.TopCompanies, func(a, b CompanyCount) int {
		if c := cmp.Compare(b.Qualifying, a.Qualifying); c != 0 {
			return c
		}
		return cmp.Compare(a.Company, b.Company)
	})
	if len(st.TopCompanies) > topCompanies {
		st.TopCompanies = st.TopCompanies[:topCompanies]
	}

	slices.SortFunc(st.Checkpoints, func(a, b *domain.Checkpoint) int { return cmp.Compare(a.QueryKey, b.QueryKey) })

	return st, nil
}
