package filtering

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/spigell/job-seeker/internal/domain"

	"go.uber.org/zap"
)

// ExcludedPostings is the content of an exclude file.
type ExcludedPostings struct {
	Items []*ExcludedPosting
}

type ExcludedPosting struct {
	ID         string
	URL        string
	Company    string
	ExcludedAt time.Time
}

// ReadExcludeFile loads an exclude file. A missing or empty file excludes nothing.
func ReadExcludeFile(path string) (*ExcludedPostings, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return &ExcludedPostings{}, nil
	}
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return &ExcludedPostings{}, nil
	}

	var excluded ExcludedPostings
	if err := json.Unmarshal(data, &excluded); err != nil {
		return nil, fmt.Errorf("decoding exclude file %s: %w", path, err)
	}
	return &excluded, nil
}

// Append adds postings that are not excluded yet.
func (e *ExcludedPostings) Append(postings []*domain.Posting, now time.Time) int {
	known := make(map[string]struct{}, len(e.Items))
	for _, item := range e.Items {
		known[item.ID] = struct{}{}
	}

	added := 0
	for _, p := range postings {
		if _, ok := known[p.ID]; ok {
			continue
		}
		known[p.ID] = struct{}{}
		e.Items = append(e.Items, &ExcludedPosting{ID: p.ID, URL: p.URL, Company: p.Company, ExcludedAt: now.UTC()})
		added++
	}
	return added
}

func (e *ExcludedPostings) IDs() map[string]struct{} {
	ids := make(map[string]struct{}, len(e.Items))
	for _, item := range e.Items {
		ids[item.ID] = struct{}{}
	}
	return ids
}

// WriteFile replaces the exclude file atomically.
func (e *ExcludedPostings) WriteFile(path string) error {
	data, err := json.MarshalIndent(e, "", "  ")
	if err != nil {
		return err
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, append(data, '\n'), 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

type excludeFileFilter struct {
	toggle
	path string
}

// NewExcludeFile drops postings listed in the exclude file at path.
func NewExcludeFile(path string) Filter {
	return &excludeFileFilter{path: path}
}

func (f *excludeFileFilter) Name() string { return "exclude_file" }

func (f *excludeFileFilter) Apply(_ context.Context, deps Deps, postings []domain.Posting) ([]domain.Posting, Step, error) {
	initial := len(postings)
	if f.path == "" {
		return postings, Step{Initial: initial, Left: initial}, nil
	}

	excluded, err := ReadExcludeFile(f.path)
	if err != nil {
		return nil, Step{}, fmt.Errorf("getting excluded postings from file: %w", err)
	}

	ids := excluded.IDs()
	kept, dropped := exclude(postings, func(p *domain.Posting) bool {
		_, ok := ids[p.ID]
		return ok
	})

	if len(dropped) > 0 {
		deps.Logger.Info("excluding postings based on exclude file",
			zap.String("path", f.path),
			zap.Strings("excluded_postings", dropped),
			zap.Int("postings_left", len(kept)),
		)
	}

	return kept, Step{Initial: initial, Dropped: len(dropped), Left: len(kept)}, nil
}

func (f *excludeFileFilter) Status() Status {
	details := map[string]string{}
	if f.path != "" {
		details["path"] = f.path
	}
	return Status{Name: f.Name(), Enabled: f.IsEnabled(), Reason: f.reason, Details: details}
}
