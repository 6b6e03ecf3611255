// Package filesource serves postings dropped on disk by an external scraper.
//
// Each query reads <dir>/<query key>.json, a JSON array of postings. The
// cursor offset indexes into that array so a growing file can be consumed
// incrementally across runs.
package filesource

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/spigell/job-seeker/internal/domain"
	"github.com/spigell/job-seeker/internal/source"

	"go.uber.org/zap"
)

const defaultPageSize = 50

type Source struct {
	dir      string
	pageSize int
	logger   *zap.Logger
}

var _ source.Source = (*Source)(nil)

func New(dir string, pageSize int, logger *zap.Logger) *Source {
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Source{dir: dir, pageSize: pageSize, logger: logger}
}

func (s *Source) Fetch(ctx context.Context, q source.Query, cur domain.Cursor) (source.Page, error) {
	if err := ctx.Err(); err != nil {
		return source.Page{}, err
	}

	postings, err := s.load(q.Key)
	if err != nil {
		return source.Page{}, err
	}

	start := min(cur.Offset, len(postings))
	end := min(start+s.pageSize, len(postings))

	page := make([]domain.Posting, 0, end-start)
	for _, p := range postings[start:end] {
		p.Description = strings.TrimSpace(p.Description)
		p.Query = q.Key
		page = append(page, p)
	}

	s.logger.Debug("read postings from file",
		zap.String("query", q.Key),
		zap.Int("offset", start),
		zap.Int("count", len(page)),
		zap.Int("total", len(postings)),
	)

	next, more := source.NextCursor(q, cur, page, end < len(postings))
	return source.Page{Postings: page, Next: next, HasMore: more}, nil
}

func (s *Source) path(key string) string {
	return filepath.Join(s.dir, key+".json")
}

func (s *Source) load(key string) ([]domain.Posting, error) {
	if key == "" || strings.ContainsAny(key, `/\`) {
		return nil, fmt.Errorf("invalid query key %q", key)
	}

	data, err := os.ReadFile(s.path(key))
	if errors.Is(err, fs.ErrNotExist) {
		s.logger.Warn("no postings file for query", zap.String("query", key), zap.String("path", s.path(key)))
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading postings of %s: %w", key, err)
	}

	var postings []domain.Posting
	if err := json.Unmarshal(data, &postings); err != nil {
		return nil, fmt.Errorf("decoding postings of %s: %w", key, err)
	}

	// Entries without an id cannot be deduplicated.
	valid := postings[:0]
	for _, p := range postings {
		if strings.TrimSpace(p.ID) != "" {
			valid = append(valid, p)
		}
	}

	return valid, nil
}
