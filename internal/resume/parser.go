package resume

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/spigell/job-seeker/internal/domain"
	"github.com/spigell/job-seeker/internal/textnorm"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const defaultWorkers = 4

var supported = []string{".txt", ".md", ".pdf", ".docx"}

// ParseError reports a résumé that could not be turned into text.
// The résumé is skipped for the current run.
type ParseError struct {
	Path   string
	Reason string
	Err    error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("parse resume %s: %s: %v", e.Path, e.Reason, e.Err)
	}
	return fmt.Sprintf("parse resume %s: %s", e.Path, e.Reason)
}

func (e *ParseError) Unwrap() error { return e.Err }

// File is a résumé found on disk that has not been parsed yet.
type File struct {
	ID   string
	Path string
	Hash string
}

type Parser struct {
	lexicon *textnorm.Lexicon
	workers int
	logger  *zap.Logger
	now     func() time.Time
}

func NewParser(lexicon *textnorm.Lexicon, workers int, logger *zap.Logger) *Parser {
	if lexicon == nil {
		lexicon = textnorm.DefaultLexicon()
	}
	if workers <= 0 {
		workers = defaultWorkers
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Parser{
		lexicon: lexicon,
		workers: workers,
		logger:  logger,
		now:     time.Now,
	}
}

// Supported reports whether the file extension can be parsed.
func Supported(path string) bool {
	return slices.Contains(supported, strings.ToLower(filepath.Ext(path)))
}

// Parse reads a single résumé. The id is the base file name.
func (p *Parser) Parse(ctx context.Context, path string) (*domain.Resume, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &ParseError{Path: path, Reason: "unreadable file", Err: err}
	}

	return p.parse(ctx, File{ID: filepath.Base(path), Path: path, Hash: hash(data)}, data)
}

// ParseFile parses a file returned by Scan. The file is re-read, so the
// stored hash reflects what was actually parsed.
func (p *Parser) ParseFile(ctx context.Context, f File) (*domain.Resume, error) {
	data, err := os.ReadFile(f.Path)
	if err != nil {
		return nil, &ParseError{Path: f.Path, Reason: "unreadable file", Err: err}
	}
	f.Hash = hash(data)

	return p.parse(ctx, f, data)
}

func (p *Parser) parse(ctx context.Context, f File, data []byte) (*domain.Resume, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if !Supported(f.Path) {
		return nil, &ParseError{Path: f.Path, Reason: fmt.Sprintf("unsupported extension %q", filepath.Ext(f.Path))}
	}

	text, err := extractText(f.Path, data)
	if err != nil {
		return nil, &ParseError{Path: f.Path, Reason: "corrupt document", Err: err}
	}

	if len(textnorm.Normalize(text)) == 0 {
		return nil, &ParseError{Path: f.Path, Reason: "no extractable text"}
	}

	contact := extractContact(text)

	r := &domain.Resume{
		ID:              f.ID,
		SourcePath:      f.Path,
		SourceHash:      f.Hash,
		Skills:          p.lexicon.MatchText(text),
		ExperienceYears: extractExperienceYears(text),
		RawText:         text,
		Email:           contact.Email,
		Phone:           contact.Phone,
		LinkedIn:        contact.LinkedIn,
		GitHub:          contact.GitHub,
		ParsedAt:        p.now().UTC(),
	}

	p.logger.Debug("parsed resume",
		zap.String("resume_id", r.ID),
		zap.Int("skills", len(r.Skills)),
		zap.Int("experience_years", r.ExperienceYears),
	)

	return r, nil
}

// Scan lists supported résumé files under dir with their content hashes.
// IDs are slash-separated paths relative to dir.
func (p *Parser) Scan(dir string) ([]File, error) {
	var files []File

	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != dir && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.HasPrefix(d.Name(), ".") || !Supported(path) {
			return nil
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}

		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}

		files = append(files, File{ID: filepath.ToSlash(rel), Path: path, Hash: hash(data)})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scanning resumes in %s: %w", dir, err)
	}

	return files, nil
}

// ParseFiles parses files with bounded concurrency. Per-file failures are
// returned as ParseErrors and do not stop the others. Results keep the input order.
func (p *Parser) ParseFiles(ctx context.Context, files []File) ([]*domain.Resume, []*ParseError, error) {
	results := make([]*domain.Resume, len(files))
	failures := make([]*ParseError, len(files))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.workers)

	for i, f := range files {
		g.Go(func() error {
			r, err := p.ParseFile(gctx, f)
			if err != nil {
				var perr *ParseError
				if errors.As(err, &perr) {
					p.logger.Warn("skipping resume", zap.String("resume_id", f.ID), zap.Error(err))
					failures[i] = perr
					return nil
				}
				return err
			}
			results[i] = r
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	return compact(results), compact(failures), nil
}

func compact[T any](items []*T) []*T {
	out := make([]*T, 0, len(items))
	for _, item := range items {
		if item != nil {
			out = append(out, item)
		}
	}
	return out
}

func hash(data []byte) string {
	return fmt.Sprintf("%x", sha256.Sum256(data))
}
