package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/spigell/job-seeker/internal/ai"
	"github.com/spigell/job-seeker/internal/ai/gemini"
	"github.com/spigell/job-seeker/internal/filtering"
	"github.com/spigell/job-seeker/internal/lock"
	"github.com/spigell/job-seeker/internal/logger"
	"github.com/spigell/job-seeker/internal/notify"
	"github.com/spigell/job-seeker/internal/secrets"
	"github.com/spigell/job-seeker/internal/similarity"
	"github.com/spigell/job-seeker/internal/source"
	"github.com/spigell/job-seeker/internal/source/filesource"
	"github.com/spigell/job-seeker/internal/source/httpapi"
	"github.com/spigell/job-seeker/internal/store"
	"github.com/spigell/job-seeker/internal/store/boltstore"
	"github.com/spigell/job-seeker/internal/store/pgstore"
	"github.com/spigell/job-seeker/internal/textnorm"

	"go.uber.org/zap"
)

// state is an opened store together with what has to be closed after it.
type state struct {
	store   *store.Store
	pg      *pgstore.DB
	closers []func() error
}

func (s *state) Close(l *zap.Logger) {
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			l.Warn("closing", zap.Error(err))
		}
	}
}

func openState(ctx context.Context, config *Config, l *zap.Logger) (*state, error) {
	s := &state{}

	switch config.Store.Driver {
	case storePostgres:
		dsn, err := secrets.Load(secrets.Source{
			Name:  "postgres dsn",
			Value: config.Store.DSN,
			File:  config.Store.DSNFile,
		})
		if err != nil {
			return nil, err
		}
		db, err := pgstore.Open(ctx, pgstore.Options{
			DSN:            dsn,
			MaxConns:       config.Store.MaxConns,
			ConnectTimeout: config.Store.OpenTimeout,
		})
		if err != nil {
			return nil, err
		}
		s.pg = db
		s.store = store.New(db, config.Threshold)
	default:
		db, err := boltstore.Open(config.Store.Path, config.Store.OpenTimeout)
		if err != nil {
			return nil, err
		}
		s.store = store.New(db, config.Threshold)
		l.Debug("bolt database", zap.String("path", db.Path()))
	}
	s.closers = append(s.closers, s.store.Close)

	l.Debug("store opened", zap.String("driver", config.Store.Driver))
	return s, nil
}

func newLocker(config *Config, s *state, l *zap.Logger) (lock.Locker, error) {
	switch config.Lock.Driver {
	case lockRedis:
		password, err := secrets.LoadOptional(secrets.Source{
			Name: "redis password",
			File: config.Lock.Redis.PasswordFile,
		})
		if err != nil {
			return nil, err
		}
		r := lock.NewRedis(lock.RedisOptions{
			Addr:     config.Lock.Redis.Addr,
			Password: password,
			DB:       config.Lock.Redis.DB,
			Key:      config.Lock.Name,
			TTL:      config.Lock.Redis.TTL,
		}, l)
		s.closers = append(s.closers, r.Close)
		return r, nil
	case lockPostgres:
		if s.pg == nil {
			return nil, fmt.Errorf("the %s lock needs the %s store", lockPostgres, storePostgres)
		}
		return pgstore.NewLocker(s.pg, config.Lock.Name, l), nil
	default:
		return lock.NewLocal(), nil
	}
}

func newSource(config *Config, l *zap.Logger) (source.Source, error) {
	var base source.Source

	switch config.Source.Driver {
	case sourceFile:
		base = filesource.New(config.Source.Dir, config.Source.PageSize, l)
	default:
		token, err := secrets.LoadOptional(secrets.Source{
			Name: "api token",
			File: config.Source.TokenFile,
		})
		if err != nil {
			return nil, err
		}
		c := httpapi.New(token, l)
		if config.Source.URL != "" {
			c.APIURL = config.Source.URL
		}
		if config.Source.UserAgent != "" {
			c.UserAgent = config.Source.UserAgent
		}
		if config.Source.PerPage > 0 {
			c.PerPage = config.Source.PerPage
		}
		base = c
	}

	limited := source.WithRateLimit(base, config.Source.Rate, config.Source.Burst)

	return source.WithRetry(limited, source.RetryPolicy{
		Attempts:   config.Source.Retry.Attempts,
		BaseDelay:  config.Source.Retry.BaseDelay,
		MaxBackoff: config.Source.Retry.MaxBackoff,
	}, l), nil
}

func newLexicon(config *Config) (*textnorm.Lexicon, error) {
	skills := append([]string(nil), config.SkillsLexicon...)

	if config.SkillsLexiconFile != "" {
		fromFile, err := textnorm.LoadLexiconFile(config.SkillsLexiconFile)
		if err != nil {
			return nil, err
		}
		skills = append(skills, fromFile...)
	}

	if len(skills) == 0 {
		return textnorm.DefaultLexicon(), nil
	}
	return textnorm.NewLexicon(skills), nil
}

func newEngine(config *Config, lexicon *textnorm.Lexicon) *similarity.Engine {
	return similarity.New(similarity.Config{
		Threshold:                 config.Threshold,
		SkillsBonus:               config.SkillsBonus,
		ExperienceOverlapRequired: config.ExperienceOverlapRequired,
	}, lexicon)
}

func newFilters(config *Config, l *zap.Logger) []filtering.Filter {
	steps := []filtering.Filter{
		filtering.NewExcludedCompanies(config.Filters.Companies),
		filtering.NewExcludedTitleWords(config.Filters.TitleWords),
		filtering.NewExcludeFile(config.Filters.ExcludeFile),
	}

	for _, name := range config.Filters.Disable {
		filtering.DisableByName(steps, strings.TrimSpace(name), "disabled in config")
	}

	for _, st := range filtering.Describe(steps) {
		l.Debug("filter configured", zap.String("name", st.Name), zap.Bool("enabled", st.Enabled))
	}

	return steps
}

func newNotifier(ctx context.Context, config *Config, st *store.Store, l *zap.Logger) (notify.Notifier, error) {
	var next notify.Notifier

	switch config.Notify.Driver {
	case notifyWebhook:
		token, err := secrets.LoadOptional(secrets.Source{
			Name: "webhook token",
			File: config.Notify.Webhook.TokenFile,
		})
		if err != nil {
			return nil, err
		}
		next = notify.NewWebhook(config.Notify.Webhook.URL, token, l)
	default:
		next = notify.NewLog(l)
	}

	if config.AI == nil || !config.AI.Enabled {
		return next, nil
	}

	drafter, err := newDrafter(ctx, config.AI, l)
	if err != nil {
		return nil, fmt.Errorf("building ai drafter: %w", err)
	}

	return ai.NewDraftingNotifier(next, drafter, st, l), nil
}

func newDrafter(ctx context.Context, cfg *AIConfig, l *zap.Logger) (ai.Drafter, error) {
	apiKey, err := secrets.Load(secrets.Source{
		Name: "gemini api key",
		File: cfg.Gemini.APIKeyFile,
	})
	if err != nil {
		return nil, fmt.Errorf("%w (set ai.gemini.api-key-file or GEMINI_API_KEY_FILE)", err)
	}

	genLogger := logger.WithFields(l, logger.AIFields(providerGemini, cfg.Gemini.Model)...).With(
		zap.Int("ai_retry_attempts", cfg.Gemini.MaxRetries),
	)

	generator, err := gemini.NewGenerator(ctx, apiKey, cfg.Gemini.Model, cfg.Gemini.MaxRetries, genLogger)
	if err != nil {
		return nil, err
	}

	return gemini.NewDrafter(generator, cfg.Gemini.Tone, cfg.Gemini.Instructions, cfg.Gemini.MaxLogLength, genLogger), nil
}
