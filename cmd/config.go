package cmd

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/spigell/job-seeker/internal/domain"
	"github.com/spigell/job-seeker/internal/similarity"
	"github.com/spigell/job-seeker/internal/source"

	"github.com/spf13/viper"
)

const (
	storeBolt     = "bolt"
	storePostgres = "postgres"

	lockLocal    = "local"
	lockRedis    = "redis"
	lockPostgres = "postgres"

	sourceHTTPAPI = "httpapi"
	sourceFile    = "file"

	notifyLog     = "log"
	notifyWebhook = "webhook"

	providerGemini = "gemini"
)

type Config struct {
	Debug bool `mapstructure:"debug"`
	JSON  bool `mapstructure:"json"`

	Threshold                 int            `mapstructure:"threshold"`
	ExperienceOverlapRequired bool           `mapstructure:"experience-overlap-required"`
	SkillsBonus               int            `mapstructure:"skills-bonus"`
	SkillsLexicon             []string       `mapstructure:"skills-lexicon"`
	SkillsLexiconFile         string         `mapstructure:"skills-lexicon-file"`
	ResumesDir                string         `mapstructure:"resumes-dir"`
	RunTimeout                time.Duration  `mapstructure:"run-timeout"`
	Workers                   int            `mapstructure:"workers"`
	Store                     StoreConfig    `mapstructure:"store"`
	Lock                      LockConfig     `mapstructure:"lock"`
	Source                    SourceConfig   `mapstructure:"source"`
	Searches                  []SearchConfig `mapstructure:"searches"`
	Notify                    NotifyConfig   `mapstructure:"notify"`
	Filters                   FiltersConfig  `mapstructure:"filters"`
	AI                        *AIConfig      `mapstructure:"ai"`
}

type StoreConfig struct {
	Driver      string        `mapstructure:"driver"`
	Path        string        `mapstructure:"path"`
	OpenTimeout time.Duration `mapstructure:"open-timeout"`
	DSN         string        `mapstructure:"dsn"`
	DSNFile     string        `mapstructure:"dsn-file"`
	MaxConns    int32         `mapstructure:"max-conns"`
}

type LockConfig struct {
	Driver string       `mapstructure:"driver"`
	Name   string       `mapstructure:"name"`
	Redis  *RedisConfig `mapstructure:"redis"`
}

type RedisConfig struct {
	Addr         string        `mapstructure:"addr"`
	PasswordFile string        `mapstructure:"password-file"`
	DB           int           `mapstructure:"db"`
	TTL          time.Duration `mapstructure:"ttl"`
}

type SourceConfig struct {
	Driver    string      `mapstructure:"driver"`
	URL       string      `mapstructure:"url"`
	TokenFile string      `mapstructure:"token-file"`
	UserAgent string      `mapstructure:"user-agent"`
	PerPage   int         `mapstructure:"per-page"`
	Dir       string      `mapstructure:"dir"`
	PageSize  int         `mapstructure:"page-size"`
	Rate      float64     `mapstructure:"rate"`
	Burst     int         `mapstructure:"burst"`
	Retry     RetryConfig `mapstructure:"retry"`
}

type RetryConfig struct {
	Attempts   int           `mapstructure:"attempts"`
	BaseDelay  time.Duration `mapstructure:"base-delay"`
	MaxBackoff time.Duration `mapstructure:"max-backoff"`
}

type SearchConfig struct {
	Key        string `mapstructure:"key"`
	Keywords   string `mapstructure:"keywords"`
	Location   string `mapstructure:"location"`
	Experience []int  `mapstructure:"experience"`
	MaxPages   int    `mapstructure:"max-pages"`
}

type NotifyConfig struct {
	Driver  string         `mapstructure:"driver"`
	Webhook *WebhookConfig `mapstructure:"webhook"`
}

type WebhookConfig struct {
	URL       string `mapstructure:"url"`
	TokenFile string `mapstructure:"token-file"`
}

type FiltersConfig struct {
	Companies   []string `mapstructure:"companies"`
	TitleWords  []string `mapstructure:"title-words"`
	ExcludeFile string   `mapstructure:"exclude-file"`
	Disable     []string `mapstructure:"disable"`
}

type AIConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Provider string        `mapstructure:"provider"`
	Gemini   *GeminiConfig `mapstructure:"gemini"`
}

type GeminiConfig struct {
	APIKeyFile   string `mapstructure:"api-key-file"`
	Model        string `mapstructure:"model"`
	MaxRetries   int    `mapstructure:"max-retries"`
	MaxLogLength int    `mapstructure:"max-log-length"`
	Tone         string `mapstructure:"tone"`
	Instructions string `mapstructure:"instructions"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("threshold", similarity.DefaultThreshold)
	v.SetDefault("experience-overlap-required", true)
	v.SetDefault("skills-bonus", similarity.DefaultSkillsBonus)
	v.SetDefault("resumes-dir", "resumes")
	v.SetDefault("run-timeout", "30m")
	v.SetDefault("workers", 4)

	v.SetDefault("store.driver", storeBolt)
	v.SetDefault("store.path", app+".db")

	v.SetDefault("lock.driver", lockLocal)
	v.SetDefault("lock.name", app)

	v.SetDefault("source.driver", sourceHTTPAPI)
	v.SetDefault("source.rate", 2)
	v.SetDefault("source.burst", 1)

	v.SetDefault("notify.driver", notifyLog)
}

// loadConfig decodes the settings of v. Unknown keys are rejected.
func loadConfig(v *viper.Viper) (*Config, error) {
	var config Config
	if err := v.UnmarshalExact(&config); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}

	for i := range config.Searches {
		s := &config.Searches[i]
		if strings.TrimSpace(s.Key) == "" {
			s.Key = searchKey(s.Keywords, s.Location)
		}
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

// searchKey derives a stable checkpoint key from the search terms.
func searchKey(keywords, location string) string {
	return strings.ToLower(strings.Join(strings.Fields(keywords+" "+location), "-"))
}

func (c *Config) Validate() error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	if c.Threshold < 0 || c.Threshold > 100 {
		add("threshold must be within 0..100, got %d", c.Threshold)
	}
	if c.SkillsBonus < 0 || c.SkillsBonus > 100 {
		add("skills-bonus must be within 0..100, got %d", c.SkillsBonus)
	}
	if c.Workers < 1 {
		add("workers must be positive, got %d", c.Workers)
	}
	if c.RunTimeout < 0 {
		add("run-timeout must not be negative")
	}

	switch c.Store.Driver {
	case storeBolt:
		if strings.TrimSpace(c.Store.Path) == "" {
			add("store.path is required for the %s store", storeBolt)
		}
	case storePostgres:
		if c.Store.DSN == "" && c.Store.DSNFile == "" {
			add("store.dsn or store.dsn-file is required for the %s store", storePostgres)
		}
	default:
		add("unknown store.driver %q, expected %s or %s", c.Store.Driver, storeBolt, storePostgres)
	}

	switch c.Lock.Driver {
	case lockLocal:
	case lockRedis:
		if c.Lock.Redis == nil || c.Lock.Redis.Addr == "" {
			add("lock.redis.addr is required for the %s lock", lockRedis)
		}
	case lockPostgres:
		if c.Store.Driver != storePostgres {
			add("the %s lock needs the %s store", lockPostgres, storePostgres)
		}
		// the lock keeps one pool connection for the whole run
		if c.Store.MaxConns == 1 {
			add("store.max-conns must be at least 2 with the %s lock", lockPostgres)
		}
	default:
		add("unknown lock.driver %q, expected %s, %s or %s", c.Lock.Driver, lockLocal, lockRedis, lockPostgres)
	}

	switch c.Source.Driver {
	case sourceHTTPAPI:
	case sourceFile:
		if strings.TrimSpace(c.Source.Dir) == "" {
			add("source.dir is required for the %s source", sourceFile)
		}
	default:
		add("unknown source.driver %q, expected %s or %s", c.Source.Driver, sourceHTTPAPI, sourceFile)
	}
	if c.Store.MaxConns < 0 {
		add("store.max-conns must not be negative")
	}
	if c.Source.Rate < 0 {
		add("source.rate must not be negative")
	}

	seen := make(map[string]struct{}, len(c.Searches))
	for i, s := range c.Searches {
		if s.Key == "" {
			add("searches[%d]: keywords or key is required", i)
			continue
		}
		if _, ok := seen[s.Key]; ok {
			add("searches[%d]: duplicate key %q", i, s.Key)
		}
		seen[s.Key] = struct{}{}

		if _, err := experienceRange(s.Experience); err != nil {
			add("searches[%d]: %w", i, err)
		}
		if s.MaxPages < 0 {
			add("searches[%d]: max-pages must not be negative", i)
		}
	}

	switch c.Notify.Driver {
	case notifyLog:
	case notifyWebhook:
		if c.Notify.Webhook == nil || c.Notify.Webhook.URL == "" {
			add("notify.webhook.url is required for the %s notifier", notifyWebhook)
		}
	default:
		add("unknown notify.driver %q, expected %s or %s", c.Notify.Driver, notifyLog, notifyWebhook)
	}

	if c.AI != nil && c.AI.Enabled {
		if p := strings.ToLower(strings.TrimSpace(c.AI.Provider)); p != "" && p != providerGemini {
			add("unsupported ai provider: %s", c.AI.Provider)
		}
		if c.AI.Gemini == nil {
			add("ai.gemini is required when ai is enabled")
		}
	}

	return errors.Join(errs...)
}

// experienceRange reads "[min, max]", "[min]" or nothing.
func experienceRange(bounds []int) (domain.ExperienceRange, error) {
	var r domain.ExperienceRange
	switch len(bounds) {
	case 0:
		return r, nil
	case 1:
		r.Min = bounds[0]
	case 2:
		r.Min, r.Max = bounds[0], bounds[1]
	default:
		return r, fmt.Errorf("experience takes at most two bounds, got %v", bounds)
	}

	if r.Min < 0 || r.Max < 0 || (r.Max > 0 && r.Max < r.Min) {
		return r, fmt.Errorf("invalid experience range %v", bounds)
	}
	return r, nil
}

// Queries converts the configured searches.
func (c *Config) Queries() []source.Query {
	out := make([]source.Query, 0, len(c.Searches))
	for _, s := range c.Searches {
		exp, _ := experienceRange(s.Experience)
		out = append(out, source.Query{
			Key:        s.Key,
			Keywords:   s.Keywords,
			Location:   s.Location,
			Experience: exp,
			MaxPages:   s.MaxPages,
		})
	}
	return out
}

func (c *Config) QueryKeys() []string {
	keys := make([]string, 0, len(c.Searches))
	for _, s := range c.Searches {
		keys = append(keys, s.Key)
	}
	slices.Sort(keys)
	return keys
}
