// Package config loads the lookbook server configuration from an optional
// YAML file, a .env file and the process environment, in that order.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/anatolykoptev/go-lookbook"
)

// DefaultFile is read when CONFIG_FILE is unset. It may be absent.
const DefaultFile = "config.yaml"

var emailPattern = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)

// Config is the full server configuration.
type Config struct {
	SimilarityThreshold int           `yaml:"similarity_threshold"`
	CacheTTL            time.Duration `yaml:"cache_ttl"`
	CacheMaxSize        int           `yaml:"cache_max_size"`
	MaxBatchSize        int           `yaml:"max_batch_size"`
	ConcurrencyLimit    int           `yaml:"concurrency_limit"`
	RateLimit           int           `yaml:"rate_limit"` // requests per minute
	APITimeout          time.Duration `yaml:"api_timeout"`
	MaxRetries          int           `yaml:"api_max_retries"`
	BatchDeadline       time.Duration `yaml:"batch_deadline"`
	MinImageWidth       int           `yaml:"min_image_width"`
	DefaultTone         string        `yaml:"default_tone"`
	DefaultPlatform     string        `yaml:"default_platform"`

	OpenAI struct {
		APIKey       string `yaml:"api_key"`
		BaseURL      string `yaml:"api_base"`
		VisionModel  string `yaml:"vision_model"`
		ContentModel string `yaml:"content_model"`
	} `yaml:"openai"`

	Google struct {
		CredentialsFile string `yaml:"credentials_file"`
		SpreadsheetID   string `yaml:"spreadsheet_id"`
		SheetName       string `yaml:"sheet_name"`
		ShareEmail      string `yaml:"share_email"`
	} `yaml:"google"`

	DatabaseURL string `yaml:"database_url"`

	Redis struct {
		Addr     string        `yaml:"addr"`
		Password string        `yaml:"password"`
		DB       int           `yaml:"db"`
		TTL      time.Duration `yaml:"ttl"`
	} `yaml:"redis"`

	S3 struct {
		Bucket   string `yaml:"bucket"`
		Region   string `yaml:"region"`
		Prefix   string `yaml:"prefix"`
		Endpoint string `yaml:"endpoint"`
	} `yaml:"s3"`

	HTTPAddr string `yaml:"http_addr"`
	LogLevel string `yaml:"log_level"`
}

// Default returns the built-in configuration.
func Default() *Config {
	c := &Config{
		SimilarityThreshold: lookbook.DefaultSimilarityThreshold,
		CacheTTL:            lookbook.DefaultCacheTTL,
		CacheMaxSize:        lookbook.DefaultCacheMaxSize,
		MaxBatchSize:        lookbook.DefaultMaxBatchSize,
		ConcurrencyLimit:    lookbook.DefaultConcurrencyLimit,
		RateLimit:           lookbook.DefaultRateLimit,
		APITimeout:          lookbook.DefaultAPITimeout,
		MaxRetries:          lookbook.DefaultMaxRetries,
		DefaultTone:         lookbook.DefaultTone,
		DefaultPlatform:     lookbook.DefaultPlatform,
		HTTPAddr:            ":8080",
		LogLevel:            "info",
	}
	c.OpenAI.BaseURL = "https://api.openai.com/v1"
	c.OpenAI.VisionModel = "gpt-4o"
	c.OpenAI.ContentModel = "gpt-4o"
	c.Google.SheetName = "Sheet1"
	return c
}

// Load reads CONFIG_FILE (or DefaultFile), then .env, then the environment,
// and validates the result.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("lookbook: .env not loaded", "error", err)
	}
	path, explicit := os.LookupEnv("CONFIG_FILE")
	if !explicit {
		path = DefaultFile
	}
	return load(path, explicit, os.LookupEnv)
}

func load(path string, required bool, lookup func(string) (string, bool)) (*Config, error) {
	c := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, c); err != nil {
				return nil, fmt.Errorf("parse %s: %w", path, err)
			}
		case errors.Is(err, os.ErrNotExist) && !required:
		default:
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
	}
	if err := c.applyEnv(lookup); err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	var errs []error
	str := func(name string, dst *string) {
		if v, ok := lookup(name); ok {
			*dst = strings.TrimSpace(v)
		}
	}
	num := func(name string, dst *int) {
		if v, ok := lookup(name); ok {
			n, err := strconv.Atoi(strings.TrimSpace(v))
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", name, err))
				return
			}
			*dst = n
		}
	}
	dur := func(name string, dst *time.Duration) {
		if v, ok := lookup(name); ok {
			d, err := parseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", name, err))
				return
			}
			*dst = d
		}
	}

	num("SIMILARITY_THRESHOLD", &c.SimilarityThreshold)
	dur("CACHE_TTL", &c.CacheTTL)
	num("CACHE_MAX_SIZE", &c.CacheMaxSize)
	num("MAX_BATCH_SIZE", &c.MaxBatchSize)
	num("CONCURRENCY_LIMIT", &c.ConcurrencyLimit)
	num("RATE_LIMIT", &c.RateLimit)
	dur("API_TIMEOUT", &c.APITimeout)
	num("API_MAX_RETRIES", &c.MaxRetries)
	dur("BATCH_DEADLINE", &c.BatchDeadline)
	num("MIN_IMAGE_WIDTH", &c.MinImageWidth)
	str("DEFAULT_TONE", &c.DefaultTone)
	str("DEFAULT_PLATFORM", &c.DefaultPlatform)

	str("OPENAI_API_KEY", &c.OpenAI.APIKey)
	str("OPENAI_API_BASE", &c.OpenAI.BaseURL)
	str("VISION_MODEL", &c.OpenAI.VisionModel)
	str("CONTENT_MODEL", &c.OpenAI.ContentModel)

	str("GOOGLE_CREDENTIALS_FILE", &c.Google.CredentialsFile)
	str("SPREADSHEET_ID", &c.Google.SpreadsheetID)
	str("SHEET_NAME", &c.Google.SheetName)
	str("GOOGLE_SHARE_EMAIL", &c.Google.ShareEmail)

	str("DATABASE_URL", &c.DatabaseURL)

	str("REDIS_ADDR", &c.Redis.Addr)
	str("REDIS_PASSWORD", &c.Redis.Password)
	num("REDIS_DB", &c.Redis.DB)
	dur("REDIS_TTL", &c.Redis.TTL)

	str("S3_BUCKET", &c.S3.Bucket)
	str("S3_REGION", &c.S3.Region)
	str("S3_PREFIX", &c.S3.Prefix)
	str("S3_ENDPOINT", &c.S3.Endpoint)

	str("HTTP_ADDR", &c.HTTPAddr)
	str("LOG_LEVEL", &c.LogLevel)

	return errors.Join(errs...)
}

// parseDuration accepts Go durations ("30s", "1h") and bare seconds ("3600").
func parseDuration(v string) (time.Duration, error) {
	v = strings.TrimSpace(v)
	if secs, err := strconv.ParseFloat(v, 64); err == nil {
		return time.Duration(secs * float64(time.Second)), nil
	}
	return time.ParseDuration(v)
}

// Validate rejects settings the pipeline cannot run with.
func (c *Config) Validate() error {
	var errs []error
	positive := func(name string, v int) {
		if v <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive, got %d", name, v))
		}
	}
	positive("CACHE_MAX_SIZE", c.CacheMaxSize)
	positive("MAX_BATCH_SIZE", c.MaxBatchSize)
	positive("CONCURRENCY_LIMIT", c.ConcurrencyLimit)
	if c.SimilarityThreshold < 0 || c.SimilarityThreshold > 64 {
		errs = append(errs, fmt.Errorf("SIMILARITY_THRESHOLD must be between 0 and 64, got %d", c.SimilarityThreshold))
	}
	if c.CacheTTL <= 0 {
		errs = append(errs, fmt.Errorf("CACHE_TTL must be positive, got %s", c.CacheTTL))
	}
	if c.APITimeout <= 0 {
		errs = append(errs, fmt.Errorf("API_TIMEOUT must be positive, got %s", c.APITimeout))
	}
	if c.MaxRetries < 0 {
		errs = append(errs, fmt.Errorf("API_MAX_RETRIES must not be negative, got %d", c.MaxRetries))
	}
	if c.BatchDeadline < 0 {
		errs = append(errs, fmt.Errorf("BATCH_DEADLINE must not be negative, got %s", c.BatchDeadline))
	}
	if e := c.Google.ShareEmail; e != "" && !ValidEmail(e) {
		errs = append(errs, fmt.Errorf("GOOGLE_SHARE_EMAIL %q is not a valid address", e))
	}
	if _, err := c.SlogLevel(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// ValidEmail reports whether addr looks like a deliverable address.
func ValidEmail(addr string) bool {
	return emailPattern.MatchString(addr)
}

// SlogLevel parses LogLevel.
func (c *Config) SlogLevel() (slog.Level, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, fmt.Errorf("LOG_LEVEL: %w", err)
	}
	return lvl, nil
}

// Pipeline maps the tuning settings onto a lookbook.Config. Services and
// stores are wired by the caller.
func (c *Config) Pipeline() lookbook.Config {
	maxRetries := c.MaxRetries
	if maxRetries == 0 {
		// lookbook.Config treats 0 as "use the default".
		maxRetries = -1
	}
	threshold := c.SimilarityThreshold
	if threshold == 0 {
		// Only identical fingerprints match.
		threshold = -1
	}
	return lookbook.Config{
		SimilarityThreshold: threshold,
		CacheTTL:            c.CacheTTL,
		CacheMaxSize:        c.CacheMaxSize,
		MaxBatchSize:        c.MaxBatchSize,
		ConcurrencyLimit:    c.ConcurrencyLimit,
		RateLimit:           c.RateLimit,
		APITimeout:          c.APITimeout,
		MaxRetries:          maxRetries,
		MinImageWidth:       c.MinImageWidth,
		DefaultTone:         c.DefaultTone,
		DefaultPlatform:     c.DefaultPlatform,
	}
}
