package lookbook

import (
	"context"
	"errors"
	"net/http"
	"time"
)

// Defaults applied by Config.defaults.
const (
	DefaultSimilarityThreshold = 5
	DefaultCacheTTL            = time.Hour
	DefaultCacheMaxSize        = 1000
	DefaultMaxBatchSize        = 3
	DefaultConcurrencyLimit    = 3
	DefaultRateLimit           = 60 // requests per minute
	DefaultAPITimeout          = 30 * time.Second
	DefaultMaxRetries          = 3
	DefaultRetryBackoff        = 500 * time.Millisecond
	DefaultTone                = "Trendy"
	DefaultPlatform            = "Instagram"
)

// ImageInput represents an image for a multimodal model call.
type ImageInput struct {
	URL      string // data: URI or HTTP URL
	MIMEType string // e.g. "image/jpeg"
}

// VisionService extracts fashion attributes from an image. The reply is raw
// model text; parsing happens in ParseVisionRecord.
type VisionService interface {
	Analyze(ctx context.Context, image ImageInput, prompt string) (string, error)
}

// ContentService turns a rendered prompt into raw model text.
type ContentService interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// RowStore persists flat rows and lists identity values already stored.
type RowStore interface {
	AppendRows(ctx context.Context, rows []Row) error
	ListExisting(ctx context.Context) ([]string, error)
}

// Notifier delivers a rendered batch summary to an address.
type Notifier interface {
	Notify(ctx context.Context, address, summary string) error
}

// ReportArchiver keeps a copy of finished reports.
type ReportArchiver interface {
	Archive(ctx context.Context, report *BatchReport) error
}

// Config holds all dependencies injected by the consumer.
type Config struct {
	Vision   VisionService  // required
	Content  ContentService // required
	Store    RowStore       // optional: nil = no persistence, no restart cross-check
	Notifier Notifier       // optional
	Archiver ReportArchiver // optional

	// Cache and Limiter are process-wide. When nil, New builds them from the
	// settings below; pass shared instances to reuse them across pipelines.
	Cache   *HashCache
	Limiter *RateLimiter

	StealthClient *http.Client // optional: TLS-fingerprinted client for downloads
	HTTPClient    *http.Client // optional: default http client (nil = http.DefaultClient)
	UserAgent     string       // default: "Mozilla/5.0 (compatible; go-lookbook/1.0)"
	MaxImageBytes int64        // default: 10MB
	MinImageWidth int          // reject narrower images; 0 = no check

	SimilarityThreshold int           // max Hamming distance for a near duplicate, default 5; negative = identical only
	CacheTTL            time.Duration // default 1h
	CacheMaxSize        int           // default 1000
	MaxBatchSize        int           // default 3
	ConcurrencyLimit    int           // default 3
	RateLimit           int           // requests per minute, default 60; negative = unlimited
	APITimeout          time.Duration // per external call, default 30s
	MaxRetries          int           // retries after the first attempt, default 3; negative = none
	RetryBackoff        time.Duration // first backoff step, default 500ms

	// VisionPrompt and ContentPrompt override DefaultVisionPrompt and
	// DefaultContentPrompt.
	VisionPrompt  string
	ContentPrompt string

	DefaultTone     string // default "Trendy"
	DefaultPlatform string // default "Instagram"

	// Optional callbacks for metrics/logging.
	OnItem  func(ItemEvent)
	OnCall  func(CallEvent)
	OnPanic func(tag string, r any)
}

// ItemEvent is emitted once per finished batch item.
type ItemEvent struct {
	BatchID  string
	Index    int
	URL      string
	Outcome  Outcome
	Kind     ErrorKind
	Verdict  VerdictKind
	Duration time.Duration
}

// CallEvent is emitted once per external call attempt.
type CallEvent struct {
	Stage    string // "fetch", "vision", "content"
	Attempt  int
	Err      error
	Duration time.Duration
}

// defaults fills zero-value fields with sensible defaults.
func (c *Config) defaults() {
	if c.UserAgent == "" {
		c.UserAgent = "Mozilla/5.0 (compatible; go-lookbook/1.0)"
	}
	if c.HTTPClient == nil {
		c.HTTPClient = http.DefaultClient
	}
	if c.MaxImageBytes <= 0 {
		c.MaxImageBytes = defaultMaxBytes
	}
	if c.SimilarityThreshold == 0 {
		c.SimilarityThreshold = DefaultSimilarityThreshold
	}
	if c.CacheTTL <= 0 {
		c.CacheTTL = DefaultCacheTTL
	}
	if c.CacheMaxSize <= 0 {
		c.CacheMaxSize = DefaultCacheMaxSize
	}
	if c.MaxBatchSize <= 0 {
		c.MaxBatchSize = DefaultMaxBatchSize
	}
	if c.ConcurrencyLimit <= 0 {
		c.ConcurrencyLimit = DefaultConcurrencyLimit
	}
	if c.RateLimit == 0 {
		c.RateLimit = DefaultRateLimit
	}
	if c.APITimeout <= 0 {
		c.APITimeout = DefaultAPITimeout
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = DefaultMaxRetries
	}
	if c.RetryBackoff <= 0 {
		c.RetryBackoff = DefaultRetryBackoff
	}
	if c.VisionPrompt == "" {
		c.VisionPrompt = DefaultVisionPrompt
	}
	if c.ContentPrompt == "" {
		c.ContentPrompt = DefaultContentPrompt
	}
	if c.DefaultTone == "" {
		c.DefaultTone = DefaultTone
	}
	if c.DefaultPlatform == "" {
		c.DefaultPlatform = DefaultPlatform
	}
}

// Pipeline wires the resolver, the orchestrator and the batch controller
// around one shared cache and rate limiter.
type Pipeline struct {
	cfg          Config
	cache        *HashCache
	limiter      *RateLimiter
	resolver     *Resolver
	orchestrator *Orchestrator
}

// New validates cfg and builds a Pipeline. The caller owns the returned
// pipeline and must Close it at shutdown.
func New(cfg Config) (*Pipeline, error) {
	if cfg.Vision == nil {
		return nil, errors.New("lookbook: vision service is required")
	}
	if cfg.Content == nil {
		return nil, errors.New("lookbook: content service is required")
	}
	cfg.defaults()

	cache := cfg.Cache
	if cache == nil {
		cache = NewHashCache(HashCacheOptions{TTL: cfg.CacheTTL, MaxSize: cfg.CacheMaxSize})
	}
	limiter := cfg.Limiter
	if limiter == nil {
		limiter = NewRateLimiter(cfg.RateLimit)
	}

	p := &Pipeline{cfg: cfg, cache: cache, limiter: limiter}
	p.resolver = NewResolver(cache, FetcherFunc(p.fetch), max(cfg.SimilarityThreshold, 0))
	p.resolver.MinWidth = cfg.MinImageWidth
	p.orchestrator = &Orchestrator{
		Vision:        cfg.Vision,
		Content:       cfg.Content,
		Limiter:       limiter,
		Timeout:       cfg.APITimeout,
		MaxRetries:    max(cfg.MaxRetries, 0),
		Backoff:       cfg.RetryBackoff,
		VisionPrompt:  cfg.VisionPrompt,
		ContentPrompt: cfg.ContentPrompt,
		OnCall:        cfg.OnCall,
	}
	return p, nil
}

// Cache returns the pipeline's hash cache.
func (p *Pipeline) Cache() *HashCache { return p.cache }

// Close releases the cache. The pipeline must not be used afterwards.
func (p *Pipeline) Close() error {
	return p.cache.Close()
}

// fetch downloads candidate image bytes under the shared rate limit.
func (p *Pipeline) fetch(ctx context.Context, url string) (*DownloadResult, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	start := time.Now()
	res, err := p.cfg.Download(ctx, url, DownloadOpts{
		MaxBytes: p.cfg.MaxImageBytes,
		Timeout:  p.cfg.APITimeout,
	})
	if p.cfg.OnCall != nil {
		p.cfg.OnCall(CallEvent{Stage: "fetch", Attempt: 1, Err: err, Duration: time.Since(start)})
	}
	return res, err
}
