package lookbook

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// DownloadOpts configures an image download.
type DownloadOpts struct {
	MaxBytes  int64         // max response body size (default: 10MB)
	MinBytes  int           // reject if smaller (default: 0)
	Timeout   time.Duration // per-request timeout (default: 30s)
	UserAgent string        // override config user agent
}

const (
	defaultMaxBytes = 10 << 20 // 10MB
	defaultTimeout  = 30 * time.Second
)

// DownloadResult holds downloaded image data.
type DownloadResult struct {
	Data     []byte
	MIMEType string
}

// Download fetches an image from url. Tries cfg.StealthClient first (if set),
// falls back to cfg.HTTPClient. Every failure wraps ErrImageUnreadable; the
// error of the last client tried is reported.
func (cfg *Config) Download(ctx context.Context, url string, opts DownloadOpts) (*DownloadResult, error) {
	cfg.defaults()

	if opts.MaxBytes <= 0 {
		opts.MaxBytes = defaultMaxBytes
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	ua := opts.UserAgent
	if ua == "" {
		ua = cfg.UserAgent
	}

	// Try stealth client first.
	if cfg.StealthClient != nil {
		if r, err := fetchImageData(ctx, cfg.StealthClient, url, ua, opts); err == nil {
			return r, nil
		}
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: %w", ErrImageUnreadable, ctx.Err())
		}
	}

	// Fallback to regular client.
	r, err := fetchImageData(ctx, cfg.HTTPClient, url, ua, opts)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrImageUnreadable, err)
	}
	return r, nil
}

func fetchImageData(ctx context.Context, client *http.Client, imageURL, ua string, opts DownloadOpts) (*DownloadResult, error) {
	ctx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, imageURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", ua)
	req.Header.Set("Accept", "image/webp,image/apng,image/*,*/*;q=0.8")
	fromDrive := req.URL.Hostname() == "drive.google.com"
	if fromDrive {
		req.Header.Set("Referer", "https://drive.google.com/")
	}

	resp, err := client.Do(req) //nolint:gosec // G704: URL is operator-supplied
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	ct := resp.Header.Get("Content-Type")
	// Strip MIME parameters: "image/jpeg; charset=utf-8" → "image/jpeg"
	if idx := strings.IndexByte(ct, ';'); idx >= 0 {
		ct = strings.TrimSpace(ct[:idx])
	}
	// Private Drive files answer with the sign-in page instead of the bytes.
	if fromDrive && ct == "text/html" {
		return nil, errors.New("drive file is not publicly accessible")
	}
	// Drive and Dropbox direct links often answer with octet-stream; the
	// decoder decides for those.
	if !strings.HasPrefix(ct, "image/") && ct != "application/octet-stream" && ct != "" {
		return nil, fmt.Errorf("content type %q is not an image", ct)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, opts.MaxBytes+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > opts.MaxBytes {
		return nil, fmt.Errorf("image exceeds %d bytes", opts.MaxBytes)
	}
	if len(data) < opts.MinBytes {
		return nil, fmt.Errorf("image smaller than %d bytes", opts.MinBytes)
	}

	return &DownloadResult{Data: data, MIMEType: ct}, nil
}
