package lookbook

import (
	"context"
	"errors"
	"fmt"
)

// VerdictKind classifies an incoming image against what was already processed.
// The zero value means the request never reached resolution.
type VerdictKind string

const (
	VerdictNew            VerdictKind = "NEW"
	VerdictExactDuplicate VerdictKind = "EXACT_DUPLICATE"
	VerdictNearDuplicate  VerdictKind = "NEAR_DUPLICATE"
)

// Verdict is the resolver's decision. Of and Distance are set for duplicates.
type Verdict struct {
	Kind     VerdictKind `json:"kind,omitempty"`
	Of       string      `json:"of,omitempty"`
	Distance int         `json:"distance"`
}

// IsDuplicate reports whether the verdict skips further processing.
func (v Verdict) IsDuplicate() bool {
	return v.Kind == VerdictExactDuplicate || v.Kind == VerdictNearDuplicate
}

// Resolution carries what the batch controller needs after a NEW verdict:
// the fingerprint to insert once content succeeds and the fetched image.
type Resolution struct {
	Verdict     Verdict
	Fingerprint Fingerprint
	Image       *DownloadResult
}

// KnownSet holds normalized URLs already persisted by the row store.
type KnownSet map[string]struct{}

// NewKnownSet normalizes urls into a set. Values that fail normalization are
// kept verbatim.
func NewKnownSet(urls []string) KnownSet {
	set := make(KnownSet, len(urls))
	for _, u := range urls {
		if n, err := Normalize(u); err == nil {
			set[n] = struct{}{}
			continue
		}
		set[u] = struct{}{}
	}
	return set
}

// Has reports whether url is in the set. A nil set is empty.
func (k KnownSet) Has(url string) bool {
	_, ok := k[url]
	return ok
}

// Fetcher downloads image bytes.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (*DownloadResult, error)
}

// FetcherFunc adapts a function to Fetcher.
type FetcherFunc func(ctx context.Context, url string) (*DownloadResult, error)

// Fetch calls f.
func (f FetcherFunc) Fetch(ctx context.Context, url string) (*DownloadResult, error) {
	return f(ctx, url)
}

// Resolver classifies requests as new, exact duplicates or near duplicates.
type Resolver struct {
	cache     *HashCache
	fetcher   Fetcher
	threshold int

	// MinWidth rejects fetched images narrower than this many pixels.
	MinWidth int
}

// NewResolver returns a Resolver. threshold is the max Hamming distance that
// still counts as a near duplicate.
func NewResolver(cache *HashCache, fetcher Fetcher, threshold int) *Resolver {
	return &Resolver{cache: cache, fetcher: fetcher, threshold: threshold}
}

// Resolve checks the exact URL identity against the cache and known, then
// fetches and fingerprints the image for a near-duplicate lookup. Resolve
// never inserts; the caller does that after the content stage succeeds.
func (r *Resolver) Resolve(ctx context.Context, req ImageRequest, known KnownSet) (Resolution, error) {
	url := req.NormalizedURL
	if _, ok := r.cache.Contains(url); ok {
		return Resolution{Verdict: Verdict{Kind: VerdictExactDuplicate, Of: url}}, nil
	}
	if known.Has(url) {
		return Resolution{Verdict: Verdict{Kind: VerdictExactDuplicate, Of: url}}, nil
	}

	img, err := r.fetcher.Fetch(ctx, url)
	if err != nil {
		if ctx.Err() != nil {
			return Resolution{}, fmt.Errorf("fetch %s: %w: %w", url, ErrTimeout, err)
		}
		if !errors.Is(err, ErrImageUnreadable) {
			err = fmt.Errorf("%w: %w", ErrImageUnreadable, err)
		}
		return Resolution{}, fmt.Errorf("fetch %s: %w", url, err)
	}
	if _, err := ValidateImage(img.Data, r.MinWidth); err != nil {
		return Resolution{}, fmt.Errorf("validate %s: %w", url, err)
	}
	fp, err := ComputeFingerprint(img.Data)
	if err != nil {
		return Resolution{}, fmt.Errorf("fingerprint %s: %w", url, err)
	}

	if m, ok := r.cache.Lookup(fp, r.threshold); ok {
		return Resolution{
			Verdict:     Verdict{Kind: VerdictNearDuplicate, Of: m.NormalizedURL, Distance: m.Distance},
			Fingerprint: fp,
		}, nil
	}
	return Resolution{Verdict: Verdict{Kind: VerdictNew}, Fingerprint: fp, Image: img}, nil
}
