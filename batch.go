package lookbook

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

// BatchOptions configures one batch run.
type BatchOptions struct {
	ContentOptions
	// Deadline bounds the whole batch. Items still pending or in flight when
	// it passes fail with ErrTimeout. Zero means no deadline.
	Deadline time.Duration
}

// RunBatch normalizes rawURLs and runs them as one batch.
func (p *Pipeline) RunBatch(ctx context.Context, rawURLs []string, opts BatchOptions) (*BatchReport, error) {
	reqs := make([]ImageRequest, len(rawURLs))
	for i, raw := range rawURLs {
		reqs[i] = ImageRequest{RawURL: raw}
	}
	return p.Run(ctx, reqs, opts)
}

// Run processes reqs concurrently, at most ConcurrencyLimit at a time, and
// returns the report in submission order. Requests without a NormalizedURL
// are normalized first. A batch over MaxBatchSize fails with ErrBatchTooLarge
// before any work starts. Item failures are recorded on the item; only
// ErrCacheCorruption fails the whole call.
func (p *Pipeline) Run(ctx context.Context, reqs []ImageRequest, opts BatchOptions) (*BatchReport, error) {
	if len(reqs) > p.cfg.MaxBatchSize {
		return nil, fmt.Errorf("%w: %d items, max %d", ErrBatchTooLarge, len(reqs), p.cfg.MaxBatchSize)
	}
	if opts.Tone == "" {
		opts.Tone = p.cfg.DefaultTone
	}
	if opts.Platform == "" {
		opts.Platform = p.cfg.DefaultPlatform
	}

	report := &BatchReport{
		ID:        uuid.NewString(),
		StartedAt: time.Now(),
		Options:   opts.ContentOptions,
		Items:     make([]BatchItemResult, len(reqs)),
	}

	if opts.Deadline > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Deadline)
		defer cancel()
	}

	known := p.loadKnown(ctx)
	sem := semaphore.NewWeighted(int64(p.cfg.ConcurrencyLimit))
	g, gctx := errgroup.WithContext(ctx)
	firstSeen := make(map[string]int, len(reqs))

	for i, req := range reqs {
		item := &report.Items[i]
		item.Index = i
		item.Request = req

		if req.NormalizedURL == "" {
			norm, err := NewImageRequest(req.RawURL)
			item.Request = norm
			if err != nil {
				item.fail(err)
				p.emitItem(report.ID, item, 0)
				continue
			}
		}

		url := item.Request.NormalizedURL
		if j, ok := firstSeen[url]; ok {
			item.Verdict = Verdict{Kind: VerdictExactDuplicate, Of: url}
			slog.Debug("lookbook: duplicate within batch", "batch", report.ID, "index", i, "first", j, "url", url)
			p.emitItem(report.ID, item, 0)
			continue
		}
		firstSeen[url] = i

		g.Go(func() error {
			return p.runItem(gctx, sem, report.ID, item, known, opts.ContentOptions)
		})
	}

	if err := g.Wait(); err != nil {
		slog.Error("lookbook: batch aborted", "batch", report.ID, "error", err)
		return nil, err
	}

	report.FinishedAt = time.Now()
	report.tally()
	slog.Info("lookbook: batch completed",
		"batch", report.ID,
		"successful", report.Processed,
		"total", len(report.Items),
		"skipped", report.Skipped,
		"failed", report.Failed,
		"duration", report.FinishedAt.Sub(report.StartedAt))
	return report, nil
}

// runItem drives one item to a terminal state. It returns an error only for
// ErrCacheCorruption, which cancels the rest of the batch.
func (p *Pipeline) runItem(ctx context.Context, sem *semaphore.Weighted, batchID string, item *BatchItemResult, known KnownSet, opts ContentOptions) (err error) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			if p.cfg.OnPanic != nil {
				p.cfg.OnPanic("batchItem", r)
			}
			item.fail(fmt.Errorf("panic: %v", r))
			err = nil
		}
		p.emitItem(batchID, item, time.Since(start))
	}()

	if err := sem.Acquire(ctx, 1); err != nil {
		item.fail(fmt.Errorf("%w: waiting for a worker: %w", ErrTimeout, err))
		return nil
	}
	defer sem.Release(1)

	res, err := p.resolver.Resolve(ctx, item.Request, known)
	if err != nil {
		item.fail(err)
		return nil
	}
	item.Verdict = res.Verdict
	if res.Verdict.IsDuplicate() {
		return nil
	}

	item.Metadata = ExtractImageMetadata(res.Image.Data)
	input, err := VisionPreview(res.Image.Data)
	if err != nil {
		slog.Debug("lookbook: preview failed, sending url", "url", item.Request.NormalizedURL, "error", err)
		input = ImageInput{URL: item.Request.NormalizedURL, MIMEType: res.Image.MIMEType}
	}

	vision, content, err := p.orchestrator.Process(ctx, item.Request, input, opts)
	if err != nil {
		item.fail(err)
		return nil
	}

	ref := fmt.Sprintf("%s/%d", batchID, item.Index)
	if err := p.cache.Insert(item.Request.NormalizedURL, res.Fingerprint, ref); err != nil {
		if errors.Is(err, ErrCacheCorruption) {
			item.fail(err)
			return err
		}
		slog.Warn("lookbook: cache insert failed", "url", item.Request.NormalizedURL, "error", err)
	}

	item.Vision = &vision
	item.Content = &content
	item.GeneratedAt = time.Now()
	return nil
}

// loadKnown lists identities already in the row store. Failures are logged
// and the batch continues with the in-process cache only.
func (p *Pipeline) loadKnown(ctx context.Context) KnownSet {
	if p.cfg.Store == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, p.cfg.APITimeout)
	defer cancel()

	if err := p.limiter.Wait(ctx); err != nil {
		slog.Warn("lookbook: skipping stored rows check", "error", err)
		return nil
	}
	urls, err := p.cfg.Store.ListExisting(ctx)
	if err != nil {
		slog.Warn("lookbook: listing stored rows failed", "error", err)
		return nil
	}
	return NewKnownSet(urls)
}

func (p *Pipeline) emitItem(batchID string, item *BatchItemResult, d time.Duration) {
	if p.cfg.OnItem == nil {
		return
	}
	ev := ItemEvent{
		BatchID:  batchID,
		Index:    item.Index,
		URL:      item.Request.NormalizedURL,
		Outcome:  item.Outcome(),
		Verdict:  item.Verdict.Kind,
		Duration: d,
	}
	if item.Error != nil {
		ev.Kind = item.Error.Kind
	}
	p.cfg.OnItem(ev)
}
