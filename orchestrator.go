package lookbook

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Orchestrator runs the vision stage and then the content stage for one
// image. Stages never overlap for the same image.
type Orchestrator struct {
	Vision  VisionService
	Content ContentService
	Limiter *RateLimiter // nil = unlimited

	Timeout    time.Duration // per attempt
	MaxRetries int           // retries after the first attempt
	Backoff    time.Duration // first backoff step

	VisionPrompt  string
	ContentPrompt string

	OnCall func(CallEvent)
}

// Process analyzes image and writes copy for it. A vision failure wraps
// ErrVisionFailure and skips the content stage; a content failure wraps
// ErrContentFailure and still returns the vision record.
func (o *Orchestrator) Process(ctx context.Context, req ImageRequest, image ImageInput, opts ContentOptions) (VisionRecord, ContentRecord, error) {
	visionPrompt := o.VisionPrompt
	if visionPrompt == "" {
		visionPrompt = DefaultVisionPrompt
	}
	contentPrompt := o.ContentPrompt
	if contentPrompt == "" {
		contentPrompt = DefaultContentPrompt
	}

	var vision VisionRecord
	err := o.call(ctx, "vision", func(ctx context.Context) error {
		resp, err := o.Vision.Analyze(ctx, image, visionPrompt)
		if err != nil {
			return err
		}
		slog.Debug("lookbook: vision result", "url", req.NormalizedURL, "response", resp)
		vision, err = ParseVisionRecord(resp)
		return err
	})
	if err != nil {
		return VisionRecord{}, ContentRecord{}, fmt.Errorf("%w: %w", ErrVisionFailure, err)
	}

	prompt := RenderContentPrompt(contentPrompt, vision, opts)
	var content ContentRecord
	err = o.call(ctx, "content", func(ctx context.Context) error {
		resp, err := o.Content.Generate(ctx, prompt)
		if err != nil {
			return err
		}
		slog.Debug("lookbook: content result", "url", req.NormalizedURL, "response", resp)
		content, err = ParseContentRecord(resp, opts.Platform)
		return err
	})
	if err != nil {
		return vision, ContentRecord{}, fmt.Errorf("%w: %w", ErrContentFailure, err)
	}
	return vision, content, nil
}
