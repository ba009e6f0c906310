// Package openai implements lookbook.VisionService and lookbook.ContentService
// on top of an OpenAI-compatible chat completions API.
package openai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	goopenai "github.com/sashabaranov/go-openai"

	"github.com/anatolykoptev/go-lookbook"
)

const (
	defaultModel     = "gpt-4o"
	defaultMaxTokens = 1000
)

// Options configures a Client.
type Options struct {
	APIKey      string // required
	BaseURL     string // default: api.openai.com
	Model       string // default: gpt-4o
	MaxTokens   int    // default: 1000
	Temperature float32
	HTTPClient  *http.Client // optional
}

// Client sends single-turn chat completions. One Client serves one model; the
// binary builds one for vision and one for content.
type Client struct {
	api         *goopenai.Client
	model       string
	maxTokens   int
	temperature float32
}

var (
	_ lookbook.VisionService  = (*Client)(nil)
	_ lookbook.ContentService = (*Client)(nil)
)

// New returns a Client for opts.
func New(opts Options) (*Client, error) {
	if opts.APIKey == "" {
		return nil, errors.New("openai: api key is required")
	}
	cfg := goopenai.DefaultConfig(opts.APIKey)
	if opts.BaseURL != "" {
		cfg.BaseURL = strings.TrimRight(opts.BaseURL, "/")
	}
	if opts.HTTPClient != nil {
		cfg.HTTPClient = opts.HTTPClient
	}
	if opts.Model == "" {
		opts.Model = defaultModel
	}
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = defaultMaxTokens
	}
	return &Client{
		api:         goopenai.NewClientWithConfig(cfg),
		model:       opts.Model,
		maxTokens:   opts.MaxTokens,
		temperature: opts.Temperature,
	}, nil
}

// Analyze sends prompt and the image as one multimodal user message.
func (c *Client) Analyze(ctx context.Context, image lookbook.ImageInput, prompt string) (string, error) {
	if image.URL == "" {
		return "", &lookbook.ServiceError{
			Category: lookbook.CategoryMalformedInput,
			Err:      errors.New("empty image url"),
		}
	}
	msg := goopenai.ChatCompletionMessage{
		Role: goopenai.ChatMessageRoleUser,
		MultiContent: []goopenai.ChatMessagePart{
			{Type: goopenai.ChatMessagePartTypeText, Text: prompt},
			{
				Type: goopenai.ChatMessagePartTypeImageURL,
				ImageURL: &goopenai.ChatMessageImageURL{
					URL:    image.URL,
					Detail: goopenai.ImageURLDetailAuto,
				},
			},
		},
	}
	return c.complete(ctx, msg)
}

// Generate sends prompt as a plain user message.
func (c *Client) Generate(ctx context.Context, prompt string) (string, error) {
	return c.complete(ctx, goopenai.ChatCompletionMessage{
		Role:    goopenai.ChatMessageRoleUser,
		Content: prompt,
	})
}

func (c *Client) complete(ctx context.Context, msg goopenai.ChatCompletionMessage) (string, error) {
	resp, err := c.api.CreateChatCompletion(ctx, goopenai.ChatCompletionRequest{
		Model:       c.model,
		Messages:    []goopenai.ChatCompletionMessage{msg},
		MaxTokens:   c.maxTokens,
		Temperature: c.temperature,
	})
	if err != nil {
		return "", classify(err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("openai: %s returned no choices", c.model)
	}
	slog.Debug("lookbook: chat completion",
		"model", c.model,
		"prompt_tokens", resp.Usage.PromptTokens,
		"completion_tokens", resp.Usage.CompletionTokens)
	return resp.Choices[0].Message.Content, nil
}

// classify maps API failures onto retry categories. Errors without a status
// (network, ctx) pass through and count as transient.
func classify(err error) error {
	status := 0
	var apiErr *goopenai.APIError
	var reqErr *goopenai.RequestError
	switch {
	case errors.As(err, &apiErr):
		status = apiErr.HTTPStatusCode
	case errors.As(err, &reqErr):
		status = reqErr.HTTPStatusCode
	default:
		return err
	}
	return &lookbook.ServiceError{Category: categoryFor(status), StatusCode: status, Err: err}
}

func categoryFor(status int) lookbook.ErrorCategory {
	switch {
	case status == http.StatusUnauthorized, status == http.StatusForbidden:
		return lookbook.CategoryAuth
	case status == http.StatusTooManyRequests, status == http.StatusRequestTimeout, status >= 500:
		return lookbook.CategoryTransient
	case status >= 400:
		return lookbook.CategoryMalformedInput
	default:
		return lookbook.CategoryTransient
	}
}
