package lookbook

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"
)

const (
	validVisionReply  = "Here you go:\n```json\n" + `{"style":"Indo-western fusion","colors":["ivory","gold"],"materials":["raw silk"],"occasion":"festive","season":"winter","key_features":["mirror work"],"brand_style":"regal"}` + "\n```"
	validContentReply = `{"title":"Ivory Silk Kurta","description":"Raw silk with mirror work.","caption":"Festive ready","hashtags":["festive","#silk"],"alt_text":"Ivory kurta with gold mirror work","platform":"Instagram"}`
)

// scriptedVision answers each call with the next scripted reply.
type scriptedVision struct {
	mu      sync.Mutex
	calls   int
	replies []func(ctx context.Context, image ImageInput) (string, error)
}

func (s *scriptedVision) Analyze(ctx context.Context, image ImageInput, _ string) (string, error) {
	s.mu.Lock()
	i := s.calls
	s.calls++
	s.mu.Unlock()
	if i >= len(s.replies) {
		i = len(s.replies) - 1
	}
	return s.replies[i](ctx, image)
}

func (s *scriptedVision) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// scriptedContent answers each call with the next scripted reply.
type scriptedContent struct {
	mu      sync.Mutex
	calls   int
	prompts []string
	replies []func(ctx context.Context, prompt string) (string, error)
}

func (s *scriptedContent) Generate(ctx context.Context, prompt string) (string, error) {
	s.mu.Lock()
	i := s.calls
	s.calls++
	s.prompts = append(s.prompts, prompt)
	s.mu.Unlock()
	if i >= len(s.replies) {
		i = len(s.replies) - 1
	}
	return s.replies[i](ctx, prompt)
}

func (s *scriptedContent) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func reply(text string) func(context.Context, ImageInput) (string, error) {
	return func(context.Context, ImageInput) (string, error) { return text, nil }
}

func fail(err error) func(context.Context, ImageInput) (string, error) {
	return func(context.Context, ImageInput) (string, error) { return "", err }
}

func hang() func(context.Context, ImageInput) (string, error) {
	return func(ctx context.Context, _ ImageInput) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	}
}

func contentReply(text string) func(context.Context, string) (string, error) {
	return func(context.Context, string) (string, error) { return text, nil }
}

func newTestOrchestrator(v VisionService, c ContentService) *Orchestrator {
	return &Orchestrator{
		Vision:     v,
		Content:    c,
		Timeout:    time.Second,
		MaxRetries: 2,
		Backoff:    time.Millisecond,
	}
}

var testReq = ImageRequest{RawURL: "https://cdn.example.com/k.jpg", NormalizedURL: "https://cdn.example.com/k.jpg"}

func TestOrchestrator_Success(t *testing.T) {
	t.Parallel()

	v := &scriptedVision{replies: []func(context.Context, ImageInput) (string, error){reply(validVisionReply)}}
	c := &scriptedContent{replies: []func(context.Context, string) (string, error){contentReply(validContentReply)}}
	o := newTestOrchestrator(v, c)

	vision, content, err := o.Process(context.Background(), testReq, ImageInput{URL: testReq.NormalizedURL},
		ContentOptions{Tone: "Elegant", Platform: "Pinterest"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if vision.Style != "Indo-western fusion" {
		t.Errorf("Style = %q", vision.Style)
	}
	if content.Title != "Ivory Silk Kurta" {
		t.Errorf("Title = %q", content.Title)
	}
	if got := strings.Join(content.Hashtags, " "); got != "#festive #silk" {
		t.Errorf("Hashtags = %q, want %q", got, "#festive #silk")
	}

	prompt := c.prompts[0]
	for _, want := range []string{"Tone: Elegant", "Platform: Pinterest", "Style: Indo-western fusion", "Colors: ivory, gold"} {
		if !strings.Contains(prompt, want) {
			t.Errorf("content prompt missing %q:\n%s", want, prompt)
		}
	}
}

func TestOrchestrator_RetryPolicy(t *testing.T) {
	t.Parallel()

	transient := &ServiceError{Category: CategoryTransient, StatusCode: 429, Err: errors.New("rate limited")}
	auth := &ServiceError{Category: CategoryAuth, StatusCode: 401, Err: errors.New("bad key")}
	badInput := &ServiceError{Category: CategoryMalformedInput, StatusCode: 400, Err: errors.New("bad image")}

	tests := []struct {
		name        string
		replies     []func(context.Context, ImageInput) (string, error)
		wantCalls   int
		wantErr     []error
		wantKind    ErrorKind
		wantContent int
	}{
		{
			name:        "transient then success",
			replies:     []func(context.Context, ImageInput) (string, error){fail(transient), reply(validVisionReply)},
			wantCalls:   2,
			wantContent: 1,
		},
		{
			name:      "transient exhausts retries",
			replies:   []func(context.Context, ImageInput) (string, error){fail(transient)},
			wantCalls: 3,
			wantErr:   []error{ErrVisionFailure, transient},
			wantKind:  KindVisionFailure,
		},
		{
			name:      "auth is not retried",
			replies:   []func(context.Context, ImageInput) (string, error){fail(auth)},
			wantCalls: 1,
			wantErr:   []error{ErrVisionFailure, auth},
			wantKind:  KindVisionFailure,
		},
		{
			name:      "malformed input is not retried",
			replies:   []func(context.Context, ImageInput) (string, error){fail(badInput)},
			wantCalls: 1,
			wantErr:   []error{ErrVisionFailure},
			wantKind:  KindVisionFailure,
		},
		{
			name:        "garbage then valid",
			replies:     []func(context.Context, ImageInput) (string, error){reply("I cannot help with that"), reply(validVisionReply)},
			wantCalls:   2,
			wantContent: 1,
		},
		{
			name:      "garbage every time",
			replies:   []func(context.Context, ImageInput) (string, error){reply(`{"colors": ["red"]}`)},
			wantCalls: 3,
			wantErr:   []error{ErrVisionFailure, ErrMalformedModelOutput},
			wantKind:  KindMalformedModelOutput,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			v := &scriptedVision{replies: tc.replies}
			c := &scriptedContent{replies: []func(context.Context, string) (string, error){contentReply(validContentReply)}}
			o := newTestOrchestrator(v, c)

			_, _, err := o.Process(context.Background(), testReq, ImageInput{}, ContentOptions{Platform: "Instagram"})
			for _, want := range tc.wantErr {
				if !errors.Is(err, want) {
					t.Errorf("err = %v, want it to wrap %v", err, want)
				}
			}
			if tc.wantErr == nil && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got := KindOf(err); got != tc.wantKind {
				t.Errorf("KindOf = %q, want %q", got, tc.wantKind)
			}
			if got := v.Calls(); got != tc.wantCalls {
				t.Errorf("vision calls = %d, want %d", got, tc.wantCalls)
			}
			if got := c.Calls(); got != tc.wantContent {
				t.Errorf("content calls = %d, want %d", got, tc.wantContent)
			}
		})
	}
}

func TestOrchestrator_VisionTimeoutSkipsContent(t *testing.T) {
	t.Parallel()

	v := &scriptedVision{replies: []func(context.Context, ImageInput) (string, error){hang()}}
	c := &scriptedContent{replies: []func(context.Context, string) (string, error){contentReply(validContentReply)}}
	o := newTestOrchestrator(v, c)
	o.Timeout = 20 * time.Millisecond
	o.MaxRetries = 1

	_, _, err := o.Process(context.Background(), testReq, ImageInput{}, ContentOptions{})
	if !errors.Is(err, ErrVisionFailure) || !errors.Is(err, ErrTimeout) {
		t.Fatalf("err = %v, want VisionFailure and Timeout", err)
	}
	if got := KindOf(err); got != KindTimeout {
		t.Errorf("KindOf = %q, want Timeout", got)
	}
	if got := v.Calls(); got != 2 {
		t.Errorf("vision calls = %d, want 2", got)
	}
	if got := c.Calls(); got != 0 {
		t.Errorf("content calls = %d, want 0", got)
	}
}

func TestOrchestrator_ContentFailureKeepsVision(t *testing.T) {
	t.Parallel()

	v := &scriptedVision{replies: []func(context.Context, ImageInput) (string, error){reply(validVisionReply)}}
	c := &scriptedContent{replies: []func(context.Context, string) (string, error){
		func(context.Context, string) (string, error) {
			return "", &ServiceError{Category: CategoryAuth, Err: errors.New("revoked")}
		},
	}}
	o := newTestOrchestrator(v, c)

	vision, _, err := o.Process(context.Background(), testReq, ImageInput{}, ContentOptions{})
	if !errors.Is(err, ErrContentFailure) {
		t.Fatalf("err = %v, want ErrContentFailure", err)
	}
	if errors.Is(err, ErrVisionFailure) {
		t.Error("content failure must not report as vision failure")
	}
	if vision.Style == "" {
		t.Error("vision record dropped on content failure")
	}
}

func TestOrchestrator_ParentCancelStopsRetries(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	v := &scriptedVision{replies: []func(context.Context, ImageInput) (string, error){
		func(context.Context, ImageInput) (string, error) {
			cancel()
			return "", &ServiceError{Category: CategoryTransient, Err: errors.New("503")}
		},
	}}
	c := &scriptedContent{replies: []func(context.Context, string) (string, error){contentReply(validContentReply)}}
	o := newTestOrchestrator(v, c)

	_, _, err := o.Process(ctx, testReq, ImageInput{}, ContentOptions{})
	if KindOf(err) != KindTimeout {
		t.Errorf("KindOf(%v) = %q, want Timeout", err, KindOf(err))
	}
	if got := v.Calls(); got != 1 {
		t.Errorf("vision calls = %d, want 1", got)
	}
}

func TestBackoffDelay(t *testing.T) {
	t.Parallel()

	tests := []struct {
		retry int
		want  time.Duration
	}{
		{1, 500 * time.Millisecond},
		{2, time.Second},
		{3, 2 * time.Second},
		{5, 8 * time.Second},
		{10, 8 * time.Second},
	}
	for _, tc := range tests {
		if got := backoffDelay(500*time.Millisecond, tc.retry); got != tc.want {
			t.Errorf("backoffDelay(retry=%d) = %s, want %s", tc.retry, got, tc.want)
		}
	}
}
