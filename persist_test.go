package lookbook

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
)

type memStore struct {
	mu        sync.Mutex
	existing  []string
	rows      []Row
	listErr   error
	appendErr error
}

func (m *memStore) AppendRows(_ context.Context, rows []Row) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.appendErr != nil {
		return m.appendErr
	}
	m.rows = append(m.rows, rows...)
	return nil
}

func (m *memStore) ListExisting(context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.existing, m.listErr
}

type recordingNotifier struct {
	address, summary string
	err              error
}

func (n *recordingNotifier) Notify(_ context.Context, address, summary string) error {
	n.address, n.summary = address, summary
	return n.err
}

type recordingArchiver struct {
	reports []*BatchReport
}

func (a *recordingArchiver) Archive(_ context.Context, r *BatchReport) error {
	a.reports = append(a.reports, r)
	return nil
}

func TestRunBatch_RowStoreCrossCheck(t *testing.T) {
	t.Parallel()

	ls := newLookServer(t)
	store := &memStore{existing: []string{IdentityColumn, ls.url("/a.png")}}
	v := newKeyedVision(ls)
	pl := newTestPipeline(t, ls, v, &styleContent{}, func(c *Config) { c.Store = store })

	report, err := pl.RunBatch(context.Background(), []string{ls.url("/a.png"), ls.url("/b.png")}, BatchOptions{})
	if err != nil {
		t.Fatalf("RunBatch: %v", err)
	}
	if got := report.Items[0].Verdict.Kind; got != VerdictExactDuplicate {
		t.Errorf("stored url verdict = %q, want EXACT_DUPLICATE", got)
	}
	if got := ls.hits.Load(); got != 1 {
		t.Errorf("image fetches = %d, want 1", got)
	}
}

func TestRunBatch_RowStoreListFailureIsNotFatal(t *testing.T) {
	t.Parallel()

	ls := newLookServer(t)
	store := &memStore{listErr: errors.New("quota exceeded")}
	pl := newTestPipeline(t, ls, newKeyedVision(ls), &styleContent{}, func(c *Config) { c.Store = store })

	report, err := pl.RunBatch(context.Background(), []string{ls.url("/a.png")}, BatchOptions{})
	if err != nil {
		t.Fatalf("RunBatch: %v", err)
	}
	if report.Processed != 1 {
		t.Errorf("Processed = %d, want 1", report.Processed)
	}
}

func TestPersist(t *testing.T) {
	t.Parallel()

	ls := newLookServer(t)
	store := &memStore{}
	notifier := &recordingNotifier{}
	archiver := &recordingArchiver{}
	pl := newTestPipeline(t, ls, newKeyedVision(ls), &styleContent{}, func(c *Config) {
		c.Store = store
		c.Notifier = notifier
		c.Archiver = archiver
	})
	ctx := context.Background()

	report, err := pl.RunBatch(ctx, []string{ls.url("/a.png"), ls.url("/a.png"), ls.url("/b.png")},
		BatchOptions{ContentOptions: ContentOptions{Tone: "Playful"}})
	if err != nil {
		t.Fatalf("RunBatch: %v", err)
	}
	if err := pl.Persist(ctx, report, "owner@boutique.in"); err != nil {
		t.Fatalf("Persist: %v", err)
	}

	if len(store.rows) != 2 {
		t.Fatalf("stored %d rows, want 2 (duplicate skipped)", len(store.rows))
	}
	if got := store.rows[0][IdentityColumn]; got != ls.url("/a.png") {
		t.Errorf("row 0 %s = %q", IdentityColumn, got)
	}
	if got := store.rows[0]["Platform"]; got != DefaultPlatform {
		t.Errorf("row 0 Platform = %q, want default %q", got, DefaultPlatform)
	}
	if notifier.address != "owner@boutique.in" {
		t.Errorf("notified %q", notifier.address)
	}
	if !strings.Contains(notifier.summary, "2/3 successful, 1 skipped, 0 failed") {
		t.Errorf("summary = %q", notifier.summary)
	}
	if len(archiver.reports) != 1 || archiver.reports[0].ID != report.ID {
		t.Errorf("archived %d reports", len(archiver.reports))
	}
	if report.Options.Tone != "Playful" {
		t.Errorf("Options.Tone = %q", report.Options.Tone)
	}
}

func TestPersist_StoreFailure(t *testing.T) {
	t.Parallel()

	ls := newLookServer(t)
	store := &memStore{appendErr: errors.New("sheet locked")}
	notifier := &recordingNotifier{err: errors.New("smtp down")}
	pl := newTestPipeline(t, ls, newKeyedVision(ls), &styleContent{}, func(c *Config) {
		c.Store = store
		c.Notifier = notifier
	})
	ctx := context.Background()

	report, err := pl.RunBatch(ctx, []string{ls.url("/a.png")}, BatchOptions{})
	if err != nil {
		t.Fatalf("RunBatch: %v", err)
	}
	err = pl.Persist(ctx, report, "owner@boutique.in")
	if !errors.Is(err, ErrRowStore) {
		t.Errorf("Persist err = %v, want ErrRowStore", err)
	}
	if notifier.summary == "" {
		t.Error("notifier skipped after a store failure")
	}
}

func TestMultiStore(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	a := &memStore{existing: []string{"https://a.example/1.jpg", "https://a.example/2.jpg"}}
	b := &memStore{existing: []string{"https://a.example/2.jpg", "https://a.example/3.jpg"}}
	broken := &memStore{listErr: errors.New("down"), appendErr: errors.New("down")}

	got, err := MultiStore{a, broken, b}.ListExisting(ctx)
	if err != nil {
		t.Fatalf("ListExisting: %v", err)
	}
	if strings.Join(got, " ") != "https://a.example/1.jpg https://a.example/2.jpg https://a.example/3.jpg" {
		t.Errorf("ListExisting = %q", got)
	}

	if _, err := (MultiStore{broken}).ListExisting(ctx); err == nil {
		t.Error("expected error when every store fails")
	}

	rows := []Row{{IdentityColumn: "https://a.example/4.jpg"}}
	err = MultiStore{a, broken, b}.AppendRows(ctx, rows)
	if err == nil || !strings.Contains(err.Error(), "down") {
		t.Errorf("AppendRows err = %v, want joined failure", err)
	}
	if len(a.rows) != 1 || len(b.rows) != 1 {
		t.Errorf("healthy stores got %d and %d rows, want 1 each", len(a.rows), len(b.rows))
	}
}
