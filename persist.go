package lookbook

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// Persist appends the rows of processed items, sends the summary to
// notifyAddress (when set) and archives the report. Only row store failures
// are returned; notification and archive failures are logged.
func (p *Pipeline) Persist(ctx context.Context, report *BatchReport, notifyAddress string) error {
	var storeErr error
	if p.cfg.Store != nil {
		if rows := report.Rows(); len(rows) > 0 {
			if err := p.cfg.Store.AppendRows(ctx, rows); err != nil {
				storeErr = fmt.Errorf("%w: %w", ErrRowStore, err)
				slog.Error("lookbook: append rows failed", "batch", report.ID, "rows", len(rows), "error", err)
			} else {
				slog.Info("lookbook: rows stored", "batch", report.ID, "rows", len(rows))
			}
		}
	}

	if notifyAddress != "" && p.cfg.Notifier != nil {
		if err := p.cfg.Notifier.Notify(ctx, notifyAddress, report.Summary()); err != nil {
			slog.Warn("lookbook: notify failed", "batch", report.ID, "address", notifyAddress, "error", err)
		}
	}

	if p.cfg.Archiver != nil {
		if err := p.cfg.Archiver.Archive(ctx, report); err != nil {
			slog.Warn("lookbook: archive failed", "batch", report.ID, "error", err)
		}
	}
	return storeErr
}

// MultiStore fans rows out to several stores. ListExisting returns the union
// of every store that answered; it fails only when all of them fail.
type MultiStore []RowStore

// AppendRows writes to every store and joins their errors.
func (m MultiStore) AppendRows(ctx context.Context, rows []Row) error {
	var errs []error
	for _, s := range m {
		if err := s.AppendRows(ctx, rows); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// ListExisting merges the identities known to each store.
func (m MultiStore) ListExisting(ctx context.Context) ([]string, error) {
	seen := make(map[string]struct{})
	var (
		out  []string
		errs []error
	)
	for _, s := range m {
		urls, err := s.ListExisting(ctx)
		if err != nil {
			slog.Warn("lookbook: store listing failed", "error", err)
			errs = append(errs, err)
			continue
		}
		for _, u := range urls {
			if _, ok := seen[u]; !ok {
				seen[u] = struct{}{}
				out = append(out, u)
			}
		}
	}
	if len(m) > 0 && len(errs) == len(m) {
		return nil, errors.Join(errs...)
	}
	return out, nil
}
