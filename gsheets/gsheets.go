// Package gsheets stores batch rows in a Google Sheet and shares the sheet
// through Google Drive.
package gsheets

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"slices"
	"strings"
	"sync"

	"golang.org/x/oauth2/google"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"

	"github.com/anatolykoptev/go-lookbook"
)

// DefaultSheet is the tab rows are written to when none is configured.
const DefaultSheet = "Sheet1"

// ClientOptions reads a service account key file and returns client options
// authorized for the Sheets and Drive scopes.
func ClientOptions(ctx context.Context, credentialsFile string) ([]option.ClientOption, error) {
	data, err := os.ReadFile(credentialsFile)
	if err != nil {
		return nil, fmt.Errorf("unable to read service account file: %w", err)
	}
	cfg, err := google.JWTConfigFromJSON(data, sheets.SpreadsheetsScope, drive.DriveScope)
	if err != nil {
		return nil, fmt.Errorf("unable to parse service account: %w", err)
	}
	return []option.ClientOption{option.WithHTTPClient(cfg.Client(ctx))}, nil
}

// Store is a lookbook.RowStore backed by one sheet tab. Columns follow
// lookbook.RowColumns; the header row is written on first append when the
// tab is empty.
type Store struct {
	values        *sheets.SpreadsheetsValuesService
	spreadsheetID string
	sheet         string

	mu        sync.Mutex
	hasHeader bool
}

var _ lookbook.RowStore = (*Store)(nil)

// NewStore returns a Store for spreadsheetID. An empty sheet means DefaultSheet.
func NewStore(ctx context.Context, spreadsheetID, sheet string, opts ...option.ClientOption) (*Store, error) {
	if spreadsheetID == "" {
		return nil, errors.New("gsheets: spreadsheet id is required")
	}
	if sheet == "" {
		sheet = DefaultSheet
	}
	svc, err := sheets.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("unable to create Sheets service: %w", err)
	}
	return &Store{values: svc.Spreadsheets.Values, spreadsheetID: spreadsheetID, sheet: sheet}, nil
}

// AppendRows appends rows below the existing data.
func (s *Store) AppendRows(ctx context.Context, rows []lookbook.Row) error {
	if len(rows) == 0 {
		return nil
	}
	if err := s.ensureHeader(ctx); err != nil {
		return err
	}

	vr := &sheets.ValueRange{Values: make([][]any, 0, len(rows))}
	for _, row := range rows {
		vr.Values = append(vr.Values, cells(row.Values()))
	}
	resp, err := s.values.Append(s.spreadsheetID, s.a1(columnRange()), vr).
		ValueInputOption("RAW").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).
		Do()
	if err != nil {
		return fmt.Errorf("append %d rows to %s: %w", len(rows), s.sheet, err)
	}
	if resp.Updates != nil {
		slog.Debug("lookbook: sheet rows appended", "sheet", s.sheet, "range", resp.Updates.UpdatedRange, "rows", resp.Updates.UpdatedRows)
	}
	return nil
}

// ListExisting returns the non-empty values of the identity column, header
// excluded.
func (s *Store) ListExisting(ctx context.Context) ([]string, error) {
	col := columnLetter(identityIndex())
	resp, err := s.values.Get(s.spreadsheetID, s.a1(col+":"+col)).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("read %s!%s: %w", s.sheet, col, err)
	}
	var out []string
	for i, row := range resp.Values {
		if len(row) == 0 {
			continue
		}
		v := strings.TrimSpace(fmt.Sprint(row[0]))
		if v == "" || (i == 0 && v == lookbook.IdentityColumn) {
			continue
		}
		out = append(out, v)
	}
	return out, nil
}

func (s *Store) ensureHeader(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.hasHeader {
		return nil
	}

	last := columnLetter(len(lookbook.RowColumns) - 1)
	headerRange := s.a1("A1:" + last + "1")
	resp, err := s.values.Get(s.spreadsheetID, headerRange).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("read header of %s: %w", s.sheet, err)
	}
	if len(resp.Values) == 0 || len(resp.Values[0]) == 0 {
		vr := &sheets.ValueRange{Values: [][]any{cells(lookbook.RowColumns)}}
		if _, err := s.values.Update(s.spreadsheetID, headerRange, vr).
			ValueInputOption("RAW").
			Context(ctx).
			Do(); err != nil {
			return fmt.Errorf("write header of %s: %w", s.sheet, err)
		}
		slog.Info("lookbook: sheet header written", "sheet", s.sheet)
	}
	s.hasHeader = true
	return nil
}

// a1 qualifies cells with the quoted sheet name.
func (s *Store) a1(cells string) string {
	return "'" + strings.ReplaceAll(s.sheet, "'", "''") + "'!" + cells
}

func columnRange() string {
	last := columnLetter(len(lookbook.RowColumns) - 1)
	return "A:" + last
}

func identityIndex() int {
	return slices.Index(lookbook.RowColumns, lookbook.IdentityColumn)
}

// columnLetter converts a zero-based index to an A1 column name.
func columnLetter(i int) string {
	name := ""
	for i >= 0 {
		name = string(rune('A'+i%26)) + name
		i = i/26 - 1
	}
	return name
}

func cells(vals []string) []any {
	out := make([]any, len(vals))
	for i, v := range vals {
		out[i] = v
	}
	return out
}

// Notifier shares the spreadsheet with an address as a writer. Drive sends
// the invitation mail with the batch summary as its message.
type Notifier struct {
	permissions   *drive.PermissionsService
	spreadsheetID string
}

var _ lookbook.Notifier = (*Notifier)(nil)

// NewNotifier returns a Notifier for spreadsheetID.
func NewNotifier(ctx context.Context, spreadsheetID string, opts ...option.ClientOption) (*Notifier, error) {
	if spreadsheetID == "" {
		return nil, errors.New("gsheets: spreadsheet id is required")
	}
	svc, err := drive.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("unable to create Drive service: %w", err)
	}
	return &Notifier{permissions: svc.Permissions, spreadsheetID: spreadsheetID}, nil
}

// Notify grants address write access and mails it summary.
func (n *Notifier) Notify(ctx context.Context, address, summary string) error {
	perm := &drive.Permission{Type: "user", Role: "writer", EmailAddress: address}
	_, err := n.permissions.Create(n.spreadsheetID, perm).
		SendNotificationEmail(true).
		EmailMessage(summary).
		Context(ctx).
		Do()
	if err != nil {
		return fmt.Errorf("share spreadsheet with %s: %w", address, err)
	}
	slog.Info("lookbook: spreadsheet shared", "address", address)
	return nil
}
