package lookbook

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Outcome is the terminal state of one batch item.
type Outcome string

const (
	OutcomeProcessed Outcome = "processed"
	OutcomeSkipped   Outcome = "skipped"
	OutcomeFailed    Outcome = "failed"
)

// ErrorInfo describes why an item failed.
type ErrorInfo struct {
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`
}

// BatchItemResult is the outcome for one submitted URL. Error and the
// Vision/Content payload are never set together.
type BatchItemResult struct {
	Index       int            `json:"index"`
	Request     ImageRequest   `json:"request"`
	Verdict     Verdict        `json:"verdict"`
	Vision      *VisionRecord  `json:"vision,omitempty"`
	Content     *ContentRecord `json:"content,omitempty"`
	Metadata    *ImageMetadata `json:"metadata,omitempty"`
	Error       *ErrorInfo     `json:"error,omitempty"`
	GeneratedAt time.Time      `json:"generated_at,omitzero"`
}

// Outcome reports whether the item was processed, skipped as a duplicate or
// failed.
func (r *BatchItemResult) Outcome() Outcome {
	switch {
	case r.Error != nil:
		return OutcomeFailed
	case r.Verdict.IsDuplicate():
		return OutcomeSkipped
	default:
		return OutcomeProcessed
	}
}

func (r *BatchItemResult) fail(err error) {
	r.Vision = nil
	r.Content = nil
	r.Error = &ErrorInfo{Kind: KindOf(err), Message: err.Error()}
}

// BatchReport is the ordered result of one batch. It is not modified after
// RunBatch returns.
type BatchReport struct {
	ID         string            `json:"id"`
	StartedAt  time.Time         `json:"started_at"`
	FinishedAt time.Time         `json:"finished_at"`
	Options    ContentOptions    `json:"options"`
	Items      []BatchItemResult `json:"items"`
	Processed  int               `json:"processed"`
	Skipped    int               `json:"skipped"`
	Failed     int               `json:"failed"`
}

func (r *BatchReport) tally() {
	r.Processed, r.Skipped, r.Failed = 0, 0, 0
	for i := range r.Items {
		switch r.Items[i].Outcome() {
		case OutcomeProcessed:
			r.Processed++
		case OutcomeSkipped:
			r.Skipped++
		case OutcomeFailed:
			r.Failed++
		}
	}
}

// Row is one flat field mapping handed to a RowStore.
type Row map[string]string

// IdentityColumn holds the normalized image URL of a row.
const IdentityColumn = "Image URL"

// RowColumns is the column order used by spreadsheet-like stores.
var RowColumns = []string{
	"Title",
	"Description",
	"Caption",
	"Hashtags",
	"Alt Text",
	"Platform",
	IdentityColumn,
	"Key Features",
	"Generated At",
	"Vision Analysis",
	"Credit",
}

// Values returns the row's cells in RowColumns order.
func (r Row) Values() []string {
	out := make([]string, len(RowColumns))
	for i, col := range RowColumns {
		out[i] = r[col]
	}
	return out
}

// Rows returns one row per processed item, in submission order.
func (r *BatchReport) Rows() []Row {
	var rows []Row
	for i := range r.Items {
		it := &r.Items[i]
		if it.Outcome() != OutcomeProcessed || it.Content == nil || it.Vision == nil {
			continue
		}
		vision, _ := json.Marshal(it.Vision)
		rows = append(rows, Row{
			"Title":           it.Content.Title,
			"Description":     it.Content.Description,
			"Caption":         it.Content.Caption,
			"Hashtags":        strings.Join(it.Content.Hashtags, " "),
			"Alt Text":        it.Content.AltText,
			"Platform":        it.Content.Platform,
			IdentityColumn:    it.Request.NormalizedURL,
			"Key Features":    strings.Join(it.Vision.KeyFeatures, ", "),
			"Generated At":    it.GeneratedAt.UTC().Format(time.RFC3339),
			"Vision Analysis": string(vision),
			"Credit":          it.Metadata.CreditLine(),
		})
	}
	return rows
}

// Summary renders the report as plain text, one line per item.
func (r *BatchReport) Summary() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Batch %s completed: %d/%d successful, %d skipped, %d failed\n",
		r.ID, r.Processed, len(r.Items), r.Skipped, r.Failed)
	for i := range r.Items {
		it := &r.Items[i]
		url := it.Request.NormalizedURL
		if url == "" {
			url = it.Request.RawURL
		}
		switch it.Outcome() {
		case OutcomeProcessed:
			var title string
			if it.Content != nil {
				title = it.Content.Title
			}
			fmt.Fprintf(&b, "%d. %s processed: %q\n", i+1, url, title)
		case OutcomeSkipped:
			v := it.Verdict
			if v.Kind == VerdictNearDuplicate {
				fmt.Fprintf(&b, "%d. %s skipped: near duplicate of %s (distance %d)\n", i+1, url, v.Of, v.Distance)
			} else {
				fmt.Fprintf(&b, "%d. %s skipped: duplicate of %s\n", i+1, url, v.Of)
			}
		case OutcomeFailed:
			fmt.Fprintf(&b, "%d. %s failed: %s: %s\n", i+1, url, it.Error.Kind, it.Error.Message)
		}
	}
	return b.String()
}
