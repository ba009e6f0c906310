package lookbook

import (
	"fmt"
	"strings"
)

// DefaultContentPrompt is the instruction preamble for the content model.
// RenderContentPrompt appends the tone, platform and attributes.
const DefaultContentPrompt = `Generate marketing content for a fashion item in JSON format with the following structure:
{
  "title": "catchy title for the fashion item",
  "description": "detailed product description",
  "caption": "engaging social media caption",
  "hashtags": ["array of relevant hashtags"],
  "alt_text": "accessible image description",
  "platform": "target social media platform"
}
Return only the JSON object.`

// ContentOptions selects the voice of generated copy.
type ContentOptions struct {
	Tone     string `json:"tone"`
	Platform string `json:"platform"`
}

// ContentRecord is the marketing copy for one image.
type ContentRecord struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Caption     string   `json:"caption"`
	Hashtags    []string `json:"hashtags"`
	AltText     string   `json:"alt_text"`
	Platform    string   `json:"platform"`
}

// RenderContentPrompt builds the content prompt from the preamble, the
// options and the vision attributes.
func RenderContentPrompt(preamble string, rec VisionRecord, opts ContentOptions) string {
	var b strings.Builder
	b.WriteString(preamble)
	fmt.Fprintf(&b, "\n\nTone: %s\nPlatform: %s\n\nItem attributes:\n", opts.Tone, opts.Platform)
	fmt.Fprintf(&b, "- Style: %s\n", rec.Style)
	writeAttr(&b, "Colors", rec.Colors)
	writeAttr(&b, "Materials", rec.Materials)
	if rec.Occasion != "" {
		fmt.Fprintf(&b, "- Occasion: %s\n", rec.Occasion)
	}
	if rec.Season != "" {
		fmt.Fprintf(&b, "- Season: %s\n", rec.Season)
	}
	writeAttr(&b, "Key features", rec.KeyFeatures)
	if rec.BrandStyle != "" {
		fmt.Fprintf(&b, "- Brand style: %s\n", rec.BrandStyle)
	}
	return b.String()
}

func writeAttr(b *strings.Builder, name string, vals []string) {
	if len(vals) == 0 {
		return
	}
	fmt.Fprintf(b, "- %s: %s\n", name, strings.Join(vals, ", "))
}

// ParseContentRecord extracts and validates a content reply. Title,
// description, caption, hashtags and alt_text are required; an empty platform
// falls back to the requested one. Hashtags are normalized to start with '#'.
func ParseContentRecord(resp, platform string) (ContentRecord, error) {
	var rec ContentRecord
	if err := decodeModelJSON(resp, &rec); err != nil {
		return ContentRecord{}, err
	}

	rec.Title = strings.TrimSpace(rec.Title)
	rec.Description = strings.TrimSpace(rec.Description)
	rec.Caption = strings.TrimSpace(rec.Caption)
	rec.AltText = strings.TrimSpace(rec.AltText)
	rec.Platform = strings.TrimSpace(rec.Platform)

	var missing []string
	for _, f := range []struct {
		name string
		val  string
	}{
		{"title", rec.Title},
		{"description", rec.Description},
		{"caption", rec.Caption},
		{"alt_text", rec.AltText},
	} {
		if f.val == "" {
			missing = append(missing, f.name)
		}
	}
	if rec.Hashtags == nil {
		missing = append(missing, "hashtags")
	}
	if len(missing) > 0 {
		return ContentRecord{}, fmt.Errorf("%w: content reply missing %s",
			ErrMalformedModelOutput, strings.Join(missing, ", "))
	}

	tags := cleanList(rec.Hashtags)
	for i, tag := range tags {
		if !strings.HasPrefix(tag, "#") {
			tags[i] = "#" + tag
		}
	}
	rec.Hashtags = tags
	if rec.Platform == "" {
		rec.Platform = platform
	}
	return rec, nil
}
