package lookbook

import (
	"encoding/json"
	"fmt"
	"strings"
)

// DefaultVisionPrompt asks a multimodal model for fashion attributes as JSON.
const DefaultVisionPrompt = `Analyze the provided fashion image and describe the clothing, not the person.
Focus on style, materials, patterns and cuts. Note visible accessories (jewelry,
belts, bags, shoes) under key_features.

Use rich, boutique-style language that stays concise. If a detail is unclear,
use "unknown" or leave the array empty. Infer occasion and season from the
outfit's style and materials.

Return only this JSON:
{
  "style": "overall clothing style",
  "colors": ["main visible colors"],
  "materials": ["materials with adjectives if visible"],
  "occasion": "best suited occasion",
  "season": "appropriate season",
  "key_features": ["notable features and visible accessories"],
  "brand_style": "brand aesthetic, e.g. earthy, regal, minimalist"
}`

// VisionRecord holds the attributes extracted from one image.
type VisionRecord struct {
	Style       string   `json:"style"`
	Colors      []string `json:"colors"`
	Materials   []string `json:"materials"`
	Occasion    string   `json:"occasion"`
	Season      string   `json:"season"`
	KeyFeatures []string `json:"key_features"`
	BrandStyle  string   `json:"brand_style,omitempty"` // optional
}

// ParseVisionRecord extracts the JSON object from a model reply. Prose around
// the object and markdown fences are ignored. A reply without an object, with
// invalid JSON or without a style fails with ErrMalformedModelOutput.
func ParseVisionRecord(resp string) (VisionRecord, error) {
	var rec VisionRecord
	if err := decodeModelJSON(resp, &rec); err != nil {
		return VisionRecord{}, err
	}
	rec.Style = strings.TrimSpace(rec.Style)
	if rec.Style == "" {
		return VisionRecord{}, fmt.Errorf("%w: vision reply has no style", ErrMalformedModelOutput)
	}
	rec.Colors = cleanList(rec.Colors)
	rec.Materials = cleanList(rec.Materials)
	rec.KeyFeatures = cleanList(rec.KeyFeatures)
	return rec, nil
}

// decodeModelJSON decodes the span from the first '{' to the last '}'.
func decodeModelJSON(resp string, dst any) error {
	start := strings.IndexByte(resp, '{')
	end := strings.LastIndexByte(resp, '}')
	if start < 0 || end <= start {
		return fmt.Errorf("%w: no JSON object in reply", ErrMalformedModelOutput)
	}
	if err := json.Unmarshal([]byte(resp[start:end+1]), dst); err != nil {
		return fmt.Errorf("%w: %w", ErrMalformedModelOutput, err)
	}
	return nil
}

// cleanList trims entries and drops empty ones.
func cleanList(in []string) []string {
	out := in[:0]
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
