package lookbook

import (
	"bytes"
	"strings"

	"github.com/bep/imagemeta"
)

// ImageMetadata holds the authorship fields of an image's EXIF, IPTC and XMP
// blocks. They end up in the Credit column of the stored row.
type ImageMetadata struct {
	Artist    string `json:"artist,omitempty"`    // EXIF Artist, IPTC By-line or XMP dc:creator
	Copyright string `json:"copyright,omitempty"` // EXIF Copyright, IPTC CopyrightNotice or XMP dc:rights
	Credit    string `json:"credit,omitempty"`    // IPTC Credit or Source
}

// CreditLine renders the metadata as one attribution line.
func (m *ImageMetadata) CreditLine() string {
	if m == nil {
		return ""
	}
	var parts []string
	for _, s := range []string{m.Artist, m.Credit, m.Copyright} {
		if s == "" || containsFold(parts, s) {
			continue
		}
		parts = append(parts, s)
	}
	return strings.Join(parts, " / ")
}

func containsFold(list []string, s string) bool {
	for _, v := range list {
		if strings.EqualFold(v, s) {
			return true
		}
	}
	return false
}

// metaField names where a tag lands in ImageMetadata.
type metaField int

const (
	fieldArtist metaField = iota + 1
	fieldCopyright
	fieldCredit
)

// wantedTags maps (source, tag-name) to the field it fills.
var wantedTags = map[imagemeta.Source]map[string]metaField{
	imagemeta.EXIF: {
		"Artist":    fieldArtist,
		"Copyright": fieldCopyright,
	},
	imagemeta.IPTC: {
		"Byline":          fieldArtist,
		"CopyrightNotice": fieldCopyright,
		"Credit":          fieldCredit,
		"Source":          fieldCredit,
	},
	imagemeta.XMP: {
		"Creator": fieldArtist,
		"Rights":  fieldCopyright,
	},
}

// ExtractImageMetadata parses authorship metadata from raw image bytes.
// Returns nil if the data is empty, cannot be parsed or carries no such
// fields. The first non-empty value per field wins.
func ExtractImageMetadata(data []byte) *ImageMetadata {
	if len(data) == 0 {
		return nil
	}

	meta := &ImageMetadata{}
	found := false

	_, err := imagemeta.Decode(imagemeta.Options{
		R:       bytes.NewReader(data),
		Sources: imagemeta.EXIF | imagemeta.IPTC | imagemeta.XMP,
		ShouldHandleTag: func(ti imagemeta.TagInfo) bool {
			_, ok := wantedTags[ti.Source][ti.Tag]
			return ok
		},
		HandleTag: func(ti imagemeta.TagInfo) error {
			s := strings.TrimSpace(tagValueString(ti.Value))
			if s == "" {
				return nil
			}
			var dst *string
			switch wantedTags[ti.Source][ti.Tag] {
			case fieldArtist:
				dst = &meta.Artist
			case fieldCopyright:
				dst = &meta.Copyright
			case fieldCredit:
				dst = &meta.Credit
			default:
				return nil
			}
			if *dst == "" {
				*dst = s
				found = true
			}
			return nil
		},
	})

	if err != nil || !found {
		return nil
	}
	return meta
}

// tagValueString extracts a string from a tag value.
// XMP values may be string or []string (from altList/seqList).
func tagValueString(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case []string:
		if len(val) > 0 {
			return val[0]
		}
		return ""
	case []any:
		if len(val) > 0 {
			if s, ok := val[0].(string); ok {
				return s
			}
		}
		return ""
	default:
		return ""
	}
}
