package lookbook

import (
	"testing"
)

func TestImageMetadataCreditLine(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		meta *ImageMetadata
		want string
	}{
		{name: "nil metadata", meta: nil, want: ""},
		{name: "empty metadata", meta: &ImageMetadata{}, want: ""},
		{name: "artist only", meta: &ImageMetadata{Artist: "Asha Menon"}, want: "Asha Menon"},
		{
			name: "all fields in order",
			meta: &ImageMetadata{Artist: "Asha Menon", Copyright: "(c) 2024 Kalyan Looms", Credit: "Kalyan Looms"},
			want: "Asha Menon / Kalyan Looms / (c) 2024 Kalyan Looms",
		},
		{
			name: "duplicates collapse case-insensitively",
			meta: &ImageMetadata{Artist: "Studio Nila", Credit: "STUDIO NILA"},
			want: "Studio Nila",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := tc.meta.CreditLine(); got != tc.want {
				t.Errorf("CreditLine() = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestExtractImageMetadata_NilAndEmpty(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		data []byte
	}{
		{name: "nil data", data: nil},
		{name: "empty data", data: []byte{}},
		{name: "garbage bytes", data: []byte("not an image at all")},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := ExtractImageMetadata(tc.data); got != nil {
				t.Errorf("ExtractImageMetadata(%v) = %+v, want nil", tc.data, got)
			}
		})
	}
}

func TestExtractImageMetadata_NoAuthorshipFields(t *testing.T) {
	t.Parallel()

	data := jpegBytes(t, gradientImage(32, 32, true), 90)
	if got := ExtractImageMetadata(data); got != nil {
		t.Errorf("ExtractImageMetadata(plain jpeg) = %+v, want nil", got)
	}
}
