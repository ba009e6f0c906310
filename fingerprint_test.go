package lookbook

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"math"
	"testing"

	"github.com/disintegration/imaging"
)

// roofImage draws a grayscale pyramid whose peak sits at (px, py), given as
// fractions of the size. Brightness falls off linearly in both directions,
// so neighbouring cells of a 9x8 downsample never tie.
func roofImage(w, h int, px, py float64) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		fy := float64(y) / float64(h-1)
		vy := 1 - math.Abs(fy-py)/math.Max(py, 1-py)
		for x := 0; x < w; x++ {
			fx := float64(x) / float64(w-1)
			vx := 1 - math.Abs(fx-px)/math.Max(px, 1-px)
			img.SetGray(x, y, color.Gray{Y: uint8(20 + 100*vx + 100*vy)})
		}
	}
	return img
}

// Peaks centred on a downsample cell, and their mirror images.
func lookImage(w, h int) image.Image         { return roofImage(w, h, 6.5/9, 5.5/8) }
func mirroredLookImage(w, h int) image.Image { return roofImage(w, h, 2.5/9, 2.5/8) }

func gradientImage(w, h int, increasing bool) image.Image {
	if increasing {
		return roofImage(w, h, 1, 1)
	}
	return roofImage(w, h, 0, 0)
}

func pngBytes(t testing.TB, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("png encode: %v", err)
	}
	return buf.Bytes()
}

func jpegBytes(t testing.TB, img image.Image, quality int) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		t.Fatalf("jpeg encode: %v", err)
	}
	return buf.Bytes()
}

func mustFingerprint(t testing.TB, data []byte) Fingerprint {
	t.Helper()
	fp, err := ComputeFingerprint(data)
	if err != nil {
		t.Fatalf("ComputeFingerprint: %v", err)
	}
	return fp
}

func TestComputeFingerprint_StableAcrossEncodings(t *testing.T) {
	t.Parallel()

	base := lookImage(256, 256)
	orig := mustFingerprint(t, pngBytes(t, base))

	variants := []struct {
		name string
		data []byte
	}{
		{name: "same png twice", data: pngBytes(t, base)},
		{name: "jpeg quality 90", data: jpegBytes(t, base, 90)},
		{name: "jpeg quality 70", data: jpegBytes(t, base, 70)},
		{name: "half resolution", data: pngBytes(t, imaging.Resize(base, 128, 128, imaging.Lanczos))},
		{name: "double resolution jpeg", data: jpegBytes(t, imaging.Resize(base, 512, 512, imaging.Lanczos), 85)},
		{name: "non-square rescale", data: pngBytes(t, imaging.Resize(base, 300, 200, imaging.Lanczos))},
	}

	for _, tc := range variants {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got := mustFingerprint(t, tc.data)
			if d := orig.Distance(got); d > DefaultSimilarityThreshold {
				t.Errorf("distance = %d (%s vs %s), want <= %d", d, orig, got, DefaultSimilarityThreshold)
			}
		})
	}
}

func TestComputeFingerprint_DistinctImages(t *testing.T) {
	t.Parallel()

	orig := mustFingerprint(t, pngBytes(t, lookImage(256, 256)))

	others := []struct {
		name string
		img  image.Image
	}{
		{name: "mirrored", img: mirroredLookImage(256, 256)},
		{name: "rising gradient", img: gradientImage(256, 256, true)},
		{name: "falling gradient", img: gradientImage(256, 256, false)},
	}

	for _, tc := range others {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got := mustFingerprint(t, pngBytes(t, tc.img))
			if d := orig.Distance(got); d <= DefaultSimilarityThreshold {
				t.Errorf("distance = %d, want > %d", d, DefaultSimilarityThreshold)
			}
		})
	}
}

func TestComputeFingerprint_Deterministic(t *testing.T) {
	t.Parallel()

	data := jpegBytes(t, lookImage(128, 96), 80)
	if a, b := mustFingerprint(t, data), mustFingerprint(t, data); a != b {
		t.Errorf("fingerprints differ for identical input: %s vs %s", a, b)
	}
}

func TestComputeFingerprint_Unreadable(t *testing.T) {
	t.Parallel()

	valid := pngBytes(t, lookImage(64, 64))
	tests := []struct {
		name string
		data []byte
	}{
		{name: "nil", data: nil},
		{name: "text", data: []byte("<html>not an image</html>")},
		{name: "truncated png", data: valid[:len(valid)/3]},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if _, err := ComputeFingerprint(tc.data); !errors.Is(err, ErrImageUnreadable) {
				t.Errorf("err = %v, want ErrImageUnreadable", err)
			}
		})
	}
}

func TestFingerprintDistance(t *testing.T) {
	t.Parallel()

	tests := []struct {
		a, b Fingerprint
		want int
	}{
		{a: 0, b: 0, want: 0},
		{a: 0b1011, b: 0, want: 3},
		{a: 0xFFFFFFFFFFFFFFFF, b: 0, want: 64},
		{a: 0xF0F0, b: 0x0F0F, want: 16},
	}

	for _, tc := range tests {
		if got := tc.a.Distance(tc.b); got != tc.want {
			t.Errorf("%s.Distance(%s) = %d, want %d", tc.a, tc.b, got, tc.want)
		}
		if got := tc.b.Distance(tc.a); got != tc.want {
			t.Errorf("distance not symmetric for %s, %s", tc.a, tc.b)
		}
	}
}

func TestParseFingerprint(t *testing.T) {
	t.Parallel()

	fp := Fingerprint(0x00ff00ff12345678)
	got, err := ParseFingerprint(fp.String())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != fp {
		t.Errorf("ParseFingerprint(%q) = %s, want %s", fp.String(), got, fp)
	}
	if _, err := ParseFingerprint("zz"); err == nil {
		t.Error("expected error for non-hex input")
	}
}
