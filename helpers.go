package lookbook

import (
	"bytes"
	"encoding/base64"
	"fmt"

	"github.com/disintegration/imaging"
)

const (
	visionPreviewSize    = 800
	visionPreviewQuality = 85
)

// EncodeBase64 encodes bytes to base64 string.
func EncodeBase64(data []byte) string {
	return base64.StdEncoding.EncodeToString(data)
}

// EncodeDataURL creates a data: URI from bytes and MIME type.
func EncodeDataURL(data []byte, mimeType string) string {
	return fmt.Sprintf("data:%s;base64,%s", mimeType, EncodeBase64(data))
}

// VisionPreview re-encodes an image as a JPEG data URL no larger than
// 800x800, honoring EXIF orientation. Smaller images are not upscaled.
func VisionPreview(data []byte) (ImageInput, error) {
	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return ImageInput{}, fmt.Errorf("%w: %w", ErrImageUnreadable, err)
	}
	img = imaging.Fit(img, visionPreviewSize, visionPreviewSize, imaging.Lanczos)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(visionPreviewQuality)); err != nil {
		return ImageInput{}, fmt.Errorf("encode preview: %w", err)
	}
	return ImageInput{URL: EncodeDataURL(buf.Bytes(), "image/jpeg"), MIMEType: "image/jpeg"}, nil
}
