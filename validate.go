package lookbook

import (
	"bytes"
	"fmt"
	"image"
	"log/slog"
)

// ImageInfo is what the image header says about a fetched payload.
type ImageInfo struct {
	Width  int
	Height int
	Format string // "jpeg", "png", "gif", "webp"
}

// ValidateImage reads the image header and checks:
//   - the payload is a decodable image format
//   - Width >= minWidth (0 disables the check)
//
// Failures wrap ErrImageUnreadable.
func ValidateImage(data []byte, minWidth int) (ImageInfo, error) {
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return ImageInfo{}, fmt.Errorf("%w: %w", ErrImageUnreadable, err)
	}
	info := ImageInfo{Width: cfg.Width, Height: cfg.Height, Format: format}
	if info.Width <= 0 || info.Height <= 0 {
		return info, fmt.Errorf("%w: empty %s image", ErrImageUnreadable, format)
	}
	if minWidth > 0 && info.Width < minWidth {
		slog.Debug("lookbook: too narrow", "width", info.Width, "min", minWidth)
		return info, fmt.Errorf("%w: %dpx wide, min %dpx", ErrImageUnreadable, info.Width, minWidth)
	}
	return info, nil
}
