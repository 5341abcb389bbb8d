package capture

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"image/jpeg"
	"log/slog"

	"github.com/scenelingua/engine/media"
)

const (
	// MimeJPEG is the encoding every capture produces.
	MimeJPEG = "image/jpeg"

	defaultQuality = 85
)

// Options controls one frame capture.
type Options struct {
	// Mirror applies a horizontal flip so a front-facing capture matches
	// what the user sees in the preview.
	Mirror bool

	// Quality is the JPEG quality, 1-100. Zero means the default.
	Quality int
}

// Still is one captured frame: the compressed bytes plus the data-URL
// form the wire protocol's image message carries.
type Still struct {
	Bytes   []byte
	DataURL string
	Mime    string
	Width   int
	Height  int
}

// Capture rasterizes the provider's current frame at native resolution.
// ok is false when no frame is available (source not started yet); the
// caller treats that as a no-op, not an error.
func Capture(src media.FrameProvider, opts Options) (*Still, bool) {
	frame, ok := src.Frame()
	if !ok {
		slog.Debug("No frame available for capture")
		return nil, false
	}

	if opts.Mirror {
		frame = mirrorHorizontal(frame)
	}

	quality := opts.Quality
	if quality == 0 {
		quality = defaultQuality
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, frame, &jpeg.Options{Quality: quality}); err != nil {
		slog.Error("Frame encode failed", "error", err)
		return nil, false
	}

	bounds := frame.Bounds()
	data := buf.Bytes()
	return &Still{
		Bytes:   data,
		DataURL: fmt.Sprintf("data:%s;base64,%s", MimeJPEG, base64.StdEncoding.EncodeToString(data)),
		Mime:    MimeJPEG,
		Width:   bounds.Dx(),
		Height:  bounds.Dy(),
	}, true
}

func mirrorHorizontal(src image.Image) image.Image {
	bounds := src.Bounds()
	dst := image.NewRGBA(bounds)
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			dst.Set(bounds.Max.X-1-(x-bounds.Min.X), y, src.At(x, y))
		}
	}
	return dst
}
