// Package imaging normalizes uploaded report media before it is stored.
package imaging

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"io"
	"net/http"
	"strings"

	"golang.org/x/image/draw"
	"golang.org/x/image/webp"
)

// DefaultMaxDimension is the maximum width or height of stored images.
const DefaultMaxDimension = 1600

// JPEGQuality is the compression quality for JPEG output.
const JPEGQuality = 85

// AllowedImageMIME lists the accepted image input types.
var AllowedImageMIME = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/webp": true,
}

// VideoMIME maps accepted video extensions to their MIME type.
var VideoMIME = map[string]string{
	"mp4":  "video/mp4",
	"mov":  "video/quicktime",
	"webm": "video/webm",
}

// Result is a processed media blob.
type Result struct {
	Data []byte
	MIME string
}

// Processor turns raw uploads into stored blobs.
type Processor struct {
	MaxDimension int
}

// New creates a processor. A non-positive maxDimension uses
// DefaultMaxDimension.
func New(maxDimension int) *Processor {
	if maxDimension <= 0 {
		maxDimension = DefaultMaxDimension
	}
	return &Processor{MaxDimension: maxDimension}
}

// Image validates image data by sniffing its bytes, downscales it to fit
// MaxDimension, and re-encodes it as JPEG.
func (p *Processor) Image(r io.Reader) (*Result, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading image data: %w", err)
	}

	detected := http.DetectContentType(data)
	if !AllowedImageMIME[detected] {
		return nil, fmt.Errorf("unsupported image format: %s (only JPEG, PNG and WebP accepted)", detected)
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decoding image: %w", err)
	}

	img = downscale(img, p.MaxDimension)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: JPEGQuality}); err != nil {
		return nil, fmt.Errorf("encoding JPEG: %w", err)
	}

	return &Result{Data: buf.Bytes(), MIME: "image/jpeg"}, nil
}

// Video checks a video against its extension hint and returns it unchanged.
func (p *Processor) Video(r io.Reader, ext string) (*Result, error) {
	mime, ok := VideoMIME[strings.ToLower(strings.TrimPrefix(ext, "."))]
	if !ok {
		return nil, fmt.Errorf("unsupported video extension %q", ext)
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading video data: %w", err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("empty video")
	}

	// QuickTime is not recognized by the sniffer, so octet-stream is allowed.
	detected := http.DetectContentType(data)
	if !strings.HasPrefix(detected, "video/") && detected != "application/octet-stream" {
		return nil, fmt.Errorf("file is %s, not a video", detected)
	}

	return &Result{Data: data, MIME: mime}, nil
}

// downscale resizes the image so neither dimension exceeds maxDim, keeping
// the aspect ratio.
func downscale(img image.Image, maxDim int) image.Image {
	bounds := img.Bounds()
	w := bounds.Dx()
	h := bounds.Dy()

	if w <= maxDim && h <= maxDim {
		return img
	}

	newW, newH := w, h
	if w > h {
		newW = maxDim
		newH = int(float64(h) * float64(maxDim) / float64(w))
	} else {
		newH = maxDim
		newW = int(float64(w) * float64(maxDim) / float64(h))
	}
	newW = max(newW, 1)
	newH = max(newH, 1)

	dst := image.NewRGBA(image.Rect(0, 0, newW, newH))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, bounds, draw.Over, nil)
	return dst
}

func init() {
	image.RegisterFormat("jpeg", "\xff\xd8", jpeg.Decode, jpeg.DecodeConfig)
	image.RegisterFormat("png", "\x89PNG", png.Decode, png.DecodeConfig)
	image.RegisterFormat("webp", "RIFF????WEBPVP8", webp.Decode, webp.DecodeConfig)
}
