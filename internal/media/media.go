// Package media probes IMAGE attachments for their pixel dimensions at
// upload time. Unlike the teacher's background thumbnail pipeline, this
// system has no derived-asset worker: spec.md's attachment model stores only
// a URL and a type, so the probe runs synchronously inline with the upload
// handler and its result is informational only (returned in the upload
// response, not persisted).
package media

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/disintegration/imaging"
)

// ErrNotAnImage is returned when the given bytes cannot be decoded as an image.
var ErrNotAnImage = errors.New("data does not decode as an image")

// Dimensions holds the pixel width and height of a decoded image.
type Dimensions struct {
	Width  int
	Height int
}

// Probe decodes data as an image and returns its dimensions.
func Probe(data []byte) (Dimensions, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return Dimensions{}, fmt.Errorf("%w: %w", ErrNotAnImage, err)
	}
	bounds := img.Bounds()
	return Dimensions{Width: bounds.Dx(), Height: bounds.Dy()}, nil
}

// Thumbnail decodes data and returns the image resized to exactly maxWidth
// pixels wide, preserving aspect ratio; narrower images are upscaled. The
// upload handler does not call it.
func Thumbnail(data []byte, maxWidth int) (image.Image, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNotAnImage, err)
	}
	return imaging.Resize(img, maxWidth, 0, imaging.Lanczos), nil
}
