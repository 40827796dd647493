package media

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"testing"
)

func encodeTestPNG(t *testing.T, width, height int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for x := 0; x < width; x++ {
		for y := 0; y < height; y++ {
			img.Set(x, y, color.RGBA{R: 255, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode test png: %v", err)
	}
	return buf.Bytes()
}

func TestProbe(t *testing.T) {
	t.Parallel()

	data := encodeTestPNG(t, 40, 20)
	dims, err := Probe(data)
	if err != nil {
		t.Fatalf("Probe() error = %v", err)
	}
	if dims.Width != 40 || dims.Height != 20 {
		t.Errorf("Probe() = %+v, want {40 20}", dims)
	}
}

func TestProbeNotAnImage(t *testing.T) {
	t.Parallel()

	if _, err := Probe([]byte("not an image")); err == nil {
		t.Error("Probe() error = nil, want ErrNotAnImage")
	}
}

func TestThumbnail(t *testing.T) {
	t.Parallel()

	data := encodeTestPNG(t, 400, 200)
	thumb, err := Thumbnail(data, 100)
	if err != nil {
		t.Fatalf("Thumbnail() error = %v", err)
	}
	bounds := thumb.Bounds()
	if bounds.Dx() != 100 {
		t.Errorf("Thumbnail() width = %d, want 100", bounds.Dx())
	}
	if bounds.Dy() != 50 {
		t.Errorf("Thumbnail() height = %d, want 50", bounds.Dy())
	}
}
