package stage

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"testing"
)

func encodePNG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode fixture png: %v", err)
	}
	return buf.Bytes()
}

func halfBlackHalfWhite() image.Image {
	img := image.NewGray(image.Rect(0, 0, 16, 16))
	for y := 0; y < 16; y++ {
		for x := 0; x < 16; x++ {
			if x < 8 {
				img.SetGray(x, y, color.Gray{Y: 0})
			} else {
				img.SetGray(x, y, color.Gray{Y: 255})
			}
		}
	}
	return img
}

func solidGrey() image.Image {
	img := image.NewGray(image.Rect(0, 0, 16, 16))
	for y := 0; y < 16; y++ {
		for x := 0; x < 16; x++ {
			img.SetGray(x, y, color.Gray{Y: 128})
		}
	}
	return img
}

func TestAverageHashDeterministic(t *testing.T) {
	raw := encodePNG(t, halfBlackHalfWhite())

	h1, err := AverageHash(raw)
	if err != nil {
		t.Fatalf("AverageHash() error = %v", err)
	}
	h2, err := AverageHash(raw)
	if err != nil {
		t.Fatalf("AverageHash() second call error = %v", err)
	}
	if h1 != h2 {
		t.Fatal("AverageHash is not deterministic for identical input")
	}
}

func TestAverageHashDiffersForDifferentImages(t *testing.T) {
	a, err := AverageHash(encodePNG(t, halfBlackHalfWhite()))
	if err != nil {
		t.Fatalf("AverageHash() error = %v", err)
	}
	b, err := AverageHash(encodePNG(t, solidGrey()))
	if err != nil {
		t.Fatalf("AverageHash() error = %v", err)
	}
	if a == b {
		t.Fatal("expected different hashes for visually different images")
	}
}

func TestAverageHashHexFormat(t *testing.T) {
	hex, err := AverageHashHex(encodePNG(t, halfBlackHalfWhite()))
	if err != nil {
		t.Fatalf("AverageHashHex() error = %v", err)
	}
	if len(hex) != 16 {
		t.Fatalf("AverageHashHex() = %q, want 16 hex chars", hex)
	}
}

func TestAverageHashRejectsGarbageInput(t *testing.T) {
	if _, err := AverageHash([]byte("not an image")); err == nil {
		t.Fatal("expected an error decoding non-image bytes")
	}
}

func TestAverageHashHalfBlackHalfWhiteSplitsBits(t *testing.T) {
	h, err := AverageHash(encodePNG(t, halfBlackHalfWhite()))
	if err != nil {
		t.Fatalf("AverageHash() error = %v", err)
	}
	// Left half of the 8x8 grid is black (below mean), right half white
	// (at/above mean): the 4 low bits of each row are set, giving
	// 0x0f0f0f0f0f0f0f0f. This checks only that the pattern is mixed, not
	// all-zero or all-one.
	if h == 0 || h == ^uint64(0) {
		t.Fatalf("AverageHash() = %016x, expected a mixed bit pattern", h)
	}
}
