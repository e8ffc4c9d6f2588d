package stage

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// AverageHash computes the 8x8 average-hash of an image (§4.4: "perceptual
// hash is 8x8 average-hash (16 hex chars)"): downscale to 8x8 greyscale,
// compare each pixel to the mean, set a bit per pixel at or above the
// mean. The
// result is a 64-bit fingerprint formatted as 16 hex characters.
func AverageHash(raw []byte) (uint64, error) {
	img, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return 0, fmt.Errorf("stage: decode image for perceptual hash: %w", err)
	}

	const n = 8
	grid := downscaleGreyscale(img, n, n)

	var sum int
	for _, v := range grid {
		sum += int(v)
	}
	mean := sum / len(grid)

	var hash uint64
	for i, v := range grid {
		if int(v) >= mean {
			hash |= 1 << uint(len(grid)-1-i)
		}
	}
	return hash, nil
}

// AverageHashHex returns AverageHash formatted as 16 hex characters.
func AverageHashHex(raw []byte) (string, error) {
	h, err := AverageHash(raw)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%016x", h), nil
}

// downscaleGreyscale point-samples img down to w x h greyscale luma values
// (one source pixel per cell, no averaging) using the standard Rec. 601
// luma weights, row-major.
func downscaleGreyscale(img image.Image, w, h int) []uint8 {
	bounds := img.Bounds()
	srcW, srcH := bounds.Dx(), bounds.Dy()
	out := make([]uint8, 0, w*h)

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			sx := bounds.Min.X + x*srcW/w
			sy := bounds.Min.Y + y*srcH/h
			r, g, b, _ := img.At(sx, sy).RGBA()
			// RGBA() returns 16-bit channels; reduce to 8-bit before
			// applying luma weights.
			luma := (299*int(r>>8) + 587*int(g>>8) + 114*int(b>>8)) / 1000
			out = append(out, uint8(luma))
		}
	}
	return out
}
