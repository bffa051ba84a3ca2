// Package icon renders the tray and notification icons.
package icon

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
)

const size = 32

var (
	// Logo is a cassette tape.
	Logo = mustEncode(drawCassette())

	// EditConfig is a pencil stroke.
	EditConfig = mustEncode(drawDiagonal())

	// Reload is a ring.
	Reload = mustEncode(drawRing(size/2, 11, 7))
)

var (
	ink   = color.NRGBA{R: 0x22, G: 0x22, B: 0x22, A: 0xff}
	label = color.NRGBA{R: 0xe8, G: 0xc5, B: 0x47, A: 0xff}
)

func drawCassette() *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, size, size))

	fillRect(img, image.Rect(1, 6, size-1, size-6), ink)
	fillRect(img, image.Rect(4, 9, size-4, 19), label)

	for _, cx := range []int{11, 21} {
		fillCircle(img, cx, 14, 3, ink)
		fillCircle(img, cx, 14, 1, label)
	}

	fillRect(img, image.Rect(9, 21, size-9, size-6), label)
	return img
}

func drawDiagonal() *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, size, size))

	for i := 4; i < size-4; i++ {
		fillRect(img, image.Rect(i-2, size-i-2, i+2, size-i+2), ink)
	}
	return img
}

func drawRing(center, outer, inner int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, size, size))

	fillCircle(img, center, center, outer, ink)
	fillCircle(img, center, center, inner, color.NRGBA{})
	return img
}

func fillRect(img *image.NRGBA, r image.Rectangle, c color.NRGBA) {
	r = r.Intersect(img.Bounds())
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			img.SetNRGBA(x, y, c)
		}
	}
}

func fillCircle(img *image.NRGBA, cx, cy, radius int, c color.NRGBA) {
	for y := cy - radius; y <= cy+radius; y++ {
		for x := cx - radius; x <= cx+radius; x++ {
			dx, dy := x-cx, y-cy
			if dx*dx+dy*dy <= radius*radius && image.Pt(x, y).In(img.Bounds()) {
				img.SetNRGBA(x, y, c)
			}
		}
	}
}

func mustEncode(img image.Image) []byte {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		panic(err)
	}
	return buf.Bytes()
}
