package driver

import (
	"bytes"
	"encoding/binary"
	"image"
	"image/color"

	"golang.org/x/image/draw"
)

// Raster command bytes.
var (
	cmdInitialize = []byte{0x1B, 0x40}
	cmdRasterMode = []byte{0x1B, 0x69, 0x61, 0x01}
	cmdPrintInfo  = []byte{0x1B, 0x69, 0x7A}
	cmdAutoCut    = []byte{0x1B, 0x69, 0x4D}
	cmdCutEvery   = []byte{0x1B, 0x69, 0x41, 0x01}
	cmdExpanded   = []byte{0x1B, 0x69, 0x4B}
	cmdMargins    = []byte{0x1B, 0x69, 0x64}
	cmdNoCompress = []byte{0x4D, 0x00}
	cmdPrintFeed  = []byte{0x1A}
)

const (
	flagMediaType = 0x02
	flagWidth     = 0x04
	flagLength    = 0x08
	flagQuality   = 0x40
	flagRecover   = 0x80

	modeAutoCut  = 0x40
	modeCutAtEnd = 0x08
)

// Raster converts img into the complete command stream for one label: device
// reset, media description, one raster line per image row, and print+feed.
// It mirrors the vendor driver's behaviour with dithering and compression off.
func Raster(img image.Image, label Label, model Model, opts Options) ([]byte, error) {
	rowBits := model.BytesPerRow * 8
	if label.DotsTotal[0] > rowBits {
		return nil, newError(KindLabel, "label %s is too wide for printer model %s", label.Identifier, model.Identifier)
	}

	img, err := orient(img, label, opts.Rotate)
	if err != nil {
		return nil, err
	}
	img, err = fit(img, label)
	if err != nil {
		return nil, err
	}

	b := img.Bounds()
	width, height := b.Dx(), b.Dy()
	if label.Form == Endless && height > model.MaxLengthDots {
		return nil, newError(KindImage, "image is too long for %s: %d dots (maximum %d)", model.Identifier, height, model.MaxLengthDots)
	}

	level := thresholdLevel(opts.Threshold)

	var buf bytes.Buffer
	buf.Grow(model.InvalidateSize + 64 + height*(model.BytesPerRow+3))

	buf.Write(make([]byte, model.InvalidateSize))
	buf.Write(cmdInitialize)
	if model.ModeSetting {
		buf.Write(cmdRasterMode)
	}

	flags := byte(flagRecover | flagMediaType | flagWidth | flagLength)
	if opts.HighQuality {
		flags |= flagQuality
	}
	buf.Write(cmdPrintInfo)
	buf.WriteByte(flags)
	buf.WriteByte(label.mediaType())
	buf.WriteByte(byte(label.TapeSize[0]))
	buf.WriteByte(byte(label.TapeSize[1]))
	_ = binary.Write(&buf, binary.LittleEndian, uint32(height))
	buf.Write([]byte{0x00, 0x00})

	if model.Cutting {
		buf.Write(cmdAutoCut)
		if opts.Cut {
			buf.WriteByte(modeAutoCut)
		} else {
			buf.WriteByte(0x00)
		}
		buf.Write(cmdCutEvery)
	}
	if model.ExpandedMode {
		buf.Write(cmdExpanded)
		if opts.Cut {
			buf.WriteByte(modeCutAtEnd)
		} else {
			buf.WriteByte(0x00)
		}
	}

	buf.Write(cmdMargins)
	_ = binary.Write(&buf, binary.LittleEndian, uint16(label.FeedMargin))

	if model.Compression {
		buf.Write(cmdNoCompress)
	}

	row := make([]byte, model.BytesPerRow)
	for y := 0; y < height; y++ {
		clear(row)
		for x := 0; x < width; x++ {
			if luminance(img.At(b.Min.X+x, b.Min.Y+y)) >= level {
				continue
			}
			// The print head sees the row mirrored and offset from the right edge.
			bit := label.OffsetRight + width - 1 - x
			if bit < 0 || bit >= rowBits {
				continue
			}
			row[bit/8] |= 0x80 >> (bit % 8)
		}
		buf.Write([]byte{0x67, 0x00, byte(len(row))})
		buf.Write(row)
	}

	buf.Write(cmdPrintFeed)
	return buf.Bytes(), nil
}

// thresholdLevel turns a darkness percentage into the 8-bit luminance below
// which a pixel prints black.
func thresholdLevel(threshold float64) uint32 {
	v := int((100 - threshold) / 100 * 255)
	if v < 0 {
		v = 0
	}
	if v > 255 {
		v = 255
	}
	return uint32(v)
}

// luminance composites c over white and returns its 8-bit grey value.
func luminance(c color.Color) uint32 {
	r, g, b, a := c.RGBA()
	r += 0xffff - a
	g += 0xffff - a
	b += 0xffff - a
	return (19595*r + 38470*g + 7471*b + 1<<15) >> 24
}

// orient applies the configured rotation. "auto" turns the image a quarter
// when that is what makes it match the label.
func orient(img image.Image, label Label, rotate string) (image.Image, error) {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	want := label.DotsPrintable

	switch rotate {
	case "", "auto":
		if label.Form == Endless {
			if w != want[0] && h == want[0] {
				return rotate90(img), nil
			}
			return img, nil
		}
		if w == want[1] && h == want[0] && w != h {
			return rotate90(img), nil
		}
		return img, nil
	case "0":
		return img, nil
	case "90":
		return rotate90(img), nil
	case "180":
		return rotate180(img), nil
	case "270":
		return rotate270(img), nil
	default:
		return nil, newError(KindImage, "unsupported rotation %q", rotate)
	}
}

// fit scales endless-tape images to the printable width and checks die-cut
// images against the exact label size.
func fit(img image.Image, label Label) (image.Image, error) {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	want := label.DotsPrintable

	if label.Form != Endless {
		if w != want[0] || h != want[1] {
			return nil, newError(KindImage, "bad image dimensions: %dx%d. Expecting: %dx%d", w, h, want[0], want[1])
		}
		return img, nil
	}

	if w == want[0] {
		return img, nil
	}
	nh := (h*want[0] + w/2) / w
	if nh < 1 {
		nh = 1
	}
	dst := image.NewRGBA(image.Rect(0, 0, want[0], nh))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, b, draw.Src, nil)
	return dst, nil
}

// rotate90 turns img a quarter counter-clockwise.
func rotate90(img image.Image) image.Image {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	dst := image.NewRGBA(image.Rect(0, 0, h, w))
	for y := 0; y < w; y++ {
		for x := 0; x < h; x++ {
			dst.Set(x, y, img.At(b.Min.X+w-1-y, b.Min.Y+x))
		}
	}
	return dst
}

func rotate180(img image.Image) image.Image {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			dst.Set(x, y, img.At(b.Min.X+w-1-x, b.Min.Y+h-1-y))
		}
	}
	return dst
}

// rotate270 turns img a quarter clockwise.
func rotate270(img image.Image) image.Image {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	dst := image.NewRGBA(image.Rect(0, 0, h, w))
	for y := 0; y < w; y++ {
		for x := 0; x < h; x++ {
			dst.Set(x, y, img.At(b.Min.X+y, b.Min.Y+h-1-x))
		}
	}
	return dst
}
