package rgbd

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"time"
)

// Depth encodings accepted by DecodeDepth.
const (
	DepthFormatPNG16   = "png16"
	DepthFormatRaw16LE = "raw16le"
)

// MaxPixels caps decoded frames while no intrinsics are known.
const MaxPixels = 4096 * 4096

// Bounds limits the dimensions a decoder accepts. The zero value allows
// frames of up to MaxPixels.
type Bounds struct {
	Width, Height int
}

// BoundsOf returns the bounds implied by in, or the zero Bounds when in
// is nil.
func BoundsOf(in *Intrinsics) Bounds {
	if in == nil {
		return Bounds{}
	}
	return Bounds{Width: in.Width, Height: in.Height}
}

// Check reports whether a w x h frame fits.
func (b Bounds) Check(w, h int) error {
	if w <= 0 || h <= 0 {
		return fmt.Errorf("%w: %dx%d", ErrMalformedImage, w, h)
	}
	if b.Width > 0 && b.Height > 0 {
		if w > b.Width || h > b.Height {
			return fmt.Errorf("%w: %dx%d exceeds %dx%d", ErrImageTooLarge, w, h, b.Width, b.Height)
		}
		return nil
	}
	if int64(w)*int64(h) > MaxPixels {
		return fmt.Errorf("%w: %dx%d exceeds %d pixels", ErrImageTooLarge, w, h, MaxPixels)
	}
	return nil
}

// DecodeColorJPEG decodes a JPEG into a packed BGR ColorImage. The header
// is checked against b before any pixel buffer is allocated.
func DecodeColorJPEG(data []byte, stamp time.Time, b Bounds) (ColorImage, error) {
	cfg, err := jpeg.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return ColorImage{}, fmt.Errorf("decode jpeg: %w", err)
	}
	if err := b.Check(cfg.Width, cfg.Height); err != nil {
		return ColorImage{}, err
	}
	img, err := jpeg.Decode(bytes.NewReader(data))
	if err != nil {
		return ColorImage{}, fmt.Errorf("decode jpeg: %w", err)
	}
	return FromImage(img, stamp), nil
}

// FromImage packs any image.Image into BGR bytes.
func FromImage(img image.Image, stamp time.Time) ColorImage {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	pix := make([]byte, 0, w*h*3)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			c := color.NRGBAModel.Convert(img.At(x, y)).(color.NRGBA)
			pix = append(pix, c.B, c.G, c.R)
		}
	}
	return ColorImage{Width: w, Height: h, Channels: 3, Pix: pix, Stamp: stamp}
}

// EncodeColorJPEG encodes a 3-channel BGR image as JPEG.
func EncodeColorJPEG(c ColorImage, quality int) ([]byte, error) {
	if c.Channels != 3 || len(c.Pix) != c.Size() {
		return nil, fmt.Errorf("%w: need packed BGR", ErrMalformedImage)
	}
	rgba := image.NewRGBA(image.Rect(0, 0, c.Width, c.Height))
	for i, j := 0, 0; i < len(c.Pix); i, j = i+3, j+4 {
		rgba.Pix[j] = c.Pix[i+2]
		rgba.Pix[j+1] = c.Pix[i+1]
		rgba.Pix[j+2] = c.Pix[i]
		rgba.Pix[j+3] = 0xff
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, rgba, &jpeg.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}
	return buf.Bytes(), nil
}

// DecodeDepth decodes depth samples in the given format. width and height
// are only consulted for raw16le.
func DecodeDepth(format string, data []byte, width, height int, scale float64, stamp time.Time, b Bounds) (DepthImage, error) {
	switch format {
	case DepthFormatPNG16, "png", "":
		return decodeDepthPNG(data, scale, stamp, b)
	case DepthFormatRaw16LE:
		if err := b.Check(width, height); err != nil {
			return DepthImage{}, err
		}
		return decodeDepthRaw(data, width, height, scale, stamp)
	default:
		return DepthImage{}, fmt.Errorf("%w: depth %q", ErrUnsupportedFormat, format)
	}
}

func decodeDepthPNG(data []byte, scale float64, stamp time.Time, bounds Bounds) (DepthImage, error) {
	cfg, err := png.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return DepthImage{}, fmt.Errorf("decode png: %w", err)
	}
	if err := bounds.Check(cfg.Width, cfg.Height); err != nil {
		return DepthImage{}, err
	}
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		return DepthImage{}, fmt.Errorf("decode png: %w", err)
	}
	b := img.Bounds()
	d := DepthImage{
		Width:  b.Dx(),
		Height: b.Dy(),
		Data:   make([]uint16, 0, b.Dx()*b.Dy()),
		Scale:  scale,
		Stamp:  stamp,
	}
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			d.Data = append(d.Data, color.Gray16Model.Convert(img.At(x, y)).(color.Gray16).Y)
		}
	}
	return d, nil
}

func decodeDepthRaw(data []byte, width, height int, scale float64, stamp time.Time) (DepthImage, error) {
	if width <= 0 || height <= 0 || len(data) != width*height*2 {
		return DepthImage{}, fmt.Errorf("%w: raw depth %dx%d with %d bytes",
			ErrMalformedImage, width, height, len(data))
	}
	d := DepthImage{Width: width, Height: height, Data: make([]uint16, width*height), Scale: scale, Stamp: stamp}
	for i := range d.Data {
		d.Data[i] = binary.LittleEndian.Uint16(data[2*i:])
	}
	return d, nil
}

// EncodeDepthPNG encodes depth samples as a 16-bit grayscale PNG.
func EncodeDepthPNG(d DepthImage) ([]byte, error) {
	if d.Empty() {
		return nil, fmt.Errorf("%w: empty depth image", ErrMalformedImage)
	}
	img := image.NewGray16(image.Rect(0, 0, d.Width, d.Height))
	for y := 0; y < d.Height; y++ {
		for x := 0; x < d.Width; x++ {
			img.SetGray16(x, y, color.Gray16{Y: d.Data[y*d.Width+x]})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}

// EncodeDepthRaw encodes depth samples as little-endian uint16.
func EncodeDepthRaw(d DepthImage) []byte {
	out := make([]byte, 2*len(d.Data))
	for i, v := range d.Data {
		binary.LittleEndian.PutUint16(out[2*i:], v)
	}
	return out
}
