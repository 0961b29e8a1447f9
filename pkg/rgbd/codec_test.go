package rgbd

import (
	"bytes"
	"encoding/binary"
	"errors"
	"hash/crc32"
	"testing"
	"time"
)

func TestDepthPNGRoundTrip(t *testing.T) {
	in := DepthImage{Width: 3, Height: 2, Data: []uint16{0, 500, 1000, 1500, 65535, 7}, Scale: DefaultDepthScale}

	data, err := EncodeDepthPNG(in)
	if err != nil {
		t.Fatalf("EncodeDepthPNG() error = %v", err)
	}
	out, err := DecodeDepth(DepthFormatPNG16, data, 0, 0, DefaultDepthScale, time.Time{}, Bounds{})
	if err != nil {
		t.Fatalf("DecodeDepth() error = %v", err)
	}
	if out.Width != 3 || out.Height != 2 {
		t.Fatalf("size = %dx%d, want 3x2", out.Width, out.Height)
	}
	for i := range in.Data {
		if out.Data[i] != in.Data[i] {
			t.Errorf("sample %d = %d, want %d", i, out.Data[i], in.Data[i])
		}
	}
}

func TestDecodeDepthRaw(t *testing.T) {
	in := DepthImage{Width: 2, Height: 2, Data: []uint16{1, 256, 1000, 65535}}
	out, err := DecodeDepth(DepthFormatRaw16LE, EncodeDepthRaw(in), 2, 2, 0.001, time.Time{}, Bounds{})
	if err != nil {
		t.Fatalf("DecodeDepth() error = %v", err)
	}
	if out.Data[1] != 256 || out.Data[3] != 65535 {
		t.Errorf("decoded = %v", out.Data)
	}

	if _, err := DecodeDepth(DepthFormatRaw16LE, []byte{1, 2, 3}, 2, 2, 0.001, time.Time{}, Bounds{}); !errors.Is(err, ErrMalformedImage) {
		t.Errorf("short raw error = %v, want ErrMalformedImage", err)
	}
	if _, err := DecodeDepth("exr", nil, 0, 0, 0, time.Time{}, Bounds{}); !errors.Is(err, ErrUnsupportedFormat) {
		t.Errorf("unknown format error = %v, want ErrUnsupportedFormat", err)
	}
}

func TestColorJPEG(t *testing.T) {
	pix := make([]byte, 16*8*3)
	for i := 0; i < len(pix); i += 3 {
		pix[i], pix[i+1], pix[i+2] = 200, 100, 50 // B, G, R
	}
	img := ColorImage{Width: 16, Height: 8, Channels: 3, Pix: pix}

	data, err := EncodeColorJPEG(img, 95)
	if err != nil {
		t.Fatalf("EncodeColorJPEG() error = %v", err)
	}
	out, err := DecodeColorJPEG(data, time.Now(), Bounds{})
	if err != nil {
		t.Fatalf("DecodeColorJPEG() error = %v", err)
	}
	if out.Width != 16 || out.Height != 8 || out.Channels != 3 || len(out.Pix) != out.Size() {
		t.Fatalf("decoded %dx%dx%d with %d bytes", out.Width, out.Height, out.Channels, len(out.Pix))
	}
	// JPEG is lossy; channel order is what matters here.
	b, g, r := int(out.Pix[0]), int(out.Pix[1]), int(out.Pix[2])
	if !(b > g && g > r) {
		t.Errorf("channel order lost: b=%d g=%d r=%d", b, g, r)
	}

	if _, err := DecodeColorJPEG([]byte("nope"), time.Now(), Bounds{}); err == nil {
		t.Error("DecodeColorJPEG(garbage) expected error")
	}
}

// hugeJPEG returns a small JPEG whose frame header claims 20000x20000.
func hugeJPEG(t *testing.T) []byte {
	t.Helper()
	img := ColorImage{Width: 16, Height: 16, Channels: 3, Pix: make([]byte, 16*16*3)}
	data, err := EncodeColorJPEG(img, 90)
	if err != nil {
		t.Fatal(err)
	}
	sof := bytes.Index(data, []byte{0xff, 0xc0})
	if sof < 0 {
		t.Fatal("no SOF0 marker")
	}
	binary.BigEndian.PutUint16(data[sof+5:], 20000)
	binary.BigEndian.PutUint16(data[sof+7:], 20000)
	return data
}

// hugePNG returns a 2x2 depth PNG whose IHDR claims 65535x65535.
func hugePNG(t *testing.T) []byte {
	t.Helper()
	data, err := EncodeDepthPNG(DepthImage{Width: 2, Height: 2, Data: make([]uint16, 4)})
	if err != nil {
		t.Fatal(err)
	}
	binary.BigEndian.PutUint32(data[16:], 65535)
	binary.BigEndian.PutUint32(data[20:], 65535)
	binary.BigEndian.PutUint32(data[29:], crc32.ChecksumIEEE(data[12:29]))
	return data
}

func TestDecodeRejectsOversizedHeaders(t *testing.T) {
	vga := Bounds{Width: 640, Height: 480}

	if _, err := DecodeColorJPEG(hugeJPEG(t), time.Now(), Bounds{}); !errors.Is(err, ErrImageTooLarge) {
		t.Errorf("huge jpeg error = %v, want ErrImageTooLarge", err)
	}
	if _, err := DecodeColorJPEG(hugeJPEG(t), time.Now(), vga); !errors.Is(err, ErrImageTooLarge) {
		t.Errorf("huge jpeg within vga error = %v, want ErrImageTooLarge", err)
	}
	if _, err := DecodeDepth(DepthFormatPNG16, hugePNG(t), 0, 0, 0, time.Time{}, Bounds{}); !errors.Is(err, ErrImageTooLarge) {
		t.Errorf("huge png error = %v, want ErrImageTooLarge", err)
	}
	raw := make([]byte, 2*800*600)
	if _, err := DecodeDepth(DepthFormatRaw16LE, raw, 800, 600, 0, time.Time{}, vga); !errors.Is(err, ErrImageTooLarge) {
		t.Errorf("raw beyond vga error = %v, want ErrImageTooLarge", err)
	}
}

func TestBoundsCheck(t *testing.T) {
	tests := []struct {
		name    string
		bounds  Bounds
		w, h    int
		wantErr error
	}{
		{"unbounded small", Bounds{}, 640, 480, nil},
		{"unbounded at cap", Bounds{}, 4096, 4096, nil},
		{"unbounded over cap", Bounds{}, 4097, 4096, ErrImageTooLarge},
		{"exact intrinsics", BoundsOf(&Intrinsics{Width: 640, Height: 480}), 640, 480, nil},
		{"smaller than intrinsics", BoundsOf(&Intrinsics{Width: 640, Height: 480}), 320, 240, nil},
		{"taller than intrinsics", BoundsOf(&Intrinsics{Width: 640, Height: 480}), 640, 481, ErrImageTooLarge},
		{"zero width", Bounds{}, 0, 10, ErrMalformedImage},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.bounds.Check(tt.w, tt.h)
			if tt.wantErr == nil && err != nil {
				t.Errorf("Check(%d, %d) error = %v", tt.w, tt.h, err)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("Check(%d, %d) error = %v, want %v", tt.w, tt.h, err, tt.wantErr)
			}
		})
	}
}
