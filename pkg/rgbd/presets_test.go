package rgbd

import (
	"errors"
	"math"
	"testing"
)

func TestPresetsAreValid(t *testing.T) {
	for _, name := range PresetNames() {
		t.Run(name, func(t *testing.T) {
			in := GetPreset(name)
			if in == nil {
				t.Fatal("GetPreset returned nil")
			}
			if err := in.CheckValid(); err != nil {
				t.Errorf("CheckValid() error = %v", err)
			}
		})
	}
}

func TestFromHFOV(t *testing.T) {
	in := fromHFOV(640, 480, 90)
	// tan(45deg) = 1, so f = width/2
	if math.Abs(in.Fx-320) > 1e-9 || in.Fx != in.Fy {
		t.Errorf("focal = %v/%v, want 320", in.Fx, in.Fy)
	}
	if in.Ppx != 320 || in.Ppy != 240 {
		t.Errorf("principal point = (%v, %v)", in.Ppx, in.Ppy)
	}
}

func TestLoadIntrinsicsPreset(t *testing.T) {
	tests := []struct {
		location string
		want     *Intrinsics
		wantErr  error
	}{
		{"preset:d435", GetPreset(PresetD435), nil},
		{"preset:D435", GetPreset(PresetD435), nil},
		{"preset:nope", nil, ErrInvalidIntrinsics},
	}

	for _, tt := range tests {
		t.Run(tt.location, func(t *testing.T) {
			got, err := LoadIntrinsics(tt.location)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("LoadIntrinsics() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("LoadIntrinsics() error = %v", err)
			}
			if *got != *tt.want {
				t.Errorf("LoadIntrinsics() = %+v, want %+v", got, tt.want)
			}
		})
	}
}
