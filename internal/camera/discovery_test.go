package camera

import (
	"errors"
	"testing"
)

func TestSelectBackFront(t *testing.T) {
	tests := []struct {
		name      string
		cameras   []VirtualCamera
		wantBack  string
		wantFront string
		wantErr   bool
	}{
		{
			name:      "既定の2台",
			cameras:   DefaultVirtualCameras(),
			wantBack:  "0",
			wantFront: "1",
		},
		{
			name: "外部カメラを含む",
			cameras: []VirtualCamera{
				{ID: "5", Facing: FacingExternal},
				{ID: "2", Facing: FacingFront},
				{ID: "3", Facing: FacingBack},
				{ID: "4", Facing: FacingBack},
			},
			wantBack:  "3",
			wantFront: "2",
		},
		{
			name:    "前面カメラなし",
			cameras: []VirtualCamera{{ID: "0", Facing: FacingBack}},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			platform := NewVirtualPlatform(30, tt.cameras...)
			defer platform.Stop()

			back, front, err := SelectBackFront(platform)
			if tt.wantErr {
				if !errors.Is(err, ErrUnknownCamera) {
					t.Errorf("Expected ErrUnknownCamera, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("SelectBackFront failed: %v", err)
			}
			if back != tt.wantBack || front != tt.wantFront {
				t.Errorf("Expected back=%s front=%s, got back=%s front=%s", tt.wantBack, tt.wantFront, back, front)
			}
		})
	}
}

func TestDiscover(t *testing.T) {
	platform := NewVirtualPlatform(30)
	defer platform.Stop()

	descriptors, err := Discover(platform)
	if err != nil {
		t.Fatalf("Discover failed: %v", err)
	}
	if len(descriptors) != 2 {
		t.Fatalf("Expected 2 cameras, got %d", len(descriptors))
	}
	if descriptors[0].Characteristics.ZoomRange == nil {
		t.Error("Expected zoom range for back camera")
	}
	if descriptors[1].Characteristics.ZoomRange != nil {
		t.Error("Expected no zoom range for front camera")
	}
}

func TestParseRole(t *testing.T) {
	if r, ok := ParseRole("main"); !ok || r != RoleMain {
		t.Errorf("Expected main, got %q %v", r, ok)
	}
	if _, ok := ParseRole("wide"); ok {
		t.Error("Expected unknown role to fail")
	}
}
