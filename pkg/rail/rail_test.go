package rail

import (
	"errors"
	"testing"
)

func TestProfile_Clamp(t *testing.T) {
	tests := []struct {
		name string
		in   Profile
		want Profile
	}{
		{
			name: "out of range on every rail",
			in:   Profile{CPU: 2000, GPU: 700, MEM: 2000},
			want: Profile{CPU: 1500, GPU: 800, MEM: 1800},
		},
		{
			name: "memory below floor",
			in:   Profile{CPU: 1000, GPU: 1000, MEM: 900},
			want: Profile{CPU: 1000, GPU: 1000, MEM: 1100},
		},
		{
			name: "already safe",
			in:   Profile{CPU: 1100, GPU: 950, MEM: 1200},
			want: Profile{CPU: 1100, GPU: 950, MEM: 1200},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.in.Clamp(); got != tt.want {
				t.Errorf("Clamp() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestPresets_AreSafe(t *testing.T) {
	for _, name := range PresetNames() {
		p, err := Preset(name)
		if err != nil {
			t.Fatalf("Preset(%q) error = %v", name, err)
		}
		if err := p.Validate(); err != nil {
			t.Errorf("preset %q invalid: %v", name, err)
		}
	}
}

func TestPreset_Unknown(t *testing.T) {
	_, err := Preset("turbo")
	if !errors.Is(err, ErrUnknownProfile) {
		t.Errorf("expected ErrUnknownProfile, got %v", err)
	}
}

func TestPreset_Performance(t *testing.T) {
	p, err := Preset(PresetPerformance)
	if err != nil {
		t.Fatal(err)
	}
	want := Profile{CPU: 1400, GPU: 1350, MEM: 1500}
	if p != want {
		t.Errorf("performance = %+v, want %+v", p, want)
	}
}

func TestParse(t *testing.T) {
	tests := []struct {
		in      string
		want    ID
		wantErr bool
	}{
		{"cpu", CPU, false},
		{"vdd-gpu", GPU, false},
		{"VDD_MEM", MEM, false},
		{"io", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := Parse(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Parse(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("Parse(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestFormatVolts(t *testing.T) {
	tests := map[int]string{
		1400: "1.400 V",
		950:  "0.950 V",
		1105: "1.105 V",
	}
	for mv, want := range tests {
		if got := FormatVolts(mv); got != want {
			t.Errorf("FormatVolts(%d) = %q, want %q", mv, got, want)
		}
	}
}

func TestProfile_With(t *testing.T) {
	base := Default()
	changed := base.With(GPU, 1234)
	if changed.GPU != 1234 {
		t.Errorf("GPU = %d, want 1234", changed.GPU)
	}
	if base.GPU != 950 {
		t.Errorf("original mutated: GPU = %d", base.GPU)
	}
}
