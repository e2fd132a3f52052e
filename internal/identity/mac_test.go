package identity

import (
	"errors"
	"testing"
)

func TestNormalizeMAC(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{"colon uppercase", "AA:BB:CC:11:22:33", "aabbcc112233", false},
		{"colon lowercase", "aa:bb:cc:11:22:33", "aabbcc112233", false},
		{"dash separated", "aa-bb-cc-11-22-33", "aabbcc112233", false},
		{"dotted", "aabb.cc11.2233", "aabbcc112233", false},
		{"bare", "AABBCC112233", "aabbcc112233", false},
		{"mixed case bare", "a8Bb50112233", "a8bb50112233", false},
		{"too short", "aa:bb:cc", "", true},
		{"too long", "aa:bb:cc:11:22:33:44", "", true},
		{"non-hex", "zz:bb:cc:11:22:33", "", true},
		{"empty", "", "", true},
		{"garbage", "not a mac", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NormalizeMAC(tt.input)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidMAC) {
					t.Errorf("NormalizeMAC(%q) error = %v, want ErrInvalidMAC", tt.input, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("NormalizeMAC(%q) error = %v", tt.input, err)
			}
			if got != tt.want {
				t.Errorf("NormalizeMAC(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestShortID(t *testing.T) {
	// All format variations of the same MAC must yield the same short ID.
	variants := []string{
		"AA:BB:CC:11:22:33",
		"aa:bb:cc:11:22:33",
		"aa-bb-cc-11-22-33",
		"aabbcc112233",
		"AABBCC112233",
	}

	for _, v := range variants {
		if got := ShortID(v); got != "112233" {
			t.Errorf("ShortID(%q) = %q, want %q", v, got, "112233")
		}
	}
}

func TestShortID_Length(t *testing.T) {
	got := ShortID("a8:bb:50:d4:6a:9f")
	if len(got) != 6 {
		t.Errorf("ShortID length = %d, want 6", len(got))
	}
	if got != "D46A9F" {
		t.Errorf("ShortID = %q, want %q", got, "D46A9F")
	}
}
