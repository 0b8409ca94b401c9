package search

import (
	"reflect"
	"testing"
)

func TestNormalizeQuery(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"bmw oil filter", "BMW OIL FILTER"},
		{"  bmw   Oil  Filter ", "BMW OIL FILTER"},
		{"11427566327", "11427566327"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := NormalizeQuery(tt.in); got != tt.want {
			t.Errorf("NormalizeQuery(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestExtractPartNumbers(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want []string
	}{
		{"bmw oem numeric", "11427566327", []string{"11427566327"}},
		{"numeric with keywords", "34116794300 brake rotor", []string{"34116794300"}},
		{"dashed", "filter 04152-YZZA1", []string{"04152-YZZA1", "YZZA1"}},
		{"dashed short segments", "MO-533 oil filter", []string{"MO-533"}},
		{"hash prefix", "part # WJ8997688", []string{"WJ8997688"}},
		{"no candidates", "brake pads front", nil},
		{"year not a part number", "2015 honda civic", nil},
		{"empty", "   ", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ExtractPartNumbers(tt.in)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("ExtractPartNumbers(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestNormalizePartNumber(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"11-42-7-566-327", "11427566327"},
		{"11427566327", "11427566327"},
		{"w719/45", "W71945"},
		{" mo.533 ", "MO533"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := NormalizePartNumber(tt.in); got != tt.want {
			t.Errorf("NormalizePartNumber(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
