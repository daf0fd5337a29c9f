package detect

import (
	"strings"
	"testing"
)

func TestClassName(t *testing.T) {
	tests := []struct {
		id   int
		want string
	}{
		{0, "person"},
		{16, "dog"},
		{56, "chair"},
		{58, "potted plant"},
		{79, "toothbrush"},
		{80, ""},
		{-1, ""},
	}
	for _, tt := range tests {
		if got := ClassName(tt.id); got != tt.want {
			t.Errorf("ClassName(%d) = %q, want %q", tt.id, got, tt.want)
		}
	}
	if len(COCOClasses) != 80 {
		t.Errorf("len(COCOClasses) = %d, want 80", len(COCOClasses))
	}
}

func TestLabels(t *testing.T) {
	dets := []Detection{{Label: "person"}, {Label: "dog"}, {Label: "person"}}
	if got := strings.Join(Labels(dets), ","); got != "person,dog,person" {
		t.Errorf("Labels = %q", got)
	}
	if got := Labels(nil); len(got) != 0 {
		t.Errorf("Labels(nil) = %v", got)
	}
}
