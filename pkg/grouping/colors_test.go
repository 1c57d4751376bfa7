package grouping

import (
	"math"
	"testing"
)

func TestColors(t *testing.T) {
	tests := []struct {
		name string
		got  string
		want string
	}{
		{"shade zero", ShadeColorByIndex("#3498db", 0), "#3498db"},
		{"shade capped", ShadeColorByIndex("#ffffff", 9), "#7f7f7f"},
		{"shade invalid", ShadeColorByIndex("blue", 2), "blue"},
		{"lighten full", LightenColor("#000000", 1.0), "#ffffff"},
		{"lighten none", LightenColor("#123456", 0), "#123456"},
		{"group color wraps", GroupColor(6), ShadeColorByIndex("#3498db", 1)},
		{"negative group", GroupColor(-1), "#3498db"},
		{"text on white", ReadableForeground("#ffffff"), "#1a1a1a"},
		{"text on black", ReadableForeground("#000000"), "#ffffff"},
		{"text on yellow", ReadableForeground("#f1c40f"), "#1a1a1a"},
		{"text on navy", ReadableForeground("#1f3a93"), "#ffffff"},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("%s: got %s, want %s", tt.name, tt.got, tt.want)
		}
	}
}

func TestContrastRatio(t *testing.T) {
	if got := ContrastRatio("#000000", "#ffffff"); math.Abs(got-21) > 0.01 {
		t.Errorf("black on white = %.2f, want 21", got)
	}
	if got := ContrastRatio("#3498db", "#3498db"); got != 1 {
		t.Errorf("same color = %.2f, want 1", got)
	}
	if got, rev := ContrastRatio("#e67e22", "#ffffff"), ContrastRatio("#ffffff", "#e67e22"); got != rev {
		t.Errorf("ratio should be symmetric: %.3f vs %.3f", got, rev)
	}
}
