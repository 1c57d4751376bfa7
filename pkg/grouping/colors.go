package grouping

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

var palette = []string{"#3498db", "#e67e22", "#27ae60", "#9b59b6", "#e74c3c", "#16a085"}

// GroupColor returns a stable color for the n-th group in a listing.
// Colors repeat every len(palette) groups, one shade darker each time.
func GroupColor(n int) string {
	if n < 0 {
		n = 0
	}
	return ShadeColorByIndex(palette[n%len(palette)], n/len(palette))
}

func parseHex(hexColor string) (r, g, b int64, ok bool) {
	hex := strings.TrimPrefix(hexColor, "#")
	if len(hex) != 6 {
		return 0, 0, 0, false
	}
	r, errR := strconv.ParseInt(hex[0:2], 16, 64)
	g, errG := strconv.ParseInt(hex[2:4], 16, 64)
	b, errB := strconv.ParseInt(hex[4:6], 16, 64)
	if errR != nil || errG != nil || errB != nil {
		return 0, 0, 0, false
	}
	return r, g, b, true
}

func clamp(v int64) int64 {
	return max(0, min(255, v))
}

func formatHex(r, g, b int64) string {
	return fmt.Sprintf("#%02x%02x%02x", clamp(r), clamp(g), clamp(b))
}

// ShadeColorByIndex darkens baseColor by 10% per index, capped at 50%.
// Invalid colors are returned unchanged.
func ShadeColorByIndex(baseColor string, index int) string {
	r, g, b, ok := parseHex(baseColor)
	if !ok {
		return baseColor
	}
	shade := math.Min(float64(index)*0.1, 0.5)
	return formatHex(
		int64(float64(r)*(1-shade)),
		int64(float64(g)*(1-shade)),
		int64(float64(b)*(1-shade)),
	)
}

// LightenColor moves a hex color towards white by amount (0.0 to 1.0).
func LightenColor(baseColor string, amount float64) string {
	r, g, b, ok := parseHex(baseColor)
	if !ok {
		return baseColor
	}
	return formatHex(
		r+int64(float64(255-r)*amount),
		g+int64(float64(255-g)*amount),
		b+int64(float64(255-b)*amount),
	)
}

// luminance is the WCAG relative luminance, 0 for black and 1 for white.
func luminance(hexColor string) float64 {
	r, g, b, ok := parseHex(hexColor)
	if !ok {
		return 0
	}
	linear := func(v int64) float64 {
		c := float64(v) / 255
		if c <= 0.03928 {
			return c / 12.92
		}
		return math.Pow((c+0.055)/1.055, 2.4)
	}
	return 0.2126*linear(r) + 0.7152*linear(g) + 0.0722*linear(b)
}

// ContrastRatio is the WCAG contrast ratio of two colors, from 1 to 21.
func ContrastRatio(a, b string) float64 {
	la, lb := luminance(a), luminance(b)
	if la < lb {
		la, lb = lb, la
	}
	return (la + 0.05) / (lb + 0.05)
}

// ReadableForeground picks the text color with the better contrast on bg.
func ReadableForeground(bg string) string {
	const light, dark = "#ffffff", "#1a1a1a"
	if ContrastRatio(dark, bg) > ContrastRatio(light, bg) {
		return dark
	}
	return light
}
