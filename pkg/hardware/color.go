package hardware

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Color is a packed 0xRRGGBB value.
type Color uint32

// Named colors understood by ParseColor.
const (
	Black  Color = 0x000000
	Red    Color = 0xFF0000
	Green  Color = 0x00FF00
	Blue   Color = 0x0000FF
	Yellow Color = 0xFFFF00
	Purple Color = 0xFF00FF
	Teal   Color = 0x00FFFF
	Orange Color = 0xFF8000
)

// ErrUnknownColor is returned by ParseColor for names it does not know.
var ErrUnknownColor = errors.New("hardware: unknown color")

var colorNames = map[string]Color{
	"black":  Black,
	"off":    Black,
	"red":    Red,
	"green":  Green,
	"blue":   Blue,
	"yellow": Yellow,
	"purple": Purple,
	"teal":   Teal,
	"orange": Orange,
}

// RGB splits the color into its channels.
func (c Color) RGB() (r, g, b uint8) {
	return uint8(c >> 16), uint8(c >> 8), uint8(c)
}

// String returns the color as #rrggbb.
func (c Color) String() string {
	return fmt.Sprintf("#%06x", uint32(c)&0xFFFFFF)
}

// RGB builds a color from its channels.
func RGB(r, g, b uint8) Color {
	return Color(r)<<16 | Color(g)<<8 | Color(b)
}

// Scale dims each channel linearly by brightness/255.
// Integer truncation happens per channel so ramps are reproducible.
func Scale(c Color, brightness uint8) Color {
	bri := uint32(brightness)
	r := ((uint32(c) >> 16) & 0xFF) * bri / 255
	g := ((uint32(c) >> 8) & 0xFF) * bri / 255
	b := (uint32(c) & 0xFF) * bri / 255
	return Color(r<<16 | g<<8 | b)
}

// ParseColor accepts a color name ("green"), "#rrggbb" or "0xRRGGBB".
func ParseColor(s string) (Color, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	if c, ok := colorNames[name]; ok {
		return c, nil
	}

	hex := ""
	switch {
	case strings.HasPrefix(name, "#"):
		hex = name[1:]
	case strings.HasPrefix(name, "0x"):
		hex = name[2:]
	}
	if len(hex) != 6 {
		return 0, fmt.Errorf("%w: %q", ErrUnknownColor, s)
	}
	v, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrUnknownColor, s)
	}
	return Color(v), nil
}
