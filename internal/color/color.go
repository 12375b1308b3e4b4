// Package color derives a representative color from a product image and a
// softened "ambient" tint used for card backgrounds.
package color

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
)

// DefaultOpacity is the alpha used for ambient tints when none is given.
const DefaultOpacity = 0.15

// Fallback is returned whenever an image cannot be sampled.
var Fallback = RGB{R: 240, G: 240, B: 240}

var channelPattern = regexp.MustCompile(`\d+`)

// RGB is a color with three 8-bit channels.
type RGB struct {
	R uint8 `json:"r"`
	G uint8 `json:"g"`
	B uint8 `json:"b"`
}

// String formats the color as a CSS rgb() value.
func (c RGB) String() string {
	return fmt.Sprintf("rgb(%d, %d, %d)", c.R, c.G, c.B)
}

// Ambient returns the ambient tint of c at the given opacity.
func (c RGB) Ambient(opacity float64) string {
	return CreateAmbientColor(c.String(), opacity)
}

// CreateAmbientColor desaturates and lightens a color and returns it as a
// CSS rgba() value with the given opacity. The first three integers found in
// color are used as the channels; anything less yields the fallback tint.
func CreateAmbientColor(color string, opacity float64) string {
	matches := channelPattern.FindAllString(color, -1)
	if len(matches) < 3 {
		return rgba(float64(Fallback.R), float64(Fallback.G), float64(Fallback.B), opacity)
	}

	channels := make([]float64, 3)
	for i := range channels {
		v, err := strconv.ParseFloat(matches[i], 64)
		if err != nil {
			return rgba(float64(Fallback.R), float64(Fallback.G), float64(Fallback.B), opacity)
		}
		channels[i] = v
	}

	avg := (channels[0] + channels[1] + channels[2]) / 3
	for i, c := range channels {
		// desaturate toward the average, then lighten toward white
		c = math.Floor(c + (avg-c)*0.4)
		channels[i] = math.Min(255, math.Floor(c+(255-c)*0.3))
	}

	return rgba(channels[0], channels[1], channels[2], opacity)
}

func rgba(r, g, b, opacity float64) string {
	return fmt.Sprintf("rgba(%s, %s, %s, %s)",
		formatNumber(r),
		formatNumber(g),
		formatNumber(b),
		formatNumber(opacity),
	)
}

func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
