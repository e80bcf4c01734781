package cli

import (
	"fmt"
	"os"
	"strings"
)

const (
	Reset  = "\033[0m"
	Bold   = "\033[1m"
	Dim    = "\033[2m"
	Red    = "\033[31m"
	Green  = "\033[32m"
	Yellow = "\033[33m"
	Blue   = "\033[34m"
	Purple = "\033[35m"
	Cyan   = "\033[36m"
	White  = "\033[37m"
)

// RGB represents a TrueColor
type RGB struct {
	R, G, B float64
}

var (
	BrandBlue   = RGB{0, 120, 255}
	BrandPurple = RGB{189, 52, 235}
)

// disableColor is a cached check for the environment variable
var disableColor = checkNoColor()

func checkNoColor() bool {
	_, exists := os.LookupEnv("NO_COLOR")
	return exists
}

// Enabled reports whether ANSI colors are emitted.
func Enabled() bool {
	return !disableColor
}

// SetEnabled overrides the NO_COLOR detection, e.g. for JSON log output.
func SetEnabled(on bool) {
	disableColor = !on
}

// Style wraps text in a specific color code
func Style(text string, colorCode string) string {
	if disableColor {
		return text
	}
	return fmt.Sprintf("%s%s%s", colorCode, text, Reset)
}

// ColorizeRGB returns text wrapped in ANSI TrueColor escape codes
func ColorizeRGB(text string, c RGB) string {
	if disableColor {
		return text
	}
	return fmt.Sprintf("\033[38;2;%d;%d;%dm%s\033[0m", int(c.R), int(c.G), int(c.B), text)
}

// Gradient returns the text colored with a linear interpolation between start and end colors
// based on the progress (0.0 to 1.0)
func Gradient(text string, start, end RGB, progress float64) string {
	if disableColor {
		return text
	}
	r := start.R + (end.R-start.R)*progress
	g := start.G + (end.G-start.G)*progress
	b := start.B + (end.B-start.B)*progress

	return ColorizeRGB(text, RGB{r, g, b})
}

func CheckMark() string {
	return Style("✔", Green)
}

func Arrow() string {
	return Style("➜", Blue)
}

func CrossMark() string {
	return Style("✘", Red)
}

// Banner renders the startup banner, one gradient step per line.
func Banner(lines []string) string {
	var b strings.Builder
	for i, line := range lines {
		progress := 0.0
		if len(lines) > 1 {
			progress = float64(i) / float64(len(lines)-1)
		}
		b.WriteString(Gradient(line, BrandBlue, BrandPurple, progress))
		b.WriteByte('\n')
	}
	return b.String()
}

// ProviderLine is one row of the startup provider summary.
func ProviderLine(id string, enabled bool, usable, total int) string {
	mark := CheckMark()
	if !enabled || usable == 0 {
		mark = CrossMark()
	}
	return fmt.Sprintf("  %s %s %s", mark, Style(fmt.Sprintf("%-12s", id), Bold),
		Style(fmt.Sprintf("%d/%d credentials usable", usable, total), Dim))
}
