package utils

import (
	"fmt"
	"strings"
	"time"

	"github.com/goombaio/namegenerator"
	"github.com/muesli/reflow/truncate"
)

// GenerateDeviceName creates a random, memorable device name such as "wispy-dust"
func GenerateDeviceName() string {
	seed := time.Now().UTC().UnixNano()
	name := namegenerator.NewNameGenerator(seed).Generate()

	return strings.ReplaceAll(name, "_", "-")
}

// FormatAgo renders how long ago t was, or "never" for a zero time
func FormatAgo(t time.Time, now time.Time) string {
	if t.IsZero() {
		return "never"
	}

	d := now.Sub(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 48*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	}
}

// Truncate shortens s to max terminal cells, ending in an ellipsis when cut
func Truncate(s string, max int) string {
	if max < 2 {
		return s
	}
	return truncate.StringWithTail(s, uint(max), "…")
}
