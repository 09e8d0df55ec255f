// Package colourise decorates terminal output with ANSI colours.
package colourise

import (
	"fmt"
	"hash/crc32"
)

// palette holds the 256-colour codes that stay readable on a dark background.
var palette = buildPalette()

func buildPalette() []uint8 {
	p := []uint8{9, 10, 11, 12, 13, 14}
	for c := 21; c <= 231; c++ {
		switch {
		case c >= 52 && c <= 62, c >= 88 && c <= 91, c == 145, c == 159:
			continue
		}
		p = append(p, uint8(c))
	}
	return p
}

// ApplyColour wraps value in the escape sequence for a colour picked by hashing
// value, so the same string is always the same colour.
func ApplyColour(value string) string {
	i := crc32.ChecksumIEEE([]byte(value)) % uint32(len(palette)) //nolint:gosec
	return fmt.Sprintf("\033[1;38;5;%dm%s\033[0m", palette[i], value)
}

// ErrorHighlight renders s as white on red.
func ErrorHighlight(s string) string {
	return fmt.Sprintf("\033[1;37;41m%s\033[0m", s)
}
