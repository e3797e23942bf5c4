// Package cli provides output helpers for upllctl.
package cli

import (
	"os"
	"strings"
)

// colorEnabled is false when NO_COLOR env var is set (per no-color.org).
var colorEnabled = os.Getenv("NO_COLOR") == ""

func paint(code, s string) string {
	if !colorEnabled {
		return s
	}
	return code + s + "\033[0m"
}

// Green wraps s in ANSI green. Returns s unchanged when NO_COLOR is set.
func Green(s string) string { return paint("\033[32m", s) }

// Yellow wraps s in ANSI yellow. Returns s unchanged when NO_COLOR is set.
func Yellow(s string) string { return paint("\033[33m", s) }

// Red wraps s in ANSI red. Returns s unchanged when NO_COLOR is set.
func Red(s string) string { return paint("\033[31m", s) }

// Bold wraps s in ANSI bold. Returns s unchanged when NO_COLOR is set.
func Bold(s string) string { return paint("\033[1m", s) }

// Dim wraps s in ANSI dim. Returns s unchanged when NO_COLOR is set.
func Dim(s string) string { return paint("\033[2m", s) }

// Status colors a config-status name: green when applied, yellow when
// partial or pending, red when invalid, dim otherwise.
func Status(cs string) string {
	switch cs {
	case "APPLIED":
		return Green(cs)
	case "PARTIALLY_APPLIED", "NOT_APPLIED":
		return Yellow(cs)
	case "INVALID":
		return Red(cs)
	}
	return Dim(cs)
}

// Attrs renders attributes as sorted name=value pairs.
func Attrs(names []string, value func(string) string) string {
	parts := make([]string, 0, len(names))
	for _, n := range names {
		parts = append(parts, n+"="+value(n))
	}
	return strings.Join(parts, ",")
}
