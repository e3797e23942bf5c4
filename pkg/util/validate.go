package util

import (
	"fmt"
	"net"
	"strconv"
	"strings"
)

// MaxNameLen bounds key components and controller names.
const MaxNameLen = 31

// ValidateName checks a key component: 1 to MaxNameLen characters of
// letters, digits, '-' and '_', starting with a letter or digit.
func ValidateName(name string) error {
	if name == "" || len(name) > MaxNameLen {
		return fmt.Errorf("name %q must be 1-%d characters", name, MaxNameLen)
	}
	for i := 0; i < len(name); i++ {
		c := name[i]
		alnum := (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
		if !alnum && (i == 0 || (c != '-' && c != '_')) {
			return fmt.Errorf("name %q has invalid character %q", name, c)
		}
	}
	return nil
}

// IsValidIPv4 checks if a string is a valid IPv4 address
func IsValidIPv4(ipStr string) bool {
	ip := net.ParseIP(ipStr)
	return ip != nil && ip.To4() != nil
}

// ValidatePrefixLen checks an IPv4 prefix length given as a string.
func ValidatePrefixLen(s string) error {
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 || n > 32 {
		return fmt.Errorf("prefix length must be between 1 and 32, got %q", s)
	}
	return nil
}

// SplitCommaSeparated splits a comma-separated string and trims whitespace from each element.
// Empty input returns nil.
func SplitCommaSeparated(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			result = append(result, p)
		}
	}
	return result
}
