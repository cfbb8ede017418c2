package common

import (
	"strconv"
	"strings"
)

// HasAny returns true if s contains any of the substrings.
func HasAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

// Between returns the text between the first occurrence of start and the
// next occurrence of end after it.
func Between(s, start, end string) (string, bool) {
	i := strings.Index(s, start)
	if i < 0 {
		return "", false
	}
	rest := s[i+len(start):]
	j := strings.Index(rest, end)
	if j < 0 {
		return "", false
	}
	return strings.TrimSpace(rest[:j]), true
}

// ParseFloatPtr parses s as a float; empty or unparsable input yields nil.
func ParseFloatPtr(s string) *float64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil
	}
	return &v
}

// SplitCompound splits an id like "siteId_configId" into exactly n parts.
func SplitCompound(id string, n int) ([]string, bool) {
	parts := strings.Split(id, "_")
	if len(parts) != n {
		return nil, false
	}
	return parts, true
}
