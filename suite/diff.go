package suite

import (
	"fmt"
	"strings"
)

const (
	PassedLine = "Test Suite Passed! "
	nothing    = "[NOTHING]"
)

// Compare diffs expected against actual position by position. A received
// line matches when it equals the expected line, or does so once one of
// prefixes ("TCP Client: " and the like) is stripped. It returns one line
// per discrepancy, or PassedLine when there are none.
func Compare(expected, actual, prefixes []string) []string {
	var out []string

	n := min(len(expected), len(actual))
	for i := 0; i < n; i++ {
		if !matches(actual[i], expected[i], prefixes) {
			out = append(out, fmt.Sprintf("Test %d: received %s expected %s", i, actual[i], expected[i]))
		}
	}

	for i := n; i < len(expected); i++ {
		out = append(out, fmt.Sprintf("%d received %s expected %s", i, nothing, expected[i]))
	}
	for i := n; i < len(actual); i++ {
		out = append(out, fmt.Sprintf("%d Received %s expected %s", i, actual[i], nothing))
	}

	if len(out) == 0 {
		return []string{PassedLine}
	}
	return out
}

func matches(actual, expected string, prefixes []string) bool {
	if actual == expected {
		return true
	}
	for _, p := range prefixes {
		if rest, ok := strings.CutPrefix(actual, p); ok && rest == expected {
			return true
		}
	}
	return false
}
