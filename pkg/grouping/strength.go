package grouping

import (
	"strconv"
	"strings"
)

// strengthValue extracts the leading numeric component of a free-text
// strength ("10 MG" -> 10, "2.5 MG/ML" -> 2.5). Unparseable strengths
// sort last.
func strengthValue(s string) float64 {
	s = strings.TrimSpace(s)
	end := 0
	seenDigit := false
	for end < len(s) {
		c := s[end]
		if c >= '0' && c <= '9' {
			seenDigit = true
			end++
			continue
		}
		if c == '.' && seenDigit {
			end++
			continue
		}
		break
	}
	if !seenDigit {
		return maxStrength
	}
	v, err := strconv.ParseFloat(s[:end], 64)
	if err != nil {
		return maxStrength
	}
	return v
}

const maxStrength = 1e12
