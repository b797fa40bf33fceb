package normalize

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// sentinels are placeholder cells that mean "no value" rather than a parse error.
var sentinels = map[string]struct{}{
	"":     {},
	"-":    {},
	"--":   {},
	"---":  {},
	"----": {},
	"X":    {},
	"N/A":  {},
	"除權":   {},
	"除息":   {},
	"除權息":  {},
	"暫停交易": {},
}

// ParseFloat parses a numeric cell, stripping thousands separators and treating sentinels as zero.
func ParseFloat(s string) (float64, error) {
	v := strings.ReplaceAll(stripTags(s), ",", "")
	v = strings.TrimSpace(v)
	if _, ok := sentinels[v]; ok {
		return 0, nil
	}
	// 除權息マーカー付きの値（例: "X0.00"）はマーカーを落として読む
	v = strings.TrimPrefix(v, "X")
	v = strings.TrimPrefix(v, "+")
	if _, ok := sentinels[v]; ok {
		return 0, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("not a number: %q", s)
	}
	return f, nil
}

// ParseInt parses an integer cell with the same hygiene as ParseFloat.
func ParseInt(s string) (int64, error) {
	f, err := ParseFloat(s)
	if err != nil {
		return 0, err
	}
	return int64(math.Round(f)), nil
}

// ParseSign reads the direction column used by the primary exchange, which may carry HTML
// such as `<p style= color:green>-</p>`. It returns -1 for a down move and 1 otherwise.
func ParseSign(s string) float64 {
	if strings.Contains(stripTags(s), "-") {
		return -1
	}
	return 1
}

func stripTags(s string) string {
	if !strings.Contains(s, "<") {
		return s
	}
	var b strings.Builder
	depth := 0
	for _, r := range s {
		switch {
		case r == '<':
			depth++
		case r == '>' && depth > 0:
			depth--
		case depth == 0:
			b.WriteRune(r)
		}
	}
	return b.String()
}
