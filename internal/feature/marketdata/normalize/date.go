// Package normalize converts the exchanges' heterogeneous payloads into canonical quotes.
//
// Nothing in this package performs I/O. Callers hand it raw bodies or rows and get back
// entity.Quote values or typed errors from the marketdata domain package.
package normalize

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"stock_scanner/internal/feature/marketdata/domain"
)

// rocOffset は民国紀年から西暦への変換オフセットです。
const rocOffset = 1911

// ToGregorian converts an upstream date into YYYY-MM-DD.
//
// Accepted shapes:
//   - delimited triples ("113/01/02", "2024-01-02"); a first part below 1000 is a Republic-era year
//   - 8 digits: Gregorian YYYYMMDD
//   - 7 digits: Republic-era YYYMMDD
//   - 6 digits: Republic-era YYMMDD
//
// Anything else fails with domain.ErrUnrecognizedDateFormat.
func ToGregorian(s string) (string, error) {
	t, err := ParseDate(s)
	if err != nil {
		return "", err
	}
	return t.Format(time.DateOnly), nil
}

// ParseDate is ToGregorian returning a UTC midnight time.Time.
func ParseDate(s string) (time.Time, error) {
	raw := strings.TrimSpace(s)
	if parts, ok := splitDelimited(raw); ok {
		y, errY := strconv.Atoi(parts[0])
		m, errM := strconv.Atoi(parts[1])
		d, errD := strconv.Atoi(parts[2])
		if errY != nil || errM != nil || errD != nil {
			return time.Time{}, unrecognized(s)
		}
		if y < 1000 {
			y += rocOffset
		}
		return buildDate(y, m, d, s)
	}

	digits := onlyDigits(raw)
	var y, m, d int
	switch len(digits) {
	case 8:
		y, m, d = atoi(digits[:4]), atoi(digits[4:6]), atoi(digits[6:8])
	case 7:
		y, m, d = atoi(digits[:3])+rocOffset, atoi(digits[3:5]), atoi(digits[5:7])
	case 6:
		y, m, d = atoi(digits[:2])+rocOffset, atoi(digits[2:4]), atoi(digits[4:6])
	default:
		return time.Time{}, unrecognized(s)
	}
	return buildDate(y, m, d, s)
}

// ROCDate formats t as a Republic-era "YYY/MM/DD" string, as expected by TPEx query parameters.
func ROCDate(t time.Time) string {
	return fmt.Sprintf("%d/%02d/%02d", t.Year()-rocOffset, int(t.Month()), t.Day())
}

// ROCMonth formats t as "YYY/MM".
func ROCMonth(t time.Time) string {
	return fmt.Sprintf("%d/%02d", t.Year()-rocOffset, int(t.Month()))
}

func splitDelimited(s string) ([]string, bool) {
	if !strings.ContainsAny(s, "/-.") {
		return nil, false
	}
	parts := strings.FieldsFunc(s, func(r rune) bool { return r == '/' || r == '-' || r == '.' })
	if len(parts) != 3 {
		return nil, false
	}
	for _, p := range parts {
		if p == "" || onlyDigits(p) != p {
			return nil, false
		}
	}
	return parts, true
}

func buildDate(y, m, d int, orig string) (time.Time, error) {
	if m < 1 || m > 12 || d < 1 || d > 31 || y < 1 {
		return time.Time{}, unrecognized(orig)
	}
	t := time.Date(y, time.Month(m), d, 0, 0, 0, 0, time.UTC)
	// 2月30日のような存在しない日付は time.Date が繰り上げるので弾く
	if t.Day() != d || int(t.Month()) != m {
		return time.Time{}, unrecognized(orig)
	}
	return t, nil
}

func onlyDigits(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}

func unrecognized(s string) error {
	return fmt.Errorf("%w: %q", domain.ErrUnrecognizedDateFormat, s)
}
