// Package bytesize parses and formats human-readable byte counts.
package bytesize

import (
	"fmt"
	"strconv"
	"strings"
)

const (
	KiB = 1024
	MiB = KiB * 1024
	GiB = MiB * 1024
	TiB = GiB * 1024
)

// Format formats b as a human-readable string using binary units.
func Format(b int64) string {
	var (
		unit string
		div  int64
	)
	switch {
	case b >= TiB:
		unit, div = "TiB", TiB
	case b >= GiB:
		unit, div = "GiB", GiB
	case b >= MiB:
		unit, div = "MiB", MiB
	case b >= KiB:
		unit, div = "KiB", KiB
	default:
		return fmt.Sprintf("%d B", b)
	}

	v := float64(b) / float64(div)
	if v >= 100 {
		return fmt.Sprintf("%.0f %s", v, unit)
	}
	return fmt.Sprintf("%.1f %s", v, unit)
}

// units is checked in order, so longer suffixes come first.
var units = []struct {
	suffix     string
	multiplier float64
}{
	{"TiB", TiB},
	{"GiB", GiB},
	{"MiB", MiB},
	{"KiB", KiB},
	{"TB", 1e12},
	{"GB", 1e9},
	{"MB", 1e6},
	{"KB", 1e3},
	{"B", 1},
}

// Parse parses a byte string such as "64KiB", "1.5MB" or "100".
// IEC suffixes (KiB) are powers of 1024, SI suffixes (KB) powers of 1000.
func Parse(s string) (int64, error) {
	s = strings.TrimSpace(s)
	multiplier := 1.0
	for _, u := range units {
		if strings.HasSuffix(s, u.suffix) {
			multiplier = u.multiplier
			s = strings.TrimSpace(strings.TrimSuffix(s, u.suffix))
			break
		}
	}

	value, err := strconv.ParseFloat(s, 64)
	if err != nil || value < 0 {
		return 0, fmt.Errorf("invalid byte string: %q", s)
	}

	return int64(value * multiplier), nil
}
