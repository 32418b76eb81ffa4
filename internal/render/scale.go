package render

import (
	"fmt"
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

type unitScale struct {
	base  float64
	units []string
}

var unitScales = map[string]unitScale{
	"bandwidth":    {base: 1000, units: []string{"B/s", "KB/s", "MB/s", "GB/s", "TB/s", "PB/s", "EB/s"}},
	"binary_bytes": {base: 1024, units: []string{"B", "KiB", "MiB", "GiB", "TiB", "PiB", "EiB"}},
	"bytes":        {base: 1000, units: []string{"B", "KB", "MB", "GB", "TB", "PB", "EB"}},
	"bits":         {base: 1000, units: []string{"b", "Kb", "Mb", "Gb", "Tb", "Pb", "Eb"}},
	"iops":         {base: 1000, units: []string{"", "k", "m", "b", "t"}},
}

// Scales returns the known unit scale names, sorted.
func Scales() []string {
	out := make([]string, 0, len(unitScales))
	for name := range unitScales {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// HasScale reports whether name is a known unit scale.
func HasScale(name string) bool {
	_, ok := unitScales[name]
	return ok
}

// AutoScale renders value in the largest unit of scale where it stays >= 1
// once rounded to two places. For example 1536 in binary_bytes is
// "1.50 KiB". Negative values stay in the base unit.
func AutoScale(value float64, scale string, precision int) (string, error) {
	s, ok := unitScales[scale]
	if !ok {
		return "", fmt.Errorf("unknown scale %q", scale)
	}
	if math.IsNaN(value) {
		value = 0
	}
	lowest, unit := value, s.units[0]
	current := value
	for _, next := range s.units[1:] {
		current = SafeDivide(current, s.base)
		if current < 1 {
			break
		}
		lowest, unit = current, next
	}
	return strings.TrimRight(strconv.FormatFloat(lowest, 'f', precision, 64)+" "+unit, " "), nil
}

var valueUnitPattern = regexp.MustCompile(`^(-?\d+(?:\.\d+)?)\s?([A-Za-z/]+)$`)

// ToRaw converts a value such as "12.07 KB" back to its base unit. Plain
// numbers pass through. Single letter units (K, M, G, ...) are read as binary.
// When scale is empty every scale is searched.
func ToRaw(text, scale string) (float64, error) {
	text = strings.TrimSpace(text)
	if f, err := strconv.ParseFloat(text, 64); err == nil {
		if math.IsNaN(f) {
			return 0, nil
		}
		return f, nil
	}
	m := valueUnitPattern.FindStringSubmatch(text)
	if m == nil {
		return 0, fmt.Errorf("value %q is not in a recognized format", text)
	}
	number, _ := strconv.ParseFloat(m[1], 64)
	unit := m[2]
	if len(unit) == 1 && strings.Contains("KMGTPE", unit) {
		unit += "iB"
	}

	if scale != "" {
		s, ok := unitScales[scale]
		if !ok {
			return 0, fmt.Errorf("unknown scale %q", scale)
		}
		idx := indexOf(s.units, unit)
		if idx < 0 {
			return 0, fmt.Errorf("unit %q is not in scale %s", unit, scale)
		}
		return number * math.Pow(s.base, float64(idx)), nil
	}

	for _, name := range Scales() {
		s := unitScales[name]
		if idx := indexOf(s.units, unit); idx >= 0 {
			return number * math.Pow(s.base, float64(idx)), nil
		}
	}
	return 0, fmt.Errorf("unit %q is not in any known scale", unit)
}

func indexOf(items []string, want string) int {
	for i, item := range items {
		if item == want {
			return i
		}
	}
	return -1
}

// Percentage renders a ratio as a percentage: 0.88 is "88.00%".
func Percentage(ratio float64, precision int) string {
	return strconv.FormatFloat(ratio*100, 'f', precision, 64) + "%"
}

// SafeDivide divides, returning 0 for a zero denominator. The result is
// rounded to two decimal places.
func SafeDivide(numerator, denominator float64) float64 {
	if denominator == 0 {
		return 0
	}
	return math.Round(numerator/denominator*100) / 100
}

// Zero clamps negative values to 0 and truncates to an integer.
func Zero(value float64) int64 {
	if value < 0 {
		return 0
	}
	return int64(value)
}
