package render

import (
	"fmt"
	"math"
	"strconv"
)

// Latency units from largest to smallest, with their size in nanoseconds.
var latencyUnits = []struct {
	name  string
	short string
	nanos float64
}{
	{"days", "d", 86400e9},
	{"hours", "h", 3600e9},
	{"minutes", "m", 60e9},
	{"seconds", "s", 1e9},
	{"milliseconds", "ms", 1e6},
	{"microseconds", "us", 1e3},
	{"nanoseconds", "ns", 1},
}

// HasLatencyUnit reports whether name is a known latency unit.
func HasLatencyUnit(name string) bool {
	_, ok := latencyUnit(name)
	return ok
}

func latencyUnit(name string) (float64, bool) {
	for _, u := range latencyUnits {
		if u.name == name {
			return u.nanos, true
		}
	}
	return 0, false
}

// ScaleLatency renders a latency measured in baseUnit. With an empty
// displayUnit the largest unit in which the value is at least 1 is used.
func ScaleLatency(value float64, baseUnit, displayUnit string, precision int) (string, error) {
	base, ok := latencyUnit(baseUnit)
	if !ok {
		return "", fmt.Errorf("unknown latency unit %q", baseUnit)
	}
	nanos := value * base

	short := "ns"
	display := 1.0
	if displayUnit != "" {
		d, ok := latencyUnit(displayUnit)
		if !ok {
			return "", fmt.Errorf("unknown latency unit %q", displayUnit)
		}
		display = d
		for _, u := range latencyUnits {
			if u.name == displayUnit {
				short = u.short
			}
		}
	} else {
		for _, u := range latencyUnits {
			if math.Abs(nanos)/u.nanos >= 1 {
				display, short = u.nanos, u.short
				break
			}
		}
	}
	return strconv.FormatFloat(nanos/display, 'f', precision, 64) + " " + short, nil
}
