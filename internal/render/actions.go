package render

import (
	"errors"
	"sort"
	"strconv"

	"github.com/tinytelemetry/photon/internal/model"
)

// Action computes a metric's display value from a row of inputs, replacing
// the kind based rendering.
type Action func(def model.MetricDefinition, row Row) (string, error)

var actions = map[string]Action{
	"calculate_raw_unaccounted": calculateRawUnaccounted,
	"scale_unaccounted_space":   scaleUnaccountedSpace,
	"format_unreported_ratio":   formatUnreportedRatio,
}

// HasAction reports whether name is a registered custom action.
func HasAction(name string) bool {
	_, ok := actions[name]
	return ok
}

// ActionNames returns the registered action names, sorted.
func ActionNames() []string {
	out := make([]string, 0, len(actions))
	for name := range actions {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func rawUnaccounted(row Row) (float64, error) {
	unreported, err := row.Number("unreported_space")
	if err != nil {
		return 0, err
	}
	reclaimable, err := row.Number("reclaimable_space")
	if err != nil {
		return 0, err
	}
	pyramid, err := row.Number("reported_pyramid")
	if err != nil {
		return 0, err
	}
	return float64(Zero(unreported - reclaimable - pyramid)), nil
}

// calculateRawUnaccounted is unreported space not explained by reclaimable
// space or the reported pyramid, never negative.
func calculateRawUnaccounted(_ model.MetricDefinition, row Row) (string, error) {
	raw, err := rawUnaccounted(row)
	if err != nil {
		return "", err
	}
	return strconv.FormatInt(int64(raw), 10), nil
}

// scaleUnaccountedSpace scales the raw unaccounted value, computing it from
// its inputs when the row does not already carry it.
func scaleUnaccountedSpace(def model.MetricDefinition, row Row) (string, error) {
	raw, err := row.Number("unaccounted_raw")
	if errors.Is(err, ErrMissingValue) {
		raw, err = rawUnaccounted(row)
	}
	if err != nil {
		return "", err
	}
	return AutoScale(raw, "binary_bytes", def.Precision)
}

func formatUnreportedRatio(def model.MetricDefinition, row Row) (string, error) {
	num, err := row.Number(def.Numerator)
	if err != nil {
		return "", err
	}
	den, err := row.Number(def.Denominator)
	if err != nil {
		return "", err
	}
	return strconv.FormatFloat(SafeDivide(num, den), 'f', def.Precision, 64) + ":1", nil
}
