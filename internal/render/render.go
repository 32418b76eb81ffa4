// Package render turns raw field values into display strings according to a
// metric definition's kind, precision, scale and placeholder.
package render

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"

	"github.com/tinytelemetry/photon/internal/model"
)

// ErrMissingValue marks an input that is absent or not a number. Render
// substitutes the metric's placeholder for it.
var ErrMissingValue = errors.New("missing value")

// Row holds the raw inputs for one rendering, keyed by field or metric name.
type Row map[string]any

// Number returns key as a float64. Strings with units ("1.5 KiB") are
// converted to their base unit.
func (r Row) Number(key string) (float64, error) {
	return r.number(key, "")
}

func (r Row) number(key, scale string) (float64, error) {
	raw, ok := r[key]
	if !ok || raw == nil {
		return 0, ErrMissingValue
	}
	var f float64
	switch v := raw.(type) {
	case float64:
		f = v
	case float32:
		f = float64(v)
	case int:
		f = float64(v)
	case int64:
		f = float64(v)
	case uint64:
		f = float64(v)
	case json.Number:
		n, err := v.Float64()
		if err != nil {
			return 0, fmt.Errorf("%s: %w", key, err)
		}
		f = n
	case string:
		if v == "" {
			return 0, ErrMissingValue
		}
		n, err := ToRaw(v, scale)
		if err != nil {
			return 0, fmt.Errorf("%s: %w", key, err)
		}
		f = n
	default:
		return 0, fmt.Errorf("%s: unsupported value type %T", key, raw)
	}
	if math.IsNaN(f) {
		return 0, ErrMissingValue
	}
	return f, nil
}

// Text returns key formatted as plain text.
func (r Row) Text(key string) (string, error) {
	raw, ok := r[key]
	if !ok || raw == nil {
		return "", ErrMissingValue
	}
	switch v := raw.(type) {
	case string:
		if v == "" {
			return "", ErrMissingValue
		}
		return v, nil
	case float64:
		if math.IsNaN(v) {
			return "", ErrMissingValue
		}
		return strconv.FormatFloat(v, 'f', -1, 64), nil
	case bool:
		if v {
			return "True", nil
		}
		return "False", nil
	default:
		return fmt.Sprint(v), nil
	}
}

// Render produces the display value of def for row. Missing inputs yield
// the definition's placeholder.
func Render(def model.MetricDefinition, row Row) (string, error) {
	out, err := dispatch(def, row)
	if errors.Is(err, ErrMissingValue) {
		return def.Placeholder, nil
	}
	if err != nil {
		return "", fmt.Errorf("render %s: %w", def.Name, err)
	}
	return out, nil
}

func dispatch(def model.MetricDefinition, row Row) (string, error) {
	if def.Action != "" {
		action, ok := actions[def.Action]
		if !ok {
			return "", fmt.Errorf("unknown action %q", def.Action)
		}
		return action(def, row)
	}

	switch def.Kind {
	case model.KindPercentage:
		num, err := row.Number(def.Numerator)
		if err != nil {
			return "", err
		}
		den, err := row.Number(def.Denominator)
		if err != nil {
			return "", err
		}
		return Percentage(SafeDivide(num, den), def.Precision), nil

	case model.KindScaledUnits:
		v, err := row.number(def.Field, def.Scale)
		if err != nil {
			return "", err
		}
		return AutoScale(v, def.Scale, def.Precision)

	case model.KindLatency:
		v, err := row.Number(def.Field)
		if err != nil {
			return "", err
		}
		return ScaleLatency(v, def.BaseUnit, def.DisplayUnit, def.Precision)

	case model.KindText, model.KindEvent:
		return row.Text(def.Field)

	default:
		switch v := row[def.Field].(type) {
		case float64:
			if math.IsNaN(v) {
				return "", ErrMissingValue
			}
			return strconv.FormatFloat(v, 'f', def.Precision, 64), nil
		case float32:
			return strconv.FormatFloat(float64(v), 'f', def.Precision, 64), nil
		}
		return row.Text(def.Field)
	}
}
