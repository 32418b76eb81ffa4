package registry

import (
	"strconv"
	"strings"

	"github.com/tinytelemetry/photon/internal/iniconf"
	"github.com/tinytelemetry/photon/internal/model"
)

// baseDefinition holds the built-in defaults every metric starts from.
func baseDefinition(name string) model.MetricDefinition {
	return model.MetricDefinition{
		Name:        name,
		Kind:        model.KindMetric,
		Field:       name,
		Operation:   model.OpLast,
		Precision:   2,
		Placeholder: "-",
		Fill:        true,
		Alignment:   model.AlignAuto,
		BaseUnit:    "milliseconds",
	}
}

// applyKindDefaults applies the defaults specific to a metric kind. They sit
// above the built-in base and below __defaults__ and the metric's own section.
func applyKindDefaults(def *model.MetricDefinition) {
	switch def.Kind {
	case model.KindText:
		def.Alignment, def.Fill, def.Operation = model.AlignLeft, true, model.OpLast
	case model.KindEvent:
		def.Alignment, def.Fill, def.Operation = model.AlignLeft, false, model.OpEvent
	case model.KindLatency:
		def.Alignment, def.Fill, def.Operation = model.AlignRight, true, model.OpMean
		def.Placeholder = "0.00 ms"
	case model.KindPercentage:
		def.Alignment, def.Fill, def.Operation = model.AlignRight, true, model.OpMean
		def.Placeholder = "0.00%"
	case model.KindScaledUnits:
		def.Alignment, def.Fill, def.Operation = model.AlignRight, true, model.OpMean
		def.Placeholder = "0.00 B"
	}
}

// parseMetricIndex merges each metric section over the built-in, per-kind
// and __defaults__ layers, in that order. Only syntactic problems are
// reported here; references are checked once every table is parsed. A
// section with option errors is still returned so that metrics referring to
// it resolve and report only their own problems.
func parseMetricIndex(doc *iniconf.Document) (map[string]model.MetricDefinition, []error) {
	metrics := make(map[string]model.MetricDefinition, len(doc.Sections()))
	var errs []error

	// __defaults__ is checked once, not once per metric.
	if doc.Defaults != nil {
		check := baseDefinition(iniconf.DefaultsSection)
		errs = append(errs, applyMetricSection(&check, doc.Defaults)...)
	}

	for _, sec := range doc.Sections() {
		def := baseDefinition(sec.Name)

		// The kind picks the per-kind layer, so it is read first: the
		// section's own metric_type wins over one from __defaults__.
		def.Kind = kindOf(sec, doc.Defaults, def.Kind)
		applyKindDefaults(&def)

		if doc.Defaults != nil {
			applyMetricSection(&def, doc.Defaults)
			// Defaults never make a field explicit.
			def.Field, def.ExplicitField = sec.Name, false
		}

		errs = append(errs, applyMetricSection(&def, sec)...)
		metrics[sec.Name] = def
	}
	return metrics, errs
}

func kindOf(sec, defaults *iniconf.Section, fallback model.MetricKind) model.MetricKind {
	for _, s := range []*iniconf.Section{sec, defaults} {
		if s == nil {
			continue
		}
		if v, ok := s.Get("metric_type"); ok && !v.Empty() {
			return model.MetricKind(v.Raw)
		}
	}
	return fallback
}

// applyMetricSection overlays the non-empty options of sec onto def.
func applyMetricSection(def *model.MetricDefinition, sec *iniconf.Section) []error {
	var errs []error
	invalid := func(key, reason string) {
		errs = append(errs, &InvalidDefinitionError{Table: "metric", Section: sec.Name, Option: key, Reason: reason})
	}

	for _, key := range sec.Keys() {
		v, _ := sec.Get(key)
		if v.Empty() {
			continue
		}
		switch key {
		case "metric_type":
			def.Kind = model.MetricKind(v.Raw)
		case "field":
			def.Field, def.ExplicitField = v.Raw, true
		case "nice_name":
			def.NiceName = v.Raw
		case "operation":
			def.Operation = model.Operation(v.Raw)
		case "numerator":
			def.Numerator = v.Raw
		case "denominator":
			def.Denominator = v.Raw
		case "scale":
			def.Scale = v.Raw
		case "placeholder":
			def.Placeholder = v.Raw
		case "alignment":
			def.Alignment = model.Alignment(v.Raw)
		case "base_unit":
			def.BaseUnit = v.Raw
		case "display_unit":
			def.DisplayUnit = v.Raw
		case "controller":
			def.Controller = v.Raw
		case "action":
			def.Action = v.Raw
		case "dtype":
			def.DType = v.Raw
		case "precision":
			n, ok := intValue(v)
			if !ok {
				invalid(key, "expected an int, got "+strconv.Quote(v.Raw))
				continue
			}
			def.Precision = n
		case "fill":
			if v.Kind != iniconf.KindBool {
				invalid(key, "needs a bool type hint")
				continue
			}
			def.Fill = v.Bool
		case "required_fields", "required_metrics", "nested_fields", "sub_tables":
			items, ok := listValue(v)
			if !ok {
				invalid(key, "needs a list type hint")
				continue
			}
			switch key {
			case "required_fields":
				def.RequiredFields = items
			case "required_metrics":
				def.RequiredMetrics = items
			case "nested_fields":
				def.NestedFields = items
			case "sub_tables":
				def.SubTables = items
			}
		default:
			invalid(key, "unknown option")
		}
	}
	return errs
}

func intValue(v iniconf.Value) (int, bool) {
	if v.Kind == iniconf.KindInt {
		return v.Int, true
	}
	n, err := strconv.Atoi(v.Raw)
	return n, err == nil
}

// listValue accepts list values and single-item strings. A comma inside an
// untyped string means the list hint was forgotten.
func listValue(v iniconf.Value) ([]string, bool) {
	if v.Kind == iniconf.KindList {
		return dedupe(v.List), true
	}
	if strings.Contains(v.Raw, ",") {
		return nil, false
	}
	return []string{v.Raw}, true
}

func dedupe(items []string) []string {
	seen := make(map[string]struct{}, len(items))
	out := make([]string, 0, len(items))
	for _, item := range items {
		if _, ok := seen[item]; ok {
			continue
		}
		seen[item] = struct{}{}
		out = append(out, item)
	}
	return out
}
