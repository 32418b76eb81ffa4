package registry

import (
	"fmt"
	"slices"
	"sort"

	"github.com/tinytelemetry/photon/internal/model"
	"github.com/tinytelemetry/photon/internal/render"
)

var controllers = []string{"CT0", "CT1"}

// validateMetric checks one merged definition against both tables.
func validateMetric(def model.MetricDefinition, fields map[string]model.FieldIndexEntry, metrics map[string]model.MetricDefinition) []error {
	var errs []error
	invalid := func(option, reason string) {
		errs = append(errs, &InvalidDefinitionError{Table: "metric", Section: def.Name, Option: option, Reason: reason})
	}
	dangling := func(option, target, reason string) {
		errs = append(errs, &DanglingReferenceError{Metric: def.Name, Option: option, Target: target, Reason: reason})
	}
	isField := func(name string) bool { _, ok := fields[name]; return ok }
	isMetric := func(name string) bool { _, ok := metrics[name]; return ok }

	if !def.Kind.Valid() {
		invalid("metric_type", fmt.Sprintf("unknown metric type %q", def.Kind))
	}
	if !def.Operation.Valid() {
		invalid("operation", fmt.Sprintf("unknown operation %q", def.Operation))
	}
	if !def.Alignment.Valid() {
		invalid("alignment", fmt.Sprintf("unknown alignment %q", def.Alignment))
	}
	if def.Precision < 0 {
		invalid("precision", "must not be negative")
	}
	if def.Scale != "" && !render.HasScale(def.Scale) {
		invalid("scale", fmt.Sprintf("unknown scale %q", def.Scale))
	}
	if !render.HasLatencyUnit(def.BaseUnit) {
		invalid("base_unit", fmt.Sprintf("unknown latency unit %q", def.BaseUnit))
	}
	if def.DisplayUnit != "" && !render.HasLatencyUnit(def.DisplayUnit) {
		invalid("display_unit", fmt.Sprintf("unknown latency unit %q", def.DisplayUnit))
	}
	if def.Action != "" && !render.HasAction(def.Action) {
		invalid("action", fmt.Sprintf("unknown action %q", def.Action))
	}
	if def.Controller != "" && !slices.Contains(controllers, def.Controller) {
		invalid("controller", fmt.Sprintf("unknown controller %q", def.Controller))
	}

	switch def.Kind {
	case model.KindPercentage:
		if def.Numerator == "" {
			invalid("numerator", "required for PercentageMetric")
		}
		if def.Denominator == "" {
			invalid("denominator", "required for PercentageMetric")
		}
	case model.KindScaledUnits:
		if def.Scale == "" {
			invalid("scale", "required for ScaledUnitsMetric")
		}
	}

	for _, f := range def.RequiredFields {
		if !isField(f) {
			dangling("required_fields", f, "")
		}
	}
	for _, f := range def.NestedFields {
		if !isField(f) {
			dangling("nested_fields", f, "")
		}
	}
	for _, m := range def.RequiredMetrics {
		if !isMetric(m) {
			dangling("required_metrics", m, "")
		}
	}

	single := len(def.RequiredFields) == 0 && len(def.RequiredMetrics) == 0
	switch {
	case def.ExplicitField && isMetric(def.Field) && !isField(def.Field):
		if !slices.Contains(def.RequiredMetrics, def.Field) {
			dangling("field", def.Field, "metric is not listed in required_metrics")
		}
	case def.ExplicitField || single:
		if !isField(def.Field) {
			dangling("field", def.Field, "")
		}
	}

	required := append(slices.Clone(def.RequiredFields), def.RequiredMetrics...)
	for _, ref := range []struct{ option, target string }{
		{"numerator", def.Numerator},
		{"denominator", def.Denominator},
	} {
		if ref.target == "" {
			continue
		}
		if !isField(ref.target) && !isMetric(ref.target) {
			dangling(ref.option, ref.target, "")
			continue
		}
		if !slices.Contains(required, ref.target) {
			dangling(ref.option, ref.target, "not listed in required_fields or required_metrics")
		}
	}
	return errs
}

// dependencyOrder walks the required_metrics graph depth first, keeping a
// visiting set so back edges are reported instead of followed. It returns
// metrics with dependencies before dependents. Dangling edges are skipped;
// they are reported separately.
func dependencyOrder(metrics map[string]model.MetricDefinition) ([]string, []error) {
	const (
		unvisited = iota
		visiting
		done
	)
	state := make(map[string]int, len(metrics))
	order := make([]string, 0, len(metrics))
	var errs []error
	var path []string

	names := make([]string, 0, len(metrics))
	for name := range metrics {
		names = append(names, name)
	}
	sort.Strings(names)

	var visit func(name string)
	visit = func(name string) {
		state[name] = visiting
		path = append(path, name)
		for _, dep := range metrics[name].RequiredMetrics {
			if _, ok := metrics[dep]; !ok {
				continue
			}
			switch state[dep] {
			case visiting:
				start := slices.Index(path, dep)
				cycle := append(slices.Clone(path[start:]), dep)
				errs = append(errs, &CyclicDependencyError{Path: cycle})
			case unvisited:
				visit(dep)
			}
		}
		path = path[:len(path)-1]
		state[name] = done
		order = append(order, name)
	}

	for _, name := range names {
		if state[name] == unvisited {
			visit(name)
		}
	}
	return order, errs
}

// computeClosures fills in every metric's transitive requirements, visiting
// metrics in dependency order so each dependency is already complete.
func computeClosures(order []string, metrics map[string]model.MetricDefinition) map[string]model.Closure {
	closures := make(map[string]model.Closure, len(order))
	for _, name := range order {
		def := metrics[name]
		ms := make(map[string]struct{})
		fs := make(map[string]struct{})
		for _, f := range def.DataFields() {
			fs[f] = struct{}{}
		}
		for _, dep := range def.RequiredMetrics {
			ms[dep] = struct{}{}
			sub := closures[dep]
			for _, m := range sub.Metrics {
				ms[m] = struct{}{}
			}
			for _, f := range sub.Fields {
				fs[f] = struct{}{}
			}
		}
		delete(ms, name)
		closures[name] = model.Closure{Metric: name, Metrics: sortedKeys(ms), Fields: sortedKeys(fs)}
	}
	return closures
}

func sortedKeys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
