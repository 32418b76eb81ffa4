package registry

import (
	"strconv"
	"strings"

	"github.com/tinytelemetry/photon/internal/iniconf"
	"github.com/tinytelemetry/photon/internal/model"
)

func baseTemplate(name string) model.TableTemplate {
	return model.TableTemplate{
		Name:      name,
		Type:      model.TableText,
		Timestamp: true,
		Box:       true,
		Headers:   true,
		UseTitles: true,
	}
}

// parseTableIndex merges each template section over the built-in layout and
// __defaults__. Column references are checked later, against the metrics.
func parseTableIndex(doc *iniconf.Document) (map[string]model.TableTemplate, []error) {
	tables := make(map[string]model.TableTemplate, len(doc.Sections()))
	var errs []error

	if doc.Defaults != nil {
		check := baseTemplate(iniconf.DefaultsSection)
		errs = append(errs, applyTableSection(&check, doc.Defaults)...)
	}

	for _, sec := range doc.Sections() {
		if sec.Len() == 0 {
			errs = append(errs, &InvalidDefinitionError{Table: "table", Section: sec.Name, Reason: "has no options"})
			continue
		}
		t := baseTemplate(sec.Name)
		if doc.Defaults != nil {
			applyTableSection(&t, doc.Defaults)
		}
		errs = append(errs, applyTableSection(&t, sec)...)
		if len(t.Metrics()) == 0 {
			errs = append(errs, &InvalidDefinitionError{Table: "table", Section: sec.Name, Option: "columns", Reason: "lists no metrics"})
		}
		tables[sec.Name] = t
	}
	return tables, errs
}

func applyTableSection(t *model.TableTemplate, sec *iniconf.Section) []error {
	var errs []error
	invalid := func(key, reason string) {
		errs = append(errs, &InvalidDefinitionError{Table: "table", Section: sec.Name, Option: key, Reason: reason})
	}

	for _, key := range sec.Keys() {
		v, _ := sec.Get(key)
		if v.Empty() {
			continue
		}
		switch key {
		case "columns":
			items, ok := listValue(v)
			if !ok {
				invalid(key, "needs a list type hint")
				continue
			}
			// Pipes may repeat; only metrics are deduplicated.
			if v.Kind == iniconf.KindList {
				items = v.List
			}
			t.Columns = items
		case "title":
			t.Title = v.Raw
		case "table_type":
			tt := model.TableType(strings.ToLower(v.Raw))
			if !tt.Valid() {
				invalid(key, "unknown table type "+strconv.Quote(v.Raw))
				continue
			}
			t.Type = tt
		case "timestamp", "box", "grid", "headers", "use_titles":
			if v.Kind != iniconf.KindBool {
				invalid(key, "needs a bool type hint")
				continue
			}
			switch key {
			case "timestamp":
				t.Timestamp = v.Bool
			case "box":
				t.Box = v.Bool
			case "grid":
				t.Grid = v.Bool
			case "headers":
				t.Headers = v.Bool
			case "use_titles":
				t.UseTitles = v.Bool
			}
		default:
			invalid(key, "unknown option")
		}
	}
	return errs
}

// validateTable checks that every column names a known metric.
func validateTable(t model.TableTemplate, metrics map[string]model.MetricDefinition) []error {
	var errs []error
	for _, name := range t.Metrics() {
		if _, ok := metrics[name]; !ok {
			errs = append(errs, &DanglingReferenceError{Table: t.Name, Option: "columns", Target: name})
		}
	}
	return errs
}

// tableClosure joins the closures of a template's column metrics.
func tableClosure(t model.TableTemplate, closures map[string]model.Closure) model.TableClosure {
	ms := make(map[string]struct{})
	fs := make(map[string]struct{})
	for _, name := range t.Metrics() {
		ms[name] = struct{}{}
		c := closures[name]
		for _, m := range c.Metrics {
			ms[m] = struct{}{}
		}
		for _, f := range c.Fields {
			fs[f] = struct{}{}
		}
	}
	return model.TableClosure{Table: t.Name, Metrics: sortedKeys(ms), Fields: sortedKeys(fs)}
}
