package registry

import (
	"strings"

	"github.com/tinytelemetry/photon/internal/iniconf"
	"github.com/tinytelemetry/photon/internal/model"
)

// parseFieldIndex builds field entries from a field_index document. Values
// are read as lists whether or not they carry a list type hint.
func parseFieldIndex(doc *iniconf.Document) (map[string]model.FieldIndexEntry, []error) {
	fields := make(map[string]model.FieldIndexEntry, len(doc.Sections()))
	var errs []error

	var defaults model.FieldIndexEntry
	if doc.Defaults != nil {
		errs = append(errs, applyFieldSection(&defaults, doc.Defaults)...)
	}

	for _, sec := range doc.Sections() {
		entry := defaults.Clone()
		entry.Name = sec.Name
		errs = append(errs, applyFieldSection(&entry, sec)...)

		if len(entry.Sources()) == 0 {
			errs = append(errs, &UnresolvableFieldError{Name: sec.Name})
			continue
		}
		fields[sec.Name] = entry
	}
	return fields, errs
}

func applyFieldSection(entry *model.FieldIndexEntry, sec *iniconf.Section) []error {
	var errs []error
	for _, key := range sec.Keys() {
		src, ok := model.ParseSource(key)
		if !ok {
			errs = append(errs, &InvalidDefinitionError{Table: "field", Section: sec.Name, Option: key, Reason: "unknown source"})
			continue
		}
		v, _ := sec.Get(key)
		ids := v.List
		if v.Kind != iniconf.KindList {
			ids = splitLoose(v.Raw)
		}
		if len(ids) == 0 {
			// An empty value in __defaults__ just means "no default".
			if sec.Name != iniconf.DefaultsSection {
				errs = append(errs, &InvalidDefinitionError{Table: "field", Section: sec.Name, Option: key, Reason: "has no arguments"})
			}
			continue
		}
		entry.SetList(src, ids)
	}
	return errs
}

func splitLoose(raw string) []string {
	var out []string
	for _, item := range strings.Split(raw, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
