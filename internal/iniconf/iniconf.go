// Package iniconf reads the INI table format shared by the field index,
// the metric index and settings.ini.
//
// Values may carry a "type: <kind>" suffix (str, int, float, bool, list).
// A section named __defaults__ seeds defaults: the kind of each default
// becomes the implicit kind of that key in every other section. Defaults
// are kept separate from the sections; callers overlay them.
package iniconf

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/ini.v1"
)

// DefaultsSection is the name of the section whose keys seed every other section.
const DefaultsSection = "__defaults__"

// ParseError reports a malformed option.
type ParseError struct {
	File    string
	Section string
	Key     string
	Err     error
}

func (e *ParseError) Error() string {
	if e.Key == "" {
		return fmt.Sprintf("%s: [%s]: %v", e.File, e.Section, e.Err)
	}
	return fmt.Sprintf("%s: [%s] %s: %v", e.File, e.Section, e.Key, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Section is one named section with typed values in file order.
type Section struct {
	Name   string
	keys   []string
	values map[string]Value
}

func newSection(name string) *Section {
	return &Section{Name: name, values: make(map[string]Value)}
}

// Keys returns option names in file order.
func (s *Section) Keys() []string {
	out := make([]string, len(s.keys))
	copy(out, s.keys)
	return out
}

// Get returns the value for key.
func (s *Section) Get(key string) (Value, bool) {
	v, ok := s.values[key]
	return v, ok
}

// Len returns the number of options.
func (s *Section) Len() int { return len(s.keys) }

func (s *Section) set(key string, v Value) {
	if _, exists := s.values[key]; !exists {
		s.keys = append(s.keys, key)
	}
	s.values[key] = v
}

// Document is a parsed INI file.
type Document struct {
	Name     string
	Defaults *Section // nil when the file has no __defaults__ section

	sections []*Section
	index    map[string]*Section
}

// Sections returns all sections except __defaults__, in file order.
func (d *Document) Sections() []*Section {
	out := make([]*Section, len(d.sections))
	copy(out, d.sections)
	return out
}

// Section looks up a section by name.
func (d *Document) Section(name string) (*Section, bool) {
	s, ok := d.index[name]
	return s, ok
}

// Load reads and parses an INI file from disk.
func Load(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%q does not exist", path)
		}
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return Parse(filepath.Base(path), data)
}

// Parse parses INI data. name is used in error messages.
func Parse(name string, data []byte) (*Document, error) {
	f, err := ini.LoadSources(ini.LoadOptions{
		InsensitiveKeys:            true,
		IgnoreInlineComment:        true,
		AllowPythonMultilineValues: true,
	}, data)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", name, err)
	}

	doc := &Document{Name: name, index: make(map[string]*Section)}

	if raw := f.Section(ini.DefaultSection); len(raw.Keys()) > 0 {
		return nil, &ParseError{File: name, Section: ini.DefaultSection, Err: errors.New("options found before the first section header")}
	}

	// Defaults first so their kinds are known before other sections are typed.
	staticKinds := map[string]Kind{}
	if f.HasSection(DefaultsSection) {
		defaults, err := typedSection(name, f.Section(DefaultsSection), nil)
		if err != nil {
			return nil, err
		}
		for _, key := range defaults.keys {
			staticKinds[key] = defaults.values[key].Kind
		}
		doc.Defaults = defaults
	}

	for _, raw := range f.Sections() {
		if raw.Name() == ini.DefaultSection || raw.Name() == DefaultsSection {
			continue
		}
		sec, err := typedSection(name, raw, staticKinds)
		if err != nil {
			return nil, err
		}
		doc.sections = append(doc.sections, sec)
		doc.index[sec.Name] = sec
	}
	return doc, nil
}

func typedSection(file string, raw *ini.Section, staticKinds map[string]Kind) (*Section, error) {
	sec := newSection(raw.Name())
	for _, key := range raw.Keys() {
		text, hint, hinted := splitHint(key.Value())
		kind := KindString
		switch {
		case hinted:
			kind = kindFromHint(hint)
		case staticKinds != nil:
			if k, ok := staticKinds[key.Name()]; ok {
				kind = k
			}
		}
		v, err := parseValue(text, kind)
		if err != nil {
			return nil, &ParseError{File: file, Section: raw.Name(), Key: key.Name(), Err: err}
		}
		sec.set(key.Name(), v)
	}
	return sec, nil
}
