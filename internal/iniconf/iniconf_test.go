package iniconf

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func mustParse(t *testing.T, text string) *Document {
	t.Helper()
	doc, err := Parse("test.ini", []byte(text))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	return doc
}

func mustGet(t *testing.T, doc *Document, section, key string) Value {
	t.Helper()
	sec, ok := doc.Section(section)
	if !ok {
		t.Fatalf("section %q not found", section)
	}
	v, ok := sec.Get(key)
	if !ok {
		t.Fatalf("[%s] %s not found", section, key)
	}
	return v
}

func TestParse_TypeHints(t *testing.T) {
	doc := mustParse(t, `
[metric]
precision = 3  type: int
ratio = 0.5  type: float
fill = False  type: bool
fields = a, b,  , c  type: list
name = plain text
`)

	if v := mustGet(t, doc, "metric", "precision"); v.Kind != KindInt || v.Int != 3 {
		t.Errorf("precision = %+v, want int 3", v)
	}
	if v := mustGet(t, doc, "metric", "ratio"); v.Kind != KindFloat || v.Float != 0.5 {
		t.Errorf("ratio = %+v, want float 0.5", v)
	}
	if v := mustGet(t, doc, "metric", "fill"); v.Kind != KindBool || v.Bool {
		t.Errorf("fill = %+v, want bool false", v)
	}
	v := mustGet(t, doc, "metric", "fields")
	if diff := cmp.Diff([]string{"a", "b", "c"}, v.List); diff != "" {
		t.Errorf("fields mismatch (-want +got):\n%s", diff)
	}
	if v := mustGet(t, doc, "metric", "name"); v.Kind != KindString || v.Str != "plain text" {
		t.Errorf("name = %+v, want str", v)
	}
}

func TestParse_ColonDelimiter(t *testing.T) {
	doc := mustParse(t, `
[field]
logs: core, diagnostics  type: list
`)
	v := mustGet(t, doc, "field", "logs")
	if diff := cmp.Diff([]string{"core", "diagnostics"}, v.List); diff != "" {
		t.Errorf("logs mismatch (-want +got):\n%s", diff)
	}
}

func TestParse_DefaultsSetStaticKinds(t *testing.T) {
	doc := mustParse(t, `
[__defaults__]
fill = True  type: bool
precision = 2  type: int
required_fields =  type: list

[one]
fill = False
precision = 4
required_fields = x, y

[two]
placeholder = -
`)

	if doc.Defaults == nil {
		t.Fatal("Defaults = nil, want section")
	}
	if _, ok := doc.Section(DefaultsSection); ok {
		t.Error("__defaults__ should not be listed as a regular section")
	}

	if v := mustGet(t, doc, "one", "fill"); v.Kind != KindBool || v.Bool {
		t.Errorf("fill = %+v, want bool false", v)
	}
	if v := mustGet(t, doc, "one", "precision"); v.Kind != KindInt || v.Int != 4 {
		t.Errorf("precision = %+v, want int 4", v)
	}
	if v := mustGet(t, doc, "one", "required_fields"); v.Kind != KindList || len(v.List) != 2 {
		t.Errorf("required_fields = %+v, want 2-item list", v)
	}

	// Defaults are not copied into sections.
	sec, _ := doc.Section("two")
	if _, ok := sec.Get("fill"); ok {
		t.Error("defaults leaked into section two")
	}

	def, ok := doc.Defaults.Get("required_fields")
	if !ok || !def.Empty() {
		t.Errorf("default required_fields = %+v, want empty list", def)
	}
}

func TestParse_ExplicitHintOverridesStaticKind(t *testing.T) {
	doc := mustParse(t, `
[__defaults__]
precision = 2  type: int

[one]
precision = two  type: str
`)
	if v := mustGet(t, doc, "one", "precision"); v.Kind != KindString || v.Str != "two" {
		t.Errorf("precision = %+v, want str two", v)
	}
}

func TestParse_KeysAreCaseInsensitive(t *testing.T) {
	doc := mustParse(t, "[Field]\nLOGS = core  type: list\n")
	if v := mustGet(t, doc, "Field", "logs"); len(v.List) != 1 {
		t.Errorf("logs = %+v, want 1 item", v)
	}
}

func TestParse_PreservesOrder(t *testing.T) {
	doc := mustParse(t, `
[zeta]
b = 1
a = 2
[alpha]
x = 1
`)
	var names []string
	for _, s := range doc.Sections() {
		names = append(names, s.Name)
	}
	if diff := cmp.Diff([]string{"zeta", "alpha"}, names); diff != "" {
		t.Errorf("section order (-want +got):\n%s", diff)
	}
	sec, _ := doc.Section("zeta")
	if diff := cmp.Diff([]string{"b", "a"}, sec.Keys()); diff != "" {
		t.Errorf("key order (-want +got):\n%s", diff)
	}
}

func TestParse_InvalidValues(t *testing.T) {
	tests := []struct {
		name string
		text string
		key  string
	}{
		{"int", "[s]\nprecision = lots  type: int\n", "precision"},
		{"float", "[s]\nscaling = fast  type: float\n", "scaling"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse("bad.ini", []byte(tt.text))
			if err == nil {
				t.Fatal("Parse succeeded, want error")
			}
			var perr *ParseError
			if !errors.As(err, &perr) {
				t.Fatalf("error %T is not *ParseError: %v", err, err)
			}
			if perr.Key != tt.key {
				t.Errorf("ParseError.Key = %q, want %q", perr.Key, tt.key)
			}
			if !strings.Contains(err.Error(), "bad.ini") {
				t.Errorf("error %q does not name the file", err)
			}
		})
	}
}

func TestParse_OnlyLiteralTrueIsTrue(t *testing.T) {
	tests := map[string]bool{
		"True":  true,
		"true":  false,
		"TRUE":  false,
		"False": false,
		"yes":   false,
		"1":     false,
	}
	for raw, want := range tests {
		doc := mustParse(t, "[__defaults__]\nfill = True  type: bool\n[s]\nfill = "+raw+"\n")
		v := mustGet(t, doc, "s", "fill")
		if v.Kind != KindBool || v.Bool != want {
			t.Errorf("fill = %q parsed as %+v, want bool %v", raw, v, want)
		}
	}
}

func TestParse_EmptyTypedValueIsEmpty(t *testing.T) {
	doc := mustParse(t, "[s]\nprecision =  type: int\n")
	v := mustGet(t, doc, "s", "precision")
	if !v.Empty() {
		t.Errorf("precision = %+v, want empty", v)
	}
}

func TestParse_UnknownHintIsString(t *testing.T) {
	doc := mustParse(t, "[s]\nthing = 12  type: complex\n")
	if v := mustGet(t, doc, "s", "thing"); v.Kind != KindString || v.Str != "12" {
		t.Errorf("thing = %+v, want str 12", v)
	}
}

func TestParse_OptionsBeforeSection(t *testing.T) {
	if _, err := Parse("bad.ini", []byte("orphan = 1\n[s]\nk = v\n")); err == nil {
		t.Fatal("Parse succeeded, want error for option outside a section")
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.ini"))
	if err == nil || !strings.Contains(err.Error(), "does not exist") {
		t.Fatalf("Load error = %v, want does not exist", err)
	}
}

func TestLoad_FromDisk(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.ini")
	if err := os.WriteFile(path, []byte("[cpu]\nscaling = 0.5  type: float\n"), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	doc, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if doc.Name != "settings.ini" {
		t.Errorf("Name = %q, want settings.ini", doc.Name)
	}
	if v := mustGet(t, doc, "cpu", "scaling"); v.Float != 0.5 {
		t.Errorf("scaling = %v, want 0.5", v.Float)
	}
}
