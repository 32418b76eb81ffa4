package iniconf

import (
	"fmt"
	"strconv"
	"strings"
)

// Kind is the type a value was parsed as.
type Kind int

const (
	KindString Kind = iota
	KindInt
	KindFloat
	KindBool
	KindList
)

var kindNames = map[string]Kind{
	"str":   KindString,
	"int":   KindInt,
	"float": KindFloat,
	"bool":  KindBool,
	"list":  KindList,
}

func (k Kind) String() string {
	switch k {
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindBool:
		return "bool"
	case KindList:
		return "list"
	default:
		return "str"
	}
}

// kindFromHint maps a type hint to a Kind. Unknown hints read as strings.
func kindFromHint(hint string) Kind {
	if k, ok := kindNames[strings.TrimSpace(hint)]; ok {
		return k
	}
	return KindString
}

// Value is one typed option value.
type Value struct {
	Kind  Kind
	Raw   string // text with the type hint removed, trimmed
	Str   string
	Int   int
	Float float64
	Bool  bool
	List  []string
}

// Empty reports whether the option was present without a usable value.
func (v Value) Empty() bool {
	if v.Kind == KindList {
		return len(v.List) == 0
	}
	return v.Raw == ""
}

func (v Value) String() string {
	switch v.Kind {
	case KindList:
		return strings.Join(v.List, ", ")
	case KindBool:
		if v.Empty() {
			return ""
		}
		if v.Bool {
			return "True"
		}
		return "False"
	default:
		return v.Raw
	}
}

// splitHint separates "value  type: kind" into the raw value and the hint.
func splitHint(text string) (raw, hint string, hinted bool) {
	raw, hint, hinted = strings.Cut(text, "type:")
	return strings.TrimSpace(raw), strings.TrimSpace(hint), hinted
}

func parseValue(raw string, kind Kind) (Value, error) {
	v := Value{Kind: kind, Raw: raw}
	switch kind {
	case KindList:
		v.List = splitList(raw)
		return v, nil
	case KindString:
		v.Str = raw
		return v, nil
	}

	if raw == "" {
		return v, nil
	}

	switch kind {
	case KindInt:
		n, err := strconv.Atoi(raw)
		if err != nil {
			return v, fmt.Errorf("invalid int %q", raw)
		}
		v.Int = n
		v.Float = float64(n)
	case KindFloat:
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return v, fmt.Errorf("invalid float %q", raw)
		}
		v.Float = f
	case KindBool:
		// Only the literal True is true.
		v.Bool = raw == "True"
	}
	return v, nil
}

// splitList splits a comma separated value, dropping empty items.
func splitList(raw string) []string {
	parts := strings.Split(raw, ",")
	items := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			items = append(items, p)
		}
	}
	return items
}
