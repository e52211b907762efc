// SPDX-License-Identifier: MPL-2.0

package manifest

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
)

const (
	// KindString is a free-form scalar.
	KindString Kind = iota
	// KindList is an ordered list of strings.
	KindList
	// KindBool is a boolean scalar.
	KindBool
	// KindInt is an integer scalar such as an API level.
	KindInt
	// KindVersion is a version string such as an NDK release ("25b").
	KindVersion
)

type (
	// Kind is the declared type of a manifest value.
	Kind int

	// Origin records the fragment and line a value was written at.
	Origin struct {
		Source string `json:"source" yaml:"source"`
		Line   int    `json:"line,omitempty" yaml:"line,omitempty"`
	}

	// Value is one typed manifest value together with where it came from.
	Value struct {
		Kind   Kind
		Text   string
		Items  []string
		Origin Origin
	}
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindList:
		return "list"
	case KindBool:
		return "bool"
	case KindInt:
		return "int"
	case KindVersion:
		return "version"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// String formats the origin as "source:line".
func (o Origin) String() string {
	if o.Line > 0 {
		return fmt.Sprintf("%s:%d", o.Source, o.Line)
	}
	return o.Source
}

// StringValue returns a scalar value of the given kind.
func StringValue(kind Kind, text string, origin Origin) Value {
	return Value{Kind: kind, Text: text, Origin: origin}
}

// ListValue returns a list value.
func ListValue(items []string, origin Origin) Value {
	return Value{Kind: KindList, Items: slices.Clone(items), Origin: origin}
}

// Bool interprets the value as a boolean using the same spellings the
// manifest parser accepts.
func (v Value) Bool() (bool, error) {
	return parseBool(v.Text)
}

// Int interprets the value as an integer.
func (v Value) Int() (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(v.Text))
	if err != nil {
		return 0, fmt.Errorf("%q is not an integer", v.Text)
	}
	return n, nil
}

// List returns the items of a list, or the scalar as a one-item list.
func (v Value) List() []string {
	if v.Kind == KindList {
		return slices.Clone(v.Items)
	}
	if v.Text == "" {
		return nil
	}
	return []string{v.Text}
}

// Canonical returns the value rendered for hashing and display.
func (v Value) Canonical() string {
	if v.Kind == KindList {
		return strings.Join(v.Items, ", ")
	}
	return v.Text
}

// Equal reports whether two values hold the same content, ignoring origins.
func (v Value) Equal(o Value) bool {
	if v.Kind != o.Kind {
		return false
	}
	if v.Kind == KindList {
		return slices.Equal(v.Items, o.Items)
	}
	return v.Text == o.Text
}

func (v Value) clone() Value {
	v.Items = slices.Clone(v.Items)
	return v
}

func parseBool(s string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "true", "yes", "on":
		return true, nil
	case "0", "false", "no", "off":
		return false, nil
	default:
		return false, fmt.Errorf("%q is not a boolean (use true/false, yes/no, on/off or 1/0)", s)
	}
}

// splitList splits comma-separated text into trimmed, non-empty items.
func splitList(text string) []string {
	var items []string
	for item := range strings.SplitSeq(text, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	return items
}
