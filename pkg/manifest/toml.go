// SPDX-License-Identifier: MPL-2.0

package manifest

import (
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

// ParseTOML reads a manifest fragment written as TOML. Top-level tables are
// sections; nested tables flatten into dotted keys, so both
// `package.name = "x"` and `"package.name" = "x"` address the same key.
// Scoped sections need quoting: ["arch:arm64-v8a"].
//
// TOML tables carry no order, so sections and keys are added sorted.
func ParseTOML(data []byte, opts ParseOptions) (*Manifest, []Diagnostic, error) {
	if opts.Source == "" {
		opts.Source = "<input>"
	}
	if opts.LookupEnv == nil {
		opts.LookupEnv = func(string) (string, bool) { return "", false }
	}

	var doc map[string]any
	if err := toml.Unmarshal(data, &doc); err != nil {
		var derr *toml.DecodeError
		if errors.As(err, &derr) {
			row, _ := derr.Position()
			return nil, nil, &ParseError{Source: opts.Source, Line: row, Msg: "invalid TOML", Err: err}
		}
		return nil, nil, &ParseError{Source: opts.Source, Line: 1, Msg: "invalid TOML", Err: err}
	}

	m := New()
	var diags []Diagnostic
	p := &parser{opts: opts, m: m}

	for _, section := range sortedKeys(doc) {
		table, ok := doc[section].(map[string]any)
		if !ok {
			return nil, nil, &ParseError{Source: opts.Source, Line: 1, Msg: fmt.Sprintf("top-level key %q must be a table", section)}
		}
		if !sectionNamePattern.MatchString(section) {
			return nil, nil, &ParseError{Source: opts.Source, Line: 1, Msg: fmt.Sprintf("invalid section name %q", section)}
		}
		m.ensure(section)

		flat := make(map[string]any)
		flatten("", table, flat)
		for _, key := range sortedKeys(flat) {
			v, err := p.tomlValue(section, key, flat[key])
			if err != nil {
				return nil, nil, err
			}
			m.Set(section, key, v)
		}
	}
	diags = append(diags, p.diags...)
	return m, diags, nil
}

func (p *parser) tomlValue(section, key string, raw any) (Value, error) {
	origin := Origin{Source: p.opts.Source}
	entry := &pendingEntry{section: section, key: key}

	kind, known := KindOf(section, key)
	if !known {
		p.diags = append(p.diags, Diagnostic{
			Kind: DiagUnknownKey, Section: section, Key: key, Origin: origin,
			Message: "unknown key; kept as written",
		})
		if _, isList := raw.([]any); isList {
			kind = KindList
		}
	}

	var parts []string
	switch x := raw.(type) {
	case []any:
		for _, item := range x {
			parts = append(parts, scalarText(item))
		}
		if kind != KindList {
			return Value{}, &ParseError{Source: p.opts.Source, Line: 1, Msg: fmt.Sprintf("[%s] %s: expected a %s, got an array", section, key, kind)}
		}
	default:
		parts = []string{scalarText(x)}
	}

	entry.parts = parts
	if kind == KindList {
		// Array items are already split; keep commas inside them.
		var items []string
		for _, part := range parts {
			expanded, err := p.expand(part, entry, origin)
			if err != nil {
				return Value{}, err
			}
			if _, isArray := raw.([]any); isArray {
				items = append(items, strings.TrimSpace(expanded))
			} else {
				items = append(items, splitList(expanded)...)
			}
		}
		return Value{Kind: KindList, Items: appendUnique(nil, items), Origin: origin}, nil
	}
	return p.value(kind, entry, origin)
}

func scalarText(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case bool:
		return strconv.FormatBool(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	default:
		return fmt.Sprint(x)
	}
}

func flatten(prefix string, table map[string]any, out map[string]any) {
	for k, v := range table {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		if nested, ok := v.(map[string]any); ok {
			flatten(key, nested, out)
			continue
		}
		out[key] = v
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
