// SPDX-License-Identifier: MPL-2.0

package manifest

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"regexp"
	"slices"
	"strings"
)

var sectionNamePattern = regexp.MustCompile(`^[A-Za-z0-9_.-]+(:[A-Za-z0-9_.-]+)?(@[A-Za-z0-9_.-]+)?$`)

type (
	// ParseOptions controls Parse.
	ParseOptions struct {
		// Source names the fragment in errors, origins and diagnostics.
		Source string
		// LookupEnv resolves $VAR references. Nil means no variable is defined.
		LookupEnv LookupFunc
	}

	parser struct {
		opts    ParseOptions
		m       *Manifest
		diags   []Diagnostic
		section string
		entry   *pendingEntry
	}

	pendingEntry struct {
		section  string
		key      string
		line     int
		lastLine int
		parts    []string
		// open is set while the last line ended with a comma, which makes the
		// next line a continuation regardless of its indentation.
		open bool
	}
)

// Parse reads one manifest fragment.
//
// Lines starting with '#' or ';' are comments; a '#' or ';' preceded by
// whitespace starts an inline comment. A value continues onto following
// lines that are indented, or onto the next line when it ends with a comma.
// Within one fragment a repeated list key appends and a repeated scalar key
// overrides; both cases produce a Diagnostic.
func Parse(r io.Reader, opts ParseOptions) (*Manifest, []Diagnostic, error) {
	if opts.Source == "" {
		opts.Source = "<input>"
	}
	if opts.LookupEnv == nil {
		opts.LookupEnv = func(string) (string, bool) { return "", false }
	}

	p := &parser{opts: opts, m: New()}
	if err := p.run(r); err != nil {
		return nil, nil, err
	}
	return p.m, p.diags, nil
}

// ParseBytes is Parse over an in-memory fragment.
func ParseBytes(data []byte, opts ParseOptions) (*Manifest, []Diagnostic, error) {
	return Parse(bytes.NewReader(data), opts)
}

func (p *parser) run(r io.Reader) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	lineNo := 0
	for scanner.Scan() {
		lineNo++
		text := strings.TrimRight(scanner.Text(), " \t\r")
		if lineNo == 1 {
			text = strings.TrimPrefix(text, "\ufeff")
		}
		trimmed := strings.TrimLeft(text, " \t")
		if trimmed == "" || trimmed[0] == '#' || trimmed[0] == ';' {
			continue
		}
		indent := len(text) - len(trimmed)

		if p.entry != nil {
			if p.entry.open {
				if trimmed[0] == '[' {
					return p.errorf(p.entry.lastLine, "unterminated list continuation: trailing comma before section header %s", trimmed)
				}
				p.entry.add(p.strip(trimmed, p.entry.section), lineNo)
				continue
			}
			if indent > 0 {
				p.entry.add(p.strip(trimmed, p.entry.section), lineNo)
				continue
			}
			if err := p.flush(); err != nil {
				return err
			}
		}

		if indent > 0 {
			return p.errorf(lineNo, "unexpected indented line outside of a value")
		}

		var err error
		if trimmed[0] == '[' {
			err = p.header(trimmed, lineNo)
		} else {
			err = p.keyValue(trimmed, lineNo)
		}
		if err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		return &ParseError{Source: p.opts.Source, Line: lineNo, Msg: "read failed", Err: err}
	}

	if p.entry != nil {
		if p.entry.open {
			return p.errorf(p.entry.lastLine, "unterminated list continuation: trailing comma at end of input")
		}
		return p.flush()
	}
	return nil
}

func (p *parser) header(line string, lineNo int) error {
	line = stripInlineComment(line, "#;")
	if !strings.HasSuffix(line, "]") {
		return p.errorf(lineNo, "malformed section header %q", line)
	}
	name := strings.TrimSpace(line[1 : len(line)-1])
	if !sectionNamePattern.MatchString(name) {
		return p.errorf(lineNo, "invalid section name %q", name)
	}
	base, scope, _ := SplitSectionName(name)
	if scope != "" && base != ScopeArch && base != ScopeEnv {
		return p.errorf(lineNo, "section [%s] cannot be scoped; only [%s:<id>] and [%s:<id>] are", name, ScopeArch, ScopeEnv)
	}
	p.section = name
	p.m.ensure(name)
	return nil
}

func (p *parser) keyValue(line string, lineNo int) error {
	idx := strings.IndexAny(line, "=:")
	if idx <= 0 {
		return p.errorf(lineNo, "expected 'key = value', got %q", line)
	}
	key := strings.TrimSpace(line[:idx])
	if strings.ContainsAny(key, " \t") {
		return p.errorf(lineNo, "invalid key %q", key)
	}
	if p.section == "" {
		return p.errorf(lineNo, "key %q appears before any [section] header", key)
	}

	p.entry = &pendingEntry{section: p.section, key: key, line: lineNo, lastLine: lineNo}
	if value := p.strip(strings.TrimSpace(line[idx+1:]), p.section); value != "" {
		p.entry.add(value, lineNo)
	}
	return nil
}

func (p *parser) flush() error {
	e := p.entry
	p.entry = nil
	origin := Origin{Source: p.opts.Source, Line: e.line}

	kind, known := KindOf(e.section, e.key)
	if !known {
		p.diags = append(p.diags, Diagnostic{
			Kind: DiagUnknownKey, Section: e.section, Key: e.key, Origin: origin,
			Message: "unknown key; kept as written",
		})
		if len(e.parts) > 1 {
			kind = KindList
		}
	}

	v, err := p.value(kind, e, origin)
	if err != nil {
		return err
	}

	if prev, ok := p.m.Lookup(e.section, e.key); ok {
		if v.Kind == KindList {
			p.diags = append(p.diags, Diagnostic{
				Kind: DiagDuplicateList, Section: e.section, Key: e.key, Origin: origin, Previous: prev.Origin,
				Message: "list key repeated; items appended",
			})
			v.Items = appendUnique(prev.List(), v.Items)
			v.Origin = prev.Origin
		} else if !prev.Equal(v) {
			p.diags = append(p.diags, Diagnostic{
				Kind: DiagScalarOverride, Section: e.section, Key: e.key, Origin: origin, Previous: prev.Origin,
				Message: fmt.Sprintf("value %q replaces %q", v.Text, prev.Canonical()),
			})
		}
	}

	p.m.Set(e.section, e.key, v)
	return nil
}

func (p *parser) value(kind Kind, e *pendingEntry, origin Origin) (Value, error) {
	if kind == KindList {
		var items []string
		for _, part := range e.parts {
			expanded, err := p.expand(part, e, origin)
			if err != nil {
				return Value{}, err
			}
			items = append(items, splitList(expanded)...)
		}
		return Value{Kind: KindList, Items: appendUnique(nil, items), Origin: origin}, nil
	}

	sep := " "
	if base, _, _ := SplitSectionName(e.section); base == SectionToolchain {
		sep = "\n"
	}
	text, err := p.expand(strings.Join(e.parts, sep), e, origin)
	if err != nil {
		return Value{}, err
	}
	if kind == KindBool && text != "" {
		if _, err := parseBool(text); err != nil {
			return Value{}, p.errorf(e.line, "key %q: %v", e.key, err)
		}
	}
	return Value{Kind: kind, Text: text, Origin: origin}, nil
}

func (p *parser) expand(s string, e *pendingEntry, origin Origin) (string, error) {
	// Stage commands are expanded by the shell that runs them.
	if base, _, _ := SplitSectionName(e.section); base == SectionToolchain {
		return s, nil
	}
	out, undefined, err := expandVars(s, p.opts.LookupEnv)
	if err != nil {
		return "", p.errorf(e.line, "key %q: %v", e.key, err)
	}
	for _, name := range undefined {
		p.diags = append(p.diags, Diagnostic{
			Kind: DiagUndefinedVariable, Section: e.section, Key: e.key, Origin: origin,
			Message: fmt.Sprintf("variable $%s is not defined; expanded to an empty string", name),
		})
	}
	return out, nil
}

func (p *parser) errorf(line int, format string, args ...any) error {
	return &ParseError{Source: p.opts.Source, Line: line, Msg: fmt.Sprintf(format, args...)}
}

func (e *pendingEntry) add(text string, line int) {
	e.parts = append(e.parts, text)
	e.lastLine = line
	e.open = strings.HasSuffix(text, ",")
}

// strip removes an inline comment. Stage commands keep ';' since it
// separates shell commands.
func (p *parser) strip(s, section string) string {
	if base, _, _ := SplitSectionName(section); base == SectionToolchain {
		return stripInlineComment(s, "#")
	}
	return stripInlineComment(s, "#;")
}

// stripInlineComment cuts s at the first marker preceded by whitespace.
func stripInlineComment(s, markers string) string {
	for i := 1; i < len(s); i++ {
		if strings.IndexByte(markers, s[i]) >= 0 && (s[i-1] == ' ' || s[i-1] == '\t') {
			return strings.TrimRight(s[:i], " \t")
		}
	}
	return s
}

// appendUnique appends the items of add not already present, keeping order.
func appendUnique(base, add []string) []string {
	out := slices.Clone(base)
	for _, item := range add {
		if !slices.Contains(out, item) {
			out = append(out, item)
		}
	}
	return out
}
