// SPDX-License-Identifier: MPL-2.0

// Package manifest parses, merges and validates declarative application
// manifests in the buildozer.spec dialect: INI-style sections holding typed
// scalar and list values, with profile and per-architecture overrides.
package manifest

import (
	"fmt"
	"slices"
	"strings"

	"github.com/droidpack/droidpack/internal/digest"
)

const (
	// SectionApp holds the application settings.
	SectionApp = "app"
	// SectionEnv holds environment variables injected into every build.
	SectionEnv = "env"
	// SectionToolchain holds shell overrides for individual build stages.
	SectionToolchain = "toolchain"
	// SectionBuildozer holds tool-level settings kept for compatibility.
	SectionBuildozer = "buildozer"

	// ScopeArch prefixes per-architecture override sections ("arch:arm64-v8a").
	ScopeArch = "arch"
	// ScopeEnv prefixes per-architecture environment sections ("env:x86_64").
	ScopeEnv = "env"
)

type (
	// Manifest is an ordered mapping from section name to section.
	//
	// Sections and keys keep first-insertion order so that rendering and
	// diagnostics follow the order the author wrote them in.
	Manifest struct {
		order    []string
		sections map[string]*Section
	}

	// Section is an ordered mapping from key to typed value.
	Section struct {
		Name   string
		keys   []string
		values map[string]Value
	}
)

// New returns an empty manifest.
func New() *Manifest {
	return &Manifest{sections: make(map[string]*Section)}
}

// Section returns the named section, or nil when absent.
func (m *Manifest) Section(name string) *Section {
	return m.sections[name]
}

// Sections returns the section names in insertion order.
func (m *Manifest) Sections() []string {
	return slices.Clone(m.order)
}

// ScopedSections returns the scope ids of every "<scope>:<id>" section, in order.
func (m *Manifest) ScopedSections(scope string) []string {
	var ids []string
	for _, name := range m.order {
		if base, id, ok := strings.Cut(name, ":"); ok && base == scope {
			ids = append(ids, id)
		}
	}
	return ids
}

// Lookup returns the value of key in section.
func (m *Manifest) Lookup(section, key string) (Value, bool) {
	s := m.sections[section]
	if s == nil {
		return Value{}, false
	}
	return s.Lookup(key)
}

// Has reports whether key is set in section.
func (m *Manifest) Has(section, key string) bool {
	_, ok := m.Lookup(section, key)
	return ok
}

// String returns a scalar value, or "" when unset.
func (m *Manifest) String(section, key string) string {
	v, _ := m.Lookup(section, key)
	if v.Kind == KindList {
		return v.Canonical()
	}
	return v.Text
}

// List returns a list value, or nil when unset.
func (m *Manifest) List(section, key string) []string {
	v, ok := m.Lookup(section, key)
	if !ok {
		return nil
	}
	return v.List()
}

// Bool returns a boolean value; ok is false when unset or malformed.
func (m *Manifest) Bool(section, key string) (value, ok bool) {
	v, found := m.Lookup(section, key)
	if !found {
		return false, false
	}
	b, err := v.Bool()
	if err != nil {
		return false, false
	}
	return b, true
}

// Int returns an integer value; ok is false when unset or malformed.
func (m *Manifest) Int(section, key string) (value int, ok bool) {
	v, found := m.Lookup(section, key)
	if !found {
		return 0, false
	}
	n, err := v.Int()
	if err != nil {
		return 0, false
	}
	return n, true
}

// Set stores value under section/key, creating the section if needed.
func (m *Manifest) Set(section, key string, value Value) {
	m.ensure(section).set(key, value)
}

// Delete removes key from section. Empty sections are kept.
func (m *Manifest) Delete(section, key string) {
	if s := m.sections[section]; s != nil {
		s.delete(key)
	}
}

// Clone returns a deep copy of m.
func (m *Manifest) Clone() *Manifest {
	out := New()
	for _, name := range m.order {
		src := m.sections[name]
		dst := out.ensure(name)
		for _, key := range src.keys {
			dst.set(key, src.values[key].clone())
		}
	}
	return out
}

// Canonical renders the manifest as sorted "[section]\nkey = value" text.
// Two manifests with the same content render identically regardless of the
// order their fragments were written in.
func (m *Manifest) Canonical() string {
	names := slices.Clone(m.order)
	slices.Sort(names)

	var b strings.Builder
	for _, name := range names {
		s := m.sections[name]
		keys := slices.Clone(s.keys)
		slices.Sort(keys)
		fmt.Fprintf(&b, "[%s]\n", name)
		for _, key := range keys {
			v := s.values[key]
			fmt.Fprintf(&b, "%s = %s\n", key, v.Canonical())
		}
	}
	return b.String()
}

// Hash returns the BLAKE3 digest of Canonical().
func (m *Manifest) Hash() string {
	return digest.String(m.Canonical())
}

func (m *Manifest) ensure(name string) *Section {
	if s, ok := m.sections[name]; ok {
		return s
	}
	s := &Section{Name: name, values: make(map[string]Value)}
	m.sections[name] = s
	m.order = append(m.order, name)
	return s
}

func (m *Manifest) dropSection(name string) {
	if _, ok := m.sections[name]; !ok {
		return
	}
	delete(m.sections, name)
	m.order = slices.DeleteFunc(m.order, func(n string) bool { return n == name })
}

// Keys returns the keys in insertion order.
func (s *Section) Keys() []string {
	return slices.Clone(s.keys)
}

// Lookup returns the value stored under key.
func (s *Section) Lookup(key string) (Value, bool) {
	v, ok := s.values[key]
	return v, ok
}

// Len returns the number of keys.
func (s *Section) Len() int { return len(s.keys) }

func (s *Section) set(key string, v Value) {
	if _, ok := s.values[key]; !ok {
		s.keys = append(s.keys, key)
	}
	s.values[key] = v
}

func (s *Section) delete(key string) {
	if _, ok := s.values[key]; !ok {
		return
	}
	delete(s.values, key)
	s.keys = slices.DeleteFunc(s.keys, func(k string) bool { return k == key })
}

// SplitSectionName splits "base:scope@profile" into its parts. Every part but
// base may be empty.
func SplitSectionName(name string) (base, scope, profile string) {
	rest, profile, _ := strings.Cut(name, "@")
	base, scope, _ = strings.Cut(rest, ":")
	return base, scope, profile
}
