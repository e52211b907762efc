// SPDX-License-Identifier: MPL-2.0

package manifest

import (
	"regexp"
	"slices"
	"strconv"
	"strings"

	"github.com/droidpack/droidpack/pkg/abi"
	"github.com/droidpack/droidpack/pkg/requirement"
)

var (
	packageNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)
	domainPattern      = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_]*(\.[A-Za-z][A-Za-z0-9_]*)*$`)
	ndkPattern         = regexp.MustCompile(`^r?[0-9]+[a-z]?$`)
	envNamePattern     = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)
)

// Validate checks a merged manifest with defaults applied and returns a
// *ValidationError listing every problem found, or nil.
func Validate(m *Manifest) error {
	verr := &ValidationError{}

	app := m.Section(SectionApp)
	if app == nil {
		verr.Add(SectionApp, "", Origin{}, "missing [%s] section", SectionApp)
		return verr
	}

	validateRequired(app, verr)
	validateTypes(m, verr)
	validateEnums(app, verr)
	validateArchs(m, verr)
	validateLevels(m, verr)
	validateRequirements(app, verr)

	return verr.OrNil()
}

func validateRequired(app *Section, verr *ValidationError) {
	for _, key := range []string{KeyTitle, KeyPackageName, KeyPackageDomain, KeyVersion} {
		v, ok := app.Lookup(key)
		if !ok || strings.TrimSpace(v.Text) == "" {
			verr.Add(SectionApp, key, v.Origin, "required key is missing")
		}
	}
	if v, ok := app.Lookup(KeyPackageName); ok && v.Text != "" && !packageNamePattern.MatchString(v.Text) {
		verr.Add(SectionApp, KeyPackageName, v.Origin, "%q is not a valid package name (letters, digits and '_', not starting with a digit)", v.Text)
	}
	if v, ok := app.Lookup(KeyPackageDomain); ok && v.Text != "" && !domainPattern.MatchString(v.Text) {
		verr.Add(SectionApp, KeyPackageDomain, v.Origin, "%q is not a valid reverse-domain name", v.Text)
	}
}

func validateTypes(m *Manifest, verr *ValidationError) {
	for _, name := range m.order {
		s := m.sections[name]
		base, scope, _ := SplitSectionName(name)
		if scope != "" {
			if _, err := abi.Parse(scope); err != nil {
				verr.Add(name, "", Origin{}, "%v", err)
			}
		}

		for _, key := range s.keys {
			v := s.values[key]
			if base == SectionEnv && !envNamePattern.MatchString(key) {
				verr.Add(name, key, v.Origin, "not a valid environment variable name")
				continue
			}
			if base == SectionApp {
				if suffix, ok := strings.CutPrefix(key, KeyAddLibsPrefix); ok {
					if _, known := abi.FromKeySuffix(suffix); !known {
						verr.Add(name, key, v.Origin, "unknown architecture suffix %q", suffix)
					}
				}
			}

			kind, known := KindOf(name, key)
			if !known {
				continue
			}
			switch kind {
			case KindInt:
				n, err := v.Int()
				switch {
				case err != nil:
					verr.Add(name, key, v.Origin, "%v", err)
				case n <= 0:
					verr.Add(name, key, v.Origin, "must be a positive integer, got %d", n)
				}
			case KindVersion:
				if !ndkPattern.MatchString(v.Text) {
					verr.Add(name, key, v.Origin, "%q is not a valid NDK release (e.g. 25b)", v.Text)
				}
			case KindBool:
				if _, err := v.Bool(); v.Text != "" && err != nil {
					verr.Add(name, key, v.Origin, "%v", err)
				}
			}
		}
	}
}

func validateEnums(app *Section, verr *ValidationError) {
	check := func(key string, allowed []string) {
		v, ok := app.Lookup(key)
		if ok && !slices.Contains(allowed, v.Text) {
			verr.Add(SectionApp, key, v.Origin, "%q is not one of %s", v.Text, strings.Join(allowed, ", "))
		}
	}
	check(KeyOrientation, Orientations)
	check(KeyReleaseArtifact, ReleaseArtifacts)

	if v, ok := app.Lookup(KeyBootstrap); ok && strings.TrimSpace(v.Text) == "" {
		verr.Add(SectionApp, KeyBootstrap, v.Origin, "must not be empty")
	}
}

func validateArchs(m *Manifest, verr *ValidationError) {
	v, ok := m.Lookup(SectionApp, KeyArchs)
	if !ok {
		return
	}
	for _, item := range v.List() {
		if _, err := abi.Parse(item); err != nil {
			verr.Add(SectionApp, KeyArchs, v.Origin, "%v", err)
		}
	}
	if len(v.List()) == 0 {
		verr.Add(SectionApp, KeyArchs, v.Origin, "at least one architecture is required")
	}
}

// validateLevels checks minapi <= api and ndk_api <= minapi, once for the
// [app] values and once per [arch:<id>] section with overrides applied.
// Every section is checked, not only android.archs, because --arch may
// select any known architecture.
func validateLevels(m *Manifest, verr *ValidationError) {
	check := func(section string, api, minAPI, ndkAPI Level) {
		if !api.OK || !minAPI.OK || !ndkAPI.OK {
			return
		}
		if minAPI.Value > api.Value {
			verr.Add(section, KeyMinAPI, minAPI.Origin, "minimum API %d is greater than target API %d", minAPI.Value, api.Value)
		}
		if ndkAPI.Value > minAPI.Value {
			verr.Add(section, KeyNDKAPI, ndkAPI.Origin, "NDK API %d is greater than minimum API %d", ndkAPI.Value, minAPI.Value)
		}
	}

	check(SectionApp,
		m.ArchLevel("", ArchKeyAPI, KeyAPI, DefaultAPI),
		m.ArchLevel("", ArchKeyMinAPI, KeyMinAPI, DefaultMinAPI),
		m.ArchLevel("", ArchKeyNDKAPI, KeyNDKAPI, DefaultNDKAPI))

	for _, arch := range abi.Known() {
		if m.Section(ArchSection(arch)) == nil {
			continue
		}
		check(ArchSection(arch),
			m.ArchLevel(arch, ArchKeyAPI, KeyAPI, DefaultAPI),
			m.ArchLevel(arch, ArchKeyMinAPI, KeyMinAPI, DefaultMinAPI),
			m.ArchLevel(arch, ArchKeyNDKAPI, KeyNDKAPI, DefaultNDKAPI))
	}
}

func validateRequirements(app *Section, verr *ValidationError) {
	v, ok := app.Lookup(KeyRequirements)
	if !ok {
		return
	}
	var reqs []requirement.Requirement
	for _, item := range v.List() {
		req, err := requirement.Parse(item)
		if err != nil {
			verr.Add(SectionApp, KeyRequirements, v.Origin, "%v", err)
			continue
		}
		reqs = append(reqs, req)
	}
	if _, err := requirement.Normalize(reqs); err != nil {
		for _, e := range unwrapAll(err) {
			verr.Add(SectionApp, KeyRequirements, v.Origin, "%v", e)
		}
	}
}

// Level is an integer setting resolved for one architecture.
type Level struct {
	Value  int
	Origin Origin
	OK     bool
}

// ArchLevel resolves an integer setting for arch: the [arch:<id>] override
// when present, then the [app] key, then def. An empty arch skips the
// override lookup. OK is false when the winning value is not an integer.
func (m *Manifest) ArchLevel(arch abi.Arch, archKey, appKey string, def int) Level {
	v, found := Value{}, false
	if arch != "" {
		v, found = m.Lookup(ArchSection(arch), archKey)
	}
	if !found {
		v, found = m.Lookup(SectionApp, appKey)
	}
	if !found {
		return Level{Value: def, Origin: Origin{Source: DefaultsSource}, OK: true}
	}
	n, err := strconv.Atoi(strings.TrimSpace(v.Text))
	if err != nil {
		return Level{Origin: v.Origin}
	}
	return Level{Value: n, Origin: v.Origin, OK: true}
}

// ArchString resolves a scalar setting for arch the same way ArchLevel does.
func (m *Manifest) ArchString(arch abi.Arch, archKey, appKey, def string) string {
	if v, ok := m.Lookup(ArchSection(arch), archKey); ok && v.Text != "" {
		return v.Text
	}
	if v, ok := m.Lookup(SectionApp, appKey); ok && v.Text != "" {
		return v.Text
	}
	return def
}

func unwrapAll(err error) []error {
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		return joined.Unwrap()
	}
	return []error{err}
}
