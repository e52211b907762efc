// SPDX-License-Identifier: MPL-2.0

// Package matrix expands a validated manifest into one build target per
// requested architecture, applying [arch:<id>] and [env:<id>] overrides.
package matrix

import (
	"slices"

	"github.com/droidpack/droidpack/pkg/abi"
	"github.com/droidpack/droidpack/pkg/manifest"
)

type (
	// EnvVar is one environment variable injected into a target's build.
	EnvVar struct {
		Name  string `yaml:"name"`
		Value string `yaml:"value"`
	}

	// Target is the fully resolved configuration for one architecture.
	// The permissions and native libraries include every manifest-level
	// entry followed by the entries only this architecture adds.
	Target struct {
		Arch        abi.Arch `yaml:"arch"`
		TargetAPI   int      `yaml:"api"`
		MinAPI      int      `yaml:"minapi"`
		NDKAPI      int      `yaml:"ndk_api"`
		SDK         int      `yaml:"sdk"`
		NDK         string   `yaml:"ndk"`
		NativeLibs  []string `yaml:"native_libs,omitempty"`
		Permissions []string `yaml:"permissions,omitempty"`
		Env         []EnvVar `yaml:"env,omitempty"`
	}
)

// Build returns one Target per architecture, in the order requested.
//
// requested overrides the manifest's android.archs when non-empty. Unknown
// or repeated architecture ids are reported as a *manifest.ValidationError.
func Build(m *manifest.Manifest, requested []string) ([]Target, error) {
	archs, err := Archs(m, requested)
	if err != nil {
		return nil, err
	}

	targets := make([]Target, 0, len(archs))
	for _, arch := range archs {
		targets = append(targets, target(m, arch))
	}
	return targets, nil
}

// Archs returns the architectures a build covers.
func Archs(m *manifest.Manifest, requested []string) ([]abi.Arch, error) {
	section, key := "cli", "--arch"
	ids := requested
	if len(ids) == 0 {
		section, key = manifest.SectionApp, manifest.KeyArchs
		ids = m.List(manifest.SectionApp, manifest.KeyArchs)
	}
	if len(ids) == 0 {
		return abi.Defaults(), nil
	}

	verr := &manifest.ValidationError{}
	archs := make([]abi.Arch, 0, len(ids))
	for _, id := range ids {
		a, err := abi.Parse(id)
		if err != nil {
			verr.Add(section, key, manifest.Origin{}, "%v", err)
			continue
		}
		if slices.Contains(archs, a) {
			continue
		}
		archs = append(archs, a)
	}
	if err := verr.OrNil(); err != nil {
		return nil, err
	}
	return archs, nil
}

func target(m *manifest.Manifest, arch abi.Arch) Target {
	archSection := manifest.ArchSection(arch)

	t := Target{
		Arch:      arch,
		TargetAPI: m.ArchLevel(arch, manifest.ArchKeyAPI, manifest.KeyAPI, manifest.DefaultAPI).Value,
		MinAPI:    m.ArchLevel(arch, manifest.ArchKeyMinAPI, manifest.KeyMinAPI, manifest.DefaultMinAPI).Value,
		NDKAPI:    m.ArchLevel(arch, manifest.ArchKeyNDKAPI, manifest.KeyNDKAPI, manifest.DefaultNDKAPI).Value,
		SDK:       m.ArchLevel(arch, manifest.ArchKeySDK, manifest.KeySDK, manifest.DefaultSDK).Value,
		NDK:       m.ArchString(arch, manifest.ArchKeyNDK, manifest.KeyNDK, manifest.DefaultNDK),
	}

	t.NativeLibs = union(
		m.List(manifest.SectionApp, manifest.KeyNativeLibs),
		m.List(manifest.SectionApp, manifest.AddLibsKey(arch)),
		m.List(archSection, manifest.ArchKeyNativeLibs),
	)
	t.Permissions = union(
		m.List(manifest.SectionApp, manifest.KeyPermissions),
		m.List(archSection, manifest.ArchKeyPermissions),
	)
	t.Env = env(m, arch)
	return t
}

// env layers [env:<arch>] over [env]; keys keep the position of their first
// definition.
func env(m *manifest.Manifest, arch abi.Arch) []EnvVar {
	var vars []EnvVar
	index := make(map[string]int)
	for _, name := range []string{manifest.SectionEnv, manifest.EnvSection(arch)} {
		s := m.Section(name)
		if s == nil {
			continue
		}
		for _, key := range s.Keys() {
			v, _ := s.Lookup(key)
			if i, ok := index[key]; ok {
				vars[i].Value = v.Text
				continue
			}
			index[key] = len(vars)
			vars = append(vars, EnvVar{Name: key, Value: v.Text})
		}
	}
	return vars
}

func union(lists ...[]string) []string {
	var out []string
	for _, list := range lists {
		for _, item := range list {
			if !slices.Contains(out, item) {
				out = append(out, item)
			}
		}
	}
	return out
}

// EnvMap returns the target's environment as a map.
func (t Target) EnvMap() map[string]string {
	out := make(map[string]string, len(t.Env))
	for _, v := range t.Env {
		out[v.Name] = v.Value
	}
	return out
}
