// SPDX-License-Identifier: MPL-2.0

package manifest

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// DefaultFileName is the manifest read when no path is given.
const DefaultFileName = "buildozer.spec"

// ErrNoFragments is returned by Load when called without any path.
var ErrNoFragments = errors.New("no manifest fragments given")

type (
	// LoadOptions controls Load.
	LoadOptions struct {
		// Profile selects which "<section>@<profile>" sections apply.
		Profile string
		// LookupEnv resolves $VAR references; nil uses os.LookupEnv.
		LookupEnv LookupFunc
	}

	// Loaded is a parsed, merged, defaulted and validated manifest.
	Loaded struct {
		Manifest    *Manifest
		Diagnostics []Diagnostic
		// Sources are the absolute fragment paths in merge order.
		Sources []string
		// Dir is the directory of the first fragment; relative paths in the
		// manifest resolve against it.
		Dir string
	}
)

// Load reads every fragment, merges them in order, applies defaults and
// validates the result. Fragments ending in ".toml" are read as TOML.
//
// On a validation failure the merged manifest is still returned alongside
// the *ValidationError so callers can report diagnostics.
func Load(paths []string, opts LoadOptions) (*Loaded, error) {
	if len(paths) == 0 {
		return nil, ErrNoFragments
	}
	if opts.LookupEnv == nil {
		opts.LookupEnv = os.LookupEnv
	}

	loaded := &Loaded{}
	fragments := make([]*Manifest, 0, len(paths))
	for _, path := range paths {
		abs, err := filepath.Abs(path)
		if err != nil {
			return nil, fmt.Errorf("resolve manifest path %s: %w", path, err)
		}
		data, err := os.ReadFile(abs)
		if err != nil {
			return nil, fmt.Errorf("read manifest: %w", err)
		}

		parse := ParseBytes
		if strings.EqualFold(filepath.Ext(abs), ".toml") {
			parse = ParseTOML
		}
		frag, diags, err := parse(data, ParseOptions{Source: path, LookupEnv: opts.LookupEnv})
		if err != nil {
			return nil, err
		}
		frag, profileDiags := ApplyProfile(frag, opts.Profile)

		loaded.Diagnostics = append(loaded.Diagnostics, diags...)
		loaded.Diagnostics = append(loaded.Diagnostics, profileDiags...)
		loaded.Sources = append(loaded.Sources, abs)
		fragments = append(fragments, frag)
	}
	loaded.Dir = filepath.Dir(loaded.Sources[0])

	merged, diags := Merge(fragments...)
	loaded.Diagnostics = append(loaded.Diagnostics, diags...)
	ApplyDefaults(merged)
	loaded.Manifest = merged

	if err := Validate(merged); err != nil {
		return loaded, err
	}
	return loaded, nil
}

// Path resolves a manifest path value relative to the manifest directory.
func (l *Loaded) Path(value string) string {
	if value == "" || filepath.IsAbs(value) {
		return value
	}
	return filepath.Join(l.Dir, value)
}
