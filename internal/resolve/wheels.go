// SPDX-License-Identifier: MPL-2.0

package resolve

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/droidpack/droidpack/pkg/abi"
	"github.com/droidpack/droidpack/pkg/requirement"
)

type (
	// Wheel is one prebuilt binary distribution found on disk.
	Wheel struct {
		Name    string
		Version string
		Arch    abi.Arch
		Path    string
	}

	// WheelIndex holds prebuilt wheels laid out as <root>/<arch>/**/*.whl.
	WheelIndex struct {
		byArch map[abi.Arch]map[string][]Wheel
	}
)

// ScanWheels indexes the wheels under root for each arch. A missing root or
// arch directory yields an empty index rather than an error.
func ScanWheels(root string, archs []abi.Arch) (*WheelIndex, error) {
	idx := &WheelIndex{byArch: make(map[abi.Arch]map[string][]Wheel)}
	if root == "" {
		return idx, nil
	}

	for _, arch := range archs {
		dir := filepath.Join(root, string(arch))
		if _, err := os.Stat(dir); errors.Is(err, fs.ErrNotExist) {
			continue
		}
		matches, err := doublestar.Glob(os.DirFS(dir), "**/*.whl")
		if err != nil {
			return nil, fmt.Errorf("scan wheels in %s: %w", dir, err)
		}
		for _, rel := range matches {
			name, version, ok := ParseWheelName(path.Base(rel))
			if !ok {
				continue
			}
			idx.add(Wheel{Name: name, Version: version, Arch: arch, Path: filepath.Join(dir, filepath.FromSlash(rel))})
		}
	}
	return idx, nil
}

func (w *WheelIndex) add(wheel Wheel) {
	byName := w.byArch[wheel.Arch]
	if byName == nil {
		byName = make(map[string][]Wheel)
		w.byArch[wheel.Arch] = byName
	}
	key := requirement.NormalizeName(wheel.Name)
	byName[key] = append(byName[key], wheel)
}

// Find returns a wheel for name on arch. An empty version accepts any.
func (w *WheelIndex) Find(arch abi.Arch, name, version string) (Wheel, bool) {
	if w == nil {
		return Wheel{}, false
	}
	for _, wheel := range w.byArch[arch][requirement.NormalizeName(name)] {
		if version == "" || wheel.Version == version {
			return wheel, true
		}
	}
	return Wheel{}, false
}

// ParseWheelName extracts the distribution name and version from a PEP 427
// file name: {name}-{version}(-{build})?-{python}-{abi}-{platform}.whl.
func ParseWheelName(file string) (name, version string, ok bool) {
	stem, found := strings.CutSuffix(file, ".whl")
	if !found {
		return "", "", false
	}
	parts := strings.Split(stem, "-")
	if len(parts) != 5 && len(parts) != 6 {
		return "", "", false
	}
	return parts[0], parts[1], true
}
