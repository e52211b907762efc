// SPDX-License-Identifier: MPL-2.0

package resolve

import (
	_ "embed"
	"fmt"
	"os"
	"slices"
	"strings"

	"golang.org/x/mod/semver"
	"gopkg.in/yaml.v3"

	"github.com/droidpack/droidpack/pkg/abi"
	"github.com/droidpack/droidpack/pkg/requirement"
)

//go:embed recipes.yaml
var builtinRecipes []byte

type (
	// Recipe describes one package the toolchain knows how to build.
	Recipe struct {
		Name string `yaml:"name"`
		// Native recipes compile code for the target ABI.
		Native bool `yaml:"native"`
		// Archs restricts the ABIs the recipe builds for; empty means all.
		Archs []string `yaml:"archs,omitempty"`
		// Versions are the constraints a pin must satisfy (">=2.1.0",
		// "<3", "2.2.0"); any one matching is enough. Empty means any.
		Versions []string `yaml:"versions,omitempty"`
		Depends  []string `yaml:"depends,omitempty"`
		MinNDK   string   `yaml:"min_ndk,omitempty"`
		MinAPI   int      `yaml:"min_api,omitempty"`
	}

	// Catalog indexes recipes by normalised package name.
	Catalog struct {
		recipes map[string]Recipe
	}

	catalogFile struct {
		Recipes []Recipe `yaml:"recipes"`
	}
)

// BuiltinCatalog returns the catalog embedded in the binary.
func BuiltinCatalog() *Catalog {
	c, err := ParseCatalog(builtinRecipes, "recipes.yaml")
	if err != nil {
		panic(fmt.Sprintf("embedded recipe catalog is invalid: %v", err))
	}
	return c
}

// LoadCatalog reads a catalog file.
func LoadCatalog(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read recipe catalog: %w", err)
	}
	return ParseCatalog(data, path)
}

// ParseCatalog decodes catalog YAML.
func ParseCatalog(data []byte, source string) (*Catalog, error) {
	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse recipe catalog %s: %w", source, err)
	}

	c := &Catalog{recipes: make(map[string]Recipe, len(file.Recipes))}
	for i, r := range file.Recipes {
		if strings.TrimSpace(r.Name) == "" {
			return nil, fmt.Errorf("recipe catalog %s: entry %d has no name", source, i+1)
		}
		for _, a := range r.Archs {
			if _, err := abi.Parse(a); err != nil {
				return nil, fmt.Errorf("recipe catalog %s: recipe %s: %w", source, r.Name, err)
			}
		}
		c.recipes[requirement.NormalizeName(r.Name)] = r
	}
	return c, nil
}

// Overlay returns a catalog holding c's recipes replaced or extended by o's.
func (c *Catalog) Overlay(o *Catalog) *Catalog {
	out := &Catalog{recipes: make(map[string]Recipe, len(c.recipes))}
	for k, r := range c.recipes {
		out.recipes[k] = r
	}
	if o != nil {
		for k, r := range o.recipes {
			out.recipes[k] = r
		}
	}
	return out
}

// Lookup returns the recipe for name, compared after PEP 503 normalisation.
func (c *Catalog) Lookup(name string) (Recipe, bool) {
	r, ok := c.recipes[requirement.NormalizeName(name)]
	return r, ok
}

// Len returns the number of recipes.
func (c *Catalog) Len() int { return len(c.recipes) }

// SupportsArch reports whether the recipe builds for arch.
func (r Recipe) SupportsArch(arch abi.Arch) bool {
	return len(r.Archs) == 0 || slices.Contains(r.Archs, string(arch))
}

// SupportsVersion reports whether the recipe can build version. An empty
// version ("latest") is always supported.
func (r Recipe) SupportsVersion(version string) bool {
	if version == "" || len(r.Versions) == 0 {
		return true
	}
	for _, constraint := range r.Versions {
		if satisfiesAll(version, constraint) {
			return true
		}
	}
	return false
}

// satisfiesAll checks a comma-separated conjunction such as ">=2.1,<3".
func satisfiesAll(version, constraint string) bool {
	for part := range strings.SplitSeq(constraint, ",") {
		if !satisfies(version, strings.TrimSpace(part)) {
			return false
		}
	}
	return true
}

func satisfies(version, constraint string) bool {
	op, want := splitOperator(constraint)
	v, w := canonical(version), canonical(want)
	if v == "" || w == "" {
		// Not semver-shaped: only exact matches can be decided.
		switch op {
		case "==", "":
			return version == want
		case "!=":
			return version != want
		default:
			return false
		}
	}

	cmp := semver.Compare(v, w)
	switch op {
	case ">=":
		return cmp >= 0
	case ">":
		return cmp > 0
	case "<=":
		return cmp <= 0
	case "<":
		return cmp < 0
	case "!=":
		return cmp != 0
	default:
		return cmp == 0
	}
}

func splitOperator(constraint string) (op, version string) {
	for _, candidate := range []string{">=", "<=", "==", "!=", ">", "<"} {
		if rest, ok := strings.CutPrefix(constraint, candidate); ok {
			return candidate, strings.TrimSpace(rest)
		}
	}
	return "", constraint
}

// canonical maps a Python-style version onto semver, or "" when it has no
// semver reading.
func canonical(version string) string {
	v := "v" + strings.TrimPrefix(strings.TrimSpace(version), "v")
	if !semver.IsValid(v) {
		return ""
	}
	return semver.Canonical(v)
}
