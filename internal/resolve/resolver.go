// SPDX-License-Identifier: MPL-2.0

// Package resolve decides, for every requirement and every target
// architecture, whether the requirement can be satisfied and how: as a pure
// Python package, from a prebuilt wheel, or by compiling a recipe.
package resolve

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/droidpack/droidpack/internal/matrix"
	"github.com/droidpack/droidpack/pkg/abi"
	"github.com/droidpack/droidpack/pkg/requirement"
)

const (
	// StatusResolved means the requirement is available as-is.
	StatusResolved Status = "resolved"
	// StatusNeedsNativeBuild means a recipe compiles the requirement for the arch.
	StatusNeedsNativeBuild Status = "needs-native-build"
	// StatusUnavailable means the requirement cannot be satisfied for the arch.
	StatusUnavailable Status = "unavailable-for-arch"

	// SourcePure is a pure Python package installed from the index.
	SourcePure Source = "pure"
	// SourcePrebuilt is a wheel found in the local wheels directory.
	SourcePrebuilt Source = "prebuilt"
	// SourceRecipe is a cross-compiled catalog recipe.
	SourceRecipe Source = "recipe"
	// SourceVCS is a package fetched from a version control locator.
	SourceVCS Source = "vcs"
)

var (
	// ErrResolution is the sentinel error wrapped by ResolutionError.
	ErrResolution = errors.New("requirement resolution failed")

	ndkPattern    = regexp.MustCompile(`^r?([0-9]+)([a-z]?)$`)
	commitPattern = regexp.MustCompile(`^[0-9a-f]{7,40}$`)
)

type (
	// Status is the resolution outcome of a requirement on one architecture.
	Status string

	// Source is where a resolved requirement comes from.
	Source string

	// ArchStatus is the outcome for one architecture.
	ArchStatus struct {
		Arch   abi.Arch `yaml:"arch"`
		Status Status   `yaml:"status"`
		Source Source   `yaml:"source,omitempty"`
		Reason string   `yaml:"reason,omitempty"`
		Wheel  string   `yaml:"wheel,omitempty"`
	}

	// Entry is the resolution of one requirement across all architectures.
	Entry struct {
		Requirement requirement.Requirement `yaml:"requirement"`
		Transitive  bool                    `yaml:"transitive,omitempty"`
		RequiredBy  string                  `yaml:"required_by,omitempty"`
		Archs       []ArchStatus            `yaml:"archs"`
	}

	// Report is the outcome of one Resolve call.
	Report struct {
		Entries []Entry `yaml:"entries"`
		// BuildOrder lists native recipes so that dependencies come first.
		BuildOrder []string `yaml:"build_order,omitempty"`
	}

	// Failure names one requirement that cannot be satisfied on one arch.
	Failure struct {
		Requirement string
		Arch        abi.Arch
		Reason      string
	}

	// ResolutionError reports every unresolvable requirement, or a recipe
	// dependency cycle in Err.
	ResolutionError struct {
		Failures []Failure
		Err      error
	}

	// Resolver checks requirements against a recipe catalog and local wheels.
	Resolver struct {
		Catalog *Catalog
		Wheels  *WheelIndex
		// Refs verifies VCS refs against their remote; nil skips the check.
		Refs   RefLister
		Logger *log.Logger
	}
)

// Error implements the error interface.
func (e *ResolutionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", ErrResolution, e.Err)
	}
	if len(e.Failures) == 1 {
		f := e.Failures[0]
		return fmt.Sprintf("%s: %s is unavailable for %s: %s", ErrResolution, f.Requirement, f.Arch, f.Reason)
	}
	lines := make([]string, len(e.Failures))
	for i, f := range e.Failures {
		lines[i] = fmt.Sprintf("  - %s is unavailable for %s: %s", f.Requirement, f.Arch, f.Reason)
	}
	return fmt.Sprintf("%s:\n%s", ErrResolution, strings.Join(lines, "\n"))
}

// Unwrap returns ErrResolution and the underlying cause.
func (e *ResolutionError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrResolution, e.Err}
	}
	return []error{ErrResolution}
}

// Stage names the pipeline stage that produced the error.
func (e *ResolutionError) Stage() string { return "resolve" }

// New returns a resolver over catalog and wheels.
func New(catalog *Catalog, wheels *WheelIndex) *Resolver {
	return &Resolver{Catalog: catalog, Wheels: wheels, Logger: log.Default()}
}

// Resolve classifies every requirement, and every native dependency it pulls
// in, for every target. Conflicting requirements fail with the
// requirement.ConflictError from normalisation. When anything is
// unavailable the returned report is complete and the error is a
// *ResolutionError.
func (r *Resolver) Resolve(ctx context.Context, reqs []requirement.Requirement, targets []matrix.Target) (*Report, error) {
	reqs, err := requirement.Normalize(reqs)
	if err != nil {
		return nil, err
	}

	type pending struct {
		req        requirement.Requirement
		transitive bool
		requiredBy string
	}
	queue := make([]pending, 0, len(reqs))
	for _, req := range reqs {
		queue = append(queue, pending{req: req})
	}

	report := &Report{}
	graph := newBuildGraph()
	seen := make(map[string]bool)
	var failures []Failure

	for i := 0; i < len(queue); i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		item := queue[i]
		key := item.req.Key()
		if seen[key] {
			continue
		}
		seen[key] = true

		recipe, hasRecipe := r.Catalog.Lookup(key)
		native := hasRecipe && recipe.Native

		entry := Entry{Requirement: item.req, Transitive: item.transitive, RequiredBy: item.requiredBy}
		if item.req.VCS != "" {
			entry.Archs = r.resolveVCS(ctx, item.req, targets, recipe, native)
		} else {
			for _, t := range targets {
				entry.Archs = append(entry.Archs, r.resolveArch(item.req, t, recipe, native))
			}
		}

		for _, st := range entry.Archs {
			if st.Status == StatusUnavailable {
				failures = append(failures, Failure{Requirement: item.req.Spec(), Arch: st.Arch, Reason: st.Reason})
			}
		}

		if native {
			graph.add(key)
			for _, dep := range recipe.Depends {
				depKey := requirement.NormalizeName(dep)
				if depRecipe, ok := r.Catalog.Lookup(depKey); ok && depRecipe.Native {
					graph.requires(key, depKey)
				}
				if !seen[depKey] {
					queue = append(queue, pending{
						req:        requirement.Requirement{Name: dep},
						transitive: true,
						requiredBy: item.req.Name,
					})
				}
			}
		}

		r.logger().Debug("resolved requirement", "requirement", item.req.Spec(), "status", entry.Status(), "transitive", item.transitive)
		report.Entries = append(report.Entries, entry)
	}

	order, err := graph.order()
	if err != nil {
		return report, &ResolutionError{Err: err}
	}
	report.BuildOrder = order

	if len(failures) > 0 {
		return report, &ResolutionError{Failures: failures}
	}
	return report, nil
}

func (r *Resolver) resolveArch(req requirement.Requirement, t matrix.Target, recipe Recipe, native bool) ArchStatus {
	st := ArchStatus{Arch: t.Arch}

	if wheel, ok := r.Wheels.Find(t.Arch, req.Name, req.Version); ok {
		st.Status, st.Source, st.Wheel = StatusResolved, SourcePrebuilt, wheel.Path
		return st
	}
	if !native {
		st.Status, st.Source = StatusResolved, SourcePure
		return st
	}
	if reason := r.incompatible(req, t, recipe); reason != "" {
		st.Status, st.Reason = StatusUnavailable, reason
		return st
	}
	st.Status, st.Source = StatusNeedsNativeBuild, SourceRecipe
	return st
}

func (r *Resolver) incompatible(req requirement.Requirement, t matrix.Target, recipe Recipe) string {
	switch {
	case !recipe.SupportsArch(t.Arch):
		return fmt.Sprintf("no prebuilt wheel and the recipe only builds for %s", strings.Join(recipe.Archs, ", "))
	case !recipe.SupportsVersion(req.Version):
		return fmt.Sprintf("version %s is outside the recipe's supported range (%s)", req.Version, strings.Join(recipe.Versions, " | "))
	case recipe.MinNDK != "" && compareNDK(t.NDK, recipe.MinNDK) < 0:
		return fmt.Sprintf("recipe needs NDK %s or newer, target uses %s", recipe.MinNDK, t.NDK)
	case recipe.MinAPI > 0 && t.MinAPI < recipe.MinAPI:
		return fmt.Sprintf("recipe needs minimum API %d, target allows %d", recipe.MinAPI, t.MinAPI)
	default:
		return ""
	}
}

func (r *Resolver) resolveVCS(ctx context.Context, req requirement.Requirement, targets []matrix.Target, recipe Recipe, native bool) []ArchStatus {
	url, ref := req.Locator()
	reason := ""
	if err := checkLocator(req.VCS, url); err != nil {
		reason = err.Error()
	} else if r.Refs != nil && ref != "" && !commitPattern.MatchString(ref) {
		refs, err := r.Refs.ListRefs(ctx, url)
		switch {
		case err != nil:
			reason = fmt.Sprintf("cannot reach repository: %v", err)
		case !slices.Contains(refs, ref):
			reason = fmt.Sprintf("ref %q not found in %s", ref, url)
		}
	}

	out := make([]ArchStatus, 0, len(targets))
	for _, t := range targets {
		st := ArchStatus{Arch: t.Arch, Source: SourceVCS}
		switch {
		case reason != "":
			st.Status, st.Source, st.Reason = StatusUnavailable, "", reason
		case native:
			if why := r.incompatible(requirement.Requirement{Name: req.Name}, t, recipe); why != "" {
				st.Status, st.Source, st.Reason = StatusUnavailable, "", why
			} else {
				st.Status = StatusNeedsNativeBuild
			}
		default:
			st.Status = StatusResolved
		}
		out = append(out, st)
	}
	return out
}

func (r *Resolver) logger() *log.Logger {
	if r.Logger != nil {
		return r.Logger
	}
	return log.Default()
}

// Status summarises the entry: unavailable when any arch is, otherwise
// needs-native-build when any arch is, otherwise resolved.
func (e Entry) Status() Status {
	out := StatusResolved
	for _, st := range e.Archs {
		switch st.Status {
		case StatusUnavailable:
			return StatusUnavailable
		case StatusNeedsNativeBuild:
			out = StatusNeedsNativeBuild
		}
	}
	return out
}

// For returns the outcome for arch.
func (e Entry) For(arch abi.Arch) (ArchStatus, bool) {
	for _, st := range e.Archs {
		if st.Arch == arch {
			return st, true
		}
	}
	return ArchStatus{}, false
}

// Requirements returns the explicitly declared requirements in order.
func (r *Report) Requirements() []requirement.Requirement {
	var out []requirement.Requirement
	for _, e := range r.Entries {
		if !e.Transitive {
			out = append(out, e.Requirement)
		}
	}
	return out
}

// Specs returns the toolchain form of the declared requirements.
func (r *Report) Specs() []string {
	reqs := r.Requirements()
	out := make([]string, len(reqs))
	for i, req := range reqs {
		out[i] = req.Spec()
	}
	return out
}

// Wheels returns the prebuilt wheels selected for arch.
func (r *Report) Wheels(arch abi.Arch) []string {
	var out []string
	for _, e := range r.Entries {
		if st, ok := e.For(arch); ok && st.Wheel != "" {
			out = append(out, st.Wheel)
		}
	}
	return out
}

// compareNDK orders NDK releases such as "23", "23b" and "r25c".
func compareNDK(a, b string) int {
	am, al := parseNDK(a)
	bm, bl := parseNDK(b)
	if am != bm {
		return am - bm
	}
	return int(al) - int(bl)
}

func parseNDK(v string) (int, byte) {
	m := ndkPattern.FindStringSubmatch(strings.TrimSpace(v))
	if m == nil {
		return 0, 0
	}
	major, _ := strconv.Atoi(m[1])
	letter := byte('a')
	if m[2] != "" {
		letter = m[2][0]
	}
	return major, letter
}
