// SPDX-License-Identifier: MPL-2.0

// Package requirement models the Python requirements a packaged application
// declares: a package name with an optional exact pin, or a VCS locator, plus
// optional extra pip arguments.
package requirement

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

var (
	// ErrInvalidRequirement is the sentinel error wrapped by InvalidRequirementError.
	ErrInvalidRequirement = errors.New("invalid requirement")
	// ErrPinnedVCS is returned when a requirement carries both a VCS locator and a pin.
	ErrPinnedVCS = errors.New("a VCS requirement cannot also carry a version pin")

	namePattern    = regexp.MustCompile(`^[A-Za-z0-9]([A-Za-z0-9._-]*[A-Za-z0-9])?$`)
	versionPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9.+!_-]*$`)
	normalizer     = regexp.MustCompile(`[-_.]+`)

	vcsSchemes = []string{"git+", "hg+", "svn+", "bzr+"}
)

type (
	// Requirement is one dependency entry.
	//
	// Version and VCS are mutually exclusive: a requirement built from a VCS
	// locator is pinned by the locator's ref, never by a version.
	Requirement struct {
		// Name is the package name as written.
		Name string `yaml:"name"`
		// Version is the exact pin; empty means "latest".
		Version string `yaml:"version,omitempty"`
		// VCS is a pip-style VCS locator such as git+https://host/repo@ref.
		VCS string `yaml:"vcs,omitempty"`
		// Args are extra pip-style arguments (e.g. --no-binary).
		Args []string `yaml:"args,omitempty"`
	}

	// InvalidRequirementError reports a requirement string that could not be parsed.
	InvalidRequirementError struct {
		Raw    string
		Reason string
	}
)

// Error implements the error interface.
func (e *InvalidRequirementError) Error() string {
	return fmt.Sprintf("invalid requirement %q: %s", e.Raw, e.Reason)
}

// Unwrap returns ErrInvalidRequirement for errors.Is() compatibility.
func (e *InvalidRequirementError) Unwrap() error { return ErrInvalidRequirement }

// Parse parses one requirement entry. Accepted forms:
//
//	music21
//	music21==8.1.0
//	kivy==2.2.0 --no-binary kivy
//	git+https://github.com/kivy/kivy@master#egg=kivy
//	kivy @ git+https://github.com/kivy/kivy@master
func Parse(raw string) (Requirement, error) {
	fields := strings.Fields(raw)
	if len(fields) == 0 {
		return Requirement{}, &InvalidRequirementError{Raw: raw, Reason: "empty entry"}
	}

	var req Requirement
	rest := fields[1:]

	switch {
	case len(fields) >= 3 && fields[1] == "@":
		if !isVCS(fields[2]) {
			return Requirement{}, &InvalidRequirementError{Raw: raw, Reason: "expected a VCS locator after '@'"}
		}
		name, version, err := splitPin(raw, fields[0])
		if err != nil {
			return Requirement{}, err
		}
		req = Requirement{Name: name, Version: version, VCS: fields[2]}
		rest = fields[3:]
	case isVCS(fields[0]):
		name := nameFromLocator(fields[0])
		if name == "" {
			return Requirement{}, &InvalidRequirementError{Raw: raw, Reason: "cannot derive a package name from the VCS locator (add #egg=<name>)"}
		}
		req = Requirement{Name: name, VCS: fields[0]}
		if base, pin, ok := strings.Cut(fields[0], "=="); ok {
			req.VCS = base
			req.Version = pin
		}
	default:
		name, version, err := splitPin(raw, fields[0])
		if err != nil {
			return Requirement{}, err
		}
		req = Requirement{Name: name, Version: version}
	}

	for _, arg := range rest {
		if !strings.HasPrefix(arg, "-") && len(req.Args) == 0 {
			return Requirement{}, &InvalidRequirementError{Raw: raw, Reason: fmt.Sprintf("unexpected token %q", arg)}
		}
		req.Args = append(req.Args, arg)
	}

	if err := req.Validate(); err != nil {
		return Requirement{}, &InvalidRequirementError{Raw: raw, Reason: err.Error()}
	}
	return req, nil
}

// ParseAll parses every entry and joins all parse failures.
func ParseAll(entries []string) ([]Requirement, error) {
	reqs := make([]Requirement, 0, len(entries))
	var errs []error
	for _, entry := range entries {
		req, err := Parse(entry)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		reqs = append(reqs, req)
	}
	return reqs, errors.Join(errs...)
}

// Validate checks the invariants of a requirement.
func (r Requirement) Validate() error {
	if !namePattern.MatchString(r.Name) {
		return fmt.Errorf("invalid package name %q", r.Name)
	}
	if r.VCS != "" && r.Version != "" {
		return ErrPinnedVCS
	}
	if r.Version != "" && !versionPattern.MatchString(r.Version) {
		return fmt.Errorf("invalid version %q", r.Version)
	}
	return nil
}

// Key returns the PEP 503 normalised name used to compare requirements.
func (r Requirement) Key() string {
	return NormalizeName(r.Name)
}

// Pinned reports whether the requirement has an exact version.
func (r Requirement) Pinned() bool { return r.Version != "" }

// Latest reports whether the requirement asks for whatever version is newest.
func (r Requirement) Latest() bool { return r.Version == "" && r.VCS == "" }

// Spec returns the form handed to the packaging toolchain.
func (r Requirement) Spec() string {
	switch {
	case r.VCS != "":
		return r.VCS
	case r.Version != "":
		return r.Name + "==" + r.Version
	default:
		return r.Name
	}
}

// String returns the canonical text of the requirement including extra args.
func (r Requirement) String() string {
	s := r.Spec()
	if r.VCS != "" {
		s = r.Name + " @ " + r.VCS
	}
	if len(r.Args) > 0 {
		s += " " + strings.Join(r.Args, " ")
	}
	return s
}

// Locator splits the VCS locator into the repository URL and the ref
// (empty when the locator names no ref).
func (r Requirement) Locator() (url, ref string) {
	if r.VCS == "" {
		return "", ""
	}
	loc := r.VCS
	for _, scheme := range vcsSchemes {
		loc = strings.TrimPrefix(loc, scheme)
	}
	loc, _, _ = strings.Cut(loc, "#")

	schemeEnd := strings.Index(loc, "://")
	at := strings.LastIndex(loc, "@")
	// An '@' before the host belongs to the credentials, not the ref.
	if at > schemeEnd+3 && !strings.Contains(loc[at:], "/") {
		return loc[:at], loc[at+1:]
	}
	return loc, ""
}

// NormalizeName applies PEP 503 name normalisation.
func NormalizeName(name string) string {
	return strings.ToLower(normalizer.ReplaceAllString(strings.TrimSpace(name), "-"))
}

func isVCS(s string) bool {
	for _, scheme := range vcsSchemes {
		if strings.HasPrefix(s, scheme) {
			return true
		}
	}
	return false
}

func splitPin(raw, spec string) (name, version string, err error) {
	for _, op := range []string{">=", "<=", "~=", "!=", ">", "<"} {
		if strings.Contains(spec, op) {
			return "", "", &InvalidRequirementError{Raw: raw, Reason: fmt.Sprintf("unsupported version operator %q (only exact == pins are allowed)", op)}
		}
	}
	name, version, pinned := strings.Cut(spec, "==")
	if pinned && version == "" {
		return "", "", &InvalidRequirementError{Raw: raw, Reason: "empty version after =="}
	}
	if strings.HasPrefix(version, "=") {
		return "", "", &InvalidRequirementError{Raw: raw, Reason: "arbitrary equality (===) is not supported"}
	}
	return name, version, nil
}

// nameFromLocator derives the package name from #egg=<name> or the last path element.
func nameFromLocator(loc string) string {
	if _, frag, ok := strings.Cut(loc, "#"); ok {
		for part := range strings.SplitSeq(frag, "&") {
			if egg, found := strings.CutPrefix(part, "egg="); found {
				egg, _, _ = strings.Cut(egg, "==")
				return egg
			}
		}
	}
	loc, _, _ = strings.Cut(loc, "#")
	loc, _, _ = strings.Cut(loc, "==")
	path := loc
	if i := strings.Index(path, "://"); i >= 0 {
		path = path[i+3:]
	}
	if at := strings.LastIndex(path, "@"); at > strings.Index(path, "/") && strings.Contains(path, "/") {
		path = path[:at]
	}
	path = strings.TrimSuffix(strings.TrimSuffix(path, "/"), ".git")
	if i := strings.LastIndex(path, "/"); i >= 0 {
		path = path[i+1:]
	}
	if !namePattern.MatchString(path) {
		return ""
	}
	return path
}
