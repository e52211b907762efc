// SPDX-License-Identifier: MPL-2.0

package requirement

import (
	"errors"
	"fmt"
	"slices"
)

// ErrConflict is the sentinel error wrapped by ConflictError.
var ErrConflict = errors.New("conflicting requirements")

// ConflictError reports two requirements for the same package that cannot both hold.
type ConflictError struct {
	Name   string
	First  Requirement
	Second Requirement
}

// Error implements the error interface.
func (e *ConflictError) Error() string {
	return fmt.Sprintf("conflicting requirements for %s: %q and %q", e.Name, e.First.Spec(), e.Second.Spec())
}

// Unwrap returns ErrConflict for errors.Is() compatibility.
func (e *ConflictError) Unwrap() error { return ErrConflict }

// Normalize collapses duplicate entries into one requirement per package,
// keeping first-seen order.
//
// A pin wins over "latest", identical entries collapse, and extra args are
// unioned. Two different pins (or two different VCS locators, or a pin and a
// locator) for the same package are a conflict; every conflict is reported.
func Normalize(reqs []Requirement) ([]Requirement, error) {
	out := make([]Requirement, 0, len(reqs))
	index := make(map[string]int, len(reqs))
	var errs []error

	for _, req := range reqs {
		key := req.Key()
		i, seen := index[key]
		if !seen {
			index[key] = len(out)
			req.Args = slices.Clone(req.Args)
			out = append(out, req)
			continue
		}

		merged, err := combine(out[i], req)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		out[i] = merged
	}

	return out, errors.Join(errs...)
}

func combine(have, next Requirement) (Requirement, error) {
	conflict := &ConflictError{Name: have.Key(), First: have, Second: next}

	switch {
	case next.Latest():
		// keep whatever is already there
	case have.Latest():
		have.Name = next.Name
		have.Version = next.Version
		have.VCS = next.VCS
	case have.VCS != "" || next.VCS != "":
		if have.VCS != next.VCS {
			return have, conflict
		}
	case have.Version != next.Version:
		return have, conflict
	}

	for _, arg := range next.Args {
		if !slices.Contains(have.Args, arg) {
			have.Args = append(have.Args, arg)
		}
	}
	return have, nil
}
