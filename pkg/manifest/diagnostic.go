// SPDX-License-Identifier: MPL-2.0

package manifest

import "fmt"

const (
	// DiagScalarOverride marks a scalar replaced by a later write.
	DiagScalarOverride DiagnosticKind = "scalar-override"
	// DiagDuplicateList marks a list key written more than once; the items are appended.
	DiagDuplicateList DiagnosticKind = "duplicate-list"
	// DiagUndefinedVariable marks a $VAR reference with no value in the environment.
	DiagUndefinedVariable DiagnosticKind = "undefined-variable"
	// DiagUnknownKey marks a key the schema does not know; it is kept as a string.
	DiagUnknownKey DiagnosticKind = "unknown-key"
	// DiagUnusedProfile marks a profile section that did not match the selected profile.
	DiagUnusedProfile DiagnosticKind = "unused-profile"
)

type (
	// DiagnosticKind classifies a non-fatal finding.
	DiagnosticKind string

	// Diagnostic is a non-fatal finding surfaced to the user as a warning.
	Diagnostic struct {
		Kind     DiagnosticKind `json:"kind" yaml:"kind"`
		Section  string         `json:"section" yaml:"section"`
		Key      string         `json:"key,omitempty" yaml:"key,omitempty"`
		Origin   Origin         `json:"origin" yaml:"origin"`
		Previous Origin         `json:"previous,omitzero" yaml:"previous,omitempty"`
		Message  string         `json:"message" yaml:"message"`
	}
)

// String formats the diagnostic for log output.
func (d Diagnostic) String() string {
	s := fmt.Sprintf("%s: [%s]", d.Origin, d.Section)
	if d.Key != "" {
		s += " " + d.Key
	}
	s += ": " + d.Message
	if d.Previous.Source != "" {
		s += fmt.Sprintf(" (previously set at %s)", d.Previous)
	}
	return s
}
