// SPDX-License-Identifier: MPL-2.0

// Package abi defines the Android CPU/ABI identifiers droidpack can package for.
//
// This package is a leaf dependency: it imports only the standard library so that
// both the manifest layer and the build matrix can share one canonical arch list.
package abi

import (
	"errors"
	"fmt"
	"strings"
)

const (
	// ARM64 is the 64-bit ARM ABI.
	ARM64 Arch = "arm64-v8a"
	// ARMv7 is the 32-bit ARM ABI.
	ARMv7 Arch = "armeabi-v7a"
	// X86 is the 32-bit Intel ABI (emulators).
	X86 Arch = "x86"
	// X8664 is the 64-bit Intel ABI (emulators, Chromebooks).
	X8664 Arch = "x86_64"
)

// ErrUnknownArch is the sentinel error wrapped by UnknownArchError.
var ErrUnknownArch = errors.New("unknown architecture")

type (
	// Arch is an Android ABI identifier such as "arm64-v8a".
	Arch string

	// UnknownArchError is returned when an architecture id is not one of Known().
	UnknownArchError struct {
		Value string
	}
)

// Error implements the error interface.
func (e *UnknownArchError) Error() string {
	return fmt.Sprintf("unknown architecture %q (valid: %s)", e.Value, strings.Join(KnownNames(), ", "))
}

// Unwrap returns ErrUnknownArch for errors.Is() compatibility.
func (e *UnknownArchError) Unwrap() error { return ErrUnknownArch }

// Known returns every supported architecture in canonical order.
func Known() []Arch {
	return []Arch{ARM64, ARMv7, X86, X8664}
}

// KnownNames returns Known() as plain strings.
func KnownNames() []string {
	return Names(Known())
}

// Names converts archs to plain strings.
func Names(archs []Arch) []string {
	names := make([]string, len(archs))
	for i, a := range archs {
		names[i] = string(a)
	}
	return names
}

// Defaults returns the canonical architecture set used when a manifest requests none.
func Defaults() []Arch {
	return []Arch{ARM64, ARMv7}
}

// Parse converts s into an Arch, rejecting unknown ids.
func Parse(s string) (Arch, error) {
	a := Arch(strings.TrimSpace(s))
	if !a.Valid() {
		return "", &UnknownArchError{Value: s}
	}
	return a, nil
}

// Valid reports whether a is a supported architecture.
func (a Arch) Valid() bool {
	switch a {
	case ARM64, ARMv7, X86, X8664:
		return true
	default:
		return false
	}
}

// KeySuffix returns the identifier form used in manifest keys, e.g.
// "arm64_v8a" for android.add_libs_arm64_v8a.
func (a Arch) KeySuffix() string {
	return strings.ReplaceAll(string(a), "-", "_")
}

// FromKeySuffix maps a manifest key suffix back to its Arch.
func FromKeySuffix(suffix string) (Arch, bool) {
	for _, a := range Known() {
		if a.KeySuffix() == suffix {
			return a, true
		}
	}
	return "", false
}

// String returns the string representation of the Arch.
func (a Arch) String() string { return string(a) }
