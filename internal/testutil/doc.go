// SPDX-License-Identifier: MPL-2.0

// Package testutil provides helpers for tests: Must* wrappers that fail the
// test on error, environment isolation, and Project, a throwaway application
// tree with a manifest, native libraries and Android SDK/NDK roots.
package testutil
