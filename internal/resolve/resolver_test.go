// SPDX-License-Identifier: MPL-2.0

package resolve

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"github.com/droidpack/droidpack/internal/matrix"
	"github.com/droidpack/droidpack/pkg/abi"
	"github.com/droidpack/droidpack/pkg/requirement"
)

const testCatalog = `
recipes:
  - name: kivy
    native: true
    versions: [">=2.1.0"]
    depends: [sdl2, pyjnius]
  - name: sdl2
    native: true
  - name: pyjnius
    native: true
    depends: [six]
  - name: six
    native: false
  - name: audiostream
    native: true
    archs: [arm64-v8a]
  - name: numpy
    native: true
    min_ndk: "25b"
  - name: ffpyplayer
    native: true
    min_api: 24
`

type fakeRefs struct {
	refs  []string
	err   error
	calls int
}

func (f *fakeRefs) ListRefs(_ context.Context, _ string) ([]string, error) {
	f.calls++
	return f.refs, f.err
}

func newTestResolver(t *testing.T) *Resolver {
	t.Helper()

	c, err := ParseCatalog([]byte(testCatalog), "test")
	if err != nil {
		t.Fatalf("ParseCatalog() unexpected error: %v", err)
	}
	return New(c, nil)
}

func targets(archs ...abi.Arch) []matrix.Target {
	out := make([]matrix.Target, len(archs))
	for i, a := range archs {
		out[i] = matrix.Target{Arch: a, MinAPI: 21, TargetAPI: 33, NDKAPI: 21, NDK: "25b"}
	}
	return out
}

func reqs(t *testing.T, entries ...string) []requirement.Requirement {
	t.Helper()

	out, err := requirement.ParseAll(entries)
	if err != nil {
		t.Fatalf("ParseAll() unexpected error: %v", err)
	}
	return out
}

func TestResolvePureAndNative(t *testing.T) {
	t.Parallel()

	r := newTestResolver(t)
	report, err := r.Resolve(t.Context(), reqs(t, "music21", "kivy==2.2.0"), targets(abi.ARM64, abi.ARMv7))
	if err != nil {
		t.Fatalf("Resolve() unexpected error: %v", err)
	}

	var names []string
	for _, e := range report.Entries {
		names = append(names, e.Requirement.Key())
	}
	if want := []string{"music21", "kivy", "sdl2", "pyjnius", "six"}; !slices.Equal(names, want) {
		t.Errorf("entries = %v, want %v", names, want)
	}

	music21 := report.Entries[0]
	if music21.Status() != StatusResolved || music21.Archs[0].Source != SourcePure {
		t.Errorf("music21 = %+v, want resolved/pure", music21)
	}
	kivy := report.Entries[1]
	if kivy.Status() != StatusNeedsNativeBuild {
		t.Errorf("kivy status = %s, want %s", kivy.Status(), StatusNeedsNativeBuild)
	}
	if sdl2 := report.Entries[2]; !sdl2.Transitive || sdl2.RequiredBy != "kivy" {
		t.Errorf("sdl2 = %+v, want transitive via kivy", sdl2)
	}

	// sdl2 and pyjnius build before kivy; six is pure and not ordered
	if want := []string{"sdl2", "pyjnius", "kivy"}; !isOrderedBefore(report.BuildOrder, want) {
		t.Errorf("BuildOrder = %v, want dependencies before kivy", report.BuildOrder)
	}
	if slices.Contains(report.BuildOrder, "six") {
		t.Errorf("BuildOrder = %v, pure packages must not be ordered", report.BuildOrder)
	}

	if got := report.Specs(); !slices.Equal(got, []string{"music21", "kivy==2.2.0"}) {
		t.Errorf("Specs() = %v", got)
	}
}

func isOrderedBefore(order, want []string) bool {
	kivy := slices.Index(order, "kivy")
	for _, dep := range want[:len(want)-1] {
		if i := slices.Index(order, dep); i < 0 || i > kivy {
			return false
		}
	}
	return kivy >= 0
}

func TestResolveUnavailable(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		req      string
		target   matrix.Target
		wantArch abi.Arch
		wantMsg  string
	}{
		{
			name:     "arch without recipe",
			req:      "audiostream",
			target:   matrix.Target{Arch: abi.X86, NDK: "25b", MinAPI: 21},
			wantArch: abi.X86,
			wantMsg:  "only builds for arm64-v8a",
		},
		{
			name:     "version outside recipe range",
			req:      "kivy==1.11.1",
			target:   matrix.Target{Arch: abi.ARM64, NDK: "25b", MinAPI: 21},
			wantArch: abi.ARM64,
			wantMsg:  "outside the recipe's supported range",
		},
		{
			name:     "ndk too old",
			req:      "numpy",
			target:   matrix.Target{Arch: abi.ARM64, NDK: "23c", MinAPI: 21},
			wantArch: abi.ARM64,
			wantMsg:  "NDK 25b or newer",
		},
		{
			name:     "minapi too low",
			req:      "ffpyplayer",
			target:   matrix.Target{Arch: abi.ARMv7, NDK: "25b", MinAPI: 21},
			wantArch: abi.ARMv7,
			wantMsg:  "minimum API 24",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			r := newTestResolver(t)
			report, err := r.Resolve(t.Context(), reqs(t, tt.req), []matrix.Target{tt.target})

			var rerr *ResolutionError
			if !errors.As(err, &rerr) {
				t.Fatalf("Resolve() error = %v, want *ResolutionError", err)
			}
			if !errors.Is(err, ErrResolution) {
				t.Error("errors.Is(err, ErrResolution) = false")
			}
			if len(rerr.Failures) != 1 {
				t.Fatalf("Failures = %v, want exactly one", rerr.Failures)
			}
			f := rerr.Failures[0]
			if f.Arch != tt.wantArch || !strings.Contains(f.Reason, tt.wantMsg) {
				t.Errorf("failure = %+v, want arch %s reason containing %q", f, tt.wantArch, tt.wantMsg)
			}
			if report == nil || report.Entries[0].Status() != StatusUnavailable {
				t.Errorf("report = %+v, want a complete report with the unavailable entry", report)
			}
		})
	}
}

func TestResolvePrebuiltWheelWins(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	dir := filepath.Join(root, "x86", "cache")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	wheel := filepath.Join(dir, "audiostream-0.3-cp311-cp311-android_21_x86.whl")
	if err := os.WriteFile(wheel, []byte("wheel"), 0o644); err != nil {
		t.Fatal(err)
	}

	wheels, err := ScanWheels(root, []abi.Arch{abi.X86, abi.ARM64})
	if err != nil {
		t.Fatalf("ScanWheels() unexpected error: %v", err)
	}

	r := newTestResolver(t)
	r.Wheels = wheels
	report, err := r.Resolve(t.Context(), reqs(t, "audiostream"), targets(abi.X86))
	if err != nil {
		t.Fatalf("Resolve() unexpected error: %v", err)
	}
	st, _ := report.Entries[0].For(abi.X86)
	if st.Status != StatusResolved || st.Source != SourcePrebuilt || st.Wheel != wheel {
		t.Errorf("x86 status = %+v, want resolved from %s", st, wheel)
	}
	if got := report.Wheels(abi.X86); !slices.Equal(got, []string{wheel}) {
		t.Errorf("Wheels(x86) = %v", got)
	}
}

func TestResolveVCS(t *testing.T) {
	t.Parallel()

	t.Run("unchecked locator resolves", func(t *testing.T) {
		t.Parallel()

		r := newTestResolver(t)
		report, err := r.Resolve(t.Context(), reqs(t, "git+https://github.com/cuthbertlab/music21@v8.1.0#egg=music21"), targets(abi.ARM64))
		if err != nil {
			t.Fatalf("Resolve() unexpected error: %v", err)
		}
		if st := report.Entries[0].Archs[0]; st.Status != StatusResolved || st.Source != SourceVCS {
			t.Errorf("status = %+v, want resolved/vcs", st)
		}
	})

	t.Run("missing ref is unavailable", func(t *testing.T) {
		t.Parallel()

		refs := &fakeRefs{refs: []string{"master", "v8.0.0"}}
		r := newTestResolver(t)
		r.Refs = refs
		_, err := r.Resolve(t.Context(), reqs(t, "git+https://github.com/cuthbertlab/music21@v8.1.0#egg=music21"), targets(abi.ARM64, abi.ARMv7))

		var rerr *ResolutionError
		if !errors.As(err, &rerr) {
			t.Fatalf("Resolve() error = %v, want *ResolutionError", err)
		}
		if len(rerr.Failures) != 2 {
			t.Errorf("Failures = %v, want one per arch", rerr.Failures)
		}
		if refs.calls != 1 {
			t.Errorf("ListRefs called %d times, want 1", refs.calls)
		}
	})

	t.Run("commit refs skip the lookup", func(t *testing.T) {
		t.Parallel()

		refs := &fakeRefs{}
		r := newTestResolver(t)
		r.Refs = refs
		if _, err := r.Resolve(t.Context(), reqs(t, "git+https://github.com/kivy/pyjnius@3f2a9c1#egg=pyjnius"), targets(abi.ARM64)); err != nil {
			t.Fatalf("Resolve() unexpected error: %v", err)
		}
		if refs.calls != 0 {
			t.Errorf("ListRefs called %d times for a commit ref", refs.calls)
		}
	})
}

func TestResolveConflict(t *testing.T) {
	t.Parallel()

	r := newTestResolver(t)
	_, err := r.Resolve(t.Context(), reqs(t, "kivy==2.2.0", "kivy==2.3.0"), targets(abi.ARM64))
	if !errors.Is(err, requirement.ErrConflict) {
		t.Errorf("Resolve() error = %v, want requirement.ErrConflict", err)
	}
}

func TestResolveCycle(t *testing.T) {
	t.Parallel()

	c, err := ParseCatalog([]byte(`
recipes:
  - {name: a, native: true, depends: [b]}
  - {name: b, native: true, depends: [a]}
`), "cycle")
	if err != nil {
		t.Fatal(err)
	}
	_, err = New(c, nil).Resolve(t.Context(), reqs(t, "a"), targets(abi.ARM64))
	var cycle *CycleError
	if !errors.As(err, &cycle) {
		t.Fatalf("Resolve() error = %v, want *CycleError", err)
	}
	if !errors.Is(err, ErrResolution) {
		t.Error("cycle error does not wrap ErrResolution")
	}
}

func TestResolveCancelled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(t.Context())
	cancel()
	if _, err := newTestResolver(t).Resolve(ctx, reqs(t, "kivy"), targets(abi.ARM64)); !errors.Is(err, context.Canceled) {
		t.Errorf("Resolve() error = %v, want context.Canceled", err)
	}
}

func TestBuiltinCatalog(t *testing.T) {
	t.Parallel()

	c := BuiltinCatalog()
	for _, name := range []string{"python3", "kivy", "sdl2", "pyjnius", "numpy"} {
		r, ok := c.Lookup(name)
		if !ok || !r.Native {
			t.Errorf("builtin catalog: %s = (%+v, %v), want a native recipe", name, r, ok)
		}
	}
}

func TestRecipeSupportsVersion(t *testing.T) {
	t.Parallel()

	r := Recipe{Versions: []string{">=2.1.0,<3", "1.11.1"}}
	tests := map[string]bool{
		"":       true,
		"2.1.0":  true,
		"2.3":    true,
		"3.0.0":  false,
		"2.0.0":  false,
		"1.11.1": true,
		"2.2.0b": false,
	}
	for version, want := range tests {
		if got := r.SupportsVersion(version); got != want {
			t.Errorf("SupportsVersion(%q) = %v, want %v", version, got, want)
		}
	}
}

func TestCompareNDK(t *testing.T) {
	t.Parallel()

	tests := []struct {
		a, b string
		want int // sign
	}{
		{"25b", "25b", 0},
		{"25", "25b", -1},
		{"r26", "25c", 1},
		{"23c", "25b", -1},
	}
	for _, tt := range tests {
		got := compareNDK(tt.a, tt.b)
		if sign(got) != tt.want {
			t.Errorf("compareNDK(%q, %q) = %d, want sign %d", tt.a, tt.b, got, tt.want)
		}
	}
}

func TestParseWheelName(t *testing.T) {
	t.Parallel()

	tests := []struct {
		file, name, version string
		ok                  bool
	}{
		{"numpy-1.26.4-cp311-cp311-android_21_arm64_v8a.whl", "numpy", "1.26.4", true},
		{"pkg-1.0-1-py3-none-any.whl", "pkg", "1.0", true},
		{"not-a-wheel.tar.gz", "", "", false},
		{"broken.whl", "", "", false},
	}
	for _, tt := range tests {
		name, version, ok := ParseWheelName(tt.file)
		if name != tt.name || version != tt.version || ok != tt.ok {
			t.Errorf("ParseWheelName(%q) = (%q, %q, %v), want (%q, %q, %v)", tt.file, name, version, ok, tt.name, tt.version, tt.ok)
		}
	}
}

func sign(n int) int {
	switch {
	case n < 0:
		return -1
	case n > 0:
		return 1
	default:
		return 0
	}
}
