// SPDX-License-Identifier: MPL-2.0

package manifest

import (
	"errors"
	"os"
	"path/filepath"
	"slices"
	"testing"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()

	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile(%s): %v", path, err)
	}
	return path
}

func TestLoadMergesFragmentsAndAppliesDefaults(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	base := writeFile(t, dir, "buildozer.spec", validBase+"android.permissions = INTERNET\n")
	extra := writeFile(t, dir, "audio.spec", `[app]
requirements = audiostream
android.permissions = RECORD_AUDIO
android.archs = arm64-v8a
[app@release]
android.release_artifact = aab
`)

	loaded, err := Load([]string{base, extra}, LoadOptions{Profile: "release", LookupEnv: mapLookup(nil)})
	if err != nil {
		t.Fatalf("Load() unexpected error: %v", err)
	}
	m := loaded.Manifest

	if got := m.List(SectionApp, KeyRequirements); !slices.Equal(got, []string{"python3", "kivy==2.2.0", "music21", "audiostream"}) {
		t.Errorf("requirements = %v", got)
	}
	if got := m.List(SectionApp, KeyPermissions); !slices.Equal(got, []string{"INTERNET", "RECORD_AUDIO"}) {
		t.Errorf("permissions = %v", got)
	}
	// a user-supplied arch list replaces the default instead of extending it
	if got := m.List(SectionApp, KeyArchs); !slices.Equal(got, []string{"arm64-v8a"}) {
		t.Errorf("archs = %v, want [arm64-v8a]", got)
	}
	if got := m.String(SectionApp, KeyReleaseArtifact); got != "aab" {
		t.Errorf("release_artifact = %q, want aab", got)
	}
	if got := m.String(SectionApp, KeyNDK); got != DefaultNDK {
		t.Errorf("ndk = %q, want default %q", got, DefaultNDK)
	}
	if loaded.Dir != dir {
		t.Errorf("Dir = %q, want %q", loaded.Dir, dir)
	}
	if got := loaded.Path("libs"); got != filepath.Join(dir, "libs") {
		t.Errorf("Path(libs) = %q", got)
	}
}

func TestLoadTOMLFragment(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	base := writeFile(t, dir, "buildozer.spec", validBase)
	overlay := writeFile(t, dir, "overlay.toml", `
[app]
requirements = ["numpy"]
fullscreen = true
android.api = 34

["arch:arm64-v8a"]
native_libs = ["libfluidsynth.so"]
`)

	loaded, err := Load([]string{base, overlay}, LoadOptions{LookupEnv: mapLookup(nil)})
	if err != nil {
		t.Fatalf("Load() unexpected error: %v", err)
	}
	m := loaded.Manifest

	if got := m.List(SectionApp, KeyRequirements); !slices.Contains(got, "numpy") || got[0] != "python3" {
		t.Errorf("requirements = %v, want base items then numpy", got)
	}
	if got, ok := m.Int(SectionApp, KeyAPI); !ok || got != 34 {
		t.Errorf("android.api = (%d, %v), want 34", got, ok)
	}
	if got, ok := m.Bool(SectionApp, KeyFullscreen); !ok || !got {
		t.Errorf("fullscreen = (%v, %v), want true", got, ok)
	}
	if got := m.List("arch:arm64-v8a", ArchKeyNativeLibs); !slices.Equal(got, []string{"libfluidsynth.so"}) {
		t.Errorf("arch native_libs = %v", got)
	}
}

func TestLoadReturnsManifestWithValidationError(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := writeFile(t, dir, "buildozer.spec", validBase+"requirements = kivy==2.3.0\n")

	loaded, err := Load([]string{path}, LoadOptions{LookupEnv: mapLookup(nil)})
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("Load() error = %v, want ErrValidation", err)
	}
	if loaded == nil || loaded.Manifest == nil {
		t.Fatal("Load() returned no manifest alongside the validation error")
	}
}

func TestLoadErrors(t *testing.T) {
	t.Parallel()

	if _, err := Load(nil, LoadOptions{}); !errors.Is(err, ErrNoFragments) {
		t.Errorf("Load(nil) error = %v, want ErrNoFragments", err)
	}

	dir := t.TempDir()
	if _, err := Load([]string{filepath.Join(dir, "missing.spec")}, LoadOptions{}); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("Load(missing) error = %v, want os.ErrNotExist", err)
	}

	bad := writeFile(t, dir, "bad.toml", "[app\n")
	if _, err := Load([]string{bad}, LoadOptions{}); !errors.Is(err, ErrParse) {
		t.Errorf("Load(bad toml) error = %v, want ErrParse", err)
	}
}
