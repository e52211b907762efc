// SPDX-License-Identifier: MPL-2.0

package bundle

import (
	"errors"
	"os"
	"path/filepath"
	"slices"
	"testing"
)

func writeTree(t *testing.T, root string, files ...string) {
	t.Helper()

	for _, f := range files {
		p := filepath.Join(root, filepath.FromSlash(f))
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(p, []byte(f), 0o644); err != nil {
			t.Fatal(err)
		}
	}
}

func TestSelectSource(t *testing.T) {
	t.Parallel()

	src := t.TempDir()
	writeTree(t, src,
		"main.py",
		"app.kv",
		"README.md",
		"assets/icon.png",
		"assets/sounds/beep.wav",
		"tests/test_app.py",
		"music21/__init__.py",
		"music21/__pycache__/x.pyc",
		".git/HEAD",
		"bin/old.apk",
	)

	spec := SourceSpec{
		Dir:             src,
		IncludeExts:     []string{"py", "png", "kv"},
		IncludePatterns: []string{"assets/sounds/*.wav"},
		ExcludeDirs:     []string{"tests"},
		Skip:            []string{filepath.Join(src, "bin")},
	}

	got, err := SelectSource(spec)
	if err != nil {
		t.Fatalf("SelectSource() unexpected error: %v", err)
	}
	want := []string{"app.kv", "assets/icon.png", "assets/sounds/beep.wav", "main.py", "music21/__init__.py"}
	if !slices.Equal(got, want) {
		t.Errorf("SelectSource() = %v, want %v", got, want)
	}
}

func TestSelectSourceExclusions(t *testing.T) {
	t.Parallel()

	src := t.TempDir()
	writeTree(t, src, "main.py", "debug_tools.py", "data/corpus.xml", "notes.txt")

	spec := SourceSpec{
		Dir:             src,
		ExcludeExts:     []string{"txt"},
		ExcludePatterns: []string{"debug_*.py"},
	}
	got, err := SelectSource(spec)
	if err != nil {
		t.Fatal(err)
	}
	if want := []string{"data/corpus.xml", "main.py"}; !slices.Equal(got, want) {
		t.Errorf("SelectSource() = %v, want %v", got, want)
	}
}

func TestStageSource(t *testing.T) {
	t.Parallel()

	src := t.TempDir()
	writeTree(t, src, "main.py", "ui/screen.kv")
	dest := filepath.Join(t.TempDir(), "app")
	writeTree(t, dest, "stale.py")

	files, err := StageSource(t.Context(), SourceSpec{Dir: src, IncludeExts: []string{"py", "kv"}}, dest)
	if err != nil {
		t.Fatalf("StageSource() unexpected error: %v", err)
	}
	if want := []string{"main.py", "ui/screen.kv"}; !slices.Equal(files, want) {
		t.Errorf("StageSource() = %v, want %v", files, want)
	}
	if data, err := os.ReadFile(filepath.Join(dest, "ui", "screen.kv")); err != nil || string(data) != "ui/screen.kv" {
		t.Errorf("staged ui/screen.kv = (%q, %v)", data, err)
	}
	if _, err := os.Stat(filepath.Join(dest, "stale.py")); !errors.Is(err, os.ErrNotExist) {
		t.Error("StageSource() kept a stale file")
	}
}

func TestStageSourceRequiresEntryPoint(t *testing.T) {
	t.Parallel()

	src := t.TempDir()
	writeTree(t, src, "app.py")

	_, err := StageSource(t.Context(), SourceSpec{Dir: src}, filepath.Join(t.TempDir(), "app"))
	var aerr *AssetError
	if !errors.As(err, &aerr) {
		t.Fatalf("StageSource() error = %v, want *AssetError", err)
	}
	if aerr.Arch != "" || !slices.Equal(aerr.Missing, []string{EntryPoint}) {
		t.Errorf("AssetError = %+v, want missing %s", aerr, EntryPoint)
	}
}
