// SPDX-License-Identifier: MPL-2.0

// Package bundle stages the prebuilt native libraries each architecture
// declares, and the application sources, into isolated per-build trees.
//
// Staging for one architecture either completes or leaves nothing behind:
// a missing library fails the architecture with an *AssetError before any
// toolchain invocation is made for it.
package bundle

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/charmbracelet/log"

	"github.com/droidpack/droidpack/internal/digest"
	"github.com/droidpack/droidpack/internal/matrix"
	"github.com/droidpack/droidpack/pkg/abi"
)

// ErrAsset is the sentinel error wrapped by AssetError.
var ErrAsset = errors.New("missing build asset")

type (
	// AssetError reports declared files that do not exist, or libraries
	// that would land on the same staged name. Arch is empty for
	// application assets shared by every architecture.
	AssetError struct {
		Arch       abi.Arch
		Dir        string
		Missing    []string
		Duplicates []string
	}

	// StagedLib is one library copied into the staging tree.
	StagedLib struct {
		Name   string `yaml:"name"`
		Path   string `yaml:"path"`
		Digest string `yaml:"digest"`
		Size   int64  `yaml:"size"`
	}

	// Staged is the staging tree of one architecture.
	Staged struct {
		Arch abi.Arch
		// Dir is the root of the architecture's staging tree.
		Dir string
		// LibDir holds the staged libraries, laid out as libs/<arch>/.
		LibDir string
		Libs   []StagedLib
	}

	// Bundler stages native libraries from an asset tree laid out as
	// <LibsDir>/<arch>/<lib>.
	Bundler struct {
		LibsDir  string
		StageDir string
		Logger   *log.Logger
	}
)

// Error implements the error interface.
func (e *AssetError) Error() string {
	if len(e.Duplicates) > 0 && len(e.Missing) == 0 {
		return fmt.Sprintf("native libraries for %s in %s share a file name: %s", e.Arch, e.Dir, strings.Join(e.Duplicates, ", "))
	}
	what := "missing native libraries for " + string(e.Arch)
	if e.Arch == "" {
		what = "missing application files"
	}
	return fmt.Sprintf("%s in %s: %s", what, e.Dir, strings.Join(e.Missing, ", "))
}

// Unwrap returns ErrAsset for errors.Is() compatibility.
func (e *AssetError) Unwrap() error { return ErrAsset }

// Stage names the pipeline stage that produced the error.
func (e *AssetError) Stage() string { return "bundle" }

// Stage copies every native library target declares into a fresh staging
// tree for its architecture. Entries may be file names or doublestar
// patterns relative to <LibsDir>/<arch>; a pattern must match at least one
// file. Any previous tree for the architecture is replaced.
func (b *Bundler) Stage(ctx context.Context, target matrix.Target) (*Staged, error) {
	srcDir := filepath.Join(b.LibsDir, string(target.Arch))
	sources, err := b.resolve(srcDir, target)
	if err != nil {
		return nil, err
	}

	staged := &Staged{
		Arch:   target.Arch,
		Dir:    b.dir(target.Arch),
		LibDir: filepath.Join(b.dir(target.Arch), "libs", string(target.Arch)),
	}
	if err := b.Remove(target.Arch); err != nil {
		return nil, err
	}
	if len(sources) == 0 {
		return staged, nil
	}
	if err := os.MkdirAll(staged.LibDir, 0o755); err != nil {
		return nil, fmt.Errorf("create staging directory: %w", err)
	}

	for _, src := range sources {
		if err := ctx.Err(); err != nil {
			_ = b.Remove(target.Arch)
			return nil, err
		}
		lib, err := copyLib(src, staged.LibDir)
		if err != nil {
			_ = b.Remove(target.Arch)
			return nil, err
		}
		staged.Libs = append(staged.Libs, lib)
		b.logger().Debug("staged native library", "arch", target.Arch, "lib", lib.Name, "size", lib.Size)
	}
	return staged, nil
}

// resolve maps the declared entries onto existing files, reporting every
// entry that matches nothing in one AssetError.
func (b *Bundler) resolve(srcDir string, target matrix.Target) ([]string, error) {
	var sources, missing []string
	fsys := os.DirFS(srcDir)

	for _, entry := range target.NativeLibs {
		pattern := path.Clean(filepath.ToSlash(entry))
		if !doublestar.ValidatePattern(pattern) {
			missing = append(missing, entry)
			continue
		}

		matches, err := doublestar.Glob(fsys, pattern, doublestar.WithFilesOnly())
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("match %q in %s: %w", entry, srcDir, err)
		}
		if len(matches) == 0 {
			missing = append(missing, entry)
			continue
		}
		slices.Sort(matches)
		for _, m := range matches {
			p := filepath.Join(srcDir, filepath.FromSlash(m))
			if !slices.Contains(sources, p) {
				sources = append(sources, p)
			}
		}
	}

	if len(missing) > 0 {
		return nil, &AssetError{Arch: target.Arch, Dir: srcDir, Missing: missing}
	}
	if dups := sameBase(srcDir, sources); len(dups) > 0 {
		return nil, &AssetError{Arch: target.Arch, Dir: srcDir, Duplicates: dups}
	}
	return sources, nil
}

// sameBase lists, relative to srcDir, the sources whose base name another
// source already uses. Libraries are staged flat, so they would collide.
func sameBase(srcDir string, sources []string) []string {
	first := make(map[string]string, len(sources))
	var dups []string
	for _, src := range sources {
		rel, _ := filepath.Rel(srcDir, src)
		base := filepath.Base(src)
		prev, seen := first[base]
		if !seen {
			first[base] = rel
			continue
		}
		if !slices.Contains(dups, prev) {
			dups = append(dups, prev)
		}
		dups = append(dups, rel)
	}
	return dups
}

// Remove deletes the staging tree of arch.
func (b *Bundler) Remove(arch abi.Arch) error {
	if err := os.RemoveAll(b.dir(arch)); err != nil {
		return fmt.Errorf("remove staging directory for %s: %w", arch, err)
	}
	return nil
}

func (b *Bundler) dir(arch abi.Arch) string {
	return filepath.Join(b.StageDir, string(arch))
}

func (b *Bundler) logger() *log.Logger {
	if b.Logger != nil {
		return b.Logger
	}
	return log.Default()
}

func copyLib(src, dstDir string) (StagedLib, error) {
	info, err := os.Stat(src)
	if err != nil {
		return StagedLib{}, fmt.Errorf("stat %s: %w", src, err)
	}
	dst := filepath.Join(dstDir, filepath.Base(src))
	sum, size, err := digest.CopyFile(dst, src, info.Mode().Perm()|0o200)
	if err != nil {
		return StagedLib{}, err
	}
	return StagedLib{Name: filepath.Base(src), Path: dst, Digest: sum, Size: size}, nil
}

// Digest summarises the staged libraries so that any change to their
// content changes the result.
func (s *Staged) Digest() string {
	parts := make([]string, 0, 2*len(s.Libs))
	for _, lib := range s.Libs {
		parts = append(parts, lib.Name, lib.Digest)
	}
	return digest.Strings(parts...)
}

// Paths returns the staged library paths.
func (s *Staged) Paths() []string {
	out := make([]string, len(s.Libs))
	for i, lib := range s.Libs {
		out[i] = lib.Path
	}
	return out
}
