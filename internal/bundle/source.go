// SPDX-License-Identifier: MPL-2.0

package bundle

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/droidpack/droidpack/internal/digest"
	"github.com/droidpack/droidpack/pkg/manifest"
)

// EntryPoint is the file every packaged application must provide.
const EntryPoint = "main.py"

// alwaysSkipped are directories never copied into the application tree.
var alwaysSkipped = []string{".git", ".hg", ".svn", ".buildozer", ".droidpack", "__pycache__"}

// SourceSpec selects the application files to package.
type SourceSpec struct {
	Dir             string
	IncludeExts     []string
	IncludePatterns []string
	ExcludeExts     []string
	ExcludeDirs     []string
	ExcludePatterns []string
	// Skip lists absolute directories (output and cache trees) to leave out.
	Skip []string
}

// SourceSpecFrom reads the source.* keys of m. Relative paths resolve against baseDir.
func SourceSpecFrom(m *manifest.Manifest, baseDir string) SourceSpec {
	dir := m.String(manifest.SectionApp, manifest.KeySourceDir)
	if dir == "" {
		dir = manifest.DefaultSourceDir
	}
	if !filepath.IsAbs(dir) {
		dir = filepath.Join(baseDir, dir)
	}
	return SourceSpec{
		Dir:             dir,
		IncludeExts:     m.List(manifest.SectionApp, manifest.KeyIncludeExts),
		IncludePatterns: m.List(manifest.SectionApp, manifest.KeyIncludePatterns),
		ExcludeExts:     m.List(manifest.SectionApp, manifest.KeyExcludeExts),
		ExcludeDirs:     m.List(manifest.SectionApp, manifest.KeyExcludeDirs),
		ExcludePatterns: m.List(manifest.SectionApp, manifest.KeyExcludePatterns),
	}
}

// CheckEntryPoint returns an *AssetError when spec.Dir has no entry point.
func CheckEntryPoint(spec SourceSpec) error {
	if _, err := os.Stat(filepath.Join(spec.Dir, EntryPoint)); err != nil {
		return &AssetError{Dir: spec.Dir, Missing: []string{EntryPoint}}
	}
	return nil
}

// StageSource copies the selected application files into dest, replacing
// its previous content, and returns the copied paths relative to dest. It
// fails with an *AssetError when the entry point is missing.
func StageSource(ctx context.Context, spec SourceSpec, dest string) ([]string, error) {
	if err := CheckEntryPoint(spec); err != nil {
		return nil, err
	}

	files, err := SelectSource(spec)
	if err != nil {
		return nil, err
	}

	if err := os.RemoveAll(dest); err != nil {
		return nil, fmt.Errorf("clear application staging directory: %w", err)
	}
	for _, rel := range files {
		if err := ctx.Err(); err != nil {
			_ = os.RemoveAll(dest)
			return nil, err
		}
		src := filepath.Join(spec.Dir, filepath.FromSlash(rel))
		dst := filepath.Join(dest, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
			return nil, fmt.Errorf("create %s: %w", filepath.Dir(dst), err)
		}
		info, err := os.Stat(src)
		if err != nil {
			return nil, err
		}
		if _, _, err := digest.CopyFile(dst, src, info.Mode().Perm()); err != nil {
			return nil, err
		}
	}
	return files, nil
}

// SelectSource lists, in lexical order, the files under spec.Dir that the
// include and exclude rules select. Include patterns win over every
// exclusion; otherwise a file must have an included extension (any, when
// none are listed) and match no exclusion.
func SelectSource(spec SourceSpec) ([]string, error) {
	var files []string
	err := filepath.WalkDir(spec.Dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(spec.Dir, p)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)

		if d.IsDir() {
			if rel == "." {
				return nil
			}
			if slices.Contains(alwaysSkipped, d.Name()) || slices.Contains(spec.Skip, p) || excludedDir(rel, spec.ExcludeDirs) {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		if spec.selects(rel) {
			files = append(files, rel)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan application sources in %s: %w", spec.Dir, err)
	}
	slices.Sort(files)
	return files, nil
}

func (s SourceSpec) selects(rel string) bool {
	if matchAny(s.IncludePatterns, rel) {
		return true
	}
	ext := strings.TrimPrefix(filepath.Ext(rel), ".")
	if slices.Contains(s.ExcludeExts, ext) || matchAny(s.ExcludePatterns, rel) {
		return false
	}
	return len(s.IncludeExts) == 0 || slices.Contains(s.IncludeExts, ext)
}

func excludedDir(rel string, dirs []string) bool {
	for _, d := range dirs {
		d = strings.Trim(filepath.ToSlash(d), "/")
		if rel == d || strings.HasPrefix(rel, d+"/") {
			return true
		}
	}
	return false
}

func matchAny(patterns []string, rel string) bool {
	for _, p := range patterns {
		if ok, _ := doublestar.Match(p, rel); ok {
			return true
		}
	}
	return false
}
