// SPDX-License-Identifier: MPL-2.0

// Package cache stores intermediate toolchain state and the record of the
// last successful build per {manifest hash, architecture}.
//
// Layout:
//
//	<root>/
//	  <hash[:2]>/
//	    <hash>/
//	      <arch>/
//	        state/       toolchain storage directory
//	        entry.yaml   last successful build
package cache

import (
	"cmp"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"gopkg.in/yaml.v3"

	"github.com/droidpack/droidpack/internal/digest"
	"github.com/droidpack/droidpack/pkg/abi"
)

const (
	entryFile = "entry.yaml"
	stateDir  = "state"
)

// ErrInvalidKey is returned for keys without a manifest hash or with an
// unknown architecture.
var ErrInvalidKey = errors.New("invalid cache key")

type (
	// Key identifies one cache slot.
	Key struct {
		Manifest string   `yaml:"manifest"`
		Arch     abi.Arch `yaml:"arch"`
	}

	// Entry records a successful build of one slot.
	Entry struct {
		Key `yaml:",inline"`
		// Inputs digests everything besides the manifest that shaped the
		// build: resolved requirements, staged libraries and sources.
		Inputs string `yaml:"inputs"`
		// Artifact is the path of the produced package.
		Artifact       string    `yaml:"artifact"`
		ArtifactDigest string    `yaml:"artifact_digest"`
		Size           int64     `yaml:"size"`
		Recorded       time.Time `yaml:"recorded"`
	}

	// Store is a cache rooted at a directory. The zero value is not usable.
	Store struct {
		root string
	}
)

// New returns a Store rooted at root. The directory is created lazily.
func New(root string) *Store {
	return &Store{root: root}
}

// Root returns the cache root directory.
func (s *Store) Root() string { return s.root }

// Validate reports whether k can address a slot.
func (k Key) Validate() error {
	if len(k.Manifest) < 2 || filepath.Base(k.Manifest) != k.Manifest {
		return fmt.Errorf("%w: manifest hash %q", ErrInvalidKey, k.Manifest)
	}
	if !k.Arch.Valid() {
		return fmt.Errorf("%w: architecture %q", ErrInvalidKey, k.Arch)
	}
	return nil
}

// Dir returns the slot directory of k.
func (s *Store) Dir(k Key) string {
	return filepath.Join(s.root, k.Manifest[:2], k.Manifest, string(k.Arch))
}

// StateDir creates and returns the toolchain state directory of k.
func (s *Store) StateDir(k Key) (string, error) {
	if err := k.Validate(); err != nil {
		return "", err
	}
	dir := filepath.Join(s.Dir(k), stateDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create cache state dir: %w", err)
	}
	return dir, nil
}

// Lookup returns the recorded entry of k, or nil when there is none.
func (s *Store) Lookup(k Key) (*Entry, error) {
	if err := k.Validate(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(filepath.Join(s.Dir(k), entryFile))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read cache entry: %w", err)
	}
	var e Entry
	if err := yaml.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("parse cache entry %s: %w", filepath.Join(s.Dir(k), entryFile), err)
	}
	return &e, nil
}

// Hit returns the entry of k when it was recorded for the same inputs and
// its artifact still exists with the recorded digest.
func (s *Store) Hit(k Key, inputs string) (*Entry, bool) {
	e, err := s.Lookup(k)
	if err != nil || e == nil || e.Key != k || e.Inputs != inputs {
		return nil, false
	}
	sum, _, err := digest.File(e.Artifact)
	if err != nil || sum != e.ArtifactDigest {
		return nil, false
	}
	return e, true
}

// Record stores e atomically, replacing any previous entry of its slot.
func (s *Store) Record(e *Entry) error {
	if err := e.Key.Validate(); err != nil {
		return err
	}
	dir := s.Dir(e.Key)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create cache slot: %w", err)
	}
	if e.Recorded.IsZero() {
		e.Recorded = time.Now().UTC()
	}
	data, err := yaml.Marshal(e)
	if err != nil {
		return fmt.Errorf("encode cache entry: %w", err)
	}

	tmp, err := os.CreateTemp(dir, entryFile+".*")
	if err != nil {
		return fmt.Errorf("write cache entry: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write cache entry: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("write cache entry: %w", err)
	}
	if err := os.Rename(tmp.Name(), filepath.Join(dir, entryFile)); err != nil {
		return fmt.Errorf("commit cache entry: %w", err)
	}
	return nil
}

// Invalidate discards the state and entry of k.
func (s *Store) Invalidate(k Key) error {
	if err := k.Validate(); err != nil {
		return err
	}
	if err := os.RemoveAll(s.Dir(k)); err != nil {
		return fmt.Errorf("invalidate cache slot %s/%s: %w", k.Manifest, k.Arch, err)
	}
	// Drop the now empty manifest and prefix directories; failures mean
	// they still hold other slots.
	_ = os.Remove(filepath.Dir(s.Dir(k)))
	_ = os.Remove(filepath.Dir(filepath.Dir(s.Dir(k))))
	return nil
}

// Purge removes the whole cache.
func (s *Store) Purge() error {
	if err := os.RemoveAll(s.root); err != nil {
		return fmt.Errorf("purge cache: %w", err)
	}
	return nil
}

// Entries lists every recorded entry sorted by manifest hash and architecture.
func (s *Store) Entries() ([]Entry, error) {
	matches, err := doublestar.Glob(os.DirFS(s.root), "*/*/*/"+entryFile)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("list cache entries: %w", err)
	}

	entries := make([]Entry, 0, len(matches))
	for _, m := range matches {
		slot := filepath.Dir(filepath.FromSlash(m))
		k := Key{Manifest: filepath.Base(filepath.Dir(slot)), Arch: abi.Arch(filepath.Base(slot))}
		e, err := s.Lookup(k)
		if err != nil || e == nil {
			continue
		}
		entries = append(entries, *e)
	}
	slices.SortFunc(entries, func(a, b Entry) int {
		return cmp.Or(cmp.Compare(a.Manifest, b.Manifest), cmp.Compare(a.Arch, b.Arch))
	})
	return entries, nil
}

// Size returns the total size in bytes of the files under the cache root.
func (s *Store) Size() (int64, error) {
	var total int64
	err := filepath.WalkDir(s.root, func(_ string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.Type().IsRegular() {
			info, err := d.Info()
			if err != nil {
				return err
			}
			total += info.Size()
		}
		return nil
	})
	if errors.Is(err, fs.ErrNotExist) {
		return 0, nil
	}
	return total, err
}
