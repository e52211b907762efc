// SPDX-License-Identifier: MPL-2.0

package testutil

import (
	"path/filepath"
	"testing"
)

// Project is a throwaway application tree:
//
//	<Dir>/buildozer.spec
//	<Dir>/main.py
//	<Dir>/libs/<arch>/<lib>
//	<Dir>/sdk, <Dir>/ndk
type Project struct {
	Dir string
	Env map[string]string
}

// NewProject writes manifest and a main.py into a temporary directory and
// creates the SDK and NDK roots that Env points ANDROIDSDK and ANDROIDNDK at.
func NewProject(t testing.TB, manifest string) *Project {
	t.Helper()
	dir := t.TempDir()
	p := &Project{
		Dir: dir,
		Env: map[string]string{
			"ANDROIDSDK": filepath.Join(dir, "sdk"),
			"ANDROIDNDK": filepath.Join(dir, "ndk"),
		},
	}
	MustMkdirAll(t, p.Env["ANDROIDSDK"], 0o755)
	MustMkdirAll(t, p.Env["ANDROIDNDK"], 0o755)
	MustWriteFile(t, p.Manifest(), manifest)
	MustWriteFile(t, filepath.Join(dir, "main.py"), "from kivy.app import App\n")
	return p
}

// Manifest returns the path of buildozer.spec.
func (p *Project) Manifest() string {
	return filepath.Join(p.Dir, "buildozer.spec")
}

// Out returns the default output directory.
func (p *Project) Out() string {
	return filepath.Join(p.Dir, "bin")
}

// Cache returns a cache directory inside the project.
func (p *Project) Cache() string {
	return filepath.Join(p.Dir, ".cache")
}

// Lib writes a prebuilt native library for arch.
func (p *Project) Lib(t testing.TB, arch, name string) {
	t.Helper()
	MustWriteFile(t, filepath.Join(p.Dir, "libs", arch, name), "ELF "+arch+" "+name)
}

// File writes a file relative to the project directory.
func (p *Project) File(t testing.TB, rel, content string) {
	t.Helper()
	MustWriteFile(t, filepath.Join(p.Dir, filepath.FromSlash(rel)), content)
}

// Lookup resolves variables from Env only, ignoring the process environment.
func (p *Project) Lookup(name string) (string, bool) {
	v, ok := p.Env[name]
	return v, ok
}
