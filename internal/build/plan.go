// SPDX-License-Identifier: MPL-2.0

package build

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/droidpack/droidpack/internal/matrix"
	"github.com/droidpack/droidpack/internal/resolve"
	"github.com/droidpack/droidpack/internal/toolchain"
	"github.com/droidpack/droidpack/pkg/abi"
	"github.com/droidpack/droidpack/pkg/manifest"
)

// SectionEnvironment labels validation errors about the host environment.
const SectionEnvironment = "environment"

var (
	sdkVars = []string{"ANDROIDSDK", "ANDROID_SDK_ROOT", "ANDROID_HOME"}
	ndkVars = []string{"ANDROIDNDK", "ANDROID_NDK_HOME", "ANDROID_NDK_ROOT"}
)

// Plan is the immutable description of one build invocation: the manifest
// snapshot, the resolved requirements and one target per architecture.
type Plan struct {
	ID string `yaml:"id"`
	// Manifest is the hash of the merged manifest.
	Manifest string   `yaml:"manifest"`
	Sources  []string `yaml:"sources"`
	// Profile is the manifest profile the plan was built with.
	Profile      string            `yaml:"profile,omitempty"`
	App          toolchain.App     `yaml:"app"`
	Requirements []string          `yaml:"requirements"`
	Resolution   *resolve.Report   `yaml:"resolution"`
	Targets      []matrix.Target   `yaml:"targets"`
	OutputDir    string            `yaml:"output_dir"`
	SourceDir    string            `yaml:"source_dir"`
	LibsDir      string            `yaml:"libs_dir"`
	SDKDir       string            `yaml:"sdk_dir"`
	NDKDir       string            `yaml:"ndk_dir"`
	Scripts      map[string]string `yaml:"scripts,omitempty"`

	snapshot    *manifest.Manifest
	diagnostics []manifest.Diagnostic
}

// Snapshot returns the merged manifest the plan was built from.
func (p *Plan) Snapshot() *manifest.Manifest { return p.snapshot }

// Diagnostics returns the warnings emitted while loading the manifest.
func (p *Plan) Diagnostics() []manifest.Diagnostic { return p.diagnostics }

// Archs returns the planned architectures in order.
func (p *Plan) Archs() []abi.Arch {
	out := make([]abi.Arch, len(p.Targets))
	for i, t := range p.Targets {
		out[i] = t.Arch
	}
	return out
}

// ArtifactName returns the package file name of arch.
func (p *Plan) ArtifactName(arch abi.Arch) string {
	return ArtifactName(p.App, arch)
}

// ArtifactPath returns where the package of arch is collected.
func (p *Plan) ArtifactPath(arch abi.Arch) string {
	return filepath.Join(p.OutputDir, p.ArtifactName(arch))
}

// LogPath returns the build log of arch.
func (p *Plan) LogPath(arch abi.Arch) string {
	return filepath.Join(p.OutputDir, baseName(p.App, arch)+".log")
}

// YAML encodes the plan.
func (p *Plan) YAML() ([]byte, error) {
	return yaml.Marshal(p)
}

// ArtifactName names the package of app for arch deterministically as
// <package.name>-<version>-<arch>.<apk|aab>.
func ArtifactName(app toolchain.App, arch abi.Arch) string {
	ext := app.Artifact
	if ext == "" {
		ext = manifest.DefaultReleaseArtifact
	}
	return baseName(app, arch) + "." + ext
}

func baseName(app toolchain.App, arch abi.Arch) string {
	return fmt.Sprintf("%s-%s-%s", app.Name, app.Version, arch)
}

// AppFrom reads the application metadata of m.
func AppFrom(m *manifest.Manifest) toolchain.App {
	fullscreen, _ := m.Bool(manifest.SectionApp, manifest.KeyFullscreen)
	return toolchain.App{
		Title:       m.String(manifest.SectionApp, manifest.KeyTitle),
		Name:        m.String(manifest.SectionApp, manifest.KeyPackageName),
		Domain:      m.String(manifest.SectionApp, manifest.KeyPackageDomain),
		Version:     m.String(manifest.SectionApp, manifest.KeyVersion),
		Orientation: m.String(manifest.SectionApp, manifest.KeyOrientation),
		Fullscreen:  fullscreen,
		Bootstrap:   m.String(manifest.SectionApp, manifest.KeyBootstrap),
		Artifact:    m.String(manifest.SectionApp, manifest.KeyReleaseArtifact),
	}
}

// Scripts returns the [toolchain] stage overrides of m.
func Scripts(m *manifest.Manifest) map[toolchain.Stage]string {
	s := m.Section(manifest.SectionToolchain)
	if s == nil || s.Len() == 0 {
		return nil
	}
	out := make(map[toolchain.Stage]string, s.Len())
	for _, key := range s.Keys() {
		out[toolchain.Stage(key)] = m.String(manifest.SectionToolchain, key)
	}
	return out
}

// Commands returns the stage command builder for m: p4a with the
// [toolchain] overrides applied. Invalid overrides are reported as a
// *manifest.ValidationError.
func Commands(m *manifest.Manifest, binary string) (toolchain.CommandBuilder, error) {
	base := toolchain.P4A{Binary: binary}
	scripts := Scripts(m)
	if len(scripts) == 0 {
		return base, nil
	}
	cmds, err := toolchain.NewScripted(base, scripts)
	if err != nil {
		verr := &manifest.ValidationError{}
		verr.Add(manifest.SectionToolchain, "", manifest.Origin{}, "%v", err)
		return nil, verr
	}
	return cmds, nil
}

// ToolchainRoots locates the Android SDK and NDK. Manifest paths win over
// the environment. A root that is unset or not a directory is a
// *manifest.ValidationError; nothing is ever downloaded.
func ToolchainRoots(l *manifest.Loaded, lookup manifest.LookupFunc) (sdk, ndk string, err error) {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	verr := &manifest.ValidationError{}
	sdk = root(l, manifest.KeySDKPath, sdkVars, "SDK", lookup, verr)
	ndk = root(l, manifest.KeyNDKPath, ndkVars, "NDK", lookup, verr)
	if err := verr.OrNil(); err != nil {
		return "", "", err
	}
	return sdk, ndk, nil
}

func root(l *manifest.Loaded, key string, vars []string, what string, lookup manifest.LookupFunc, verr *manifest.ValidationError) string {
	var dir, from string
	origin := manifest.Origin{}
	if v, ok := l.Manifest.Lookup(manifest.SectionApp, key); ok && v.Text != "" {
		dir, from, origin = l.Path(v.Text), key, v.Origin
	} else {
		for _, name := range vars {
			if v, ok := lookup(name); ok && v != "" {
				dir, from = v, "$"+name
				break
			}
		}
	}
	if dir == "" {
		verr.Add(SectionEnvironment, vars[0], origin,
			"Android %s location is not set; set %s in the manifest or one of %s", what, key, strings.Join(vars, ", "))
		return ""
	}
	info, err := os.Stat(dir)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		verr.Add(SectionEnvironment, from, origin, "Android %s directory %s does not exist", what, dir)
	case err != nil:
		verr.Add(SectionEnvironment, from, origin, "Android %s directory %s: %v", what, dir, err)
	case !info.IsDir():
		verr.Add(SectionEnvironment, from, origin, "Android %s location %s is not a directory", what, dir)
	}
	return dir
}
