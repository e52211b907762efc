// SPDX-License-Identifier: MPL-2.0

package build

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/droidpack/droidpack/internal/bundle"
	"github.com/droidpack/droidpack/internal/cache"
	"github.com/droidpack/droidpack/internal/digest"
	"github.com/droidpack/droidpack/internal/matrix"
	"github.com/droidpack/droidpack/internal/resolve"
	"github.com/droidpack/droidpack/internal/toolchain"
	"github.com/droidpack/droidpack/pkg/abi"
	"github.com/droidpack/droidpack/pkg/manifest"
	"github.com/droidpack/droidpack/pkg/requirement"
)

const (
	// WorkDirName is the directory under the output directory holding the
	// staged sources, staged libraries and per-architecture work trees.
	WorkDirName = ".droidpack"

	// DefaultOutputDir is used when neither the options nor the manifest
	// name an output directory.
	DefaultOutputDir = "bin"
)

type (
	// Options configures a Driver.
	Options struct {
		// Manifests are the manifest fragments in merge order.
		Manifests []string
		Profile   string
		// Archs overrides android.archs when non-empty.
		Archs []string
		// OutputDir overrides [buildozer] bin_dir.
		OutputDir string
		CacheDir  string
		// Jobs bounds the architectures built concurrently; zero means one
		// per CPU.
		Jobs int
		// Timeout bounds each architecture's toolchain stages; zero means none.
		Timeout time.Duration
		// Clean discards cached toolchain state before building.
		Clean bool
		// VerifyVCS checks VCS requirement refs against their remotes.
		VerifyVCS bool
		// LookupEnv resolves manifest $VAR references and toolchain roots.
		LookupEnv manifest.LookupFunc
		Runner    toolchain.Runner
		// Binary is the p4a executable.
		Binary   string
		Logger   *log.Logger
		Observer Observer
		// Refs overrides the VCS ref lister used with VerifyVCS.
		Refs resolve.RefLister
	}

	// Driver sequences a build: load, resolve, stage, then emit every
	// architecture in parallel.
	Driver struct {
		opts        Options
		store       *cache.Store
		diagnostics []manifest.Diagnostic
	}
)

// New returns a Driver for opts.
func New(opts Options) *Driver {
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	if opts.Runner == nil {
		opts.Runner = &toolchain.NativeRunner{}
	}
	if opts.Jobs <= 0 {
		opts.Jobs = runtime.NumCPU()
	}
	if opts.LookupEnv == nil {
		opts.LookupEnv = os.LookupEnv
	}
	return &Driver{opts: opts, store: cache.New(opts.CacheDir)}
}

// Cache returns the toolchain state cache.
func (d *Driver) Cache() *cache.Store { return d.store }

// Diagnostics returns the manifest warnings of the last Prepare call.
func (d *Driver) Diagnostics() []manifest.Diagnostic { return d.diagnostics }

// Run prepares and executes a build. Errors before any toolchain invocation
// are returned as errors; architecture failures are part of the report.
func (d *Driver) Run(ctx context.Context) (*Report, error) {
	plan, err := d.Prepare(ctx)
	if err != nil {
		return nil, err
	}
	return d.Execute(ctx, plan)
}

// Prepare loads, merges and validates the manifest, expands the
// architecture matrix, locates the toolchain roots and resolves every
// requirement. Nothing is written to disk.
func (d *Driver) Prepare(ctx context.Context) (*Plan, error) {
	paths := d.opts.Manifests
	if len(paths) == 0 {
		paths = []string{manifest.DefaultFileName}
	}
	loaded, err := manifest.Load(paths, manifest.LoadOptions{Profile: d.opts.Profile, LookupEnv: d.opts.LookupEnv})
	if loaded != nil {
		d.diagnostics = loaded.Diagnostics
	}
	if err != nil {
		return nil, err
	}
	m := loaded.Manifest

	targets, err := matrix.Build(m, d.opts.Archs)
	if err != nil {
		return nil, err
	}
	if _, err := Commands(m, d.opts.Binary); err != nil {
		return nil, err
	}
	sdk, ndk, err := ToolchainRoots(loaded, d.opts.LookupEnv)
	if err != nil {
		return nil, err
	}

	reqs, err := requirement.ParseAll(m.List(manifest.SectionApp, manifest.KeyRequirements))
	if err != nil {
		return nil, err
	}
	resolver, err := d.resolver(loaded, targets)
	if err != nil {
		return nil, err
	}
	resolution, err := resolver.Resolve(ctx, reqs, targets)
	if err != nil {
		return nil, err
	}

	outDir, err := filepath.Abs(d.outputDir(loaded))
	if err != nil {
		return nil, fmt.Errorf("resolve output directory: %w", err)
	}
	libsDir := m.String(manifest.SectionApp, manifest.KeyLibsDir)

	plan := &Plan{
		ID:           uuid.NewString(),
		Manifest:     m.Hash(),
		Sources:      loaded.Sources,
		Profile:      d.opts.Profile,
		App:          AppFrom(m),
		Requirements: resolution.Specs(),
		Resolution:   resolution,
		Targets:      targets,
		OutputDir:    outDir,
		SourceDir:    bundle.SourceSpecFrom(m, loaded.Dir).Dir,
		LibsDir:      loaded.Path(libsDir),
		SDKDir:       sdk,
		NDKDir:       ndk,
		snapshot:     m,
		diagnostics:  loaded.Diagnostics,
	}
	if scripts := Scripts(m); len(scripts) > 0 {
		plan.Scripts = make(map[string]string, len(scripts))
		for stage, src := range scripts {
			plan.Scripts[string(stage)] = src
		}
	}
	d.opts.Logger.Debug("build planned", "id", plan.ID, "manifest", plan.Manifest, "archs", plan.Archs())
	return plan, nil
}

// Execute stages the application and the native libraries of every
// architecture, then emits the architectures that staged cleanly with at
// most Jobs running at once. A missing application entry point is returned
// as an error; a missing native library fails only its architecture.
func (d *Driver) Execute(ctx context.Context, plan *Plan) (*Report, error) {
	if len(plan.Targets) == 0 {
		return nil, ErrNoTargets
	}
	start := time.Now()
	report := &Report{ID: plan.ID, Manifest: plan.Manifest, OutputDir: plan.OutputDir, Started: start.UTC()}
	defer func() { report.Duration = time.Since(start) }()

	commands, err := Commands(plan.snapshot, d.opts.Binary)
	if err != nil {
		return nil, err
	}

	spec := bundle.SourceSpecFrom(plan.snapshot, filepath.Dir(plan.Sources[0]))
	spec.Skip = []string{plan.OutputDir, d.store.Root()}
	if err := bundle.CheckEntryPoint(spec); err != nil {
		return nil, err
	}

	work := filepath.Join(plan.OutputDir, WorkDirName)
	undo, err := makeWorkDir(plan.OutputDir, work)
	if err != nil {
		return nil, err
	}
	appDir := filepath.Join(work, "app")
	files, err := bundle.StageSource(ctx, spec, appDir)
	if err != nil {
		undo()
		return nil, err
	}
	sourceSum, err := treeDigest(appDir, files)
	if err != nil {
		undo()
		return nil, err
	}

	if d.opts.Clean {
		for _, arch := range plan.Archs() {
			if err := d.store.Invalidate(cache.Key{Manifest: plan.Manifest, Arch: arch}); err != nil {
				undo()
				return nil, err
			}
		}
		d.opts.Logger.Info("discarded cached toolchain state", "archs", plan.Archs())
	}

	bundler := &bundle.Bundler{LibsDir: plan.LibsDir, StageDir: filepath.Join(work, "stage"), Logger: d.opts.Logger}
	artifacts := make([]*Artifact, len(plan.Targets))
	staged := make([]*bundle.Staged, len(plan.Targets))

	// Every architecture is staged before any toolchain runs.
	for i, t := range plan.Targets {
		s, err := bundler.Stage(ctx, t)
		var assetErr *bundle.AssetError
		switch {
		case errors.As(err, &assetErr):
			artifacts[i] = d.rejected(t, assetErr)
		case err != nil && ctx.Err() != nil:
			d.cancelAll(plan, bundler, artifacts, ctx.Err())
			report.Artifacts = artifacts
			return report, nil
		case err != nil:
			d.removeStaged(plan, bundler)
			undo()
			return nil, err
		default:
			staged[i] = s
		}
	}

	emitter := &Emitter{
		Runner:   d.opts.Runner,
		Commands: commands,
		Cache:    d.store,
		Timeout:  d.opts.Timeout,
		Logger:   d.opts.Logger,
		Observer: d.opts.Observer,
	}

	var g errgroup.Group
	g.SetLimit(d.opts.Jobs)
	for i, t := range plan.Targets {
		if artifacts[i] != nil {
			continue
		}
		job := newJob(plan, t, staged[i], appDir, work)
		inputs := inputDigest(plan, job, staged[i], sourceSum)
		g.Go(func() error {
			artifacts[i] = emitter.Emit(ctx, plan, job, inputs)
			return nil
		})
	}
	_ = g.Wait()

	for _, a := range artifacts {
		if a.FailedStage == FailedCancelled || a.FailedStage == FailedTimeout {
			if err := bundler.Remove(a.Arch); err != nil {
				d.opts.Logger.Warn("could not remove staged libraries", "arch", a.Arch, "err", err)
			}
			_ = os.RemoveAll(filepath.Join(work, "work", string(a.Arch)))
		}
	}
	report.Artifacts = artifacts
	return report, nil
}

// makeWorkDir creates work under out and returns a function that removes
// what it created, for failures before any toolchain runs.
func makeWorkDir(out, work string) (func(), error) {
	_, statErr := os.Stat(out)
	outExisted := statErr == nil
	if err := os.MkdirAll(work, 0o755); err != nil {
		return nil, fmt.Errorf("create work directory: %w", err)
	}
	return func() {
		if outExisted {
			_ = os.RemoveAll(work)
			return
		}
		_ = os.RemoveAll(out)
	}, nil
}

func (d *Driver) resolver(loaded *manifest.Loaded, targets []matrix.Target) (*resolve.Resolver, error) {
	m := loaded.Manifest
	catalog := resolve.BuiltinCatalog()
	if path := m.String(manifest.SectionApp, manifest.KeyRecipeCatalog); path != "" {
		overlay, err := resolve.LoadCatalog(loaded.Path(path))
		if err != nil {
			return nil, err
		}
		catalog = catalog.Overlay(overlay)
	}

	archs := make([]abi.Arch, len(targets))
	for i, t := range targets {
		archs[i] = t.Arch
	}
	wheels, err := resolve.ScanWheels(loaded.Path(m.String(manifest.SectionApp, manifest.KeyWheelsDir)), archs)
	if err != nil {
		return nil, err
	}

	r := resolve.New(catalog, wheels)
	r.Logger = d.opts.Logger
	if d.opts.VerifyVCS {
		r.Refs = d.opts.Refs
		if r.Refs == nil {
			r.Refs = resolve.GitRefLister{}
		}
	}
	return r, nil
}

func (d *Driver) outputDir(loaded *manifest.Loaded) string {
	return OutputDir(loaded, d.opts.OutputDir)
}

// OutputDir returns override when set, else [buildozer] bin_dir, else
// ./bin next to the first manifest.
func OutputDir(loaded *manifest.Loaded, override string) string {
	if override != "" {
		return override
	}
	if dir := loaded.Manifest.String(manifest.SectionBuildozer, manifest.KeyBinDir); dir != "" {
		return loaded.Path(dir)
	}
	return loaded.Path(DefaultOutputDir)
}

// rejected records an architecture that failed pre-flight staging.
func (d *Driver) rejected(t matrix.Target, err error) *Artifact {
	newPipeline(t.Arch, d.opts.Observer).fail(FailedBundle)
	d.opts.Logger.Error("architecture rejected before build", "arch", t.Arch, "err", err)
	a := &Artifact{Arch: t.Arch}
	a.failWith(FailedBundle, true, err)
	return a
}

// cancelAll marks every architecture without an outcome as cancelled and
// removes all staged libraries.
func (d *Driver) cancelAll(plan *Plan, bundler *bundle.Bundler, artifacts []*Artifact, cause error) {
	for i, t := range plan.Targets {
		if artifacts[i] != nil {
			continue
		}
		newPipeline(t.Arch, d.opts.Observer).fail(FailedCancelled)
		a := &Artifact{Arch: t.Arch}
		a.failWith(FailedCancelled, false, &CancellationError{Arch: t.Arch, Cause: cause})
		artifacts[i] = a
	}
	d.removeStaged(plan, bundler)
}

func (d *Driver) removeStaged(plan *Plan, bundler *bundle.Bundler) {
	for _, arch := range plan.Archs() {
		if err := bundler.Remove(arch); err != nil {
			d.opts.Logger.Warn("could not remove staged libraries", "arch", arch, "err", err)
		}
	}
}

func newJob(plan *Plan, t matrix.Target, staged *bundle.Staged, appDir, work string) *toolchain.Job {
	workDir := filepath.Join(work, "work", string(t.Arch))
	libs := make([]string, len(staged.Libs))
	for i, lib := range staged.Libs {
		libs[i] = lib.Name
	}
	libsDir := ""
	if len(libs) > 0 {
		libsDir = staged.LibDir
	}
	return &toolchain.Job{
		Target:       t,
		App:          plan.App,
		Requirements: plan.Requirements,
		Wheels:       plan.Resolution.Wheels(t.Arch),
		AppDir:       appDir,
		WorkDir:      workDir,
		LibsDir:      libsDir,
		Libs:         libs,
		PackagePath:  filepath.Join(workDir, plan.ArtifactName(t.Arch)),
		SDKDir:       plan.SDKDir,
		NDKDir:       plan.NDKDir,
	}
}

// inputDigest covers every input of an architecture build besides the
// manifest itself.
func inputDigest(plan *Plan, job *toolchain.Job, staged *bundle.Staged, sourceSum string) string {
	parts := []string{"sources", sourceSum, "libs", staged.Digest(), "sdk", plan.SDKDir, "ndk", plan.NDKDir}
	parts = append(parts, "requirements")
	parts = append(parts, plan.Requirements...)
	parts = append(parts, "wheels")
	for _, w := range job.Wheels {
		sum, _, err := digest.File(w)
		if err != nil {
			sum = "missing"
		}
		parts = append(parts, filepath.Base(w), sum)
	}
	return digest.Strings(parts...)
}

// treeDigest summarises the content of the files under dir.
func treeDigest(dir string, files []string) (string, error) {
	parts := make([]string, 0, 2*len(files))
	for _, rel := range files {
		sum, _, err := digest.File(filepath.Join(dir, filepath.FromSlash(rel)))
		if err != nil {
			return "", fmt.Errorf("digest staged source %s: %w", rel, err)
		}
		parts = append(parts, rel, sum)
	}
	return digest.Strings(parts...), nil
}
