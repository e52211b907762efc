// SPDX-License-Identifier: MPL-2.0

package build

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"github.com/droidpack/droidpack/internal/cache"
	"github.com/droidpack/droidpack/internal/digest"
	"github.com/droidpack/droidpack/internal/toolchain"
)

// packageExts are the file extensions a package stage may produce.
var packageExts = []string{".apk", ".aab"}

// Emitter runs the toolchain stages of one architecture and collects the
// package it produces.
type Emitter struct {
	Runner   toolchain.Runner
	Commands toolchain.CommandBuilder
	Cache    *cache.Store
	// Timeout bounds all stages of one architecture together; zero means none.
	Timeout  time.Duration
	Logger   *log.Logger
	Observer Observer
}

// Emit builds job and returns its artifact. Failures are recorded in the
// artifact; Emit itself never fails. inputs is the cache input digest of
// the job.
func (e *Emitter) Emit(ctx context.Context, plan *Plan, job *toolchain.Job, inputs string) *Artifact {
	arch := job.Arch()
	start := time.Now()
	art := &Artifact{Arch: arch, Log: plan.LogPath(arch)}
	p := newPipeline(arch, e.Observer)
	logger := e.logger().With("arch", arch)

	defer func() {
		art.Duration = time.Since(start)
	}()

	if err := ctx.Err(); err != nil {
		p.fail(FailedCancelled)
		art.failWith(FailedCancelled, false, &CancellationError{Arch: arch, Cause: err})
		return art
	}

	key := cache.Key{Manifest: plan.Manifest, Arch: arch}
	if entry, ok := e.Cache.Hit(key, inputs); ok && entry.Artifact == plan.ArtifactPath(arch) {
		logger.Info("reusing cached package", "path", entry.Artifact)
		_ = p.advance(StatePackaged)
		art.Status = StatusCached
		art.Path, art.Digest, art.Size = entry.Artifact, entry.ArtifactDigest, entry.Size
		return art
	}

	stateDir, err := e.Cache.StateDir(key)
	if err != nil {
		p.fail(string(toolchain.StageCompile))
		art.failWith(string(toolchain.StageCompile), false, err)
		return art
	}
	job.StateDir = stateDir

	if err := resetDir(job.WorkDir); err != nil {
		p.fail(string(toolchain.StageCompile))
		art.failWith(string(toolchain.StageCompile), false, err)
		return art
	}
	logFile, err := os.Create(art.Log)
	if err != nil {
		p.fail(string(toolchain.StageCompile))
		art.failWith(string(toolchain.StageCompile), false, fmt.Errorf("create build log: %w", err))
		return art
	}
	defer logFile.Close()

	runCtx := ctx
	if e.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, e.Timeout)
		defer cancel()
	}

	for _, stage := range toolchain.Stages() {
		if err := p.advance(stateOf(stage)); err != nil {
			art.failWith(string(stage), false, err)
			return art
		}
		timing, err := e.runStage(ctx, runCtx, stage, job, logFile)
		art.Stages = append(art.Stages, timing)
		if err != nil {
			label := failureLabel(stage, err)
			p.fail(label)
			art.failWith(label, false, err)
			logger.Error("stage failed", "stage", stage, "err", err)
			if label == FailedCancelled || label == FailedTimeout {
				_ = os.RemoveAll(job.WorkDir)
			}
			return art
		}
		logger.Debug("stage finished", "stage", stage, "duration", timing.Duration)
	}

	if err := e.collect(plan, job, art, inputs); err != nil {
		p.fail(string(toolchain.StagePackage))
		art.failWith(string(toolchain.StagePackage), false, err)
		logger.Error("collecting package failed", "err", err)
		return art
	}
	_ = p.advance(StatePackaged)
	_ = os.RemoveAll(job.WorkDir)
	logger.Info("packaged", "path", art.Path, "size", art.Size)
	return art
}

// runStage runs one stage and classifies its failure. buildCtx is the
// context of the whole build and runCtx carries the architecture timeout.
func (e *Emitter) runStage(buildCtx, runCtx context.Context, stage toolchain.Stage, job *toolchain.Job, logFile *os.File) (StageTiming, error) {
	start := time.Now()
	timing := StageTiming{Stage: string(stage)}

	inv, err := e.Commands.Command(stage, job)
	if err != nil {
		return timing, &toolchain.ToolchainError{Arch: job.Arch(), Phase: stage, ExitCode: -1, Log: logFile.Name(), Err: err}
	}
	if inv == nil {
		timing.Skipped = true
		fmt.Fprintf(logFile, "== %s skipped ==\n", stage)
		return timing, nil
	}

	inv.Arch, inv.Stage = job.Arch(), stage
	if inv.Dir == "" {
		inv.Dir = job.WorkDir
	}
	inv.Env = append(inv.Env, toolchain.Environment(job, stage)...)
	inv.Mounts = job.Mounts()
	inv.Stdout, inv.Stderr = logFile, logFile
	fmt.Fprintf(logFile, "== %s %s ==\n", stage, describe(inv))

	res := e.Runner.Run(runCtx, inv)
	timing.Duration = time.Since(start)

	switch {
	case !res.Failed():
		return timing, nil
	case buildCtx.Err() != nil:
		return timing, &CancellationError{Arch: job.Arch(), Cause: buildCtx.Err()}
	case errors.Is(runCtx.Err(), context.DeadlineExceeded):
		return timing, &toolchain.ToolchainError{Arch: job.Arch(), Phase: stage, ExitCode: -1, Timeout: true, Log: logFile.Name()}
	default:
		return timing, &toolchain.ToolchainError{Arch: job.Arch(), Phase: stage, ExitCode: res.ExitCode, Log: logFile.Name(), Err: res.Error}
	}
}

// collect moves the produced package to its deterministic name and
// records it in the cache.
func (e *Emitter) collect(plan *Plan, job *toolchain.Job, art *Artifact, inputs string) error {
	src, err := locatePackage(job)
	if err != nil {
		return &toolchain.ToolchainError{Arch: job.Arch(), Phase: toolchain.StagePackage, Log: art.Log, Err: err}
	}
	dst := plan.ArtifactPath(job.Arch())
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}
	sum, size, err := movePackage(src, dst)
	if err != nil {
		return err
	}

	art.Status = StatusPackaged
	art.Path, art.Digest, art.Size = dst, sum, size

	entry := &cache.Entry{
		Key:            cache.Key{Manifest: plan.Manifest, Arch: job.Arch()},
		Inputs:         inputs,
		Artifact:       dst,
		ArtifactDigest: sum,
		Size:           size,
	}
	if err := e.Cache.Record(entry); err != nil {
		e.logger().Warn("could not record build in cache", "arch", job.Arch(), "err", err)
	}
	return nil
}

func (e *Emitter) logger() *log.Logger {
	if e.Logger != nil {
		return e.Logger
	}
	return log.Default()
}

// locatePackage returns $DROIDPACK_PACKAGE_PATH when the toolchain wrote
// it, otherwise the newest package file under the work directory.
func locatePackage(job *toolchain.Job) (string, error) {
	if info, err := os.Stat(job.PackagePath); err == nil && info.Mode().IsRegular() {
		return job.PackagePath, nil
	}

	var newest string
	var newestTime time.Time
	err := filepath.WalkDir(job.WorkDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !isPackage(path) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		if newest == "" || info.ModTime().After(newestTime) {
			newest, newestTime = path, info.ModTime()
		}
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("search for package: %w", err)
	}
	if newest == "" {
		return "", fmt.Errorf("%w in %s", ErrNoPackage, job.WorkDir)
	}
	return newest, nil
}

func isPackage(path string) bool {
	return slices.Contains(packageExts, strings.ToLower(filepath.Ext(path)))
}

// movePackage renames src to dst, copying across file systems, and
// returns the digest and size of dst.
func movePackage(src, dst string) (string, int64, error) {
	if err := os.Rename(src, dst); err == nil {
		return digest.File(dst)
	}
	sum, size, err := digest.CopyFile(dst, src, 0o644)
	if err != nil {
		return "", 0, fmt.Errorf("collect package: %w", err)
	}
	_ = os.Remove(src)
	return sum, size, nil
}

// failureLabel returns the failed(stage) label of err.
func failureLabel(stage toolchain.Stage, err error) string {
	switch {
	case errors.Is(err, ErrCancelled):
		return FailedCancelled
	case errors.Is(err, toolchain.ErrTimeout):
		return FailedTimeout
	default:
		return string(stage)
	}
}

func describe(inv *toolchain.Invocation) string {
	if inv.Script != "" {
		return "script"
	}
	return strings.Join(inv.Argv, " ")
}

// resetDir replaces dir with an empty directory.
func resetDir(dir string) error {
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("clear %s: %w", dir, err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}
	return nil
}
