// SPDX-License-Identifier: MPL-2.0

package toolchain

import (
	"fmt"
	"strconv"
	"strings"

	"mvdan.cc/sh/v3/syntax"
)

// DefaultBinary is the python-for-android command line tool.
const DefaultBinary = "p4a"

// P4A builds stage commands for python-for-android.
type P4A struct {
	// Binary is the p4a executable; DefaultBinary when empty.
	Binary string
}

// Command implements CommandBuilder. The link stage is skipped when the
// architecture has no native libraries.
func (p P4A) Command(stage Stage, job *Job) (*Invocation, error) {
	inv := &Invocation{
		Arch:  job.Arch(),
		Stage: stage,
		Dir:   job.WorkDir,
	}
	switch stage {
	case StageCompile:
		inv.Argv = p.createArgs(job)
	case StageLink:
		if len(job.Libs) == 0 {
			return nil, nil
		}
		script, err := linkScript(job)
		if err != nil {
			return nil, err
		}
		inv.Script = script
	case StagePackage:
		inv.Argv = p.packageArgs(job)
	default:
		return nil, fmt.Errorf("unknown toolchain stage %q", stage)
	}
	return inv, nil
}

func (p P4A) binary() string {
	if p.Binary != "" {
		return p.Binary
	}
	return DefaultBinary
}

// common returns the options every p4a subcommand needs to locate the
// distribution of the job.
func (p P4A) common(job *Job) []string {
	t := job.Target
	args := []string{
		"--dist_name", job.DistName(),
		"--bootstrap", job.App.Bootstrap,
		"--arch", string(t.Arch),
		"--storage-dir", job.StateDir,
		"--android-api", strconv.Itoa(t.TargetAPI),
		"--ndk-api", strconv.Itoa(t.NDKAPI),
	}
	if job.SDKDir != "" {
		args = append(args, "--sdk-dir", job.SDKDir)
	}
	if job.NDKDir != "" {
		args = append(args, "--ndk-dir", job.NDKDir)
	}
	if len(job.Requirements) > 0 {
		args = append(args, "--requirements", strings.Join(job.Requirements, ","))
	}
	return args
}

func (p P4A) createArgs(job *Job) []string {
	args := append([]string{p.binary(), "create"}, p.common(job)...)
	for _, w := range job.Wheels {
		args = append(args, "--add-wheel", w)
	}
	return args
}

func (p P4A) packageArgs(job *Job) []string {
	app := job.App
	artifact := app.Artifact
	if artifact == "" {
		artifact = "apk"
	}
	args := append([]string{p.binary(), artifact}, p.common(job)...)
	args = append(args,
		"--private", job.AppDir,
		"--package", app.PackageID(),
		"--name", app.Title,
		"--version", app.Version,
		"--orientation", app.Orientation,
		"--min-sdk-version", strconv.Itoa(job.Target.MinAPI),
	)
	if app.Fullscreen {
		args = append(args, "--window")
	}
	for _, perm := range job.Target.Permissions {
		args = append(args, "--permission", perm)
	}
	return append(args, "--release")
}

// linkScript copies the staged libraries into the distribution and strips
// their debug symbols. LLVM_STRIP selects the strip tool.
func linkScript(job *Job) (string, error) {
	var sb strings.Builder
	sb.WriteString("set -e\n")
	fmt.Fprintf(&sb, "dest=\"$%s/dists/$%s/libs/$%s\"\n", EnvStateDir, EnvDistName, EnvArch)
	sb.WriteString("mkdir -p \"$dest\"\n")
	for _, lib := range job.Libs {
		q, err := syntax.Quote(lib, syntax.LangPOSIX)
		if err != nil {
			return "", fmt.Errorf("quote library name %q: %w", lib, err)
		}
		fmt.Fprintf(&sb, "cp \"$%s\"/%s \"$dest\"/%s\n", EnvLibsDir, q, q)
		fmt.Fprintf(&sb, "\"${LLVM_STRIP:-llvm-strip}\" --strip-unneeded \"$dest\"/%s\n", q)
	}
	return sb.String(), nil
}
