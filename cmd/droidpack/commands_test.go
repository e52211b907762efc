// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"gopkg.in/yaml.v3"

	"github.com/droidpack/droidpack/internal/build"
	"github.com/droidpack/droidpack/internal/config"
	"github.com/droidpack/droidpack/internal/testutil"
)

func TestValidateCommand(t *testing.T) {
	t.Parallel()

	p := testutil.NewProject(t, scoreReader+"requirements = music21==8.1.0\n")
	res := runCLI(t, p, testConfig(p), "validate")
	if res.exitCode() != 0 {
		t.Fatalf("exit code = %d\nstderr:\n%s", res.exitCode(), res.stderr)
	}
	for _, want := range []string{"Requirements", "music21==8.1.0", "arm64-v8a=", "Manifest is valid for 2 architecture(s)."} {
		if !strings.Contains(res.stdout, want) {
			t.Errorf("stdout lacks %q:\n%s", want, res.stdout)
		}
	}
	if !strings.Contains(res.stderr, "warning: ") {
		t.Errorf("the duplicate requirements key produced no diagnostic:\n%s", res.stderr)
	}
	if entries := testutil.ListDir(t, p.Dir); containsAll(entries, "bin") {
		t.Errorf("validate wrote the output directory: %v", entries)
	}
}

func TestValidateCommandRejectsConflictingPins(t *testing.T) {
	t.Parallel()

	p := testutil.NewProject(t, strings.Replace(scoreReader, "python3, kivy", "python3, kivy==2.2.0, kivy==2.3.0", 1))
	res := runCLI(t, p, testConfig(p), "validate")
	if got := res.exitCode(); got != build.ExitPreBuild {
		t.Fatalf("exit code = %d, want %d", got, build.ExitPreBuild)
	}
	if !strings.Contains(res.stderr, "failed to validate manifest") || !strings.Contains(res.stderr, "The manifest is invalid") {
		t.Errorf("stderr:\n%s", res.stderr)
	}
}

func TestPlanCommand(t *testing.T) {
	t.Parallel()

	p := testutil.NewProject(t, scoreReader+scripted)
	res := runCLI(t, p, testConfig(p), "plan", "--arch", "x86")
	if res.exitCode() != 0 {
		t.Fatalf("exit code = %d\nstderr:\n%s", res.exitCode(), res.stderr)
	}

	var plan struct {
		ID      string `yaml:"id"`
		Targets []struct {
			Arch string `yaml:"arch"`
		} `yaml:"targets"`
		Scripts   map[string]string `yaml:"scripts"`
		OutputDir string            `yaml:"output_dir"`
	}
	if err := yaml.Unmarshal([]byte(res.stdout), &plan); err != nil {
		t.Fatalf("plan is not YAML: %v\n%s", err, res.stdout)
	}
	if plan.ID == "" || len(plan.Targets) != 1 || plan.Targets[0].Arch != "x86" {
		t.Errorf("plan = %+v", plan)
	}
	if plan.Scripts["compile"] == "" {
		t.Errorf("plan scripts = %v, want the compile override", plan.Scripts)
	}
	if plan.OutputDir != p.Out() {
		t.Errorf("output_dir = %q, want %q", plan.OutputDir, p.Out())
	}
}

func TestCleanCommand(t *testing.T) {
	t.Parallel()

	p := testutil.NewProject(t, scoreReader+scripted)
	cfg := testConfig(p)
	if res := runCLI(t, p, cfg, "build", "--arch", "arm64-v8a"); res.exitCode() != 0 {
		t.Fatalf("build exit code = %d\nstderr:\n%s", res.exitCode(), res.stderr)
	}
	if len(testutil.ListDir(t, p.Cache())) == 0 {
		t.Fatal("build left no cache entries")
	}

	res := runCLI(t, p, cfg, "clean")
	if res.exitCode() != 0 {
		t.Fatalf("clean exit code = %d\nstderr:\n%s", res.exitCode(), res.stderr)
	}
	if entries := testutil.ListDir(t, p.Cache()); len(entries) != 0 {
		t.Errorf("cache after clean = %v", entries)
	}
	out := testutil.ListDir(t, p.Out())
	if containsAll(out, build.WorkDirName) || !containsAll(out, "scorereader-1.0-arm64-v8a.apk") {
		t.Errorf("output after clean = %v, want the package without %s", out, build.WorkDirName)
	}

	if res := runCLI(t, p, cfg, "clean", "--all", "--packages"); res.exitCode() != 0 {
		t.Fatalf("clean --all exit code = %d\nstderr:\n%s", res.exitCode(), res.stderr)
	}
	if testutil.ListDir(t, p.Out()) != nil || testutil.ListDir(t, p.Cache()) != nil {
		t.Error("clean --all --packages left files behind")
	}
}

func TestConfigShow(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "droidpack.cue")
	testutil.MustWriteFile(t, cfgPath, "toolchain: runtime: \"virtual\"\nbuild: jobs: 3\n")

	var stdout, stderr bytes.Buffer
	app := NewApp(Dependencies{
		LookupEnv: func(name string) (string, bool) {
			if name == config.EnvName("build.timeout") {
				return "20m", true
			}
			return "", false
		},
		Stdout: &stdout,
		Stderr: &stderr,
	})
	root := NewRootCommand(app)
	root.SetArgs([]string{"config", "show", "--config", cfgPath})
	if err := root.ExecuteContext(t.Context()); err != nil {
		t.Fatalf("config show: %v\n%s", err, stderr.String())
	}

	out := stdout.String()
	for _, want := range []string{cfgPath, `runtime: "virtual"`, "jobs:    3", `timeout: "20m"`} {
		if !strings.Contains(out, want) {
			t.Errorf("config show lacks %q:\n%s", want, out)
		}
	}
}
