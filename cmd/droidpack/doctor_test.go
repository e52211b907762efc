// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/droidpack/droidpack/internal/config"
	"github.com/droidpack/droidpack/internal/testutil"
)

func TestDoctorAllChecksPass(t *testing.T) {
	t.Parallel()

	p := testutil.NewProject(t, scoreReader)
	cfg := testConfig(p)
	cfg.Toolchain.Runtime = config.RuntimeNative

	res := runCLI(t, p, cfg, "doctor")
	if res.exitCode() != 0 {
		t.Fatalf("exit code = %d\nstdout:\n%s", res.exitCode(), res.stdout)
	}
	for _, want := range []string{"✓ toolchain p4a on PATH", "✓ java on PATH", "! git on PATH", "✓ Android SDK and NDK", "Ready to build."} {
		if !strings.Contains(res.stdout, want) {
			t.Errorf("stdout lacks %q:\n%s", want, res.stdout)
		}
	}
}

func TestDoctorFailures(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(*testutil.Project)
		want   string
	}{
		{
			name:   "missing entry point",
			mutate: func(p *testutil.Project) { _ = os.Remove(filepath.Join(p.Dir, "main.py")) },
			want:   "✗ main.py in ",
		},
		{
			name:   "missing ndk",
			mutate: func(p *testutil.Project) { delete(p.Env, "ANDROIDNDK") },
			want:   "✗ Android SDK and NDK",
		},
		{
			name:   "missing manifest",
			mutate: func(p *testutil.Project) { _ = os.Remove(p.Manifest()) },
			want:   "✗ manifest ",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			p := testutil.NewProject(t, scoreReader)
			tt.mutate(p)
			res := runCLI(t, p, testConfig(p), "doctor")
			if res.exitCode() != 1 {
				t.Fatalf("exit code = %d, want 1\nstdout:\n%s", res.exitCode(), res.stdout)
			}
			if !strings.Contains(res.stdout, tt.want) {
				t.Errorf("stdout lacks %q:\n%s", tt.want, res.stdout)
			}
		})
	}
}

func TestDoctorMissingJava(t *testing.T) {
	t.Parallel()

	p := testutil.NewProject(t, scoreReader)
	var stdout, stderr bytes.Buffer
	app := NewApp(Dependencies{
		Config:    staticConfig{cfg: testConfig(p)},
		LookupEnv: p.Lookup,
		LookPath:  lookPath("p4a", "git"),
		Stdout:    &stdout,
		Stderr:    &stderr,
	})
	app.manifests = []string{p.Manifest()}

	failed := renderChecks(&stdout, app.doctor(t.Context(), testConfig(p)))
	if failed == nil || failed.name != "java on PATH" {
		t.Fatalf("first failed check = %+v, want java", failed)
	}
}
