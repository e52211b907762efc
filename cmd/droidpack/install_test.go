// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"io"
	"slices"
	"strings"
	"sync"
	"testing"

	"github.com/droidpack/droidpack/internal/testutil"
	"github.com/droidpack/droidpack/internal/toolchain"
)

// fakeADB answers adb invocations without a device.
type fakeADB struct {
	mu      sync.Mutex
	calls   []string
	abiList string
	failOn  string
}

func (f *fakeADB) Name() string { return "adb" }

func (f *fakeADB) Run(_ context.Context, inv *toolchain.Invocation) *toolchain.Result {
	line := strings.Join(inv.Argv, " ")
	f.mu.Lock()
	f.calls = append(f.calls, line)
	f.mu.Unlock()

	if f.failOn != "" && strings.Contains(line, f.failOn) {
		_, _ = io.WriteString(inv.Stderr, "adb: device offline")
		return &toolchain.Result{ExitCode: 1}
	}
	if strings.Contains(line, "getprop ro.product.cpu.abilist") {
		_, _ = io.WriteString(inv.Stdout, f.abiList+"\n")
	}
	return &toolchain.Result{}
}

func swapDeviceRunner(t *testing.T, adb *fakeADB) {
	t.Helper()
	orig := newDeviceRunner
	newDeviceRunner = func() toolchain.Runner { return adb }
	t.Cleanup(func() { newDeviceRunner = orig })
}

func TestInstallCommand(t *testing.T) {
	// Not parallel: mutates the package-level device runner constructor.

	const apk = "scorereader-1.0-arm64-v8a.apk"
	const getprop = "adb shell getprop ro.product.cpu.abilist"

	tests := []struct {
		name     string
		args     []string
		abiList  string
		failOn   string
		wantCode int
		want     []string
		wantErr  string
	}{
		{
			name:    "device ABI selects the package",
			abiList: "arm64-v8a,armeabi-v7a,armeabi",
			want:    []string{getprop, "adb install -r " + apk},
		},
		{
			name:    "secondary device ABI",
			abiList: "x86_64,arm64-v8a",
			want:    []string{getprop, "adb install -r " + apk},
		},
		{
			name: "explicit arch and serial skip the ABI query",
			args: []string{"--arch", "arm64-v8a", "--serial", "emulator-5554"},
			want: []string{"adb -s emulator-5554 install -r " + apk},
		},
		{
			name: "launch and logcat",
			args: []string{"--arch", "arm64-v8a", "--launch", "--logcat"},
			want: []string{
				"adb install -r " + apk,
				"adb shell am start -n org.example.scorereader/org.kivy.android.PythonActivity",
				"adb logcat -c",
				"adb logcat -s python:* scorereader:* AndroidRuntime:E",
			},
		},
		{
			name:     "no package for the device",
			abiList:  "x86_64,x86",
			wantCode: 1,
			want:     []string{getprop},
			wantErr:  "no package for the device ABIs x86_64, x86",
		},
		{
			name:     "arch without a package",
			args:     []string{"--arch", "armeabi-v7a"},
			wantCode: 1,
			wantErr:  "no package for armeabi-v7a",
		},
		{
			name:     "install failure",
			args:     []string{"--arch", "arm64-v8a", "--launch"},
			failOn:   "install",
			wantCode: 1,
			want:     []string{"adb install -r " + apk},
			wantErr:  "device offline",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := testutil.NewProject(t, scoreReader)
			report := writeReport(t, p)
			adb := &fakeADB{abiList: tt.abiList, failOn: tt.failOn}
			swapDeviceRunner(t, adb)

			res := runCLI(t, p, testConfig(p), append([]string{"install", "--report", report}, tt.args...)...)
			if got := res.exitCode(); got != tt.wantCode {
				t.Fatalf("exit code = %d, want %d\nstdout:\n%s\nstderr:\n%s", got, tt.wantCode, res.stdout, res.stderr)
			}

			var calls []string
			for _, c := range adb.calls {
				calls = append(calls, strings.ReplaceAll(c, p.Out()+"/", ""))
			}
			if !slices.Equal(calls, tt.want) {
				t.Errorf("adb calls = %q, want %q", calls, tt.want)
			}
			if tt.wantErr != "" && !strings.Contains(res.stdout+res.stderr, tt.wantErr) {
				t.Errorf("output does not mention %q:\nstdout:\n%s\nstderr:\n%s", tt.wantErr, res.stdout, res.stderr)
			}
			if tt.wantCode == 0 && !strings.Contains(res.stdout, "Installed") {
				t.Errorf("stdout = %q, want an install confirmation", res.stdout)
			}
		})
	}
}
