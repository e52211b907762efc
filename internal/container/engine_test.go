// SPDX-License-Identifier: MPL-2.0

package container

import (
	"context"
	"errors"
	"io"
	"os/exec"
	"slices"
	"testing"
	"time"
)

func TestRunArgs(t *testing.T) {
	t.Parallel()

	e := NewBaseCLIEngine("/usr/bin/docker")
	got := e.RunArgs(RunOptions{
		Image:   "docker.io/kivy/buildozer:latest",
		Command: []string{"p4a", "apk"},
		WorkDir: "/work/arm64-v8a",
		Env:     map[string]string{"ZED": "1", "ANDROIDSDK": "/sdk"},
		Volumes: []VolumeMount{
			{HostPath: "/work", ContainerPath: "/work"},
			{HostPath: "/sdk", ContainerPath: "/sdk", ReadOnly: true},
		},
		Name:   "droidpack-abc",
		Remove: true,
		User:   "1000:1000",
	})
	want := []string{
		"run", "--rm", "--name", "droidpack-abc", "-w", "/work/arm64-v8a", "--user", "1000:1000",
		"-e", "ANDROIDSDK=/sdk", "-e", "ZED=1",
		"-v", "/work:/work", "-v", "/sdk:/sdk:ro",
		"docker.io/kivy/buildozer:latest", "p4a", "apk",
	}
	if !slices.Equal(got, want) {
		t.Errorf("RunArgs() =\n%v\nwant\n%v", got, want)
	}
}

func TestVolumeMount(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mount   VolumeMount
		want    string
		wantErr bool
	}{
		{"plain", VolumeMount{HostPath: "/a", ContainerPath: "/b"}, "/a:/b", false},
		{"read only labeled", VolumeMount{HostPath: "/a", ContainerPath: "/b", ReadOnly: true, SELinux: SELinuxLabelShared}, "/a:/b:ro,z", false},
		{"empty host", VolumeMount{ContainerPath: "/b"}, "", true},
		{"colon in path", VolumeMount{HostPath: "/a:x", ContainerPath: "/b"}, "", true},
		{"bad label", VolumeMount{HostPath: "/a", ContainerPath: "/b", SELinux: "q"}, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			err := tt.mount.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil {
				if !errors.Is(err, ErrInvalidVolumeMount) {
					t.Errorf("errors.Is(err, ErrInvalidVolumeMount) = false")
				}
				return
			}
			if got := tt.mount.String(); got != tt.want {
				t.Errorf("String() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestEngineRun(t *testing.T) {
	t.Parallel()

	t.Run("success", func(t *testing.T) {
		t.Parallel()

		rec := &mockCommandRecorder{}
		e := NewDockerEngine(WithBinaryPath("/usr/bin/docker"), WithExecCommand(rec.commandFunc()))
		res, err := e.Run(t.Context(), RunOptions{Image: "alpine", Command: []string{"true"}, Name: "c1", Stdout: io.Discard})
		if err != nil {
			t.Fatalf("Run() unexpected error: %v", err)
		}
		if res.ExitCode != 0 || res.Error != nil || res.Name != "c1" {
			t.Errorf("Run() = %+v, want clean exit of c1", res)
		}
		if inv := rec.last(t); inv.Name != "/usr/bin/docker" || inv.Args[0] != "run" {
			t.Errorf("invocation = %+v", inv)
		}
	})

	t.Run("non-zero exit is a result", func(t *testing.T) {
		t.Parallel()

		rec := &mockCommandRecorder{exitCode: 3}
		e := NewDockerEngine(WithBinaryPath("/usr/bin/docker"), WithExecCommand(rec.commandFunc()))
		res, err := e.Run(t.Context(), RunOptions{Image: "alpine"})
		if err != nil {
			t.Fatalf("Run() unexpected error: %v", err)
		}
		if res.ExitCode != 3 || res.Error != nil {
			t.Errorf("Run() = %+v, want exit code 3", res)
		}
	})

	t.Run("invalid options never reach the engine", func(t *testing.T) {
		t.Parallel()

		rec := &mockCommandRecorder{}
		e := NewDockerEngine(WithBinaryPath("/usr/bin/docker"), WithExecCommand(rec.commandFunc()))
		if _, err := e.Run(t.Context(), RunOptions{Image: "alpine", Volumes: []VolumeMount{{HostPath: "/a"}}}); err == nil {
			t.Fatal("Run() expected an error")
		}
		if rec.count() != 0 {
			t.Errorf("engine invoked %d times, want 0", rec.count())
		}
	})
}

func TestImageExists(t *testing.T) {
	t.Parallel()

	rec := &mockCommandRecorder{failOn: "image", failCode: 1}
	e := NewPodmanEngine(WithBinaryPath("/usr/bin/podman"), WithExecCommand(rec.commandFunc()))
	ok, err := e.ImageExists(t.Context(), "alpine")
	if err != nil || ok {
		t.Errorf("ImageExists() = (%v, %v), want (false, nil)", ok, err)
	}
	if inv := rec.last(t); !slices.Equal(inv.Args, []string{"image", "exists", "alpine"}) {
		t.Errorf("args = %v", inv.Args)
	}
}

func TestVersion(t *testing.T) {
	t.Parallel()

	rec := &mockCommandRecorder{stdout: "27.1.0\n"}
	e := NewDockerEngine(WithBinaryPath("/usr/bin/docker"), WithExecCommand(rec.commandFunc()))
	v, err := e.Version(t.Context())
	if err != nil || v != "27.1.0" {
		t.Errorf("Version() = (%q, %v), want 27.1.0", v, err)
	}
}

func TestNewEngineFallback(t *testing.T) {
	t.Parallel()

	rec := &mockCommandRecorder{}
	// An empty binary path makes an engine unavailable.
	t.Run("unavailable", func(t *testing.T) {
		t.Parallel()

		_, err := NewEngine(EngineTypeDocker, WithBinaryPath(""), WithExecCommand(rec.commandFunc()))
		if !errors.Is(err, ErrEngineNotAvailable) {
			t.Errorf("NewEngine() error = %v, want ErrEngineNotAvailable", err)
		}
	})

	t.Run("unknown type", func(t *testing.T) {
		t.Parallel()

		if _, err := NewEngine("lxc"); err == nil {
			t.Error("NewEngine(lxc) expected an error")
		}
	})
}

func TestParseEngineType(t *testing.T) {
	t.Parallel()

	for _, s := range []string{"podman", "docker"} {
		if got, err := ParseEngineType(s); err != nil || string(got) != s {
			t.Errorf("ParseEngineType(%q) = (%q, %v)", s, got, err)
		}
	}
	if _, err := ParseEngineType("rkt"); err == nil {
		t.Error("ParseEngineType(rkt) expected an error")
	}
}

func TestMakeUsernsKeepIDAdder(t *testing.T) {
	t.Parallel()

	add := makeUsernsKeepIDAdder()
	tests := []struct {
		name string
		args []string
		want []string
	}{
		{"bare run", []string{"run", "img"}, []string{"run", "--userns=keep-id", "img"}},
		{
			"flags with values",
			[]string{"run", "--rm", "-w", "/w", "-e", "A=1", "-v", "/a:/a", "img", "sh", "-c", "x"},
			[]string{"run", "--rm", "-w", "/w", "-e", "A=1", "-v", "/a:/a", "--userns=keep-id", "img", "sh", "-c", "x"},
		},
		{"other command", []string{"pull", "img"}, []string{"pull", "img"}},
	}
	for _, tt := range tests {
		if got := add(tt.args); !slices.Equal(got, tt.want) {
			t.Errorf("%s: got %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestSELinuxVolumeFormatter(t *testing.T) {
	t.Parallel()

	on := selinuxVolumeFormatter(func() bool { return true })
	off := selinuxVolumeFormatter(func() bool { return false })
	v := VolumeMount{HostPath: "/a", ContainerPath: "/a"}

	if got := on(v); got != "/a:/a:z" {
		t.Errorf("enabled = %q, want /a:/a:z", got)
	}
	if got := off(v); got != "/a:/a" {
		t.Errorf("disabled = %q, want /a:/a", got)
	}
	v.SELinux = SELinuxLabelPrivate
	if got := on(v); got != "/a:/a:Z" {
		t.Errorf("prelabeled = %q, want /a:/a:Z", got)
	}
}

func TestRetryWithBackoff(t *testing.T) {
	t.Parallel()

	transient := errors.New("connection refused")
	calls := 0
	err := RetryWithBackoff(t.Context(), 3, time.Millisecond, func(int) (bool, error) {
		calls++
		if calls < 3 {
			return true, transient
		}
		return false, nil
	})
	if err != nil || calls != 3 {
		t.Errorf("RetryWithBackoff() = %v after %d calls, want nil after 3", err, calls)
	}

	ctx, cancel := context.WithCancel(t.Context())
	cancel()
	err = RetryWithBackoff(ctx, 3, time.Hour, func(int) (bool, error) { return true, transient })
	if !errors.Is(err, context.Canceled) {
		t.Errorf("cancelled RetryWithBackoff() = %v, want context.Canceled", err)
	}
}

func TestIsTransientError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{context.Canceled, false},
		{errors.New("dial tcp: connection refused"), true},
		{errors.New("Could not resolve host: registry"), true},
		{errors.New("manifest unknown"), false},
		{&exec.ExitError{}, false},
	}
	for _, tt := range tests {
		if got := IsTransientError(tt.err); got != tt.want {
			t.Errorf("IsTransientError(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
}
