// SPDX-License-Identifier: MPL-2.0

package matrix

import (
	"errors"
	"slices"
	"testing"

	"github.com/droidpack/droidpack/pkg/abi"
	"github.com/droidpack/droidpack/pkg/manifest"
)

const base = `[app]
title = Music Player
package.name = musicplayer
package.domain = org.example
version = 1.0.0
android.archs = arm64-v8a, armeabi-v7a
android.minapi = 23
android.permissions = INTERNET
android.native_libs = libogg.so
android.add_libs_arm64_v8a = libfluidsynth.so
[arch:armeabi-v7a]
minapi = 24
ndk = 23c
permissions = WAKE_LOCK
native_libs = libogg.so, libneon.so
[env]
KIVY_AUDIO = sdl2
LOG_LEVEL = info
[env:arm64-v8a]
LOG_LEVEL = debug
ARM64_ONLY = 1
`

func load(t *testing.T, src string) *manifest.Manifest {
	t.Helper()

	m, _, err := manifest.ParseBytes([]byte(src), manifest.ParseOptions{Source: "buildozer.spec"})
	if err != nil {
		t.Fatalf("ParseBytes() unexpected error: %v", err)
	}
	manifest.ApplyDefaults(m)
	if err := manifest.Validate(m); err != nil {
		t.Fatalf("Validate() unexpected error: %v", err)
	}
	return m
}

func TestBuild(t *testing.T) {
	t.Parallel()

	targets, err := Build(load(t, base), nil)
	if err != nil {
		t.Fatalf("Build() unexpected error: %v", err)
	}
	if len(targets) != 2 {
		t.Fatalf("Build() returned %d targets, want 2", len(targets))
	}

	arm64, armv7 := targets[0], targets[1]
	if arm64.Arch != abi.ARM64 || armv7.Arch != abi.ARMv7 {
		t.Fatalf("target order = [%s %s], want manifest order", arm64.Arch, armv7.Arch)
	}

	tests := []struct {
		name string
		got  any
		want any
	}{
		{"arm64 minapi from [app]", arm64.MinAPI, 23},
		{"armv7 minapi override", armv7.MinAPI, 24},
		{"arm64 api default", arm64.TargetAPI, manifest.DefaultAPI},
		{"arm64 ndk default", arm64.NDK, manifest.DefaultNDK},
		{"armv7 ndk override", armv7.NDK, "23c"},
		{"ndk api default", armv7.NDKAPI, manifest.DefaultNDKAPI},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("%s = %v, want %v", tt.name, tt.got, tt.want)
		}
	}

	if want := []string{"libogg.so", "libfluidsynth.so"}; !slices.Equal(arm64.NativeLibs, want) {
		t.Errorf("arm64 NativeLibs = %v, want %v", arm64.NativeLibs, want)
	}
	if want := []string{"libogg.so", "libneon.so"}; !slices.Equal(armv7.NativeLibs, want) {
		t.Errorf("armv7 NativeLibs = %v, want %v", armv7.NativeLibs, want)
	}
	if want := []string{"INTERNET", "WAKE_LOCK"}; !slices.Equal(armv7.Permissions, want) {
		t.Errorf("armv7 Permissions = %v, want %v", armv7.Permissions, want)
	}
	if want := []string{"INTERNET"}; !slices.Equal(arm64.Permissions, want) {
		t.Errorf("arm64 Permissions = %v, want %v", arm64.Permissions, want)
	}

	wantEnv := []EnvVar{{"KIVY_AUDIO", "sdl2"}, {"LOG_LEVEL", "debug"}, {"ARM64_ONLY", "1"}}
	if !slices.Equal(arm64.Env, wantEnv) {
		t.Errorf("arm64 Env = %v, want %v", arm64.Env, wantEnv)
	}
	if got := armv7.EnvMap()["LOG_LEVEL"]; got != "info" {
		t.Errorf("armv7 LOG_LEVEL = %q, want info", got)
	}
}

func TestBuildRequestedArchs(t *testing.T) {
	t.Parallel()

	m := load(t, base)

	targets, err := Build(m, []string{"x86_64", "arm64-v8a", "x86_64"})
	if err != nil {
		t.Fatalf("Build() unexpected error: %v", err)
	}
	var got []abi.Arch
	for _, tg := range targets {
		got = append(got, tg.Arch)
	}
	if want := []abi.Arch{abi.X8664, abi.ARM64}; !slices.Equal(got, want) {
		t.Errorf("archs = %v, want %v", got, want)
	}

	_, err = Build(m, []string{"mips"})
	if !errors.Is(err, manifest.ErrValidation) {
		t.Errorf("Build(mips) error = %v, want ErrValidation", err)
	}
}

func TestBuildDefaultsWithoutArchs(t *testing.T) {
	t.Parallel()

	m := manifest.New()
	archs, err := Archs(m, nil)
	if err != nil {
		t.Fatalf("Archs() unexpected error: %v", err)
	}
	if !slices.Equal(archs, abi.Defaults()) {
		t.Errorf("Archs() = %v, want %v", archs, abi.Defaults())
	}
}
