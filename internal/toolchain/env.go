// SPDX-License-Identifier: MPL-2.0

package toolchain

import (
	"os"
	"strconv"
	"strings"

	"github.com/droidpack/droidpack/internal/matrix"
)

// Variables exported to every stage command.
const (
	EnvArch         = "DROIDPACK_ARCH"
	EnvStage        = "DROIDPACK_STAGE"
	EnvWorkDir      = "DROIDPACK_WORK_DIR"
	EnvAppDir       = "DROIDPACK_APP_DIR"
	EnvStateDir     = "DROIDPACK_STATE_DIR"
	EnvLibsDir      = "DROIDPACK_LIBS_DIR"
	EnvLibs         = "DROIDPACK_LIBS"
	EnvDistName     = "DROIDPACK_DIST_NAME"
	EnvPackagePath  = "DROIDPACK_PACKAGE_PATH"
	EnvPackageID    = "DROIDPACK_PACKAGE_ID"
	EnvVersion      = "DROIDPACK_VERSION"
	EnvRequirements = "DROIDPACK_REQUIREMENTS"
	EnvWheels       = "DROIDPACK_WHEELS"
	EnvPermissions  = "DROIDPACK_PERMISSIONS"
	EnvAPI          = "DROIDPACK_API"
	EnvMinAPI       = "DROIDPACK_MINAPI"
	EnvNDKAPI       = "DROIDPACK_NDK_API"
	EnvNDKVersion   = "DROIDPACK_NDK"

	envPrefix = "DROIDPACK_"
)

// Environment returns the variables a stage command runs with. Manifest
// [env] entries come first; the toolchain variables are appended after them
// so they cannot be shadowed.
func Environment(job *Job, stage Stage) []matrix.EnvVar {
	t := job.Target
	env := make([]matrix.EnvVar, 0, len(t.Env)+24)
	env = append(env, t.Env...)

	add := func(name, value string) {
		env = append(env, matrix.EnvVar{Name: name, Value: value})
	}
	add(EnvArch, string(t.Arch))
	add(EnvStage, string(stage))
	add(EnvWorkDir, job.WorkDir)
	add(EnvAppDir, job.AppDir)
	add(EnvStateDir, job.StateDir)
	add(EnvLibsDir, job.LibsDir)
	add(EnvLibs, strings.Join(job.Libs, " "))
	add(EnvDistName, job.DistName())
	add(EnvPackagePath, job.PackagePath)
	add(EnvPackageID, job.App.PackageID())
	add(EnvVersion, job.App.Version)
	add(EnvRequirements, strings.Join(job.Requirements, ","))
	add(EnvWheels, strings.Join(job.Wheels, " "))
	add(EnvPermissions, strings.Join(t.Permissions, ","))
	add(EnvAPI, strconv.Itoa(t.TargetAPI))
	add(EnvMinAPI, strconv.Itoa(t.MinAPI))
	add(EnvNDKAPI, strconv.Itoa(t.NDKAPI))
	add(EnvNDKVersion, t.NDK)

	if job.SDKDir != "" {
		add("ANDROIDSDK", job.SDKDir)
		add("ANDROID_SDK_ROOT", job.SDKDir)
	}
	if job.NDKDir != "" {
		add("ANDROIDNDK", job.NDKDir)
		add("ANDROID_NDK_HOME", job.NDKDir)
	}
	add("ANDROIDAPI", strconv.Itoa(t.TargetAPI))
	add("NDKAPI", strconv.Itoa(t.NDKAPI))
	return env
}

// EnvToSlice converts variables to KEY=VALUE form.
func EnvToSlice(env []matrix.EnvVar) []string {
	out := make([]string, len(env))
	for i, v := range env {
		out[i] = v.Name + "=" + v.Value
	}
	return out
}

// EnvToMap converts variables to a map; later entries win.
func EnvToMap(env []matrix.EnvVar) map[string]string {
	out := make(map[string]string, len(env))
	for _, v := range env {
		out[v.Name] = v.Value
	}
	return out
}

// Lookup returns the last value of name in env.
func Lookup(env []matrix.EnvVar, name string) (string, bool) {
	for i := len(env) - 1; i >= 0; i-- {
		if env[i].Name == name {
			return env[i].Value, true
		}
	}
	return "", false
}

// hostEnv returns the process environment without droidpack's own
// DROIDPACK_* settings, followed by env.
func hostEnv(env []matrix.EnvVar) []string {
	return append(FilterDroidpackEnvVars(os.Environ()), EnvToSlice(env)...)
}

// FilterDroidpackEnvVars removes DROIDPACK_* entries so that tool
// configuration never leaks into toolchain commands.
func FilterDroidpackEnvVars(environ []string) []string {
	out := make([]string, 0, len(environ))
	for _, kv := range environ {
		if !strings.HasPrefix(kv, envPrefix) {
			out = append(out, kv)
		}
	}
	return out
}
