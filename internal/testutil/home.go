// SPDX-License-Identifier: MPL-2.0

package testutil

import (
	"path/filepath"
	"runtime"
	"testing"
)

// IsolateUserDirs points the home, configuration and cache directories at
// subdirectories of dir for the rest of the test, so that user
// configuration on the host never leaks into it.
//
// Platform handling:
//   - Windows: Sets USERPROFILE and APPDATA
//   - Linux/macOS: Sets HOME, XDG_CONFIG_HOME and XDG_CACHE_HOME
func IsolateUserDirs(t *testing.T, dir string) {
	t.Helper()

	home := filepath.Join(dir, "home")
	MustMkdirAll(t, home, 0o755)
	switch runtime.GOOS {
	case "windows":
		t.Cleanup(MustSetenv(t, "USERPROFILE", home))
		t.Cleanup(MustSetenv(t, "APPDATA", filepath.Join(home, "AppData", "Roaming")))
	default:
		t.Cleanup(MustSetenv(t, "HOME", home))
	}
	t.Cleanup(MustSetenv(t, "XDG_CONFIG_HOME", filepath.Join(dir, "config")))
	t.Cleanup(MustSetenv(t, "XDG_CACHE_HOME", filepath.Join(dir, "cache")))
}
