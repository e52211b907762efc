// SPDX-License-Identifier: MPL-2.0

package manifest

import (
	"strconv"

	"github.com/droidpack/droidpack/pkg/abi"
)

// Canonical defaults for keys a manifest may leave unset.
const (
	DefaultAPI             = 33
	DefaultMinAPI          = 21
	DefaultNDKAPI          = 21
	DefaultSDK             = 33
	DefaultNDK             = "25b"
	DefaultBootstrap       = "sdl2"
	DefaultReleaseArtifact = "apk"
	DefaultOrientation     = "portrait"
	DefaultSourceDir       = "."
	DefaultLibsDir         = "libs"
)

// DefaultsSource is the origin recorded for values filled in by ApplyDefaults.
const DefaultsSource = "<defaults>"

// DefaultIncludeExts are the source extensions packaged when none are configured.
var DefaultIncludeExts = []string{"py", "png", "jpg", "kv", "atlas"}

// ApplyDefaults fills every unset key that has a canonical default. It runs
// after merging so a user-supplied list replaces the default rather than
// being appended to it.
func ApplyDefaults(m *Manifest) {
	origin := Origin{Source: DefaultsSource}
	setDefault := func(key string, v Value) {
		if !m.Has(SectionApp, key) {
			v.Origin = origin
			m.Set(SectionApp, key, v)
		}
	}

	setDefault(KeyAPI, StringValue(KindInt, strconv.Itoa(DefaultAPI), origin))
	setDefault(KeyMinAPI, StringValue(KindInt, strconv.Itoa(DefaultMinAPI), origin))
	setDefault(KeyNDKAPI, StringValue(KindInt, strconv.Itoa(DefaultNDKAPI), origin))
	setDefault(KeySDK, StringValue(KindInt, strconv.Itoa(DefaultSDK), origin))
	setDefault(KeyNDK, StringValue(KindVersion, DefaultNDK, origin))
	setDefault(KeyArchs, ListValue(abi.Names(abi.Defaults()), origin))
	setDefault(KeyBootstrap, StringValue(KindString, DefaultBootstrap, origin))
	setDefault(KeyReleaseArtifact, StringValue(KindString, DefaultReleaseArtifact, origin))
	setDefault(KeyOrientation, StringValue(KindString, DefaultOrientation, origin))
	setDefault(KeySourceDir, StringValue(KindString, DefaultSourceDir, origin))
	setDefault(KeyLibsDir, StringValue(KindString, DefaultLibsDir, origin))
	setDefault(KeyIncludeExts, ListValue(DefaultIncludeExts, origin))
	setDefault(KeyFullscreen, StringValue(KindBool, "false", origin))
}
