// SPDX-License-Identifier: MPL-2.0

package manifest

import (
	"strings"

	"github.com/droidpack/droidpack/pkg/abi"
)

// Keys of the [app] section that the rest of droidpack reads.
const (
	KeyTitle           = "title"
	KeyPackageName     = "package.name"
	KeyPackageDomain   = "package.domain"
	KeyVersion         = "version"
	KeySourceDir       = "source.dir"
	KeyIncludeExts     = "source.include_exts"
	KeyIncludePatterns = "source.include_patterns"
	KeyExcludeExts     = "source.exclude_exts"
	KeyExcludeDirs     = "source.exclude_dirs"
	KeyExcludePatterns = "source.exclude_patterns"
	KeyRequirements    = "requirements"
	KeyOrientation     = "orientation"
	KeyFullscreen      = "fullscreen"
	KeyPermissions     = "android.permissions"
	KeyArchs           = "android.archs"
	KeyAPI             = "android.api"
	KeyMinAPI          = "android.minapi"
	KeyNDKAPI          = "android.ndk_api"
	KeySDK             = "android.sdk"
	KeyNDK             = "android.ndk"
	KeyNativeLibs      = "android.native_libs"
	KeyAddLibsPrefix   = "android.add_libs_"
	KeyLibsDir         = "android.libs_dir"
	KeyWheelsDir       = "android.wheels_dir"
	KeyRecipeCatalog   = "android.recipe_catalog"
	KeyBootstrap       = "android.bootstrap"
	KeyReleaseArtifact = "android.release_artifact"
	KeySDKPath         = "android.sdk_path"
	KeyNDKPath         = "android.ndk_path"
)

// Keys of [arch:<id>] sections.
const (
	ArchKeyAPI         = "api"
	ArchKeyMinAPI      = "minapi"
	ArchKeyNDKAPI      = "ndk_api"
	ArchKeySDK         = "sdk"
	ArchKeyNDK         = "ndk"
	ArchKeyNativeLibs  = "native_libs"
	ArchKeyPermissions = "permissions"
)

// Keys of the [buildozer] section.
const (
	KeyLogLevel = "log_level"
	KeyBinDir   = "bin_dir"
)

var (
	appFields = map[string]Kind{
		KeyTitle:           KindString,
		KeyPackageName:     KindString,
		KeyPackageDomain:   KindString,
		KeyVersion:         KindString,
		KeySourceDir:       KindString,
		KeyIncludeExts:     KindList,
		KeyIncludePatterns: KindList,
		KeyExcludeExts:     KindList,
		KeyExcludeDirs:     KindList,
		KeyExcludePatterns: KindList,
		KeyRequirements:    KindList,
		KeyOrientation:     KindString,
		KeyFullscreen:      KindBool,
		KeyPermissions:     KindList,
		KeyArchs:           KindList,
		KeyAPI:             KindInt,
		KeyMinAPI:          KindInt,
		KeyNDKAPI:          KindInt,
		KeySDK:             KindInt,
		KeyNDK:             KindVersion,
		KeyNativeLibs:      KindList,
		KeyLibsDir:         KindString,
		KeyWheelsDir:       KindString,
		KeyRecipeCatalog:   KindString,
		KeyBootstrap:       KindString,
		KeyReleaseArtifact: KindString,
		KeySDKPath:         KindString,
		KeyNDKPath:         KindString,
	}

	archFields = map[string]Kind{
		ArchKeyAPI:         KindInt,
		ArchKeyMinAPI:      KindInt,
		ArchKeyNDKAPI:      KindInt,
		ArchKeySDK:         KindInt,
		ArchKeyNDK:         KindVersion,
		ArchKeyNativeLibs:  KindList,
		ArchKeyPermissions: KindList,
	}

	// buildozer keys droidpack accepts but does not act on.
	passthroughFields = map[string]Kind{
		"icon.filename":              KindString,
		"presplash.filename":         KindString,
		"android.accept_sdk_license": KindBool,
		"android.skip_update":        KindBool,
		"android.private_storage":    KindBool,
		"p4a.branch":                 KindString,
		"osx.python_version":         KindString,
		"osx.kivy_version":           KindString,
	}

	buildozerFields = map[string]Kind{
		KeyLogLevel:    KindInt,
		KeyBinDir:      KindString,
		"warn_on_root": KindBool,
		"build_dir":    KindString,
	}

	// Orientations accepted by android.orientation.
	Orientations = []string{
		"portrait", "landscape", "all",
		"sensorLandscape", "sensorPortrait",
		"portrait-reverse", "landscape-reverse",
	}

	// ReleaseArtifacts accepted by android.release_artifact.
	ReleaseArtifacts = []string{"apk", "aab"}
)

// KindOf returns the declared kind of key within the named section and
// whether the key is part of the schema at all. Keys of [env] and
// [toolchain] sections are free-form strings.
func KindOf(section, key string) (Kind, bool) {
	base, _, _ := SplitSectionName(section)
	switch base {
	case SectionApp:
		if k, ok := appFields[key]; ok {
			return k, true
		}
		if k, ok := passthroughFields[key]; ok {
			return k, true
		}
		if suffix, ok := strings.CutPrefix(key, KeyAddLibsPrefix); ok {
			_, known := abi.FromKeySuffix(suffix)
			return KindList, known
		}
		return KindString, false
	case ScopeArch:
		k, ok := archFields[key]
		return k, ok
	case SectionEnv, SectionToolchain:
		return KindString, true
	case SectionBuildozer:
		if k, ok := buildozerFields[key]; ok {
			return k, true
		}
		return KindString, false
	default:
		return KindString, false
	}
}

// AddLibsKey returns the android.add_libs_<suffix> key for arch.
func AddLibsKey(arch abi.Arch) string {
	return KeyAddLibsPrefix + arch.KeySuffix()
}

// ArchSection returns the name of the override section for arch.
func ArchSection(arch abi.Arch) string {
	return ScopeArch + ":" + string(arch)
}

// EnvSection returns the name of the environment section for arch.
func EnvSection(arch abi.Arch) string {
	return ScopeEnv + ":" + string(arch)
}
