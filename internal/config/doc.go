// SPDX-License-Identifier: MPL-2.0

// Package config loads droidpack's own settings with Viper from a CUE file.
//
// The file is config.cue in the droidpack configuration directory
// ($XDG_CONFIG_HOME/droidpack on Linux, ~/Library/Application Support/droidpack
// on macOS, %APPDATA%\droidpack on Windows), or droidpack.cue in the working
// directory, or the path given with --config. It is validated against the
// embedded #Config schema. DROIDPACK_<SECTION>_<KEY> environment variables
// override the file.
package config
