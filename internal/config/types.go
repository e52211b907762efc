// SPDX-License-Identifier: MPL-2.0

package config

import (
	"errors"
	"fmt"
	"runtime"
	"strings"
	"time"
)

const (
	// ContainerEnginePodman uses Podman for the container runtime.
	ContainerEnginePodman ContainerEngine = "podman"
	// ContainerEngineDocker uses Docker for the container runtime.
	ContainerEngineDocker ContainerEngine = "docker"

	// RuntimeNative runs toolchain commands on the host.
	RuntimeNative RuntimeMode = "native"
	// RuntimeVirtual runs custom stage scripts in the embedded mvdan/sh interpreter.
	RuntimeVirtual RuntimeMode = "virtual"
	// RuntimeContainer runs toolchain commands inside the toolchain image.
	RuntimeContainer RuntimeMode = "container"

	ColorSchemeAuto  ColorScheme = "auto"
	ColorSchemeDark  ColorScheme = "dark"
	ColorSchemeLight ColorScheme = "light"

	// DefaultImage is the toolchain image of the container runtime.
	DefaultImage = "docker.io/kivy/buildozer:latest"
	// DefaultBinary is the toolchain executable.
	DefaultBinary = "p4a"
	// DefaultTimeout bounds one architecture build.
	DefaultTimeout = time.Hour
)

var (
	// ErrInvalidContainerEngine is returned for unknown engines.
	ErrInvalidContainerEngine = errors.New("invalid container engine")
	// ErrInvalidRuntimeMode is returned for unknown runtimes.
	ErrInvalidRuntimeMode = errors.New("invalid runtime mode")
	// ErrInvalidColorScheme is returned for unknown color schemes.
	ErrInvalidColorScheme = errors.New("invalid color scheme")
	// ErrInvalidConfig is wrapped by InvalidConfigError.
	ErrInvalidConfig = errors.New("invalid config")
)

type (
	// ContainerEngine selects the container CLI.
	ContainerEngine string

	// RuntimeMode selects how toolchain commands run.
	RuntimeMode string

	// ColorScheme is the terminal color preference.
	ColorScheme string

	// InvalidValueError reports a value outside its enumeration.
	InvalidValueError struct {
		Field string
		Value string
		Err   error
	}

	// InvalidConfigError collects every invalid field of a Config.
	InvalidConfigError struct {
		FieldErrors []error
	}

	// Config holds droidpack's tool configuration.
	Config struct {
		Toolchain       ToolchainConfig `json:"toolchain" mapstructure:"toolchain"`
		ContainerEngine ContainerEngine `json:"container_engine" mapstructure:"container_engine"`
		Build           BuildConfig     `json:"build" mapstructure:"build"`
		// CacheDir holds toolchain state between builds.
		CacheDir string        `json:"cache_dir" mapstructure:"cache_dir"`
		UI       UIConfig      `json:"ui" mapstructure:"ui"`
		Publish  PublishConfig `json:"publish" mapstructure:"publish"`
	}

	// ToolchainConfig selects how stage commands run.
	ToolchainConfig struct {
		Runtime RuntimeMode `json:"runtime" mapstructure:"runtime"`
		// Binary is the python-for-android executable.
		Binary string `json:"binary" mapstructure:"binary"`
		// Image is the container runtime's toolchain image.
		Image string `json:"image" mapstructure:"image"`
	}

	// BuildConfig holds defaults of the build command flags.
	BuildConfig struct {
		// Jobs is the number of architectures built at once; zero means one
		// per CPU.
		Jobs      int           `json:"jobs" mapstructure:"jobs"`
		Timeout   time.Duration `json:"timeout" mapstructure:"timeout"`
		OutputDir string        `json:"output_dir" mapstructure:"output_dir"`
	}

	UIConfig struct {
		Verbose     bool        `json:"verbose" mapstructure:"verbose"`
		ColorScheme ColorScheme `json:"color_scheme" mapstructure:"color_scheme"`
	}

	// PublishConfig is the object storage destination of droidpack publish.
	PublishConfig struct {
		Bucket   string `json:"bucket" mapstructure:"bucket"`
		Prefix   string `json:"prefix" mapstructure:"prefix"`
		Region   string `json:"region" mapstructure:"region"`
		Endpoint string `json:"endpoint" mapstructure:"endpoint"`
	}
)

func (e *InvalidValueError) Error() string {
	return fmt.Sprintf("%s: %v %q", e.Field, e.Err, e.Value)
}

func (e *InvalidValueError) Unwrap() error { return e.Err }

func (e *InvalidConfigError) Error() string {
	msgs := make([]string, len(e.FieldErrors))
	for i, err := range e.FieldErrors {
		msgs[i] = err.Error()
	}
	return fmt.Sprintf("%v: %s", ErrInvalidConfig, strings.Join(msgs, "; "))
}

// Unwrap returns ErrInvalidConfig and every field error.
func (e *InvalidConfigError) Unwrap() []error {
	return append([]error{ErrInvalidConfig}, e.FieldErrors...)
}

func (ce ContainerEngine) IsValid() bool {
	return ce == ContainerEnginePodman || ce == ContainerEngineDocker
}

func (m RuntimeMode) IsValid() bool {
	return m == RuntimeNative || m == RuntimeVirtual || m == RuntimeContainer
}

func (cs ColorScheme) IsValid() bool {
	return cs == ColorSchemeAuto || cs == ColorSchemeDark || cs == ColorSchemeLight
}

// Validate checks the values the CUE schema cannot see, such as
// environment overrides.
func (c *Config) Validate() error {
	var errs []error
	if !c.Toolchain.Runtime.IsValid() {
		errs = append(errs, &InvalidValueError{Field: "toolchain.runtime", Value: string(c.Toolchain.Runtime), Err: ErrInvalidRuntimeMode})
	}
	if !c.ContainerEngine.IsValid() {
		errs = append(errs, &InvalidValueError{Field: "container_engine", Value: string(c.ContainerEngine), Err: ErrInvalidContainerEngine})
	}
	if !c.UI.ColorScheme.IsValid() {
		errs = append(errs, &InvalidValueError{Field: "ui.color_scheme", Value: string(c.UI.ColorScheme), Err: ErrInvalidColorScheme})
	}
	if c.Build.Jobs < 0 {
		errs = append(errs, fmt.Errorf("build.jobs: must not be negative, got %d", c.Build.Jobs))
	}
	if c.Build.Timeout < 0 {
		errs = append(errs, fmt.Errorf("build.timeout: must not be negative, got %s", c.Build.Timeout))
	}
	if strings.TrimSpace(c.Toolchain.Binary) == "" {
		errs = append(errs, errors.New("toolchain.binary: must not be empty"))
	}
	if len(errs) > 0 {
		return &InvalidConfigError{FieldErrors: errs}
	}
	return nil
}

// DefaultConfig returns the built-in configuration.
func DefaultConfig() *Config {
	engine := ContainerEnginePodman
	if runtime.GOOS == "darwin" || runtime.GOOS == "windows" {
		engine = ContainerEngineDocker
	}
	return &Config{
		Toolchain: ToolchainConfig{
			Runtime: RuntimeNative,
			Binary:  DefaultBinary,
			Image:   DefaultImage,
		},
		ContainerEngine: engine,
		Build: BuildConfig{
			Timeout: DefaultTimeout,
		},
		UI: UIConfig{ColorScheme: ColorSchemeAuto},
	}
}
