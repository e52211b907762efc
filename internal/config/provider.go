// SPDX-License-Identifier: MPL-2.0

package config

import "context"

// LoadOptions select the configuration source.
type LoadOptions struct {
	// ConfigFilePath loads exactly this file when set.
	ConfigFilePath string
	// ConfigDirPath replaces the platform configuration directory.
	ConfigDirPath string
	// LookupEnv resolves DROIDPACK_* overrides; os.LookupEnv when nil.
	LookupEnv func(string) (string, bool)
}

// Provider loads configuration.
type Provider interface {
	Load(ctx context.Context, opts LoadOptions) (*Config, error)
}

type fileProvider struct{}

// NewProvider returns the file-backed provider.
func NewProvider() Provider {
	return &fileProvider{}
}

// Load implements Provider.
func (p *fileProvider) Load(ctx context.Context, opts LoadOptions) (*Config, error) {
	cfg, _, err := loadWithOptions(ctx, opts)
	return cfg, err
}

// LoadWithSource is Load that also returns the file the configuration came
// from, or "" when only defaults and the environment applied.
func LoadWithSource(ctx context.Context, opts LoadOptions) (*Config, string, error) {
	return loadWithOptions(ctx, opts)
}
