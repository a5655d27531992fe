package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ErrSecretsPermissions indicates the secrets file is group or world
// accessible and was refused.
var ErrSecretsPermissions = errors.New("secrets file must not be group or world accessible")

// Secrets holds credentials for downstream collaborators. The crawl engine
// never reads these; only the serve command consumes them today.
type Secrets struct {
	HTTPBasicUser     string `yaml:"http-basic-user"`
	HTTPBasicPassword string `yaml:"http-basic-password"`
}

// LoadSecrets reads and validates the secrets file. The file must be owned
// by the invoking user with no group/other permission bits (0600 or
// stricter).
func LoadSecrets(path string) (*Secrets, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat secrets file: %w", err)
	}
	if info.Mode().Perm()&0o077 != 0 {
		return nil, fmt.Errorf("%w: %s has mode %04o", ErrSecretsPermissions, path, info.Mode().Perm())
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read secrets file: %w", err)
	}

	s := &Secrets{}
	if err := yaml.Unmarshal(data, s); err != nil {
		return nil, fmt.Errorf("failed to parse secrets file: %w", err)
	}
	return s, nil
}
