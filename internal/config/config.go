// internal/config/config.go

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	apperr "provisioner/internal/error"
	"provisioner/internal/models"
	"sort"

	"dario.cat/mergo"
	"github.com/mitchellh/go-homedir"
	"gopkg.in/yaml.v3"
)

const (
	DefaultConfigFileName = "deploy.yaml"
	DefaultConfigDir      = ".config/provisioner"
)

type Manager struct {
	configPath string
	config     *models.Config
}

// NewManager creates a manager for the given target file. An empty path
// selects the default location.
func NewManager(configPath string) *Manager {
	if configPath == "" {
		defaultPath, err := GetDefaultConfigPath()
		if err == nil {
			configPath = defaultPath
		} else {
			configPath = DefaultConfigFileName
		}
	}

	return &Manager{
		configPath: configPath,
		config:     &models.Config{},
	}
}

// Load reads and parses the target file.
func (m *Manager) Load() error {
	data, err := os.ReadFile(m.configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return apperr.Newf(apperr.ConfigError, "target file %s does not exist", m.configPath)
		}
		return apperr.New(apperr.FileError, "failed to read target file", err)
	}
	return m.Parse(data)
}

// Parse replaces the loaded configuration with the YAML in data.
func (m *Manager) Parse(data []byte) error {
	cfg := &models.Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return apperr.New(apperr.ConfigError, "failed to parse target file", err)
	}
	if len(cfg.Targets) == 0 {
		return apperr.Newf(apperr.ConfigError, "target file %s defines no targets", m.configPath)
	}
	m.config = cfg
	return nil
}

func (m *Manager) GetConfigPath() string {
	return m.configPath
}

// FindTarget returns the named target merged over the file's defaults and
// the built-in defaults, validated.
func (m *Manager) FindTarget(name string) (models.Target, error) {
	raw, ok := m.config.Targets[name]
	if !ok {
		return models.Target{}, apperr.Newf(apperr.ConfigError, "unknown target %q", name)
	}

	target := raw
	// Without dereferencing, a pointer set on the target is kept even when
	// it points at a zero value such as an explicit false.
	if err := mergo.Merge(&target, m.config.Defaults, mergo.WithoutDereference); err != nil {
		return models.Target{}, apperr.New(apperr.ConfigError, fmt.Sprintf("failed to merge defaults into %q", name), err)
	}
	target.Name = name
	target.ApplyDefaults()

	if err := target.Validate(); err != nil {
		return models.Target{}, err
	}
	return target, nil
}

// TargetNames lists the configured targets sorted by name.
func (m *Manager) TargetNames() []string {
	names := make([]string, 0, len(m.config.Targets))
	for name := range m.config.Targets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// GetDefaultConfigPath returns ./deploy.yaml if it exists, otherwise the
// file under the user's config directory.
func GetDefaultConfigPath() (string, error) {
	if _, err := os.Stat(DefaultConfigFileName); err == nil {
		return DefaultConfigFileName, nil
	}

	homeDir, err := homedir.Dir()
	if err != nil {
		return "", fmt.Errorf("could not get home directory: %v", err)
	}

	return filepath.Join(homeDir, DefaultConfigDir, DefaultConfigFileName), nil
}
