// internal/models/target.go

package models

import (
	apperr "provisioner/internal/error"
)

const (
	DefaultSSHPort       = 22
	DefaultPython        = "python3"
	DefaultSchemaCommand = "migrate"
	DefaultRequirements  = "requirements.txt"
	DefaultHomeRoot      = "/home"
	DefaultFuncTests     = "functional_tests"
)

// Target is one named deployment destination, as read from the target file.
type Target struct {
	Name            string   `yaml:"-"`
	Host            string   `yaml:"host"`
	SSHPort         int      `yaml:"ssh_port"`
	User            string   `yaml:"user"`
	AppName         string   `yaml:"app_name"`
	AppPort         int      `yaml:"app_port"`
	URL             string   `yaml:"url"`
	Python          string   `yaml:"python"`
	RepoURL         string   `yaml:"repo_url"`
	ProjectPkg      string   `yaml:"project_pkg"`
	SchemaCommand   string   `yaml:"schema_command"`
	Requirements    string   `yaml:"requirements"`
	HomeRoot        string   `yaml:"home_root"`
	Auth            Auth     `yaml:"auth"`
	TestApps        []string `yaml:"test_apps"`
	FunctionalTests string   `yaml:"functional_tests"`
}

// Config is the whole target file.
type Config struct {
	Defaults Target            `yaml:"defaults"`
	Targets  map[string]Target `yaml:"targets"`
}

// ApplyDefaults fills the optional fields that are still unset.
func (t *Target) ApplyDefaults() {
	if t.SSHPort == 0 {
		t.SSHPort = DefaultSSHPort
	}
	if t.Python == "" {
		t.Python = DefaultPython
	}
	if t.SchemaCommand == "" {
		t.SchemaCommand = DefaultSchemaCommand
	}
	if t.Requirements == "" {
		t.Requirements = DefaultRequirements
	}
	if t.HomeRoot == "" {
		t.HomeRoot = DefaultHomeRoot
	}
	if len(t.TestApps) == 0 {
		t.TestApps = []string{"lists"}
	}
	if t.FunctionalTests == "" {
		t.FunctionalTests = DefaultFuncTests
	}
	if t.Auth.Agent == nil {
		agent := true
		t.Auth.Agent = &agent
	}
}

// Validate reports the first missing identity field as a ConfigError.
func (t *Target) Validate() error {
	required := []struct {
		name  string
		empty bool
	}{
		{"host", t.Host == ""},
		{"user", t.User == ""},
		{"app_name", t.AppName == ""},
		{"app_port", t.AppPort == 0},
		{"url", t.URL == ""},
		{"repo_url", t.RepoURL == ""},
		{"project_pkg", t.ProjectPkg == ""},
	}
	for _, f := range required {
		if f.empty {
			return apperr.Newf(apperr.ConfigError, "target %q: missing required field %q", t.Name, f.name)
		}
	}
	if t.AppPort < 0 || t.AppPort > 65535 {
		return apperr.Newf(apperr.ValidationError, "target %q: app_port %d out of range", t.Name, t.AppPort)
	}
	if t.SSHPort < 0 || t.SSHPort > 65535 {
		return apperr.Newf(apperr.ValidationError, "target %q: ssh_port %d out of range", t.Name, t.SSHPort)
	}
	return nil
}
