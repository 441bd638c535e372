package models

import (
	"fmt"

	"github.com/mitchellh/go-homedir"
)

// Auth says how to authenticate to a target's SSH server. Methods are tried
// in order: agent, key file, password from the keyring.
type Auth struct {
	KeyPath          string `yaml:"key_path"`
	Agent            *bool  `yaml:"agent"`
	Keyring          *bool  `yaml:"keyring"`
	AcceptNewHostKey *bool  `yaml:"accept_new_host_key"`
}

// The toggles are pointers so an explicit false on a target is told apart
// from an unset field when defaults are merged in.

// UseAgent reports whether the ssh-agent should be consulted.
func (a Auth) UseAgent() bool {
	return a.Agent == nil || *a.Agent
}

// UseKeyring reports whether a stored password should be offered.
func (a Auth) UseKeyring() bool {
	return a.Keyring != nil && *a.Keyring
}

// AcceptsNewHostKey reports whether an unknown host key is trusted and
// recorded on first use.
func (a Auth) AcceptsNewHostKey() bool {
	return a.AcceptNewHostKey != nil && *a.AcceptNewHostKey
}

// ResolvedKeyPath returns KeyPath with a leading ~ expanded.
func (a Auth) ResolvedKeyPath() (string, error) {
	if a.KeyPath == "" {
		return "", nil
	}
	path, err := homedir.Expand(a.KeyPath)
	if err != nil {
		return "", fmt.Errorf("could not expand key path %q: %v", a.KeyPath, err)
	}
	return path, nil
}

// KeyringAccount is the keyring entry name for the given login.
func KeyringAccount(user, host string) string {
	return fmt.Sprintf("%s@%s", user, host)
}
