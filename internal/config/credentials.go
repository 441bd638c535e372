package config

import (
	"errors"
	apperr "provisioner/internal/error"
	"provisioner/internal/models"

	"github.com/zalando/go-keyring"
)

// KeyringService is the service name SSH passwords are filed under.
const KeyringService = "provisioner"

// ErrNoPassword is returned when the keyring holds no password for a login.
var ErrNoPassword = errors.New("no password stored for login")

// SavePassword stores the SSH password for user@host in the OS keyring.
func SavePassword(user, host, password string) error {
	if password == "" {
		return apperr.Newf(apperr.ValidationError, "password cannot be empty")
	}
	if err := keyring.Set(KeyringService, models.KeyringAccount(user, host), password); err != nil {
		return apperr.New(apperr.ConfigError, "failed to store password in keyring", err)
	}
	return nil
}

// LoadPassword returns the stored SSH password for user@host.
func LoadPassword(user, host string) (string, error) {
	password, err := keyring.Get(KeyringService, models.KeyringAccount(user, host))
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return "", ErrNoPassword
		}
		return "", apperr.New(apperr.ConfigError, "failed to read password from keyring", err)
	}
	return password, nil
}

// DeletePassword removes the stored password. A missing entry is not an error.
func DeletePassword(user, host string) error {
	err := keyring.Delete(KeyringService, models.KeyringAccount(user, host))
	if err != nil && !errors.Is(err, keyring.ErrNotFound) {
		return apperr.New(apperr.ConfigError, "failed to delete password from keyring", err)
	}
	return nil
}
