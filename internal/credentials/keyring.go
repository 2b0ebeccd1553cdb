// Package credentials stores the server password in the OS keyring
// (macOS Keychain, Windows Credential Manager, or Linux Secret Service).
package credentials

import (
	"errors"
	"fmt"

	"github.com/zalando/go-keyring"
)

// DefaultService is the keyring service name entries are filed under.
const DefaultService = "newssync"

// ErrNotFound is returned when no password is stored for the user.
var ErrNotFound = errors.New("no password stored in keyring")

// Keyring reads and writes passwords for one service.
type Keyring struct {
	Service string
}

// New returns a Keyring for service, or DefaultService when empty.
func New(service string) *Keyring {
	if service == "" {
		service = DefaultService
	}
	return &Keyring{Service: service}
}

// account keys entries by server and user so two servers can share a
// username.
func account(server, user string) string {
	return user + "@" + server
}

// Save stores password for user on server.
func (k *Keyring) Save(server, user, password string) error {
	if err := keyring.Set(k.Service, account(server, user), password); err != nil {
		return fmt.Errorf("saving password to keyring: %w", err)
	}
	return nil
}

// Load returns the stored password for user on server.
func (k *Keyring) Load(server, user string) (string, error) {
	pw, err := keyring.Get(k.Service, account(server, user))
	if errors.Is(err, keyring.ErrNotFound) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("loading password from keyring: %w", err)
	}
	return pw, nil
}

// Delete removes the stored password. Deleting a missing entry is not an
// error.
func (k *Keyring) Delete(server, user string) error {
	err := keyring.Delete(k.Service, account(server, user))
	if err != nil && !errors.Is(err, keyring.ErrNotFound) {
		return fmt.Errorf("deleting password from keyring: %w", err)
	}
	return nil
}
