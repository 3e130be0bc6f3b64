// Package credentials stores remote passwords outside the config file, in the
// operating system keychain.
package credentials

import (
	"errors"
	"net/url"
	"strings"
	gosync "sync"

	"github.com/zalando/go-keyring"

	"taskfold/internal/errs"
)

// Service is the keychain service name secrets are filed under.
const Service = "taskfold"

// ErrNotFound is returned when no secret exists for a key.
var ErrNotFound = errs.New(errs.NotFound, "credential not found")

// Store retrieves secrets by key.
type Store interface {
	Get(key string) (string, error)
	Set(key, secret string) error
	Delete(key string) error
}

// Key derives the credential key for a remote: "<username>@<host>".
func Key(remoteURL, username string) (string, error) {
	u, err := url.Parse(remoteURL)
	if err != nil || u.Host == "" {
		return "", errs.Errorf(errs.Validation, "invalid remote url %q", remoteURL)
	}
	if username == "" && u.User != nil {
		username = u.User.Username()
	}
	if username == "" {
		return "", errs.New(errs.Validation, "remote username is required")
	}
	return username + "@" + strings.ToLower(u.Host), nil
}

// Keyring is a Store backed by the OS keychain.
type Keyring struct {
	service string
}

// NewKeyring returns a Store using the default service name.
func NewKeyring() *Keyring {
	return &Keyring{service: Service}
}

func (k *Keyring) Get(key string) (string, error) {
	secret, err := keyring.Get(k.service, key)
	if errors.Is(err, keyring.ErrNotFound) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", errs.Wrap(errs.Config, "read keychain", err)
	}
	return secret, nil
}

func (k *Keyring) Set(key, secret string) error {
	if key == "" {
		return errs.New(errs.Validation, "credential key is required")
	}
	return errs.Wrap(errs.Config, "write keychain", keyring.Set(k.service, key, secret))
}

func (k *Keyring) Delete(key string) error {
	err := keyring.Delete(k.service, key)
	if errors.Is(err, keyring.ErrNotFound) {
		return ErrNotFound
	}
	return errs.Wrap(errs.Config, "delete from keychain", err)
}

// Memory is a Store held in process memory.
type Memory struct {
	mu      gosync.Mutex
	secrets map[string]string
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{secrets: map[string]string{}}
}

func (m *Memory) Get(key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.secrets[key]
	if !ok {
		return "", ErrNotFound
	}
	return s, nil
}

func (m *Memory) Set(key, secret string) error {
	if key == "" {
		return errs.New(errs.Validation, "credential key is required")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.secrets[key] = secret
	return nil
}

func (m *Memory) Delete(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.secrets[key]; !ok {
		return ErrNotFound
	}
	delete(m.secrets, key)
	return nil
}
