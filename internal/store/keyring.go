package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/zalando/go-keyring"
)

// Keyring is a KV backed by the operating system keyring. Each key is
// stored as a separate secret under the same service name.
type Keyring struct {
	service string
}

// NewKeyring returns a keyring KV that stores secrets under service.
func NewKeyring(service string) *Keyring {
	return &Keyring{service: service}
}

// Get returns the secret stored under key.
func (k *Keyring) Get(_ context.Context, key string) (string, error) {
	value, err := keyring.Get(k.service, key)
	if errors.Is(err, keyring.ErrNotFound) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("keyring get %q: %w", key, err)
	}
	return value, nil
}

// Set stores value under key.
func (k *Keyring) Set(_ context.Context, key, value string) error {
	if err := keyring.Set(k.service, key, value); err != nil {
		return fmt.Errorf("keyring set %q: %w", key, err)
	}
	return nil
}

// Delete removes key. Deleting a missing key is not an error.
func (k *Keyring) Delete(_ context.Context, key string) error {
	err := keyring.Delete(k.service, key)
	if err != nil && !errors.Is(err, keyring.ErrNotFound) {
		return fmt.Errorf("keyring delete %q: %w", key, err)
	}
	return nil
}
