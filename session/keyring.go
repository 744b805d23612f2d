package session

import (
	"errors"
	"fmt"

	"github.com/zalando/go-keyring"
)

// KeyringStore keeps values in the operating system keyring. Each value is a
// keyring entry of service, with the user field set to "<origin> <key>".
type KeyringStore struct {
	service string
	origin  string
}

// NewKeyringStore returns a KeyringStore for service scoped to the origin of
// originURL.
func NewKeyringStore(service, originURL string) (*KeyringStore, error) {
	if service == "" {
		return nil, errors.New("keyring service name cannot be empty")
	}
	origin, err := Origin(originURL)
	if err != nil {
		return nil, err
	}
	return &KeyringStore{service: service, origin: origin}, nil
}

func (s *KeyringStore) entry(key string) string {
	return s.origin + " " + key
}

func (s *KeyringStore) Get(key string) (string, error) {
	value, err := keyring.Get(s.service, s.entry(key))
	if errors.Is(err, keyring.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read %s from keyring: %w", key, err)
	}
	return value, nil
}

func (s *KeyringStore) Set(key, value string) error {
	if err := keyring.Set(s.service, s.entry(key), value); err != nil {
		return fmt.Errorf("failed to write %s to keyring: %w", key, err)
	}
	return nil
}

func (s *KeyringStore) Delete(key string) error {
	err := keyring.Delete(s.service, s.entry(key))
	if err != nil && !errors.Is(err, keyring.ErrNotFound) {
		return fmt.Errorf("failed to delete %s from keyring: %w", key, err)
	}
	return nil
}
