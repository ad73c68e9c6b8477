package credential

import (
	"context"
	"errors"
	"fmt"

	"github.com/zalando/go-keyring"
)

const KeyringService = "repolink"

type KeyringStore struct {
	service string
}

func NewKeyringStore() *KeyringStore {
	return &KeyringStore{service: KeyringService}
}

func (s *KeyringStore) Token(ctx context.Context, ref string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	token, err := keyring.Get(s.service, ref)
	if errors.Is(err, keyring.ErrNotFound) {
		return "", fmt.Errorf("keyring %q: %w", ref, ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("failed to read keyring: %w", err)
	}

	return token, nil
}

func (s *KeyringStore) Set(_ context.Context, ref, token string) error {
	if err := keyring.Set(s.service, ref, token); err != nil {
		return fmt.Errorf("failed to write keyring: %w", err)
	}
	return nil
}

func (s *KeyringStore) Delete(_ context.Context, ref string) error {
	err := keyring.Delete(s.service, ref)
	if errors.Is(err, keyring.ErrNotFound) {
		return fmt.Errorf("keyring %q: %w", ref, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("failed to delete from keyring: %w", err)
	}
	return nil
}
