// Package credential resolves access tokens for remote repositories. The
// engine only ever reads tokens through Service and never persists them.
package credential

import (
	"context"
	"errors"
	"fmt"
)

var (
	ErrNotFound = errors.New("credential not found")
	ErrExpired  = errors.New("credential expired")
)

type Service interface {
	Token(ctx context.Context, ref string) (string, error)
}

type Store interface {
	Service
	Set(ctx context.Context, ref, token string) error
	Delete(ctx context.Context, ref string) error
}

// Chain asks each service in order and returns the first token found. A
// service failing with anything other than ErrNotFound stops the chain.
type Chain []Service

func (c Chain) Token(ctx context.Context, ref string) (string, error) {
	for _, s := range c {
		token, err := s.Token(ctx, ref)
		if err == nil {
			return token, nil
		}
		if !errors.Is(err, ErrNotFound) {
			return "", err
		}
	}

	return "", fmt.Errorf("%q: %w", ref, ErrNotFound)
}
