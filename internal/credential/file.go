package credential

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"golang.org/x/oauth2"

	"repolink/internal/util"
)

var unsafeRef = regexp.MustCompile(`[^A-Za-z0-9._-]`)

// FileStore keeps one oauth2.Token JSON document per ref. Expired tokens
// are reported as ErrExpired so callers can route to re-authentication.
type FileStore struct {
	dir string
}

func NewFileStore(dir string) *FileStore {
	return &FileStore{dir: dir}
}

func (s *FileStore) path(ref string) string {
	return filepath.Join(s.dir, unsafeRef.ReplaceAllString(ref, "_")+".json")
}

func (s *FileStore) Token(ctx context.Context, ref string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	b, err := os.ReadFile(s.path(ref))
	if os.IsNotExist(err) {
		return "", fmt.Errorf("token file %q: %w", ref, ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("failed to read token: %w", err)
	}

	var token oauth2.Token
	if err := json.Unmarshal(b, &token); err != nil {
		return "", fmt.Errorf("failed to parse token: %w", err)
	}

	if !token.Valid() {
		return "", fmt.Errorf("token %q: %w", ref, ErrExpired)
	}

	return token.AccessToken, nil
}

func (s *FileStore) Set(_ context.Context, ref, token string) error {
	return s.SetToken(ref, &oauth2.Token{AccessToken: token, TokenType: "Bearer"})
}

func (s *FileStore) SetToken(ref string, token *oauth2.Token) error {
	b, err := json.Marshal(token)
	if err != nil {
		return err
	}

	if err := util.AtomicWriteMode(s.path(ref), bytes.NewReader(b), 0600); err != nil {
		return fmt.Errorf("failed to save token: %w", err)
	}

	return nil
}

func (s *FileStore) Delete(_ context.Context, ref string) error {
	return util.RemoveIfExists(s.path(ref))
}
