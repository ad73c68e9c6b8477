package credential

import (
	"context"
	"fmt"
	"os"
	"regexp"
	"strings"
)

const EnvToken = "REPOLINK_TOKEN"

var envUnsafe = regexp.MustCompile(`[^A-Za-z0-9]`)

// EnvService serves REPOLINK_TOKEN_<REF> first and REPOLINK_TOKEN as a
// fallback for any ref.
type EnvService struct {
	lookup func(string) (string, bool)
}

func NewEnvService() *EnvService {
	return &EnvService{lookup: os.LookupEnv}
}

func (s *EnvService) Token(_ context.Context, ref string) (string, error) {
	key := EnvToken + "_" + strings.ToUpper(envUnsafe.ReplaceAllString(ref, "_"))
	if v, ok := s.lookup(key); ok && v != "" {
		return v, nil
	}
	if v, ok := s.lookup(EnvToken); ok && v != "" {
		return v, nil
	}

	return "", fmt.Errorf("env %q: %w", ref, ErrNotFound)
}
