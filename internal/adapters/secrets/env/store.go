// Package env resolves secrets from environment variables, so tokens can be
// injected by a process supervisor without touching disk.
package env

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/bnema/fanout/internal/domain"
	"github.com/bnema/fanout/internal/ports"
)

const DefaultPrefix = "FANOUT_SECRET_"

var ErrReadOnly = errors.New("environment secret store is read-only")

type Store struct {
	prefix string
	lookup func(string) (string, bool)
}

var _ ports.SecretStore = (*Store)(nil)

func NewStore(prefix string) *Store {
	return &Store{prefix: prefix, lookup: os.LookupEnv}
}

// VarName maps a secret key such as "fanout/alpha/token" to
// FANOUT_SECRET_FANOUT_ALPHA_TOKEN.
func (s *Store) VarName(key string) string {
	var b strings.Builder
	b.WriteString(s.prefix)
	for _, r := range strings.TrimSpace(key) {
		switch {
		case r >= 'a' && r <= 'z':
			b.WriteRune(r - 'a' + 'A')
		case (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9'):
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}

func (s *Store) Get(ctx context.Context, key string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	name := s.VarName(key)
	value, ok := s.lookup(name)
	if !ok || value == "" {
		return "", fmt.Errorf("%w: %s is not set", domain.ErrSecretNotFound, name)
	}

	return value, nil
}

func (s *Store) Put(context.Context, string, string) error {
	return ErrReadOnly
}

func (s *Store) Delete(context.Context, string) error {
	return ErrReadOnly
}
