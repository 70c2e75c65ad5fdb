package chain

import (
	"context"
	"errors"
	"fmt"

	envstore "github.com/bnema/fanout/internal/adapters/secrets/env"
	filestore "github.com/bnema/fanout/internal/adapters/secrets/file"
	passstore "github.com/bnema/fanout/internal/adapters/secrets/pass"
	"github.com/bnema/fanout/internal/domain"
	"github.com/bnema/fanout/internal/ports"
)

// Backend is one named link of the chain. Names only appear in errors.
type Backend struct {
	Name  string
	Store ports.SecretStore
}

// Store tries each backend in order. Reads return the first hit, writes land
// in the first backend that accepts them. Read-only backends are skipped for
// writes.
type Store struct {
	backends []Backend
}

var _ ports.SecretStore = (*Store)(nil)

var errNoBackends = errors.New("secret store chain has no backends")

func NewStore(backends ...Backend) (*Store, error) {
	if len(backends) == 0 {
		return nil, errNoBackends
	}
	for i, backend := range backends {
		if backend.Store == nil {
			return nil, fmt.Errorf("secret store backend %d (%s) is nil", i, backend.Name)
		}
	}

	return &Store{backends: backends}, nil
}

// NewDefault reads environment overrides first, then pass, then files under
// fileRoot. Writes go to pass and fall back to files.
func NewDefault(fileRoot string) (*Store, error) {
	return NewStore(
		Backend{Name: "env", Store: envstore.NewStore(envstore.DefaultPrefix)},
		Backend{Name: "pass", Store: passstore.NewStore()},
		Backend{Name: "file", Store: filestore.NewStore(fileRoot)},
	)
}

func (s *Store) Put(ctx context.Context, key string, value string) error {
	return s.write(ctx, "put", func(store ports.SecretStore) error {
		return store.Put(ctx, key, value)
	})
}

func (s *Store) Delete(ctx context.Context, key string) error {
	return s.write(ctx, "delete", func(store ports.SecretStore) error {
		return store.Delete(ctx, key)
	})
}

func (s *Store) Get(ctx context.Context, key string) (string, error) {
	var errs []error
	for _, backend := range s.backends {
		value, err := backend.Store.Get(ctx, key)
		if err == nil {
			return value, nil
		}
		if shouldSkipFallback(err) {
			return "", err
		}
		errs = append(errs, fmt.Errorf("%s backend get failed: %w", backend.Name, err))
	}

	return "", fmt.Errorf("%w: %q: %w", domain.ErrSecretNotFound, key, errors.Join(errs...))
}

func (s *Store) write(ctx context.Context, op string, fn func(ports.SecretStore) error) error {
	var errs []error
	for _, backend := range s.backends {
		err := fn(backend.Store)
		if err == nil {
			return nil
		}
		if shouldSkipFallback(err) {
			return err
		}
		if errors.Is(err, envstore.ErrReadOnly) {
			continue
		}
		errs = append(errs, fmt.Errorf("%s backend %s failed: %w", backend.Name, op, err))
	}

	if len(errs) == 0 {
		return fmt.Errorf("secret %s: no writable backend", op)
	}
	return errors.Join(errs...)
}

func shouldSkipFallback(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
