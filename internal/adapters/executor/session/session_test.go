package session

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/bnema/fanout/internal/adapters/executor/httpexec"
	"github.com/bnema/fanout/internal/domain"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestPool(t *testing.T, connect ConnectFunc) (*Pool, func() []string) {
	t.Helper()

	var (
		mu     sync.Mutex
		tokens []string
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		tokens = append(tokens, r.Header.Get("Authorization"))
		mu.Unlock()
		_, _ = w.Write([]byte("ok"))
	}))
	t.Cleanup(server.Close)

	base, err := httpexec.New(httpexec.Config{Endpoint: server.URL})
	require.NoError(t, err)

	pool := NewPool(base, Options{Connect: connect, Logger: zerolog.Nop()})
	t.Cleanup(func() { _ = pool.Close() })

	seen := func() []string {
		mu.Lock()
		defer mu.Unlock()
		return append([]string(nil), tokens...)
	}
	return pool, seen
}

func identities(names ...string) []domain.Identity {
	out := make([]domain.Identity, 0, len(names))
	for _, name := range names {
		out = append(out, domain.Identity{
			Name:        domain.IdentityName(name),
			Credentials: domain.Credentials{domain.CredentialToken: "token-" + name},
		})
	}
	return out
}

func TestOpenConnectsEveryIdentityAndSignalsReady(t *testing.T) {
	t.Parallel()

	var (
		mu        sync.Mutex
		connected []domain.IdentityName
	)
	pool, _ := newTestPool(t, func(_ context.Context, client *http.Client, identity domain.Identity) error {
		assert.NotNil(t, client)
		mu.Lock()
		connected = append(connected, identity.Name)
		mu.Unlock()
		return nil
	})

	select {
	case <-pool.Ready():
		t.Fatal("ready before open")
	default:
	}

	require.NoError(t, pool.Open(context.Background(), identities("alpha", "bravo", "charlie")))

	<-pool.Ready()
	assert.Equal(t, 3, pool.Len())
	assert.ElementsMatch(t, []domain.IdentityName{"alpha", "bravo", "charlie"}, connected)
}

func TestPerformRoutesByCredentials(t *testing.T) {
	t.Parallel()

	pool, tokens := newTestPool(t, nil)
	require.NoError(t, pool.Open(context.Background(), identities("alpha", "bravo")))

	result, err := pool.Perform(context.Background(), domain.Credentials{"token": "token-bravo"}, "https://example.com")
	require.NoError(t, err)
	assert.True(t, result.Succeeded)
	assert.Equal(t, []string{"Bearer token-bravo"}, tokens())

	_, err = pool.Perform(context.Background(), domain.Credentials{"token": "unknown"}, "https://example.com")
	require.ErrorIs(t, err, ErrNoSession)
	require.ErrorIs(t, err, domain.ErrExecutor)
}

func TestOpenFailureClosesPoolForBusiness(t *testing.T) {
	t.Parallel()

	dialErr := errors.New("handshake refused")
	pool, _ := newTestPool(t, func(_ context.Context, _ *http.Client, identity domain.Identity) error {
		if identity.Name == "bravo" {
			return dialErr
		}
		return nil
	})

	err := pool.Open(context.Background(), identities("alpha", "bravo"))
	require.ErrorIs(t, err, dialErr)
	assert.ErrorContains(t, err, "bravo")
	assert.Equal(t, 0, pool.Len())

	select {
	case <-pool.Ready():
		t.Fatal("ready after failed open")
	default:
	}
}

func TestOpenRejectsSharedCredentials(t *testing.T) {
	t.Parallel()

	pool, _ := newTestPool(t, nil)
	shared := []domain.Identity{
		{Name: "alpha", Credentials: domain.Credentials{"token": "same"}},
		{Name: "bravo", Credentials: domain.Credentials{"token": "same"}},
	}

	err := pool.Open(context.Background(), shared)
	require.ErrorIs(t, err, domain.ErrConfiguration)
}

func TestOpenTwiceFails(t *testing.T) {
	t.Parallel()

	pool, _ := newTestPool(t, nil)
	require.NoError(t, pool.Open(context.Background(), identities("alpha")))
	require.ErrorIs(t, pool.Open(context.Background(), identities("alpha")), ErrReopenPool)
}

func TestPerformBeforeOpenAndAfterClose(t *testing.T) {
	t.Parallel()

	pool, _ := newTestPool(t, nil)

	_, err := pool.Perform(context.Background(), domain.Credentials{"token": "token-alpha"}, "https://example.com")
	require.ErrorIs(t, err, ErrNotOpened)

	require.NoError(t, pool.Open(context.Background(), identities("alpha")))
	require.NoError(t, pool.Close())
	require.NoError(t, pool.Close())

	_, err = pool.Perform(context.Background(), domain.Credentials{"token": "token-alpha"}, "https://example.com")
	require.ErrorIs(t, err, ErrClosed)
	require.ErrorIs(t, pool.Open(context.Background(), identities("alpha")), ErrClosed)
}
