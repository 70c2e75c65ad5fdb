package rotation

import (
	"testing"
	"time"

	"github.com/bnema/fanout/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadValidatesIdentities(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		identities []domain.Identity
		wantErr    string
	}{
		{
			name:       "valid",
			identities: []domain.Identity{{Name: "x"}, {Name: "y"}},
		},
		{
			name:    "empty",
			wantErr: "no identities configured",
		},
		{
			name:       "blank name",
			identities: []domain.Identity{{Name: "x"}, {Name: "  "}},
			wantErr:    "identity name is required",
		},
		{
			name:       "duplicate name",
			identities: []domain.Identity{{Name: "x"}, {Name: "y"}, {Name: " x "}},
			wantErr:    `duplicate identity "x"`,
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			pool, err := Load(tc.identities)
			if tc.wantErr == "" {
				require.NoError(t, err)
				assert.Equal(t, len(tc.identities), pool.Len())
				return
			}
			require.ErrorIs(t, err, domain.ErrConfiguration)
			assert.ErrorContains(t, err, tc.wantErr)
		})
	}
}

func TestPoolListOrdersByLastUseThenName(t *testing.T) {
	t.Parallel()

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	pool, err := Load([]domain.Identity{
		{Name: "delta", LastUsedAt: base.Add(time.Minute)},
		{Name: "charlie"},
		{Name: "bravo", LastUsedAt: base},
		{Name: "alpha", LastUsedAt: base},
	})
	require.NoError(t, err)

	var names []domain.IdentityName
	for _, identity := range pool.List() {
		names = append(names, identity.Name)
	}
	assert.Equal(t, []domain.IdentityName{"charlie", "alpha", "bravo", "delta"}, names)
}

func TestPoolListReturnsDetachedCredentials(t *testing.T) {
	t.Parallel()

	pool, err := Load([]domain.Identity{{Name: "x", Credentials: domain.Credentials{"token": "secret"}}})
	require.NoError(t, err)

	listed := pool.List()
	listed[0].Credentials["token"] = "changed"

	got, err := pool.Get("x")
	require.NoError(t, err)
	assert.Equal(t, "secret", got.Credentials.Token())
}

func TestPoolGetUnknownIdentity(t *testing.T) {
	t.Parallel()

	pool, err := Load([]domain.Identity{{Name: "x"}})
	require.NoError(t, err)

	_, err = pool.Get("nope")
	require.ErrorIs(t, err, domain.ErrIdentityNotFound)
}

func TestPoolNextFree(t *testing.T) {
	t.Parallel()

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	pool, err := Load([]domain.Identity{{Name: "x", LastUsedAt: base}, {Name: "y"}})
	require.NoError(t, err)

	next, ok := pool.NextFree("x", time.Minute)
	require.True(t, ok)
	assert.Equal(t, base.Add(time.Minute), next)

	next, ok = pool.NextFree("y", time.Minute)
	require.True(t, ok)
	assert.True(t, next.IsZero())

	_, ok = pool.NextFree("z", time.Minute)
	assert.False(t, ok)
}
