package env

import (
	"context"
	"testing"

	"github.com/bnema/fanout/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVarName(t *testing.T) {
	t.Parallel()

	store := NewStore(DefaultPrefix)
	assert.Equal(t, "FANOUT_SECRET_FANOUT_ALPHA_TOKEN", store.VarName("fanout/alpha/token"))
	assert.Equal(t, "FANOUT_SECRET_BOT_1", store.VarName(" bot-1 "))
}

func TestStoreGet(t *testing.T) {
	t.Parallel()

	store := &Store{prefix: DefaultPrefix, lookup: func(name string) (string, bool) {
		if name == "FANOUT_SECRET_ALPHA" {
			return "token-a", true
		}
		if name == "FANOUT_SECRET_EMPTY" {
			return "", true
		}
		return "", false
	}}

	value, err := store.Get(context.Background(), "alpha")
	require.NoError(t, err)
	assert.Equal(t, "token-a", value)

	_, err = store.Get(context.Background(), "bravo")
	require.ErrorIs(t, err, domain.ErrSecretNotFound)
	assert.ErrorContains(t, err, "FANOUT_SECRET_BRAVO")

	_, err = store.Get(context.Background(), "empty")
	require.ErrorIs(t, err, domain.ErrSecretNotFound)
}

func TestStoreReadsProcessEnvironment(t *testing.T) {
	t.Setenv("FANOUT_SECRET_CHARLIE", "from-env")

	value, err := NewStore(DefaultPrefix).Get(context.Background(), "charlie")
	require.NoError(t, err)
	assert.Equal(t, "from-env", value)
}

func TestStoreIsReadOnly(t *testing.T) {
	t.Parallel()

	store := NewStore(DefaultPrefix)
	require.ErrorIs(t, store.Put(context.Background(), "k", "v"), ErrReadOnly)
	require.ErrorIs(t, store.Delete(context.Background(), "k"), ErrReadOnly)
}
