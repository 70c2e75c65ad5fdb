package domain

import (
	"fmt"
	"strings"
	"time"
)

type IdentityName string

// Credentials is the opaque bundle handed to the executor. The rotation core
// never reads it.
type Credentials map[string]string

// CredentialToken is the key under which a resolved secret is stored.
const CredentialToken = "token"

func (c Credentials) Token() string {
	return c[CredentialToken]
}

// Clone returns a copy so executors cannot mutate pool state.
func (c Credentials) Clone() Credentials {
	if c == nil {
		return nil
	}

	out := make(Credentials, len(c))
	for k, v := range c {
		out[k] = v
	}
	return out
}

type Identity struct {
	Name        IdentityName
	Credentials Credentials
	SecretRef   string
	// LastUsedAt is zero until the identity is selected for the first time.
	LastUsedAt time.Time
	UseCount   int64
}

func (i Identity) NeverUsed() bool {
	return i.LastUsedAt.IsZero()
}

func (i Identity) Validate() error {
	if strings.TrimSpace(string(i.Name)) == "" {
		return fmt.Errorf("%w: identity name is required", ErrConfiguration)
	}

	return nil
}
