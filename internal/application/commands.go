package application

import (
	"fmt"
	"strings"

	"github.com/bnema/fanout/internal/domain"
)

type AddIdentityCommand struct {
	Name        domain.IdentityName
	SecretKey   string
	SecretValue string
	// Values are stored inline in the identities file next to the secret reference.
	Values map[string]string
}

func (c AddIdentityCommand) Validate() error {
	if strings.TrimSpace(string(c.Name)) == "" {
		return fmt.Errorf("%w: identity name is required", domain.ErrInvalidRequest)
	}
	if strings.TrimSpace(c.SecretKey) == "" {
		return fmt.Errorf("%w: secret key is required", domain.ErrInvalidRequest)
	}
	if _, ok := c.Values[domain.CredentialToken]; ok {
		return fmt.Errorf("%w: %q is reserved for the stored secret", domain.ErrInvalidRequest, domain.CredentialToken)
	}

	return nil
}

type RemoveIdentityCommand struct {
	Name domain.IdentityName
}
