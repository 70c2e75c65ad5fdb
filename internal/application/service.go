package application

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/bnema/fanout/internal/domain"
	"github.com/bnema/fanout/internal/ports"
)

// IdentityService manages the configured identities and their secrets.
type IdentityService struct {
	repo  ports.IdentityRepository
	store ports.SecretStore
}

func NewIdentityService(repo ports.IdentityRepository, store ports.SecretStore) *IdentityService {
	return &IdentityService{repo: repo, store: store}
}

func (s *IdentityService) Add(ctx context.Context, cmd AddIdentityCommand) error {
	if err := cmd.Validate(); err != nil {
		return err
	}
	cmd.Name = domain.IdentityName(strings.TrimSpace(string(cmd.Name)))

	identity, err := s.repo.GetByName(ctx, cmd.Name)
	if err != nil {
		if !errors.Is(err, domain.ErrIdentityNotFound) {
			return fmt.Errorf("get identity by name: %w", err)
		}
		identity = domain.Identity{Name: cmd.Name}
	}
	previousSecretRef := identity.SecretRef

	if err := s.store.Put(ctx, cmd.SecretKey, cmd.SecretValue); err != nil {
		return fmt.Errorf("store identity secret: %w", err)
	}

	identity.SecretRef = cmd.SecretKey
	identity.Credentials = domain.Credentials{}
	for k, v := range cmd.Values {
		identity.Credentials[k] = v
	}

	if err := s.repo.Save(ctx, identity); err != nil {
		if rollbackErr := s.store.Delete(ctx, cmd.SecretKey); rollbackErr != nil {
			return fmt.Errorf("save identity and rollback stored secret: %w", errors.Join(err, rollbackErr))
		}
		return fmt.Errorf("save identity: %w", err)
	}

	if previousSecretRef != "" && previousSecretRef != cmd.SecretKey {
		if err := s.store.Delete(ctx, previousSecretRef); err != nil {
			return fmt.Errorf("delete previous identity secret: %w", err)
		}
	}

	return nil
}

func (s *IdentityService) Remove(ctx context.Context, cmd RemoveIdentityCommand) error {
	identity, err := s.repo.GetByName(ctx, cmd.Name)
	if err != nil {
		return fmt.Errorf("get identity by name: %w", err)
	}

	if err := s.repo.Delete(ctx, identity.Name); err != nil {
		return fmt.Errorf("delete identity: %w", err)
	}

	if identity.SecretRef == "" {
		return nil
	}

	if err := s.store.Delete(ctx, identity.SecretRef); err != nil {
		if restoreErr := s.repo.Save(ctx, identity); restoreErr != nil {
			return fmt.Errorf("delete identity secret and restore identity: %w", errors.Join(err, restoreErr))
		}
		return fmt.Errorf("delete identity secret: %w", err)
	}

	return nil
}

// List returns configured identities without resolving their secrets.
func (s *IdentityService) List(ctx context.Context) ([]domain.Identity, error) {
	identities, err := s.repo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list identities: %w", err)
	}

	return identities, nil
}

// LoadIdentities resolves every identity's secret into its credentials. The
// result is ready for rotation.Load.
func (s *IdentityService) LoadIdentities(ctx context.Context) ([]domain.Identity, error) {
	identities, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	if len(identities) == 0 {
		return nil, fmt.Errorf("%w: no identities configured, add one with `fanout identity add`", domain.ErrConfiguration)
	}

	resolved := make([]domain.Identity, 0, len(identities))
	for _, identity := range identities {
		creds := identity.Credentials.Clone()
		if creds == nil {
			creds = domain.Credentials{}
		}

		if ref := strings.TrimSpace(identity.SecretRef); ref != "" {
			secret, err := s.store.Get(ctx, ref)
			if err != nil {
				return nil, fmt.Errorf("%w: identity %s: load secret: %w", domain.ErrConfiguration, identity.Name, err)
			}
			creds[domain.CredentialToken] = secret
		}

		identity.Credentials = creds
		resolved = append(resolved, identity)
	}

	return resolved, nil
}
