package ports

import (
	"context"

	"github.com/bnema/fanout/internal/domain"
)

type IdentityRepository interface {
	GetByName(ctx context.Context, name domain.IdentityName) (domain.Identity, error)
	List(ctx context.Context) ([]domain.Identity, error)
	Save(ctx context.Context, identity domain.Identity) error
	Delete(ctx context.Context, name domain.IdentityName) error
}
