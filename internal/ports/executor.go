package ports

import (
	"context"

	"github.com/bnema/fanout/internal/domain"
)

// Executor performs one remote action for one identity. A returned error is
// recorded as a failed attempt; it never aborts a dispatch.
type Executor interface {
	Perform(ctx context.Context, creds domain.Credentials, target domain.Target) (domain.Result, error)
}

type ExecutorFunc func(ctx context.Context, creds domain.Credentials, target domain.Target) (domain.Result, error)

func (f ExecutorFunc) Perform(ctx context.Context, creds domain.Credentials, target domain.Target) (domain.Result, error) {
	return f(ctx, creds, target)
}
