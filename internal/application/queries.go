package application

import (
	"time"

	"github.com/bnema/fanout/internal/domain"
	"github.com/bnema/fanout/internal/rotation"
)

type IdentityStatus struct {
	Name       domain.IdentityName
	UseCount   int64
	LastUsedAt time.Time
	// NextFreeAt is zero for identities that can act immediately.
	NextFreeAt time.Time
	Ready      bool
}

type PoolStatus struct {
	Interval   time.Duration
	Identities []IdentityStatus
	TotalUses  int64
}

// Status builds a read-only view of the pool. It never changes selection state.
func Status(pool *rotation.Pool, interval time.Duration, now time.Time) PoolStatus {
	status := PoolStatus{Interval: interval}
	if pool == nil {
		return status
	}

	for _, identity := range pool.List() {
		entry := IdentityStatus{
			Name:       identity.Name,
			UseCount:   identity.UseCount,
			LastUsedAt: identity.LastUsedAt,
			Ready:      true,
		}
		if next, ok := pool.NextFree(identity.Name, interval); ok && next.After(now) {
			entry.NextFreeAt = next
			entry.Ready = false
		}

		status.TotalUses += identity.UseCount
		status.Identities = append(status.Identities, entry)
	}

	return status
}
