package rotation

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/bnema/fanout/internal/domain"
)

// Pool owns the identities for the lifetime of the process. Reads go through
// List; selection state is only changed by a Selector.
type Pool struct {
	mu      sync.Mutex
	entries []*entry
}

type entry struct {
	identity domain.Identity
	// heldUntil is the latest instant handed out to a pending or finished
	// selection. It is never earlier than identity.LastUsedAt.
	heldUntil time.Time
}

func (e *entry) lastUse() time.Time {
	if e.heldUntil.After(e.identity.LastUsedAt) {
		return e.heldUntil
	}
	return e.identity.LastUsedAt
}

func Load(identities []domain.Identity) (*Pool, error) {
	if len(identities) == 0 {
		return nil, fmt.Errorf("%w: no identities configured", domain.ErrConfiguration)
	}

	seen := make(map[domain.IdentityName]struct{}, len(identities))
	entries := make([]*entry, 0, len(identities))
	for _, identity := range identities {
		identity.Name = domain.IdentityName(strings.TrimSpace(string(identity.Name)))
		if err := identity.Validate(); err != nil {
			return nil, err
		}
		if _, ok := seen[identity.Name]; ok {
			return nil, fmt.Errorf("%w: duplicate identity %q", domain.ErrConfiguration, identity.Name)
		}
		seen[identity.Name] = struct{}{}

		identity.Credentials = identity.Credentials.Clone()
		entries = append(entries, &entry{identity: identity, heldUntil: identity.LastUsedAt})
	}

	p := &Pool{entries: entries}
	p.sortLocked()

	return p, nil
}

func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	return len(p.entries)
}

// List returns a snapshot ordered by last use, oldest first, ties by name.
func (p *Pool) List() []domain.Identity {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]domain.Identity, 0, len(p.entries))
	for _, e := range p.entries {
		identity := e.identity
		identity.Credentials = identity.Credentials.Clone()
		out = append(out, identity)
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].LastUsedAt.Equal(out[j].LastUsedAt) {
			return out[i].Name < out[j].Name
		}
		return out[i].LastUsedAt.Before(out[j].LastUsedAt)
	})

	return out
}

func (p *Pool) Get(name domain.IdentityName) (domain.Identity, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, e := range p.entries {
		if e.identity.Name == name {
			identity := e.identity
			identity.Credentials = identity.Credentials.Clone()
			return identity, nil
		}
	}

	return domain.Identity{}, fmt.Errorf("%w: %s", domain.ErrIdentityNotFound, name)
}

// NextFree reports when name may be selected again without waiting.
func (p *Pool) NextFree(name domain.IdentityName, interval time.Duration) (time.Time, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, e := range p.entries {
		if e.identity.Name != name {
			continue
		}
		last := e.lastUse()
		if last.IsZero() {
			return time.Time{}, true
		}
		return last.Add(interval), true
	}

	return time.Time{}, false
}

// sortLocked orders entries by eligibility. Callers hold p.mu.
func (p *Pool) sortLocked() {
	sort.SliceStable(p.entries, func(i, j int) bool {
		left, right := p.entries[i].lastUse(), p.entries[j].lastUse()
		if left.Equal(right) {
			return p.entries[i].identity.Name < p.entries[j].identity.Name
		}
		return left.Before(right)
	})
}
