package rotation

import (
	"context"
	"fmt"
	"time"

	"github.com/bnema/fanout/internal/domain"
	"github.com/bnema/fanout/internal/ports"
	"github.com/rs/zerolog"
)

const DefaultInterval = 60 * time.Second

type Options struct {
	// Interval is the minimum time between two selections of one identity.
	Interval time.Duration
	Clock    ports.Clock
	Logger   zerolog.Logger
	// OnSelect observes the scheduling delay of every finalized selection.
	OnSelect func(name domain.IdentityName, wait time.Duration)
}

// Selector hands out the least recently used identity, delaying the caller
// until that identity's rate window has passed.
type Selector struct {
	pool     *Pool
	interval time.Duration
	clock    ports.Clock
	log      zerolog.Logger
	onSelect func(domain.IdentityName, time.Duration)
}

type hold struct {
	entry *entry
	at    time.Time
	wait  time.Duration
}

func NewSelector(pool *Pool, opts Options) *Selector {
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.Clock == nil {
		opts.Clock = ports.SystemClock{}
	}

	return &Selector{
		pool:     pool,
		interval: opts.Interval,
		clock:    opts.Clock,
		log:      opts.Logger,
		onSelect: opts.OnSelect,
	}
}

func (s *Selector) Interval() time.Duration {
	return s.interval
}

func (s *Selector) Pool() *Pool {
	return s.pool
}

// Select blocks until an identity may act and returns it. Identities named in
// exclude are never returned.
func (s *Selector) Select(ctx context.Context, exclude ...domain.IdentityName) (domain.Identity, error) {
	if err := ctx.Err(); err != nil {
		return domain.Identity{}, err
	}

	h, err := s.reserve(exclude)
	if err != nil {
		return domain.Identity{}, err
	}

	if h.wait > 0 {
		s.log.Debug().
			Str("identity", string(h.entry.identity.Name)).
			Dur("wait", h.wait).
			Msg("waiting for identity rate window")

		// A canceled wait commits nothing. The held instant stays reserved so
		// the rate window is never shortened.
		if err := s.clock.Sleep(ctx, h.wait); err != nil {
			return domain.Identity{}, err
		}
	}

	identity := s.commit(h)
	if s.onSelect != nil {
		s.onSelect(identity.Name, h.wait)
	}

	return identity, nil
}

// Wait reports how long the next Select would block, without selecting.
func (s *Selector) Wait(exclude ...domain.IdentityName) (time.Duration, error) {
	if s.pool == nil {
		return 0, domain.ErrPoolExhausted
	}

	s.pool.mu.Lock()
	defer s.pool.mu.Unlock()

	e := s.pickLocked(exclude)
	if e == nil {
		return 0, s.exhaustedLocked()
	}

	return s.waitFor(e, s.clock.Now()), nil
}

func (s *Selector) reserve(exclude []domain.IdentityName) (hold, error) {
	if s.pool == nil {
		return hold{}, domain.ErrPoolExhausted
	}

	s.pool.mu.Lock()
	defer s.pool.mu.Unlock()

	e := s.pickLocked(exclude)
	if e == nil {
		return hold{}, s.exhaustedLocked()
	}

	now := s.clock.Now()
	wait := s.waitFor(e, now)
	at := now.Add(wait)

	e.heldUntil = at
	s.pool.sortLocked()

	return hold{entry: e, at: at, wait: wait}, nil
}

func (s *Selector) commit(h hold) domain.Identity {
	s.pool.mu.Lock()
	defer s.pool.mu.Unlock()

	e := h.entry
	if h.at.After(e.identity.LastUsedAt) {
		e.identity.LastUsedAt = h.at
	}
	e.identity.UseCount++
	s.pool.sortLocked()

	identity := e.identity
	identity.Credentials = identity.Credentials.Clone()
	identity.LastUsedAt = h.at
	return identity
}

func (s *Selector) pickLocked(exclude []domain.IdentityName) *entry {
	var best *entry
	for _, e := range s.pool.entries {
		if excluded(e.identity.Name, exclude) {
			continue
		}
		if best == nil {
			best = e
			continue
		}

		left, right := e.lastUse(), best.lastUse()
		if left.Before(right) || (left.Equal(right) && e.identity.Name < best.identity.Name) {
			best = e
		}
	}

	return best
}

func (s *Selector) exhaustedLocked() error {
	if len(s.pool.entries) == 0 {
		return domain.ErrPoolExhausted
	}

	return fmt.Errorf("%w: all %d identities excluded", domain.ErrPoolExhausted, len(s.pool.entries))
}

func (s *Selector) waitFor(e *entry, now time.Time) time.Duration {
	last := e.lastUse()
	if last.IsZero() {
		return 0
	}

	elapsed := now.Sub(last)
	if elapsed >= s.interval {
		return 0
	}

	return s.interval - elapsed
}

func excluded(name domain.IdentityName, exclude []domain.IdentityName) bool {
	for _, candidate := range exclude {
		if candidate != "" && candidate == name {
			return true
		}
	}
	return false
}
