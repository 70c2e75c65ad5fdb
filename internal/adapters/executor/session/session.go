// Package session keeps one persistent connection per identity, the shape
// used when every identity is a long-lived client of the remote service.
package session

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/bnema/fanout/internal/adapters/executor/httpexec"
	"github.com/bnema/fanout/internal/domain"
	"github.com/bnema/fanout/internal/ports"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

var (
	ErrClosed     = errors.New("session pool closed")
	ErrNoSession  = errors.New("no session for identity")
	ErrNotOpened  = errors.New("session pool not opened")
	ErrReopenPool = errors.New("session pool already opened")
)

// ConnectFunc establishes a session for one identity, for example by warming
// a keep-alive connection. A nil ConnectFunc accepts every identity.
type ConnectFunc func(ctx context.Context, client *http.Client, identity domain.Identity) error

type Options struct {
	Connect     ConnectFunc
	IdleTimeout time.Duration
	Logger      zerolog.Logger
}

type session struct {
	name      domain.IdentityName
	transport *http.Transport
	executor  *httpexec.Executor
}

// Pool routes every Perform to the session opened for the identity owning
// the credentials. Identities are matched by their token credential.
type Pool struct {
	base    *httpexec.Executor
	connect ConnectFunc
	idle    time.Duration
	log     zerolog.Logger

	mu       sync.RWMutex
	sessions map[string]*session
	opened   bool
	closed   bool

	ready     chan struct{}
	readyOnce sync.Once
}

var _ ports.Executor = (*Pool)(nil)

func NewPool(base *httpexec.Executor, opts Options) *Pool {
	if opts.IdleTimeout <= 0 {
		opts.IdleTimeout = 90 * time.Second
	}

	return &Pool{
		base:     base,
		connect:  opts.Connect,
		idle:     opts.IdleTimeout,
		log:      opts.Logger,
		sessions: map[string]*session{},
		ready:    make(chan struct{}),
	}
}

// Open connects all identities in parallel. Ready is closed once every
// session is up. If any connection fails, the ones already opened are closed
// and the first error is returned.
func (p *Pool) Open(ctx context.Context, identities []domain.Identity) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrClosed
	}
	if p.opened {
		p.mu.Unlock()
		return ErrReopenPool
	}
	p.opened = true
	p.mu.Unlock()

	var (
		mu       sync.Mutex
		sessions = make(map[string]*session, len(identities))
	)

	g, gctx := errgroup.WithContext(ctx)
	for _, identity := range identities {
		g.Go(func() error {
			s, err := p.dial(gctx, identity)
			if err != nil {
				return fmt.Errorf("open session for %s: %w", identity.Name, err)
			}

			mu.Lock()
			defer mu.Unlock()
			key := identity.Credentials.Token()
			if _, dup := sessions[key]; dup {
				s.transport.CloseIdleConnections()
				return fmt.Errorf("%w: identity %s shares credentials with another identity", domain.ErrConfiguration, identity.Name)
			}
			sessions[key] = s
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		for _, s := range sessions {
			s.transport.CloseIdleConnections()
		}
		return err
	}

	p.mu.Lock()
	p.sessions = sessions
	p.mu.Unlock()

	p.readyOnce.Do(func() { close(p.ready) })
	p.log.Info().Int("sessions", len(sessions)).Msg("all sessions ready")

	return nil
}

// Ready is closed exactly once, after a successful Open.
func (p *Pool) Ready() <-chan struct{} {
	return p.ready
}

func (p *Pool) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()

	return len(p.sessions)
}

func (p *Pool) Perform(ctx context.Context, creds domain.Credentials, target domain.Target) (domain.Result, error) {
	p.mu.RLock()
	closed, opened := p.closed, p.opened
	s, ok := p.sessions[creds.Token()]
	p.mu.RUnlock()

	switch {
	case closed:
		return domain.Result{}, fmt.Errorf("%w: %w", domain.ErrExecutor, ErrClosed)
	case !opened:
		return domain.Result{}, fmt.Errorf("%w: %w", domain.ErrExecutor, ErrNotOpened)
	case !ok:
		return domain.Result{}, fmt.Errorf("%w: %w", domain.ErrExecutor, ErrNoSession)
	}

	return s.executor.Perform(ctx, creds, target)
}

// Close releases every session. It is safe to call more than once.
func (p *Pool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}
	p.closed = true

	for _, s := range p.sessions {
		s.transport.CloseIdleConnections()
		p.log.Debug().Str("identity", string(s.name)).Msg("session closed")
	}
	p.sessions = map[string]*session{}

	return nil
}

func (p *Pool) dial(ctx context.Context, identity domain.Identity) (*session, error) {
	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:        2,
		MaxIdleConnsPerHost: 2,
		IdleConnTimeout:     p.idle,
		TLSHandshakeTimeout: 10 * time.Second,
	}
	client := &http.Client{Transport: transport}

	if p.connect != nil {
		if err := p.connect(ctx, client, identity); err != nil {
			transport.CloseIdleConnections()
			return nil, err
		}
	}

	p.log.Debug().Str("identity", string(identity.Name)).Msg("session connected")

	return &session{
		name:      identity.Name,
		transport: transport,
		executor:  p.base.WithClient(client),
	}, nil
}
