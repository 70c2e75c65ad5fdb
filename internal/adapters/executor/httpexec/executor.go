// Package httpexec performs share actions by POSTing the target to a remote
// endpoint on behalf of one identity.
package httpexec

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/bnema/fanout/internal/domain"
	"github.com/bnema/fanout/internal/ports"
	"golang.org/x/time/rate"
)

const (
	DefaultTimeout   = 10 * time.Second
	defaultUserAgent = "fanout/share"
	maxBodyBytes     = 1 << 20
	maxMessageBytes  = 512
)

type Config struct {
	Endpoint string
	Timeout  time.Duration
	// RatePerSec paces outbound requests across all identities. Zero disables
	// pacing.
	RatePerSec float64
	UserAgent  string
	Client     *http.Client
}

type Executor struct {
	endpoint  string
	timeout   time.Duration
	userAgent string
	client    *http.Client
	limiter   *rate.Limiter
}

var _ ports.Executor = (*Executor)(nil)

type shareRequest struct {
	Target string `json:"target"`
}

func New(cfg Config) (*Executor, error) {
	endpoint := strings.TrimSpace(cfg.Endpoint)
	if endpoint == "" {
		return nil, fmt.Errorf("%w: executor endpoint is required", domain.ErrConfiguration)
	}
	parsed, err := url.Parse(endpoint)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("%w: invalid executor endpoint %q", domain.ErrConfiguration, endpoint)
	}

	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = defaultUserAgent
	}
	if cfg.Client == nil {
		cfg.Client = http.DefaultClient
	}

	e := &Executor{
		endpoint:  endpoint,
		timeout:   cfg.Timeout,
		userAgent: cfg.UserAgent,
		client:    cfg.Client,
	}
	if cfg.RatePerSec > 0 {
		burst := int(cfg.RatePerSec)
		if burst < 1 {
			burst = 1
		}
		e.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), burst)
	}

	return e, nil
}

// WithClient returns a copy that sends through client. Both copies share one
// outbound limiter.
func (e *Executor) WithClient(client *http.Client) *Executor {
	clone := *e
	clone.client = client
	return &clone
}

func (e *Executor) Endpoint() string {
	return e.endpoint
}

// Perform reports non-2xx answers as unsuccessful results. Transport failures
// and timeouts are returned as errors wrapping domain.ErrExecutor.
func (e *Executor) Perform(ctx context.Context, creds domain.Credentials, target domain.Target) (domain.Result, error) {
	if e.limiter != nil {
		if err := e.limiter.Wait(ctx); err != nil {
			return domain.Result{}, fmt.Errorf("%w: wait for outbound slot: %v", domain.ErrExecutor, err)
		}
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	payload, err := json.Marshal(shareRequest{Target: string(target)})
	if err != nil {
		return domain.Result{}, fmt.Errorf("%w: encode request: %v", domain.ErrExecutor, err)
	}

	request, err := http.NewRequestWithContext(ctx, http.MethodPost, e.endpoint, bytes.NewReader(payload))
	if err != nil {
		return domain.Result{}, fmt.Errorf("%w: create request: %v", domain.ErrExecutor, err)
	}
	request.Header.Set("Content-Type", "application/json")
	request.Header.Set("User-Agent", e.userAgent)
	if token := creds.Token(); token != "" {
		request.Header.Set("Authorization", "Bearer "+token)
	}

	response, err := e.client.Do(request)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return domain.Result{}, fmt.Errorf("%w: request timed out after %s", domain.ErrExecutor, e.timeout)
		}
		return domain.Result{}, fmt.Errorf("%w: perform request: %v", domain.ErrExecutor, err)
	}
	defer response.Body.Close()

	body, err := io.ReadAll(io.LimitReader(response.Body, maxBodyBytes))
	if err != nil {
		return domain.Result{}, fmt.Errorf("%w: read response: %v", domain.ErrExecutor, err)
	}

	message := truncate(strings.TrimSpace(string(body)))
	if response.StatusCode < 200 || response.StatusCode > 299 {
		return domain.Result{Message: fmt.Sprintf("status %d: %s", response.StatusCode, message)}, nil
	}
	if message == "" {
		message = fmt.Sprintf("status %d", response.StatusCode)
	}

	return domain.Result{Succeeded: true, Message: message}, nil
}

func truncate(message string) string {
	if len(message) <= maxMessageBytes {
		return message
	}
	cut := maxMessageBytes
	for cut > 0 && !utf8.RuneStart(message[cut]) {
		cut--
	}
	return message[:cut] + "..."
}
