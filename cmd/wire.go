package cmd

import (
	"context"
	"fmt"
	"io"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/bnema/fanout/internal/adapters/executor/httpexec"
	"github.com/bnema/fanout/internal/adapters/executor/session"
	statusadapter "github.com/bnema/fanout/internal/adapters/render/status"
	tomlrepo "github.com/bnema/fanout/internal/adapters/repo/toml"
	chainstore "github.com/bnema/fanout/internal/adapters/secrets/chain"
	envstore "github.com/bnema/fanout/internal/adapters/secrets/env"
	filestore "github.com/bnema/fanout/internal/adapters/secrets/file"
	"github.com/bnema/fanout/internal/application"
	"github.com/bnema/fanout/internal/command"
	"github.com/bnema/fanout/internal/domain"
	"github.com/bnema/fanout/internal/metrics"
	"github.com/bnema/fanout/internal/ports"
	"github.com/bnema/fanout/internal/rotation"
	"github.com/rs/zerolog"
	"github.com/spf13/viper"
)

const (
	keyRateInterval      = "rate.interval"
	keyMaxFanout         = "dispatch.max_fanout"
	keyDefaultCount      = "dispatch.default_count"
	keyProgressEvery     = "dispatch.progress_every"
	keyJitterMin         = "dispatch.jitter_min"
	keyJitterMax         = "dispatch.jitter_max"
	keyConcurrency       = "dispatch.concurrency"
	keyExcludeRequester  = "dispatch.exclude_requester"
	keySeed              = "dispatch.seed"
	keyExecutorEndpoint  = "executor.endpoint"
	keyExecutorTimeout   = "executor.timeout"
	keyExecutorRate      = "executor.rate_per_sec"
	keyExecutorSessions  = "executor.sessions"
	keySecretsDir        = "secrets.dir"
	keySecretsUsePass    = "secrets.use_pass"
	keyLogLevel          = "log.level"
	keyTelegramToken     = "telegram.token"
	keyMetricsAddr       = "metrics.addr"
	keyCommandPrefix     = "chat.prefix"
	envPrefix            = "FANOUT"
	defaultSecretsSubdir = "secrets"
)

type app struct {
	cfg             *viper.Viper
	identities      *application.IdentityService
	secretStore     ports.SecretStore
	statusRenderer  func(application.PoolStatus, statusadapter.RenderOptions) (string, error)
	summaryRenderer func(domain.Summary) (string, error)
	clock           ports.Clock
	log             zerolog.Logger
	now             func() time.Time
}

// engine is the dispatcher context for one process: the loaded pool, its
// selector and the dispatcher sharing them.
type engine struct {
	pool       *rotation.Pool
	selector   *rotation.Selector
	dispatcher *application.Dispatcher
	parser     command.Parser
	close      func() error
}

func wireApp() (*app, error) {
	cfg := viper.New()
	setDefaults(cfg)
	cfg.SetEnvPrefix(envPrefix)
	cfg.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	cfg.AutomaticEnv()

	// Reads ~/.fanout/config.toml into cfg as a side effect.
	repo, err := tomlrepo.NewRepository(cfg)
	if err != nil {
		return nil, fmt.Errorf("wire identity repository: %w", err)
	}

	secretsDir, err := expandHome(cfg.GetString(keySecretsDir))
	if err != nil {
		return nil, fmt.Errorf("resolve secrets directory: %w", err)
	}

	secretStore, err := wireSecretStore(secretsDir, cfg.GetBool(keySecretsUsePass))
	if err != nil {
		return nil, fmt.Errorf("wire secret store chain: %w", err)
	}

	return &app{
		cfg:             cfg,
		identities:      application.NewIdentityService(repo, secretStore),
		secretStore:     secretStore,
		statusRenderer:  statusadapter.Render,
		summaryRenderer: statusadapter.RenderSummary,
		clock:           ports.SystemClock{},
		log:             newLogger(os.Stderr, cfg.GetString(keyLogLevel)),
		now:             time.Now,
	}, nil
}

func setDefaults(cfg *viper.Viper) {
	cfg.SetDefault(keyRateInterval, rotation.DefaultInterval)
	cfg.SetDefault(keyMaxFanout, domain.MaxFanout)
	cfg.SetDefault(keyDefaultCount, domain.DefaultShareCount)
	cfg.SetDefault(keyProgressEvery, application.DefaultProgressEvery)
	cfg.SetDefault(keyJitterMin, 5*time.Second)
	cfg.SetDefault(keyJitterMax, 15*time.Second)
	cfg.SetDefault(keyConcurrency, 1)
	cfg.SetDefault(keyExcludeRequester, false)
	cfg.SetDefault(keySeed, 0)
	cfg.SetDefault(keyExecutorEndpoint, "")
	cfg.SetDefault(keyExecutorTimeout, httpexec.DefaultTimeout)
	cfg.SetDefault(keyExecutorRate, 0)
	cfg.SetDefault(keyExecutorSessions, false)
	cfg.SetDefault(keySecretsDir, filepath.Join("~", ".fanout", defaultSecretsSubdir))
	cfg.SetDefault(keySecretsUsePass, true)
	cfg.SetDefault(keyLogLevel, zerolog.InfoLevel.String())
	cfg.SetDefault(keyTelegramToken, "")
	cfg.SetDefault(keyMetricsAddr, "")
	cfg.SetDefault(keyCommandPrefix, command.DefaultPrefix)
}

func wireSecretStore(dir string, usePass bool) (*chainstore.Store, error) {
	if usePass {
		return chainstore.NewDefault(dir)
	}

	return chainstore.NewStore(
		chainstore.Backend{Name: "env", Store: envstore.NewStore(envstore.DefaultPrefix)},
		chainstore.Backend{Name: "file", Store: filestore.NewStore(dir)},
	)
}

func newLogger(w io.Writer, level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}

	return zerolog.New(zerolog.ConsoleWriter{Out: w, TimeFormat: time.Kitchen}).
		Level(lvl).
		With().
		Timestamp().
		Logger()
}

// setLogOutput rebuilds the logger on w. An explicit flag level wins over
// log.level.
func (a *app) setLogOutput(w io.Writer, flagLevel string) {
	level := a.cfg.GetString(keyLogLevel)
	if strings.TrimSpace(flagLevel) != "" {
		level = flagLevel
	}
	a.log = newLogger(w, level)
}

func (a *app) parser() command.Parser {
	return command.NewParser(
		a.cfg.GetString(keyCommandPrefix),
		a.cfg.GetInt(keyDefaultCount),
		a.cfg.GetInt(keyMaxFanout),
	)
}

func (a *app) interval() time.Duration {
	interval := a.cfg.GetDuration(keyRateInterval)
	if interval <= 0 {
		return rotation.DefaultInterval
	}
	return interval
}

// loadPool resolves the configured identities into a fresh rotation pool.
// Selection state lives only as long as the returned pool.
func (a *app) loadPool(ctx context.Context) (*rotation.Pool, []domain.Identity, error) {
	identities, err := a.identities.LoadIdentities(ctx)
	if err != nil {
		return nil, nil, err
	}

	pool, err := rotation.Load(identities)
	if err != nil {
		return nil, nil, err
	}

	return pool, identities, nil
}

// newEngine builds the pool, selector, executor and dispatcher for commands
// that act. The caller must call close when done.
func (a *app) newEngine(ctx context.Context) (*engine, error) {
	pool, identities, err := a.loadPool(ctx)
	if err != nil {
		return nil, err
	}

	executor, closeExecutor, err := a.newExecutor(ctx, identities)
	if err != nil {
		return nil, err
	}

	selector := rotation.NewSelector(pool, rotation.Options{
		Interval: a.interval(),
		Clock:    a.clock,
		Logger:   a.log,
		OnSelect: metrics.ObserveSelection,
	})

	dispatcher := application.NewDispatcher(selector, executor, application.DispatchOptions{
		MaxFanout:        a.cfg.GetInt(keyMaxFanout),
		ProgressEvery:    a.cfg.GetInt(keyProgressEvery),
		JitterMin:        a.cfg.GetDuration(keyJitterMin),
		JitterMax:        a.cfg.GetDuration(keyJitterMax),
		Concurrency:      a.cfg.GetInt(keyConcurrency),
		ExcludeRequester: a.cfg.GetBool(keyExcludeRequester),
		Clock:            a.clock,
		Rand:             seededRand(a.cfg.GetUint64(keySeed)),
		Logger:           a.log,
		OnOutcome:        metrics.ObserveOutcome,
		OnSummary:        metrics.ObserveSummary,
	})

	return &engine{
		pool:       pool,
		selector:   selector,
		dispatcher: dispatcher,
		parser:     a.parser(),
		close:      closeExecutor,
	}, nil
}

func (a *app) newExecutor(ctx context.Context, identities []domain.Identity) (ports.Executor, func() error, error) {
	base, err := httpexec.New(httpexec.Config{
		Endpoint:   a.cfg.GetString(keyExecutorEndpoint),
		Timeout:    a.cfg.GetDuration(keyExecutorTimeout),
		RatePerSec: a.cfg.GetFloat64(keyExecutorRate),
	})
	if err != nil {
		return nil, nil, err
	}
	if !a.cfg.GetBool(keyExecutorSessions) {
		return base, func() error { return nil }, nil
	}

	sessions := session.NewPool(base, session.Options{Logger: a.log})
	if err := sessions.Open(ctx, identities); err != nil {
		_ = sessions.Close()
		return nil, nil, err
	}
	<-sessions.Ready()
	a.log.Debug().Int("sessions", sessions.Len()).Msg("executor sessions ready")

	return sessions, sessions.Close, nil
}

func (e *engine) status(now time.Time) application.PoolStatus {
	return application.Status(e.pool, e.selector.Interval(), now)
}

// seededRand returns a generator seeded with seed, or with the current time
// when seed is zero.
func seededRand(seed uint64) *rand.Rand {
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	return rand.New(rand.NewPCG(seed, seed>>1))
}

func expandHome(path string) (string, error) {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path, nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(homeDir, strings.TrimPrefix(path, "~")), nil
}
