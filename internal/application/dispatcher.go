package application

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/bnema/fanout/internal/domain"
	"github.com/bnema/fanout/internal/ports"
	"github.com/bnema/fanout/internal/rotation"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultProgressEvery  = 3
	DefaultAttemptTimeout = 30 * time.Second
)

type DispatchOptions struct {
	MaxFanout     int
	ProgressEvery int
	// JitterMin and JitterMax bound the random pause after each attempt.
	JitterMin time.Duration
	JitterMax time.Duration
	// Concurrency above one lets several attempts run at once.
	Concurrency      int
	ExcludeRequester bool
	AttemptTimeout   time.Duration

	Clock     ports.Clock
	Rand      *rand.Rand
	Logger    zerolog.Logger
	NewJobID  func() string
	OnOutcome func(domain.Outcome)
	OnSummary func(domain.Summary)
}

type Dispatcher struct {
	selector *rotation.Selector
	executor ports.Executor
	opts     DispatchOptions

	randMu sync.Mutex
}

func NewDispatcher(selector *rotation.Selector, executor ports.Executor, opts DispatchOptions) *Dispatcher {
	if opts.MaxFanout <= 0 {
		opts.MaxFanout = domain.MaxFanout
	}
	if opts.ProgressEvery <= 0 {
		opts.ProgressEvery = DefaultProgressEvery
	}
	if opts.JitterMax < opts.JitterMin {
		opts.JitterMax = opts.JitterMin
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	if opts.AttemptTimeout <= 0 {
		opts.AttemptTimeout = DefaultAttemptTimeout
	}
	if opts.Clock == nil {
		opts.Clock = ports.SystemClock{}
	}
	if opts.Rand == nil {
		seed := uint64(time.Now().UnixNano())
		opts.Rand = rand.New(rand.NewPCG(seed, seed>>1))
	}
	if opts.NewJobID == nil {
		opts.NewJobID = uuid.NewString
	}

	return &Dispatcher{selector: selector, executor: executor, opts: opts}
}

// Dispatch spreads req.Count attempts for req.Target across the pool. Attempt
// failures are recorded as outcomes. When ctx is canceled no further
// identities are selected and the partial summary is returned together with
// an error wrapping ctx.Err().
func (d *Dispatcher) Dispatch(ctx context.Context, req domain.DispatchRequest, reporter ports.ProgressReporter) (domain.Summary, error) {
	if reporter == nil {
		reporter = ports.NopReporter{}
	}
	if err := req.Validate(d.opts.MaxFanout); err != nil {
		return domain.Summary{}, err
	}

	exclude := d.exclusions(req)
	job := &domain.DispatchJob{
		ID:             d.opts.NewJobID(),
		Target:         req.Target,
		RequestedCount: req.Count,
	}
	if _, err := d.selector.Wait(exclude...); err != nil {
		return job.Summary(), err
	}

	log := d.opts.Logger.With().Str("job", job.ID).Logger()
	log.Info().Int("count", req.Count).Msg("dispatch started")

	run := &dispatchRun{
		dispatcher: d,
		job:        job,
		exclude:    exclude,
		reporter:   reporter,
		log:        log,
	}
	reporter.Started(*job)

	err := run.execute(ctx)

	summary := run.summary()
	if err == nil && ctx.Err() != nil && summary.Attempted() < req.Count {
		err = ctx.Err()
	}
	if err != nil && !errors.Is(err, domain.ErrPoolExhausted) {
		summary.Canceled = true
		err = fmt.Errorf("dispatch canceled after %d/%d attempts: %w", summary.Attempted(), req.Count, err)
	}

	log.Info().
		Int("succeeded", summary.SucceededCount).
		Int("attempted", summary.Attempted()).
		Bool("canceled", summary.Canceled).
		Msg("dispatch finished")

	reporter.Finished(summary)
	if d.opts.OnSummary != nil {
		d.opts.OnSummary(summary)
	}

	return summary, err
}

func (d *Dispatcher) exclusions(req domain.DispatchRequest) []domain.IdentityName {
	if !d.opts.ExcludeRequester || req.Exclude == "" {
		return nil
	}
	return []domain.IdentityName{req.Exclude}
}

func (d *Dispatcher) jitter() time.Duration {
	span := d.opts.JitterMax - d.opts.JitterMin
	if span <= 0 {
		return d.opts.JitterMin
	}

	d.randMu.Lock()
	defer d.randMu.Unlock()

	return d.opts.JitterMin + time.Duration(d.opts.Rand.Int64N(int64(span)+1))
}

type dispatchRun struct {
	dispatcher *Dispatcher
	exclude    []domain.IdentityName
	reporter   ports.ProgressReporter
	log        zerolog.Logger

	mu        sync.Mutex
	job       *domain.DispatchJob
	completed int
}

func (r *dispatchRun) execute(ctx context.Context) error {
	d := r.dispatcher
	total := r.job.RequestedCount

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.opts.Concurrency)

	for i := 0; i < total; i++ {
		if gctx.Err() != nil {
			break
		}

		last := i == total-1
		g.Go(func() error {
			return r.attempt(gctx, last)
		})
	}

	return g.Wait()
}

// attempt runs one select/perform/record cycle, then paces the slot with
// jitter unless it was the final attempt.
func (r *dispatchRun) attempt(ctx context.Context, last bool) error {
	d := r.dispatcher

	identity, err := d.selector.Select(ctx, r.exclude...)
	if err != nil {
		if errors.Is(err, domain.ErrPoolExhausted) {
			return err
		}
		// Canceled while waiting for a rate window.
		return nil
	}

	outcome := r.perform(ctx, identity)
	r.record(outcome)

	if last {
		return nil
	}
	if pause := d.jitter(); pause > 0 {
		_ = d.opts.Clock.Sleep(ctx, pause)
	}

	return nil
}

func (r *dispatchRun) perform(ctx context.Context, identity domain.Identity) domain.Outcome {
	d := r.dispatcher

	// In-flight attempts finish even if the dispatch is canceled meanwhile.
	attemptCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.opts.AttemptTimeout)
	defer cancel()

	outcome := domain.Outcome{Identity: identity.Name}
	result, err := d.executor.Perform(attemptCtx, identity.Credentials, r.job.Target)
	switch {
	case err != nil && errors.Is(attemptCtx.Err(), context.DeadlineExceeded):
		outcome.Message = fmt.Sprintf("attempt timed out after %s: %v", d.opts.AttemptTimeout, err)
	case err != nil:
		outcome.Message = err.Error()
	default:
		outcome.Succeeded = result.Succeeded
		outcome.Message = result.Message
	}

	if outcome.Succeeded {
		r.log.Info().Str("identity", string(identity.Name)).Msg("attempt succeeded")
	} else {
		r.log.Error().Str("identity", string(identity.Name)).Str("message", outcome.Message).Msg("attempt failed")
	}

	return outcome
}

func (r *dispatchRun) record(outcome domain.Outcome) {
	d := r.dispatcher

	r.mu.Lock()
	defer r.mu.Unlock()

	r.job.Record(outcome)
	r.completed++
	if d.opts.OnOutcome != nil {
		d.opts.OnOutcome(outcome)
	}

	if (r.completed-1)%d.opts.ProgressEvery == 0 {
		r.reporter.Progress(domain.ProgressEvent{
			JobID:     r.job.ID,
			Completed: r.completed,
			Total:     r.job.RequestedCount,
		})
	}
}

func (r *dispatchRun) summary() domain.Summary {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.job.Summary()
}
