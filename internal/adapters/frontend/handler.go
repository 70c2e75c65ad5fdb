// Package frontend answers chat commands. Transports supply a Replier and
// feed each incoming line to Handler.Handle.
package frontend

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/bnema/fanout/internal/adapters/render/progress"
	"github.com/bnema/fanout/internal/application"
	"github.com/bnema/fanout/internal/command"
	"github.com/bnema/fanout/internal/domain"
	"github.com/bnema/fanout/internal/ports"
	"github.com/rs/zerolog"
)

type Dispatcher interface {
	Dispatch(ctx context.Context, req domain.DispatchRequest, reporter ports.ProgressReporter) (domain.Summary, error)
}

// Replier posts messages back to where a command came from.
type Replier interface {
	Reply(text string) (StatusMessage, error)
}

// StatusMessage is a posted message that can be rewritten in place.
type StatusMessage interface {
	Update(text string) error
}

type Options struct {
	Parser     command.Parser
	Dispatcher Dispatcher
	Status     func() application.PoolStatus
	Reporter   ports.ProgressReporter
	Logger     zerolog.Logger
	Now        func() time.Time
}

type Handler struct {
	parser     command.Parser
	dispatcher Dispatcher
	status     func() application.PoolStatus
	reporter   ports.ProgressReporter
	log        zerolog.Logger
	now        func() time.Time
}

func NewHandler(opts Options) *Handler {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Reporter == nil {
		opts.Reporter = ports.NopReporter{}
	}

	return &Handler{
		parser:     opts.Parser,
		dispatcher: opts.Dispatcher,
		status:     opts.Status,
		reporter:   opts.Reporter,
		log:        opts.Logger,
		now:        opts.Now,
	}
}

// Handle answers one line. Text without the command prefix is ignored.
// requester names the identity that sent the line, if any.
func (h *Handler) Handle(ctx context.Context, r Replier, requester domain.IdentityName, text string) error {
	cmd, err := h.parser.Parse(text)
	switch {
	case errors.Is(err, command.ErrNotCommand):
		return nil
	case errors.Is(err, command.ErrUnknownCommand):
		h.log.Debug().Str("text", text).Msg("unknown command ignored")
		return nil
	case err != nil:
		return h.reply(r, "Error: "+userMessage(err))
	}

	switch cmd.Kind {
	case command.KindShare:
		return h.share(ctx, r, requester, *cmd.Share)
	case command.KindAccounts:
		return h.reply(r, AccountsText(h.status(), h.now()))
	case command.KindStatus:
		return h.reply(r, StatusText(h.status()))
	case command.KindHelp:
		return h.reply(r, h.parser.Help(len(h.status().Identities)))
	default:
		return nil
	}
}

func (h *Handler) share(ctx context.Context, r Replier, requester domain.IdentityName, args command.ShareArgs) error {
	req := domain.DispatchRequest{Target: args.Target, Count: args.Count, Exclude: requester}

	var (
		mu  sync.Mutex
		msg StatusMessage
		err error
	)
	update := progress.FuncReporter(func(text string) {
		mu.Lock()
		defer mu.Unlock()

		if err != nil {
			return
		}
		if msg == nil {
			msg, err = r.Reply(text)
			return
		}
		if updateErr := msg.Update(text); updateErr != nil {
			h.log.Warn().Err(updateErr).Msg("update status message")
		}
	})

	summary, dispatchErr := h.dispatcher.Dispatch(ctx, req, ports.MultiReporter{update, h.reporter})

	mu.Lock()
	defer mu.Unlock()
	if err != nil {
		return fmt.Errorf("post status message: %w", err)
	}
	if dispatchErr != nil && !summary.Canceled {
		_, replyErr := r.Reply("Error: " + userMessage(dispatchErr))
		return replyErr
	}

	return nil
}

func (h *Handler) reply(r Replier, text string) error {
	_, err := r.Reply(text)
	return err
}

func userMessage(err error) string {
	switch {
	case errors.Is(err, domain.ErrPoolExhausted):
		return "no identities available to share with"
	default:
		return err.Error()
	}
}

// AccountsText lists every identity with its use count and last use.
func AccountsText(status application.PoolStatus, now time.Time) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Identities (%d)", len(status.Identities))
	for _, identity := range status.Identities {
		last := "never"
		if !identity.LastUsedAt.IsZero() {
			last = identity.LastUsedAt.Format(time.RFC1123)
			if !now.IsZero() {
				last = fmt.Sprintf("%s ago", now.Sub(identity.LastUsedAt).Round(time.Second))
			}
		}
		fmt.Fprintf(&b, "\n%s: shares %d | last used: %s", identity.Name, identity.UseCount, last)
	}
	return b.String()
}

// StatusText summarizes how many identities can act right now.
func StatusText(status application.PoolStatus) string {
	ready := 0
	for _, identity := range status.Identities {
		if identity.Ready {
			ready++
		}
	}
	return fmt.Sprintf("Identities ready: %d/%d | total shares: %d | rate window: %s",
		ready, len(status.Identities), status.TotalUses, status.Interval)
}

// WriterReplier prints replies and status updates as plain lines.
type WriterReplier struct {
	mu sync.Mutex
	w  io.Writer
}

func NewWriterReplier(w io.Writer) *WriterReplier {
	return &WriterReplier{w: w}
}

func (r *WriterReplier) Reply(text string) (StatusMessage, error) {
	if err := r.Update(text); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *WriterReplier) Update(text string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, err := fmt.Fprintln(r.w, text)
	return err
}
