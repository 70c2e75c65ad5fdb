// Package telegram serves chat commands from a Telegram bot.
package telegram

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bnema/fanout/internal/adapters/frontend"
	"github.com/bnema/fanout/internal/domain"
	"github.com/rs/zerolog"
	tele "gopkg.in/telebot.v4"
)

const defaultPollTimeout = 10 * time.Second

// Messenger is the part of *tele.Bot the replies need.
type Messenger interface {
	Send(to tele.Recipient, what interface{}, opts ...interface{}) (*tele.Message, error)
	Edit(msg tele.Editable, what interface{}, opts ...interface{}) (*tele.Message, error)
}

type Config struct {
	Token       string
	PollTimeout time.Duration
}

type Bot struct {
	bot     *tele.Bot
	handler *frontend.Handler
	log     zerolog.Logger
}

func New(cfg Config, handler *frontend.Handler, log zerolog.Logger) (*Bot, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	timeout := cfg.PollTimeout
	if timeout <= 0 {
		timeout = defaultPollTimeout
	}

	b, err := tele.NewBot(tele.Settings{
		Token:  cfg.Token,
		Poller: &tele.LongPoller{Timeout: timeout},
	})
	if err != nil {
		return nil, err
	}

	return &Bot{bot: b, handler: handler, log: log}, nil
}

// Run polls for updates until ctx is done.
func (b *Bot) Run(ctx context.Context) error {
	b.bot.Handle(tele.OnText, func(c tele.Context) error {
		m := c.Message()
		if m == nil || m.Chat == nil {
			return nil
		}

		replier := NewReplier(b.bot, m.Chat)
		if err := b.handler.Handle(ctx, replier, requesterOf(m), m.Text); err != nil {
			b.log.Error().Err(err).Int64("chat", m.Chat.ID).Msg("handle command")
		}
		return nil
	})

	go func() {
		<-ctx.Done()
		b.bot.Stop()
	}()

	b.log.Info().Str("bot", b.bot.Me.Username).Msg("polling started")
	b.bot.Start()
	b.log.Info().Msg("polling stopped")

	return nil
}

// requesterOf maps the sender to an identity name so a bot identity that
// posts a command can be kept out of its own fan-out.
func requesterOf(m *tele.Message) domain.IdentityName {
	if m.Sender == nil {
		return ""
	}
	return domain.IdentityName(m.Sender.Username)
}

// Replier sends replies to one chat. Status updates edit the message in place.
type Replier struct {
	messenger Messenger
	chat      tele.Recipient
}

func NewReplier(messenger Messenger, chat tele.Recipient) *Replier {
	return &Replier{messenger: messenger, chat: chat}
}

func (r *Replier) Reply(text string) (frontend.StatusMessage, error) {
	msg, err := r.messenger.Send(r.chat, text)
	if err != nil {
		return nil, err
	}
	return &statusMessage{messenger: r.messenger, msg: msg, last: text}, nil
}

type statusMessage struct {
	messenger Messenger
	msg       *tele.Message
	last      string
}

func (s *statusMessage) Update(text string) error {
	// Telegram rejects edits that do not change the text.
	if text == s.last {
		return nil
	}

	msg, err := s.messenger.Edit(s.msg, text)
	if err != nil {
		return err
	}
	if msg != nil {
		s.msg = msg
	}
	s.last = text
	return nil
}
