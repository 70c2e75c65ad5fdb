// Package command turns front-end text into validated commands before any
// identity is consumed.
package command

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/bnema/fanout/internal/domain"
)

const DefaultPrefix = "+"

type Kind int

const (
	KindShare Kind = iota + 1
	KindAccounts
	KindStatus
	KindHelp
)

func (k Kind) String() string {
	switch k {
	case KindShare:
		return "share"
	case KindAccounts:
		return "accounts"
	case KindStatus:
		return "status"
	case KindHelp:
		return "help"
	default:
		return "unknown"
	}
}

var kinds = map[string]Kind{
	"share":    KindShare,
	"accounts": KindAccounts,
	"status":   KindStatus,
	"help":     KindHelp,
}

var (
	// ErrNotCommand marks text without the command prefix. Front ends ignore it.
	ErrNotCommand = errors.New("not a command")
	// ErrUnknownCommand marks a prefixed word that names no command.
	ErrUnknownCommand = errors.New("unknown command")
)

var targetPattern = regexp.MustCompile(`^https?://(?:www\.)?\w+\.\w+`)

type ShareArgs struct {
	Target domain.Target
	Count  int
}

// Command is the tagged result of parsing. Share is set only for KindShare.
type Command struct {
	Kind  Kind
	Share *ShareArgs
}

type Parser struct {
	Prefix       string
	DefaultCount int
	MaxCount     int
}

func NewParser(prefix string, defaultCount, maxCount int) Parser {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	if maxCount <= 0 {
		maxCount = domain.MaxFanout
	}
	if defaultCount <= 0 {
		defaultCount = domain.DefaultShareCount
	}

	return Parser{Prefix: prefix, DefaultCount: defaultCount, MaxCount: maxCount}
}

// Parse reads one chat line such as "+share https://example.com/v/1 3".
func (p Parser) Parse(text string) (Command, error) {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, p.Prefix) {
		return Command{}, ErrNotCommand
	}

	fields := strings.Fields(strings.TrimPrefix(text, p.Prefix))
	if len(fields) == 0 {
		return Command{}, ErrNotCommand
	}

	kind, ok := kinds[strings.ToLower(fields[0])]
	if !ok {
		return Command{}, fmt.Errorf("%w: %s%s", ErrUnknownCommand, p.Prefix, fields[0])
	}

	cmd := Command{Kind: kind}
	if kind == KindShare {
		args, err := p.ParseShare(fields[1:])
		if err != nil {
			return Command{}, err
		}
		cmd.Share = &args
	}

	return cmd, nil
}

// ParseShare validates "<target> [count]". A count that is not a number falls
// back to the default; any count is clamped to [1, MaxCount].
func (p Parser) ParseShare(args []string) (ShareArgs, error) {
	if len(args) == 0 {
		return ShareArgs{}, fmt.Errorf("%w: usage: %sshare <url> [count]", domain.ErrInvalidRequest, p.Prefix)
	}

	target := strings.TrimSpace(args[0])
	if !ValidTarget(target) {
		return ShareArgs{}, fmt.Errorf("%w: invalid URL format %q, use %sshare <valid_url>", domain.ErrInvalidRequest, target, p.Prefix)
	}

	count := p.DefaultCount
	if len(args) > 1 {
		if n, err := strconv.Atoi(args[1]); err == nil {
			count = n
		}
	}

	return ShareArgs{
		Target: domain.Target(target),
		Count:  Normalize(count, p.MaxCount),
	}, nil
}

func ValidTarget(target string) bool {
	return targetPattern.MatchString(target)
}

// Normalize clamps count to [1, maxCount].
func Normalize(count, maxCount int) int {
	if maxCount <= 0 {
		maxCount = domain.MaxFanout
	}
	if count < 1 {
		return 1
	}
	if count > maxCount {
		return maxCount
	}
	return count
}

// Help lists the chat commands and how many identities can act.
func (p Parser) Help(identities int) string {
	var b strings.Builder
	b.WriteString("Fan-out share commands\n")
	fmt.Fprintf(&b, "%sshare <url> [count]  share a URL through up to %d identities (default %d)\n", p.Prefix, p.MaxCount, p.DefaultCount)
	fmt.Fprintf(&b, "%saccounts             list identities with use counts\n", p.Prefix)
	fmt.Fprintf(&b, "%sstatus               show which identities are ready\n", p.Prefix)
	fmt.Fprintf(&b, "%shelp                 show this help message\n", p.Prefix)
	fmt.Fprintf(&b, "Total identities: %d", identities)
	return b.String()
}
