package status

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/bnema/fanout/internal/application"
	"github.com/bnema/fanout/internal/domain"
	"github.com/charmbracelet/lipgloss"
)

const barWidth = 24

type RenderOptions struct {
	Now time.Time
}

// Render draws the pool with one block per identity: use count, last use and
// how far its rate window has recovered.
func Render(status application.PoolStatus, opts RenderOptions) (string, error) {
	return run(func(s styles) string {
		return renderView(status, opts, s)
	})
}

// RenderSummary draws the outcome list of one dispatch.
func RenderSummary(summary domain.Summary) (string, error) {
	return run(func(s styles) string {
		return renderSummary(summary, s)
	})
}

func renderView(status application.PoolStatus, opts RenderOptions, s styles) string {
	ready := 0
	for _, identity := range status.Identities {
		if identity.Ready {
			ready++
		}
	}

	lines := []string{
		s.title.Render("Identity Pool"),
		s.header.Render(fmt.Sprintf("identities: %d  ready: %d  total uses: %d  rate window: %s",
			len(status.Identities), ready, status.TotalUses, status.Interval)),
	}

	if len(status.Identities) == 0 {
		lines = append(lines, s.empty.Render("No identities configured."))
		return lipgloss.JoinVertical(lipgloss.Left, lines...)
	}

	for _, identity := range status.Identities {
		lines = append(lines, s.section.Render(renderIdentity(identity, status.Interval, opts, s)))
	}

	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

func renderIdentity(identity application.IdentityStatus, interval time.Duration, opts RenderOptions, s styles) string {
	return lipgloss.JoinVertical(
		lipgloss.Left,
		s.identity.Render(string(identity.Name)),
		s.detail.Render(fmt.Sprintf("uses: %d  last used: %s", identity.UseCount, formatLastUsed(identity.LastUsedAt, opts.Now))),
		readinessLine(identity, interval, opts, s),
	)
}

func readinessLine(identity application.IdentityStatus, interval time.Duration, opts RenderOptions, s styles) string {
	bar := renderProgressBar(recoveredPercent(identity, interval, opts.Now), barWidth, s)
	if identity.Ready {
		return lipgloss.JoinHorizontal(lipgloss.Top, bar, " ", s.ready.Render("ready"))
	}

	return lipgloss.JoinHorizontal(lipgloss.Top, bar, " ", s.waiting.Render(formatNextFree(identity.NextFreeAt, opts.Now)))
}

// recoveredPercent is the share of the rate window that has already elapsed.
func recoveredPercent(identity application.IdentityStatus, interval time.Duration, now time.Time) float64 {
	if identity.Ready || interval <= 0 || now.IsZero() {
		return 100
	}

	remaining := identity.NextFreeAt.Sub(now)
	return clampPercent(100 * (1 - remaining.Seconds()/interval.Seconds()))
}

func renderSummary(summary domain.Summary, s styles) string {
	headline := s.ready
	if summary.SucceededCount == 0 {
		headline = s.failed
	}

	title := fmt.Sprintf("Shared with %d/%d identities", summary.SucceededCount, summary.RequestedCount)
	if summary.Canceled {
		title += " (canceled)"
	}

	lines := []string{headline.Render(title)}
	if summary.JobID != "" {
		lines = append(lines, s.header.Render("job "+summary.JobID))
	}

	for _, outcome := range summary.Outcomes {
		mark := s.ready.Render("ok  ")
		if !outcome.Succeeded {
			mark = s.failed.Render("fail")
		}
		line := fmt.Sprintf("%s %s", mark, s.identity.Render(string(outcome.Identity)))
		if msg := strings.TrimSpace(outcome.Message); msg != "" {
			line += " " + s.detail.Render(msg)
		}
		lines = append(lines, line)
	}

	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

func renderProgressBar(percent float64, width int, s styles) string {
	if width <= 0 {
		return ""
	}

	filled := int(math.Round(float64(width) * clampPercent(percent) / 100.0))
	if filled < 0 {
		filled = 0
	}
	if filled > width {
		filled = width
	}

	return lipgloss.JoinHorizontal(
		lipgloss.Top,
		s.barBracket.Render("["),
		s.barFill.Render(strings.Repeat("=", filled)),
		s.barEmpty.Render(strings.Repeat("-", width-filled)),
		s.barBracket.Render("]"),
	)
}

func clampPercent(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

func formatLastUsed(lastUsed, now time.Time) string {
	if lastUsed.IsZero() {
		return "never"
	}
	if now.IsZero() {
		return lastUsed.Format(time.RFC3339)
	}

	ago := now.Sub(lastUsed)
	if ago < time.Second {
		return "just now"
	}

	return fmt.Sprintf("%s ago", formatDuration(ago))
}

func formatNextFree(next, now time.Time) string {
	if now.IsZero() {
		return "ready at " + next.Format("15:04:05")
	}

	return fmt.Sprintf("ready in %s (%s)", formatDuration(next.Sub(now)), next.Format("15:04:05"))
}

func formatDuration(d time.Duration) string {
	switch {
	case d < time.Minute:
		return fmt.Sprintf("%ds", int(math.Ceil(d.Seconds())))
	case d < time.Hour:
		return fmt.Sprintf("%dm", int(d.Minutes()))
	case d < 48*time.Hour:
		return fmt.Sprintf("%dh", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd", int(d.Hours()/24))
	}
}
