// Package progress turns dispatch events into human readable status text.
package progress

import (
	"fmt"
	"io"
	"sync"

	"github.com/bnema/fanout/internal/domain"
	"github.com/bnema/fanout/internal/ports"
	"github.com/rs/zerolog"
)

func StartedText(job domain.DispatchJob) string {
	return fmt.Sprintf("Starting to share with %d identities...", job.RequestedCount)
}

func ProgressText(event domain.ProgressEvent) string {
	return fmt.Sprintf("Sharing... (%d/%d)", event.Completed, event.Total)
}

func FinishedText(summary domain.Summary) string {
	text := fmt.Sprintf("Shared with %d/%d identities", summary.SucceededCount, summary.RequestedCount)
	if summary.Canceled {
		text += fmt.Sprintf(" (canceled after %d attempts)", summary.Attempted())
	}
	return text
}

// LineReporter writes one line per event.
type LineReporter struct {
	mu sync.Mutex
	w  io.Writer
}

var _ ports.ProgressReporter = (*LineReporter)(nil)

func NewLineReporter(w io.Writer) *LineReporter {
	return &LineReporter{w: w}
}

func (r *LineReporter) Started(job domain.DispatchJob) {
	r.writeLine(StartedText(job))
}

func (r *LineReporter) Progress(event domain.ProgressEvent) {
	r.writeLine(ProgressText(event))
}

func (r *LineReporter) Finished(summary domain.Summary) {
	r.writeLine(FinishedText(summary))
}

func (r *LineReporter) writeLine(line string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, _ = fmt.Fprintln(r.w, line)
}

// LogReporter mirrors progress into the structured log.
type LogReporter struct {
	log zerolog.Logger
}

var _ ports.ProgressReporter = LogReporter{}

func NewLogReporter(log zerolog.Logger) LogReporter {
	return LogReporter{log: log}
}

func (r LogReporter) Started(job domain.DispatchJob) {
	r.log.Info().
		Str("job", job.ID).
		Str("target", string(job.Target)).
		Int("count", job.RequestedCount).
		Msg("share started")
}

func (r LogReporter) Progress(event domain.ProgressEvent) {
	r.log.Debug().
		Str("job", event.JobID).
		Int("completed", event.Completed).
		Int("total", event.Total).
		Msg("share progress")
}

func (r LogReporter) Finished(summary domain.Summary) {
	event := r.log.Info()
	if summary.SucceededCount == 0 {
		event = r.log.Warn()
	}
	event.
		Str("job", summary.JobID).
		Int("succeeded", summary.SucceededCount).
		Int("requested", summary.RequestedCount).
		Bool("canceled", summary.Canceled).
		Msg("share finished")
}

// FuncReporter forwards each event as text, for front ends that edit a
// single status message.
type FuncReporter func(text string)

var _ ports.ProgressReporter = FuncReporter(nil)

func (f FuncReporter) Started(job domain.DispatchJob)      { f(StartedText(job)) }
func (f FuncReporter) Progress(event domain.ProgressEvent) { f(ProgressText(event)) }
func (f FuncReporter) Finished(summary domain.Summary)     { f(FinishedText(summary)) }
