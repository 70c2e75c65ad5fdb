package progress

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/bnema/fanout/internal/domain"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLineReporterWritesEachEvent(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer
	reporter := NewLineReporter(&out)

	reporter.Started(domain.DispatchJob{RequestedCount: 5})
	reporter.Progress(domain.ProgressEvent{Completed: 4, Total: 5})
	reporter.Finished(domain.Summary{RequestedCount: 5, SucceededCount: 3})

	assert.Equal(t, []string{
		"Starting to share with 5 identities...",
		"Sharing... (4/5)",
		"Shared with 3/5 identities",
	}, strings.Split(strings.TrimSpace(out.String()), "\n"))
}

func TestFinishedTextMentionsCancellation(t *testing.T) {
	t.Parallel()

	text := FinishedText(domain.Summary{
		RequestedCount: 5,
		SucceededCount: 1,
		Outcomes:       []domain.Outcome{{Succeeded: true}, {}},
		Canceled:       true,
	})
	assert.Equal(t, "Shared with 1/5 identities (canceled after 2 attempts)", text)
}

func TestLogReporterEmitsStructuredFields(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer
	reporter := NewLogReporter(zerolog.New(&out))

	reporter.Finished(domain.Summary{JobID: "job-1", RequestedCount: 2})

	var entry map[string]any
	require.NoError(t, json.Unmarshal(out.Bytes(), &entry))
	assert.Equal(t, "warn", entry["level"])
	assert.Equal(t, "job-1", entry["job"])
	assert.Equal(t, "share finished", entry["message"])
	assert.EqualValues(t, 2, entry["requested"])
}

func TestFuncReporterForwardsText(t *testing.T) {
	t.Parallel()

	var texts []string
	reporter := FuncReporter(func(text string) { texts = append(texts, text) })

	reporter.Started(domain.DispatchJob{RequestedCount: 2})
	reporter.Progress(domain.ProgressEvent{Completed: 1, Total: 2})

	assert.Equal(t, []string{"Starting to share with 2 identities...", "Sharing... (1/2)"}, texts)
}
