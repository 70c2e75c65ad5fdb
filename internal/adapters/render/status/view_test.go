package status

import (
	"testing"
	"time"

	"github.com/bnema/fanout/internal/application"
	"github.com/bnema/fanout/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderPoolStatus(t *testing.T) {
	now := time.Date(2026, 2, 14, 11, 0, 0, 0, time.UTC)

	output, err := Render(application.PoolStatus{
		Interval:  time.Minute,
		TotalUses: 4,
		Identities: []application.IdentityStatus{
			{Name: "bravo", Ready: true},
			{
				Name:       "alpha",
				UseCount:   4,
				LastUsedAt: now.Add(-40 * time.Second),
				NextFreeAt: now.Add(20 * time.Second),
			},
		},
	}, RenderOptions{Now: now})

	require.NoError(t, err)
	assert.Contains(t, output, "identities: 2")
	assert.Contains(t, output, "ready: 1")
	assert.Contains(t, output, "total uses: 4")
	assert.Contains(t, output, "rate window: 1m0s")
	assert.Contains(t, output, "bravo")
	assert.Contains(t, output, "last used: never")
	assert.Contains(t, output, "alpha")
	assert.Contains(t, output, "uses: 4")
	assert.Contains(t, output, "last used: 40s ago")
	assert.Contains(t, output, "ready in 20s (11:00:20)")
	assert.Contains(t, output, "[")
}

func TestRenderEmptyPool(t *testing.T) {
	output, err := Render(application.PoolStatus{Interval: time.Minute}, RenderOptions{})

	require.NoError(t, err)
	assert.Contains(t, output, "identities: 0")
	assert.Contains(t, output, "No identities configured.")
}

func TestRenderSummary(t *testing.T) {
	output, err := RenderSummary(domain.Summary{
		JobID:          "job-1",
		RequestedCount: 2,
		SucceededCount: 1,
		Outcomes: []domain.Outcome{
			{Identity: "alpha", Succeeded: true, Message: "shared"},
			{Identity: "bravo", Message: "status 500: boom"},
		},
	})

	require.NoError(t, err)
	assert.Contains(t, output, "Shared with 1/2 identities")
	assert.Contains(t, output, "job job-1")
	assert.Contains(t, output, "alpha")
	assert.Contains(t, output, "status 500: boom")
	assert.NotContains(t, output, "canceled")
}

func TestRenderSummaryCanceled(t *testing.T) {
	output, err := RenderSummary(domain.Summary{RequestedCount: 5, Canceled: true})

	require.NoError(t, err)
	assert.Contains(t, output, "Shared with 0/5 identities (canceled)")
}

func TestRecoveredPercent(t *testing.T) {
	now := time.Date(2026, 2, 14, 11, 0, 0, 0, time.UTC)

	waiting := application.IdentityStatus{NextFreeAt: now.Add(15 * time.Second)}
	assert.InDelta(t, 75.0, recoveredPercent(waiting, time.Minute, now), 0.001)
	assert.Equal(t, 100.0, recoveredPercent(application.IdentityStatus{Ready: true}, time.Minute, now))
}
