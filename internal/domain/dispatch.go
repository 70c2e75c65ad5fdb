package domain

import (
	"fmt"
	"strings"
)

// Target is passed through to the executor untouched.
type Target string

const (
	DefaultShareCount = 5
	MaxFanout         = 20
)

type DispatchRequest struct {
	Target Target
	Count  int
	// Exclude names an identity that must not act for this request, usually
	// the requester's own identity.
	Exclude IdentityName
}

func (r DispatchRequest) Validate(maxFanout int) error {
	if maxFanout <= 0 {
		maxFanout = MaxFanout
	}
	if strings.TrimSpace(string(r.Target)) == "" {
		return fmt.Errorf("%w: target is required", ErrInvalidRequest)
	}
	if r.Count < 1 || r.Count > maxFanout {
		return fmt.Errorf("%w: count %d outside [1, %d]", ErrInvalidRequest, r.Count, maxFanout)
	}

	return nil
}

type Result struct {
	Succeeded bool
	Message   string
}

type Outcome struct {
	Identity  IdentityName
	Succeeded bool
	Message   string
}

type DispatchJob struct {
	ID             string
	Target         Target
	RequestedCount int
	Outcomes       []Outcome
}

func (j *DispatchJob) Record(outcome Outcome) {
	j.Outcomes = append(j.Outcomes, outcome)
}

func (j DispatchJob) Summary() Summary {
	outcomes := make([]Outcome, len(j.Outcomes))
	copy(outcomes, j.Outcomes)

	succeeded := 0
	for _, outcome := range outcomes {
		if outcome.Succeeded {
			succeeded++
		}
	}

	return Summary{
		JobID:          j.ID,
		Target:         j.Target,
		RequestedCount: j.RequestedCount,
		SucceededCount: succeeded,
		Outcomes:       outcomes,
	}
}

type Summary struct {
	JobID          string
	Target         Target
	RequestedCount int
	SucceededCount int
	Outcomes       []Outcome
	Canceled       bool
}

func (s Summary) Attempted() int {
	return len(s.Outcomes)
}

func (s Summary) String() string {
	return fmt.Sprintf("%d/%d succeeded", s.SucceededCount, s.RequestedCount)
}

type ProgressEvent struct {
	JobID     string
	Completed int
	Total     int
}
