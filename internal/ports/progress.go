package ports

import "github.com/bnema/fanout/internal/domain"

type ProgressReporter interface {
	Started(job domain.DispatchJob)
	Progress(event domain.ProgressEvent)
	Finished(summary domain.Summary)
}

type NopReporter struct{}

func (NopReporter) Started(domain.DispatchJob)    {}
func (NopReporter) Progress(domain.ProgressEvent) {}
func (NopReporter) Finished(domain.Summary)       {}

// MultiReporter fans every event out to each reporter in order.
type MultiReporter []ProgressReporter

func (m MultiReporter) Started(job domain.DispatchJob) {
	for _, r := range m {
		r.Started(job)
	}
}

func (m MultiReporter) Progress(event domain.ProgressEvent) {
	for _, r := range m {
		r.Progress(event)
	}
}

func (m MultiReporter) Finished(summary domain.Summary) {
	for _, r := range m {
		r.Finished(summary)
	}
}
