package cron

import (
	"context"
	"time"
)

// Job is one unit of scheduled work.
type Job interface {
	Name() string
	Run(ctx context.Context) error
}

// Entry pairs a job with how often it should run. A zero Every runs the job
// on every cycle.
type Entry struct {
	Job   Job
	Every time.Duration
}

// Registry tracks registered jobs in registration order.
type Registry struct {
	entries []Entry
}

func NewRegistry(entries ...Entry) *Registry {
	registry := &Registry{}
	for _, e := range entries {
		registry.Register(e.Job, e.Every)
	}
	return registry
}

func (r *Registry) Register(job Job, every time.Duration) {
	if job == nil {
		return
	}
	if every < 0 {
		every = 0
	}
	r.entries = append(r.entries, Entry{Job: job, Every: every})
}

// Entries returns a copy of the registered entries.
func (r *Registry) Entries() []Entry {
	out := make([]Entry, len(r.entries))
	copy(out, r.entries)
	return out
}
