package cron

import (
	"context"
	"time"
)

// Job represents a scheduled task that runs inside the scheduler.
type Job interface {
	Name() string
	Run(ctx context.Context) error
}

// Entry pairs a job with its trigger cadence.
type Entry struct {
	Job      Job
	Interval time.Duration
}

// Registry tracks registered jobs.
type Registry struct {
	entries []Entry
}

// NewRegistry builds a registry preloaded with the provided entries.
func NewRegistry(entries ...Entry) *Registry {
	registry := &Registry{}
	for _, entry := range entries {
		registry.Register(entry.Job, entry.Interval)
	}
	return registry
}

// Register adds a job with its interval. Nil jobs are ignored; a
// non-positive interval falls back to the daily default.
func (r *Registry) Register(job Job, interval time.Duration) {
	if job == nil {
		return
	}
	if interval <= 0 {
		interval = defaultInterval
	}
	r.entries = append(r.entries, Entry{Job: job, Interval: interval})
}

// Entries returns the registered entries in the order they were added.
func (r *Registry) Entries() []Entry {
	entries := make([]Entry, len(r.entries))
	copy(entries, r.entries)
	return entries
}
