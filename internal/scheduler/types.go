package scheduler

import (
	"errors"
	"time"
)

// ErrAlreadyScheduled is returned when installing a job whose (name, group)
// key, or one mutually exclusive with it, already exists in the job store.
var ErrAlreadyScheduled = errors.New("job already scheduled")

// JobType tags the three kinds of harvest jobs sharing the job-store key
// space. A single executor entry point branches on the tag.
type JobType string

const (
	JobRecurring      JobType = "recurring"
	JobManualTenant   JobType = "manual_tenant"
	JobManualProvider JobType = "manual_provider"
)

// JobKey is the two-part identity addressing a job in the backend.
// Recurring and manual tenant jobs use (tenant, tenant); provider jobs use
// (provider, tenant), giving one in-flight job per (tenant, provider) pair.
type JobKey struct {
	Name  string
	Group string
}

// Job carries the opaque parameters attached to a scheduled job.
type Job struct {
	Key        JobKey
	Type       JobType
	TenantID   string
	ProviderID string
	Token      string
}

// Result is delivered to completion listeners exactly once per firing.
// Err non-nil means the firing failed; a bookkeeping failure after the start
// call still means the harvest itself was started.
type Result struct {
	ExecutionID string
	Key         JobKey
	Type        JobType
	TenantID    string
	FireTime    time.Time
	FinishedAt  time.Time
	Err         error
}

// CompletionListener observes job firing outcomes.
type CompletionListener func(Result)

// Backend is the durable job/trigger store the registry and executor are
// written against. Implementations guarantee (name, group) uniqueness and
// invoke every registered completion listener exactly once per firing.
type Backend interface {
	// Exists reports whether a job with the given key is scheduled or running.
	Exists(key JobKey) (bool, error)
	// GroupExists reports whether any job exists in the given group.
	GroupExists(group string) (bool, error)
	// ScheduleJob installs a new durable recurring job.
	ScheduleJob(job Job, trigger *Trigger) error
	// RescheduleJob replaces the trigger of an existing job in place.
	RescheduleJob(key JobKey, trigger *Trigger) error
	// FireNow installs a one-shot job and runs it immediately, exactly once.
	FireNow(job Job) error
	// DeleteJob removes a job; found is false if no such job existed.
	DeleteJob(key JobKey) (found bool, err error)
	// AddCompletionListener registers a listener for firing outcomes.
	AddCompletionListener(l CompletionListener)
}
