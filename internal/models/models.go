package models

import "time"

// Periodic interval values accepted by the trigger compiler. Anything else
// disables scheduling for the tenant.
const (
	IntervalDaily   = "daily"
	IntervalWeekly  = "weekly"
	IntervalMonthly = "monthly"
)

// PeriodicConfig is a tenant's recurring harvest configuration. At most one
// row exists per tenant. StartAt anchors the time of day and, for weekly and
// monthly cadences, the day of week / day of month. LastTriggeredAt is written
// only by the job executor after a successful firing.
type PeriodicConfig struct {
	ID               uint       `gorm:"primaryKey" json:"id"`
	TenantID         string     `gorm:"uniqueIndex;size:63;not null" json:"tenantId"`
	StartAt          time.Time  `gorm:"not null" json:"startAt"`
	PeriodicInterval string     `gorm:"size:16;not null" json:"periodicInterval"`
	LastTriggeredAt  *time.Time `json:"lastTriggeredAt,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

func (PeriodicConfig) TableName() string { return "periodic_configs" }

// ScheduledJob is a durable row in the scheduler's job store. The composite
// unique index on (name, job_group) is the final authority for the
// one-job-per-key invariant; a racing second install fails on it.
type ScheduledJob struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	Name       string    `gorm:"uniqueIndex:idx_job_name_group;size:100;not null" json:"name"`
	Group      string    `gorm:"uniqueIndex:idx_job_name_group;column:job_group;size:100;not null" json:"group"`
	Type       string    `gorm:"size:20;not null" json:"type"` // recurring, manual_tenant, manual_provider
	TenantID   string    `gorm:"size:63;index;not null" json:"tenant_id"`
	ProviderID string    `gorm:"size:100" json:"provider_id,omitempty"`
	Token      string    `gorm:"type:text" json:"-"`
	CronSpec   string    `gorm:"size:50" json:"cron_spec,omitempty"`
	StartAt    time.Time `json:"start_at"`
	CreatedAt  time.Time `json:"created_at"`
}

func (ScheduledJob) TableName() string { return "scheduled_jobs" }

// JobRun records the outcome of a single firing, written through the
// scheduler backend's completion listener.
type JobRun struct {
	ID          uint       `gorm:"primaryKey" json:"id"`
	ExecutionID string     `gorm:"size:36;index" json:"execution_id"`
	JobName     string     `gorm:"size:100" json:"job_name"`
	JobGroup    string     `gorm:"size:100" json:"job_group"`
	Type        string     `gorm:"size:20" json:"type"`
	TenantID    string     `gorm:"size:63;index" json:"tenant_id"`
	FireTime    time.Time  `json:"fire_time"`
	FinishedAt  *time.Time `json:"finished_at,omitempty"`
	Status      string     `gorm:"size:20;index" json:"status"` // succeeded, failed
	Error       string     `gorm:"type:text" json:"error,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

func (JobRun) TableName() string { return "job_runs" }
