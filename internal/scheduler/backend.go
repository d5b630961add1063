package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"github.com/usagekit/harvest-scheduler/internal/models"
	"github.com/usagekit/harvest-scheduler/pkg/logger"
	"gorm.io/gorm"
)

// JobHandler executes one fired job. The backend guarantees the completion
// listeners observe the outcome exactly once, whatever the handler does.
type JobHandler func(ctx context.Context, job Job, fireTime time.Time) error

// jobStore is the durable (name, group) keyed store behind the backend.
type jobStore interface {
	insert(job Job, cronSpec string, startAt time.Time) error
	get(key JobKey) (*models.ScheduledJob, error)
	updateTrigger(key JobKey, cronSpec string, startAt time.Time) error
	remove(key JobKey) (bool, error)
	exists(key JobKey) (bool, error)
	groupExists(group string) (bool, error)
	clearOneShots() error
}

// gormJobStore persists jobs through GORM; the composite unique index on
// (name, job_group) turns racing installs into conflicts.
type gormJobStore struct {
	db *gorm.DB
}

func (s *gormJobStore) insert(job Job, cronSpec string, startAt time.Time) error {
	row := &models.ScheduledJob{
		Name:       job.Key.Name,
		Group:      job.Key.Group,
		Type:       string(job.Type),
		TenantID:   job.TenantID,
		ProviderID: job.ProviderID,
		Token:      job.Token,
		CronSpec:   cronSpec,
		StartAt:    startAt,
	}
	if err := s.db.Create(row).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return fmt.Errorf("%w: job %s/%s", ErrAlreadyScheduled, job.Key.Group, job.Key.Name)
		}
		return err
	}
	return nil
}

func (s *gormJobStore) get(key JobKey) (*models.ScheduledJob, error) {
	var row models.ScheduledJob
	err := s.db.Where("name = ? AND job_group = ?", key.Name, key.Group).First(&row).Error
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (s *gormJobStore) updateTrigger(key JobKey, cronSpec string, startAt time.Time) error {
	return s.db.Model(&models.ScheduledJob{}).
		Where("name = ? AND job_group = ?", key.Name, key.Group).
		Updates(map[string]interface{}{"cron_spec": cronSpec, "start_at": startAt}).Error
}

func (s *gormJobStore) remove(key JobKey) (bool, error) {
	res := s.db.Where("name = ? AND job_group = ?", key.Name, key.Group).
		Delete(&models.ScheduledJob{})
	return res.RowsAffected > 0, res.Error
}

func (s *gormJobStore) exists(key JobKey) (bool, error) {
	var count int64
	err := s.db.Model(&models.ScheduledJob{}).
		Where("name = ? AND job_group = ?", key.Name, key.Group).
		Count(&count).Error
	return count > 0, err
}

func (s *gormJobStore) groupExists(group string) (bool, error) {
	var count int64
	err := s.db.Model(&models.ScheduledJob{}).
		Where("job_group = ?", group).
		Count(&count).Error
	return count > 0, err
}

func (s *gormJobStore) clearOneShots() error {
	return s.db.Where("type <> ?", string(JobRecurring)).
		Delete(&models.ScheduledJob{}).Error
}

// CronBackend is the production Backend: durable job rows plus an in-process
// cron runner for recurring triggers. Firings go through a Dispatcher (asynq
// when Redis is enabled, otherwise in-process); the executing worker is
// assumed to live in this process, which is what keeps per-job firings
// serial.
type CronBackend struct {
	mu         sync.Mutex
	store      jobStore
	cron       *cron.Cron
	entries    map[JobKey]cron.EntryID
	running    map[JobKey]bool
	dispatcher Dispatcher
	handler    JobHandler
	listeners  []CompletionListener
}

// NewCronBackend wires the backend to its job store and dispatcher. When the
// dispatcher is the sync fallback, the backend registers itself as its
// processor.
func NewCronBackend(db *gorm.DB, dispatcher Dispatcher) *CronBackend {
	return newBackend(&gormJobStore{db: db}, dispatcher)
}

func newBackend(store jobStore, dispatcher Dispatcher) *CronBackend {
	b := &CronBackend{
		store:      store,
		cron:       cron.New(),
		entries:    make(map[JobKey]cron.EntryID),
		running:    make(map[JobKey]bool),
		dispatcher: dispatcher,
	}
	if sd, ok := dispatcher.(*SyncDispatcher); ok {
		sd.SetProcessor(b.ProcessFiring)
	}
	return b
}

// SetHandler sets the executor invoked for every firing.
func (b *CronBackend) SetHandler(h JobHandler) {
	b.handler = h
}

// Start clears one-shot rows left over by a previous process (their firings
// are gone with it) and starts the trigger runner.
func (b *CronBackend) Start() error {
	if err := b.store.clearOneShots(); err != nil {
		return fmt.Errorf("clearing stale one-shot jobs: %w", err)
	}
	b.cron.Start()
	logger.Infof("[Scheduler] backend started")
	return nil
}

// Stop stops trigger evaluation and closes the dispatcher. In-flight firings
// run to completion.
func (b *CronBackend) Stop() {
	ctx := b.cron.Stop()
	<-ctx.Done()
	if err := b.dispatcher.Close(); err != nil {
		logger.Warnf("[Scheduler] closing dispatcher: %v", err)
	}
	logger.Infof("[Scheduler] backend stopped")
}

func (b *CronBackend) Exists(key JobKey) (bool, error) {
	return b.store.exists(key)
}

func (b *CronBackend) GroupExists(group string) (bool, error) {
	return b.store.groupExists(group)
}

// ScheduleJob installs a new durable recurring job and arms its trigger.
func (b *CronBackend) ScheduleJob(job Job, trigger *Trigger) error {
	if trigger == nil {
		return errors.New("recurring job requires a trigger")
	}
	if err := b.store.insert(job, trigger.Spec, trigger.StartAt); err != nil {
		return err
	}
	b.installTrigger(job, trigger)
	return nil
}

// RescheduleJob replaces the trigger of an existing job, preserving its
// identity and parameters.
func (b *CronBackend) RescheduleJob(key JobKey, trigger *Trigger) error {
	if trigger == nil {
		return errors.New("recurring job requires a trigger")
	}
	row, err := b.store.get(key)
	if err != nil {
		return fmt.Errorf("rescheduling %s/%s: %w", key.Group, key.Name, err)
	}
	if err := b.store.updateTrigger(key, trigger.Spec, trigger.StartAt); err != nil {
		return err
	}
	b.installTrigger(jobFromRow(row), trigger)
	return nil
}

// FireNow installs a one-shot job and dispatches it immediately. The durable
// row exists while the job is scheduled or running and is removed on
// completion; a concurrent install of the same key fails on it.
func (b *CronBackend) FireNow(job Job) error {
	if err := b.store.insert(job, "", time.Now()); err != nil {
		return err
	}
	b.fire(job, time.Now())
	return nil
}

// DeleteJob removes the job row and disarms its trigger.
func (b *CronBackend) DeleteJob(key JobKey) (bool, error) {
	b.mu.Lock()
	if id, ok := b.entries[key]; ok {
		b.cron.Remove(id)
		delete(b.entries, key)
	}
	b.mu.Unlock()
	return b.store.remove(key)
}

func (b *CronBackend) AddCompletionListener(l CompletionListener) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.listeners = append(b.listeners, l)
}

// installTrigger arms the cron entry for a recurring job and applies the
// fire-and-proceed misfire policy: an occurrence that fell between the
// trigger's effective start and now fires once promptly, never as a backlog.
func (b *CronBackend) installTrigger(job Job, trigger *Trigger) {
	b.mu.Lock()
	if id, ok := b.entries[job.Key]; ok {
		b.cron.Remove(id)
	}
	b.entries[job.Key] = b.cron.Schedule(trigger, cron.FuncJob(func() {
		b.fire(job, time.Now())
	}))
	b.mu.Unlock()

	now := time.Now()
	first := trigger.Next(trigger.StartAt.Add(-time.Nanosecond))
	if !first.After(now) {
		logger.Infof("[Scheduler] tenant %s: misfired trigger at %s, firing once",
			job.TenantID, first.Format(time.RFC3339))
		b.fire(job, now)
	}
}

// fire hands one firing to the dispatcher, skipping it if the previous
// execution of the same job is still running.
func (b *CronBackend) fire(job Job, fireTime time.Time) {
	b.mu.Lock()
	if b.running[job.Key] {
		b.mu.Unlock()
		logger.Warnf("[Scheduler] tenant %s: previous execution of %s/%s still running, skipping firing",
			job.TenantID, job.Key.Group, job.Key.Name)
		return
	}
	b.running[job.Key] = true
	b.mu.Unlock()

	f := &Firing{
		ExecutionID: uuid.NewString(),
		Job:         job,
		FireTime:    fireTime,
	}
	if err := b.dispatcher.Dispatch(f); err != nil {
		b.complete(f, fmt.Errorf("dispatching firing: %w", err))
	}
}

// ProcessFiring executes one dispatched firing. The completion listeners are
// notified exactly once, even if the handler panics.
func (b *CronBackend) ProcessFiring(ctx context.Context, f *Firing) (runErr error) {
	defer func() {
		if r := recover(); r != nil {
			runErr = fmt.Errorf("panic during job execution: %v", r)
		}
		b.complete(f, runErr)
	}()

	if b.handler == nil {
		return errors.New("no job handler registered")
	}
	return b.handler(ctx, f.Job, f.FireTime)
}

// complete finishes one firing: clears the running flag, removes one-shot
// rows, and notifies listeners.
func (b *CronBackend) complete(f *Firing, err error) {
	finished := time.Now()

	b.mu.Lock()
	delete(b.running, f.Job.Key)
	listeners := make([]CompletionListener, len(b.listeners))
	copy(listeners, b.listeners)
	b.mu.Unlock()

	if f.Job.Type != JobRecurring {
		if _, remErr := b.store.remove(f.Job.Key); remErr != nil {
			logger.Warnf("[Scheduler] tenant %s: removing one-shot job %s/%s: %v",
				f.Job.TenantID, f.Job.Key.Group, f.Job.Key.Name, remErr)
		}
	}

	res := Result{
		ExecutionID: f.ExecutionID,
		Key:         f.Job.Key,
		Type:        f.Job.Type,
		TenantID:    f.Job.TenantID,
		FireTime:    f.FireTime,
		FinishedAt:  finished,
		Err:         err,
	}
	for _, l := range listeners {
		l(res)
	}
}

func jobFromRow(row *models.ScheduledJob) Job {
	return Job{
		Key:        JobKey{Name: row.Name, Group: row.Group},
		Type:       JobType(row.Type),
		TenantID:   row.TenantID,
		ProviderID: row.ProviderID,
		Token:      row.Token,
	}
}
