package scheduler

import (
	"fmt"
	"time"

	"github.com/usagekit/harvest-scheduler/internal/models"
	"github.com/usagekit/harvest-scheduler/pkg/logger"
)

// Registry mediates all mutations to the scheduler's job store. It holds an
// explicit backend handle; there is no process-global scheduler.
type Registry struct {
	backend Backend
}

func NewRegistry(backend Backend) *Registry {
	return &Registry{backend: backend}
}

// ScheduleProviderJob installs a one-shot "run now" harvest job for a single
// provider. At most one job per (tenant, provider) pair may be scheduled or
// running; a second call before the first completes fails with
// ErrAlreadyScheduled.
func (r *Registry) ScheduleProviderJob(tenantID, token, providerID string) error {
	key := JobKey{Name: providerID, Group: tenantID}

	exists, err := r.backend.Exists(key)
	if err != nil {
		return err
	}
	if exists {
		return fmt.Errorf("%w: a job for provider %q is already scheduled or running", ErrAlreadyScheduled, providerID)
	}

	return r.backend.FireNow(Job{
		Key:        key,
		Type:       JobManualProvider,
		TenantID:   tenantID,
		ProviderID: providerID,
		Token:      token,
	})
}

// ScheduleTenantJob installs a one-shot "run now" harvest job covering the
// whole tenant. It conflicts with the reserved (tenant, tenant) key and with
// any other job in the tenant's group, so a full-tenant harvest never
// overlaps provider harvests scheduled under other names.
func (r *Registry) ScheduleTenantJob(tenantID, token string) error {
	key := JobKey{Name: tenantID, Group: tenantID}

	exists, err := r.backend.Exists(key)
	if err != nil {
		return err
	}
	if !exists {
		exists, err = r.backend.GroupExists(tenantID)
		if err != nil {
			return err
		}
	}
	if exists {
		return fmt.Errorf("%w: harvesting for tenant %q is already in progress", ErrAlreadyScheduled, tenantID)
	}

	return r.backend.FireNow(Job{
		Key:      key,
		Type:     JobManualTenant,
		TenantID: tenantID,
		Token:    token,
	})
}

// CreateOrUpdateJob compiles the tenant's periodic config into a trigger and
// installs or replaces the tenant's recurring job. An absent config is a
// logged no-op; an unrecognized cadence is logged and leaves existing state
// untouched. Backend errors propagate.
func (r *Registry) CreateOrUpdateJob(cfg *models.PeriodicConfig, tenantID string) error {
	if cfg == nil {
		logger.Infof("[Registry] tenant %s: no periodic config present", tenantID)
		return nil
	}

	trigger := Compile(cfg)
	if trigger == nil {
		logger.Errorf("[Registry] tenant %s: error creating job trigger", tenantID)
		return nil
	}

	key := JobKey{Name: tenantID, Group: tenantID}
	exists, err := r.backend.Exists(key)
	if err != nil {
		return err
	}

	if exists {
		if err := r.backend.RescheduleJob(key, trigger); err != nil {
			logger.Errorf("[Registry] tenant %s: error rescheduling job: %v", tenantID, err)
			return err
		}
		logger.Infof("[Registry] tenant %s: updated job trigger, next trigger: %s",
			tenantID, trigger.Next(time.Now()).Format(time.RFC3339))
		return nil
	}

	job := Job{Key: key, Type: JobRecurring, TenantID: tenantID}
	if err := r.backend.ScheduleJob(job, trigger); err != nil {
		logger.Errorf("[Registry] tenant %s: error scheduling job: %v", tenantID, err)
		return err
	}
	logger.Infof("[Registry] tenant %s: scheduled new job, next trigger: %s",
		tenantID, trigger.Next(time.Now()).Format(time.RFC3339))
	return nil
}

// DeleteJob removes the tenant's recurring job. Deleting a non-existent
// schedule is not a failure; it logs a warning and leaves state unchanged.
func (r *Registry) DeleteJob(tenantID string) error {
	key := JobKey{Name: tenantID, Group: tenantID}

	found, err := r.backend.DeleteJob(key)
	if err != nil {
		logger.Errorf("[Registry] tenant %s: error deleting job: %v", tenantID, err)
		return err
	}
	if !found {
		logger.Warnf("[Registry] tenant %s: no scheduled job found", tenantID)
		return nil
	}
	logger.Infof("[Registry] tenant %s: removed job from schedule", tenantID)
	return nil
}
