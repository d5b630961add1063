package services

import (
	"github.com/usagekit/harvest-scheduler/internal/models"
	"github.com/usagekit/harvest-scheduler/internal/scheduler"
	"github.com/usagekit/harvest-scheduler/pkg/logger"
	"gorm.io/gorm"
)

// JobRunService records firing outcomes delivered by the scheduler backend's
// completion listener and serves run-history queries.
type JobRunService struct {
	db *gorm.DB
}

func NewJobRunService(db *gorm.DB) *JobRunService {
	return &JobRunService{db: db}
}

// Listener returns the completion listener to register with the backend.
func (s *JobRunService) Listener() scheduler.CompletionListener {
	return func(res scheduler.Result) {
		finished := res.FinishedAt
		run := models.JobRun{
			ExecutionID: res.ExecutionID,
			JobName:     res.Key.Name,
			JobGroup:    res.Key.Group,
			Type:        string(res.Type),
			TenantID:    res.TenantID,
			FireTime:    res.FireTime,
			FinishedAt:  &finished,
			Status:      "succeeded",
		}
		if res.Err != nil {
			run.Status = "failed"
			run.Error = res.Err.Error()
		}
		if err := s.db.Create(&run).Error; err != nil {
			logger.Errorf("[JobRun] tenant %s: failed recording run %s: %v",
				res.TenantID, res.ExecutionID, err)
		}
	}
}

// ListByTenant returns the tenant's run history, newest first.
func (s *JobRunService) ListByTenant(tenantID string, page, pageSize int) ([]models.JobRun, int64, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}

	var runs []models.JobRun
	var total int64

	q := s.db.Model(&models.JobRun{}).Where("tenant_id = ?", tenantID)
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * pageSize
	if err := q.Order("fire_time DESC").Offset(offset).Limit(pageSize).Find(&runs).Error; err != nil {
		return nil, 0, err
	}

	return runs, total, nil
}
