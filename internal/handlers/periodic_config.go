package handlers

import (
	"errors"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/usagekit/harvest-scheduler/internal/middleware"
	"github.com/usagekit/harvest-scheduler/internal/models"
	"github.com/usagekit/harvest-scheduler/internal/scheduler"
	"github.com/usagekit/harvest-scheduler/internal/services"
	"github.com/usagekit/harvest-scheduler/pkg/response"
)

// PeriodicConfigHandler administers a tenant's periodic harvest
// configuration; every change is pushed through the job registry so the
// schedule always reflects the stored config.
type PeriodicConfigHandler struct {
	configs  *services.PeriodicConfigService
	registry *scheduler.Registry
}

func NewPeriodicConfigHandler(configs *services.PeriodicConfigService, registry *scheduler.Registry) *PeriodicConfigHandler {
	return &PeriodicConfigHandler{configs: configs, registry: registry}
}

type periodicConfigRequest struct {
	StartAt          time.Time `json:"startAt" binding:"required"`
	PeriodicInterval string    `json:"periodicInterval" binding:"required"`
}

// Get returns the tenant's periodic config.
func (h *PeriodicConfigHandler) Get(c *gin.Context) {
	tenantID := c.GetString(middleware.ContextTenantID)

	cfg, err := h.configs.Get(c.Request.Context(), tenantID)
	if err != nil {
		if errors.Is(err, services.ErrConfigNotFound) {
			response.Fail(c, response.NewNotFound("no periodic config for tenant "+tenantID))
			return
		}
		response.Fail(c, err)
		return
	}
	response.Success(c, cfg)
}

// Upsert stores the tenant's periodic config and creates or updates the
// recurring job accordingly.
func (h *PeriodicConfigHandler) Upsert(c *gin.Context) {
	tenantID := c.GetString(middleware.ContextTenantID)

	var req periodicConfigRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Fail(c, response.NewBadRequest(err.Error()))
		return
	}
	switch req.PeriodicInterval {
	case models.IntervalDaily, models.IntervalWeekly, models.IntervalMonthly:
	default:
		response.Fail(c, response.NewBadRequest("periodicInterval must be daily, weekly or monthly"))
		return
	}

	cfg := &models.PeriodicConfig{
		StartAt:          req.StartAt,
		PeriodicInterval: req.PeriodicInterval,
	}
	// lastTriggeredAt is owned by the executor; carry it over untouched.
	if existing, err := h.configs.Get(c.Request.Context(), tenantID); err == nil {
		cfg.LastTriggeredAt = existing.LastTriggeredAt
	}

	if err := h.configs.Upsert(c.Request.Context(), tenantID, cfg); err != nil {
		response.Fail(c, err)
		return
	}
	if err := h.registry.CreateOrUpdateJob(cfg, tenantID); err != nil {
		response.Fail(c, response.NewServerError("config stored but scheduling failed: "+err.Error()))
		return
	}

	response.Success(c, cfg)
}

// Delete removes the tenant's periodic config and its recurring job.
func (h *PeriodicConfigHandler) Delete(c *gin.Context) {
	tenantID := c.GetString(middleware.ContextTenantID)

	found, err := h.configs.Delete(c.Request.Context(), tenantID)
	if err != nil {
		response.Fail(c, err)
		return
	}
	if !found {
		response.Fail(c, response.NewNotFound("no periodic config for tenant "+tenantID))
		return
	}

	if err := h.registry.DeleteJob(tenantID); err != nil {
		response.Fail(c, err)
		return
	}
	response.NoContent(c)
}
