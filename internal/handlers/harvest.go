package handlers

import (
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/usagekit/harvest-scheduler/internal/middleware"
	"github.com/usagekit/harvest-scheduler/internal/scheduler"
	"github.com/usagekit/harvest-scheduler/pkg/response"
)

// HarvestHandler schedules one-off manual harvest jobs.
type HarvestHandler struct {
	registry *scheduler.Registry
}

func NewHarvestHandler(registry *scheduler.Registry) *HarvestHandler {
	return &HarvestHandler{registry: registry}
}

// StartTenant schedules an immediate full-tenant harvest job.
func (h *HarvestHandler) StartTenant(c *gin.Context) {
	tenantID := c.GetString(middleware.ContextTenantID)
	token := c.GetString(middleware.ContextToken)

	if err := h.registry.ScheduleTenantJob(tenantID, token); err != nil {
		if errors.Is(err, scheduler.ErrAlreadyScheduled) {
			response.Fail(c, response.NewConflict(err.Error()))
			return
		}
		response.Fail(c, err)
		return
	}
	response.Success(c, gin.H{"message": "harvesting scheduled for tenant " + tenantID})
}

// StartProvider schedules an immediate harvest job for a single provider.
func (h *HarvestHandler) StartProvider(c *gin.Context) {
	tenantID := c.GetString(middleware.ContextTenantID)
	token := c.GetString(middleware.ContextToken)
	providerID := c.Param("providerId")

	if err := h.registry.ScheduleProviderJob(tenantID, token, providerID); err != nil {
		if errors.Is(err, scheduler.ErrAlreadyScheduled) {
			response.Fail(c, response.NewConflict(err.Error()))
			return
		}
		response.Fail(c, err)
		return
	}
	response.Success(c, gin.H{"message": "harvesting scheduled for provider " + providerID})
}
