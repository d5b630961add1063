package handlers

import (
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/usagekit/harvest-scheduler/internal/middleware"
	"github.com/usagekit/harvest-scheduler/internal/services"
	"github.com/usagekit/harvest-scheduler/pkg/response"
)

// JobRunHandler serves the tenant's firing history.
type JobRunHandler struct {
	runs *services.JobRunService
}

func NewJobRunHandler(runs *services.JobRunService) *JobRunHandler {
	return &JobRunHandler{runs: runs}
}

// List returns the tenant's job runs, newest first.
func (h *JobRunHandler) List(c *gin.Context) {
	tenantID := c.GetString(middleware.ContextTenantID)

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))

	runs, total, err := h.runs.ListByTenant(tenantID, page, pageSize)
	if err != nil {
		response.Fail(c, err)
		return
	}

	response.Success(c, gin.H{
		"total":     total,
		"page":      page,
		"page_size": pageSize,
		"items":     runs,
	})
}
