package scheduler

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/usagekit/harvest-scheduler/internal/models"
	"github.com/usagekit/harvest-scheduler/pkg/logger"
)

// Tenant-scoping headers on calls to the harvester's start interface.
const (
	HeaderTenant = "X-Okapi-Tenant"
	HeaderToken  = "X-Okapi-Token"
)

const startPath = "/erm-usage-harvester/start"

// ConfigStore is the executor's view of periodic-config persistence. The
// executor owns exactly one field of the record, LastTriggeredAt.
type ConfigStore interface {
	Get(ctx context.Context, tenantID string) (*models.PeriodicConfig, error)
	Upsert(ctx context.Context, tenantID string, cfg *models.PeriodicConfig) error
}

// Executor runs when a trigger fires: it calls the harvester's start
// interface and, for recurring jobs, persists the firing timestamp. All
// collaborators are resolved once at construction.
type Executor struct {
	configs ConfigStore
	client  *http.Client
	baseURL string
}

func NewExecutor(configs ConfigStore, client *http.Client, baseURL string) *Executor {
	return &Executor{
		configs: configs,
		client:  client,
		baseURL: strings.TrimSuffix(baseURL, "/"),
	}
}

// Execute is the single entry point for all job types. Each stage fails
// distinctly: missing runtime context means no webhook call was made; a
// persistence failure means the harvest was started but bookkeeping failed.
func (e *Executor) Execute(ctx context.Context, job Job, fireTime time.Time) error {
	if e.configs == nil || e.client == nil || e.baseURL == "" {
		return e.failf(job, "error getting runtime context")
	}

	url := e.baseURL + startPath
	if job.Type == JobManualProvider {
		url += "/" + job.ProviderID
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return e.failf(job, "error getting runtime context: %v", err)
	}
	req.Header.Set(HeaderTenant, job.TenantID)
	if job.Token != "" {
		req.Header.Set(HeaderToken, job.Token)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return e.failf(job, "error connecting to start interface: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return e.failf(job, "error starting job, received %d %s from start interface: %s",
			resp.StatusCode, http.StatusText(resp.StatusCode), strings.TrimSpace(string(body)))
	}

	logger.Infof("[Executor] tenant %s: job started", job.TenantID)

	if job.Type != JobRecurring {
		return nil
	}

	if err := e.updateLastTriggeredAt(ctx, job.TenantID, fireTime); err != nil {
		// The webhook already succeeded; this failure must not be read as
		// "harvest not started".
		return e.failf(job, "failed updating lastTriggeredAt: %v", err)
	}
	return nil
}

// updateLastTriggeredAt is a plain read-modify-write; an administrative
// update racing it can lose one of the two writes (no version check).
func (e *Executor) updateLastTriggeredAt(ctx context.Context, tenantID string, fireTime time.Time) error {
	cfg, err := e.configs.Get(ctx, tenantID)
	if err != nil {
		return err
	}
	ft := fireTime
	cfg.LastTriggeredAt = &ft
	return e.configs.Upsert(ctx, tenantID, cfg)
}

func (e *Executor) failf(job Job, format string, args ...interface{}) error {
	err := fmt.Errorf("tenant %s: %s", job.TenantID, fmt.Sprintf(format, args...))
	logger.Errorf("[Executor] %v", err)
	return err
}
