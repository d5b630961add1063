package main

import (
	"context"
	"net/http"
	"time"

	"github.com/usagekit/harvest-scheduler/internal/config"
	"github.com/usagekit/harvest-scheduler/internal/handlers"
	"github.com/usagekit/harvest-scheduler/internal/models"
	"github.com/usagekit/harvest-scheduler/internal/scheduler"
	"github.com/usagekit/harvest-scheduler/internal/services"
	"github.com/usagekit/harvest-scheduler/pkg/logger"
)

// appServices holds all initialized services and handlers needed by the application.
type appServices struct {
	configService *services.PeriodicConfigService
	runService    *services.JobRunService
	backend       *scheduler.CronBackend
	registry      *scheduler.Registry
	worker        *scheduler.Worker

	periodicHandler *handlers.PeriodicConfigHandler
	harvestHandler  *handlers.HarvestHandler
	runHandler      *handlers.JobRunHandler
}

// bootstrap initializes all application dependencies: database, scheduler
// backend, executor, and schedules for every stored periodic config.
func bootstrap(cfg *config.Config) *appServices {
	if err := models.InitDB(&cfg.Database); err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}
	if err := models.AutoMigrate(); err != nil {
		logger.Fatalf("Failed to migrate database: %v", err)
	}

	configService := services.NewPeriodicConfigService(models.GetDB())
	runService := services.NewJobRunService(models.GetDB())

	// Scheduler backend: asynq dispatch when Redis is enabled, sync otherwise
	dispatcher := scheduler.NewDispatcher(cfg)
	backend := scheduler.NewCronBackend(models.GetDB(), dispatcher)

	executor := scheduler.NewExecutor(
		configService,
		&http.Client{Timeout: 30 * time.Second},
		cfg.Harvester.BaseURL,
	)
	backend.SetHandler(executor.Execute)
	backend.AddCompletionListener(runService.Listener())

	if err := backend.Start(); err != nil {
		logger.Fatalf("Failed to start scheduler backend: %v", err)
	}

	// Start async worker if Redis dispatch is active
	var worker *scheduler.Worker
	if dispatcher.IsAsync() {
		worker = scheduler.NewWorker(&cfg.Redis)
		if worker != nil {
			worker.SetProcessor(backend.ProcessFiring)
			worker.Start()
		}
	}

	registry := scheduler.NewRegistry(backend)
	rescheduleAll(configService, registry)

	return &appServices{
		configService:   configService,
		runService:      runService,
		backend:         backend,
		registry:        registry,
		worker:          worker,
		periodicHandler: handlers.NewPeriodicConfigHandler(configService, registry),
		harvestHandler:  handlers.NewHarvestHandler(registry),
		runHandler:      handlers.NewJobRunHandler(runService),
	}
}

// rescheduleAll reinstalls the recurring job for every stored periodic
// config, so schedules survive restarts and missed firings catch up once.
func rescheduleAll(configService *services.PeriodicConfigService, registry *scheduler.Registry) {
	configs, err := configService.ListAll(context.Background())
	if err != nil {
		logger.Errorf("Failed to load periodic configs: %v", err)
		return
	}
	for i := range configs {
		cfg := configs[i]
		if err := registry.CreateOrUpdateJob(&cfg, cfg.TenantID); err != nil {
			logger.Errorf("Tenant %s: failed to restore schedule: %v", cfg.TenantID, err)
		}
	}
	logger.Infof("Restored schedules for %d periodic config(s)", len(configs))
}

// shutdown gracefully stops all services.
func (s *appServices) shutdown() {
	if s.worker != nil {
		s.worker.Stop()
	}
	s.backend.Stop()
	logger.Info().Msg("Scheduler stopped")
}
