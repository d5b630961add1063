package scheduler

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/hibiken/asynq"
	"github.com/usagekit/harvest-scheduler/internal/config"
	"github.com/usagekit/harvest-scheduler/pkg/logger"
)

const (
	TaskTypeHarvestFire = "harvest:fire"
)

// Firing is the payload carried for a single job firing, from the trigger
// side to whichever process executes it.
type Firing struct {
	ExecutionID string    `json:"execution_id"`
	Job         Job       `json:"job"`
	FireTime    time.Time `json:"fire_time"`
}

// Dispatcher hands fired jobs to an executor process.
type Dispatcher interface {
	// Dispatch hands off one firing; execution proceeds asynchronously.
	Dispatch(f *Firing) error
	// IsAsync returns true if firings are processed by a separate worker.
	IsAsync() bool
	// Close gracefully shuts down the dispatcher.
	Close() error
}

// NewDispatcher returns a Redis-backed dispatcher when Redis is enabled and
// reachable, otherwise the in-process sync dispatcher.
func NewDispatcher(cfg *config.Config) Dispatcher {
	if cfg.Redis.Enabled {
		d, err := NewAsyncDispatcher(&cfg.Redis)
		if err != nil {
			logger.Infof("[Dispatch] Redis unavailable, falling back to sync mode: %v", err)
			return NewSyncDispatcher()
		}
		logger.Infof("[Dispatch] Async dispatch initialized with Redis at %s", cfg.Redis.Addr)
		return d
	}
	logger.Infof("[Dispatch] Sync dispatch initialized (Redis disabled)")
	return NewSyncDispatcher()
}

// AsyncDispatcher implements Dispatcher using asynq (Redis-based).
type AsyncDispatcher struct {
	client *asynq.Client
}

// NewAsyncDispatcher creates a Redis-backed dispatcher, verifying the
// connection up front.
func NewAsyncDispatcher(cfg *config.RedisConfig) (*AsyncDispatcher, error) {
	redisOpt := asynq.RedisClientOpt{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	}

	client := asynq.NewClient(redisOpt)

	inspector := asynq.NewInspector(redisOpt)
	defer inspector.Close()

	if _, err := inspector.Queues(); err != nil {
		client.Close()
		return nil, err
	}

	return &AsyncDispatcher{client: client}, nil
}

// Dispatch enqueues the firing for the async worker. Firings are never
// retried by the queue; the next scheduled firing is the de facto retry.
func (d *AsyncDispatcher) Dispatch(f *Firing) error {
	payload, err := json.Marshal(f)
	if err != nil {
		return err
	}

	t := asynq.NewTask(TaskTypeHarvestFire, payload)
	info, err := d.client.Enqueue(t,
		asynq.Queue("default"),
		asynq.MaxRetry(0),
	)
	if err != nil {
		return err
	}

	logger.Infof("[Dispatch] Firing enqueued: id=%s, execution=%s", info.ID, f.ExecutionID)
	return nil
}

func (d *AsyncDispatcher) IsAsync() bool {
	return true
}

func (d *AsyncDispatcher) Close() error {
	return d.client.Close()
}

// SyncDispatcher implements Dispatcher with in-process execution (no Redis).
type SyncDispatcher struct {
	processor func(context.Context, *Firing) error
}

func NewSyncDispatcher() *SyncDispatcher {
	return &SyncDispatcher{}
}

// SetProcessor sets the function that executes firings in-process.
func (d *SyncDispatcher) SetProcessor(processor func(context.Context, *Firing) error) {
	d.processor = processor
}

// Dispatch runs the firing in a goroutine so the trigger loop is not blocked.
func (d *SyncDispatcher) Dispatch(f *Firing) error {
	if d.processor == nil {
		logger.Warnf("[Dispatch] no processor set, firing %s dropped", f.ExecutionID)
		return nil
	}

	go func() {
		if err := d.processor(context.Background(), f); err != nil {
			logger.Infof("[Dispatch] firing %s failed: %v", f.ExecutionID, err)
		}
	}()

	return nil
}

func (d *SyncDispatcher) IsAsync() bool {
	return false
}

func (d *SyncDispatcher) Close() error {
	return nil
}

// Worker processes dispatched firings from the Redis queue.
type Worker struct {
	server    *asynq.Server
	mux       *asynq.ServeMux
	processor func(context.Context, *Firing) error
	wg        sync.WaitGroup
	running   bool
	mu        sync.Mutex
}

// NewWorker creates a worker instance; returns nil when Redis is disabled.
func NewWorker(cfg *config.RedisConfig) *Worker {
	if !cfg.Enabled {
		return nil
	}

	redisOpt := asynq.RedisClientOpt{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	}

	server := asynq.NewServer(
		redisOpt,
		asynq.Config{
			Concurrency: 10,
			Queues: map[string]int{
				"default": 1,
			},
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				logger.Infof("[Worker] Error processing task %s: %v", task.Type(), err)
			}),
		},
	)

	return &Worker{
		server: server,
		mux:    asynq.NewServeMux(),
	}
}

// SetProcessor sets the function that executes firings.
func (w *Worker) SetProcessor(processor func(context.Context, *Firing) error) {
	w.processor = processor
}

// Start begins processing firings.
func (w *Worker) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.running {
		return nil
	}

	w.mux.HandleFunc(TaskTypeHarvestFire, w.handleFiring)

	w.running = true
	w.wg.Add(1)

	go func() {
		defer w.wg.Done()
		logger.Infof("[Worker] Starting async worker...")
		if err := w.server.Run(w.mux); err != nil {
			logger.Infof("[Worker] Server error: %v", err)
		}
	}()

	return nil
}

// Stop gracefully shuts down the worker.
func (w *Worker) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.running {
		return
	}

	logger.Infof("[Worker] Shutting down...")
	w.server.Shutdown()
	w.running = false
	w.wg.Wait()
	logger.Infof("[Worker] Shutdown complete")
}

// handleFiring processes a single dispatched firing.
func (w *Worker) handleFiring(ctx context.Context, t *asynq.Task) error {
	var f Firing
	if err := json.Unmarshal(t.Payload(), &f); err != nil {
		logger.Infof("[Worker] Failed to unmarshal firing: %v", err)
		return err
	}

	logger.Infof("[Worker] Processing firing: execution=%s, tenant=%s, job=%s/%s",
		f.ExecutionID, f.Job.TenantID, f.Job.Key.Group, f.Job.Key.Name)

	if w.processor == nil {
		logger.Warnf("[Worker] no processor set")
		return nil
	}

	return w.processor(ctx, &f)
}
