package scheduler

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/usagekit/harvest-scheduler/internal/models"
)

type fakeConfigStore struct {
	cfg       *models.PeriodicConfig
	getErr    error
	upsertErr error
	upserted  *models.PeriodicConfig
}

func (f *fakeConfigStore) Get(ctx context.Context, tenantID string) (*models.PeriodicConfig, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	cp := *f.cfg
	return &cp, nil
}

func (f *fakeConfigStore) Upsert(ctx context.Context, tenantID string, cfg *models.PeriodicConfig) error {
	if f.upsertErr != nil {
		return f.upsertErr
	}
	f.upserted = cfg
	return nil
}

// countingTransport fails every request at the transport level.
type countingTransport struct {
	calls int32
}

func (t *countingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	atomic.AddInt32(&t.calls, 1)
	return nil, errors.New("connection refused")
}

func recurringJob() Job {
	return Job{
		Key:      JobKey{Name: "diku", Group: "diku"},
		Type:     JobRecurring,
		TenantID: "diku",
	}
}

func TestExecute_MissingRuntimeContext(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
	}))
	defer srv.Close()

	// constructed without a config store
	e := NewExecutor(nil, srv.Client(), srv.URL)

	err := e.Execute(context.Background(), recurringJob(), time.Now())
	if err == nil || !strings.Contains(err.Error(), "runtime context") {
		t.Fatalf("error = %v, expected runtime context failure", err)
	}
	if atomic.LoadInt32(&calls) != 0 {
		t.Errorf("observed %d HTTP calls, expected none", calls)
	}
}

func TestExecute_TransportFailure(t *testing.T) {
	transport := &countingTransport{}
	store := &fakeConfigStore{cfg: &models.PeriodicConfig{TenantID: "diku"}}
	e := NewExecutor(store, &http.Client{Transport: transport}, "http://harvester.local")

	err := e.Execute(context.Background(), recurringJob(), time.Now())
	if err == nil || !strings.Contains(err.Error(), "error connecting") {
		t.Fatalf("error = %v, expected connection failure", err)
	}
	if transport.calls != 1 {
		t.Errorf("observed %d HTTP attempts, expected exactly 1", transport.calls)
	}
	if store.upserted != nil {
		t.Error("config must not be written after a transport failure")
	}
}

func TestExecute_WebhookRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "no harvester here", http.StatusNotFound)
	}))
	defer srv.Close()

	store := &fakeConfigStore{cfg: &models.PeriodicConfig{TenantID: "diku"}}
	e := NewExecutor(store, srv.Client(), srv.URL)

	err := e.Execute(context.Background(), recurringJob(), time.Now())
	if err == nil || !strings.Contains(err.Error(), "404") {
		t.Fatalf("error = %v, expected a 404 failure", err)
	}
	if !strings.Contains(err.Error(), "no harvester here") {
		t.Errorf("error %v does not include the response body", err)
	}
	if store.upserted != nil {
		t.Error("lastTriggeredAt must remain unchanged after a rejected webhook")
	}
}

func TestExecute_Success(t *testing.T) {
	var gotTenant string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotTenant = r.Header.Get(HeaderTenant)
		if r.URL.Path != "/erm-usage-harvester/start" {
			t.Errorf("path = %q", r.URL.Path)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	startAt := time.Now().Add(-24 * time.Hour)
	store := &fakeConfigStore{cfg: &models.PeriodicConfig{TenantID: "diku", StartAt: startAt}}
	e := NewExecutor(store, srv.Client(), srv.URL)

	fireTime := time.Now()
	if err := e.Execute(context.Background(), recurringJob(), fireTime); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if gotTenant != "diku" {
		t.Errorf("tenant header = %q, expected %q", gotTenant, "diku")
	}
	if store.upserted == nil || store.upserted.LastTriggeredAt == nil {
		t.Fatal("lastTriggeredAt was not persisted")
	}
	if store.upserted.LastTriggeredAt.Before(fireTime) {
		t.Errorf("lastTriggeredAt = %v, expected >= fire time %v", store.upserted.LastTriggeredAt, fireTime)
	}
}

func TestExecute_PersistenceFailureAfterWebhookSuccess(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	store := &fakeConfigStore{
		cfg:       &models.PeriodicConfig{TenantID: "diku"},
		upsertErr: errors.New("db gone"),
	}
	e := NewExecutor(store, srv.Client(), srv.URL)

	err := e.Execute(context.Background(), recurringJob(), time.Now())
	if err == nil || !strings.Contains(err.Error(), "failed updating lastTriggeredAt") {
		t.Fatalf("error = %v, expected lastTriggeredAt failure", err)
	}
	// the harvest itself was started
	if atomic.LoadInt32(&calls) != 1 {
		t.Errorf("observed %d HTTP calls, expected 1", calls)
	}
}

func TestExecute_ManualProviderJob(t *testing.T) {
	var gotPath, gotToken string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotToken = r.Header.Get(HeaderToken)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	store := &fakeConfigStore{cfg: &models.PeriodicConfig{TenantID: "diku"}}
	e := NewExecutor(store, srv.Client(), srv.URL)

	job := Job{
		Key:        JobKey{Name: "provider-1", Group: "diku"},
		Type:       JobManualProvider,
		TenantID:   "diku",
		ProviderID: "provider-1",
		Token:      "tok",
	}
	if err := e.Execute(context.Background(), job, time.Now()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if gotPath != "/erm-usage-harvester/start/provider-1" {
		t.Errorf("path = %q", gotPath)
	}
	if gotToken != "tok" {
		t.Errorf("token header = %q, expected %q", gotToken, "tok")
	}
	if store.upserted != nil {
		t.Error("manual jobs must not write lastTriggeredAt")
	}
}

func TestExecute_ManualTenantJobSkipsBookkeeping(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	store := &fakeConfigStore{getErr: errors.New("must not be called")}
	e := NewExecutor(store, srv.Client(), srv.URL)

	job := Job{
		Key:      JobKey{Name: "diku", Group: "diku"},
		Type:     JobManualTenant,
		TenantID: "diku",
		Token:    "tok",
	}
	if err := e.Execute(context.Background(), job, time.Now()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
