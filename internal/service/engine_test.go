package service

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dynrelay/dynrelay/internal/config"
	"github.com/dynrelay/dynrelay/internal/connector"
	"github.com/dynrelay/dynrelay/internal/domain"
	"github.com/dynrelay/dynrelay/internal/dynatrace"
	"github.com/dynrelay/dynrelay/internal/repository"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type fakeFetcher struct {
	results []*dynatrace.FetchResult
	err     error
	calls   int
}

func (f *fakeFetcher) FetchProblems(ctx context.Context) (*dynatrace.FetchResult, error) {
	if f.err != nil {
		return nil, f.err
	}
	idx := f.calls
	if idx >= len(f.results) {
		idx = len(f.results) - 1
	}
	f.calls++
	return f.results[idx], nil
}

func fetchOf(problems ...domain.Problem) *dynatrace.FetchResult {
	return &dynatrace.FetchResult{Problems: problems, TotalCount: len(problems)}
}

func setupRepos(t *testing.T) (repository.TrackingRepository, repository.HistoryRepository) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	if err := db.AutoMigrate(&repository.TrackedProblemModel{}, &repository.DeliveryRecordModel{}); err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}

	return repository.NewGormTrackingRepo(db), repository.NewGormHistoryRepo(db)
}

type countingTarget struct {
	server   *httptest.Server
	requests atomic.Int32
	status   atomic.Int32
	payloads chan []byte
}

func newCountingTarget(t *testing.T) *countingTarget {
	t.Helper()

	target := &countingTarget{payloads: make(chan []byte, 64)}
	target.status.Store(http.StatusOK)
	target.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		target.requests.Add(1)
		body, _ := io.ReadAll(r.Body)
		target.payloads <- body
		w.WriteHeader(int(target.status.Load()))
	}))
	t.Cleanup(target.server.Close)
	return target
}

func newTestConnector(t *testing.T, name, url string, mode domain.DeliveryMode) *connector.Connector {
	t.Helper()

	conn, err := connector.New(config.ConnectorConfig{
		Name:          name,
		URL:           url,
		RetryAttempts: 1,
		HTTPMethod:    domain.MethodPost,
		DeliveryMode:  mode,
	}, nil)
	if err != nil {
		t.Fatalf("connector.New() error = %v", err)
	}
	return conn
}

func newTestEngine(t *testing.T, fetcher ProblemFetcher, tracking repository.TrackingRepository, history repository.HistoryRepository, connectors ...*connector.Connector) *Engine {
	t.Helper()

	engine, err := NewEngine(fetcher, tracking, history, connectors, time.Second, nil)
	if err != nil {
		t.Fatalf("NewEngine() error = %v", err)
	}
	return engine
}

func TestEngineLifecycleAcrossCycles(t *testing.T) {
	t.Parallel()

	target := newCountingTarget(t)
	tracking, history := setupRepos(t)
	ctx := context.Background()

	fetcher := &fakeFetcher{results: []*dynatrace.FetchResult{
		fetchOf(domain.Problem{ProblemID: "P1", Status: domain.StatusOpen, Title: "cpu"}),
		fetchOf(domain.Problem{ProblemID: "P1", Status: domain.StatusOpen, Title: "cpu"}),
		fetchOf(domain.Problem{ProblemID: "P1", Status: domain.StatusResolved, Title: "cpu"}),
	}}

	engine := newTestEngine(t, fetcher, tracking, history,
		newTestConnector(t, "ops", target.server.URL, domain.ModeIndividual))

	// Cycle 1: never seen before, classified NEW and delivered.
	if err := engine.RunCycle(ctx); err != nil {
		t.Fatalf("cycle 1 error = %v", err)
	}
	tracked, err := tracking.GetByProblemID(ctx, "P1")
	if err != nil {
		t.Fatalf("GetByProblemID() error = %v", err)
	}
	if tracked.Status != "OPEN" || tracked.ForwardCount != 1 {
		t.Fatalf("after cycle 1: status=%s forwardCount=%d, want OPEN/1", tracked.Status, tracked.ForwardCount)
	}
	if got := target.requests.Load(); got != 1 {
		t.Fatalf("after cycle 1: requests = %d, want 1", got)
	}

	// Cycle 2: identical status, UNCHANGED, no delivery, no mutation.
	if err := engine.RunCycle(ctx); err != nil {
		t.Fatalf("cycle 2 error = %v", err)
	}
	tracked, _ = tracking.GetByProblemID(ctx, "P1")
	if tracked.ForwardCount != 1 {
		t.Fatalf("after cycle 2: forwardCount = %d, want 1 (no mutation)", tracked.ForwardCount)
	}
	if got := target.requests.Load(); got != 1 {
		t.Fatalf("after cycle 2: requests = %d, want still 1", got)
	}

	// Cycle 3: status changed, CHANGED, delivered again.
	if err := engine.RunCycle(ctx); err != nil {
		t.Fatalf("cycle 3 error = %v", err)
	}
	tracked, _ = tracking.GetByProblemID(ctx, "P1")
	if tracked.Status != "RESOLVED" || tracked.ForwardCount != 2 {
		t.Fatalf("after cycle 3: status=%s forwardCount=%d, want RESOLVED/2", tracked.Status, tracked.ForwardCount)
	}
	if got := target.requests.Load(); got != 2 {
		t.Fatalf("after cycle 3: requests = %d, want 2", got)
	}
}

func TestEngineBatchAndIndividualPartition(t *testing.T) {
	t.Parallel()

	batchTarget := newCountingTarget(t)
	individualTarget := newCountingTarget(t)
	tracking, history := setupRepos(t)

	fetcher := &fakeFetcher{results: []*dynatrace.FetchResult{fetchOf(
		domain.Problem{ProblemID: "P1", Status: domain.StatusOpen},
		domain.Problem{ProblemID: "P2", Status: domain.StatusOpen},
		domain.Problem{ProblemID: "P3", Status: domain.StatusOpen},
	)}}

	engine := newTestEngine(t, fetcher, tracking, history,
		newTestConnector(t, "bulk", batchTarget.server.URL, domain.ModeBatch),
		newTestConnector(t, "single", individualTarget.server.URL, domain.ModeIndividual))

	if err := engine.RunCycle(context.Background()); err != nil {
		t.Fatalf("RunCycle() error = %v", err)
	}

	if got := batchTarget.requests.Load(); got != 1 {
		t.Fatalf("batch connector requests = %d, want exactly 1", got)
	}
	if got := individualTarget.requests.Load(); got != 3 {
		t.Fatalf("individual connector requests = %d, want 3", got)
	}

	var batchPayload []domain.Problem
	if err := json.Unmarshal(<-batchTarget.payloads, &batchPayload); err != nil {
		t.Fatalf("failed to decode batch payload: %v", err)
	}
	if len(batchPayload) != 3 {
		t.Fatalf("batch payload length = %d, want 3", len(batchPayload))
	}

	// One ledger row per (connector, record) pair.
	for _, id := range []string{"P1", "P2", "P3"} {
		records, err := history.ListByProblemID(context.Background(), id)
		if err != nil {
			t.Fatalf("ListByProblemID(%s) error = %v", id, err)
		}
		if len(records) != 2 {
			t.Fatalf("history rows for %s = %d, want 2", id, len(records))
		}
	}
}

func TestEngineRecordsBeforeDelivery(t *testing.T) {
	t.Parallel()

	target := newCountingTarget(t)
	target.status.Store(http.StatusInternalServerError)
	tracking, history := setupRepos(t)
	ctx := context.Background()

	fetcher := &fakeFetcher{results: []*dynatrace.FetchResult{
		fetchOf(domain.Problem{ProblemID: "P1", Status: domain.StatusOpen}),
	}}

	engine := newTestEngine(t, fetcher, tracking, history,
		newTestConnector(t, "ops", target.server.URL, domain.ModeIndividual))

	if err := engine.RunCycle(ctx); err != nil {
		t.Fatalf("RunCycle() error = %v", err)
	}

	// The status transition is recorded even though every delivery failed:
	// a later cycle with the same status classifies UNCHANGED and is not
	// re-delivered. clear-cache is the only recovery path.
	tracked, err := tracking.GetByProblemID(ctx, "P1")
	if err != nil {
		t.Fatalf("tracked problem should exist despite failed delivery: %v", err)
	}
	if tracked.Status != "OPEN" {
		t.Fatalf("status = %s, want OPEN", tracked.Status)
	}

	records, err := history.ListByProblemID(ctx, "P1")
	if err != nil {
		t.Fatalf("ListByProblemID() error = %v", err)
	}
	if len(records) != 1 || records[0].Outcome != domain.OutcomeFailed {
		t.Fatalf("history = %+v, want one failed record", records)
	}
	if records[0].ResponseCode == nil || *records[0].ResponseCode != http.StatusInternalServerError {
		t.Fatalf("response code = %v, want 500", records[0].ResponseCode)
	}

	// Second cycle: UNCHANGED, no retry across cycles.
	if err := engine.RunCycle(ctx); err != nil {
		t.Fatalf("second RunCycle() error = %v", err)
	}
	if got := target.requests.Load(); got != 1 {
		t.Fatalf("requests = %d, want 1 (no cross-cycle redelivery)", got)
	}
}

func TestEngineConnectorFailureIsIsolated(t *testing.T) {
	t.Parallel()

	healthy := newCountingTarget(t)
	broken := newCountingTarget(t)
	broken.status.Store(http.StatusBadGateway)
	tracking, history := setupRepos(t)
	ctx := context.Background()

	fetcher := &fakeFetcher{results: []*dynatrace.FetchResult{
		fetchOf(domain.Problem{ProblemID: "P1", Status: domain.StatusOpen}),
	}}

	engine := newTestEngine(t, fetcher, tracking, history,
		newTestConnector(t, "healthy", healthy.server.URL, domain.ModeIndividual),
		newTestConnector(t, "broken", broken.server.URL, domain.ModeIndividual))

	if err := engine.RunCycle(ctx); err != nil {
		t.Fatalf("RunCycle() error = %v", err)
	}

	if got := healthy.requests.Load(); got != 1 {
		t.Fatalf("healthy connector requests = %d, want 1", got)
	}

	records, err := history.ListByProblemID(ctx, "P1")
	if err != nil {
		t.Fatalf("ListByProblemID() error = %v", err)
	}
	outcomes := map[string]domain.DeliveryOutcome{}
	for _, r := range records {
		outcomes[r.ConnectorName] = r.Outcome
	}
	if outcomes["healthy"] != domain.OutcomeSuccess || outcomes["broken"] != domain.OutcomeFailed {
		t.Fatalf("outcomes = %v, want healthy=success broken=failed", outcomes)
	}
}

func TestEngineFetchErrorAbortsCycleOnly(t *testing.T) {
	t.Parallel()

	tracking, history := setupRepos(t)
	target := newCountingTarget(t)

	fetcher := &fakeFetcher{err: errors.New("api unreachable")}
	engine := newTestEngine(t, fetcher, tracking, history,
		newTestConnector(t, "ops", target.server.URL, domain.ModeIndividual))

	if err := engine.RunCycle(context.Background()); err == nil {
		t.Fatal("expected error when fetch fails")
	}
	if got := target.requests.Load(); got != 0 {
		t.Fatalf("requests = %d, want 0 (cycle aborted before fan-out)", got)
	}
}

func TestEngineSkipsInvalidRecordAndContinues(t *testing.T) {
	t.Parallel()

	target := newCountingTarget(t)
	tracking, history := setupRepos(t)
	ctx := context.Background()

	fetcher := &fakeFetcher{results: []*dynatrace.FetchResult{fetchOf(
		domain.Problem{ProblemID: "", Status: domain.StatusOpen},
		domain.Problem{ProblemID: "P2", Status: domain.StatusOpen},
	)}}

	engine := newTestEngine(t, fetcher, tracking, history,
		newTestConnector(t, "ops", target.server.URL, domain.ModeIndividual))

	if err := engine.RunCycle(ctx); err != nil {
		t.Fatalf("RunCycle() error = %v", err)
	}

	if _, err := tracking.GetByProblemID(ctx, "P2"); err != nil {
		t.Fatalf("valid record should still be processed: %v", err)
	}
	if got := target.requests.Load(); got != 1 {
		t.Fatalf("requests = %d, want 1", got)
	}
}

func TestEngineClearCacheTriggersReclassification(t *testing.T) {
	t.Parallel()

	target := newCountingTarget(t)
	tracking, history := setupRepos(t)
	ctx := context.Background()

	fetcher := &fakeFetcher{results: []*dynatrace.FetchResult{
		fetchOf(domain.Problem{ProblemID: "P1", Status: domain.StatusOpen}),
	}}

	engine := newTestEngine(t, fetcher, tracking, history,
		newTestConnector(t, "ops", target.server.URL, domain.ModeIndividual))

	if err := engine.RunCycle(ctx); err != nil {
		t.Fatalf("cycle 1 error = %v", err)
	}

	removed, err := engine.ClearCache(ctx)
	if err != nil {
		t.Fatalf("ClearCache() error = %v", err)
	}
	if removed != 1 {
		t.Fatalf("removed = %d, want 1", removed)
	}

	// Same open record is NEW again on the next cycle.
	if err := engine.RunCycle(ctx); err != nil {
		t.Fatalf("cycle 2 error = %v", err)
	}
	if got := target.requests.Load(); got != 2 {
		t.Fatalf("requests = %d, want 2 (redelivered after clear)", got)
	}

	stats, err := engine.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats() error = %v", err)
	}
	if stats.TotalForwards != 2 {
		t.Fatalf("total forwards = %d, want 2 (history survives clear)", stats.TotalForwards)
	}
}

func TestEngineTestConnectorLeavesStoreUntouched(t *testing.T) {
	t.Parallel()

	target := newCountingTarget(t)
	tracking, history := setupRepos(t)
	ctx := context.Background()

	fetcher := &fakeFetcher{results: []*dynatrace.FetchResult{fetchOf()}}
	engine := newTestEngine(t, fetcher, tracking, history,
		newTestConnector(t, "ops", target.server.URL, domain.ModeIndividual))

	result, err := engine.TestConnector(ctx, "ops")
	if err != nil {
		t.Fatalf("TestConnector() error = %v", err)
	}
	if result.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", result.StatusCode)
	}

	stats, err := engine.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats() error = %v", err)
	}
	if stats.TotalProblems != 0 || stats.TotalForwards != 0 {
		t.Fatalf("stats = %+v, want untouched store", stats)
	}

	if _, err := engine.TestConnector(ctx, "missing"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("error = %v, want domain.ErrNotFound", err)
	}
}

func TestEngineRunStopsOnContextCancel(t *testing.T) {
	t.Parallel()

	target := newCountingTarget(t)
	tracking, history := setupRepos(t)

	fetcher := &fakeFetcher{results: []*dynatrace.FetchResult{fetchOf()}}
	engine := newTestEngine(t, fetcher, tracking, history,
		newTestConnector(t, "ops", target.server.URL, domain.ModeIndividual))
	engine.interval = 10 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- engine.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run() error = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run() did not stop after cancellation")
	}

	if fetcher.calls < 2 {
		t.Fatalf("fetch calls = %d, want at least 2", fetcher.calls)
	}
}
