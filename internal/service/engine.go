// Package service contains the relay engine: the poll loop, the per-record
// classification state machine and the concurrent delivery fan-out.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dynrelay/dynrelay/internal/connector"
	"github.com/dynrelay/dynrelay/internal/domain"
	"github.com/dynrelay/dynrelay/internal/dynatrace"
	"github.com/dynrelay/dynrelay/internal/observability"
	"github.com/dynrelay/dynrelay/internal/repository"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// ProblemFetcher is the narrow contract consumed from the API client: one
// flattened list of current problems, cursors already followed.
type ProblemFetcher interface {
	FetchProblems(ctx context.Context) (*dynatrace.FetchResult, error)
}

type Engine struct {
	fetcher    ProblemFetcher
	tracking   repository.TrackingRepository
	history    repository.HistoryRepository
	connectors []*connector.Connector
	logger     *zap.Logger
	metrics    *observability.Metrics
	interval   time.Duration
	now        func() time.Time
}

func NewEngine(
	fetcher ProblemFetcher,
	tracking repository.TrackingRepository,
	history repository.HistoryRepository,
	connectors []*connector.Connector,
	interval time.Duration,
	logger *zap.Logger,
) (*Engine, error) {
	if fetcher == nil {
		return nil, fmt.Errorf("problem fetcher is required")
	}
	if tracking == nil {
		return nil, fmt.Errorf("tracking repository is required")
	}
	if history == nil {
		return nil, fmt.Errorf("history repository is required")
	}
	if len(connectors) == 0 {
		return nil, fmt.Errorf("at least one connector is required")
	}
	if interval <= 0 {
		return nil, fmt.Errorf("poll interval must be positive")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Engine{
		fetcher:    fetcher,
		tracking:   tracking,
		history:    history,
		connectors: connectors,
		logger:     logger,
		interval:   interval,
		now:        time.Now,
	}, nil
}

func (e *Engine) SetMetrics(metrics *observability.Metrics) {
	if e == nil {
		return
	}
	e.metrics = metrics
}

func (e *Engine) Connectors() []*connector.Connector {
	return e.connectors
}

// Run executes poll cycles on a fixed interval until ctx is cancelled. A
// cycle always finishes its fan-out before the next wait begins; a failed
// cycle is logged and the loop continues.
func (e *Engine) Run(ctx context.Context) error {
	e.logger.Info("relay engine started",
		zap.Duration("interval", e.interval),
		zap.Int("connectors", len(e.connectors)),
	)

	for {
		if err := e.RunCycle(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			e.logger.Error("poll cycle failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			e.logger.Info("relay engine stopped")
			return nil
		case <-time.After(e.interval):
		}
	}
}

// RunCycle performs one fetch → classify → fan-out pass. Classification and
// its store mutations complete for every record before any delivery starts.
func (e *Engine) RunCycle(ctx context.Context) error {
	result, err := e.fetcher.FetchProblems(ctx)
	if err != nil {
		e.metrics.IncCycle("fetch_error")
		return fmt.Errorf("fetch failed: %w", err)
	}
	e.metrics.SetFetchedProblems(len(result.Problems))

	var newProblems, statusChanges, unchanged, skipped int
	toForward := make([]domain.Problem, 0, len(result.Problems))

	for i := range result.Problems {
		problem := &result.Problems[i]
		decision, err := e.classify(ctx, problem)
		if err != nil {
			// One corrupt record never halts the cycle.
			skipped++
			e.logger.Error("failed to classify problem",
				zap.String("problemId", problem.ProblemID),
				zap.Error(err),
			)
			continue
		}

		e.metrics.IncClassification(decision.String())
		switch decision {
		case domain.ClassNew:
			newProblems++
			toForward = append(toForward, *problem)
		case domain.ClassChanged:
			statusChanges++
			toForward = append(toForward, *problem)
		case domain.ClassUnchanged:
			unchanged++
		}
	}

	if len(toForward) > 0 {
		e.fanOut(ctx, toForward)
	}

	e.metrics.IncCycle("ok")
	e.logger.Info("poll cycle complete",
		zap.Int("fetched", len(result.Problems)),
		zap.Int("new", newProblems),
		zap.Int("statusChanges", statusChanges),
		zap.Int("unchanged", unchanged),
		zap.Int("skipped", skipped),
	)

	return nil
}

// classify compares one fetched record against the tracking store and
// applies the matching store mutation. The mutation happens here, before
// any delivery: a later delivery failure never rolls the status back, so a
// transient outage cannot re-trigger the same transition every cycle.
func (e *Engine) classify(ctx context.Context, problem *domain.Problem) (domain.Classification, error) {
	if err := problem.Validate(); err != nil {
		return 0, err
	}

	stored, err := e.tracking.GetByProblemID(ctx, problem.ProblemID)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		tracked := domain.NewTrackedProblem(problem, e.now().UTC())
		if err := e.tracking.Insert(ctx, tracked); err != nil {
			return 0, fmt.Errorf("failed to insert tracked problem: %w", err)
		}
		e.logger.Info("new problem detected", zap.String("problem", problem.Summary()))
		return domain.ClassNew, nil

	case err != nil:
		return 0, fmt.Errorf("failed to look up tracked problem: %w", err)

	case stored.Status != problem.Status.String():
		if err := e.tracking.UpdateStatus(ctx, problem.ProblemID, problem.Status.String()); err != nil {
			return 0, fmt.Errorf("failed to update tracked status: %w", err)
		}
		e.logger.Info("status change detected",
			zap.String("problemId", problem.ProblemID),
			zap.String("from", stored.Status),
			zap.String("to", problem.Status.String()),
		)
		return domain.ClassChanged, nil

	default:
		return domain.ClassUnchanged, nil
	}
}

// fanOut delivers the due set to every connector concurrently: one task per
// batch-mode connector, one task per (individual-mode connector, record).
// It blocks until every task has finished, success or exhausted retries.
func (e *Engine) fanOut(ctx context.Context, problems []domain.Problem) {
	e.logger.Info("forwarding problems",
		zap.Int("count", len(problems)),
		zap.Int("connectors", len(e.connectors)),
	)

	var g errgroup.Group

	for _, conn := range e.connectors {
		conn := conn
		switch conn.Mode() {
		case domain.ModeBatch:
			g.Go(func() error {
				e.deliverBatch(ctx, conn, problems)
				return nil
			})
		case domain.ModeIndividual:
			for i := range problems {
				problem := problems[i]
				g.Go(func() error {
					e.deliverOne(ctx, conn, &problem)
					return nil
				})
			}
		}
	}

	_ = g.Wait()
}

func (e *Engine) deliverBatch(ctx context.Context, conn *connector.Connector, problems []domain.Problem) {
	e.metrics.IncInflight()
	defer e.metrics.DecInflight()

	start := e.now()
	result, err := conn.DeliverBatch(ctx, problems)
	e.metrics.ObserveDeliveryDuration(conn.Name(), e.now().Sub(start))

	if err != nil {
		e.metrics.IncDelivery(conn.Name(), domain.OutcomeFailed.String())
		e.logger.Error("batch delivery failed",
			zap.String("connector", conn.Name()),
			zap.Int("count", len(problems)),
			zap.Error(err),
		)
	} else {
		e.metrics.IncDelivery(conn.Name(), domain.OutcomeSuccess.String())
		e.logger.Info("batch delivered",
			zap.String("connector", conn.Name()),
			zap.Int("count", len(problems)),
			zap.Int("status", result.StatusCode),
		)
	}

	// One ledger row per record the task handled.
	for i := range problems {
		e.recordOutcome(ctx, problems[i].ProblemID, conn.Name(), result, err)
	}
}

func (e *Engine) deliverOne(ctx context.Context, conn *connector.Connector, problem *domain.Problem) {
	e.metrics.IncInflight()
	defer e.metrics.DecInflight()

	start := e.now()
	result, err := conn.Deliver(ctx, problem)
	e.metrics.ObserveDeliveryDuration(conn.Name(), e.now().Sub(start))

	if err != nil {
		e.metrics.IncDelivery(conn.Name(), domain.OutcomeFailed.String())
		e.logger.Error("delivery failed",
			zap.String("connector", conn.Name()),
			zap.String("problemId", problem.ProblemID),
			zap.Error(err),
		)
	} else {
		e.metrics.IncDelivery(conn.Name(), domain.OutcomeSuccess.String())
		e.logger.Info("problem delivered",
			zap.String("connector", conn.Name()),
			zap.String("problemId", problem.ProblemID),
			zap.Int("status", result.StatusCode),
		)
	}

	e.recordOutcome(ctx, problem.ProblemID, conn.Name(), result, err)
}

// recordOutcome appends one delivery ledger row. History is best-effort
// auditing: append failures are logged and swallowed, never propagated.
func (e *Engine) recordOutcome(ctx context.Context, problemID, connectorName string, result *connector.Result, deliveryErr error) {
	record := &domain.DeliveryRecord{
		ID:            uuid.NewString(),
		ProblemID:     problemID,
		ConnectorName: connectorName,
		AttemptedAt:   e.now().UTC(),
	}

	if deliveryErr != nil {
		record.Outcome = domain.OutcomeFailed
		message := deliveryErr.Error()
		record.ErrorMessage = &message

		var de *connector.DeliveryError
		if errors.As(deliveryErr, &de) && de.StatusCode > 0 {
			code := de.StatusCode
			record.ResponseCode = &code
		}
	} else {
		record.Outcome = domain.OutcomeSuccess
		if result != nil && result.StatusCode > 0 {
			code := result.StatusCode
			record.ResponseCode = &code
		}
	}

	if err := e.history.Append(ctx, record); err != nil {
		e.logger.Warn("failed to append delivery history",
			zap.String("problemId", problemID),
			zap.String("connector", connectorName),
			zap.Error(err),
		)
	}
}

// Stats returns the approximate aggregate snapshot of both tables.
func (e *Engine) Stats(ctx context.Context) (*domain.StoreStats, error) {
	return e.tracking.Stats(ctx)
}

// ClearCache removes every tracked problem so the next cycle reclassifies
// all still-open remote records as NEW. History is retained.
func (e *Engine) ClearCache(ctx context.Context) (int64, error) {
	removed, err := e.tracking.ClearAll(ctx)
	if err != nil {
		return 0, err
	}
	e.logger.Info("tracking cache cleared", zap.Int64("removed", removed))
	return removed, nil
}

// TestConnector sends one synthetic record through the named connector
// without touching the tracking store.
func (e *Engine) TestConnector(ctx context.Context, name string) (*connector.Result, error) {
	for _, conn := range e.connectors {
		if conn.Name() == name {
			return conn.Test(ctx)
		}
	}
	return nil, fmt.Errorf("%w: connector %q is not configured", domain.ErrNotFound, name)
}
