// Package connector wraps one downstream HTTP target. A connector knows its
// delivery mode, builds and sends the outbound request, and classifies the
// response; bounded retries happen inside each delivery call.
package connector

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/http"
	"time"

	"github.com/dynrelay/dynrelay/internal/config"
	"github.com/dynrelay/dynrelay/internal/domain"
	"github.com/dynrelay/dynrelay/internal/retry"
	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// Result carries response metadata for history recording.
type Result struct {
	StatusCode int
	Body       string
}

type Connector struct {
	client *resty.Client
	cfg    config.ConnectorConfig
	logger *zap.Logger
}

func New(cfg config.ConnectorConfig, logger *zap.Logger) (*Connector, error) {
	if cfg.Name == "" {
		return nil, fmt.Errorf("connector name is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("connector", cfg.Name))

	client := resty.New()
	client.SetTimeout(cfg.Timeout())
	client.SetRetryCount(0)
	client.SetAllowGetMethodPayload(true)

	if !cfg.SSLVerificationEnabled() {
		// Must never happen silently; operators are warned at startup.
		logger.Warn("TLS verification disabled, use only against test endpoints")
		client.SetTLSClientConfig(&tls.Config{InsecureSkipVerify: true}) // #nosec G402
	}

	return &Connector{
		client: client,
		cfg:    cfg,
		logger: logger,
	}, nil
}

func (c *Connector) Name() string { return c.cfg.Name }

func (c *Connector) Mode() domain.DeliveryMode { return c.cfg.DeliveryMode }

// Deliver sends one problem as a single JSON object, retrying with backoff
// up to the configured attempt limit.
func (c *Connector) Deliver(ctx context.Context, problem *domain.Problem) (*Result, error) {
	name := fmt.Sprintf("deliver %s to %s", problem.ProblemID, c.cfg.Name)
	return retry.Do(ctx, name, c.cfg.MaxAttempts(), func(ctx context.Context) (*Result, error) {
		return c.send(ctx, problem)
	}, retry.WithLogger(c.logger))
}

// DeliverBatch sends the whole due set as one JSON array in a single
// request, retrying the request as a unit.
func (c *Connector) DeliverBatch(ctx context.Context, problems []domain.Problem) (*Result, error) {
	name := fmt.Sprintf("deliver batch of %d to %s", len(problems), c.cfg.Name)
	return retry.Do(ctx, name, c.cfg.MaxAttempts(), func(ctx context.Context) (*Result, error) {
		return c.send(ctx, problems)
	}, retry.WithLogger(c.logger))
}

// Test sends one synthetic problem through the connector. The tracking
// store is never involved.
func (c *Connector) Test(ctx context.Context) (*Result, error) {
	problem := SyntheticProblem()
	return c.Deliver(ctx, &problem)
}

func (c *Connector) send(ctx context.Context, payload any) (*Result, error) {
	req := c.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetHeaders(c.cfg.Headers).
		SetBody(payload)

	response, err := req.Execute(c.cfg.HTTPMethod.String(), c.cfg.URL)
	if err != nil {
		return nil, &DeliveryError{
			Connector: c.cfg.Name,
			Message:   "request failed",
			Cause:     err,
		}
	}

	statusCode := response.StatusCode()
	body := response.String()

	if statusCode < http.StatusOK || statusCode >= http.StatusMultipleChoices {
		return nil, &DeliveryError{
			Connector:  c.cfg.Name,
			StatusCode: statusCode,
			Message:    body,
		}
	}

	return &Result{StatusCode: statusCode, Body: body}, nil
}

// SyntheticProblem is the payload used by connector tests.
func SyntheticProblem() domain.Problem {
	return domain.Problem{
		ProblemID:     "TEST-12345",
		DisplayID:     "P-TEST",
		Title:         "Test problem from dynrelay",
		ImpactLevel:   "INFRASTRUCTURE",
		SeverityLevel: "CUSTOM_ALERT",
		Status:        domain.StatusOpen,
		StartTime:     time.Now().UnixMilli(),
		EndTime:       -1,
	}
}
