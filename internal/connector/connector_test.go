package connector

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/dynrelay/dynrelay/internal/config"
	"github.com/dynrelay/dynrelay/internal/domain"
)

func connectorConfig(name, url string, mode domain.DeliveryMode) config.ConnectorConfig {
	return config.ConnectorConfig{
		Name:          name,
		URL:           url,
		RetryAttempts: 1,
		HTTPMethod:    domain.MethodPost,
		DeliveryMode:  mode,
	}
}

func TestDeliverSendsSingleObject(t *testing.T) {
	t.Parallel()

	var gotBody domain.Problem
	var gotHeader string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		gotHeader = r.Header.Get("X-Api-Key")
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Fatalf("failed to decode body: %v", err)
		}
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	cfg := connectorConfig("ops", server.URL, domain.ModeIndividual)
	cfg.Headers = map[string]string{"X-Api-Key": "secret"}

	conn, err := New(cfg, nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	problem := domain.Problem{ProblemID: "P1", Status: domain.StatusOpen, Title: "disk full"}
	result, err := conn.Deliver(context.Background(), &problem)
	if err != nil {
		t.Fatalf("Deliver() error = %v", err)
	}

	if result.StatusCode != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", result.StatusCode)
	}
	if gotBody.ProblemID != "P1" {
		t.Fatalf("body problemId = %q, want P1", gotBody.ProblemID)
	}
	if gotHeader != "secret" {
		t.Fatalf("X-Api-Key = %q, want secret", gotHeader)
	}
}

func TestDeliverBatchSendsOneRequestWithArray(t *testing.T) {
	t.Parallel()

	var requests atomic.Int32
	var gotBody []domain.Problem

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Fatalf("failed to decode body: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	conn, err := New(connectorConfig("bulk", server.URL, domain.ModeBatch), nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	problems := []domain.Problem{
		{ProblemID: "P1", Status: domain.StatusOpen},
		{ProblemID: "P2", Status: domain.StatusOpen},
		{ProblemID: "P3", Status: domain.StatusResolved},
	}
	if _, err := conn.DeliverBatch(context.Background(), problems); err != nil {
		t.Fatalf("DeliverBatch() error = %v", err)
	}

	if got := requests.Load(); got != 1 {
		t.Fatalf("requests = %d, want exactly 1", got)
	}
	if len(gotBody) != 3 {
		t.Fatalf("payload length = %d, want 3", len(gotBody))
	}
}

func TestDeliverNon2xxIsFailureWithBody(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte("upstream unavailable"))
	}))
	defer server.Close()

	conn, err := New(connectorConfig("ops", server.URL, domain.ModeIndividual), nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	problem := domain.Problem{ProblemID: "P1", Status: domain.StatusOpen}
	_, err = conn.Deliver(context.Background(), &problem)
	if err == nil {
		t.Fatal("expected error for 502 response")
	}

	var deliveryErr *DeliveryError
	if !errors.As(err, &deliveryErr) {
		t.Fatalf("error type = %T, want *DeliveryError", err)
	}
	if deliveryErr.StatusCode != http.StatusBadGateway {
		t.Fatalf("StatusCode = %d, want 502", deliveryErr.StatusCode)
	}
	if deliveryErr.Message != "upstream unavailable" {
		t.Fatalf("Message = %q, want response body", deliveryErr.Message)
	}
}

func TestDeliverRetriesUntilSuccess(t *testing.T) {
	t.Parallel()

	var requests atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if requests.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	cfg := connectorConfig("ops", server.URL, domain.ModeIndividual)
	cfg.RetryAttempts = 2

	conn, err := New(cfg, nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	problem := domain.Problem{ProblemID: "P1", Status: domain.StatusOpen}
	result, err := conn.Deliver(context.Background(), &problem)
	if err != nil {
		t.Fatalf("Deliver() error = %v", err)
	}
	if result.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", result.StatusCode)
	}
	if got := requests.Load(); got != 2 {
		t.Fatalf("requests = %d, want 2", got)
	}
}

func TestDeliverTransportError(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close() // refuse connections

	conn, err := New(connectorConfig("ops", server.URL, domain.ModeIndividual), nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	problem := domain.Problem{ProblemID: "P1", Status: domain.StatusOpen}
	_, err = conn.Deliver(context.Background(), &problem)

	var deliveryErr *DeliveryError
	if !errors.As(err, &deliveryErr) {
		t.Fatalf("error type = %T, want *DeliveryError", err)
	}
	if deliveryErr.Cause == nil {
		t.Fatal("transport failure should carry a cause")
	}
}

func TestTestSendsSyntheticProblem(t *testing.T) {
	t.Parallel()

	var gotBody domain.Problem
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Fatalf("failed to decode body: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	conn, err := New(connectorConfig("ops", server.URL, domain.ModeIndividual), nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if _, err := conn.Test(context.Background()); err != nil {
		t.Fatalf("Test() error = %v", err)
	}
	if gotBody.ProblemID != "TEST-12345" {
		t.Fatalf("problemId = %q, want TEST-12345", gotBody.ProblemID)
	}
}
