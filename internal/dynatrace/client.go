// Package dynatrace talks to the Dynatrace problems API v2. The client owns
// authentication and pagination; callers always receive a single flattened
// problem list.
package dynatrace

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/dynrelay/dynrelay/internal/config"
	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

const (
	defaultTimeout = 30 * time.Second
	// Guards against a pagination loop if the API keeps returning keys.
	maxPages = 100
)

type Client struct {
	client   *resty.Client
	endpoint string
	selector string
	logger   *zap.Logger
}

func NewClient(cfg config.DynatraceConfig, logger *zap.Logger) (*Client, error) {
	if cfg.APIToken == "" {
		return nil, fmt.Errorf("dynatrace API token is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	client := resty.New()
	client.SetTimeout(defaultTimeout)
	client.SetRetryCount(0)
	client.SetHeader("Authorization", "Api-Token "+cfg.APIToken)
	client.SetHeader("Accept", "application/json")

	endpoint := fmt.Sprintf("%s/e/%s/api/v2/problems", trimSlash(cfg.BaseURL), cfg.Tenant)

	return &Client{
		client:   client,
		endpoint: endpoint,
		selector: cfg.ProblemSelector,
		logger:   logger,
	}, nil
}

func trimSlash(s string) string {
	for len(s) > 0 && s[len(s)-1] == '/' {
		s = s[:len(s)-1]
	}
	return s
}

// FetchProblems returns all current problems, following nextPageKey cursors
// until the API is exhausted.
func (c *Client) FetchProblems(ctx context.Context) (*FetchResult, error) {
	result := &FetchResult{}
	nextPageKey := ""

	for page := 0; page < maxPages; page++ {
		req := c.client.R().SetContext(ctx)
		if nextPageKey != "" {
			req.SetQueryParam("nextPageKey", nextPageKey)
		} else if c.selector != "" {
			req.SetQueryParam("problemSelector", c.selector)
			req.SetQueryParam("sort", "-startTime")
		}

		response, err := req.Get(c.endpoint)
		if err != nil {
			return nil, fmt.Errorf("dynatrace request failed: %w", err)
		}
		if response.StatusCode() != http.StatusOK {
			return nil, fmt.Errorf("dynatrace API error (%d): %s", response.StatusCode(), response.String())
		}

		var pageResult ProblemsResponse
		if err := json.Unmarshal(response.Body(), &pageResult); err != nil {
			return nil, fmt.Errorf("failed to decode problems response: %w", err)
		}

		result.Problems = append(result.Problems, pageResult.Problems...)
		result.TotalCount = pageResult.TotalCount

		if pageResult.NextPageKey == "" {
			break
		}
		nextPageKey = pageResult.NextPageKey
	}

	c.logger.Debug("fetched problems",
		zap.Int("count", len(result.Problems)),
		zap.Int("totalCount", result.TotalCount),
	)

	return result, nil
}

// TestConnection performs one fetch to verify credentials and reachability.
func (c *Client) TestConnection(ctx context.Context) (int, error) {
	result, err := c.FetchProblems(ctx)
	if err != nil {
		return 0, err
	}
	return result.TotalCount, nil
}
