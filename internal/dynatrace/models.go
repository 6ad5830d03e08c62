package dynatrace

import "github.com/dynrelay/dynrelay/internal/domain"

// ProblemsResponse is one page of the problems API.
type ProblemsResponse struct {
	TotalCount  int              `json:"totalCount"`
	PageSize    int              `json:"pageSize"`
	Problems    []domain.Problem `json:"problems"`
	NextPageKey string           `json:"nextPageKey"`
}

// FetchResult is the flattened, pagination-free view handed to the engine.
type FetchResult struct {
	Problems   []domain.Problem
	TotalCount int
}
