package domain

import (
	"fmt"
	"strings"
)

// DeliveryMode decides whether a connector receives one request per problem
// or one request per cycle carrying all due problems. The set is closed and
// resolved once at configuration load time.
type DeliveryMode string

const (
	ModeIndividual DeliveryMode = "INDIVIDUAL"
	ModeBatch      DeliveryMode = "BATCH"
)

func (m DeliveryMode) String() string { return string(m) }

func (m DeliveryMode) IsValid() bool {
	switch m {
	case ModeIndividual, ModeBatch:
		return true
	}
	return false
}

func ParseDeliveryModeFromString(s string) (DeliveryMode, error) {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return ModeIndividual, nil
	}
	m := DeliveryMode(strings.ToUpper(trimmed))
	if !m.IsValid() {
		return "", fmt.Errorf("%w: invalid delivery mode %q", ErrValidation, s)
	}
	return m, nil
}

// HTTPMethod is the outbound request method for a connector.
type HTTPMethod string

const (
	MethodGet   HTTPMethod = "GET"
	MethodPost  HTTPMethod = "POST"
	MethodPut   HTTPMethod = "PUT"
	MethodPatch HTTPMethod = "PATCH"
)

func (m HTTPMethod) String() string { return string(m) }

func (m HTTPMethod) IsValid() bool {
	switch m {
	case MethodGet, MethodPost, MethodPut, MethodPatch:
		return true
	}
	return false
}

func ParseHTTPMethodFromString(s string) (HTTPMethod, error) {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return MethodPost, nil
	}
	m := HTTPMethod(strings.ToUpper(trimmed))
	if !m.IsValid() {
		return "", fmt.Errorf("%w: invalid HTTP method %q", ErrValidation, s)
	}
	return m, nil
}
