package domain

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ProblemStatus is the status reported by the monitoring API. The well-known
// values are listed below, but the set is open: classification compares
// statuses as opaque strings and never rejects unknown ones.
type ProblemStatus string

const (
	StatusOpen     ProblemStatus = "OPEN"
	StatusClosed   ProblemStatus = "CLOSED"
	StatusResolved ProblemStatus = "RESOLVED"
)

func (s ProblemStatus) String() string { return string(s) }

// Problem is one incident record fetched from the monitoring API. Fields
// beyond the dedup key and status are passed through to connectors verbatim.
type Problem struct {
	ProblemID        string        `json:"problemId"`
	DisplayID        string        `json:"displayId"`
	Title            string        `json:"title"`
	ImpactLevel      string        `json:"impactLevel"`
	SeverityLevel    string        `json:"severityLevel"`
	Status           ProblemStatus `json:"status"`
	AffectedEntities []Entity      `json:"affectedEntities"`
	ImpactedEntities []Entity      `json:"impactedEntities"`
	RootCauseEntity  *Entity       `json:"rootCauseEntity,omitempty"`
	ManagementZones  []NamedRef    `json:"managementZones"`
	EntityTags       []EntityTag   `json:"entityTags"`
	ProblemFilters   []NamedRef    `json:"problemFilters"`
	StartTime        int64         `json:"startTime"`
	EndTime          int64         `json:"endTime"`
}

// Entity is a monitored entity reference attached to a problem.
type Entity struct {
	EntityID EntityID `json:"entityId"`
	Name     string   `json:"name"`
}

// EntityID identifies a monitored entity by id and type.
type EntityID struct {
	ID   string `json:"id"`
	Type string `json:"type"`
}

// NamedRef is a plain id/name pair (management zones, problem filters).
type NamedRef struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// EntityTag is a tag attached to an affected entity.
type EntityTag struct {
	Context              string `json:"context"`
	Key                  string `json:"key"`
	Value                string `json:"value,omitempty"`
	StringRepresentation string `json:"stringRepresentation"`
}

func (p *Problem) Validate() error {
	if strings.TrimSpace(p.ProblemID) == "" {
		return fmt.Errorf("%w: problem id is required", ErrValidation)
	}
	if strings.TrimSpace(string(p.Status)) == "" {
		return fmt.Errorf("%w: problem %s has no status", ErrValidation, p.ProblemID)
	}
	return nil
}

// Summary returns a short one-line description for logging.
func (p *Problem) Summary() string {
	return fmt.Sprintf("[%s] %s - %s (%s)", p.DisplayID, p.Title, p.Status, p.SeverityLevel)
}

// MarshalJSON keeps entity slices non-nil so connectors always receive
// arrays, matching the upstream API shape.
func (p Problem) MarshalJSON() ([]byte, error) {
	type alias Problem
	a := alias(p)
	if a.AffectedEntities == nil {
		a.AffectedEntities = []Entity{}
	}
	if a.ImpactedEntities == nil {
		a.ImpactedEntities = []Entity{}
	}
	if a.ManagementZones == nil {
		a.ManagementZones = []NamedRef{}
	}
	if a.EntityTags == nil {
		a.EntityTags = []EntityTag{}
	}
	if a.ProblemFilters == nil {
		a.ProblemFilters = []NamedRef{}
	}
	return json.Marshal(a)
}
