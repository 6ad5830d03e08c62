package domain

import "time"

// TrackedProblem is one row per distinct problem id ever observed. The
// stored status always reflects the last value seen from the remote source
// at classification time, regardless of whether delivery later succeeded.
type TrackedProblem struct {
	ID                 uint
	ProblemID          string
	Status             string
	SeverityLevel      string
	Title              string
	FirstSeenAt        time.Time
	LastForwardedAt    time.Time
	LastStatusChangeAt time.Time
	ForwardCount       int
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// NewTrackedProblem builds the row inserted on first observation.
func NewTrackedProblem(p *Problem, now time.Time) *TrackedProblem {
	return &TrackedProblem{
		ProblemID:          p.ProblemID,
		Status:             p.Status.String(),
		SeverityLevel:      p.SeverityLevel,
		Title:              p.Title,
		FirstSeenAt:        now,
		LastForwardedAt:    now,
		LastStatusChangeAt: now,
		ForwardCount:       1,
	}
}

// DeliveryOutcome is the terminal result of one delivery task.
type DeliveryOutcome string

const (
	OutcomeSuccess DeliveryOutcome = "success"
	OutcomeFailed  DeliveryOutcome = "failed"
)

func (o DeliveryOutcome) String() string { return string(o) }

// DeliveryRecord is one append-only ledger entry per delivery attempt
// outcome. Rows are written for auditing only and are never read back to
// drive delivery decisions.
type DeliveryRecord struct {
	ID            string
	ProblemID     string
	ConnectorName string
	Outcome       DeliveryOutcome
	ResponseCode  *int
	ErrorMessage  *string
	AttemptedAt   time.Time
}

// StoreStats is an approximate aggregate snapshot of both tables. Counts
// are taken with independent queries and are not transactionally consistent
// with concurrent writers.
type StoreStats struct {
	TotalProblems  int64
	OpenProblems   int64
	ClosedProblems int64
	TotalForwards  int64
	SuccessCount   int64
	FailureCount   int64
}
