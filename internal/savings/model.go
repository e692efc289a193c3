package savings

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	// ErrAlreadyMatured is returned when a transition targets a saving that
	// is no longer active.
	ErrAlreadyMatured = errors.New("saving already matured")

	ErrPlanNotFound      = errors.New("plan not found")
	ErrSavingNotFound    = errors.New("saving not found")
	ErrChallengeNotFound = errors.New("challenge participation not found")
	ErrNotChallenge      = errors.New("saving is not a challenge")
	ErrAlreadyJoined     = errors.New("already joined challenge")
	ErrInvalidSaving     = errors.New("invalid saving")
	ErrLocked            = errors.New("saving is locked")
)

// PlanKind groups plans by behaviour.
type PlanKind string

const (
	PlanVault     PlanKind = "vault"
	PlanGoals     PlanKind = "goals"
	PlanFlex      PlanKind = "flex"
	PlanChallenge PlanKind = "challenge"
)

// Plan is read-only reference data describing savings terms.
type Plan struct {
	ID           uuid.UUID       `json:"id"`
	Name         string          `json:"name"`
	Kind         PlanKind        `json:"kind"`
	InterestRate decimal.Decimal `json:"interest_rate"`
	MinLockDays  int             `json:"min_lock_days"`
	Breakable    bool            `json:"breakable"`
}

// IsChallenge reports whether savings on this plan are competitive.
func (p Plan) IsChallenge() bool { return p.Kind == PlanChallenge }

// Interval is the contribution cadence.
type Interval string

const (
	IntervalDaily   Interval = "daily"
	IntervalWeekly  Interval = "weekly"
	IntervalMonthly Interval = "monthly"
)

func (i Interval) Valid() bool {
	switch i {
	case IntervalDaily, IntervalWeekly, IntervalMonthly:
		return true
	default:
		return false
	}
}

// Saving is a user's savings goal. It owns one wallet.
type Saving struct {
	ID            uuid.UUID       `json:"id"`
	UserID        uuid.UUID       `json:"user_id"`
	PlanID        uuid.UUID       `json:"plan_id"`
	Name          string          `json:"name"`
	Target        decimal.Decimal `json:"target"`
	Deadline      *time.Time      `json:"deadline,omitempty"`
	Contributions *int            `json:"contributions,omitempty"`
	Interval      Interval        `json:"interval"`
	IsChallenge   bool            `json:"is_challenge"`
	Active        bool            `json:"active"`
	MaturedAt     *time.Time      `json:"matured_at,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
}

// PastDeadline reports whether the deadline has passed at now.
func (s Saving) PastDeadline(now time.Time) bool {
	return s.Deadline != nil && !s.Deadline.After(now)
}

// UserChallenge is one user's stake in a challenge saving. It owns one wallet.
type UserChallenge struct {
	ID        uuid.UUID `json:"id"`
	SavingID  uuid.UUID `json:"saving_id"`
	UserID    uuid.UUID `json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
}

// CreateInput carries the parameters of createSaving.
type CreateInput struct {
	UserID        uuid.UUID
	PlanID        uuid.UUID
	Name          string
	Target        decimal.Decimal
	Deadline      *time.Time
	Contributions *int
	Interval      Interval
}
