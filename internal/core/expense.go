package core

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	CategoryGroceries      Category = "groceries"
	CategoryHousehold      Category = "household"
	CategoryUtilities      Category = "utilities"
	CategoryTransportation Category = "transportation"
	CategoryOther          Category = "other"
)

// DateLayout is the wire format for expense dates: plain ISO date, no time part.
const DateLayout = "2006-01-02"

// DefaultUserID is used when no session context is threaded in.
const DefaultUserID = "default-user"

type (
	Category string

	// Expense is a persisted expense row. ID and the audit timestamps are
	// assigned by the remote store, except for offline-queued rows which
	// carry a synthesized "offline_" ID and locally-set timestamps.
	Expense struct {
		ID          string          `json:"id"`
		UserID      string          `json:"user_id"`
		Amount      decimal.Decimal `json:"amount"`
		Category    Category        `json:"category"`
		Description string          `json:"description"`
		Date        string          `json:"date"`
		CreatedAt   time.Time       `json:"created_at"`
		UpdatedAt   time.Time       `json:"updated_at"`
	}

	// Candidate is the insert shape: an expense before the remote store has
	// assigned identity and timestamps.
	Candidate struct {
		UserID      string          `json:"user_id"`
		Amount      decimal.Decimal `json:"amount"`
		Category    Category        `json:"category"`
		Description string          `json:"description"`
		Date        string          `json:"date"`
	}
)

var (
	ErrInvalidInput     = errors.New("invalid input")
	ErrInvalidAmount    = fmt.Errorf("%w: amount must be a positive number", ErrInvalidInput)
	ErrInvalidCategory  = fmt.Errorf("%w: unknown category", ErrInvalidInput)
	ErrEmptyDescription = fmt.Errorf("%w: empty description", ErrInvalidInput)
	ErrInvalidDate      = fmt.Errorf("%w: invalid date", ErrInvalidInput)
)

// Categories is the closed set of valid expense categories.
var Categories = []Category{
	CategoryGroceries,
	CategoryHousehold,
	CategoryUtilities,
	CategoryTransportation,
	CategoryOther,
}

func (c Category) Valid() bool {
	switch c {
	case CategoryGroceries, CategoryHousehold, CategoryUtilities, CategoryTransportation, CategoryOther:
		return true
	default:
		return false
	}
}

func (c Category) String() string {
	return string(c)
}

// Normalize validates the candidate in place and coerces it to the wire
// shape: the date is truncated to a plain ISO date and UserID is defaulted.
// It returns an error wrapping ErrInvalidInput before any network call is
// made on the candidate's behalf.
func (c *Candidate) Normalize() error {
	if c.Amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	if !c.Category.Valid() {
		return ErrInvalidCategory
	}
	c.Description = strings.TrimSpace(c.Description)
	if c.Description == "" {
		return ErrEmptyDescription
	}
	day, err := NormalizeDate(c.Date)
	if err != nil {
		return err
	}
	c.Date = day
	if strings.TrimSpace(c.UserID) == "" {
		c.UserID = DefaultUserID
	}
	return nil
}

// NormalizeDate reduces a date string to the plain ISO form. It accepts a
// bare date or an RFC 3339 timestamp whose time component is dropped.
func NormalizeDate(s string) (string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", ErrInvalidDate
	}
	if t, err := time.Parse(DateLayout, s); err == nil {
		return t.Format(DateLayout), nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.Format(DateLayout), nil
	}
	return "", ErrInvalidDate
}

func (e Expense) Validate() error {
	if e.Amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	if !e.Category.Valid() {
		return ErrInvalidCategory
	}
	if strings.TrimSpace(e.Description) == "" {
		return ErrEmptyDescription
	}
	if _, err := time.Parse(DateLayout, e.Date); err != nil {
		return ErrInvalidDate
	}
	return nil
}

// Before reports whether e sorts after other in the date-descending list
// order. Ties are left unordered relative to each other.
func (e Expense) Before(other Expense) bool {
	// ISO dates compare correctly as strings.
	return e.Date > other.Date
}
