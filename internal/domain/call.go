package domain

import (
	"errors"
	"fmt"
	"sort"
	"time"
)

// Caller identifies the user who submitted a call.
type Caller struct {
	UserID      string  // external platform user id
	DisplayName *string // nullable
}

// Call is a caller's tracked assertion about a token at a point in time.
// Corresponds to the calls table in PostgreSQL.
type Call struct {
	ID      string // PRIMARY KEY, uuid
	Chain   Chain  // SOL | BSC
	Address string // token mint / contract address
	Caller  Caller
	Ticker  *string // base token symbol at creation (nullable)

	// Entry is written once at creation. Zero means the entry market cap is unknown.
	EntryValue     float64
	EntryEstimated bool // entry market cap came from the supply heuristic

	LastValue  float64
	PeakValue  float64
	PeakLocked bool // operator freeze, engine never writes PeakValue while set

	MultipliersHit []float64 // ascending, entries never removed
	DumpAlerted    bool

	Status      Status
	NextCheckAt time.Time
	CreatedAt   time.Time
	ExpiresAt   time.Time

	ExcludedFromLeaderboard bool
	SuspiciousScore         float64

	Version int64 // bumped by every write
}

// Validation errors.
var (
	ErrMissingID      = errors.New("call id is required")
	ErrInvalidChain   = errors.New("invalid chain")
	ErrMissingAddress = errors.New("token address is required")
	ErrMissingCaller  = errors.New("caller user id is required")
	ErrInvalidStatus  = errors.New("invalid status")
)

// Validate checks identity fields that every stored call must carry.
func (c *Call) Validate() error {
	if c.ID == "" {
		return ErrMissingID
	}
	if !c.Chain.IsValid() {
		return fmt.Errorf("%w: %q", ErrInvalidChain, c.Chain)
	}
	if c.Address == "" {
		return ErrMissingAddress
	}
	if c.Caller.UserID == "" {
		return ErrMissingCaller
	}
	if !c.Status.IsValid() {
		return fmt.Errorf("%w: %q", ErrInvalidStatus, c.Status)
	}
	return nil
}

// HasEntry reports whether the call has a usable entry value for multiple math.
func (c *Call) HasEntry() bool {
	return c.EntryValue > 0
}

// Multiple returns LastValue / EntryValue, or 0 when either side is unknown.
func (c *Call) Multiple() float64 {
	if !c.HasEntry() || c.LastValue <= 0 {
		return 0
	}
	return c.LastValue / c.EntryValue
}

// HasHit reports whether threshold is already in MultipliersHit.
func (c *Call) HasHit(threshold float64) bool {
	for _, m := range c.MultipliersHit {
		if m == threshold {
			return true
		}
	}
	return false
}

// AddMultipliers merges thresholds into MultipliersHit, keeping it sorted and unique.
func (c *Call) AddMultipliers(thresholds ...float64) {
	for _, t := range thresholds {
		if !c.HasHit(t) {
			c.MultipliersHit = append(c.MultipliersHit, t)
		}
	}
	sort.Float64s(c.MultipliersHit)
}

// Name returns the caller's display name, falling back to the user id.
func (c *Caller) Name() string {
	if c.DisplayName != nil && *c.DisplayName != "" {
		return *c.DisplayName
	}
	return c.UserID
}

// Clone returns a deep copy of the call.
func (c *Call) Clone() *Call {
	cp := *c
	if c.MultipliersHit != nil {
		cp.MultipliersHit = append([]float64(nil), c.MultipliersHit...)
	}
	if c.Caller.DisplayName != nil {
		name := *c.Caller.DisplayName
		cp.Caller.DisplayName = &name
	}
	if c.Ticker != nil {
		ticker := *c.Ticker
		cp.Ticker = &ticker
	}
	return &cp
}
