// Package cooldown limits how often a caller may submit calls.
package cooldown

import (
	"context"
	"fmt"
	"time"

	"callwatch/internal/storage"
)

// Defaults.
const (
	DefaultWindow        = 24 * time.Hour
	DefaultPremiumWindow = 24 * time.Hour
	DefaultPremiumQuota  = 5
)

// Privilege describes how the cooldown applies to a caller.
type Privilege struct {
	Admin   bool // bypasses the cooldown entirely
	Premium bool // relaxed quota over the premium window
}

// Rule is the effective limit for one caller: at most Limit calls created
// after Since. Limit 0 means unlimited.
type Rule struct {
	Since  time.Time
	Window time.Duration
	Limit  int
}

// Unlimited reports whether the rule allows any number of calls.
func (r Rule) Unlimited() bool {
	return r.Limit <= 0
}

// Decision is the outcome of MayCreateCall.
type Decision struct {
	Allowed    bool
	Reason     string
	RetryAfter time.Duration // zero when allowed
}

// Options configures Guard.
type Options struct {
	Window        time.Duration // non-privileged window (cooldownWindowHours)
	PremiumWindow time.Duration
	PremiumQuota  int      // calls per PremiumWindow for premium callers
	Admins        []string // privileged caller ids, bypass the guard
	Premium       []string // caller ids entitled to PremiumQuota
	Clock         func() time.Time
}

// Guard decides whether a caller may create a new call.
type Guard struct {
	store         storage.CallStore
	window        time.Duration
	premiumWindow time.Duration
	premiumQuota  int
	admins        map[string]struct{}
	premium       map[string]struct{}
	now           func() time.Time
}

// NewGuard creates a new Guard.
func NewGuard(store storage.CallStore, opts Options) *Guard {
	if opts.Window <= 0 {
		opts.Window = DefaultWindow
	}
	if opts.PremiumWindow <= 0 {
		opts.PremiumWindow = DefaultPremiumWindow
	}
	if opts.PremiumQuota <= 0 {
		opts.PremiumQuota = DefaultPremiumQuota
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}

	return &Guard{
		store:         store,
		window:        opts.Window,
		premiumWindow: opts.PremiumWindow,
		premiumQuota:  opts.PremiumQuota,
		admins:        idSet(opts.Admins),
		premium:       idSet(opts.Premium),
		now:           opts.Clock,
	}
}

func idSet(ids []string) map[string]struct{} {
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}

// PrivilegeOf resolves a caller's privilege from the configured admin and
// premium allow-lists. Nothing the caller sends can raise it.
func (g *Guard) PrivilegeOf(callerID string) Privilege {
	_, admin := g.admins[callerID]
	_, premium := g.premium[callerID]
	return Privilege{Admin: admin, Premium: premium}
}

// RuleFor returns the rule in force for priv at the current time.
func (g *Guard) RuleFor(priv Privilege) Rule {
	now := g.now()
	switch {
	case priv.Admin:
		return Rule{}
	case priv.Premium:
		return Rule{Since: now.Add(-g.premiumWindow), Window: g.premiumWindow, Limit: g.premiumQuota}
	default:
		return Rule{Since: now.Add(-g.window), Window: g.window, Limit: 1}
	}
}

// MayCreateCall checks whether callerID may submit a call now. Calls count
// regardless of their status. The check is advisory: the store's
// InsertGuarded enforces the same rule atomically.
func (g *Guard) MayCreateCall(ctx context.Context, callerID string, priv Privilege) (Decision, error) {
	rule := g.RuleFor(priv)
	if rule.Unlimited() {
		return Decision{Allowed: true}, nil
	}

	calls, err := g.store.FindByCaller(ctx, callerID)
	if err != nil {
		return Decision{}, fmt.Errorf("load calls for %s: %w", callerID, err)
	}

	// FindByCaller is ordered by created_at ASC.
	var recent []time.Time
	for _, c := range calls {
		if c.CreatedAt.After(rule.Since) {
			recent = append(recent, c.CreatedAt)
		}
	}
	if len(recent) < rule.Limit {
		return Decision{Allowed: true}, nil
	}

	// A slot frees once enough of the oldest calls leave the window.
	freesAt := recent[len(recent)-rule.Limit].Add(rule.Window)
	retry := freesAt.Sub(g.now())
	if retry < 0 {
		retry = 0
	}

	return Decision{
		Allowed:    false,
		Reason:     fmt.Sprintf("limit of %d call(s) per %s reached, try again later", rule.Limit, rule.Window),
		RetryAfter: retry,
	}, nil
}
