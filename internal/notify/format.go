package notify

import (
	"fmt"
	"strings"

	"callwatch/internal/domain"
)

// FormatAlert renders an alert as a plain-text message.
func FormatAlert(a domain.Alert) Message {
	c := a.Call
	name := c.Address
	if c.Ticker != nil && *c.Ticker != "" {
		name = "$" + *c.Ticker
	}

	var b strings.Builder
	switch a.Kind {
	case domain.AlertMilestone:
		fmt.Fprintf(&b, "🚀 %s hit %gx (now %.2fx)\n", name, a.Threshold, a.Multiple)
	case domain.AlertDrawdown:
		fmt.Fprintf(&b, "📉 %s dumped %.0f%% from peak\n", name, dropPct(a.PeakValue, a.CurrentValue))
	default:
		fmt.Fprintf(&b, "%s: %s\n", a.Kind, name)
	}
	fmt.Fprintf(&b, "Called by %s on %s\n", c.Caller.Name(), c.Chain)
	if c.HasEntry() {
		fmt.Fprintf(&b, "Entry %s → now %s (peak %s)\n", usd(c.EntryValue), usd(a.CurrentValue), usd(a.PeakValue))
	}
	b.WriteString(c.Address)

	return Message{Text: b.String()}
}

// FormatLeaderboard renders ranked entries as a plain-text message.
func FormatLeaderboard(entries []domain.LeaderboardEntry) Message {
	if len(entries) == 0 {
		return Message{Text: "🏆 Leaderboard\nNo calls yet."}
	}

	var b strings.Builder
	b.WriteString("🏆 Leaderboard\n")
	for i, e := range entries {
		name := e.DisplayName
		if name == "" {
			name = e.CallerID
		}
		fmt.Fprintf(&b, "%d. %s: best %.2fx, avg %.2fx, %d call(s)\n", i+1, name, e.BestMultiple, e.AvgMultiple, e.TotalCalls)
	}
	return Message{Text: strings.TrimRight(b.String(), "\n")}
}

func dropPct(peak, current float64) float64 {
	if peak <= 0 {
		return 0
	}
	return (1 - current/peak) * 100
}

// usd formats a dollar amount compactly: $950, $12.5K, $3.2M, $1.1B.
func usd(v float64) string {
	switch {
	case v >= 1e9:
		return fmt.Sprintf("$%.1fB", v/1e9)
	case v >= 1e6:
		return fmt.Sprintf("$%.1fM", v/1e6)
	case v >= 1e3:
		return fmt.Sprintf("$%.1fK", v/1e3)
	default:
		return fmt.Sprintf("$%.0f", v)
	}
}
