package domain

// AlertKind distinguishes the events the monitoring engine emits.
type AlertKind string

const (
	AlertMilestone AlertKind = "milestone"
	AlertDrawdown  AlertKind = "drawdown"
)

// Alert is an event produced by one poll of one call.
type Alert struct {
	Kind         AlertKind
	Call         *Call
	Threshold    float64 // milestone threshold; zero for drawdown
	Multiple     float64 // current / entry at the time of the poll
	PeakValue    float64
	CurrentValue float64
}
