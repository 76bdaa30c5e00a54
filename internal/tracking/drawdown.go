package tracking

// DrawdownFires reports whether current has fallen at least fraction below
// peak and no dump alert was sent before. The alert is one per call: once
// alreadyAlerted is set it never fires again.
func DrawdownFires(peak, current, fraction float64, alreadyAlerted bool) bool {
	if alreadyAlerted || fraction <= 0 || peak <= 0 || current <= 0 {
		return false
	}
	return current <= (1-fraction)*peak
}

// Drawdown returns the fractional decline of current from peak, or 0 when
// either is unknown or current is at or above peak.
func Drawdown(peak, current float64) float64 {
	if peak <= 0 || current <= 0 || current >= peak {
		return 0
	}
	return 1 - current/peak
}
