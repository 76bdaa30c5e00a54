package domain

// LeaderboardEntry is the aggregated performance of one caller.
type LeaderboardEntry struct {
	CallerID     string
	DisplayName  string
	TotalCalls   int
	BestMultiple float64 // never below 1
	AvgMultiple  float64 // mean over calls with a valid multiple, 0 if none
}
