package tracking

// EvaluateMilestones returns the thresholds of ladder newly reached by
// current/entry, in ascending order. Thresholds in alreadyHit never repeat.
// An unknown entry or current value yields nil.
func EvaluateMilestones(entry, current float64, ladder Ladder, alreadyHit []float64) []float64 {
	if entry <= 0 || current <= 0 {
		return nil
	}
	multiple := current / entry

	hit := make(map[float64]struct{}, len(alreadyHit)+len(ladder))
	for _, t := range alreadyHit {
		hit[t] = struct{}{}
	}

	var newly []float64
	for _, t := range ladder {
		if multiple < t {
			continue
		}
		if _, ok := hit[t]; ok {
			continue
		}
		hit[t] = struct{}{}
		newly = append(newly, t)
	}
	return newly
}

// EvaluateLadders evaluates several ladders against one shared alreadyHit set,
// so a threshold present in more than one ladder fires once.
func EvaluateLadders(entry, current float64, alreadyHit []float64, ladders ...Ladder) []float64 {
	return EvaluateMilestones(entry, current, Merge(ladders...), alreadyHit)
}
