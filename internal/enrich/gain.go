package enrich

// AccumulateGain turns altitude steps into positive elevation gain.
// Only a step strictly above eps counts; smaller climbs are dropped on
// purpose so sensor noise on a plateau does not add up. Absent steps count
// as 0. The cumulative series starts at 0 and never decreases.
func AccumulateGain(altitudeSteps []*float64, eps float64) (steps, cumulative []float64) {
	steps = make([]float64, len(altitudeSteps))
	cumulative = make([]float64, len(altitudeSteps))

	var total float64
	for i, d := range altitudeSteps {
		if i > 0 && d != nil && *d > eps {
			steps[i] = *d
		}
		total += steps[i]
		cumulative[i] = total
	}
	return steps, cumulative
}
