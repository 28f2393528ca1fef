package survival

import "sort"

// censoringSurvival estimates the survival function G of the censoring
// distribution with a Kaplan-Meier estimator in which censorings play the
// role of events. The returned function evaluates the step estimate at t.
func censoringSurvival(times, status []float64) func(float64) float64 {
	type point struct {
		t        float64
		censored int
		total    int
	}

	byTime := make(map[float64]*point)
	for i, t := range times {
		p, ok := byTime[t]
		if !ok {
			p = &point{t: t}
			byTime[t] = p
		}
		p.total++
		if status[i] == 0 {
			p.censored++
		}
	}

	points := make([]*point, 0, len(byTime))
	for _, p := range byTime {
		points = append(points, p)
	}
	sort.Slice(points, func(i, j int) bool { return points[i].t < points[j].t })

	// step function: survival value after each distinct time
	steps := make([]float64, len(points))
	atRisk := len(times)
	surv := 1.0
	for i, p := range points {
		if p.censored > 0 && atRisk > 0 {
			surv *= 1 - float64(p.censored)/float64(atRisk)
		}
		steps[i] = surv
		atRisk -= p.total
	}

	stepTimes := make([]float64, len(points))
	for i, p := range points {
		stepTimes[i] = p.t
	}

	return func(t float64) float64 {
		// G(t) = value of the last step at or before t; 1 before any time
		idx := sort.SearchFloat64s(stepTimes, t)
		if idx < len(stepTimes) && stepTimes[idx] == t {
			return steps[idx]
		}
		if idx == 0 {
			return 1
		}
		return steps[idx-1]
	}
}
