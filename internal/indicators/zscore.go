package indicators

import "math"

// ZScore последней цены относительно последних period закрытий.
// 0 когда данных мало или стандартное отклонение нулевое.
func ZScore(closes []float64, period int) float64 {
	if period <= 1 || len(closes) < period {
		return 0.0
	}

	recent := closes[len(closes)-period:]
	current := closes[len(closes)-1]

	var sum float64
	for _, p := range recent {
		sum += p
	}
	mean := sum / float64(period)

	var sq float64
	for _, p := range recent {
		sq += (p - mean) * (p - mean)
	}
	// выборочное отклонение, как statistics.stdev
	stdev := math.Sqrt(sq / float64(period-1))
	if stdev == 0 {
		return 0.0
	}

	return (current - mean) / stdev
}
