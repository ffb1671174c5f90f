package features

import "math"

// windowStats returns the mean and the sample standard deviation (n-1
// denominator) of xs. The sample form matches the rolling std the model was
// trained with.
func windowStats(xs []float64) (mean, std float64) {
	n := len(xs)
	if n == 0 {
		return 0, 0
	}

	var sum float64
	for _, x := range xs {
		sum += x
	}
	mean = sum / float64(n)

	if n < 2 {
		return mean, 0
	}

	var ss float64
	for _, x := range xs {
		d := x - mean
		ss += d * d
	}
	if variance := ss / float64(n-1); variance > 0 {
		std = math.Sqrt(variance)
	}
	return
}
