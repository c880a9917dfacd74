// Package stat holds the shared statistical primitives used by the
// measurement engine. All variances are population variances (divide by N)
// so that perfectly correlated inputs yield exact boundary values.
package stat

import "math"

// Mean returns the arithmetic mean of xs, or 0 for an empty slice.
func Mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

// Variance returns the population variance of xs.
func Variance(xs []float64) float64 {
	n := len(xs)
	if n == 0 {
		return 0
	}
	m := Mean(xs)
	var sum float64
	for _, x := range xs {
		d := x - m
		sum += d * d
	}
	return sum / float64(n)
}

// Pearson returns the Pearson correlation between x and y.
// Returns 0 when the slices differ in length, are shorter than 2,
// or either side has zero variance (the coefficient is undefined there).
func Pearson(x, y []float64) float64 {
	n := len(x)
	if n < 2 || n != len(y) {
		return 0
	}

	mx := Mean(x)
	my := Mean(y)

	var cov, vx, vy float64
	for i := 0; i < n; i++ {
		dx := x[i] - mx
		dy := y[i] - my
		cov += dx * dy
		vx += dx * dx
		vy += dy * dy
	}

	if vx == 0 || vy == 0 {
		return 0
	}
	return cov / math.Sqrt(vx*vy)
}

// PointBiserial returns the point-biserial correlation between a 0/1
// correctness vector and a continuous score vector. It is exactly the
// Pearson correlation with the dichotomous variable coded 0/1.
func PointBiserial(correct []bool, scores []float64) float64 {
	if len(correct) != len(scores) {
		return 0
	}
	binary := make([]float64, len(correct))
	for i, c := range correct {
		if c {
			binary[i] = 1
		}
	}
	return Pearson(binary, scores)
}

// SpearmanBrown applies the Spearman-Brown prophecy correction to a
// half-test correlation: r_full = 2r / (1 + r).
func SpearmanBrown(rHalf float64) float64 {
	if rHalf <= -1 {
		return -1
	}
	return 2 * rHalf / (1 + rHalf)
}

// NormalQuantile returns the two-sided z value for the given confidence
// level. Only the three reporting levels are supported; ok is false for
// anything else.
func NormalQuantile(confidenceLevel float64) (z float64, ok bool) {
	switch confidenceLevel {
	case 0.90:
		return 1.645, true
	case 0.95:
		return 1.960, true
	case 0.99:
		return 2.576, true
	}
	return 0, false
}
