package allocator

// Rebalance computes new positions minimizing the Bregman (KL) divergence
// Σ x_i log(x_i/current_i) subject to Σ x_i = 1 and matching the caller's
// target_distribution marginal, via iterative proportional fitting (spec
// §4.4 Bregman projection / rebalance mode). Both slices must be
// probability vectors of equal length; convergence tolerance defaults to
// 1e-6 when tol <= 0.
func Rebalance(current, target []float64, tol float64, maxIter int) []float64 {
	if tol <= 0 {
		tol = 1e-6
	}
	if maxIter <= 0 {
		maxIter = 100
	}
	n := len(current)
	if n == 0 || n != len(target) {
		return nil
	}

	x := make([]float64, n)
	copy(x, current)
	normalize(x)

	for iter := 0; iter < maxIter; iter++ {
		// IPF step: scale x_i toward target_i proportionally, then
		// renormalize so Σx_i = 1 holds exactly (the sole marginal
		// constraint in this single-dimension formulation).
		next := make([]float64, n)
		for i := range x {
			if x[i] <= 0 {
				next[i] = 0
				continue
			}
			next[i] = x[i] * ratio(target[i], x[i])
		}
		normalize(next)

		if maxAbsDiff(next, x) < tol {
			copy(x, next)
			break
		}
		copy(x, next)
	}
	return x
}

func ratio(target, current float64) float64 {
	if current <= 0 {
		return 0
	}
	return target / current
}

func normalize(x []float64) {
	sum := 0.0
	for _, v := range x {
		sum += v
	}
	if sum <= 0 {
		return
	}
	for i := range x {
		x[i] /= sum
	}
}

func maxAbsDiff(a, b []float64) float64 {
	max := 0.0
	for i := range a {
		d := a[i] - b[i]
		if d < 0 {
			d = -d
		}
		if d > max {
			max = d
		}
	}
	return max
}
