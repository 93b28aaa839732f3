package fit

import (
	"fmt"
	"math"
	"slices"

	"gonum.org/v1/gonum/mat"

	"github.com/roman-kulish/spectra/internal/gauss"
)

const (
	initialDamping = 1e-3
	minDamping     = 1e-12
	maxDamping     = 1e16

	machineEpsilon = 0x1p-52
)

// bounds is a box constraint on the parameter vector
type bounds struct {
	lower []float64
	upper []float64
}

func (b bounds) clamp(p []float64) {
	for i := range p {
		p[i] = math.Min(math.Max(p[i], b.lower[i]), b.upper[i])
	}
}

// problem is the least-squares objective Σ(model(xᵢ)−yᵢ)² for a model kind
type problem struct {
	kind   gauss.Kind
	xs, ys []float64
	bounds bounds
}

type solution struct {
	params     []float64
	cost       float64
	iterations int
}

// residuals writes model−observed into dst and returns the sum of squares.
func (p *problem) residuals(dst, params []float64) float64 {
	var cost float64
	for i, x := range p.xs {
		v, _ := gauss.Eval(p.kind, x, params)
		dst[i] = v - p.ys[i]
		cost += dst[i] * dst[i]
	}
	return cost
}

func (p *problem) jacobian(dst *mat.Dense, params []float64) {
	row := make([]float64, len(params))
	for i, x := range p.xs {
		_ = gauss.Gradient(p.kind, row, x, params)
		dst.SetRow(i, row)
	}
}

// solve runs a projected Levenberg-Marquardt iteration from seed. Parameters
// sitting on a bound whose gradient points outwards are frozen for the step,
// the remaining ones take a damped Gauss-Newton step that is then clamped
// back into the box.
func (p *problem) solve(seed []float64, maxIterations int, tol float64) (*solution, error) {
	n, m := len(p.xs), len(seed)

	params := slices.Clone(seed)
	p.bounds.clamp(params)

	res := make([]float64, n)
	cost := p.residuals(res, params)
	if math.IsNaN(cost) || math.IsInf(cost, 0) {
		return nil, fmt.Errorf("%w: non-finite residuals at the initial guess", ErrInvalidArgument)
	}

	jac := mat.NewDense(n, m, nil)
	trial := make([]float64, m)
	trialRes := make([]float64, n)
	damping := initialDamping

	for iter := 1; iter <= maxIterations; iter++ {
		if cost == 0 {
			return &solution{params: params, cost: cost, iterations: iter}, nil
		}

		p.jacobian(jac, params)

		var jtj mat.SymDense
		jtj.SymOuterK(1, jac.T())

		var grad mat.VecDense
		grad.MulVec(jac.T(), mat.NewVecDense(n, res))

		free := p.freeParams(params, grad.RawVector().Data)
		if len(free) == 0 {
			return &solution{params: params, cost: cost, iterations: iter}, nil
		}

		improved := false
		for damping <= maxDamping {
			step, ok := dampedStep(&jtj, &grad, free, damping)
			if !ok {
				damping *= 10
				continue
			}

			copy(trial, params)
			for k, j := range free {
				trial[j] += step[k]
			}
			p.bounds.clamp(trial)

			trialCost := p.residuals(trialRes, trial)
			if math.IsNaN(trialCost) || trialCost >= cost {
				damping *= 10
				continue
			}

			converged := cost-trialCost <= tol*cost || smallStep(params, trial, tol)

			copy(params, trial)
			copy(res, trialRes)
			cost = trialCost
			damping = math.Max(damping/10, minDamping)
			improved = true

			if converged {
				return &solution{params: params, cost: cost, iterations: iter}, nil
			}
			break
		}

		// no damping produces a descent step: stationary within the box
		if !improved {
			return &solution{params: params, cost: cost, iterations: iter}, nil
		}
	}

	return nil, fmt.Errorf("%w: %d iterations exhausted, cost %g", ErrDidNotConverge, maxIterations, cost)
}

// freeParams returns the indices of parameters that may move this iteration.
func (p *problem) freeParams(params, grad []float64) []int {
	free := make([]int, 0, len(params))
	for j := range params {
		atLower := params[j] <= p.bounds.lower[j] && grad[j] > 0
		atUpper := params[j] >= p.bounds.upper[j] && grad[j] < 0
		if !atLower && !atUpper {
			free = append(free, j)
		}
	}
	return free
}

// dampedStep solves (JᵀJ + λ·diag(JᵀJ))·δ = −Jᵀr restricted to the free parameters.
func dampedStep(jtj *mat.SymDense, grad *mat.VecDense, free []int, damping float64) ([]float64, bool) {
	nf := len(free)
	a := mat.NewSymDense(nf, nil)
	b := mat.NewVecDense(nf, nil)

	for ii, i := range free {
		for jj := ii; jj < nf; jj++ {
			v := jtj.At(i, free[jj])
			if ii == jj {
				v += damping * math.Max(v, machineEpsilon)
			}
			a.SetSym(ii, jj, v)
		}
		b.SetVec(ii, -grad.AtVec(i))
	}

	var chol mat.Cholesky
	if !chol.Factorize(a) {
		return nil, false
	}

	var step mat.VecDense
	if err := chol.SolveVecTo(&step, b); err != nil {
		return nil, false
	}

	out := make([]float64, nf)
	for k := range out {
		out[k] = step.AtVec(k)
		if math.IsNaN(out[k]) || math.IsInf(out[k], 0) {
			return nil, false
		}
	}
	return out, true
}

func smallStep(from, to []float64, tol float64) bool {
	for j := range from {
		if math.Abs(to[j]-from[j]) > tol*(math.Abs(from[j])+tol) {
			return false
		}
	}
	return true
}

// stdErrors returns √diag of the parameter covariance (JᵀJ)⁺·SSR/(n−p), with
// the pseudo-inverse taken through the SVD of the Jacobian. Singular values
// below the usual rank threshold are discarded. With no degrees of freedom
// left the residual variance is undefined and every error is +Inf.
func (p *problem) stdErrors(params []float64, cost float64) []float64 {
	n, m := len(p.xs), len(params)

	errs := make([]float64, m)
	if n <= m {
		for i := range errs {
			errs[i] = math.Inf(1)
		}
		return errs
	}

	jac := mat.NewDense(n, m, nil)
	p.jacobian(jac, params)

	var svd mat.SVD
	if !svd.Factorize(jac, mat.SVDThin) {
		for i := range errs {
			errs[i] = math.Inf(1)
		}
		return errs
	}

	s := svd.Values(nil)
	var v mat.Dense
	svd.VTo(&v)

	threshold := machineEpsilon * float64(max(n, m)) * s[0]
	variance := cost / float64(n-m)

	for j := 0; j < m; j++ {
		var c float64
		for k, sk := range s {
			if sk > threshold {
				vjk := v.At(j, k)
				c += vjk * vjk / (sk * sk)
			}
		}
		errs[j] = math.Sqrt(c * variance)
	}
	return errs
}
