package adapters

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"

	"github.com/graftlab/survbench/internal/dataset"
)

// Cox fits a proportional-hazards model by Newton-Raphson maximization of
// the Breslow partial likelihood, with a small ridge penalty for stability.
// The risk score is the linear predictor x'beta.
type Cox struct {
	name  string
	ridge float64
}

const (
	coxDefaultRidge = 1e-4
	coxMaxIter      = 30
	coxTolerance    = 1e-8
)

// NewCox builds a Cox adapter from config.
func NewCox(cfg Config) *Cox {
	ridge := cfg.Ridge
	if ridge <= 0 {
		ridge = coxDefaultRidge
	}
	name := cfg.Name
	if name == "" {
		name = "cox"
	}
	return &Cox{name: name, ridge: ridge}
}

func (c *Cox) Name() string             { return c.name }
func (c *Cox) SupportsImportance() bool { return true }

type coxModel struct {
	enc  *encoder
	beta []float64
}

// Fit estimates the coefficient vector on the training rows.
func (c *Cox) Fit(ctx context.Context, train *dataset.Dataset, features []string) (FittedModel, error) {
	enc, err := newEncoder(c.name, train.Frame, features)
	if err != nil {
		return nil, err
	}

	x := enc.matrix(train.Frame)
	times := train.Times()
	status := train.Status()

	beta, err := coxNewton(ctx, x, times, status, c.ridge)
	if err != nil {
		return nil, &AdapterError{Kind: KindInternal, Model: c.name, Err: err}
	}
	slog.Debug("cox: fit converged", "model", c.name, "p", len(beta), "n", train.Frame.Len())
	return &coxModel{enc: enc, beta: beta}, nil
}

// Score returns the linear predictor for each test row; the prediction
// horizon is unused because proportional hazards rank identically at every
// horizon.
func (c *Cox) Score(_ context.Context, model FittedModel, test *dataset.Dataset, _ float64) ([]float64, error) {
	m, ok := model.(*coxModel)
	if !ok {
		return nil, &AdapterError{Kind: KindInternal, Model: c.name,
			Err: fmt.Errorf("model was not fitted by this adapter")}
	}
	x := m.enc.matrix(test.Frame)
	n, p := x.Dims()
	scores := make([]float64, n)
	for i := 0; i < n; i++ {
		lp := 0.0
		for j := 0; j < p; j++ {
			lp += x.At(i, j) * m.beta[j]
		}
		scores[i] = lp
	}
	return scores, nil
}

// coxNewton runs the Newton-Raphson iteration. Rows are grouped by distinct
// time, descending, so the risk-set sums accumulate in one pass per
// iteration (Breslow tie handling).
func coxNewton(ctx context.Context, x *mat.Dense, times, status []float64, ridge float64) ([]float64, error) {
	n, p := x.Dims()
	if n == 0 {
		return nil, fmt.Errorf("cox: empty training matrix")
	}

	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	sort.Slice(order, func(a, b int) bool { return times[order[a]] > times[order[b]] })

	beta := make([]float64, p)
	grad := make([]float64, p)
	hess := mat.NewDense(p, p, nil)
	s1 := make([]float64, p)
	s2 := mat.NewDense(p, p, nil)
	xi := make([]float64, p)

	prevLik := math.Inf(-1)
	for iter := 0; iter < coxMaxIter; iter++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		for j := range grad {
			grad[j] = 0
		}
		hess.Zero()
		s2.Zero()
		s0 := 0.0
		for j := range s1 {
			s1[j] = 0
		}
		lik := 0.0

		idx := 0
		for idx < n {
			// add every row with this time to the risk set
			t := times[order[idx]]
			groupStart := idx
			for idx < n && times[order[idx]] == t {
				row := order[idx]
				mat.Row(xi, row, x)
				eta := 0.0
				for j := 0; j < p; j++ {
					eta += xi[j] * beta[j]
				}
				w := math.Exp(eta)
				s0 += w
				for j := 0; j < p; j++ {
					s1[j] += w * xi[j]
					for k := 0; k < p; k++ {
						s2.Set(j, k, s2.At(j, k)+w*xi[j]*xi[k])
					}
				}
				idx++
			}
			// then process the events at this time against the full risk set
			for g := groupStart; g < idx; g++ {
				row := order[g]
				if status[row] != 1 {
					continue
				}
				mat.Row(xi, row, x)
				eta := 0.0
				for j := 0; j < p; j++ {
					eta += xi[j] * beta[j]
				}
				lik += eta - math.Log(s0)
				for j := 0; j < p; j++ {
					mj := s1[j] / s0
					grad[j] += xi[j] - mj
					for k := 0; k < p; k++ {
						hess.Set(j, k, hess.At(j, k)+s2.At(j, k)/s0-mj*s1[k]/s0)
					}
				}
			}
		}

		// ridge penalty keeps the Hessian invertible under collinearity
		for j := 0; j < p; j++ {
			grad[j] -= ridge * beta[j]
			hess.Set(j, j, hess.At(j, j)+ridge)
			lik -= 0.5 * ridge * beta[j] * beta[j]
		}

		var step mat.VecDense
		if err := step.SolveVec(hess, mat.NewVecDense(p, grad)); err != nil {
			return nil, fmt.Errorf("cox: singular information matrix: %w", err)
		}

		maxStep := 0.0
		for j := 0; j < p; j++ {
			d := step.AtVec(j)
			beta[j] += d
			maxStep = math.Max(maxStep, math.Abs(d))
		}

		if maxStep < coxTolerance || math.Abs(lik-prevLik) < coxTolerance {
			return beta, nil
		}
		prevLik = lik
	}

	// non-convergence after maxIter is tolerable: the ranking is what
	// matters downstream, but surface it for diagnosis
	slog.Debug("cox: newton iteration hit max iterations", "iters", coxMaxIter)
	return beta, nil
}
