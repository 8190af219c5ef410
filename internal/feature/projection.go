package feature

import "math"

// Projection is a fitted 2-component linear projection over a frozen ordered
// set of numeric columns. APPLY mode reuses it verbatim; refitting at serving
// time is forbidden.
type Projection struct {
	Columns    []string    `json:"columns"`
	Mean       []float64   `json:"mean"`
	Components [][]float64 `json:"components"`
}

const (
	powerIterations = 100
	powerEpsilon    = 1e-12
)

// fitProjection computes the column means and the top two principal
// directions of the given rows (rows[i] aligned with cols). The solver is
// fully deterministic: fixed start vector, fixed iteration count, and a sign
// convention on the leading loading.
func fitProjection(cols []string, rows [][]float64) Projection {
	n := len(rows)
	d := len(cols)
	mean := make([]float64, d)
	for _, r := range rows {
		for j, x := range r {
			mean[j] += x
		}
	}
	for j := range mean {
		mean[j] /= float64(n)
	}

	// covariance (biased by n; the scale does not affect directions)
	cov := make([][]float64, d)
	for i := range cov {
		cov[i] = make([]float64, d)
	}
	for _, r := range rows {
		for i := 0; i < d; i++ {
			ci := r[i] - mean[i]
			for j := i; j < d; j++ {
				cov[i][j] += ci * (r[j] - mean[j])
			}
		}
	}
	for i := 0; i < d; i++ {
		for j := i + 1; j < d; j++ {
			cov[i][j] /= float64(n)
			cov[j][i] = cov[i][j]
		}
		cov[i][i] /= float64(n)
	}

	comps := make([][]float64, 2)
	for k := 0; k < 2; k++ {
		vec, lambda := powerIterate(cov)
		comps[k] = vec
		deflate(cov, vec, lambda)
	}
	return Projection{Columns: cols, Mean: mean, Components: comps}
}

// Apply projects one row (aligned with p.Columns) onto the two components.
func (p Projection) Apply(row []float64) (float64, float64) {
	var x, y float64
	for j := range p.Columns {
		c := row[j] - p.Mean[j]
		x += c * p.Components[0][j]
		y += c * p.Components[1][j]
	}
	return x, y
}

// powerIterate finds the dominant eigenvector/eigenvalue of a symmetric
// matrix. Degenerate (zero) matrices yield a zero vector rather than NaN so a
// single-row fit stays well defined.
func powerIterate(m [][]float64) ([]float64, float64) {
	d := len(m)
	v := make([]float64, d)
	for i := range v {
		v[i] = 1 / math.Sqrt(float64(d))
	}
	w := make([]float64, d)
	var lambda float64
	for it := 0; it < powerIterations; it++ {
		for i := 0; i < d; i++ {
			var s float64
			for j := 0; j < d; j++ {
				s += m[i][j] * v[j]
			}
			w[i] = s
		}
		norm := vecNorm(w)
		if norm < powerEpsilon {
			return make([]float64, d), 0
		}
		for i := range v {
			v[i] = w[i] / norm
		}
		lambda = norm
	}
	// sign convention: first non-negligible loading is positive
	for i := range v {
		if math.Abs(v[i]) > powerEpsilon {
			if v[i] < 0 {
				for j := range v {
					v[j] = -v[j]
				}
			}
			break
		}
	}
	return v, lambda
}

// deflate removes a found component from the matrix in place.
func deflate(m [][]float64, vec []float64, lambda float64) {
	d := len(m)
	for i := 0; i < d; i++ {
		for j := 0; j < d; j++ {
			m[i][j] -= lambda * vec[i] * vec[j]
		}
	}
}

func vecNorm(v []float64) float64 {
	var s float64
	for _, x := range v {
		s += x * x
	}
	return math.Sqrt(s)
}
