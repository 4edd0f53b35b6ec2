package decision

import "math"

// Bandit selects among a set of arms (e.g. candidate probes, or
// autonomy levels) balancing exploration against accumulated reward.
// LinUCB is used when contextual features are available and
// consistently sized; otherwise the selector falls back to UCB1 (spec
// §4.3).
type Bandit struct {
	dim   int
	alpha float64
	lambda float64

	// per-arm design matrix A = λI + Σ xx^T and reward vector
	// b = Σ r·x, both accumulated online (LinUCB, Li et al.).
	designMatrix map[string][][]float64
	rewardVector map[string][]float64

	// UCB1 fallback state.
	pullCount map[string]int
	rewardSum map[string]float64
	totalPulls int

	contextualEnabled bool
}

// NewBandit builds a bandit over a context of the given dimension.
// Set contextualEnabled=false (or always pass mismatched-dimension
// contexts to Select) to force the UCB1 fallback path.
func NewBandit(dim int, alpha, lambda float64, contextualEnabled bool) *Bandit {
	return &Bandit{
		dim:               dim,
		alpha:             alpha,
		lambda:            lambda,
		designMatrix:      make(map[string][][]float64),
		rewardVector:      make(map[string][]float64),
		pullCount:         make(map[string]int),
		rewardSum:         make(map[string]float64),
		contextualEnabled: contextualEnabled,
	}
}

func (b *Bandit) ensureArm(arm string) {
	if _, ok := b.designMatrix[arm]; ok {
		return
	}
	m := identity(b.dim)
	for i := range m {
		for j := range m[i] {
			m[i][j] *= b.lambda
		}
	}
	b.designMatrix[arm] = m
	b.rewardVector[arm] = make([]float64, b.dim)
}

// ArmScore is one arm's current UCB score, for explainability.
type ArmScore struct {
	Arm   string
	Score float64
}

// Select scores every named arm against its context vector (LinUCB)
// and returns the arm with the highest upper confidence bound. If
// contextual features are disabled, or any context vector's length
// does not match the bandit's configured dimension, every arm falls
// back to UCB1 scoring instead.
func (b *Bandit) Select(arms []string, contexts map[string][]float64) (string, []ArmScore) {
	useContextual := b.contextualEnabled
	if useContextual {
		for _, arm := range arms {
			if len(contexts[arm]) != b.dim {
				useContextual = false
				break
			}
		}
	}

	scores := make([]ArmScore, len(arms))
	for i, arm := range arms {
		var s float64
		if useContextual {
			s = b.linUCBScore(arm, contexts[arm])
		} else {
			s = b.ucb1Score(arm)
		}
		scores[i] = ArmScore{Arm: arm, Score: s}
	}

	best := scores[0]
	for _, s := range scores[1:] {
		if s.Score > best.Score {
			best = s
		}
	}
	return best.Arm, scores
}

func (b *Bandit) linUCBScore(arm string, x []float64) float64 {
	b.ensureArm(arm)
	A := b.designMatrix[arm]
	bias := b.rewardVector[arm]

	Ainv := invert(A)
	theta := matVec(Ainv, bias)

	meanReward := dot(theta, x)
	ax := matVec(Ainv, x)
	variance := dot(x, ax)
	if variance < 0 {
		variance = 0
	}
	return meanReward + b.alpha*math.Sqrt(variance)
}

func (b *Bandit) ucb1Score(arm string) float64 {
	n := b.pullCount[arm]
	if n == 0 {
		return math.Inf(1)
	}
	avg := b.rewardSum[arm] / float64(n)
	return avg + b.alpha*math.Sqrt(2*math.Log(float64(b.totalPulls+1))/float64(n))
}

// Update records an observed reward for an arm after it was pulled
// with context x (ignored by the UCB1 bookkeeping, which only needs
// the scalar reward).
func (b *Bandit) Update(arm string, x []float64, reward float64) {
	b.pullCount[arm]++
	b.rewardSum[arm] += reward
	b.totalPulls++

	if len(x) != b.dim {
		return
	}
	b.ensureArm(arm)
	A := b.designMatrix[arm]
	for i := 0; i < b.dim; i++ {
		for j := 0; j < b.dim; j++ {
			A[i][j] += x[i] * x[j]
		}
	}
	bias := b.rewardVector[arm]
	for i := 0; i < b.dim; i++ {
		bias[i] += reward * x[i]
	}
}

func identity(n int) [][]float64 {
	m := make([][]float64, n)
	for i := range m {
		m[i] = make([]float64, n)
		m[i][i] = 1
	}
	return m
}

func dot(a, b []float64) float64 {
	var s float64
	for i := range a {
		s += a[i] * b[i]
	}
	return s
}

func matVec(m [][]float64, v []float64) []float64 {
	out := make([]float64, len(m))
	for i := range m {
		var s float64
		for j := range v {
			s += m[i][j] * v[j]
		}
		out[i] = s
	}
	return out
}

// invert computes the inverse of a square matrix via Gauss-Jordan
// elimination with partial pivoting — the same
// numerical-recipe-by-hand register the inference/calibration
// packages use for their own linear algebra, since the design matrix
// here is small (one dimension per context feature) and no matrix
// library is otherwise used anywhere in the pack.
func invert(m [][]float64) [][]float64 {
	n := len(m)
	aug := make([][]float64, n)
	for i := range m {
		aug[i] = make([]float64, 2*n)
		copy(aug[i], m[i])
		aug[i][n+i] = 1
	}

	for col := 0; col < n; col++ {
		pivot := col
		for r := col + 1; r < n; r++ {
			if math.Abs(aug[r][col]) > math.Abs(aug[pivot][col]) {
				pivot = r
			}
		}
		aug[col], aug[pivot] = aug[pivot], aug[col]

		pv := aug[col][col]
		if math.Abs(pv) < 1e-12 {
			pv = 1e-12
		}
		for j := 0; j < 2*n; j++ {
			aug[col][j] /= pv
		}
		for r := 0; r < n; r++ {
			if r == col {
				continue
			}
			factor := aug[r][col]
			for j := 0; j < 2*n; j++ {
				aug[r][j] -= factor * aug[col][j]
			}
		}
	}

	inv := make([][]float64, n)
	for i := range inv {
		inv[i] = make([]float64, n)
		copy(inv[i], aug[i][n:])
	}
	return inv
}
