package anomaly

import (
	"fmt"
	"math"
	"math/rand"
	"sort"
	"strings"

	"github.com/opensource-trust/kestrel/internal/domain"
	"gonum.org/v1/gonum/stat"
)

const (
	defaultTrees      = 100
	defaultSampleSize = 256

	// epsilon keeps constant-feature z-scores at zero instead of NaN.
	epsilon = 1e-9
)

// Scorer fits and applies the isolation forest. For a fixed batch,
// contamination and seed the output is reproducible.
type Scorer struct {
	Trees         int
	SampleSize    int
	Contamination float64
	Seed          int64
}

// NewScorer returns a scorer with the standard forest dimensions.
func NewScorer(contamination float64, seed int64) *Scorer {
	return &Scorer{
		Trees:         defaultTrees,
		SampleSize:    defaultSampleSize,
		Contamination: contamination,
		Seed:          seed,
	}
}

// Model is the fitted handle returned by FitAndScore. Callers that need to
// re-score or re-explain records against the same fit pass it explicitly;
// nothing is kept as package state.
type Model struct {
	forest *forest
	means  [4]float64
	stds   [4]float64
}

// ScoreRow scores one prepared record against the fitted forest.
func (m *Model) ScoreRow(tx domain.Transaction) float64 {
	row := Matrix([]domain.Transaction{tx})[0]
	return m.forest.score(row)
}

// Explain rebuilds the top-feature explanation for one prepared record
// using the fitted batch's column statistics.
func (m *Model) Explain(tx domain.Transaction) string {
	row := Matrix([]domain.Transaction{tx})[0]
	return explainRow(row, m.means, m.stds)
}

// FitAndScore prepares the batch if needed, fits the forest on the 4-d
// feature matrix and returns every record scored, flagged and explained,
// along with the fitted model handle. An empty batch yields an empty
// result and a nil model.
func (s *Scorer) FitAndScore(batch []domain.Transaction) ([]domain.ScoredTransaction, *Model, error) {
	if s.Contamination <= 0 || s.Contamination >= 1 {
		return nil, nil, fmt.Errorf("contamination must be in (0,1), got %g", s.Contamination)
	}
	if len(batch) == 0 {
		return []domain.ScoredTransaction{}, nil, nil
	}

	prepared := Prepare(batch)
	X := Matrix(prepared)

	rng := rand.New(rand.NewSource(s.Seed))
	f := fitForest(X, s.Trees, s.SampleSize, rng)

	model := &Model{forest: f}
	for col := 0; col < len(FeatureNames); col++ {
		column := make([]float64, len(X))
		for i := range X {
			column[i] = X[i][col]
		}
		model.means[col] = stat.Mean(column, nil)
		model.stds[col] = math.Sqrt(stat.PopVariance(column, nil))
	}

	scored := make([]domain.ScoredTransaction, len(prepared))
	for i := range prepared {
		scored[i] = domain.ScoredTransaction{
			Transaction:  prepared[i],
			AnomalyScore: f.score(X[i]),
			Reason:       explainRow(X[i], model.means, model.stds),
		}
	}

	flagTopK(scored, s.Contamination)
	return scored, model, nil
}

// flagTopK marks the k highest-scoring records as anomalies, where
// k = round(contamination * n). A deterministic cut keeps the flagged
// count aligned with the contamination rate across runs.
func flagTopK(scored []domain.ScoredTransaction, contamination float64) {
	n := len(scored)
	k := int(math.Round(contamination * float64(n)))
	if k <= 0 {
		return
	}
	if k > n {
		k = n
	}

	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return scored[order[a]].AnomalyScore > scored[order[b]].AnomalyScore
	})
	for _, idx := range order[:k] {
		scored[idx].IsAnomaly = true
	}
}

// explainRow names the two features deviating most from their column mean,
// by absolute z-score, formatted to one decimal place.
func explainRow(row []float64, means, stds [4]float64) string {
	type deviation struct {
		col int
		z   float64
	}

	devs := make([]deviation, len(FeatureNames))
	for col := range FeatureNames {
		devs[col] = deviation{col: col, z: math.Abs((row[col] - means[col]) / (stds[col] + epsilon))}
	}
	sort.SliceStable(devs, func(a, b int) bool {
		return devs[a].z > devs[b].z
	})

	parts := make([]string, 0, 2)
	for _, d := range devs[:2] {
		parts = append(parts, fmt.Sprintf("%s z≈%.1f", FeatureNames[d.col], d.z))
	}
	return strings.Join(parts, ", ")
}
