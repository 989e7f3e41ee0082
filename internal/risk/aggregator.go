// Package risk rolls scored invoice batches up into per-supplier risk rows.
package risk

import (
	"math"
	"sort"

	"github.com/opensource-trust/kestrel/internal/domain"
)

// Weights of the supplier risk formula: anomaly rate dominates, relative
// score severity is secondary.
const (
	rateWeight = 0.6
	normWeight = 0.4

	// epsilon keeps min-max normalization defined when every supplier has
	// the same average score (norm collapses to 0, not NaN).
	epsilon = 1e-9
)

// Aggregate produces one risk row per distinct supplier in the scored
// batch, sorted by risk score descending (supplier name ascending on
// ties). An empty batch yields an empty table.
func Aggregate(scored []domain.ScoredTransaction) []domain.SupplierRisk {
	if len(scored) == 0 {
		return []domain.SupplierRisk{}
	}

	bySupplier := make(map[string]*domain.SupplierRisk)
	order := make([]string, 0)
	for _, s := range scored {
		row, ok := bySupplier[s.Supplier]
		if !ok {
			row = &domain.SupplierRisk{Supplier: s.Supplier}
			bySupplier[s.Supplier] = row
			order = append(order, s.Supplier)
		}
		row.Total++
		if s.IsAnomaly {
			row.Anomalies++
		}
		row.AvgScore += s.AnomalyScore
	}

	minAvg, maxAvg := math.Inf(1), math.Inf(-1)
	for _, supplier := range order {
		row := bySupplier[supplier]
		row.AvgScore /= float64(row.Total)
		minAvg = math.Min(minAvg, row.AvgScore)
		maxAvg = math.Max(maxAvg, row.AvgScore)
	}

	rows := make([]domain.SupplierRisk, 0, len(order))
	for _, supplier := range order {
		row := bySupplier[supplier]
		rate := float64(row.Anomalies) / float64(row.Total)
		norm := (row.AvgScore - minAvg) / (maxAvg - minAvg + epsilon)
		row.RiskScore = round1(100 * (rateWeight*rate + normWeight*norm))
		rows = append(rows, *row)
	}

	sort.SliceStable(rows, func(a, b int) bool {
		if rows[a].RiskScore != rows[b].RiskScore {
			return rows[a].RiskScore > rows[b].RiskScore
		}
		return rows[a].Supplier < rows[b].Supplier
	})
	return rows
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
