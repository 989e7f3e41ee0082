// Package anomaly scores invoice batches with an unsupervised isolation
// forest and explains each score with per-feature deviations.
package anomaly

import (
	"github.com/montanaflynn/stats"
	"github.com/opensource-trust/kestrel/internal/domain"
)

// FeatureNames is the fixed numeric feature set, in matrix column order.
var FeatureNames = [4]string{"amount", "unit_price", "quantity", "lead_time_days"}

// Prepare normalizes a batch into the fixed feature space: missing numeric
// values are imputed with the column median, entirely-missing columns are
// filled with zero. The input is not mutated; the returned batch has every
// numeric field set. Applying Prepare to its own output is a no-op.
func Prepare(batch []domain.Transaction) []domain.Transaction {
	out := make([]domain.Transaction, len(batch))
	copy(out, batch)

	for col := 0; col < len(FeatureNames); col++ {
		var present []float64
		for i := range out {
			if v := featureAt(&out[i], col); v != nil {
				present = append(present, *v)
			}
		}

		fill := 0.0
		if len(present) > 0 {
			// stats.Median only errors on empty input, which is excluded here.
			fill, _ = stats.Median(present)
		}

		for i := range out {
			if featureAt(&out[i], col) == nil {
				setFeatureAt(&out[i], col, fill)
			}
		}
	}

	return out
}

// Matrix converts a prepared batch into the n x 4 feature matrix.
// Unprepared rows contribute zero for any still-missing value.
func Matrix(batch []domain.Transaction) [][]float64 {
	X := make([][]float64, len(batch))
	for i := range batch {
		row := make([]float64, len(FeatureNames))
		for col := 0; col < len(FeatureNames); col++ {
			if v := featureAt(&batch[i], col); v != nil {
				row[col] = *v
			}
		}
		X[i] = row
	}
	return X
}

func featureAt(tx *domain.Transaction, col int) *float64 {
	switch col {
	case 0:
		return tx.Amount
	case 1:
		return tx.UnitPrice
	case 2:
		return tx.Quantity
	default:
		return tx.LeadTimeDays
	}
}

func setFeatureAt(tx *domain.Transaction, col int, v float64) {
	f := v
	switch col {
	case 0:
		tx.Amount = &f
	case 1:
		tx.UnitPrice = &f
	case 2:
		tx.Quantity = &f
	default:
		tx.LeadTimeDays = &f
	}
}
