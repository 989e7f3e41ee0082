// Package fusion combines the independent authenticity signals into
// verdicts: the fixed-weight serial+image CombinedVerdict and the
// threshold-driven per-image verdict.
package fusion

import (
	"fmt"
	"math"

	"github.com/opensource-trust/kestrel/internal/domain"
)

// Fixed fusion policy: each signal contributes up to half the score, and
// the label thresholds are constants of the policy (the per-image
// thresholds in Config are tunable; these are not).
const (
	serialPoints = 50
	imagePoints  = 50

	authenticThreshold = 70
	reviewThreshold    = 40
)

// Fuse combines an optional serial check and an optional image match into
// one weighted verdict. Call it with at least one input present; an absent
// signal simply contributes zero.
func Fuse(serial *domain.SerialCheck, match *domain.ImageMatch) domain.CombinedVerdict {
	score := 0
	if serial != nil && serial.Valid {
		score += serialPoints
	}
	if match != nil && match.SimilarityPct != nil {
		score += int(math.Round(imagePoints * *match.SimilarityPct / 100))
	}
	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}

	label := domain.VerdictHighRisk
	switch {
	case score >= authenticThreshold:
		label = domain.VerdictLikelyAuthentic
	case score >= reviewThreshold:
		label = domain.VerdictReviewManually
	}

	return domain.CombinedVerdict{Score: score, Label: label}
}

// Config holds the caller-tunable per-image verdict thresholds.
type Config struct {
	// DistThreshold is the max Hamming distance considered authentic (0-64).
	DistThreshold int

	// SimThreshold is the min similarity percent considered authentic (0-100).
	SimThreshold float64

	// ReviewGrace widens the review band: a miss still earns "Needs Review"
	// when similarity >= SimThreshold - ReviewGrace. Historically 8; kept
	// tunable pending confirmation of the original choice.
	ReviewGrace float64
}

// ImageVerdict classifies a single catalog match against the configured
// thresholds and computes the similarity-dominant composite score.
func ImageVerdict(match domain.ImageMatch, cfg Config) domain.ImageVerdict {
	if match.Distance == nil || match.SimilarityPct == nil {
		return domain.ImageVerdict{
			Verdict:     domain.ImageVerdictNoCatalog,
			Explanation: "Add trusted images to the catalog directory for visual matching.",
		}
	}

	dist := *match.Distance
	sim := *match.SimilarityPct

	// Similarity carries 70% of the composite, structural distance 30%.
	simComponent := clamp01(sim/100) * 0.7
	distComponent := clamp01(float64(64-dist)/64) * 0.3
	score := int(100 * (simComponent + distComponent))

	verdict := domain.ImageVerdictCounterfeit
	explanation := fmt.Sprintf("Similarity %.1f%% below threshold or image signature too different (Hamming %d).", sim, dist)
	switch {
	case dist <= cfg.DistThreshold && sim >= cfg.SimThreshold:
		verdict = domain.ImageVerdictAuthentic
		explanation = fmt.Sprintf("Similarity %.1f%% >= %.0f and Hamming %d <= %d.", sim, cfg.SimThreshold, dist, cfg.DistThreshold)
	case sim >= cfg.SimThreshold-cfg.ReviewGrace:
		verdict = domain.ImageVerdictReview
		explanation = fmt.Sprintf("Close match (similarity %.1f%%). Distance %d vs threshold %d.", sim, dist, cfg.DistThreshold)
	}

	return domain.ImageVerdict{Verdict: verdict, Score: score, Explanation: explanation}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
