package fusion

import (
	"testing"

	"github.com/opensource-trust/kestrel/internal/domain"
)

func match(dist int, sim float64) domain.ImageMatch {
	file := "ref.png"
	return domain.ImageMatch{BestFile: &file, Distance: &dist, SimilarityPct: &sim}
}

func TestFuse(t *testing.T) {
	t.Run("ValidSerialAndStrongImage", func(t *testing.T) {
		m := match(6, 80)
		v := Fuse(&domain.SerialCheck{Valid: true}, &m)
		if v.Score != 90 {
			t.Errorf("expected 50+40=90, got %d", v.Score)
		}
		if v.Label != domain.VerdictLikelyAuthentic {
			t.Errorf("expected Likely Authentic, got %s", v.Label)
		}
	})

	t.Run("InvalidSerialWeakImage", func(t *testing.T) {
		m := match(32, 50)
		v := Fuse(&domain.SerialCheck{Valid: false}, &m)
		if v.Score != 25 {
			t.Errorf("expected 0+25=25, got %d", v.Score)
		}
		if v.Label != domain.VerdictHighRisk {
			t.Errorf("expected High Risk, got %s", v.Label)
		}
	})

	t.Run("ImageOnly", func(t *testing.T) {
		m := match(11, 82)
		v := Fuse(nil, &m)
		if v.Score != 41 {
			t.Errorf("expected round(50*0.82)=41, got %d", v.Score)
		}
		if v.Label != domain.VerdictReviewManually {
			t.Errorf("expected Review Manually, got %s", v.Label)
		}
	})

	t.Run("SerialOnly", func(t *testing.T) {
		v := Fuse(&domain.SerialCheck{Valid: true}, nil)
		if v.Score != 50 {
			t.Errorf("expected 50, got %d", v.Score)
		}
		if v.Label != domain.VerdictReviewManually {
			t.Errorf("expected Review Manually, got %s", v.Label)
		}
	})

	t.Run("NoCatalogMatchContributesZero", func(t *testing.T) {
		v := Fuse(&domain.SerialCheck{Valid: false}, &domain.ImageMatch{})
		if v.Score != 0 {
			t.Errorf("expected 0, got %d", v.Score)
		}
		if v.Label != domain.VerdictHighRisk {
			t.Errorf("expected High Risk, got %s", v.Label)
		}
	})

	t.Run("LabelBoundaries", func(t *testing.T) {
		// Exactly 70 is Likely Authentic, exactly 40 is Review Manually.
		m70 := match(32, 40) // serial 50 + round(50*0.40)=20 -> 70
		if v := Fuse(&domain.SerialCheck{Valid: true}, &m70); v.Label != domain.VerdictLikelyAuthentic {
			t.Errorf("score %d: expected Likely Authentic at boundary, got %s", v.Score, v.Label)
		}
		m40 := match(12, 80) // image only: round(50*0.80)=40
		if v := Fuse(nil, &m40); v.Label != domain.VerdictReviewManually {
			t.Errorf("score %d: expected Review Manually at boundary, got %s", v.Score, v.Label)
		}
	})
}

func TestImageVerdict(t *testing.T) {
	cfg := Config{DistThreshold: 12, SimThreshold: 80, ReviewGrace: 8}

	t.Run("Authentic", func(t *testing.T) {
		v := ImageVerdict(match(5, 92.2), cfg)
		if v.Verdict != domain.ImageVerdictAuthentic {
			t.Errorf("expected Authentic, got %s", v.Verdict)
		}
		// 0.7*0.922 + 0.3*(59/64) = 0.6454 + 0.27656 = 0.92196 -> 92
		if v.Score != 92 {
			t.Errorf("expected composite 92, got %d", v.Score)
		}
	})

	t.Run("GraceBandNeedsReview", func(t *testing.T) {
		// Similarity inside [SimThreshold-8, SimThreshold).
		v := ImageVerdict(match(20, 75), cfg)
		if v.Verdict != domain.ImageVerdictReview {
			t.Errorf("expected Needs Review, got %s", v.Verdict)
		}
	})

	t.Run("DistanceBreachNeedsReview", func(t *testing.T) {
		// Similarity clears the bar but distance does not.
		v := ImageVerdict(match(30, 85), cfg)
		if v.Verdict != domain.ImageVerdictReview {
			t.Errorf("expected Needs Review, got %s", v.Verdict)
		}
	})

	t.Run("SuspectedCounterfeit", func(t *testing.T) {
		v := ImageVerdict(match(50, 20), cfg)
		if v.Verdict != domain.ImageVerdictCounterfeit {
			t.Errorf("expected Suspected Counterfeit, got %s", v.Verdict)
		}
	})

	t.Run("ConfigurableGrace", func(t *testing.T) {
		tight := Config{DistThreshold: 12, SimThreshold: 80, ReviewGrace: 2}
		v := ImageVerdict(match(20, 75), tight)
		if v.Verdict != domain.ImageVerdictCounterfeit {
			t.Errorf("expected Suspected Counterfeit outside narrowed grace band, got %s", v.Verdict)
		}
	})

	t.Run("NoCatalog", func(t *testing.T) {
		v := ImageVerdict(domain.ImageMatch{}, cfg)
		if v.Verdict != domain.ImageVerdictNoCatalog {
			t.Errorf("expected no-catalog verdict, got %s", v.Verdict)
		}
		if v.Score != 0 {
			t.Errorf("expected score 0, got %d", v.Score)
		}
	})
}
