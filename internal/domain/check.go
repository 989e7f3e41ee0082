package domain

import "time"

// SerialCheck is the structural + checksum validation result for one serial.
type SerialCheck struct {
	Normalized string `json:"normalized"`
	FormatOK   bool   `json:"formatOk"`
	ChecksumOK bool   `json:"checksumOk"`
	Valid      bool   `json:"valid"`
}

// ImageMatch is the nearest-neighbour result of a catalog query.
// All fields are nil when the catalog index is empty.
type ImageMatch struct {
	BestFile      *string  `json:"bestFile"`
	Distance      *int     `json:"hammingDistance"` // 0..64
	SimilarityPct *float64 `json:"similarityPct"`   // 0..100
}

// Image verdict labels, driven by caller-supplied thresholds.
const (
	ImageVerdictAuthentic   = "Authentic"
	ImageVerdictReview      = "Needs Review"
	ImageVerdictCounterfeit = "Suspected Counterfeit"
	ImageVerdictNoCatalog   = "No catalog images found"
)

// ImageVerdict is the per-image authenticity verdict, separate from the
// fused CombinedVerdict.
type ImageVerdict struct {
	Verdict     string `json:"verdict"`
	Score       int    `json:"score"` // 0..100, similarity-dominant composite
	Explanation string `json:"explanation,omitempty"`
}

// Combined verdict labels of the fusion policy.
const (
	VerdictLikelyAuthentic = "Likely Authentic"
	VerdictReviewManually  = "Review Manually"
	VerdictHighRisk        = "High Risk"
)

// CombinedVerdict is the fused serial+image authenticity verdict.
type CombinedVerdict struct {
	Score int    `json:"score"` // 0..100
	Label string `json:"label"`
}

// CheckResult is the stored record of one product authenticity check.
type CheckResult struct {
	ID       string `json:"id"`
	TenantID string `json:"tenantId"`

	Serial *SerialCheck `json:"serial,omitempty"`
	Image  *ImageMatch  `json:"image,omitempty"`

	ImageVerdict *ImageVerdict   `json:"imageVerdict,omitempty"`
	Combined     CombinedVerdict `json:"combined"`

	// Allowlisted reports whether the submitted serial was found in the
	// caller-supplied known-good set. Nil when no allow-list was given.
	Allowlisted *bool `json:"allowlisted,omitempty"`

	Timestamp time.Time `json:"timestamp"`
}

// AuditEvent is one row of the append-only audit trail.
type AuditEvent struct {
	ID        string    `json:"id"`
	TenantID  string    `json:"tenantId"`
	Event     string    `json:"event"`
	Details   string    `json:"details"` // JSON document
	Timestamp time.Time `json:"timestamp"`
}
