package domain

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

// Transaction is one invoice row submitted for anomaly scoring.
// The numeric fields are optional: a nil pointer means the value was
// absent or could not be coerced to a number; Prepare fills it in.
type Transaction struct {
	InvoiceID string `json:"invoiceId"`
	Date      string `json:"date"`
	Supplier  string `json:"supplier"`
	Item      string `json:"item"`

	Quantity     *float64 `json:"quantity"`
	UnitPrice    *float64 `json:"unitPrice"`
	LeadTimeDays *float64 `json:"leadTimeDays"`
	Amount       *float64 `json:"amount"`
}

// ScoredTransaction is a Transaction after model fitting.
// Scores are comparable only within the batch they were fitted on.
type ScoredTransaction struct {
	Transaction

	AnomalyScore float64 `json:"anomalyScore"` // higher = more anomalous
	IsAnomaly    bool    `json:"isAnomaly"`
	Reason       string  `json:"reasonTopFeatures"`

	// Advisory flags from tenant-configured rules, independent of the model.
	RuleFlags []RuleResult `json:"ruleFlags,omitempty"`
}

// SupplierRisk is one row of the supplier risk table.
type SupplierRisk struct {
	Supplier  string  `json:"supplier"`
	Total     int     `json:"total"`
	Anomalies int     `json:"anomalies"`
	AvgScore  float64 `json:"avgScore"`
	RiskScore float64 `json:"riskScore"` // 0..100
}

// Batch is the stored summary of one scored invoice batch.
type Batch struct {
	ID            string    `json:"id"`
	TenantID      string    `json:"tenantId"`
	Records       int       `json:"records"`
	Anomalies     int       `json:"anomalies"`
	Contamination float64   `json:"contamination"`
	Seed          int64     `json:"seed"`
	CreatedAt     time.Time `json:"createdAt"`
}

// OptionalFloat unmarshals a JSON value that may be a number, a numeric
// string, an empty string, or null into an optional float. A value that
// is not a number becomes nil rather than an error, matching the batch
// schema's coerce-or-missing policy.
type OptionalFloat struct {
	Value *float64
}

// UnmarshalJSON implements json.Unmarshaler.
func (o *OptionalFloat) UnmarshalJSON(data []byte) error {
	s := strings.TrimSpace(string(data))
	if s == "null" || s == `""` {
		o.Value = nil
		return nil
	}
	if strings.HasPrefix(s, `"`) {
		var str string
		if err := json.Unmarshal(data, &str); err != nil {
			o.Value = nil
			return nil
		}
		s = strings.TrimSpace(str)
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		o.Value = nil
		return nil
	}
	o.Value = &f
	return nil
}

// Float returns a pointer to v. Convenience for building optional fields.
func Float(v float64) *float64 {
	return &v
}
