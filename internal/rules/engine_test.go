package rules

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/opensource-trust/kestrel/internal/domain"
)

func TestEngineCreation(t *testing.T) {
	engine, err := NewEngine(nil, 5)
	if err != nil {
		t.Fatalf("failed to create engine: %v", err)
	}
	defer engine.Close()

	if engine.RulesCount() != 0 {
		t.Errorf("expected 0 rules, got %d", engine.RulesCount())
	}
}

func TestLoadRule(t *testing.T) {
	engine, _ := NewEngine(nil, 5)
	defer engine.Close()

	rule := &domain.RuleConfig{
		ID:         "test-rule-001",
		Name:       "Test Rule",
		Expression: "amount > 100.0",
		Bands:      []domain.RuleBand{},
		Weight:     1.0,
		Enabled:    true,
	}

	err := engine.LoadRule(rule)
	if err != nil {
		t.Fatalf("failed to load rule: %v", err)
	}

	if engine.RulesCount() != 1 {
		t.Errorf("expected 1 rule, got %d", engine.RulesCount())
	}
}

func TestLoadInvalidRule(t *testing.T) {
	engine, _ := NewEngine(nil, 5)
	defer engine.Close()

	rule := &domain.RuleConfig{
		ID:         "invalid-rule",
		Name:       "Invalid Rule",
		Expression: "this is not valid CEL !!!",
		Enabled:    true,
	}

	err := engine.LoadRule(rule)
	if err == nil {
		t.Error("expected error for invalid CEL expression")
	}
}

func TestEvaluateAmountRule(t *testing.T) {
	engine, _ := NewEngine(nil, 5)
	defer engine.Close()

	zero := 0.0
	one := 1.0

	rule := &domain.RuleConfig{
		ID:         "amount-check",
		Name:       "Amount Check",
		Expression: "amount > 1000.0 ? 1.0 : 0.0",
		Bands: []domain.RuleBand{
			{LowerLimit: &zero, UpperLimit: &one, SubRuleRef: domain.RuleOutcomePass, Reason: "Normal amount"},
			{LowerLimit: &one, UpperLimit: nil, SubRuleRef: domain.RuleOutcomeFlag, Reason: "High amount"},
		},
		Weight:  1.0,
		Enabled: true,
	}

	engine.LoadRule(rule)

	ctx := context.Background()

	// Low amount
	input := &EvaluateInput{
		TenantID:  "tenant-001",
		InvoiceID: "INV-1001",
		Supplier:  "Acme Supply",
		Amount:    500.0,
	}

	results, err := engine.EvaluateAll(ctx, input)
	if err != nil {
		t.Fatalf("evaluation failed: %v", err)
	}

	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}

	if results[0].Score != 0.0 {
		t.Errorf("expected score 0.0 for low amount, got %.2f", results[0].Score)
	}
	if results[0].SubRuleRef != domain.RuleOutcomePass {
		t.Errorf("expected pass, got %s", results[0].SubRuleRef)
	}

	// High amount
	input.Amount = 5000.0
	results, _ = engine.EvaluateAll(ctx, input)

	if results[0].Score != 1.0 {
		t.Errorf("expected score 1.0 for high amount, got %.2f", results[0].Score)
	}
	if results[0].SubRuleRef != domain.RuleOutcomeFlag {
		t.Errorf("expected flag, got %s", results[0].SubRuleRef)
	}
}

func TestEvaluateBooleanRule(t *testing.T) {
	engine, _ := NewEngine(nil, 5)
	defer engine.Close()

	rule := &domain.RuleConfig{
		ID:         "rush-delivery-check",
		Name:       "Rush Delivery Check",
		Expression: "lead_time_days < 2.0 && quantity > 100.0",
		Bands:      []domain.RuleBand{},
		Weight:     1.0,
		Enabled:    true,
	}

	engine.LoadRule(rule)

	ctx := context.Background()

	// Plausible lead time
	input := &EvaluateInput{
		TenantID:     "tenant-001",
		InvoiceID:    "INV-1001",
		Quantity:     500.0,
		LeadTimeDays: 14.0,
	}

	results, _ := engine.EvaluateAll(ctx, input)
	if results[0].Score != 0.0 {
		t.Errorf("expected score 0.0 for plausible lead time, got %.2f", results[0].Score)
	}

	// Rush delivery on a large order
	input.LeadTimeDays = 1.0
	results, _ = engine.EvaluateAll(ctx, input)
	if results[0].Score != 1.0 {
		t.Errorf("expected score 1.0 for rush delivery, got %.2f", results[0].Score)
	}
}

func TestVelocityRule(t *testing.T) {
	// Mock velocity getter that returns a fixed count
	velocityGetter := func(ctx context.Context, tenantID, supplier string, windowSecs int) (int64, error) {
		return 75, nil // Simulates 75 records in window
	}

	engine, _ := NewEngine(velocityGetter, 5)
	defer engine.Close()

	zero := 0.0
	one := 1.0

	rule := &domain.RuleConfig{
		ID:          "velocity-check-001",
		Name:        "Supplier Velocity Check",
		Description: "Flags suppliers with unusually high record volume",
		Version:     "1.0.0",
		Expression:  "velocity_count > 50 ? 1.0 : 0.0",
		Bands: []domain.RuleBand{
			{LowerLimit: &zero, UpperLimit: &one, SubRuleRef: domain.RuleOutcomePass, Reason: "Normal volume"},
			{LowerLimit: &one, UpperLimit: nil, SubRuleRef: domain.RuleOutcomeFlag, Reason: "Volume burst"},
		},
		Weight:  1.0,
		Enabled: true,
	}
	engine.LoadRule(rule)

	ctx := context.Background()
	input := &EvaluateInput{
		TenantID:       "tenant-001",
		InvoiceID:      "INV-1001",
		Supplier:       "Acme Supply",
		VelocityWindow: 3600, // 1 hour
	}

	results, _ := engine.EvaluateAll(ctx, input)

	if results[0].Score != 1.0 {
		t.Errorf("expected score 1.0 for volume burst, got %.2f", results[0].Score)
	}
	if results[0].SubRuleRef != domain.RuleOutcomeFlag {
		t.Errorf("expected flag for volume burst, got %s", results[0].SubRuleRef)
	}
}

func TestParallelExecution(t *testing.T) {
	engine, _ := NewEngine(nil, 3)
	defer engine.Close()

	for i := 0; i < 10; i++ {
		rule := &domain.RuleConfig{
			ID:         fmt.Sprintf("rule-%d", i),
			Name:       fmt.Sprintf("Rule %d", i),
			Expression: "amount > 0.0",
			Weight:     1.0,
			Enabled:    true,
		}
		engine.LoadRule(rule)
	}

	if engine.RulesCount() != 10 {
		t.Fatalf("expected 10 rules, got %d", engine.RulesCount())
	}

	ctx := context.Background()
	input := &EvaluateInput{
		TenantID:  "tenant-001",
		InvoiceID: "INV-1001",
		Amount:    100.0,
	}

	results, err := engine.EvaluateAll(ctx, input)
	if err != nil {
		t.Fatalf("parallel evaluation failed: %v", err)
	}

	if len(results) != 10 {
		t.Errorf("expected 10 results, got %d", len(results))
	}

	for i, r := range results {
		if r.Score != 1.0 {
			t.Errorf("rule %d: expected score 1.0, got %.2f", i, r.Score)
		}
	}
}

func TestConcurrencyLimit(t *testing.T) {
	var concurrentCount int32
	var maxConcurrent int32

	velocityGetter := func(ctx context.Context, tenantID, supplier string, windowSecs int) (int64, error) {
		current := atomic.AddInt32(&concurrentCount, 1)
		defer atomic.AddInt32(&concurrentCount, -1)

		for {
			old := atomic.LoadInt32(&maxConcurrent)
			if current <= old || atomic.CompareAndSwapInt32(&maxConcurrent, old, current) {
				break
			}
		}

		time.Sleep(10 * time.Millisecond) // Simulate work
		return 5, nil
	}

	engine, _ := NewEngine(velocityGetter, 2) // Max 2 workers
	defer engine.Close()

	for i := 0; i < 10; i++ {
		rule := &domain.RuleConfig{
			ID:         fmt.Sprintf("rule-%d", i),
			Expression: "velocity_count > 10 ? 1.0 : 0.0",
			Enabled:    true,
		}
		engine.LoadRule(rule)
	}

	ctx := context.Background()
	input := &EvaluateInput{
		TenantID:       "tenant-001",
		InvoiceID:      "INV-1001",
		Supplier:       "Acme Supply",
		VelocityWindow: 3600,
	}

	engine.EvaluateAll(ctx, input)

	// Velocity is fetched once before the parallel fan-out; the semaphore
	// bounds rule evaluation. This mainly verifies the pool doesn't crash.
}

func TestBuiltinRulesLoad(t *testing.T) {
	engine, _ := NewEngine(nil, 5)
	defer engine.Close()

	if err := engine.LoadRules(BuiltinRules()); err != nil {
		t.Fatalf("builtin rules failed to compile: %v", err)
	}
	if engine.RulesCount() != len(BuiltinRules()) {
		t.Errorf("expected %d rules, got %d", len(BuiltinRules()), engine.RulesCount())
	}

	ctx := context.Background()
	input := &EvaluateInput{
		TenantID:     "tenant-001",
		InvoiceID:    "INV-1001",
		Supplier:     "Acme Supply",
		Amount:       15000.0,
		Quantity:     10.0,
		LeadTimeDays: 14.0,
	}

	results, err := engine.EvaluateAll(ctx, input)
	if err != nil {
		t.Fatalf("evaluation failed: %v", err)
	}

	flagged := 0
	for _, r := range results {
		if r.SubRuleRef == domain.RuleOutcomeFlag {
			flagged++
		}
	}
	if flagged != 1 {
		t.Errorf("expected exactly the high-amount rule to flag, got %d flags", flagged)
	}
}

func TestReloadRules(t *testing.T) {
	engine, _ := NewEngine(nil, 5)
	defer engine.Close()

	engine.LoadRules(BuiltinRules())

	replacement := []*domain.RuleConfig{
		{ID: "only-rule", Expression: "quantity > 0.0", Enabled: true},
		{ID: "disabled-rule", Expression: "amount > 0.0", Enabled: false},
	}
	if err := engine.ReloadRules(replacement); err != nil {
		t.Fatalf("reload failed: %v", err)
	}

	if engine.RulesCount() != 1 {
		t.Errorf("expected 1 rule after reload, got %d", engine.RulesCount())
	}
}

func TestInputFromTransaction(t *testing.T) {
	tx := &domain.Transaction{
		InvoiceID: "INV-2001",
		Supplier:  "Acme Supply",
		Item:      "Widget",
		Amount:    domain.Float(1250.0),
		Quantity:  domain.Float(25.0),
	}

	input := InputFromTransaction("tenant-001", tx, 3600)

	if input.InvoiceID != "INV-2001" {
		t.Errorf("expected invoice INV-2001, got %s", input.InvoiceID)
	}
	if input.Amount != 1250.0 {
		t.Errorf("expected amount 1250, got %.2f", input.Amount)
	}
	// Missing numeric fields evaluate as zero
	if input.UnitPrice != 0 || input.LeadTimeDays != 0 {
		t.Errorf("expected missing fields to be zero, got %.2f / %.2f", input.UnitPrice, input.LeadTimeDays)
	}
}

func TestRuleResultMetadata(t *testing.T) {
	engine, _ := NewEngine(nil, 5)
	defer engine.Close()

	rule := &domain.RuleConfig{
		ID:         "meta-test",
		Expression: "amount > 0.0",
		Weight:     0.75,
		Enabled:    true,
	}
	engine.LoadRule(rule)

	ctx := context.Background()
	input := &EvaluateInput{
		TenantID:  "tenant-123",
		InvoiceID: "INV-456",
		Amount:    100.0,
	}

	results, _ := engine.EvaluateAll(ctx, input)

	if results[0].RuleID != "meta-test" {
		t.Errorf("expected RuleID 'meta-test', got '%s'", results[0].RuleID)
	}
	if results[0].TenantID != "tenant-123" {
		t.Errorf("expected TenantID 'tenant-123', got '%s'", results[0].TenantID)
	}
	if results[0].InvoiceID != "INV-456" {
		t.Errorf("expected InvoiceID 'INV-456', got '%s'", results[0].InvoiceID)
	}
	if results[0].Weight != 0.75 {
		t.Errorf("expected Weight 0.75, got %.2f", results[0].Weight)
	}
	if results[0].ProcessMs < 0 {
		t.Error("ProcessMs should be non-negative")
	}
}
