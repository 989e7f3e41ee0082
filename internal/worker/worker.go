// Package worker provides async audit trail processing from the EventBus.
package worker

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/opensource-trust/kestrel/internal/domain"
)

// Worker consumes scoring events and appends them to the audit trail.
// High-risk outcomes are re-published on the alert topic.
type Worker struct {
	bus  domain.EventBus
	repo domain.Repository

	subscriptions []domain.Subscription
	wg            sync.WaitGroup
	ctx           context.Context
	cancel        context.CancelFunc
}

// Config holds worker configuration.
type Config struct {
	// TenantIDs is the list of tenants to process
	TenantIDs []string
}

// NewWorker creates a new audit worker.
func NewWorker(bus domain.EventBus, repo domain.Repository) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		bus:    bus,
		repo:   repo,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start begins consuming events for the given tenants.
func (w *Worker) Start(cfg Config) error {
	for _, tenantID := range cfg.TenantIDs {
		if err := w.startTenantWorker(tenantID); err != nil {
			slog.Error("failed to start worker for tenant",
				"tenant_id", tenantID,
				"error", err,
			)
			continue
		}
	}

	slog.Info("audit workers started",
		"tenant_count", len(cfg.TenantIDs),
	)

	return nil
}

// startTenantWorker subscribes one tenant to the scoring topics.
func (w *Worker) startTenantWorker(tenantID string) error {
	checkSub, err := w.bus.Subscribe(w.ctx, tenantID, domain.TopicCheckCompleted, func(ctx context.Context, msg *domain.Message) error {
		return w.processCheckCompleted(ctx, tenantID, msg)
	})
	if err != nil {
		return err
	}
	w.subscriptions = append(w.subscriptions, checkSub)

	batchSub, err := w.bus.Subscribe(w.ctx, tenantID, domain.TopicBatchScored, func(ctx context.Context, msg *domain.Message) error {
		return w.processBatchScored(ctx, tenantID, msg)
	})
	if err != nil {
		return err
	}
	w.subscriptions = append(w.subscriptions, batchSub)

	slog.Info("tenant worker started",
		"tenant_id", tenantID,
	)

	return nil
}

// CheckCompletedEvent is the payload published when a product check finishes.
type CheckCompletedEvent struct {
	CheckID  string `json:"checkId"`
	TenantID string `json:"tenantId"`
	Score    int    `json:"score"`
	Label    string `json:"label"`
	Serial   string `json:"serial,omitempty"`
}

// BatchScoredEvent is the payload published when a batch is scored.
type BatchScoredEvent struct {
	BatchID   string `json:"batchId"`
	TenantID  string `json:"tenantId"`
	Records   int    `json:"records"`
	Anomalies int    `json:"anomalies"`
}

// processCheckCompleted audits a finished product check.
func (w *Worker) processCheckCompleted(ctx context.Context, tenantID string, msg *domain.Message) error {
	start := time.Now()

	var evt CheckCompletedEvent
	if err := json.Unmarshal(msg.Payload, &evt); err != nil {
		slog.Error("failed to parse check event",
			"message_id", msg.ID,
			"error", err,
		)
		return err
	}

	if evt.TenantID != "" {
		tenantID = evt.TenantID
	}

	if w.repo != nil {
		event := &domain.AuditEvent{
			ID:        uuid.New().String(),
			TenantID:  tenantID,
			Event:     domain.TopicCheckCompleted,
			Details:   string(msg.Payload),
			Timestamp: time.Now().UTC(),
		}
		if err := w.repo.SaveAuditEvent(ctx, tenantID, event); err != nil {
			slog.Error("failed to save audit event",
				"check_id", evt.CheckID,
				"error", err,
			)
		}
	}

	// High-risk checks raise an alert
	if evt.Label == domain.VerdictHighRisk {
		if err := w.bus.Publish(ctx, tenantID, domain.TopicAlert, msg.Payload); err != nil {
			slog.Error("failed to publish alert",
				"check_id", evt.CheckID,
				"error", err,
			)
		}
	}

	slog.Info("check audited",
		"check_id", evt.CheckID,
		"tenant_id", tenantID,
		"label", evt.Label,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	return nil
}

// processBatchScored audits a scored batch.
func (w *Worker) processBatchScored(ctx context.Context, tenantID string, msg *domain.Message) error {
	var evt BatchScoredEvent
	if err := json.Unmarshal(msg.Payload, &evt); err != nil {
		slog.Error("failed to parse batch event",
			"message_id", msg.ID,
			"error", err,
		)
		return err
	}

	if evt.TenantID != "" {
		tenantID = evt.TenantID
	}

	if w.repo != nil {
		event := &domain.AuditEvent{
			ID:        uuid.New().String(),
			TenantID:  tenantID,
			Event:     domain.TopicBatchScored,
			Details:   string(msg.Payload),
			Timestamp: time.Now().UTC(),
		}
		if err := w.repo.SaveAuditEvent(ctx, tenantID, event); err != nil {
			slog.Error("failed to save audit event",
				"batch_id", evt.BatchID,
				"error", err,
			)
		}
	}

	// A batch where every record is flagged suggests bad input or a
	// compromised supplier feed; alert on it.
	if evt.Records > 0 && evt.Anomalies == evt.Records {
		if err := w.bus.Publish(ctx, tenantID, domain.TopicAlert, msg.Payload); err != nil {
			slog.Error("failed to publish alert",
				"batch_id", evt.BatchID,
				"error", err,
			)
		}
	}

	slog.Info("batch audited",
		"batch_id", evt.BatchID,
		"tenant_id", tenantID,
		"records", evt.Records,
		"anomalies", evt.Anomalies,
	)

	return nil
}

// Stop gracefully stops all workers.
func (w *Worker) Stop() error {
	w.cancel()

	// Unsubscribe all
	for _, sub := range w.subscriptions {
		if err := sub.Unsubscribe(); err != nil {
			slog.Error("failed to unsubscribe",
				"topic", sub.Topic(),
				"error", err,
			)
		}
	}
	w.subscriptions = nil

	w.wg.Wait()

	slog.Info("workers stopped")
	return nil
}

// Stats returns worker statistics.
type Stats struct {
	SubscriptionCount int      `json:"subscriptionCount"`
	Topics            []string `json:"topics"`
}

// GetStats returns current worker statistics.
func (w *Worker) GetStats() Stats {
	topics := make([]string, len(w.subscriptions))
	for i, sub := range w.subscriptions {
		topics[i] = sub.Topic()
	}
	return Stats{
		SubscriptionCount: len(w.subscriptions),
		Topics:            topics,
	}
}
