package api

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"image"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/opensource-trust/kestrel/internal/anomaly"
	"github.com/opensource-trust/kestrel/internal/catalog"
	"github.com/opensource-trust/kestrel/internal/domain"
	"github.com/opensource-trust/kestrel/internal/fusion"
	"github.com/opensource-trust/kestrel/internal/risk"
	"github.com/opensource-trust/kestrel/internal/rules"
	"github.com/opensource-trust/kestrel/internal/serial"
)

// Handler holds dependencies for API handlers.
type Handler struct {
	repo       domain.Repository
	cache      domain.Cache
	bus        domain.EventBus
	engine     *rules.Engine
	scoring    domain.ScoringConfig
	catalogDir string
	version    string

	mu    sync.RWMutex
	index *catalog.Index
}

// NewHandler creates a new API handler.
func NewHandler(repo domain.Repository, cache domain.Cache, bus domain.EventBus, engine *rules.Engine, index *catalog.Index, scoring domain.ScoringConfig, catalogDir, version string) *Handler {
	if index == nil {
		index = catalog.NewIndex(nil)
	}
	return &Handler{
		repo:       repo,
		cache:      cache,
		bus:        bus,
		engine:     engine,
		scoring:    scoring,
		catalogDir: catalogDir,
		version:    version,
		index:      index,
	}
}

// Index returns the current image index.
func (h *Handler) Index() *catalog.Index {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.index
}

// SetIndex swaps the image index, e.g. after a catalog reload.
func (h *Handler) SetIndex(ix *catalog.Index) {
	h.mu.Lock()
	h.index = ix
	h.mu.Unlock()
}

// CheckRequest is the request body for POST /check. At least one of
// serial and imageBase64 is required. Threshold fields override the
// preset, which overrides the server defaults.
type CheckRequest struct {
	Serial        string   `json:"serial,omitempty"`
	ImageBase64   string   `json:"imageBase64,omitempty"`
	Preset        string   `json:"preset,omitempty"`
	DistThreshold *int     `json:"distThreshold,omitempty"`
	SimThreshold  *float64 `json:"simThreshold,omitempty"`
	ReviewGrace   *float64 `json:"reviewGrace,omitempty"`
	Allowlist     []string `json:"allowlist,omitempty"`
}

// CheckResponse is the response for POST /check.
type CheckResponse struct {
	domain.CheckResult

	Metadata struct {
		TraceID string `json:"traceId"`
		TotalMs int64  `json:"totalMs"`
		Version string `json:"version"`
	} `json:"metadata"`
}

// Check handles POST /check requests.
func (h *Handler) Check(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	traceID := GetTraceID(ctx)

	var req CheckRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	if req.Serial == "" && req.ImageBase64 == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "at least one of serial and imageBase64 is required",
		})
		return
	}

	scoring := h.effectiveScoring(&req)

	result := &domain.CheckResult{
		ID:        uuid.New().String(),
		TenantID:  tenantID,
		Timestamp: time.Now().UTC(),
	}

	// Serial validation plus optional allow-list membership.
	if req.Serial != "" {
		sc := serial.Validate(req.Serial)
		result.Serial = &sc

		if len(req.Allowlist) > 0 {
			listed := false
			for _, s := range req.Allowlist {
				if strings.ToUpper(strings.TrimSpace(s)) == sc.Normalized {
					listed = true
					break
				}
			}
			result.Allowlisted = &listed
		}
	}

	// Image match against the catalog index.
	if req.ImageBase64 != "" {
		img, err := decodeImage(req.ImageBase64)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": "imageBase64 is not a decodable image",
			})
			return
		}

		match, err := h.Index().Query(img)
		if err != nil {
			slog.Error("catalog query failed", "error", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{
				"error": "image hashing failed",
			})
			return
		}
		result.Image = &match

		verdict := fusion.ImageVerdict(match, fusion.Config{
			DistThreshold: scoring.DistThreshold,
			SimThreshold:  scoring.SimThreshold,
			ReviewGrace:   scoring.ReviewGrace,
		})
		result.ImageVerdict = &verdict
	}

	result.Combined = fusion.Fuse(result.Serial, result.Image)

	if h.repo != nil {
		if err := h.repo.SaveCheck(ctx, tenantID, result); err != nil {
			slog.Error("failed to save check", "id", result.ID, "error", err)
		}
	}

	h.publishCheckCompleted(ctx, tenantID, result)

	resp := CheckResponse{CheckResult: *result}
	resp.Metadata.TraceID = traceID
	resp.Metadata.TotalMs = time.Since(start).Milliseconds()
	resp.Metadata.Version = h.version

	writeJSON(w, http.StatusOK, resp)
}

// effectiveScoring resolves the scoring parameters for one request:
// server defaults, then preset, then explicit per-field overrides.
func (h *Handler) effectiveScoring(req *CheckRequest) domain.ScoringConfig {
	scoring := h.scoring
	if req.Preset != "" {
		scoring = domain.PresetScoring(req.Preset)
	}
	if req.DistThreshold != nil {
		scoring.DistThreshold = *req.DistThreshold
	}
	if req.SimThreshold != nil {
		scoring.SimThreshold = *req.SimThreshold
	}
	if req.ReviewGrace != nil {
		scoring.ReviewGrace = *req.ReviewGrace
	}
	return scoring
}

func (h *Handler) publishCheckCompleted(ctx context.Context, tenantID string, result *domain.CheckResult) {
	if h.bus == nil {
		return
	}
	event := map[string]any{
		"checkId":  result.ID,
		"tenantId": tenantID,
		"score":    result.Combined.Score,
		"label":    result.Combined.Label,
	}
	if result.Serial != nil {
		event["serial"] = result.Serial.Normalized
	}
	payload, _ := json.Marshal(event)
	if err := h.bus.Publish(ctx, tenantID, domain.TopicCheckCompleted, payload); err != nil {
		slog.Error("failed to publish check event", "id", result.ID, "error", err)
	}
}

// decodeImage decodes a base64 payload, with or without a data-URL
// prefix, into an image.
func decodeImage(encoded string) (image.Image, error) {
	if idx := strings.Index(encoded, ","); idx >= 0 && strings.HasPrefix(encoded, "data:") {
		encoded = encoded[idx+1:]
	}
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		raw, err = base64.RawStdEncoding.DecodeString(encoded)
		if err != nil {
			return nil, err
		}
	}
	img, _, err := image.Decode(bytes.NewReader(raw))
	return img, err
}

// GetCheck retrieves a stored check by ID.
func (h *Handler) GetCheck(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	checkID := chi.URLParam(r, "id")

	if checkID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "check id is required",
		})
		return
	}

	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}

	check, err := h.repo.GetCheck(ctx, tenantID, checkID)
	if err != nil {
		slog.Error("failed to get check", "id", checkID, "error", err)
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": "check not found",
		})
		return
	}

	writeJSON(w, http.StatusOK, check)
}

// BatchRecord is one invoice row of a POST /batches request. Numeric
// fields accept numbers, numeric strings, empty strings or null; a
// non-numeric value is treated as missing rather than rejected.
type BatchRecord struct {
	InvoiceID    string               `json:"invoiceId"`
	Date         string               `json:"date"`
	Supplier     string               `json:"supplier"`
	Item         string               `json:"item"`
	Quantity     domain.OptionalFloat `json:"quantity"`
	UnitPrice    domain.OptionalFloat `json:"unitPrice"`
	LeadTimeDays domain.OptionalFloat `json:"leadTimeDays"`
	Amount       domain.OptionalFloat `json:"amount"`
}

// BatchRequest is the request body for POST /batches.
type BatchRequest struct {
	Records        []BatchRecord `json:"records"`
	Contamination  *float64      `json:"contamination,omitempty"`
	Seed           *int64        `json:"seed,omitempty"`
	VelocityWindow int           `json:"velocityWindow,omitempty"`
}

// BatchResponse is the response for POST /batches.
type BatchResponse struct {
	Batch   domain.Batch               `json:"batch"`
	Records []domain.ScoredTransaction `json:"records"`
	Risk    []domain.SupplierRisk      `json:"risk"`
}

// ScoreBatch handles POST /batches requests.
func (h *Handler) ScoreBatch(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	var req BatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	if len(req.Records) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "records must not be empty",
		})
		return
	}

	contamination := h.scoring.Contamination
	if req.Contamination != nil {
		contamination = *req.Contamination
	}
	if contamination <= 0 || contamination >= 1 {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "contamination must be in (0,1)",
		})
		return
	}

	seed := h.scoring.Seed
	if req.Seed != nil {
		seed = *req.Seed
	}

	batch := make([]domain.Transaction, len(req.Records))
	for i, rec := range req.Records {
		batch[i] = domain.Transaction{
			InvoiceID:    rec.InvoiceID,
			Date:         rec.Date,
			Supplier:     rec.Supplier,
			Item:         rec.Item,
			Quantity:     rec.Quantity.Value,
			UnitPrice:    rec.UnitPrice.Value,
			LeadTimeDays: rec.LeadTimeDays.Value,
			Amount:       rec.Amount.Value,
		}
	}

	scored, _, err := anomaly.NewScorer(contamination, seed).FitAndScore(batch)
	if err != nil {
		slog.Error("batch scoring failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "batch scoring failed",
		})
		return
	}

	h.attachRuleFlags(ctx, tenantID, scored, req.VelocityWindow)

	anomalies := 0
	for i := range scored {
		if scored[i].IsAnomaly {
			anomalies++
		}
	}

	summary := &domain.Batch{
		ID:            uuid.New().String(),
		TenantID:      tenantID,
		Records:       len(scored),
		Anomalies:     anomalies,
		Contamination: contamination,
		Seed:          seed,
		CreatedAt:     time.Now().UTC(),
	}

	if h.repo != nil {
		if err := h.repo.SaveBatch(ctx, tenantID, summary, scored); err != nil {
			slog.Error("failed to save batch", "id", summary.ID, "error", err)
		}
	}

	h.publishBatchScored(ctx, tenantID, summary)

	writeJSON(w, http.StatusOK, BatchResponse{
		Batch:   *summary,
		Records: scored,
		Risk:    risk.Aggregate(scored),
	})
}

// attachRuleFlags evaluates the loaded CEL rules against every scored
// record and attaches the flagged outcomes. Rule failures never fail
// the batch; flags are advisory.
func (h *Handler) attachRuleFlags(ctx context.Context, tenantID string, scored []domain.ScoredTransaction, velocityWindow int) {
	if h.engine == nil || h.engine.RulesCount() == 0 {
		return
	}
	if velocityWindow <= 0 {
		velocityWindow = 3600
	}

	for i := range scored {
		input := rules.InputFromTransaction(tenantID, &scored[i].Transaction, velocityWindow)
		results, err := h.engine.EvaluateAll(ctx, input)
		if err != nil {
			slog.Error("rule evaluation failed", "invoice_id", scored[i].InvoiceID, "error", err)
			continue
		}
		for _, rr := range results {
			if rr.SubRuleRef == domain.RuleOutcomeFlag {
				scored[i].RuleFlags = append(scored[i].RuleFlags, rr)
			}
		}
	}
}

func (h *Handler) publishBatchScored(ctx context.Context, tenantID string, summary *domain.Batch) {
	if h.bus == nil {
		return
	}
	payload, _ := json.Marshal(map[string]any{
		"batchId":   summary.ID,
		"tenantId":  tenantID,
		"records":   summary.Records,
		"anomalies": summary.Anomalies,
	})
	if err := h.bus.Publish(ctx, tenantID, domain.TopicBatchScored, payload); err != nil {
		slog.Error("failed to publish batch event", "id", summary.ID, "error", err)
	}
}

// GetBatch retrieves a stored batch summary plus its scored records.
func (h *Handler) GetBatch(w http.ResponseWriter, r *http.Request) {
	summary, records, ok := h.loadBatch(w, r)
	if !ok {
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"batch":   summary,
		"records": records,
	})
}

// GetBatchRisk returns the supplier risk table for a stored batch.
func (h *Handler) GetBatchRisk(w http.ResponseWriter, r *http.Request) {
	summary, records, ok := h.loadBatch(w, r)
	if !ok {
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"batchId": summary.ID,
		"risk":    risk.Aggregate(records),
	})
}

func (h *Handler) loadBatch(w http.ResponseWriter, r *http.Request) (*domain.Batch, []domain.ScoredTransaction, bool) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	batchID := chi.URLParam(r, "id")

	if batchID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "batch id is required",
		})
		return nil, nil, false
	}

	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return nil, nil, false
	}

	summary, records, err := h.repo.GetBatch(ctx, tenantID, batchID)
	if err != nil {
		slog.Error("failed to get batch", "id", batchID, "error", err)
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": "batch not found",
		})
		return nil, nil, false
	}
	return summary, records, true
}

// ListProducts returns the tenant's product catalog, optionally filtered
// by the q query parameter (case-insensitive substring over brand, name,
// model and SKU).
func (h *Handler) ListProducts(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}

	products, err := h.repo.ListProducts(ctx, tenantID, r.URL.Query().Get("q"))
	if err != nil {
		slog.Error("failed to list products", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to list products",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"products": products,
		"count":    len(products),
	})
}

// CreateProduct adds a product to the tenant's catalog.
func (h *Handler) CreateProduct(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	var product domain.Product
	if err := json.NewDecoder(r.Body).Decode(&product); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	if product.ID == "" || product.Brand == "" || product.Name == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "id, brand, and name are required",
		})
		return
	}

	product.TenantID = tenantID

	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}

	if err := h.repo.SaveProduct(ctx, tenantID, &product); err != nil {
		slog.Error("failed to save product", "id", product.ID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to save product",
		})
		return
	}

	slog.Info("product created", "id", product.ID, "brand", product.Brand)
	writeJSON(w, http.StatusCreated, product)
}

// GetProduct retrieves a product by ID.
func (h *Handler) GetProduct(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	productID := chi.URLParam(r, "id")

	if productID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "product id is required",
		})
		return
	}

	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}

	product, err := h.repo.GetProduct(ctx, tenantID, productID)
	if err != nil {
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": "product not found",
		})
		return
	}

	writeJSON(w, http.StatusOK, product)
}

// UpdateProduct replaces a product record.
func (h *Handler) UpdateProduct(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	productID := chi.URLParam(r, "id")

	var product domain.Product
	if err := json.NewDecoder(r.Body).Decode(&product); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	product.ID = productID
	product.TenantID = tenantID

	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}

	if err := h.repo.SaveProduct(ctx, tenantID, &product); err != nil {
		slog.Error("failed to update product", "id", productID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to update product",
		})
		return
	}

	writeJSON(w, http.StatusOK, product)
}

// DeleteProduct removes a product from the catalog.
func (h *Handler) DeleteProduct(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	productID := chi.URLParam(r, "id")

	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}

	if err := h.repo.DeleteProduct(ctx, tenantID, productID); err != nil {
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": "product not found",
		})
		return
	}

	slog.Info("product deleted", "id", productID)
	writeJSON(w, http.StatusOK, map[string]string{
		"message": "product deleted",
	})
}

// ListRules returns all loaded rules from the engine.
// Rules are loaded from the database at startup and can be reloaded via POST /rules/reload.
func (h *Handler) ListRules(w http.ResponseWriter, r *http.Request) {
	if h.engine == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "rule engine not available",
		})
		return
	}

	loadedRules := h.engine.GetLoadedRules()

	writeJSON(w, http.StatusOK, map[string]any{
		"rules":  loadedRules,
		"count":  len(loadedRules),
		"source": "database",
	})
}

// CreateRuleRequest is the request body for creating a rule.
type CreateRuleRequest struct {
	ID          string            `json:"id"`
	Name        string            `json:"name"`
	Description string            `json:"description,omitempty"`
	Expression  string            `json:"expression"`
	Bands       []domain.RuleBand `json:"bands"`
	Weight      float64           `json:"weight"`
	Enabled     bool              `json:"enabled"`
}

// GlobalTenantID is used for rules that apply to all tenants.
const GlobalTenantID = "*"

// CreateRule creates a new rule and saves it to the database.
// Rules are saved globally (tenant_id = "*") so they apply to all tenants.
// After saving, call POST /rules/reload to hot-reload into the engine.
func (h *Handler) CreateRule(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req CreateRuleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	if req.ID == "" || req.Name == "" || req.Expression == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "id, name, and expression are required",
		})
		return
	}

	ruleConfig := &domain.RuleConfig{
		ID:          req.ID,
		TenantID:    GlobalTenantID,
		Name:        req.Name,
		Description: req.Description,
		Version:     "1.0.0",
		Expression:  req.Expression,
		Bands:       req.Bands,
		Weight:      req.Weight,
		Enabled:     req.Enabled,
	}

	// Validate CEL expression by attempting to load
	if err := h.engine.LoadRule(ruleConfig); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid CEL expression: " + err.Error(),
		})
		return
	}

	if h.repo != nil {
		if err := h.repo.SaveRuleConfig(ctx, GlobalTenantID, ruleConfig); err != nil {
			slog.Error("failed to save rule config", "id", ruleConfig.ID, "error", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{
				"error": "failed to save rule",
			})
			return
		}
	}

	slog.Info("rule created", "id", ruleConfig.ID, "name", ruleConfig.Name)
	writeJSON(w, http.StatusCreated, map[string]any{
		"rule":    ruleConfig,
		"message": "Rule created. Call POST /rules/reload to apply changes.",
	})
}

// ReloadRules reloads all rules from the database into the engine.
// This enables hot-reloading without server restart.
func (h *Handler) ReloadRules(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}

	dbRules, err := h.repo.ListRuleConfigs(ctx, GlobalTenantID)
	if err != nil {
		slog.Error("failed to list rules from database", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to load rules from database",
		})
		return
	}

	if err := h.engine.ReloadRules(dbRules); err != nil {
		slog.Error("failed to reload rules into engine", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to reload rules: " + err.Error(),
		})
		return
	}

	slog.Info("rules reloaded from database", "count", len(dbRules))
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "rules reloaded successfully",
		"count":   len(dbRules),
	})
}

// ReloadCatalog rebuilds the image index from the catalog directory and
// refreshes the cached index for this tenant.
func (h *Handler) ReloadCatalog(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	ix, err := catalog.Build(ctx, h.catalogDir, 0)
	if err != nil {
		slog.Error("catalog rebuild failed", "dir", h.catalogDir, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "catalog rebuild failed",
		})
		return
	}

	h.SetIndex(ix)

	if h.cache != nil {
		if err := h.cache.SetCatalogIndex(ctx, tenantID, ix.Entries(), 0); err != nil {
			slog.Error("failed to cache catalog index", "error", err)
		}
	}

	slog.Info("catalog reloaded", "dir", h.catalogDir, "entries", ix.Len())
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "catalog reloaded",
		"entries": ix.Len(),
	})
}

// ListAudit returns the most recent audit trail entries for the tenant.
// The limit query parameter caps the result; the repository applies a
// default when it is absent.
func (h *Handler) ListAudit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": "limit must be a non-negative integer",
			})
			return
		}
		limit = n
	}

	events, err := h.repo.ListAuditEvents(ctx, tenantID, limit)
	if err != nil {
		slog.Error("failed to list audit events", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to list audit events",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"events": events,
		"count":  len(events),
	})
}

// Health returns server health status.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status := "healthy"

	if h.repo != nil {
		if err := h.repo.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	if h.cache != nil {
		if err := h.cache.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":  status,
		"version": h.version,
	})
}

// Ready returns whether the server is ready to accept traffic.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"ready": "true",
	})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
