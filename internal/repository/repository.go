// Package repository provides data persistence implementations.
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/opensource-trust/kestrel/internal/domain"
)

var (
	ErrNotFound     = errors.New("record not found")
	ErrInvalidInput = errors.New("invalid input")
)

// SQLRepository implements domain.Repository using database/sql.
// Works with both SQLite and PostgreSQL drivers.
type SQLRepository struct {
	db     *sql.DB
	driver string
}

// New creates a new repository based on configuration.
func New(cfg domain.RepositoryConfig) (domain.Repository, error) {
	var db *sql.DB
	var err error

	switch cfg.Driver {
	case "sqlite":
		db, err = openSQLite(cfg)
	case "postgres":
		db, err = openPostgres(cfg)
	default:
		return nil, fmt.Errorf("unsupported driver: %s", cfg.Driver)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	repo := &SQLRepository{
		db:     db,
		driver: cfg.Driver,
	}

	// Run migrations
	if err := repo.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return repo, nil
}

func (r *SQLRepository) migrate() error {
	for _, schema := range AllSchemas() {
		if _, err := r.db.Exec(schema); err != nil {
			return err
		}
	}
	return nil
}

// SaveProduct upserts a catalog product with tenant isolation.
func (r *SQLRepository) SaveProduct(ctx context.Context, tenantID string, p *domain.Product) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}
	if p.ID == "" {
		return fmt.Errorf("%w: product ID is required", ErrInvalidInput)
	}

	now := time.Now().UTC()
	created := p.CreatedAt
	if created.IsZero() {
		created = now
	}

	query := `
		INSERT INTO products (
			id, tenant_id, brand, name, model, category, sku, gtin,
			msrp, serial_prefix, image, notes, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id, tenant_id) DO UPDATE SET
			brand = excluded.brand,
			name = excluded.name,
			model = excluded.model,
			category = excluded.category,
			sku = excluded.sku,
			gtin = excluded.gtin,
			msrp = excluded.msrp,
			serial_prefix = excluded.serial_prefix,
			image = excluded.image,
			notes = excluded.notes,
			updated_at = excluded.updated_at
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		p.ID, tenantID, p.Brand, p.Name, p.Model, p.Category, p.SKU, p.GTIN,
		p.MSRP, p.SerialPrefix, p.Image, p.Notes, created, now,
	)
	return err
}

// GetProduct retrieves a product by ID with tenant isolation.
func (r *SQLRepository) GetProduct(ctx context.Context, tenantID string, productID string) (*domain.Product, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, tenant_id, brand, name, model, category, sku, gtin,
			   msrp, serial_prefix, image, notes, created_at, updated_at
		FROM products
		WHERE tenant_id = ? AND id = ?
	`

	var p domain.Product
	err := r.db.QueryRowContext(ctx, r.rebind(query), tenantID, productID).Scan(
		&p.ID, &p.TenantID, &p.Brand, &p.Name, &p.Model, &p.Category, &p.SKU, &p.GTIN,
		&p.MSRP, &p.SerialPrefix, &p.Image, &p.Notes, &p.CreatedAt, &p.UpdatedAt,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	return &p, nil
}

// ListProducts retrieves products for a tenant, optionally filtered by a
// case-insensitive substring match over brand, name, model and SKU.
func (r *SQLRepository) ListProducts(ctx context.Context, tenantID string, search string) ([]*domain.Product, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, tenant_id, brand, name, model, category, sku, gtin,
			   msrp, serial_prefix, image, notes, created_at, updated_at
		FROM products
		WHERE tenant_id = ?
	`
	args := []any{tenantID}

	if search != "" {
		query += ` AND (LOWER(brand) LIKE ? OR LOWER(name) LIKE ? OR LOWER(model) LIKE ? OR LOWER(sku) LIKE ?)`
		pattern := "%" + strings.ToLower(search) + "%"
		args = append(args, pattern, pattern, pattern, pattern)
	}

	query += ` ORDER BY brand, name`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var products []*domain.Product
	for rows.Next() {
		var p domain.Product
		if err := rows.Scan(
			&p.ID, &p.TenantID, &p.Brand, &p.Name, &p.Model, &p.Category, &p.SKU, &p.GTIN,
			&p.MSRP, &p.SerialPrefix, &p.Image, &p.Notes, &p.CreatedAt, &p.UpdatedAt,
		); err != nil {
			return nil, err
		}
		products = append(products, &p)
	}

	return products, rows.Err()
}

// DeleteProduct removes a product with tenant isolation.
func (r *SQLRepository) DeleteProduct(ctx context.Context, tenantID string, productID string) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `DELETE FROM products WHERE tenant_id = ? AND id = ?`

	result, err := r.db.ExecContext(ctx, r.rebind(query), tenantID, productID)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrNotFound
	}

	return nil
}

// SaveCheck stores a product check result with tenant isolation.
func (r *SQLRepository) SaveCheck(ctx context.Context, tenantID string, check *domain.CheckResult) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	serialJSON := marshalOrNull(check.Serial)
	imageJSON := marshalOrNull(check.Image)
	verdictJSON := marshalOrNull(check.ImageVerdict)

	var allowlisted any
	if check.Allowlisted != nil {
		if *check.Allowlisted {
			allowlisted = 1
		} else {
			allowlisted = 0
		}
	}

	query := `
		INSERT INTO checks (
			id, tenant_id, serial_check, image_match, image_verdict,
			combined_score, combined_label, allowlisted, timestamp
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		check.ID, tenantID, serialJSON, imageJSON, verdictJSON,
		check.Combined.Score, check.Combined.Label, allowlisted, check.Timestamp,
	)
	return err
}

// GetCheck retrieves a check result by ID with tenant isolation.
func (r *SQLRepository) GetCheck(ctx context.Context, tenantID string, checkID string) (*domain.CheckResult, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, tenant_id, serial_check, image_match, image_verdict,
			   combined_score, combined_label, allowlisted, timestamp
		FROM checks
		WHERE tenant_id = ? AND id = ?
	`

	var check domain.CheckResult
	var serialJSON, imageJSON, verdictJSON sql.NullString
	var allowlisted sql.NullInt64

	err := r.db.QueryRowContext(ctx, r.rebind(query), tenantID, checkID).Scan(
		&check.ID, &check.TenantID, &serialJSON, &imageJSON, &verdictJSON,
		&check.Combined.Score, &check.Combined.Label, &allowlisted, &check.Timestamp,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	if serialJSON.Valid && serialJSON.String != "" {
		check.Serial = &domain.SerialCheck{}
		json.Unmarshal([]byte(serialJSON.String), check.Serial)
	}
	if imageJSON.Valid && imageJSON.String != "" {
		check.Image = &domain.ImageMatch{}
		json.Unmarshal([]byte(imageJSON.String), check.Image)
	}
	if verdictJSON.Valid && verdictJSON.String != "" {
		check.ImageVerdict = &domain.ImageVerdict{}
		json.Unmarshal([]byte(verdictJSON.String), check.ImageVerdict)
	}
	if allowlisted.Valid {
		v := allowlisted.Int64 == 1
		check.Allowlisted = &v
	}

	return &check, nil
}

// SaveBatch stores a batch summary plus its scored rows atomically.
func (r *SQLRepository) SaveBatch(ctx context.Context, tenantID string, batch *domain.Batch, scored []domain.ScoredTransaction) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	batchQuery := `
		INSERT INTO batches (id, tenant_id, records, anomalies, contamination, seed, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	if _, err := tx.ExecContext(ctx, r.rebind(batchQuery),
		batch.ID, tenantID, batch.Records, batch.Anomalies,
		batch.Contamination, batch.Seed, batch.CreatedAt,
	); err != nil {
		return err
	}

	rowQuery := `
		INSERT INTO transactions (
			batch_id, tenant_id, seq, invoice_id, invoice_date, supplier, item,
			quantity, unit_price, lead_time_days, amount,
			anomaly_score, is_anomaly, reason, rule_flags, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	stmt, err := tx.PrepareContext(ctx, r.rebind(rowQuery))
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i, row := range scored {
		isAnomaly := 0
		if row.IsAnomaly {
			isAnomaly = 1
		}

		flags := ""
		if len(row.RuleFlags) > 0 {
			b, _ := json.Marshal(row.RuleFlags)
			flags = string(b)
		}

		if _, err := stmt.ExecContext(ctx,
			batch.ID, tenantID, i, row.InvoiceID, row.Date, row.Supplier, row.Item,
			nullFloat(row.Quantity), nullFloat(row.UnitPrice),
			nullFloat(row.LeadTimeDays), nullFloat(row.Amount),
			row.AnomalyScore, isAnomaly, row.Reason, flags, batch.CreatedAt,
		); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// GetBatch retrieves a batch summary and its scored rows in original order.
func (r *SQLRepository) GetBatch(ctx context.Context, tenantID string, batchID string) (*domain.Batch, []domain.ScoredTransaction, error) {
	if tenantID == "" {
		return nil, nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	batchQuery := `
		SELECT id, tenant_id, records, anomalies, contamination, seed, created_at
		FROM batches
		WHERE tenant_id = ? AND id = ?
	`

	var batch domain.Batch
	err := r.db.QueryRowContext(ctx, r.rebind(batchQuery), tenantID, batchID).Scan(
		&batch.ID, &batch.TenantID, &batch.Records, &batch.Anomalies,
		&batch.Contamination, &batch.Seed, &batch.CreatedAt,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil, ErrNotFound
	}
	if err != nil {
		return nil, nil, err
	}

	rowQuery := `
		SELECT invoice_id, invoice_date, supplier, item,
			   quantity, unit_price, lead_time_days, amount,
			   anomaly_score, is_anomaly, reason, rule_flags
		FROM transactions
		WHERE tenant_id = ? AND batch_id = ?
		ORDER BY seq
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(rowQuery), tenantID, batchID)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	scored, err := scanScoredRows(rows)
	if err != nil {
		return nil, nil, err
	}

	return &batch, scored, nil
}

// GetTransactionsBySupplier retrieves scored rows for a supplier across
// batches, with tenant isolation. Used for velocity counts.
func (r *SQLRepository) GetTransactionsBySupplier(ctx context.Context, tenantID string, supplier string, since time.Time) ([]domain.ScoredTransaction, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT invoice_id, invoice_date, supplier, item,
			   quantity, unit_price, lead_time_days, amount,
			   anomaly_score, is_anomaly, reason, rule_flags
		FROM transactions
		WHERE tenant_id = ?
		  AND supplier = ?
		  AND created_at >= ?
		ORDER BY created_at DESC
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), tenantID, supplier, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanScoredRows(rows)
}

func scanScoredRows(rows *sql.Rows) ([]domain.ScoredTransaction, error) {
	var scored []domain.ScoredTransaction
	for rows.Next() {
		var row domain.ScoredTransaction
		var date, item, reason, flags sql.NullString
		var quantity, unitPrice, leadTime, amount sql.NullFloat64
		var isAnomaly int

		if err := rows.Scan(
			&row.InvoiceID, &date, &row.Supplier, &item,
			&quantity, &unitPrice, &leadTime, &amount,
			&row.AnomalyScore, &isAnomaly, &reason, &flags,
		); err != nil {
			return nil, err
		}

		row.Date = date.String
		row.Item = item.String
		row.Quantity = floatPtr(quantity)
		row.UnitPrice = floatPtr(unitPrice)
		row.LeadTimeDays = floatPtr(leadTime)
		row.Amount = floatPtr(amount)
		row.IsAnomaly = isAnomaly == 1
		row.Reason = reason.String
		if flags.Valid && flags.String != "" {
			json.Unmarshal([]byte(flags.String), &row.RuleFlags)
		}

		scored = append(scored, row)
	}

	return scored, rows.Err()
}

// SaveRuleConfig stores a rule configuration with tenant isolation.
func (r *SQLRepository) SaveRuleConfig(ctx context.Context, tenantID string, rule *domain.RuleConfig) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	bands, _ := json.Marshal(rule.Bands)

	enabled := 0
	if rule.Enabled {
		enabled = 1
	}

	now := time.Now().UTC()

	query := `
		INSERT INTO rule_configs (
			id, tenant_id, name, description, version, expression, bands, weight, enabled, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id, tenant_id, version) DO UPDATE SET
			name = excluded.name,
			description = excluded.description,
			expression = excluded.expression,
			bands = excluded.bands,
			weight = excluded.weight,
			enabled = excluded.enabled,
			updated_at = excluded.updated_at
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		rule.ID, tenantID, rule.Name, rule.Description,
		rule.Version, rule.Expression, string(bands), rule.Weight, enabled,
		now, now,
	)
	return err
}

// ListRuleConfigs retrieves all active rule configurations for a tenant.
func (r *SQLRepository) ListRuleConfigs(ctx context.Context, tenantID string) ([]*domain.RuleConfig, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, tenant_id, name, description, version, expression, bands, weight, enabled
		FROM rule_configs
		WHERE tenant_id = ? AND enabled = 1
		ORDER BY name
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var configs []*domain.RuleConfig
	for rows.Next() {
		var cfg domain.RuleConfig
		var bands string
		var enabled int

		if err := rows.Scan(
			&cfg.ID, &cfg.TenantID, &cfg.Name, &cfg.Description,
			&cfg.Version, &cfg.Expression, &bands, &cfg.Weight, &enabled,
		); err != nil {
			return nil, err
		}

		cfg.Enabled = enabled == 1
		json.Unmarshal([]byte(bands), &cfg.Bands)
		configs = append(configs, &cfg)
	}

	return configs, rows.Err()
}

// SaveAuditEvent appends an event to the audit trail.
func (r *SQLRepository) SaveAuditEvent(ctx context.Context, tenantID string, event *domain.AuditEvent) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		INSERT INTO audit_events (id, tenant_id, event, details, timestamp)
		VALUES (?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		event.ID, tenantID, event.Event, event.Details, event.Timestamp,
	)
	return err
}

// ListAuditEvents retrieves the most recent audit events for a tenant.
func (r *SQLRepository) ListAuditEvents(ctx context.Context, tenantID string, limit int) ([]*domain.AuditEvent, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}
	if limit <= 0 {
		limit = 100
	}

	query := `
		SELECT id, tenant_id, event, details, timestamp
		FROM audit_events
		WHERE tenant_id = ?
		ORDER BY timestamp DESC
		LIMIT ?
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), tenantID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []*domain.AuditEvent
	for rows.Next() {
		var e domain.AuditEvent
		var details sql.NullString

		if err := rows.Scan(&e.ID, &e.TenantID, &e.Event, &details, &e.Timestamp); err != nil {
			return nil, err
		}

		e.Details = details.String
		events = append(events, &e)
	}

	return events, rows.Err()
}

// Ping checks database connectivity.
func (r *SQLRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close closes the database connection.
func (r *SQLRepository) Close() error {
	return r.db.Close()
}

// rebind converts ? placeholders to $1, $2, etc. for PostgreSQL.
func (r *SQLRepository) rebind(query string) string {
	if r.driver != "postgres" {
		return query
	}

	// Convert ? to $1, $2, etc.
	var result []byte
	n := 1
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			result = append(result, '$')
			result = append(result, fmt.Sprintf("%d", n)...)
			n++
		} else {
			result = append(result, query[i])
		}
	}
	return string(result)
}

func marshalOrNull(v any) any {
	if v == nil {
		return nil
	}
	switch t := v.(type) {
	case *domain.SerialCheck:
		if t == nil {
			return nil
		}
	case *domain.ImageMatch:
		if t == nil {
			return nil
		}
	case *domain.ImageVerdict:
		if t == nil {
			return nil
		}
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return string(b)
}

func nullFloat(p *float64) any {
	if p == nil {
		return nil
	}
	return *p
}

func floatPtr(n sql.NullFloat64) *float64 {
	if !n.Valid {
		return nil
	}
	v := n.Float64
	return &v
}
