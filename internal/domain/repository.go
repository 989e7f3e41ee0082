// Package domain defines the core interfaces and types for Kestrel.
package domain

import (
	"context"
	"time"
)

// Repository defines the interface for data persistence.
// All methods require tenantID for strict multi-tenancy isolation.
type Repository interface {
	// Product catalog operations
	SaveProduct(ctx context.Context, tenantID string, p *Product) error
	GetProduct(ctx context.Context, tenantID string, productID string) (*Product, error)
	ListProducts(ctx context.Context, tenantID string, query string) ([]*Product, error)
	DeleteProduct(ctx context.Context, tenantID string, productID string) error

	// Product check results
	SaveCheck(ctx context.Context, tenantID string, check *CheckResult) error
	GetCheck(ctx context.Context, tenantID string, checkID string) (*CheckResult, error)

	// Scored invoice batches
	SaveBatch(ctx context.Context, tenantID string, batch *Batch, scored []ScoredTransaction) error
	GetBatch(ctx context.Context, tenantID string, batchID string) (*Batch, []ScoredTransaction, error)

	// GetTransactionsBySupplier returns scored rows for one supplier since
	// a point in time, across batches. Used for velocity counts.
	GetTransactionsBySupplier(ctx context.Context, tenantID string, supplier string, since time.Time) ([]ScoredTransaction, error)

	// Rule configuration operations
	SaveRuleConfig(ctx context.Context, tenantID string, rule *RuleConfig) error
	ListRuleConfigs(ctx context.Context, tenantID string) ([]*RuleConfig, error)

	// Audit trail
	SaveAuditEvent(ctx context.Context, tenantID string, event *AuditEvent) error
	ListAuditEvents(ctx context.Context, tenantID string, limit int) ([]*AuditEvent, error)

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// RepositoryConfig holds configuration for repository initialization.
type RepositoryConfig struct {
	// Driver is the database driver: "sqlite" or "postgres"
	Driver string

	// SQLite specific
	SQLitePath string

	// PostgreSQL specific
	PostgresHost     string
	PostgresPort     int
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string

	// Connection pool settings
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}
