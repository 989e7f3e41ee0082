// Package velocity provides supplier submission velocity calculation.
package velocity

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/opensource-trust/kestrel/internal/domain"
)

// Service calculates how many records a supplier has submitted recently.
type Service struct {
	repo  domain.Repository
	cache domain.Cache
	db    *sql.DB // Direct DB access for custom queries
}

// NewService creates a new velocity service.
func NewService(repo domain.Repository, cache domain.Cache) *Service {
	return &Service{
		repo:  repo,
		cache: cache,
	}
}

// GetRecordCount returns the number of batch records seen for a supplier
// within a time window. This is the VelocityGetter signature expected by
// the rule engine.
func (s *Service) GetRecordCount(ctx context.Context, tenantID, supplier string, windowSecs int) (int64, error) {
	if tenantID == "" || supplier == "" {
		return 0, fmt.Errorf("tenantID and supplier are required")
	}

	since := time.Now().Add(-time.Duration(windowSecs) * time.Second)

	if s.db != nil {
		return s.countFromDB(ctx, tenantID, supplier, since)
	}

	if s.repo != nil {
		return s.countFromRepo(ctx, tenantID, supplier, since)
	}

	return 0, fmt.Errorf("no data source available")
}

// countFromDB queries the database directly for the record count.
func (s *Service) countFromDB(ctx context.Context, tenantID, supplier string, since time.Time) (int64, error) {
	query := `
		SELECT COUNT(*) FROM transactions
		WHERE tenant_id = ?
		AND supplier = ?
		AND created_at >= ?
	`

	var count int64
	err := s.db.QueryRowContext(ctx, query, tenantID, supplier, since).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count records: %w", err)
	}

	return count, nil
}

// countFromRepo uses the repository to fetch the supplier's records and count them.
func (s *Service) countFromRepo(ctx context.Context, tenantID, supplier string, since time.Time) (int64, error) {
	txs, err := s.repo.GetTransactionsBySupplier(ctx, tenantID, supplier, since)
	if err != nil {
		return 0, fmt.Errorf("failed to get records: %w", err)
	}
	return int64(len(txs)), nil
}

// GetVelocityGetter returns a VelocityGetter function for the rule engine.
func (s *Service) GetVelocityGetter() func(ctx context.Context, tenantID, supplier string, windowSecs int) (int64, error) {
	return s.GetRecordCount
}
