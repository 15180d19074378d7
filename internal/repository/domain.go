package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jonesrussell/backlink-checker/internal/domain"
	"github.com/jonesrussell/backlink-checker/internal/logger"
	"github.com/lib/pq"
)

type DomainRepository struct {
	db     *sql.DB
	logger logger.Logger
}

func NewDomainRepository(db *sql.DB, log logger.Logger) *DomainRepository {
	return &DomainRepository{db: db, logger: log}
}

// EnsureDomains inserts the roots that are not yet known and returns how
// many were created. Existing rows are left untouched.
func (r *DomainRepository) EnsureDomains(ctx context.Context, roots []string) (int, error) {
	if len(roots) == 0 {
		return 0, nil
	}

	query := `
		INSERT INTO domains (root_domain, created_at, updated_at)
		SELECT root, $2, $2 FROM unnest($1::text[]) AS root
		ON CONFLICT (root_domain) DO NOTHING
	`

	result, err := r.db.ExecContext(ctx, query, pq.Array(roots), time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("ensure domains: %w", err)
	}
	created, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("get rows affected: %w", err)
	}
	return int(created), nil
}

// GetByRoot returns the domain with its derived offer count.
func (r *DomainRepository) GetByRoot(ctx context.Context, root string) (*domain.Domain, error) {
	query := `
		SELECT d.id, d.root_domain, d.created_at, d.updated_at, COUNT(o.id)
		FROM domains d
		LEFT JOIN offers o ON o.domain_id = d.id
		WHERE d.root_domain = $1
		GROUP BY d.id
	`

	var d domain.Domain
	err := r.db.QueryRowContext(ctx, query, root).Scan(
		&d.ID, &d.RootDomain, &d.CreatedAt, &d.UpdatedAt, &d.OfferCount,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("domain %q: %w", root, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get domain: %w", err)
	}
	return &d, nil
}
