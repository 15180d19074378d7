package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jonesrussell/backlink-checker/internal/domain"
	"github.com/jonesrussell/backlink-checker/internal/logger"
)

const (
	marketplaceColumns = "id, name, slug, region, notes, created_at, updated_at"

	defaultListLimit = 50
	maxListLimit     = 500

	marketplacesSlugKey = "marketplaces_slug_key"
	marketplacesNameKey = "marketplaces_name_key"
)

type MarketplaceRepository struct {
	db     *sql.DB
	logger logger.Logger
}

func NewMarketplaceRepository(db *sql.DB, log logger.Logger) *MarketplaceRepository {
	return &MarketplaceRepository{db: db, logger: log}
}

// ListFilter pages and filters marketplace listings.
type ListFilter struct {
	Limit     int
	Offset    int
	SortBy    string
	SortOrder string
	Search    string
}

func (r *MarketplaceRepository) Create(ctx context.Context, m *domain.Marketplace) error {
	now := time.Now().UTC()
	query := `
		INSERT INTO marketplaces (name, slug, region, notes, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $5)
		RETURNING id, created_at, updated_at
	`

	err := r.db.QueryRowContext(ctx, query,
		m.Name, m.Slug, nullString(m.Region), nullString(m.Notes), now,
	).Scan(&m.ID, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		return mapMarketplaceWriteErr(err)
	}
	return nil
}

func (r *MarketplaceRepository) GetByID(ctx context.Context, id int64) (*domain.Marketplace, error) {
	query := `SELECT ` + marketplaceColumns + ` FROM marketplaces WHERE id = $1`
	m, err := scanMarketplace(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, fmt.Errorf("get marketplace %d: %w", id, err)
	}
	return m, nil
}

func (r *MarketplaceRepository) GetBySlug(ctx context.Context, slug string) (*domain.Marketplace, error) {
	query := `SELECT ` + marketplaceColumns + ` FROM marketplaces WHERE slug = $1`
	m, err := scanMarketplace(r.db.QueryRowContext(ctx, query, slug))
	if err != nil {
		return nil, fmt.Errorf("get marketplace %q: %w", slug, err)
	}
	return m, nil
}

// GetOrCreate returns the marketplace keyed by slug, creating it on first
// sight. An existing row adopts the given name, and the region when one is
// given. The bool reports whether the row was created.
func (r *MarketplaceRepository) GetOrCreate(
	ctx context.Context, name, slug string, region *string,
) (*domain.Marketplace, bool, error) {
	now := time.Now().UTC()
	query := `
		INSERT INTO marketplaces (name, slug, region, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $4)
		ON CONFLICT (slug) DO UPDATE SET
			name = EXCLUDED.name,
			region = COALESCE(EXCLUDED.region, marketplaces.region),
			updated_at = CASE
				WHEN marketplaces.name IS DISTINCT FROM EXCLUDED.name
				  OR (EXCLUDED.region IS NOT NULL AND marketplaces.region IS DISTINCT FROM EXCLUDED.region)
				THEN EXCLUDED.updated_at
				ELSE marketplaces.updated_at
			END
		RETURNING ` + marketplaceColumns + `, (xmax = 0) AS is_insert
	`

	var (
		m                  domain.Marketplace
		regionCol, noteCol sql.NullString
		isInsert           bool
	)
	err := r.db.QueryRowContext(ctx, query, name, slug, nullString(region), now).Scan(
		&m.ID, &m.Name, &m.Slug, &regionCol, &noteCol, &m.CreatedAt, &m.UpdatedAt, &isInsert,
	)
	if err != nil {
		return nil, false, mapMarketplaceWriteErr(err)
	}
	m.Region = stringPtr(regionCol)
	m.Notes = stringPtr(noteCol)

	if isInsert {
		r.logger.Info("Marketplace created",
			logger.Int64("marketplace_id", m.ID),
			logger.String("slug", m.Slug),
		)
	}
	return &m, isInsert, nil
}

func (r *MarketplaceRepository) Count(ctx context.Context, filter ListFilter) (int, error) {
	where, args := buildListWhere(filter)
	// #nosec G202 -- where clause is built from fixed fragments with bind parameters
	query := `SELECT COUNT(*) FROM marketplaces` + where

	var count int
	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("count marketplaces: %w", err)
	}
	return count, nil
}

func (r *MarketplaceRepository) List(ctx context.Context, filter ListFilter) ([]domain.Marketplace, error) {
	where, args := buildListWhere(filter)
	limit := filter.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	limit = min(limit, maxListLimit)
	offset := max(filter.Offset, 0)

	args = append(args, limit, offset)
	// #nosec G202 -- where and order clauses come from whitelisted fragments
	query := `SELECT ` + marketplaceColumns + ` FROM marketplaces` + where +
		buildListOrder(filter) +
		fmt.Sprintf(" LIMIT $%d OFFSET $%d", len(args)-1, len(args))

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list marketplaces: %w", err)
	}
	defer rows.Close()

	marketplaces := make([]domain.Marketplace, 0)
	for rows.Next() {
		m, scanErr := scanMarketplace(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("scan marketplace: %w", scanErr)
		}
		marketplaces = append(marketplaces, *m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate marketplaces: %w", err)
	}
	return marketplaces, nil
}

func (r *MarketplaceRepository) Update(ctx context.Context, m *domain.Marketplace) error {
	query := `
		UPDATE marketplaces
		SET name = $2, slug = $3, region = $4, notes = $5, updated_at = $6
		WHERE id = $1
		RETURNING created_at, updated_at
	`

	err := r.db.QueryRowContext(ctx, query,
		m.ID, m.Name, m.Slug, nullString(m.Region), nullString(m.Notes), time.Now().UTC(),
	).Scan(&m.CreatedAt, &m.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("marketplace %d: %w", m.ID, domain.ErrNotFound)
	}
	if err != nil {
		return mapMarketplaceWriteErr(err)
	}
	return nil
}

// Delete removes the marketplace; its offers go with it.
func (r *MarketplaceRepository) Delete(ctx context.Context, id int64) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM marketplaces WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete marketplace: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("marketplace %d: %w", id, domain.ErrNotFound)
	}
	return nil
}

func (r *MarketplaceRepository) Stats(ctx context.Context, id int64) (*domain.MarketplaceStats, error) {
	if _, err := r.GetByID(ctx, id); err != nil {
		return nil, err
	}

	query := `
		SELECT COUNT(*), COUNT(DISTINCT domain_id),
		       ROUND(AVG(price_usd), 2), MIN(price_usd), MAX(price_usd)
		FROM offers
		WHERE marketplace_id = $1
	`

	stats := domain.MarketplaceStats{MarketplaceID: id}
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&stats.TotalOffers, &stats.UniqueDomains,
		&stats.AvgPriceUSD, &stats.MinPriceUSD, &stats.MaxPriceUSD,
	)
	if err != nil {
		return nil, fmt.Errorf("marketplace stats: %w", err)
	}
	return &stats, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMarketplace(row rowScanner) (*domain.Marketplace, error) {
	var (
		m             domain.Marketplace
		region, notes sql.NullString
	)
	err := row.Scan(&m.ID, &m.Name, &m.Slug, &region, &notes, &m.CreatedAt, &m.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	m.Region = stringPtr(region)
	m.Notes = stringPtr(notes)
	return &m, nil
}

func mapMarketplaceWriteErr(err error) error {
	switch {
	case isUniqueViolation(err, marketplacesSlugKey):
		return domain.ErrSlugTaken
	case isUniqueViolation(err, marketplacesNameKey):
		return fmt.Errorf("%w: name belongs to another slug", domain.ErrMarketplaceConflict)
	default:
		return fmt.Errorf("write marketplace: %w", err)
	}
}

func buildListWhere(filter ListFilter) (string, []any) {
	search := strings.TrimSpace(filter.Search)
	if search == "" {
		return "", nil
	}
	return " WHERE name ILIKE $1 OR slug ILIKE $1", []any{"%" + search + "%"}
}

var sortableColumns = map[string]string{
	"name":       "name",
	"slug":       "slug",
	"region":     "region",
	"created_at": "created_at",
	"updated_at": "updated_at",
}

func buildListOrder(filter ListFilter) string {
	column, ok := sortableColumns[filter.SortBy]
	if !ok {
		column = "name"
	}
	order := "ASC"
	if strings.EqualFold(filter.SortOrder, "desc") {
		order = "DESC"
	}
	return " ORDER BY " + column + " " + order + ", id ASC"
}
