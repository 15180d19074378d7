package repository

import (
	"cmp"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/jonesrussell/backlink-checker/internal/domain"
	"github.com/jonesrussell/backlink-checker/internal/logger"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
)

const (
	rowSavepoint        = "SAVEPOINT offer_row"
	rowSavepointRelease = "RELEASE SAVEPOINT offer_row"
	rowSavepointUndo    = "ROLLBACK TO SAVEPOINT offer_row"

	defaultHistoryLimit = 100
)

type OfferRepository struct {
	db     *sql.DB
	logger logger.Logger
}

func NewOfferRepository(db *sql.DB, log logger.Logger) *OfferRepository {
	return &OfferRepository{db: db, logger: log}
}

// ApplyBatch upserts rows in one transaction. Each row runs under its own
// savepoint, so a failing row is rolled back alone and reported in its
// outcome while the rest of the batch commits. The returned error is set
// only when the batch as a whole could not be written.
//
// Rows are written in (root domain, marketplace) order so concurrent
// batches take offer row locks in the same order. Outcomes are returned in
// input order.
func (r *OfferRepository) ApplyBatch(ctx context.Context, rows []domain.OfferUpsert) (outcomes []domain.UpsertOutcome, err error) {
	if len(rows) == 0 {
		return nil, nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
				r.logger.Error("Failed to rollback offer batch", logger.Error(rbErr))
			}
		}
	}()

	outcomes = make([]domain.UpsertOutcome, len(rows))
	for _, i := range writeOrder(rows) {
		outcome, rowErr := r.applyRow(ctx, tx, &rows[i])
		if rowErr != nil {
			err = fmt.Errorf("row %d: %w", rows[i].Line, rowErr)
			return nil, err
		}
		outcomes[i] = outcome
	}

	if commitErr := tx.Commit(); commitErr != nil {
		err = fmt.Errorf("commit transaction: %w", commitErr)
		return nil, err
	}
	return outcomes, nil
}

// writeOrder returns the indexes of rows sorted by root domain, then
// marketplace. Equal keys keep their input order.
func writeOrder(rows []domain.OfferUpsert) []int {
	order := make([]int, len(rows))
	for i := range order {
		order[i] = i
	}
	slices.SortStableFunc(order, func(a, b int) int {
		return cmp.Or(
			cmp.Compare(rows[a].RootDomain, rows[b].RootDomain),
			cmp.Compare(rows[a].MarketplaceID, rows[b].MarketplaceID),
		)
	})
	return order
}

// applyRow returns an error only for savepoint failures, which poison the
// transaction. Row failures are carried in the outcome.
func (r *OfferRepository) applyRow(ctx context.Context, tx *sql.Tx, row *domain.OfferUpsert) (domain.UpsertOutcome, error) {
	outcome := domain.UpsertOutcome{Line: row.Line}

	if _, err := tx.ExecContext(ctx, rowSavepoint); err != nil {
		return outcome, fmt.Errorf("create savepoint: %w", err)
	}

	writeErr := r.writeRow(ctx, tx, row, &outcome)
	if writeErr != nil {
		if _, err := tx.ExecContext(ctx, rowSavepointUndo); err != nil {
			return outcome, fmt.Errorf("rollback savepoint: %w", err)
		}
		outcome = domain.UpsertOutcome{Line: row.Line, Err: writeErr}
		return outcome, nil
	}

	if _, err := tx.ExecContext(ctx, rowSavepointRelease); err != nil {
		return outcome, fmt.Errorf("release savepoint: %w", err)
	}
	return outcome, nil
}

func (r *OfferRepository) writeRow(ctx context.Context, tx *sql.Tx, row *domain.OfferUpsert, out *domain.UpsertOutcome) error {
	seenAt := row.SeenAt
	if seenAt.IsZero() {
		seenAt = time.Now().UTC()
	}

	domainID, created, err := ensureDomain(ctx, tx, row.RootDomain, seenAt)
	if err != nil {
		return fmt.Errorf("upsert domain: %w", err)
	}
	out.DomainCreated = created

	// The conflict arm takes a row lock on the existing offer, which
	// serialises concurrent writers of the same (domain, marketplace) pair.
	err = tx.QueryRowContext(ctx, `
		INSERT INTO offers (
			domain_id, marketplace_id, price_amount, price_currency, price_usd,
			listing_url, includes_content, dofollow, first_seen_at, last_seen_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $9)
		ON CONFLICT (domain_id, marketplace_id) DO UPDATE SET
			price_amount = EXCLUDED.price_amount,
			price_currency = EXCLUDED.price_currency,
			price_usd = EXCLUDED.price_usd,
			listing_url = COALESCE(EXCLUDED.listing_url, offers.listing_url),
			includes_content = EXCLUDED.includes_content,
			dofollow = EXCLUDED.dofollow,
			last_seen_at = EXCLUDED.last_seen_at
		RETURNING id, (xmax = 0) AS is_insert
	`,
		domainID, row.MarketplaceID, row.PriceAmount, row.PriceCurrency, row.PriceUSD,
		nullString(row.ListingURL), row.IncludesContent, row.Dofollow, seenAt,
	).Scan(&out.OfferID, &out.OfferCreated)
	if err != nil {
		return fmt.Errorf("upsert offer: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO price_history (offer_id, price_amount, price_currency, price_usd, seen_at)
		VALUES ($1, $2, $3, $4, $5)
	`, out.OfferID, row.PriceAmount, row.PriceCurrency, row.PriceUSD, seenAt)
	if err != nil {
		return fmt.Errorf("record price history: %w", err)
	}
	return nil
}

// ensureDomain returns the id of root, inserting it when missing. An
// existing domain row is read, never locked.
func ensureDomain(ctx context.Context, tx *sql.Tx, root string, seenAt time.Time) (id int64, created bool, err error) {
	err = tx.QueryRowContext(ctx, `
		INSERT INTO domains (root_domain, created_at, updated_at)
		VALUES ($1, $2, $2)
		ON CONFLICT (root_domain) DO NOTHING
		RETURNING id
	`, root, seenAt).Scan(&id)
	if err == nil {
		return id, true, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, false, err
	}

	err = tx.QueryRowContext(ctx, `SELECT id FROM domains WHERE root_domain = $1`, root).Scan(&id)
	if err != nil {
		return 0, false, err
	}
	return id, false, nil
}

// FindByDomains returns every offer on the given roots. A non-empty slugs
// list restricts the result to those marketplaces; unknown slugs match
// nothing.
func (r *OfferRepository) FindByDomains(ctx context.Context, roots, slugs []string) ([]domain.OfferRecord, error) {
	if len(roots) == 0 {
		return []domain.OfferRecord{}, nil
	}

	query := `
		SELECT o.id, o.domain_id, o.marketplace_id, o.price_amount, o.price_currency,
		       o.price_usd, o.listing_url, o.includes_content, o.dofollow,
		       o.first_seen_at, o.last_seen_at, d.root_domain, m.name, m.slug
		FROM offers o
		JOIN domains d ON d.id = o.domain_id
		JOIN marketplaces m ON m.id = o.marketplace_id
		WHERE d.root_domain = ANY($1)`
	args := []any{pq.Array(roots)}
	if len(slugs) > 0 {
		query += ` AND m.slug = ANY($2)`
		args = append(args, pq.Array(slugs))
	}
	query += ` ORDER BY d.root_domain, o.price_usd ASC NULLS LAST, m.slug`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query offers: %w", err)
	}
	defer rows.Close()

	records := make([]domain.OfferRecord, 0)
	for rows.Next() {
		var (
			rec        domain.OfferRecord
			listingURL sql.NullString
		)
		if scanErr := rows.Scan(
			&rec.ID, &rec.DomainID, &rec.MarketplaceID, &rec.PriceAmount, &rec.PriceCurrency,
			&rec.PriceUSD, &listingURL, &rec.IncludesContent, &rec.Dofollow,
			&rec.FirstSeenAt, &rec.LastSeenAt, &rec.RootDomain, &rec.MarketplaceName, &rec.MarketplaceSlug,
		); scanErr != nil {
			return nil, fmt.Errorf("scan offer: %w", scanErr)
		}
		rec.ListingURL = stringPtr(listingURL)
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate offers: %w", err)
	}
	return records, nil
}

// History returns the most recent price observations of an offer.
func (r *OfferRepository) History(ctx context.Context, offerID int64, limit int) ([]domain.PriceHistory, error) {
	var exists bool
	if err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM offers WHERE id = $1)`, offerID,
	).Scan(&exists); err != nil {
		return nil, fmt.Errorf("check offer: %w", err)
	}
	if !exists {
		return nil, fmt.Errorf("offer %d: %w", offerID, domain.ErrNotFound)
	}

	if limit <= 0 {
		limit = defaultHistoryLimit
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, offer_id, price_amount, price_currency, price_usd, seen_at
		FROM price_history
		WHERE offer_id = $1
		ORDER BY seen_at DESC, id DESC
		LIMIT $2
	`, offerID, limit)
	if err != nil {
		return nil, fmt.Errorf("query price history: %w", err)
	}
	defer rows.Close()

	history := make([]domain.PriceHistory, 0)
	for rows.Next() {
		var h domain.PriceHistory
		if scanErr := rows.Scan(&h.ID, &h.OfferID, &h.PriceAmount, &h.PriceCurrency, &h.PriceUSD, &h.SeenAt); scanErr != nil {
			return nil, fmt.Errorf("scan price history: %w", scanErr)
		}
		history = append(history, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate price history: %w", err)
	}
	return history, nil
}

// Stats summarises the store. Price figures cover offers with a USD price.
func (r *OfferRepository) Stats(ctx context.Context) (*domain.LookupStats, error) {
	query := `
		SELECT
			(SELECT COUNT(*) FROM domains),
			(SELECT COUNT(*) FROM offers),
			(SELECT COUNT(*) FROM marketplaces),
			ROUND(AVG(price_usd), 2),
			MIN(price_usd),
			MAX(price_usd),
			percentile_cont(0.25) WITHIN GROUP (ORDER BY price_usd),
			percentile_cont(0.75) WITHIN GROUP (ORDER BY price_usd)
		FROM offers
		WHERE price_usd IS NOT NULL
	`

	var s domain.LookupStats
	var q25, q75 decimal.NullDecimal
	err := r.db.QueryRowContext(ctx, query).Scan(
		&s.TotalDomains, &s.TotalOffers, &s.TotalMarketplaces,
		&s.AvgPriceUSD, &s.PriceRange.Min, &s.PriceRange.Max, &q25, &q75,
	)
	if err != nil {
		return nil, fmt.Errorf("offer stats: %w", err)
	}
	s.PriceRange.Q25 = roundNullable(q25)
	s.PriceRange.Q75 = roundNullable(q75)
	return &s, nil
}

// TrackedCurrencies lists the non-USD currencies offers are priced in.
func (r *OfferRepository) TrackedCurrencies(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT DISTINCT price_currency FROM offers
		WHERE price_currency <> 'USD'
		ORDER BY price_currency
	`)
	if err != nil {
		return nil, fmt.Errorf("query currencies: %w", err)
	}
	defer rows.Close()

	currencies := make([]string, 0)
	for rows.Next() {
		var code string
		if scanErr := rows.Scan(&code); scanErr != nil {
			return nil, fmt.Errorf("scan currency: %w", scanErr)
		}
		currencies = append(currencies, code)
	}
	return currencies, rows.Err()
}

func roundNullable(d decimal.NullDecimal) decimal.NullDecimal {
	if !d.Valid {
		return d
	}
	return decimal.NewNullDecimal(d.Decimal.Round(2))
}
