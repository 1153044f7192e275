package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"

	"gear-aggregator/models"
	"gear-aggregator/taxonomy"
)

// PostgresStore persists listings, category mappings and batch cursors to
// PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore opens a connection to PostgreSQL, runs schema migrations,
// and returns a ready-to-use PostgresStore.
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: open: %w", err)
	}

	for i := 0; i < 10; i++ {
		if err = db.PingContext(ctx); err == nil {
			break
		}
		time.Sleep(2 * time.Second)
	}
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("postgres: ping failed after retries: %w", err)
	}

	ps := &PostgresStore{db: db}
	if err := ps.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("postgres: migrate: %w", err)
	}

	return ps, nil
}

func (ps *PostgresStore) migrate(ctx context.Context) error {
	_, err := ps.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS listings (
			id                BIGSERIAL     PRIMARY KEY,
			source            VARCHAR(50)   NOT NULL,
			url               TEXT          UNIQUE NOT NULL,
			title             TEXT          NOT NULL,
			external_category TEXT          NOT NULL DEFAULT '',
			category          VARCHAR(32)   NOT NULL DEFAULT 'other',
			price_text        TEXT          NOT NULL DEFAULT '',
			price             NUMERIC(12,2) NOT NULL DEFAULT 0,
			location          TEXT          NOT NULL DEFAULT '',
			image_url         TEXT          NOT NULL DEFAULT '',
			description       TEXT          NOT NULL DEFAULT '',
			first_seen        TIMESTAMPTZ   NOT NULL DEFAULT NOW(),
			last_seen         TIMESTAMPTZ   NOT NULL DEFAULT NOW(),
			active            BOOLEAN       NOT NULL DEFAULT TRUE
		);

		CREATE INDEX IF NOT EXISTS idx_listings_category_id ON listings(category, id);
		CREATE INDEX IF NOT EXISTS idx_listings_source      ON listings(source);
		CREATE INDEX IF NOT EXISTS idx_listings_last_seen   ON listings(source, last_seen);

		CREATE TABLE IF NOT EXISTS category_mappings (
			source            VARCHAR(50)  NOT NULL,
			external_key      TEXT         NOT NULL,
			external_category TEXT         NOT NULL,
			category          VARCHAR(32)  NOT NULL,
			created_at        TIMESTAMPTZ  NOT NULL DEFAULT NOW(),
			PRIMARY KEY (source, external_key)
		);

		CREATE TABLE IF NOT EXISTS reclassify_cursors (
			name       TEXT        PRIMARY KEY,
			last_id    BIGINT      NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
	`)
	return err
}

const listingColumns = `id, source, url, title, external_category, category, price_text, price,
	location, image_url, description, first_seen, last_seen, active`

// Upsert batch-inserts listings keyed by URL.
func (ps *PostgresStore) Upsert(ctx context.Context, listings []*models.Listing) error {
	if len(listings) == 0 {
		return nil
	}
	if err := validateListings(listings); err != nil {
		return err
	}
	listings = dedupeByURL(listings)

	const batchSize = 50
	for i := 0; i < len(listings); i += batchSize {
		end := i + batchSize
		if end > len(listings) {
			end = len(listings)
		}
		if err := ps.upsertBatch(ctx, listings[i:end]); err != nil {
			return err
		}
	}
	return nil
}

func (ps *PostgresStore) upsertBatch(ctx context.Context, batch []*models.Listing) error {
	const cols = 11
	valueStrings := make([]string, 0, len(batch))
	valueArgs := make([]interface{}, 0, len(batch)*cols)
	now := time.Now()

	for idx, l := range batch {
		base := idx * cols
		ph := make([]string, cols)
		for c := range ph {
			ph[c] = fmt.Sprintf("$%d", base+c+1)
		}
		valueStrings = append(valueStrings, "("+strings.Join(ph, ",")+")")

		seen := l.LastSeen
		if seen.IsZero() {
			seen = now
		}
		valueArgs = append(valueArgs,
			l.Source, l.URL, l.Title, l.ExternalCategory, string(l.Category), l.PriceText,
			l.Price, l.Location, l.ImageURL, l.Description, seen)
	}

	query := fmt.Sprintf(`
		INSERT INTO listings (source, url, title, external_category, category, price_text,
			price, location, image_url, description, last_seen)
		VALUES %s
		ON CONFLICT (url) DO UPDATE SET
			source            = EXCLUDED.source,
			title             = EXCLUDED.title,
			external_category = EXCLUDED.external_category,
			category          = CASE WHEN EXCLUDED.category <> 'other'
			                         THEN EXCLUDED.category ELSE listings.category END,
			price_text        = EXCLUDED.price_text,
			price             = EXCLUDED.price,
			location          = EXCLUDED.location,
			image_url         = EXCLUDED.image_url,
			description       = EXCLUDED.description,
			last_seen         = EXCLUDED.last_seen,
			active            = TRUE
	`, strings.Join(valueStrings, ","))

	if _, err := ps.db.ExecContext(ctx, query, valueArgs...); err != nil {
		return fmt.Errorf("postgres: upsert: %w", err)
	}
	return nil
}

func (ps *PostgresStore) MarkInactive(ctx context.Context, source string, seenBefore time.Time) (int64, error) {
	res, err := ps.db.ExecContext(ctx,
		`UPDATE listings SET active = FALSE WHERE source = $1 AND active AND last_seen < $2`,
		source, seenBefore)
	if err != nil {
		return 0, fmt.Errorf("postgres: mark inactive: %w", err)
	}
	return res.RowsAffected()
}

func (ps *PostgresStore) Get(ctx context.Context, url string) (*models.Listing, error) {
	row := ps.db.QueryRowContext(ctx, `SELECT `+listingColumns+` FROM listings WHERE url = $1`, url)
	l, err := scanListing(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: get: %w", err)
	}
	return l, nil
}

func (ps *PostgresStore) List(ctx context.Context, q models.ListingQuery) ([]*models.Listing, error) {
	where := []string{"id > $1"}
	args := []interface{}{q.AfterID}
	if q.Category != "" {
		args = append(args, string(q.Category))
		where = append(where, fmt.Sprintf("category = $%d", len(args)))
	}
	if q.Source != "" {
		args = append(args, q.Source)
		where = append(where, fmt.Sprintf("source = $%d", len(args)))
	}
	query := `SELECT ` + listingColumns + ` FROM listings WHERE ` + strings.Join(where, " AND ") + ` ORDER BY id`
	if q.Limit > 0 {
		args = append(args, q.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	return ps.queryListings(ctx, query, args...)
}

func (ps *PostgresStore) UpdateCategory(ctx context.Context, url string, category taxonomy.Category) error {
	if !category.Valid() {
		return ErrInvalidCategory
	}
	res, err := ps.db.ExecContext(ctx, `UPDATE listings SET category = $1 WHERE url = $2`, string(category), url)
	if err != nil {
		return fmt.Errorf("postgres: update category: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (ps *PostgresStore) CountByCategory(ctx context.Context, source string) (map[taxonomy.Category]int, error) {
	rows, err := ps.db.QueryContext(ctx,
		`SELECT category, COUNT(*) FROM listings WHERE ($1 = '' OR source = $1) GROUP BY category`, source)
	if err != nil {
		return nil, fmt.Errorf("postgres: count by category: %w", err)
	}
	defer rows.Close()

	counts := make(map[taxonomy.Category]int)
	for rows.Next() {
		var cat string
		var n int
		if err := rows.Scan(&cat, &n); err != nil {
			return nil, fmt.Errorf("postgres: scan count: %w", err)
		}
		counts[taxonomy.Category(cat)] = n
	}
	return counts, rows.Err()
}

// FetchAll retrieves all stored listings; used by the insight service.
func (ps *PostgresStore) FetchAll(ctx context.Context) ([]*models.Listing, error) {
	return ps.queryListings(ctx, `SELECT `+listingColumns+` FROM listings ORDER BY id`)
}

func (ps *PostgresStore) ListMappings(ctx context.Context, source string) ([]models.CategoryMapping, error) {
	rows, err := ps.db.QueryContext(ctx, `
		SELECT source, external_category, category, created_at
		FROM category_mappings
		WHERE ($1 = '' OR source = $1)
		ORDER BY source, external_key
	`, source)
	if err != nil {
		return nil, fmt.Errorf("postgres: list mappings: %w", err)
	}
	defer rows.Close()

	var out []models.CategoryMapping
	for rows.Next() {
		var m models.CategoryMapping
		var cat string
		if err := rows.Scan(&m.Source, &m.ExternalCategory, &cat, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan mapping: %w", err)
		}
		m.Category = taxonomy.OrDefault(taxonomy.Category(cat))
		out = append(out, m)
	}
	return out, rows.Err()
}

func (ps *PostgresStore) PutMapping(ctx context.Context, m models.CategoryMapping) error {
	if !m.Category.Valid() {
		return ErrInvalidCategory
	}
	_, err := ps.db.ExecContext(ctx, `
		INSERT INTO category_mappings (source, external_key, external_category, category)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (source, external_key) DO UPDATE SET
			external_category = EXCLUDED.external_category,
			category          = EXCLUDED.category
	`, m.Source, MappingKey(m.ExternalCategory), m.ExternalCategory, string(m.Category))
	if err != nil {
		return fmt.Errorf("postgres: put mapping: %w", err)
	}
	return nil
}

func (ps *PostgresStore) DeleteMapping(ctx context.Context, source, externalCategory string) error {
	res, err := ps.db.ExecContext(ctx,
		`DELETE FROM category_mappings WHERE source = $1 AND external_key = $2`,
		source, MappingKey(externalCategory))
	if err != nil {
		return fmt.Errorf("postgres: delete mapping: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (ps *PostgresStore) LoadCursor(ctx context.Context, name string) (int64, error) {
	var cursor int64
	err := ps.db.QueryRowContext(ctx, `SELECT last_id FROM reclassify_cursors WHERE name = $1`, name).Scan(&cursor)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("postgres: load cursor: %w", err)
	}
	return cursor, nil
}

func (ps *PostgresStore) SaveCursor(ctx context.Context, name string, cursor int64) error {
	_, err := ps.db.ExecContext(ctx, `
		INSERT INTO reclassify_cursors (name, last_id, updated_at) VALUES ($1, $2, NOW())
		ON CONFLICT (name) DO UPDATE SET last_id = EXCLUDED.last_id, updated_at = NOW()
	`, name, cursor)
	if err != nil {
		return fmt.Errorf("postgres: save cursor: %w", err)
	}
	return nil
}

func (ps *PostgresStore) Close() error {
	return ps.db.Close()
}

func (ps *PostgresStore) queryListings(ctx context.Context, query string, args ...interface{}) ([]*models.Listing, error) {
	rows, err := ps.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: query listings: %w", err)
	}
	defer rows.Close()

	var listings []*models.Listing
	for rows.Next() {
		l, err := scanListing(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan row: %w", err)
		}
		listings = append(listings, l)
	}
	return listings, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanListing(r rowScanner) (*models.Listing, error) {
	l := &models.Listing{}
	var cat string
	if err := r.Scan(
		&l.ID, &l.Source, &l.URL, &l.Title, &l.ExternalCategory, &cat, &l.PriceText, &l.Price,
		&l.Location, &l.ImageURL, &l.Description, &l.FirstSeen, &l.LastSeen, &l.Active,
	); err != nil {
		return nil, err
	}
	l.Category = taxonomy.OrDefault(taxonomy.Category(cat))
	return l, nil
}
