package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"gear-aggregator/models"
	"gear-aggregator/taxonomy"
)

type listingRow struct {
	ID               int64  `gorm:"primaryKey;autoIncrement"`
	Source           string `gorm:"size:50;not null;index:idx_listings_source_seen,priority:1"`
	URL              string `gorm:"uniqueIndex;not null"`
	Title            string `gorm:"not null"`
	ExternalCategory string `gorm:"not null;default:''"`
	Category         string `gorm:"size:32;not null;default:other;index:idx_listings_category_id,priority:1"`
	PriceText        string `gorm:"not null;default:''"`
	Price            float64
	Location         string
	ImageURL         string
	Description      string
	FirstSeen        time.Time `gorm:"not null"`
	LastSeen         time.Time `gorm:"not null;index:idx_listings_source_seen,priority:2"`
	Active           bool      `gorm:"not null"`
}

func (listingRow) TableName() string { return "listings" }

type mappingRow struct {
	Source           string `gorm:"primaryKey;size:50"`
	ExternalKey      string `gorm:"primaryKey"`
	ExternalCategory string `gorm:"not null"`
	Category         string `gorm:"size:32;not null"`
	CreatedAt        time.Time
}

func (mappingRow) TableName() string { return "category_mappings" }

type cursorRow struct {
	Name      string `gorm:"primaryKey"`
	LastID    int64  `gorm:"not null"`
	UpdatedAt time.Time
}

func (cursorRow) TableName() string { return "reclassify_cursors" }

// SQLiteStore is a single-file Store backed by gorm and SQLite.
type SQLiteStore struct {
	db *gorm.DB
}

// NewSQLiteStore opens (or creates) the database at path and migrates the
// schema.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("sqlite: open %q: %w", path, err)
	}
	if err := db.AutoMigrate(&listingRow{}, &mappingRow{}, &cursorRow{}); err != nil {
		return nil, fmt.Errorf("sqlite: migrate: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Upsert(ctx context.Context, listings []*models.Listing) error {
	if len(listings) == 0 {
		return nil
	}
	if err := validateListings(listings); err != nil {
		return err
	}

	now := time.Now()
	rows := make([]listingRow, 0, len(listings))
	for _, l := range dedupeByURL(listings) {
		seen := l.LastSeen
		if seen.IsZero() {
			seen = now
		}
		rows = append(rows, listingRow{
			Source:           l.Source,
			URL:              l.URL,
			Title:            l.Title,
			ExternalCategory: l.ExternalCategory,
			Category:         string(l.Category),
			PriceText:        l.PriceText,
			Price:            l.Price,
			Location:         l.Location,
			ImageURL:         l.ImageURL,
			Description:      l.Description,
			FirstSeen:        seen,
			LastSeen:         seen,
			Active:           true,
		})
	}

	updates := clause.AssignmentColumns([]string{
		"source", "title", "external_category", "price_text", "price",
		"location", "image_url", "description", "last_seen", "active",
	})
	updates = append(updates, clause.Assignment{
		Column: clause.Column{Name: "category"},
		Value: gorm.Expr(
			"CASE WHEN excluded.category <> ? THEN excluded.category ELSE listings.category END",
			string(taxonomy.Other)),
	})

	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "url"}},
		DoUpdates: updates,
	}).CreateInBatches(rows, 50).Error
	if err != nil {
		return fmt.Errorf("sqlite: upsert: %w", err)
	}
	return nil
}

func (s *SQLiteStore) MarkInactive(ctx context.Context, source string, seenBefore time.Time) (int64, error) {
	res := s.db.WithContext(ctx).Model(&listingRow{}).
		Where("source = ? AND active = ? AND last_seen < ?", source, true, seenBefore).
		Update("active", false)
	if res.Error != nil {
		return 0, fmt.Errorf("sqlite: mark inactive: %w", res.Error)
	}
	return res.RowsAffected, nil
}

func (s *SQLiteStore) Get(ctx context.Context, url string) (*models.Listing, error) {
	var row listingRow
	err := s.db.WithContext(ctx).Where("url = ?", url).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: get: %w", err)
	}
	return row.toModel(), nil
}

func (s *SQLiteStore) List(ctx context.Context, q models.ListingQuery) ([]*models.Listing, error) {
	query := s.db.WithContext(ctx).Model(&listingRow{}).Where("id > ?", q.AfterID)
	if q.Category != "" {
		query = query.Where("category = ?", string(q.Category))
	}
	if q.Source != "" {
		query = query.Where("source = ?", q.Source)
	}
	query = query.Order("id")
	if q.Limit > 0 {
		query = query.Limit(q.Limit)
	}

	var rows []listingRow
	if err := query.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("sqlite: list: %w", err)
	}
	return toModels(rows), nil
}

func (s *SQLiteStore) UpdateCategory(ctx context.Context, url string, category taxonomy.Category) error {
	if !category.Valid() {
		return ErrInvalidCategory
	}
	res := s.db.WithContext(ctx).Model(&listingRow{}).Where("url = ?", url).Update("category", string(category))
	if res.Error != nil {
		return fmt.Errorf("sqlite: update category: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteStore) CountByCategory(ctx context.Context, source string) (map[taxonomy.Category]int, error) {
	type countRow struct {
		Category string
		N        int
	}
	query := s.db.WithContext(ctx).Model(&listingRow{}).Select("category, COUNT(*) AS n")
	if source != "" {
		query = query.Where("source = ?", source)
	}
	var rows []countRow
	if err := query.Group("category").Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("sqlite: count by category: %w", err)
	}

	counts := make(map[taxonomy.Category]int, len(rows))
	for _, r := range rows {
		counts[taxonomy.Category(r.Category)] = r.N
	}
	return counts, nil
}

func (s *SQLiteStore) FetchAll(ctx context.Context) ([]*models.Listing, error) {
	return s.List(ctx, models.ListingQuery{})
}

func (s *SQLiteStore) ListMappings(ctx context.Context, source string) ([]models.CategoryMapping, error) {
	query := s.db.WithContext(ctx).Model(&mappingRow{})
	if source != "" {
		query = query.Where("source = ?", source)
	}
	var rows []mappingRow
	if err := query.Order("source, external_key").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("sqlite: list mappings: %w", err)
	}

	out := make([]models.CategoryMapping, 0, len(rows))
	for _, r := range rows {
		out = append(out, models.CategoryMapping{
			Source:           r.Source,
			ExternalCategory: r.ExternalCategory,
			Category:         taxonomy.OrDefault(taxonomy.Category(r.Category)),
			CreatedAt:        r.CreatedAt,
		})
	}
	return out, nil
}

func (s *SQLiteStore) PutMapping(ctx context.Context, m models.CategoryMapping) error {
	if !m.Category.Valid() {
		return ErrInvalidCategory
	}
	row := mappingRow{
		Source:           m.Source,
		ExternalKey:      MappingKey(m.ExternalCategory),
		ExternalCategory: m.ExternalCategory,
		Category:         string(m.Category),
		CreatedAt:        m.CreatedAt,
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "source"}, {Name: "external_key"}},
		DoUpdates: clause.AssignmentColumns([]string{"external_category", "category"}),
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("sqlite: put mapping: %w", err)
	}
	return nil
}

func (s *SQLiteStore) DeleteMapping(ctx context.Context, source, externalCategory string) error {
	res := s.db.WithContext(ctx).
		Where("source = ? AND external_key = ?", source, MappingKey(externalCategory)).
		Delete(&mappingRow{})
	if res.Error != nil {
		return fmt.Errorf("sqlite: delete mapping: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteStore) LoadCursor(ctx context.Context, name string) (int64, error) {
	var row cursorRow
	err := s.db.WithContext(ctx).Where("name = ?", name).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("sqlite: load cursor: %w", err)
	}
	return row.LastID, nil
}

func (s *SQLiteStore) SaveCursor(ctx context.Context, name string, cursor int64) error {
	row := cursorRow{Name: name, LastID: cursor}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "name"}},
		DoUpdates: clause.AssignmentColumns([]string{"last_id", "updated_at"}),
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("sqlite: save cursor: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (r listingRow) toModel() *models.Listing {
	return &models.Listing{
		ID:               r.ID,
		Source:           r.Source,
		URL:              r.URL,
		Title:            r.Title,
		ExternalCategory: r.ExternalCategory,
		Category:         taxonomy.OrDefault(taxonomy.Category(r.Category)),
		PriceText:        r.PriceText,
		Price:            r.Price,
		Location:         r.Location,
		ImageURL:         r.ImageURL,
		Description:      r.Description,
		FirstSeen:        r.FirstSeen,
		LastSeen:         r.LastSeen,
		Active:           r.Active,
	}
}

func toModels(rows []listingRow) []*models.Listing {
	out := make([]*models.Listing, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toModel())
	}
	return out
}
