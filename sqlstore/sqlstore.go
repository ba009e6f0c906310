// Package sqlstore is a lookbook.RowStore backed by gorm. The database is
// selected by DATABASE_URL: postgres:// or sqlite://.
package sqlstore

import (
	"context"
	"fmt"
	"strings"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/anatolykoptev/go-lookbook"
)

// LookRow is one generated look. ImageURL is the normalized identity.
type LookRow struct {
	ID             uint   `gorm:"primaryKey"`
	ImageURL       string `gorm:"uniqueIndex;not null"`
	Title          string
	Description    string `gorm:"type:text"`
	Caption        string `gorm:"type:text"`
	Hashtags       string
	AltText        string `gorm:"type:text"`
	Platform       string
	KeyFeatures    string `gorm:"type:text"`
	GeneratedAt    string
	VisionAnalysis string `gorm:"type:text"`
	Credit         string
}

// TableName pins the table name.
func (LookRow) TableName() string { return "look_rows" }

func fromRow(r lookbook.Row) LookRow {
	return LookRow{
		ImageURL:       r[lookbook.IdentityColumn],
		Title:          r["Title"],
		Description:    r["Description"],
		Caption:        r["Caption"],
		Hashtags:       r["Hashtags"],
		AltText:        r["Alt Text"],
		Platform:       r["Platform"],
		KeyFeatures:    r["Key Features"],
		GeneratedAt:    r["Generated At"],
		VisionAnalysis: r["Vision Analysis"],
		Credit:         r["Credit"],
	}
}

// Open connects to dsn and returns the gorm handle and the database type.
func Open(dsn string) (*gorm.DB, string, error) {
	cfg := &gorm.Config{Logger: logger.Default.LogMode(logger.Warn)}

	var (
		db     *gorm.DB
		err    error
		dbType string
	)
	switch {
	case strings.HasPrefix(dsn, "postgres://"), strings.HasPrefix(dsn, "postgresql://"):
		dbType = "postgres"
		db, err = gorm.Open(postgres.Open(dsn), cfg)
	case strings.HasPrefix(dsn, "sqlite://"):
		dbType = "sqlite"
		db, err = gorm.Open(sqlite.Open(strings.TrimPrefix(dsn, "sqlite://")), cfg)
	default:
		return nil, "", fmt.Errorf("unsupported DATABASE_URL: %q", dsn)
	}
	if err != nil {
		return nil, "", fmt.Errorf("connect %s: %w", dbType, err)
	}
	return db, dbType, nil
}

// Store writes rows into look_rows.
type Store struct {
	db *gorm.DB
}

var _ lookbook.RowStore = (*Store)(nil)

// New migrates the schema and returns a Store.
func New(db *gorm.DB) (*Store, error) {
	if err := db.AutoMigrate(&LookRow{}); err != nil {
		return nil, fmt.Errorf("migrate look_rows: %w", err)
	}
	return &Store{db: db}, nil
}

// AppendRows inserts rows in one transaction. A row whose image URL is
// already stored is ignored.
func (s *Store) AppendRows(ctx context.Context, rows []lookbook.Row) error {
	if len(rows) == 0 {
		return nil
	}
	recs := make([]LookRow, len(rows))
	for i, r := range rows {
		recs[i] = fromRow(r)
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "image_url"}},
			DoNothing: true,
		}).Create(&recs).Error
	})
	if err != nil {
		return fmt.Errorf("insert %d look rows: %w", len(rows), err)
	}
	return nil
}

// ListExisting returns every stored image URL.
func (s *Store) ListExisting(ctx context.Context) ([]string, error) {
	var urls []string
	if err := s.db.WithContext(ctx).Model(&LookRow{}).Order("id").Pluck("image_url", &urls).Error; err != nil {
		return nil, fmt.Errorf("list image urls: %w", err)
	}
	return urls, nil
}
