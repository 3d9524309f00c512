package database

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"ramallah-time/internal/listing"
	"ramallah-time/internal/models"
)

// Supported database types.
const (
	TypeMySQL    = "mysql"
	TypePostgres = "postgres"
)

// Settings selects and configures the relational store.
type Settings struct {
	Type     string
	Host     string
	Port     string
	User     string
	Password string
	Name     string
	SSLMode  string
	LogSQL   bool
}

// DSN builds the driver connection string.
func (s Settings) DSN() (string, error) {
	switch s.Type {
	case TypeMySQL, "":
		return fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=UTC",
			s.User, s.Password, s.Host, s.Port, s.Name), nil
	case TypePostgres:
		sslmode := s.SSLMode
		if sslmode == "" {
			sslmode = "disable"
		}
		return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s TimeZone=UTC",
			s.Host, s.Port, s.User, s.Password, s.Name, sslmode), nil
	default:
		return "", fmt.Errorf("unsupported database type %q", s.Type)
	}
}

// GormDB is the GORM-backed listing store.
type GormDB struct {
	db *gorm.DB
}

// NewGormDB opens MySQL or Postgres and checks the connection.
func NewGormDB(s Settings) (*GormDB, error) {
	dsn, err := s.DSN()
	if err != nil {
		return nil, err
	}

	var dialector gorm.Dialector
	if s.Type == TypePostgres {
		dialector = postgres.Open(dsn)
	} else {
		dialector = mysql.Open(dsn)
	}

	level := logger.Warn
	if s.LogSQL {
		level = logger.Info
	}
	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:         logger.Default.LogMode(level),
		TranslateError: true,
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	})
	if err != nil {
		return nil, err
	}

	// Test connection
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	if err := sqlDB.Ping(); err != nil {
		return nil, err
	}

	return &GormDB{db: db}, nil
}

// NewGormDBFromDB creates a GormDB wrapper from an existing gorm.DB instance
func NewGormDBFromDB(db *gorm.DB) *GormDB {
	return &GormDB{db: db}
}

// DB returns the underlying gorm.DB instance
func (gdb *GormDB) DB() *gorm.DB {
	return gdb.db
}

func (gdb *GormDB) Close() error {
	sqlDB, err := gdb.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Ping checks that the database is reachable.
func (gdb *GormDB) Ping(ctx context.Context) error {
	sqlDB, err := gdb.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// InitSchema creates tables using GORM AutoMigrate
func (gdb *GormDB) InitSchema() error {
	return gdb.db.AutoMigrate(
		&models.Listing{},
		&models.ListingImage{},
		&models.Activation{},
		&models.DeleteLog{},
	)
}

// translate maps driver errors onto the listing error kinds.
func translate(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return fmt.Errorf("%s: %w", op, listing.ErrNotFound)
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return fmt.Errorf("%s: %w", op, listing.ErrConflict)
	default:
		return fmt.Errorf("%s: %w", op, err)
	}
}

func (gdb *GormDB) CreateListing(ctx context.Context, l *models.Listing) error {
	return translate("create place", gdb.db.WithContext(ctx).Omit("Images").Create(l).Error)
}

func (gdb *GormDB) GetListing(ctx context.Context, id uint) (*models.Listing, error) {
	var l models.Listing
	err := gdb.db.WithContext(ctx).Preload("Images").First(&l, id).Error
	if err != nil {
		return nil, translate("get place", err)
	}
	return &l, nil
}

func (gdb *GormDB) FindByOwnerEmail(ctx context.Context, email string) (*models.Listing, error) {
	var l models.Listing
	err := gdb.db.WithContext(ctx).Where("owner_email = ?", email).First(&l).Error
	if err != nil {
		return nil, translate("find place by owner", err)
	}
	return &l, nil
}

// ListListings scans listings matching f, newest first. Visibility is decided by the caller.
func (gdb *GormDB) ListListings(ctx context.Context, f listing.Filter) ([]models.Listing, error) {
	q := gdb.db.WithContext(ctx).Model(&models.Listing{}).Preload("Images")

	if f.IDs != nil {
		if len(f.IDs) == 0 {
			return []models.Listing{}, nil
		}
		q = q.Where("id IN ?", f.IDs)
	}
	if f.Category != "" {
		q = q.Where("category = ?", f.Category)
	}
	if f.Area != "" {
		q = q.Where("area = ?", f.Area)
	}
	if f.Query != "" {
		like := "%" + strings.ToLower(f.Query) + "%"
		q = q.Where(
			"LOWER(name) LIKE ? OR LOWER(area) LIKE ? OR LOWER(description) LIKE ? OR LOWER(tags) LIKE ?",
			like, like, like, like,
		)
	}

	var listings []models.Listing
	if err := q.Order("id DESC").Find(&listings).Error; err != nil {
		return nil, translate("list places", err)
	}
	return listings, nil
}

func (gdb *GormDB) UpdateListing(ctx context.Context, id uint, changes map[string]interface{}) error {
	return gdb.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var exists models.Listing
		if err := tx.Select("id").First(&exists, id).Error; err != nil {
			return translate("update place", err)
		}
		return translate("update place", tx.Model(&models.Listing{}).Where("id = ?", id).Updates(changes).Error)
	})
}

// DeleteListing removes the image rows and the listing and records a delete log.
func (gdb *GormDB) DeleteListing(ctx context.Context, l *models.Listing, reason string) error {
	return gdb.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("place_id = ?", l.ID).Delete(&models.ListingImage{})
		if res.Error != nil {
			return translate("delete place images", res.Error)
		}
		images := res.RowsAffected

		res = tx.Delete(&models.Listing{}, l.ID)
		if res.Error != nil {
			return translate("delete place", res.Error)
		}
		if res.RowsAffected == 0 {
			return translate("delete place", gorm.ErrRecordNotFound)
		}

		entry := models.DeleteLog{
			ListingID:  l.ID,
			Name:       l.Name,
			OwnerEmail: l.Email(),
			ImageCount: int(images),
			Reason:     reason,
		}
		return translate("write delete log", tx.Create(&entry).Error)
	})
}

func (gdb *GormDB) AddImages(ctx context.Context, images []models.ListingImage) error {
	if len(images) == 0 {
		return nil
	}
	return translate("add images", gdb.db.WithContext(ctx).Create(&images).Error)
}

func (gdb *GormDB) GetImage(ctx context.Context, id uint) (*models.ListingImage, error) {
	var img models.ListingImage
	if err := gdb.db.WithContext(ctx).First(&img, id).Error; err != nil {
		return nil, translate("get image", err)
	}
	return &img, nil
}

func (gdb *GormDB) DeleteImage(ctx context.Context, id uint) error {
	res := gdb.db.WithContext(ctx).Delete(&models.ListingImage{}, id)
	if res.Error != nil {
		return translate("delete image", res.Error)
	}
	if res.RowsAffected == 0 {
		return translate("delete image", gorm.ErrRecordNotFound)
	}
	return nil
}

// Activate applies the subscription changes and records the activation together.
func (gdb *GormDB) Activate(ctx context.Context, id uint, changes map[string]interface{}, rec *models.Activation) error {
	return gdb.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var exists models.Listing
		if err := tx.Select("id").First(&exists, id).Error; err != nil {
			return translate("activate place", err)
		}
		if err := tx.Model(&models.Listing{}).Where("id = ?", id).Updates(changes).Error; err != nil {
			return translate("activate place", err)
		}
		return translate("record activation", tx.Create(rec).Error)
	})
}

func (gdb *GormDB) ListActivations(ctx context.Context, listingID uint) ([]models.Activation, error) {
	var recs []models.Activation
	err := gdb.db.WithContext(ctx).
		Where("listing_id = ?", listingID).
		Order("created_at DESC, id DESC").
		Find(&recs).Error
	return recs, translate("list activations", err)
}

func (gdb *GormDB) ListDeleteLogs(ctx context.Context, limit int) ([]models.DeleteLog, error) {
	var logs []models.DeleteLog
	err := gdb.db.WithContext(ctx).Order("deleted_at DESC, id DESC").Limit(limit).Find(&logs).Error
	return logs, translate("list delete logs", err)
}

func (gdb *GormDB) CountDeleteLogs(ctx context.Context) (int64, error) {
	var n int64
	err := gdb.db.WithContext(ctx).Model(&models.DeleteLog{}).Count(&n).Error
	return n, translate("count delete logs", err)
}

var _ listing.Store = (*GormDB)(nil)
