package db

import (
	"context"
	"errors"
	"fmt"

	"marunose/internal/config"
	"marunose/internal/model"

	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

var (
	// ErrKeyNotFound is returned when no key has the requested id.
	ErrKeyNotFound = errors.New("api key not found")
	// ErrQuotaExhausted is returned by IncrementUsage when the key is inactive,
	// gone, or already at its monthly limit.
	ErrQuotaExhausted = errors.New("api key quota exhausted")
)

// KeyUpdate is a partial update of an API key. Nil fields are left unchanged.
type KeyUpdate struct {
	Name         *string `json:"name"`
	IsActive     *bool   `json:"isActive"`
	MonthlyLimit *int    `json:"monthlyLimit"`
}

func (u KeyUpdate) columns() map[string]interface{} {
	cols := make(map[string]interface{})
	if u.Name != nil {
		cols["name"] = *u.Name
	}
	if u.IsActive != nil {
		cols["is_active"] = *u.IsActive
	}
	if u.MonthlyLimit != nil {
		cols["monthly_limit"] = *u.MonthlyLimit
	}
	return cols
}

// Service is the API key store.
type Service interface {
	GetAllKeys(ctx context.Context) ([]model.APIKey, error)
	GetKey(ctx context.Context, id string) (*model.APIKey, error)
	CreateKey(ctx context.Context, key *model.APIKey) error
	UpdateKey(ctx context.Context, id string, update KeyUpdate) (*model.APIKey, error)
	DeleteKey(ctx context.Context, id string) error
	IncrementUsage(ctx context.Context, id string) (int, error)
	ResetAllUsage(ctx context.Context) (int64, error)
	GetDB() *gorm.DB
	Close() error
}

type service struct {
	db *gorm.DB
}

// NewService opens the configured database and migrates the schema.
func NewService(cfg config.DatabaseConfig) (Service, error) {
	db, err := Init(cfg)
	if err != nil {
		return nil, err
	}
	return &service{db: db}, nil
}

// Init initializes the database connection based on the provided configuration.
func Init(cfg config.DatabaseConfig) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch cfg.Type {
	case "sqlite":
		dialector = sqlite.Open(cfg.DSN)
	case "postgres":
		dialector = postgres.Open(cfg.DSN)
	case "mysql":
		dialector = mysql.Open(cfg.DSN)
	default:
		return nil, fmt.Errorf("unsupported database type: %s", cfg.Type)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if cfg.Type == "sqlite" {
		// An in-memory sqlite database lives on a single connection.
		sqlDB, err := db.DB()
		if err != nil {
			return nil, fmt.Errorf("failed to get sqlite handle: %w", err)
		}
		sqlDB.SetMaxOpenConns(1)
	}

	// Auto-migrate the schema
	err = db.AutoMigrate(&model.APIKey{})
	if err != nil {
		return nil, fmt.Errorf("failed to auto-migrate database: %w", err)
	}

	return db, nil
}

func (s *service) GetDB() *gorm.DB {
	return s.db
}

func (s *service) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// GetAllKeys returns every key, newest first. Ties on created_at are broken by id
// so repeated calls return the same order.
func (s *service) GetAllKeys(ctx context.Context) ([]model.APIKey, error) {
	var keys []model.APIKey
	result := s.db.WithContext(ctx).
		Order("created_at desc").
		Order("id asc").
		Find(&keys)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to load api keys: %w", result.Error)
	}
	return keys, nil
}

func (s *service) GetKey(ctx context.Context, id string) (*model.APIKey, error) {
	var key model.APIKey
	if err := s.db.WithContext(ctx).First(&key, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrKeyNotFound
		}
		return nil, fmt.Errorf("failed to get api key %s: %w", id, err)
	}
	return &key, nil
}

func (s *service) CreateKey(ctx context.Context, key *model.APIKey) error {
	if err := s.db.WithContext(ctx).Create(key).Error; err != nil {
		return fmt.Errorf("failed to create api key: %w", err)
	}
	return nil
}

func (s *service) UpdateKey(ctx context.Context, id string, update KeyUpdate) (*model.APIKey, error) {
	var key model.APIKey
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&key, "id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrKeyNotFound
			}
			return err
		}
		cols := update.columns()
		if len(cols) == 0 {
			return nil
		}
		if err := tx.Model(&model.APIKey{}).Where("id = ?", id).Updates(cols).Error; err != nil {
			return err
		}
		return tx.First(&key, "id = ?", id).Error
	})
	if err != nil {
		if errors.Is(err, ErrKeyNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to update api key %s: %w", id, err)
	}
	return &key, nil
}

// DeleteKey removes a key. Deleting a missing key is not an error.
func (s *service) DeleteKey(ctx context.Context, id string) error {
	result := s.db.WithContext(ctx).Where("id = ?", id).Delete(&model.APIKey{})
	if result.Error != nil {
		return fmt.Errorf("failed to delete api key %s: %w", id, result.Error)
	}
	return nil
}

// IncrementUsage atomically adds one to the usage of an active key that is still
// under its monthly limit and returns the new usage.
func (s *service) IncrementUsage(ctx context.Context, id string) (int, error) {
	var usage int
	usageCol := clause.Column{Name: "usage"}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&model.APIKey{}).
			Where("id = ? AND is_active = ?", id, true).
			Where("? < ?", usageCol, clause.Column{Name: "monthly_limit"}).
			UpdateColumn("usage", gorm.Expr("? + 1", usageCol))
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return ErrQuotaExhausted
		}

		var key model.APIKey
		if err := tx.First(&key, "id = ?", id).Error; err != nil {
			return err
		}
		usage = key.Usage
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrQuotaExhausted) {
			return 0, err
		}
		return 0, fmt.Errorf("failed to increment usage for api key %s: %w", id, err)
	}
	return usage, nil
}

// ResetAllUsage sets the usage of every key back to 0 and reports how many changed.
func (s *service) ResetAllUsage(ctx context.Context) (int64, error) {
	result := s.db.WithContext(ctx).Model(&model.APIKey{}).
		Where("? > 0", clause.Column{Name: "usage"}).
		UpdateColumn("usage", 0)
	if result.Error != nil {
		return 0, fmt.Errorf("failed to reset all api key usage: %w", result.Error)
	}
	return result.RowsAffected, nil
}
