package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/ubuygold/puzzlebox/internal/config"
	"github.com/ubuygold/puzzlebox/internal/model"
)

var (
	// ErrNotFound is returned when a lookup matches no row.
	ErrNotFound = errors.New("record not found")
	// ErrDuplicate is returned when an insert hits the content_hash unique constraint.
	ErrDuplicate = errors.New("duplicate entry")
)

// InsertStatus classifies what happened to one item of a batch insert.
type InsertStatus int

const (
	InsertCreated InsertStatus = iota
	InsertDuplicate
	InsertFailed
)

// InsertOutcome is the per-item result of InsertBatch.
type InsertOutcome struct {
	Status     InsertStatus
	Entry      *model.Entry
	ExistingID uint
	Err        error
}

// Service is the storage interface used by the rest of the application.
type Service interface {
	CreateEntry(ctx context.Context, entry *model.Entry) error
	FindEntryByHash(ctx context.Context, hash string) (*model.Entry, error)
	RandomEntries(ctx context.Context, count int, category string) ([]model.Entry, error)
	ListEntries(ctx context.Context, category string, page, pageSize int) ([]model.Entry, int64, error)
	CountEntries(ctx context.Context) (int64, error)
	InsertBatch(ctx context.Context, entries []*model.Entry) ([]InsertOutcome, error)

	CreateAPIKey(ctx context.Context, key *model.APIKey) error
	ListAPIKeys(ctx context.Context) ([]model.APIKey, error)
	GetAPIKey(ctx context.Context, id uint) (*model.APIKey, error)
	ToggleAPIKey(ctx context.Context, id uint) (*model.APIKey, error)
	FindActiveAPIKey(ctx context.Context, key string) (*model.APIKey, error)
	TouchAPIKey(ctx context.Context, id uint, at time.Time) error

	GetDB() *gorm.DB
}

type service struct {
	db *gorm.DB
	// commitHook runs inside the batch transaction right before commit.
	commitHook func(tx *gorm.DB) error
}

// Open connects to the configured database without touching the schema.
func Open(cfg config.DatabaseConfig) (*gorm.DB, error) {
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
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if cfg.Type == "sqlite" {
		// SQLite serialises writers anyway; a single connection also keeps
		// in-memory databases alive for the life of the pool.
		sqlDB, err := db.DB()
		if err != nil {
			return nil, fmt.Errorf("failed to access sqlite pool: %w", err)
		}
		sqlDB.SetMaxOpenConns(1)
	}
	return db, nil
}

// Init opens the database and auto-migrates the schema.
func Init(cfg config.DatabaseConfig) (*gorm.DB, error) {
	db, err := Open(cfg)
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(&model.Entry{}, &model.APIKey{}); err != nil {
		return nil, fmt.Errorf("failed to auto-migrate database: %w", err)
	}
	return db, nil
}

// NewService initializes the database and returns a Service backed by it.
func NewService(cfg config.DatabaseConfig) (Service, error) {
	db, err := Init(cfg)
	if err != nil {
		return nil, err
	}
	return &service{db: db}, nil
}

// NewServiceFromDB wraps an already migrated connection.
func NewServiceFromDB(db *gorm.DB) Service {
	return &service{db: db}
}

func (s *service) GetDB() *gorm.DB {
	return s.db
}

func (s *service) CreateEntry(ctx context.Context, entry *model.Entry) error {
	if err := s.db.WithContext(ctx).Create(entry).Error; err != nil {
		if isDuplicate(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("failed to create entry: %w", err)
	}
	return nil
}

func (s *service) FindEntryByHash(ctx context.Context, hash string) (*model.Entry, error) {
	return findEntryByHash(s.db.WithContext(ctx), hash)
}

func findEntryByHash(db *gorm.DB, hash string) (*model.Entry, error) {
	var entry model.Entry
	if err := db.Where("content_hash = ?", hash).First(&entry).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to look up entry by hash: %w", err)
	}
	return &entry, nil
}

// RandomEntries returns up to count entries in random order. A count larger
// than the matching population returns the whole population.
func (s *service) RandomEntries(ctx context.Context, count int, category string) ([]model.Entry, error) {
	entries := []model.Entry{}
	if count <= 0 {
		return entries, nil
	}

	query := s.db.WithContext(ctx).Model(&model.Entry{})
	if category != "" {
		query = query.Where("category = ?", category)
	}
	if err := query.Order(s.randomFunc()).Limit(count).Find(&entries).Error; err != nil {
		return nil, fmt.Errorf("failed to load random entries: %w", err)
	}
	return entries, nil
}

func (s *service) randomFunc() string {
	if s.db.Dialector.Name() == "mysql" {
		return "RAND()"
	}
	return "RANDOM()"
}

// ListEntries returns one page of entries, newest first, and the total
// number of matching entries. Pages past the end are empty.
func (s *service) ListEntries(ctx context.Context, category string, page, pageSize int) ([]model.Entry, int64, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}

	query := s.db.WithContext(ctx).Model(&model.Entry{})
	if category != "" {
		query = query.Where("category = ?", category)
	}
	query = query.Session(&gorm.Session{})

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count entries: %w", err)
	}

	entries := []model.Entry{}
	err := query.
		Order("created_at DESC").
		Order("id DESC").
		Limit(pageSize).
		Offset((page - 1) * pageSize).
		Find(&entries).Error
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list entries: %w", err)
	}
	return entries, total, nil
}

func (s *service) CountEntries(ctx context.Context) (int64, error) {
	var total int64
	if err := s.db.WithContext(ctx).Model(&model.Entry{}).Count(&total).Error; err != nil {
		return 0, fmt.Errorf("failed to count entries: %w", err)
	}
	return total, nil
}

// InsertBatch inserts all entries inside one transaction. Each item runs
// under its own savepoint so a failing item does not poison the others.
// If the transaction itself cannot be committed, nothing is persisted and
// the error is returned; the outcomes are then meaningless.
func (s *service) InsertBatch(ctx context.Context, entries []*model.Entry) ([]InsertOutcome, error) {
	outcomes := make([]InsertOutcome, len(entries))

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for i, entry := range entries {
			outcomes[i] = insertOne(tx, fmt.Sprintf("entry_%d", i), entry)
		}
		if s.commitHook != nil {
			return s.commitHook(tx)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to commit batch: %w", err)
	}
	return outcomes, nil
}

func insertOne(tx *gorm.DB, savepoint string, entry *model.Entry) InsertOutcome {
	if existing, err := findEntryByHash(tx, entry.ContentHash); err == nil {
		return InsertOutcome{Status: InsertDuplicate, Entry: entry, ExistingID: existing.ID}
	} else if !errors.Is(err, ErrNotFound) {
		return InsertOutcome{Status: InsertFailed, Entry: entry, Err: err}
	}

	if err := tx.SavePoint(savepoint).Error; err != nil {
		return InsertOutcome{Status: InsertFailed, Entry: entry, Err: err}
	}
	if err := tx.Create(entry).Error; err != nil {
		if rbErr := tx.RollbackTo(savepoint).Error; rbErr != nil {
			return InsertOutcome{Status: InsertFailed, Entry: entry, Err: rbErr}
		}
		if isDuplicate(err) {
			if existing, lookupErr := findEntryByHash(tx, entry.ContentHash); lookupErr == nil {
				return InsertOutcome{Status: InsertDuplicate, Entry: entry, ExistingID: existing.ID}
			}
			return InsertOutcome{Status: InsertDuplicate, Entry: entry}
		}
		return InsertOutcome{Status: InsertFailed, Entry: entry, Err: err}
	}
	return InsertOutcome{Status: InsertCreated, Entry: entry}
}

func (s *service) CreateAPIKey(ctx context.Context, key *model.APIKey) error {
	if err := s.db.WithContext(ctx).Create(key).Error; err != nil {
		return fmt.Errorf("failed to create api key: %w", err)
	}
	return nil
}

func (s *service) ListAPIKeys(ctx context.Context) ([]model.APIKey, error) {
	keys := []model.APIKey{}
	if err := s.db.WithContext(ctx).Order("id ASC").Find(&keys).Error; err != nil {
		return nil, fmt.Errorf("failed to list api keys: %w", err)
	}
	return keys, nil
}

func (s *service) GetAPIKey(ctx context.Context, id uint) (*model.APIKey, error) {
	var key model.APIKey
	if err := s.db.WithContext(ctx).First(&key, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get api key: %w", err)
	}
	return &key, nil
}

// ToggleAPIKey flips is_active for the key and returns the updated row.
func (s *service) ToggleAPIKey(ctx context.Context, id uint) (*model.APIKey, error) {
	var key model.APIKey
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&key, id).Error; err != nil {
			return err
		}
		key.IsActive = !key.IsActive
		return tx.Model(&key).Update("is_active", key.IsActive).Error
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to toggle api key: %w", err)
	}
	return &key, nil
}

// FindActiveAPIKey returns the active key matching the token. Inactive and
// unknown tokens both yield ErrNotFound.
func (s *service) FindActiveAPIKey(ctx context.Context, key string) (*model.APIKey, error) {
	var apiKey model.APIKey
	err := s.db.WithContext(ctx).
		Where(&model.APIKey{Key: key, IsActive: true}).
		First(&apiKey).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to look up api key: %w", err)
	}
	return &apiKey, nil
}

func (s *service) TouchAPIKey(ctx context.Context, id uint, at time.Time) error {
	result := s.db.WithContext(ctx).Model(&model.APIKey{}).Where("id = ?", id).Update("last_used_at", at)
	if result.Error != nil {
		return fmt.Errorf("failed to update last used time for api key %d: %w", id, result.Error)
	}
	return nil
}

func isDuplicate(err error) bool {
	return errors.Is(err, gorm.ErrDuplicatedKey)
}
