// Package migrate upgrades a legacy data_entries table, where every entry was
// a single content column, to the question/answer schema.
package migrate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/ubuygold/puzzlebox/internal/model"
)

const (
	noAnswer  = "No answer provided"
	noMeaning = "No meaning provided"
)

// ErrNoTable is returned when there is no data_entries table to upgrade.
var ErrNoTable = errors.New("data_entries table not found, nothing to migrate")

// legacyEntry maps the columns read from the old table.
type legacyEntry struct {
	ID        uint
	Content   string
	Category  string
	CreatedAt *time.Time
}

func (legacyEntry) TableName() string {
	return "data_entries"
}

// Result summarises a migration run.
type Result struct {
	AlreadyMigrated bool
	Migrated        int
	Removed         int
}

// Split divides legacy content into question and answer. Riddles and jokes
// split at the first "?" (kept on the question), idioms at the first "-".
// The split is heuristic and lossy when the delimiter appears more than once.
func Split(content, category string) (question, answer string) {
	switch category {
	case model.CategoryRiddle, model.CategoryJoke:
		if q, a, ok := strings.Cut(content, "?"); ok {
			return strings.TrimSpace(q) + "?", strings.TrimSpace(a)
		}
		return content, noAnswer
	case model.CategoryIdiom:
		if q, a, ok := strings.Cut(content, "-"); ok {
			return strings.TrimSpace(q), strings.TrimSpace(a)
		}
		return content, noMeaning
	default:
		return content, ""
	}
}

// Legacy rebuilds a content-only data_entries table with the current schema,
// splitting every row into question and answer, all in one transaction. Ids
// and creation times are kept. Rows whose split yields a fingerprint already
// taken by a lower id are dropped.
func Legacy(ctx context.Context, db *gorm.DB, logger *slog.Logger) (*Result, error) {
	migrator := db.WithContext(ctx).Migrator()
	if !migrator.HasTable(&legacyEntry{}) {
		return nil, ErrNoTable
	}
	if !migrator.HasColumn(&legacyEntry{}, "Content") ||
		(migrator.HasColumn(&model.Entry{}, "Question") && migrator.HasColumn(&model.Entry{}, "Answer")) {
		logger.Info("Database already has question and answer columns, no migration needed")
		return &Result{AlreadyMigrated: true}, nil
	}

	columns := []string{"id", "content", "category"}
	if migrator.HasColumn(&legacyEntry{}, "CreatedAt") {
		columns = append(columns, "created_at")
	}

	result := &Result{}
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var rows []legacyEntry
		if err := tx.Select(columns).Order("id").Find(&rows).Error; err != nil {
			return fmt.Errorf("failed to read legacy entries: %w", err)
		}

		migrated := make([]model.Entry, 0, len(rows))
		seen := make(map[string]uint, len(rows))
		for _, row := range rows {
			question, answer := Split(row.Content, row.Category)
			hash := model.Fingerprint(question, answer)
			if first, ok := seen[hash]; ok {
				logger.Warn("Dropping duplicate legacy entry", "id", row.ID, "duplicate_of", first)
				result.Removed++
				continue
			}
			seen[hash] = row.ID

			entry := model.Entry{
				ID:          row.ID,
				Question:    question,
				Answer:      answer,
				Category:    row.Category,
				ContentHash: hash,
			}
			if row.CreatedAt != nil {
				entry.CreatedAt = *row.CreatedAt
			}
			migrated = append(migrated, entry)
		}

		m := tx.Migrator()
		if err := m.DropTable(&legacyEntry{}); err != nil {
			return fmt.Errorf("failed to drop legacy table: %w", err)
		}
		if err := m.AutoMigrate(&model.Entry{}); err != nil {
			return fmt.Errorf("failed to create entries table: %w", err)
		}
		if len(migrated) > 0 {
			if err := tx.CreateInBatches(migrated, 100).Error; err != nil {
				return fmt.Errorf("failed to write migrated entries: %w", err)
			}
		}
		result.Migrated = len(migrated)
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Info("Legacy entries migrated", "migrated", result.Migrated, "removed", result.Removed)
	return result, nil
}
