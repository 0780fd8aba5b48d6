package migrate

import (
	"context"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/ubuygold/puzzlebox/internal/config"
	"github.com/ubuygold/puzzlebox/internal/db"
	"github.com/ubuygold/puzzlebox/internal/logger"
	"github.com/ubuygold/puzzlebox/internal/model"
)

var discard = logger.NewWithWriter(io.Discard, false)

func openLegacy(t *testing.T, contents [][2]string) *gorm.DB {
	t.Helper()
	gdb, err := db.Open(config.DatabaseConfig{Type: "sqlite", DSN: "file::memory:"})
	require.NoError(t, err)
	require.NoError(t, gdb.Exec(`CREATE TABLE data_entries (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		content TEXT NOT NULL,
		category VARCHAR(10) NOT NULL,
		created_at DATETIME
	)`).Error)
	for _, c := range contents {
		require.NoError(t, gdb.Exec("INSERT INTO data_entries (content, category) VALUES (?, ?)", c[0], c[1]).Error)
	}
	return gdb
}

type migratedRow struct {
	ID          uint
	Question    string
	Answer      string
	ContentHash string
}

func TestSplit(t *testing.T) {
	tests := []struct {
		content, category string
		question, answer  string
	}{
		{"What has an eye but cannot see? A needle", "riddle", "What has an eye but cannot see?", "A needle"},
		{"Why? Because? Yes", "joke", "Why?", "Because? Yes"},
		{"No question mark here", "riddle", "No question mark here", noAnswer},
		{"Break a leg - Good luck", "idiom", "Break a leg", "Good luck"},
		{"Bite the bullet", "idiom", "Bite the bullet", noMeaning},
		{"Something else", "brain_teaser", "Something else", ""},
	}
	for _, tt := range tests {
		t.Run(tt.content, func(t *testing.T) {
			q, a := Split(tt.content, tt.category)
			assert.Equal(t, tt.question, q)
			assert.Equal(t, tt.answer, a)
		})
	}
}

func TestLegacy(t *testing.T) {
	gdb := openLegacy(t, [][2]string{
		{"What has an eye but cannot see? A needle", "riddle"},
		{"Break a leg - Good luck", "idiom"},
		{"Plain joke", "joke"},
		{"What has an eye but cannot see?A needle", "riddle"},
	})

	result, err := Legacy(context.Background(), gdb, discard)
	require.NoError(t, err)
	assert.Equal(t, 3, result.Migrated)
	assert.Equal(t, 1, result.Removed)

	var rows []migratedRow
	require.NoError(t, gdb.Table("data_entries").Select("id, question, answer, content_hash").Order("id").Scan(&rows).Error)
	require.Len(t, rows, 3)
	assert.Equal(t, "What has an eye but cannot see?", rows[0].Question)
	assert.Equal(t, "A needle", rows[0].Answer)
	assert.Equal(t, model.Fingerprint(rows[0].Question, rows[0].Answer), rows[0].ContentHash)
	assert.Equal(t, "Break a leg", rows[1].Question)
	assert.Equal(t, "Good luck", rows[1].Answer)
	assert.Equal(t, noAnswer, rows[2].Answer)

	assert.False(t, gdb.Migrator().HasColumn(&model.Entry{}, "content"))

	again, err := Legacy(context.Background(), gdb, discard)
	require.NoError(t, err)
	assert.True(t, again.AlreadyMigrated)
}

func TestLegacy_AcceptsNewEntriesAfterwards(t *testing.T) {
	gdb := openLegacy(t, [][2]string{
		{"What has an eye but cannot see? A needle", "riddle"},
	})
	require.NoError(t, gdb.Exec("UPDATE data_entries SET created_at = ? WHERE id = 1", "2023-05-01 10:00:00").Error)

	_, err := Legacy(context.Background(), gdb, discard)
	require.NoError(t, err)
	require.NoError(t, gdb.AutoMigrate(&model.Entry{}, &model.APIKey{}))

	store := db.NewServiceFromDB(gdb)
	ctx := context.Background()
	entry := &model.Entry{
		Question:    "What can travel around the world while staying in a corner?",
		Answer:      "A stamp",
		Category:    model.CategoryRiddle,
		ContentHash: model.Fingerprint("What can travel around the world while staying in a corner?", "A stamp"),
	}
	require.NoError(t, store.CreateEntry(ctx, entry))
	assert.Greater(t, entry.ID, uint(1))

	existing, err := store.FindEntryByHash(ctx, model.Fingerprint("What has an eye but cannot see?", "A needle"))
	require.NoError(t, err)
	assert.Equal(t, uint(1), existing.ID)
	assert.Equal(t, 2023, existing.CreatedAt.Year())

	count, err := store.CountEntries(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)
}

func TestLegacy_NoTable(t *testing.T) {
	gdb, err := db.Open(config.DatabaseConfig{Type: "sqlite", DSN: "file::memory:"})
	require.NoError(t, err)

	_, err = Legacy(context.Background(), gdb, discard)
	assert.ErrorIs(t, err, ErrNoTable)
}

func TestLegacy_CurrentSchema(t *testing.T) {
	gdb, err := db.Init(config.DatabaseConfig{Type: "sqlite", DSN: "file::memory:"})
	require.NoError(t, err)

	result, err := Legacy(context.Background(), gdb, discard)
	require.NoError(t, err)
	assert.True(t, result.AlreadyMigrated)
}
