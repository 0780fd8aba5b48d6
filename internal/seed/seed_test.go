package seed

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ubuygold/puzzlebox/internal/config"
	"github.com/ubuygold/puzzlebox/internal/db"
	"github.com/ubuygold/puzzlebox/internal/entries"
	"github.com/ubuygold/puzzlebox/internal/logger"
)

func setup(t *testing.T) (db.Service, *entries.Service) {
	t.Helper()
	cfg := &config.Config{}
	cfg.SetDefaults()
	store, err := db.NewService(config.DatabaseConfig{Type: "sqlite", DSN: "file::memory:"})
	require.NoError(t, err)
	return store, entries.NewService(store, cfg.Categories, logger.NewWithWriter(io.Discard, false))
}

func TestRun_Samples(t *testing.T) {
	store, svc := setup(t)
	log := logger.NewWithWriter(io.Discard, false)
	ctx := context.Background()

	result, err := Run(ctx, store, svc, "", log)
	require.NoError(t, err)
	assert.Equal(t, len(Samples), result.Added)
	assert.Zero(t, result.Failed)

	count, err := store.CountEntries(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(15), count)

	result, err = Run(ctx, store, svc, "", log)
	require.NoError(t, err)
	assert.True(t, result.Skipped)
	assert.Equal(t, int64(15), result.Existing)
}

func TestRun_CorpusFile(t *testing.T) {
	store, svc := setup(t)
	ctx := context.Background()

	path := filepath.Join(t.TempDir(), "riddle.txt")
	content := "问题：什么东西越洗越脏？\n答案:水\n---\n问题：有头没有颈\n答案:鱼\n---\n问题：什么东西越洗越脏？\n答案:水\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	result, err := Run(ctx, store, svc, path, logger.NewWithWriter(io.Discard, false))
	require.NoError(t, err)
	assert.Equal(t, 2, result.Added)
	assert.Equal(t, 1, result.Duplicates)

	sample, err := store.RandomEntries(ctx, 10, "riddle")
	require.NoError(t, err)
	assert.Len(t, sample, 2)
}

func TestSamplesAreValid(t *testing.T) {
	assert.Len(t, Samples, 15)
	seen := map[string]bool{}
	for _, s := range Samples {
		assert.NotEmpty(t, s.Question)
		assert.NotEmpty(t, s.Answer)
		assert.False(t, seen[s.Question], s.Question)
		seen[s.Question] = true
	}
}
