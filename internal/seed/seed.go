package seed

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ubuygold/puzzlebox/internal/corpus"
	"github.com/ubuygold/puzzlebox/internal/db"
	"github.com/ubuygold/puzzlebox/internal/entries"
	"github.com/ubuygold/puzzlebox/internal/model"
)

// Samples is the built-in data used to seed an empty store.
var Samples = []entries.Input{
	{Question: "I'm tall when I'm young, and I'm short when I'm old. What am I?", Answer: "A candle", Category: model.CategoryRiddle},
	{Question: "What has keys but no locks, space but no room, and you can enter but not go in?", Answer: "A keyboard", Category: model.CategoryRiddle},
	{Question: "What has a head, a tail, is brown, and has no legs?", Answer: "A penny", Category: model.CategoryRiddle},
	{Question: "What has an eye but cannot see?", Answer: "A needle", Category: model.CategoryRiddle},
	{Question: "What can travel around the world while staying in a corner?", Answer: "A stamp", Category: model.CategoryRiddle},

	{Question: "Why don't scientists trust atoms?", Answer: "Because they make up everything!", Category: model.CategoryJoke},
	{Question: "Did you hear about the mathematician who's afraid of negative numbers?", Answer: "He'll stop at nothing to avoid them!", Category: model.CategoryJoke},
	{Question: "Why don't skeletons fight each other?", Answer: "They don't have the guts!", Category: model.CategoryJoke},
	{Question: "What do you call a fake noodle?", Answer: "An impasta!", Category: model.CategoryJoke},
	{Question: "Why did the scarecrow win an award?", Answer: "Because he was outstanding in his field!", Category: model.CategoryJoke},

	{Question: "A blessing in disguise", Answer: "Something good that isn't recognized at first", Category: model.CategoryIdiom},
	{Question: "A dime a dozen", Answer: "Something common", Category: model.CategoryIdiom},
	{Question: "Beat around the bush", Answer: "Avoid saying what you mean", Category: model.CategoryIdiom},
	{Question: "Bite the bullet", Answer: "To get something over with", Category: model.CategoryIdiom},
	{Question: "Break a leg", Answer: "Good luck", Category: model.CategoryIdiom},
}

// Result summarises a seeding run.
type Result struct {
	Skipped    bool
	Existing   int64
	Added      int
	Duplicates int
	Failed     int
}

// Run seeds the store when it is empty. With a corpus file, its pairs are
// imported as riddles instead of the built-in samples.
func Run(ctx context.Context, store db.Service, svc *entries.Service, corpusFile string, logger *slog.Logger) (*Result, error) {
	count, err := store.CountEntries(ctx)
	if err != nil {
		return nil, err
	}
	if count > 0 {
		logger.Info("Database already contains entries, skipping seed", "count", count)
		return &Result{Skipped: true, Existing: count}, nil
	}

	inputs := Samples
	if corpusFile != "" {
		pairs, err := corpus.Load(corpusFile)
		if err != nil {
			return nil, err
		}
		inputs = FromPairs(pairs, model.CategoryRiddle)
		logger.Info("Loaded corpus file", "path", corpusFile, "pairs", len(pairs))
	}

	batch, err := svc.AddBatch(ctx, inputs, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to seed database: %w", err)
	}
	result := &Result{
		Added:      len(batch.Success),
		Duplicates: len(batch.Duplicates),
		Failed:     len(batch.Failed),
	}
	for _, f := range batch.Failed {
		logger.Warn("Seed entry rejected", "entry", f.Entry, "reason", f.Reason)
	}
	logger.Info("Database seeded", "added", result.Added, "duplicates", result.Duplicates, "failed", result.Failed)
	return result, nil
}

// FromPairs converts corpus pairs into entry inputs of one category.
func FromPairs(pairs []corpus.Pair, category string) []entries.Input {
	inputs := make([]entries.Input, 0, len(pairs))
	for _, p := range pairs {
		inputs = append(inputs, entries.Input{Question: p.Question, Answer: p.Answer, Category: category})
	}
	return inputs
}
