package scheduler

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/robfig/cron/v3"

	"github.com/ubuygold/puzzlebox/internal/crawler"
	"github.com/ubuygold/puzzlebox/internal/entries"
	"github.com/ubuygold/puzzlebox/internal/model"
	"github.com/ubuygold/puzzlebox/internal/seed"
)

// Crawler is the part of crawler.Crawler the import job needs.
type Crawler interface {
	Run(ctx context.Context) (*crawler.Result, error)
}

type Scheduler struct {
	crawler Crawler
	entries *entries.Service
	logger  *slog.Logger
	c       *cron.Cron
	ctx     context.Context
	cancel  context.CancelFunc
}

func NewScheduler(crawler Crawler, entryService *entries.Service, logger *slog.Logger) *Scheduler {
	logger = logger.With("component", "scheduler")
	cronLogger := cron.PrintfLogger(slog.NewLogLogger(logger.Handler(), slog.LevelInfo))
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		crawler: crawler,
		entries: entryService,
		logger:  logger,
		c:       cron.New(cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger))),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Start schedules the corpus import. An empty spec leaves it disabled.
func (s *Scheduler) Start(spec string) error {
	if spec == "" {
		s.logger.Info("Corpus import schedule not configured, scheduler disabled")
		return nil
	}
	_, err := s.c.AddFunc(spec, func() {
		s.logger.Info("Running scheduled job: crawling and importing riddles.")
		if _, err := s.RunImport(s.ctx); err != nil {
			s.logger.Error("Scheduled import failed", "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("error scheduling import job: %w", err)
	}
	s.c.Start()
	return nil
}

// Stop halts the scheduler, cancels a running import and waits for it to
// return.
func (s *Scheduler) Stop() {
	done := s.c.Stop()
	s.cancel()
	<-done.Done()
}

// RunImport crawls once and stores the newly found pairs as riddles.
func (s *Scheduler) RunImport(ctx context.Context) (*entries.BatchResult, error) {
	result, err := s.crawler.Run(ctx)
	if err != nil {
		return nil, fmt.Errorf("crawl failed: %w", err)
	}
	if len(result.Saved) == 0 {
		s.logger.Info("No new riddles to import")
		return &entries.BatchResult{}, nil
	}

	batch, err := s.entries.AddBatch(ctx, seed.FromPairs(result.Saved, model.CategoryRiddle), nil)
	if err != nil {
		return batch, err
	}
	s.logger.Info("Imported riddles",
		"added", len(batch.Success),
		"duplicates", len(batch.Duplicates),
		"failed", len(batch.Failed),
	)
	return batch, nil
}
