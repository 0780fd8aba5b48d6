// Package crawler collects children's riddles from cmiyu.com style listing
// pages and appends them to the flat corpus file.
package crawler

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/ubuygold/puzzlebox/internal/config"
	"github.com/ubuygold/puzzlebox/internal/corpus"
)

const requestTimeout = 10 * time.Second

var browserHeaders = map[string]string{
	"User-Agent":      "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.114 Safari/537.36",
	"Accept":          "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,*/*;q=0.8",
	"Accept-Language": "zh-CN,zh;q=0.9,en;q=0.8",
}

// Crawler fetches riddle pages and saves the pairs it finds.
type Crawler struct {
	client *resty.Client
	cfg    config.CrawlerConfig
	logger *slog.Logger
}

// Result summarises one crawl.
type Result struct {
	Pages   int
	Skipped int
	Failed  int
	Found   int
	Saved   []corpus.Pair
}

// New creates a crawler for the configured site.
func New(cfg config.CrawlerConfig, logger *slog.Logger) *Crawler {
	client := resty.New().
		SetTimeout(requestTimeout).
		SetHeaders(browserHeaders)
	return &Crawler{
		client: client,
		cfg:    cfg,
		logger: logger.With("component", "crawler"),
	}
}

// Run crawls every listing page not yet visited. Pairs are deduplicated
// against the corpus file and appended page by page, so an interrupted run
// keeps what it already saved.
func (c *Crawler) Run(ctx context.Context) (*Result, error) {
	visited, err := loadVisited(c.cfg.VisitedFile)
	if err != nil {
		return nil, err
	}
	existing, err := corpus.Load(c.cfg.OutputFile)
	if err != nil {
		return nil, err
	}

	urls, err := c.PageURLs(ctx)
	if err != nil {
		return nil, err
	}
	if len(urls) == 0 {
		c.logger.Warn("No riddle pages found, the site layout may have changed")
		return &Result{}, nil
	}
	c.logger.Info("Found riddle pages", "count", len(urls))

	result := &Result{}
	first := true
	for i, pageURL := range urls {
		if _, ok := visited[pageURL]; ok {
			result.Skipped++
			continue
		}
		if !first {
			if err := c.wait(ctx); err != nil {
				return result, err
			}
		}
		first = false

		c.logger.Info("Crawling page", "index", i+1, "total", len(urls), "url", pageURL)
		pairs, err := c.crawlPage(ctx, pageURL)
		if err != nil {
			if ctx.Err() != nil {
				return result, ctx.Err()
			}
			c.logger.Warn("Failed to crawl page", "url", pageURL, "error", err)
			result.Failed++
			continue
		}
		result.Pages++
		result.Found += len(pairs)

		unique := corpus.Dedupe(existing, pairs)
		if err := corpus.Append(c.cfg.OutputFile, unique); err != nil {
			return result, err
		}
		existing = append(existing, unique...)
		result.Saved = append(result.Saved, unique...)

		if err := markVisited(c.cfg.VisitedFile, pageURL); err != nil {
			return result, err
		}
		visited[pageURL] = struct{}{}
	}

	c.logger.Info("Crawl finished",
		"pages", result.Pages,
		"skipped", result.Skipped,
		"failed", result.Failed,
		"found", result.Found,
		"saved", len(result.Saved),
	)
	return result, nil
}

// PageURLs returns the absolute URLs of the listing pages linked from the
// index page.
func (c *Crawler) PageURLs(ctx context.Context) ([]string, error) {
	indexURL, err := c.indexURL()
	if err != nil {
		return nil, err
	}
	body, err := c.fetch(ctx, indexURL.String())
	if err != nil {
		return nil, fmt.Errorf("failed to fetch index page: %w", err)
	}
	links, err := Links(body)
	if err != nil {
		return nil, fmt.Errorf("failed to parse index page: %w", err)
	}

	seen := make(map[string]struct{})
	var urls []string
	for _, href := range links {
		ref, err := url.Parse(strings.TrimSpace(href))
		if err != nil {
			continue
		}
		abs := indexURL.ResolveReference(ref)
		abs.Fragment = ""
		if abs.Host != indexURL.Host || !strings.Contains(abs.Path, c.cfg.IndexPath) {
			continue
		}
		if abs.String() == indexURL.String() {
			continue
		}
		if _, ok := seen[abs.String()]; ok {
			continue
		}
		seen[abs.String()] = struct{}{}
		urls = append(urls, abs.String())
	}
	return urls, nil
}

func (c *Crawler) indexURL() (*url.URL, error) {
	base, err := url.Parse(c.cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid crawler base url: %w", err)
	}
	return base.ResolveReference(&url.URL{Path: c.cfg.IndexPath}), nil
}

func (c *Crawler) crawlPage(ctx context.Context, pageURL string) ([]corpus.Pair, error) {
	body, err := c.fetch(ctx, pageURL)
	if err != nil {
		return nil, err
	}
	text, err := PageText(body)
	if err != nil {
		return nil, err
	}
	return Extract(text), nil
}

func (c *Crawler) fetch(ctx context.Context, target string) (string, error) {
	resp, err := c.client.R().SetContext(ctx).Get(target)
	if err != nil {
		return "", err
	}
	if resp.StatusCode() != http.StatusOK {
		return "", fmt.Errorf("unexpected status %s", resp.Status())
	}
	return Decode(resp.Body()), nil
}

func (c *Crawler) wait(ctx context.Context) error {
	lo, hi := c.cfg.MinDelay, c.cfg.MaxDelay
	if hi < lo {
		hi = lo
	}
	seconds := lo + rand.Float64()*(hi-lo)
	if seconds <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(time.Duration(seconds * float64(time.Second)))
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func loadVisited(path string) (map[string]struct{}, error) {
	visited := make(map[string]struct{})
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return visited, nil
		}
		return nil, fmt.Errorf("failed to open visited file: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		if line := strings.TrimSpace(scanner.Text()); line != "" {
			visited[line] = struct{}{}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read visited file: %w", err)
	}
	return visited, nil
}

func markVisited(path, pageURL string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create visited file directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open visited file: %w", err)
	}
	defer f.Close()
	if _, err := f.WriteString(pageURL + "\n"); err != nil {
		return fmt.Errorf("failed to write visited file: %w", err)
	}
	return nil
}
