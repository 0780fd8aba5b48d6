package entries

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/ubuygold/puzzlebox/internal/config"
	"github.com/ubuygold/puzzlebox/internal/db"
	"github.com/ubuygold/puzzlebox/internal/model"
)

const (
	// DefaultPageSize is the number of entries per browse page.
	DefaultPageSize = 20
	// TextSeparator splits a bulk text blob into items.
	TextSeparator = "---"
)

var (
	// ErrValidation marks input that failed validation. Use errors.As with
	// *ValidationError to get the reason.
	ErrValidation = errors.New("validation failed")
	// ErrDuplicate marks an insert whose fingerprint already exists.
	ErrDuplicate = errors.New("duplicate entry")
)

// ValidationError describes why an input was rejected.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string { return e.Reason }

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// DuplicateError carries the id of the entry that already holds the fingerprint.
type DuplicateError struct {
	ExistingID uint
}

func (e *DuplicateError) Error() string {
	return fmt.Sprintf("entry already exists with id %d", e.ExistingID)
}

func (e *DuplicateError) Is(target error) bool { return target == ErrDuplicate }

// Input is the normalized shape every insertion path is reduced to.
type Input struct {
	Question string `json:"question" validate:"required"`
	Answer   string `json:"answer" validate:"required"`
	Category string `json:"category" validate:"required"`
}

// Normalize trims both fields and lowercases the category.
func (in Input) Normalize() Input {
	return Input{
		Question: strings.TrimSpace(in.Question),
		Answer:   strings.TrimSpace(in.Answer),
		Category: strings.ToLower(strings.TrimSpace(in.Category)),
	}
}

// FailedItem is a batch item that could not be inserted.
type FailedItem struct {
	Entry  any    `json:"entry"`
	Reason string `json:"reason"`
}

// DuplicateItem is a batch item whose fingerprint already exists.
type DuplicateItem struct {
	Entry      any  `json:"entry"`
	ExistingID uint `json:"existing_id"`
}

// BatchResult partitions the items of a batch insert.
type BatchResult struct {
	Success    []model.Entry   `json:"success"`
	Failed     []FailedItem    `json:"failed"`
	Duplicates []DuplicateItem `json:"duplicates"`
}

func newBatchResult() *BatchResult {
	return &BatchResult{
		Success:    []model.Entry{},
		Failed:     []FailedItem{},
		Duplicates: []DuplicateItem{},
	}
}

// TextResult holds the aggregate counts of a bulk text insert.
type TextResult struct {
	Success    int `json:"success"`
	Duplicates int `json:"duplicates"`
	Failed     int `json:"failed"`
}

// Page is one slice of the recency-ordered listing.
type Page struct {
	Entries    []model.Entry `json:"entries"`
	Category   string        `json:"category"`
	Page       int           `json:"page"`
	PageSize   int           `json:"page_size"`
	Total      int64         `json:"total"`
	TotalPages int           `json:"total_pages"`
}

// HasPrev reports whether a previous page exists.
func (p *Page) HasPrev() bool { return p.Page > 1 }

// HasNext reports whether a following page exists.
func (p *Page) HasNext() bool { return p.Page < p.TotalPages }

// Service implements the query surface on top of the store.
type Service struct {
	store      db.Service
	validate   *validator.Validate
	categories config.CategoryConfig
	logger     *slog.Logger
}

// NewService creates the entry service. categories must already carry defaults.
func NewService(store db.Service, categories config.CategoryConfig, logger *slog.Logger) *Service {
	return &Service{
		store:      store,
		validate:   validator.New(),
		categories: categories,
		logger:     logger.With("component", "entries"),
	}
}

// APICategories returns the categories accepted by the JSON API.
func (s *Service) APICategories() []string { return s.categories.API }

// FormCategories returns the categories accepted by the bulk text form.
func (s *Service) FormCategories() []string { return s.categories.Form }

// validateInput normalizes in and checks it against the allowed categories.
func (s *Service) validateInput(in Input, allowed []string) (Input, error) {
	in = in.Normalize()
	if err := s.validate.Struct(in); err != nil {
		return in, &ValidationError{Reason: "question, answer and category are required and cannot be empty"}
	}
	if err := s.validate.Var(in.Category, "oneof="+strings.Join(allowed, " ")); err != nil {
		return in, &ValidationError{Reason: "invalid category, must be one of: " + strings.Join(allowed, ", ")}
	}
	return in, nil
}

func toEntry(in Input) *model.Entry {
	return &model.Entry{
		Question:    in.Question,
		Answer:      in.Answer,
		Category:    in.Category,
		ContentHash: model.Fingerprint(in.Question, in.Answer),
	}
}

// Add validates and inserts a single entry. A duplicate fingerprint yields a
// *DuplicateError and leaves the store untouched.
func (s *Service) Add(ctx context.Context, in Input) (*model.Entry, error) {
	in, err := s.validateInput(in, s.categories.API)
	if err != nil {
		return nil, err
	}

	entry := toEntry(in)
	if existing, err := s.store.FindEntryByHash(ctx, entry.ContentHash); err == nil {
		return nil, &DuplicateError{ExistingID: existing.ID}
	} else if !errors.Is(err, db.ErrNotFound) {
		return nil, err
	}

	if err := s.store.CreateEntry(ctx, entry); err != nil {
		if errors.Is(err, db.ErrDuplicate) {
			// Lost a race with a concurrent writer of the same content.
			dup := &DuplicateError{}
			if existing, lookupErr := s.store.FindEntryByHash(ctx, entry.ContentHash); lookupErr == nil {
				dup.ExistingID = existing.ID
			}
			return nil, dup
		}
		return nil, err
	}

	s.logger.Info("Entry added", "id", entry.ID, "category", entry.Category)
	return entry, nil
}

// AddBatch inserts items in a single transaction. raw holds the items as
// received and is echoed back in failed and duplicate results; it may be nil.
// When the transaction cannot be committed, every item is reported failed and
// the commit error is returned alongside the result.
func (s *Service) AddBatch(ctx context.Context, items []Input, raw []any) (*BatchResult, error) {
	return s.addBatch(ctx, items, raw, nil)
}

// addBatch is AddBatch with items that already failed decoding; invalid maps
// their indexes to the decode reason.
func (s *Service) addBatch(ctx context.Context, items []Input, raw []any, invalid map[int]string) (*BatchResult, error) {
	result := newBatchResult()
	echo := func(i int) any {
		if i < len(raw) {
			return raw[i]
		}
		return items[i]
	}

	var pending []*model.Entry
	var pendingIdx []int
	for i, item := range items {
		if reason, ok := invalid[i]; ok {
			result.Failed = append(result.Failed, FailedItem{Entry: echo(i), Reason: reason})
			continue
		}
		in, err := s.validateInput(item, s.categories.API)
		if err != nil {
			result.Failed = append(result.Failed, FailedItem{Entry: echo(i), Reason: err.Error()})
			continue
		}
		pending = append(pending, toEntry(in))
		pendingIdx = append(pendingIdx, i)
	}

	if len(pending) == 0 {
		return result, nil
	}

	outcomes, err := s.store.InsertBatch(ctx, pending)
	if err != nil {
		s.logger.Error("Failed to commit batch entries", "error", err, "items", len(items))
		failed := newBatchResult()
		for i := range items {
			failed.Failed = append(failed.Failed, FailedItem{Entry: echo(i), Reason: err.Error()})
		}
		return failed, err
	}

	for j, outcome := range outcomes {
		i := pendingIdx[j]
		switch outcome.Status {
		case db.InsertCreated:
			result.Success = append(result.Success, *outcome.Entry)
		case db.InsertDuplicate:
			result.Duplicates = append(result.Duplicates, DuplicateItem{Entry: echo(i), ExistingID: outcome.ExistingID})
		default:
			result.Failed = append(result.Failed, FailedItem{Entry: echo(i), Reason: outcome.Err.Error()})
		}
	}

	s.logger.Info("Batch processed",
		"success", len(result.Success),
		"duplicates", len(result.Duplicates),
		"failed", len(result.Failed))
	return result, nil
}

// ParseText splits a bulk text blob into inputs of the given category. Items
// without the category label are counted as malformed and not returned.
func (s *Service) ParseText(blob, category string) ([]Input, int) {
	label := s.categories.Labels[category]
	var inputs []Input
	malformed := 0
	for _, item := range strings.Split(blob, TextSeparator) {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		question, answer, ok := strings.Cut(item, label)
		if !ok || label == "" {
			malformed++
			continue
		}
		inputs = append(inputs, Input{Question: question, Answer: answer, Category: category})
	}
	return inputs, malformed
}

// AddText inserts the items of a bulk text blob and reports aggregate counts.
func (s *Service) AddText(ctx context.Context, blob, category string) (*TextResult, error) {
	category = strings.ToLower(strings.TrimSpace(category))
	if strings.TrimSpace(blob) == "" {
		return nil, &ValidationError{Reason: "batch entries cannot be empty"}
	}
	if err := s.validate.Var(category, "required,oneof="+strings.Join(s.categories.Form, " ")); err != nil {
		return nil, &ValidationError{Reason: "invalid category"}
	}

	inputs, malformed := s.ParseText(blob, category)
	batch, err := s.AddBatch(ctx, inputs, nil)
	if err != nil {
		return &TextResult{Failed: malformed + len(inputs)}, err
	}
	return &TextResult{
		Success:    len(batch.Success),
		Duplicates: len(batch.Duplicates),
		Failed:     malformed + len(batch.Failed),
	}, nil
}

// Random returns up to count entries in random order, optionally filtered by
// category.
func (s *Service) Random(ctx context.Context, count int, category string) ([]model.Entry, error) {
	if count < 0 {
		return nil, &ValidationError{Reason: "count must not be negative"}
	}
	return s.store.RandomEntries(ctx, count, category)
}

// Page returns one page of the listing, newest first. page < 1 is treated as 1.
func (s *Service) Page(ctx context.Context, category string, page int) (*Page, error) {
	if page < 1 {
		page = 1
	}
	entries, total, err := s.store.ListEntries(ctx, category, page, DefaultPageSize)
	if err != nil {
		return nil, err
	}
	totalPages := int((total + DefaultPageSize - 1) / DefaultPageSize)
	return &Page{
		Entries:    entries,
		Category:   category,
		Page:       page,
		PageSize:   DefaultPageSize,
		Total:      total,
		TotalPages: totalPages,
	}, nil
}
