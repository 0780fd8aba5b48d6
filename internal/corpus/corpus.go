// Package corpus reads and appends the flat riddle text file produced by the
// crawler. Each pair is written as
//
//	问题：<question>
//	答案:<answer>
//
// and pairs are separated by a line holding "---".
package corpus

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

const (
	questionPrefix = "问题："
	answerPrefix   = "答案:"
	separator      = "---"
)

// Pair is one question and answer.
type Pair struct {
	Question string
	Answer   string
}

// Format renders a pair as a corpus block without the trailing separator.
func (p Pair) Format() string {
	return questionPrefix + p.Question + "\n" + answerPrefix + p.Answer
}

// Parse reads every well-formed pair from content. Blocks that do not start
// with a question line followed by an answer line are ignored.
func Parse(content string) []Pair {
	var pairs []Pair
	for _, block := range strings.Split(content, separator) {
		block = strings.TrimSpace(block)
		if block == "" {
			continue
		}
		lines := strings.Split(block, "\n")
		if len(lines) < 2 {
			continue
		}
		question, ok := strings.CutPrefix(strings.TrimSpace(lines[0]), questionPrefix)
		if !ok {
			continue
		}
		answer, ok := strings.CutPrefix(strings.TrimSpace(lines[1]), answerPrefix)
		if !ok {
			continue
		}
		pairs = append(pairs, Pair{Question: strings.TrimSpace(question), Answer: strings.TrimSpace(answer)})
	}
	return pairs
}

// Load parses the corpus file at path. A missing file yields no pairs.
func Load(path string) ([]Pair, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read corpus file: %w", err)
	}
	return Parse(string(data)), nil
}

// Dedupe drops pairs already present in existing and repeats within pairs.
func Dedupe(existing, pairs []Pair) []Pair {
	seen := make(map[Pair]struct{}, len(existing)+len(pairs))
	for _, p := range existing {
		seen[p] = struct{}{}
	}
	var unique []Pair
	for _, p := range pairs {
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		unique = append(unique, p)
	}
	return unique
}

// Append adds pairs to the corpus file at path, creating it and its
// directory when missing, and keeps the separator between the old content
// and the new pairs.
func Append(path string, pairs []Pair) error {
	if len(pairs) == 0 {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create corpus directory: %w", err)
	}

	existing, err := os.ReadFile(path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to read corpus file: %w", err)
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open corpus file: %w", err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	if err := write(w, string(existing), pairs); err != nil {
		return fmt.Errorf("failed to write corpus file: %w", err)
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("failed to write corpus file: %w", err)
	}
	return nil
}

func write(w io.StringWriter, existing string, pairs []Pair) error {
	if strings.TrimSpace(existing) != "" {
		prefix := "\n" + separator + "\n"
		if strings.HasSuffix(existing, "\n") {
			prefix = separator + "\n"
		}
		if _, err := w.WriteString(prefix); err != nil {
			return err
		}
	}
	for i, p := range pairs {
		if _, err := w.WriteString(p.Format()); err != nil {
			return err
		}
		tail := "\n"
		if i < len(pairs)-1 {
			tail = "\n" + separator + "\n"
		}
		if _, err := w.WriteString(tail); err != nil {
			return err
		}
	}
	return nil
}
