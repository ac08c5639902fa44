package rules

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// FileSink writes the active rule set to a JSON file that the platform
// enforcement layer (browser extension host, proxy, hosts manager)
// watches. Each replace rewrites the whole file via a temp file and
// rename, so readers never observe a partial rule set.
type FileSink struct {
	path string
}

// NewFileSink creates a sink writing to the given path.
func NewFileSink(path string) *FileSink {
	return &FileSink{path: path}
}

type ruleFile struct {
	UpdatedAt time.Time `json:"updated_at"`
	Rules     []Rule    `json:"rules"`
}

// ReplaceRules atomically replaces the entire installed rule set.
func (s *FileSink) ReplaceRules(ctx context.Context, ruleSet []Rule) error {
	if ruleSet == nil {
		ruleSet = []Rule{}
	}

	data, err := json.MarshalIndent(ruleFile{UpdatedAt: time.Now().UTC(), Rules: ruleSet}, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal rules: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create rules dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".rules-*.json")
	if err != nil {
		return fmt.Errorf("create temp rules file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write rules: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close rules file: %w", err)
	}

	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace rules file: %w", err)
	}
	return nil
}

// MemorySink holds the current rule set in memory. Used in tests and as
// a no-op enforcement target.
type MemorySink struct {
	mu       sync.Mutex
	rules    []Rule
	replaces int
}

// NewMemorySink creates an empty in-memory sink.
func NewMemorySink() *MemorySink {
	return &MemorySink{}
}

// ReplaceRules swaps the entire rule set.
func (s *MemorySink) ReplaceRules(ctx context.Context, ruleSet []Rule) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rules = append([]Rule(nil), ruleSet...)
	s.replaces++
	return nil
}

// Rules returns a copy of the currently installed rule set.
func (s *MemorySink) Rules() []Rule {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Rule(nil), s.rules...)
}

// ReplaceCount reports how many times the rule set was replaced.
func (s *MemorySink) ReplaceCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.replaces
}
