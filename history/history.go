package history

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// DefaultFile is the log's name inside the config directory.
const DefaultFile = "transcription_history.json"

// Entry is one transcription in the history log
type Entry struct {
	Timestamp string `json:"timestamp"`
	Text      string `json:"text"`
}

// NewEntry stamps text with the local time.
func NewEntry(at time.Time, text string) Entry {
	return Entry{
		Timestamp: at.Format(time.RFC3339Nano),
		Text:      text,
	}
}

// Time parses the entry timestamp. A malformed timestamp yields the zero time.
func (e Entry) Time() time.Time {
	t, err := time.Parse(time.RFC3339Nano, e.Timestamp)
	if err != nil {
		return time.Time{}
	}
	return t
}

// Store is an append-only JSON array on disk.
type Store struct {
	path   string
	logger *slog.Logger

	mu sync.Mutex
}

// New creates a store backed by path. The file is created on first append.
func New(path string, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		path:   path,
		logger: logger,
	}
}

func (s *Store) Path() string {
	return s.path
}

// Append adds entry to the end of the log. The file on disk is replaced
// atomically, so a failed write leaves the previous log intact.
func (s *Store) Append(entry Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries := s.load()
	entries = append(entries, entry)

	if err := s.write(entries); err != nil {
		return err
	}

	s.logger.Debug("Appended history entry", "path", s.path, "count", len(entries))
	return nil
}

// LoadAll returns every entry, oldest first. A missing or unreadable log is
// reported as empty.
func (s *Store) LoadAll() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load()
}

// Recent returns at most n entries from the end of the log, oldest first.
// n <= 0 returns everything.
func (s *Store) Recent(n int) []Entry {
	entries := s.LoadAll()
	if n <= 0 || n >= len(entries) {
		return entries
	}
	return entries[len(entries)-n:]
}

func (s *Store) load() []Entry {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			s.logger.Warn("Failed to read history, treating as empty", "error", err, "path", s.path)
		}
		return []Entry{}
	}

	var entries []Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		s.logger.Warn("History file is corrupt, treating as empty", "error", err, "path", s.path)
		return []Entry{}
	}
	if entries == nil {
		entries = []Entry{}
	}
	return entries
}

func (s *Store) write(entries []Entry) error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create history directory: %w", err)
	}

	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal history: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(s.path)+".*")
	if err != nil {
		return fmt.Errorf("failed to create temp history file: %w", err)
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write history: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync history: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close history: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("failed to replace history: %w", err)
	}
	committed = true
	return nil
}
