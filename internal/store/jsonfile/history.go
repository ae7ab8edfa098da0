// Package jsonfile provides JSON file-backed stores.
package jsonfile

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"syscall"

	"github.com/hay-kot/conch/internal/core/history"
)

// maxLineSize bounds a single history record on disk.
const maxLineSize = 1 << 20

// HistoryStore keeps history as JSON lines, oldest first. Appends do not
// rewrite the file; it is compacted once it holds a quarter more lines than
// maxEntries. A lock file next to it serializes access across processes.
type HistoryStore struct {
	path       string
	maxEntries int
	mu         sync.Mutex
}

var _ history.Store = (*HistoryStore)(nil)

// NewHistoryStore creates a store at path. maxEntries limits the entries
// returned and kept (0 means unlimited).
func NewHistoryStore(path string, maxEntries int) *HistoryStore {
	return &HistoryStore{path: path, maxEntries: maxEntries}
}

// Append writes entry to the end of the file, compacting when it has grown
// past the cap.
func (s *HistoryStore) Append(ctx context.Context, entry history.Entry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal history entry: %w", err)
	}

	return s.withLock(syscall.LOCK_EX, func() error {
		f, err := os.OpenFile(s.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
		if err != nil {
			return fmt.Errorf("open history file: %w", err)
		}
		_, werr := f.Write(append(data, '\n'))
		cerr := f.Close()
		if err := errors.Join(werr, cerr); err != nil {
			return fmt.Errorf("append history entry: %w", err)
		}

		if s.maxEntries == 0 {
			return nil
		}
		n, err := s.countLines()
		if err != nil {
			return err
		}
		if n >= s.maxEntries+compactSlack(s.maxEntries) {
			return s.compact()
		}
		return nil
	})
}

// Find returns entries matching f, newest first.
func (s *HistoryStore) Find(ctx context.Context, f history.Filter) ([]history.Entry, error) {
	var out []history.Entry
	err := s.withLock(syscall.LOCK_SH, func() error {
		entries, err := s.newest()
		if err != nil {
			return err
		}

		out = make([]history.Entry, 0, len(entries))
		for _, e := range entries {
			if !f.Match(e) {
				continue
			}
			out = append(out, e)
			if f.Limit > 0 && len(out) == f.Limit {
				break
			}
		}
		return nil
	})
	return out, err
}

// Get returns the entry whose ID is id or starts with it.
func (s *HistoryStore) Get(ctx context.Context, id string) (history.Entry, error) {
	var entry history.Entry
	err := s.withLock(syscall.LOCK_SH, func() error {
		entries, err := s.newest()
		if err != nil {
			return err
		}
		entry, err = history.Lookup(entries, id)
		return err
	})
	return entry, err
}

// Clear removes the history file.
func (s *HistoryStore) Clear(ctx context.Context) error {
	return s.withLock(syscall.LOCK_EX, func() error {
		if err := os.Remove(s.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("remove history file: %w", err)
		}
		return nil
	})
}

// withLock runs fn holding a flock of kind how on the lock file.
func (s *HistoryStore) withLock(how int, fn func() error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create history directory: %w", err)
	}

	f, err := os.OpenFile(s.path+".lock", os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return fmt.Errorf("open lock file: %w", err)
	}
	defer func() { _ = f.Close() }()

	if err := syscall.Flock(int(f.Fd()), how); err != nil {
		return fmt.Errorf("acquire history lock: %w", err)
	}
	defer func() { _ = syscall.Flock(int(f.Fd()), syscall.LOCK_UN) }()

	return fn()
}

// countLines returns the number of newline-terminated records on disk.
func (s *HistoryStore) countLines() (int, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return 0, nil
		}
		return 0, fmt.Errorf("read history file: %w", err)
	}
	return bytes.Count(data, []byte{'\n'}), nil
}

func compactSlack(maxEntries int) int {
	return max(maxEntries/4, 1)
}

// newest returns the kept entries, newest first.
func (s *HistoryStore) newest() ([]history.Entry, error) {
	entries, err := s.readAll()
	if err != nil {
		return nil, err
	}

	entries = s.keep(entries)
	slices.Reverse(entries)
	return entries, nil
}

// keep drops entries older than the newest maxEntries.
func (s *HistoryStore) keep(entries []history.Entry) []history.Entry {
	if s.maxEntries > 0 && len(entries) > s.maxEntries {
		return entries[len(entries)-s.maxEntries:]
	}
	return entries
}

// readAll reads every entry in file order. A missing file is empty.
func (s *HistoryStore) readAll() ([]history.Entry, error) {
	f, err := os.Open(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("open history file: %w", err)
	}
	defer func() { _ = f.Close() }()

	var entries []history.Entry

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	for n := 1; scanner.Scan(); n++ {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		var e history.Entry
		if err := json.Unmarshal(line, &e); err != nil {
			return nil, fmt.Errorf("history file corrupted at line %d (run 'conch history --clear' to reset): %w", n, err)
		}
		entries = append(entries, e)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read history file: %w", err)
	}

	return entries, nil
}

// compact rewrites the file with only the kept entries. The new file is
// written next to the old one and renamed over it.
func (s *HistoryStore) compact() error {
	entries, err := s.readAll()
	if err != nil {
		return err
	}
	entries = s.keep(entries)

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, e := range entries {
		if err := enc.Encode(e); err != nil {
			return fmt.Errorf("marshal history entry: %w", err)
		}
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create history temp file: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if _, err := tmp.Write(buf.Bytes()); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write history temp file: %w", err)
	}
	if err := tmp.Chmod(0o600); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("chmod history temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close history temp file: %w", err)
	}

	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("rename history file: %w", err)
	}
	return nil
}
