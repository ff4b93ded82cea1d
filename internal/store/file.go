// Package store persists thread records, one JSON file per thread.
package store

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/dealtalk/dealtalk/internal/types"
)

var safeNamePat = regexp.MustCompile(`^[a-zA-Z0-9_\-]+\.json$`)

// FileStore keeps one JSON file per thread under a single directory. Each
// operation loads and rewrites the file directly; there is no long-lived
// in-memory copy. Writes go to a temp file first, then rename, so a crash
// mid-write never corrupts a record.
type FileStore struct {
	dir    string
	mu     sync.Mutex
	logger *slog.Logger
}

// NewFileStore creates the data directory if needed.
func NewFileStore(dir string, logger *slog.Logger) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, &types.StorageError{Op: "create data dir", Err: err}
	}
	return &FileStore{
		dir:    dir,
		logger: logger.With("component", "file_store"),
	}, nil
}

// Load reads the record for threadID. Returns types.ErrNotFound when no
// record exists.
func (s *FileStore) Load(threadID string) (*types.ThreadRecord, error) {
	return s.readRecord(s.path(threadID))
}

// MergeAndSave appends comments not already present (by dedup key) to the
// stored record, preserving stored order first and discovery order for the
// additions, then persists the result. Returns the merged record and the
// number of comments actually added.
func (s *FileStore) MergeAndSave(threadID string, meta types.RecordMeta, comments []types.Comment) (*types.ThreadRecord, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	path := s.path(threadID)
	record, err := s.readRecord(path)
	if err != nil {
		if err != types.ErrNotFound {
			return nil, 0, err
		}
		record = &types.ThreadRecord{ThreadID: threadID}
	}

	record.SourceURL = meta.SourceURL
	if meta.DealTitle != "" {
		record.DealTitle = meta.DealTitle
	}
	if meta.DealDescription != "" {
		record.DealDescription = meta.DealDescription
	}
	if meta.MaxPagesRequest > record.MaxPagesRequest {
		record.MaxPagesRequest = meta.MaxPagesRequest
	}
	record.ScrapedAt = time.Now()

	existing := record.CommentKeys()
	var added int
	for _, c := range comments {
		key := c.Key()
		if _, dup := existing[key]; dup {
			continue
		}
		existing[key] = struct{}{}
		record.Comments = append(record.Comments, c)
		added++
	}

	if err := s.writeRecord(path, record); err != nil {
		return nil, 0, err
	}

	s.logger.Debug("record merged",
		"thread_id", threadID,
		"total", len(record.Comments),
		"added", added,
	)
	return record, added, nil
}

// SaveSummary caches an AI-generated summary on the stored record.
func (s *FileStore) SaveSummary(threadID, summary string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	path := s.path(threadID)
	record, err := s.readRecord(path)
	if err != nil {
		return err
	}
	record.DealSummary = summary
	return s.writeRecord(path, record)
}

// List returns one ThreadInfo per stored record, newest first.
func (s *FileStore) List() ([]types.ThreadInfo, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return []types.ThreadInfo{}, nil
		}
		return nil, &types.StorageError{Op: "list", Err: err}
	}

	infos := make([]types.ThreadInfo, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		fi, err := entry.Info()
		if err != nil {
			s.logger.Warn("unreadable entry skipped", "name", entry.Name(), "error", err)
			continue
		}

		info := types.ThreadInfo{
			Filename: entry.Name(),
			Title:    entry.Name(),
			Modified: fi.ModTime(),
			Size:     fi.Size(),
		}
		// Surface the deal title when the record decodes; the listing
		// still works for records that do not.
		if record, err := s.readRecord(filepath.Join(s.dir, entry.Name())); err == nil && record.DealTitle != "" {
			info.Title = record.DealTitle
		}
		infos = append(infos, info)
	}

	sort.Slice(infos, func(i, j int) bool {
		return infos[i].Modified.After(infos[j].Modified)
	})
	return infos, nil
}

// Delete removes the named record files. Names with path separators or
// traversal sequences are rejected. Returns the deleted names and one error
// string per failure.
func (s *FileStore) Delete(filenames []string) (deleted []string, errs []string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, name := range filenames {
		if !safeNamePat.MatchString(name) {
			errs = append(errs, fmt.Sprintf("invalid filename: %s", name))
			continue
		}
		path := filepath.Join(s.dir, name)
		if _, err := os.Stat(path); os.IsNotExist(err) {
			errs = append(errs, fmt.Sprintf("file not found: %s", name))
			continue
		}
		if err := os.Remove(path); err != nil {
			errs = append(errs, fmt.Sprintf("error deleting %s: %v", name, err))
			continue
		}
		deleted = append(deleted, name)
	}
	return deleted, errs
}

// DeleteAll removes every stored record and returns how many were removed.
func (s *FileStore) DeleteAll() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, &types.StorageError{Op: "delete all", Err: err}
	}

	var count int
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		if err := os.Remove(filepath.Join(s.dir, entry.Name())); err != nil {
			s.logger.Warn("delete failed", "name", entry.Name(), "error", err)
			continue
		}
		count++
	}
	return count, nil
}

func (s *FileStore) path(threadID string) string {
	return filepath.Join(s.dir, threadID+".json")
}

func (s *FileStore) readRecord(path string) (*types.ThreadRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, types.ErrNotFound
		}
		return nil, &types.StorageError{Op: "open record", Err: err}
	}
	defer f.Close()

	var record types.ThreadRecord
	if err := json.NewDecoder(f).Decode(&record); err != nil {
		return nil, &types.StorageError{Op: "decode record", Err: err}
	}
	return &record, nil
}

// writeRecord writes to a temp file then renames it into place.
func (s *FileStore) writeRecord(path string, record *types.ThreadRecord) error {
	tmpPath := path + ".tmp"

	f, err := os.Create(tmpPath)
	if err != nil {
		return &types.StorageError{Op: "create record file", Err: err}
	}

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	if err := enc.Encode(record); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return &types.StorageError{Op: "encode record", Err: err}
	}
	if err := f.Close(); err != nil {
		os.Remove(tmpPath)
		return &types.StorageError{Op: "close record file", Err: err}
	}

	if err := os.Rename(tmpPath, path); err != nil {
		return &types.StorageError{Op: "rename record file", Err: err}
	}
	return nil
}
