// Package snapshot persists the latest raw content per (source, profile) key
// and detects content changes between pipeline cycles via a sha256
// fingerprint.
package snapshot

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Ref points at the newest persisted content for one (source, profile) pair.
type Ref struct {
	Source      string
	Profile     string
	CapturedAt  time.Time
	ContentHash string
	ContentPath string
	MetaPath    string
}

// Meta is the sidecar metadata record written next to each content file.
type Meta struct {
	Source      string    `json:"source"`
	Profile     string    `json:"profile"`
	URL         string    `json:"url,omitempty"`
	Title       string    `json:"title,omitempty"`
	CapturedAt  time.Time `json:"captured_at"`
	ContentHash string    `json:"content_hash"`
}

// Store keeps one content file and one metadata sidecar per key under dir.
type Store struct {
	dir string
}

// NewStore creates the snapshot directory if needed.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create snapshot dir: %w", err)
	}
	return &Store{dir: dir}, nil
}

// Hash returns the hex sha256 fingerprint used for change detection.
func Hash(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

// Write persists content and its metadata sidecar for (source, profile),
// writing to a temp path and renaming over the canonical target so a
// concurrent reader never observes a partial write.
func (s *Store) Write(content, source, profile, url, title string) (Ref, error) {
	now := time.Now().UTC()
	ref := Ref{
		Source:      source,
		Profile:     profile,
		CapturedAt:  now,
		ContentHash: Hash(content),
		ContentPath: s.contentPath(source, profile),
		MetaPath:    s.metaPath(source, profile),
	}

	if err := atomicWrite(ref.ContentPath, []byte(content)); err != nil {
		return Ref{}, fmt.Errorf("write snapshot content: %w", err)
	}

	meta := Meta{
		Source:      source,
		Profile:     profile,
		URL:         url,
		Title:       title,
		CapturedAt:  now,
		ContentHash: ref.ContentHash,
	}
	data, err := json.Marshal(meta)
	if err != nil {
		return Ref{}, fmt.Errorf("marshal snapshot meta: %w", err)
	}
	if err := atomicWrite(ref.MetaPath, data); err != nil {
		return Ref{}, fmt.Errorf("write snapshot meta: %w", err)
	}
	return ref, nil
}

// Read returns the latest content for the key, or ok=false if absent.
func (s *Store) Read(source, profile string) (content string, ok bool, err error) {
	data, err := os.ReadFile(s.contentPath(source, profile))
	if errors.Is(err, os.ErrNotExist) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("read snapshot: %w", err)
	}
	return string(data), true, nil
}

// Changed reports whether newHash differs from the previously recorded hash
// for the key. A missing or unreadable sidecar counts as changed.
func (s *Store) Changed(source, profile, newHash string) bool {
	data, err := os.ReadFile(s.metaPath(source, profile))
	if err != nil {
		return true
	}
	var meta Meta
	if err := json.Unmarshal(data, &meta); err != nil {
		return true
	}
	return meta.ContentHash != newHash
}

// Cleanup deletes snapshot files (content and sidecars) older than
// maxAgeHours. Missing or already-removed files are skipped silently.
// Returns the count of files removed.
func (s *Store) Cleanup(maxAgeHours int) int {
	cutoff := time.Now().Add(-time.Duration(maxAgeHours) * time.Hour)
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return 0
	}

	deleted := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if !strings.HasSuffix(name, ".html") && !strings.HasSuffix(name, ".meta.json") {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if !info.ModTime().Before(cutoff) {
			continue
		}
		err = os.Remove(filepath.Join(s.dir, name))
		if err == nil {
			deleted++
		} else if !errors.Is(err, os.ErrNotExist) {
			slog.Warn("Failed to delete old snapshot", "file", name, "error", err)
		}
	}
	if deleted > 0 {
		slog.Info("Snapshot cleanup done", "deleted", deleted)
	}
	return deleted
}

func (s *Store) contentPath(source, profile string) string {
	return filepath.Join(s.dir, fmt.Sprintf("%s-%s.html", source, profile))
}

func (s *Store) metaPath(source, profile string) string {
	return filepath.Join(s.dir, fmt.Sprintf("%s-%s.meta.json", source, profile))
}

func atomicWrite(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return err
	}
	return nil
}
