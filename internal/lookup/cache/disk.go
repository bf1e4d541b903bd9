package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// DiskConfig configures the durable on-disk backend.
type DiskConfig struct {
	Root       string
	MaxEntries int
	TTL        time.Duration
}

type diskEntry struct {
	File       string    `json:"file"`
	ExpiresAt  time.Time `json:"expires_at"`
	AccessedAt time.Time `json:"accessed_at"`
}

type diskIndex struct {
	Entries map[string]diskEntry `json:"entries"`
}

// DiskStore persists cached responses as files under a root directory and
// keeps a JSON index for TTL and LRU eviction. It is the authoritative
// backend of the response cache.
type DiskStore struct {
	mu sync.Mutex

	dataDir    string
	indexPath  string
	maxEntries int
	ttl        time.Duration

	entries map[string]diskEntry
}

func NewDiskStore(cfg DiskConfig) (*DiskStore, error) {
	root := strings.TrimSpace(cfg.Root)
	if root == "" {
		return nil, fmt.Errorf("cache root is required")
	}
	if cfg.MaxEntries <= 0 {
		cfg.MaxEntries = 4096
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 24 * time.Hour
	}
	dataDir := filepath.Join(root, "data")
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
	}
	s := &DiskStore{
		dataDir:    dataDir,
		indexPath:  filepath.Join(root, "index.json"),
		maxEntries: cfg.MaxEntries,
		ttl:        cfg.TTL,
		entries:    make(map[string]diskEntry),
	}
	s.loadIndex()
	return s, nil
}

func (s *DiskStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	if s == nil {
		return nil, false, fmt.Errorf("store is nil")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	ent, ok := s.entries[key]
	if !ok {
		return nil, false, nil
	}
	if time.Now().After(ent.ExpiresAt) {
		s.removeLocked(key)
		s.saveIndexLocked()
		return nil, false, nil
	}
	data, err := os.ReadFile(filepath.Join(s.dataDir, ent.File))
	if err != nil {
		s.removeLocked(key)
		s.saveIndexLocked()
		return nil, false, err
	}
	ent.AccessedAt = time.Now()
	s.entries[key] = ent
	s.saveIndexLocked()
	return data, true, nil
}

func (s *DiskStore) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	if s == nil {
		return fmt.Errorf("store is nil")
	}
	if ttl <= 0 {
		ttl = s.ttl
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	file := fileNameFor(key)
	if err := os.WriteFile(filepath.Join(s.dataDir, file), value, 0o644); err != nil {
		return fmt.Errorf("write cache entry: %w", err)
	}
	now := time.Now()
	s.entries[key] = diskEntry{File: file, ExpiresAt: now.Add(ttl), AccessedAt: now}
	s.evictLocked()
	s.saveIndexLocked()
	return nil
}

func (s *DiskStore) Delete(_ context.Context, key string) error {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.removeLocked(key)
	s.saveIndexLocked()
	return nil
}

func (s *DiskStore) DeletePattern(_ context.Context, pattern string) (int, error) {
	if s == nil {
		return 0, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for key := range s.entries {
		ok, err := path.Match(pattern, key)
		if err != nil {
			return removed, fmt.Errorf("bad pattern %q: %w", pattern, err)
		}
		if ok {
			s.removeLocked(key)
			removed++
		}
	}
	s.saveIndexLocked()
	return removed, nil
}

// Len reports the live entry count, expired entries included until touched.
func (s *DiskStore) Len() int {
	if s == nil {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

func (s *DiskStore) removeLocked(key string) {
	ent, ok := s.entries[key]
	if !ok {
		return
	}
	delete(s.entries, key)
	_ = os.Remove(filepath.Join(s.dataDir, ent.File))
}

func (s *DiskStore) evictLocked() {
	for len(s.entries) > s.maxEntries {
		oldestKey := ""
		var oldest time.Time
		for key, ent := range s.entries {
			if oldestKey == "" || ent.AccessedAt.Before(oldest) {
				oldestKey = key
				oldest = ent.AccessedAt
			}
		}
		if oldestKey == "" {
			return
		}
		s.removeLocked(oldestKey)
	}
}

func (s *DiskStore) loadIndex() {
	data, err := os.ReadFile(s.indexPath)
	if err != nil {
		return
	}
	var idx diskIndex
	if err := json.Unmarshal(data, &idx); err != nil || idx.Entries == nil {
		return
	}
	s.entries = idx.Entries
}

func (s *DiskStore) saveIndexLocked() {
	data, err := json.Marshal(diskIndex{Entries: s.entries})
	if err != nil {
		return
	}
	tmp := s.indexPath + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return
	}
	_ = os.Rename(tmp, s.indexPath)
}

func fileNameFor(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:]) + ".json"
}
