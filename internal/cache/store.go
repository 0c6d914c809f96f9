// Package cache is the commit-addressed result store. Keys are (repository
// identity, branch, commit); values are immutable once written. Entries are
// persisted in SQLite as gzip-compressed JSON with a content hash, fronted
// by a small in-memory LRU for repeat reads.
package cache

import (
	"bytes"
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/klauspost/compress/gzip"

	apperrors "github.com/Gourav1632/into-the-repo/internal/errors"
	"github.com/Gourav1632/into-the-repo/internal/logging"
	"github.com/Gourav1632/into-the-repo/internal/storage"
)

// Key addresses one analysis result.
type Key struct {
	Repo   string
	Branch string
	Commit string
}

func (k Key) String() string {
	return k.Repo + "|" + k.Branch + "|" + k.Commit
}

// Store reads and writes cached analysis results.
type Store struct {
	db     *storage.DB
	logger *logging.Logger
	memory *lru.Cache[string, []byte]
}

// NewStore creates a store over an open database. memoryEntries bounds the
// in-memory layer; zero or negative disables it.
func NewStore(db *storage.DB, logger *logging.Logger, memoryEntries int) (*Store, error) {
	s := &Store{db: db, logger: logger}
	if memoryEntries > 0 {
		mem, err := lru.New[string, []byte](memoryEntries)
		if err != nil {
			return nil, fmt.Errorf("creating memory cache: %w", err)
		}
		s.memory = mem
	}
	return s, nil
}

// Get loads the entry for key into out. The second return is false on a
// clean miss.
func (s *Store) Get(ctx context.Context, key Key, out interface{}) (bool, error) {
	if s.memory != nil {
		if raw, ok := s.memory.Get(key.String()); ok {
			return true, json.Unmarshal(raw, out)
		}
	}

	var compressed []byte
	row := s.db.QueryRow(
		`SELECT result_gz FROM analyses WHERE repo = ? AND branch = ? AND commit_id = ?`,
		key.Repo, key.Branch, key.Commit,
	)
	if err := row.Scan(&compressed); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("reading cache entry: %w", err)
	}

	raw, err := gunzip(compressed)
	if err != nil {
		return false, fmt.Errorf("decompressing cache entry %s: %w", key, err)
	}
	if s.memory != nil {
		s.memory.Add(key.String(), raw)
	}
	return true, json.Unmarshal(raw, out)
}

// Contains reports whether an entry exists for key without loading it.
func (s *Store) Contains(ctx context.Context, key Key) (bool, error) {
	if s.memory != nil && s.memory.Contains(key.String()) {
		return true, nil
	}
	var one int
	row := s.db.QueryRow(
		`SELECT 1 FROM analyses WHERE repo = ? AND branch = ? AND commit_id = ?`,
		key.Repo, key.Branch, key.Commit,
	)
	if err := row.Scan(&one); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("probing cache entry: %w", err)
	}
	return true, nil
}

// Put stores value under key. Writes are create-once: when the key already
// exists, the stored entry wins. Two workers racing on a cold key both
// insert safely; the loser's bytes are discarded. If the existing entry's
// content hash differs from the incoming one, the divergence is logged as a
// conflict and the existing entry is kept.
func (s *Store) Put(ctx context.Context, key Key, value interface{}) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encoding cache entry: %w", err)
	}
	sum := sha256.Sum256(raw)
	hash := hex.EncodeToString(sum[:])

	compressed, err := gzipBytes(raw)
	if err != nil {
		return fmt.Errorf("compressing cache entry: %w", err)
	}

	_, err = s.db.Exec(
		`INSERT INTO analyses (repo, branch, commit_id, result_gz, result_hash, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT (repo, branch, commit_id) DO NOTHING`,
		key.Repo, key.Branch, key.Commit, compressed, hash, time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("writing cache entry: %w", err)
	}

	var storedHash string
	row := s.db.QueryRow(
		`SELECT result_hash FROM analyses WHERE repo = ? AND branch = ? AND commit_id = ?`,
		key.Repo, key.Branch, key.Commit,
	)
	if err := row.Scan(&storedHash); err != nil {
		return fmt.Errorf("verifying cache entry: %w", err)
	}

	if storedHash != hash {
		s.logger.Warn("Cache entry conflict, keeping existing value", map[string]interface{}{
			"code":         string(apperrors.CacheConflict),
			"repo":         key.Repo,
			"branch":       key.Branch,
			"commit":       key.Commit,
			"storedHash":   storedHash,
			"incomingHash": hash,
		})
		if s.memory != nil {
			s.memory.Remove(key.String())
		}
		return nil
	}

	if s.memory != nil {
		s.memory.Add(key.String(), raw)
	}
	return nil
}

func gzipBytes(raw []byte) ([]byte, error) {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(raw); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func gunzip(compressed []byte) ([]byte, error) {
	zr, err := gzip.NewReader(bytes.NewReader(compressed))
	if err != nil {
		return nil, err
	}
	defer zr.Close()
	return io.ReadAll(zr)
}
