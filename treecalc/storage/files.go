// Package storage reads and writes documents and data tables on disk.
//
// Every access takes a cross-process lock on "<path>.lock" (shared for reads,
// exclusive for writes) and writes go through a temp file that is renamed
// over the target, so readers never see a partial file.
package storage

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"time"

	"github.com/arthur-debert/treecalc/formats"
	"github.com/arthur-debert/treecalc/types"
	"github.com/google/uuid"
	"lukechampine.com/blake3"
)

// Constants for file locking
const (
	lockTimeout    = 3 * time.Second
	lockMaxRetries = 3
	lockRetryDelay = 100 * time.Millisecond
)

// Digest identifies the exact bytes of a file as last read or written
type Digest string

// Sum returns the blake3 digest of data
func Sum(data []byte) Digest {
	h := blake3.Sum256(data)
	return Digest(hex.EncodeToString(h[:]))
}

// Files loads and saves documents and data tables
type Files struct {
	fs          FileSystem
	lockFactory FileLockFactory
	logger      *slog.Logger
}

// New creates a Files backed by the OS file system and flock
func New(opts ...Option) *Files {
	f := &Files{}
	for _, opt := range opts {
		opt(f)
	}

	// Set defaults for dependencies not provided via options
	if f.fs == nil {
		f.fs = OSFileSystem{}
	}
	if f.lockFactory == nil {
		f.lockFactory = FlockFactory{}
	}
	if f.logger == nil {
		f.logger = slog.New(slog.DiscardHandler)
	}
	return f
}

// documentFile accepts "data" as an alias of "items" on read
type documentFile struct {
	RootName string               `json:"root_name" yaml:"root_name"`
	Items    []types.DocumentItem `json:"items" yaml:"items"`
	Data     []types.DocumentItem `json:"data,omitempty" yaml:"data,omitempty"`
}

// Exists reports whether path names an existing file
func (f *Files) Exists(path string) bool {
	_, err := f.fs.Stat(path)
	return err == nil
}

// LoadDocument reads and parses a document. The digest covers the bytes on disk.
func (f *Files) LoadDocument(ctx context.Context, path string) (*types.Document, Digest, error) {
	const op = "load"

	var raw documentFile
	digest, err := f.read(ctx, op, path, &raw)
	if err != nil {
		return nil, "", err
	}

	doc := &types.Document{RootName: raw.RootName, Items: raw.Items}
	if doc.Items == nil && raw.Data != nil {
		doc.Items = raw.Data
	}
	if doc.Items == nil {
		doc.Items = []types.DocumentItem{}
	}

	f.logger.Debug("document loaded", "path", path, "items", len(doc.Items), "digest", digest)
	return doc, digest, nil
}

// SaveDocument writes a document and returns the digest of the written bytes
func (f *Files) SaveDocument(ctx context.Context, path string, doc *types.Document, opts ...SaveOption) (Digest, error) {
	digest, err := f.write(ctx, "save", path, doc, opts...)
	if err != nil {
		return "", err
	}
	f.logger.Debug("document saved", "path", path, "items", len(doc.Items), "digest", digest)
	return digest, nil
}

// LoadData reads a data table mapping leaf names to numbers
func (f *Files) LoadData(ctx context.Context, path string) (types.DataTable, error) {
	table := types.DataTable{}
	if _, err := f.read(ctx, "load data", path, &table); err != nil {
		return nil, err
	}
	f.logger.Debug("data table loaded", "path", path, "entries", len(table))
	return table, nil
}

// SaveData writes a data table
func (f *Files) SaveData(ctx context.Context, path string, table types.DataTable) error {
	if table == nil {
		table = types.DataTable{}
	}
	if _, err := f.write(ctx, "save data", path, table); err != nil {
		return err
	}
	f.logger.Debug("data table saved", "path", path, "entries", len(table))
	return nil
}

func (f *Files) read(ctx context.Context, op, path string, v interface{}) (Digest, error) {
	codec, compressed, err := formats.ForPath(path)
	if err != nil {
		return "", types.WrapError(op, types.ErrIO, err)
	}

	lock, err := f.acquireLock(ctx, path, false)
	if err != nil {
		return "", types.WrapError(op, types.ErrIO, err)
	}
	defer func() { _ = lock.Unlock() }()

	data, err := f.fs.ReadFile(path)
	if err != nil {
		return "", types.WrapError(op, types.ErrIO, fmt.Errorf("failed to read file: %w", err))
	}
	digest := Sum(data)

	if compressed {
		if data, err = formats.Decompress(data); err != nil {
			return "", types.WrapError(op, types.ErrIO, err)
		}
	}
	if len(data) == 0 {
		return "", types.Errorf(op, types.ErrIO, "%s is empty", path)
	}

	if err := codec.Unmarshal(data, v); err != nil {
		return "", types.WrapError(op, types.ErrIO, fmt.Errorf("failed to parse %s as %s: %w", path, codec.Name, err))
	}
	return digest, nil
}

func (f *Files) write(ctx context.Context, op, path string, v interface{}, opts ...SaveOption) (Digest, error) {
	var cfg saveConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	codec, compressed, err := formats.ForPath(path)
	if err != nil {
		return "", types.WrapError(op, types.ErrIO, err)
	}

	data, err := codec.Marshal(v)
	if err != nil {
		return "", types.WrapError(op, types.ErrIO, fmt.Errorf("failed to marshal %s: %w", codec.Name, err))
	}
	if compressed {
		if data, err = formats.Compress(data); err != nil {
			return "", types.WrapError(op, types.ErrIO, err)
		}
	}

	lock, err := f.acquireLock(ctx, path, true)
	if err != nil {
		return "", types.WrapError(op, types.ErrIO, err)
	}
	defer func() { _ = lock.Unlock() }()

	if cfg.ifDigest != nil {
		if err := f.checkDigest(op, path, *cfg.ifDigest); err != nil {
			return "", err
		}
	}

	// Write to a unique temp file, then rename over the target
	tmpFile := fmt.Sprintf("%s.%s.tmp", path, uuid.NewString())
	if err := f.fs.WriteFile(tmpFile, data, 0644); err != nil {
		return "", types.WrapError(op, types.ErrIO, fmt.Errorf("failed to write temp file: %w", err))
	}
	if err := f.fs.Rename(tmpFile, path); err != nil {
		_ = f.fs.Remove(tmpFile)
		return "", types.WrapError(op, types.ErrIO, fmt.Errorf("failed to rename file: %w", err))
	}

	return Sum(data), nil
}

// checkDigest must be called with the exclusive lock held
func (f *Files) checkDigest(op, path string, want Digest) error {
	current, err := f.fs.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		if want != "" {
			return types.Errorf(op, types.ErrStale, "%s was removed since it was loaded", path)
		}
		return nil
	case err != nil:
		return types.WrapError(op, types.ErrIO, fmt.Errorf("failed to read file: %w", err))
	}

	if got := Sum(current); got != want {
		f.logger.Warn("document changed on disk", "path", path, "expected", want, "found", got)
		return types.Errorf(op, types.ErrStale, "%s changed on disk since it was loaded", path)
	}
	return nil
}

// acquireLock takes the sidecar lock with retry logic
func (f *Files) acquireLock(ctx context.Context, path string, exclusive bool) (FileLock, error) {
	ctx, cancel := context.WithTimeout(ctx, lockTimeout)
	defer cancel()

	lock := f.lockFactory.New(path + ".lock")
	for i := 0; i < lockMaxRetries; i++ {
		var locked bool
		var err error
		if exclusive {
			locked, err = lock.TryLockContext(ctx, lockRetryDelay)
		} else {
			locked, err = lock.TryRLockContext(ctx, lockRetryDelay)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to acquire lock: %w", err)
		}
		if locked {
			return lock, nil
		}

		// Wait before retrying
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("failed to acquire lock: %w", ctx.Err())
		case <-time.After(lockRetryDelay):
		}
	}

	return nil, fmt.Errorf("failed to acquire lock after %d attempts", lockMaxRetries)
}
