package storage

import "log/slog"

// Option configures Files
type Option func(*Files)

// WithFileSystem sets a custom FileSystem implementation
func WithFileSystem(fs FileSystem) Option {
	return func(f *Files) {
		f.fs = fs
	}
}

// WithFileLockFactory sets a custom FileLockFactory implementation
func WithFileLockFactory(factory FileLockFactory) Option {
	return func(f *Files) {
		f.lockFactory = factory
	}
}

// WithLogger sets the logger used for storage diagnostics
func WithLogger(logger *slog.Logger) Option {
	return func(f *Files) {
		f.logger = logger
	}
}

// SaveOption adjusts a single save
type SaveOption func(*saveConfig)

type saveConfig struct {
	ifDigest *Digest
}

// IfDigest makes the save fail with ErrStale unless the file on disk still
// hashes to d. An empty digest requires that the file does not exist yet.
func IfDigest(d Digest) SaveOption {
	return func(c *saveConfig) {
		c.ifDigest = &d
	}
}
