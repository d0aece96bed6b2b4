/*
Package io writes output artifacts so that readers never observe a half-written file:
data goes through a buffered temp file in the destination directory which is synced
and renamed over the target on Commit.
*/
package io

/*
revokeguard — merges iOS DNS profiles into a signed profile and rule lists
Copyright (C) 2025  Pepijn van der Stap <rxtls@vanderstap.info>

This program is free software: you can redistribute it and/or modify
it under the terms of the GNU Affero General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

This program is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU Affero General Public License for more details.

You should have received a copy of the GNU Affero General Public License
along with this program.  If not, see <https://www.gnu.org/licenses/>.
*/

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
)

const (
	// DefaultBufferSize is the default buffer size for disk I/O
	DefaultBufferSize = 32 * 1024

	// DefaultPerm is the mode of committed files.
	DefaultPerm os.FileMode = 0o644
)

// ErrFileClosed is returned when writing to a committed or aborted file.
var ErrFileClosed = errors.New("atomic file already closed")

// FileMetrics holds counters for one file.
type FileMetrics struct {
	BytesWritten atomic.Int64
	WriteCount   atomic.Int64
}

// Options configures an AtomicFile.
type Options struct {
	BufferSize int
	Perm       os.FileMode
}

// DefaultOptions returns the default options for AtomicFile
func DefaultOptions() *Options {
	return &Options{
		BufferSize: DefaultBufferSize,
		Perm:       DefaultPerm,
	}
}

// AtomicFile buffers writes into a temp file next to path.
// Exactly one of Commit or Abort should be called; Abort after Commit is a no-op,
// which makes `defer f.Abort()` safe.
type AtomicFile struct {
	path string
	perm os.FileMode

	mu        sync.Mutex
	file      *os.File
	bufWriter *bufio.Writer
	closed    bool

	metrics FileMetrics
}

// NewAtomicFile creates the destination directory if needed and opens a temp file in it.
func NewAtomicFile(path string, options *Options) (*AtomicFile, error) {
	if options == nil {
		options = DefaultOptions()
	}
	if options.BufferSize <= 0 {
		options.BufferSize = DefaultBufferSize
	}
	if options.Perm == 0 {
		options.Perm = DefaultPerm
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	file, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return nil, fmt.Errorf("failed to open temp file for %s: %w", path, err)
	}

	return &AtomicFile{
		path:      path,
		perm:      options.Perm,
		file:      file,
		bufWriter: bufio.NewWriterSize(file, options.BufferSize),
	}, nil
}

// Path returns the destination path.
func (f *AtomicFile) Path() string { return f.path }

// Write implements io.Writer.
func (f *AtomicFile) Write(data []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return 0, ErrFileClosed
	}
	n, err := f.bufWriter.Write(data)
	f.metrics.BytesWritten.Add(int64(n))
	f.metrics.WriteCount.Add(1)
	if err != nil {
		return n, fmt.Errorf("failed to write to buffer: %w", err)
	}
	return n, nil
}

// WriteString is Write for strings.
func (f *AtomicFile) WriteString(s string) (int, error) {
	return f.Write([]byte(s))
}

// Commit flushes, syncs and renames the temp file over the destination.
func (f *AtomicFile) Commit() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return ErrFileClosed
	}
	f.closed = true

	tmp := f.file.Name()
	fail := func(err error) error {
		_ = f.file.Close()
		_ = os.Remove(tmp)
		return err
	}

	if err := f.bufWriter.Flush(); err != nil {
		return fail(fmt.Errorf("failed to flush %s: %w", f.path, err))
	}
	if err := f.file.Chmod(f.perm); err != nil {
		return fail(fmt.Errorf("failed to chmod %s: %w", f.path, err))
	}
	if err := f.file.Sync(); err != nil {
		return fail(fmt.Errorf("failed to sync %s: %w", f.path, err))
	}
	if err := f.file.Close(); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to close %s: %w", f.path, err)
	}
	if err := os.Rename(tmp, f.path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to rename into %s: %w", f.path, err)
	}
	return nil
}

// Abort discards everything written. The destination is left untouched.
func (f *AtomicFile) Abort() {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return
	}
	f.closed = true
	_ = f.file.Close()
	_ = os.Remove(f.file.Name())
}

// Metrics returns the counters for this file.
func (f *AtomicFile) Metrics() *FileMetrics {
	return &f.metrics
}

// WriteFile atomically replaces path with data and returns the number of bytes written.
func WriteFile(path string, data []byte, perm os.FileMode) (int, error) {
	f, err := NewAtomicFile(path, &Options{BufferSize: DefaultBufferSize, Perm: perm})
	if err != nil {
		return 0, err
	}
	defer f.Abort()

	n, err := f.Write(data)
	if err != nil {
		return n, err
	}
	return n, f.Commit()
}
