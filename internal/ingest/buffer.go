package ingest

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
)

// Buffer is the append-only file the feed writes raw records into. The
// ingestion loop reads it whole and discards the processed prefix.
type Buffer struct {
	path string
	mu   sync.Mutex
}

// NewBuffer creates a buffer backed by path. The file is created on the
// first append.
func NewBuffer(path string) *Buffer {
	return &Buffer{path: path}
}

// Path returns the backing file
func (b *Buffer) Path() string {
	return b.path
}

// Append writes p to the end of the buffer
func (b *Buffer) Append(p []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	f, err := os.OpenFile(b.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open buffer: %w", err)
	}
	if _, err := f.Write(p); err != nil {
		f.Close()
		return fmt.Errorf("failed to append to buffer: %w", err)
	}
	return f.Close()
}

// Read returns the whole pending buffer. A missing file reads as empty.
func (b *Buffer) Read() ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.read()
}

func (b *Buffer) read() ([]byte, error) {
	data, err := os.ReadFile(b.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read buffer: %w", err)
	}
	return data, nil
}

// Size returns the number of pending bytes
func (b *Buffer) Size() (int64, error) {
	info, err := os.Stat(b.path)
	if errors.Is(err, fs.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

// Discard drops the first n bytes. Bytes appended after the caller's Read
// are kept. The remainder is written to a temp file and renamed over the
// buffer, so a crash leaves either the old or the new contents.
func (b *Buffer) Discard(n int) error {
	if n <= 0 {
		return nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	data, err := b.read()
	if err != nil {
		return err
	}
	if n > len(data) {
		return fmt.Errorf("cannot discard %d bytes from a %d byte buffer", n, len(data))
	}
	return writeAtomic(b.path, data[n:])
}

// writeAtomic writes data to a temp file in the same directory and renames
// it over path
func writeAtomic(path string, data []byte) error {
	tmpFile, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+"-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmpFile.Write(data); err != nil {
		tmpFile.Close()
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmpFile.Sync(); err != nil {
		tmpFile.Close()
		return fmt.Errorf("failed to sync temp file: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("failed to replace %s: %w", path, err)
	}

	success = true
	return nil
}
