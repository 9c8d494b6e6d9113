package storage

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// Note: log files are single-writer. The engine serializes every append,
// truncate and replace through its owner; these helpers do not coordinate
// concurrent callers.

// OpenAppend opens (creating if needed) the log at path for reading and
// appending. The parent directory is created when missing.
func OpenAppend(path string) (*os.File, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("mkdir: %w", err)
		}
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open: %w", err)
	}
	return f, nil
}

// Create opens a fresh, empty file for appending, discarding any previous content.
func Create(path string) (*os.File, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("create: %w", err)
	}
	return f, nil
}

// Write appends data through writer and makes it durable: the buffer is
// flushed to file and the file is fsynced before returning.
func Write(writer *bufio.Writer, file *os.File, data []byte) error {
	if _, err := writer.Write(data); err != nil {
		return fmt.Errorf("write: %w", err)
	}
	return Sync(writer, file)
}

// Sync flushes writer and fsyncs file.
func Sync(writer *bufio.Writer, file *os.File) error {
	if err := writer.Flush(); err != nil {
		return fmt.Errorf("flush: %w", err)
	}
	if err := file.Sync(); err != nil {
		return fmt.Errorf("fsync: %w", err)
	}
	return nil
}

// Size returns the current size of the file in bytes.
func Size(file *os.File) (int64, error) {
	info, err := file.Stat()
	if err != nil {
		return 0, fmt.Errorf("stat: %w", err)
	}
	return info.Size(), nil
}

// Truncate cuts file back to size bytes and syncs the result.
func Truncate(file *os.File, size int64) error {
	if err := file.Truncate(size); err != nil {
		return fmt.Errorf("truncate: %w", err)
	}
	if err := file.Sync(); err != nil {
		return fmt.Errorf("fsync: %w", err)
	}
	return nil
}

// CopyTail copies every byte of file from offset to the end into a new file
// at dst and syncs it.
func CopyTail(file *os.File, offset int64, dst string) error {
	size, err := Size(file)
	if err != nil {
		return err
	}
	out, err := os.OpenFile(dst, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("create: %w", err)
	}
	defer out.Close()
	if _, err := io.Copy(out, io.NewSectionReader(file, offset, size-offset)); err != nil {
		return fmt.Errorf("copy: %w", err)
	}
	if err := out.Sync(); err != nil {
		return fmt.Errorf("fsync: %w", err)
	}
	return nil
}

// Rename atomically replaces dst with src. Callers follow up with SyncDir to
// make the new directory entry durable.
func Rename(src, dst string) error {
	if err := os.Rename(src, dst); err != nil {
		return fmt.Errorf("rename: %w", err)
	}
	return nil
}

// SyncDir fsyncs a directory entry.
func SyncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return fmt.Errorf("open dir: %w", err)
	}
	defer d.Close()
	if err := d.Sync(); err != nil {
		return fmt.Errorf("fsync dir: %w", err)
	}
	return nil
}
