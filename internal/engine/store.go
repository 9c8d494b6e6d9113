package engine

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
	"os"
	"path/filepath"

	"github.com/google/btree"
	"github.com/sirupsen/logrus"

	"replkv/internal/model"
	"replkv/internal/storage"
)

const (
	btreeDegree       = 32
	writerBufferBytes = 64 * 1024
	compactionSuffix  = ".tmp"
)

type item struct {
	key   string
	value string
}

func lessItem(a, b item) bool {
	return a.key < b.key
}

// Store is a log-structured key-value store. Every mutation is appended to a
// single log file and made durable before the in-memory index changes; the
// index is rebuilt by replaying the log on Open.
//
// A Store is not safe for concurrent use. Share it through Shared.
type Store struct {
	path   string
	file   *os.File
	writer *bufio.Writer
	index  *btree.BTreeG[item]
	size   int64
	closed bool
	// failed holds the error of a rollback that could not trim a partial
	// record. Appends are refused until a compaction or reopen.
	failed error
	log    logrus.FieldLogger
}

type Option func(*Store)

// WithLogger sets the logger used for recovery and compaction events.
func WithLogger(l logrus.FieldLogger) Option {
	return func(s *Store) {
		if l != nil {
			s.log = l
		}
	}
}

// Open opens or creates the log at path and replays it into memory.
//
// Replay stops cleanly at the end of the last complete record; a torn record
// left by an interrupted write is copied to <path>.tail-<offset> and trimmed
// from the file. A complete record that fails verification, or a header whose
// length no record can have, aborts Open with a *CorruptionError and leaves
// the file untouched.
func Open(path string, opts ...Option) (*Store, error) {
	file, err := storage.OpenAppend(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrOpen, path, err)
	}

	s := &Store{
		path:  path,
		file:  file,
		index: btree.NewG[item](btreeDegree, lessItem),
		log:   logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.WithField("path", path)

	end, err := s.replay()
	if err != nil {
		_ = file.Close()
		var corrupt *CorruptionError
		if errors.As(err, &corrupt) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: replay %s: %w", ErrOpen, path, err)
	}

	size, err := storage.Size(file)
	if err != nil {
		_ = file.Close()
		return nil, fmt.Errorf("%w: %s: %w", ErrOpen, path, err)
	}
	if end < size {
		tail := fmt.Sprintf("%s.tail-%d", path, end)
		if err := storage.CopyTail(file, end, tail); err != nil {
			_ = file.Close()
			return nil, fmt.Errorf("%w: preserve tail of %s: %w", ErrOpen, path, err)
		}
		s.log.WithFields(logrus.Fields{"offset": end, "saved": tail}).
			Warnf("discarding %d bytes of incomplete record at end of log", size-end)
		if err := storage.Truncate(file, end); err != nil {
			_ = file.Close()
			return nil, fmt.Errorf("%w: %s: %w", ErrOpen, path, err)
		}
	}

	s.size = end
	s.writer = bufio.NewWriterSize(file, writerBufferBytes)
	s.log.Infof("loaded %d keys from log (%d bytes)", s.index.Len(), end)
	return s, nil
}

// replay applies every complete record from the start of the file and
// returns the offset just past the last one applied.
func (s *Store) replay() (int64, error) {
	size, err := storage.Size(s.file)
	if err != nil {
		return 0, err
	}
	if _, err := s.file.Seek(0, io.SeekStart); err != nil {
		return 0, fmt.Errorf("seek: %w", err)
	}

	reader := bufio.NewReaderSize(s.file, writerBufferBytes)
	header := make([]byte, headerBytes)
	var offset int64

	for {
		if _, err := io.ReadFull(reader, header); err != nil {
			if err == io.EOF {
				return offset, nil
			}
			if err == io.ErrUnexpectedEOF {
				s.log.WithField("offset", offset).Warn("truncated record header at end of log")
				return offset, nil
			}
			return offset, fmt.Errorf("read header at offset %d: %w", offset, err)
		}

		expected := binary.LittleEndian.Uint32(header[0:checksumBytes])
		length := binary.LittleEndian.Uint64(header[checksumBytes:headerBytes])

		if length > maxPayloadBytes {
			return offset, &CorruptionError{
				Offset:   offset,
				Expected: expected,
				Err:      fmt.Errorf("record length %d exceeds limit %d", length, uint64(maxPayloadBytes)),
			}
		}

		remaining := size - offset - headerBytes
		if length > uint64(remaining) {
			s.log.WithField("offset", offset).Warnf("truncated record at end of log: want %d payload bytes, have %d", length, remaining)
			return offset, nil
		}

		payload := make([]byte, length)
		if _, err := io.ReadFull(reader, payload); err != nil {
			if err == io.ErrUnexpectedEOF || err == io.EOF {
				s.log.WithField("offset", offset).Warn("truncated record payload at end of log")
				return offset, nil
			}
			return offset, fmt.Errorf("read payload at offset %d: %w", offset, err)
		}

		if actual := crc32.ChecksumIEEE(payload); actual != expected {
			return offset, &CorruptionError{Offset: offset, Expected: expected, Actual: actual}
		}

		cmd, err := decodePayload(payload)
		if err != nil {
			return offset, &CorruptionError{Offset: offset, Expected: expected, Actual: expected, Err: err}
		}
		s.apply(cmd)

		offset += headerBytes + int64(length)
	}
}

func (s *Store) apply(cmd model.Command) {
	switch cmd.Op {
	case model.SET:
		s.index.ReplaceOrInsert(item{key: cmd.Key, value: cmd.Value})
	case model.REMOVE:
		s.index.Delete(item{key: cmd.Key})
	}
}

// append makes cmd durable. On failure the partially written record is
// trimmed so later appends stay reachable on replay.
func (s *Store) append(cmd model.Command) error {
	if s.closed {
		return ErrClosed
	}
	if s.failed != nil {
		return fmt.Errorf("%w: append %s: log holds an untrimmed partial record: %w", ErrIO, cmd.Op, s.failed)
	}
	record := encodeRecord(cmd)
	if err := storage.Write(s.writer, s.file, record); err != nil {
		s.rollback()
		return fmt.Errorf("%w: append %s: %w", ErrIO, cmd.Op, err)
	}
	s.size += int64(len(record))
	return nil
}

func (s *Store) rollback() {
	s.writer.Reset(s.file)
	if err := storage.Truncate(s.file, s.size); err != nil {
		s.failed = err
		s.log.WithError(err).Error("failed to trim partial record; refusing writes until compaction or reopen")
	}
}

// Set durably logs key=value, then updates the index.
func (s *Store) Set(key, value string) error {
	cmd := model.SetCommand(key, value)
	if err := s.append(cmd); err != nil {
		return err
	}
	s.apply(cmd)
	return nil
}

// Get returns the current value of key.
func (s *Store) Get(key string) (string, bool) {
	it, ok := s.index.Get(item{key: key})
	return it.value, ok
}

// Remove durably logs the removal of key, then drops it from the index.
// It returns ErrNotFound without touching the log when key is absent.
func (s *Store) Remove(key string) error {
	if !s.index.Has(item{key: key}) {
		return ErrNotFound
	}
	cmd := model.RemoveCommand(key)
	if err := s.append(cmd); err != nil {
		return err
	}
	s.apply(cmd)
	return nil
}

// Scan returns the entries with start <= key < end in ascending key order.
func (s *Store) Scan(start, end string) []model.KeyValue {
	out := make([]model.KeyValue, 0)
	if start >= end {
		return out
	}
	s.index.AscendRange(item{key: start}, item{key: end}, func(it item) bool {
		out = append(out, model.KeyValue{Key: it.key, Value: it.value})
		return true
	})
	return out
}

// Compact rewrites the log so it holds exactly one SET record per live key.
//
// The new log is written through its own handle to <path>.tmp, synced and
// renamed over the current log. Until the rename succeeds the original log
// and its writer are left untouched. A successful compaction also clears a
// failed rollback, since the new log is rebuilt from the index alone.
func (s *Store) Compact() error {
	if s.closed {
		return ErrClosed
	}
	tmpPath := s.path + compactionSuffix

	tmp, err := storage.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("%w: compact: %w", ErrIO, err)
	}
	writer := bufio.NewWriterSize(tmp, writerBufferBytes)

	var written int64
	var werr error
	s.index.Ascend(func(it item) bool {
		record := encodeRecord(model.SetCommand(it.key, it.value))
		if _, werr = writer.Write(record); werr != nil {
			return false
		}
		written += int64(len(record))
		return true
	})
	if werr == nil {
		werr = storage.Sync(writer, tmp)
	}
	if werr == nil {
		werr = storage.Rename(tmpPath, s.path)
	}
	if werr != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("%w: compact: %w", ErrIO, werr)
	}

	if err := storage.SyncDir(filepath.Dir(s.path)); err != nil {
		s.log.WithError(err).Warn("compaction rename may not be durable")
	}

	live, err := storage.OpenAppend(s.path)
	if err != nil {
		// tmp now names the same inode as path.
		s.log.WithError(err).Warn("reopen after compaction failed; keeping compaction handle")
		live = tmp
	} else {
		_ = tmp.Close()
	}

	old := s.file
	before := s.size
	s.file = live
	s.writer = bufio.NewWriterSize(live, writerBufferBytes)
	s.size = written
	s.failed = nil
	if err := old.Close(); err != nil {
		s.log.WithError(err).Warn("close pre-compaction log")
	}

	s.log.Infof("compacted log from %d to %d bytes (%d keys)", before, written, s.index.Len())
	return nil
}

// Len returns the number of live keys.
func (s *Store) Len() int {
	return s.index.Len()
}

// Size returns the size of the log file in bytes.
func (s *Store) Size() int64 {
	return s.size
}

// Path returns the location of the log file.
func (s *Store) Path() string {
	return s.path
}

// Close flushes and closes the log.
func (s *Store) Close() error {
	if s.closed {
		return ErrClosed
	}
	s.closed = true
	if err := s.writer.Flush(); err != nil {
		_ = s.file.Close()
		return fmt.Errorf("%w: close: %w", ErrIO, err)
	}
	if err := s.file.Close(); err != nil {
		return fmt.Errorf("%w: close: %w", ErrIO, err)
	}
	return nil
}
