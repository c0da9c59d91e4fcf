package audit

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// FileStore is the local durable backend: one append-only JSONL file, one
// record per line, fsynced per batch. The on-disk representation is
// self-describing — every line carries its predecessor's hash — so the file
// is independently verifiable with nothing but this package.
type FileStore struct {
	mu   sync.Mutex
	path string
	file *os.File

	lastSeq  uint64
	lastHash string
	count    uint64
}

// NewFileStore opens (or creates) the log at path and scans it to recover the
// chain tail so a restarted writer continues the existing chain.
func NewFileStore(path string) (*FileStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("create audit log dir: %w", err)
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open audit log: %w", err)
	}

	s := &FileStore{path: path, file: file}
	if err := s.recoverTail(); err != nil {
		file.Close()
		return nil, err
	}
	return s, nil
}

func (s *FileStore) recoverTail() error {
	f, err := os.Open(s.path)
	if err != nil {
		return fmt.Errorf("scan audit log: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var rec Record
		if err := json.Unmarshal(line, &rec); err != nil {
			return fmt.Errorf("malformed audit record while recovering tail: %w", err)
		}
		s.lastSeq = rec.SequenceNo
		s.lastHash = rec.RecordHash
		s.count++
	}
	return scanner.Err()
}

func (s *FileStore) Append(ctx context.Context, batch []Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	w := bufio.NewWriter(s.file)
	for _, rec := range batch {
		line, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("marshal audit record %d: %w", rec.SequenceNo, err)
		}
		if _, err := w.Write(append(line, '\n')); err != nil {
			return fmt.Errorf("write audit record %d: %w", rec.SequenceNo, err)
		}
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("flush audit batch: %w", err)
	}
	if err := s.file.Sync(); err != nil {
		return fmt.Errorf("fsync audit log: %w", err)
	}

	last := batch[len(batch)-1]
	s.lastSeq = last.SequenceNo
	s.lastHash = last.RecordHash
	s.count += uint64(len(batch))
	return nil
}

func (s *FileStore) Read(ctx context.Context, from, to uint64) ([]Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := os.Open(s.path)
	if err != nil {
		return nil, fmt.Errorf("open audit log: %w", err)
	}
	defer f.Close()

	var out []Record
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var rec Record
		if err := json.Unmarshal(line, &rec); err != nil {
			return nil, fmt.Errorf("malformed audit record: %w", err)
		}
		if rec.SequenceNo > to {
			break
		}
		if rec.SequenceNo >= from {
			out = append(out, rec)
		}
	}
	return out, scanner.Err()
}

func (s *FileStore) Last(ctx context.Context) (*Record, error) {
	s.mu.Lock()
	empty := s.count == 0
	lastSeq := s.lastSeq
	s.mu.Unlock()
	if empty {
		return nil, nil
	}
	recs, err := s.Read(ctx, lastSeq, lastSeq)
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, nil
	}
	return &recs[0], nil
}

// LastHash returns the chain tail recovered at open time or advanced by
// appends, so the writer can resume an existing chain.
func (s *FileStore) LastHash() (seq uint64, hash string, empty bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.count == 0 {
		return 0, "", true
	}
	return s.lastSeq, s.lastHash, false
}

func (s *FileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.file.Close()
}
