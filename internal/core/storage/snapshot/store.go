// Package snapshot stores instance records in a single zstd-compressed file:
// a JSON header line followed by a gob-encoded body.
package snapshot

import (
	"bufio"
	"context"
	"encoding/gob"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"

	"github.com/zeusync/harmonia/internal/core/instance"
	"github.com/zeusync/harmonia/internal/core/storage"
)

const formatVersion = 1

var _ storage.RecordStore = (*Store)(nil)

// Header is readable without decoding the body, e.g. with zstdcat | head -1.
type Header struct {
	Version int       `json:"version"`
	Records int       `json:"records"`
	SavedAt time.Time `json:"saved_at"`
}

type body struct {
	Header  Header
	Records []instance.Record
}

type Store struct {
	path string

	mu     sync.Mutex
	closed bool
}

func Open(path string) (*Store, error) {
	if path == "" {
		return nil, errors.New("snapshot: empty path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	return &Store{path: path}, nil
}

func (s *Store) Path() string { return s.path }

// SaveRecords writes to a temp file in the same directory and renames it over
// the previous snapshot, so readers never see a partial file.
func (s *Store) SaveRecords(ctx context.Context, records []instance.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return storage.ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), filepath.Base(s.path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer func() {
		if tmpName != "" {
			_ = os.Remove(tmpName)
		}
	}()

	snap := body{
		Header:  Header{Version: formatVersion, Records: len(records), SavedAt: time.Now().UTC()},
		Records: records,
	}
	if err := write(tmp, snap); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return err
	}
	tmpName = ""
	return nil
}

func write(f *os.File, snap body) error {
	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return err
	}
	bw := bufio.NewWriterSize(enc, 64*1024)

	hb, err := json.Marshal(snap.Header)
	if err != nil {
		_ = enc.Close()
		return err
	}
	if _, err := bw.Write(append(hb, '\n')); err != nil {
		_ = enc.Close()
		return err
	}
	if err := gob.NewEncoder(bw).Encode(&snap); err != nil {
		_ = enc.Close()
		return fmt.Errorf("gob encode: %w", err)
	}
	if err := bw.Flush(); err != nil {
		_ = enc.Close()
		return err
	}
	return enc.Close()
}

// LoadRecords returns no records when the snapshot file does not exist yet.
func (s *Store) LoadRecords(ctx context.Context) ([]instance.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, storage.ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	snap, err := readFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return snap.Records, nil
}

// ReadHeader decodes only the header line of a snapshot file.
func ReadHeader(path string) (Header, error) {
	var h Header
	f, err := os.Open(path)
	if err != nil {
		return h, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return h, err
	}
	defer dec.Close()

	line, err := bufio.NewReader(dec).ReadBytes('\n')
	if err != nil {
		return h, fmt.Errorf("%w: header: %v", storage.ErrCorrupt, err)
	}
	if err := json.Unmarshal(line, &h); err != nil {
		return h, fmt.Errorf("%w: header: %v", storage.ErrCorrupt, err)
	}
	return h, nil
}

// readFile decodes a full snapshot file.
func readFile(path string) (body, error) {
	var snap body
	f, err := os.Open(path)
	if err != nil {
		return snap, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return snap, err
	}
	defer dec.Close()

	br := bufio.NewReaderSize(dec, 64*1024)
	// The header is repeated inside the gob body.
	if _, err := br.ReadBytes('\n'); err != nil {
		return snap, fmt.Errorf("%w: header: %v", storage.ErrCorrupt, err)
	}
	if err := gob.NewDecoder(br).Decode(&snap); err != nil {
		return snap, fmt.Errorf("%w: gob decode: %v", storage.ErrCorrupt, err)
	}
	if snap.Header.Version != formatVersion {
		return snap, fmt.Errorf("%w: unsupported version %d", storage.ErrCorrupt, snap.Header.Version)
	}
	return snap, nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}
