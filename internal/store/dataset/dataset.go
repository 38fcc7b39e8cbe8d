// Package dataset implements the bulk columnar file backend: one
// append-only binary dataset file per (instrument, resolution), grouped
// into resolution-family and instrument-prefix directories.
//
// A dataset file is a fixed 32-byte header followed by fixed-width encoded
// records. The header record count is the commit point: record bytes are
// written and synced before the count is bumped, so a crash mid-append
// leaves unreachable trailing bytes but never a torn committed row. The
// bounded tail-replace overwrite is the only in-place mutation.
//
// Files are not safe for concurrent writers; an in-process lock per file
// path serializes writers, and cross-process single-writer discipline is a
// deployment contract.
package dataset

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log"
	"math"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"kline-archive/internal/codec"
	"kline-archive/internal/domain"
	"kline-archive/internal/observability"
	"kline-archive/internal/store"
)

const (
	headerSize = 32
	recordSize = 88

	magic   = uint32(0x4b445331) // "KDS1"
	version = uint32(1)
)

// Store is the file-backed BarStore implementation.
type Store struct {
	root string
	log  *log.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// New creates a file store rooted at dir. A nil logger discards output.
func New(dir string, logger *log.Logger) *Store {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Store{
		root:  dir,
		log:   logger,
		locks: make(map[string]*sync.Mutex),
	}
}

// Compile-time interface check.
var _ store.BarStore = (*Store)(nil)

// Path returns the dataset file path for an (instrument, resolution) pair.
func (s *Store) Path(instrument string, res domain.Resolution) string {
	prefix := domain.InstrumentPrefix(instrument)
	name := fmt.Sprintf("%s-%d.kds", instrument, int(res))
	return filepath.Join(s.root, string(res.Family()), prefix, name)
}

func (s *Store) validate(instrument string, res domain.Resolution) error {
	if err := domain.ValidateInstrument(instrument); err != nil {
		return fmt.Errorf("%w: %v", store.ErrInvalidInstrument, err)
	}
	if !res.IsNative() {
		return fmt.Errorf("%w: %d", store.ErrUnsupportedResolution, int(res))
	}
	return nil
}

func (s *Store) fileLock(path string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[path]
	if !ok {
		l = &sync.Mutex{}
		s.locks[path] = l
	}
	return l
}

// Append merges ascending bars into the dataset file per the tail-replace
// rule and returns the number of rows written.
func (s *Store) Append(ctx context.Context, instrument string, res domain.Resolution, bars []domain.Bar) (written int, err error) {
	started := time.Now()
	defer func() {
		observability.RecordStoreOp("file", "append", time.Since(started).Seconds(), err)
	}()
	return s.append(ctx, instrument, res, bars)
}

func (s *Store) append(ctx context.Context, instrument string, res domain.Resolution, bars []domain.Bar) (int, error) {
	if err := s.validate(instrument, res); err != nil {
		return 0, err
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if len(bars) == 0 {
		return 0, nil
	}

	path := s.Path(instrument, res)
	lock := s.fileLock(path)
	lock.Lock()
	defer lock.Unlock()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return 0, fmt.Errorf("create dataset dir: %w", err)
	}

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return 0, fmt.Errorf("open dataset %s: %w", path, err)
	}
	defer f.Close()

	count, err := readOrInitHeader(f, res)
	if err != nil {
		return 0, err
	}

	var lastTime int64
	tailRun := 0
	if count > 0 {
		lastTime, tailRun, err = tailState(f, count)
		if err != nil {
			return 0, err
		}
	}

	plan, err := store.PlanAppend(lastTime, tailRun, codec.EncodeAll(bars))
	if err != nil {
		return 0, err
	}
	if len(plan.Bars) == 0 {
		return 0, nil
	}

	start := headerSize + (count-int64(plan.Replace))*recordSize
	buf := make([]byte, len(plan.Bars)*recordSize)
	for i, e := range plan.Bars {
		marshalRecord(buf[i*recordSize:], e)
	}
	if _, err := f.WriteAt(buf, start); err != nil {
		return 0, fmt.Errorf("write records: %w", err)
	}
	if err := f.Sync(); err != nil {
		return 0, fmt.Errorf("sync records: %w", err)
	}

	newCount := count - int64(plan.Replace) + int64(len(plan.Bars))
	if err := writeCount(f, newCount); err != nil {
		return 0, err
	}
	// Drop bytes past the committed region (shrinking tail replaces and
	// stale bytes from an interrupted earlier append).
	if err := f.Truncate(headerSize + newCount*recordSize); err != nil {
		return 0, fmt.Errorf("truncate dataset: %w", err)
	}
	if err := f.Sync(); err != nil {
		return 0, fmt.Errorf("sync header: %w", err)
	}

	return len(plan.Bars), nil
}

// Read returns the most recent n bars oldest-first, or all when n <= 0.
func (s *Store) Read(ctx context.Context, instrument string, res domain.Resolution, n int) (bars []domain.Bar, err error) {
	started := time.Now()
	defer func() {
		observability.RecordStoreOp("file", "read", time.Since(started).Seconds(), err)
	}()

	encs, err := s.readEncoded(ctx, instrument, res)
	if err != nil || encs == nil {
		return nil, err
	}
	if n > 0 && len(encs) > n {
		encs = encs[len(encs)-n:]
	}
	return codec.DecodeAll(encs, res), nil
}

// ReadAfter returns bars strictly newer than after, oldest-first, keeping
// only the most recent limit bars when limit > 0.
func (s *Store) ReadAfter(ctx context.Context, instrument string, res domain.Resolution, after time.Time, limit int) ([]domain.Bar, error) {
	encs, err := s.readEncoded(ctx, instrument, res)
	if err != nil || encs == nil {
		return nil, err
	}
	cut := codec.EncodeTime(after)
	i := sort.Search(len(encs), func(i int) bool { return encs[i].Time > cut })
	encs = encs[i:]
	if limit > 0 && len(encs) > limit {
		encs = encs[len(encs)-limit:]
	}
	return codec.DecodeAll(encs, res), nil
}

// MinTime returns the oldest bar time; ok is false for an absent or empty
// dataset.
func (s *Store) MinTime(ctx context.Context, instrument string, res domain.Resolution) (time.Time, bool, error) {
	return s.edgeTime(ctx, instrument, res, false)
}

// MaxTime returns the newest bar time (the file backend's watermark).
func (s *Store) MaxTime(ctx context.Context, instrument string, res domain.Resolution) (time.Time, bool, error) {
	return s.edgeTime(ctx, instrument, res, true)
}

func (s *Store) edgeTime(ctx context.Context, instrument string, res domain.Resolution, last bool) (time.Time, bool, error) {
	if err := s.validate(instrument, res); err != nil {
		return time.Time{}, false, err
	}
	if err := ctx.Err(); err != nil {
		return time.Time{}, false, err
	}

	f, count, err := s.openForRead(instrument, res)
	if err != nil || f == nil {
		return time.Time{}, false, err
	}
	defer f.Close()
	if count == 0 {
		return time.Time{}, false, nil
	}

	idx := int64(0)
	if last {
		idx = count - 1
	}
	rec := make([]byte, recordSize)
	if _, err := f.ReadAt(rec, headerSize+idx*recordSize); err != nil {
		return time.Time{}, false, fmt.Errorf("read record %d: %w", idx, err)
	}
	e := unmarshalRecord(rec)
	return codec.DecodeTime(e.Time, res.DateOnly()), true, nil
}

// TrimBefore removes bars strictly older than cutoff by rewriting the file
// through a staging copy and an atomic rename.
func (s *Store) TrimBefore(ctx context.Context, instrument string, res domain.Resolution, cutoff time.Time) (int64, error) {
	if err := s.validate(instrument, res); err != nil {
		return 0, err
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	path := s.Path(instrument, res)
	lock := s.fileLock(path)
	lock.Lock()
	defer lock.Unlock()

	encs, err := s.readEncodedLocked(path, res)
	if err != nil || encs == nil {
		return 0, err
	}

	cut := codec.EncodeTime(cutoff)
	i := sort.Search(len(encs), func(i int) bool { return encs[i].Time >= cut })
	if i == 0 {
		return 0, nil
	}
	kept := encs[i:]

	tmp := path + ".trim"
	if err := writeDataset(tmp, res, kept); err != nil {
		return 0, err
	}
	if err := os.Rename(tmp, path); err != nil {
		return 0, fmt.Errorf("replace dataset: %w", err)
	}
	s.log.Printf("trimmed %d rows from %s", i, path)
	return int64(i), nil
}

// Delete removes the dataset file. An absent file is not an error.
func (s *Store) Delete(ctx context.Context, instrument string, res domain.Resolution) error {
	if err := s.validate(instrument, res); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	path := s.Path(instrument, res)
	lock := s.fileLock(path)
	lock.Lock()
	defer lock.Unlock()

	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("delete dataset %s: %w", path, err)
	}
	return nil
}

// readEncoded returns the whole committed dataset, nil when absent.
func (s *Store) readEncoded(ctx context.Context, instrument string, res domain.Resolution) ([]codec.EncodedBar, error) {
	if err := s.validate(instrument, res); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.readEncodedLocked(s.Path(instrument, res), res)
}

func (s *Store) readEncodedLocked(path string, res domain.Resolution) ([]codec.EncodedBar, error) {
	f, count, err := openDataset(path, res)
	if err != nil || f == nil {
		return nil, err
	}
	defer f.Close()

	buf := make([]byte, count*recordSize)
	if _, err := f.ReadAt(buf, headerSize); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("read dataset %s: %w", path, err)
	}
	encs := make([]codec.EncodedBar, count)
	for i := range encs {
		encs[i] = unmarshalRecord(buf[i*recordSize:])
	}
	return encs, nil
}

func (s *Store) openForRead(instrument string, res domain.Resolution) (*os.File, int64, error) {
	return openDataset(s.Path(instrument, res), res)
}

// openDataset opens an existing dataset and returns its committed record
// count. A missing file yields (nil, 0, nil).
func openDataset(path string, res domain.Resolution) (*os.File, int64, error) {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, 0, nil
	}
	if err != nil {
		return nil, 0, fmt.Errorf("open dataset %s: %w", path, err)
	}

	var hdr [headerSize]byte
	if _, err := io.ReadFull(f, hdr[:]); err != nil {
		f.Close()
		return nil, 0, fmt.Errorf("read dataset header %s: %w", path, err)
	}
	if binary.LittleEndian.Uint32(hdr[0:4]) != magic {
		f.Close()
		return nil, 0, fmt.Errorf("dataset %s: bad magic", path)
	}
	if got := domain.Resolution(binary.LittleEndian.Uint64(hdr[8:16])); got != res {
		f.Close()
		return nil, 0, fmt.Errorf("dataset %s: resolution mismatch, file has %d", path, int(got))
	}
	count := int64(binary.LittleEndian.Uint64(hdr[16:24]))

	// Never trust the count past the physical file size: a crash between
	// header update and truncate can leave either one ahead of the other.
	if fi, err := f.Stat(); err == nil {
		if avail := (fi.Size() - headerSize) / recordSize; count > avail {
			count = avail
		}
	}
	if count < 0 {
		count = 0
	}
	return f, count, nil
}

func readOrInitHeader(f *os.File, res domain.Resolution) (int64, error) {
	fi, err := f.Stat()
	if err != nil {
		return 0, fmt.Errorf("stat dataset: %w", err)
	}
	if fi.Size() == 0 {
		var hdr [headerSize]byte
		binary.LittleEndian.PutUint32(hdr[0:4], magic)
		binary.LittleEndian.PutUint32(hdr[4:8], version)
		binary.LittleEndian.PutUint64(hdr[8:16], uint64(res))
		if _, err := f.WriteAt(hdr[:], 0); err != nil {
			return 0, fmt.Errorf("write dataset header: %w", err)
		}
		return 0, nil
	}

	var hdr [headerSize]byte
	if _, err := f.ReadAt(hdr[:], 0); err != nil {
		return 0, fmt.Errorf("read dataset header: %w", err)
	}
	if binary.LittleEndian.Uint32(hdr[0:4]) != magic {
		return 0, fmt.Errorf("dataset %s: bad magic", f.Name())
	}
	if got := domain.Resolution(binary.LittleEndian.Uint64(hdr[8:16])); got != res {
		return 0, fmt.Errorf("dataset %s: resolution mismatch, file has %d", f.Name(), int(got))
	}
	count := int64(binary.LittleEndian.Uint64(hdr[16:24]))
	if avail := (fi.Size() - headerSize) / recordSize; count > avail {
		count = avail
	}
	if count < 0 {
		count = 0
	}
	return count, nil
}

func writeCount(f *os.File, count int64) error {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], uint64(count))
	if _, err := f.WriteAt(b[:], 16); err != nil {
		return fmt.Errorf("write record count: %w", err)
	}
	return nil
}

// tailState returns the packed time of the last committed record and the
// length of the trailing run of records sharing it, capped just past
// store.MaxTailRun.
func tailState(f *os.File, count int64) (int64, int, error) {
	rec := make([]byte, recordSize)
	if _, err := f.ReadAt(rec, headerSize+(count-1)*recordSize); err != nil {
		return 0, 0, fmt.Errorf("read tail record: %w", err)
	}
	lastTime := unmarshalRecord(rec).Time

	run := 1
	for i := count - 2; i >= 0 && run <= store.MaxTailRun; i-- {
		if _, err := f.ReadAt(rec, headerSize+i*recordSize); err != nil {
			return 0, 0, fmt.Errorf("read record %d: %w", i, err)
		}
		if unmarshalRecord(rec).Time != lastTime {
			break
		}
		run++
	}
	return lastTime, run, nil
}

// writeDataset writes a complete dataset file (header + records) and syncs
// it. Used by the staging path of TrimBefore.
func writeDataset(path string, res domain.Resolution, encs []codec.EncodedBar) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("create staging file: %w", err)
	}
	defer f.Close()

	var hdr [headerSize]byte
	binary.LittleEndian.PutUint32(hdr[0:4], magic)
	binary.LittleEndian.PutUint32(hdr[4:8], version)
	binary.LittleEndian.PutUint64(hdr[8:16], uint64(res))
	binary.LittleEndian.PutUint64(hdr[16:24], uint64(len(encs)))
	if _, err := f.Write(hdr[:]); err != nil {
		return fmt.Errorf("write staging header: %w", err)
	}

	buf := make([]byte, len(encs)*recordSize)
	for i, e := range encs {
		marshalRecord(buf[i*recordSize:], e)
	}
	if _, err := f.Write(buf); err != nil {
		return fmt.Errorf("write staging records: %w", err)
	}
	if err := f.Sync(); err != nil {
		return fmt.Errorf("sync staging file: %w", err)
	}
	return nil
}

// marshalRecord packs one encoded bar into 88 little-endian bytes.
func marshalRecord(b []byte, e codec.EncodedBar) {
	le := binary.LittleEndian
	le.PutUint64(b[0:], uint64(e.Time))
	le.PutUint64(b[8:], uint64(e.Open))
	le.PutUint64(b[16:], uint64(e.High))
	le.PutUint64(b[24:], uint64(e.Low))
	le.PutUint64(b[32:], uint64(e.Close))
	le.PutUint64(b[40:], uint64(e.Volume))
	le.PutUint64(b[48:], uint64(e.Amount))
	le.PutUint64(b[56:], uint64(e.ChangePx))
	le.PutUint64(b[64:], math.Float64bits(e.Change))
	le.PutUint64(b[72:], math.Float64bits(e.Amplitude))
	le.PutUint64(b[80:], math.Float64bits(e.Turnover))
}

func unmarshalRecord(b []byte) codec.EncodedBar {
	le := binary.LittleEndian
	return codec.EncodedBar{
		Time:      int64(le.Uint64(b[0:])),
		Open:      int64(le.Uint64(b[8:])),
		High:      int64(le.Uint64(b[16:])),
		Low:       int64(le.Uint64(b[24:])),
		Close:     int64(le.Uint64(b[32:])),
		Volume:    int64(le.Uint64(b[40:])),
		Amount:    int64(le.Uint64(b[48:])),
		ChangePx:  int64(le.Uint64(b[56:])),
		Change:    math.Float64frombits(le.Uint64(b[64:])),
		Amplitude: math.Float64frombits(le.Uint64(b[72:])),
		Turnover:  math.Float64frombits(le.Uint64(b[80:])),
	}
}
