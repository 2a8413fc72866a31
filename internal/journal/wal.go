package journal

import (
	"bufio"
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/yanun0323/errors"

	"scalper/internal/schema"
	"scalper/pkg/exception"
)

const (
	walVersion      uint16 = 1
	walHeaderSize          = 20
	walChecksumSize        = 4
	walMaxPayload          = 16 << 20

	defaultSegmentMaxBytes int64 = 64 << 20
	defaultWALBufferSize         = 64 * 1024
	defaultWALPrefix             = "journal"
)

var (
	walMagic    = [4]byte{'J', 'R', 'N', '1'}
	walCRCTable = crc32.MakeTable(crc32.Castagnoli)
)

// WALConfig controls the segmented file journal.
type WALConfig struct {
	Dir             string
	FilePrefix      string
	SegmentMaxBytes int64
	BufferSize      int
}

func (c WALConfig) withDefaults() WALConfig {
	if c.FilePrefix == "" {
		c.FilePrefix = defaultWALPrefix
	}
	if c.SegmentMaxBytes <= 0 {
		c.SegmentMaxBytes = defaultSegmentMaxBytes
	}
	if c.BufferSize <= 0 {
		c.BufferSize = defaultWALBufferSize
	}
	return c
}

// WALStore appends entries to checksummed segment files. Segments rotate on
// size and on UTC day change. Callers needing non-blocking writes wrap it in Async.
type WALStore struct {
	cfg   WALConfig
	mu    sync.Mutex
	seg   *segment
	segID uint64
	now   func() time.Time

	closed bool
}

type segment struct {
	file     *os.File
	buf      *bufio.Writer
	size     int64
	openedAt time.Time
}

// NewWALStore ensures the journal directory exists.
func NewWALStore(cfg WALConfig) (*WALStore, error) {
	cfg = cfg.withDefaults()
	if cfg.Dir == "" {
		return nil, errors.Wrap(exception.ErrInvalidArgument, "empty journal dir")
	}
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, errors.Wrap(err, "create journal dir").With("dir", cfg.Dir)
	}
	return &WALStore{cfg: cfg, now: func() time.Time { return time.Now().UTC() }}, nil
}

// Write frames e and flushes it to the active segment.
func (s *WALStore) Write(_ context.Context, e Entry) error {
	payload, err := sonic.ConfigFastest.Marshal(e)
	if err != nil {
		return errors.Wrap(err, "marshal journal entry").With("type", e.Type.String())
	}
	if len(payload) > walMaxPayload {
		return errors.Wrap(exception.ErrStorageTooLarge, "journal entry").With("size", len(payload))
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return exception.ErrStorageClosed
	}

	now := s.now()
	size := int64(walHeaderSize + len(payload) + walChecksumSize)
	if s.shouldRotate(now, size) {
		if err := s.closeSegment(); err != nil {
			return err
		}
		if err := s.openSegment(now); err != nil {
			return err
		}
	}

	var header [walHeaderSize]byte
	encodeWALHeader(header[:], e.Type, len(payload), now)
	var sum [walChecksumSize]byte
	binary.LittleEndian.PutUint32(sum[:], walChecksum(header[:], payload))

	for _, b := range [][]byte{header[:], payload, sum[:]} {
		if _, err := s.seg.buf.Write(b); err != nil {
			return errors.Wrap(err, "write journal record")
		}
	}
	s.seg.size += size
	if err := s.seg.buf.Flush(); err != nil {
		return errors.Wrap(err, "flush journal segment")
	}
	return nil
}

// Close syncs and closes the active segment.
func (s *WALStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.closeSegment()
}

func (s *WALStore) shouldRotate(now time.Time, next int64) bool {
	if s.seg == nil {
		return true
	}
	if s.seg.size+next > s.cfg.SegmentMaxBytes {
		return true
	}
	y1, m1, d1 := s.seg.openedAt.Date()
	y2, m2, d2 := now.Date()
	return y1 != y2 || m1 != m2 || d1 != d2
}

func (s *WALStore) openSegment(now time.Time) error {
	ts := now.Format("20060102-150405")
	for {
		s.segID++
		name := fmt.Sprintf("%s-%s-%06d.wal", s.cfg.FilePrefix, ts, s.segID)
		path := filepath.Join(s.cfg.Dir, name)
		file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0o644)
		if err != nil {
			if os.IsExist(err) {
				continue
			}
			return errors.Wrap(err, "open journal segment").With("path", path)
		}
		s.seg = &segment{file: file, buf: bufio.NewWriterSize(file, s.cfg.BufferSize), openedAt: now}
		return nil
	}
}

func (s *WALStore) closeSegment() error {
	seg := s.seg
	if seg == nil {
		return nil
	}
	s.seg = nil
	if err := seg.buf.Flush(); err != nil {
		_ = seg.file.Close()
		return errors.Wrap(err, "flush journal segment")
	}
	if err := seg.file.Sync(); err != nil {
		_ = seg.file.Close()
		return errors.Wrap(err, "sync journal segment")
	}
	return seg.file.Close()
}

func encodeWALHeader(dst []byte, t schema.EventType, payloadLen int, at time.Time) {
	_ = dst[walHeaderSize-1]
	copy(dst[0:4], walMagic[:])
	binary.LittleEndian.PutUint16(dst[4:6], walVersion)
	binary.LittleEndian.PutUint16(dst[6:8], uint16(t))
	binary.LittleEndian.PutUint32(dst[8:12], uint32(payloadLen))
	binary.LittleEndian.PutUint64(dst[12:20], uint64(at.UnixNano()))
}

func walChecksum(header, payload []byte) uint32 {
	crc := crc32.Update(0, walCRCTable, header)
	return crc32.Update(crc, walCRCTable, payload)
}

// WALReader decodes records sequentially from one segment.
type WALReader struct {
	r       *bufio.Reader
	header  [walHeaderSize]byte
	payload []byte
}

// NewWALReader wraps r.
func NewWALReader(r io.Reader) *WALReader {
	return &WALReader{r: bufio.NewReader(r)}
}

// Next returns the next entry and the time it was written. It returns io.EOF
// at a clean end of segment.
func (r *WALReader) Next() (Entry, time.Time, error) {
	n, err := io.ReadFull(r.r, r.header[:])
	if err != nil {
		if err == io.EOF && n == 0 {
			return Entry{}, time.Time{}, io.EOF
		}
		return Entry{}, time.Time{}, errors.Wrap(err, "read journal header")
	}
	if !bytes.Equal(r.header[0:4], walMagic[:]) {
		return Entry{}, time.Time{}, exception.ErrStorageBadMagic
	}
	if v := binary.LittleEndian.Uint16(r.header[4:6]); v != walVersion {
		return Entry{}, time.Time{}, errors.Wrap(exception.ErrStorageBadVersion, "journal record").With("version", v)
	}
	size := binary.LittleEndian.Uint32(r.header[8:12])
	if size > walMaxPayload {
		return Entry{}, time.Time{}, errors.Wrap(exception.ErrStorageTooLarge, "journal record").With("size", size)
	}
	at := time.Unix(0, int64(binary.LittleEndian.Uint64(r.header[12:20]))).UTC()

	if cap(r.payload) < int(size) {
		r.payload = make([]byte, size)
	}
	r.payload = r.payload[:size]
	if _, err := io.ReadFull(r.r, r.payload); err != nil {
		return Entry{}, time.Time{}, errors.Wrap(err, "read journal payload")
	}
	var sum [walChecksumSize]byte
	if _, err := io.ReadFull(r.r, sum[:]); err != nil {
		return Entry{}, time.Time{}, errors.Wrap(err, "read journal checksum")
	}
	if binary.LittleEndian.Uint32(sum[:]) != walChecksum(r.header[:], r.payload) {
		return Entry{}, time.Time{}, exception.ErrStorageChecksum
	}

	var e Entry
	if err := sonic.ConfigDefault.Unmarshal(r.payload, &e); err != nil {
		return Entry{}, time.Time{}, errors.Wrap(err, "decode journal entry")
	}
	return e, at, nil
}

// Segments lists the segment files under dir in write order.
func Segments(dir, prefix string) ([]string, error) {
	if prefix == "" {
		prefix = defaultWALPrefix
	}
	paths, err := filepath.Glob(filepath.Join(dir, prefix+"-*.wal"))
	if err != nil {
		return nil, errors.Wrap(err, "list journal segments").With("dir", dir)
	}
	sort.Strings(paths)
	return paths, nil
}

// ReadWAL calls fn for every entry in every segment under dir, oldest first.
func ReadWAL(dir, prefix string, fn func(at time.Time, e Entry) error) error {
	paths, err := Segments(dir, prefix)
	if err != nil {
		return err
	}
	for _, path := range paths {
		if err := readSegment(path, fn); err != nil {
			return errors.Wrap(err, "read journal segment").With("path", path)
		}
	}
	return nil
}

func readSegment(path string, fn func(at time.Time, e Entry) error) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	r := NewWALReader(f)
	for {
		e, at, err := r.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		if err := fn(at, e); err != nil {
			return err
		}
	}
}
