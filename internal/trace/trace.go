// Package trace records what the translator does in a compact binary log.
//
// Every record carries a timestamp, a kind, a source (one per translated
// function) and a payload. Writers reserve space by atomically advancing the
// log offset, so concurrent translators append without locking. The layout
// of one record is:
//
//   - 2 bytes kind
//   - 2 bytes source length
//   - 4 bytes payload length
//   - 8 bytes timestamp (nanoseconds since epoch)
//   - source bytes
//   - payload bytes
package trace

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"time"
)

type Kind uint16

const (
	KindInvalid Kind = iota
	// KindText is free-form text.
	KindText
	// KindOp is one translated micro-operation.
	KindOp
	// KindBoundary is an original instruction boundary.
	KindBoundary
	// KindBlock is a change of insertion block.
	KindBlock
	// KindTrap is a recoverable failure replaced by a trap.
	KindTrap
	kindCount
)

var kindNames = [kindCount]string{
	KindInvalid:  "invalid",
	KindText:     "text",
	KindOp:       "op",
	KindBoundary: "boundary",
	KindBlock:    "block",
	KindTrap:     "trap",
}

func (k Kind) String() string {
	if k < kindCount {
		return kindNames[k]
	}
	return fmt.Sprintf("kind(%d)", uint16(k))
}

// ParseKind resolves a kind by name.
func ParseKind(name string) (Kind, bool) {
	for k, n := range kindNames {
		if k != int(KindInvalid) && n == name {
			return Kind(k), true
		}
	}
	return KindInvalid, false
}

const headerSize = 16

type Writer interface {
	io.WriterAt
	io.Closer
}

// Log appends records to a Writer. A nil *Log discards everything.
type Log struct {
	w      Writer
	offset atomic.Uint64
	// err holds the first write error.
	err atomic.Pointer[error]
}

func Open(w Writer) *Log {
	return &Log{w: w}
}

// OpenFile creates or truncates filename and logs to it.
func OpenFile(filename string) (*Log, error) {
	f, err := os.OpenFile(filename, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, err
	}
	return Open(f), nil
}

// Close closes the underlying writer and reports the first write error, if
// any.
func (l *Log) Close() error {
	if l == nil {
		return nil
	}
	cerr := l.w.Close()
	if err := l.err.Load(); err != nil {
		return *err
	}
	return cerr
}

func (l *Log) fail(err error) {
	wrapped := fmt.Errorf("trace: write: %w", err)
	l.err.CompareAndSwap(nil, &wrapped)
}

func encodeHeader(kind Kind, source string, data []byte, now time.Time) []byte {
	header := make([]byte, headerSize, headerSize+len(source)+len(data))
	binary.LittleEndian.PutUint16(header[0:2], uint16(kind))
	binary.LittleEndian.PutUint16(header[2:4], uint16(len(source)))
	binary.LittleEndian.PutUint32(header[4:8], uint32(len(data)))
	binary.LittleEndian.PutUint64(header[8:16], uint64(now.UnixNano()))
	return header
}

func decodeHeader(header [headerSize]byte) (kind Kind, sourceLength uint16, dataLength uint32, ts int64) {
	kind = Kind(binary.LittleEndian.Uint16(header[0:2]))
	sourceLength = binary.LittleEndian.Uint16(header[2:4])
	dataLength = binary.LittleEndian.Uint32(header[4:8])
	ts = int64(binary.LittleEndian.Uint64(header[8:16]))
	return
}

func (l *Log) write(kind Kind, source string, data []byte) {
	if l == nil {
		return
	}
	if len(source) > 0xffff {
		source = source[:0xffff]
	}

	rec := encodeHeader(kind, source, data, time.Now())
	rec = append(rec, source...)
	rec = append(rec, data...)

	size := uint64(len(rec))
	off := l.offset.Add(size) - size
	if _, err := l.w.WriteAt(rec, int64(off)); err != nil {
		l.fail(err)
	}
}

func (l *Log) Write(kind Kind, source, msg string) {
	l.write(kind, source, []byte(msg))
}

// WithSource returns a handle that tags every record with source.
func (l *Log) WithSource(source string) *Source {
	if l == nil {
		return nil
	}
	return &Source{log: l, name: source}
}

// Source writes records for one source. A nil *Source discards everything.
type Source struct {
	log  *Log
	name string
}

func (s *Source) Name() string {
	if s == nil {
		return ""
	}
	return s.name
}

func (s *Source) Write(kind Kind, msg string) {
	if s == nil {
		return
	}
	s.log.write(kind, s.name, []byte(msg))
}

func (s *Source) Writef(kind Kind, format string, args ...any) {
	if s == nil {
		return
	}
	s.log.write(kind, s.name, fmt.Appendf(nil, format, args...))
}

type chunk struct {
	off  int64
	data []byte
}

// Buffer is an in-memory Writer. Records may arrive out of order; Bytes
// assembles them.
type Buffer struct {
	data    sync.Map
	maxSize atomic.Int64
}

func (b *Buffer) WriteAt(p []byte, off int64) (int, error) {
	b.data.Store(off, chunk{off: off, data: append([]byte{}, p...)})
	end := int64(len(p)) + off
	for {
		cur := b.maxSize.Load()
		if cur >= end || b.maxSize.CompareAndSwap(cur, end) {
			break
		}
	}
	return len(p), nil
}

func (b *Buffer) Close() error { return nil }

func (b *Buffer) Bytes() []byte {
	out := make([]byte, b.maxSize.Load())
	b.data.Range(func(_, value any) bool {
		c := value.(chunk)
		copy(out[c.off:], c.data)
		return true
	})
	return out
}
