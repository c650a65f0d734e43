package trace

import (
	"bytes"
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"sync"
	"testing"
	"time"
)

func readBuffer(t *testing.T, buf *Buffer) *Reader {
	t.Helper()
	data := buf.Bytes()
	r, err := NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatalf("NewReader: %v", err)
	}
	return r
}

func TestTrace(t *testing.T) {
	buf := new(Buffer)
	log := Open(buf)
	log.WithSource("translate/root").Writef(KindOp, "movi_i32 r0, %d", 5)
	if err := log.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	r := readBuffer(t, buf)
	var seen []Record
	if err := r.Each(func(rec Record) error {
		seen = append(seen, rec)
		return nil
	}); err != nil {
		t.Fatalf("Each: %v", err)
	}

	if len(seen) != 1 {
		t.Fatalf("expected 1 record, got %d", len(seen))
	}
	if seen[0].Source != "translate/root" || seen[0].Kind != KindOp || string(seen[0].Data) != "movi_i32 r0, 5" {
		t.Fatalf("unexpected record %v", seen[0])
	}
}

func TestTraceFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trace.bin")
	log, err := OpenFile(path)
	if err != nil {
		t.Fatalf("OpenFile: %v", err)
	}
	log.Write(KindBoundary, "f", "0x1000")
	log.Write(KindTrap, "g", "untraced state")
	if err := log.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	r, closer, err := OpenReader(path)
	if err != nil {
		t.Fatalf("OpenReader: %v", err)
	}
	defer closer.Close()

	if got := r.Sources(); len(got) != 2 || got[0] != "f" || got[1] != "g" {
		t.Fatalf("Sources = %v", got)
	}
	n, err := r.Count(SearchOptions{Kinds: []Kind{KindTrap}})
	if err != nil || n != 1 {
		t.Fatalf("Count(trap) = %d, %v", n, err)
	}
}

func TestNilLogDiscards(t *testing.T) {
	var log *Log
	src := log.WithSource("x")
	src.Writef(KindText, "ignored %d", 1)
	if err := log.Close(); err != nil {
		t.Fatalf("Close on nil log: %v", err)
	}
}

var errFull = errors.New("device full")

type fullWriter struct{}

func (fullWriter) WriteAt([]byte, int64) (int, error) { return 0, errFull }

func (fullWriter) Close() error { return nil }

func TestCloseReportsWriteError(t *testing.T) {
	log := Open(fullWriter{})

	var wg sync.WaitGroup
	for i := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			log.WithSource(fmt.Sprintf("translate/f%d", i)).Write(KindOp, "nop")
		}()
	}
	// Closing while writers still fail must be safe.
	_ = log.Close()
	wg.Wait()

	err := log.Close()
	if !errors.Is(err, errFull) {
		t.Fatalf("Close = %v, want %v", err, errFull)
	}
}

func TestTraceOrdering(t *testing.T) {
	buf := new(Buffer)
	log := Open(buf)

	var wg sync.WaitGroup
	for i := range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			src := log.WithSource(fmt.Sprintf("translate/f%d", i))
			for j := range 10 {
				time.Sleep(time.Millisecond * time.Duration(i))
				src.Writef(KindOp, "op %d", j)
			}
		}()
	}
	wg.Wait()

	r := readBuffer(t, buf)
	if r.Len() != 40 {
		t.Fatalf("expected 40 records, got %d", r.Len())
	}

	var last time.Time
	if err := r.Each(func(rec Record) error {
		if rec.Time.Before(last) {
			t.Fatalf("records out of order at %v", rec)
		}
		last = rec.Time
		return nil
	}); err != nil {
		t.Fatalf("Each: %v", err)
	}

	var ops []string
	if err := r.EachSource("translate/f2", func(rec Record) error {
		ops = append(ops, string(rec.Data))
		return nil
	}); err != nil {
		t.Fatalf("EachSource: %v", err)
	}
	if len(ops) != 10 || ops[0] != "op 0" || ops[9] != "op 9" {
		t.Fatalf("per-source order broken: %v", ops)
	}
}

func TestSearch(t *testing.T) {
	buf := new(Buffer)
	log := Open(buf)
	for i := range 5 {
		log.Write(KindOp, "translate/a", fmt.Sprintf("add_i32 %d", i))
		log.Write(KindOp, "translate/b", fmt.Sprintf("sub_i32 %d", i))
	}

	r := readBuffer(t, buf)

	collect := func(opts SearchOptions) []string {
		var out []string
		if err := r.Search(opts, func(rec Record) error {
			out = append(out, string(rec.Data))
			return nil
		}); err != nil {
			t.Fatalf("Search: %v", err)
		}
		return out
	}

	if got := collect(SearchOptions{Match: regexp.MustCompile(`^sub`)}); len(got) != 5 {
		t.Fatalf("match sub = %v", got)
	}
	if got := collect(SearchOptions{SourcePattern: regexp.MustCompile(`/a$`), LimitEnd: 2}); len(got) != 2 || got[1] != "add_i32 4" {
		t.Fatalf("tail of a = %v", got)
	}
	if got := collect(SearchOptions{LimitStart: 3}); len(got) != 3 {
		t.Fatalf("head = %v", got)
	}
	if err := r.Search(SearchOptions{LimitStart: 1, LimitEnd: 1}, func(Record) error { return nil }); err == nil {
		t.Fatalf("expected error for both limits")
	}
}

func TestParseKind(t *testing.T) {
	for k := KindText; k < kindCount; k++ {
		got, ok := ParseKind(k.String())
		if !ok || got != k {
			t.Fatalf("ParseKind(%q) = %v, %v", k.String(), got, ok)
		}
	}
	if _, ok := ParseKind("invalid"); ok {
		t.Fatalf("invalid kind parsed")
	}
}
