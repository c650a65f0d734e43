package trace

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"regexp"
	"sort"
	"time"
)

// Record is one decoded trace entry.
type Record struct {
	Time   time.Time
	Kind   Kind
	Source string
	Data   []byte
}

func (r Record) String() string {
	return fmt.Sprintf("%s [%s] %s %s", r.Time.Format(time.RFC3339Nano), r.Source, r.Kind, r.Data)
}

type SearchOptions struct {
	// The start and end timestamps to search within.
	Start time.Time
	End   time.Time

	// LimitStart only returns the first N entries after the start timestamp.
	// LimitEnd only returns the last N entries before the end timestamp.
	// Setting both is an error.
	LimitStart int
	LimitEnd   int

	// Only return entries for the given sources.
	Sources []string
	// Only return entries whose source matches.
	SourcePattern *regexp.Regexp
	// Only return entries of the given kinds.
	Kinds []Kind
	// Only return entries whose payload matches.
	Match *regexp.Regexp
}

type indexEntry struct {
	offset   int64
	unixNano int64
	kind     Kind
	source   int
	seq      int
}

// Reader indexes a trace log for searching. Records are returned in
// timestamp order, ties broken by position in the log.
type Reader struct {
	r io.ReaderAt

	entries []indexEntry
	sources []string

	earliest int64
	latest   int64
}

// NewReader indexes the size bytes of log available through r.
func NewReader(r io.ReaderAt, size int64) (*Reader, error) {
	ret := &Reader{r: r}
	if err := ret.index(io.NewSectionReader(r, 0, size)); err != nil {
		return nil, fmt.Errorf("trace: index: %w", err)
	}
	return ret, nil
}

// OpenReader indexes the log stored in filename.
func OpenReader(filename string) (*Reader, io.Closer, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, nil, err
	}
	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, nil, err
	}
	r, err := NewReader(f, fi.Size())
	if err != nil {
		f.Close()
		return nil, nil, fmt.Errorf("%s: %w", filename, err)
	}
	return r, f, nil
}

func (r *Reader) index(src io.Reader) error {
	br := bufio.NewReaderSize(src, 1<<20)
	byName := make(map[string]int)

	var (
		header [headerSize]byte
		source [64 * 1024]byte
		offset int64
	)
	for {
		if _, err := io.ReadFull(br, header[:]); err != nil {
			if err == io.EOF {
				break
			}
			return fmt.Errorf("read header at %d: %w", offset, err)
		}
		kind, sourceLength, dataLength, ts := decodeHeader(header)
		if kind == KindInvalid {
			// Unwritten space left by a writer that never finished.
			break
		}
		if _, err := io.ReadFull(br, source[:sourceLength]); err != nil {
			return fmt.Errorf("read source at %d: %w", offset, err)
		}
		if _, err := br.Discard(int(dataLength)); err != nil {
			return fmt.Errorf("skip payload at %d: %w", offset, err)
		}

		name := string(source[:sourceLength])
		id, ok := byName[name]
		if !ok {
			id = len(r.sources)
			byName[name] = id
			r.sources = append(r.sources, name)
		}

		if r.earliest == 0 || ts < r.earliest {
			r.earliest = ts
		}
		if ts > r.latest {
			r.latest = ts
		}

		r.entries = append(r.entries, indexEntry{
			offset:   offset,
			unixNano: ts,
			kind:     kind,
			source:   id,
			seq:      len(r.entries),
		})
		offset += headerSize + int64(sourceLength) + int64(dataLength)
	}

	sort.SliceStable(r.entries, func(i, j int) bool {
		return r.entries[i].unixNano < r.entries[j].unixNano
	})
	return nil
}

// Sources lists every source in the order first written.
func (r *Reader) Sources() []string {
	return append([]string(nil), r.sources...)
}

func (r *Reader) TimeRange() (time.Time, time.Time) {
	return time.Unix(0, r.earliest), time.Unix(0, r.latest)
}

func (r *Reader) Len() int { return len(r.entries) }

func (r *Reader) read(e indexEntry) (Record, error) {
	var header [headerSize]byte
	if _, err := r.r.ReadAt(header[:], e.offset); err != nil {
		return Record{}, err
	}
	_, sourceLength, dataLength, _ := decodeHeader(header)
	data := make([]byte, dataLength)
	if _, err := r.r.ReadAt(data, e.offset+headerSize+int64(sourceLength)); err != nil && err != io.EOF {
		return Record{}, err
	}
	return Record{
		Time:   time.Unix(0, e.unixNano),
		Kind:   e.kind,
		Source: r.sources[e.source],
		Data:   data,
	}, nil
}

// Search calls fn for every record matching opts.
func (r *Reader) Search(opts SearchOptions, fn func(Record) error) error {
	if opts.LimitStart > 0 && opts.LimitEnd > 0 {
		return fmt.Errorf("trace: cannot set both LimitStart and LimitEnd")
	}

	sourceOK := make([]bool, len(r.sources))
	for id, name := range r.sources {
		sourceOK[id] = opts.SourcePattern == nil || opts.SourcePattern.MatchString(name)
	}
	if len(opts.Sources) > 0 {
		wanted := make(map[string]bool, len(opts.Sources))
		for _, s := range opts.Sources {
			wanted[s] = true
		}
		for id, name := range r.sources {
			sourceOK[id] = sourceOK[id] && wanted[name]
		}
	}
	var kindOK [kindCount]bool
	for k := range kindOK {
		kindOK[k] = len(opts.Kinds) == 0
	}
	for _, k := range opts.Kinds {
		if k < kindCount {
			kindOK[k] = true
		}
	}

	var matched []Record
	for _, e := range r.entries {
		if !sourceOK[e.source] || e.kind >= kindCount || !kindOK[e.kind] {
			continue
		}
		ts := time.Unix(0, e.unixNano)
		if !opts.Start.IsZero() && ts.Before(opts.Start) {
			continue
		}
		if !opts.End.IsZero() && ts.After(opts.End) {
			continue
		}
		rec, err := r.read(e)
		if err != nil {
			return err
		}
		if opts.Match != nil && !opts.Match.Match(rec.Data) {
			continue
		}
		matched = append(matched, rec)
	}

	if opts.LimitStart > 0 && len(matched) > opts.LimitStart {
		matched = matched[:opts.LimitStart]
	}
	if opts.LimitEnd > 0 && len(matched) > opts.LimitEnd {
		matched = matched[len(matched)-opts.LimitEnd:]
	}

	for _, rec := range matched {
		if err := fn(rec); err != nil {
			return err
		}
	}
	return nil
}

// Each calls fn for every record.
func (r *Reader) Each(fn func(Record) error) error {
	return r.Search(SearchOptions{}, fn)
}

// EachSource calls fn for every record written by source.
func (r *Reader) EachSource(source string, fn func(Record) error) error {
	return r.Search(SearchOptions{Sources: []string{source}}, fn)
}

// Count returns the number of records matching opts.
func (r *Reader) Count(opts SearchOptions) (int, error) {
	n := 0
	err := r.Search(opts, func(Record) error {
		n++
		return nil
	})
	return n, err
}
