package main

import (
	"flag"
	"fmt"
	"os"
	"regexp"
	"runtime/pprof"
	"strings"
	"time"

	"github.com/tinyrange/lift/internal/trace"
)

const defaultLimit = 100

func parseKinds(spec string) ([]trace.Kind, error) {
	if spec == "" {
		return nil, nil
	}
	var kinds []trace.Kind
	for _, name := range strings.Split(spec, ",") {
		k, ok := trace.ParseKind(strings.TrimSpace(name))
		if !ok {
			return nil, fmt.Errorf("unknown record kind %q", name)
		}
		kinds = append(kinds, k)
	}
	return kinds, nil
}

func run() error {
	// Flags
	list := flag.Bool("list", false, "list all sources in the log")
	sample := flag.Bool("sample", false, "print one record from each matched source")
	timeRange := flag.Bool("range", false, "print the earliest and latest timestamps")
	source := flag.String("source", "", "regex to filter sources")
	match := flag.String("match", "", "regex to filter messages")
	kind := flag.String("kind", "", "comma-separated record kinds to show (op, boundary, block, trap, text)")
	limit := flag.Int("limit", defaultLimit, "limit the number of entries (0 for unlimited)")
	tail := flag.Bool("tail", false, "show last N entries instead of first N")
	cpuprofile := flag.String("cpuprofile", "", "write CPU profile to file")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, `debug - inspect binary translation traces

USAGE:
  debug [flags] <filename>

FLAGS:
  -list          List all unique source names in the log, one per line
  -sample        Print one record from each matched source
  -range         Show earliest/latest timestamps and total duration
  -source REGEX  Only show entries where source matches regex (Go regexp syntax)
  -match REGEX   Only show entries where message matches regex (Go regexp syntax)
  -kind KINDS    Only show entries of the given kinds, e.g. "boundary,trap"
  -limit N       Max entries to return (default: 100). Errors if exceeded; use -tail or 0 for unlimited
  -tail          Show last N entries instead of first N (combine with -limit)

OUTPUT FORMAT:
  Each entry is printed as: TIMESTAMP [SOURCE] KIND MESSAGE
  Timestamps are RFC3339Nano format (e.g. 2024-01-15T10:30:00.123456789Z)

EXAMPLES:
  debug trace.bin                              Show entries (errors if >100)
  debug -tail trace.bin                        Show last 100 entries
  debug -limit 0 trace.bin                     Show all entries (no limit)
  debug -list trace.bin                        List all translated functions
  debug -source '^translate/main$' trace.bin   Entries of one function
  debug -kind trap trace.bin                   Every trapped instruction
  debug -kind boundary -match '0x1000 ' trace.bin
`)
	}
	flag.Parse()

	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(1)
	}

	if *cpuprofile != "" {
		f, err := os.Create(*cpuprofile)
		if err != nil {
			return fmt.Errorf("create CPU profile file: %w", err)
		}
		defer f.Close()
		if err := pprof.StartCPUProfile(f); err != nil {
			return fmt.Errorf("start CPU profile: %w", err)
		}
		defer pprof.StopCPUProfile()
	}

	reader, closer, err := trace.OpenReader(flag.Arg(0))
	if err != nil {
		return fmt.Errorf("failed to open trace: %w", err)
	}
	defer closer.Close()

	// Handle -list
	if *list {
		for _, src := range reader.Sources() {
			fmt.Println(src)
		}
		return nil
	}

	// Handle -range
	if *timeRange {
		earliest, latest := reader.TimeRange()
		fmt.Printf("earliest: %s\nlatest:   %s\nduration: %s\nrecords:  %d\n",
			earliest, latest, latest.Sub(earliest), reader.Len())
		return nil
	}

	opts := trace.SearchOptions{}
	if *source != "" {
		if opts.SourcePattern, err = regexp.Compile(*source); err != nil {
			return fmt.Errorf("invalid source regex: %w", err)
		}
	}
	if *match != "" {
		if opts.Match, err = regexp.Compile(*match); err != nil {
			return fmt.Errorf("invalid match regex: %w", err)
		}
	}
	if opts.Kinds, err = parseKinds(*kind); err != nil {
		return err
	}

	show := func(rec trace.Record) error {
		fmt.Println(rec)
		return nil
	}

	// Handle -sample
	if *sample {
		for _, src := range reader.Sources() {
			if opts.SourcePattern != nil && !opts.SourcePattern.MatchString(src) {
				continue
			}
			one := opts
			one.Sources = []string{src}
			one.LimitStart = 1
			if err := reader.Search(one, show); err != nil {
				return fmt.Errorf("failed to sample trace: %w", err)
			}
		}
		return nil
	}

	// The default limit refuses to silently truncate; an explicit one does.
	if *limit == defaultLimit && !*tail {
		n, err := reader.Count(opts)
		if err != nil {
			return fmt.Errorf("failed to read trace: %w", err)
		}
		if n > *limit {
			return fmt.Errorf("too many entries: %d (limit is %d). Use -tail for last %d, or explicitly set a limit using -limit", n, *limit, *limit)
		}
	}
	if *limit > 0 {
		if *tail {
			opts.LimitEnd = *limit
		} else {
			opts.LimitStart = *limit
		}
	}

	start := time.Now()
	if err := reader.Search(opts, show); err != nil {
		return fmt.Errorf("failed to read trace: %w", err)
	}
	if time.Since(start) > time.Second {
		fmt.Fprintf(os.Stderr, "debug: search took %s\n", time.Since(start).Round(time.Millisecond))
	}

	return nil
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "debug: %v\n", err)
		os.Exit(1)
	}
}
