package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"

	"github.com/schollz/progressbar/v3"
	"github.com/tebeka/atexit"
	"golang.org/x/term"

	"github.com/tinyrange/lift/internal/arch"
	"github.com/tinyrange/lift/internal/ir"
	"github.com/tinyrange/lift/internal/lift"
	"github.com/tinyrange/lift/internal/ptc"
	"github.com/tinyrange/lift/internal/trace"
)

func run() error {
	output := flag.String("o", "", "write the IR to `file` instead of stdout")
	traceFile := flag.String("trace", "", "record a binary translation trace to `file`")
	jobs := flag.Int("j", 0, "translate at most `n` functions at once (0 for no limit)")
	strip := flag.Bool("strip", false, "drop instruction boundary annotations")
	verbose := flag.Bool("v", false, "enable debug logging")
	source := flag.String("source", "", "override the source architecture (name or descriptor file)")
	target := flag.String("target", "", "override the target architecture (name or descriptor file)")
	noProgress := flag.Bool("no-progress", false, "never show a progress bar")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, `lift - translate micro-operation listings into IR

USAGE:
  lift [flags] <listing.yaml>

FLAGS:
`)
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() != 1 {
		flag.Usage()
		atexit.Exit(1)
	}

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	listing, err := ptc.LoadListing(flag.Arg(0))
	if err != nil {
		return err
	}

	opts := lift.Options{
		Logger: logger,
		Strip:  *strip,
		Jobs:   *jobs,
	}
	if *source != "" {
		d, err := arch.Resolve(*source)
		if err != nil {
			return fmt.Errorf("source architecture: %w", err)
		}
		opts.Source = &d
	}
	if *target != "" {
		d, err := arch.Resolve(*target)
		if err != nil {
			return fmt.Errorf("target architecture: %w", err)
		}
		opts.Target = &d
	}

	if *traceFile != "" {
		log, err := trace.OpenFile(*traceFile)
		if err != nil {
			return fmt.Errorf("open trace: %w", err)
		}
		atexit.Register(func() {
			if err := log.Close(); err != nil {
				logger.Error("close trace", slog.Any("err", err))
			}
		})
		opts.Trace = log
	}

	if !*noProgress && term.IsTerminal(int(os.Stderr.Fd())) && len(listing.Functions) > 1 {
		bar := progressbar.Default(int64(len(listing.Functions)), "translating")
		defer bar.Close()
		opts.Progress = func(string) { _ = bar.Add(1) }
	}

	lifter, err := lift.New(listing, opts)
	if err != nil {
		return err
	}
	logger.Debug("translating listing",
		slog.String("source", lifter.Source().String()),
		slog.String("target", lifter.Target().String()),
		slog.Int("functions", len(listing.Functions)))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if _, err := lifter.TranslateAll(ctx); err != nil {
		return err
	}

	var w io.Writer = os.Stdout
	if *output != "" {
		f, err := os.Create(*output)
		if err != nil {
			return fmt.Errorf("create output: %w", err)
		}
		defer f.Close()
		w = f
	}
	bw := bufio.NewWriter(w)
	if err := ir.Fprint(bw, lifter.Module()); err != nil {
		return fmt.Errorf("write IR: %w", err)
	}
	return bw.Flush()
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "lift: %v\n", err)
		atexit.Exit(1)
	}
	atexit.Exit(0)
}
