// Package lift drives translation of whole functions: it walks the
// translation blocks reachable from each function's entry through the
// jump-target worklist, feeds their operations to a translator and
// finalizes the resulting IR.
package lift

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/tinyrange/lift/internal/arch"
	"github.com/tinyrange/lift/internal/ir"
	"github.com/tinyrange/lift/internal/jumptarget"
	"github.com/tinyrange/lift/internal/ptc"
	"github.com/tinyrange/lift/internal/state"
	"github.com/tinyrange/lift/internal/trace"
	"github.com/tinyrange/lift/internal/translate"
)

type Options struct {
	// Logger defaults to slog.Default().
	Logger *slog.Logger
	// Trace receives per-operation records under "translate/<function>".
	// Optional.
	Trace *trace.Log

	// Source and Target override the architectures named by the listing.
	// A listing without a target translates for the host.
	Source *arch.Descriptor
	Target *arch.Descriptor

	// Strip drops instruction-boundary annotations from the output.
	Strip bool
	// Jobs bounds the number of functions translated at once. Zero or
	// less means no limit.
	Jobs int
	// Progress is called once per translated function. It may be called
	// from several goroutines at once.
	Progress func(name string)
}

// Lifter translates the functions of one listing into one module.
type Lifter struct {
	listing *ptc.Listing
	layout  *state.Layout
	module  *ir.Module
	source  arch.Descriptor
	target  arch.Descriptor
	opts    Options
	logger  *slog.Logger
}

func New(listing *ptc.Listing, opts Options) (*Lifter, error) {
	layout, err := state.FromListing(listing.Slots)
	if err != nil {
		return nil, fmt.Errorf("lift: %w", err)
	}

	l := &Lifter{
		listing: listing,
		layout:  layout,
		module:  ir.NewModule("lift"),
		opts:    opts,
		logger:  opts.Logger,
	}
	if l.logger == nil {
		l.logger = slog.Default()
	}

	switch {
	case opts.Source != nil:
		l.source = *opts.Source
	case listing.Source != "":
		if l.source, err = arch.Resolve(listing.Source); err != nil {
			return nil, fmt.Errorf("lift: source architecture: %w", err)
		}
	default:
		return nil, errors.New("lift: listing names no source architecture")
	}

	switch {
	case opts.Target != nil:
		l.target = *opts.Target
	case listing.Target != "":
		if l.target, err = arch.Resolve(listing.Target); err != nil {
			return nil, fmt.Errorf("lift: target architecture: %w", err)
		}
	default:
		l.target = arch.Host()
	}

	return l, nil
}

func (l *Lifter) Module() *ir.Module { return l.module }

func (l *Lifter) Source() arch.Descriptor { return l.source }

func (l *Lifter) Target() arch.Descriptor { return l.target }

// TranslateFunction translates the code reachable from def's entry into a
// new function of the module.
func (l *Lifter) TranslateFunction(ctx context.Context, def ptc.FunctionDef) (*ir.Function, error) {
	fn, err := l.module.NewFunction(def.Name, ir.Void)
	if err != nil {
		return nil, fmt.Errorf("lift: %w", err)
	}
	if err := l.translate(ctx, fn, def.Entry); err != nil {
		return nil, err
	}
	return fn, nil
}

// TranslateAll translates every function of the listing, several at once.
// Functions appear in the module in listing order.
func (l *Lifter) TranslateAll(ctx context.Context) ([]*ir.Function, error) {
	fns := make([]*ir.Function, len(l.listing.Functions))
	for i, def := range l.listing.Functions {
		fn, err := l.module.NewFunction(def.Name, ir.Void)
		if err != nil {
			return nil, fmt.Errorf("lift: %w", err)
		}
		fns[i] = fn
	}

	g, ctx := errgroup.WithContext(ctx)
	if l.opts.Jobs > 0 {
		g.SetLimit(l.opts.Jobs)
	}
	for i, def := range l.listing.Functions {
		g.Go(func() error {
			if err := l.translate(ctx, fns[i], def.Entry); err != nil {
				return err
			}
			if l.opts.Progress != nil {
				l.opts.Progress(def.Name)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return fns, nil
}

// function holds the per-function collaborators.
type function struct {
	fn     *ir.Function
	b      *ir.Builder
	jt     *jumptarget.Manager
	tr     *translate.Translator
	logger *slog.Logger
}

func (l *Lifter) translate(ctx context.Context, fn *ir.Function, entry uint64) error {
	b := ir.NewBuilder(fn)
	vars := state.New(l.layout, fn)
	jt := jumptarget.New(fn, jumptarget.Options{PC: vars.PCVar()})

	var src *trace.Source
	if l.opts.Trace != nil {
		src = l.opts.Trace.WithSource("translate/" + fn.Name)
	}

	f := &function{
		fn: fn,
		b:  b,
		jt: jt,
		tr: translate.New(b, translate.Options{
			Variables:    vars,
			JumpTargets:  jt,
			Disassembler: l.listing,
			Source:       l.source,
			Target:       l.target,
			Trace:        src,
		}),
		logger: l.logger.With(slog.String("function", fn.Name)),
	}

	jt.BlockAt(entry)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		address, blk, ok := jt.Next()
		if !ok {
			break
		}
		tb, ok := l.listing.Block(address)
		if !ok {
			f.logger.Debug("no code at jump target", slog.String("address", fmt.Sprintf("0x%x", address)))
			f.tr.StartBlock(blk)
			b.Call(jt.ExitRoutine())
			b.Unreachable()
			continue
		}
		if err := f.translateBlock(tb, blk); err != nil {
			return fmt.Errorf("lift: %s: %w", fn.Name, err)
		}
	}

	if err := f.finalize(l.opts.Strip); err != nil {
		return fmt.Errorf("lift: %s: %w", fn.Name, err)
	}
	f.logger.Debug("translated function",
		slog.Int("blocks", len(fn.Blocks)),
		slog.Int("instructions", fn.InstrCount()))
	return nil
}

// translateBlock translates one translation block into blk and the blocks
// its control flow creates.
func (f *function) translateBlock(tb *ptc.TranslationBlock, blk *ir.Block) error {
	f.tr.StartBlock(blk)

	pc := tb.PC
	first := true
	trapped := false
	for _, insn := range tb.Insns {
		if insn.Op() == ptc.OpInsnStart {
			stop, next, err := f.tr.NewInstruction(insn, first)
			if err != nil {
				return err
			}
			if stop {
				// The rest was translated before; NewInstruction branched there.
				return f.tr.Finish(next)
			}
			first = false
			trapped = false
			pc = next
			continue
		}
		if trapped {
			continue
		}
		if err := f.tr.Translate(insn, pc); err != nil {
			if !translate.Recoverable(err) {
				return err
			}
			f.logger.Debug("trapping instruction",
				slog.String("address", fmt.Sprintf("0x%x", pc)),
				slog.Any("err", err))
			f.tr.Trap(err)
			trapped = true
		}
	}

	if err := f.tr.Finish(tb.End); err != nil {
		return err
	}
	f.fallThrough(tb.End)
	return nil
}

// fallThrough branches from the current block to the code following the
// translation block, unless the block is a dead leftover of a terminator.
func (f *function) fallThrough(end uint64) {
	cur := f.b.Block()
	if cur.Terminated() {
		return
	}
	_, registered := f.jt.Address(cur)
	if cur.Empty() && !registered && cur != f.fn.Entry() && len(f.fn.Predecessors(cur)) == 0 {
		return
	}
	f.b.Br(f.jt.BlockAt(end))
}

// finalize removes unreachable leftovers of terminators, terminates what is
// left open and checks the result.
func (f *function) finalize(strip bool) error {
	entry := f.fn.Entry()
	for {
		var dead []*ir.Block
		for _, blk := range f.fn.Blocks {
			if blk == entry {
				continue
			}
			if _, ok := f.jt.Address(blk); ok {
				continue
			}
			if len(f.fn.Predecessors(blk)) == 0 {
				dead = append(dead, blk)
			}
		}
		if len(dead) == 0 {
			break
		}
		for _, blk := range dead {
			f.fn.RemoveBlock(blk)
		}
	}

	for _, blk := range f.fn.Blocks {
		if !blk.Terminated() {
			f.b.SetInsertPoint(blk)
			f.b.Unreachable()
		}
	}

	if strip {
		f.fn.StripMarkers()
	}
	return ir.Verify(f.fn)
}
