package ptc

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"

	"golang.org/x/mod/semver"
	"gopkg.in/yaml.v3"
)

// ListingVersion is the newest listing format understood by DecodeListing.
const ListingVersion = "v1.0.0"

// SlotDef declares a typed storage slot referenced by operation operands.
type SlotDef struct {
	ID   uint64 `yaml:"id"`
	Name string `yaml:"name"`
	Type string `yaml:"type"`
	// Kind is "global" for process state or "temp" (the default) for
	// function-local temporaries.
	Kind   string `yaml:"kind,omitempty"`
	Offset *int64 `yaml:"offset,omitempty"`
	Env    bool   `yaml:"env,omitempty"`
	PC     bool   `yaml:"pc,omitempty"`
}

type FunctionDef struct {
	Name  string `yaml:"name"`
	Entry uint64 `yaml:"entry"`
}

// Row is the listing spelling of one operation: the opcode name followed by
// its operands in outputs, inputs, constants order.
type Row []any

// TranslationBlock is the decoder's output for one run of guest code
// starting at PC and ending right before End.
type TranslationBlock struct {
	PC  uint64 `yaml:"pc"`
	End uint64 `yaml:"end"`
	Ops []Row  `yaml:"ops"`

	Insns []Instruction `yaml:"-"`
}

// Listing is a decoded micro-operation listing, as produced by the front-end
// decoder and consumed by the lifter.
type Listing struct {
	Version   string              `yaml:"version"`
	Source    string              `yaml:"source"`
	Target    string              `yaml:"target,omitempty"`
	Slots     []SlotDef           `yaml:"slots"`
	Helpers   []*Helper           `yaml:"helpers,omitempty"`
	Functions []FunctionDef       `yaml:"functions"`
	Blocks    []*TranslationBlock `yaml:"blocks"`
	Disasm    map[uint64]string   `yaml:"disasm,omitempty"`

	helpers Helpers
	blocks  map[uint64]*TranslationBlock
}

// LoadListing reads and decodes the listing at path.
func LoadListing(path string) (*Listing, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	l, err := DecodeListing(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return l, nil
}

// DecodeListing parses a YAML listing and decodes every operation.
func DecodeListing(r io.Reader) (*Listing, error) {
	var l Listing
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&l); err != nil {
		return nil, fmt.Errorf("ptc: parse listing: %w", err)
	}
	if err := l.init(); err != nil {
		return nil, err
	}
	return &l, nil
}

func (l *Listing) init() error {
	if l.Version == "" {
		l.Version = ListingVersion
	}
	if !semver.IsValid(l.Version) {
		return fmt.Errorf("ptc: invalid listing version %q", l.Version)
	}
	if semver.Major(l.Version) != semver.Major(ListingVersion) || semver.Compare(l.Version, ListingVersion) > 0 {
		return fmt.Errorf("ptc: unsupported listing version %s (newest %s)", l.Version, ListingVersion)
	}

	seen := make(map[uint64]bool, len(l.Slots))
	for _, s := range l.Slots {
		if seen[s.ID] {
			return fmt.Errorf("ptc: slot %d declared twice", s.ID)
		}
		seen[s.ID] = true
	}

	l.helpers = make(Helpers, len(l.Helpers))
	for _, h := range l.Helpers {
		if err := l.helpers.Add(h); err != nil {
			return err
		}
	}

	l.blocks = make(map[uint64]*TranslationBlock, len(l.Blocks))
	for _, tb := range l.Blocks {
		if tb.End <= tb.PC {
			return fmt.Errorf("ptc: block 0x%x ends at 0x%x", tb.PC, tb.End)
		}
		if _, dup := l.blocks[tb.PC]; dup {
			return fmt.Errorf("ptc: block 0x%x listed twice", tb.PC)
		}
		l.blocks[tb.PC] = tb

		tb.Insns = make([]Instruction, 0, len(tb.Ops))
		for idx, row := range tb.Ops {
			insn, err := l.decodeRow(row)
			if err != nil {
				return fmt.Errorf("ptc: block 0x%x op %d: %w", tb.PC, idx, err)
			}
			tb.Insns = append(tb.Insns, insn)
		}
	}
	return nil
}

func (l *Listing) decodeRow(row Row) (Instruction, error) {
	if len(row) == 0 {
		return Instruction{}, fmt.Errorf("empty operation")
	}
	name, ok := row[0].(string)
	if !ok {
		return Instruction{}, fmt.Errorf("opcode must be a name, got %v", row[0])
	}

	if name == "call" {
		if len(row) < 2 {
			return Instruction{}, fmt.Errorf("call without helper")
		}
		helper, err := l.lookupHelper(row[1])
		if err != nil {
			return Instruction{}, err
		}
		rest, err := operands(row[2:])
		if err != nil {
			return Instruction{}, err
		}
		fixed := helper.Out + helper.In
		if len(rest) < fixed {
			return Instruction{}, fmt.Errorf("%w: call to %s has %d operands, want %d",
				ErrArity, helper.Name, len(rest), fixed)
		}
		args := make([]uint64, 0, len(rest)+1)
		args = append(args, rest[:fixed]...)
		args = append(args, helper.ID)
		args = append(args, rest[fixed:]...)
		return NewCall(l.helpers, args, helper.Out, helper.In)
	}

	op, ok := LookupOpcode(name)
	if !ok {
		return Instruction{}, fmt.Errorf("unknown opcode %q", name)
	}
	args, err := operands(row[1:])
	if err != nil {
		return Instruction{}, err
	}
	return NewInstruction(op, args)
}

func (l *Listing) lookupHelper(v any) (*Helper, error) {
	if name, ok := v.(string); ok {
		if h, ok := l.helpers.ByName(name); ok {
			return h, nil
		}
		return nil, fmt.Errorf("unknown helper %q", name)
	}
	id, err := operand(v)
	if err != nil {
		return nil, err
	}
	h, ok := l.helpers[id]
	if !ok {
		return nil, fmt.Errorf("unknown helper %d", id)
	}
	return h, nil
}

func operands(vals []any) ([]uint64, error) {
	out := make([]uint64, 0, len(vals))
	for _, v := range vals {
		x, err := operand(v)
		if err != nil {
			return nil, err
		}
		out = append(out, x)
	}
	return out, nil
}

// operand converts one listing operand. Integers are taken as-is (negative
// values in two's complement); names spell conditions ("ltu"), labels ("L3")
// and memory accesses ("s16:unaligned").
func operand(v any) (uint64, error) {
	switch v := v.(type) {
	case int:
		return uint64(v), nil
	case int64:
		return uint64(v), nil
	case uint64:
		return v, nil
	case string:
		if c, ok := ParseCond(v); ok {
			return uint64(c), nil
		}
		if strings.HasPrefix(v, "L") {
			if n, err := strconv.ParseUint(v[1:], 10, 64); err == nil {
				return n, nil
			}
		}
		if m, ok := ParseMemAccessName(v); ok {
			return m.Encode(), nil
		}
		return 0, fmt.Errorf("unrecognized operand %q", v)
	default:
		return 0, fmt.Errorf("unsupported operand %v (%T)", v, v)
	}
}

// HelperTable returns the helpers declared by the listing.
func (l *Listing) HelperTable() Helpers { return l.helpers }

// Block returns the translation block starting at pc.
func (l *Listing) Block(pc uint64) (*TranslationBlock, bool) {
	tb, ok := l.blocks[pc]
	return tb, ok
}

// Addresses returns the start address of every translation block in order.
func (l *Listing) Addresses() []uint64 {
	addrs := make([]uint64, 0, len(l.blocks))
	for pc := range l.blocks {
		addrs = append(addrs, pc)
	}
	sort.Slice(addrs, func(i, j int) bool { return addrs[i] < addrs[j] })
	return addrs
}

// Format returns the disassembly recorded for address.
func (l *Listing) Format(address uint64) (string, error) {
	text, ok := l.Disasm[address]
	if !ok {
		return "", fmt.Errorf("ptc: no disassembly for 0x%x", address)
	}
	return text, nil
}
