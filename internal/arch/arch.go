// Package arch describes the machines code is translated from and to: word
// width, byte order and the alignment assumed for guest memory accesses.
package arch

import (
	"fmt"
	"os"
	"runtime"
	"sort"
	"strconv"
	"strings"
	"sync"

	"golang.org/x/sys/cpu"
	"gopkg.in/yaml.v3"
)

type Architecture string

const (
	ArchitectureInvalid Architecture = "invalid"
	ArchitectureX86_64  Architecture = "x86_64"
	ArchitectureI386    Architecture = "i386"
	ArchitectureARM     Architecture = "arm"
	ArchitectureAArch64 Architecture = "aarch64"
	ArchitectureMIPS    Architecture = "mips"
	ArchitectureMIPSEL  Architecture = "mipsel"
	ArchitectureS390X   Architecture = "s390x"
	ArchitectureRISCV64 Architecture = "riscv64"
)

type Endianness uint8

const (
	LittleEndian Endianness = iota
	BigEndian
)

func (e Endianness) String() string {
	if e == BigEndian {
		return "big"
	}
	return "little"
}

func (e *Endianness) UnmarshalYAML(value *yaml.Node) error {
	switch strings.ToLower(value.Value) {
	case "little", "le":
		*e = LittleEndian
	case "big", "be":
		*e = BigEndian
	default:
		return fmt.Errorf("arch: line %d: unknown endianness %q", value.Line, value.Value)
	}
	return nil
}

func (e Endianness) MarshalYAML() (any, error) { return e.String(), nil }

// Descriptor carries the properties of a machine the translator needs.
type Descriptor struct {
	Name       Architecture `yaml:"name"`
	WordBits   int          `yaml:"word_bits"`
	Endianness Endianness   `yaml:"endianness"`
	// DefaultAlignment is the alignment in bytes of guest memory accesses
	// not flagged as unaligned.
	DefaultAlignment int `yaml:"default_alignment"`
}

func (d Descriptor) IsBigEndian() bool { return d.Endianness == BigEndian }

func (d Descriptor) Validate() error {
	if d.Name == "" || d.Name == ArchitectureInvalid {
		return fmt.Errorf("arch: descriptor must be named")
	}
	if d.WordBits != 32 && d.WordBits != 64 {
		return fmt.Errorf("arch: %s: unsupported word size %d", d.Name, d.WordBits)
	}
	if d.DefaultAlignment <= 0 || d.DefaultAlignment&(d.DefaultAlignment-1) != 0 {
		return fmt.Errorf("arch: %s: alignment %d is not a power of two", d.Name, d.DefaultAlignment)
	}
	return nil
}

func (d Descriptor) String() string {
	return fmt.Sprintf("%s (%d-bit, %s-endian)", d.Name, d.WordBits, d.Endianness)
}

var (
	descriptorsMu sync.RWMutex
	descriptors   = make(map[Architecture]Descriptor)
)

// Register makes d available to Lookup. It panics when the descriptor is
// invalid or the architecture is already registered so mistakes are caught
// during init.
func Register(d Descriptor) {
	if err := d.Validate(); err != nil {
		panic(err.Error())
	}

	descriptorsMu.Lock()
	defer descriptorsMu.Unlock()

	if _, exists := descriptors[d.Name]; exists {
		panic(fmt.Sprintf("arch: %s already registered", d.Name))
	}
	descriptors[d.Name] = d
}

func Lookup(name Architecture) (Descriptor, error) {
	descriptorsMu.RLock()
	defer descriptorsMu.RUnlock()

	if d, ok := descriptors[name]; ok {
		return d, nil
	}
	if name == "" || name == ArchitectureInvalid {
		return Descriptor{}, fmt.Errorf("arch: architecture must be specified")
	}
	return Descriptor{}, fmt.Errorf("arch: unknown architecture %q", name)
}

// Registered lists every registered architecture name in sorted order.
func Registered() []Architecture {
	descriptorsMu.RLock()
	defer descriptorsMu.RUnlock()

	names := make([]Architecture, 0, len(descriptors))
	for name := range descriptors {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool { return names[i] < names[j] })
	return names
}

// LoadFile reads a YAML descriptor.
func LoadFile(path string) (Descriptor, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Descriptor{}, err
	}

	var d Descriptor
	if err := yaml.Unmarshal(data, &d); err != nil {
		return Descriptor{}, fmt.Errorf("arch: parse %s: %w", path, err)
	}
	if err := d.Validate(); err != nil {
		return Descriptor{}, fmt.Errorf("%s: %w", path, err)
	}
	return d, nil
}

// Resolve interprets name as a registered architecture name, falling back
// to a descriptor file path when it names an existing file.
func Resolve(name string) (Descriptor, error) {
	if d, err := Lookup(Architecture(name)); err == nil {
		return d, nil
	}
	if _, err := os.Stat(name); err == nil {
		return LoadFile(name)
	}
	return Lookup(Architecture(name))
}

var goarchNames = map[string]Architecture{
	"amd64":   ArchitectureX86_64,
	"386":     ArchitectureI386,
	"arm":     ArchitectureARM,
	"arm64":   ArchitectureAArch64,
	"mips":    ArchitectureMIPS,
	"mipsle":  ArchitectureMIPSEL,
	"s390x":   ArchitectureS390X,
	"riscv64": ArchitectureRISCV64,
}

// Host describes the machine this process runs on.
func Host() Descriptor {
	if name, ok := goarchNames[runtime.GOARCH]; ok {
		if d, err := Lookup(name); err == nil {
			return d
		}
	}

	d := Descriptor{
		Name:             Architecture(runtime.GOARCH),
		WordBits:         strconv.IntSize,
		DefaultAlignment: strconv.IntSize / 8,
	}
	if cpu.IsBigEndian {
		d.Endianness = BigEndian
	}
	return d
}

func init() {
	for _, d := range []Descriptor{
		{ArchitectureX86_64, 64, LittleEndian, 1},
		{ArchitectureI386, 32, LittleEndian, 1},
		{ArchitectureARM, 32, LittleEndian, 4},
		{ArchitectureAArch64, 64, LittleEndian, 8},
		{ArchitectureMIPS, 32, BigEndian, 4},
		{ArchitectureMIPSEL, 32, LittleEndian, 4},
		{ArchitectureS390X, 64, BigEndian, 1},
		{ArchitectureRISCV64, 64, LittleEndian, 8},
	} {
		Register(d)
	}
}
