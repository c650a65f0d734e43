package ir

import "fmt"

type TypeKind uint8

const (
	TypeVoid TypeKind = iota
	TypeInt
	TypePtr
)

// Type is a scalar IR type. Integers carry their width in bits; pointers are
// opaque and always 64 bits wide in the generated code.
type Type struct {
	Kind TypeKind
	Bits int
}

var (
	Void = Type{Kind: TypeVoid}
	Ptr  = Type{Kind: TypePtr, Bits: 64}
	I1   = Int(1)
	I8   = Int(8)
	I16  = Int(16)
	I32  = Int(32)
	I64  = Int(64)
	I128 = Int(128)
)

// Int returns the integer type with the given width. Widths above 128 bits
// are not representable.
func Int(bits int) Type {
	if bits <= 0 || bits > 128 {
		panic(fmt.Sprintf("ir: invalid integer width %d", bits))
	}
	return Type{Kind: TypeInt, Bits: bits}
}

func (t Type) IsInt() bool  { return t.Kind == TypeInt }
func (t Type) IsVoid() bool { return t.Kind == TypeVoid }
func (t Type) IsPtr() bool  { return t.Kind == TypePtr }

func (t Type) String() string {
	switch t.Kind {
	case TypeVoid:
		return "void"
	case TypePtr:
		return "ptr"
	case TypeInt:
		return fmt.Sprintf("i%d", t.Bits)
	default:
		return "invalid"
	}
}

// Bytes returns the storage size of t, rounding partial bytes up.
func (t Type) Bytes() int {
	return (t.Bits + 7) / 8
}
