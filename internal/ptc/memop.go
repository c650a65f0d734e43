package ptc

import (
	"fmt"
	"strings"
)

type AccessType uint8

const (
	AccessUnknown AccessType = iota
	AccessNormal
	AccessUnaligned
)

func (t AccessType) String() string {
	switch t {
	case AccessNormal:
		return "normal"
	case AccessUnaligned:
		return "unaligned"
	default:
		return "unknown"
	}
}

// MemAccess describes a guest memory access. It is packed into the single
// constant operand of qemu_ld/qemu_st:
//
//	bits 0-1  log2 of the access size in bytes
//	bit  2    sign-extend loaded values
//	bits 4-5  access type
type MemAccess struct {
	Bits   int
	Signed bool
	Access AccessType
}

const (
	memSizeMask   = 0x3
	memSign       = 0x4
	memTypeShift  = 4
	memTypeMask   = 0x3
	memKnownFlags = memSizeMask | memSign | memTypeMask<<memTypeShift
)

// ParseMemAccess unpacks a memory access constant.
func ParseMemAccess(raw uint64) (MemAccess, error) {
	if raw&^uint64(memKnownFlags) != 0 {
		return MemAccess{}, fmt.Errorf("ptc: unknown memory access flags 0x%x", raw)
	}
	access := AccessType((raw >> memTypeShift) & memTypeMask)
	if access > AccessUnaligned {
		return MemAccess{}, fmt.Errorf("ptc: invalid memory access type %d", access)
	}
	return MemAccess{
		Bits:   8 << (raw & memSizeMask),
		Signed: raw&memSign != 0,
		Access: access,
	}, nil
}

// Encode packs m into its constant operand form.
func (m MemAccess) Encode() uint64 {
	var raw uint64
	switch m.Bits {
	case 8:
	case 16:
		raw = 1
	case 32:
		raw = 2
	case 64:
		raw = 3
	default:
		panic(fmt.Sprintf("ptc: invalid access size %d", m.Bits))
	}
	if m.Signed {
		raw |= memSign
	}
	return raw | uint64(m.Access)<<memTypeShift
}

func (m MemAccess) String() string {
	sign := "u"
	if m.Signed {
		sign = "s"
	}
	s := fmt.Sprintf("%s%d", sign, m.Bits)
	if m.Access == AccessUnaligned {
		s += ":unaligned"
	}
	return s
}

// ParseMemAccessName parses the listing spelling of an access, for example
// "u32", "s16" or "u64:unaligned". Accesses without a suffix are normal.
func ParseMemAccessName(s string) (MemAccess, bool) {
	size, suffix, _ := strings.Cut(strings.ToLower(s), ":")
	if len(size) < 2 || (size[0] != 'u' && size[0] != 's') {
		return MemAccess{}, false
	}
	m := MemAccess{Signed: size[0] == 's', Access: AccessNormal}
	switch size[1:] {
	case "8":
		m.Bits = 8
	case "16":
		m.Bits = 16
	case "32":
		m.Bits = 32
	case "64":
		m.Bits = 64
	default:
		return MemAccess{}, false
	}
	switch suffix {
	case "":
	case "unaligned":
		m.Access = AccessUnaligned
	case "unknown":
		m.Access = AccessUnknown
	default:
		return MemAccess{}, false
	}
	return m, true
}
