package ptc

import (
	"fmt"
	"strings"
)

// Cond is a comparison condition code. The encoding matches the decoder's:
// bit 0 inverts, bit 1 selects signed ordering, bit 2 unsigned ordering and
// bit 3 equality.
type Cond uint64

const (
	CondNever  Cond = 0
	CondAlways Cond = 1
	CondEQ     Cond = 8
	CondNE     Cond = 9
	CondLT     Cond = 2
	CondGE     Cond = 3
	CondLE     Cond = 10
	CondGT     Cond = 11
	CondLTU    Cond = 4
	CondGEU    Cond = 5
	CondLEU    Cond = 12
	CondGTU    Cond = 13
)

var condNames = map[Cond]string{
	CondNever:  "never",
	CondAlways: "always",
	CondEQ:     "eq",
	CondNE:     "ne",
	CondLT:     "lt",
	CondGE:     "ge",
	CondLE:     "le",
	CondGT:     "gt",
	CondLTU:    "ltu",
	CondGEU:    "geu",
	CondLEU:    "leu",
	CondGTU:    "gtu",
}

func (c Cond) Valid() bool {
	_, ok := condNames[c]
	return ok
}

func (c Cond) String() string {
	if name, ok := condNames[c]; ok {
		return name
	}
	return fmt.Sprintf("cond(%d)", uint64(c))
}

// ParseCond resolves a condition by name.
func ParseCond(name string) (Cond, bool) {
	name = strings.ToLower(name)
	for c, n := range condNames {
		if n == name {
			return c, true
		}
	}
	return 0, false
}
