// Package ptc models the portable micro-operations produced by the
// instruction decoder: a closed opcode set, the operand layout of each opcode
// and read-only views over decoded operations.
package ptc

import "fmt"

type Opcode uint16

const (
	OpInvalid Opcode = iota

	OpDiscard
	OpSetLabel
	OpCall
	OpBr
	OpInsnStart
	OpExitTB
	OpGotoTB

	OpMovI32
	OpMoviI32
	OpSetcondI32
	OpMovcondI32
	OpLd8uI32
	OpLd8sI32
	OpLd16uI32
	OpLd16sI32
	OpLdI32
	OpSt8I32
	OpSt16I32
	OpStI32
	OpAddI32
	OpSubI32
	OpMulI32
	OpDivI32
	OpDivuI32
	OpRemI32
	OpRemuI32
	OpDiv2I32
	OpDivu2I32
	OpAndI32
	OpOrI32
	OpXorI32
	OpShlI32
	OpShrI32
	OpSarI32
	OpRotlI32
	OpRotrI32
	OpDepositI32
	OpBrcondI32
	OpAdd2I32
	OpSub2I32
	OpMulu2I32
	OpMuls2I32
	OpMuluhI32
	OpMulshI32
	OpBrcond2I32
	OpSetcond2I32
	OpExt8sI32
	OpExt16sI32
	OpExt8uI32
	OpExt16uI32
	OpBswap16I32
	OpBswap32I32
	OpNotI32
	OpNegI32
	OpAndcI32
	OpOrcI32
	OpEqvI32
	OpNandI32
	OpNorI32
	OpQemuLdI32
	OpQemuStI32
	OpTruncShrI32

	OpMovI64
	OpMoviI64
	OpSetcondI64
	OpMovcondI64
	OpLd8uI64
	OpLd8sI64
	OpLd16uI64
	OpLd16sI64
	OpLd32uI64
	OpLd32sI64
	OpLdI64
	OpSt8I64
	OpSt16I64
	OpSt32I64
	OpStI64
	OpAddI64
	OpSubI64
	OpMulI64
	OpDivI64
	OpDivuI64
	OpRemI64
	OpRemuI64
	OpDiv2I64
	OpDivu2I64
	OpAndI64
	OpOrI64
	OpXorI64
	OpShlI64
	OpShrI64
	OpSarI64
	OpRotlI64
	OpRotrI64
	OpDepositI64
	OpExt8sI64
	OpExt16sI64
	OpExt32sI64
	OpExt8uI64
	OpExt16uI64
	OpExt32uI64
	OpBrcondI64
	OpAdd2I64
	OpSub2I64
	OpMulu2I64
	OpMuls2I64
	OpMuluhI64
	OpMulshI64
	OpBswap16I64
	OpBswap32I64
	OpBswap64I64
	OpNotI64
	OpNegI64
	OpAndcI64
	OpOrcI64
	OpEqvI64
	OpNandI64
	OpNorI64
	OpQemuLdI64
	OpQemuStI64

	opcodeCount
)

// Arity is the operand layout of an opcode. Operands are stored as outputs,
// then inputs, then constants.
type Arity struct {
	Out, In, Const int
	// MaxConst is larger than Const for opcodes taking a variable number of
	// constants.
	MaxConst int
}

type opcodeInfo struct {
	name  string
	arity Arity
}

func a(out, in, cst int) Arity { return Arity{Out: out, In: in, Const: cst, MaxConst: cst} }

var opcodeTable = [opcodeCount]opcodeInfo{
	OpDiscard:   {"discard", a(1, 0, 0)},
	OpSetLabel:  {"set_label", a(0, 0, 1)},
	OpCall:      {"call", a(0, 0, 1)},
	OpBr:        {"br", a(0, 0, 1)},
	OpInsnStart: {"insn_start", Arity{Const: 1, MaxConst: 2}},
	OpExitTB:    {"exit_tb", a(0, 0, 1)},
	OpGotoTB:    {"goto_tb", a(0, 0, 1)},

	OpMovI32:      {"mov_i32", a(1, 1, 0)},
	OpMoviI32:     {"movi_i32", a(1, 0, 1)},
	OpSetcondI32:  {"setcond_i32", a(1, 2, 1)},
	OpMovcondI32:  {"movcond_i32", a(1, 4, 1)},
	OpLd8uI32:     {"ld8u_i32", a(1, 1, 1)},
	OpLd8sI32:     {"ld8s_i32", a(1, 1, 1)},
	OpLd16uI32:    {"ld16u_i32", a(1, 1, 1)},
	OpLd16sI32:    {"ld16s_i32", a(1, 1, 1)},
	OpLdI32:       {"ld_i32", a(1, 1, 1)},
	OpSt8I32:      {"st8_i32", a(0, 2, 1)},
	OpSt16I32:     {"st16_i32", a(0, 2, 1)},
	OpStI32:       {"st_i32", a(0, 2, 1)},
	OpAddI32:      {"add_i32", a(1, 2, 0)},
	OpSubI32:      {"sub_i32", a(1, 2, 0)},
	OpMulI32:      {"mul_i32", a(1, 2, 0)},
	OpDivI32:      {"div_i32", a(1, 2, 0)},
	OpDivuI32:     {"divu_i32", a(1, 2, 0)},
	OpRemI32:      {"rem_i32", a(1, 2, 0)},
	OpRemuI32:     {"remu_i32", a(1, 2, 0)},
	OpDiv2I32:     {"div2_i32", a(2, 3, 0)},
	OpDivu2I32:    {"divu2_i32", a(2, 3, 0)},
	OpAndI32:      {"and_i32", a(1, 2, 0)},
	OpOrI32:       {"or_i32", a(1, 2, 0)},
	OpXorI32:      {"xor_i32", a(1, 2, 0)},
	OpShlI32:      {"shl_i32", a(1, 2, 0)},
	OpShrI32:      {"shr_i32", a(1, 2, 0)},
	OpSarI32:      {"sar_i32", a(1, 2, 0)},
	OpRotlI32:     {"rotl_i32", a(1, 2, 0)},
	OpRotrI32:     {"rotr_i32", a(1, 2, 0)},
	OpDepositI32:  {"deposit_i32", a(1, 2, 2)},
	OpBrcondI32:   {"brcond_i32", a(0, 2, 2)},
	OpAdd2I32:     {"add2_i32", a(2, 4, 0)},
	OpSub2I32:     {"sub2_i32", a(2, 4, 0)},
	OpMulu2I32:    {"mulu2_i32", a(2, 2, 0)},
	OpMuls2I32:    {"muls2_i32", a(2, 2, 0)},
	OpMuluhI32:    {"muluh_i32", a(1, 2, 0)},
	OpMulshI32:    {"mulsh_i32", a(1, 2, 0)},
	OpBrcond2I32:  {"brcond2_i32", a(0, 4, 2)},
	OpSetcond2I32: {"setcond2_i32", a(1, 4, 1)},
	OpExt8sI32:    {"ext8s_i32", a(1, 1, 0)},
	OpExt16sI32:   {"ext16s_i32", a(1, 1, 0)},
	OpExt8uI32:    {"ext8u_i32", a(1, 1, 0)},
	OpExt16uI32:   {"ext16u_i32", a(1, 1, 0)},
	OpBswap16I32:  {"bswap16_i32", a(1, 1, 0)},
	OpBswap32I32:  {"bswap32_i32", a(1, 1, 0)},
	OpNotI32:      {"not_i32", a(1, 1, 0)},
	OpNegI32:      {"neg_i32", a(1, 1, 0)},
	OpAndcI32:     {"andc_i32", a(1, 2, 0)},
	OpOrcI32:      {"orc_i32", a(1, 2, 0)},
	OpEqvI32:      {"eqv_i32", a(1, 2, 0)},
	OpNandI32:     {"nand_i32", a(1, 2, 0)},
	OpNorI32:      {"nor_i32", a(1, 2, 0)},
	OpQemuLdI32:   {"qemu_ld_i32", a(1, 1, 1)},
	OpQemuStI32:   {"qemu_st_i32", a(0, 2, 1)},
	OpTruncShrI32: {"trunc_shr_i32", a(1, 1, 1)},

	OpMovI64:     {"mov_i64", a(1, 1, 0)},
	OpMoviI64:    {"movi_i64", a(1, 0, 1)},
	OpSetcondI64: {"setcond_i64", a(1, 2, 1)},
	OpMovcondI64: {"movcond_i64", a(1, 4, 1)},
	OpLd8uI64:    {"ld8u_i64", a(1, 1, 1)},
	OpLd8sI64:    {"ld8s_i64", a(1, 1, 1)},
	OpLd16uI64:   {"ld16u_i64", a(1, 1, 1)},
	OpLd16sI64:   {"ld16s_i64", a(1, 1, 1)},
	OpLd32uI64:   {"ld32u_i64", a(1, 1, 1)},
	OpLd32sI64:   {"ld32s_i64", a(1, 1, 1)},
	OpLdI64:      {"ld_i64", a(1, 1, 1)},
	OpSt8I64:     {"st8_i64", a(0, 2, 1)},
	OpSt16I64:    {"st16_i64", a(0, 2, 1)},
	OpSt32I64:    {"st32_i64", a(0, 2, 1)},
	OpStI64:      {"st_i64", a(0, 2, 1)},
	OpAddI64:     {"add_i64", a(1, 2, 0)},
	OpSubI64:     {"sub_i64", a(1, 2, 0)},
	OpMulI64:     {"mul_i64", a(1, 2, 0)},
	OpDivI64:     {"div_i64", a(1, 2, 0)},
	OpDivuI64:    {"divu_i64", a(1, 2, 0)},
	OpRemI64:     {"rem_i64", a(1, 2, 0)},
	OpRemuI64:    {"remu_i64", a(1, 2, 0)},
	OpDiv2I64:    {"div2_i64", a(2, 3, 0)},
	OpDivu2I64:   {"divu2_i64", a(2, 3, 0)},
	OpAndI64:     {"and_i64", a(1, 2, 0)},
	OpOrI64:      {"or_i64", a(1, 2, 0)},
	OpXorI64:     {"xor_i64", a(1, 2, 0)},
	OpShlI64:     {"shl_i64", a(1, 2, 0)},
	OpShrI64:     {"shr_i64", a(1, 2, 0)},
	OpSarI64:     {"sar_i64", a(1, 2, 0)},
	OpRotlI64:    {"rotl_i64", a(1, 2, 0)},
	OpRotrI64:    {"rotr_i64", a(1, 2, 0)},
	OpDepositI64: {"deposit_i64", a(1, 2, 2)},
	OpExt8sI64:   {"ext8s_i64", a(1, 1, 0)},
	OpExt16sI64:  {"ext16s_i64", a(1, 1, 0)},
	OpExt32sI64:  {"ext32s_i64", a(1, 1, 0)},
	OpExt8uI64:   {"ext8u_i64", a(1, 1, 0)},
	OpExt16uI64:  {"ext16u_i64", a(1, 1, 0)},
	OpExt32uI64:  {"ext32u_i64", a(1, 1, 0)},
	OpBrcondI64:  {"brcond_i64", a(0, 2, 2)},
	OpAdd2I64:    {"add2_i64", a(2, 4, 0)},
	OpSub2I64:    {"sub2_i64", a(2, 4, 0)},
	OpMulu2I64:   {"mulu2_i64", a(2, 2, 0)},
	OpMuls2I64:   {"muls2_i64", a(2, 2, 0)},
	OpMuluhI64:   {"muluh_i64", a(1, 2, 0)},
	OpMulshI64:   {"mulsh_i64", a(1, 2, 0)},
	OpBswap16I64: {"bswap16_i64", a(1, 1, 0)},
	OpBswap32I64: {"bswap32_i64", a(1, 1, 0)},
	OpBswap64I64: {"bswap64_i64", a(1, 1, 0)},
	OpNotI64:     {"not_i64", a(1, 1, 0)},
	OpNegI64:     {"neg_i64", a(1, 1, 0)},
	OpAndcI64:    {"andc_i64", a(1, 2, 0)},
	OpOrcI64:     {"orc_i64", a(1, 2, 0)},
	OpEqvI64:     {"eqv_i64", a(1, 2, 0)},
	OpNandI64:    {"nand_i64", a(1, 2, 0)},
	OpNorI64:     {"nor_i64", a(1, 2, 0)},
	OpQemuLdI64:  {"qemu_ld_i64", a(1, 1, 1)},
	OpQemuStI64:  {"qemu_st_i64", a(0, 2, 1)},
}

var opcodesByName = func() map[string]Opcode {
	m := make(map[string]Opcode, opcodeCount)
	for op := Opcode(1); op < opcodeCount; op++ {
		m[opcodeTable[op].name] = op
	}
	return m
}()

// Valid reports whether op belongs to the enumeration.
func (op Opcode) Valid() bool {
	return op > OpInvalid && op < opcodeCount
}

func (op Opcode) String() string {
	if op.Valid() {
		return opcodeTable[op].name
	}
	return fmt.Sprintf("opcode(%d)", uint16(op))
}

// Arity returns the declared operand layout of op. Calls have no fixed
// layout; their arity comes from the helper being called.
func (op Opcode) Arity() Arity {
	if !op.Valid() {
		return Arity{}
	}
	return opcodeTable[op].arity
}

// LookupOpcode resolves an opcode by its listing name, e.g. "add_i32".
func LookupOpcode(name string) (Opcode, bool) {
	op, ok := opcodesByName[name]
	return op, ok
}

// Opcodes returns every member of the enumeration in declaration order.
func Opcodes() []Opcode {
	ops := make([]Opcode, 0, opcodeCount-1)
	for op := Opcode(1); op < opcodeCount; op++ {
		ops = append(ops, op)
	}
	return ops
}
