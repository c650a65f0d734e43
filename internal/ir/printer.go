package ir

import (
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/charmbracelet/x/ansi"
)

// String renders f in the textual form produced by Fprint.
func (f *Function) String() string {
	var sb strings.Builder
	_ = printFunction(&sb, f)
	return sb.String()
}

// Fprint writes the whole module: globals and declarations sorted by name,
// then definitions in creation order. Concurrent translation creates
// globals and declarations in no fixed order.
func Fprint(w io.Writer, m *Module) error {
	globals := m.Globals()
	slices.SortFunc(globals, func(a, b *Var) int { return strings.Compare(a.Name, b.Name) })
	for _, g := range globals {
		if g.Offset >= 0 {
			if _, err := fmt.Fprintf(w, "%s = global %s ; state+0x%x\n", g.Ident(), g.Elem, g.Offset); err != nil {
				return err
			}
			continue
		}
		if _, err := fmt.Fprintf(w, "%s = global %s\n", g.Ident(), g.Elem); err != nil {
			return err
		}
	}
	funcs := m.Functions()
	slices.SortStableFunc(funcs, func(a, b *Function) int {
		switch {
		case a.Declaration() && b.Declaration():
			return strings.Compare(a.Name, b.Name)
		case a.Declaration():
			return -1
		case b.Declaration():
			return 1
		}
		return 0
	})
	for _, f := range funcs {
		if _, err := io.WriteString(w, "\n"); err != nil {
			return err
		}
		if err := printFunction(w, f); err != nil {
			return err
		}
	}
	return nil
}

func signature(f *Function) string {
	params := make([]string, len(f.Params))
	for i, p := range f.Params {
		params[i] = p.String()
	}
	return fmt.Sprintf("%s %s(%s)", f.Ret, f.Ident(), strings.Join(params, ", "))
}

func printFunction(w io.Writer, f *Function) error {
	if f.Declaration() {
		_, err := fmt.Fprintf(w, "declare %s\n", signature(f))
		return err
	}

	// Annotations are aligned on the widest disassembly text.
	textWidth := 0
	markersAt := make(map[*Block]map[int][]*Marker)
	for _, m := range f.Markers {
		text := ansi.Strip(m.Text)
		textWidth = max(textWidth, ansi.StringWidth(text))
		if markersAt[m.Block] == nil {
			markersAt[m.Block] = make(map[int][]*Marker)
		}
		markersAt[m.Block][m.Index] = append(markersAt[m.Block][m.Index], m)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "define %s {\n", signature(f))
	for _, l := range f.Locals {
		fmt.Fprintf(&sb, "  %s = local %s\n", l.Ident(), l.Elem)
	}
	for _, b := range f.Blocks {
		fmt.Fprintf(&sb, "%s:\n", b.Name)
		for idx := 0; idx <= len(b.Instrs); idx++ {
			for _, m := range markersAt[b][idx] {
				text := ansi.Strip(m.Text)
				pad := strings.Repeat(" ", textWidth-ansi.StringWidth(text))
				fmt.Fprintf(&sb, "  ; 0x%x  %s%s  [%d]\n", m.Address, text, pad, m.Length)
			}
			if idx < len(b.Instrs) {
				fmt.Fprintf(&sb, "  %s\n", FormatInstr(b.Instrs[idx]))
			}
		}
	}
	sb.WriteString("}\n")
	_, err := io.WriteString(w, sb.String())
	return err
}

func typed(v Value) string {
	return v.Type().String() + " " + v.Ident()
}

// FormatInstr renders a single instruction.
func FormatInstr(i *Instr) string {
	var body string
	switch {
	case i.Op.IsBinary():
		body = fmt.Sprintf("%s %s, %s", i.Op, typed(i.Operands[0]), i.Operands[1].Ident())
	case i.Op == OpICmp:
		family := "icmp"
		if i.Pred.IsConstant() {
			family = "fcmp"
		}
		body = fmt.Sprintf("%s %s %s, %s", family, i.Pred, typed(i.Operands[0]), i.Operands[1].Ident())
	case i.Op == OpSelect:
		body = fmt.Sprintf("select %s, %s, %s", typed(i.Operands[0]), typed(i.Operands[1]), typed(i.Operands[2]))
	case i.Op == OpTrunc || i.Op == OpZExt || i.Op == OpSExt || i.Op == OpIntToPtr:
		body = fmt.Sprintf("%s %s to %s", i.Op, typed(i.Operands[0]), i.typ)
	case i.Op == OpBSwap:
		body = fmt.Sprintf("bswap %s", typed(i.Operands[0]))
	case i.Op == OpLoad:
		body = fmt.Sprintf("load %s, %s", i.typ, typed(i.Operands[0]))
		if i.Align != 0 {
			body += fmt.Sprintf(", align %d", i.Align)
		}
	case i.Op == OpStore:
		body = fmt.Sprintf("store %s, %s", typed(i.Operands[0]), typed(i.Operands[1]))
		if i.Align != 0 {
			body += fmt.Sprintf(", align %d", i.Align)
		}
	case i.Op == OpCall:
		args := make([]string, len(i.Operands))
		for n, a := range i.Operands {
			args[n] = typed(a)
		}
		body = fmt.Sprintf("call %s %s(%s)", i.typ, i.Callee.Ident(), strings.Join(args, ", "))
	case i.Op == OpBr:
		body = fmt.Sprintf("br label %s", i.Targets[0].Ident())
	case i.Op == OpCondBr:
		body = fmt.Sprintf("br %s, label %s, label %s", typed(i.Operands[0]), i.Targets[0].Ident(), i.Targets[1].Ident())
	case i.Op == OpUnreachable:
		body = "unreachable"
	default:
		body = i.Op.String()
	}
	if i.typ.IsVoid() {
		return body
	}
	return i.Ident() + " = " + body
}
