package cfg

import (
	"fmt"

	"github.com/techguru321/infer/analysis/interval"
)

var uintType = interval.IntType{Unsigned: true}

// MalformedError is returned for functions whose graph is inconsistent.
// The analysis result of such a function is unknown.
type MalformedError struct {
	Func  string
	Block int
	Msg   string
}

func (err *MalformedError) Error() string {
	if err.Block < 0 {
		return fmt.Sprintf("malformed function %s: %s", err.Func, err.Msg)
	}
	return fmt.Sprintf("malformed function %s: block %d: %s", err.Func, err.Block, err.Msg)
}

// Validate checks that fn is well formed: it has an entry block, block
// indices match their positions, every edge connects blocks of fn and is
// recorded on both of its ends, and every instruction and guard is
// complete.
func Validate(fn *Function) error {
	fail := func(blk int, format string, args ...any) error {
		return &MalformedError{Func: fn.Name, Block: blk, Msg: fmt.Sprintf(format, args...)}
	}
	if len(fn.Blocks) == 0 {
		return fail(-1, "no entry block")
	}
	params := map[string]bool{}
	for _, p := range fn.Params {
		if p.Name == "" {
			return fail(-1, "unnamed parameter")
		}
		if params[p.Name] {
			return fail(-1, "duplicate parameter %s", p.Name)
		}
		params[p.Name] = true
	}
	owns := func(b *Block) bool {
		return b != nil && b.Index >= 0 && b.Index < len(fn.Blocks) && fn.Blocks[b.Index] == b
	}
	has := func(es []*Edge, e *Edge) bool {
		for _, o := range es {
			if o == e {
				return true
			}
		}
		return false
	}
	for i, b := range fn.Blocks {
		if b == nil {
			return fail(i, "missing block")
		}
		if b.Index != i {
			return fail(i, "block has index %d", b.Index)
		}
		for _, e := range b.Succs {
			switch {
			case e == nil:
				return fail(i, "nil successor edge")
			case e.From != b:
				return fail(i, "successor edge does not start here")
			case !owns(e.To):
				return fail(i, "dangling edge")
			case !has(e.To.Preds, e):
				return fail(i, "edge to %d missing from its predecessors", e.To.Index)
			}
			if err := validateEdge(e); err != "" {
				return fail(i, "edge to %d: %s", e.To.Index, err)
			}
		}
		for _, e := range b.Preds {
			switch {
			case e == nil:
				return fail(i, "nil predecessor edge")
			case e.To != b:
				return fail(i, "predecessor edge does not end here")
			case !owns(e.From):
				return fail(i, "dangling edge")
			case !has(e.From.Succs, e):
				return fail(i, "edge from %d missing from its successors", e.From.Index)
			}
		}
		for j, instr := range b.Instrs {
			if instr == nil {
				return fail(i, "nil instruction %d", j)
			}
			if err := validateInstr(instr); err != "" {
				return fail(i, "%s: %s", instr, err)
			}
		}
	}
	return nil
}

func validateEdge(e *Edge) string {
	if e.Guard != nil {
		if !isComparison(e.Guard.Op) {
			return fmt.Sprintf("guard uses %s", e.Guard.Op)
		}
		if e.Guard.X == nil || e.Guard.Y == nil {
			return "incomplete guard"
		}
	}
	for _, m := range e.Moves {
		if m.Dst == "" || m.X == nil {
			return "incomplete move"
		}
	}
	return ""
}

func validateInstr(instr Instr) string {
	missing := func(what string) string { return "missing " + what }
	switch instr := instr.(type) {
	case *Assign:
		switch {
		case instr.Dst == "":
			return missing("destination")
		case instr.X == nil:
			return missing("value")
		}
	case *Declare:
		switch {
		case instr.Dst == "":
			return missing("destination")
		case instr.Size == nil:
			return missing("size")
		case instr.ElemSize <= 0:
			return "non-positive element size"
		}
	case *Alloc:
		switch {
		case instr.Dst == "":
			return missing("destination")
		case instr.Bytes == nil:
			return missing("size")
		case instr.ElemSize <= 0:
			return "non-positive element size"
		}
	case *AddrOf:
		if instr.Dst == "" || instr.Base == "" || instr.Index == nil {
			return missing("operand")
		}
	case *Load:
		if instr.Dst == "" || instr.Ptr == "" || instr.Index == nil {
			return missing("operand")
		}
	case *Store:
		if instr.Ptr == "" || instr.Index == nil || instr.X == nil {
			return missing("operand")
		}
	case *Copy:
		if instr.Dst == "" || instr.Src == "" || instr.Len == nil {
			return missing("operand")
		}
	case *Memset:
		if instr.Dst == "" || instr.X == nil || instr.Len == nil {
			return missing("operand")
		}
	case *Strlen:
		if instr.Dst == "" || instr.Src == "" {
			return missing("operand")
		}
	case *Call:
		if instr.Callee == "" {
			return missing("callee")
		}
		for _, arg := range instr.Args {
			if arg == nil {
				return missing("argument")
			}
		}
	}
	return validateExprs(instr)
}

func validateExprs(instr Instr) string {
	var exprs []Expr
	switch instr := instr.(type) {
	case *Assign:
		exprs = []Expr{instr.X}
	case *Declare:
		exprs = []Expr{instr.Size}
	case *Alloc:
		exprs = []Expr{instr.Bytes}
	case *AddrOf:
		exprs = []Expr{instr.Index}
	case *Load:
		exprs = []Expr{instr.Index}
	case *Store:
		exprs = []Expr{instr.Index, instr.X}
	case *Copy:
		exprs = []Expr{instr.Len}
	case *Memset:
		exprs = []Expr{instr.X, instr.Len}
	case *Call:
		exprs = instr.Args
	case *Return:
		if instr.X != nil {
			exprs = []Expr{instr.X}
		}
	}
	for _, e := range exprs {
		if msg := validateExpr(e); msg != "" {
			return msg
		}
	}
	return ""
}

func validateExpr(e Expr) string {
	switch e := e.(type) {
	case nil:
		return "missing operand"
	case Const:
		if e.Value == nil {
			return "constant without value"
		}
	case Binary:
		switch e.Op.String() {
		case "+", "-", "*", "/", "%", "&", "<<", ">>":
		default:
			return fmt.Sprintf("unsupported operator %s", e.Op)
		}
		if msg := validateExpr(e.X); msg != "" {
			return msg
		}
		return validateExpr(e.Y)
	case Neg:
		return validateExpr(e.X)
	case Convert:
		return validateExpr(e.X)
	case Var:
		if e.Name == "" {
			return "unnamed variable"
		}
	}
	return ""
}
