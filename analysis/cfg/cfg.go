// Package cfg defines the control-flow graphs analysed by the bounds
// checker.
//
// A function consists of basic blocks connected by edges. Edges may carry a
// guard, a condition that holds whenever the edge is taken, and moves,
// parallel assignments performed on the edge. Moves take the place of φ
// nodes. Variables are identified by name and hold either integers or
// pointers into arrays.
package cfg

import (
	"bytes"
	"fmt"
	"go/token"
	"math/big"
	"strings"

	"github.com/techguru321/infer/analysis/interval"
)

type Function struct {
	Name   string
	Pos    token.Position
	Params []Param
	// Blocks[0] is the entry block.
	Blocks []*Block
}

// A Param is a formal parameter. Integer parameters are bound to a symbol
// ranging over their type. Pointer parameters point to the start of an
// array whose length is a symbol.
type Param struct {
	Name    string
	Pointer bool
	Type    interval.IntType
	// ElemSize is the element size in bytes of pointer parameters.
	ElemSize int64
}

type Block struct {
	Index   int
	Comment string
	Instrs  []Instr
	Preds   []*Edge
	Succs   []*Edge
}

type Edge struct {
	From  *Block
	To    *Block
	Guard *Cond
	Moves []Move
}

// A Move assigns X to Dst when its edge is taken. All moves of an edge are
// evaluated before any of them is assigned.
type Move struct {
	Dst string
	X   Expr
}

func (fn *Function) Entry() *Block { return fn.Blocks[0] }

func (fn *Function) String() string {
	var buf bytes.Buffer
	ps := make([]string, len(fn.Params))
	for i, p := range fn.Params {
		if p.Pointer {
			ps[i] = "*" + p.Name
		} else {
			ps[i] = p.Name
		}
	}
	fmt.Fprintf(&buf, "func %s(%s)\n", fn.Name, strings.Join(ps, ", "))
	for _, b := range fn.Blocks {
		fmt.Fprintf(&buf, "%d:", b.Index)
		if b.Comment != "" {
			fmt.Fprintf(&buf, " ; %s", b.Comment)
		}
		buf.WriteString("\n")
		for _, instr := range b.Instrs {
			fmt.Fprintf(&buf, "\t%s\n", instr)
		}
		for _, e := range b.Succs {
			fmt.Fprintf(&buf, "\t→ %s\n", e)
		}
	}
	return buf.String()
}

func (e *Edge) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%d", e.To.Index)
	if e.Guard != nil {
		fmt.Fprintf(&sb, " if %s", e.Guard)
	}
	for _, m := range e.Moves {
		fmt.Fprintf(&sb, "; %s = %s", m.Dst, m.X)
	}
	return sb.String()
}

// Cond is a comparison X Op Y. Op is one of token.LSS, token.LEQ,
// token.GTR, token.GEQ, token.EQL and token.NEQ.
type Cond struct {
	Op token.Token
	X  Expr
	Y  Expr
}

func (c *Cond) String() string { return fmt.Sprintf("%s %s %s", c.X, c.Op, c.Y) }

// Negate returns the condition that holds when c does not.
func (c *Cond) Negate() *Cond {
	return &Cond{Op: NegateToken(c.Op), X: c.X, Y: c.Y}
}

// Flip returns the condition with its operands swapped.
func (c *Cond) Flip() *Cond {
	return &Cond{Op: FlipToken(c.Op), X: c.Y, Y: c.X}
}

func NegateToken(tok token.Token) token.Token {
	switch tok {
	case token.LSS:
		return token.GEQ
	case token.GTR:
		return token.LEQ
	case token.EQL:
		return token.NEQ
	case token.NEQ:
		return token.EQL
	case token.GEQ:
		return token.LSS
	case token.LEQ:
		return token.GTR
	default:
		panic(fmt.Sprintf("unsupported token %s", tok))
	}
}

func FlipToken(tok token.Token) token.Token {
	switch tok {
	case token.LSS:
		return token.GTR
	case token.GTR:
		return token.LSS
	case token.LEQ:
		return token.GEQ
	case token.GEQ:
		return token.LEQ
	case token.EQL, token.NEQ:
		return tok
	default:
		panic(fmt.Sprintf("unsupported token %s", tok))
	}
}

func isComparison(tok token.Token) bool {
	switch tok {
	case token.LSS, token.LEQ, token.GTR, token.GEQ, token.EQL, token.NEQ:
		return true
	}
	return false
}

type Expr interface {
	String() string
	expr()
}

type (
	Const struct {
		Value *big.Int
	}

	Var struct {
		Name string
	}

	// Binary applies Op, one of token.ADD, token.SUB, token.MUL, token.QUO,
	// token.REM, token.AND, token.SHL and token.SHR.
	Binary struct {
		Op token.Token
		X  Expr
		Y  Expr
	}

	Neg struct {
		X Expr
	}

	// Len is the number of elements between the pointer and the end of
	// the array it points into.
	Len struct {
		Ptr string
	}

	// Sizeof is Len measured in bytes.
	Sizeof struct {
		Ptr string
	}

	Convert struct {
		X  Expr
		To interval.IntType
	}

	// Unknown is a value the front end could not model.
	Unknown struct {
		Reason string
	}
)

func (Const) expr()   {}
func (Var) expr()     {}
func (Binary) expr()  {}
func (Neg) expr()     {}
func (Len) expr()     {}
func (Sizeof) expr()  {}
func (Convert) expr() {}
func (Unknown) expr() {}

func (e Const) String() string  { return e.Value.String() }
func (e Var) String() string    { return e.Name }
func (e Binary) String() string { return fmt.Sprintf("(%s %s %s)", e.X, e.Op, e.Y) }
func (e Neg) String() string    { return fmt.Sprintf("-%s", e.X) }
func (e Len) String() string    { return fmt.Sprintf("len(%s)", e.Ptr) }
func (e Sizeof) String() string { return fmt.Sprintf("sizeof(%s)", e.Ptr) }
func (e Convert) String() string {
	return fmt.Sprintf("%s(%s)", e.To, e.X)
}
func (e Unknown) String() string {
	if e.Reason == "" {
		return "?"
	}
	return fmt.Sprintf("?(%s)", e.Reason)
}

// C returns a constant expression.
func C(n int64) Const { return Const{Value: big.NewInt(n)} }

// V returns a variable reference.
func V(name string) Var { return Var{Name: name} }

// Vars returns the names of the variables e reads.
func Vars(e Expr) []string {
	var out []string
	var walk func(Expr)
	walk = func(e Expr) {
		switch e := e.(type) {
		case Var:
			out = append(out, e.Name)
		case Binary:
			walk(e.X)
			walk(e.Y)
		case Neg:
			walk(e.X)
		case Convert:
			walk(e.X)
		case Len:
			out = append(out, e.Ptr)
		case Sizeof:
			out = append(out, e.Ptr)
		}
	}
	if e != nil {
		walk(e)
	}
	return out
}
