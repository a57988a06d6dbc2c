package cfg

import (
	"go/token"
)

// A Builder constructs a Function block by block. Instructions are appended
// to the current block; instructions without a position are given the
// builder's file name and consecutive line numbers.
type Builder struct {
	fn   *Function
	cur  *Block
	line int
}

func NewBuilder(name string, params ...Param) *Builder {
	fn := &Function{
		Name:   name,
		Pos:    token.Position{Filename: name, Line: 1},
		Params: params,
	}
	b := &Builder{fn: fn, line: 1}
	b.cur = b.NewBlock("entry")
	return b
}

// IntParam returns a signed integer parameter.
func IntParam(name string) Param { return Param{Name: name} }

// UintParam returns an unsigned integer parameter.
func UintParam(name string) Param { return Param{Name: name, Type: uintType} }

// PtrParam returns a pointer parameter with the given element size.
func PtrParam(name string, elemSize int64) Param {
	return Param{Name: name, Pointer: true, ElemSize: elemSize}
}

// SetFile sets the file name of positions assigned by the builder.
func (b *Builder) SetFile(name string) { b.fn.Pos.Filename = name }

func (b *Builder) NewBlock(comment string) *Block {
	blk := &Block{Index: len(b.fn.Blocks), Comment: comment}
	b.fn.Blocks = append(b.fn.Blocks, blk)
	return blk
}

func (b *Builder) Current() *Block { return b.cur }

func (b *Builder) SetBlock(blk *Block) { b.cur = blk }

// Emit appends instr to the current block.
func (b *Builder) Emit(instr Instr) Instr {
	b.line++
	if instr.Pos().Line == 0 {
		setPos(instr, token.Position{Filename: b.fn.Pos.Filename, Line: b.line})
	}
	b.cur.Instrs = append(b.cur.Instrs, instr)
	return instr
}

func setPos(instr Instr, pos token.Position) {
	switch instr := instr.(type) {
	case *Assign:
		instr.Position = pos
	case *Declare:
		instr.Position = pos
	case *Alloc:
		instr.Position = pos
	case *AddrOf:
		instr.Position = pos
	case *Load:
		instr.Position = pos
	case *Store:
		instr.Position = pos
	case *Copy:
		instr.Position = pos
	case *Memset:
		instr.Position = pos
	case *Strlen:
		instr.Position = pos
	case *Call:
		instr.Position = pos
	case *Return:
		instr.Position = pos
	case *Exit:
		instr.Position = pos
	}
}

func (b *Builder) Assign(dst string, x Expr) { b.Emit(&Assign{Dst: dst, X: x}) }

func (b *Builder) Declare(dst string, size Expr, elemSize int64, init ...int64) {
	b.Emit(&Declare{Dst: dst, Size: size, ElemSize: elemSize, Init: init})
}

// DeclareString declares a char array of the given size initialised with s
// and a terminating NUL.
func (b *Builder) DeclareString(dst string, size int64, s string) {
	init := make([]int64, 0, len(s)+1)
	for i := 0; i < len(s); i++ {
		init = append(init, int64(s[i]))
	}
	init = append(init, 0)
	b.Emit(&Declare{Dst: dst, Size: C(size), ElemSize: 1, Init: init})
}

func (b *Builder) Alloc(dst string, bytes Expr, elemSize int64) {
	b.Emit(&Alloc{Dst: dst, Bytes: bytes, ElemSize: elemSize})
}

func (b *Builder) AddrOf(dst, base string, index Expr) {
	b.Emit(&AddrOf{Dst: dst, Base: base, Index: index})
}

func (b *Builder) Load(dst, ptr string, index Expr) {
	b.Emit(&Load{Dst: dst, Ptr: ptr, Index: index})
}

func (b *Builder) Store(ptr string, index, x Expr) {
	b.Emit(&Store{Ptr: ptr, Index: index, X: x})
}

func (b *Builder) Copy(kind CopyKind, dst, src string, n Expr) {
	b.Emit(&Copy{Kind: kind, Dst: dst, Src: src, Len: n})
}

func (b *Builder) Memset(dst string, x, n Expr) {
	b.Emit(&Memset{Dst: dst, X: x, Len: n})
}

func (b *Builder) Strlen(dst, src string) { b.Emit(&Strlen{Dst: dst, Src: src}) }

func (b *Builder) Call(dst, callee string, args ...Expr) {
	b.Emit(&Call{Dst: dst, Callee: callee, Args: args})
}

func (b *Builder) Return(x Expr) { b.Emit(&Return{X: x}) }

func (b *Builder) Exit() { b.Emit(&Exit{}) }

// Connect adds an edge between two blocks.
func (b *Builder) Connect(from, to *Block, guard *Cond, moves ...Move) *Edge {
	e := &Edge{From: from, To: to, Guard: guard, Moves: moves}
	from.Succs = append(from.Succs, e)
	to.Preds = append(to.Preds, e)
	return e
}

// Jump ends the current block with an unconditional edge to another block.
func (b *Builder) Jump(to *Block, moves ...Move) *Edge {
	return b.Connect(b.cur, to, nil, moves...)
}

// Branch ends the current block with an edge to then, guarded by cond, and
// an edge to els, guarded by the negation of cond.
func (b *Builder) Branch(cond *Cond, then, els *Block) {
	b.Connect(b.cur, then, cond)
	b.Connect(b.cur, els, cond.Negate())
}

// If is a convenience for Branch that creates the two successor blocks.
func (b *Builder) If(op token.Token, x, y Expr) (then, els *Block) {
	then = b.NewBlock("if.then")
	els = b.NewBlock("if.else")
	b.Branch(&Cond{Op: op, X: x, Y: y}, then, els)
	return then, els
}

// Func validates and returns the function.
func (b *Builder) Func() (*Function, error) {
	if err := Validate(b.fn); err != nil {
		return nil, err
	}
	return b.fn, nil
}
