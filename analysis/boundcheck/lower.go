package boundcheck

import (
	"fmt"
	"go/constant"
	"go/token"
	"go/types"
	"math/big"
	"regexp"

	"golang.org/x/tools/go/ssa"

	"github.com/techguru321/infer/analysis/cfg"
	"github.com/techguru321/infer/analysis/interval"
)

// Options control how Go types are mapped to the integer types of the
// analysis.
type Options struct {
	Sizes types.Sizes
	// IntSize is the size in bytes of int, uint and uintptr.
	IntSize int64
}

func (opts Options) withDefaults() Options {
	if opts.Sizes == nil {
		opts.Sizes = types.SizesFor("gc", "amd64")
	}
	if opts.IntSize == 0 {
		opts.IntSize = 8
	}
	return opts
}

// Name returns the name under which fn is analysed and called.
func Name(fn *ssa.Function) string { return fn.String() }

// Lower translates fn into a control-flow graph.
//
// Integer values and slices are modelled; every other value is unknown.
// Slices and arrays are objects whose size is their length. Element
// accesses through IndexAddr are checked where they are dereferenced or
// stored to, using the position of the index expression. φ nodes become
// moves on the incoming edges and comparisons that control an If become
// edge guards. Panics and calls to os.Exit and log.Fatal end the program.
func Lower(fn *ssa.Function, opts Options) (*cfg.Function, error) {
	if len(fn.Blocks) == 0 {
		return nil, fmt.Errorf("%s has no body", Name(fn))
	}
	l := &lowerer{
		fn:   fn,
		fset: fn.Prog.Fset,
		opts: opts.withDefaults(),
	}
	return l.lower()
}

type lowerer struct {
	fn   *ssa.Function
	fset *token.FileSet
	opts Options

	b      *cfg.Builder
	blocks []*cfg.Block
	// last is the most recent valid position, used for instructions
	// without one.
	last token.Position
	// accesses holds the element addresses whose loads and stores are
	// checked at their uses.
	accesses map[*ssa.IndexAddr]bool
}

var registerName = regexp.MustCompile(`^t[0-9]+$`)

func (l *lowerer) name(v ssa.Value) string {
	switch v := v.(type) {
	case *ssa.Parameter:
		if registerName.MatchString(v.Name()) {
			return "_" + v.Name()
		}
		return v.Name()
	case *ssa.FreeVar:
		return "free:" + v.Name()
	case *ssa.Global:
		return "global:" + v.RelString(nil)
	}
	return v.Name()
}

func (l *lowerer) lower() (*cfg.Function, error) {
	fn := l.fn
	params := make([]cfg.Param, len(fn.Params))
	for i, p := range fn.Params {
		params[i] = l.param(p)
	}
	l.b = cfg.NewBuilder(Name(fn), params...)
	l.last = l.fset.Position(fn.Pos())
	if l.last.IsValid() {
		l.b.SetFile(l.last.Filename)
	}
	l.accesses = map[*ssa.IndexAddr]bool{}

	l.blocks = make([]*cfg.Block, len(fn.Blocks))
	l.blocks[0] = l.b.Current()
	for i := 1; i < len(fn.Blocks); i++ {
		l.blocks[i] = l.b.NewBlock(fn.Blocks[i].Comment)
	}
	for i, blk := range fn.Blocks {
		l.b.SetBlock(l.blocks[i])
		for _, instr := range blk.Instrs {
			l.instr(instr)
		}
	}
	for _, blk := range fn.Blocks {
		l.edges(blk)
	}

	out, err := l.b.Func()
	if err != nil {
		return nil, err
	}
	if p := l.fset.Position(fn.Pos()); p.IsValid() {
		out.Pos = p
	}
	return out, nil
}

func (l *lowerer) param(p *ssa.Parameter) cfg.Param {
	if elem, ok := sliceElem(p.Type()); ok {
		return cfg.PtrParam(l.name(p), l.elemSize(elem))
	}
	// Parameters of other types keep their position in the argument list
	// but are never read as integers.
	t, _ := l.intType(p.Type())
	return cfg.Param{Name: l.name(p), Type: t}
}

func sliceElem(t types.Type) (types.Type, bool) {
	if s, ok := t.Underlying().(*types.Slice); ok {
		return s.Elem(), true
	}
	return nil, false
}

// arrayOf returns the array a pointer-to-array type points to.
func arrayOf(t types.Type) (*types.Array, bool) {
	p, ok := t.Underlying().(*types.Pointer)
	if !ok {
		return nil, false
	}
	a, ok := p.Elem().Underlying().(*types.Array)
	return a, ok
}

func (l *lowerer) elemSize(t types.Type) int64 {
	if _, ok := t.Underlying().(*types.TypeParam); ok {
		return 1
	}
	if n := l.opts.Sizes.Sizeof(t); n > 0 {
		return n
	}
	return 1
}

func (l *lowerer) intType(t types.Type) (interval.IntType, bool) {
	b, ok := t.Underlying().(*types.Basic)
	if !ok || b.Info()&types.IsInteger == 0 {
		return interval.IntType{}, false
	}
	unsigned := b.Info()&types.IsUnsigned != 0
	switch b.Kind() {
	case types.UntypedInt, types.UntypedRune:
		return interval.IntType{}, true
	case types.Int, types.Uint, types.Uintptr:
		return interval.IntType{Bits: int(l.opts.IntSize * 8), Unsigned: unsigned}, true
	}
	return interval.IntType{Bits: int(l.opts.Sizes.Sizeof(b) * 8), Unsigned: unsigned}, true
}

func (l *lowerer) isInt(t types.Type) bool {
	_, ok := l.intType(t)
	return ok
}

// isBuffer reports whether values of type t are modelled as pointers.
func isBuffer(t types.Type) bool {
	if _, ok := sliceElem(t); ok {
		return true
	}
	_, ok := arrayOf(t)
	return ok
}

// expr returns the expression for an operand.
func (l *lowerer) expr(v ssa.Value) cfg.Expr {
	switch v := v.(type) {
	case *ssa.Const:
		if !l.isInt(v.Type()) || v.Value == nil {
			return cfg.Unknown{Reason: v.Type().String()}
		}
		switch x := constant.Val(constant.ToInt(v.Value)).(type) {
		case int64:
			return cfg.C(x)
		case *big.Int:
			return cfg.Const{Value: x}
		}
		return cfg.Unknown{Reason: v.String()}
	case *ssa.Function, *ssa.Builtin:
		return cfg.Unknown{Reason: "func"}
	}
	if l.isInt(v.Type()) || isBuffer(v.Type()) {
		return cfg.V(l.name(v))
	}
	return cfg.Unknown{Reason: v.Type().String()}
}

func (l *lowerer) at(pos token.Pos) cfg.At {
	if p := l.fset.Position(pos); p.IsValid() {
		l.last = p
		return cfg.At{Position: p}
	}
	return cfg.At{Position: l.last}
}

// unknown assigns an unknown value to v if v is an integer.
func (l *lowerer) unknown(v ssa.Value, reason string) {
	if l.isInt(v.Type()) {
		l.b.Emit(&cfg.Assign{At: l.at(v.Pos()), Dst: l.name(v), X: cfg.Unknown{Reason: reason}})
	}
}

var binaryOps = map[token.Token]bool{
	token.ADD: true,
	token.SUB: true,
	token.MUL: true,
	token.QUO: true,
	token.REM: true,
	token.AND: true,
	token.SHL: true,
	token.SHR: true,
}

func (l *lowerer) instr(instr ssa.Instruction) {
	switch instr := instr.(type) {
	case *ssa.BinOp:
		if !l.isInt(instr.Type()) {
			return
		}
		if !binaryOps[instr.Op] {
			l.unknown(instr, instr.Op.String())
			return
		}
		l.b.Emit(&cfg.Assign{
			At:  l.at(instr.Pos()),
			Dst: l.name(instr),
			X:   cfg.Binary{Op: instr.Op, X: l.expr(instr.X), Y: l.expr(instr.Y)},
		})

	case *ssa.UnOp:
		switch instr.Op {
		case token.SUB:
			if l.isInt(instr.Type()) {
				l.b.Emit(&cfg.Assign{At: l.at(instr.Pos()), Dst: l.name(instr), X: cfg.Neg{X: l.expr(instr.X)}})
			}
		case token.MUL:
			if ia, ok := instr.X.(*ssa.IndexAddr); ok && l.accesses[ia] {
				l.b.Emit(&cfg.Load{At: l.at(ia.Pos()), Dst: l.name(instr), Ptr: l.name(ia.X), Index: l.expr(ia.Index)})
				return
			}
			l.unknown(instr, "load")
		default:
			l.unknown(instr, instr.Op.String())
		}

	case *ssa.Convert:
		t, ok := l.intType(instr.Type())
		if !ok {
			return
		}
		if !l.isInt(instr.X.Type()) {
			l.unknown(instr, "conversion from "+instr.X.Type().String())
			return
		}
		l.b.Emit(&cfg.Assign{At: l.at(instr.Pos()), Dst: l.name(instr), X: cfg.Convert{X: l.expr(instr.X), To: t}})

	case *ssa.ChangeType:
		if l.isInt(instr.Type()) || isBuffer(instr.Type()) {
			l.b.Emit(&cfg.Assign{At: l.at(instr.Pos()), Dst: l.name(instr), X: l.expr(instr.X)})
		}

	case *ssa.Alloc:
		a, ok := arrayOf(instr.Type())
		if !ok {
			return
		}
		// Go zeroes new arrays.
		l.b.Emit(&cfg.Declare{
			At:         l.at(instr.Pos()),
			Dst:        l.name(instr),
			Size:       cfg.C(a.Len()),
			ElemSize:   l.elemSize(a.Elem()),
			Init:       []int64{},
			AllowEmpty: true,
		})

	case *ssa.MakeSlice:
		elem, _ := sliceElem(instr.Type())
		l.b.Emit(&cfg.Declare{
			At:         l.at(instr.Pos()),
			Dst:        l.name(instr),
			Size:       l.expr(instr.Len),
			ElemSize:   l.elemSize(elem),
			Init:       []int64{},
			AllowEmpty: true,
		})

	case *ssa.Slice:
		l.slice(instr)

	case *ssa.IndexAddr:
		l.indexAddr(instr)

	case *ssa.Store:
		if ia, ok := instr.Addr.(*ssa.IndexAddr); ok && l.accesses[ia] {
			l.b.Emit(&cfg.Store{At: l.at(ia.Pos()), Ptr: l.name(ia.X), Index: l.expr(ia.Index), X: l.expr(instr.Val)})
		}

	case *ssa.Call:
		l.call(instr)

	case *ssa.Return:
		var x cfg.Expr
		if len(instr.Results) == 1 && l.isInt(instr.Results[0].Type()) {
			x = l.expr(instr.Results[0])
		}
		l.b.Emit(&cfg.Return{At: l.at(instr.Pos()), X: x})

	case *ssa.Panic:
		l.b.Emit(&cfg.Exit{At: l.at(instr.Pos())})

	case *ssa.Phi, *ssa.If, *ssa.Jump:
		// lowered as edges

	case ssa.Value:
		l.unknown(instr, fmt.Sprintf("%T", instr))
	}
}

// slice lowers s[lo:hi]. Slicing up to the end keeps pointing into the
// same object; a slice with an explicit high bound is modelled as a new
// object of length hi-lo whose contents are unknown.
func (l *lowerer) slice(instr *ssa.Slice) {
	if !isBuffer(instr.X.Type()) || !isBuffer(instr.Type()) {
		return
	}
	low := cfg.Expr(cfg.C(0))
	if instr.Low != nil {
		low = l.expr(instr.Low)
	}
	if instr.High == nil {
		l.b.Emit(&cfg.AddrOf{At: l.at(instr.Pos()), Dst: l.name(instr), Base: l.name(instr.X), Index: low})
		return
	}
	elem, _ := sliceElem(instr.Type())
	l.b.Emit(&cfg.Declare{
		At:         l.at(instr.Pos()),
		Dst:        l.name(instr),
		Size:       cfg.Binary{Op: token.SUB, X: l.expr(instr.High), Y: low},
		ElemSize:   l.elemSize(elem),
		AllowEmpty: true,
	})
}

func (l *lowerer) indexAddr(instr *ssa.IndexAddr) {
	if !isBuffer(instr.X.Type()) {
		return
	}
	direct := true
	if refs := instr.Referrers(); refs != nil {
		for _, ref := range *refs {
			switch ref := ref.(type) {
			case *ssa.UnOp:
				direct = direct && ref.Op == token.MUL
			case *ssa.Store:
				direct = direct && ref.Addr == ssa.Value(instr) && ref.Val != ssa.Value(instr)
			case *ssa.DebugRef:
			default:
				direct = false
			}
		}
	}
	if direct {
		l.accesses[instr] = true
		return
	}
	// The address escapes. Check the element once here and keep a pointer
	// to it.
	at := l.at(instr.Pos())
	l.b.Emit(&cfg.Load{At: at, Dst: l.name(instr) + "#elem", Ptr: l.name(instr.X), Index: l.expr(instr.Index)})
	l.b.Emit(&cfg.AddrOf{At: at, Dst: l.name(instr), Base: l.name(instr.X), Index: l.expr(instr.Index)})
}

func (l *lowerer) call(instr *ssa.Call) {
	common := instr.Common()
	at := l.at(instr.Pos())
	if b, ok := common.Value.(*ssa.Builtin); ok {
		l.builtin(instr, b.Name(), common.Args)
		return
	}
	callee := common.StaticCallee()
	if callee == nil {
		l.unknown(instr, "dynamic call")
		return
	}
	if exits(callee) {
		l.b.Emit(&cfg.Exit{At: at})
		return
	}
	args := make([]cfg.Expr, len(common.Args))
	for i, arg := range common.Args {
		args[i] = l.expr(arg)
	}
	dst := ""
	if l.isInt(instr.Type()) {
		dst = l.name(instr)
	}
	l.b.Emit(&cfg.Call{At: at, Dst: dst, Callee: Name(callee), Args: args})
}

func exits(fn *ssa.Function) bool {
	if fn.Pkg == nil || fn.Signature.Recv() != nil {
		return false
	}
	switch fn.Pkg.Pkg.Path() {
	case "os":
		return fn.Name() == "Exit"
	case "log":
		switch fn.Name() {
		case "Fatal", "Fatalf", "Fatalln":
			return true
		}
	}
	return false
}

func (l *lowerer) builtin(instr *ssa.Call, name string, args []ssa.Value) {
	switch name {
	case "len", "cap":
		x := args[0]
		var e cfg.Expr
		switch t := x.Type().Underlying().(type) {
		case *types.Slice:
			// cap is at least len, which is what indexing is checked
			// against
			if name == "len" {
				e = cfg.Len{Ptr: l.name(x)}
			}
		case *types.Array:
			e = cfg.C(t.Len())
		case *types.Pointer:
			if a, ok := arrayOf(t); ok {
				e = cfg.C(a.Len())
			}
		case *types.Basic:
			if c, ok := x.(*ssa.Const); ok && c.Value != nil && c.Value.Kind() == constant.String {
				e = cfg.C(int64(len(constant.StringVal(c.Value))))
			}
		}
		if e == nil {
			l.unknown(instr, name)
			return
		}
		l.b.Emit(&cfg.Assign{At: l.at(instr.Pos()), Dst: l.name(instr), X: e})
	default:
		l.unknown(instr, name)
	}
}

// edges connects blk to its successors. Comparisons of integers that
// control an If guard both edges; φ nodes of the successor become moves.
func (l *lowerer) edges(blk *ssa.BasicBlock) {
	var cond *cfg.Cond
	if len(blk.Instrs) > 0 {
		if i, ok := blk.Instrs[len(blk.Instrs)-1].(*ssa.If); ok && len(blk.Succs) == 2 && blk.Succs[0] != blk.Succs[1] {
			cond = l.cond(i.Cond)
		}
	}
	occurrence := map[*ssa.BasicBlock]int{}
	for i, succ := range blk.Succs {
		var guard *cfg.Cond
		if cond != nil {
			guard = cond
			if i == 1 {
				guard = cond.Negate()
			}
		}
		// The n-th edge from blk to succ is the n-th occurrence of blk
		// among the predecessors of succ.
		k := nthIndex(succ.Preds, blk, occurrence[succ])
		occurrence[succ]++
		l.b.Connect(l.blocks[blk.Index], l.blocks[succ.Index], guard, l.moves(succ, k)...)
	}
}

func nthIndex(blocks []*ssa.BasicBlock, blk *ssa.BasicBlock, n int) int {
	for i, b := range blocks {
		if b != blk {
			continue
		}
		if n == 0 {
			return i
		}
		n--
	}
	return -1
}

func (l *lowerer) moves(succ *ssa.BasicBlock, k int) []cfg.Move {
	if k < 0 {
		return nil
	}
	var out []cfg.Move
	for _, instr := range succ.Instrs {
		phi, ok := instr.(*ssa.Phi)
		if !ok {
			break
		}
		if !l.isInt(phi.Type()) && !isBuffer(phi.Type()) {
			continue
		}
		out = append(out, cfg.Move{Dst: l.name(phi), X: l.expr(phi.Edges[k])})
	}
	return out
}

// cond returns the guard for an If condition, or nil if the condition
// is not a comparison of integers.
func (l *lowerer) cond(v ssa.Value) *cfg.Cond {
	switch v := v.(type) {
	case *ssa.BinOp:
		switch v.Op {
		case token.LSS, token.LEQ, token.GTR, token.GEQ, token.EQL, token.NEQ:
		default:
			return nil
		}
		if !l.isInt(v.X.Type()) || !l.isInt(v.Y.Type()) {
			return nil
		}
		return &cfg.Cond{Op: v.Op, X: l.expr(v.X), Y: l.expr(v.Y)}
	case *ssa.UnOp:
		if v.Op != token.NOT {
			return nil
		}
		if c := l.cond(v.X); c != nil {
			return c.Negate()
		}
	}
	return nil
}
