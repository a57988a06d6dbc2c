package cfg

import (
	"fmt"
	"go/token"
	"strings"
)

type Instr interface {
	Pos() token.Position
	String() string
	instr()
}

// At records the source position of an instruction.
type At struct {
	Position token.Position
}

func (a At) Pos() token.Position { return a.Position }
func (At) instr()                {}

type CopyKind int

const (
	Memcpy CopyKind = iota
	Memmove
	Strncpy
)

func (k CopyKind) String() string {
	switch k {
	case Memcpy:
		return "memcpy"
	case Memmove:
		return "memmove"
	case Strncpy:
		return "strncpy"
	default:
		return fmt.Sprintf("CopyKind(%d)", int(k))
	}
}

type (
	// Assign sets Dst to the value of X.
	Assign struct {
		At
		Dst string
		X   Expr
	}

	// Declare creates an array of Size elements, each ElemSize bytes
	// wide, and makes Dst point to its start. Init lists the initial
	// values of the leading elements; the remaining ones are zero. With no
	// Init the contents are unknown. Unless AllowEmpty is set, the size
	// must be positive.
	Declare struct {
		At
		Dst        string
		Size       Expr
		ElemSize   int64
		Init       []int64
		AllowEmpty bool
	}

	// Alloc allocates Bytes bytes, as malloc does, and makes Dst point to
	// the start of the allocation.
	Alloc struct {
		At
		Dst      string
		Bytes    Expr
		ElemSize int64
	}

	// AddrOf makes Dst point Index elements past where Base points.
	AddrOf struct {
		At
		Dst   string
		Base  string
		Index Expr
	}

	// Load reads Ptr[Index] into Dst.
	Load struct {
		At
		Dst   string
		Ptr   string
		Index Expr
	}

	// Store writes X to Ptr[Index].
	Store struct {
		At
		Ptr   string
		Index Expr
		X     Expr
	}

	// Copy copies Len bytes from Src to Dst.
	Copy struct {
		At
		Kind CopyKind
		Dst  string
		Src  string
		Len  Expr
	}

	// Memset sets Len bytes of Dst to X.
	Memset struct {
		At
		Dst string
		X   Expr
		Len Expr
	}

	// Strlen sets Dst to the length of the string Src points to.
	Strlen struct {
		At
		Dst string
		Src string
	}

	// Call calls Callee. Pointer arguments are passed as variables
	// holding pointers. Dst may be empty.
	Call struct {
		At
		Dst    string
		Callee string
		Args   []Expr
	}

	Return struct {
		At
		// X may be nil.
		X Expr
	}

	// Exit ends the execution of the program. Nothing after it is
	// reachable.
	Exit struct {
		At
	}
)

func (i *Assign) String() string { return fmt.Sprintf("%s = %s", i.Dst, i.X) }

func (i *Declare) String() string {
	s := fmt.Sprintf("%s = new [%s]elem%d", i.Dst, i.Size, i.ElemSize*8)
	if i.Init != nil {
		s += fmt.Sprintf(" %v", i.Init)
	}
	return s
}

func (i *Alloc) String() string {
	return fmt.Sprintf("%s = malloc(%s) elem%d", i.Dst, i.Bytes, i.ElemSize*8)
}

func (i *AddrOf) String() string { return fmt.Sprintf("%s = &%s[%s]", i.Dst, i.Base, i.Index) }
func (i *Load) String() string   { return fmt.Sprintf("%s = %s[%s]", i.Dst, i.Ptr, i.Index) }
func (i *Store) String() string  { return fmt.Sprintf("%s[%s] = %s", i.Ptr, i.Index, i.X) }
func (i *Copy) String() string   { return fmt.Sprintf("%s(%s, %s, %s)", i.Kind, i.Dst, i.Src, i.Len) }
func (i *Memset) String() string { return fmt.Sprintf("memset(%s, %s, %s)", i.Dst, i.X, i.Len) }
func (i *Strlen) String() string { return fmt.Sprintf("%s = strlen(%s)", i.Dst, i.Src) }
func (i *Exit) String() string   { return "exit" }

func (i *Call) String() string {
	args := make([]string, len(i.Args))
	for j, arg := range i.Args {
		args[j] = arg.String()
	}
	call := fmt.Sprintf("%s(%s)", i.Callee, strings.Join(args, ", "))
	if i.Dst == "" {
		return call
	}
	return i.Dst + " = " + call
}

func (i *Return) String() string {
	if i.X == nil {
		return "return"
	}
	return fmt.Sprintf("return %s", i.X)
}

// Defines returns the variable an instruction assigns to, if any.
func Defines(instr Instr) string {
	switch instr := instr.(type) {
	case *Assign:
		return instr.Dst
	case *Declare:
		return instr.Dst
	case *Alloc:
		return instr.Dst
	case *AddrOf:
		return instr.Dst
	case *Load:
		return instr.Dst
	case *Strlen:
		return instr.Dst
	case *Call:
		return instr.Dst
	}
	return ""
}

// Uses returns the variables an instruction reads.
func Uses(instr Instr) []string {
	switch instr := instr.(type) {
	case *Assign:
		return Vars(instr.X)
	case *Declare:
		return Vars(instr.Size)
	case *Alloc:
		return Vars(instr.Bytes)
	case *AddrOf:
		return append([]string{instr.Base}, Vars(instr.Index)...)
	case *Load:
		return append([]string{instr.Ptr}, Vars(instr.Index)...)
	case *Store:
		return append(append([]string{instr.Ptr}, Vars(instr.Index)...), Vars(instr.X)...)
	case *Copy:
		return append([]string{instr.Dst, instr.Src}, Vars(instr.Len)...)
	case *Memset:
		return append(append([]string{instr.Dst}, Vars(instr.X)...), Vars(instr.Len)...)
	case *Strlen:
		return []string{instr.Src}
	case *Call:
		var out []string
		for _, arg := range instr.Args {
			out = append(out, Vars(arg)...)
		}
		return out
	case *Return:
		return Vars(instr.X)
	}
	return nil
}
