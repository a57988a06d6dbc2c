package interval

// A Symbol is a free variable introduced at a binding site, usually a
// function parameter. Symbols are compared by identity.
//
// Every value a symbol may take lies in [Lo, Hi]. Bounds that mention a
// symbol are concretized through this range when no symbolic answer
// exists.
type Symbol struct {
	Name string
	Lo   Z
	Hi   Z
}

// NewSymbol returns a symbol ranging over (-∞, +∞), or [0, +∞) if unsigned
// is true.
func NewSymbol(name string, unsigned bool) *Symbol {
	if unsigned {
		return &Symbol{Name: name, Lo: NewZ(0), Hi: PInfinity}
	}
	return &Symbol{Name: name, Lo: NInfinity, Hi: PInfinity}
}

func (s *Symbol) String() string { return s.Name }

func (s *Symbol) contains(n Z) bool {
	return s.Lo.Cmp(n) <= 0 && n.Cmp(s.Hi) <= 0
}
