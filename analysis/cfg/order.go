package cfg

// ReversePostorder returns the blocks reachable from the entry block in
// reverse postorder of a depth-first search.
func ReversePostorder(fn *Function) []*Block {
	seen := make([]bool, len(fn.Blocks))
	var post []*Block
	var visit func(b *Block)
	visit = func(b *Block) {
		seen[b.Index] = true
		for _, e := range b.Succs {
			if !seen[e.To.Index] {
				visit(e.To)
			}
		}
		post = append(post, b)
	}
	visit(fn.Entry())
	for i, j := 0, len(post)-1; i < j; i, j = i+1, j-1 {
		post[i], post[j] = post[j], post[i]
	}
	return post
}

// WideningPoints returns the targets of back edges found by a depth-first
// search from the entry block. Every cycle of the graph contains at least
// one of them.
func WideningPoints(fn *Function) map[*Block]bool {
	const (
		white = iota
		grey
		black
	)
	color := make([]int, len(fn.Blocks))
	out := map[*Block]bool{}
	var visit func(b *Block)
	visit = func(b *Block) {
		color[b.Index] = grey
		for _, e := range b.Succs {
			switch color[e.To.Index] {
			case white:
				visit(e.To)
			case grey:
				out[e.To] = true
			}
		}
		color[b.Index] = black
	}
	visit(fn.Entry())
	return out
}
