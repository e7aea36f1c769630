package tree

// pool is the cell arena. Cells are never handed back to the garbage
// collector; a rebuild puts every cell on the free list and the next
// build takes them off again.
//
// The pool is not safe for concurrent use. Cells are only allocated
// during insertion, which is sequential.
type pool struct {
	cells []Cell
	free  []int32
	used  int
}

// reset reclaims every cell. Indices come back lowest first.
func (p *pool) reset() {
	p.free = p.free[:0]
	for i := len(p.cells) - 1; i >= 0; i-- {
		p.free = append(p.free, int32(i))
	}
	p.used = 0
}

// get returns the index of an empty cell. Growing the arena moves it, so
// callers must not hold *Cell across a call to get.
func (p *pool) get() int32 {
	var i int32
	if n := len(p.free); n > 0 {
		i = p.free[n-1]
		p.free = p.free[:n-1]
		p.cells[i] = Cell{}
	} else {
		i = int32(len(p.cells))
		p.cells = append(p.cells, Cell{})
	}
	p.used++
	return i
}
