package model

import (
	"fmt"

	"golang.org/x/xerrors"
)

type Op int

const (
	OpNop Op = iota
	OpSolid
	OpUnion
	OpIntersect
	OpSubtract
)

func (o Op) String() string {
	switch o {
	case OpNop:
		return "nop"
	case OpSolid:
		return "solid"
	case OpUnion:
		return "union"
	case OpIntersect:
		return "intersect"
	case OpSubtract:
		return "subtract"
	}
	return fmt.Sprintf("op(%d)", int(o))
}

// Tree is a boolean expression over solids.  Leaves (OpSolid) name a solid;
// OpNop has only a Left child.
type Tree struct {
	Op          Op
	Left, Right *Tree

	Name  string
	Solid *Solid
}

func Leaf(name string) *Tree {
	return &Tree{Op: OpSolid, Name: name}
}

func Union(l, r *Tree) *Tree {
	return &Tree{Op: OpUnion, Left: l, Right: r}
}

func Intersect(l, r *Tree) *Tree {
	return &Tree{Op: OpIntersect, Left: l, Right: r}
}

func Subtract(l, r *Tree) *Tree {
	return &Tree{Op: OpSubtract, Left: l, Right: r}
}

func Nop(t *Tree) *Tree {
	return &Tree{Op: OpNop, Left: t}
}

func (t *Tree) String() string {
	switch t.Op {
	case OpSolid:
		return t.Name
	case OpNop:
		return t.Left.String()
	case OpUnion:
		return fmt.Sprintf("(%v u %v)", t.Left, t.Right)
	case OpIntersect:
		return fmt.Sprintf("(%v + %v)", t.Left, t.Right)
	case OpSubtract:
		return fmt.Sprintf("(%v - %v)", t.Left, t.Right)
	}
	return t.Op.String()
}

// resolve copies t, binding each leaf to its solid.  Regions never share
// tree nodes.
func (m *Model) resolve(t *Tree) (*Tree, error) {
	if t == nil {
		return nil, xerrors.New("missing subtree")
	}
	switch t.Op {
	case OpSolid:
		s, ok := m.byName[t.Name]
		if !ok {
			return nil, xerrors.Errorf("leaf %q: %w", t.Name, ErrUnknownSolid)
		}
		return &Tree{Op: OpSolid, Name: t.Name, Solid: s}, nil
	case OpNop:
		l, err := m.resolve(t.Left)
		if err != nil {
			return nil, err
		}
		return &Tree{Op: OpNop, Left: l}, nil
	case OpUnion, OpIntersect, OpSubtract:
		l, err := m.resolve(t.Left)
		if err != nil {
			return nil, err
		}
		r, err := m.resolve(t.Right)
		if err != nil {
			return nil, err
		}
		return &Tree{Op: t.Op, Left: l, Right: r}, nil
	}
	return nil, xerrors.Errorf("unknown tree op %v", t.Op)
}

// simplify drops leaves whose solid did not survive preparation and
// collapses the nodes they leave trivial.  A nil result means the whole tree
// is empty.
func simplify(t *Tree) *Tree {
	switch t.Op {
	case OpSolid:
		if t.Solid == nil || t.Solid.Specific == nil {
			return nil
		}
		return t
	case OpNop:
		return simplify(t.Left)
	}

	l := simplify(t.Left)
	r := simplify(t.Right)
	switch t.Op {
	case OpUnion:
		if l == nil {
			return r
		}
		if r == nil {
			return l
		}
	case OpIntersect:
		if l == nil || r == nil {
			return nil
		}
	case OpSubtract:
		if l == nil {
			return nil
		}
		if r == nil {
			return l
		}
	}
	return &Tree{Op: t.Op, Left: l, Right: r}
}

// Instr is one step of a region's compiled boolean expression.  The
// expression is in postfix order: OpSolid pushes whether solid Bit is
// present, and the binary ops pop two values and push the result.
type Instr struct {
	Op  Op
	Bit int
}

func compile(t *Tree, prog []Instr) []Instr {
	if t.Op == OpSolid {
		return append(prog, Instr{Op: OpSolid, Bit: t.Solid.Bit})
	}
	prog = compile(t.Left, prog)
	prog = compile(t.Right, prog)
	return append(prog, Instr{Op: t.Op})
}

func leaves(t *Tree, visit func(*Solid)) {
	if t.Op == OpSolid {
		visit(t.Solid)
		return
	}
	leaves(t.Left, visit)
	leaves(t.Right, visit)
}
