package search

import "strings"

// Node is a node of an immutable condition tree. The concrete types are
// *Leaf, *Binary and *Not; no other implementations exist.
type Node interface {
	isNode()
}

// Op is the boolean operator of a Binary node.
type Op int

const (
	OpAnd Op = iota + 1
	OpOr
)

func (o Op) String() string {
	switch o {
	case OpAnd:
		return "AND"
	case OpOr:
		return "OR"
	}
	return "?"
}

// Leaf holds a single condition.
type Leaf struct {
	Condition Condition
}

// Binary joins two subtrees with AND or OR.
type Binary struct {
	Op    Op
	Left  Node
	Right Node
}

// Not negates its child.
type Not struct {
	Child Node
}

func (*Leaf) isNode()   {}
func (*Binary) isNode() {}
func (*Not) isNode()    {}

// NewLeaf returns a leaf node for c.
func NewLeaf(c Condition) *Leaf {
	return &Leaf{Condition: c}
}

// Builder assembles condition trees without manual node wiring. Each call
// returns a new Builder whose root wraps the current one, so a Builder can be
// reused as a common prefix for several trees.
type Builder struct {
	root Node
}

// NewBuilder starts a tree with a single condition.
func NewBuilder(c Condition) *Builder {
	return &Builder{root: NewLeaf(c)}
}

// BuilderFrom starts a tree from an existing subtree.
func BuilderFrom(n Node) *Builder {
	return &Builder{root: n}
}

// And appends c as the right operand of an AND with the current tree.
func (b *Builder) And(c Condition) *Builder {
	return b.AndTree(NewLeaf(c))
}

// AndTree appends n as the right operand of an AND with the current tree.
func (b *Builder) AndTree(n Node) *Builder {
	return &Builder{root: &Binary{Op: OpAnd, Left: b.root, Right: n}}
}

// Or appends c as the right operand of an OR with the current tree.
func (b *Builder) Or(c Condition) *Builder {
	return b.OrTree(NewLeaf(c))
}

// OrTree appends n as the right operand of an OR with the current tree.
func (b *Builder) OrTree(n Node) *Builder {
	return &Builder{root: &Binary{Op: OpOr, Left: b.root, Right: n}}
}

// Not negates the current tree.
func (b *Builder) Not() *Builder {
	return &Builder{root: &Not{Child: b.root}}
}

// Build returns the current root.
func (b *Builder) Build() Node {
	return b.root
}

// And joins two optional trees. A nil side yields the other side unchanged.
func And(left, right Node) Node {
	return join(OpAnd, left, right)
}

// Or joins two optional trees. A nil side yields the other side unchanged.
func Or(left, right Node) Node {
	return join(OpOr, left, right)
}

func join(op Op, left, right Node) Node {
	switch {
	case left == nil:
		return right
	case right == nil:
		return left
	}
	return &Binary{Op: op, Left: left, Right: right}
}

// Leaves returns every leaf of the tree in left-to-right order.
func Leaves(n Node) []*Leaf {
	var out []*Leaf
	walk(n, func(n Node) {
		if l, ok := n.(*Leaf); ok {
			out = append(out, l)
		}
	})
	return out
}

// Preorder returns every node of the tree, parents before children, left
// subtree before right.
func Preorder(n Node) []Node {
	var out []Node
	walk(n, func(n Node) { out = append(out, n) })
	return out
}

func walk(n Node, fn func(Node)) {
	if n == nil {
		return
	}
	fn(n)
	switch n := n.(type) {
	case *Binary:
		walk(n.Left, fn)
		walk(n.Right, fn)
	case *Not:
		walk(n.Child, fn)
	}
}

// Conditions returns the distinct conditions of the tree in first-seen order.
func Conditions(n Node) []Condition {
	seen := make(map[Condition]bool)
	var out []Condition
	for _, l := range Leaves(n) {
		if !seen[l.Condition] {
			seen[l.Condition] = true
			out = append(out, l.Condition)
		}
	}
	return out
}

// Folders returns the distinct FOLDER values referenced by the tree.
func Folders(n Node) []string {
	seen := make(map[string]bool)
	var out []string
	for _, c := range Conditions(n) {
		if c.Field == FieldFolder && !seen[c.Value] {
			seen[c.Value] = true
			out = append(out, c.Value)
		}
	}
	return out
}

// Rewrite returns a copy of the tree with every leaf replaced by the subtree
// fn returns for its condition. The input tree is left untouched. The first
// error aborts the walk.
func Rewrite(n Node, fn func(Condition) (Node, error)) (Node, error) {
	switch n := n.(type) {
	case nil:
		return nil, nil
	case *Leaf:
		return fn(n.Condition)
	case *Binary:
		left, err := Rewrite(n.Left, fn)
		if err != nil {
			return nil, err
		}
		right, err := Rewrite(n.Right, fn)
		if err != nil {
			return nil, err
		}
		return &Binary{Op: n.Op, Left: left, Right: right}, nil
	case *Not:
		child, err := Rewrite(n.Child, fn)
		if err != nil {
			return nil, err
		}
		return &Not{Child: child}, nil
	}
	return nil, &UnsupportedError{Reason: "unknown node type"}
}

// Format renders the tree as a parenthesized infix expression, for example
// (SUBJECT CONTAINS "a" AND NOT (FLAGGED EQUALS "1")). A nil tree renders
// as the empty string.
func Format(n Node) string {
	var sb strings.Builder
	format(&sb, n)
	return sb.String()
}

func format(sb *strings.Builder, n Node) {
	switch n := n.(type) {
	case *Leaf:
		sb.WriteString(n.Condition.String())
	case *Binary:
		sb.WriteByte('(')
		format(sb, n.Left)
		sb.WriteString(" " + n.Op.String() + " ")
		format(sb, n.Right)
		sb.WriteByte(')')
	case *Not:
		sb.WriteString("NOT (")
		format(sb, n.Child)
		sb.WriteByte(')')
	}
}
