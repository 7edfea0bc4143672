package search

import (
	"errors"
	"fmt"
	"sort"
)

// Row is one node of a tree flattened for storage. Trees are labelled with
// modified preorder tree traversal: a node's Left/Right markers enclose the
// markers of all its descendants, so the tree can be restored from an
// unordered set of rows.
type Row struct {
	Operator  string // "CONDITION", "AND", "OR" or "NOT"
	Field     Field
	Attribute Attribute
	Value     string
	Left      int
	Right     int
}

const (
	rowCondition = "CONDITION"
	rowNot       = "NOT"
)

// Flatten labels the tree and returns its nodes in preorder.
func Flatten(n Node) []Row {
	var rows []Row
	label(n, 1, &rows)
	return rows
}

func label(n Node, next int, rows *[]Row) int {
	idx := len(*rows)
	*rows = append(*rows, Row{Left: next})

	var children []Node
	switch n := n.(type) {
	case *Leaf:
		(*rows)[idx].Operator = rowCondition
		(*rows)[idx].Field = n.Condition.Field
		(*rows)[idx].Attribute = n.Condition.Attribute
		(*rows)[idx].Value = n.Condition.Value
	case *Binary:
		(*rows)[idx].Operator = n.Op.String()
		children = []Node{n.Left, n.Right}
	case *Not:
		(*rows)[idx].Operator = rowNot
		children = []Node{n.Child}
	}

	for _, child := range children {
		next = label(child, next+1, rows)
	}
	next++
	(*rows)[idx].Right = next
	return next
}

// ErrMalformedTree is returned by Rebuild for rows that do not describe
// exactly one well-formed tree.
var ErrMalformedTree = errors.New("malformed condition tree")

type pending struct {
	row      Row
	children []*pending
}

// Rebuild restores a tree from rows produced by Flatten, in any order.
func Rebuild(rows []Row) (Node, error) {
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: no rows", ErrMalformedTree)
	}
	sorted := make([]Row, len(rows))
	copy(sorted, rows)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Left < sorted[j].Left })

	var root *pending
	var stack []*pending
	for _, r := range sorted {
		if r.Right <= r.Left {
			return nil, fmt.Errorf("%w: bad markers [%d,%d]", ErrMalformedTree, r.Left, r.Right)
		}
		p := &pending{row: r}
		for len(stack) > 0 && stack[len(stack)-1].row.Right < r.Left {
			stack = stack[:len(stack)-1]
		}
		if len(stack) == 0 {
			if root != nil {
				return nil, fmt.Errorf("%w: more than one root", ErrMalformedTree)
			}
			root = p
		} else {
			parent := stack[len(stack)-1]
			if r.Right > parent.row.Right {
				return nil, fmt.Errorf("%w: overlapping markers at %d", ErrMalformedTree, r.Left)
			}
			parent.children = append(parent.children, p)
		}
		stack = append(stack, p)
	}
	return root.node()
}

func (p *pending) node() (Node, error) {
	want := map[string]int{rowCondition: 0, rowNot: 1, OpAnd.String(): 2, OpOr.String(): 2}
	n, ok := want[p.row.Operator]
	if !ok {
		return nil, fmt.Errorf("%w: unknown operator %q", ErrMalformedTree, p.row.Operator)
	}
	if len(p.children) != n {
		return nil, fmt.Errorf("%w: %s node with %d children", ErrMalformedTree, p.row.Operator, len(p.children))
	}

	kids := make([]Node, len(p.children))
	for i, c := range p.children {
		k, err := c.node()
		if err != nil {
			return nil, err
		}
		kids[i] = k
	}

	switch p.row.Operator {
	case rowCondition:
		return NewLeaf(Condition{Field: p.row.Field, Attribute: p.row.Attribute, Value: p.row.Value}), nil
	case rowNot:
		return &Not{Child: kids[0]}, nil
	case OpAnd.String():
		return &Binary{Op: OpAnd, Left: kids[0], Right: kids[1]}, nil
	default:
		return &Binary{Op: OpOr, Left: kids[0], Right: kids[1]}, nil
	}
}
