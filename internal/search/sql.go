package search

import (
	"fmt"
	"strings"
)

// fullTextClause is the fragment emitted for MESSAGE_CONTENTS conditions.
// The match expression is passed through untouched so the FTS engine
// applies its own tokenization and wildcard rules.
const fullTextClause = "messages.id IN (SELECT docid FROM messages_fulltext WHERE fulltext MATCH ?)"

// Query is a compiled WHERE expression with its positional arguments.
type Query struct {
	SQL  string
	Args []interface{}
}

// UnsupportedError reports a tree the compiler refuses to translate.
type UnsupportedError struct {
	Field     Field
	Attribute Attribute
	Reason    string
}

func (e *UnsupportedError) Error() string {
	if e.Field != 0 || e.Attribute != 0 {
		return fmt.Sprintf("unsupported search condition %s %s: %s", e.Field, e.Attribute, e.Reason)
	}
	return "unsupported search tree: " + e.Reason
}

// Compile translates a condition tree into a parenthesized SQL boolean
// expression. Placeholders appear in the same left-to-right, depth-first order
// as the returned arguments. Compiling the same tree always yields the same
// output.
func Compile(n Node) (Query, error) {
	var c compiler
	if err := c.node(n); err != nil {
		return Query{}, err
	}
	return Query{SQL: c.sql.String(), Args: c.args}, nil
}

// MustCompile is like Compile but panics on error. It is intended for trees
// assembled from constants.
func MustCompile(n Node) Query {
	q, err := Compile(n)
	if err != nil {
		panic(err)
	}
	return q
}

type compiler struct {
	sql  strings.Builder
	args []interface{}
}

func (c *compiler) node(n Node) error {
	switch n := n.(type) {
	case nil:
		return &UnsupportedError{Reason: "empty tree"}
	case *Leaf:
		return c.condition(n.Condition)
	case *Binary:
		if n.Op != OpAnd && n.Op != OpOr {
			return &UnsupportedError{Reason: fmt.Sprintf("unknown operator %d", int(n.Op))}
		}
		c.sql.WriteByte('(')
		if err := c.node(n.Left); err != nil {
			return err
		}
		c.sql.WriteString(") ")
		c.sql.WriteString(n.Op.String())
		c.sql.WriteString(" (")
		if err := c.node(n.Right); err != nil {
			return err
		}
		c.sql.WriteByte(')')
		return nil
	case *Not:
		c.sql.WriteString("NOT (")
		if err := c.node(n.Child); err != nil {
			return err
		}
		c.sql.WriteByte(')')
		return nil
	}
	return &UnsupportedError{Reason: fmt.Sprintf("unknown node type %T", n)}
}

func (c *compiler) condition(cond Condition) error {
	if !cond.Field.Valid() {
		return &UnsupportedError{Field: cond.Field, Attribute: cond.Attribute, Reason: "unknown field"}
	}
	if !cond.Attribute.Valid() {
		return &UnsupportedError{Field: cond.Field, Attribute: cond.Attribute, Reason: "unknown attribute"}
	}
	if !cond.Field.Supports(cond.Attribute) {
		return &UnsupportedError{Field: cond.Field, Attribute: cond.Attribute, Reason: "attribute not valid for field"}
	}

	if cond.Field == FieldMessageContents {
		c.sql.WriteString(fullTextClause)
		c.args = append(c.args, cond.Value)
		return nil
	}

	c.sql.WriteString(cond.Field.Column())
	switch cond.Attribute {
	case Contains:
		c.sql.WriteString(" LIKE ?")
		c.args = append(c.args, "%"+cond.Value+"%")
	case Equals:
		c.sql.WriteString(" = ?")
		c.args = append(c.args, cond.Value)
	case NotEquals:
		c.sql.WriteString(" != ?")
		c.args = append(c.args, cond.Value)
	}
	return nil
}
