// Package ast defines the tagged variant tree produced by the parser. Every
// node carries a source Pos; node kinds are a closed set matched by the
// codegen package's exhaustive type switch rather than by virtual dispatch,
// so an unhandled kind shows up as a missing switch arm instead of silently
// returning a null value.
package ast

import (
	"fmt"
	"strings"

	"github.com/codeassociates/minic/token"
)

// Node is the common interface of every AST node.
type Node interface {
	Position() token.Pos
	// Dump renders an indented, human-readable tree for debugging. It is
	// an auxiliary capability, not exercised by code generation.
	Dump(depth int) string
}

func indent(depth int) string { return strings.Repeat("  ", depth) }

// Identifier is a variable use, optionally indexed.
type Identifier struct {
	Pos   token.Pos
	Name  string
	Index Node // nil when not indexed
}

func (n *Identifier) Position() token.Pos { return n.Pos }
func (n *Identifier) Dump(d int) string {
	if n.Index != nil {
		return fmt.Sprintf("%sIdentifier(%s)[\n%s\n%s]", indent(d), n.Name, n.Index.Dump(d+1), indent(d))
	}
	return fmt.Sprintf("%sIdentifier(%s)", indent(d), n.Name)
}

// Integer is an integer literal of bit width 8 or 32.
type Integer struct {
	Pos      token.Pos
	Value    int64
	BitWidth int
}

func (n *Integer) Position() token.Pos { return n.Pos }
func (n *Integer) Dump(d int) string {
	return fmt.Sprintf("%sInteger(%d, i%d)", indent(d), n.Value, n.BitWidth)
}

// Float is a floating point literal.
type Float struct {
	Pos   token.Pos
	Value float64
}

func (n *Float) Position() token.Pos { return n.Pos }
func (n *Float) Dump(d int) string   { return fmt.Sprintf("%sFloat(%g)", indent(d), n.Value) }

// String is a string literal, materialized as a null-terminated global byte
// array at code generation time.
type String struct {
	Pos  token.Pos
	Text string
}

func (n *String) Position() token.Pos { return n.Pos }
func (n *String) Dump(d int) string   { return fmt.Sprintf("%sString(%q)", indent(d), n.Text) }

// BinOp is a binary arithmetic, logical, or comparison expression.
type BinOp struct {
	Pos      token.Pos
	Op       token.Kind
	LHS, RHS Node
}

func (n *BinOp) Position() token.Pos { return n.Pos }
func (n *BinOp) Dump(d int) string {
	return fmt.Sprintf("%sBinOp(%s)[\n%s\n%s\n%s]", indent(d), n.Op, n.LHS.Dump(d+1), n.RHS.Dump(d+1), indent(d))
}

// UnOp is unary negation or logical not.
type UnOp struct {
	Pos  token.Pos
	Op   token.Kind
	Expr Node
}

func (n *UnOp) Position() token.Pos { return n.Pos }
func (n *UnOp) Dump(d int) string {
	return fmt.Sprintf("%sUnOp(%s)[\n%s\n%s]", indent(d), n.Op, n.Expr.Dump(d+1), indent(d))
}

// Ref is address-of (IsDeref=false, Depth=0) or a run of Depth
// dereferences (IsDeref=true, Depth>=1).
type Ref struct {
	Pos     token.Pos
	Expr    Node
	IsDeref bool
	Depth   int
}

func (n *Ref) Position() token.Pos { return n.Pos }
func (n *Ref) Dump(d int) string {
	tag := "&"
	if n.IsDeref {
		tag = fmt.Sprintf("deref(%d)", n.Depth)
	}
	return fmt.Sprintf("%sRef(%s)[\n%s\n%s]", indent(d), tag, n.Expr.Dump(d+1), indent(d))
}

// Alloc is a variable declaration: a type name, zero or more levels of
// pointer indirection, and an optional array extent.
type Alloc struct {
	Pos         token.Pos
	TypeName    string
	Name        string
	PtrDepth    int
	ArraySize   Node // nil when not an array
}

func (n *Alloc) Position() token.Pos { return n.Pos }
func (n *Alloc) Dump(d int) string {
	stars := strings.Repeat("*", n.PtrDepth)
	if n.ArraySize != nil {
		return fmt.Sprintf("%sAlloc(%s %s%s)[\n%s\n%s]", indent(d), n.TypeName, stars, n.Name, n.ArraySize.Dump(d+1), indent(d))
	}
	return fmt.Sprintf("%sAlloc(%s %s%s)", indent(d), n.TypeName, stars, n.Name)
}

// Assign is an assignment; exactly one of TargetIdent/TargetAlloc is set.
type Assign struct {
	Pos         token.Pos
	TargetIdent *Identifier
	TargetAlloc *Alloc
	Expr        Node
}

func (n *Assign) Position() token.Pos { return n.Pos }
func (n *Assign) Dump(d int) string {
	var target Node
	if n.TargetIdent != nil {
		target = n.TargetIdent
	} else {
		target = n.TargetAlloc
	}
	return fmt.Sprintf("%sAssign[\n%s\n%s\n%s]", indent(d), target.Dump(d+1), n.Expr.Dump(d+1), indent(d))
}

// Block is an ordered sequence of statements; it introduces a scope.
type Block struct {
	Pos      token.Pos
	Children []Node
}

func (n *Block) Position() token.Pos { return n.Pos }
func (n *Block) Dump(d int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%sBlock[\n", indent(d))
	for i, c := range n.Children {
		b.WriteString(c.Dump(d + 1))
		if i < len(n.Children)-1 {
			b.WriteString("\n")
		}
	}
	fmt.Fprintf(&b, "\n%s]", indent(d))
	return b.String()
}

// If is a conditional with an optional else branch.
type If struct {
	Pos  token.Pos
	Cond Node
	Then Node
	Else Node // nil when absent
}

func (n *If) Position() token.Pos { return n.Pos }
func (n *If) Dump(d int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%sIf[\n%s\n%s", indent(d), n.Cond.Dump(d+1), n.Then.Dump(d+1))
	if n.Else != nil {
		fmt.Fprintf(&b, "\n%s", n.Else.Dump(d+1))
	}
	fmt.Fprintf(&b, "\n%s]", indent(d))
	return b.String()
}

// For is the classic three-part loop; Init/Cond/Update may each be nil.
type For struct {
	Pos    token.Pos
	Init   Node
	Cond   Node
	Update Node
	Body   Node
}

func (n *For) Position() token.Pos { return n.Pos }
func (n *For) Dump(d int) string {
	dump := func(x Node) string {
		if x == nil {
			return indent(d+1) + "<none>"
		}
		return x.Dump(d + 1)
	}
	return fmt.Sprintf("%sFor[\n%s\n%s\n%s\n%s\n%s]", indent(d), dump(n.Init), dump(n.Cond), dump(n.Update), n.Body.Dump(d+1), indent(d))
}

// Call is a function call by name.
type Call struct {
	Pos    token.Pos
	Callee string
	Args   []Node
}

func (n *Call) Position() token.Pos { return n.Pos }
func (n *Call) Dump(d int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%sCall(%s)[\n", indent(d), n.Callee)
	for i, a := range n.Args {
		b.WriteString(a.Dump(d + 1))
		if i < len(n.Args)-1 {
			b.WriteString("\n")
		}
	}
	fmt.Fprintf(&b, "\n%s]", indent(d))
	return b.String()
}

// Prototype is a function forward declaration (Body == nil) or definition.
type Prototype struct {
	Pos         token.Pos
	ReturnAlloc *Alloc
	Name        string
	Params      []*Alloc
	IsVarargs   bool
	Body        *Block // nil for a forward declaration
}

func (n *Prototype) Position() token.Pos { return n.Pos }
func (n *Prototype) Dump(d int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%sPrototype(%s)[\n", indent(d), n.Name)
	for _, p := range n.Params {
		b.WriteString(p.Dump(d + 1))
		b.WriteString("\n")
	}
	if n.Body != nil {
		b.WriteString(n.Body.Dump(d + 1))
	}
	fmt.Fprintf(&b, "\n%s]", indent(d))
	return b.String()
}

// Return optionally carries a value expression.
type Return struct {
	Pos  token.Pos
	Expr Node // nil for bare `return;`
}

func (n *Return) Position() token.Pos { return n.Pos }
func (n *Return) Dump(d int) string {
	if n.Expr == nil {
		return fmt.Sprintf("%sReturn", indent(d))
	}
	return fmt.Sprintf("%sReturn[\n%s\n%s]", indent(d), n.Expr.Dump(d+1), indent(d))
}

// Struct declares a named aggregate type with an ordered field list.
type Struct struct {
	Pos    token.Pos
	Name   string
	Fields []*Alloc
}

func (n *Struct) Position() token.Pos { return n.Pos }
func (n *Struct) Dump(d int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%sStruct(%s)[\n", indent(d), n.Name)
	for i, f := range n.Fields {
		b.WriteString(f.Dump(d + 1))
		if i < len(n.Fields)-1 {
			b.WriteString("\n")
		}
	}
	fmt.Fprintf(&b, "\n%s]", indent(d))
	return b.String()
}

// Typedef installs Alloc.Name as an alias for the type named by Alloc.
type Typedef struct {
	Pos   token.Pos
	Alloc *Alloc
}

func (n *Typedef) Position() token.Pos { return n.Pos }
func (n *Typedef) Dump(d int) string {
	return fmt.Sprintf("%sTypedef[\n%s\n%s]", indent(d), n.Alloc.Dump(d+1), indent(d))
}
