package parser

import (
	"testing"

	"github.com/codeassociates/minic/ast"
	"github.com/codeassociates/minic/lexer"
)

func mustParse(t *testing.T, src string) *ast.Block {
	t.Helper()
	toks, err := lexer.New(src).Tokenize()
	if err != nil {
		t.Fatalf("lex error: %v", err)
	}
	block, err := New(toks).ParseProgram()
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}
	return block
}

func TestParseSimpleReturn(t *testing.T) {
	block := mustParse(t, "int main() { return 0; }")
	if len(block.Children) != 1 {
		t.Fatalf("expected 1 top-level node, got %d", len(block.Children))
	}
	proto, ok := block.Children[0].(*ast.Prototype)
	if !ok {
		t.Fatalf("expected Prototype, got %T", block.Children[0])
	}
	if proto.Name != "main" || proto.Body == nil {
		t.Fatalf("unexpected prototype: %+v", proto)
	}
	ret, ok := proto.Body.Children[0].(*ast.Return)
	if !ok {
		t.Fatalf("expected Return, got %T", proto.Body.Children[0])
	}
	if _, ok := ret.Expr.(*ast.Integer); !ok {
		t.Fatalf("expected Integer in return, got %T", ret.Expr)
	}
}

func TestParseVarDeclAndAssignExpression(t *testing.T) {
	block := mustParse(t, "int main() { int x; x = 3 + 4; return x; }")
	proto := block.Children[0].(*ast.Prototype)
	decl, ok := proto.Body.Children[0].(*ast.Alloc)
	if !ok || decl.Name != "x" || decl.TypeName != "int" {
		t.Fatalf("expected Alloc(int x), got %+v", proto.Body.Children[0])
	}
	assign, ok := proto.Body.Children[1].(*ast.Assign)
	if !ok || assign.TargetIdent == nil || assign.TargetIdent.Name != "x" {
		t.Fatalf("expected Assign to x, got %+v", proto.Body.Children[1])
	}
	bin, ok := assign.Expr.(*ast.BinOp)
	if !ok {
		t.Fatalf("expected BinOp, got %T", assign.Expr)
	}
	if bin.LHS.(*ast.Integer).Value != 3 || bin.RHS.(*ast.Integer).Value != 4 {
		t.Fatalf("unexpected operands: %+v", bin)
	}
}

func TestParsePointerDeclAndDereference(t *testing.T) {
	block := mustParse(t, "int main() { int *p; int a[4]; p = &a; return *p; }")
	proto := block.Children[0].(*ast.Prototype)

	p, ok := proto.Body.Children[0].(*ast.Alloc)
	if !ok || p.PtrDepth != 1 || p.Name != "p" {
		t.Fatalf("expected Alloc(int *p), got %+v", proto.Body.Children[0])
	}

	arr, ok := proto.Body.Children[1].(*ast.Alloc)
	if !ok || arr.ArraySize == nil || arr.Name != "a" {
		t.Fatalf("expected Alloc(int a[4]), got %+v", proto.Body.Children[1])
	}

	assign := proto.Body.Children[2].(*ast.Assign)
	ref, ok := assign.Expr.(*ast.Ref)
	if !ok || ref.IsDeref {
		t.Fatalf("expected address-of Ref, got %+v", assign.Expr)
	}

	ret := proto.Body.Children[3].(*ast.Return)
	deref, ok := ret.Expr.(*ast.Ref)
	if !ok || !deref.IsDeref || deref.Depth != 1 {
		t.Fatalf("expected deref Ref with depth 1, got %+v", ret.Expr)
	}
}

func TestParseForLoopWithEmptyClauses(t *testing.T) {
	block := mustParse(t, "int main() { for (;;) { } return 0; }")
	proto := block.Children[0].(*ast.Prototype)
	forNode, ok := proto.Body.Children[0].(*ast.For)
	if !ok {
		t.Fatalf("expected For, got %T", proto.Body.Children[0])
	}
	if forNode.Init != nil || forNode.Cond != nil || forNode.Update != nil {
		t.Fatalf("expected all for-clauses absent, got %+v", forNode)
	}
}

func TestParseForLoopWithAllClauses(t *testing.T) {
	block := mustParse(t, "int main() { int i; for (i = 0; i < 3; i = i + 1) { } return i; }")
	proto := block.Children[0].(*ast.Prototype)
	forNode, ok := proto.Body.Children[1].(*ast.For)
	if !ok {
		t.Fatalf("expected For, got %T", proto.Body.Children[1])
	}
	if forNode.Init == nil || forNode.Cond == nil || forNode.Update == nil {
		t.Fatalf("expected all for-clauses present, got %+v", forNode)
	}
}

func TestParseIfElse(t *testing.T) {
	block := mustParse(t, "int main() { if (1) { return 1; } else { return 0; } }")
	proto := block.Children[0].(*ast.Prototype)
	ifNode, ok := proto.Body.Children[0].(*ast.If)
	if !ok {
		t.Fatalf("expected If, got %T", proto.Body.Children[0])
	}
	if ifNode.Else == nil {
		t.Fatalf("expected else branch")
	}
}

func TestParseTypedefAndUseAsType(t *testing.T) {
	block := mustParse(t, "typedef int Int32; Int32 f(Int32 x) { return x; }")
	typedef, ok := block.Children[0].(*ast.Typedef)
	if !ok || typedef.Alloc.Name != "Int32" {
		t.Fatalf("expected Typedef(Int32), got %+v", block.Children[0])
	}
	proto, ok := block.Children[1].(*ast.Prototype)
	if !ok || proto.ReturnAlloc.TypeName != "Int32" {
		t.Fatalf("expected Prototype returning Int32, got %+v", block.Children[1])
	}
	if len(proto.Params) != 1 || proto.Params[0].TypeName != "Int32" {
		t.Fatalf("expected one Int32 parameter, got %+v", proto.Params)
	}
}

func TestParseStructDefinitionAndVariable(t *testing.T) {
	block := mustParse(t, "struct P { int x; int y; }; int main() { struct P q; return 0; }")
	st, ok := block.Children[0].(*ast.Struct)
	if !ok || st.Name != "P" || len(st.Fields) != 2 {
		t.Fatalf("expected Struct(P) with 2 fields, got %+v", block.Children[0])
	}
	proto := block.Children[1].(*ast.Prototype)
	decl, ok := proto.Body.Children[0].(*ast.Alloc)
	if !ok || decl.TypeName != "P" || decl.Name != "q" {
		t.Fatalf("expected Alloc(P q), got %+v", proto.Body.Children[0])
	}
}

func TestParseVariadicPrototype(t *testing.T) {
	block := mustParse(t, "int printf(char *fmt, ...);")
	proto, ok := block.Children[0].(*ast.Prototype)
	if !ok || !proto.IsVarargs || proto.Body != nil {
		t.Fatalf("expected variadic forward declaration, got %+v", block.Children[0])
	}
	if len(proto.Params) != 1 || proto.Params[0].Name != "fmt" || proto.Params[0].PtrDepth != 1 {
		t.Fatalf("unexpected params: %+v", proto.Params)
	}
}

func TestParseCallExpression(t *testing.T) {
	block := mustParse(t, "int main() { return f(7, 8); }")
	proto := block.Children[0].(*ast.Prototype)
	ret := proto.Body.Children[0].(*ast.Return)
	call, ok := ret.Expr.(*ast.Call)
	if !ok || call.Callee != "f" || len(call.Args) != 2 {
		t.Fatalf("expected Call(f, 2 args), got %+v", ret.Expr)
	}
}

func TestUnexpectedTokenIsFatal(t *testing.T) {
	toks, err := lexer.New("int main( { return 0; }").Tokenize()
	if err != nil {
		t.Fatalf("lex error: %v", err)
	}
	_, err = New(toks).ParseProgram()
	if err == nil {
		t.Fatalf("expected a parse error")
	}
}

func TestEmptySourceYieldsEmptyBlock(t *testing.T) {
	block := mustParse(t, "")
	if len(block.Children) != 0 {
		t.Fatalf("expected no top-level nodes, got %d", len(block.Children))
	}
}
