// Package codegen walks the AST produced by package parser and drives
// github.com/llir/llvm to build an LLVM module. A Generator owns one
// scope.Table for its lifetime: scope frames are pushed and popped within
// each Generate call, while the module, the flat type table (primitives
// and typedefs) and the string-constant counter persist across calls.
package codegen

import (
	"fmt"

	"github.com/codeassociates/minic/ast"
	"github.com/codeassociates/minic/scope"
	"github.com/codeassociates/minic/token"

	"github.com/llir/llvm/ir"
	"github.com/llir/llvm/ir/constant"
	"github.com/llir/llvm/ir/enum"
	"github.com/llir/llvm/ir/types"
	"github.com/llir/llvm/ir/value"
	"go.uber.org/zap"
)

// Error is a fatal semantic diagnostic: an unresolved name, an arity
// mismatch, a duplicate binding, or a structurally invalid reference.
type Error struct {
	Pos token.Pos
	Msg string
}

func (e *Error) Error() string {
	return fmt.Sprintf("error at %d:%d: %s", e.Pos.Row, e.Pos.Col, e.Msg)
}

// opaquePointer is the storage type for every pointer-typed slot regardless
// of declared depth or pointee; llir/llvm v0.3 predates LLVM's native
// opaque `ptr` type, so i8* stands in for it. Pointee type and indirection
// depth live in scope.PointerInfo instead, since the storage type itself
// forgets them.
var opaquePointer = types.I8Ptr

var baseTypes = map[string]types.Type{
	"void":   types.Void,
	"char":   types.I8,
	"short":  types.I16,
	"int":    types.I32,
	"long":   types.I64,
	"float":  types.Float,
	"double": types.Double,
}

// Option configures a Generator.
type Option func(*Generator)

// WithLogger sets the zap logger used for non-fatal informational traces
// (global string materialization, stack allocation) gated behind --verbose.
// Fatal diagnostics never go through it; they stay on the plain
// error-at-ROW:COL path regardless of logger configuration.
func WithLogger(log *zap.Logger) Option {
	return func(g *Generator) {
		if log != nil {
			g.log = log
		}
	}
}

// Generator drives one compilation. It owns the module until Generate
// returns it to the caller.
type Generator struct {
	mod   *ir.Module
	scope *scope.Table
	log   *zap.Logger

	fn  *ir.Func
	cur *ir.Block

	strCount int
}

// New returns a Generator with the primitive type names already seeded.
func New(opts ...Option) *Generator {
	g := &Generator{
		mod:   ir.NewModule(),
		scope: scope.NewTable(),
		log:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(g)
	}
	for name, ty := range baseTypes {
		if err := g.scope.DeclareType(name, ty); err != nil {
			panic("codegen: duplicate base type " + name)
		}
	}
	return g
}

func (g *Generator) errAt(pos token.Pos, msg string) error {
	return &Error{Pos: pos, Msg: msg}
}

func (g *Generator) errf(pos token.Pos, format string, args ...any) error {
	return g.errAt(pos, fmt.Sprintf(format, args...))
}

// Generate pushes the global scope, emits root's children in order, pops
// the scope, and returns the finished module.
func (g *Generator) Generate(root *ast.Block) (*ir.Module, error) {
	g.scope.Push()
	defer g.scope.Pop()

	for _, stmt := range root.Children {
		if _, err := g.emit(stmt); err != nil {
			return nil, err
		}
	}
	return g.mod, nil
}

// emit is the single dispatch point for every node kind, expression or
// statement alike; there is no separate Emit method per node type.
func (g *Generator) emit(node ast.Node) (value.Value, error) {
	switch n := node.(type) {
	case *ast.Identifier:
		return g.emitIdentifier(n)
	case *ast.Integer:
		return constant.NewInt(types.NewInt(uint64(n.BitWidth)), n.Value), nil
	case *ast.Float:
		return constant.NewFloat(types.Double, n.Value), nil
	case *ast.String:
		return g.emitString(n), nil
	case *ast.BinOp:
		return g.emitBinOp(n)
	case *ast.UnOp:
		return g.emitUnOp(n)
	case *ast.Ref:
		return g.emitRef(n)
	case *ast.Alloc:
		return g.emitAlloc(n)
	case *ast.Assign:
		return g.emitAssign(n)
	case *ast.Block:
		return nil, g.emitBlock(n)
	case *ast.If:
		return g.emitIf(n)
	case *ast.For:
		return g.emitFor(n)
	case *ast.Call:
		return g.emitCall(n)
	case *ast.Prototype:
		return g.emitPrototype(n)
	case *ast.Return:
		return g.emitReturn(n)
	case *ast.Struct:
		return nil, g.emitStruct(n)
	case *ast.Typedef:
		return nil, g.emitTypedef(n)
	default:
		return nil, g.errf(node.Position(), "unsupported node %T", node)
	}
}

// toI32 widens a 1-bit comparison/logical result to i32 for use in any
// context other than a branch condition, per the convention that
// comparisons stay 1-bit only when consumed directly as a condition.
func toI32(b *ir.Block, v value.Value) value.Value {
	if v.Type().Equal(types.I1) {
		return b.NewZExt(v, types.I32)
	}
	return v
}

// toCond narrows an arbitrary-width integer to i1 for use as a branch
// condition, leaving an already-1-bit value untouched.
func toCond(b *ir.Block, v value.Value) value.Value {
	if v.Type().Equal(types.I1) {
		return v
	}
	intTy, ok := v.Type().(*types.IntType)
	if !ok {
		return v
	}
	return b.NewICmp(enum.IPredNE, v, constant.NewInt(intTy, 0))
}

func comparisonPredicate(op token.Kind) (enum.IPred, bool) {
	switch op {
	case token.GT:
		return enum.IPredSGT, true
	case token.GE:
		return enum.IPredSGE, true
	case token.LT:
		return enum.IPredSLT, true
	case token.LE:
		return enum.IPredSLE, true
	case token.EQ:
		return enum.IPredEQ, true
	case token.BANGEQ:
		return enum.IPredNE, true
	}
	return 0, false
}

func (g *Generator) emitIdentifier(n *ast.Identifier) (value.Value, error) {
	rawSlot, elemType, ok := g.scope.LookupValue(n.Name)
	if !ok {
		return nil, g.errf(n.Pos, "unknown variable name %q", n.Name)
	}
	alloca := rawSlot.(*ir.InstAlloca)

	if alloca.NElems != nil {
		if n.Index == nil {
			return g.cur.NewGetElementPtr(elemType, alloca, constant.NewInt(types.I32, 0)), nil
		}
		idx, err := g.emit(n.Index)
		if err != nil {
			return nil, err
		}
		addr := g.cur.NewGetElementPtr(elemType, alloca, toI32(g.cur, idx))
		return g.cur.NewLoad(elemType, addr), nil
	}

	if n.Index != nil {
		info, ok := g.scope.LookupPointer(alloca)
		if !ok {
			return nil, g.errAt(n.Pos, "indexed target is neither array nor pointer")
		}
		gepType := info.Pointee
		if info.Depth > 1 {
			gepType = opaquePointer
		}
		base := g.cur.NewLoad(elemType, alloca)
		idx, err := g.emit(n.Index)
		if err != nil {
			return nil, err
		}
		addr := g.cur.NewGetElementPtr(gepType, base, toI32(g.cur, idx))
		return g.cur.NewLoad(gepType, addr), nil
	}

	return g.cur.NewLoad(elemType, alloca), nil
}

func (g *Generator) emitString(n *ast.String) value.Value {
	g.strCount++
	name := fmt.Sprintf(".str.%d", g.strCount)
	data := constant.NewCharArrayFromString(n.Text + "\x00")
	global := g.mod.NewGlobalDef(name, data)
	global.Immutable = true
	g.log.Debug("materialized global string constant", zap.String("name", "@"+name))
	zero := constant.NewInt(types.I32, 0)
	return constant.NewGetElementPtr(data.Typ, global, zero, zero)
}

func (g *Generator) emitBinOp(n *ast.BinOp) (value.Value, error) {
	lhs, err := g.emit(n.LHS)
	if err != nil {
		return nil, err
	}
	rhs, err := g.emit(n.RHS)
	if err != nil {
		return nil, err
	}

	switch n.Op {
	case token.OROR, token.ANDAND:
		l, r := toCond(g.cur, lhs), toCond(g.cur, rhs)
		if n.Op == token.OROR {
			return g.cur.NewOr(l, r), nil
		}
		return g.cur.NewAnd(l, r), nil
	case token.GT, token.GE, token.LT, token.LE, token.EQ, token.BANGEQ:
		pred, _ := comparisonPredicate(n.Op)
		l, r := toI32(g.cur, lhs), toI32(g.cur, rhs)
		return g.cur.NewICmp(pred, l, r), nil
	}

	l, r := toI32(g.cur, lhs), toI32(g.cur, rhs)
	switch n.Op {
	case token.PLUS:
		return g.cur.NewAdd(l, r), nil
	case token.MINUS:
		return g.cur.NewSub(l, r), nil
	case token.STAR:
		return g.cur.NewMul(l, r), nil
	case token.SLASH:
		return g.cur.NewSDiv(l, r), nil
	case token.PERCENT:
		return g.cur.NewSRem(l, r), nil
	case token.PIPE:
		return g.cur.NewOr(l, r), nil
	case token.AMP:
		return g.cur.NewAnd(l, r), nil
	}
	return nil, g.errf(n.Pos, "unsupported binary operator %s", n.Op)
}

func (g *Generator) emitUnOp(n *ast.UnOp) (value.Value, error) {
	v, err := g.emit(n.Expr)
	if err != nil {
		return nil, err
	}
	v = toI32(g.cur, v)

	switch n.Op {
	case token.MINUS:
		return g.cur.NewSub(constant.NewInt(types.I32, 0), v), nil
	case token.BANG:
		cmp := g.cur.NewICmp(enum.IPredEQ, v, constant.NewInt(types.I32, 0))
		return g.cur.NewZExt(cmp, types.I32), nil
	}
	return nil, g.errf(n.Pos, "unsupported unary operator %s", n.Op)
}

func (g *Generator) emitRef(n *ast.Ref) (value.Value, error) {
	ident, ok := n.Expr.(*ast.Identifier)
	if !ok {
		return nil, g.errAt(n.Pos, "reference target must be an identifier")
	}

	if !n.IsDeref {
		rawSlot, _, ok := g.scope.LookupValue(ident.Name)
		if !ok {
			return nil, g.errf(ident.Pos, "unknown variable name %q", ident.Name)
		}
		return rawSlot.(value.Value), nil
	}

	rawSlot, _, ok := g.scope.LookupValue(ident.Name)
	if !ok {
		return nil, g.errf(ident.Pos, "unknown variable name %q", ident.Name)
	}
	info, ok := g.scope.LookupPointer(rawSlot)
	if !ok {
		return nil, g.errf(n.Pos, "dereference target has no recorded pointer metadata")
	}

	loadVal, err := g.emit(ident)
	if err != nil {
		return nil, err
	}

	loadType := info.Pointee
	if info.Depth > 1 {
		loadType = opaquePointer
	}
	for i := 0; i < n.Depth; i++ {
		loadVal = g.cur.NewLoad(loadType, loadVal)
	}
	return loadVal, nil
}

func (g *Generator) emitAlloc(n *ast.Alloc) (value.Value, error) {
	varType, ok := g.scope.ResolveType(n.TypeName)
	if !ok {
		return nil, g.errf(n.Pos, "unknown type %q", n.TypeName)
	}

	allocType := varType
	if n.PtrDepth > 0 {
		allocType = opaquePointer
	}

	alloca := g.cur.NewAlloca(allocType)
	alloca.LocalName = n.Name
	g.log.Debug("materialized stack allocation", zap.String("name", "%"+n.Name), zap.String("type", allocType.String()))

	if n.ArraySize != nil {
		sizeVal, err := g.emit(n.ArraySize)
		if err != nil {
			return nil, err
		}
		alloca.NElems = sizeVal
	}

	if n.PtrDepth > 0 {
		if err := g.scope.DeclarePointer(alloca, scope.PointerInfo{Pointee: varType, Depth: n.PtrDepth}); err != nil {
			return nil, g.errf(n.Pos, "pointer metadata for %q already exists", n.Name)
		}
	}

	if err := g.scope.DeclareValue(n.Name, alloca, allocType); err != nil {
		return nil, g.errf(n.Pos, "duplicate symbol %q in current scope", n.Name)
	}
	return alloca, nil
}

func (g *Generator) emitAssign(n *ast.Assign) (value.Value, error) {
	var name string
	if n.TargetAlloc != nil {
		if _, err := g.emitAlloc(n.TargetAlloc); err != nil {
			return nil, err
		}
		name = n.TargetAlloc.Name
	} else {
		name = n.TargetIdent.Name
	}

	rawSlot, elemType, ok := g.scope.LookupValue(name)
	if !ok {
		return nil, g.errf(n.Pos, "unknown variable name %q", name)
	}
	alloca := rawSlot.(*ir.InstAlloca)

	exprVal, err := g.emit(n.Expr)
	if err != nil {
		return nil, err
	}
	exprVal = toI32(g.cur, exprVal)

	if n.TargetIdent != nil && n.TargetIdent.Index != nil {
		idx, err := g.emit(n.TargetIdent.Index)
		if err != nil {
			return nil, err
		}
		idx = toI32(g.cur, idx)

		var addr value.Value
		if alloca.NElems != nil {
			addr = g.cur.NewGetElementPtr(elemType, alloca, idx)
		} else {
			info, ok := g.scope.LookupPointer(alloca)
			if !ok {
				return nil, g.errAt(n.Pos, "indexed target is neither array nor pointer")
			}
			gepType := info.Pointee
			if info.Depth > 1 {
				gepType = opaquePointer
			}
			base := g.cur.NewLoad(elemType, alloca)
			addr = g.cur.NewGetElementPtr(gepType, base, idx)
		}
		g.cur.NewStore(exprVal, addr)
		return exprVal, nil
	}

	g.cur.NewStore(exprVal, alloca)
	return exprVal, nil
}

func (g *Generator) emitBlock(n *ast.Block) error {
	g.scope.Push()
	defer g.scope.Pop()

	for _, child := range n.Children {
		if _, err := g.emit(child); err != nil {
			return err
		}
	}
	return nil
}

func (g *Generator) emitIf(n *ast.If) (value.Value, error) {
	condVal, err := g.emit(n.Cond)
	if err != nil {
		return nil, err
	}
	cond := toCond(g.cur, condVal)

	thenBlk := g.fn.NewBlock("then")
	elseBlk := ir.NewBlock("else")
	mergeBlk := ir.NewBlock("finally")

	g.cur.NewCondBr(cond, thenBlk, elseBlk)

	g.cur = thenBlk
	if _, err := g.emit(n.Then); err != nil {
		return nil, err
	}
	if g.cur.Term == nil {
		g.cur.NewBr(mergeBlk)
	}

	g.fn.Blocks = append(g.fn.Blocks, elseBlk)
	g.cur = elseBlk
	if n.Else != nil {
		if _, err := g.emit(n.Else); err != nil {
			return nil, err
		}
	}
	if g.cur.Term == nil {
		g.cur.NewBr(mergeBlk)
	}

	g.fn.Blocks = append(g.fn.Blocks, mergeBlk)
	g.cur = mergeBlk
	return nil, nil
}

func (g *Generator) emitFor(n *ast.For) (value.Value, error) {
	g.scope.Push()
	defer g.scope.Pop()

	if n.Init != nil {
		if _, err := g.emit(n.Init); err != nil {
			return nil, err
		}
	}

	condBlk := g.fn.NewBlock("condition")
	entryBlk := ir.NewBlock("entry")
	finallyBlk := ir.NewBlock("finally")

	g.cur.NewBr(condBlk)
	g.cur = condBlk

	var condVal value.Value
	if n.Cond != nil {
		v, err := g.emit(n.Cond)
		if err != nil {
			return nil, err
		}
		condVal = v
	} else {
		condVal = constant.NewInt(types.I1, 1)
	}
	g.cur.NewCondBr(toCond(g.cur, condVal), entryBlk, finallyBlk)

	g.fn.Blocks = append(g.fn.Blocks, entryBlk)
	g.cur = entryBlk
	if _, err := g.emit(n.Body); err != nil {
		return nil, err
	}
	if n.Update != nil {
		if _, err := g.emit(n.Update); err != nil {
			return nil, err
		}
	}
	if g.cur.Term == nil {
		g.cur.NewBr(condBlk)
	}

	g.fn.Blocks = append(g.fn.Blocks, finallyBlk)
	g.cur = finallyBlk
	return nil, nil
}

func (g *Generator) lookupFunc(name string) (*ir.Func, bool) {
	for _, f := range g.mod.Funcs {
		if f.Name() == name {
			return f, true
		}
	}
	return nil, false
}

func (g *Generator) emitCall(n *ast.Call) (value.Value, error) {
	fn, ok := g.lookupFunc(n.Callee)
	if !ok {
		return nil, g.errf(n.Pos, "unknown function referenced: %q", n.Callee)
	}
	if !fn.Sig.Variadic && len(n.Args) != len(fn.Params) {
		return nil, g.errAt(n.Pos, "incorrect number of arguments passed")
	}

	args := make([]value.Value, len(n.Args))
	for i, a := range n.Args {
		v, err := g.emit(a)
		if err != nil {
			return nil, err
		}
		args[i] = toI32(g.cur, v)
	}
	return g.cur.NewCall(fn, args...), nil
}

func (g *Generator) resolveDeclType(typeName string, ptrDepth int, pos token.Pos) (types.Type, error) {
	if ptrDepth > 0 {
		return opaquePointer, nil
	}
	ty, ok := g.scope.ResolveType(typeName)
	if !ok {
		return nil, g.errf(pos, "unknown type %q", typeName)
	}
	return ty, nil
}

func (g *Generator) emitPrototype(n *ast.Prototype) (value.Value, error) {
	g.scope.Push()
	defer g.scope.Pop()

	paramTypes := make([]types.Type, len(n.Params))
	for i, p := range n.Params {
		pt, err := g.resolveDeclType(p.TypeName, p.PtrDepth, p.Pos)
		if err != nil {
			return nil, err
		}
		paramTypes[i] = pt
	}

	retType, err := g.resolveDeclType(n.ReturnAlloc.TypeName, n.ReturnAlloc.PtrDepth, n.ReturnAlloc.Pos)
	if err != nil {
		return nil, err
	}

	fn, existing := g.lookupFunc(n.Name)
	if !existing {
		params := make([]*ir.Param, len(paramTypes))
		for i, pt := range paramTypes {
			params[i] = ir.NewParam("", pt)
		}
		fn = g.mod.NewFunc(n.Name, retType, params...)
		fn.Sig.Variadic = n.IsVarargs
	}

	if n.Body == nil {
		return fn, nil
	}

	prevFn, prevCur := g.fn, g.cur
	g.fn = fn
	g.cur = fn.NewBlock("entry")

	for i, irParam := range fn.Params {
		p := n.Params[i]
		irParam.LocalName = p.Name
		slotVal, err := g.emit(p)
		if err != nil {
			return nil, err
		}
		g.cur.NewStore(irParam, slotVal)
	}

	if _, err := g.emit(n.Body); err != nil {
		return nil, err
	}

	if retType.Equal(types.Void) && g.cur.Term == nil {
		g.cur.NewRet(nil)
	}

	g.fn, g.cur = prevFn, prevCur
	return fn, nil
}

func (g *Generator) emitReturn(n *ast.Return) (value.Value, error) {
	if n.Expr == nil {
		g.cur.NewRet(nil)
		return nil, nil
	}
	v, err := g.emit(n.Expr)
	if err != nil {
		return nil, err
	}
	g.cur.NewRet(toI32(g.cur, v))
	return nil, nil
}

func (g *Generator) emitStruct(n *ast.Struct) error {
	fieldTypes := make([]types.Type, len(n.Fields))
	fieldNames := make([]string, len(n.Fields))
	for i, f := range n.Fields {
		ft, err := g.resolveDeclType(f.TypeName, f.PtrDepth, f.Pos)
		if err != nil {
			return err
		}
		fieldTypes[i] = ft
		fieldNames[i] = f.Name
	}

	st := types.NewStruct(fieldTypes...)
	named := g.mod.NewTypeDef(n.Name, st)

	info := &scope.StructInfo{FieldNames: fieldNames, FieldTypes: fieldTypes, Aggregate: named}
	if err := g.scope.DeclareStruct(n.Name, info); err != nil {
		return g.errf(n.Pos, "struct name %q already exists", n.Name)
	}
	return nil
}

func (g *Generator) emitTypedef(n *ast.Typedef) error {
	aliased, ok := g.scope.ResolveType(n.Alloc.TypeName)
	if !ok {
		return g.errf(n.Alloc.Pos, "unknown type %q", n.Alloc.TypeName)
	}
	if err := g.scope.DeclareType(n.Alloc.Name, aliased); err != nil {
		return g.errf(n.Pos, "type %q already exists", n.Alloc.Name)
	}
	return nil
}
