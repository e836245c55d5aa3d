package scope

import (
	"testing"

	"github.com/llir/llvm/ir/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeclareAndLookupValue(t *testing.T) {
	tbl := NewTable()
	tbl.Push()
	defer tbl.Pop()

	slot := new(int)
	require.NoError(t, tbl.DeclareValue("x", slot, types.I32))

	got, elem, ok := tbl.LookupValue("x")
	require.True(t, ok)
	assert.Same(t, slot, got)
	assert.Equal(t, types.I32, elem)
}

func TestDeclareValueDuplicateInSameFrame(t *testing.T) {
	tbl := NewTable()
	tbl.Push()
	defer tbl.Pop()

	require.NoError(t, tbl.DeclareValue("x", new(int), types.I32))
	err := tbl.DeclareValue("x", new(int), types.I32)
	assert.ErrorIs(t, err, ErrDuplicate)
}

func TestValueShadowingAcrossFrames(t *testing.T) {
	tbl := NewTable()
	tbl.Push()
	outer := new(int)
	require.NoError(t, tbl.DeclareValue("x", outer, types.I32))

	tbl.Push()
	inner := new(int)
	require.NoError(t, tbl.DeclareValue("x", inner, types.I8))

	got, elem, ok := tbl.LookupValue("x")
	require.True(t, ok)
	assert.Same(t, inner, got)
	assert.Equal(t, types.I8, elem)

	tbl.Pop()
	got, elem, ok = tbl.LookupValue("x")
	require.True(t, ok)
	assert.Same(t, outer, got)
	assert.Equal(t, types.I32, elem)

	tbl.Pop()
}

func TestLookupValueMissingReturnsFalse(t *testing.T) {
	tbl := NewTable()
	tbl.Push()
	defer tbl.Pop()

	_, _, ok := tbl.LookupValue("nope")
	assert.False(t, ok)
}

func TestPopWithoutPushPanics(t *testing.T) {
	tbl := NewTable()
	assert.Panics(t, func() { tbl.Pop() })
}

func TestStructDeclareAndLookupAcrossFrames(t *testing.T) {
	tbl := NewTable()
	tbl.Push()
	info := &StructInfo{FieldNames: []string{"x", "y"}, FieldTypes: []types.Type{types.I32, types.I32}}
	require.NoError(t, tbl.DeclareStruct("Point", info))

	tbl.Push()
	got, ok := tbl.LookupStruct("Point")
	require.True(t, ok)
	assert.Same(t, info, got)
	tbl.Pop()
	tbl.Pop()
}

func TestPointerMetadataLookup(t *testing.T) {
	tbl := NewTable()
	tbl.Push()
	defer tbl.Pop()

	slot := new(int)
	require.NoError(t, tbl.DeclarePointer(slot, PointerInfo{Pointee: types.I32, Depth: 1}))
	info, ok := tbl.LookupPointer(slot)
	require.True(t, ok)
	assert.Equal(t, 1, info.Depth)
	assert.Equal(t, types.I32, info.Pointee)

	_, ok = tbl.LookupPointer(new(int))
	assert.False(t, ok)
}

func TestDeclareTypeIsNotFrameScoped(t *testing.T) {
	tbl := NewTable()
	require.NoError(t, tbl.DeclareType("int", types.I32))

	ty, ok := tbl.ResolveType("int")
	require.True(t, ok)
	assert.Equal(t, types.I32, ty)

	err := tbl.DeclareType("int", types.I32)
	assert.ErrorIs(t, err, ErrDuplicate)
}

func TestResolveTypePrefersFlatTableOverStructTag(t *testing.T) {
	tbl := NewTable()
	require.NoError(t, tbl.DeclareType("Point", types.I32))

	tbl.Push()
	defer tbl.Pop()
	aggregate := types.NewStruct(types.I32, types.I32)
	require.NoError(t, tbl.DeclareStruct("Point", &StructInfo{Aggregate: aggregate}))

	ty, ok := tbl.ResolveType("Point")
	require.True(t, ok)
	assert.Equal(t, types.I32, ty, "flat type table wins over a struct tag of the same name")
}

func TestResolveTypeFallsBackToStructTag(t *testing.T) {
	tbl := NewTable()
	tbl.Push()
	defer tbl.Pop()
	aggregate := types.NewStruct(types.I32, types.I32)
	require.NoError(t, tbl.DeclareStruct("Point", &StructInfo{Aggregate: aggregate}))

	ty, ok := tbl.ResolveType("Point")
	require.True(t, ok)
	assert.Equal(t, aggregate, ty)
}

func TestDepthTracksPushAndPop(t *testing.T) {
	tbl := NewTable()
	assert.Equal(t, 0, tbl.Depth())
	tbl.Push()
	assert.Equal(t, 1, tbl.Depth())
	tbl.Push()
	assert.Equal(t, 2, tbl.Depth())
	tbl.Pop()
	assert.Equal(t, 1, tbl.Depth())
	tbl.Pop()
	assert.Equal(t, 0, tbl.Depth())
}
