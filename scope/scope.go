// Package scope implements the lexically nested symbol table the code
// generator walks while emitting IR: a LIFO stack of frames holding
// declared values, struct tags, and pointer metadata, plus a flat,
// instance-owned type table for primitives and typedefs.
//
// A Table belongs to exactly one generator for its lifetime. Keeping the
// type table on the Table instance, rather than as a package-level map,
// is a deliberate departure from the "shared global state" shape a naive
// port would produce: it lets a process run more than one compilation
// without one leaking types into the next.
package scope

import (
	"errors"

	"github.com/llir/llvm/ir/types"
)

// ErrDuplicate is returned when a declaration collides with an existing
// binding in the same frame (or, for types, in the flat type table).
var ErrDuplicate = errors.New("duplicate binding in current scope")

// Slot is a stable handle for a declared local. The code generator passes
// the backing stack-allocation instruction it got back from the IR
// builder; Table never reconstructs or compares addresses itself, only
// the handle's own identity, so it stays correct regardless of how the
// builder represents instructions internally.
type Slot any

// StructInfo describes a struct tag registered in some frame.
type StructInfo struct {
	FieldNames []string
	FieldTypes []types.Type
	Aggregate  types.Type
}

// PointerInfo is the declared pointee type and indirection depth of a slot
// whose storage type is an opaque pointer. The opaque pointer itself
// forgets this information, which is why it is tracked here instead.
type PointerInfo struct {
	Pointee types.Type
	Depth   int
}

type valueBinding struct {
	Slot Slot
	Elem types.Type
}

// frame is a single lexical region's bindings.
type frame struct {
	values   map[string]valueBinding
	structs  map[string]*StructInfo
	pointers map[Slot]PointerInfo
}

func newFrame() *frame {
	return &frame{
		values:   make(map[string]valueBinding),
		structs:  make(map[string]*StructInfo),
		pointers: make(map[Slot]PointerInfo),
	}
}

// Table is the scope stack plus the flat type table.
type Table struct {
	frames []*frame
	types  map[string]types.Type
}

// NewTable returns an empty Table with no pushed frames. Push must be
// called before any DeclareValue, DeclareStruct or DeclarePointer call;
// DeclareType needs no frame.
func NewTable() *Table {
	return &Table{types: make(map[string]types.Type)}
}

// Push opens a new frame, bracketing a Block, For, or Prototype body.
func (t *Table) Push() { t.frames = append(t.frames, newFrame()) }

// Pop closes the innermost frame. Popping with no pushed frame panics,
// since it signals a push/pop mismatch in the generator.
func (t *Table) Pop() {
	if len(t.frames) == 0 {
		panic("scope: Pop with no matching Push")
	}
	t.frames = t.frames[:len(t.frames)-1]
}

// Depth reports the number of currently pushed frames. A well-behaved
// generator run returns it to zero by the time Generate finishes.
func (t *Table) Depth() int { return len(t.frames) }

func (t *Table) top() *frame {
	if len(t.frames) == 0 {
		panic("scope: no frame pushed")
	}
	return t.frames[len(t.frames)-1]
}

// DeclareValue binds name to slot in the current frame. It fails if name
// is already bound in that frame; outer frames are not consulted.
func (t *Table) DeclareValue(name string, slot Slot, elem types.Type) error {
	f := t.top()
	if _, exists := f.values[name]; exists {
		return ErrDuplicate
	}
	f.values[name] = valueBinding{Slot: slot, Elem: elem}
	return nil
}

// LookupValue walks the frame stack from innermost to outermost.
func (t *Table) LookupValue(name string) (Slot, types.Type, bool) {
	for i := len(t.frames) - 1; i >= 0; i-- {
		if b, ok := t.frames[i].values[name]; ok {
			return b.Slot, b.Elem, true
		}
	}
	return nil, nil, false
}

// DeclareStruct registers tag in the current frame.
func (t *Table) DeclareStruct(tag string, info *StructInfo) error {
	f := t.top()
	if _, exists := f.structs[tag]; exists {
		return ErrDuplicate
	}
	f.structs[tag] = info
	return nil
}

// LookupStruct walks the frame stack for a struct tag.
func (t *Table) LookupStruct(tag string) (*StructInfo, bool) {
	for i := len(t.frames) - 1; i >= 0; i-- {
		if info, ok := t.frames[i].structs[tag]; ok {
			return info, true
		}
	}
	return nil, false
}

// DeclarePointer records pointer metadata for slot in the current frame.
func (t *Table) DeclarePointer(slot Slot, info PointerInfo) error {
	f := t.top()
	if _, exists := f.pointers[slot]; exists {
		return ErrDuplicate
	}
	f.pointers[slot] = info
	return nil
}

// LookupPointer walks the frame stack for slot's pointer metadata.
func (t *Table) LookupPointer(slot Slot) (PointerInfo, bool) {
	for i := len(t.frames) - 1; i >= 0; i-- {
		if info, ok := t.frames[i].pointers[slot]; ok {
			return info, true
		}
	}
	return PointerInfo{}, false
}

// DeclareType installs name in the flat type table. Unlike values, structs
// and pointers, the type table is not scoped: typedefs are file-scoped.
func (t *Table) DeclareType(name string, ty types.Type) error {
	if _, exists := t.types[name]; exists {
		return ErrDuplicate
	}
	t.types[name] = ty
	return nil
}

// ResolveType implements the lookup order described for TryGetType: the
// flat type table (primitives and typedefs) first, then struct tags
// walking the frame stack outward.
func (t *Table) ResolveType(name string) (types.Type, bool) {
	if ty, ok := t.types[name]; ok {
		return ty, true
	}
	if info, ok := t.LookupStruct(name); ok {
		return info.Aggregate, true
	}
	return nil, false
}
