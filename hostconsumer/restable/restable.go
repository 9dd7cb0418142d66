// Package restable implements the host consumer's resource tracking
// (spec.md §9 "pointer graphs"): a set of index-keyed maps, one per
// resource category, rather than an owning-reference graph. Binding
// commands consult these tables before dispatch and fail with
// RESOURCE_NOT_FOUND when an id is unknown, a supplemented behavior
// the distilled spec leaves implicit. Grounded on fuse/nodefs's
// inode-number-keyed lookup tables, generalized from filesystem inodes
// to GPU object handles.
package restable

import (
	"sync"

	"github.com/templarsco/pvgpu/wire"
)

// Category distinguishes the resource kinds the host consumer tracks
// independently, since a zero id or a stale id can be valid in one
// category and not another.
type Category int

const (
	CategoryResource Category = iota
	CategoryState
	CategoryView
	CategoryShader
)

func (c Category) String() string {
	switch c {
	case CategoryResource:
		return "resource"
	case CategoryState:
		return "state"
	case CategoryView:
		return "view"
	case CategoryShader:
		return "shader"
	default:
		return "unknown"
	}
}

// Table holds the live object sets for one device instance. All
// methods are safe for concurrent use, though in practice only the
// single host consumer goroutine touches it (§5).
type Table struct {
	mu        sync.Mutex
	resources map[uint32]wire.ResourceDesc
	states    map[uint32]wire.CommandType // creating command, for diagnostics
	views     map[uint32]wire.CommandType
	shaders   map[uint32]wire.StateDesc
}

// New builds an empty Table.
func New() *Table {
	return &Table{
		resources: make(map[uint32]wire.ResourceDesc),
		states:    make(map[uint32]wire.CommandType),
		views:     make(map[uint32]wire.CommandType),
		shaders:   make(map[uint32]wire.StateDesc),
	}
}

// CreateResource inserts id with desc, failing INVALID_PARAMETER on a
// reserved (zero) or already-live id (§3 "Resource handle").
func (t *Table) CreateResource(id uint32, desc wire.ResourceDesc) wire.ErrorKind {
	t.mu.Lock()
	defer t.mu.Unlock()
	if id == 0 {
		return wire.ErrInvalidParameter
	}
	if _, exists := t.resources[id]; exists {
		return wire.ErrInvalidParameter
	}
	t.resources[id] = desc
	return wire.Success
}

// DestroyResource removes id, failing RESOURCE_NOT_FOUND if absent.
func (t *Table) DestroyResource(id uint32) wire.ErrorKind {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, exists := t.resources[id]; !exists {
		return wire.ErrResourceNotFound
	}
	delete(t.resources, id)
	return wire.Success
}

// Resource returns the descriptor id was created with.
func (t *Table) Resource(id uint32) (wire.ResourceDesc, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	d, ok := t.resources[id]
	return d, ok
}

// CreateState records a state-object id created by the given command
// (CREATE_BLEND_STATE, CREATE_RASTERIZER_STATE, ...).
func (t *Table) CreateState(kind wire.CommandType, id uint32) wire.ErrorKind {
	t.mu.Lock()
	defer t.mu.Unlock()
	if id == 0 {
		return wire.ErrInvalidParameter
	}
	if _, exists := t.states[id]; exists {
		return wire.ErrInvalidParameter
	}
	t.states[id] = kind
	return wire.Success
}

// DestroyState removes a state-object id.
func (t *Table) DestroyState(id uint32) wire.ErrorKind {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, exists := t.states[id]; !exists {
		return wire.ErrResourceNotFound
	}
	delete(t.states, id)
	return wire.Success
}

// CreateView records a view id created over a resource.
func (t *Table) CreateView(kind wire.CommandType, id uint32) wire.ErrorKind {
	t.mu.Lock()
	defer t.mu.Unlock()
	if id == 0 {
		return wire.ErrInvalidParameter
	}
	if _, exists := t.views[id]; exists {
		return wire.ErrInvalidParameter
	}
	t.views[id] = kind
	return wire.Success
}

// DestroyView removes a view id.
func (t *Table) DestroyView(id uint32) wire.ErrorKind {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, exists := t.views[id]; !exists {
		return wire.ErrResourceNotFound
	}
	delete(t.views, id)
	return wire.Success
}

// CreateShader records a shader id and its description.
func (t *Table) CreateShader(id uint32, desc wire.StateDesc) wire.ErrorKind {
	t.mu.Lock()
	defer t.mu.Unlock()
	if id == 0 {
		return wire.ErrInvalidParameter
	}
	if _, exists := t.shaders[id]; exists {
		return wire.ErrInvalidParameter
	}
	t.shaders[id] = desc
	return wire.Success
}

// DestroyShader removes a shader id.
func (t *Table) DestroyShader(id uint32) wire.ErrorKind {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, exists := t.shaders[id]; !exists {
		return wire.ErrResourceNotFound
	}
	delete(t.shaders, id)
	return wire.Success
}

// Exists reports whether id is live in category. A zero id is never
// considered live, since 0 is the reserved "unbind" handle (§3).
func (t *Table) Exists(category Category, id uint32) bool {
	if id == 0 {
		return false
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	switch category {
	case CategoryResource:
		_, ok := t.resources[id]
		return ok
	case CategoryState:
		_, ok := t.states[id]
		return ok
	case CategoryView:
		_, ok := t.views[id]
		return ok
	case CategoryShader:
		_, ok := t.shaders[id]
		return ok
	default:
		return false
	}
}

// Reset clears every table, matching a device reset's effect on the
// host consumer's object graph.
func (t *Table) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.resources = make(map[uint32]wire.ResourceDesc)
	t.states = make(map[uint32]wire.CommandType)
	t.views = make(map[uint32]wire.CommandType)
	t.shaders = make(map[uint32]wire.StateDesc)
}

// Counts returns the live object count per category, for diagnostics.
func (t *Table) Counts() (resources, states, views, shaders int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.resources), len(t.states), len(t.views), len(t.shaders)
}
