package ecs

import "github.com/aledsdavies/delta/internal/bytecode"

const sentinel = ^uint32(0) // absence marker in Sparse, mirrors usize::MAX

// Column is a sparse-set store for every instance of one component type,
// grounded on original_source/elements/src/column.rs.
type Column struct {
	ID       byte
	Layout   bytecode.ComponentLayout
	Dense    []byte   // packed rows, Layout.Size bytes each
	Entities []uint32 // dense index -> entity id
	Sparse   []uint32 // entity id -> dense index, or sentinel
	Present  *Bitset
}

func NewColumn(layout bytecode.ComponentLayout) *Column {
	return &Column{
		ID:      layout.ID,
		Layout:  layout,
		Present: NewBitset(),
	}
}

func (c *Column) ensureSparse(entity uint32) {
	for uint32(len(c.Sparse)) <= entity {
		c.Sparse = append(c.Sparse, sentinel)
	}
}

// Insert upserts entity's row bytes (must be exactly Layout.Size long).
func (c *Column) Insert(entity uint32, row []byte) {
	c.ensureSparse(entity)
	if idx := c.Sparse[entity]; idx != sentinel {
		copy(c.Dense[int(idx)*int(c.Layout.Size):], row)
		return
	}
	idx := uint32(len(c.Entities))
	c.Sparse[entity] = idx
	c.Entities = append(c.Entities, entity)
	c.Dense = append(c.Dense, row...)
	c.Present.Set(entity)
}

// Get returns the row bytes for entity, or nil if absent.
func (c *Column) Get(entity uint32) []byte {
	if int(entity) >= len(c.Sparse) {
		return nil
	}
	idx := c.Sparse[entity]
	if idx == sentinel {
		return nil
	}
	start := int(idx) * int(c.Layout.Size)
	return c.Dense[start : start+int(c.Layout.Size)]
}

// GetMut returns a mutable slice over entity's row bytes, or nil if absent.
// The returned slice aliases Dense directly; callers must not retain it
// across a Remove on this column.
func (c *Column) GetMut(entity uint32) []byte { return c.Get(entity) }

// Remove swap-removes entity's row, keeping Dense contiguous.
func (c *Column) Remove(entity uint32) bool {
	if int(entity) >= len(c.Sparse) {
		return false
	}
	idx := c.Sparse[entity]
	if idx == sentinel {
		return false
	}
	lastIdx := uint32(len(c.Entities) - 1)
	size := int(c.Layout.Size)

	if idx != lastIdx {
		lastEntity := c.Entities[lastIdx]
		copy(c.Dense[int(idx)*size:int(idx)*size+size], c.Dense[int(lastIdx)*size:int(lastIdx)*size+size])
		c.Entities[idx] = lastEntity
		c.Sparse[lastEntity] = idx
	}

	c.Entities = c.Entities[:lastIdx]
	c.Dense = c.Dense[:int(lastIdx)*size]
	c.Sparse[entity] = sentinel
	c.Present.Unset(entity)
	return true
}

func (c *Column) Contains(entity uint32) bool { return c.Present.Contains(entity) }
