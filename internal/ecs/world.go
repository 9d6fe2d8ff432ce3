package ecs

import "github.com/aledsdavies/delta/internal/bytecode"

// World owns every registered component's Column, indexed by component
// type id, grounded on original_source/elements/src/world.rs.
type World struct {
	Columns []*Column
}

func NewWorld() *World { return &World{} }

// Register installs a column at layout.ID, growing Columns as needed, and
// returns the registered id (spec §9 ambiguity resolution #2: callers
// must thread this id through, never hardcode it). A column already at
// that id with the same row size keeps its rows and takes the new
// layout; otherwise a fresh, empty column replaces it.
func (w *World) Register(layout bytecode.ComponentLayout) byte {
	for uint32(len(w.Columns)) <= uint32(layout.ID) {
		w.Columns = append(w.Columns, nil)
	}
	if existing := w.Columns[layout.ID]; existing != nil && existing.Layout.Size == layout.Size {
		existing.Layout = layout
		return layout.ID
	}
	col := NewColumn(layout)
	w.Columns[layout.ID] = col
	return layout.ID
}

func (w *World) Column(id byte) *Column {
	if int(id) >= len(w.Columns) {
		return nil
	}
	return w.Columns[id]
}

func (w *World) Insert(id byte, entity uint32, row []byte) {
	if c := w.Column(id); c != nil {
		c.Insert(entity, row)
	}
}

func (w *World) Get(id byte, entity uint32) []byte {
	if c := w.Column(id); c != nil {
		return c.Get(entity)
	}
	return nil
}

func (w *World) GetMut(id byte, entity uint32) []byte { return w.Get(id, entity) }

func (w *World) Remove(id byte, entity uint32) bool {
	if c := w.Column(id); c != nil {
		return c.Remove(entity)
	}
	return false
}

// Destroy removes entity from every column.
func (w *World) Destroy(entity uint32) {
	for _, c := range w.Columns {
		if c != nil {
			c.Remove(entity)
		}
	}
}

// QueryResult is the candidate entity set and the columns it was computed
// from, ready for row-by-row iteration (spec §4.7 "Query").
type QueryResult struct {
	Entities []uint32
	Columns  []*Column // one per include id, in the order given to Query
}

// Query computes (⋂ bitset[include]) \ (⋂ bitset[exclude]) and returns the
// matching entities in ascending order together with the include columns,
// so the VM can materialize each row without re-resolving ids.
func (w *World) Query(include, exclude []byte) QueryResult {
	if len(include) == 0 {
		return QueryResult{}
	}
	cols := make([]*Column, len(include))
	includeSets := make([]*Bitset, len(include))
	for i, id := range include {
		c := w.Column(id)
		cols[i] = c
		if c == nil {
			return QueryResult{Columns: cols}
		}
		includeSets[i] = c.Present
	}
	candidate := Intersect(includeSets...)

	if len(exclude) > 0 {
		excludeSets := make([]*Bitset, 0, len(exclude))
		for _, id := range exclude {
			if c := w.Column(id); c != nil {
				excludeSets = append(excludeSets, c.Present)
			}
		}
		if len(excludeSets) > 0 {
			excludeMask := Intersect(excludeSets...)
			candidate = Difference(candidate, excludeMask)
		}
	}

	return QueryResult{Entities: candidate.IDs(), Columns: cols}
}

// EntityManager hands out monotonically increasing entity ids, never
// reused within a run (spec §3 "Entity manager").
type EntityManager struct {
	next uint32
}

func NewEntityManager() *EntityManager { return &EntityManager{} }

func (m *EntityManager) New() uint32 {
	id := m.next
	m.next++
	return id
}
