package ecs

import (
	"testing"

	"github.com/aledsdavies/delta/internal/bytecode"
	"github.com/stretchr/testify/assert"
)

func positionLayout(id byte) bytecode.ComponentLayout {
	return bytecode.NewComponentLayout(id, "Position", []bytecode.FieldLayout{
		{Name: "x", TypeID: bytecode.FieldF32},
		{Name: "y", TypeID: bytecode.FieldF32},
	})
}

func healthLayout(id byte) bytecode.ComponentLayout {
	return bytecode.NewComponentLayout(id, "Health", []bytecode.FieldLayout{
		{Name: "value", TypeID: bytecode.FieldI32},
	})
}

func TestBitsetIntersectAndDifference(t *testing.T) {
	a := NewBitset()
	a.Set(1)
	a.Set(2)
	a.Set(64)

	b := NewBitset()
	b.Set(2)
	b.Set(64)
	b.Set(100)

	inter := Intersect(a, b)
	assert.Equal(t, []uint32{2, 64}, inter.IDs())

	diff := Difference(a, b)
	assert.Equal(t, []uint32{1}, diff.IDs())
}

func TestColumnInsertGetRemoveIsASparseSet(t *testing.T) {
	col := NewColumn(positionLayout(0))
	col.Insert(5, []byte{1, 2, 3, 4, 5, 6, 7, 8})
	assert.True(t, col.Contains(5))
	assert.Equal(t, []byte{1, 2, 3, 4, 5, 6, 7, 8}, col.Get(5))

	col.Insert(9, []byte{9, 9, 9, 9, 9, 9, 9, 9})
	assert.True(t, col.Remove(5))
	assert.False(t, col.Contains(5))
	assert.True(t, col.Contains(9))
	assert.Equal(t, []byte{9, 9, 9, 9, 9, 9, 9, 9}, col.Get(9))
}

func TestColumnInsertOverwritesExistingRow(t *testing.T) {
	col := NewColumn(healthLayout(0))
	col.Insert(1, []byte{0, 0, 0, 10})
	col.Insert(1, []byte{0, 0, 0, 20})
	assert.Equal(t, []byte{0, 0, 0, 20}, col.Get(1))
	assert.Len(t, col.Entities, 1)
}

func TestWorldQueryIntersectsIncludeAndSubtractsExclude(t *testing.T) {
	w := NewWorld()
	posID := w.Register(positionLayout(0))
	healthID := w.Register(healthLayout(1))

	w.Insert(posID, 1, make([]byte, 8))
	w.Insert(posID, 2, make([]byte, 8))
	w.Insert(posID, 3, make([]byte, 8))
	w.Insert(healthID, 2, make([]byte, 4))

	result := w.Query([]byte{posID}, nil)
	assert.ElementsMatch(t, []uint32{1, 2, 3}, result.Entities)

	result = w.Query([]byte{posID}, []byte{healthID})
	assert.ElementsMatch(t, []uint32{1, 3}, result.Entities)
}

func TestWorldQueryWithEmptyIncludeYieldsNothing(t *testing.T) {
	w := NewWorld()
	result := w.Query(nil, nil)
	assert.Empty(t, result.Entities)
}

func TestWorldDestroyRemovesFromEveryColumn(t *testing.T) {
	w := NewWorld()
	posID := w.Register(positionLayout(0))
	healthID := w.Register(healthLayout(1))

	w.Insert(posID, 1, make([]byte, 8))
	w.Insert(healthID, 1, make([]byte, 4))
	w.Destroy(1)

	assert.Nil(t, w.Get(posID, 1))
	assert.Nil(t, w.Get(healthID, 1))
}

func TestEntityManagerIssuesMonotonicIDs(t *testing.T) {
	m := NewEntityManager()
	assert.Equal(t, uint32(0), m.New())
	assert.Equal(t, uint32(1), m.New())
	assert.Equal(t, uint32(2), m.New())
}
