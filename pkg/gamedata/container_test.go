package gamedata

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type itemRow struct {
	ItemID int64
	Name   string
}

func (r *itemRow) ID() any { return r.ItemID }

func TestContainerSetAllAndGet(t *testing.T) {
	c := NewContainer[*itemRow]()
	c.SetAll([]*itemRow{
		{ItemID: 1, Name: "sword"},
		{ItemID: 2, Name: "shield"},
	})

	got, ok := c.Get(int64(1))
	require.True(t, ok)
	assert.Equal(t, "sword", got.Name)

	_, ok = c.Get(int64(99))
	assert.False(t, ok)

	assert.Equal(t, 2, c.Len())
}

func TestContainerAllPreservesOrder(t *testing.T) {
	c := NewContainer[*itemRow]()
	c.SetAll([]*itemRow{
		{ItemID: 3, Name: "c"},
		{ItemID: 1, Name: "a"},
		{ItemID: 2, Name: "b"},
	})

	all := c.All()
	require.Len(t, all, 3)
	assert.Equal(t, "c", all[0].Name)
	assert.Equal(t, "a", all[1].Name)
	assert.Equal(t, "b", all[2].Name)
}

func TestContainerSetAllReplacesAtomically(t *testing.T) {
	c := NewContainer[*itemRow]()
	c.SetAll([]*itemRow{{ItemID: 1, Name: "old"}})

	old := c.All()
	c.SetAll([]*itemRow{{ItemID: 1, Name: "new"}})

	assert.Equal(t, "old", old[0].Name, "previously returned snapshot must not mutate")
	got, _ := c.Get(int64(1))
	assert.Equal(t, "new", got.Name)
}

func TestContainerMustGetReturnsZeroValueWhenAbsent(t *testing.T) {
	c := NewContainer[*itemRow]()
	assert.Nil(t, c.MustGet(int64(1)))
}
