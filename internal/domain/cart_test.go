package domain

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCart_AddIncrementsExistingLine(t *testing.T) {
	c := NewCart()
	c.Add("rolex", "v1", 1500)
	c.Add("rolex", "v1", 1500)
	c.Add("samosa", "v2", 500)

	lines := c.Lines()
	require.Len(t, lines, 2)
	assert.Equal(t, "rolex", lines[0].ItemID)
	assert.Equal(t, 2, lines[0].Quantity)
	assert.Equal(t, 1, lines[1].Quantity)
	assert.Equal(t, Amount(3500), c.Total())
}

func TestCart_RemoveDropsLineBelowOne(t *testing.T) {
	c := NewCart()
	c.Add("rolex", "v1", 1500)
	c.Add("rolex", "v1", 1500)

	assert.True(t, c.Remove("rolex"))
	assert.Equal(t, Amount(1500), c.Total())
	assert.True(t, c.Remove("rolex"))
	assert.True(t, c.IsEmpty())
	assert.False(t, c.Remove("rolex"))
	assert.Equal(t, Amount(0), c.Total())
}

func TestCart_ClearAndSnapshot(t *testing.T) {
	c := NewCart()
	c.Add("a", "v1", 1000)
	c.Add("b", "v1", 2000)
	c.Add("b", "v1", 2000)

	assert.Equal(t, []SessionLine{{ItemID: "a", Quantity: 1}, {ItemID: "b", Quantity: 2}}, c.Snapshot())

	c.Clear()
	assert.True(t, c.IsEmpty())
	assert.Empty(t, c.Snapshot())
}

func TestCart_LinesReturnsCopy(t *testing.T) {
	c := NewCart()
	c.Add("a", "v1", 1000)
	lines := c.Lines()
	lines[0].Quantity = 99
	assert.Equal(t, Amount(1000), c.Total())
}

func TestCart_RandomOperationsKeepTotalExact(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	items := []string{"a", "b", "c", "d"}
	prices := map[string]Amount{"a": 300, "b": 1250, "c": 5000, "d": 75}
	want := map[string]int{}
	c := NewCart()

	for i := 0; i < 2000; i++ {
		item := items[rng.Intn(len(items))]
		if rng.Intn(3) == 0 {
			c.Remove(item)
			if want[item] > 0 {
				want[item]--
			}
		} else {
			c.Add(item, "v", prices[item])
			want[item]++
		}

		var expected Amount
		for id, q := range want {
			expected += prices[id] * Amount(q)
		}
		require.Equal(t, expected, c.Total())
		for _, l := range c.Lines() {
			require.GreaterOrEqual(t, l.Quantity, 1)
			require.Equal(t, want[l.ItemID], l.Quantity)
		}
	}
}
