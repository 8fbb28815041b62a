package market

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"

	"renaissance/internal/game/resource"
)

func TestDrawRowShiftsAndRotatesSpare(t *testing.T) {
	m := New(rand.New(rand.NewSource(1)))
	spare := m.Spare()
	first := m.grid[0][0]

	drawn, err := m.DrawRow(0)
	require.NoError(t, err)
	require.Len(t, drawn, Columns)
	require.Equal(t, first, m.Spare(), "the pushed out marble becomes the spare")
	require.Equal(t, spare, m.grid[0][Columns-1], "the old spare slides in at the far end")
}

func TestDrawColumnShiftsAndRotatesSpare(t *testing.T) {
	m := New(rand.New(rand.NewSource(1)))
	spare := m.Spare()
	top := m.grid[0][2]

	drawn, err := m.DrawColumn(2)
	require.NoError(t, err)
	require.Len(t, drawn, Rows)
	require.Equal(t, top, m.Spare())
	require.Equal(t, spare, m.grid[Rows-1][2])
}

func TestDrawOutOfRange(t *testing.T) {
	m := New(rand.New(rand.NewSource(1)))

	_, err := m.DrawRow(Rows)
	require.Error(t, err)
	_, err = m.DrawColumn(-1)
	require.Error(t, err)
}

func TestMarbleCountIsConserved(t *testing.T) {
	m := New(rand.New(rand.NewSource(7)))
	count := func() map[Marble]int {
		c := map[Marble]int{m.spare: 1}
		for r := 0; r < Rows; r++ {
			for col := 0; col < Columns; col++ {
				c[m.grid[r][col]]++
			}
		}
		return c
	}
	before := count()
	for i := 0; i < 10; i++ {
		_, err := m.DrawRow(i % Rows)
		require.NoError(t, err)
		_, err = m.DrawColumn(i % Columns)
		require.NoError(t, err)
	}
	require.Equal(t, before, count())
}

func TestConvert(t *testing.T) {
	gained, faith := Convert([]Marble{Yellow, Yellow, Blue, Grey, Purple, Red, White})
	require.Equal(t, 1, faith)
	require.Equal(t, resource.Pool{
		resource.Coin:    2,
		resource.Shield:  1,
		resource.Stone:   1,
		resource.Servant: 1,
	}, gained)
}
