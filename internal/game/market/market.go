// Package market implements the marble market players draw resources from.
package market

import (
	"math/rand"

	"github.com/pkg/errors"

	"renaissance/internal/game/resource"
)

type Marble string

const (
	White  Marble = "white" // yields nothing
	Red    Marble = "red"   // yields a faith step
	Yellow Marble = "yellow"
	Blue   Marble = "blue"
	Grey   Marble = "grey"
	Purple Marble = "purple"
)

const (
	Rows    = 3
	Columns = 4
)

// composition of the marble bag: 4 white, 1 red, 2 of each resource color.
var bag = []Marble{
	White, White, White, White,
	Red,
	Yellow, Yellow,
	Blue, Blue,
	Grey, Grey,
	Purple, Purple,
}

// Market is the 3x4 marble grid with one spare marble. A draw takes a full
// row or column and shifts it, the spare sliding in at the far end.
type Market struct {
	grid  [Rows][Columns]Marble
	spare Marble
}

// New shuffles the bag into a fresh market.
func New(rng *rand.Rand) *Market {
	shuffled := make([]Marble, len(bag))
	copy(shuffled, bag)
	rng.Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})
	m := &Market{}
	idx := 0
	for r := 0; r < Rows; r++ {
		for c := 0; c < Columns; c++ {
			m.grid[r][c] = shuffled[idx]
			idx++
		}
	}
	m.spare = shuffled[idx]
	return m
}

// Spare returns the marble waiting outside the grid.
func (m *Market) Spare() Marble {
	return m.spare
}

// DrawRow takes row i, shifting it left and sliding the spare in.
func (m *Market) DrawRow(i int) ([]Marble, error) {
	if i < 0 || i >= Rows {
		return nil, errors.Errorf("row index %d out of range", i)
	}
	drawn := make([]Marble, Columns)
	copy(drawn, m.grid[i][:])
	newSpare := m.grid[i][0]
	copy(m.grid[i][:Columns-1], m.grid[i][1:])
	m.grid[i][Columns-1] = m.spare
	m.spare = newSpare
	return drawn, nil
}

// DrawColumn takes column i, shifting it up and sliding the spare in.
func (m *Market) DrawColumn(i int) ([]Marble, error) {
	if i < 0 || i >= Columns {
		return nil, errors.Errorf("column index %d out of range", i)
	}
	drawn := make([]Marble, Rows)
	for r := 0; r < Rows; r++ {
		drawn[r] = m.grid[r][i]
	}
	newSpare := m.grid[0][i]
	for r := 0; r < Rows-1; r++ {
		m.grid[r][i] = m.grid[r+1][i]
	}
	m.grid[Rows-1][i] = m.spare
	m.spare = newSpare
	return drawn, nil
}

// Convert maps drawn marbles to gained resources and faith steps.
func Convert(marbles []Marble) (resource.Pool, int) {
	gained := make(resource.Pool)
	faith := 0
	for _, marble := range marbles {
		switch marble {
		case Yellow:
			gained[resource.Coin]++
		case Blue:
			gained[resource.Shield]++
		case Grey:
			gained[resource.Stone]++
		case Purple:
			gained[resource.Servant]++
		case Red:
			faith++
		}
	}
	return gained, faith
}
