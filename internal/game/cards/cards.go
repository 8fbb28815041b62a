// Package cards implements the development card grid and card effects.
package cards

import (
	"fmt"
	"math/rand"

	"github.com/pkg/errors"

	"renaissance/internal/game/resource"
)

type Color string

const (
	Green  Color = "green"
	Blue   Color = "blue"
	Yellow Color = "yellow"
	Purple Color = "purple"
)

func Colors() []Color {
	return []Color{Green, Blue, Yellow, Purple}
}

const (
	MinLevel = 1
	MaxLevel = 3
)

// Production is a card's power: consume In, gain Out plus Faith steps.
type Production struct {
	In    resource.Pool `json:"in"`
	Out   resource.Pool `json:"out"`
	Faith int           `json:"faith"`
}

type Card struct {
	ID         string        `json:"id"`
	Level      int           `json:"level"`
	Color      Color         `json:"color"`
	Cost       resource.Pool `json:"cost"`
	Points     int           `json:"points"`
	Production Production    `json:"production"`
}

// catalog builds the full deck: four cards per level and color, with costs
// and powers scaling by level. Deterministic so every table sees the same
// card set; only stack order is shuffled.
func catalog() []Card {
	anchor := map[Color]resource.Resource{
		Green:  resource.Shield,
		Blue:   resource.Coin,
		Yellow: resource.Stone,
		Purple: resource.Servant,
	}
	secondary := map[Color]resource.Resource{
		Green:  resource.Coin,
		Blue:   resource.Stone,
		Yellow: resource.Servant,
		Purple: resource.Shield,
	}
	var deck []Card
	for level := MinLevel; level <= MaxLevel; level++ {
		for _, color := range Colors() {
			for copyIdx := 0; copyIdx < 4; copyIdx++ {
				card := Card{
					ID:     fmt.Sprintf("%s-%d-%d", color, level, copyIdx),
					Level:  level,
					Color:  color,
					Cost:   resource.Pool{anchor[color]: level + 1, secondary[color]: copyIdx % 2},
					Points: level*3 + copyIdx,
					Production: Production{
						In:    resource.Pool{secondary[color]: 1},
						Out:   resource.Pool{anchor[color]: level},
						Faith: copyIdx % 2,
					},
				}
				deck = append(deck, card)
			}
		}
	}
	return deck
}

// Grid is the face-up purchase grid: one stack per level and color, top card
// visible and buyable.
type Grid struct {
	stacks map[Color][][]Card // stacks[color][level-1] is a pile, top at the end
}

// NewGrid deals a shuffled catalog into stacks.
func NewGrid(rng *rand.Rand) *Grid {
	deck := catalog()
	rng.Shuffle(len(deck), func(i, j int) {
		deck[i], deck[j] = deck[j], deck[i]
	})
	grid := &Grid{stacks: make(map[Color][][]Card)}
	for _, color := range Colors() {
		grid.stacks[color] = make([][]Card, MaxLevel)
	}
	for _, card := range deck {
		pile := grid.stacks[card.Color][card.Level-1]
		grid.stacks[card.Color][card.Level-1] = append(pile, card)
	}
	return grid
}

// Peek returns the buyable card for a color and level without removing it.
func (g *Grid) Peek(color Color, level int) (Card, error) {
	pile, err := g.pile(color, level)
	if err != nil {
		return Card{}, err
	}
	if len(pile) == 0 {
		return Card{}, errors.Errorf("no %s level %d cards left", color, level)
	}
	return pile[len(pile)-1], nil
}

// Take removes and returns the top card for a color and level.
func (g *Grid) Take(color Color, level int) (Card, error) {
	card, err := g.Peek(color, level)
	if err != nil {
		return Card{}, err
	}
	pile := g.stacks[color][level-1]
	g.stacks[color][level-1] = pile[:len(pile)-1]
	return card, nil
}

func (g *Grid) pile(color Color, level int) ([]Card, error) {
	if level < MinLevel || level > MaxLevel {
		return nil, errors.Errorf("level %d out of range", level)
	}
	stacks, ok := g.stacks[color]
	if !ok {
		return nil, errors.Errorf("unknown color %q", color)
	}
	return stacks[level-1], nil
}
