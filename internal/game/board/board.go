// Package board implements a single player's personal board.
package board

import (
	"github.com/pkg/errors"

	"renaissance/internal/game/cards"
	"renaissance/internal/game/resource"
)

// Slots is the number of development card slots on a board.
const Slots = 3

// Board holds a player's resources and development cards. Deposit and
// strongbox are collapsed into one pool; the distinction only matters for
// rules outside this rendition's scope.
type Board struct {
	Resources resource.Pool
	slots     [Slots][]cards.Card // each slot is a stack, top at the end
}

func New() *Board {
	return &Board{Resources: make(resource.Pool)}
}

// Gain adds resources to the board.
func (b *Board) Gain(gained resource.Pool) {
	b.Resources.Add(gained)
}

// Pay removes cost from the board, failing without mutation if it cannot
// be covered.
func (b *Board) Pay(cost resource.Pool) error {
	if !b.Resources.Contains(cost) {
		return errors.New("not enough resources")
	}
	b.Resources.Subtract(cost)
	return nil
}

// PlaceCard stacks a bought card on a slot. A card may only be placed on an
// empty slot (level 1) or on a card exactly one level lower.
func (b *Board) PlaceCard(card cards.Card, slot int) error {
	if slot < 0 || slot >= Slots {
		return errors.Errorf("slot %d out of range", slot)
	}
	pile := b.slots[slot]
	if len(pile) == 0 {
		if card.Level != cards.MinLevel {
			return errors.Errorf("slot %d is empty, only level %d cards may start it", slot, cards.MinLevel)
		}
	} else if top := pile[len(pile)-1]; card.Level != top.Level+1 {
		return errors.Errorf("slot %d holds a level %d card, cannot place level %d", slot, top.Level, card.Level)
	}
	b.slots[slot] = append(pile, card)
	return nil
}

// TopCards returns the active (top) card of each non-empty slot.
func (b *Board) TopCards() []cards.Card {
	var top []cards.Card
	for _, pile := range b.slots {
		if len(pile) > 0 {
			top = append(top, pile[len(pile)-1])
		}
	}
	return top
}

// SlotCard returns the top card of one slot.
func (b *Board) SlotCard(slot int) (cards.Card, error) {
	if slot < 0 || slot >= Slots {
		return cards.Card{}, errors.Errorf("slot %d out of range", slot)
	}
	pile := b.slots[slot]
	if len(pile) == 0 {
		return cards.Card{}, errors.Errorf("slot %d is empty", slot)
	}
	return pile[len(pile)-1], nil
}

// CardCount returns the total development cards bought.
func (b *Board) CardCount() int {
	n := 0
	for _, pile := range b.slots {
		n += len(pile)
	}
	return n
}

// CardPoints sums the victory points of every card on the board.
func (b *Board) CardPoints() int {
	points := 0
	for _, pile := range b.slots {
		for _, card := range pile {
			points += card.Points
		}
	}
	return points
}
