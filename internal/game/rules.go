// Package game exposes the rules engine the session core drives. The core
// only routes moves and turn legality; everything here is opaque to it.
package game

import "encoding/json"

// Rejection is a typed rule rejection. It is always recovered into a move
// response at the dispatch boundary; hard failures use plain errors.
type Rejection struct {
	Kind string
}

func (r *Rejection) Error() string {
	return "move rejected: " + r.Kind
}

// Rejection kinds reported to clients.
const (
	RejectNotEnoughResources = "not_enough_resources"
	RejectInvalidMove        = "invalid_move"
	RejectInvalidSelection   = "invalid_selection"
)

func reject(kind string) error {
	return &Rejection{Kind: kind}
}

// Move is the closed set of primary moves a player may make.
type Move interface {
	isMove()
}

// MarketDraw takes a market row or column.
type MarketDraw struct {
	Line  string `json:"line"` // "row" or "column"
	Index int    `json:"index"`
}

// BuyCard purchases the top development card of a color and level and places
// it on a board slot.
type BuyCard struct {
	Color string `json:"color"`
	Level int    `json:"level"`
	Slot  int    `json:"slot"`
}

// Production activates the production powers of the cards on the given slots.
type Production struct {
	Slots []int `json:"slots"`
}

func (MarketDraw) isMove() {}
func (BuyCard) isMove()    {}
func (Production) isMove() {}

// Phase is the table's lifecycle as seen by the session core.
type Phase int

const (
	PhaseRunning Phase = iota
	PhaseLastRound
	PhaseFinished
)

// Rules is the narrow interface the session core drives the engine through.
type Rules interface {
	// InitialPicks reports the asymmetric setup for a player: which bonus
	// resources they may pick from, how many picks they get, and any bonus
	// faith granted outright. Determined by turn order.
	InitialPicks(nickname string) (options []string, picks int, bonusFaith int)

	// ApplyInitialSelection credits a player's setup picks.
	ApplyInitialSelection(nickname string, picks []string) error

	// ValidateAndApply applies a move for a player, returning a state delta
	// for broadcast, or a *Rejection.
	ValidateAndApply(nickname string, mv Move) (json.RawMessage, error)

	// Phase reports whether the endgame has been triggered.
	Phase() Phase

	// Finish locks the table and computes final scores.
	Finish() map[string]int
}
