package game

import (
	"encoding/json"
	"math/rand"

	"github.com/pkg/errors"

	"renaissance/internal/game/board"
	"renaissance/internal/game/cards"
	"renaissance/internal/game/faith"
	"renaissance/internal/game/market"
	"renaissance/internal/game/resource"
)

// endgame is triggered when a player buys this many development cards or
// reaches the end of the faith trail.
const cardLimit = 7

// Table is the shared game state for one match. It carries no lock: the
// owning match serializes every call together with its turn bookkeeping.
type Table struct {
	order  []string
	boards map[string]*board.Board
	market *market.Market
	grid   *cards.Grid
	trail  *faith.Trail
	phase  Phase
}

// NewTable deals a fresh table for the given players, in turn order.
func NewTable(players []string, seed int64) *Table {
	rng := rand.New(rand.NewSource(seed))
	boards := make(map[string]*board.Board, len(players))
	for _, p := range players {
		boards[p] = board.New()
	}
	return &Table{
		order:  append([]string(nil), players...),
		boards: boards,
		market: market.New(rng),
		grid:   cards.NewGrid(rng),
		trail:  faith.NewTrail(players),
	}
}

// InitialPicks mirrors the original setup: the first player starts bare,
// later players get bonus resource picks and faith to offset turn order.
func (t *Table) InitialPicks(nickname string) ([]string, int, int) {
	options := make([]string, 0, 4)
	for _, r := range resource.All() {
		options = append(options, string(r))
	}
	switch t.indexOf(nickname) {
	case 0:
		return options, 0, 0
	case 1:
		return options, 1, 0
	case 2:
		return options, 1, 1
	default:
		return options, 2, 1
	}
}

func (t *Table) indexOf(nickname string) int {
	for i, p := range t.order {
		if p == nickname {
			return i
		}
	}
	return -1
}

// ApplyInitialSelection credits the picked bonus resources plus any bonus
// faith the seat grants.
func (t *Table) ApplyInitialSelection(nickname string, picks []string) error {
	b, ok := t.boards[nickname]
	if !ok {
		return errors.Errorf("unknown player %q", nickname)
	}
	_, allowed, bonusFaith := t.InitialPicks(nickname)
	if len(picks) != allowed {
		return reject(RejectInvalidSelection)
	}
	gained := make(resource.Pool)
	for _, pick := range picks {
		r, err := resource.Parse(pick)
		if err != nil {
			return reject(RejectInvalidSelection)
		}
		gained[r]++
	}
	b.Gain(gained)
	t.advanceFaith(nickname, bonusFaith)
	return nil
}

// ValidateAndApply applies a primary move. Rejections leave the table
// untouched.
func (t *Table) ValidateAndApply(nickname string, mv Move) (json.RawMessage, error) {
	b, ok := t.boards[nickname]
	if !ok {
		return nil, errors.Errorf("unknown player %q", nickname)
	}
	switch m := mv.(type) {
	case MarketDraw:
		return t.applyMarketDraw(nickname, b, m)
	case BuyCard:
		return t.applyBuyCard(nickname, b, m)
	case Production:
		return t.applyProduction(nickname, b, m)
	default:
		return nil, reject(RejectInvalidMove)
	}
}

type delta struct {
	Nickname  string         `json:"nickname"`
	Move      string         `json:"move"`
	Gained    resource.Pool  `json:"gained,omitempty"`
	Card      *cards.Card    `json:"card,omitempty"`
	Faith     map[string]int `json:"faith,omitempty"`
	CardCount int            `json:"card_count,omitempty"`
}

func (t *Table) applyMarketDraw(nickname string, b *board.Board, m MarketDraw) (json.RawMessage, error) {
	var marbles []market.Marble
	var err error
	switch m.Line {
	case "row":
		marbles, err = t.market.DrawRow(m.Index)
	case "column":
		marbles, err = t.market.DrawColumn(m.Index)
	default:
		return nil, reject(RejectInvalidMove)
	}
	if err != nil {
		return nil, reject(RejectInvalidMove)
	}
	gained, faithSteps := market.Convert(marbles)
	b.Gain(gained)
	t.advanceFaith(nickname, faithSteps)
	return t.marshalDelta(delta{Nickname: nickname, Move: "market_draw", Gained: gained, Faith: t.trail.Positions()})
}

func (t *Table) applyBuyCard(nickname string, b *board.Board, m BuyCard) (json.RawMessage, error) {
	card, err := t.grid.Peek(cards.Color(m.Color), m.Level)
	if err != nil {
		return nil, reject(RejectInvalidMove)
	}
	if !b.Resources.Contains(card.Cost) {
		return nil, reject(RejectNotEnoughResources)
	}
	if err := b.PlaceCard(card, m.Slot); err != nil {
		return nil, reject(RejectInvalidMove)
	}
	// Placement validated; now the purchase cannot fail.
	if _, err := t.grid.Take(cards.Color(m.Color), m.Level); err != nil {
		return nil, errors.Wrap(err, "take card failed")
	}
	if err := b.Pay(card.Cost); err != nil {
		return nil, errors.Wrap(err, "pay for card failed")
	}
	if b.CardCount() >= cardLimit {
		t.triggerEndgame()
	}
	return t.marshalDelta(delta{Nickname: nickname, Move: "buy_card", Card: &card, CardCount: b.CardCount()})
}

func (t *Table) applyProduction(nickname string, b *board.Board, m Production) (json.RawMessage, error) {
	if len(m.Slots) == 0 {
		return nil, reject(RejectInvalidMove)
	}
	// Validate the whole selection before mutating anything.
	totalIn := make(resource.Pool)
	totalOut := make(resource.Pool)
	faithSteps := 0
	seen := make(map[int]bool)
	for _, slot := range m.Slots {
		if seen[slot] {
			return nil, reject(RejectInvalidMove)
		}
		seen[slot] = true
		card, err := b.SlotCard(slot)
		if err != nil {
			return nil, reject(RejectInvalidMove)
		}
		totalIn.Add(card.Production.In)
		totalOut.Add(card.Production.Out)
		faithSteps += card.Production.Faith
	}
	if !b.Resources.Contains(totalIn) {
		return nil, reject(RejectNotEnoughResources)
	}
	b.Resources.Subtract(totalIn)
	b.Gain(totalOut)
	t.advanceFaith(nickname, faithSteps)
	return t.marshalDelta(delta{Nickname: nickname, Move: "production", Gained: totalOut, Faith: t.trail.Positions()})
}

func (t *Table) advanceFaith(nickname string, steps int) {
	if t.trail.Advance(nickname, steps) {
		t.triggerEndgame()
	}
}

func (t *Table) triggerEndgame() {
	if t.phase == PhaseRunning {
		t.phase = PhaseLastRound
	}
}

func (t *Table) marshalDelta(d delta) (json.RawMessage, error) {
	raw, err := json.Marshal(d)
	if err != nil {
		return nil, errors.Wrap(err, "marshal delta failed")
	}
	return raw, nil
}

// Phase reports the table lifecycle.
func (t *Table) Phase() Phase {
	return t.phase
}

// Finish locks the table and computes final scores: card points, faith
// points, and one point per five leftover resources.
func (t *Table) Finish() map[string]int {
	t.phase = PhaseFinished
	scores := make(map[string]int, len(t.order))
	for _, p := range t.order {
		b := t.boards[p]
		scores[p] = b.CardPoints() + t.trail.Points(p) + b.Resources.Total()/5
	}
	return scores
}
