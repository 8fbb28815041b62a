// Package faith implements the faith trail and its report sections.
package faith

// TrailEnd is the final space; reaching it triggers the endgame.
const TrailEnd = 24

// section is a report section: when any player reaches End, every player at
// or past Zone earns Points. Each section fires once per game.
type section struct {
	End    int
	Zone   int
	Points int
}

var sections = []section{
	{End: 8, Zone: 5, Points: 2},
	{End: 16, Zone: 12, Points: 3},
	{End: 24, Zone: 19, Points: 4},
}

// spaces on the trail that award points just for position.
func positionPoints(pos int) int {
	points := 0
	for milestone := 3; milestone <= TrailEnd; milestone += 3 {
		if pos >= milestone {
			points++
		}
	}
	return points
}

// Trail tracks every participant's faith position and awarded report tiles.
type Trail struct {
	positions map[string]int
	tiles     map[string]int // accumulated section points per player
	fired     []bool
}

func NewTrail(players []string) *Trail {
	t := &Trail{
		positions: make(map[string]int, len(players)),
		tiles:     make(map[string]int, len(players)),
		fired:     make([]bool, len(sections)),
	}
	for _, p := range players {
		t.positions[p] = 0
	}
	return t
}

// Position returns a player's current space.
func (t *Trail) Position(player string) int {
	return t.positions[player]
}

// Positions returns a copy of all player positions.
func (t *Trail) Positions() map[string]int {
	cp := make(map[string]int, len(t.positions))
	for p, pos := range t.positions {
		cp[p] = pos
	}
	return cp
}

// Advance moves player forward by steps, clamped to the trail end, firing any
// report section the move completes. It reports whether the trail end was
// reached.
func (t *Trail) Advance(player string, steps int) bool {
	if steps <= 0 {
		return t.positions[player] >= TrailEnd
	}
	pos := t.positions[player] + steps
	if pos > TrailEnd {
		pos = TrailEnd
	}
	t.positions[player] = pos
	for i, s := range sections {
		if t.fired[i] || pos < s.End {
			continue
		}
		t.fired[i] = true
		for p, pPos := range t.positions {
			if pPos >= s.Zone {
				t.tiles[p] += s.Points
			}
		}
	}
	return pos >= TrailEnd
}

// Points returns a player's faith score: position milestones plus report
// tiles earned.
func (t *Trail) Points(player string) int {
	return positionPoints(t.positions[player]) + t.tiles[player]
}
