// Package resource defines the currencies traded on player boards.
package resource

import "github.com/pkg/errors"

type Resource string

const (
	Coin    Resource = "coin"
	Stone   Resource = "stone"
	Servant Resource = "servant"
	Shield  Resource = "shield"
)

// All returns every resource, in a stable order.
func All() []Resource {
	return []Resource{Coin, Stone, Servant, Shield}
}

// Parse validates a wire value.
func Parse(s string) (Resource, error) {
	switch Resource(s) {
	case Coin, Stone, Servant, Shield:
		return Resource(s), nil
	}
	return "", errors.Errorf("unknown resource %q", s)
}

// Pool is a multiset of resources.
type Pool map[Resource]int

// Add merges other into p.
func (p Pool) Add(other Pool) {
	for r, n := range other {
		p[r] += n
	}
}

// Contains reports whether p covers cost.
func (p Pool) Contains(cost Pool) bool {
	for r, n := range cost {
		if p[r] < n {
			return false
		}
	}
	return true
}

// Subtract removes cost from p. Callers check Contains first.
func (p Pool) Subtract(cost Pool) {
	for r, n := range cost {
		p[r] -= n
	}
}

// Total counts all resources in p.
func (p Pool) Total() int {
	total := 0
	for _, n := range p {
		total += n
	}
	return total
}

// Clone returns an independent copy of p.
func (p Pool) Clone() Pool {
	cp := make(Pool, len(p))
	for r, n := range p {
		cp[r] = n
	}
	return cp
}
