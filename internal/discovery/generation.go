package discovery

import "sync/atomic"

// Generations hands out generation numbers. Advancing it invalidates every
// Ticket issued before.
type Generations struct {
	current atomic.Uint64
}

// Current returns the live generation.
func (g *Generations) Current() uint64 {
	return g.current.Load()
}

// Advance starts a new generation and returns it.
func (g *Generations) Advance() uint64 {
	return g.current.Add(1)
}

// Ticket returns a ticket for the live generation.
func (g *Generations) Ticket() Ticket {
	return Ticket{generation: g.Current(), source: g}
}

// Ticket tags a scan with the generation it was started under.
// The zero Ticket is always valid.
type Ticket struct {
	generation uint64
	source     *Generations
}

// Generation returns the generation the ticket was issued for.
func (t Ticket) Generation() uint64 {
	return t.generation
}

// Valid reports whether the ticket's generation is still the live one.
func (t Ticket) Valid() bool {
	return t.source == nil || t.source.Current() == t.generation
}
