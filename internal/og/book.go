package og

import (
	"sort"

	"scalper/internal/schema"
	"scalper/pkg/exception"
)

var (
	ErrInvalidTransition = exception.ErrOrderBadTransition
	ErrStopLoosened      = exception.ErrOrderStopLoosened
)

// Book tracks open positions. It is the engine's cache of broker state.
type Book struct {
	positions map[uint64]*schema.Position
}

// NewBook creates an empty book.
func NewBook() *Book {
	return &Book{positions: make(map[uint64]*schema.Position)}
}

// Open registers a new position.
func (b *Book) Open(p schema.Position) (*schema.Position, error) {
	if p.Ticket == 0 {
		return nil, exception.ErrOrderEmptyTicket
	}
	if _, ok := b.positions[p.Ticket]; ok {
		return nil, exception.ErrOrderDuplicateTicket
	}
	pos := p
	b.positions[p.Ticket] = &pos
	return &pos, nil
}

// Position returns the tracked position for ticket.
func (b *Book) Position(ticket uint64) (*schema.Position, bool) {
	p, ok := b.positions[ticket]
	return p, ok
}

// Remove stops tracking ticket and returns the last known state.
func (b *Book) Remove(ticket uint64) (schema.Position, bool) {
	p, ok := b.positions[ticket]
	if !ok {
		return schema.Position{}, false
	}
	delete(b.positions, ticket)
	return *p, true
}

// Advance moves the exit stage forward by exactly one step.
func (b *Book) Advance(ticket uint64, to schema.ExitStage) error {
	p, ok := b.positions[ticket]
	if !ok {
		return exception.ErrOrderUnknownTicket
	}
	if to != p.Stage+1 || to > schema.StageTP2 {
		return ErrInvalidTransition
	}
	p.Stage = to
	return nil
}

// Reduce sets the remaining lots after a partial close.
func (b *Book) Reduce(ticket uint64, remaining float64) error {
	p, ok := b.positions[ticket]
	if !ok {
		return exception.ErrOrderUnknownTicket
	}
	if remaining < 0 || remaining > p.Lots {
		return exception.ErrOrderInvalidLots
	}
	p.Lots = remaining
	return nil
}

// MoveStop records a new stop loss. Only tighter stops are accepted.
func (b *Book) MoveStop(ticket uint64, stop float64) error {
	p, ok := b.positions[ticket]
	if !ok {
		return exception.ErrOrderUnknownTicket
	}
	if !p.Improves(stop) {
		return ErrStopLoosened
	}
	p.StopLoss = stop
	return nil
}

// SetTrail sets the trailing distance used when trailing is static.
func (b *Book) SetTrail(ticket uint64, distance float64) error {
	p, ok := b.positions[ticket]
	if !ok {
		return exception.ErrOrderUnknownTicket
	}
	p.TrailDistance = distance
	return nil
}

// Count returns the number of tracked positions for symbol.
func (b *Book) Count(symbol string) int {
	n := 0
	for _, p := range b.positions {
		if p.Symbol == symbol {
			n++
		}
	}
	return n
}

// Len returns the number of tracked positions.
func (b *Book) Len() int {
	return len(b.positions)
}

// Tickets returns tracked tickets in ascending order.
func (b *Book) Tickets() []uint64 {
	out := make([]uint64, 0, len(b.positions))
	for t := range b.positions {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Positions returns copies of the tracked positions ordered by ticket.
func (b *Book) Positions() []schema.Position {
	out := make([]schema.Position, 0, len(b.positions))
	for _, t := range b.Tickets() {
		out = append(out, *b.positions[t])
	}
	return out
}

// Restore replaces the book contents.
func (b *Book) Restore(positions []schema.Position) {
	b.positions = make(map[uint64]*schema.Position, len(positions))
	for _, p := range positions {
		if p.Ticket == 0 {
			continue
		}
		pos := p
		b.positions[p.Ticket] = &pos
	}
}
