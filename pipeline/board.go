// Package pipeline holds the sales funnel board: an ordered set of stages,
// each with an ordered list of client cards, and the move operations that
// relocate cards between and within stages.
//
// A Board is owned by a single caller. It performs no locking; callers that
// share one across goroutines must serialize access themselves.
package pipeline

import (
	"strconv"
	"strings"
	"time"

	"bizdesk/domain"
)

// StageID identifies a board column.
type StageID string

// CardID identifies a client card.
type CardID string

// Stage is one phase of the funnel. CardOrder is display order.
type Stage struct {
	ID        StageID  `json:"id"`
	Title     string   `json:"title"`
	CardOrder []CardID `json:"cardOrder"`
}

// Count is the number of cards in the stage.
func (s Stage) Count() int { return len(s.CardOrder) }

// Label renders the count the way the board header shows it.
func (s Stage) Label() string {
	n := len(s.CardOrder)
	if n == 1 {
		return "1 client"
	}
	return strconv.Itoa(n) + " clients"
}

// Card is a client positioned on the board.
type Card struct {
	ID            CardID               `json:"id"`
	Name          string               `json:"name"`
	Organization  string               `json:"organization,omitempty"`
	Value         int64                `json:"value"`
	ReferenceDate string               `json:"referenceDate,omitempty"`
	Interactions  []domain.Interaction `json:"interactions,omitempty"`
}

func (c Card) clone() Card {
	c.Interactions = append([]domain.Interaction(nil), c.Interactions...)
	return c
}

// Seed is the initial state a Board is built from.
type Seed struct {
	Stages []Stage
	Cards  []Card
}

// Relocation describes a move after the board resolved it. ToIndex is the
// final position of the card in the destination stage.
type Relocation struct {
	CardID    CardID  `json:"cardId"`
	FromStage StageID `json:"fromStage"`
	FromIndex int     `json:"fromIndex"`
	ToStage   StageID `json:"toStage"`
	ToIndex   int     `json:"toIndex"`
}

// Noop reports whether the relocation leaves the board unchanged.
func (r Relocation) Noop() bool {
	return r.FromStage == r.ToStage && r.FromIndex == r.ToIndex
}

// Placement is the stage and position of a card.
type Placement struct {
	CardID   CardID  `json:"cardId"`
	Stage    StageID `json:"stage"`
	Position int     `json:"position"`
}

// Board partitions cards into ordered stages. Stages are fixed at
// construction; cards only move.
type Board struct {
	stages []Stage
	index  map[StageID]int
	cards  map[CardID]*Card
	now    func() time.Time
}

// Option configures a Board.
type Option func(*Board)

// WithClock sets the clock used to stamp interactions that carry no
// timestamp.
func WithClock(now func() time.Time) Option {
	return func(b *Board) {
		if now != nil {
			b.now = now
		}
	}
}

// New builds a board from seed. Every card must be placed in exactly one
// stage, at most once.
func New(seed Seed, opts ...Option) (*Board, error) {
	if len(seed.Stages) == 0 {
		return nil, domain.Invalid("stages", "a board needs at least one stage")
	}
	b := &Board{
		stages: make([]Stage, len(seed.Stages)),
		index:  make(map[StageID]int, len(seed.Stages)),
		cards:  make(map[CardID]*Card, len(seed.Cards)),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}

	for _, c := range seed.Cards {
		if c.ID == "" {
			return nil, domain.Invalid("cards", "card without id")
		}
		if _, dup := b.cards[c.ID]; dup {
			return nil, domain.Invalid("cards", "duplicate card "+string(c.ID))
		}
		cp := c.clone()
		b.cards[c.ID] = &cp
	}

	placed := make(map[CardID]StageID, len(seed.Cards))
	for i, s := range seed.Stages {
		if strings.TrimSpace(string(s.ID)) == "" {
			return nil, domain.Invalid("stages", "stage without id")
		}
		if _, dup := b.index[s.ID]; dup {
			return nil, domain.Invalid("stages", "duplicate stage "+string(s.ID))
		}
		for _, id := range s.CardOrder {
			if _, ok := b.cards[id]; !ok {
				return nil, domain.Invalid("stages", "stage "+string(s.ID)+" references unknown card "+string(id))
			}
			if other, dup := placed[id]; dup {
				return nil, domain.Invalid("stages", "card "+string(id)+" placed in both "+string(other)+" and "+string(s.ID))
			}
			placed[id] = s.ID
		}
		b.index[s.ID] = i
		b.stages[i] = Stage{ID: s.ID, Title: s.Title, CardOrder: append([]CardID(nil), s.CardOrder...)}
	}
	for id := range b.cards {
		if _, ok := placed[id]; !ok {
			return nil, domain.Invalid("cards", "card "+string(id)+" is not placed on any stage")
		}
	}
	return b, nil
}

// Move relocates id from position fromIndex of stage from to position
// toIndex of stage to. toIndex is clamped to the destination bounds after the
// card has been removed from its source. A move to the same stage and index
// is a no-op. The caller's source location is checked against the board; a
// mismatch is a ContractViolation and leaves the board untouched.
func (b *Board) Move(id CardID, from StageID, fromIndex int, to StageID, toIndex int) error {
	const op = "move"
	src, ok := b.index[from]
	if !ok {
		return domain.Violation(op, "unknown source stage %q", from)
	}
	dst, ok := b.index[to]
	if !ok {
		return domain.Violation(op, "unknown destination stage %q", to)
	}
	if from == to && fromIndex == toIndex {
		return nil
	}
	order := b.stages[src].CardOrder
	if fromIndex < 0 || fromIndex >= len(order) {
		return domain.Violation(op, "source index %d out of range for stage %q (%d cards)", fromIndex, from, len(order))
	}
	if order[fromIndex] != id {
		return domain.Violation(op, "card %q is not at %s[%d]", id, from, fromIndex)
	}

	remaining := removeAt(order, fromIndex)
	if src == dst {
		b.stages[src].CardOrder = insertAt(remaining, clamp(toIndex, len(remaining)), id)
		return nil
	}
	b.stages[src].CardOrder = remaining
	dest := b.stages[dst].CardOrder
	b.stages[dst].CardOrder = insertAt(dest, clamp(toIndex, len(dest)), id)
	return nil
}

// MoveCard relocates id to position toIndex of stage to, looking up the
// card's current location itself.
func (b *Board) MoveCard(id CardID, to StageID, toIndex int) (Relocation, error) {
	const op = "move"
	from, fromIndex, ok := b.Locate(id)
	if !ok {
		return Relocation{}, domain.Violation(op, "unknown card %q", id)
	}
	dst, ok := b.index[to]
	if !ok {
		return Relocation{}, domain.Violation(op, "unknown destination stage %q", to)
	}
	limit := len(b.stages[dst].CardOrder)
	if from == to {
		limit--
	}
	r := Relocation{CardID: id, FromStage: from, FromIndex: fromIndex, ToStage: to, ToIndex: clamp(toIndex, limit)}
	if err := b.Move(id, from, fromIndex, to, r.ToIndex); err != nil {
		return Relocation{}, err
	}
	return r, nil
}

// AppendInteraction adds in to the end of the card's interaction log and
// returns a copy of the updated card.
func (b *Board) AppendInteraction(id CardID, in domain.Interaction) (Card, error) {
	c, ok := b.cards[id]
	if !ok {
		return Card{}, domain.Violation("append interaction", "unknown card %q", id)
	}
	t, err := domain.ParseInteractionType(string(in.Type))
	if err != nil {
		return Card{}, err
	}
	in.Type = t
	if err := in.Validate(); err != nil {
		return Card{}, err
	}
	if in.Timestamp.IsZero() {
		in.Timestamp = b.now()
	}
	c.Interactions = append(c.Interactions, in)
	return c.clone(), nil
}

// Locate returns the stage and index currently holding id.
func (b *Board) Locate(id CardID) (StageID, int, bool) {
	if _, ok := b.cards[id]; !ok {
		return "", 0, false
	}
	for _, s := range b.stages {
		for i, cid := range s.CardOrder {
			if cid == id {
				return s.ID, i, true
			}
		}
	}
	return "", 0, false
}

// Card returns a copy of the card with the given id.
func (b *Board) Card(id CardID) (Card, bool) {
	c, ok := b.cards[id]
	if !ok {
		return Card{}, false
	}
	return c.clone(), true
}

// Count returns the number of cards in stage id, or -1 for an unknown stage.
func (b *Board) Count(id StageID) int {
	i, ok := b.index[id]
	if !ok {
		return -1
	}
	return len(b.stages[i].CardOrder)
}

// Stages returns copies of the stages in board order.
func (b *Board) Stages() []Stage {
	out := make([]Stage, len(b.stages))
	for i, s := range b.stages {
		out[i] = Stage{ID: s.ID, Title: s.Title, CardOrder: append([]CardID(nil), s.CardOrder...)}
	}
	return out
}

// Placements lists the position of every card in the given stages, or in
// all stages when none are named.
func (b *Board) Placements(stages ...StageID) []Placement {
	want := make(map[StageID]bool, len(stages))
	for _, s := range stages {
		want[s] = true
	}
	var out []Placement
	for _, s := range b.stages {
		if len(want) > 0 && !want[s.ID] {
			continue
		}
		for i, id := range s.CardOrder {
			out = append(out, Placement{CardID: id, Stage: s.ID, Position: i})
		}
	}
	return out
}

// StageView is a stage resolved for display.
type StageView struct {
	ID    StageID `json:"id"`
	Title string  `json:"title"`
	Count int     `json:"count"`
	Label string  `json:"label"`
	Cards []Card  `json:"cards"`
}

// View is a read-only snapshot of the board.
type View struct {
	Stages []StageView `json:"stages"`
}

// View resolves every stage's cards in display order.
func (b *Board) View() View {
	v := View{Stages: make([]StageView, len(b.stages))}
	for i, s := range b.stages {
		cards := make([]Card, len(s.CardOrder))
		for j, id := range s.CardOrder {
			cards[j] = b.cards[id].clone()
		}
		v.Stages[i] = StageView{ID: s.ID, Title: s.Title, Count: s.Count(), Label: s.Label(), Cards: cards}
	}
	return v
}

func clamp(i, max int) int {
	if i < 0 {
		return 0
	}
	if i > max {
		return max
	}
	return i
}

func removeAt(order []CardID, i int) []CardID {
	out := make([]CardID, 0, len(order)-1)
	out = append(out, order[:i]...)
	return append(out, order[i+1:]...)
}

func insertAt(order []CardID, i int, id CardID) []CardID {
	out := make([]CardID, 0, len(order)+1)
	out = append(out, order[:i]...)
	out = append(out, id)
	return append(out, order[i:]...)
}
