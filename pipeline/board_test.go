package pipeline

import (
	"math/rand"
	"sort"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"bizdesk/domain"
)

func cards(ids ...CardID) []Card {
	out := make([]Card, len(ids))
	for i, id := range ids {
		out[i] = Card{ID: id, Name: "client " + string(id)}
	}
	return out
}

func mustBoard(t *testing.T, seed Seed, opts ...Option) *Board {
	t.Helper()
	b, err := New(seed, opts...)
	if err != nil {
		t.Fatalf("new board: %v", err)
	}
	return b
}

func orders(b *Board) map[StageID][]CardID {
	out := make(map[StageID][]CardID)
	for _, s := range b.Stages() {
		out[s.ID] = s.CardOrder
	}
	return out
}

func TestMoveReordersWithinStage(t *testing.T) {
	b := mustBoard(t, Seed{
		Stages: []Stage{{ID: "A", CardOrder: []CardID{"c1", "c2", "c3"}}},
		Cards:  cards("c1", "c2", "c3"),
	})

	if err := b.Move("c1", "A", 0, "A", 2); err != nil {
		t.Fatalf("move: %v", err)
	}

	want := map[StageID][]CardID{"A": {"c2", "c3", "c1"}}
	if diff := cmp.Diff(want, orders(b)); diff != "" {
		t.Fatalf("unexpected order (-want +got):\n%s", diff)
	}
}

func TestMoveAcrossStages(t *testing.T) {
	b := mustBoard(t, Seed{
		Stages: []Stage{
			{ID: "A", CardOrder: []CardID{"c1", "c2"}},
			{ID: "B", CardOrder: []CardID{"c3"}},
		},
		Cards: cards("c1", "c2", "c3"),
	})

	if err := b.Move("c1", "A", 0, "B", 1); err != nil {
		t.Fatalf("move: %v", err)
	}

	want := map[StageID][]CardID{"A": {"c2"}, "B": {"c3", "c1"}}
	if diff := cmp.Diff(want, orders(b)); diff != "" {
		t.Fatalf("unexpected order (-want +got):\n%s", diff)
	}
	if got := b.Count("A"); got != 1 {
		t.Fatalf("expected A count 1, got %d", got)
	}
	if got := b.Count("B"); got != 2 {
		t.Fatalf("expected B count 2, got %d", got)
	}
}

func TestMoveSameIndexIsNoop(t *testing.T) {
	b := mustBoard(t, Seed{
		Stages: []Stage{
			{ID: "A", CardOrder: []CardID{"c1", "c2"}},
			{ID: "B"},
		},
		Cards: cards("c1", "c2"),
	})
	before := b.View()

	if err := b.Move("c2", "A", 1, "A", 1); err != nil {
		t.Fatalf("no-op move returned error: %v", err)
	}

	if diff := cmp.Diff(before, b.View()); diff != "" {
		t.Fatalf("board changed on no-op (-before +after):\n%s", diff)
	}
}

func TestMoveClampsDestinationIndex(t *testing.T) {
	tests := []struct {
		name    string
		toStage StageID
		toIndex int
		want    map[StageID][]CardID
	}{
		{"past end of same stage", "A", 99, map[StageID][]CardID{"A": {"c2", "c1"}, "B": {"c3"}}},
		{"negative same stage", "A", -4, map[StageID][]CardID{"A": {"c1", "c2"}, "B": {"c3"}}},
		{"past end of other stage", "B", 7, map[StageID][]CardID{"A": {"c2"}, "B": {"c3", "c1"}}},
		{"negative other stage", "B", -1, map[StageID][]CardID{"A": {"c2"}, "B": {"c1", "c3"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := mustBoard(t, Seed{
				Stages: []Stage{
					{ID: "A", CardOrder: []CardID{"c1", "c2"}},
					{ID: "B", CardOrder: []CardID{"c3"}},
				},
				Cards: cards("c1", "c2", "c3"),
			})
			if err := b.Move("c1", "A", 0, tt.toStage, tt.toIndex); err != nil {
				t.Fatalf("move: %v", err)
			}
			if diff := cmp.Diff(tt.want, orders(b)); diff != "" {
				t.Fatalf("unexpected order (-want +got):\n%s", diff)
			}
		})
	}
}

func TestMoveRejectsInconsistentSource(t *testing.T) {
	seed := Seed{
		Stages: []Stage{
			{ID: "A", CardOrder: []CardID{"c1", "c2"}},
			{ID: "B", CardOrder: []CardID{"c3"}},
		},
		Cards: cards("c1", "c2", "c3"),
	}
	tests := []struct {
		name      string
		id        CardID
		from      StageID
		fromIndex int
		to        StageID
	}{
		{"card elsewhere", "c3", "A", 0, "B"},
		{"index out of range", "c1", "A", 5, "B"},
		{"negative index", "c1", "A", -1, "B"},
		{"unknown source", "c1", "Z", 0, "B"},
		{"unknown destination", "c1", "A", 0, "Z"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := mustBoard(t, seed)
			before := b.View()
			err := b.Move(tt.id, tt.from, tt.fromIndex, tt.to, 0)
			if !domain.IsViolation(err) {
				t.Fatalf("expected contract violation, got %v", err)
			}
			if diff := cmp.Diff(before, b.View()); diff != "" {
				t.Fatalf("board changed after rejected move:\n%s", diff)
			}
		})
	}
}

func TestMoveCardResolvesSource(t *testing.T) {
	b := mustBoard(t, Seed{
		Stages: []Stage{
			{ID: "A", CardOrder: []CardID{"c1", "c2"}},
			{ID: "B", CardOrder: []CardID{"c3"}},
		},
		Cards: cards("c1", "c2", "c3"),
	})

	r, err := b.MoveCard("c2", "B", 10)
	if err != nil {
		t.Fatalf("move card: %v", err)
	}
	want := Relocation{CardID: "c2", FromStage: "A", FromIndex: 1, ToStage: "B", ToIndex: 1}
	if diff := cmp.Diff(want, r); diff != "" {
		t.Fatalf("unexpected relocation (-want +got):\n%s", diff)
	}
	stage, idx, ok := b.Locate("c2")
	if !ok || stage != "B" || idx != 1 {
		t.Fatalf("expected c2 at B[1], got %s[%d] ok=%v", stage, idx, ok)
	}

	r, err = b.MoveCard("c3", "B", 5)
	if err != nil {
		t.Fatalf("move card within stage: %v", err)
	}
	if r.ToIndex != 1 {
		t.Fatalf("expected clamp to last index 1, got %d", r.ToIndex)
	}

	if _, err := b.MoveCard("nope", "A", 0); !domain.IsViolation(err) {
		t.Fatalf("expected violation for unknown card, got %v", err)
	}
	if _, err := b.MoveCard("c1", "Z", 0); !domain.IsViolation(err) {
		t.Fatalf("expected violation for unknown stage, got %v", err)
	}
}

func TestMovesPreservePartition(t *testing.T) {
	ids := []CardID{"c1", "c2", "c3", "c4", "c5", "c6", "c7"}
	stages := []StageID{"A", "B", "C", "D"}
	b := mustBoard(t, Seed{
		Stages: []Stage{
			{ID: "A", CardOrder: []CardID{"c1", "c2", "c3"}},
			{ID: "B", CardOrder: []CardID{"c4"}},
			{ID: "C", CardOrder: []CardID{"c5", "c6", "c7"}},
			{ID: "D"},
		},
		Cards: cards(ids...),
	})

	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 500; i++ {
		id := ids[rng.Intn(len(ids))]
		to := stages[rng.Intn(len(stages))]
		if _, err := b.MoveCard(id, to, rng.Intn(8)-2); err != nil {
			t.Fatalf("move %d: %v", i, err)
		}

		var seen []CardID
		total := 0
		for _, s := range b.Stages() {
			seen = append(seen, s.CardOrder...)
			total += b.Count(s.ID)
		}
		if total != len(ids) {
			t.Fatalf("move %d: expected %d cards, counted %d", i, len(ids), total)
		}
		sort.Slice(seen, func(a, c int) bool { return seen[a] < seen[c] })
		if diff := cmp.Diff(ids, seen); diff != "" {
			t.Fatalf("move %d: partition broken (-want +got):\n%s", i, diff)
		}
	}
}

func TestNewRejectsBrokenPartition(t *testing.T) {
	tests := []struct {
		name string
		seed Seed
	}{
		{"no stages", Seed{}},
		{"duplicate stage", Seed{Stages: []Stage{{ID: "A"}, {ID: "A"}}}},
		{"card in two stages", Seed{
			Stages: []Stage{{ID: "A", CardOrder: []CardID{"c1"}}, {ID: "B", CardOrder: []CardID{"c1"}}},
			Cards:  cards("c1"),
		}},
		{"card twice in one stage", Seed{
			Stages: []Stage{{ID: "A", CardOrder: []CardID{"c1", "c1"}}},
			Cards:  cards("c1"),
		}},
		{"unplaced card", Seed{Stages: []Stage{{ID: "A"}}, Cards: cards("c1")}},
		{"unknown card", Seed{Stages: []Stage{{ID: "A", CardOrder: []CardID{"c9"}}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(tt.seed); !domain.IsValidation(err) {
				t.Fatalf("expected validation error, got %v", err)
			}
		})
	}
}

func TestAppendInteraction(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	b := mustBoard(t, Seed{
		Stages: []Stage{{ID: "A", CardOrder: []CardID{"c1"}}},
		Cards:  cards("c1"),
	}, WithClock(func() time.Time { return now }))

	card, err := b.AppendInteraction("c1", domain.Interaction{Type: "call", Content: "intro call"})
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	card, err = b.AppendInteraction("c1", domain.Interaction{Type: "whatsapp", Content: "follow up"})
	if err != nil {
		t.Fatalf("append: %v", err)
	}

	want := []domain.Interaction{
		{Type: domain.InteractionCall, Timestamp: now, Content: "intro call"},
		{Type: domain.InteractionMessaging, Timestamp: now, Content: "follow up"},
	}
	if diff := cmp.Diff(want, card.Interactions); diff != "" {
		t.Fatalf("unexpected interactions (-want +got):\n%s", diff)
	}

	card.Interactions[0].Content = "mutated"
	stored, _ := b.Card("c1")
	if stored.Interactions[0].Content != "intro call" {
		t.Fatal("returned card aliases board state")
	}
}

func TestAppendInteractionRejectsBadInput(t *testing.T) {
	b := mustBoard(t, Seed{
		Stages: []Stage{{ID: "A", CardOrder: []CardID{"c1"}}},
		Cards:  cards("c1"),
	})

	if _, err := b.AppendInteraction("c1", domain.Interaction{Type: "call", Content: "   "}); !domain.IsValidation(err) {
		t.Fatalf("expected validation error for blank content, got %v", err)
	}
	if _, err := b.AppendInteraction("c1", domain.Interaction{Type: "fax", Content: "hi"}); !domain.IsValidation(err) {
		t.Fatalf("expected validation error for unknown type, got %v", err)
	}
	if _, err := b.AppendInteraction("c9", domain.Interaction{Type: "call", Content: "hi"}); !domain.IsViolation(err) {
		t.Fatalf("expected violation for unknown card, got %v", err)
	}
	if card, _ := b.Card("c1"); len(card.Interactions) != 0 {
		t.Fatalf("expected no interactions recorded, got %d", len(card.Interactions))
	}
}

func TestViewLabelsAndPlacements(t *testing.T) {
	b := mustBoard(t, Seed{
		Stages: []Stage{
			{ID: "A", Title: "Lead", CardOrder: []CardID{"c1"}},
			{ID: "B", Title: "Won", CardOrder: []CardID{"c2", "c3"}},
			{ID: "C", Title: "Lost"},
		},
		Cards: cards("c1", "c2", "c3"),
	})

	v := b.View()
	labels := []string{v.Stages[0].Label, v.Stages[1].Label, v.Stages[2].Label}
	if diff := cmp.Diff([]string{"1 client", "2 clients", "0 clients"}, labels); diff != "" {
		t.Fatalf("unexpected labels (-want +got):\n%s", diff)
	}

	want := []Placement{{CardID: "c2", Stage: "B", Position: 0}, {CardID: "c3", Stage: "B", Position: 1}}
	if diff := cmp.Diff(want, b.Placements("B")); diff != "" {
		t.Fatalf("unexpected placements (-want +got):\n%s", diff)
	}
	if got := len(b.Placements()); got != 3 {
		t.Fatalf("expected 3 placements, got %d", got)
	}
	if got := b.Count("Z"); got != -1 {
		t.Fatalf("expected -1 for unknown stage, got %d", got)
	}
}
