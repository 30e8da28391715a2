package store

import (
	"context"
	"testing"
)

func TestMemorySelectFilterOrderLimit(t *testing.T) {
	ms := NewMemoryStore()
	ms.Seed("coins", []Row{
		{"coin": "PEELY", "market": "season", "price_now": 100.0},
		{"coin": "BRUTUS", "market": "season", "price_now": 250.0},
		{"coin": "MIDAS", "market": "historic", "price_now": 400.0},
		{"coin": "SKYE", "market": "season", "price_now": 50.0},
	})

	rows, err := ms.Select(context.Background(), "coins", []string{"coin", "price_now"}, Query{
		Eq:      []Cond{Eq("market", "season")},
		OrderBy: "price_now",
		Desc:    true,
	})
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("expected 3 season rows, got %d", len(rows))
	}
	if rows[0].String("coin") != "BRUTUS" || rows[2].String("coin") != "SKYE" {
		t.Fatalf("wrong order: %v", rows)
	}
	if _, ok := rows[0]["market"]; ok {
		t.Fatalf("projection should drop unselected columns")
	}

	limited, err := ms.Select(context.Background(), "coins", nil, Query{
		Eq:    []Cond{Eq("market", "season")},
		Limit: 1,
	})
	if err != nil {
		t.Fatalf("select limit: %v", err)
	}
	if len(limited) != 1 {
		t.Fatalf("expected 1 row, got %d", len(limited))
	}
}

func TestMemoryInsertAssignsIDAndTimestamp(t *testing.T) {
	ms := NewMemoryStore()
	row, err := ms.Insert(context.Background(), "trades", Row{"coin": "PEELY"})
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	if row.String("id") == "" {
		t.Fatalf("expected server-assigned id")
	}
	if row.String("created_at") == "" {
		t.Fatalf("expected server-assigned created_at")
	}
}

func TestMemoryUpsertMergesOnConflict(t *testing.T) {
	ms := NewMemoryStore()
	ctx := context.Background()

	if err := ms.Upsert(ctx, "holdings", Row{
		"player_id": "p1", "market": "season", "coin": "PEELY", "qty": 10.0,
	}, "player_id", "market", "coin"); err != nil {
		t.Fatalf("first upsert: %v", err)
	}
	if err := ms.Upsert(ctx, "holdings", Row{
		"player_id": "p1", "market": "season", "coin": "PEELY", "qty": 4.0,
	}, "player_id", "market", "coin"); err != nil {
		t.Fatalf("second upsert: %v", err)
	}
	if err := ms.Upsert(ctx, "holdings", Row{
		"player_id": "p1", "market": "season", "coin": "SKYE", "qty": 2.0,
	}, "player_id", "market", "coin"); err != nil {
		t.Fatalf("third upsert: %v", err)
	}

	rows, err := ms.Select(ctx, "holdings", nil, Query{Eq: []Cond{Eq("player_id", "p1")}})
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 holdings, got %d", len(rows))
	}
	for _, row := range rows {
		if row.String("coin") == "PEELY" && row.Float("qty") != 4.0 {
			t.Fatalf("conflict row not merged: %v", row)
		}
	}
}

func TestMemoryPatchUpdatesMatches(t *testing.T) {
	ms := NewMemoryStore()
	ctx := context.Background()
	ms.Seed("room_players", []Row{
		{"id": "p1", "cash": 100000.0},
		{"id": "p2", "cash": 100000.0},
	})

	if err := ms.Patch(ctx, "room_players", Query{Eq: []Cond{Eq("id", "p1")}}, Row{"cash": 98995.0}); err != nil {
		t.Fatalf("patch: %v", err)
	}

	rows, _ := ms.Select(ctx, "room_players", nil, Query{Eq: []Cond{Eq("id", "p1")}})
	if rows[0].Float("cash") != 98995.0 {
		t.Fatalf("patch not applied: %v", rows[0])
	}
	rows, _ = ms.Select(ctx, "room_players", nil, Query{Eq: []Cond{Eq("id", "p2")}})
	if rows[0].Float("cash") != 100000.0 {
		t.Fatalf("patch leaked to other rows: %v", rows[0])
	}
}

func TestMemoryWritesCounter(t *testing.T) {
	ms := NewMemoryStore()
	ctx := context.Background()

	if _, err := ms.Select(ctx, "rooms", nil, Query{}); err != nil {
		t.Fatalf("select: %v", err)
	}
	if ms.Writes() != 0 {
		t.Fatalf("select should not count as a write")
	}
	if _, err := ms.Insert(ctx, "rooms", Row{"room_code": "A"}); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := ms.Patch(ctx, "rooms", Query{}, Row{"room_code": "B"}); err != nil {
		t.Fatalf("patch: %v", err)
	}
	if got := ms.Writes(); got != 2 {
		t.Fatalf("expected 2 writes, got %d", got)
	}
}

func TestRowCoercion(t *testing.T) {
	row := Row{"qty": "12.5", "cash": 100.0, "coin": "PEELY"}
	if row.Float("qty") != 12.5 {
		t.Fatalf("string numeric should coerce, got %v", row.Float("qty"))
	}
	if row.Float("cash") != 100.0 {
		t.Fatalf("float should pass through, got %v", row.Float("cash"))
	}
	if row.Float("missing") != 0 {
		t.Fatalf("missing column should be 0")
	}
	if row.String("cash") != "100" {
		t.Fatalf("numeric to string, got %q", row.String("cash"))
	}
}
