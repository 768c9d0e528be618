package audit

import (
	"context"
	"testing"
)

func TestRecordAndList(t *testing.T) {
	l, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer l.Close()

	ctx := context.Background()
	if err := l.Record(ctx, Entry{Kind: "wallet.unlocked"}); err != nil {
		t.Fatalf("Record: %v", err)
	}
	if err := l.Record(ctx, Entry{
		Kind:           "tool.call",
		IntegrationKey: "github",
		ToolName:       "github_list_issues",
		Status:         "ok",
		LatencyMs:      42.5,
	}); err != nil {
		t.Fatalf("Record: %v", err)
	}

	entries, err := l.List(ctx, 10, 0)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("len(entries) = %d, want 2", len(entries))
	}
	// newest first
	if entries[0].Kind != "tool.call" {
		t.Errorf("entries[0].Kind = %q, want tool.call", entries[0].Kind)
	}
	if entries[0].ID == "" {
		t.Error("expected Record to assign an ID")
	}
	if entries[0].Timestamp.IsZero() {
		t.Error("expected Record to assign a Timestamp")
	}
}

func TestListRespectsLimitAndOffset(t *testing.T) {
	l, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer l.Close()

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		if err := l.Record(ctx, Entry{Kind: "tool.call"}); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}

	entries, err := l.List(ctx, 2, 0)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("len(entries) = %d, want 2", len(entries))
	}
}

func TestListDefaultsLimit(t *testing.T) {
	l, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer l.Close()

	entries, err := l.List(context.Background(), 0, 0)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if entries != nil {
		t.Errorf("expected no entries from empty log, got %d", len(entries))
	}
}
