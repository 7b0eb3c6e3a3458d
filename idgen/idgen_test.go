package idgen

import (
	"strings"
	"testing"
)

func TestUUIDv7_Format(t *testing.T) {
	id := UUIDv7()()
	// UUID format: 8-4-4-4-12
	parts := strings.Split(id, "-")
	if len(parts) != 5 {
		t.Fatalf("UUIDv7: expected 5 parts, got %d in %q", len(parts), id)
	}
	if len(id) != 36 {
		t.Fatalf("UUIDv7: expected length 36, got %d", len(id))
	}
	if id[14] != '7' {
		t.Fatalf("UUIDv7: version nibble = %q in %q", id[14], id)
	}
}

func TestUUIDv7_Sortable(t *testing.T) {
	// WHAT: Later IDs sort after earlier ones.
	// WHY: Request IDs are used to order log lines and metric rows.
	gen := UUIDv7()
	prev := gen()
	for i := 0; i < 100; i++ {
		next := gen()
		if next <= prev {
			t.Fatalf("not sortable: %q then %q", prev, next)
		}
		prev = next
	}
}

func TestRequestID(t *testing.T) {
	id := RequestID()
	if !strings.HasPrefix(id, "req_") {
		t.Fatalf("RequestID = %q, want req_ prefix", id)
	}
	if len(id) != len("req_")+36 {
		t.Errorf("RequestID = %q, want prefix + UUID", id)
	}
}

func TestDefault_Unique(t *testing.T) {
	seen := make(map[string]struct{}, 1000)
	for i := 0; i < 1000; i++ {
		id := Default()
		if _, ok := seen[id]; ok {
			t.Fatalf("duplicate at iteration %d: %q", i, id)
		}
		seen[id] = struct{}{}
	}
}
