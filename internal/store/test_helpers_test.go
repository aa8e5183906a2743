package store

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/roach88/sqlrest/internal/ir"
	"github.com/roach88/sqlrest/internal/postgrest"
)

// createTestStore creates a new SQLite store with the fixture schema.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(Config{
		Driver:      "sqlite3",
		DSN:         path,
		ApplySchema: true,
		Logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// createTestLead builds a lead record with the required fields set.
func createTestLead(id, name, status string, score ir.Value, metadata ir.Object) ir.Object {
	if metadata == nil {
		metadata = ir.Object{}
	}
	return ir.Object{
		"id":         ir.String(id),
		"tenant_id":  ir.String("t1"),
		"name":       ir.String(name),
		"status":     ir.String(status),
		"score":      score,
		"active":     ir.Bool(true),
		"metadata":   metadata,
		"created_at": ir.String("2024-01-10T09:00:00Z"),
	}
}

// seedLeads inserts the standard lead fixtures.
func seedLeads(t *testing.T, s *Store) {
	t.Helper()
	rows := []ir.Object{
		createTestLead("l1", "Ada", "new", ir.Int(10), ir.Object{
			"tier": ir.String("gold"),
			"tags": ir.Array{ir.String("vip"), ir.String("west")},
		}),
		createTestLead("l2", "Grace", "contacted", ir.MustNumber("12.5"), ir.Object{
			"tier": ir.String("silver"),
			"tags": ir.Array{ir.String("east")},
		}),
		createTestLead("l3", "Linus", "new", ir.Null{}, nil),
	}
	req := postgrest.From("leads").Insert(rows...).Request()
	if _, err := s.Execute(context.Background(), req); err != nil {
		t.Fatalf("seed leads: %v", err)
	}
}
