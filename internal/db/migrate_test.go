package db

import (
	"strings"
	"testing"
)

func TestLoadMigrations_SortedAndVersioned(t *testing.T) {
	migrations, err := LoadMigrations()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(migrations) < 2 {
		t.Fatalf("expected at least 2 migrations, got %d", len(migrations))
	}

	for i, m := range migrations {
		if m.Version != i+1 {
			t.Errorf("expected migration %d to have version %d, got %d (%s)", i, i+1, m.Version, m.Name)
		}
		if strings.TrimSpace(m.SQL) == "" {
			t.Errorf("migration %s is empty", m.Name)
		}
	}
}

func TestLoadMigrations_QueueKeyIndex(t *testing.T) {
	migrations, err := LoadMigrations()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(migrations[0].SQL, "appointments_queue_key_idx") {
		t.Error("expected first migration to create the queue key unique index")
	}
}
