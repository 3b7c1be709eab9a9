package store

import (
	"context"
	"testing"
)

func testStoreContract(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()

	if err := s.Insert(ctx, "fs", Doc{"id": "1", "name": "root"}); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if err := s.Insert(ctx, "fs", Doc{"id": "2", "name": "alice"}); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	doc, found, err := s.FindOne(ctx, "fs", Doc{"id": "2"})
	if err != nil || !found {
		t.Fatalf("FindOne: found=%v err=%v", found, err)
	}
	if doc["name"] != "alice" {
		t.Fatalf("FindOne returned %v", doc)
	}

	if err := s.UpdateOne(ctx, "fs", Doc{"id": "2"}, Doc{"name": "alice2"}); err != nil {
		t.Fatalf("UpdateOne: %v", err)
	}
	doc, _, _ = s.FindOne(ctx, "fs", Doc{"id": "2"})
	if doc["name"] != "alice2" {
		t.Fatalf("UpdateOne did not persist, got %v", doc)
	}

	if err := s.DeleteOne(ctx, "fs", Doc{"id": "1"}); err != nil {
		t.Fatalf("DeleteOne: %v", err)
	}
	all, err := s.FindMany(ctx, "fs", Doc{})
	if err != nil {
		t.Fatalf("FindMany: %v", err)
	}
	if len(all) != 1 {
		t.Fatalf("expected 1 document after delete, got %d", len(all))
	}

	batch := []Record{
		{Op: OpInsert, Collection: "trash", Payload: Doc{"sn": "A", "chunk": "f_0"}},
		{Op: OpDeleteMany, Collection: "trash", Selector: Doc{"sn": "A"}},
	}
	if err := Apply(ctx, s, batch); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	trash, _ := s.FindMany(ctx, "trash", Doc{})
	if len(trash) != 0 {
		t.Fatalf("expected trash empty after batch apply, got %v", trash)
	}
}

func TestMemoryStore(t *testing.T) {
	testStoreContract(t, NewMemory())
}

func TestSQLiteStore(t *testing.T) {
	dir := t.TempDir()
	s, err := OpenSQLite(dir + "/test.db")
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	defer s.Close()
	testStoreContract(t, s)
}
