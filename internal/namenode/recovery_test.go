package namenode

import (
	"context"
	"math/rand"
	"testing"

	"distfs/internal/metadata"
	"distfs/internal/store"
)

func TestRecoveryPromotesSecondaryOnFailure(t *testing.T) {
	tr := newTestTree(t)
	ctx := context.Background()

	f := metadata.NewFile("f1", "f1", RootID, "root", "root", metadata.Perm{Owner: 6, Group: 4, Others: 4}, tr.Now())
	f.Size = 4
	f.Chunks["A"] = []string{"f1_0"}
	f.ChunksBkp["f1_0"] = "A"
	f.Replicas["f1_0"] = []string{"B"}
	f.ReplicasBkp["B"] = []string{"f1_0"}
	if err := store.Apply(ctx, tr.Store, []store.Record{{Op: store.OpInsert, Collection: CollFS, Payload: fileToDoc(f)}}); err != nil {
		t.Fatalf("seed file: %v", err)
	}

	super := NewSupervisor(nil)
	for _, sn := range []string{"B", "C", "D"} {
		super.Heartbeat(sn)
	}
	fanout := NewFanout(nil, nil)
	rec := NewRecovery(tr, super, fanout, []string{"A", "B", "C", "D"}, 2, nil)
	rec.RNG = rand.New(rand.NewSource(1))

	if err := rec.recoverOne(ctx, "A", super.Live([]string{"A", "B", "C", "D"})); err != nil {
		t.Fatalf("recoverOne: %v", err)
	}

	doc, found, err := tr.Store.FindOne(ctx, CollFS, store.Doc{"id": "f1"})
	if err != nil || !found {
		t.Fatalf("reload file: found=%v err=%v", found, err)
	}
	got := docToFile(doc)

	if got.ChunksBkp["f1_0"] != "B" {
		t.Fatalf("primary after recovery = %q, want B (first secondary promoted)", got.ChunksBkp["f1_0"])
	}
	if len(got.Chunks["A"]) != 0 {
		t.Fatalf("A should no longer be primary for any chunk, got %v", got.Chunks["A"])
	}
	if containsString(got.Replicas["f1_0"], "A") {
		t.Fatalf("A should be fully removed from replicas, got %v", got.Replicas["f1_0"])
	}
	if len(got.Replicas["f1_0"]) != 1 {
		t.Fatalf("expected exactly one secondary after promotion+refill, got %v", got.Replicas["f1_0"])
	}
}

func TestRecoveryReturnFlushesTrash(t *testing.T) {
	tr := newTestTree(t)
	ctx := context.Background()

	super := NewSupervisor(nil)
	super.Heartbeat("A")
	super.markRecovered("A")

	if err := store.Apply(ctx, tr.Store, []store.Record{{Op: store.OpInsert, Collection: CollTrash, Payload: trashToDoc(metadata.TrashEntry{SN: "A", Chunk: "f1_0"})}}); err != nil {
		t.Fatalf("seed trash: %v", err)
	}

	fanout := NewFanout(nil, nil)
	rec := NewRecovery(tr, super, fanout, []string{"A"}, 1, nil)
	rec.OnReturn(ctx, "A")

	docs, err := tr.Store.FindMany(ctx, CollTrash, store.Doc{"sn": "A"})
	if err != nil {
		t.Fatalf("FindMany: %v", err)
	}
	if len(docs) != 0 {
		t.Fatalf("expected trash flushed, got %d remaining", len(docs))
	}
	if super.returnEligible("A") {
		t.Fatal("expected recovered flag cleared after flush")
	}
}
