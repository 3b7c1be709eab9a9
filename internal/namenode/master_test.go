package namenode

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"distfs/internal/config"
	"distfs/internal/metadata"
	"distfs/internal/store"
)

func newTestMaster(t *testing.T, followers []string) *Master {
	t.Helper()
	tr := newTestTree(t)
	admin := NewAdmin(tr.Store)
	super := NewSupervisor(nil)
	for _, sn := range []string{"A", "B", "C"} {
		super.Heartbeat(sn)
	}
	cfg := &config.Config{MaxChunkSize: 4, ReplicaSet: 2, DataNodes: []string{"A", "B", "C"}}
	fanout := NewFanout(followers, nil)
	return NewMaster(tr, admin, fanout, super, cfg, nil)
}

func TestMasterMkfsIdempotent(t *testing.T) {
	m := newTestMaster(t, nil)
	if err := m.Mkfs(context.Background()); err != nil {
		t.Fatalf("Mkfs: %v", err)
	}
}

func TestMasterPutFileAssignsPlacementAndPersists(t *testing.T) {
	m := newTestMaster(t, nil)
	plan, err := m.PutFile(context.Background(), "root", nil, metadata.ParsePath("/data.bin"), 10)
	if err != nil {
		t.Fatalf("PutFile: %v", err)
	}
	if plan.File.Size != 10 {
		t.Errorf("file size = %d, want 10", plan.File.Size)
	}
	if len(plan.Placements) != 3 {
		t.Fatalf("got %d placements, want 3 (ceil(10/4))", len(plan.Placements))
	}

	got, err := m.GetFile(context.Background(), "root", nil, metadata.ParsePath("/data.bin"))
	if err != nil {
		t.Fatalf("GetFile: %v", err)
	}
	if len(got.ChunksBkp) != 3 {
		t.Errorf("persisted file has %d chunks, want 3", len(got.ChunksBkp))
	}
}

func TestMasterPutFileRefusesWhenUnderReplicated(t *testing.T) {
	m := newTestMaster(t, nil)
	// Only one SN alive; ReplicaSet is 2.
	m.Super = NewSupervisor(nil)
	m.Super.Heartbeat("A")

	if _, err := m.PutFile(context.Background(), "root", nil, metadata.ParsePath("/x.bin"), 10); err == nil {
		t.Fatal("expected placement refusal with insufficient live SNs")
	}
	// The file must not have been left behind half-created.
	if _, err := m.GetFile(context.Background(), "root", nil, metadata.ParsePath("/x.bin")); err == nil {
		t.Fatal("expected file to not exist after a refused placement")
	}
}

func TestMasterFanoutReachesFollower(t *testing.T) {
	var applied []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		buf, _ := io.ReadAll(r.Body)
		applied = buf
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	m := newTestMaster(t, []string{srv.URL})
	if err := m.Mkdir(context.Background(), "root", nil, metadata.ParsePath("/home"), false); err != nil {
		t.Fatalf("Mkdir: %v", err)
	}
	if len(applied) == 0 {
		t.Fatal("expected fanout to post a batch to the follower")
	}
}

func TestMasterUserAdminRequiresRoot(t *testing.T) {
	m := newTestMaster(t, nil)
	batch, err := m.Admin.UserAdd(context.Background(), "alice", "hunter2")
	if err != nil {
		t.Fatalf("seed UserAdd: %v", err)
	}
	store.Apply(context.Background(), m.Tree.Store, batch)

	if err := m.UserAdd(context.Background(), "alice", "bob", "pw"); err == nil {
		t.Fatal("expected non-root UserAdd to be denied")
	}
	if err := m.UserAdd(context.Background(), "root", "bob", "pw"); err != nil {
		t.Fatalf("root UserAdd: %v", err)
	}
}
