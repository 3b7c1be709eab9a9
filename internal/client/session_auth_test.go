package client

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"distfs/internal/auth"
	"distfs/internal/config"
	"distfs/internal/namenode"
	"distfs/internal/store"
)

// newAuthTestCluster wires a single name node with session tokens
// enabled, so the login/authMiddleware path is exercised end to end
// through the same Session the other cluster tests use.
func newAuthTestCluster(t *testing.T) (*httptest.Server, *Session) {
	t.Helper()
	ctx := context.Background()

	nnDelegate := &delegatingHandler{h: http.NotFoundHandler()}
	nnServer := httptest.NewServer(nnDelegate)

	memStore := store.NewMemory()
	tree := namenode.NewTree(memStore)
	batch, err := tree.EnsureRoot(ctx)
	if err != nil {
		t.Fatalf("EnsureRoot: %v", err)
	}
	if err := store.Apply(ctx, memStore, batch); err != nil {
		t.Fatalf("apply root: %v", err)
	}
	admin := namenode.NewAdmin(memStore)
	addBatch, err := admin.UserAdd(ctx, "alice", "hunter2")
	if err != nil {
		t.Fatalf("UserAdd: %v", err)
	}
	if err := store.Apply(ctx, memStore, addBatch); err != nil {
		t.Fatalf("apply useradd: %v", err)
	}

	super := namenode.NewSupervisor(nil)
	fanout := namenode.NewFanout(nil, nil)
	cfg := &config.Config{MaxChunkSize: 1024, ReplicaSet: 1, DataNodes: []string{"sn-a"}}
	master := namenode.NewMaster(tree, admin, fanout, super, cfg, nil)
	follower := namenode.NewFollower(memStore, nil)
	tokens := auth.NewTokenService([]byte("test-secret"), time.Hour)
	nnDelegate.h = namenode.NewServer(master, follower, tokens, nil).Routes()

	sess := NewSession("alice", nil, []string{nnServer.URL}, nil, 4)
	sess.master = nnServer.URL
	return nnServer, sess
}

func TestSessionLoginThenMkdirSucceeds(t *testing.T) {
	nnServer, sess := newAuthTestCluster(t)
	defer nnServer.Close()
	ctx := context.Background()

	if err := sess.Login(ctx, "alice", "hunter2"); err != nil {
		t.Fatalf("Login: %v", err)
	}
	if err := sess.Mkdir(ctx, "/alice-home", false); err != nil {
		t.Fatalf("Mkdir after login: %v", err)
	}
}

func TestSessionMkdirWithoutLoginIsRejected(t *testing.T) {
	nnServer, sess := newAuthTestCluster(t)
	defer nnServer.Close()
	ctx := context.Background()

	if err := sess.Mkdir(ctx, "/no-token", false); err == nil {
		t.Fatal("expected Mkdir without a prior Login to be rejected")
	}
}
