package namenode

import (
	"context"
	"testing"
	"time"

	"distfs/internal/dfserrors"
	"distfs/internal/metadata"
	"distfs/internal/store"
)

func newTestTree(t *testing.T) *Tree {
	t.Helper()
	tr := NewTree(store.NewMemory())
	tr.Now = func() time.Time { return time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC) }
	batch, err := tr.EnsureRoot(context.Background())
	if err != nil {
		t.Fatalf("EnsureRoot: %v", err)
	}
	if err := store.Apply(context.Background(), tr.Store, batch); err != nil {
		t.Fatalf("apply root: %v", err)
	}
	return tr
}

func mustMkdir(t *testing.T, tr *Tree, actor string, groups []string, path string, createParents bool) {
	t.Helper()
	batch, err := tr.Mkdir(context.Background(), actor, groups, metadata.ParsePath(path), createParents)
	if err != nil {
		t.Fatalf("Mkdir(%q): %v", path, err)
	}
	if err := store.Apply(context.Background(), tr.Store, batch); err != nil {
		t.Fatalf("apply mkdir batch: %v", err)
	}
}

func TestEnsureRootIdempotent(t *testing.T) {
	tr := newTestTree(t)
	batch, err := tr.EnsureRoot(context.Background())
	if err != nil {
		t.Fatalf("EnsureRoot second call: %v", err)
	}
	if batch != nil {
		t.Fatalf("expected nil batch on already-initialized root, got %v", batch)
	}
}

func TestMkdirAndLookup(t *testing.T) {
	tr := newTestTree(t)
	mustMkdir(t, tr, "root", nil, "/home", false)
	mustMkdir(t, tr, "root", nil, "/home/alice", false)

	dir, err := tr.LookupDir(context.Background(), "root", nil, metadata.ParsePath("/home/alice"))
	if err != nil {
		t.Fatalf("LookupDir: %v", err)
	}
	if dir.Name != "alice" {
		t.Errorf("got name %q, want alice", dir.Name)
	}
}

func TestMkdirMissingParentFailsWithoutCreateParents(t *testing.T) {
	tr := newTestTree(t)
	_, err := tr.Mkdir(context.Background(), "root", nil, metadata.ParsePath("/a/b"), false)
	if !dfserrors.Is(err, dfserrors.NotParent) {
		t.Fatalf("got %v, want NotParent", err)
	}
}

func TestMkdirCreateParents(t *testing.T) {
	tr := newTestTree(t)
	mustMkdir(t, tr, "root", nil, "/a/b/c", true)
	if _, err := tr.LookupDir(context.Background(), "root", nil, metadata.ParsePath("/a/b/c")); err != nil {
		t.Fatalf("LookupDir after createParents: %v", err)
	}
}

func TestMkdirAlreadyExists(t *testing.T) {
	tr := newTestTree(t)
	mustMkdir(t, tr, "root", nil, "/home", false)
	_, err := tr.Mkdir(context.Background(), "root", nil, metadata.ParsePath("/home"), false)
	if !dfserrors.Is(err, dfserrors.AlreadyExists) {
		t.Fatalf("got %v, want AlreadyExists", err)
	}
}

func TestWalkDeniesWithoutExecuteBit(t *testing.T) {
	tr := newTestTree(t)
	mustMkdir(t, tr, "root", nil, "/home", false)
	mustMkdir(t, tr, "root", nil, "/home/alice", false)
	chownBatch, chownErr := tr.Chown(context.Background(), "root", nil, metadata.ParsePath("/home/alice"), "alice")
	if chownErr != nil {
		t.Fatalf("Chown: %v", chownErr)
	}
	if err := store.Apply(context.Background(), tr.Store, chownBatch); err != nil {
		t.Fatalf("apply chown: %v", err)
	}
	mustMkdir(t, tr, "alice", []string{"alice"}, "/home/alice/secret", false)

	// Lock alice's directory down to owner-only, no execute for others,
	// matching the spec's literal 0700-vs-bob example.
	lockBatch := []store.Record{{Op: store.OpUpdateOne, Collection: CollFS, Selector: store.Doc{"name": "alice", "owner": "alice"}, Payload: store.Doc{"perm_owner": 7, "perm_group": 0, "perm_other": 0}}}
	if err := store.Apply(context.Background(), tr.Store, lockBatch); err != nil {
		t.Fatalf("apply lockdown: %v", err)
	}

	_, err := tr.LookupDir(context.Background(), "bob", []string{"bob"}, metadata.ParsePath("/home/alice/secret"))
	if !dfserrors.Is(err, dfserrors.AccessDenied) {
		t.Fatalf("got %v, want AccessDenied", err)
	}
}

func TestLookupFileNotFound(t *testing.T) {
	tr := newTestTree(t)
	_, err := tr.LookupFile(context.Background(), "root", nil, metadata.ParsePath("/nope"))
	if !dfserrors.Is(err, dfserrors.NotFound) {
		t.Fatalf("got %v, want NotFound", err)
	}
}
