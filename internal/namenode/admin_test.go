package namenode

import (
	"context"
	"testing"

	"distfs/internal/dfserrors"
	"distfs/internal/store"
)

func newTestAdmin() *Admin {
	return NewAdmin(store.NewMemory())
}

func TestUserAddAuthenticateRoundTrip(t *testing.T) {
	a := newTestAdmin()
	ctx := context.Background()

	batch, err := a.UserAdd(ctx, "alice", "hunter2")
	if err != nil {
		t.Fatalf("UserAdd: %v", err)
	}
	if err := store.Apply(ctx, a.Store, batch); err != nil {
		t.Fatalf("apply: %v", err)
	}

	if _, err := a.Authenticate(ctx, "alice", "hunter2"); err != nil {
		t.Fatalf("Authenticate with correct password: %v", err)
	}
	if _, err := a.Authenticate(ctx, "alice", "wrong"); err == nil {
		t.Fatal("expected Authenticate to fail with wrong password")
	}
}

func TestUserAddDuplicateFails(t *testing.T) {
	a := newTestAdmin()
	ctx := context.Background()
	batch, _ := a.UserAdd(ctx, "alice", "hunter2")
	store.Apply(ctx, a.Store, batch)

	if _, err := a.UserAdd(ctx, "alice", "other"); !dfserrors.Is(err, dfserrors.UserAlreadyExists) {
		t.Fatalf("got %v, want UserAlreadyExists", err)
	}
}

func TestGroupsIncludesMainGroup(t *testing.T) {
	a := newTestAdmin()
	ctx := context.Background()
	batch, _ := a.UserAdd(ctx, "alice", "hunter2")
	store.Apply(ctx, a.Store, batch)

	groups, err := a.Groups(ctx, "alice")
	if err != nil {
		t.Fatalf("Groups: %v", err)
	}
	if len(groups) != 1 || groups[0] != "alice" {
		t.Fatalf("got %v, want [alice]", groups)
	}
}

func TestUserModAddAndRemoveSecondaryGroup(t *testing.T) {
	a := newTestAdmin()
	ctx := context.Background()
	batch, _ := a.UserAdd(ctx, "alice", "hunter2")
	store.Apply(ctx, a.Store, batch)
	gbatch, _ := a.GroupAdd(ctx, "devs")
	store.Apply(ctx, a.Store, gbatch)

	addBatch, err := a.UserMod(ctx, "alice", "devs", true)
	if err != nil {
		t.Fatalf("UserMod add: %v", err)
	}
	store.Apply(ctx, a.Store, addBatch)

	groups, _ := a.Groups(ctx, "alice")
	if !containsString(groups, "devs") {
		t.Fatalf("expected alice in devs, got %v", groups)
	}

	remBatch, err := a.UserMod(ctx, "alice", "devs", false)
	if err != nil {
		t.Fatalf("UserMod remove: %v", err)
	}
	store.Apply(ctx, a.Store, remBatch)
	groups, _ = a.Groups(ctx, "alice")
	if containsString(groups, "devs") {
		t.Fatalf("expected alice removed from devs, got %v", groups)
	}
}

func TestUserModCannotLeaveMainGroup(t *testing.T) {
	a := newTestAdmin()
	ctx := context.Background()
	batch, _ := a.UserAdd(ctx, "alice", "hunter2")
	store.Apply(ctx, a.Store, batch)

	if _, err := a.UserMod(ctx, "alice", "alice", false); !dfserrors.Is(err, dfserrors.MainUserGroup) {
		t.Fatalf("got %v, want MainUserGroup", err)
	}
}

func TestGroupDelRefusesMainGroup(t *testing.T) {
	a := newTestAdmin()
	ctx := context.Background()
	batch, _ := a.UserAdd(ctx, "alice", "hunter2")
	store.Apply(ctx, a.Store, batch)

	if _, err := a.GroupDel(ctx, "alice"); !dfserrors.Is(err, dfserrors.MainUserGroup) {
		t.Fatalf("got %v, want MainUserGroup", err)
	}
}
