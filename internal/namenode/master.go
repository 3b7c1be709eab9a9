package namenode

import (
	"context"
	"log/slog"
	"math/rand"
	"time"

	"distfs/internal/config"
	"distfs/internal/dfserrors"
	"distfs/internal/logging"
	"distfs/internal/metadata"
	"distfs/internal/store"
)

// Master is the RPC surface a client talks to. Every mutating method
// follows the same contract: resolve the target path and build the
// mutation batch, apply the batch to the local store, fan it out to
// followers, then return the result. The store is touched only after
// the first step succeeds, so a permission or not-found failure never
// reaches it.
type Master struct {
	Tree   *Tree
	Admin  *Admin
	Fanout *Fanout
	Super  *Supervisor
	Cfg    *config.Config
	RNG    *rand.Rand
	Log    *slog.Logger
}

func NewMaster(tree *Tree, admin *Admin, fanout *Fanout, super *Supervisor, cfg *config.Config, log *slog.Logger) *Master {
	return &Master{
		Tree:   tree,
		Admin:  admin,
		Fanout: fanout,
		Super:  super,
		Cfg:    cfg,
		RNG:    rand.New(rand.NewSource(time.Now().UnixNano())),
		Log:    logging.Default(log).With("component", "master"),
	}
}

// commit applies batch locally then fans it out, the shared tail of
// every mutating verb's four-step contract.
func (m *Master) commit(ctx context.Context, batch []store.Record) error {
	if len(batch) == 0 {
		return nil
	}
	if err := store.Apply(ctx, m.Tree.Store, batch); err != nil {
		return err
	}
	if err := m.Fanout.Push(ctx, batch); err != nil {
		m.Log.Warn("fanout incomplete", "error", err)
	}
	return nil
}

func (m *Master) Mkfs(ctx context.Context) error {
	batch, err := m.Tree.EnsureRoot(ctx)
	if err != nil {
		return err
	}
	return m.commit(ctx, batch)
}

// Status reports the liveness snapshot and mastership state, the root
// user's sole read-only administrative verb beyond the filesystem tree.
type Status struct {
	IsMaster   bool     `json:"is_master"`
	Live       []string `json:"live"`
	Configured []string `json:"configured"`
}

func (m *Master) Status() Status {
	return Status{
		IsMaster:   m.Super.IsMaster(),
		Live:       m.Super.Live(m.Cfg.DataNodes),
		Configured: m.Cfg.DataNodes,
	}
}

func (m *Master) Mkdir(ctx context.Context, actor string, groups []string, path metadata.Path, createParents bool) error {
	batch, err := m.Tree.Mkdir(ctx, actor, groups, path, createParents)
	if err != nil {
		return err
	}
	return m.commit(ctx, batch)
}

func (m *Master) Touch(ctx context.Context, actor string, groups []string, path metadata.Path) (*metadata.File, error) {
	f, batch, err := m.Tree.Touch(ctx, actor, groups, path)
	if err != nil {
		return nil, err
	}
	if err := m.commit(ctx, batch); err != nil {
		return nil, err
	}
	return f, nil
}

func (m *Master) Ls(ctx context.Context, actor string, groups []string, path metadata.Path) (*metadata.Directory, *metadata.File, error) {
	dir, file, err := m.Tree.Ls(ctx, actor, groups, path)
	if err != nil || dir == nil {
		return dir, file, err
	}
	// Child entries are stored as "name:id"; callers see the names only.
	listed := *dir
	listed.Files, listed.Dirs = nil, nil
	for _, e := range dir.Files {
		name, _ := splitNameID(e)
		listed.Files = append(listed.Files, name)
	}
	for _, e := range dir.Dirs {
		name, _ := splitNameID(e)
		listed.Dirs = append(listed.Dirs, name)
	}
	return &listed, nil, nil
}

func (m *Master) Rm(ctx context.Context, actor string, groups []string, path metadata.Path, recursive bool) error {
	batch, err := m.Tree.Rm(ctx, actor, groups, path, recursive)
	if err != nil {
		return err
	}
	return m.commit(ctx, batch)
}

// PutFilePlan is the outcome of requesting to write a new file: the
// chunk placement the client's write-worker pool must execute, and the
// file node the master has already created for it.
type PutFilePlan struct {
	File       *metadata.File `json:"file"`
	Placements []Placement    `json:"placements"`
}

// PutFile resolves path, runs chunk placement over the currently live
// SNs, and persists the resulting file node. The client still has to
// push chunk bytes to the placed SNs; that is out of the master's
// purview (spec section 4.5's worker pool).
func (m *Master) PutFile(ctx context.Context, actor string, groups []string, path metadata.Path, size int64) (*PutFilePlan, error) {
	f, batch, err := m.Tree.Touch(ctx, actor, groups, path)
	if err != nil {
		return nil, err
	}

	live := m.Super.Live(m.Cfg.DataNodes)
	placements, err := PlaceFile(f.ID, size, m.Cfg.MaxChunkSize, live, m.Cfg.ReplicaSet, m.RNG)
	if err != nil {
		return nil, err
	}
	batch = append(batch, ApplyPlacement(f, size, placements))

	if err := m.commit(ctx, batch); err != nil {
		return nil, err
	}
	return &PutFilePlan{File: f, Placements: placements}, nil
}

// GetFile resolves path for reading, returning the file node so the
// caller can build the client's read-worker job list (SN lists per
// chunk, primary first, per spec section 4.5).
func (m *Master) GetFile(ctx context.Context, actor string, groups []string, path metadata.Path) (*metadata.File, error) {
	f, err := m.Tree.LookupFile(ctx, actor, groups, path)
	if err != nil {
		return nil, err
	}
	if !metadata.Check(actor, groups, f.Owner, f.Group, f.Perm, metadata.WantRead) {
		return nil, dfserrors.New(dfserrors.AccessDenied, "no read permission on %q", path)
	}
	return f, nil
}

func (m *Master) Cp(ctx context.Context, actor string, groups []string, src, dst metadata.Path) (*metadata.File, []string, error) {
	f, sns, batch, err := m.Tree.Cp(ctx, actor, groups, src, dst)
	if err != nil {
		return nil, nil, err
	}
	if err := m.commit(ctx, batch); err != nil {
		return nil, nil, err
	}
	return f, sns, nil
}

func (m *Master) Mv(ctx context.Context, actor string, groups []string, src, dst metadata.Path) error {
	batch, err := m.Tree.Mv(ctx, actor, groups, src, dst)
	if err != nil {
		return err
	}
	return m.commit(ctx, batch)
}

func (m *Master) Count(ctx context.Context, actor string, groups []string, path metadata.Path, recursive bool) (files, dirs int, err error) {
	return m.Tree.Count(ctx, actor, groups, path, recursive)
}

func (m *Master) Du(ctx context.Context, actor string, groups []string, path metadata.Path) (int64, error) {
	return m.Tree.Du(ctx, actor, groups, path)
}

func (m *Master) Chown(ctx context.Context, actor string, groups []string, path metadata.Path, newOwner string) error {
	batch, err := m.Tree.Chown(ctx, actor, groups, path, newOwner)
	if err != nil {
		return err
	}
	return m.commit(ctx, batch)
}

func (m *Master) Chgrp(ctx context.Context, actor string, groups []string, path metadata.Path, newGroup string) error {
	batch, err := m.Tree.Chgrp(ctx, actor, groups, path, newGroup)
	if err != nil {
		return err
	}
	return m.commit(ctx, batch)
}

func (m *Master) Chmod(ctx context.Context, actor string, groups []string, path metadata.Path, mode string) error {
	batch, err := m.Tree.Chmod(ctx, actor, groups, path, mode)
	if err != nil {
		return err
	}
	return m.commit(ctx, batch)
}

// requireRoot gates the user/group administration verbs, which spec
// section 4.1's permission table marks resource column "—" and actor
// "root" only.
func requireRoot(actor string) error {
	if actor != "root" {
		return dfserrors.New(dfserrors.AccessDenied, "root required")
	}
	return nil
}

func (m *Master) UserAdd(ctx context.Context, actor, name, password string) error {
	if err := requireRoot(actor); err != nil {
		return err
	}
	batch, err := m.Admin.UserAdd(ctx, name, password)
	if err != nil {
		return err
	}
	return m.commit(ctx, batch)
}

func (m *Master) UserDel(ctx context.Context, actor, name string) error {
	if err := requireRoot(actor); err != nil {
		return err
	}
	batch, err := m.Admin.UserDel(ctx, name)
	if err != nil {
		return err
	}
	return m.commit(ctx, batch)
}

func (m *Master) Passwd(ctx context.Context, actor, target, newPassword string) error {
	if actor != "root" && actor != target {
		return dfserrors.New(dfserrors.AccessDenied, "only the owner or root may change a password")
	}
	batch, err := m.Admin.Passwd(ctx, target, newPassword)
	if err != nil {
		return err
	}
	return m.commit(ctx, batch)
}

func (m *Master) UserMod(ctx context.Context, actor, name, group string, add bool) error {
	if err := requireRoot(actor); err != nil {
		return err
	}
	batch, err := m.Admin.UserMod(ctx, name, group, add)
	if err != nil {
		return err
	}
	return m.commit(ctx, batch)
}

func (m *Master) GroupAdd(ctx context.Context, actor, name string) error {
	if err := requireRoot(actor); err != nil {
		return err
	}
	batch, err := m.Admin.GroupAdd(ctx, name)
	if err != nil {
		return err
	}
	return m.commit(ctx, batch)
}

func (m *Master) GroupDel(ctx context.Context, actor, name string) error {
	if err := requireRoot(actor); err != nil {
		return err
	}
	batch, err := m.Admin.GroupDel(ctx, name)
	if err != nil {
		return err
	}
	return m.commit(ctx, batch)
}
