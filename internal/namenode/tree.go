package namenode

import (
	"context"
	"time"

	"github.com/google/uuid"

	"distfs/internal/dfserrors"
	"distfs/internal/metadata"
	"distfs/internal/store"
)

// RootID is the fixed identifier of the root directory. Using a constant
// ID rather than querying for "the document with a null parent" keeps
// path resolution a simple chain of ID lookups.
const RootID = "root"

// Tree resolves paths against a document store and builds the mutation
// batches spec section 4.1 requires every operation to produce. It does
// not talk to followers; Master owns fanout.
type Tree struct {
	Store store.Store
	Now   func() time.Time
}

// NewTree wraps s with the default wall-clock Now.
func NewTree(s store.Store) *Tree {
	return &Tree{Store: s, Now: func() time.Time { return time.Now().UTC() }}
}

// EnsureRoot creates the root directory if it doesn't already exist
// (mkfs), owned by root:root with 0755.
func (t *Tree) EnsureRoot(ctx context.Context) ([]store.Record, error) {
	_, found, err := t.Store.FindOne(ctx, CollFS, store.Doc{"id": RootID})
	if err != nil {
		return nil, err
	}
	if found {
		return nil, nil
	}
	root := &metadata.Directory{
		ID:        RootID,
		Name:      "/",
		CreatedAt: t.Now(),
		Owner:     "root",
		Group:     "root",
		Perm:      metadata.Perm{Owner: 7, Group: 5, Others: 5},
	}
	return []store.Record{{Op: store.OpInsert, Collection: CollFS, Payload: dirToDoc(root)}}, nil
}

// loadDir fetches a directory document by ID.
func (t *Tree) loadDir(ctx context.Context, id string) (*metadata.Directory, error) {
	doc, found, err := t.Store.FindOne(ctx, CollFS, store.Doc{"id": id})
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, dfserrors.New(dfserrors.NotFound, "directory %q not found", id)
	}
	if doc["kind"] != string(metadata.KindDirectory) {
		return nil, dfserrors.New(dfserrors.NotDirectory, "%q is not a directory", id)
	}
	return docToDir(doc), nil
}

func (t *Tree) loadFile(ctx context.Context, id string) (*metadata.File, error) {
	doc, found, err := t.Store.FindOne(ctx, CollFS, store.Doc{"id": id})
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, dfserrors.New(dfserrors.NotFound, "file %q not found", id)
	}
	return docToFile(doc), nil
}

// Walk resolves path from root, requiring execute-equivalent permission
// on every ancestor directory (spec section 4.1 step 1). It returns the
// parent directory and, if present, the child entry name's kind so
// callers can decide NotFound vs proceeding. want is the permission bits
// required on the parent; actor/groups identify the requester.
func (t *Tree) Walk(ctx context.Context, actor string, groups []string, path metadata.Path, want uint8) (*metadata.Directory, error) {
	dir, err := t.loadDir(ctx, RootID)
	if err != nil {
		return nil, err
	}
	// Walk ancestor directories (all path components except the last).
	for _, comp := range path.Parent() {
		if !metadata.Check(actor, groups, dir.Owner, dir.Group, dir.Perm, metadata.WantExecute) {
			return nil, dfserrors.New(dfserrors.AccessDenied, "no execute permission on %q", dir.Name)
		}
		childID := findChildDir(dir, comp)
		if childID == "" {
			return nil, dfserrors.New(dfserrors.NotFound, "no such directory %q", comp)
		}
		dir, err = t.loadDir(ctx, childID)
		if err != nil {
			return nil, err
		}
	}
	if !metadata.Check(actor, groups, dir.Owner, dir.Group, dir.Perm, metadata.WantExecute) {
		return nil, dfserrors.New(dfserrors.AccessDenied, "no execute permission on %q", dir.Name)
	}
	if want != 0 && !metadata.Check(actor, groups, dir.Owner, dir.Group, dir.Perm, want) {
		return nil, dfserrors.New(dfserrors.AccessDenied, "insufficient permission on parent %q", dir.Name)
	}
	return dir, nil
}

// LookupDir resolves an absolute path to its Directory, or NotFound.
func (t *Tree) LookupDir(ctx context.Context, actor string, groups []string, path metadata.Path) (*metadata.Directory, error) {
	if path.IsRoot() {
		return t.loadDir(ctx, RootID)
	}
	parent, err := t.Walk(ctx, actor, groups, path, metadata.WantExecute)
	if err != nil {
		return nil, err
	}
	id := findChildDir(parent, path.Base())
	if id == "" {
		return nil, dfserrors.New(dfserrors.NotFound, "no such directory %q", path)
	}
	return t.loadDir(ctx, id)
}

// LookupFile resolves an absolute path to its File, or NotFound.
func (t *Tree) LookupFile(ctx context.Context, actor string, groups []string, path metadata.Path) (*metadata.File, error) {
	parent, err := t.Walk(ctx, actor, groups, path, metadata.WantExecute)
	if err != nil {
		return nil, err
	}
	id := findChildFile(parent, path.Base())
	if id == "" {
		return nil, dfserrors.New(dfserrors.NotFound, "no such file %q", path)
	}
	return t.loadFile(ctx, id)
}

// findChildDir and findChildFile look up a child by name within a
// directory's child-entry lists. Each entry is written as "name:id" by
// this package (see nameIDEntry) so a lookup by name never needs a
// second store round trip to learn the child's identifier.
func findChildDir(parent *metadata.Directory, name string) string {
	for _, entry := range parent.Dirs {
		if n, id := splitNameID(entry); n == name {
			return id
		}
	}
	return ""
}

func findChildFile(parent *metadata.Directory, name string) string {
	for _, entry := range parent.Files {
		if n, id := splitNameID(entry); n == name {
			return id
		}
	}
	return ""
}

func splitNameID(entry string) (name, id string) {
	for i := 0; i < len(entry); i++ {
		if entry[i] == ':' {
			return entry[:i], entry[i+1:]
		}
	}
	return entry, ""
}

func nameIDEntry(name, id string) string { return name + ":" + id }

func newID() string { return uuid.New().String() }
