package namenode

import (
	"context"
	"strings"

	"distfs/internal/dfserrors"
	"distfs/internal/metadata"
	"distfs/internal/store"
)

// Mkdir creates path, optionally creating missing parents when
// createParents is true (CLI's "T" argument). Without it, a missing
// parent fails NotParent. Creating root fails AlreadyExists.
func (t *Tree) Mkdir(ctx context.Context, actor string, groups []string, path metadata.Path, createParents bool) ([]store.Record, error) {
	if path.IsRoot() {
		return nil, dfserrors.New(dfserrors.AlreadyExists, "root directory always exists")
	}

	var batch []store.Record
	dir, err := t.loadDir(ctx, RootID)
	if err != nil {
		return nil, err
	}

	for i, comp := range path {
		if !metadata.Check(actor, groups, dir.Owner, dir.Group, dir.Perm, metadata.WantExecute) {
			return nil, dfserrors.New(dfserrors.AccessDenied, "no execute permission on %q", dir.Name)
		}
		childID := findChildDir(dir, comp)
		last := i == len(path)-1

		if childID != "" {
			if last {
				return nil, dfserrors.New(dfserrors.AlreadyExists, "%q already exists", path)
			}
			dir, err = t.loadDir(ctx, childID)
			if err != nil {
				return nil, err
			}
			continue
		}

		// Missing component.
		if !last && !createParents {
			return nil, dfserrors.New(dfserrors.NotParent, "parent %q does not exist", strings.Join(path[:i+1], "/"))
		}
		if !metadata.Check(actor, groups, dir.Owner, dir.Group, dir.Perm, metadata.WantWriteExec) {
			return nil, dfserrors.New(dfserrors.AccessDenied, "no write permission on %q", dir.Name)
		}

		newDir := &metadata.Directory{
			ID:        newID(),
			Name:      comp,
			ParentID:  dir.ID,
			CreatedAt: t.Now(),
			Owner:     actor,
			Group:     primaryGroup(actor, groups),
			Perm:      metadata.Perm{Owner: 7, Group: 5, Others: 5},
		}
		batch = append(batch,
			store.Record{Op: store.OpInsert, Collection: CollFS, Payload: dirToDoc(newDir)},
			store.Record{
				Op:         store.OpUpdateOne,
				Collection: CollFS,
				Selector:   store.Doc{"id": dir.ID},
				Payload:    store.Doc{"dirs": append(append([]string(nil), dir.Dirs...), nameIDEntry(comp, newDir.ID))},
			},
		)
		dir.Dirs = append(dir.Dirs, nameIDEntry(comp, newDir.ID))
		dir = newDir
	}
	return batch, nil
}

// Touch creates an empty file at path. The parent must already exist.
func (t *Tree) Touch(ctx context.Context, actor string, groups []string, path metadata.Path) (*metadata.File, []store.Record, error) {
	if path.IsRoot() {
		return nil, nil, dfserrors.New(dfserrors.RootDirectory, "cannot touch root")
	}
	parent, err := t.Walk(ctx, actor, groups, path, metadata.WantWriteExec)
	if err != nil {
		return nil, nil, err
	}
	if findChildFile(parent, path.Base()) != "" || findChildDir(parent, path.Base()) != "" {
		return nil, nil, dfserrors.New(dfserrors.AlreadyExists, "%q already exists", path)
	}

	f := metadata.NewFile(newID(), path.Base(), parent.ID, actor, primaryGroup(actor, groups),
		metadata.Perm{Owner: 6, Group: 4, Others: 4}, t.Now())

	batch := []store.Record{
		{Op: store.OpInsert, Collection: CollFS, Payload: fileToDoc(f)},
		{
			Op:         store.OpUpdateOne,
			Collection: CollFS,
			Selector:   store.Doc{"id": parent.ID},
			Payload:    store.Doc{"files": append(append([]string(nil), parent.Files...), nameIDEntry(f.Name, f.ID))},
		},
	}
	return f, batch, nil
}

// Ls lists the children of a directory, or returns the single file node
// when path names a file.
func (t *Tree) Ls(ctx context.Context, actor string, groups []string, path metadata.Path) (dir *metadata.Directory, file *metadata.File, err error) {
	if path.IsRoot() {
		d, err := t.loadDir(ctx, RootID)
		return d, nil, err
	}
	parent, err := t.Walk(ctx, actor, groups, path, metadata.WantReadExec)
	if err != nil {
		return nil, nil, err
	}
	if id := findChildDir(parent, path.Base()); id != "" {
		d, err := t.loadDir(ctx, id)
		return d, nil, err
	}
	if id := findChildFile(parent, path.Base()); id != "" {
		f, err := t.loadFile(ctx, id)
		return nil, f, err
	}
	return nil, nil, dfserrors.New(dfserrors.NotFound, "no such file or directory %q", path)
}

// Rm removes a file, or (with recursive=true) a directory and everything
// under it. rm on a non-empty directory without recursive fails NotEmpty;
// rm on root always fails RootDirectory, even for root the user.
func (t *Tree) Rm(ctx context.Context, actor string, groups []string, path metadata.Path, recursive bool) ([]store.Record, error) {
	if path.IsRoot() {
		return nil, dfserrors.New(dfserrors.RootDirectory, "cannot remove root")
	}
	parent, err := t.Walk(ctx, actor, groups, path, metadata.WantWriteExec)
	if err != nil {
		return nil, err
	}

	if id := findChildFile(parent, path.Base()); id != "" {
		f, err := t.loadFile(ctx, id)
		if err != nil {
			return nil, err
		}
		if !metadata.Check(actor, groups, f.Owner, f.Group, f.Perm, metadata.WantWrite) {
			return nil, dfserrors.New(dfserrors.AccessDenied, "no write permission on %q", path)
		}
		return t.detachAndDelete(parent, path.Base(), id, false), nil
	}

	id := findChildDir(parent, path.Base())
	if id == "" {
		return nil, dfserrors.New(dfserrors.NotFound, "no such file or directory %q", path)
	}
	dir, err := t.loadDir(ctx, id)
	if err != nil {
		return nil, err
	}
	if !metadata.Check(actor, groups, dir.Owner, dir.Group, dir.Perm, metadata.WantWriteExec) {
		return nil, dfserrors.New(dfserrors.AccessDenied, "no write+execute permission on %q", path)
	}
	if !recursive && (len(dir.Files) > 0 || len(dir.Dirs) > 0) {
		return nil, dfserrors.New(dfserrors.NotEmpty, "%q is not empty", path)
	}

	var batch []store.Record
	if recursive {
		descendants, err := t.collectDescendants(ctx, actor, groups, dir)
		if err != nil {
			return nil, err
		}
		for _, desc := range descendants {
			batch = append(batch, store.Record{Op: store.OpDeleteOne, Collection: CollFS, Selector: store.Doc{"id": desc}})
		}
	}
	batch = append(batch, t.detachAndDelete(parent, path.Base(), id, true)...)
	return batch, nil
}

// collectDescendants walks dir and every subdirectory, re-checking
// write+execute permission on each one independently (spec: a single
// denied descendant fails the whole operation with
// AccessDeniedAtLeastOne).
func (t *Tree) collectDescendants(ctx context.Context, actor string, groups []string, dir *metadata.Directory) ([]string, error) {
	var ids []string
	for _, entry := range dir.Files {
		_, id := splitNameID(entry)
		ids = append(ids, id)
	}
	for _, entry := range dir.Dirs {
		_, id := splitNameID(entry)
		child, err := t.loadDir(ctx, id)
		if err != nil {
			return nil, err
		}
		if !metadata.Check(actor, groups, child.Owner, child.Group, child.Perm, metadata.WantWriteExec) {
			return nil, dfserrors.New(dfserrors.AccessDeniedAtLeastOne, "access denied on descendant %q", child.Name)
		}
		sub, err := t.collectDescendants(ctx, actor, groups, child)
		if err != nil {
			return nil, err
		}
		ids = append(ids, sub...)
		ids = append(ids, id)
	}
	return ids, nil
}

func (t *Tree) detachAndDelete(parent *metadata.Directory, name, id string, isDir bool) []store.Record {
	entry := nameIDEntry(name, id)
	var newFiles, newDirs []string
	if isDir {
		newDirs = removeEntry(parent.Dirs, entry)
		newFiles = append([]string(nil), parent.Files...)
	} else {
		newFiles = removeEntry(parent.Files, entry)
		newDirs = append([]string(nil), parent.Dirs...)
	}
	return []store.Record{
		{Op: store.OpDeleteOne, Collection: CollFS, Selector: store.Doc{"id": id}},
		{
			Op:         store.OpUpdateOne,
			Collection: CollFS,
			Selector:   store.Doc{"id": parent.ID},
			Payload:    store.Doc{"files": newFiles, "dirs": newDirs},
		},
	}
}

func removeEntry(list []string, entry string) []string {
	out := make([]string, 0, len(list))
	for _, e := range list {
		if e != entry {
			out = append(out, e)
		}
	}
	return out
}

// ApplyPlacement records size and chunk layout on an already-created
// file node (the placement algorithm must run after Touch so that
// chunk names can be prefixed with the file's real, store-assigned ID)
// and returns the record that persists it.
func ApplyPlacement(f *metadata.File, size int64, placements []Placement) store.Record {
	f.Size = size
	for _, p := range placements {
		f.Chunks[p.Primary] = append(f.Chunks[p.Primary], p.Chunk)
		f.ChunksBkp[p.Chunk] = p.Primary
		f.Replicas[p.Chunk] = append([]string(nil), p.Secondaries...)
		for _, sec := range p.Secondaries {
			f.ReplicasBkp[sec] = append(f.ReplicasBkp[sec], p.Chunk)
		}
	}
	return store.Record{Op: store.OpUpdateOne, Collection: CollFS, Selector: store.Doc{"id": f.ID}, Payload: fileToDoc(f)}
}

// Cp creates a new file node at dst whose chunks live on the same SNs as
// src's, under fresh chunk names sharing dst's new file ID as prefix
// (spec section 4.1's cp semantics). It returns the batch and the set of
// SN identifiers the client must instruct to duplicate the underlying
// bytes.
func (t *Tree) Cp(ctx context.Context, actor string, groups []string, src, dst metadata.Path) (newFile *metadata.File, involvedSNs []string, batch []store.Record, err error) {
	srcFile, err := t.LookupFile(ctx, actor, groups, src)
	if err != nil {
		return nil, nil, nil, err
	}
	if !metadata.Check(actor, groups, srcFile.Owner, srcFile.Group, srcFile.Perm, metadata.WantRead) {
		return nil, nil, nil, dfserrors.New(dfserrors.AccessDenied, "no read permission on %q", src)
	}

	dstParent, err := t.Walk(ctx, actor, groups, dst, metadata.WantWriteExec)
	if err != nil {
		return nil, nil, nil, err
	}
	if findChildFile(dstParent, dst.Base()) != "" || findChildDir(dstParent, dst.Base()) != "" {
		return nil, nil, nil, dfserrors.New(dfserrors.AlreadyExists, "%q already exists", dst)
	}

	newFile = metadata.NewFile(newID(), dst.Base(), dstParent.ID, actor, primaryGroup(actor, groups), srcFile.Perm, t.Now())
	newFile.Size = srcFile.Size

	seen := map[string]bool{}
	for sn, chunks := range srcFile.Chunks {
		for _, chunkName := range chunks {
			_, seq, serr := metadata.SplitChunkName(chunkName)
			if serr != nil {
				return nil, nil, nil, serr
			}
			newChunk := metadata.ChunkName(newFile.ID, seq)
			newFile.Chunks[sn] = append(newFile.Chunks[sn], newChunk)
			newFile.ChunksBkp[newChunk] = sn
			if !seen[sn] {
				seen[sn] = true
				involvedSNs = append(involvedSNs, sn)
			}
			for _, sec := range srcFile.Replicas[chunkName] {
				newFile.Replicas[newChunk] = append(newFile.Replicas[newChunk], sec)
				newFile.ReplicasBkp[sec] = append(newFile.ReplicasBkp[sec], newChunk)
				if !seen[sec] {
					seen[sec] = true
					involvedSNs = append(involvedSNs, sec)
				}
			}
		}
	}

	batch = []store.Record{
		{Op: store.OpInsert, Collection: CollFS, Payload: fileToDoc(newFile)},
		{
			Op:         store.OpUpdateOne,
			Collection: CollFS,
			Selector:   store.Doc{"id": dstParent.ID},
			Payload:    store.Doc{"files": append(append([]string(nil), dstParent.Files...), nameIDEntry(newFile.Name, newFile.ID))},
		},
	}
	return newFile, involvedSNs, batch, nil
}

// Mv renames/moves a file or directory. Moving a directory into its own
// subtree fails ItselfSubdir.
func (t *Tree) Mv(ctx context.Context, actor string, groups []string, src, dst metadata.Path) ([]store.Record, error) {
	if src.IsRoot() {
		return nil, dfserrors.New(dfserrors.RootDirectory, "cannot move root")
	}
	if src.HasPrefix(dst) {
		return nil, dfserrors.New(dfserrors.ItselfSubdir, "cannot move %q into its own subtree %q", src, dst)
	}

	srcParent, err := t.Walk(ctx, actor, groups, src, metadata.WantWriteExec)
	if err != nil {
		return nil, err
	}
	dstParent, err := t.Walk(ctx, actor, groups, dst, metadata.WantWriteExec)
	if err != nil {
		return nil, err
	}
	if findChildFile(dstParent, dst.Base()) != "" || findChildDir(dstParent, dst.Base()) != "" {
		return nil, dfserrors.New(dfserrors.AlreadyExists, "%q already exists", dst)
	}

	isDir := false
	id := findChildFile(srcParent, src.Base())
	if id == "" {
		id = findChildDir(srcParent, src.Base())
		isDir = true
	}
	if id == "" {
		return nil, dfserrors.New(dfserrors.NotFound, "no such file or directory %q", src)
	}

	batch := []store.Record{
		{Op: store.OpUpdateOne, Collection: CollFS, Selector: store.Doc{"id": id}, Payload: store.Doc{"name": dst.Base(), "parent_id": dstParent.ID}},
	}
	srcEntry := nameIDEntry(src.Base(), id)
	dstEntry := nameIDEntry(dst.Base(), id)
	if isDir {
		batch = append(batch,
			store.Record{Op: store.OpUpdateOne, Collection: CollFS, Selector: store.Doc{"id": srcParent.ID}, Payload: store.Doc{"dirs": removeEntry(srcParent.Dirs, srcEntry)}},
			store.Record{Op: store.OpUpdateOne, Collection: CollFS, Selector: store.Doc{"id": dstParent.ID}, Payload: store.Doc{"dirs": append(append([]string(nil), dstParent.Dirs...), dstEntry)}},
		)
	} else {
		batch = append(batch,
			store.Record{Op: store.OpUpdateOne, Collection: CollFS, Selector: store.Doc{"id": srcParent.ID}, Payload: store.Doc{"files": removeEntry(srcParent.Files, srcEntry)}},
			store.Record{Op: store.OpUpdateOne, Collection: CollFS, Selector: store.Doc{"id": dstParent.ID}, Payload: store.Doc{"files": append(append([]string(nil), dstParent.Files...), dstEntry)}},
		)
	}
	return batch, nil
}

// Count returns the number of files and the number of directories under
// path. When recursive is false and path is a directory, only its
// direct children are counted.
func (t *Tree) Count(ctx context.Context, actor string, groups []string, path metadata.Path, recursive bool) (files, dirs int, err error) {
	dir, file, err := t.Ls(ctx, actor, groups, path)
	if err != nil {
		return 0, 0, err
	}
	if file != nil {
		return 1, 0, nil
	}
	return t.countDir(ctx, actor, groups, dir, recursive)
}

func (t *Tree) countDir(ctx context.Context, actor string, groups []string, dir *metadata.Directory, recursive bool) (files, dirs int, err error) {
	files = len(dir.Files)
	dirs = len(dir.Dirs)
	if !recursive {
		return files, dirs, nil
	}
	for _, entry := range dir.Dirs {
		_, id := splitNameID(entry)
		child, err := t.loadDir(ctx, id)
		if err != nil {
			return 0, 0, err
		}
		if !metadata.Check(actor, groups, child.Owner, child.Group, child.Perm, metadata.WantReadExec) {
			return 0, 0, dfserrors.New(dfserrors.AccessDeniedAtLeastOne, "access denied on descendant %q", child.Name)
		}
		cf, cd, err := t.countDir(ctx, actor, groups, child, true)
		if err != nil {
			return 0, 0, err
		}
		files += cf
		dirs += cd
	}
	return files, dirs, nil
}

// Du returns the total byte size of path: the file's own size, or the
// recursive sum of every file under a directory.
func (t *Tree) Du(ctx context.Context, actor string, groups []string, path metadata.Path) (int64, error) {
	dir, file, err := t.Ls(ctx, actor, groups, path)
	if err != nil {
		return 0, err
	}
	if file != nil {
		return file.Size, nil
	}
	return t.duDir(ctx, actor, groups, dir)
}

func (t *Tree) duDir(ctx context.Context, actor string, groups []string, dir *metadata.Directory) (int64, error) {
	var total int64
	for _, entry := range dir.Files {
		_, id := splitNameID(entry)
		f, err := t.loadFile(ctx, id)
		if err != nil {
			return 0, err
		}
		total += f.Size
	}
	for _, entry := range dir.Dirs {
		_, id := splitNameID(entry)
		child, err := t.loadDir(ctx, id)
		if err != nil {
			return 0, err
		}
		if !metadata.Check(actor, groups, child.Owner, child.Group, child.Perm, metadata.WantReadExec) {
			return 0, dfserrors.New(dfserrors.AccessDeniedAtLeastOne, "access denied on descendant %q", child.Name)
		}
		sub, err := t.duDir(ctx, actor, groups, child)
		if err != nil {
			return 0, err
		}
		total += sub
	}
	return total, nil
}

// gateOwnerOrRoot is shared plumbing for the three ownership-mutating
// verbs, which share the same "owner-or-root" gate (spec's permission
// table marks their resource-column requirement as "—").
func (t *Tree) gateOwnerOrRoot(actor string, owner string) error {
	if actor == "root" || actor == owner {
		return nil
	}
	return dfserrors.New(dfserrors.AccessDenied, "only the owner or root may change ownership or mode")
}

// Chown changes a file or directory's owner.
func (t *Tree) Chown(ctx context.Context, actor string, groups []string, path metadata.Path, newOwner string) ([]store.Record, error) {
	return t.chownLike(ctx, actor, groups, path, store.Doc{"owner": newOwner})
}

// Chgrp changes a file or directory's group.
func (t *Tree) Chgrp(ctx context.Context, actor string, groups []string, path metadata.Path, newGroup string) ([]store.Record, error) {
	return t.chownLike(ctx, actor, groups, path, store.Doc{"group": newGroup})
}

// Chmod changes a file or directory's permission triple from a 3-digit
// octal string.
func (t *Tree) Chmod(ctx context.Context, actor string, groups []string, path metadata.Path, mode string) ([]store.Record, error) {
	if len(mode) != 3 {
		return nil, dfserrors.New(dfserrors.InvalidMod, "mode must be exactly 3 octal digits, got %q", mode)
	}
	var digits [3]uint8
	for i := 0; i < 3; i++ {
		v, ok := metadata.ParseOctalDigit(mode[i])
		if !ok {
			return nil, dfserrors.New(dfserrors.InvalidMod, "invalid octal digit %q in mode %q", string(mode[i]), mode)
		}
		digits[i] = v
	}
	return t.chownLike(ctx, actor, groups, path, store.Doc{
		"perm_owner": int(digits[0]), "perm_group": int(digits[1]), "perm_other": int(digits[2]),
	})
}

func (t *Tree) chownLike(ctx context.Context, actor string, groups []string, path metadata.Path, payload store.Doc) ([]store.Record, error) {
	parent, err := t.Walk(ctx, actor, groups, path, metadata.WantReadExec)
	if err != nil {
		return nil, err
	}
	var id, owner string
	if cid := findChildFile(parent, path.Base()); cid != "" {
		f, err := t.loadFile(ctx, cid)
		if err != nil {
			return nil, err
		}
		id, owner = cid, f.Owner
	} else if cid := findChildDir(parent, path.Base()); cid != "" {
		d, err := t.loadDir(ctx, cid)
		if err != nil {
			return nil, err
		}
		id, owner = cid, d.Owner
	} else {
		return nil, dfserrors.New(dfserrors.NotFound, "no such file or directory %q", path)
	}
	if err := t.gateOwnerOrRoot(actor, owner); err != nil {
		return nil, err
	}
	return []store.Record{{Op: store.OpUpdateOne, Collection: CollFS, Selector: store.Doc{"id": id}, Payload: payload}}, nil
}

func primaryGroup(actor string, groups []string) string {
	for _, g := range groups {
		if g == actor {
			return g
		}
	}
	if len(groups) > 0 {
		return groups[0]
	}
	return actor
}
