package namenode

import (
	"distfs/internal/metadata"
	"distfs/internal/store"
)

// Collection names within a name node's document store.
const (
	CollFS     = "fs"
	CollUsers  = "users"
	CollGroups = "groups"
	CollTrash  = "trash"
)

func dirToDoc(d *metadata.Directory) store.Doc {
	var parent any
	if d.ParentID != "" {
		parent = d.ParentID
	}
	return store.Doc{
		"id":         d.ID,
		"kind":       string(metadata.KindDirectory),
		"name":       d.Name,
		"parent_id":  parent,
		"files":      append([]string(nil), d.Files...),
		"dirs":       append([]string(nil), d.Dirs...),
		"created_at": d.CreatedAt.UnixNano(),
		"owner":      d.Owner,
		"group":      d.Group,
		"perm_owner": int(d.Perm.Owner),
		"perm_group": int(d.Perm.Group),
		"perm_other": int(d.Perm.Others),
	}
}

func docToDir(doc store.Doc) *metadata.Directory {
	d := &metadata.Directory{
		ID:   toString(doc["id"]),
		Name: toString(doc["name"]),
		Perm: permFromDoc(doc),
	}
	if pid := doc["parent_id"]; pid != nil {
		d.ParentID = toString(pid)
	}
	d.Files = toStringSlice(doc["files"])
	d.Dirs = toStringSlice(doc["dirs"])
	d.Owner = toString(doc["owner"])
	d.Group = toString(doc["group"])
	d.CreatedAt = unixNanoTime(doc["created_at"])
	return d
}

func fileToDoc(f *metadata.File) store.Doc {
	var parent any
	if f.ParentID != "" {
		parent = f.ParentID
	}
	return store.Doc{
		"id":           f.ID,
		"kind":         string(metadata.KindFile),
		"name":         f.Name,
		"parent_id":    parent,
		"size":         f.Size,
		"updated_at":   f.UpdatedAt.UnixNano(),
		"created_at":   f.CreatedAt.UnixNano(),
		"owner":        f.Owner,
		"group":        f.Group,
		"perm_owner":   int(f.Perm.Owner),
		"perm_group":   int(f.Perm.Group),
		"perm_other":   int(f.Perm.Others),
		"chunks":       encodeSNKeyedMap(f.Chunks),
		"chunks_bkp":   toAnyMap(f.ChunksBkp),
		"replicas":     toAnyMapSlice(f.Replicas),
		"replicas_bkp": encodeSNKeyedMapSlice(f.ReplicasBkp),
	}
}

func docToFile(doc store.Doc) *metadata.File {
	f := &metadata.File{
		ID:   toString(doc["id"]),
		Name: toString(doc["name"]),
		Perm: permFromDoc(doc),
	}
	if pid := doc["parent_id"]; pid != nil {
		f.ParentID = toString(pid)
	}
	f.Owner = toString(doc["owner"])
	f.Group = toString(doc["group"])
	f.Size = toInt64(doc["size"])
	f.UpdatedAt = unixNanoTime(doc["updated_at"])
	f.CreatedAt = unixNanoTime(doc["created_at"])
	f.Chunks = decodeSNKeyedMap(doc["chunks"])
	f.ChunksBkp = fromAnyMapString(doc["chunks_bkp"])
	f.Replicas = fromAnyMapSlice(doc["replicas"])
	f.ReplicasBkp = decodeSNKeyedMapSlice(doc["replicas_bkp"])
	return f
}

func userToDoc(u *metadata.User) store.Doc {
	return store.Doc{
		"name":      u.Name,
		"pass_hash": u.PassHash,
		"groups":    append([]string(nil), u.Groups...),
	}
}

func docToUser(doc store.Doc) *metadata.User {
	return &metadata.User{
		Name:     toString(doc["name"]),
		PassHash: toString(doc["pass_hash"]),
		Groups:   toStringSlice(doc["groups"]),
	}
}

func groupToDoc(g *metadata.Group) store.Doc {
	return store.Doc{"name": g.Name, "users": append([]string(nil), g.Users...)}
}

func docToGroup(doc store.Doc) *metadata.Group {
	return &metadata.Group{Name: toString(doc["name"]), Users: toStringSlice(doc["users"])}
}

func trashToDoc(t metadata.TrashEntry) store.Doc {
	return store.Doc{"sn": t.SN, "chunk": t.Chunk}
}

func docToTrash(doc store.Doc) metadata.TrashEntry {
	return metadata.TrashEntry{SN: toString(doc["sn"]), Chunk: toString(doc["chunk"])}
}

func permFromDoc(doc store.Doc) metadata.Perm {
	return metadata.Perm{
		Owner:  uint8(toInt64(doc["perm_owner"])),
		Group:  uint8(toInt64(doc["perm_group"])),
		Others: uint8(toInt64(doc["perm_other"])),
	}
}

// encodeSNKeyedMap applies the '.'/':' key transform of spec section 3
// to a map keyed by storage-node identifier.
func encodeSNKeyedMap(m map[string][]string) store.Doc {
	out := make(store.Doc, len(m))
	for sn, v := range m {
		out[metadata.EncodeSNKey(sn)] = append([]string(nil), v...)
	}
	return out
}

func decodeSNKeyedMap(v any) map[string][]string {
	raw, ok := v.(map[string]any)
	if !ok {
		if d, ok2 := v.(store.Doc); ok2 {
			raw = map[string]any(d)
		} else {
			return map[string][]string{}
		}
	}
	out := make(map[string][]string, len(raw))
	for k, vv := range raw {
		out[metadata.DecodeSNKey(k)] = toStringSlice(vv)
	}
	return out
}

func encodeSNKeyedMapSlice(m map[string][]string) store.Doc {
	return encodeSNKeyedMap(m)
}

func decodeSNKeyedMapSlice(v any) map[string][]string {
	return decodeSNKeyedMap(v)
}

func toAnyMap(m map[string]string) store.Doc {
	out := make(store.Doc, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func fromAnyMapString(v any) map[string]string {
	raw, ok := v.(map[string]any)
	if !ok {
		if d, ok2 := v.(store.Doc); ok2 {
			raw = map[string]any(d)
		} else {
			return map[string]string{}
		}
	}
	out := make(map[string]string, len(raw))
	for k, vv := range raw {
		out[k] = toString(vv)
	}
	return out
}

func toAnyMapSlice(m map[string][]string) store.Doc {
	out := make(store.Doc, len(m))
	for k, v := range m {
		out[k] = append([]string(nil), v...)
	}
	return out
}

func fromAnyMapSlice(v any) map[string][]string {
	raw, ok := v.(map[string]any)
	if !ok {
		if d, ok2 := v.(store.Doc); ok2 {
			raw = map[string]any(d)
		} else {
			return map[string][]string{}
		}
	}
	out := make(map[string][]string, len(raw))
	for k, vv := range raw {
		out[k] = toStringSlice(vv)
	}
	return out
}
