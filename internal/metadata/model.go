// Package metadata defines the filesystem tree, chunk placement maps,
// users, groups, and trash entries that the master name node owns
// authoritatively and followers hold as eventually-applied copies.
//
// Nothing here talks to a transport or a store; this package is the pure
// data model of spec section 3. Persistence lives in internal/store,
// protocol lives in internal/namenode.
package metadata

import "time"

// NodeKind distinguishes a Directory from a File within the fs collection.
type NodeKind string

const (
	KindDirectory NodeKind = "dir"
	KindFile      NodeKind = "file"
)

// Perm is an owner/group/others permission triple, each 0-7.
type Perm struct {
	Owner  uint8 `json:"owner"`
	Group  uint8 `json:"group"`
	Others uint8 `json:"others"`
}

// Directory is a filesystem directory node. The root directory has
// ParentID == "" and Name == "/".
type Directory struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	ParentID  string    `json:"parent_id"` // "" for root
	Files     []string  `json:"files"`
	Dirs      []string  `json:"dirs"`
	CreatedAt time.Time `json:"created_at"`
	Owner     string    `json:"owner"`
	Group     string    `json:"group"`
	Perm      Perm      `json:"perm"`
}

// File is a filesystem file node. It extends the directory-node concept
// with size, chunk placement, and replica placement.
//
// Chunks maps a storage-node identifier to the ordered list of chunk
// names for which that SN is primary. ChunksBkp is its exact inverse:
// chunk name -> primary SN. Replicas maps chunk name -> ordered list of
// secondary SNs; ReplicasBkp is the transpose, SN -> list of chunk names
// for which it is secondary.
type File struct {
	ID          string              `json:"id"`
	Name        string              `json:"name"`
	ParentID    string              `json:"parent_id"`
	Size        int64               `json:"size"`
	UpdatedAt   time.Time           `json:"updated_at"`
	CreatedAt   time.Time           `json:"created_at"`
	Owner       string              `json:"owner"`
	Group       string              `json:"group"`
	Perm        Perm                `json:"perm"`
	Chunks      map[string][]string `json:"chunks"`       // SN id -> ordered chunk names (primary)
	ChunksBkp   map[string]string   `json:"chunks_bkp"`   // chunk name -> SN id (primary)
	Replicas    map[string][]string `json:"replicas"`     // chunk name -> ordered secondary SNs
	ReplicasBkp map[string][]string `json:"replicas_bkp"` // SN id -> chunk names (secondary)
}

// NewFile returns a File with all maps initialized empty.
func NewFile(id, name, parentID, owner, group string, perm Perm, now time.Time) *File {
	return &File{
		ID:          id,
		Name:        name,
		ParentID:    parentID,
		Owner:       owner,
		Group:       group,
		Perm:        perm,
		CreatedAt:   now,
		UpdatedAt:   now,
		Chunks:      map[string][]string{},
		ChunksBkp:   map[string]string{},
		Replicas:    map[string][]string{},
		ReplicasBkp: map[string][]string{},
	}
}

// User holds login credentials and group membership.
type User struct {
	Name     string   `json:"name"`
	PassHash string   `json:"pass_hash"`
	Groups   []string `json:"groups"`
}

// Group holds group membership.
type Group struct {
	Name  string   `json:"name"`
	Users []string `json:"users"`
}

// TrashEntry is a (storage-node, chunk) pair scheduled for deletion the
// next time the storage node returns after a failure.
type TrashEntry struct {
	SN    string `json:"sn"`
	Chunk string `json:"chunk"`
}

// EncodeSNKey transforms a storage-node identifier for use as a document
// map key, because the underlying document store may reject keys
// containing '.' or ':'. Only keys are transformed; values keep the
// original form. See spec section 3, "Encoding rule for SN identifiers".
func EncodeSNKey(sn string) string {
	out := make([]byte, 0, len(sn)+8)
	for i := 0; i < len(sn); i++ {
		switch sn[i] {
		case '.':
			out = append(out, "[dot]"...)
		case ':':
			out = append(out, "[colon]"...)
		default:
			out = append(out, sn[i])
		}
	}
	return string(out)
}

// DecodeSNKey reverses EncodeSNKey.
func DecodeSNKey(key string) string {
	out := make([]byte, 0, len(key))
	for i := 0; i < len(key); {
		switch {
		case hasPrefixAt(key, i, "[dot]"):
			out = append(out, '.')
			i += len("[dot]")
		case hasPrefixAt(key, i, "[colon]"):
			out = append(out, ':')
			i += len("[colon]")
		default:
			out = append(out, key[i])
			i++
		}
	}
	return string(out)
}

func hasPrefixAt(s string, i int, prefix string) bool {
	if i+len(prefix) > len(s) {
		return false
	}
	return s[i:i+len(prefix)] == prefix
}
