// Package namenode implements the master/follower metadata replication
// protocol (spec section 4.1, 4.2), the failure-detection and recovery
// loop (spec section 4.3), and the chunk placement algorithm the master
// runs on put_file.
package namenode

import (
	"fmt"
	"math/rand"

	"distfs/internal/metadata"
)

// Placement is the per-chunk outcome of the placement algorithm: one
// primary plus replicaFactor-1 distinct secondaries.
type Placement struct {
	Chunk       string   `json:"chunk"`
	Primary     string   `json:"primary"`
	Secondaries []string `json:"secondaries"`
}

// PlaceFile runs spec section 4.1's placement algorithm for a file of
// the given size: primary is deterministic (round-robin over the live
// SN list in configuration order), secondaries are replicaFactor-1
// distinct SNs sampled uniformly at random from the remaining live set.
//
// live must be in configuration order; it is the set of SNs with a
// positive countdown at the moment of placement. Returns a plain error
// (not one of the client-visible fault kinds; the caller logs it
// critical) when there are fewer live SNs than the replica factor —
// spec's "critical log and refused placement".
func PlaceFile(fileID string, size, chunkSize int64, live []string, replicaFactor int, rng *rand.Rand) ([]Placement, error) {
	if len(live) < replicaFactor {
		return nil, fmt.Errorf("insufficient live storage nodes: have %d, need replica factor %d", len(live), replicaFactor)
	}

	count := metadata.ChunkCount(size, chunkSize)
	out := make([]Placement, count)
	for i := 0; i < count; i++ {
		primary := live[i%len(live)]
		secondaries := sampleSecondaries(live, primary, replicaFactor-1, rng)
		out[i] = Placement{
			Chunk:       metadata.ChunkName(fileID, i),
			Primary:     primary,
			Secondaries: secondaries,
		}
	}
	return out, nil
}

// sampleSecondaries picks n distinct SNs uniformly at random from live,
// excluding exclude. If fewer than n candidates remain, all of them are
// returned; PlaceFile checks len(live) against the replica factor
// before calling this, so that does not happen there.
func sampleSecondaries(live []string, exclude string, n int, rng *rand.Rand) []string {
	candidates := make([]string, 0, len(live)-1)
	for _, sn := range live {
		if sn != exclude {
			candidates = append(candidates, sn)
		}
	}
	rng.Shuffle(len(candidates), func(i, j int) { candidates[i], candidates[j] = candidates[j], candidates[i] })
	if n > len(candidates) {
		n = len(candidates)
	}
	return append([]string(nil), candidates[:n]...)
}

// ChooseNewSecondary picks one new secondary for a chunk during recovery,
// uniformly at random from live SNs excluding the chunk's current primary
// and its remaining secondaries (spec section 4.3 step d).
func ChooseNewSecondary(live []string, exclude map[string]bool, rng *rand.Rand) (string, error) {
	var candidates []string
	for _, sn := range live {
		if !exclude[sn] {
			candidates = append(candidates, sn)
		}
	}
	if len(candidates) == 0 {
		return "", fmt.Errorf("no live storage node available as a replacement secondary")
	}
	return candidates[rng.Intn(len(candidates))], nil
}
