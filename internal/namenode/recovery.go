package namenode

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/go-co-op/gocron/v2"

	"distfs/internal/logging"
	"distfs/internal/metadata"
	"distfs/internal/store"
)

// Recovery runs the disaster-recovery and return-transition sequences of
// spec section 4.3 for a single master name node.
type Recovery struct {
	Tree        *Tree
	Super       *Supervisor
	Fanout      *Fanout
	Configured  []string // SN identifiers in configuration order
	ReplicaSet  int
	RNG         *rand.Rand
	Log         *slog.Logger
	replicateFn func(ctx context.Context, newPrimary string, chunk string, newSecondary string)
	deleteFn    func(ctx context.Context, sn string, chunks []string)
}

func NewRecovery(tree *Tree, super *Supervisor, fanout *Fanout, configured []string, replicaSet int, log *slog.Logger) *Recovery {
	return &Recovery{
		Tree:       tree,
		Super:      super,
		Fanout:     fanout,
		Configured: configured,
		ReplicaSet: replicaSet,
		RNG:        rand.New(rand.NewSource(time.Now().UnixNano())),
		Log:        logging.Default(log).With("component", "recovery"),
	}
}

// SetReplicateFunc installs the callback used to instruct a new primary
// to push a chunk's bytes to a new secondary (step g). Left unset in
// tests that only assert on the metadata rewrite.
func (r *Recovery) SetReplicateFunc(fn func(ctx context.Context, newPrimary, chunk, newSecondary string)) {
	r.replicateFn = fn
}

// SetDeleteFunc installs the callback used to flush a returning SN's
// obsolete replicas off its own disk once its trash entries are
// cleared from metadata. Left unset in tests that only assert on the
// metadata rewrite.
func (r *Recovery) SetDeleteFunc(fn func(ctx context.Context, sn string, chunks []string)) {
	r.deleteFn = fn
}

// OnDead is the Supervisor.RunCountdown callback for SN x: it implements
// the failure transition of spec section 4.3.
func (r *Recovery) OnDead(ctx context.Context, x string) {
	live := r.Super.Live(r.Configured)
	if len(live) < r.ReplicaSet {
		r.Log.Error("insufficient live storage nodes for recovery", "dead", x, "live", len(live), "need", r.ReplicaSet)
		return
	}
	if err := r.recoverOne(ctx, x, live); err != nil {
		r.Log.Error("disaster recovery failed", "dead", x, "error", err)
		return
	}
	r.Super.markRecovered(x)
}

// OnReturn is called periodically (via a gocron job, one per SN) to
// implement the return transition: if x has come back while still
// flagged recovered, flush its trash and clear the flag.
func (r *Recovery) OnReturn(ctx context.Context, x string) {
	if !r.Super.returnEligible(x) {
		return
	}
	if err := r.flushTrash(ctx, x); err != nil {
		r.Log.Error("trash flush failed", "sn", x, "error", err)
		return
	}
	r.Super.clearRecovered(x)
}

func (r *Recovery) recoverOne(ctx context.Context, x string, live []string) error {
	affected, err := r.findAffectedFiles(ctx, x)
	if err != nil {
		return fmt.Errorf("load files affected by %q: %w", x, err)
	}

	type replicateInstr struct {
		newPrimary, chunk, newSecondary string
	}
	var instructions []replicateInstr
	var trashed []metadata.TrashEntry

	for _, f := range affected {
		var batch []store.Record
		changed := false

		for sn, chunks := range f.Chunks {
			if sn != x {
				continue
			}
			for _, c := range chunks {
				secs := f.Replicas[c]
				if len(secs) == 0 {
					r.Log.Error("chunk has no secondary to promote", "chunk", c, "primary", x)
					continue
				}
				newPrimary := secs[0]
				if !r.Super.isLive(newPrimary) {
					r.Log.Warn("candidate primary not live, skipping promotion this round", "chunk", c, "candidate", newPrimary)
					continue
				}
				remaining := append([]string(nil), secs[1:]...)

				f.Chunks[newPrimary] = append(f.Chunks[newPrimary], c)
				f.ChunksBkp[c] = newPrimary
				f.Replicas[c] = remaining
				f.ReplicasBkp[newPrimary] = removeEntry(f.ReplicasBkp[newPrimary], c)

				exclude := map[string]bool{newPrimary: true}
				for _, s := range remaining {
					exclude[s] = true
				}
				newSecondary, err := ChooseNewSecondary(live, exclude, r.RNG)
				if err == nil {
					f.Replicas[c] = append(f.Replicas[c], newSecondary)
					f.ReplicasBkp[newSecondary] = append(f.ReplicasBkp[newSecondary], c)
					instructions = append(instructions, replicateInstr{newPrimary, c, newSecondary})
				} else {
					r.Log.Warn("no candidate secondary available", "chunk", c, "error", err)
				}

				trashed = append(trashed, metadata.TrashEntry{SN: x, Chunk: c})
				changed = true
			}
			delete(f.Chunks, x)
		}

		for c, secs := range f.Replicas {
			if !containsString(secs, x) {
				continue
			}
			remaining := removeEntry(secs, x)
			f.Replicas[c] = remaining
			changed = true

			primary := f.ChunksBkp[c]
			exclude := map[string]bool{primary: true, x: true}
			for _, s := range remaining {
				exclude[s] = true
			}
			newSecondary, err := ChooseNewSecondary(live, exclude, r.RNG)
			if err != nil {
				r.Log.Warn("no candidate secondary available", "chunk", c, "error", err)
				continue
			}
			f.Replicas[c] = append(f.Replicas[c], newSecondary)
			f.ReplicasBkp[newSecondary] = append(f.ReplicasBkp[newSecondary], c)
			instructions = append(instructions, replicateInstr{primary, c, newSecondary})
			trashed = append(trashed, metadata.TrashEntry{SN: x, Chunk: c})
		}
		delete(f.ReplicasBkp, x)

		if changed {
			batch = append(batch, store.Record{Op: store.OpUpdateOne, Collection: CollFS, Selector: store.Doc{"id": f.ID}, Payload: fileToDoc(f)})
			if err := store.Apply(ctx, r.Tree.Store, batch); err != nil {
				return fmt.Errorf("persist recovery rewrite for file %q: %w", f.ID, err)
			}
			if err := r.Fanout.Push(ctx, batch); err != nil {
				r.Log.Warn("fanout of recovery rewrite incomplete", "file", f.ID, "error", err)
			}
		}
	}

	for _, t := range trashed {
		rec := []store.Record{{Op: store.OpInsert, Collection: CollTrash, Payload: trashToDoc(t)}}
		if err := store.Apply(ctx, r.Tree.Store, rec); err != nil {
			r.Log.Error("failed to record trash entry", "sn", t.SN, "chunk", t.Chunk, "error", err)
			continue
		}
		if err := r.Fanout.Push(ctx, rec); err != nil {
			r.Log.Warn("fanout of trash entry incomplete", "error", err)
		}
	}

	if r.replicateFn != nil {
		for _, instr := range instructions {
			r.replicateFn(ctx, instr.newPrimary, instr.chunk, instr.newSecondary)
		}
	}
	return nil
}

func (r *Recovery) findAffectedFiles(ctx context.Context, x string) ([]*metadata.File, error) {
	docs, err := r.Tree.Store.FindMany(ctx, CollFS, store.Doc{})
	if err != nil {
		return nil, err
	}
	var out []*metadata.File
	for _, doc := range docs {
		if doc["kind"] != string(metadata.KindFile) {
			continue
		}
		f := docToFile(doc)
		if len(f.Chunks[x]) > 0 || len(f.ReplicasBkp[x]) > 0 {
			out = append(out, f)
		}
	}
	return out, nil
}

func (r *Recovery) flushTrash(ctx context.Context, x string) error {
	docs, err := r.Tree.Store.FindMany(ctx, CollTrash, store.Doc{"sn": x})
	if err != nil {
		return err
	}
	if len(docs) == 0 {
		return nil
	}
	var batch []store.Record
	chunks := make([]string, 0, len(docs))
	for _, doc := range docs {
		entry := docToTrash(doc)
		chunks = append(chunks, entry.Chunk)
		batch = append(batch, store.Record{Op: store.OpDeleteOne, Collection: CollTrash, Selector: store.Doc{"sn": entry.SN, "chunk": entry.Chunk}})
	}
	if err := store.Apply(ctx, r.Tree.Store, batch); err != nil {
		return err
	}
	if r.deleteFn != nil {
		r.deleteFn(ctx, x, chunks)
	}
	return r.Fanout.Push(ctx, batch)
}

func containsString(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

// ScheduleReturnChecks registers one periodic gocron job per configured
// SN that calls OnReturn, implementing the return-transition's polling
// cadence out of band from the countdown loop itself.
func ScheduleReturnChecks(ctx context.Context, sched gocron.Scheduler, r *Recovery) error {
	for _, sn := range r.Configured {
		sn := sn
		_, err := sched.NewJob(
			gocron.DurationJob(healthyTick*5),
			gocron.NewTask(func() { r.OnReturn(ctx, sn) }),
		)
		if err != nil {
			return fmt.Errorf("schedule return check for %q: %w", sn, err)
		}
	}
	return nil
}
