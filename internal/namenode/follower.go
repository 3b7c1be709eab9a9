package namenode

import (
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"distfs/internal/logging"
	"distfs/internal/store"
	"distfs/internal/wire"
)

// Follower applies mutation batches received from the current master.
// It never runs a permission check; the master already authorized the
// operation before it built the batch, and re-checking against the
// follower's own (possibly lagging) tree would just reject valid
// replication traffic.
type Follower struct {
	Store store.Store
	Log   *slog.Logger
}

func NewFollower(s store.Store, log *slog.Logger) *Follower {
	return &Follower{Store: s, Log: logging.Default(log).With("component", "follower")}
}

// Apply decodes and applies a zstd-compressed, msgpack-encoded mutation
// batch, in order, against the local store.
func (f *Follower) Apply(ctx context.Context, compressed []byte) error {
	data, err := wire.Decompress(compressed)
	if err != nil {
		return fmt.Errorf("decompress batch: %w", err)
	}
	records, err := wire.DecodeBatch(data)
	if err != nil {
		return fmt.Errorf("decode batch: %w", err)
	}
	if err := store.Apply(ctx, f.Store, records); err != nil {
		return fmt.Errorf("apply batch: %w", err)
	}
	f.Log.Debug("applied mutation batch", "records", len(records))
	return nil
}

// ServeHTTP handles the follower-facing "/_s/apply" endpoint a master's
// Fanout posts to.
func (f *Follower) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	body, err := readAll(r.Body, r.Header.Get("Content-Encoding"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := f.Apply(r.Context(), body); err != nil {
		f.Log.Error("failed to apply fanout batch", "error", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func readAll(r io.Reader, encoding string) ([]byte, error) {
	if encoding == "gzip" {
		gz, err := gzip.NewReader(r)
		if err != nil {
			return nil, err
		}
		defer gz.Close()
		return io.ReadAll(gz)
	}
	return io.ReadAll(r)
}
