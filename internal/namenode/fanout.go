package namenode

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/hashicorp/go-multierror"

	"distfs/internal/logging"
	"distfs/internal/store"
	"distfs/internal/wire"
)

// Fanout pushes an applied mutation batch to every follower, best effort
// (spec section 4.2: "sequential, unretried, each failure logged and
// skipped"). A fanout failure never blocks or fails the client's
// original operation; it is purely observability.
type Fanout struct {
	Followers  []string // base URLs, e.g. "http://nn2:9000"
	HTTPClient *http.Client
	Log        *slog.Logger
}

func NewFanout(followers []string, log *slog.Logger) *Fanout {
	return &Fanout{
		Followers:  followers,
		HTTPClient: &http.Client{Timeout: 5 * time.Second},
		Log:        logging.Default(log).With("component", "fanout"),
	}
}

// Push sends records to every follower in turn, continuing past
// individual failures. It returns a combined error purely for the
// caller's logs; callers must not treat a non-nil return as grounds to
// retry or fail the original request.
func (f *Fanout) Push(ctx context.Context, records []store.Record) error {
	if len(records) == 0 {
		return nil
	}
	data, err := wire.EncodeBatch(records)
	if err != nil {
		return fmt.Errorf("encode batch for fanout: %w", err)
	}
	compressed := wire.Compress(data)

	var errs *multierror.Error
	for _, base := range f.Followers {
		if err := f.pushOne(ctx, base, compressed); err != nil {
			f.Log.Warn("fanout to follower failed", "follower", base, "error", err)
			errs = multierror.Append(errs, fmt.Errorf("%s: %w", base, err))
			continue
		}
		f.Log.Debug("fanout to follower applied", "follower", base, "records", len(records))
	}
	return errs.ErrorOrNil()
}

func (f *Fanout) pushOne(ctx context.Context, base string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, base+"/_s/apply", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-distfs-batch+zstd")
	resp, err := f.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("follower returned status %d", resp.StatusCode)
	}
	return nil
}
