package storagenode

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"distfs/internal/logging"
)

func decodeJSONBody(r *http.Request, v any) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v)
}

// MasterDiscovery tracks which configured name node this storage node
// currently believes is master, and drives the heartbeat sender that
// keeps that belief current (spec section 4.5: SNs, not NNs, are the
// source of truth clients poll for quorum).
//
// NameNodes is addressed in configured priority order: it starts at the
// lowest index and moves to the next one only after repeated send
// failures; it does not move back when an earlier one becomes reachable
// again.
type MasterDiscovery struct {
	mu        sync.RWMutex
	nameNodes []string // base URLs, in configured priority order
	current   int      // index into nameNodes of the believed master

	dialer *websocket.Dialer
	log    *slog.Logger
}

func NewMasterDiscovery(nameNodes []string, log *slog.Logger) *MasterDiscovery {
	return &MasterDiscovery{
		nameNodes: nameNodes,
		dialer:    websocket.DefaultDialer,
		log:       logging.Default(log).With("component", "storagenode.discovery"),
	}
}

// CurrentMaster returns the base URL of the name node this SN currently
// addresses heartbeats to, the value get_master_namenode reports.
func (d *MasterDiscovery) CurrentMaster() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if len(d.nameNodes) == 0 {
		return ""
	}
	return d.nameNodes[d.current]
}

func (d *MasterDiscovery) advance() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.nameNodes) == 0 {
		return
	}
	d.current = (d.current + 1) % len(d.nameNodes)
}

const (
	heartbeatInterval    = 2 * time.Second
	maxSendFailures      = 5
	failoverBackoff      = 5 * time.Second
)

// RunHeartbeatSender sends this SN's identifier to the currently
// believed master's heartbeat endpoint every heartbeatInterval. After
// maxSendFailures consecutive failures it advances to the next one in
// configured priority order; no per-name-node inactive state is kept.
// When it wraps past the last configured name node it logs an error,
// sleeps failoverBackoff, and starts the round again (spec section
// 4.3/4.5).
func (d *MasterDiscovery) RunHeartbeatSender(ctx context.Context, selfID string) {
	failures := 0
	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		base := d.CurrentMaster()
		if base == "" {
			d.log.Error("no name nodes configured for heartbeat sender")
			time.Sleep(failoverBackoff)
			continue
		}

		if err := d.sendHeartbeat(ctx, base, selfID); err != nil {
			failures++
			d.log.Warn("heartbeat send failed", "master", base, "failures", failures, "error", err)
			if failures >= maxSendFailures {
				failures = 0
				d.mu.RLock()
				exhausted := d.current == len(d.nameNodes)-1
				d.mu.RUnlock()
				d.advance()
				if exhausted {
					d.log.Error("all configured name nodes unreachable, backing off", "backoff", failoverBackoff)
					time.Sleep(failoverBackoff)
				}
			}
			continue
		}
		failures = 0
	}
}

func (d *MasterDiscovery) sendHeartbeat(ctx context.Context, base, selfID string) error {
	url := httpToWS(base) + "/_s/heartbeat"
	conn, _, err := d.dialer.DialContext(ctx, url, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", url, err)
	}
	defer conn.Close()

	if err := conn.WriteMessage(websocket.TextMessage, []byte(selfID)); err != nil {
		return fmt.Errorf("write: %w", err)
	}
	conn.SetReadDeadline(time.Now().Add(heartbeatInterval))
	if _, _, err := conn.ReadMessage(); err != nil {
		return fmt.Errorf("ack: %w", err)
	}
	return nil
}

func httpToWS(base string) string {
	switch {
	case len(base) >= 5 && base[:5] == "https":
		return "wss" + base[5:]
	case len(base) >= 4 && base[:4] == "http":
		return "ws" + base[4:]
	default:
		return base
	}
}
