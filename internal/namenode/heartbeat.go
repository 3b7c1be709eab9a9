package namenode

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"distfs/internal/logging"
)

const (
	healthyCountdown = 10 // seconds before a silent SN is declared dead
	healthyTick      = 1 * time.Second
	deadBackoffTick  = 10 * time.Second
)

// Supervisor owns every piece of per-storage-node liveness state a
// master name node tracks: the countdown clock and the recovered flag.
// There is exactly one Supervisor per process, constructed once, and
// every heartbeat handler and countdown task holds a pointer to it
// rather than touching package-level state (spec section 9's "global
// mutable state" redesign note).
type Supervisor struct {
	mu        sync.Mutex
	countdown map[string]int
	recovered map[string]bool
	isMaster  bool

	log *slog.Logger
}

func NewSupervisor(log *slog.Logger) *Supervisor {
	return &Supervisor{
		countdown: map[string]int{},
		recovered: map[string]bool{},
		log:       logging.Default(log).With("component", "supervisor"),
	}
}

// Heartbeat records that SN has just checked in: it resets the
// countdown to healthy and, as a side effect, declares this name node
// master if it wasn't already (spec section 4.3: "the mere act of
// receiving a heartbeat is the leadership signal").
func (s *Supervisor) Heartbeat(sn string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.isMaster {
		s.isMaster = true
		s.log.Info("became master on first heartbeat intake")
	}
	s.countdown[sn] = healthyCountdown
}

// IsMaster reports whether this name node currently considers itself
// master.
func (s *Supervisor) IsMaster() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.isMaster
}

// Live returns every SN whose countdown is currently positive, in the
// stable order given (configuration order), for use by the placement
// algorithm and recovery.
func (s *Supervisor) Live(configured []string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var live []string
	for _, sn := range configured {
		if s.countdown[sn] > 0 {
			live = append(live, sn)
		}
	}
	return live
}

// tick decrements sn's countdown by one, returning the post-decrement
// value. Called once per loop iteration by RunCountdown.
func (s *Supervisor) tick(sn string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.countdown[sn]; !ok {
		s.countdown[sn] = healthyCountdown
	}
	if s.countdown[sn] > 0 {
		s.countdown[sn]--
	}
	return s.countdown[sn]
}

// markRecovered sets the recovered flag for sn under the supervisor
// lock, so the return-transition check can later see that sn went
// through disaster recovery.
func (s *Supervisor) markRecovered(sn string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recovered[sn] = true
}

func (s *Supervisor) clearRecovered(sn string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recovered[sn] = false
}

// returnEligible reports whether sn has come back (positive countdown)
// while still flagged recovered from an earlier disaster-recovery pass.
func (s *Supervisor) returnEligible(sn string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.countdown[sn] > 0 && s.recovered[sn]
}

// isLive reports whether sn currently has a positive countdown, used by
// the recovery loop's same-critical-section liveness re-check before
// promoting a candidate (spec section 9's flagged race, closed here).
func (s *Supervisor) isLive(sn string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.countdown[sn] > 0
}

var heartbeatUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// HeartbeatHandler upgrades to a websocket connection and treats every
// text message received as a storage-node identifier checking in,
// acknowledging each one. One connection serves one SN for its
// lifetime, matching a storage node's heartbeat loop (spec section 4.4:
// "every 2s, send this SN's identifier to the master").
func (s *Supervisor) HeartbeatHandler(w http.ResponseWriter, r *http.Request) {
	conn, err := heartbeatUpgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("heartbeat websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		sn := string(msg)
		s.Heartbeat(sn)
		if err := conn.WriteMessage(websocket.TextMessage, []byte("ack")); err != nil {
			return
		}
	}
}

// RunCountdown runs the per-SN backoff loop forever: tick every second
// while healthy, every ten seconds once declared dead, invoking onDead
// on every one of those ten-second ticks for as long as the countdown
// stays at zero.
func (s *Supervisor) RunCountdown(ctx context.Context, sn string, onDead func(context.Context, string)) {
	for {
		remaining := s.tick(sn)
		if remaining <= 0 {
			onDead(ctx, sn)
			select {
			case <-ctx.Done():
				return
			case <-time.After(deadBackoffTick):
			}
			continue
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(healthyTick):
		}
	}
}
