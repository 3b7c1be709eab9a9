// Package config loads the single JSON configuration document described
// in spec section 6. Configuration is declarative and load-on-start only:
// there is no hot reload, matching the ambient stance of this lineage's
// own config store ("v1 is load-on-start only").
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"runtime"
	"sort"
)

// DataNodeSetting describes one storage node's network and storage
// location, keyed by its short name in Config.DataNodesSetting.
type DataNodeSetting struct {
	Host       string `json:"host"`
	Port       int    `json:"port"`
	PortGencom int    `json:"port_gencom"`
	Storage    string `json:"storage"`
}

// NameNodeSetting describes one name node's network configuration, keyed
// by its short name in Config.NameNodesSetting. Priority governs the
// order in which a storage node tries name nodes during master failover
// (lowest priority value wins).
type NameNodeSetting struct {
	Host          string `json:"host"`
	Port          int    `json:"port"`
	PortHeartbeat int    `json:"port_heartbeat"`
	PortMetadata  int    `json:"port_metadata"`
	HostMetadata  string `json:"host_metadata"`
	Priority      int    `json:"priority"`
}

// Config is the declarative shape of a distfs deployment, loaded once at
// process start by every binary (name node, storage node, client).
type Config struct {
	MaxChunkSize         int64                      `json:"max_chunk_size"`
	MaxThreadConcurrency int                         `json:"max_thread_concurrency"`
	ReplicaSet           int                         `json:"replica_set"`
	DataNodes            []string                    `json:"datanodes"`
	DataNodesSetting     map[string]DataNodeSetting  `json:"datanodes_setting"`
	NameNodesSetting     map[string]NameNodeSetting  `json:"namenodes_setting"`
}

// Load reads and parses the configuration file at path, applying the
// defaults spec section 6 calls for when a field is missing or invalid:
// MaxThreadConcurrency defaults to the CPU count, ReplicaSet defaults to
// 3 when not a positive integer.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	// A non-integer max_thread_concurrency or replica_set is dropped here
	// so that the defaults below apply to it instead of failing the load.
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	for _, key := range []string{"max_thread_concurrency", "replica_set"} {
		var n int
		if v, ok := fields[key]; ok && json.Unmarshal(v, &n) != nil {
			delete(fields, key)
		}
	}
	if raw, err = json.Marshal(fields); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	var cfg Config
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	if cfg.MaxThreadConcurrency <= 0 {
		cfg.MaxThreadConcurrency = runtime.NumCPU()
	}
	if cfg.ReplicaSet < 1 {
		cfg.ReplicaSet = 3
	}
	return &cfg, nil
}

// Validate enforces the one configuration invariant spec section 7 names
// as process-halting: there must be enough storage nodes configured to
// satisfy the replica factor. The caller is expected to log critical and
// exit the process when this returns an error.
func (c *Config) Validate() error {
	if c.ReplicaSet > len(c.DataNodes) {
		return fmt.Errorf("replica_set (%d) exceeds configured datanodes (%d)", c.ReplicaSet, len(c.DataNodes))
	}
	return nil
}

// NameNodeBaseURLsExcept returns the base URLs of every configured name
// node other than self, in ascending priority order (lowest Priority
// value first), the order a client or storage node tries name nodes in
// during election or failover (spec section 4.3/4.5). self may be ""
// to include every configured name node.
func (c *Config) NameNodeBaseURLsExcept(self string) []string {
	type entry struct {
		name string
		nn   NameNodeSetting
	}
	var entries []entry
	for name, nn := range c.NameNodesSetting {
		if name == self {
			continue
		}
		entries = append(entries, entry{name, nn})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].nn.Priority != entries[j].nn.Priority {
			return entries[i].nn.Priority < entries[j].nn.Priority
		}
		return entries[i].name < entries[j].name
	})
	urls := make([]string, len(entries))
	for i, e := range entries {
		urls[i] = fmt.Sprintf("http://%s:%d", e.nn.Host, e.nn.Port)
	}
	return urls
}
