package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"distfs/internal/client/workerpool"
	"distfs/internal/dfserrors"
	"distfs/internal/metadata"
	"distfs/internal/namenode"
)

// Session holds everything one interactive client connection needs:
// the acting user's identity, the configured cluster topology, and the
// transports to both halves of it.
type Session struct {
	Actor  string
	Groups []string

	NameNodes    []string // configured name node base URLs, priority order
	StorageNodes []string // configured storage node base URLs

	RPC  *RPCClient
	HTTP *http.Client
	Pool *workerpool.Pool

	master string // cached result of the last election, re-resolved on RPC failure
	token  string // session token from the last successful Login; empty before login
}

func NewSession(actor string, groups, nameNodes, storageNodes []string, concurrency int) *Session {
	return &Session{
		Actor:        actor,
		Groups:       groups,
		NameNodes:    nameNodes,
		StorageNodes: storageNodes,
		RPC:          NewRPCClient(),
		HTTP:         &http.Client{Timeout: 30 * time.Second},
		Pool:         workerpool.New(concurrency),
	}
}

// masterBase returns the currently believed master name node base URL,
// electing one by quorum if none is cached yet.
func (s *Session) masterBase(ctx context.Context) (string, error) {
	if s.master != "" {
		return s.master, nil
	}
	return s.reelect(ctx)
}

func (s *Session) reelect(ctx context.Context) (string, error) {
	m, err := ElectMaster(ctx, s.HTTP, s.StorageNodes)
	if err != nil {
		return "", err
	}
	s.master = m
	return m, nil
}

// Login authenticates against the elected master and caches the
// resulting session token for every subsequent call. Against a name
// node running with session tokens disabled the login verb fails with
// AccessDenied; the other verbs work there without logging in, since
// RPCClient.Call omits an empty token's Authorization header entirely.
func (s *Session) Login(ctx context.Context, username, password string) error {
	base, err := s.masterBase(ctx)
	if err != nil {
		return err
	}
	req := struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}{username, password}
	var resp struct {
		Token string `json:"token"`
	}
	if err := s.RPC.Call(ctx, base, "login", "", req, &resp); err != nil {
		return err
	}
	s.Actor = username
	s.token = resp.Token
	return nil
}

// call performs one RPC against the current master, re-electing once
// and retrying on a transport-level failure (not on an application
// *dfserrors.Fault, which is a legitimate answer, not a routing
// problem).
func (s *Session) call(ctx context.Context, verb string, req, resp any) error {
	base, err := s.masterBase(ctx)
	if err != nil {
		return err
	}
	err = s.RPC.Call(ctx, base, verb, s.token, req, resp)
	if err == nil || isApplicationFault(err) {
		return err
	}
	// Transport-level failure: the cached master may be stale. Re-elect once.
	s.master = ""
	base, electErr := s.reelect(ctx)
	if electErr != nil {
		return err
	}
	return s.RPC.Call(ctx, base, verb, s.token, req, resp)
}

func isApplicationFault(err error) bool {
	var fault *dfserrors.Fault
	return errors.As(err, &fault)
}

type pathRequest struct {
	Actor string `json:"actor"`
	Path  string `json:"path"`
}

func (s *Session) Mkdir(ctx context.Context, path string, createParents bool) error {
	req := struct {
		pathRequest
		CreateParents bool `json:"create_parents"`
	}{pathRequest{Actor: s.Actor, Path: path}, createParents}
	return s.call(ctx, "mkdir", req, nil)
}

func (s *Session) Touch(ctx context.Context, path string) (*metadata.File, error) {
	var f metadata.File
	if err := s.call(ctx, "touch", pathRequest{Actor: s.Actor, Path: path}, &f); err != nil {
		return nil, err
	}
	return &f, nil
}

type lsResponse struct {
	Dir  *metadata.Directory `json:"dir,omitempty"`
	File *metadata.File      `json:"file,omitempty"`
}

func (s *Session) Ls(ctx context.Context, path string) (*metadata.Directory, *metadata.File, error) {
	var resp lsResponse
	if err := s.call(ctx, "ls", pathRequest{Actor: s.Actor, Path: path}, &resp); err != nil {
		return nil, nil, err
	}
	return resp.Dir, resp.File, nil
}

func (s *Session) Rm(ctx context.Context, path string, recursive bool) error {
	verb := "rm"
	if recursive {
		verb = "rmr"
	}
	return s.call(ctx, verb, pathRequest{Actor: s.Actor, Path: path}, nil)
}

type copyMoveRequest struct {
	Actor string `json:"actor"`
	Src   string `json:"src"`
	Dst   string `json:"dst"`
}

func (s *Session) Cp(ctx context.Context, src, dst string) error {
	return s.call(ctx, "cp", copyMoveRequest{Actor: s.Actor, Src: src, Dst: dst}, nil)
}

func (s *Session) Mv(ctx context.Context, src, dst string) error {
	return s.call(ctx, "mv", copyMoveRequest{Actor: s.Actor, Src: src, Dst: dst}, nil)
}

type countResponse struct {
	Files int `json:"files"`
	Dirs  int `json:"dirs"`
}

func (s *Session) Count(ctx context.Context, path string, recursive bool) (files, dirs int, err error) {
	verb := "count"
	if recursive {
		verb = "countr"
	}
	var resp countResponse
	if err := s.call(ctx, verb, pathRequest{Actor: s.Actor, Path: path}, &resp); err != nil {
		return 0, 0, err
	}
	return resp.Files, resp.Dirs, nil
}

func (s *Session) Du(ctx context.Context, path string) (int64, error) {
	var resp struct {
		Bytes int64 `json:"bytes"`
	}
	if err := s.call(ctx, "du", pathRequest{Actor: s.Actor, Path: path}, &resp); err != nil {
		return 0, err
	}
	return resp.Bytes, nil
}

type chattrRequest struct {
	pathRequest
	Value string `json:"value"`
}

func (s *Session) Chown(ctx context.Context, path, value string) error {
	return s.call(ctx, "chown", chattrRequest{pathRequest{Actor: s.Actor, Path: path}, value}, nil)
}

func (s *Session) Chgrp(ctx context.Context, path, value string) error {
	return s.call(ctx, "chgrp", chattrRequest{pathRequest{Actor: s.Actor, Path: path}, value}, nil)
}

func (s *Session) Chmod(ctx context.Context, path, value string) error {
	return s.call(ctx, "chmod", chattrRequest{pathRequest{Actor: s.Actor, Path: path}, value}, nil)
}

func (s *Session) Mkfs(ctx context.Context) error {
	return s.call(ctx, "mkfs", struct {
		Actor string `json:"actor"`
	}{s.Actor}, nil)
}

func (s *Session) Status(ctx context.Context) (*namenode.Status, error) {
	var st namenode.Status
	if err := s.call(ctx, "status", struct {
		Actor string `json:"actor"`
	}{s.Actor}, &st); err != nil {
		return nil, err
	}
	return &st, nil
}

func (s *Session) UserAdd(ctx context.Context, name, password string) error {
	return s.call(ctx, "useradd", struct {
		Actor    string `json:"actor"`
		Name     string `json:"name"`
		Password string `json:"password"`
	}{s.Actor, name, password}, nil)
}

func (s *Session) UserDel(ctx context.Context, name string) error {
	return s.call(ctx, "userdel", struct {
		Actor string `json:"actor"`
		Name  string `json:"name"`
	}{s.Actor, name}, nil)
}

func (s *Session) Passwd(ctx context.Context, target, newPassword string) error {
	return s.call(ctx, "passwd", struct {
		Actor       string `json:"actor"`
		Target      string `json:"target"`
		NewPassword string `json:"new_password"`
	}{s.Actor, target, newPassword}, nil)
}

func (s *Session) UserMod(ctx context.Context, name, group string, add bool) error {
	return s.call(ctx, "usermod", struct {
		Actor string `json:"actor"`
		Name  string `json:"name"`
		Group string `json:"group"`
		Add   bool   `json:"add"`
	}{s.Actor, name, group, add}, nil)
}

func (s *Session) GroupAdd(ctx context.Context, name string) error {
	return s.call(ctx, "groupadd", struct {
		Actor string `json:"actor"`
		Name  string `json:"name"`
	}{s.Actor, name}, nil)
}

func (s *Session) GroupDel(ctx context.Context, name string) error {
	return s.call(ctx, "groupdel", struct {
		Actor string `json:"actor"`
		Name  string `json:"name"`
	}{s.Actor, name}, nil)
}

// --- content transfer: put_file / get_file ---

type putFileRequest struct {
	pathRequest
	Size int64 `json:"size"`
}

// PutFile requests a placement plan for a file of the given size, then
// writes every chunk to its assigned primary storage node, attaching
// the secondary list so each PUT kicks off the SN-to-SN replication
// chain (spec section 4.4). Chunks are ordered by sequence number
// before being handed to the pool; writes to distinct primaries run
// concurrently, bounded by the pool's concurrency limit.
func (s *Session) PutFile(ctx context.Context, localPath, path string, content []byte) error {
	var plan namenode.PutFilePlan
	req := putFileRequest{pathRequest{Actor: s.Actor, Path: path}, int64(len(content))}
	if err := s.call(ctx, "put_file", req, &plan); err != nil {
		return err
	}

	placements := make([]namenode.Placement, len(plan.Placements))
	copy(placements, plan.Placements)
	sort.Slice(placements, func(i, j int) bool {
		return chunkSequence(placements[i].Chunk) < chunkSequence(placements[j].Chunk)
	})

	jobs := make([]func(context.Context) error, len(placements))
	for i, p := range placements {
		p := p
		jobs[i] = func(ctx context.Context) error {
			start, end := chunkRange(placements, p.Chunk, content)
			return s.putChunk(ctx, p.Primary, p.Chunk, content[start:end], p.Secondaries)
		}
	}
	return s.Pool.Run(ctx, jobs)
}

func chunkSequence(chunk string) int {
	_, seq, err := metadata.SplitChunkName(chunk)
	if err != nil {
		return 0
	}
	return seq
}

// chunkRange recomputes a chunk's byte range in content from its
// sequence number and the uniform chunk size implied by the placement
// list (every chunk but the last is full-sized).
func chunkRange(placements []namenode.Placement, chunk string, content []byte) (start, end int64) {
	seq := chunkSequence(chunk)
	if len(placements) == 0 {
		return 0, int64(len(content))
	}
	chunkSize := int64(len(content)) / int64(len(placements))
	if chunkSize == 0 {
		chunkSize = int64(len(content))
	}
	start = int64(seq) * chunkSize
	end = start + chunkSize
	if seq == len(placements)-1 || end > int64(len(content)) {
		end = int64(len(content))
	}
	return start, end
}

func (s *Session) putChunk(ctx context.Context, primaryBase, chunk string, payload []byte, secondaries []string) error {
	form := url.Values{}
	form.Set("chunk_name", chunk)
	form.Set("chunk_payload", encodeLatin1(payload))
	form.Set("chunk_replicas", joinNonEmpty(secondaries))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, primaryBase+"/chunk", strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := s.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("put chunk %s to %s: %w", chunk, primaryBase, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("put chunk %s to %s: status %d", chunk, primaryBase, resp.StatusCode)
	}
	return nil
}

// GetFile reads every chunk of path, trying each candidate storage node
// (primary first, then secondaries) until one answers, and reassembles
// the file content in sequence order. It fails outright if any single
// chunk is unreachable on every candidate, matching the original
// system's all-or-nothing GetFile semantics (spec section 4.5).
func (s *Session) GetFile(ctx context.Context, path string) (*metadata.File, []byte, error) {
	var f metadata.File
	if err := s.call(ctx, "get_file", pathRequest{Actor: s.Actor, Path: path}, &f); err != nil {
		return nil, nil, err
	}

	type job struct {
		seq        int
		chunk      string
		candidates []string
	}
	var jobs []job
	for primary, chunks := range f.Chunks {
		for _, chunk := range chunks {
			_, seq, err := metadata.SplitChunkName(chunk)
			if err != nil {
				return nil, nil, fmt.Errorf("malformed chunk name %q: %w", chunk, err)
			}
			candidates := append([]string{primary}, f.Replicas[chunk]...)
			jobs = append(jobs, job{seq: seq, chunk: chunk, candidates: candidates})
		}
	}
	sort.Slice(jobs, func(i, j int) bool { return jobs[i].seq < jobs[j].seq })

	results := make([][]byte, len(jobs))
	poolJobs := make([]func(context.Context) error, len(jobs))
	for i, j := range jobs {
		i, j := i, j
		poolJobs[i] = func(ctx context.Context) error {
			data, err := s.getChunk(ctx, j.chunk, snBasesFor(j.candidates, s.StorageNodes))
			if err != nil {
				return fmt.Errorf("chunk %s unreachable on every candidate storage node", j.chunk)
			}
			results[i] = data
			return nil
		}
	}
	if err := s.Pool.Run(ctx, poolJobs); err != nil {
		return nil, nil, err
	}

	var out []byte
	for _, r := range results {
		out = append(out, r...)
	}
	return &f, out, nil
}

// snBasesFor maps the bare SN identifiers a File's Chunks/Replicas maps
// use to their configured base URLs, in candidate order.
func snBasesFor(ids, configuredBases []string) []string {
	// In this deployment model SN identifiers are their own base URL
	// (spec section 6: DataNodes lists addressable identifiers
	// directly), so candidates pass through unchanged; configuredBases
	// is accepted for symmetry with a future indirection layer.
	_ = configuredBases
	return ids
}

func (s *Session) getChunk(ctx context.Context, chunk string, candidates []string) ([]byte, error) {
	var lastErr error
	for _, base := range candidates {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+"/chunk?chunk_name="+url.QueryEscape(chunk), nil)
		if err != nil {
			lastErr = err
			continue
		}
		resp, err := s.HTTP.Do(req)
		if err != nil {
			lastErr = err
			continue
		}
		data, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			lastErr = fmt.Errorf("status %d", resp.StatusCode)
			continue
		}
		if readErr != nil {
			lastErr = readErr
			continue
		}
		return data, nil
	}
	return nil, lastErr
}

func joinNonEmpty(ss []string) string {
	out := ""
	for i, s := range ss {
		if i > 0 {
			out += ","
		}
		out += s
	}
	return out
}
