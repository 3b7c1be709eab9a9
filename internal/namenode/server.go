package namenode

import (
	"bytes"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"distfs/internal/auth"
	"distfs/internal/dfserrors"
	"distfs/internal/logging"
	"distfs/internal/metadata"
	"distfs/internal/wire"
)

// Server exposes Master's and Follower's procedures over HTTP, one
// handler per verb, matching spec section 6's "structured-RPC over
// HTTP, one procedure per verb". Requests and responses are msgpack
// envelopes (internal/wire), decoded with json struct tags so the
// request/response types below double as the self-documenting schema.
//
// Tokens is optional: a nil TokenService disables the session-token
// check entirely, which is how tests and single-process demos run
// without a login step.
type Server struct {
	Master   *Master
	Follower *Follower
	Tokens   *auth.TokenService
	Log      *slog.Logger
}

func NewServer(master *Master, follower *Follower, tokens *auth.TokenService, log *slog.Logger) *Server {
	return &Server{Master: master, Follower: follower, Tokens: tokens, Log: logging.Default(log).With("component", "server")}
}

// Routes returns the mux every name node process serves: client-facing
// verbs at their bare name, follower-facing replication at "/_s/...",
// and the heartbeat websocket acceptor. Every client-facing verb except
// "/login" passes through authMiddleware first.
func (s *Server) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/login", s.handleLogin)
	mux.HandleFunc("/mkdir", s.authMiddleware(s.handleMkdir))
	mux.HandleFunc("/touch", s.authMiddleware(s.handleTouch))
	mux.HandleFunc("/ls", s.authMiddleware(s.handleLs))
	mux.HandleFunc("/rm", s.authMiddleware(s.handleRm))
	mux.HandleFunc("/rmr", s.authMiddleware(s.handleRmr))
	mux.HandleFunc("/put_file", s.authMiddleware(s.handlePutFile))
	mux.HandleFunc("/get_file", s.authMiddleware(s.handleGetFile))
	mux.HandleFunc("/cp", s.authMiddleware(s.handleCp))
	mux.HandleFunc("/mv", s.authMiddleware(s.handleMv))
	mux.HandleFunc("/count", s.authMiddleware(s.handleCount))
	mux.HandleFunc("/countr", s.authMiddleware(s.handleCountr))
	mux.HandleFunc("/du", s.authMiddleware(s.handleDu))
	mux.HandleFunc("/chown", s.authMiddleware(s.handleChown))
	mux.HandleFunc("/chgrp", s.authMiddleware(s.handleChgrp))
	mux.HandleFunc("/chmod", s.authMiddleware(s.handleChmod))
	mux.HandleFunc("/mkfs", s.authMiddleware(s.handleMkfs))
	mux.HandleFunc("/status", s.authMiddleware(s.handleStatus))
	mux.HandleFunc("/useradd", s.authMiddleware(s.handleUserAdd))
	mux.HandleFunc("/userdel", s.authMiddleware(s.handleUserDel))
	mux.HandleFunc("/passwd", s.authMiddleware(s.handlePasswd))
	mux.HandleFunc("/usermod", s.authMiddleware(s.handleUserMod))
	mux.HandleFunc("/groupadd", s.authMiddleware(s.handleGroupAdd))
	mux.HandleFunc("/groupdel", s.authMiddleware(s.handleGroupDel))
	mux.HandleFunc("/_s/apply", s.Follower.ServeHTTP)
	mux.HandleFunc("/_s/heartbeat", s.Master.Super.HeartbeatHandler)
	return mux
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token string `json:"token"`
}

// handleLogin verifies a password via Master.Admin and, on success,
// issues a session token carrying the user's current group membership.
// It is the one verb that never passes through authMiddleware.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if s.Tokens == nil {
		s.writeError(w, dfserrors.New(dfserrors.AccessDenied, "session tokens are disabled on this name node"))
		return
	}
	var req loginRequest
	if err := decodeRequest(r, &req); err != nil {
		s.writeError(w, dfserrors.New(dfserrors.InvalidSyntax, "%v", err))
		return
	}
	user, err := s.Master.Admin.Authenticate(r.Context(), req.Username, req.Password)
	if err != nil {
		s.writeError(w, err)
		return
	}
	groups, err := s.Master.Admin.Groups(r.Context(), user.Name)
	if err != nil {
		s.writeError(w, err)
		return
	}
	token, _, err := s.Tokens.Issue(user.Name, groups)
	if err != nil {
		s.writeError(w, dfserrors.New(dfserrors.InvalidSyntax, "issue token: %v", err))
		return
	}
	s.writeResult(w, loginResponse{Token: token})
}

// authMiddleware requires a valid "Authorization: Bearer <token>" header
// on every client verb, and rejects a request whose body names an actor
// other than the token's subject, closing the gap where a client could
// otherwise claim to act as any user it liked.
func (s *Server) authMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.Tokens == nil {
			next(w, r)
			return
		}
		token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		if token == "" {
			s.writeError(w, dfserrors.New(dfserrors.AccessDenied, "missing session token"))
			return
		}
		claims, err := s.Tokens.Verify(token)
		if err != nil {
			s.writeError(w, dfserrors.New(dfserrors.AccessDenied, "invalid session token: %v", err))
			return
		}
		body, err := io.ReadAll(r.Body)
		if err != nil {
			s.writeError(w, dfserrors.New(dfserrors.InvalidSyntax, "%v", err))
			return
		}
		var probe actorRequest
		if err := wire.Unmarshal(body, &probe); err == nil && probe.Actor != "" && probe.Actor != claims.Username() {
			s.writeError(w, dfserrors.New(dfserrors.AccessDenied, "token subject %q does not match request actor %q", claims.Username(), probe.Actor))
			return
		}
		r.Body = io.NopCloser(bytes.NewReader(body))
		next(w, r)
	}
}

// --- envelope plumbing ---

type errorEnvelope struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	kind := dfserrors.KindOf(err)
	status := http.StatusInternalServerError
	if kind != "" {
		status = http.StatusUnprocessableEntity
	}
	data, encErr := wire.Marshal(errorEnvelope{Kind: string(kind), Message: err.Error()})
	if encErr != nil {
		http.Error(w, err.Error(), status)
		return
	}
	w.WriteHeader(status)
	w.Write(data)
}

func (s *Server) writeResult(w http.ResponseWriter, v any) {
	data, err := wire.Marshal(v)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Write(data)
}

func decodeRequest(r *http.Request, v any) error {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		return err
	}
	return wire.Unmarshal(body, v)
}

// groupsOf resolves the caller's group membership for a permission
// check. Handlers that need it look the actor up via Master.Admin.
func (s *Server) groupsOf(r *http.Request, actor string) []string {
	groups, err := s.Master.Admin.Groups(r.Context(), actor)
	if err != nil {
		return []string{actor}
	}
	return groups
}

// --- request/response types and handlers ---

type pathRequest struct {
	Actor string `json:"actor"`
	Path  string `json:"path"`
}

type mkdirRequest struct {
	pathRequest
	CreateParents bool `json:"create_parents"`
}

func (s *Server) handleMkdir(w http.ResponseWriter, r *http.Request) {
	var req mkdirRequest
	if err := decodeRequest(r, &req); err != nil {
		s.writeError(w, dfserrors.New(dfserrors.InvalidSyntax, "%v", err))
		return
	}
	err := s.Master.Mkdir(r.Context(), req.Actor, s.groupsOf(r, req.Actor), metadata.ParsePath(req.Path), req.CreateParents)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeResult(w, struct{}{})
}

func (s *Server) handleTouch(w http.ResponseWriter, r *http.Request) {
	var req pathRequest
	if err := decodeRequest(r, &req); err != nil {
		s.writeError(w, dfserrors.New(dfserrors.InvalidSyntax, "%v", err))
		return
	}
	f, err := s.Master.Touch(r.Context(), req.Actor, s.groupsOf(r, req.Actor), metadata.ParsePath(req.Path))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeResult(w, f)
}

type lsResponse struct {
	Dir  *metadata.Directory `json:"dir,omitempty"`
	File *metadata.File      `json:"file,omitempty"`
}

func (s *Server) handleLs(w http.ResponseWriter, r *http.Request) {
	var req pathRequest
	if err := decodeRequest(r, &req); err != nil {
		s.writeError(w, dfserrors.New(dfserrors.InvalidSyntax, "%v", err))
		return
	}
	dir, file, err := s.Master.Ls(r.Context(), req.Actor, s.groupsOf(r, req.Actor), metadata.ParsePath(req.Path))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeResult(w, lsResponse{Dir: dir, File: file})
}

func (s *Server) rm(w http.ResponseWriter, r *http.Request, recursive bool) {
	var req pathRequest
	if err := decodeRequest(r, &req); err != nil {
		s.writeError(w, dfserrors.New(dfserrors.InvalidSyntax, "%v", err))
		return
	}
	if err := s.Master.Rm(r.Context(), req.Actor, s.groupsOf(r, req.Actor), metadata.ParsePath(req.Path), recursive); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeResult(w, struct{}{})
}

func (s *Server) handleRm(w http.ResponseWriter, r *http.Request)  { s.rm(w, r, false) }
func (s *Server) handleRmr(w http.ResponseWriter, r *http.Request) { s.rm(w, r, true) }

type putFileRequest struct {
	pathRequest
	Size int64 `json:"size"`
}

func (s *Server) handlePutFile(w http.ResponseWriter, r *http.Request) {
	var req putFileRequest
	if err := decodeRequest(r, &req); err != nil {
		s.writeError(w, dfserrors.New(dfserrors.InvalidSyntax, "%v", err))
		return
	}
	plan, err := s.Master.PutFile(r.Context(), req.Actor, s.groupsOf(r, req.Actor), metadata.ParsePath(req.Path), req.Size)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeResult(w, plan)
}

func (s *Server) handleGetFile(w http.ResponseWriter, r *http.Request) {
	var req pathRequest
	if err := decodeRequest(r, &req); err != nil {
		s.writeError(w, dfserrors.New(dfserrors.InvalidSyntax, "%v", err))
		return
	}
	f, err := s.Master.GetFile(r.Context(), req.Actor, s.groupsOf(r, req.Actor), metadata.ParsePath(req.Path))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeResult(w, f)
}

type copyMoveRequest struct {
	Actor string `json:"actor"`
	Src   string `json:"src"`
	Dst   string `json:"dst"`
}

type cpResponse struct {
	File        *metadata.File `json:"file"`
	InvolvedSNs []string       `json:"involved_sns"`
}

func (s *Server) handleCp(w http.ResponseWriter, r *http.Request) {
	var req copyMoveRequest
	if err := decodeRequest(r, &req); err != nil {
		s.writeError(w, dfserrors.New(dfserrors.InvalidSyntax, "%v", err))
		return
	}
	f, sns, err := s.Master.Cp(r.Context(), req.Actor, s.groupsOf(r, req.Actor), metadata.ParsePath(req.Src), metadata.ParsePath(req.Dst))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeResult(w, cpResponse{File: f, InvolvedSNs: sns})
}

func (s *Server) handleMv(w http.ResponseWriter, r *http.Request) {
	var req copyMoveRequest
	if err := decodeRequest(r, &req); err != nil {
		s.writeError(w, dfserrors.New(dfserrors.InvalidSyntax, "%v", err))
		return
	}
	if err := s.Master.Mv(r.Context(), req.Actor, s.groupsOf(r, req.Actor), metadata.ParsePath(req.Src), metadata.ParsePath(req.Dst)); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeResult(w, struct{}{})
}

type countResponse struct {
	Files int `json:"files"`
	Dirs  int `json:"dirs"`
}

func (s *Server) count(w http.ResponseWriter, r *http.Request, recursive bool) {
	var req pathRequest
	if err := decodeRequest(r, &req); err != nil {
		s.writeError(w, dfserrors.New(dfserrors.InvalidSyntax, "%v", err))
		return
	}
	files, dirs, err := s.Master.Count(r.Context(), req.Actor, s.groupsOf(r, req.Actor), metadata.ParsePath(req.Path), recursive)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeResult(w, countResponse{Files: files, Dirs: dirs})
}

func (s *Server) handleCount(w http.ResponseWriter, r *http.Request)  { s.count(w, r, false) }
func (s *Server) handleCountr(w http.ResponseWriter, r *http.Request) { s.count(w, r, true) }

type duResponse struct {
	Bytes int64 `json:"bytes"`
}

func (s *Server) handleDu(w http.ResponseWriter, r *http.Request) {
	var req pathRequest
	if err := decodeRequest(r, &req); err != nil {
		s.writeError(w, dfserrors.New(dfserrors.InvalidSyntax, "%v", err))
		return
	}
	bytes, err := s.Master.Du(r.Context(), req.Actor, s.groupsOf(r, req.Actor), metadata.ParsePath(req.Path))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeResult(w, duResponse{Bytes: bytes})
}

type chattrRequest struct {
	pathRequest
	Value string `json:"value"`
}

func (s *Server) handleChown(w http.ResponseWriter, r *http.Request) {
	var req chattrRequest
	if err := decodeRequest(r, &req); err != nil {
		s.writeError(w, dfserrors.New(dfserrors.InvalidSyntax, "%v", err))
		return
	}
	if err := s.Master.Chown(r.Context(), req.Actor, s.groupsOf(r, req.Actor), metadata.ParsePath(req.Path), req.Value); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeResult(w, struct{}{})
}

func (s *Server) handleChgrp(w http.ResponseWriter, r *http.Request) {
	var req chattrRequest
	if err := decodeRequest(r, &req); err != nil {
		s.writeError(w, dfserrors.New(dfserrors.InvalidSyntax, "%v", err))
		return
	}
	if err := s.Master.Chgrp(r.Context(), req.Actor, s.groupsOf(r, req.Actor), metadata.ParsePath(req.Path), req.Value); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeResult(w, struct{}{})
}

func (s *Server) handleChmod(w http.ResponseWriter, r *http.Request) {
	var req chattrRequest
	if err := decodeRequest(r, &req); err != nil {
		s.writeError(w, dfserrors.New(dfserrors.InvalidSyntax, "%v", err))
		return
	}
	if err := s.Master.Chmod(r.Context(), req.Actor, s.groupsOf(r, req.Actor), metadata.ParsePath(req.Path), req.Value); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeResult(w, struct{}{})
}

type actorRequest struct {
	Actor string `json:"actor"`
}

func (s *Server) handleMkfs(w http.ResponseWriter, r *http.Request) {
	var req actorRequest
	if err := decodeRequest(r, &req); err != nil {
		s.writeError(w, dfserrors.New(dfserrors.InvalidSyntax, "%v", err))
		return
	}
	if err := requireRoot(req.Actor); err != nil {
		s.writeError(w, err)
		return
	}
	if err := s.Master.Mkfs(r.Context()); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeResult(w, struct{}{})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	var req actorRequest
	if err := decodeRequest(r, &req); err != nil {
		s.writeError(w, dfserrors.New(dfserrors.InvalidSyntax, "%v", err))
		return
	}
	if err := requireRoot(req.Actor); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeResult(w, s.Master.Status())
}

type userAddRequest struct {
	Actor    string `json:"actor"`
	Name     string `json:"name"`
	Password string `json:"password"`
}

func (s *Server) handleUserAdd(w http.ResponseWriter, r *http.Request) {
	var req userAddRequest
	if err := decodeRequest(r, &req); err != nil {
		s.writeError(w, dfserrors.New(dfserrors.InvalidSyntax, "%v", err))
		return
	}
	if err := s.Master.UserAdd(r.Context(), req.Actor, req.Name, req.Password); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeResult(w, struct{}{})
}

type nameRequest struct {
	Actor string `json:"actor"`
	Name  string `json:"name"`
}

func (s *Server) handleUserDel(w http.ResponseWriter, r *http.Request) {
	var req nameRequest
	if err := decodeRequest(r, &req); err != nil {
		s.writeError(w, dfserrors.New(dfserrors.InvalidSyntax, "%v", err))
		return
	}
	if err := s.Master.UserDel(r.Context(), req.Actor, req.Name); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeResult(w, struct{}{})
}

type passwdRequest struct {
	Actor       string `json:"actor"`
	Target      string `json:"target"`
	NewPassword string `json:"new_password"`
}

func (s *Server) handlePasswd(w http.ResponseWriter, r *http.Request) {
	var req passwdRequest
	if err := decodeRequest(r, &req); err != nil {
		s.writeError(w, dfserrors.New(dfserrors.InvalidSyntax, "%v", err))
		return
	}
	if err := s.Master.Passwd(r.Context(), req.Actor, req.Target, req.NewPassword); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeResult(w, struct{}{})
}

type userModRequest struct {
	Actor string `json:"actor"`
	Name  string `json:"name"`
	Group string `json:"group"`
	Add   bool   `json:"add"`
}

func (s *Server) handleUserMod(w http.ResponseWriter, r *http.Request) {
	var req userModRequest
	if err := decodeRequest(r, &req); err != nil {
		s.writeError(w, dfserrors.New(dfserrors.InvalidSyntax, "%v", err))
		return
	}
	if err := s.Master.UserMod(r.Context(), req.Actor, req.Name, req.Group, req.Add); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeResult(w, struct{}{})
}

func (s *Server) handleGroupAdd(w http.ResponseWriter, r *http.Request) {
	var req nameRequest
	if err := decodeRequest(r, &req); err != nil {
		s.writeError(w, dfserrors.New(dfserrors.InvalidSyntax, "%v", err))
		return
	}
	if err := s.Master.GroupAdd(r.Context(), req.Actor, req.Name); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeResult(w, struct{}{})
}

func (s *Server) handleGroupDel(w http.ResponseWriter, r *http.Request) {
	var req nameRequest
	if err := decodeRequest(r, &req); err != nil {
		s.writeError(w, dfserrors.New(dfserrors.InvalidSyntax, "%v", err))
		return
	}
	if err := s.Master.GroupDel(r.Context(), req.Actor, req.Name); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeResult(w, struct{}{})
}
