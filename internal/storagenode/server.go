package storagenode

import (
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"distfs/internal/logging"
)

// Server exposes the chunk HTTP surface of spec section 4.4: the
// GET/PUT/DELETE/POST chunk verbs, the two recovery verbs, and
// get_master_namenode for client-side master election.
type Server struct {
	ID         string // this SN's identifier, as configured
	Blobs      *BlobStore
	HTTPClient *http.Client
	Log        *slog.Logger

	discovery *MasterDiscovery
}

func NewServer(id string, blobs *BlobStore, discovery *MasterDiscovery, log *slog.Logger) *Server {
	return &Server{
		ID:         id,
		Blobs:      blobs,
		HTTPClient: &http.Client{Timeout: 10 * time.Second},
		Log:        logging.Default(log).With("component", "storagenode", "sn", id),
		discovery:  discovery,
	}
}

func (s *Server) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/chunk", s.handleChunk)
	mux.HandleFunc("/chunks/delete", s.handleDelete)
	mux.HandleFunc("/chunks/rename", s.handleRename)
	mux.HandleFunc("/recovery/put", s.handleRecoveryPut)
	mux.HandleFunc("/recovery/delete", s.handleRecoveryDelete)
	mux.HandleFunc("/get_master_namenode", s.handleGetMasterNameNode)
	return mux
}

func (s *Server) handleChunk(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.getChunk(w, r)
	case http.MethodPut, http.MethodPost:
		s.putChunk(w, r)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) getChunk(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("chunk_name")
	data, err := s.Blobs.Get(name)
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Write(data)
}

// putChunk writes a chunk locally, then if a replica chain is attached,
// pops the first SN and forwards the PUT to it with the remainder of
// the list, the replication-chain behavior of spec section 4.4.
func (s *Server) putChunk(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	name := r.PostFormValue("chunk_name")
	payload := decodeLatin1(r.PostFormValue("chunk_payload"))
	replicas := splitNonEmpty(r.PostFormValue("chunk_replicas"))

	if err := s.Blobs.Put(name, payload); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusOK)

	if len(replicas) > 0 {
		next, remainder := replicas[0], replicas[1:]
		go s.publishReplica(next, name, payload, remainder)
	}
}

// publishReplica runs the outbound half of the replication chain: PUT to
// the next hop with the remainder of the chain embedded so it continues
// SN-to-SN. A failure here is logged and dropped, never retried (spec
// section 7: "a failed PUT is logged and dropped").
func (s *Server) publishReplica(nextBase, chunk string, payload []byte, remainder []string) {
	form := url.Values{}
	form.Set("chunk_name", chunk)
	form.Set("chunk_payload", encodeLatin1(payload))
	form.Set("chunk_replicas", strings.Join(remainder, ","))

	resp, err := s.HTTPClient.PostForm(nextBase+"/chunk", form)
	if err != nil {
		s.Log.Warn("replication chain hop failed", "next", nextBase, "chunk", chunk, "error", err)
		return
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		s.Log.Warn("replication chain hop rejected", "next", nextBase, "chunk", chunk, "status", resp.StatusCode)
	}
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	prefixes := splitNonEmpty(r.PostFormValue("prefixes"))
	if err := s.Blobs.DeletePrefixes(prefixes); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleRename(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	oldPrefixes := splitNonEmpty(r.PostFormValue("old_prefixes"))
	newPrefixes := splitNonEmpty(r.PostFormValue("new_prefixes"))
	if err := s.Blobs.CopyPrefixes(oldPrefixes, newPrefixes); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// recoveryPutEntry is one (chunk, new_replica) pair of a recovery PUT
// request body.
type recoveryPutEntry struct {
	Chunk      string `json:"chunk"`
	NewReplica string `json:"new_replica"`
}

func (s *Server) handleRecoveryPut(w http.ResponseWriter, r *http.Request) {
	var entries []recoveryPutEntry
	if err := decodeJSONBody(r, &entries); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	for _, e := range entries {
		data, err := s.Blobs.Get(e.Chunk)
		if err != nil {
			s.Log.Warn("recovery put: local chunk missing", "chunk", e.Chunk, "error", err)
			continue
		}
		go s.publishReplica(e.NewReplica, e.Chunk, data, nil)
	}
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleRecoveryDelete(w http.ResponseWriter, r *http.Request) {
	var chunks []string
	if err := decodeJSONBody(r, &chunks); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	for _, c := range chunks {
		if err := s.Blobs.Delete(c); err != nil {
			s.Log.Warn("recovery delete failed", "chunk", c, "error", err)
		}
	}
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleGetMasterNameNode(w http.ResponseWriter, r *http.Request) {
	fmt.Fprint(w, s.discovery.CurrentMaster())
}

func splitNonEmpty(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, ",")
}
