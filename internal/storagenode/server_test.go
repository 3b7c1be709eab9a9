package storagenode

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"
)

func newTestServer(t *testing.T, id string) (*Server, *BlobStore) {
	t.Helper()
	bs := newTestBlobStore(t)
	disc := NewMasterDiscovery([]string{"http://nn-a", "http://nn-b"}, nil)
	srv := NewServer(id, bs, disc, nil)
	return srv, bs
}

func TestPutThenGetChunk(t *testing.T) {
	srv, _ := newTestServer(t, "A")
	ts := httptest.NewServer(srv.Routes())
	defer ts.Close()

	form := url.Values{"chunk_name": {"f1_0"}, "chunk_payload": {encodeLatin1([]byte("payload"))}}
	resp, err := http.PostForm(ts.URL+"/chunk", form)
	if err != nil {
		t.Fatalf("PUT chunk: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("PUT status = %d", resp.StatusCode)
	}

	get, err := http.Get(ts.URL + "/chunk?chunk_name=f1_0")
	if err != nil {
		t.Fatalf("GET chunk: %v", err)
	}
	defer get.Body.Close()
	var buf bytes.Buffer
	buf.ReadFrom(get.Body)
	if buf.String() != "payload" {
		t.Fatalf("got %q, want %q", buf.String(), "payload")
	}
}

func TestPutChunkForwardsReplicationChain(t *testing.T) {
	received := make(chan url.Values, 1)
	next := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.ParseForm()
		received <- r.PostForm
		w.WriteHeader(http.StatusOK)
	}))
	defer next.Close()

	srv, _ := newTestServer(t, "A")
	ts := httptest.NewServer(srv.Routes())
	defer ts.Close()

	form := url.Values{
		"chunk_name":     {"f1_0"},
		"chunk_payload":  {encodeLatin1([]byte("payload"))},
		"chunk_replicas": {next.URL + ",http://unused"},
	}
	resp, err := http.PostForm(ts.URL+"/chunk", form)
	if err != nil {
		t.Fatalf("PUT chunk: %v", err)
	}
	resp.Body.Close()

	select {
	case got := <-received:
		if got.Get("chunk_name") != "f1_0" {
			t.Errorf("forwarded chunk_name = %q", got.Get("chunk_name"))
		}
		if got.Get("chunk_replicas") != "http://unused" {
			t.Errorf("forwarded chunk_replicas = %q, want remainder only", got.Get("chunk_replicas"))
		}
	case <-time.After(2 * time.Second):
		t.Fatal("replication chain hop never arrived")
	}
}

func TestDeleteChunksByPrefix(t *testing.T) {
	srv, bs := newTestServer(t, "A")
	bs.Put("f1_0", []byte("a"))
	bs.Put("f2_0", []byte("b"))
	ts := httptest.NewServer(srv.Routes())
	defer ts.Close()

	resp, err := http.PostForm(ts.URL+"/chunks/delete", url.Values{"prefixes": {"f1_"}})
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	resp.Body.Close()

	if _, err := bs.Get("f1_0"); err == nil {
		t.Error("expected f1_0 deleted")
	}
	if _, err := bs.Get("f2_0"); err != nil {
		t.Error("expected f2_0 to survive")
	}
}

func TestRenameChunksByPrefix(t *testing.T) {
	srv, bs := newTestServer(t, "A")
	bs.Put("old_0", []byte("x"))
	ts := httptest.NewServer(srv.Routes())
	defer ts.Close()

	resp, err := http.PostForm(ts.URL+"/chunks/rename", url.Values{
		"old_prefixes": {"old_"},
		"new_prefixes": {"new_"},
	})
	if err != nil {
		t.Fatalf("rename: %v", err)
	}
	resp.Body.Close()

	if _, err := bs.Get("new_0"); err != nil {
		t.Errorf("expected renamed chunk to exist: %v", err)
	}
}

func TestRecoveryDeleteRemovesChunks(t *testing.T) {
	srv, bs := newTestServer(t, "A")
	bs.Put("trash_0", []byte("x"))
	ts := httptest.NewServer(srv.Routes())
	defer ts.Close()

	body, _ := json.Marshal([]string{"trash_0"})
	resp, err := http.Post(ts.URL+"/recovery/delete", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("recovery delete: %v", err)
	}
	resp.Body.Close()

	if _, err := bs.Get("trash_0"); err == nil {
		t.Error("expected chunk removed by recovery delete")
	}
}

func TestGetMasterNameNode(t *testing.T) {
	srv, _ := newTestServer(t, "A")
	ts := httptest.NewServer(srv.Routes())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/get_master_namenode")
	if err != nil {
		t.Fatalf("get_master_namenode: %v", err)
	}
	defer resp.Body.Close()
	var buf bytes.Buffer
	buf.ReadFrom(resp.Body)
	if !strings.Contains(buf.String(), "nn-a") {
		t.Errorf("got %q, want the first configured name node", buf.String())
	}
}
