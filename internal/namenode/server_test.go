package namenode

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"distfs/internal/auth"
	"distfs/internal/store"
	"distfs/internal/wire"
)

func newTestServerWithTokens(t *testing.T) (*httptest.Server, *auth.TokenService) {
	t.Helper()
	m := newTestMaster(t, nil)
	batch, err := m.Admin.UserAdd(context.Background(), "alice", "hunter2")
	if err != nil {
		t.Fatalf("UserAdd: %v", err)
	}
	if err := store.Apply(context.Background(), m.Tree.Store, batch); err != nil {
		t.Fatalf("apply useradd: %v", err)
	}
	tokens := auth.NewTokenService([]byte("test-secret"), time.Hour)
	follower := NewFollower(m.Tree.Store, nil)
	srv := NewServer(m, follower, tokens, nil)
	return httptest.NewServer(srv.Routes()), tokens
}

func rpcPost(t *testing.T, base, verb, token string, req any) *http.Response {
	t.Helper()
	body, err := wire.Marshal(req)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	httpReq, err := http.NewRequest(http.MethodPost, base+"/"+verb, bytes.NewReader(body))
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(httpReq)
	if err != nil {
		t.Fatalf("do: %v", err)
	}
	return resp
}

func TestLoginRejectsWrongPassword(t *testing.T) {
	ts, _ := newTestServerWithTokens(t)
	defer ts.Close()

	resp := rpcPost(t, ts.URL, "login", "", struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}{"alice", "wrong"})
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusOK {
		t.Fatal("expected login to fail with wrong password")
	}
}

func TestLoginThenMkdirRequiresMatchingToken(t *testing.T) {
	ts, _ := newTestServerWithTokens(t)
	defer ts.Close()

	resp := rpcPost(t, ts.URL, "login", "", struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}{"alice", "hunter2"})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login status = %d, want 200", resp.StatusCode)
	}
	var loginResp struct {
		Token string `json:"token"`
	}
	if err := wire.Unmarshal(readBody(t, resp), &loginResp); err != nil {
		t.Fatalf("decode login response: %v", err)
	}
	if loginResp.Token == "" {
		t.Fatal("expected non-empty token")
	}

	mkdirReq := struct {
		Actor         string `json:"actor"`
		Path          string `json:"path"`
		CreateParents bool   `json:"create_parents"`
	}{"alice", "/alice-home", false}

	ok := rpcPost(t, ts.URL, "mkdir", loginResp.Token, mkdirReq)
	defer ok.Body.Close()
	if ok.StatusCode != http.StatusOK {
		t.Fatalf("mkdir with valid token status = %d, want 200", ok.StatusCode)
	}

	missing := rpcPost(t, ts.URL, "mkdir", "", mkdirReq)
	defer missing.Body.Close()
	if missing.StatusCode == http.StatusOK {
		t.Fatal("expected mkdir without a token to be rejected")
	}

	spoofed := struct {
		Actor         string `json:"actor"`
		Path          string `json:"path"`
		CreateParents bool   `json:"create_parents"`
	}{"root", "/root-home", false}
	forbidden := rpcPost(t, ts.URL, "mkdir", loginResp.Token, spoofed)
	defer forbidden.Body.Close()
	if forbidden.StatusCode == http.StatusOK {
		t.Fatal("expected mkdir acting as a different user than the token's subject to be rejected")
	}
}

func readBody(t *testing.T, resp *http.Response) []byte {
	t.Helper()
	buf := new(bytes.Buffer)
	if _, err := buf.ReadFrom(resp.Body); err != nil {
		t.Fatalf("read body: %v", err)
	}
	return buf.Bytes()
}
