package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/jonwraymond/gatekeep/config"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	ctx := context.Background()

	cfg := config.Default()
	cfg.Token.Secret = "0123456789abcdef0123456789abcdef"
	cfg.Password.Cost = 4
	cfg.Observe.Logging.Enabled = false
	if err := cfg.Resolve(ctx, nil); err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}

	d, err := newDaemon(ctx, cfg, []string{"alice:alice-pw:user", "root:root-pw:admin"})
	if err != nil {
		t.Fatalf("newDaemon() error = %v", err)
	}
	t.Cleanup(d.close)

	srv := httptest.NewServer(d.handler)
	t.Cleanup(srv.Close)
	return srv
}

type envelope struct {
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message"`
	Error   int             `json:"error"`
}

func call(t *testing.T, method, url, bearer, body string) (int, envelope) {
	t.Helper()
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	if err != nil {
		t.Fatalf("NewRequest() error = %v", err)
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s error = %v", method, url, err)
	}
	defer resp.Body.Close()

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		t.Fatalf("decode %s %s: %v", method, url, err)
	}
	return resp.StatusCode, env
}

func login(t *testing.T, base, id, pw string) string {
	t.Helper()
	code, env := call(t, http.MethodPost, base+"/auth/login", "", `{"identifier":"`+id+`","password":"`+pw+`"}`)
	if code != http.StatusOK {
		t.Fatalf("login %s = %d %+v", id, code, env)
	}
	var data struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(env.Data, &data); err != nil {
		t.Fatalf("decode token: %v", err)
	}
	return data.Token
}

func TestDaemon_Flow(t *testing.T) {
	srv := newTestServer(t)
	userTok := login(t, srv.URL, "alice", "alice-pw")
	adminTok := login(t, srv.URL, "root", "root-pw")

	if code, env := call(t, http.MethodGet, srv.URL+"/me", userTok, ""); code != http.StatusOK || !strings.Contains(string(env.Data), `"alice"`) {
		t.Errorf("GET /me = %d %s", code, env.Data)
	}
	if code, env := call(t, http.MethodGet, srv.URL+"/admin", userTok, ""); code != http.StatusForbidden || env.Error != 1007 {
		t.Errorf("GET /admin as user = %d %+v", code, env)
	}
	if code, _ := call(t, http.MethodGet, srv.URL+"/admin", adminTok, ""); code != http.StatusOK {
		t.Errorf("GET /admin as admin = %d", code)
	}

	if code, _ := call(t, http.MethodPost, srv.URL+"/auth/logout", userTok, ""); code != http.StatusOK {
		t.Fatalf("POST /auth/logout = %d", code)
	}
	if code, env := call(t, http.MethodGet, srv.URL+"/me", userTok, ""); code != http.StatusUnauthorized || env.Error != 2001 {
		t.Errorf("GET /me after logout = %d %+v", code, env)
	}

	if code, env := call(t, http.MethodPost, srv.URL+"/auth/login", "", `{"identifier":"alice","password":"nope"}`); code != http.StatusUnauthorized || env.Error != 1004 {
		t.Errorf("bad login = %d %+v", code, env)
	}
}

func TestDaemon_RegisterAndChangePassword(t *testing.T) {
	srv := newTestServer(t)

	code, env := call(t, http.MethodPost, srv.URL+"/auth/register", "", `{"email":"carol@example.com","password":"carol-first-pw"}`)
	if code != http.StatusCreated {
		t.Fatalf("POST /auth/register = %d %+v", code, env)
	}
	if code, env := call(t, http.MethodPost, srv.URL+"/auth/register", "", `{"email":"carol@example.com","password":"carol-first-pw"}`); code != http.StatusConflict || env.Error != 1005 {
		t.Errorf("duplicate register = %d %+v", code, env)
	}

	tok := login(t, srv.URL, "carol@example.com", "carol-first-pw")
	body := `{"current_password":"carol-first-pw","new_password":"carol-second-pw"}`
	if code, env := call(t, http.MethodPut, srv.URL+"/profile/update-password", tok, body); code != http.StatusOK {
		t.Fatalf("PUT /profile/update-password = %d %+v", code, env)
	}
	login(t, srv.URL, "carol@example.com", "carol-second-pw")
}

func TestDaemon_Health(t *testing.T) {
	srv := newTestServer(t)

	for _, path := range []string{"/healthz", "/readyz"} {
		resp, err := http.Get(srv.URL + path)
		if err != nil {
			t.Fatalf("GET %s error = %v", path, err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Errorf("GET %s = %d, want 200", path, resp.StatusCode)
		}
	}
}

func TestRun_Help(t *testing.T) {
	if err := run([]string{"--help"}); err != nil {
		t.Fatalf("run(--help) error = %v", err)
	}
}

func TestRun_MissingSecret(t *testing.T) {
	t.Setenv("GATEKEEP_SIGNING_SECRET", "")
	if err := run(nil); err == nil {
		t.Fatal("run() without a signing secret should fail")
	}
}
