package main

import (
	"database/sql"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	_ "modernc.org/sqlite"

	"github.com/hazyhaar/fuite/fuite"
)

func testService(t *testing.T) *fuite.Service {
	t.Helper()
	dir := t.TempDir()
	rulesPath := filepath.Join(dir, "rules.yaml")
	if err := os.WriteFile(rulesPath, []byte("rules:\n  - search: 'api_key'\n    description: api key\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })

	cfg := &fuite.Config{
		RulesFile: rulesPath,
		Sites:     []fuite.SiteConfig{{Name: "pastebin"}},
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	svc, err := fuite.New(db, cfg, logger)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { svc.Close() })
	return svc
}

func TestAdminRouterEndpoints(t *testing.T) {
	// WHAT: /healthz, /api/status and /api/rules respond with well-formed
	// JSON on a fresh service.
	// WHY: Operators script against these paths.
	ts := httptest.NewServer(newAdminRouter(testService(t), ""))
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/healthz")
	if err != nil || resp.StatusCode != 200 {
		t.Fatalf("healthz: %v %v", resp.StatusCode, err)
	}
	resp.Body.Close()

	resp, err = http.Get(ts.URL + "/api/status")
	if err != nil {
		t.Fatal(err)
	}
	var statuses []map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&statuses); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	resp.Body.Close()
	if len(statuses) != 1 || statuses[0]["site"] != "pastebin" {
		t.Fatalf("status = %+v", statuses)
	}

	resp, err = http.Get(ts.URL + "/api/rules")
	if err != nil {
		t.Fatal(err)
	}
	var rulesOut struct {
		Generation int64            `json:"generation"`
		Rules      []map[string]any `json:"rules"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&rulesOut); err != nil {
		t.Fatalf("decode rules: %v", err)
	}
	resp.Body.Close()
	if rulesOut.Generation != 1 || len(rulesOut.Rules) != 1 {
		t.Fatalf("rules = %+v", rulesOut)
	}
}

func TestAdminRouterAuth(t *testing.T) {
	// WHAT: With a token configured, /api routes reject missing or wrong
	// Bearer tokens and accept the right one; /healthz stays open.
	// WHY: The incident list contains sensitive match samples.
	ts := httptest.NewServer(newAdminRouter(testService(t), "s3cret"))
	defer ts.Close()

	resp, _ := http.Get(ts.URL + "/healthz")
	if resp.StatusCode != 200 {
		t.Fatalf("healthz with token set = %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp, _ = http.Get(ts.URL + "/api/status")
	if resp.StatusCode != 401 {
		t.Fatalf("no token = %d, want 401", resp.StatusCode)
	}
	resp.Body.Close()

	req, _ := http.NewRequest("GET", ts.URL+"/api/status", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	resp, _ = http.DefaultClient.Do(req)
	if resp.StatusCode != 401 {
		t.Fatalf("wrong token = %d, want 401", resp.StatusCode)
	}
	resp.Body.Close()

	req, _ = http.NewRequest("GET", ts.URL+"/api/status", nil)
	req.Header.Set("Authorization", "Bearer s3cret")
	resp, _ = http.DefaultClient.Do(req)
	if resp.StatusCode != 200 {
		t.Fatalf("valid token = %d, want 200", resp.StatusCode)
	}
	resp.Body.Close()
}
