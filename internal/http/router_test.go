package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"pebble-sync/internal/config"
	"pebble-sync/internal/logging"
	"pebble-sync/internal/repos"
	"pebble-sync/internal/services"
)

func setupRouter(t *testing.T, mutate func(*config.Config)) (http.Handler, *services.KeyService) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	kv, err := repos.OpenSQLiteKV(context.Background(), "file::memory:")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = kv.Close() })

	logger := logging.Discard()
	cfg := config.Config{
		MasterSecret:   "test-master",
		AllowedOrigins: []string{"app://obsidian.md", "http://localhost:5173"},
	}
	if mutate != nil {
		mutate(&cfg)
	}
	keys := services.NewKeyService(kv, cfg.MasterSecret, logger)
	history := services.NewHistoryService(kv, logger)
	return NewRouter(cfg, logger, history, keys), keys
}

func do(r http.Handler, method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestPushFetchFlow(t *testing.T) {
	r, _ := setupRouter(t, nil)

	rec := do(r, http.MethodPost, "/sync/push", `{"type":"note","markdown":"hello","id":"n1","ttlDays":9999}`, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("push status=%d body=%s", rec.Code, rec.Body.String())
	}
	var pushed struct {
		Success bool   `json:"success"`
		SyncID  string `json:"syncId"`
	}
	_ = json.Unmarshal(rec.Body.Bytes(), &pushed)
	if !pushed.Success || pushed.SyncID == "" {
		t.Fatalf("unexpected push body: %s", rec.Body.String())
	}

	rec = do(r, http.MethodGet, "/sync/fetch", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("fetch status=%d body=%s", rec.Code, rec.Body.String())
	}
	var fetched struct {
		Items []struct {
			Markdown string   `json:"markdown"`
			TTLDays  int      `json:"ttlDays"`
			Tags     []string `json:"tags"`
		} `json:"items"`
	}
	_ = json.Unmarshal(rec.Body.Bytes(), &fetched)
	if len(fetched.Items) != 1 || fetched.Items[0].Markdown != "hello" || fetched.Items[0].TTLDays != 7 {
		t.Fatalf("unexpected fetch body: %s", rec.Body.String())
	}
	if fetched.Items[0].Tags == nil {
		t.Fatalf("tags must be present: %s", rec.Body.String())
	}
}

func TestPushValidation(t *testing.T) {
	r, _ := setupRouter(t, nil)

	for _, body := range []string{`{"type":"memo","markdown":"x"}`, `{"type":"note","markdown":""}`, `not json`} {
		rec := do(r, http.MethodPost, "/sync/push", body, nil)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("body %q: expected 400, got %d", body, rec.Code)
		}
		if !strings.Contains(rec.Body.String(), `"message"`) {
			t.Fatalf("expected message field: %s", rec.Body.String())
		}
	}
}

func TestPushWithBearer(t *testing.T) {
	r, keys := setupRouter(t, func(c *config.Config) { c.RequireAuth = true })

	rec := do(r, http.MethodPost, "/sync/push", `{"type":"note","markdown":"x"}`, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rec.Code)
	}

	created, err := keys.Create(context.Background(), services.CreateKeyInput{})
	if err != nil {
		t.Fatal(err)
	}
	auth := map[string]string{"Authorization": "Bearer " + created.Token}
	rec = do(r, http.MethodPost, "/sync/push", `{"type":"note","markdown":"x"}`, auth)
	if rec.Code != http.StatusOK {
		t.Fatalf("push with token status=%d body=%s", rec.Code, rec.Body.String())
	}

	rec = do(r, http.MethodPost, "/sync/push", `{"type":"note","markdown":"x"}`, map[string]string{"Authorization": "Bearer garbage"})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for malformed token, got %d", rec.Code)
	}
}

func TestInvalidTokenRejectedEvenWhenOptional(t *testing.T) {
	r, _ := setupRouter(t, nil)

	rec := do(r, http.MethodPost, "/sync/push", `{"type":"note","markdown":"x"}`, map[string]string{"Authorization": "Bearer nobody.secret"})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d body=%s", rec.Code, rec.Body.String())
	}
}

func TestHistoryRequiresToken(t *testing.T) {
	r, keys := setupRouter(t, nil)

	rec := do(r, http.MethodGet, "/sync/history", "", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}

	created, err := keys.Create(context.Background(), services.CreateKeyInput{})
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 3; i++ {
		do(r, http.MethodPost, "/sync/push", `{"type":"note","markdown":"x"}`, nil)
	}
	rec = do(r, http.MethodGet, "/sync/history?limit=2", "", map[string]string{"Authorization": "Bearer " + created.Token})
	if rec.Code != http.StatusOK {
		t.Fatalf("history status=%d body=%s", rec.Code, rec.Body.String())
	}
	var page struct {
		History []json.RawMessage `json:"history"`
		Cursor  *string           `json:"cursor"`
		HasMore bool              `json:"hasMore"`
	}
	_ = json.Unmarshal(rec.Body.Bytes(), &page)
	if len(page.History) != 2 || !page.HasMore || page.Cursor == nil {
		t.Fatalf("unexpected history page: %s", rec.Body.String())
	}
}

func TestKeyLifecycle(t *testing.T) {
	r, _ := setupRouter(t, func(c *config.Config) { c.AdminToken = "admin" })
	admin := map[string]string{"Authorization": "Bearer admin"}

	rec := do(r, http.MethodPost, "/keys/create", "", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without admin token, got %d", rec.Code)
	}

	rec = do(r, http.MethodPost, "/keys/create", `{"keyId":"desk","secret":"s3cret","name":"Desk"}`, admin)
	if rec.Code != http.StatusOK {
		t.Fatalf("create status=%d body=%s", rec.Code, rec.Body.String())
	}
	rec = do(r, http.MethodPost, "/keys/create", `{"keyId":"desk","secret":"other"}`, admin)
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 on duplicate, got %d", rec.Code)
	}

	rec = do(r, http.MethodPost, "/keys/create", "", map[string]string{"X-Admin-Token": "admin"})
	if rec.Code != http.StatusOK {
		t.Fatalf("generated create status=%d body=%s", rec.Code, rec.Body.String())
	}

	rec = do(r, http.MethodGet, "/keys/list", "", admin)
	if rec.Code != http.StatusOK {
		t.Fatalf("list status=%d", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "keyHash") || strings.Contains(rec.Body.String(), "s3cret") {
		t.Fatalf("list leaked secret material: %s", rec.Body.String())
	}
	var listed struct {
		Keys []struct {
			KeyID string `json:"keyId"`
		} `json:"keys"`
	}
	_ = json.Unmarshal(rec.Body.Bytes(), &listed)
	if len(listed.Keys) != 2 {
		t.Fatalf("expected 2 keys: %s", rec.Body.String())
	}

	rec = do(r, http.MethodPost, "/keys/revoke", `{"keyId":"desk"}`, admin)
	if rec.Code != http.StatusOK {
		t.Fatalf("revoke status=%d", rec.Code)
	}
	rec = do(r, http.MethodPost, "/sync/push", `{"type":"note","markdown":"x"}`, map[string]string{"Authorization": "Bearer desk.s3cret"})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("revoked key should be rejected, got %d", rec.Code)
	}
	rec = do(r, http.MethodPost, "/keys/revoke", `{"keyId":"ghost"}`, admin)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown key, got %d", rec.Code)
	}
}

func TestCORSPreflight(t *testing.T) {
	r, _ := setupRouter(t, nil)

	rec := do(r, http.MethodOptions, "/sync/push", "", map[string]string{
		"Origin":                        "app://obsidian.md",
		"Access-Control-Request-Method": "POST",
	})
	if rec.Code != http.StatusNoContent {
		t.Fatalf("allowed preflight status=%d", rec.Code)
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "app://obsidian.md" {
		t.Fatalf("expected echoed origin, got %q", got)
	}
	if rec.Header().Get("Access-Control-Allow-Credentials") != "true" {
		t.Fatalf("expected credentials allowed")
	}

	rec = do(r, http.MethodOptions, "/sync/push", "", map[string]string{
		"Origin":                        "https://evil.example",
		"Access-Control-Request-Method": "POST",
	})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("disallowed preflight status=%d", rec.Code)
	}
}

func TestCORSOnSimpleRequest(t *testing.T) {
	r, _ := setupRouter(t, nil)

	rec := do(r, http.MethodGet, "/sync/fetch", "", map[string]string{"Origin": "http://localhost:5173"})
	if rec.Code != http.StatusOK {
		t.Fatalf("fetch status=%d", rec.Code)
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:5173" {
		t.Fatalf("expected echoed origin, got %q", got)
	}

	rec = do(r, http.MethodGet, "/sync/fetch", "", map[string]string{"Origin": "https://evil.example"})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("disallowed origin status=%d", rec.Code)
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Fatalf("unexpected allow-origin %q", got)
	}

	rec = do(r, http.MethodGet, "/healthz", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("healthz status=%d", rec.Code)
	}
}
