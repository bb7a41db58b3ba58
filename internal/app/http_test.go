package app

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"mosaic/api/internal/config"
	"mosaic/api/internal/realtime"
	"mosaic/api/internal/session"
	"mosaic/api/internal/store"
)

func newTestServer(t *testing.T) (*httptest.Server, *store.MemoryStore) {
	t.Helper()
	cfg := config.Load()
	activityStore := store.NewMemoryStore()
	sessions := session.NewMemoryStore()
	engine := realtime.NewEngine(activityStore, realtime.Options{})
	t.Cleanup(engine.Close)

	service := NewService(cfg, activityStore, sessions, engine)
	srv := httptest.NewServer(NewHTTPServer(service, cfg.CORSOrigin).Handler())
	t.Cleanup(srv.Close)
	return srv, activityStore
}

func doJSON(t *testing.T, method, url, token string, body any) (*http.Response, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req, err := http.NewRequest(method, url, &buf)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer resp.Body.Close()

	var payload map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&payload)
	return resp, payload
}

func login(t *testing.T, srv *httptest.Server, name string) string {
	t.Helper()
	resp, payload := doJSON(t, http.MethodPost, srv.URL+"/api/session/login", "", map[string]string{"name": name})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login: expected 200, got %d", resp.StatusCode)
	}
	token, _ := payload["token"].(string)
	if token == "" {
		t.Fatal("login returned no token")
	}
	return token
}

func TestHealth(t *testing.T) {
	srv, _ := newTestServer(t)
	resp, payload := doJSON(t, http.MethodGet, srv.URL+"/api/health", "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if payload["ok"] != true {
		t.Errorf("expected ok=true, got %v", payload)
	}
}

func TestReadyReportsStoreFault(t *testing.T) {
	srv, activityStore := newTestServer(t)

	resp, _ := doJSON(t, http.MethodGet, srv.URL+"/api/ready", "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 while healthy, got %d", resp.StatusCode)
	}

	activityStore.SetFailure(errors.New("store unreachable"))
	resp, payload := doJSON(t, http.MethodGet, srv.URL+"/api/ready", "", nil)
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 with the store down, got %d", resp.StatusCode)
	}
	if payload["ok"] != false {
		t.Errorf("expected ok=false, got %v", payload)
	}
}

func TestLoginValidation(t *testing.T) {
	srv, _ := newTestServer(t)
	resp, payload := doJSON(t, http.MethodPost, srv.URL+"/api/session/login", "", map[string]string{"name": "   "})
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", resp.StatusCode)
	}
	if payload["code"] != "VALIDATION_ERROR" {
		t.Errorf("expected VALIDATION_ERROR, got %v", payload["code"])
	}
}

func TestSessionRoundTrip(t *testing.T) {
	srv, _ := newTestServer(t)
	token := login(t, srv, "Avery")

	resp, payload := doJSON(t, http.MethodGet, srv.URL+"/api/session", token, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if payload["authenticated"] != true || payload["userName"] != "Avery" {
		t.Errorf("unexpected session payload: %v", payload)
	}

	doJSON(t, http.MethodPost, srv.URL+"/api/session/logout", token, nil)

	_, payload = doJSON(t, http.MethodGet, srv.URL+"/api/session", token, nil)
	if payload["authenticated"] != false {
		t.Error("expected session to be revoked after logout")
	}
}

func TestActivitiesRequireSession(t *testing.T) {
	srv, _ := newTestServer(t)
	resp, payload := doJSON(t, http.MethodGet, srv.URL+"/api/activities", "", nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}
	if payload["code"] != "UNAUTHORIZED" {
		t.Errorf("expected UNAUTHORIZED, got %v", payload["code"])
	}
}

func TestActivityCRUD(t *testing.T) {
	srv, _ := newTestServer(t)
	token := login(t, srv, "Avery")

	resp, payload := doJSON(t, http.MethodPost, srv.URL+"/api/activities", token, map[string]any{"name": "Sprint retro"})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create: expected 201, got %d", resp.StatusCode)
	}
	activity := payload["activity"].(map[string]any)
	activityID := activity["id"].(string)
	if activity["phase"] != "gathering" || activity["status"] != "active" {
		t.Errorf("unexpected new activity: %v", activity)
	}
	settings := activity["settings"].(map[string]any)
	if settings["votingEnabled"] != true {
		t.Errorf("expected default settings, got %v", settings)
	}

	resp, payload = doJSON(t, http.MethodGet, srv.URL+"/api/activities/"+activityID, token, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("get: expected 200, got %d", resp.StatusCode)
	}

	newName := "Q3 retro"
	resp, payload = doJSON(t, http.MethodPut, srv.URL+"/api/activities/"+activityID, token, map[string]any{"name": newName})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("update: expected 200, got %d", resp.StatusCode)
	}
	if payload["activity"].(map[string]any)["name"] != newName {
		t.Errorf("expected renamed activity, got %v", payload)
	}

	resp, _ = doJSON(t, http.MethodGet, srv.URL+"/api/activities", token, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("list: expected 200, got %d", resp.StatusCode)
	}

	resp, _ = doJSON(t, http.MethodDelete, srv.URL+"/api/activities/"+activityID, token, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("delete: expected 200, got %d", resp.StatusCode)
	}

	resp, payload = doJSON(t, http.MethodGet, srv.URL+"/api/activities/"+activityID, token, nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("get after delete: expected 404, got %d", resp.StatusCode)
	}
	if payload["code"] != "NOT_FOUND" {
		t.Errorf("expected NOT_FOUND, got %v", payload["code"])
	}
}

func TestUpdateActivityValidation(t *testing.T) {
	srv, _ := newTestServer(t)
	token := login(t, srv, "Avery")

	_, payload := doJSON(t, http.MethodPost, srv.URL+"/api/activities", token, map[string]any{"name": "Sprint retro"})
	activityID := payload["activity"].(map[string]any)["id"].(string)

	resp, _ := doJSON(t, http.MethodPut, srv.URL+"/api/activities/"+activityID, token, map[string]any{})
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Errorf("empty update: expected 422, got %d", resp.StatusCode)
	}

	empty := ""
	resp, _ = doJSON(t, http.MethodPut, srv.URL+"/api/activities/"+activityID, token, map[string]any{"name": empty})
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Errorf("blank name: expected 422, got %d", resp.StatusCode)
	}
}

func TestUnknownRoute(t *testing.T) {
	srv, _ := newTestServer(t)
	token := login(t, srv, "Avery")
	resp, _ := doJSON(t, http.MethodGet, srv.URL+"/api/nope", token, nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("expected 404, got %d", resp.StatusCode)
	}
}

func TestCORSAndRequestID(t *testing.T) {
	srv, _ := newTestServer(t)
	req, _ := http.NewRequest(http.MethodOptions, srv.URL+"/api/activities", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("expected 204 for preflight, got %d", resp.StatusCode)
	}
	if resp.Header.Get("Access-Control-Allow-Origin") == "" {
		t.Error("expected CORS headers on preflight response")
	}
	if resp.Header.Get("X-Request-ID") == "" {
		t.Error("expected a request id header")
	}
}
