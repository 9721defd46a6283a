package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v3"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/signalmesh/server/internal/auth"
	"github.com/signalmesh/server/internal/userdb"
)

var testTimeout = fiber.TestConfig{Timeout: 10 * time.Second}

// fakeStore implements userdb.Store for handler tests.
type fakeStore struct {
	snap *userdb.Snapshot
}

func (f *fakeStore) Load(context.Context) (*userdb.Snapshot, error)   { return f.snap, nil }
func (f *fakeStore) Reload(context.Context) (*userdb.Snapshot, error) { return f.snap, nil }
func (f *fakeStore) VerifyPassword(stored, candidate string) bool     { return stored == candidate }

func newTestApp(t *testing.T) (*fiber.App, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	store := &fakeStore{
		snap: &userdb.Snapshot{
			Credentials: map[string]string{"alice": "hunter2"},
			Profiles:    map[string]userdb.Profile{"alice": {FullName: "Alice Example"}},
		},
	}
	svc := auth.NewService(store, rdb, "test-secret", 15*time.Minute, 24*time.Hour, "test-issuer", zerolog.Nop())
	h := &AuthHandler{Auth: svc}

	app := fiber.New()
	app.Post("/api/v1/auth/login", h.Login)
	app.Post("/api/v1/auth/refresh", h.Refresh)
	return app, rdb
}

func doRequest(t *testing.T, app *fiber.App, method, path string, body any) *http.Response {
	t.Helper()
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = strings.NewReader(string(b))
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req, testTimeout)
	if err != nil {
		t.Fatalf("app.Test() error = %v", err)
	}
	return resp
}

func decodeBody(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	defer func() { _ = resp.Body.Close() }()
	var out map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode response body: %v", err)
	}
	return out
}

func TestLoginSuccess(t *testing.T) {
	t.Parallel()
	app, _ := newTestApp(t)

	resp := doRequest(t, app, http.MethodPost, "/api/v1/auth/login", loginRequest{
		Username: "alice",
		Password: "hunter2",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}

	body := decodeBody(t, resp)
	data, ok := body["data"].(map[string]any)
	if !ok {
		t.Fatalf("response missing data field: %v", body)
	}
	if data["username"] != "alice" {
		t.Errorf("username = %v, want alice", data["username"])
	}
	if data["access_token"] == "" || data["refresh_token"] == "" {
		t.Error("response missing tokens")
	}
}

func TestLoginWrongPassword(t *testing.T) {
	t.Parallel()
	app, _ := newTestApp(t)

	resp := doRequest(t, app, http.MethodPost, "/api/v1/auth/login", loginRequest{
		Username: "alice",
		Password: "wrong",
	})
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusUnauthorized)
	}
}

func TestLoginMissingFields(t *testing.T) {
	t.Parallel()
	app, _ := newTestApp(t)

	resp := doRequest(t, app, http.MethodPost, "/api/v1/auth/login", loginRequest{Username: "alice"})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusBadRequest)
	}
}

func TestRefreshFlow(t *testing.T) {
	t.Parallel()
	app, _ := newTestApp(t)

	loginResp := doRequest(t, app, http.MethodPost, "/api/v1/auth/login", loginRequest{
		Username: "alice",
		Password: "hunter2",
	})
	loginBody := decodeBody(t, loginResp)
	data := loginBody["data"].(map[string]any)
	refreshToken := data["refresh_token"].(string)

	resp := doRequest(t, app, http.MethodPost, "/api/v1/auth/refresh", refreshRequest{RefreshToken: refreshToken})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}

	body := decodeBody(t, resp)
	refreshed := body["data"].(map[string]any)
	if refreshed["access_token"] == "" || refreshed["refresh_token"] == "" {
		t.Error("refresh response missing tokens")
	}
	if refreshed["refresh_token"] == refreshToken {
		t.Error("refresh returned the same refresh token")
	}
}

func TestRefreshReused(t *testing.T) {
	t.Parallel()
	app, _ := newTestApp(t)

	loginResp := doRequest(t, app, http.MethodPost, "/api/v1/auth/login", loginRequest{
		Username: "alice",
		Password: "hunter2",
	})
	loginBody := decodeBody(t, loginResp)
	data := loginBody["data"].(map[string]any)
	refreshToken := data["refresh_token"].(string)

	first := doRequest(t, app, http.MethodPost, "/api/v1/auth/refresh", refreshRequest{RefreshToken: refreshToken})
	if first.StatusCode != http.StatusOK {
		t.Fatalf("first refresh status = %d, want %d", first.StatusCode, http.StatusOK)
	}

	second := doRequest(t, app, http.MethodPost, "/api/v1/auth/refresh", refreshRequest{RefreshToken: refreshToken})
	if second.StatusCode != http.StatusUnauthorized {
		t.Fatalf("second refresh status = %d, want %d", second.StatusCode, http.StatusUnauthorized)
	}
}

func TestRefreshMissingToken(t *testing.T) {
	t.Parallel()
	app, _ := newTestApp(t)

	resp := doRequest(t, app, http.MethodPost, "/api/v1/auth/refresh", refreshRequest{})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusBadRequest)
	}
}
