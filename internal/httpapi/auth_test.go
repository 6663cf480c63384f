package httpapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"kihaan/backend/internal/service"
	"kihaan/backend/internal/store/memory"
)

func newAuthHandler(t *testing.T) http.Handler {
	t.Helper()
	repo := memory.New()
	svc := service.New(repo, nil, nil, service.Options{})
	auth := NewAuthManager(repo, strings.Repeat("a", 32), strings.Repeat("b", 32), 0, 0)
	return NewServer(svc, auth, "http://localhost:5173").Handler()
}

func register(t *testing.T, handler http.Handler, email, password string) {
	t.Helper()
	rec := doJSON(t, handler, http.MethodPost, "/api/v1/auth/register", "", map[string]any{
		"name": "Tester", "email": email, "password": password,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("register = %d: %s", rec.Code, rec.Body.String())
	}
}

func login(t *testing.T, handler http.Handler, email, password string) (*httptest.ResponseRecorder, *http.Cookie) {
	t.Helper()
	rec := doJSON(t, handler, http.MethodPost, "/api/v1/auth/login", "", map[string]any{
		"email": email, "password": password,
	})
	return rec, refreshCookie(rec)
}

func refreshCookie(rec *httptest.ResponseRecorder) *http.Cookie {
	for _, c := range rec.Result().Cookies() {
		if c.Name == refreshCookieName {
			return c
		}
	}
	return nil
}

func postWithCookie(t *testing.T, handler http.Handler, path string, cookie *http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, nil)
	if cookie != nil {
		req.AddCookie(cookie)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestLoginSetsHttpOnlyRefreshCookie(t *testing.T) {
	handler := newAuthHandler(t)
	register(t, handler, "a@example.com", "secret-pass")

	rec, cookie := login(t, handler, "a@example.com", "secret-pass")
	if rec.Code != http.StatusOK {
		t.Fatalf("login = %d: %s", rec.Code, rec.Body.String())
	}
	if cookie == nil {
		t.Fatal("refresh cookie not set")
	}
	if !cookie.HttpOnly || cookie.SameSite != http.SameSiteStrictMode {
		t.Fatalf("cookie flags: httpOnly=%v sameSite=%v", cookie.HttpOnly, cookie.SameSite)
	}
	if cookie.Path != refreshCookiePath {
		t.Fatalf("cookie path = %q, want %q", cookie.Path, refreshCookiePath)
	}
	if strings.Contains(rec.Body.String(), cookie.Value) {
		t.Fatal("refresh token leaked into the response body")
	}
}

func TestRefreshRotatesToken(t *testing.T) {
	handler := newAuthHandler(t)
	register(t, handler, "a@example.com", "secret-pass")
	_, first := login(t, handler, "a@example.com", "secret-pass")

	rec := postWithCookie(t, handler, "/api/v1/auth/refresh", first)
	if rec.Code != http.StatusOK {
		t.Fatalf("refresh = %d: %s", rec.Code, rec.Body.String())
	}
	second := refreshCookie(rec)
	if second == nil || second.Value == first.Value {
		t.Fatal("refresh did not rotate the token")
	}
	var body struct {
		AccessToken string `json:"accessToken"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil || body.AccessToken == "" {
		t.Fatalf("refresh body: %s", rec.Body.String())
	}

	// Replaying the rotated-out token must fail.
	rec = postWithCookie(t, handler, "/api/v1/auth/refresh", first)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("replayed refresh = %d, want 401", rec.Code)
	}

	// The rotated-in token still works.
	rec = postWithCookie(t, handler, "/api/v1/auth/refresh", second)
	if rec.Code != http.StatusOK {
		t.Fatalf("second refresh = %d: %s", rec.Code, rec.Body.String())
	}
}

func TestLogoutRevokesRefreshToken(t *testing.T) {
	handler := newAuthHandler(t)
	register(t, handler, "a@example.com", "secret-pass")
	_, cookie := login(t, handler, "a@example.com", "secret-pass")

	rec := postWithCookie(t, handler, "/api/v1/auth/logout", cookie)
	if rec.Code != http.StatusOK {
		t.Fatalf("logout = %d: %s", rec.Code, rec.Body.String())
	}
	cleared := refreshCookie(rec)
	if cleared == nil || cleared.MaxAge >= 0 {
		t.Fatal("logout did not clear the cookie")
	}

	rec = postWithCookie(t, handler, "/api/v1/auth/refresh", cookie)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("refresh after logout = %d, want 401", rec.Code)
	}
}

func TestLoginWrongPassword(t *testing.T) {
	handler := newAuthHandler(t)
	register(t, handler, "a@example.com", "secret-pass")

	rec, _ := login(t, handler, "a@example.com", "wrong-pass")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("login = %d, want 401", rec.Code)
	}
}

func TestLoginLockoutAfterRepeatedFailures(t *testing.T) {
	handler := newAuthHandler(t)
	register(t, handler, "a@example.com", "secret-pass")

	for i := 0; i < 5; i++ {
		rec, _ := login(t, handler, "a@example.com", "wrong-pass")
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("attempt %d = %d, want 401", i, rec.Code)
		}
	}
	rec, _ := login(t, handler, "a@example.com", "secret-pass")
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("locked login = %d, want 429", rec.Code)
	}
}

func TestRegisterValidation(t *testing.T) {
	handler := newAuthHandler(t)

	cases := []map[string]any{
		{"name": "", "email": "a@example.com", "password": "secret-pass"},
		{"name": "A", "email": "not-an-email", "password": "secret-pass"},
		{"name": "A", "email": "a@example.com", "password": "short"},
	}
	for _, body := range cases {
		rec := doJSON(t, handler, http.MethodPost, "/api/v1/auth/register", "", body)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("register %v = %d, want 400", body, rec.Code)
		}
	}

	register(t, handler, "a@example.com", "secret-pass")
	rec := doJSON(t, handler, http.MethodPost, "/api/v1/auth/register", "", map[string]any{
		"name": "B", "email": "a@example.com", "password": "secret-pass",
	})
	if rec.Code != http.StatusConflict {
		t.Fatalf("duplicate register = %d, want 409", rec.Code)
	}
}
