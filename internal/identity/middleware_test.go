package identity_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/jmerrifield20/tokenledger/internal/identity"
)

func setupCallerRouter(t *testing.T, ti *identity.CallerTokenIssuer) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/whoami", identity.RequireCaller(ti), func(c *gin.Context) {
		c.String(http.StatusOK, identity.CallerFromCtx(c).String())
	})
	return r
}

func TestRequireCaller_200(t *testing.T) {
	ti := newTestIssuer(t)
	router := setupCallerRouter(t, ti)
	token, err := ti.Issue("alice")
	if err != nil {
		t.Fatal(err)
	}

	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if w.Body.String() != "alice" {
		t.Errorf("caller: got %q, want alice", w.Body.String())
	}
}

func TestRequireCaller_401_missing(t *testing.T) {
	router := setupCallerRouter(t, newTestIssuer(t))

	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
}

func TestRequireCaller_401_invalid(t *testing.T) {
	router := setupCallerRouter(t, newTestIssuer(t))

	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.Header.Set("Authorization", "Bearer nope")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
}
