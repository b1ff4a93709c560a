package webserver

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func identityRouter(secret []byte) *gin.Engine {
	r := gin.New()
	r.GET("/me", JWTMiddleware(secret), func(c *gin.Context) {
		respond(c, http.StatusOK, gin.H{"uid": userID(c), "username": c.GetString("username")})
	})
	r.GET("/maybe", OptionalJWTMiddleware(secret), func(c *gin.Context) {
		respond(c, http.StatusOK, userID(c))
	})
	return r
}

func TestJWTMiddleware(t *testing.T) {
	secret := []byte("test-secret")
	r := identityRouter(secret)

	token, err := issueJWT(7, "alice", secret)
	if err != nil {
		t.Fatalf("issueJWT: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if body := w.Body.String(); body != `{"data":{"uid":7,"username":"alice"}}` {
		t.Fatalf("body = %s", body)
	}
}

func TestJWTMiddlewareRejects(t *testing.T) {
	secret := []byte("test-secret")
	r := identityRouter(secret)

	cases := map[string]string{
		"no header":    "",
		"not bearer":   "Basic abc",
		"garbage":      "Bearer not.a.token",
		"wrong secret": "",
	}
	wrong, _ := issueJWT(7, "alice", []byte("other-secret"))
	cases["wrong secret"] = "Bearer " + wrong

	for name, header := range cases {
		req := httptest.NewRequest(http.MethodGet, "/me", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		if w.Code != http.StatusUnauthorized {
			t.Fatalf("%s: status = %d", name, w.Code)
		}
	}
}

func TestOptionalJWTMiddleware(t *testing.T) {
	secret := []byte("test-secret")
	r := identityRouter(secret)

	// anonymous passes with uid 0
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/maybe", nil))
	if w.Code != http.StatusOK || w.Body.String() != `{"data":0}` {
		t.Fatalf("anonymous: %d %s", w.Code, w.Body.String())
	}

	// a valid token attaches the identity
	token, _ := issueJWT(9, "bob", secret)
	req := httptest.NewRequest(http.MethodGet, "/maybe", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Body.String() != `{"data":9}` {
		t.Fatalf("authenticated: %s", w.Body.String())
	}

	// a bad token is ignored, not rejected
	req = httptest.NewRequest(http.MethodGet, "/maybe", nil)
	req.Header.Set("Authorization", "Bearer broken")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK || w.Body.String() != `{"data":0}` {
		t.Fatalf("bad token: %d %s", w.Code, w.Body.String())
	}
}
