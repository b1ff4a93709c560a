package steem

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestExchange(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req map[string]string
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("bad request body: %v", err)
		}
		if req["code"] != "oauth-code" || req["client_secret"] != "s3cret" {
			t.Errorf("unexpected exchange payload: %v", req)
		}
		_ = json.NewEncoder(w).Encode(Tokens{
			Username:     "alice",
			AccessToken:  "access",
			RefreshToken: "refresh",
			ExpiresIn:    604800,
		})
	}))
	defer srv.Close()

	tokens, err := NewSteemConnect(srv.URL, "s3cret").Exchange(context.Background(), "oauth-code")
	if err != nil {
		t.Fatalf("Exchange: %v", err)
	}
	if tokens.Username != "alice" || tokens.AccessToken != "access" || tokens.RefreshToken != "refresh" {
		t.Fatalf("tokens = %+v", tokens)
	}
}

func TestExchangeRejectsBadStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	if _, err := NewSteemConnect(srv.URL, "s3cret").Exchange(context.Background(), "bad-code"); err == nil {
		t.Fatal("expected status error")
	}
}

func TestExchangeRejectsEmptyIdentity(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(Tokens{AccessToken: "access"})
	}))
	defer srv.Close()

	if _, err := NewSteemConnect(srv.URL, "s3cret").Exchange(context.Background(), "code"); err == nil {
		t.Fatal("expected missing username error")
	}
}
