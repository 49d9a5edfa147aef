package client

import (
	"crypto/ed25519"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestGenerateCredentialsSign(t *testing.T) {
	creds, err := GenerateCredentials("bot1", "Alice")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	sig, err := base64.StdEncoding.DecodeString(creds.Sign("hello"))
	if err != nil {
		t.Fatalf("decode signature: %v", err)
	}
	pub, err := base64.StdEncoding.DecodeString(creds.PublicKey)
	if err != nil {
		t.Fatalf("decode public key: %v", err)
	}
	if !ed25519.Verify(ed25519.PublicKey(pub), []byte("hello"), sig) {
		t.Fatalf("signature does not verify against the generated key")
	}
}

func TestRegisterAdoptsExistingAccount(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusConflict)
		fmt.Fprint(w, `{"error":"credential already registered","account_id":42}`)
	}))
	defer srv.Close()

	creds, err := GenerateCredentials("bot1", "Alice")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	c := New(srv.URL)
	id, err := c.Register(creds)
	if !errors.Is(err, ErrAlreadyRegistered) {
		t.Fatalf("expected ErrAlreadyRegistered, got %v", err)
	}
	if id != 42 || c.AccountID != 42 {
		t.Fatalf("expected adopted id 42, got %d / %d", id, c.AccountID)
	}
	if c.Creds != creds {
		t.Fatalf("credentials not retained on adoption")
	}
}

func TestPostJokeSignsText(t *testing.T) {
	var captured map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"id":1,"author_name":"bot1","text":"a joke"}`)
	}))
	defer srv.Close()

	creds, err := GenerateCredentials("bot1", "Alice")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	c := New(srv.URL)
	c.Creds = creds
	c.AccountID = 7

	if _, err := c.PostJoke("a joke", ""); err != nil {
		t.Fatalf("post joke: %v", err)
	}

	if captured["account_id"].(float64) != 7 {
		t.Fatalf("account_id missing: %v", captured)
	}
	sig, err := base64.StdEncoding.DecodeString(captured["signature"].(string))
	if err != nil {
		t.Fatalf("decode signature: %v", err)
	}
	pub, _ := base64.StdEncoding.DecodeString(creds.PublicKey)
	if !ed25519.Verify(ed25519.PublicKey(pub), []byte("a joke"), sig) {
		t.Fatalf("request signature is not over the joke text")
	}
}

func TestVoteSignsBoundPayload(t *testing.T) {
	var captured map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"value":-1,"upvotes":0,"downvotes":1,"score":-1}`)
	}))
	defer srv.Close()

	creds, err := GenerateCredentials("bot1", "Alice")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	c := New(srv.URL)
	c.Creds = creds
	c.AccountID = 7

	outcome, err := c.Vote("joke", 9, -1)
	if err != nil {
		t.Fatalf("vote: %v", err)
	}
	if outcome.Score != -1 {
		t.Fatalf("unexpected outcome: %+v", outcome)
	}

	sig, err := base64.StdEncoding.DecodeString(captured["signature"].(string))
	if err != nil {
		t.Fatalf("decode signature: %v", err)
	}
	pub, _ := base64.StdEncoding.DecodeString(creds.PublicKey)
	if !ed25519.Verify(ed25519.PublicKey(pub), []byte("vote:joke:9:-1"), sig) {
		t.Fatalf("vote signature is not bound to target and value")
	}
}

func TestHeadersCarryCredentials(t *testing.T) {
	var gotAPIKey, gotAuthz string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAPIKey = r.Header.Get("X-Api-Key")
		gotAuthz = r.Header.Get("Authorization")
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"accounts":0,"jokes":0,"comments":0}`)
	}))
	defer srv.Close()

	c := New(srv.URL)
	c.APIKey = "agent-secret"
	c.AdminToken = "tok-1"
	if _, err := c.GetStats(); err != nil {
		t.Fatalf("get stats: %v", err)
	}
	if gotAPIKey != "agent-secret" {
		t.Fatalf("X-Api-Key not sent, got %q", gotAPIKey)
	}
	if gotAuthz != "Bearer tok-1" {
		t.Fatalf("Authorization not sent, got %q", gotAuthz)
	}
}
