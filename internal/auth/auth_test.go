package auth

import (
	"context"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jokehub-net/jokehub/internal/store"
	"github.com/jokehub-net/jokehub/internal/store/sqlite"
	"github.com/jokehub-net/jokehub/internal/verifier"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
)

func newTestService(t *testing.T, vc *verifier.Client) (*Service, *sqlite.Store) {
	t.Helper()
	st, err := sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name()))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return NewService(st, vc), st
}

func TestRegisterValidation(t *testing.T) {
	svc, _ := newTestService(t, nil)
	ctx := context.Background()

	cases := []struct {
		name     string
		nickname string
		owner    string
		cred     Credential
		want     error
	}{
		{"short nickname", "ab", "Alice", Credential{APIKey: "k"}, ErrInvalidNickname},
		{"bad characters", "has spaces", "Alice", Credential{APIKey: "k"}, ErrInvalidNickname},
		{"short owner", "bot1", "A", Credential{APIKey: "k"}, ErrInvalidOwnerNickname},
		{"no credential", "bot1", "Alice", Credential{}, ErrInvalidCredential},
		{"both credentials", "bot1", "Alice", Credential{APIKey: "k", Alg: "ed25519", PublicKey: "p"}, ErrInvalidCredential},
		{"key without alg", "bot1", "Alice", Credential{PublicKey: "p"}, ErrInvalidCredential},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Register(ctx, tc.nickname, tc.owner, tc.cred)
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestRegisterAndVerifyEd25519(t *testing.T) {
	svc, _ := newTestService(t, nil)
	ctx := context.Background()

	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}

	account, err := svc.Register(ctx, "bot1", "Alice", Credential{
		Alg:       "ed25519",
		PublicKey: base64.StdEncoding.EncodeToString(pub),
	})
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	payload := "some payload"
	sig := base64.StdEncoding.EncodeToString(ed25519.Sign(priv, []byte(payload)))

	if !svc.Verify(ctx, account.ID, payload, sig) {
		t.Fatalf("valid signature rejected")
	}
	if svc.Verify(ctx, account.ID, "other payload", sig) {
		t.Fatalf("signature over wrong payload accepted")
	}
	if svc.Verify(ctx, account.ID, payload, "not-a-signature") {
		t.Fatalf("garbage signature accepted")
	}
	if svc.Verify(ctx, 9999, payload, sig) {
		t.Fatalf("unknown account accepted")
	}
}

func TestVerifyNeverErrorsOnKeylessAccount(t *testing.T) {
	svc, _ := newTestService(t, nil)
	ctx := context.Background()

	account, err := svc.Register(ctx, "agent1", "Alice", Credential{APIKey: "agent-key"})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if svc.Verify(ctx, account.ID, "payload", "sig") {
		t.Fatalf("api-key account must not pass signature verification")
	}
}

func TestVerifySignatureSecp256k1(t *testing.T) {
	priv, err := secp256k1.GeneratePrivateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	pubHex := hex.EncodeToString(priv.PubKey().SerializeCompressed())

	message := "gm"
	hash := ethereumPersonalHash([]byte(message))
	r, s, err := ecdsa.Sign(rand.Reader, priv.ToECDSA(), hash)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	sig := make([]byte, 64)
	r.FillBytes(sig[:32])
	s.FillBytes(sig[32:])

	if err := VerifySignature("secp256k1", pubHex, message, hex.EncodeToString(sig)); err != nil {
		t.Fatalf("valid secp256k1 signature rejected: %v", err)
	}
	if err := VerifySignature("secp256k1", pubHex, "other", hex.EncodeToString(sig)); err == nil {
		t.Fatalf("signature over wrong message accepted")
	}
}

func TestVerifySignatureUnsupportedAlg(t *testing.T) {
	if err := VerifySignature("dsa", "key", "msg", "sig"); err == nil {
		t.Fatalf("expected error for unsupported alg")
	}
}

func TestRegisterDuplicateCredential(t *testing.T) {
	svc, _ := newTestService(t, nil)
	ctx := context.Background()

	first, err := svc.Register(ctx, "bot1", "Alice", Credential{APIKey: "dup-key"})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	_, err = svc.Register(ctx, "bot2", "Bob", Credential{APIKey: "dup-key"})
	var dup *store.DuplicateCredentialError
	if !errors.As(err, &dup) {
		t.Fatalf("expected DuplicateCredentialError, got %v", err)
	}
	if dup.AccountID != first.ID {
		t.Fatalf("expected existing id %d, got %d", first.ID, dup.AccountID)
	}
}

func TestVerifyAgentKeyGetOrCreate(t *testing.T) {
	var calls atomic.Int64
	provider := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"name":"Funny Bot","avatar_url":"https://example.com/a.png"}`)
	}))
	defer provider.Close()

	svc, _ := newTestService(t, verifier.New(provider.URL, time.Second))
	ctx := context.Background()

	account, err := svc.VerifyAgentKey(ctx, "fresh-key")
	if err != nil {
		t.Fatalf("verify agent key: %v", err)
	}
	if account.Nickname != "Funny_Bot" {
		t.Fatalf("unexpected nickname: %s", account.Nickname)
	}
	if account.OwnerNickname != "Funny Bot" {
		t.Fatalf("unexpected owner nickname: %s", account.OwnerNickname)
	}

	again, err := svc.VerifyAgentKey(ctx, "fresh-key")
	if err != nil {
		t.Fatalf("second verify: %v", err)
	}
	if again.ID != account.ID {
		t.Fatalf("get-or-create returned a different account: %d vs %d", again.ID, account.ID)
	}
	if calls.Load() != 1 {
		t.Fatalf("provider should be called once, got %d", calls.Load())
	}
}

func TestVerifyAgentKeyInvalid(t *testing.T) {
	provider := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer provider.Close()

	svc, _ := newTestService(t, verifier.New(provider.URL, time.Second))

	_, err := svc.VerifyAgentKey(context.Background(), "bad-key")
	if !errors.Is(err, verifier.ErrInvalidKey) {
		t.Fatalf("expected ErrInvalidKey, got %v", err)
	}
}

func TestVerifyAgentKeyProviderDown(t *testing.T) {
	provider := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	provider.Close()

	svc, _ := newTestService(t, verifier.New(provider.URL, time.Second))

	_, err := svc.VerifyAgentKey(context.Background(), "any-key")
	if !errors.Is(err, verifier.ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}

func TestIsBanned(t *testing.T) {
	svc, st := newTestService(t, nil)
	ctx := context.Background()

	account, err := svc.Register(ctx, "bot1", "Alice", Credential{APIKey: "ban-key"})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if svc.IsBanned(ctx, account.ID) {
		t.Fatalf("fresh account should not be banned")
	}
	if err := st.SetAccountBanned(ctx, account.ID, true, time.Now()); err != nil {
		t.Fatalf("ban: %v", err)
	}
	if !svc.IsBanned(ctx, account.ID) {
		t.Fatalf("banned flag not seen")
	}
	if svc.IsBanned(ctx, 9999) {
		t.Fatalf("unknown account should not report banned")
	}
}
