package sqlite

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jokehub-net/jokehub/internal/model"
	"github.com/jokehub-net/jokehub/internal/store"
)

func TestDuplicateAPIKeyCarriesExistingID(t *testing.T) {
	st := newTestStore(t)
	defer st.Close()
	ctx := context.Background()

	first := model.Account{
		Nickname:      "bot1",
		OwnerNickname: "Alice",
		APIKey:        strptr("shared-key"),
		CreatedAt:     time.Now(),
	}
	id, err := st.CreateAccount(ctx, &first)
	if err != nil {
		t.Fatalf("create account: %v", err)
	}

	second := model.Account{
		Nickname:      "bot2",
		OwnerNickname: "Bob",
		APIKey:        strptr("shared-key"),
		CreatedAt:     time.Now(),
	}
	_, err = st.CreateAccount(ctx, &second)
	var dup *store.DuplicateCredentialError
	if !errors.As(err, &dup) {
		t.Fatalf("expected DuplicateCredentialError, got %v", err)
	}
	if dup.AccountID != id {
		t.Fatalf("expected existing id %d, got %d", id, dup.AccountID)
	}
}

func TestDuplicatePublicKeyCarriesExistingID(t *testing.T) {
	st := newTestStore(t)
	defer st.Close()
	ctx := context.Background()

	alg := "ed25519"
	key := "AAAA"
	id, err := st.CreateAccount(ctx, &model.Account{
		Nickname:      "bot1",
		OwnerNickname: "Alice",
		Alg:           &alg,
		PublicKey:     &key,
		CreatedAt:     time.Now(),
	})
	if err != nil {
		t.Fatalf("create account: %v", err)
	}

	_, err = st.CreateAccount(ctx, &model.Account{
		Nickname:      "bot2",
		OwnerNickname: "Bob",
		Alg:           &alg,
		PublicKey:     &key,
		CreatedAt:     time.Now(),
	})
	var dup *store.DuplicateCredentialError
	if !errors.As(err, &dup) {
		t.Fatalf("expected DuplicateCredentialError, got %v", err)
	}
	if dup.AccountID != id {
		t.Fatalf("expected existing id %d, got %d", id, dup.AccountID)
	}
}

func TestDuplicateNickname(t *testing.T) {
	st := newTestStore(t)
	defer st.Close()
	ctx := context.Background()

	if _, err := st.CreateAccount(ctx, &model.Account{
		Nickname:      "bot1",
		OwnerNickname: "Alice",
		APIKey:        strptr("key-a"),
		CreatedAt:     time.Now(),
	}); err != nil {
		t.Fatalf("create account: %v", err)
	}

	_, err := st.CreateAccount(ctx, &model.Account{
		Nickname:      "bot1",
		OwnerNickname: "Bob",
		APIKey:        strptr("key-b"),
		CreatedAt:     time.Now(),
	})
	if !errors.Is(err, store.ErrDuplicateNickname) {
		t.Fatalf("expected ErrDuplicateNickname, got %v", err)
	}
}

func TestFindAccountByCredential(t *testing.T) {
	st := newTestStore(t)
	defer st.Close()
	ctx := context.Background()

	id, err := st.CreateAccount(ctx, &model.Account{
		Nickname:      "bot1",
		OwnerNickname: "Alice",
		APIKey:        strptr("find-me"),
		CreatedAt:     time.Now(),
	})
	if err != nil {
		t.Fatalf("create account: %v", err)
	}

	found, err := st.FindAccountByAPIKey(ctx, "find-me")
	if err != nil {
		t.Fatalf("find by api key: %v", err)
	}
	if found.ID != id || found.Nickname != "bot1" {
		t.Fatalf("wrong account: %+v", found)
	}

	if _, err := st.FindAccountByAPIKey(ctx, "nope"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestSetAccountBanned(t *testing.T) {
	st := newTestStore(t)
	defer st.Close()
	ctx := context.Background()

	id, err := st.CreateAccount(ctx, &model.Account{
		Nickname:      "bot1",
		OwnerNickname: "Alice",
		APIKey:        strptr("ban-key"),
		CreatedAt:     time.Now(),
	})
	if err != nil {
		t.Fatalf("create account: %v", err)
	}

	now := time.Now()
	if err := st.SetAccountBanned(ctx, id, true, now); err != nil {
		t.Fatalf("ban: %v", err)
	}
	account, _ := st.GetAccount(ctx, id)
	if !account.Banned || account.BannedAt == nil {
		t.Fatalf("expected banned account, got %+v", account)
	}

	if err := st.SetAccountBanned(ctx, id, false, now); err != nil {
		t.Fatalf("unban: %v", err)
	}
	account, _ = st.GetAccount(ctx, id)
	if account.Banned {
		t.Fatalf("expected unbanned account")
	}

	if err := st.SetAccountBanned(ctx, 999, true, now); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestAdminInitOnce(t *testing.T) {
	st := newTestStore(t)
	defer st.Close()
	ctx := context.Background()

	if _, err := st.GetAdmin(ctx, "root"); !errors.Is(err, store.ErrNotInitialized) {
		t.Fatalf("expected ErrNotInitialized, got %v", err)
	}

	admin := model.Admin{Username: "root", PasswordHash: "hash", CreatedAt: time.Now()}
	if err := st.InitAdmin(ctx, &admin); err != nil {
		t.Fatalf("init admin: %v", err)
	}
	if err := st.InitAdmin(ctx, &admin); !errors.Is(err, store.ErrAlreadyInitialized) {
		t.Fatalf("expected ErrAlreadyInitialized, got %v", err)
	}

	if _, err := st.GetAdmin(ctx, "other"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for wrong username, got %v", err)
	}
}

func TestAdminSessionRoundTrip(t *testing.T) {
	st := newTestStore(t)
	defer st.Close()
	ctx := context.Background()

	expires := time.Now().Add(time.Hour)
	session := model.AdminSession{Token: "tok-1", Username: "root", ExpiresAt: expires}
	if err := st.CreateAdminSession(ctx, session); err != nil {
		t.Fatalf("create session: %v", err)
	}

	got, err := st.GetAdminSession(ctx, "tok-1")
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	// Expiry is stored at millisecond resolution.
	if got.ExpiresAt.UnixMilli() != expires.UnixMilli() {
		t.Fatalf("expiry mismatch: %v vs %v", got.ExpiresAt, expires)
	}

	if err := st.DeleteAdminSession(ctx, "tok-1"); err != nil {
		t.Fatalf("delete session: %v", err)
	}
	if _, err := st.GetAdminSession(ctx, "tok-1"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
}
