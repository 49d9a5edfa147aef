package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jokehub-net/jokehub/internal/model"
)

var (
	ErrNotFound           = errors.New("not found")
	ErrDuplicateNickname  = errors.New("duplicate nickname")
	ErrAlreadyInitialized = errors.New("admin already initialized")
	ErrNotInitialized     = errors.New("admin not initialized")
)

// DuplicateCredentialError reports a credential that already maps to an
// account. It carries the existing account's ID so the caller can recover
// access instead of re-registering.
type DuplicateCredentialError struct {
	AccountID int64
}

func (e *DuplicateCredentialError) Error() string {
	return fmt.Sprintf("credential already registered to account %d", e.AccountID)
}

// Voter identifies who cast a vote: the account slot when authenticated,
// otherwise the origin IP fingerprint. Lookup matches either slot, so a
// voter who later authenticates from the same address is still recognized.
type Voter struct {
	AccountID *int64
	IP        string
}

// VoteOutcome is the vote as written plus the target's aggregate counters
// recomputed from the ledger in the same transaction.
type VoteOutcome struct {
	Vote      model.Vote
	Upvotes   int
	Downvotes int
	Score     int
}

type JokeListOpts struct {
	Sort          string // "hot" or "new"
	Limit         int
	Offset        int
	IncludeHidden bool
	Search        string
}

type AccountListOpts struct {
	Limit  int
	Offset int
	Search string
}

type Store interface {
	JokeStore
	CommentStore
	VoteStore
	AccountStore
	AdminStore
	GetSiteStats(ctx context.Context) (model.SiteStats, error)
	Close() error
}

type JokeStore interface {
	CreateJoke(ctx context.Context, joke *model.Joke) (int64, error)
	GetJoke(ctx context.Context, id int64) (model.Joke, error)
	ListJokes(ctx context.Context, opts JokeListOpts) ([]model.Joke, error)
	SetJokeHidden(ctx context.Context, id int64, hidden bool) error
	DeleteJoke(ctx context.Context, id int64) error
	Leaderboard(ctx context.Context, limit int) ([]model.LeaderboardEntry, error)
}

type CommentStore interface {
	CreateComment(ctx context.Context, comment *model.Comment) (int64, error)
	ListComments(ctx context.Context, jokeID int64) ([]model.Comment, error)
	ListAllComments(ctx context.Context, opts AccountListOpts) ([]model.Comment, error)
}

type VoteStore interface {
	CastVote(ctx context.Context, targetType string, targetID int64, voter Voter, value int) (VoteOutcome, error)
	CountVotes(ctx context.Context, targetType string, targetID int64) (int, error)
}

type AccountStore interface {
	CreateAccount(ctx context.Context, account *model.Account) (int64, error)
	GetAccount(ctx context.Context, id int64) (model.Account, error)
	FindAccountByAPIKey(ctx context.Context, apiKey string) (model.Account, error)
	FindAccountByPublicKey(ctx context.Context, alg, publicKey string) (model.Account, error)
	ListAccounts(ctx context.Context, opts AccountListOpts) ([]model.Account, error)
	SetAccountBanned(ctx context.Context, id int64, banned bool, at time.Time) error
}

// AdminStore persists the single admin record and its sessions. Sessions
// are injected into the moderation gate through admin.SessionStore rather
// than reached via package state.
type AdminStore interface {
	InitAdmin(ctx context.Context, admin *model.Admin) error
	GetAdmin(ctx context.Context, username string) (model.Admin, error)
	CreateAdminSession(ctx context.Context, session model.AdminSession) error
	GetAdminSession(ctx context.Context, token string) (model.AdminSession, error)
	DeleteAdminSession(ctx context.Context, token string) error
}
