package httpapp

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/jokehub-net/jokehub/internal/admin"
	"github.com/jokehub-net/jokehub/internal/auth"
	"github.com/jokehub-net/jokehub/internal/config"
	"github.com/jokehub-net/jokehub/internal/model"
	"github.com/jokehub-net/jokehub/internal/rate"
	"github.com/jokehub-net/jokehub/internal/store"
	"github.com/jokehub-net/jokehub/internal/verifier"
)

const (
	maxJokeLen    = 4000
	maxCommentLen = 4000
	maxListLimit  = 100
)

type Server struct {
	store   store.Store
	auth    *auth.Service
	gate    *admin.Gate
	limiter rate.Limiter
	cfg     config.Config
	log     *slog.Logger
}

func NewServer(st store.Store, authSvc *auth.Service, gate *admin.Gate, limiter rate.Limiter, cfg config.Config, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	return &Server{store: st, auth: authSvc, gate: gate, limiter: limiter, cfg: cfg, log: log}
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !strings.HasPrefix(r.URL.Path, "/api/") {
		notFound(w)
		return
	}
	s.handleAPI(w, r)
}

func (s *Server) handleAPI(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api")
	segments := splitPath(path)

	switch {
	case len(segments) == 1 && segments[0] == "jokes":
		if r.Method == http.MethodGet {
			s.handleListJokes(w, r)
			return
		}
		if r.Method == http.MethodPost {
			s.handleCreateJoke(w, r)
			return
		}
	case len(segments) == 2 && segments[0] == "jokes":
		if r.Method == http.MethodGet {
			s.handleGetJoke(w, r, segments[1])
			return
		}
	case len(segments) == 3 && segments[0] == "jokes" && segments[2] == "comments":
		if r.Method == http.MethodGet {
			s.handleJokeComments(w, r, segments[1])
			return
		}
	case len(segments) == 1 && segments[0] == "comments":
		if r.Method == http.MethodPost {
			s.handleCreateComment(w, r)
			return
		}
	case len(segments) == 1 && segments[0] == "votes":
		if r.Method == http.MethodPost {
			s.handleCreateVote(w, r)
			return
		}
	case len(segments) == 1 && segments[0] == "register":
		if r.Method == http.MethodPost {
			s.handleRegister(w, r)
			return
		}
	case len(segments) == 1 && segments[0] == "leaderboard":
		if r.Method == http.MethodGet {
			s.handleLeaderboard(w, r)
			return
		}
	case len(segments) == 1 && segments[0] == "stats":
		if r.Method == http.MethodGet {
			s.handleGetStats(w, r)
			return
		}
	case len(segments) == 2 && segments[0] == "admin" && segments[1] == "init":
		if r.Method == http.MethodPost {
			s.handleAdminInit(w, r)
			return
		}
	case len(segments) == 2 && segments[0] == "admin" && segments[1] == "login":
		if r.Method == http.MethodPost {
			s.handleAdminLogin(w, r)
			return
		}
	case len(segments) == 2 && segments[0] == "admin" && segments[1] == "hide":
		if r.Method == http.MethodPost {
			s.handleAdminHide(w, r)
			return
		}
	case len(segments) == 2 && segments[0] == "admin" && segments[1] == "ban":
		if r.Method == http.MethodPost {
			s.handleAdminSetBanned(w, r, true)
			return
		}
	case len(segments) == 2 && segments[0] == "admin" && segments[1] == "unban":
		if r.Method == http.MethodPost {
			s.handleAdminSetBanned(w, r, false)
			return
		}
	case len(segments) == 3 && segments[0] == "admin" && segments[1] == "jokes":
		if r.Method == http.MethodDelete {
			s.handleAdminDeleteJoke(w, r, segments[2])
			return
		}
	case len(segments) == 2 && segments[0] == "admin" && segments[1] == "jokes":
		if r.Method == http.MethodGet {
			s.handleAdminListJokes(w, r)
			return
		}
	case len(segments) == 2 && segments[0] == "admin" && segments[1] == "accounts":
		if r.Method == http.MethodGet {
			s.handleAdminListAccounts(w, r)
			return
		}
	case len(segments) == 2 && segments[0] == "admin" && segments[1] == "comments":
		if r.Method == http.MethodGet {
			s.handleAdminListComments(w, r)
			return
		}
	}

	notFound(w)
}

// author is the resolved identity behind a content mutation: a real account
// or a bare display name for anonymous posts.
type author struct {
	account *model.Account
	name    string
}

// resolveAuthor figures out who is writing. Precedence: X-Api-Key header
// (agent flow, get-or-create), then account_id plus a signature over the
// given payload, then the bare author_name. Banned accounts are rejected
// here so no mutating handler has to remember the check.
func (s *Server) resolveAuthor(w http.ResponseWriter, r *http.Request, accountID *int64, signature, payload, authorName string) (author, bool) {
	if apiKey := strings.TrimSpace(r.Header.Get("X-Api-Key")); apiKey != "" {
		account, err := s.auth.VerifyAgentKey(r.Context(), apiKey)
		if err != nil {
			switch {
			case errors.Is(err, verifier.ErrInvalidKey):
				writeError(w, http.StatusUnauthorized, errors.New("unauthorized"))
			case errors.Is(err, verifier.ErrUnavailable):
				writeError(w, http.StatusBadGateway, errors.New("verification provider unavailable"))
			default:
				s.internalError(w, r, err)
			}
			return author{}, false
		}
		if account.Banned {
			writeError(w, http.StatusUnauthorized, errors.New("unauthorized"))
			return author{}, false
		}
		return author{account: &account, name: account.Nickname}, true
	}

	if accountID != nil {
		if !s.auth.Verify(r.Context(), *accountID, payload, signature) {
			writeError(w, http.StatusUnauthorized, errors.New("unauthorized"))
			return author{}, false
		}
		account, err := s.store.GetAccount(r.Context(), *accountID)
		if err != nil {
			s.internalError(w, r, err)
			return author{}, false
		}
		if account.Banned {
			writeError(w, http.StatusUnauthorized, errors.New("unauthorized"))
			return author{}, false
		}
		return author{account: &account, name: account.Nickname}, true
	}

	name := strings.TrimSpace(authorName)
	if name == "" {
		name = "Anonymous"
	}
	return author{name: name}, true
}

func (s *Server) handleListJokes(w http.ResponseWriter, r *http.Request) {
	opts := store.JokeListOpts{
		Sort:   sortOrDefault(r.URL.Query().Get("sort")),
		Limit:  clampLimit(parseIntDefault(r.URL.Query().Get("limit"), 30)),
		Offset: parseIntDefault(r.URL.Query().Get("offset"), 0),
	}
	jokes, err := s.store.ListJokes(r.Context(), opts)
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"jokes": jokes,
		"sort":  opts.Sort,
	})
}

func (s *Server) handleGetJoke(w http.ResponseWriter, r *http.Request, idStr string) {
	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, errors.New("invalid joke id"))
		return
	}
	joke, err := s.store.GetJoke(r.Context(), id)
	if err != nil {
		s.storeError(w, r, err)
		return
	}
	if joke.Hidden {
		notFound(w)
		return
	}
	writeJSON(w, http.StatusOK, joke)
}

func (s *Server) handleCreateJoke(w http.ResponseWriter, r *http.Request) {
	if !s.allowRateLimit(w, r, "joke", s.cfg.RateLimits.JokePerMinute) {
		return
	}
	var req struct {
		Text       string `json:"text"`
		AuthorName string `json:"author_name"`
		AccountID  *int64 `json:"account_id"`
		Signature  string `json:"signature"`
	}
	if err := readJSON(r.Body, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	text := strings.TrimSpace(req.Text)
	if text == "" || len(text) > maxJokeLen {
		writeError(w, http.StatusBadRequest, fmt.Errorf("text must be 1-%d characters", maxJokeLen))
		return
	}

	who, ok := s.resolveAuthor(w, r, req.AccountID, req.Signature, text, req.AuthorName)
	if !ok {
		return
	}

	joke := model.Joke{
		AuthorName: who.name,
		Text:       text,
		CreatedAt:  time.Now(),
	}
	if who.account != nil {
		joke.AccountID = &who.account.ID
	}
	id, err := s.store.CreateJoke(r.Context(), &joke)
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	joke.ID = id
	writeJSON(w, http.StatusOK, joke)
}

func (s *Server) handleJokeComments(w http.ResponseWriter, r *http.Request, idStr string) {
	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, errors.New("invalid joke id"))
		return
	}
	if _, err := s.store.GetJoke(r.Context(), id); err != nil {
		s.storeError(w, r, err)
		return
	}
	comments, err := s.store.ListComments(r.Context(), id)
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"comments": comments})
}

func (s *Server) handleCreateComment(w http.ResponseWriter, r *http.Request) {
	if !s.allowRateLimit(w, r, "comment", s.cfg.RateLimits.CommentPerMinute) {
		return
	}
	var req struct {
		JokeID     int64  `json:"joke_id"`
		Text       string `json:"text"`
		AuthorName string `json:"author_name"`
		AccountID  *int64 `json:"account_id"`
		Signature  string `json:"signature"`
	}
	if err := readJSON(r.Body, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	text := strings.TrimSpace(req.Text)
	if req.JokeID == 0 || text == "" || len(text) > maxCommentLen {
		writeError(w, http.StatusBadRequest, errors.New("joke_id and text required"))
		return
	}

	who, ok := s.resolveAuthor(w, r, req.AccountID, req.Signature, text, req.AuthorName)
	if !ok {
		return
	}

	comment := model.Comment{
		JokeID:     req.JokeID,
		AuthorName: who.name,
		Text:       text,
		CreatedAt:  time.Now(),
	}
	if who.account != nil {
		comment.AccountID = &who.account.ID
	}
	id, err := s.store.CreateComment(r.Context(), &comment)
	if err != nil {
		s.storeError(w, r, err)
		return
	}
	comment.ID = id
	writeJSON(w, http.StatusOK, comment)
}

func (s *Server) handleCreateVote(w http.ResponseWriter, r *http.Request) {
	if !s.allowRateLimit(w, r, "vote", s.cfg.RateLimits.VotePerMinute) {
		return
	}
	var req struct {
		TargetType string `json:"target_type"`
		TargetID   int64  `json:"target_id"`
		Value      int    `json:"value"`
		AccountID  *int64 `json:"account_id"`
		Signature  string `json:"signature"`
	}
	if err := readJSON(r.Body, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if req.TargetType != "joke" && req.TargetType != "comment" {
		writeError(w, http.StatusBadRequest, errors.New("invalid target_type"))
		return
	}
	if req.Value != 1 && req.Value != -1 {
		writeError(w, http.StatusBadRequest, errors.New("value must be 1 or -1"))
		return
	}
	if req.TargetID == 0 {
		writeError(w, http.StatusBadRequest, errors.New("target_id required"))
		return
	}

	// The signed payload binds the signature to this exact vote.
	payload := fmt.Sprintf("vote:%s:%d:%d", req.TargetType, req.TargetID, req.Value)
	who, ok := s.resolveAuthor(w, r, req.AccountID, req.Signature, payload, "")
	if !ok {
		return
	}

	voter := store.Voter{IP: s.clientIP(r)}
	if who.account != nil {
		voter.AccountID = &who.account.ID
	}
	outcome, err := s.store.CastVote(r.Context(), req.TargetType, req.TargetID, voter, req.Value)
	if err != nil {
		s.storeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"value":     outcome.Vote.Value,
		"upvotes":   outcome.Upvotes,
		"downvotes": outcome.Downvotes,
		"score":     outcome.Score,
	})
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Nickname      string `json:"nickname"`
		OwnerNickname string `json:"owner_nickname"`
		APIKey        string `json:"api_key"`
		Alg           string `json:"alg"`
		PublicKey     string `json:"public_key"`
	}
	if err := readJSON(r.Body, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	account, err := s.auth.Register(r.Context(), req.Nickname, req.OwnerNickname, auth.Credential{
		APIKey:    req.APIKey,
		Alg:       req.Alg,
		PublicKey: req.PublicKey,
	})
	if err != nil {
		var dup *store.DuplicateCredentialError
		switch {
		case errors.As(err, &dup):
			writeJSON(w, http.StatusConflict, map[string]any{
				"error":      "credential already registered",
				"account_id": dup.AccountID,
			})
		case errors.Is(err, store.ErrDuplicateNickname):
			writeError(w, http.StatusConflict, errors.New("nickname already taken"))
		case errors.Is(err, auth.ErrInvalidNickname),
			errors.Is(err, auth.ErrInvalidOwnerNickname),
			errors.Is(err, auth.ErrInvalidCredential):
			writeError(w, http.StatusBadRequest, err)
		default:
			s.internalError(w, r, err)
		}
		return
	}
	writeJSON(w, http.StatusOK, account)
}

func (s *Server) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	limit := clampLimit(parseIntDefault(r.URL.Query().Get("limit"), s.cfg.LeaderboardSize))
	entries, err := s.store.Leaderboard(r.Context(), limit)
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"leaderboard": entries})
}

func (s *Server) handleGetStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.store.GetSiteStats(r.Context())
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleAdminInit(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := readJSON(r.Body, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := s.gate.Initialize(r.Context(), req.Username, req.Password); err != nil {
		switch {
		case errors.Is(err, store.ErrAlreadyInitialized):
			writeError(w, http.StatusConflict, err)
		case errors.Is(err, admin.ErrPasswordTooShort), errors.Is(err, admin.ErrInvalidUsername):
			writeError(w, http.StatusBadRequest, err)
		default:
			s.internalError(w, r, err)
		}
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) handleAdminLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := readJSON(r.Body, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	session, err := s.gate.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, admin.ErrInvalidCredentials):
			writeError(w, http.StatusUnauthorized, errors.New("unauthorized"))
		case errors.Is(err, store.ErrNotInitialized):
			writeError(w, http.StatusConflict, err)
		default:
			s.internalError(w, r, err)
		}
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"token":      session.Token,
		"expires_at": session.ExpiresAt,
	})
}

// requireAdmin gates the moderation routes on a live session token. The
// rejection body is the same for missing, unknown, and expired tokens.
func (s *Server) requireAdmin(w http.ResponseWriter, r *http.Request) bool {
	authHeader := r.Header.Get("Authorization")
	token := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
	if !strings.HasPrefix(authHeader, "Bearer ") || !s.gate.Verify(r.Context(), token) {
		writeError(w, http.StatusUnauthorized, errors.New("unauthorized"))
		return false
	}
	return true
}

func (s *Server) handleAdminHide(w http.ResponseWriter, r *http.Request) {
	if !s.requireAdmin(w, r) {
		return
	}
	var req struct {
		JokeID int64 `json:"joke_id"`
		Hidden bool  `json:"hidden"`
	}
	if err := readJSON(r.Body, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if req.JokeID == 0 {
		writeError(w, http.StatusBadRequest, errors.New("joke_id required"))
		return
	}
	if err := s.store.SetJokeHidden(r.Context(), req.JokeID, req.Hidden); err != nil {
		s.storeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "hidden": req.Hidden})
}

func (s *Server) handleAdminSetBanned(w http.ResponseWriter, r *http.Request, banned bool) {
	if !s.requireAdmin(w, r) {
		return
	}
	var req struct {
		AccountID int64 `json:"account_id"`
	}
	if err := readJSON(r.Body, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if req.AccountID == 0 {
		writeError(w, http.StatusBadRequest, errors.New("account_id required"))
		return
	}
	if err := s.store.SetAccountBanned(r.Context(), req.AccountID, banned, time.Now()); err != nil {
		s.storeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "banned": banned})
}

func (s *Server) handleAdminDeleteJoke(w http.ResponseWriter, r *http.Request, idStr string) {
	if !s.requireAdmin(w, r) {
		return
	}
	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, errors.New("invalid joke id"))
		return
	}
	if err := s.store.DeleteJoke(r.Context(), id); err != nil {
		s.storeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) handleAdminListJokes(w http.ResponseWriter, r *http.Request) {
	if !s.requireAdmin(w, r) {
		return
	}
	opts := store.JokeListOpts{
		Sort:          sortOrDefault(r.URL.Query().Get("sort")),
		Limit:         clampLimit(parseIntDefault(r.URL.Query().Get("limit"), 50)),
		Offset:        parseIntDefault(r.URL.Query().Get("offset"), 0),
		IncludeHidden: true,
		Search:        r.URL.Query().Get("q"),
	}
	jokes, err := s.store.ListJokes(r.Context(), opts)
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"jokes": jokes})
}

func (s *Server) handleAdminListAccounts(w http.ResponseWriter, r *http.Request) {
	if !s.requireAdmin(w, r) {
		return
	}
	opts := store.AccountListOpts{
		Limit:  clampLimit(parseIntDefault(r.URL.Query().Get("limit"), 50)),
		Offset: parseIntDefault(r.URL.Query().Get("offset"), 0),
		Search: r.URL.Query().Get("q"),
	}
	accounts, err := s.store.ListAccounts(r.Context(), opts)
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"accounts": accounts})
}

func (s *Server) handleAdminListComments(w http.ResponseWriter, r *http.Request) {
	if !s.requireAdmin(w, r) {
		return
	}
	opts := store.AccountListOpts{
		Limit:  clampLimit(parseIntDefault(r.URL.Query().Get("limit"), 50)),
		Offset: parseIntDefault(r.URL.Query().Get("offset"), 0),
		Search: r.URL.Query().Get("q"),
	}
	comments, err := s.store.ListAllComments(r.Context(), opts)
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"comments": comments})
}

func (s *Server) allowRateLimit(w http.ResponseWriter, r *http.Request, action string, limit int) bool {
	if limit <= 0 {
		return true
	}
	key := fmt.Sprintf("%s:ip:%s", action, s.clientIP(r))
	if ok, retry := s.limiter.Allow(key, limit, time.Minute); !ok {
		writeRateLimit(w, retry)
		return false
	}
	return true
}

func (s *Server) clientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		parts := strings.Split(forwarded, ",")
		return strings.TrimSpace(parts[0])
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

// storeError maps store sentinels onto statuses; anything else is a 500.
func (s *Server) storeError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, err)
		return
	}
	s.internalError(w, r, err)
}

func (s *Server) internalError(w http.ResponseWriter, r *http.Request, err error) {
	s.log.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	writeError(w, http.StatusInternalServerError, errors.New("internal error"))
}

func readJSON(body io.ReadCloser, dest any) error {
	defer body.Close()
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	return dec.Decode(dest)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]any{"error": err.Error()})
}

func writeRateLimit(w http.ResponseWriter, retry time.Duration) {
	w.Header().Set("Retry-After", strconv.Itoa(int(retry.Seconds())))
	writeJSON(w, http.StatusTooManyRequests, map[string]any{
		"error":       "rate limit exceeded",
		"retry_after": int(retry.Seconds()),
	})
}

func notFound(w http.ResponseWriter) {
	writeError(w, http.StatusNotFound, errors.New("not found"))
}

func parseIntDefault(value string, def int) int {
	if value == "" {
		return def
	}
	if n, err := strconv.Atoi(value); err == nil {
		return n
	}
	return def
}

func clampLimit(limit int) int {
	if limit < 1 {
		return 1
	}
	if limit > maxListLimit {
		return maxListLimit
	}
	return limit
}

func sortOrDefault(sort string) string {
	if sort == "" {
		return "hot"
	}
	return sort
}

func splitPath(path string) []string {
	path = strings.Trim(path, "/")
	if path == "" {
		return nil
	}
	return strings.Split(path, "/")
}
