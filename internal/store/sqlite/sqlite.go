package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jokehub-net/jokehub/internal/model"
	"github.com/jokehub-net/jokehub/internal/store"

	_ "modernc.org/sqlite"
)

type Store struct {
	db *sql.DB
}

func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// One writer connection; sqlite serializes writes anyway and this keeps
	// concurrent CastVote transactions from tripping over lock errors.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if _, err := db.Exec("PRAGMA foreign_keys = ON;"); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := applySchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// migrations is an ordered list of SQL migrations.
// Each migration runs exactly once, tracked by schema_version table.
var migrations = []string{
	// Migration 1: Initial schema
	`
CREATE TABLE IF NOT EXISTS accounts (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	nickname TEXT NOT NULL,
	owner_nickname TEXT NOT NULL,
	api_key TEXT,
	alg TEXT,
	public_key TEXT,
	avatar_url TEXT,
	created_at INTEGER NOT NULL,
	banned INTEGER NOT NULL DEFAULT 0,
	banned_at INTEGER
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_accounts_nickname ON accounts(nickname);
CREATE UNIQUE INDEX IF NOT EXISTS idx_accounts_api_key ON accounts(api_key) WHERE api_key IS NOT NULL;
CREATE UNIQUE INDEX IF NOT EXISTS idx_accounts_public_key ON accounts(alg, public_key) WHERE public_key IS NOT NULL;

CREATE TABLE IF NOT EXISTS jokes (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	account_id INTEGER,
	author_name TEXT NOT NULL,
	body TEXT NOT NULL,
	upvotes INTEGER NOT NULL DEFAULT 0,
	downvotes INTEGER NOT NULL DEFAULT 0,
	score INTEGER NOT NULL DEFAULT 0,
	created_at INTEGER NOT NULL,
	hidden INTEGER NOT NULL DEFAULT 0,
	FOREIGN KEY(account_id) REFERENCES accounts(id)
);
CREATE INDEX IF NOT EXISTS idx_jokes_created_at ON jokes(created_at DESC);
CREATE INDEX IF NOT EXISTS idx_jokes_score ON jokes(score DESC, created_at DESC);

CREATE TABLE IF NOT EXISTS comments (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	joke_id INTEGER NOT NULL,
	account_id INTEGER,
	author_name TEXT NOT NULL,
	body TEXT NOT NULL,
	upvotes INTEGER NOT NULL DEFAULT 0,
	downvotes INTEGER NOT NULL DEFAULT 0,
	score INTEGER NOT NULL DEFAULT 0,
	created_at INTEGER NOT NULL,
	FOREIGN KEY(joke_id) REFERENCES jokes(id) ON DELETE CASCADE
);
CREATE INDEX IF NOT EXISTS idx_comments_joke_id ON comments(joke_id, created_at ASC);

CREATE TABLE IF NOT EXISTS votes (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	target_type TEXT NOT NULL,
	target_id INTEGER NOT NULL,
	account_id INTEGER,
	voter_ip TEXT NOT NULL DEFAULT '',
	value INTEGER NOT NULL,
	created_at INTEGER NOT NULL
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_votes_account ON votes(target_type, target_id, account_id) WHERE account_id IS NOT NULL;
CREATE UNIQUE INDEX IF NOT EXISTS idx_votes_ip ON votes(target_type, target_id, voter_ip) WHERE account_id IS NULL;

CREATE TABLE IF NOT EXISTS admins (
	username TEXT PRIMARY KEY,
	password_hash TEXT NOT NULL,
	created_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS admin_sessions (
	token TEXT PRIMARY KEY,
	username TEXT NOT NULL,
	expires_at INTEGER NOT NULL,
	created_at INTEGER NOT NULL
);
`,
	// Future migrations go here:
	// Migration 2: `ALTER TABLE ...`,
}

func applySchema(db *sql.DB) error {
	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER PRIMARY KEY
		)
	`); err != nil {
		return err
	}

	var currentVersion int
	row := db.QueryRow(`SELECT COALESCE(MAX(version), 0) FROM schema_version`)
	if err := row.Scan(&currentVersion); err != nil {
		return err
	}

	for i := currentVersion; i < len(migrations); i++ {
		if _, err := db.Exec(migrations[i]); err != nil {
			return fmt.Errorf("migration %d failed: %w", i+1, err)
		}
		if _, err := db.Exec(`INSERT INTO schema_version (version) VALUES (?)`, i+1); err != nil {
			return fmt.Errorf("failed to record migration %d: %w", i+1, err)
		}
	}

	return nil
}

func (s *Store) CreateJoke(ctx context.Context, joke *model.Joke) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
INSERT INTO jokes (account_id, author_name, body, upvotes, downvotes, score, created_at, hidden)
VALUES (?, ?, ?, 0, 0, 0, ?, ?)
`, nullableInt(joke.AccountID), joke.AuthorName, joke.Text, joke.CreatedAt.Unix(), boolToInt(joke.Hidden))
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (s *Store) GetJoke(ctx context.Context, id int64) (model.Joke, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT id, account_id, author_name, body, upvotes, downvotes, score, created_at, hidden
FROM jokes
WHERE id = ?
LIMIT 1
`, id)
	return scanJoke(row)
}

func (s *Store) ListJokes(ctx context.Context, opts store.JokeListOpts) ([]model.Joke, error) {
	limit := clamp(opts.Limit, 1, 100)
	offset := opts.Offset
	if offset < 0 {
		offset = 0
	}

	where := "hidden = 0"
	args := []any{}
	if opts.IncludeHidden {
		where = "1 = 1"
	}
	if opts.Search != "" {
		where += " AND body LIKE '%' || ? || '%'"
		args = append(args, opts.Search)
	}

	// hot: score first, recency breaks ties (later-created wins); id is the
	// final tiebreak since created_at has second resolution.
	order := "score DESC, created_at DESC, id DESC"
	if opts.Sort == "new" {
		order = "created_at DESC, id DESC"
	}

	args = append(args, limit, offset)
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`
SELECT id, account_id, author_name, body, upvotes, downvotes, score, created_at, hidden
FROM jokes
WHERE %s
ORDER BY %s
LIMIT ? OFFSET ?
`, where, order), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jokes []model.Joke
	for rows.Next() {
		joke, err := scanJoke(rows)
		if err != nil {
			return nil, err
		}
		jokes = append(jokes, joke)
	}
	return jokes, rows.Err()
}

func (s *Store) SetJokeHidden(ctx context.Context, id int64, hidden bool) error {
	res, err := s.db.ExecContext(ctx, `UPDATE jokes SET hidden = ? WHERE id = ?`, boolToInt(hidden), id)
	if err != nil {
		return err
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) DeleteJoke(ctx context.Context, id int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	// Votes are not under a foreign key (polymorphic target), clean them
	// up alongside the cascade-deleted comments.
	if _, err = tx.ExecContext(ctx, `
DELETE FROM votes WHERE target_type = 'comment' AND target_id IN (SELECT id FROM comments WHERE joke_id = ?)
`, id); err != nil {
		return err
	}
	if _, err = tx.ExecContext(ctx, `DELETE FROM votes WHERE target_type = 'joke' AND target_id = ?`, id); err != nil {
		return err
	}
	if _, err = tx.ExecContext(ctx, `DELETE FROM comments WHERE joke_id = ?`, id); err != nil {
		return err
	}
	var res sql.Result
	if res, err = tx.ExecContext(ctx, `DELETE FROM jokes WHERE id = ?`, id); err != nil {
		return err
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		err = store.ErrNotFound
		return err
	}
	err = tx.Commit()
	return err
}

func (s *Store) Leaderboard(ctx context.Context, limit int) ([]model.LeaderboardEntry, error) {
	limit = clamp(limit, 1, 100)
	// Grouped by account key when the joke has one, so renamed accounts
	// keep a single row; anonymous authors group by name snapshot.
	rows, err := s.db.QueryContext(ctx, `
SELECT COALESCE(a.nickname, j.author_name) AS author, SUM(j.score) AS total, COUNT(*) AS n
FROM jokes j
LEFT JOIN accounts a ON a.id = j.account_id
WHERE j.hidden = 0
GROUP BY COALESCE('a:' || j.account_id, 'n:' || j.author_name)
ORDER BY total DESC, n DESC, author ASC
LIMIT ?
`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []model.LeaderboardEntry
	for rows.Next() {
		var e model.LeaderboardEntry
		if err := rows.Scan(&e.AuthorName, &e.TotalScore, &e.JokeCount); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (s *Store) CreateComment(ctx context.Context, comment *model.Comment) (int64, error) {
	var exists int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM jokes WHERE id = ?`, comment.JokeID).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, store.ErrNotFound
	}
	if err != nil {
		return 0, err
	}
	res, err := s.db.ExecContext(ctx, `
INSERT INTO comments (joke_id, account_id, author_name, body, upvotes, downvotes, score, created_at)
VALUES (?, ?, ?, ?, 0, 0, 0, ?)
`, comment.JokeID, nullableInt(comment.AccountID), comment.AuthorName, comment.Text, comment.CreatedAt.Unix())
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (s *Store) ListComments(ctx context.Context, jokeID int64) ([]model.Comment, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT id, joke_id, account_id, author_name, body, upvotes, downvotes, score, created_at
FROM comments
WHERE joke_id = ?
ORDER BY created_at ASC, id ASC
`, jokeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectComments(rows)
}

func (s *Store) ListAllComments(ctx context.Context, opts store.AccountListOpts) ([]model.Comment, error) {
	limit := clamp(opts.Limit, 1, 100)
	offset := opts.Offset
	if offset < 0 {
		offset = 0
	}
	where := "1 = 1"
	args := []any{}
	if opts.Search != "" {
		where = "body LIKE '%' || ? || '%'"
		args = append(args, opts.Search)
	}
	args = append(args, limit, offset)
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`
SELECT id, joke_id, account_id, author_name, body, upvotes, downvotes, score, created_at
FROM comments
WHERE %s
ORDER BY created_at DESC, id DESC
LIMIT ? OFFSET ?
`, where), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectComments(rows)
}

// CastVote records one vote per (target, voter) and recomputes the target's
// aggregate from the full ledger inside the same transaction. A repeat vote
// overwrites the prior value in place; there is no retraction.
func (s *Store) CastVote(ctx context.Context, targetType string, targetID int64, voter store.Voter, value int) (store.VoteOutcome, error) {
	if value != 1 && value != -1 {
		return store.VoteOutcome{}, fmt.Errorf("invalid vote value %d", value)
	}
	if targetType != "joke" && targetType != "comment" {
		return store.VoteOutcome{}, fmt.Errorf("invalid target type %q", targetType)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return store.VoteOutcome{}, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	targetTable := "jokes"
	if targetType == "comment" {
		targetTable = "comments"
	}
	var exists int
	err = tx.QueryRowContext(ctx, fmt.Sprintf(`SELECT 1 FROM %s WHERE id = ?`, targetTable), targetID).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		err = store.ErrNotFound
		return store.VoteOutcome{}, err
	}
	if err != nil {
		return store.VoteOutcome{}, err
	}

	// Either slot may match: a voter who authenticates later is still the
	// same voter if the fingerprint matches. Shared addresses colliding is
	// an accepted limitation of the fingerprint slot.
	var voteID int64
	err = tx.QueryRowContext(ctx, `
SELECT id FROM votes
WHERE target_type = ? AND target_id = ? AND (account_id = ? OR voter_ip = ?)
LIMIT 1
`, targetType, targetID, nullableInt(voter.AccountID), voter.IP).Scan(&voteID)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		var res sql.Result
		res, err = tx.ExecContext(ctx, `
INSERT INTO votes (target_type, target_id, account_id, voter_ip, value, created_at)
VALUES (?, ?, ?, ?, ?, ?)
`, targetType, targetID, nullableInt(voter.AccountID), voter.IP, value, time.Now().Unix())
		if err != nil {
			if !isUniqueViolation(err) {
				return store.VoteOutcome{}, err
			}
			// Lost the insert race to a concurrent vote from the same
			// voter; fall through to an overwrite of the surviving row.
			err = tx.QueryRowContext(ctx, `
SELECT id FROM votes
WHERE target_type = ? AND target_id = ? AND (account_id = ? OR voter_ip = ?)
LIMIT 1
`, targetType, targetID, nullableInt(voter.AccountID), voter.IP).Scan(&voteID)
			if err != nil {
				return store.VoteOutcome{}, err
			}
			if _, err = tx.ExecContext(ctx, `UPDATE votes SET value = ? WHERE id = ?`, value, voteID); err != nil {
				return store.VoteOutcome{}, err
			}
		} else {
			voteID, err = res.LastInsertId()
			if err != nil {
				return store.VoteOutcome{}, err
			}
		}
	case err != nil:
		return store.VoteOutcome{}, err
	default:
		if _, err = tx.ExecContext(ctx, `UPDATE votes SET value = ? WHERE id = ?`, value, voteID); err != nil {
			return store.VoteOutcome{}, err
		}
	}

	// Full aggregation over the ledger, never incremental: the stored
	// counters stay consistent with the vote rows even after overwrites.
	var up, down int
	err = tx.QueryRowContext(ctx, `
SELECT COALESCE(SUM(CASE WHEN value = 1 THEN 1 ELSE 0 END), 0),
	COALESCE(SUM(CASE WHEN value = -1 THEN 1 ELSE 0 END), 0)
FROM votes
WHERE target_type = ? AND target_id = ?
`, targetType, targetID).Scan(&up, &down)
	if err != nil {
		return store.VoteOutcome{}, err
	}
	if _, err = tx.ExecContext(ctx, fmt.Sprintf(`
UPDATE %s SET upvotes = ?, downvotes = ?, score = ? WHERE id = ?
`, targetTable), up, down, up-down, targetID); err != nil {
		return store.VoteOutcome{}, err
	}

	var vote model.Vote
	var accountID sql.NullInt64
	var created int64
	err = tx.QueryRowContext(ctx, `
SELECT id, target_type, target_id, account_id, voter_ip, value, created_at
FROM votes WHERE id = ?
`, voteID).Scan(&vote.ID, &vote.TargetType, &vote.TargetID, &accountID, &vote.VoterIP, &vote.Value, &created)
	if err != nil {
		return store.VoteOutcome{}, err
	}
	if accountID.Valid {
		id := accountID.Int64
		vote.AccountID = &id
	}
	vote.CreatedAt = time.Unix(created, 0)

	if err = tx.Commit(); err != nil {
		return store.VoteOutcome{}, err
	}
	return store.VoteOutcome{Vote: vote, Upvotes: up, Downvotes: down, Score: up - down}, nil
}

func (s *Store) CountVotes(ctx context.Context, targetType string, targetID int64) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
SELECT COUNT(*) FROM votes WHERE target_type = ? AND target_id = ?
`, targetType, targetID).Scan(&count)
	return count, err
}

func (s *Store) CreateAccount(ctx context.Context, account *model.Account) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
INSERT INTO accounts (nickname, owner_nickname, api_key, alg, public_key, avatar_url, created_at, banned)
VALUES (?, ?, ?, ?, ?, ?, ?, 0)
`, account.Nickname, account.OwnerNickname, nullableStr(account.APIKey), nullableStr(account.Alg), nullableStr(account.PublicKey), nullIfEmpty(account.AvatarURL), account.CreatedAt.Unix())
	if err != nil {
		if isUniqueViolation(err) {
			return 0, s.duplicateCredential(ctx, account)
		}
		return 0, err
	}
	return res.LastInsertId()
}

// duplicateCredential resolves a unique violation on account creation to the
// existing owner of the credential, so registration can report "already
// registered" with a recoverable account id. A violation that is not on a
// credential slot is a nickname collision.
func (s *Store) duplicateCredential(ctx context.Context, account *model.Account) error {
	if account.APIKey != nil {
		if existing, err := s.FindAccountByAPIKey(ctx, *account.APIKey); err == nil {
			return &store.DuplicateCredentialError{AccountID: existing.ID}
		}
	}
	if account.Alg != nil && account.PublicKey != nil {
		if existing, err := s.FindAccountByPublicKey(ctx, *account.Alg, *account.PublicKey); err == nil {
			return &store.DuplicateCredentialError{AccountID: existing.ID}
		}
	}
	return store.ErrDuplicateNickname
}

func (s *Store) GetAccount(ctx context.Context, id int64) (model.Account, error) {
	row := s.db.QueryRowContext(ctx, accountSelect+`WHERE id = ? LIMIT 1`, id)
	return scanAccount(row)
}

func (s *Store) FindAccountByAPIKey(ctx context.Context, apiKey string) (model.Account, error) {
	row := s.db.QueryRowContext(ctx, accountSelect+`WHERE api_key = ? LIMIT 1`, apiKey)
	return scanAccount(row)
}

func (s *Store) FindAccountByPublicKey(ctx context.Context, alg, publicKey string) (model.Account, error) {
	row := s.db.QueryRowContext(ctx, accountSelect+`WHERE alg = ? AND public_key = ? LIMIT 1`, alg, publicKey)
	return scanAccount(row)
}

func (s *Store) ListAccounts(ctx context.Context, opts store.AccountListOpts) ([]model.Account, error) {
	limit := clamp(opts.Limit, 1, 100)
	offset := opts.Offset
	if offset < 0 {
		offset = 0
	}
	where := "1 = 1"
	args := []any{}
	if opts.Search != "" {
		where = "(nickname LIKE '%' || ? || '%' OR owner_nickname LIKE '%' || ? || '%')"
		args = append(args, opts.Search, opts.Search)
	}
	args = append(args, limit, offset)
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`%sWHERE %s ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`, accountSelect, where), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var accounts []model.Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}

func (s *Store) SetAccountBanned(ctx context.Context, id int64, banned bool, at time.Time) error {
	var bannedAt any
	if banned {
		bannedAt = at.Unix()
	}
	res, err := s.db.ExecContext(ctx, `UPDATE accounts SET banned = ?, banned_at = ? WHERE id = ?`, boolToInt(banned), bannedAt, id)
	if err != nil {
		return err
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) InitAdmin(ctx context.Context, admin *model.Admin) error {
	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM admins`).Scan(&count); err != nil {
		return err
	}
	if count > 0 {
		return store.ErrAlreadyInitialized
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO admins (username, password_hash, created_at)
VALUES (?, ?, ?)
`, admin.Username, admin.PasswordHash, admin.CreatedAt.Unix())
	if isUniqueViolation(err) {
		return store.ErrAlreadyInitialized
	}
	return err
}

func (s *Store) GetAdmin(ctx context.Context, username string) (model.Admin, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT username, password_hash, created_at FROM admins WHERE username = ?
`, username)
	var a model.Admin
	var created int64
	if err := row.Scan(&a.Username, &a.PasswordHash, &created); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			var count int
			if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM admins`).Scan(&count); err != nil {
				return model.Admin{}, err
			}
			if count == 0 {
				return model.Admin{}, store.ErrNotInitialized
			}
			return model.Admin{}, store.ErrNotFound
		}
		return model.Admin{}, err
	}
	a.CreatedAt = time.Unix(created, 0)
	return a, nil
}

func (s *Store) CreateAdminSession(ctx context.Context, session model.AdminSession) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO admin_sessions (token, username, expires_at, created_at)
VALUES (?, ?, ?, ?)
`, session.Token, session.Username, session.ExpiresAt.UnixMilli(), time.Now().Unix())
	return err
}

func (s *Store) GetAdminSession(ctx context.Context, token string) (model.AdminSession, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT token, username, expires_at FROM admin_sessions WHERE token = ?
`, token)
	var sess model.AdminSession
	var expires int64
	if err := row.Scan(&sess.Token, &sess.Username, &expires); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.AdminSession{}, store.ErrNotFound
		}
		return model.AdminSession{}, err
	}
	sess.ExpiresAt = time.UnixMilli(expires)
	return sess, nil
}

func (s *Store) DeleteAdminSession(ctx context.Context, token string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM admin_sessions WHERE token = ?`, token)
	return err
}

func (s *Store) GetSiteStats(ctx context.Context) (model.SiteStats, error) {
	var stats model.SiteStats
	row := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM accounts`)
	if err := row.Scan(&stats.Accounts); err != nil {
		return stats, err
	}
	row = s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM jokes WHERE hidden = 0`)
	if err := row.Scan(&stats.Jokes); err != nil {
		return stats, err
	}
	row = s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM comments`)
	if err := row.Scan(&stats.Comments); err != nil {
		return stats, err
	}
	return stats, nil
}

const accountSelect = `
SELECT id, nickname, owner_nickname, api_key, alg, public_key, avatar_url, created_at, banned, banned_at
FROM accounts
`

func scanAccount(scanner interface{ Scan(dest ...any) error }) (model.Account, error) {
	var a model.Account
	var apiKey, alg, publicKey, avatar sql.NullString
	var created int64
	var banned int
	var bannedAt sql.NullInt64
	if err := scanner.Scan(&a.ID, &a.Nickname, &a.OwnerNickname, &apiKey, &alg, &publicKey, &avatar, &created, &banned, &bannedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Account{}, store.ErrNotFound
		}
		return model.Account{}, err
	}
	if apiKey.Valid {
		v := apiKey.String
		a.APIKey = &v
	}
	if alg.Valid {
		v := alg.String
		a.Alg = &v
	}
	if publicKey.Valid {
		v := publicKey.String
		a.PublicKey = &v
	}
	if avatar.Valid {
		a.AvatarURL = avatar.String
	}
	a.CreatedAt = time.Unix(created, 0)
	a.Banned = banned == 1
	if bannedAt.Valid {
		t := time.Unix(bannedAt.Int64, 0)
		a.BannedAt = &t
	}
	return a, nil
}

func scanJoke(scanner interface{ Scan(dest ...any) error }) (model.Joke, error) {
	var j model.Joke
	var accountID sql.NullInt64
	var created int64
	var hidden int
	if err := scanner.Scan(&j.ID, &accountID, &j.AuthorName, &j.Text, &j.Upvotes, &j.Downvotes, &j.Score, &created, &hidden); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Joke{}, store.ErrNotFound
		}
		return model.Joke{}, err
	}
	if accountID.Valid {
		id := accountID.Int64
		j.AccountID = &id
	}
	j.CreatedAt = time.Unix(created, 0)
	j.Hidden = hidden == 1
	return j, nil
}

func collectComments(rows *sql.Rows) ([]model.Comment, error) {
	var comments []model.Comment
	for rows.Next() {
		var c model.Comment
		var accountID sql.NullInt64
		var created int64
		if err := rows.Scan(&c.ID, &c.JokeID, &accountID, &c.AuthorName, &c.Text, &c.Upvotes, &c.Downvotes, &c.Score, &created); err != nil {
			return nil, err
		}
		if accountID.Valid {
			id := accountID.Int64
			c.AccountID = &id
		}
		c.CreatedAt = time.Unix(created, 0)
		comments = append(comments, c)
	}
	return comments, rows.Err()
}

func clamp(v, min, max int) int {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullableInt(v *int64) any {
	if v == nil {
		return nil
	}
	return *v
}

func nullableStr(v *string) any {
	if v == nil {
		return nil
	}
	return *v
}

func nullIfEmpty(s string) any {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return s
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") || strings.Contains(msg, "PRIMARY KEY")
}
