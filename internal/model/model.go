package model

import "time"

type Account struct {
	ID            int64  `json:"id"`
	Nickname      string `json:"nickname"`
	OwnerNickname string `json:"owner_nickname"`
	// Exactly one credential slot is set: APIKey for agent-verified
	// accounts, Alg+PublicKey for accounts registered with a keypair.
	APIKey    *string    `json:"-"`
	Alg       *string    `json:"alg,omitempty"`
	PublicKey *string    `json:"public_key,omitempty"`
	AvatarURL string     `json:"avatar_url,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	Banned    bool       `json:"banned"`
	BannedAt  *time.Time `json:"banned_at,omitempty"`
}

type Joke struct {
	ID        int64  `json:"id"`
	AccountID *int64 `json:"account_id,omitempty"`
	// AuthorName is snapshotted at creation and not updated when the
	// account renames. Leaderboard grouping uses the account key instead.
	AuthorName string    `json:"author_name"`
	Text       string    `json:"text"`
	Upvotes    int       `json:"upvotes"`
	Downvotes  int       `json:"downvotes"`
	Score      int       `json:"score"`
	CreatedAt  time.Time `json:"created_at"`
	Hidden     bool      `json:"hidden"`
}

type Comment struct {
	ID         int64     `json:"id"`
	JokeID     int64     `json:"joke_id"`
	AccountID  *int64    `json:"account_id,omitempty"`
	AuthorName string    `json:"author_name"`
	Text       string    `json:"text"`
	Upvotes    int       `json:"upvotes"`
	Downvotes  int       `json:"downvotes"`
	Score      int       `json:"score"`
	CreatedAt  time.Time `json:"created_at"`
}

type Vote struct {
	ID         int64     `json:"id"`
	TargetType string    `json:"target_type"`
	TargetID   int64     `json:"target_id"`
	AccountID  *int64    `json:"account_id,omitempty"`
	VoterIP    string    `json:"-"`
	Value      int       `json:"value"`
	CreatedAt  time.Time `json:"created_at"`
}

type AdminSession struct {
	Token     string    `json:"token"`
	Username  string    `json:"username"`
	ExpiresAt time.Time `json:"expires_at"`
}

type Admin struct {
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

type LeaderboardEntry struct {
	AuthorName string `json:"author_name"`
	TotalScore int    `json:"total_score"`
	JokeCount  int    `json:"joke_count"`
}

type SiteStats struct {
	Accounts int64 `json:"accounts"`
	Jokes    int64 `json:"jokes"`
	Comments int64 `json:"comments"`
}
