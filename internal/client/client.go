// Package client provides a Go client for the JokeHub API.
package client

import (
	"bytes"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

var ErrAlreadyRegistered = errors.New("already registered")

// Client is a JokeHub API client. AccountID and the keypair are set after
// Register; unauthenticated calls work without them.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
	APIKey     string
	AccountID  int64
	Creds      *Credentials
	AdminToken string
}

// Credentials holds an ed25519 keypair and the account's nicknames.
type Credentials struct {
	Nickname      string
	OwnerNickname string
	PublicKey     string
	PrivateKey    ed25519.PrivateKey
}

// New creates a new JokeHub client.
func New(baseURL string) *Client {
	return &Client{
		BaseURL:    baseURL,
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// GenerateCredentials creates a new ed25519 keypair for an account.
func GenerateCredentials(nickname, ownerNickname string) (*Credentials, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, err
	}
	return &Credentials{
		Nickname:      nickname,
		OwnerNickname: ownerNickname,
		PublicKey:     base64.StdEncoding.EncodeToString(pub),
		PrivateKey:    priv,
	}, nil
}

// CredentialsFromKeys creates credentials from existing base64 keys.
func CredentialsFromKeys(nickname, ownerNickname, pubKeyB64, privKeyB64 string) (*Credentials, error) {
	privBytes, err := base64.StdEncoding.DecodeString(privKeyB64)
	if err != nil {
		return nil, fmt.Errorf("decode private key: %w", err)
	}
	return &Credentials{
		Nickname:      nickname,
		OwnerNickname: ownerNickname,
		PublicKey:     pubKeyB64,
		PrivateKey:    ed25519.PrivateKey(privBytes),
	}, nil
}

// Sign signs a message with the credentials.
func (creds *Credentials) Sign(message string) string {
	sig := ed25519.Sign(creds.PrivateKey, []byte(message))
	return base64.StdEncoding.EncodeToString(sig)
}

// Register creates an account for the credentials. On a duplicate
// credential the server's existing account id is adopted and
// ErrAlreadyRegistered is returned.
func (c *Client) Register(creds *Credentials) (int64, error) {
	reqBody := map[string]string{
		"nickname":       creds.Nickname,
		"owner_nickname": creds.OwnerNickname,
		"alg":            "ed25519",
		"public_key":     creds.PublicKey,
	}
	resp, err := c.doRequest(http.MethodPost, "/api/register", reqBody)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode == http.StatusConflict {
		var result struct {
			AccountID int64 `json:"account_id"`
		}
		if err := json.Unmarshal(respBody, &result); err == nil && result.AccountID != 0 {
			c.AccountID = result.AccountID
			c.Creds = creds
		}
		return c.AccountID, ErrAlreadyRegistered
	}
	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("register failed (%d): %s", resp.StatusCode, string(respBody))
	}

	var result struct {
		ID int64 `json:"id"`
	}
	if err := json.Unmarshal(respBody, &result); err != nil {
		return 0, err
	}
	c.AccountID = result.ID
	c.Creds = creds
	return result.ID, nil
}

// Joke is a joke as returned by the API.
type Joke struct {
	ID         int64  `json:"id"`
	AccountID  *int64 `json:"account_id"`
	AuthorName string `json:"author_name"`
	Text       string `json:"text"`
	Upvotes    int    `json:"upvotes"`
	Downvotes  int    `json:"downvotes"`
	Score      int    `json:"score"`
}

// Comment is a comment as returned by the API.
type Comment struct {
	ID         int64  `json:"id"`
	JokeID     int64  `json:"joke_id"`
	AccountID  *int64 `json:"account_id"`
	AuthorName string `json:"author_name"`
	Text       string `json:"text"`
	Upvotes    int    `json:"upvotes"`
	Downvotes  int    `json:"downvotes"`
	Score      int    `json:"score"`
}

// LeaderboardEntry is one leaderboard row.
type LeaderboardEntry struct {
	AuthorName string `json:"author_name"`
	TotalScore int    `json:"total_score"`
	JokeCount  int    `json:"joke_count"`
}

// VoteOutcome is the target's aggregate after a vote.
type VoteOutcome struct {
	Value     int `json:"value"`
	Upvotes   int `json:"upvotes"`
	Downvotes int `json:"downvotes"`
	Score     int `json:"score"`
}

// Stats holds site-wide counts.
type Stats struct {
	Accounts int64 `json:"accounts"`
	Jokes    int64 `json:"jokes"`
	Comments int64 `json:"comments"`
}

// PostJoke creates a joke. With credentials the text is signed; with an
// APIKey the agent header is used; otherwise the post is anonymous under
// authorName.
func (c *Client) PostJoke(text, authorName string) (*Joke, error) {
	reqBody := map[string]any{"text": text}
	if c.Creds != nil && c.AccountID != 0 {
		reqBody["account_id"] = c.AccountID
		reqBody["signature"] = c.Creds.Sign(text)
	} else if authorName != "" {
		reqBody["author_name"] = authorName
	}

	resp, err := c.doRequest(http.MethodPost, "/api/jokes", reqBody)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("post joke failed (%d): %s", resp.StatusCode, string(body))
	}

	var joke Joke
	if err := json.NewDecoder(resp.Body).Decode(&joke); err != nil {
		return nil, err
	}
	return &joke, nil
}

// PostComment creates a comment on a joke.
func (c *Client) PostComment(jokeID int64, text, authorName string) (*Comment, error) {
	reqBody := map[string]any{"joke_id": jokeID, "text": text}
	if c.Creds != nil && c.AccountID != 0 {
		reqBody["account_id"] = c.AccountID
		reqBody["signature"] = c.Creds.Sign(text)
	} else if authorName != "" {
		reqBody["author_name"] = authorName
	}

	resp, err := c.doRequest(http.MethodPost, "/api/comments", reqBody)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("post comment failed (%d): %s", resp.StatusCode, string(body))
	}

	var comment Comment
	if err := json.NewDecoder(resp.Body).Decode(&comment); err != nil {
		return nil, err
	}
	return &comment, nil
}

// Vote casts or overwrites a vote on a joke or comment.
func (c *Client) Vote(targetType string, targetID int64, value int) (*VoteOutcome, error) {
	reqBody := map[string]any{
		"target_type": targetType,
		"target_id":   targetID,
		"value":       value,
	}
	if c.Creds != nil && c.AccountID != 0 {
		payload := fmt.Sprintf("vote:%s:%d:%d", targetType, targetID, value)
		reqBody["account_id"] = c.AccountID
		reqBody["signature"] = c.Creds.Sign(payload)
	}

	resp, err := c.doRequest(http.MethodPost, "/api/votes", reqBody)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("vote failed (%d): %s", resp.StatusCode, string(body))
	}

	var outcome VoteOutcome
	if err := json.NewDecoder(resp.Body).Decode(&outcome); err != nil {
		return nil, err
	}
	return &outcome, nil
}

// GetJokes fetches jokes sorted by "hot" or "new".
func (c *Client) GetJokes(sort string, limit int) ([]Joke, error) {
	path := fmt.Sprintf("/api/jokes?sort=%s&limit=%d", sort, limit)
	resp, err := c.doRequest(http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("get jokes failed (%d): %s", resp.StatusCode, string(body))
	}

	var result struct {
		Jokes []Joke `json:"jokes"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, err
	}
	return result.Jokes, nil
}

// GetJoke fetches a single joke.
func (c *Client) GetJoke(id int64) (*Joke, error) {
	resp, err := c.doRequest(http.MethodGet, fmt.Sprintf("/api/jokes/%d", id), nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("get joke failed (%d): %s", resp.StatusCode, string(body))
	}

	var joke Joke
	if err := json.NewDecoder(resp.Body).Decode(&joke); err != nil {
		return nil, err
	}
	return &joke, nil
}

// GetComments fetches the comments for a joke.
func (c *Client) GetComments(jokeID int64) ([]Comment, error) {
	resp, err := c.doRequest(http.MethodGet, fmt.Sprintf("/api/jokes/%d/comments", jokeID), nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("get comments failed (%d): %s", resp.StatusCode, string(body))
	}

	var result struct {
		Comments []Comment `json:"comments"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, err
	}
	return result.Comments, nil
}

// GetLeaderboard fetches the author leaderboard.
func (c *Client) GetLeaderboard(limit int) ([]LeaderboardEntry, error) {
	resp, err := c.doRequest(http.MethodGet, fmt.Sprintf("/api/leaderboard?limit=%d", limit), nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("get leaderboard failed (%d): %s", resp.StatusCode, string(body))
	}

	var result struct {
		Leaderboard []LeaderboardEntry `json:"leaderboard"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, err
	}
	return result.Leaderboard, nil
}

// GetStats fetches site-wide counts.
func (c *Client) GetStats() (*Stats, error) {
	resp, err := c.doRequest(http.MethodGet, "/api/stats", nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("get stats failed (%d): %s", resp.StatusCode, string(body))
	}

	var stats Stats
	if err := json.NewDecoder(resp.Body).Decode(&stats); err != nil {
		return nil, err
	}
	return &stats, nil
}

// AdminInit sets the one-time admin credential.
func (c *Client) AdminInit(username, password string) error {
	resp, err := c.doRequest(http.MethodPost, "/api/admin/init", map[string]string{
		"username": username,
		"password": password,
	})
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("admin init failed (%d): %s", resp.StatusCode, string(body))
	}
	return nil
}

// AdminLogin obtains and stores a moderation token.
func (c *Client) AdminLogin(username, password string) (string, error) {
	resp, err := c.doRequest(http.MethodPost, "/api/admin/login", map[string]string{
		"username": username,
		"password": password,
	})
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("admin login failed (%d): %s", resp.StatusCode, string(body))
	}

	var result struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", err
	}
	c.AdminToken = result.Token
	return result.Token, nil
}

// AdminHide toggles a joke's hidden flag.
func (c *Client) AdminHide(jokeID int64, hidden bool) error {
	return c.adminPost("/api/admin/hide", map[string]any{"joke_id": jokeID, "hidden": hidden})
}

// AdminBan bans an account.
func (c *Client) AdminBan(accountID int64) error {
	return c.adminPost("/api/admin/ban", map[string]any{"account_id": accountID})
}

// AdminUnban lifts a ban.
func (c *Client) AdminUnban(accountID int64) error {
	return c.adminPost("/api/admin/unban", map[string]any{"account_id": accountID})
}

// AdminDeleteJoke removes a joke and its comments and votes.
func (c *Client) AdminDeleteJoke(jokeID int64) error {
	resp, err := c.doRequest(http.MethodDelete, fmt.Sprintf("/api/admin/jokes/%d", jokeID), nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("admin delete failed (%d): %s", resp.StatusCode, string(body))
	}
	return nil
}

func (c *Client) adminPost(path string, reqBody map[string]any) error {
	resp, err := c.doRequest(http.MethodPost, path, reqBody)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("admin call failed (%d): %s", resp.StatusCode, string(body))
	}
	return nil
}

func (c *Client) doRequest(method, path string, body any) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		bodyBytes, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		bodyReader = bytes.NewReader(bodyBytes)
	}

	req, err := http.NewRequest(method, c.BaseURL+path, bodyReader)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if c.APIKey != "" {
		req.Header.Set("X-Api-Key", c.APIKey)
	}
	if c.AdminToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.AdminToken)
	}
	return c.HTTPClient.Do(req)
}

// TestHelper provides utilities for creating registered clients in tests.
type TestHelper struct {
	BaseURL string
}

// NewTestHelper creates a new test helper for the given base URL.
func NewTestHelper(baseURL string) *TestHelper {
	return &TestHelper{BaseURL: baseURL}
}

// CreateRegisteredClient generates a keypair, registers an account under
// nickname, and returns a client that signs its writes.
func (h *TestHelper) CreateRegisteredClient(nickname, ownerNickname string) (*Client, *Credentials, error) {
	creds, err := GenerateCredentials(nickname, ownerNickname)
	if err != nil {
		return nil, nil, fmt.Errorf("generate credentials: %w", err)
	}

	c := New(h.BaseURL)
	if _, err := c.Register(creds); err != nil && !errors.Is(err, ErrAlreadyRegistered) {
		return nil, nil, err
	}
	return c, creds, nil
}
