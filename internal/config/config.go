package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	Addr            string
	DBPath          string
	VerifierURL     string
	VerifierTimeout time.Duration
	SessionTTL      time.Duration
	LeaderboardSize int
	RateLimits      RateLimits
}

type RateLimits struct {
	JokePerMinute    int
	CommentPerMinute int
	VotePerMinute    int
}

func Load() Config {
	addr := envString("JOKEHUB_ADDR", "")
	if addr == "" {
		if port := os.Getenv("PORT"); port != "" {
			addr = ":" + port
		} else {
			addr = ":8080"
		}
	}
	cfg := Config{
		Addr:            addr,
		DBPath:          envString("JOKEHUB_DB", "jokehub.db"),
		VerifierURL:     envString("JOKEHUB_VERIFIER_URL", "https://verifier.jokehub.net"),
		VerifierTimeout: envDuration("JOKEHUB_VERIFIER_TIMEOUT", 5*time.Second),
		SessionTTL:      envDuration("JOKEHUB_SESSION_TTL", 24*time.Hour),
		LeaderboardSize: envInt("JOKEHUB_LEADERBOARD_SIZE", 20),
		RateLimits: RateLimits{
			JokePerMinute:    envInt("JOKEHUB_RL_JOKE_PER_MIN", 10),
			CommentPerMinute: envInt("JOKEHUB_RL_COMMENT_PER_MIN", 30),
			VotePerMinute:    envInt("JOKEHUB_RL_VOTE_PER_MIN", 120),
		},
	}

	return cfg
}

func envString(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func envDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
