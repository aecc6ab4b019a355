package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"ludo-arena-backend/internal/models"
)

type Config struct {
	Port      string
	Env       string
	RedisURL  string
	RedisPass string
	RedisDB   int
	JWTSecret string

	// Matchmaking
	Stake2P      int64
	StakeTeam    int64
	StakePrivate int64
	GemFee       int64

	QueueTimeout2P   time.Duration // stale 2p entries get a bot after this
	QueueTimeoutSolo time.Duration // solo entries get a bot partner after this
	QueueTimeoutTeam time.Duration // team tickets get a bot team after this
	StaleQueueAge    time.Duration // entries older than this are dropped entirely

	// Turn lifecycle
	TurnTimeout time.Duration // per-turn deadline before bot takeover
	BotTakeover time.Duration // grace before the takeover slot is shown
	GameTimeout time.Duration // hard ceiling on an idle active session
	Rake        float64

	// Wallet bootstrap
	InitialGold int64
	InitialGems int64
}

func Load() (*Config, error) {
	cfg := &Config{
		Port:      getEnv("PORT", "8080"),
		Env:       getEnv("ENV", "development"),
		RedisURL:  getEnv("REDIS_URL", "localhost:6379"),
		RedisPass: getEnv("REDIS_PASS", ""),
		RedisDB:   getEnvInt("REDIS_DB", 0),
		JWTSecret: getEnv("JWT_SECRET", ""),

		Stake2P:      getEnvInt64("STAKE_2P", 1000),
		StakeTeam:    getEnvInt64("STAKE_TEAM", 1000),
		StakePrivate: getEnvInt64("STAKE_PRIVATE", 1000),
		GemFee:       getEnvInt64("GEM_FEE", 10),

		QueueTimeout2P:   getEnvSeconds("QUEUE_TIMEOUT_2P_SEC", 45),
		QueueTimeoutSolo: getEnvSeconds("QUEUE_TIMEOUT_SOLO_SEC", 40),
		QueueTimeoutTeam: getEnvSeconds("QUEUE_TIMEOUT_TEAM_SEC", 40),
		StaleQueueAge:    getEnvSeconds("STALE_QUEUE_AGE_SEC", 300),

		TurnTimeout: getEnvSeconds("TURN_TIMEOUT_SEC", 15),
		BotTakeover: getEnvSeconds("BOT_TAKEOVER_SEC", 10),
		GameTimeout: time.Duration(getEnvInt("GAME_TIMEOUT_MIN", 15)) * time.Minute,
		Rake:        getEnvFloat("RAKE", 0.0),

		InitialGold: getEnvInt64("INITIAL_GOLD", 5000),
		InitialGems: getEnvInt64("INITIAL_GEMS", 50),
	}

	if cfg.Env == "production" && cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required in production")
	}
	if cfg.JWTSecret == "" {
		cfg.JWTSecret = "dev-secret-do-not-use-in-production"
	}

	return cfg, nil
}

// StakeFor returns the per-player stake for a mode.
func (c *Config) StakeFor(mode models.Mode) int64 {
	switch mode {
	case models.ModeTeam:
		return c.StakeTeam
	case models.ModePrivate:
		return c.StakePrivate
	default:
		return c.Stake2P
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvInt64(key string, fallback int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getEnvSeconds(key string, fallback int) time.Duration {
	return time.Duration(getEnvInt(key, fallback)) * time.Second
}
