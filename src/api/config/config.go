package config

import (
	"log"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

type Config struct {
	MySQLDSN    string
	RedisURL    string
	JWTSecret   string
	Port        string
	FrontendURL string

	// Steem node and SteemConnect OAuth
	SteemAPI           string
	SteemConnectURL    string
	SteemConnectSecret string

	// Account provisioning material. Explicit config instead of the
	// scattered env branching the old service did.
	Testnet                       bool
	AccountCreator                string // creator account, mainnet
	AccountCreatorKey             string // active key WIF, mainnet
	AccountCreatorTestnet         string // creator account, testnet
	AccountCreatorTestnetPassword string

	// AES key (hex, 32 bytes) for access/refresh token storage
	EncryptionKey string

	PollInterval int // quote refresh, seconds
	RateLimit    int // requests per minute per user, per address when anonymous
}

func getenv(key, def string) string {
	v := os.Getenv(key)
	if v == "" {
		if def == "" {
			log.Fatalf("missing env %s", key)
		}
		return def
	}
	return v
}

func Load() Config {
	_ = godotenv.Load()

	pi, _ := strconv.Atoi(getenv("POLL_INTERVAL", "300"))
	rl, _ := strconv.Atoi(getenv("RATE_LIMIT", "60"))
	testnet, _ := strconv.ParseBool(getenv("TESTNET", "false"))

	cfg := Config{
		MySQLDSN:           getenv("MYSQL_DSN", "utopian:utopian@tcp(127.0.0.1:3306)/utopian?parseTime=true"),
		RedisURL:           getenv("REDIS_URL", "redis://127.0.0.1:6379/0"),
		JWTSecret:          getenv("JWT_SECRET", ""),
		Port:               getenv("PORT", "8080"),
		FrontendURL:        getenv("FRONTEND_URL", "https://utopian.io"),
		SteemAPI:           getenv("STEEM_API", "https://api.steemit.com"),
		SteemConnectURL:    getenv("STEEMCONNECT_URL", "https://steemconnect.com/api/oauth2/token"),
		SteemConnectSecret: getenv("STEEMCONNECT_CLIENT_SECRET", ""),
		Testnet:            testnet,
		EncryptionKey:      getenv("ENCRYPTION_KEY", ""),
		PollInterval:       pi,
		RateLimit:          rl,
	}

	if cfg.Testnet {
		cfg.AccountCreatorTestnet = getenv("ACCOUNT_CREATOR_TESTNET", "")
		cfg.AccountCreatorTestnetPassword = getenv("ACCOUNT_CREATOR_PASSWORD_TESTNET", "")
	} else {
		cfg.AccountCreator = getenv("ACCOUNT_CREATOR", "")
		cfg.AccountCreatorKey = getenv("ACCOUNT_CREATOR_ACTIVE_KEY", "")
	}

	return cfg
}
