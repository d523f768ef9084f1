package config

import (
	"os"
	"strconv"
	"strings"
)

type Config struct {
	// AI generation
	AIMLAPIKey  string
	AIMLBaseURL string

	// Text-to-speech
	ElevenLabsAPIKey string

	// Chain
	RPCURL         string
	TokenAddress   string
	CreatorAddress string
	ChainID        int64
	VerifyOnChain  bool

	// Server
	Port      int
	PublicDir string

	// Database
	DBPath string

	// Creator notifications
	BotToken    string
	AdminChatID int64
}

func Load() *Config {
	return &Config{
		// AI generation
		AIMLAPIKey:  getEnv("AIML_API_KEY", ""),
		AIMLBaseURL: strings.TrimSuffix(getEnv("AIML_BASE_URL", "https://api.aimlapi.com/v1"), "/"),

		// Text-to-speech
		ElevenLabsAPIKey: getEnv("ELEVENLABS_API_KEY", ""),

		// Chain (defaults target the Arc testnet USDC deployment)
		RPCURL:         getEnv("RPC_URL", "https://rpc.testnet.arc.network"),
		TokenAddress:   getEnv("TOKEN_ADDRESS", "0x3600000000000000000000000000000000000000"),
		CreatorAddress: getEnv("CREATOR_ADDRESS", "0xc566bc1e529a71ece83145f98aac3c818d1311b3"),
		ChainID:        getEnvInt64("CHAIN_ID", 315298),
		VerifyOnChain:  getEnvBool("VERIFY_ON_CHAIN", false),

		// Server
		Port:      getEnvInt("PORT", 3000),
		PublicDir: getEnv("PUBLIC_DIR", "./public"),

		// Database
		DBPath: getEnv("DB_PATH", "./storyteller.db"),

		// Creator notifications
		BotToken:    getEnv("BOT_TOKEN", ""),
		AdminChatID: getEnvInt64("ADMIN_CHAT_ID", 0),
	}
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvInt64(key string, defaultVal int64) int64 {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.ParseInt(val, 10, 64); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return defaultVal
}
