package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

type Config struct {
	Port                  string
	AllowedOrigin         string
	DatabasePath          string
	RedisAddr             string
	RedisPassword         string
	RedisDB               int
	TerminalID            string
	CatalogBaseURL        string
	CatalogAPIToken       string
	AuthSecret            string
	AccessTokenTTLMinutes int
	LookupTTLSeconds      int
}

func Load() Config {
	redisDB, _ := strconv.Atoi(getEnv("REDIS_DB", "0"))
	lookupTTL, err := strconv.Atoi(getEnv("LOOKUP_TTL_SECONDS", "300"))
	if err != nil || lookupTTL < 1 {
		lookupTTL = 300
	}
	tokenTTL, err := strconv.Atoi(getEnv("ACCESS_TOKEN_TTL_MINUTES", "720"))
	if err != nil || tokenTTL < 1 {
		tokenTTL = 720
	}

	cfg := Config{
		Port:                  getEnv("PORT", "8080"),
		AllowedOrigin:         getEnv("ALLOWED_ORIGIN", "http://127.0.0.1:1420"),
		DatabasePath:          os.Getenv("DATABASE_PATH"),
		RedisAddr:             os.Getenv("REDIS_ADDR"),
		RedisPassword:         os.Getenv("REDIS_PASSWORD"),
		RedisDB:               redisDB,
		TerminalID:            getEnv("TERMINAL_ID", "terminal-01"),
		CatalogBaseURL:        os.Getenv("CATALOG_BASE_URL"),
		CatalogAPIToken:       strings.TrimSpace(os.Getenv("CATALOG_API_TOKEN")),
		AuthSecret:            strings.TrimSpace(os.Getenv("AUTH_SECRET")),
		AccessTokenTTLMinutes: tokenTTL,
		LookupTTLSeconds:      lookupTTL,
	}

	return cfg
}

func (c Config) Address() string {
	return fmt.Sprintf(":%s", c.Port)
}

func getEnv(key string, fallback string) string {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	return val
}
