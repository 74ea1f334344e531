package config

import (
	"os"
)

type Config struct {
	DatabaseURL string
	Port        string
	Environment string

	// Marketplace API
	MeliBaseURL     string
	MeliAccessToken string

	// Default seller for CLI tools and the watcher daemon
	SellerID string
}

func Load() *Config {
	defaultDSN := "root:listing@tcp(127.0.0.1:3306)/listing_audit?charset=utf8mb4&parseTime=True&loc=Local"

	return &Config{
		DatabaseURL: getEnv("DATABASE_URL", defaultDSN),
		Port:        getEnv("PORT", "8080"),
		Environment: getEnv("ENVIRONMENT", "development"),

		MeliBaseURL:     getEnv("MELI_BASE_URL", ""),
		MeliAccessToken: getEnv("MELI_ACCESS_TOKEN", ""),

		SellerID: getEnv("SELLER_ID", ""),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
