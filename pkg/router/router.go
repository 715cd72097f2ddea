package router

import (
	"strconv"
	"strings"

	"github.com/gdbrns/whatsapp-webhook-relay/pkg/env"
)

// Config holds the HTTP server settings.
type Config struct {
	Address    string
	Port       string
	BodyLimit  int
	CORSOrigin string
	GZipLevel  int
}

// Addr returns the listen address.
func (c Config) Addr() string {
	return c.Address + ":" + c.Port
}

func LoadConfig() Config {
	return Config{
		// SERVER_ADDRESS: default "0.0.0.0" (all interfaces)
		Address: env.GetEnvStringOrDefault("SERVER_ADDRESS", "0.0.0.0"),
		// SERVER_PORT: default "3000", the port the backend calls back into
		Port: env.GetEnvStringOrDefault("SERVER_PORT", "3000"),
		// HTTP_BODY_LIMIT_SIZE: default "1M"
		BodyLimit: parseBodyLimit(env.GetEnvStringOrDefault("HTTP_BODY_LIMIT_SIZE", "1M")),
		// HTTP_CORS_ORIGIN: default "*"
		CORSOrigin: env.GetEnvStringOrDefault("HTTP_CORS_ORIGIN", "*"),
		// HTTP_GZIP_LEVEL: default 1 (best speed), 0 disables
		GZipLevel: env.GetEnvIntOrDefault("HTTP_GZIP_LEVEL", 1),
	}
}

func parseBodyLimit(limit string) int {
	const defaultLimit = 1024 * 1024
	limit = strings.TrimSpace(strings.ToUpper(limit))
	if limit == "" {
		return defaultLimit
	}
	multiplier := 1
	switch {
	case strings.HasSuffix(limit, "K"):
		multiplier = 1024
		limit = strings.TrimSuffix(limit, "K")
	case strings.HasSuffix(limit, "M"):
		multiplier = 1024 * 1024
		limit = strings.TrimSuffix(limit, "M")
	}
	value, err := strconv.Atoi(strings.TrimSpace(limit))
	if err != nil || value <= 0 {
		return defaultLimit
	}
	return value * multiplier
}
