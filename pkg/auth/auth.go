package auth

import (
	"github.com/gdbrns/whatsapp-webhook-relay/pkg/env"
)

// Config holds the optional secrets guarding the HTTP API. Empty values
// disable the matching guard.
type Config struct {
	// AdminSecretKey guards the /session endpoints
	AdminSecretKey string
	// JWTSecretKey guards /send-message with HS256 bearer tokens
	JWTSecretKey string
}

func LoadConfig() Config {
	return Config{
		AdminSecretKey: env.GetEnvStringOrDefault("ADMIN_SECRET_KEY", ""),
		JWTSecretKey:   env.GetEnvStringOrDefault("RELAY_JWT_SECRET", ""),
	}
}
