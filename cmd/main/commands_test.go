package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/gdbrns/whatsapp-webhook-relay/pkg/auth"
)

func TestTokenCommand(t *testing.T) {
	req := require.New(t)
	t.Setenv("RELAY_JWT_SECRET", "jwt-secret")

	var out bytes.Buffer
	cmd := buildRootCmd()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"token", "--subject", "backend", "--ttl", "1h"})
	req.NoError(cmd.Execute())

	claims, err := auth.ValidateRelayToken("jwt-secret", strings.TrimSpace(out.String()))
	req.NoError(err)
	req.Equal("backend", claims.Subject)
}

func TestTokenCommand_NeedsSecret(t *testing.T) {
	t.Setenv("RELAY_JWT_SECRET", "")

	cmd := buildRootCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"token"})
	require.ErrorIs(t, cmd.Execute(), auth.ErrSecretNotConfigured)
}
