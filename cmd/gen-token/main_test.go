package main

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/taskman/taskman/internal/platform/config"
)

func TestMint(t *testing.T) {
	cfg := &config.Config{
		JWTSigningKey: "0123456789abcdef0123456789abcdef",
		JWTTokenType:  "access",
		JWTAudience:   "taskman",
	}
	now := time.Unix(1_900_000_000, 0)

	raw, err := mint(cfg, 42, now, time.Hour)
	require.NoError(t, err)

	claims := jwt.MapClaims{}
	_, err = jwt.NewParser(jwt.WithoutClaimsValidation()).ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return []byte(cfg.JWTSigningKey), nil
	})
	require.NoError(t, err)

	assert.Equal(t, float64(42), claims["user_id"])
	assert.Equal(t, "access", claims["token_type"])
	assert.Equal(t, "taskman", claims["aud"])
	assert.Equal(t, float64(now.Add(time.Hour).Unix()), claims["exp"])
	assert.NotEmpty(t, claims["jti"])
	assert.NotContains(t, claims, "iss")
}
