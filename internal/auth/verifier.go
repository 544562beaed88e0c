// Package auth verifies bearer access tokens and resolves them to a user.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/MicahParks/keyfunc"
	"github.com/golang-jwt/jwt/v4"
	"github.com/jonboulle/clockwork"
	"github.com/taskman/taskman/internal/adapter/metrics"
	"github.com/taskman/taskman/internal/domain"
)

const (
	claimUserID    = "user_id"
	claimTokenType = "token_type"
)

// Config selects the signing scheme. With JWKS set, tokens must be RS256
// signed by a key from that set; otherwise HS256 with SigningKey.
type Config struct {
	SigningKey []byte
	JWKS       *keyfunc.JWKS
	Audience   string
	Issuer     string
	// TokenType is the required token_type claim; empty disables the check.
	TokenType string
	Leeway    time.Duration
}

type Verifier struct {
	users     domain.UserRepository
	parser    *jwt.Parser
	keyfunc   jwt.Keyfunc
	audience  string
	issuer    string
	tokenType string
	leeway    time.Duration
	clock     clockwork.Clock
	metrics   *metrics.AuthMetrics
}

func NewVerifier(cfg Config, users domain.UserRepository, clock clockwork.Clock, m *metrics.AuthMetrics) (*Verifier, error) {
	v := &Verifier{
		users:     users,
		audience:  cfg.Audience,
		issuer:    cfg.Issuer,
		tokenType: cfg.TokenType,
		leeway:    cfg.Leeway,
		clock:     clock,
		metrics:   m,
	}

	switch {
	case cfg.JWKS != nil:
		v.parser = jwt.NewParser(jwt.WithValidMethods([]string{"RS256"}), jwt.WithoutClaimsValidation())
		v.keyfunc = cfg.JWKS.Keyfunc
	case len(cfg.SigningKey) > 0:
		key := cfg.SigningKey
		v.parser = jwt.NewParser(jwt.WithValidMethods([]string{"HS256"}), jwt.WithoutClaimsValidation())
		v.keyfunc = func(*jwt.Token) (any, error) { return key, nil }
	default:
		return nil, errors.New("auth: either a signing key or a JWKS is required")
	}

	return v, nil
}

// Verify authenticates a connection attempt. Failures are *Error values;
// any other error means the user store could not be consulted.
func (v *Verifier) Verify(ctx context.Context, r *http.Request) (domain.UserID, error) {
	raw, ok := ExtractToken(r)
	if !ok {
		v.record(ReasonMissing)
		return 0, ErrMissing
	}
	return v.VerifyToken(ctx, raw)
}

// VerifyToken validates raw and looks its subject up exactly once.
func (v *Verifier) VerifyToken(ctx context.Context, raw string) (domain.UserID, error) {
	userID, authErr := v.parse(raw)
	if authErr != nil {
		v.record(authErr.Reason)
		return 0, authErr
	}

	if _, err := v.users.GetByID(ctx, userID); err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			v.record(ReasonUnknownUser)
			return 0, &Error{Reason: ReasonUnknownUser, Err: fmt.Errorf("user %d", userID)}
		}
		v.metrics.Verifications.WithLabelValues("lookup_error").Inc()
		return 0, fmt.Errorf("failed to look up user %d: %w", userID, err)
	}

	v.metrics.Verifications.WithLabelValues("ok").Inc()
	return userID, nil
}

func (v *Verifier) parse(raw string) (domain.UserID, *Error) {
	token, err := v.parser.Parse(raw, v.keyfunc)
	if err != nil {
		return 0, invalid(err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return 0, invalid(errors.New("unexpected claims type"))
	}

	now := v.clock.Now()
	if !claims.VerifyExpiresAt(now.Add(-v.leeway).Unix(), true) {
		return 0, invalid(errors.New("token expired"))
	}
	if !claims.VerifyNotBefore(now.Add(v.leeway).Unix(), false) {
		return 0, invalid(errors.New("token not valid yet"))
	}
	if v.audience != "" && !claims.VerifyAudience(v.audience, true) {
		return 0, invalid(errors.New("invalid audience"))
	}
	if v.issuer != "" && !claims.VerifyIssuer(v.issuer, true) {
		return 0, invalid(errors.New("invalid issuer"))
	}
	if v.tokenType != "" {
		if tt, _ := claims[claimTokenType].(string); tt != v.tokenType {
			return 0, invalid(fmt.Errorf("token type %q not accepted", tt))
		}
	}

	userID, err := subject(claims)
	if err != nil {
		return 0, invalid(err)
	}
	return userID, nil
}

// subject reads the user id from the user_id claim, falling back to sub.
func subject(claims jwt.MapClaims) (domain.UserID, error) {
	raw, ok := claims[claimUserID]
	if !ok {
		raw, ok = claims["sub"]
	}
	if !ok {
		return 0, errors.New("missing subject claim")
	}

	switch s := raw.(type) {
	case float64:
		if s != float64(int64(s)) || s <= 0 {
			return 0, fmt.Errorf("invalid subject %v", s)
		}
		return domain.UserID(int64(s)), nil
	case string:
		id, err := strconv.ParseInt(s, 10, 64)
		if err != nil || id <= 0 {
			return 0, fmt.Errorf("invalid subject %q", s)
		}
		return domain.UserID(id), nil
	default:
		return 0, fmt.Errorf("invalid subject type %T", raw)
	}
}

func (v *Verifier) record(reason Reason) {
	v.metrics.Verifications.WithLabelValues(string(reason)).Inc()
	slog.Debug("Token verification failed", "reason", string(reason))
}
