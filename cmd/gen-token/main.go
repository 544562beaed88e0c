// Command gen-token mints an HS256 access token for a user, creating the
// user first when asked to. It is meant for local development and tests.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"
	"github.com/taskman/taskman/internal/adapter/postgres"
	"github.com/taskman/taskman/internal/domain"
	"github.com/taskman/taskman/internal/platform/config"
	"github.com/taskman/taskman/internal/platform/logging"
)

func main() {
	var (
		username = flag.String("user", "", "Username to mint a token for")
		email    = flag.String("email", "", "Email used when -create is set")
		create   = flag.Bool("create", false, "Create the user if it does not exist")
		ttl      = flag.Duration("ttl", time.Hour, "Token lifetime")
		verbose  = flag.Bool("verbose", false, "Verbose logging")
	)
	flag.Parse()

	if *username == "" {
		log.Fatal("User required (-user)")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if cfg.JWTSigningKey == "" {
		log.Fatal("JWT_SIGNING_KEY is required to mint tokens")
	}

	level := "warn"
	if *verbose {
		level = "debug"
	}
	logging.InitLogger(level, "text")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := postgres.Connect(ctx, cfg.DatabaseURL, nil)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer pool.Close()

	users := postgres.NewUserRepo(pool)

	var user *domain.User
	if *create {
		if err := postgres.RunMigrations(ctx, pool); err != nil {
			log.Fatalf("Failed to run migrations: %v", err)
		}
		user, err = users.Upsert(ctx, *username, *email)
	} else {
		user, err = users.GetByUsername(ctx, *username)
	}
	if err != nil {
		log.Fatalf("Failed to resolve user %q: %v", *username, err)
	}

	token, err := mint(cfg, user.ID, time.Now(), *ttl)
	if err != nil {
		log.Fatalf("Failed to sign token: %v", err)
	}

	if _, err := fmt.Fprintln(os.Stdout, token); err != nil {
		log.Fatalf("Failed to write token: %v", err)
	}
}

func mint(cfg *config.Config, userID domain.UserID, now time.Time, ttl time.Duration) (string, error) {
	claims := jwt.MapClaims{
		"user_id": int64(userID),
		"jti":     uuid.NewString(),
		"iat":     now.Unix(),
		"exp":     now.Add(ttl).Unix(),
	}
	if cfg.JWTTokenType != "" {
		claims["token_type"] = cfg.JWTTokenType
	}
	if cfg.JWTAudience != "" {
		claims["aud"] = cfg.JWTAudience
	}
	if cfg.JWTIssuer != "" {
		claims["iss"] = cfg.JWTIssuer
	}

	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(cfg.JWTSigningKey))
}
