// Command devtoken mints a short-lived access token for a seeded user so a
// client can connect to /ws during local development. Production tokens come
// from the auth subsystem.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/deba607/AbJee-Travel-sub001/internal/config"
	"github.com/deba607/AbJee-Travel-sub001/internal/database"
	"github.com/deba607/AbJee-Travel-sub001/internal/repository"
	"github.com/deba607/AbJee-Travel-sub001/internal/service"
)

func main() {
	username := flag.String("user", "chen", "username to mint a token for")
	ttl := flag.Duration("ttl", time.Hour, "token lifetime")
	flag.Parse()

	cfg := config.Load()

	ctx := context.Background()
	db, err := database.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	var id, uname string
	err = db.QueryRow(ctx, `SELECT id, username FROM users WHERE username = $1`, *username).Scan(&id, &uname)
	if err != nil {
		log.Fatalf("Unknown user %q (run cmd/seed first?): %v", *username, err)
	}

	authSvc := service.NewAuthService(repository.NewUserRepository(db), cfg.JWTSecret)
	token, err := authSvc.MintAccessToken(id, uname, *ttl)
	if err != nil {
		log.Fatalf("Mint token: %v", err)
	}

	fmt.Println(token)
}
