// Command seed loads local development fixtures: a few users across
// subscription tiers (with bcrypt password hashes, mirroring what the auth
// subsystem writes) and a handful of rooms.
package main

import (
	"context"
	"log"

	"github.com/deba607/AbJee-Travel-sub001/internal/config"
	"github.com/deba607/AbJee-Travel-sub001/internal/database"

	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/crypto/bcrypt"
)

type seedUser struct {
	username string
	display  string
	email    string
	role     string
	tier     string
}

var seedUsers = []seedUser{
	{"asha", "Asha", "asha@example.com", "admin", "pro"},
	{"bruno", "Bruno", "bruno@example.com", "moderator", "premium"},
	{"chen", "Chen", "chen@example.com", "user", "premium"},
	{"dara", "Dara", "dara@example.com", "user", "free"},
}

type seedRoom struct {
	name       string
	roomType   string
	maxMembers int
}

var seedRooms = []seedRoom{
	{"general", "public", 200},
	{"southeast-asia", "travel_partner", 100},
	{"premium-lounge", "private", 50},
}

func main() {
	cfg := config.Load()

	ctx := context.Background()
	db, err := database.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	if err := database.RunMigrations(ctx, db); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	if err := seed(ctx, db); err != nil {
		log.Fatalf("Seed failed: %v", err)
	}
	log.Println("Seed complete")
}

func seed(ctx context.Context, db *pgxpool.Pool) error {
	hash, err := bcrypt.GenerateFromPassword([]byte("password"), bcrypt.DefaultCost)
	if err != nil {
		return err
	}

	var adminID string
	for _, u := range seedUsers {
		var id string
		err := db.QueryRow(ctx, `
			INSERT INTO users (username, display_name, email, password_hash, role, subscription_tier)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (username) DO UPDATE SET role = EXCLUDED.role, subscription_tier = EXCLUDED.subscription_tier
			RETURNING id
		`, u.username, u.display, u.email, string(hash), u.role, u.tier).Scan(&id)
		if err != nil {
			return err
		}
		if u.role == "admin" {
			adminID = id
		}
		log.Printf("[seed] user %s (%s/%s) id=%s", u.username, u.role, u.tier, id)
	}

	for _, r := range seedRooms {
		var id string
		err := db.QueryRow(ctx, `
			INSERT INTO rooms (name, type, max_members, created_by)
			SELECT $1, $2, $3, $4
			WHERE NOT EXISTS (SELECT 1 FROM rooms WHERE name = $1)
			RETURNING id
		`, r.name, r.roomType, r.maxMembers, adminID).Scan(&id)
		if err != nil {
			// NOT EXISTS guard returns no row when the room is already there
			log.Printf("[seed] room %s already present", r.name)
			continue
		}
		log.Printf("[seed] room %s (%s) id=%s", r.name, r.roomType, id)
	}
	return nil
}
