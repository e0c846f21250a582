package db

import (
	"fmt"
	"log"
	"math/rand/v2"
	"time"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SeedOptions controls how much demo data SeedTestData writes.
type SeedOptions struct {
	Users  int
	Events int
	Now    time.Time
}

var seedHobbies = []string{"hiking", "music", "cooking", "reading", "travel", "chess", "yoga", "cinema", "running", "art"}

var seedVenues = []string{"Rooftop Bar", "Jazz Cellar", "Riverside Hall", "Warehouse Club", "Garden Cafe"}

// SeedTestData resets the database and populates it with demo users, profiles and events.
//
// Behavior:
//  1. Clears every table owned by the service.
//  2. Creates opts.Users users (alternating male/female) sharing the password "password".
//  3. Creates opts.Events events starting within the next few hours.
//  4. Every male user leaves a one-sided like on a random female user.
//
// Compatible with MySQL, PostgreSQL and SQLite.
func SeedTestData(db *gorm.DB, opts SeedOptions) error {
	if opts.Users <= 0 {
		opts.Users = 20
	}
	if opts.Events <= 0 {
		opts.Events = 3
	}
	if opts.Now.IsZero() {
		opts.Now = time.Now().UTC()
	}
	r := rand.New(rand.NewPCG(uint64(opts.Now.UnixNano()), 42))

	// --- Fresh start ---
	for _, table := range []string{"messages", "matchmaking_runs", "check_ins", "attendances", "matches", "preferences", "profiles", "events", "users"} {
		if err := db.Exec("DELETE FROM " + table).Error; err != nil {
			return fmt.Errorf("failed to clear %s: %w", table, err)
		}
	}

	// Reset auto-increment sequences
	switch db.Dialector.Name() {
	case "mysql":
		db.Exec("ALTER TABLE users AUTO_INCREMENT = 1")
		db.Exec("ALTER TABLE events AUTO_INCREMENT = 1")
		db.Exec("ALTER TABLE matches AUTO_INCREMENT = 1")
	case "sqlite":
		db.Exec("DELETE FROM sqlite_sequence WHERE name IN ('users', 'events', 'matches')")
	}

	log.Println("Cleared existing data")

	hash, err := bcrypt.GenerateFromPassword([]byte("password"), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	var males, females []uint64
	for i := 1; i <= opts.Users; i++ {
		gender := "male"
		if i%2 == 0 {
			gender = "female"
		}

		user := User{
			Email:        fmt.Sprintf("user%d@example.com", i),
			PasswordHash: string(hash),
			Active:       true,
		}
		if err := db.Create(&user).Error; err != nil {
			return fmt.Errorf("failed to seed user: %w", err)
		}

		profile := Profile{
			UserID:    user.ID,
			FirstName: fmt.Sprintf("User%d", i),
			LastName:  "Demo",
			Gender:    gender,
			Age:       21 + r.IntN(20),
			Hobbies:   pickHobbies(r, 3),
			Bio:       "Seeded profile",
		}
		if err := db.Create(&profile).Error; err != nil {
			return fmt.Errorf("failed to seed profile: %w", err)
		}

		if gender == "male" {
			males = append(males, user.ID)
		} else {
			females = append(females, user.ID)
		}
	}
	log.Printf("Seeded %d users.", opts.Users)

	for i := 0; i < opts.Events; i++ {
		event := Event{
			Location:     seedVenues[i%len(seedVenues)],
			EventType:    "Speed Dating",
			StartsAt:     opts.Now.Add(time.Duration(i+1) * time.Hour).Truncate(time.Minute),
			Lat:          51.5 + float64(i)/100,
			Lng:          -0.12 - float64(i)/100,
			MaxAttendees: 4 + 2*i,
		}
		if err := db.Create(&event).Error; err != nil {
			return fmt.Errorf("failed to seed event: %w", err)
		}
	}
	log.Printf("Seeded %d events.", opts.Events)

	if len(females) == 0 {
		return nil
	}
	for _, actorID := range males {
		pref := Preference{
			ActorID:     actorID,
			TargetID:    females[r.IntN(len(females))],
			Disposition: "like",
			UpdatedAt:   opts.Now,
		}
		if err := db.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "actor_id"}, {Name: "target_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"disposition", "updated_at"}),
		}).Create(&pref).Error; err != nil {
			return fmt.Errorf("failed to seed preference: %w", err)
		}
	}

	return nil
}

func pickHobbies(r *rand.Rand, n int) []string {
	perm := r.Perm(len(seedHobbies))
	out := make([]string, 0, n)
	for _, idx := range perm[:n] {
		out = append(out, seedHobbies[idx])
	}
	return out
}
