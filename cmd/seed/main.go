package main

import (
	"fmt"
	"os"

	"github.com/spf13/pflag"

	"github.com/oggyb/muzz-events/internal/config"
	"github.com/oggyb/muzz-events/internal/db"
	"github.com/oggyb/muzz-events/internal/logger"
)

func main() {
	var opts db.SeedOptions

	flags := pflag.NewFlagSet("seed", pflag.ContinueOnError)
	flags.IntVar(&opts.Users, "users", 20, "number of demo users, alternating male and female")
	flags.IntVar(&opts.Events, "events", 3, "number of demo events starting within the next hours")
	if err := flags.Parse(os.Args[1:]); err != nil {
		if err == pflag.ErrHelp {
			return
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(2)
	}

	// Load configuration
	cfg := config.New()
	logger.InitFromConfig(cfg)
	log := logger.L()

	database, err := db.NewDB(cfg)
	if err != nil {
		log.Error("failed to init db", "err", err)
		os.Exit(1)
	}

	if err := db.SeedTestData(database, opts); err != nil {
		log.Error("failed to seed", "err", err)
		os.Exit(1)
	}

	log.Info("seeding completed", "users", opts.Users, "events", opts.Events)
}
