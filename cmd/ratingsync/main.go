package main

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/amaumene/ratingsync/internal/config"
	"github.com/amaumene/ratingsync/internal/controllers"
	"github.com/amaumene/ratingsync/internal/models"
	"github.com/amaumene/ratingsync/internal/services/imdb"
	"github.com/amaumene/ratingsync/internal/services/omdb"
	"github.com/amaumene/ratingsync/internal/services/plex"
	"github.com/amaumene/ratingsync/internal/services/plexdb"
	"github.com/amaumene/ratingsync/internal/services/tmdb"
	"github.com/amaumene/ratingsync/internal/utils"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// 1. Load configuration
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	// 2. Setup logger
	logger := utils.NewLogger(cfg.LogLevel)
	logger.Info("Starting ratingsync")

	// Optional positional argument: a single Plex rating key to process,
	// forcing re-resolution and re-check for that item.
	var targetID int64
	if len(os.Args) > 1 {
		targetID, err = strconv.ParseInt(os.Args[1], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid Plex id %q: %w", os.Args[1], err)
		}
		logger.WithField("plex_id", targetID).Info("Restricting pass to a single item")
	}

	// 3. Initialize cache database
	db, err := models.NewDatabase(cfg.DatabaseFile)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer db.Close()
	logger.Info("Database initialized")

	// 4. Load the manual TVDB override table
	overrides, err := utils.LoadOverrides(cfg.OverridesFile)
	if err != nil {
		logger.WithError(err).Warn("Failed to load overrides, continuing without them")
		overrides = map[string]string{}
	} else if len(overrides) > 0 {
		logger.WithField("count", len(overrides)).Info("Overrides loaded")
	}

	// 5. Initialize services
	plexClient := plex.NewClient(cfg, logger)
	omdbClient := omdb.NewClient(cfg, logger)
	imdbClient := imdb.NewClient(logger)
	tmdbClient := tmdb.NewClient(cfg, overrides, logger)
	if !omdbClient.Configured() {
		logger.Warn("No OMDB API key configured, aggregator lookups disabled")
	}

	var seasonSource controllers.SeasonProvider = imdbClient
	if cfg.EpisodeRatingsSource == "omdb" {
		seasonSource = omdbClient
	}

	// 6. Initialize controllers
	chain := controllers.NewSourceChain(omdbClient, imdbClient, seasonSource, logger)
	if cfg.RatingsTableFile != "" {
		table, err := utils.LoadRatingsTable(cfg.RatingsTableFile)
		if err != nil {
			logger.WithError(err).Warn("Failed to load ratings table, continuing without it")
		} else if len(table) > 0 {
			chain.SetRatingsTable(table)
			logger.WithField("titles", len(table)).Info("Ratings table loaded")
		}
	}
	resolver := controllers.NewResolver(db, tmdbClient, logger)

	var writer controllers.RatingWriter
	if cfg.ReadOnly {
		logger.Info("Read-only mode, the Plex database will not be modified")
	} else {
		store, err := plexdb.Open(cfg.PlexDatabaseFile, logger)
		if err != nil {
			return fmt.Errorf("failed to open Plex database: %w", err)
		}
		defer store.Close()
		writer = store
	}

	reconcileCtrl := controllers.NewReconcileController(db, plexClient, resolver, chain, writer, cfg, logger)

	// 7. Run one reconciliation pass
	if err := reconcileCtrl.Run(context.Background(), targetID); err != nil {
		return err
	}

	logger.Info("Done")
	return nil
}
