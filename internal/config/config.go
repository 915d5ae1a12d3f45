package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	// Plex
	PlexURL          string
	PlexToken        string
	LibraryNames     []string
	PlexDatabaseFile string // the Plex library SQLite file

	// Providers
	OMDBAPIKey string
	TMDBAPIKey string

	// Behavior
	ReadOnly             bool   // skip all writes to the Plex database
	EpisodeRatings       bool   // whether to fetch per-episode ratings
	EpisodeRatingsSource string // which provider serves season batches ("imdb" or "omdb")
	WaitForIdle          bool   // defer commits while Plex has active sessions

	// Paths
	OverridesFile    string // $CONFIG_DIR/tvdb-imdb.txt
	RatingsTableFile string // optional tconst<TAB>rating dump
	DatabaseFile     string // $CONFIG_DIR/ratingsync.db

	// Logging
	LogLevel string
}

// Load loads configuration from environment variables and .env file
func Load() (*Config, error) {
	// Setup viper FIRST to load .env file
	viper.SetConfigName(".env")
	viper.SetConfigType("env")
	viper.AddConfigPath(".")
	viper.AutomaticEnv()

	// Load .env file if it exists (ignore if not found)
	_ = viper.ReadInConfig()

	// Set defaults
	viper.SetDefault("PLEX_URL", "http://localhost:32400")
	viper.SetDefault("READ_ONLY", true)
	viper.SetDefault("EPISODE_RATINGS", true)
	viper.SetDefault("EPISODE_RATINGS_SOURCE", "imdb")
	viper.SetDefault("WAIT_FOR_IDLE", false)
	viper.SetDefault("LOG_LEVEL", "info")

	// NOW read CONFIG_DIR from viper (which has loaded .env file)
	configDir := viper.GetString("CONFIG_DIR")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		configDir = filepath.Join(homeDir, ".config", "ratingsync")
	} else {
		// Convert relative path to absolute path
		absPath, err := filepath.Abs(configDir)
		if err != nil {
			return nil, fmt.Errorf("failed to get absolute path for CONFIG_DIR: %w", err)
		}
		configDir = absPath
	}

	// Create config directory if it doesn't exist
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create config directory: %w", err)
	}

	config := &Config{
		// Plex
		PlexURL:          viper.GetString("PLEX_URL"),
		PlexToken:        viper.GetString("PLEX_TOKEN"),
		LibraryNames:     splitNames(viper.GetString("LIBRARY_NAMES")),
		PlexDatabaseFile: viper.GetString("PLEX_DATABASE_FILE"),

		// Providers
		OMDBAPIKey: viper.GetString("OMDB_API_KEY"),
		TMDBAPIKey: viper.GetString("TMDB_API_KEY"),

		// Behavior
		ReadOnly:             viper.GetBool("READ_ONLY"),
		EpisodeRatings:       viper.GetBool("EPISODE_RATINGS"),
		EpisodeRatingsSource: viper.GetString("EPISODE_RATINGS_SOURCE"),
		WaitForIdle:          viper.GetBool("WAIT_FOR_IDLE"),

		// Paths
		OverridesFile:    viper.GetString("OVERRIDES_FILE"),
		RatingsTableFile: viper.GetString("RATINGS_TABLE_FILE"),
		DatabaseFile:     filepath.Join(configDir, "ratingsync.db"),

		// Logging
		LogLevel: viper.GetString("LOG_LEVEL"),
	}

	if config.OverridesFile == "" {
		config.OverridesFile = filepath.Join(configDir, "tvdb-imdb.txt")
	}

	// Validate required fields
	if config.PlexToken == "" {
		return nil, fmt.Errorf("PLEX_TOKEN is required")
	}
	if len(config.LibraryNames) == 0 {
		return nil, fmt.Errorf("LIBRARY_NAMES is required")
	}
	if !config.ReadOnly && config.PlexDatabaseFile == "" {
		return nil, fmt.Errorf("PLEX_DATABASE_FILE is required when READ_ONLY is false")
	}
	if s := config.EpisodeRatingsSource; s != "imdb" && s != "omdb" {
		return nil, fmt.Errorf("EPISODE_RATINGS_SOURCE must be \"imdb\" or \"omdb\", got %q", s)
	}

	return config, nil
}

// splitNames splits a comma-separated list, dropping empty entries.
func splitNames(s string) []string {
	var names []string
	for _, part := range strings.Split(s, ",") {
		if name := strings.TrimSpace(part); name != "" {
			names = append(names, name)
		}
	}
	return names
}
