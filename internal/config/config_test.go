package config

import (
	"reflect"
	"testing"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("CONFIG_DIR", t.TempDir())
	t.Setenv("PLEX_TOKEN", "token")
	t.Setenv("LIBRARY_NAMES", "Movies,TV Shows")
}

func TestLoadDefaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.PlexURL != "http://localhost:32400" {
		t.Errorf("Unexpected default PLEX_URL: %q", cfg.PlexURL)
	}
	if !cfg.ReadOnly {
		t.Error("READ_ONLY should default to true")
	}
	if !cfg.EpisodeRatings {
		t.Error("EPISODE_RATINGS should default to true")
	}
	if cfg.EpisodeRatingsSource != "imdb" {
		t.Errorf("Unexpected default EPISODE_RATINGS_SOURCE: %q", cfg.EpisodeRatingsSource)
	}
	if want := []string{"Movies", "TV Shows"}; !reflect.DeepEqual(cfg.LibraryNames, want) {
		t.Errorf("Unexpected library names: %v", cfg.LibraryNames)
	}
}

func TestLoadRequiresToken(t *testing.T) {
	t.Setenv("CONFIG_DIR", t.TempDir())
	t.Setenv("PLEX_TOKEN", "")
	t.Setenv("LIBRARY_NAMES", "Movies")

	if _, err := Load(); err == nil {
		t.Fatal("Expected an error without PLEX_TOKEN")
	}
}

func TestLoadRequiresPlexDatabaseForWrites(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("READ_ONLY", "false")
	t.Setenv("PLEX_DATABASE_FILE", "")

	if _, err := Load(); err == nil {
		t.Fatal("Expected an error for write mode without a Plex database file")
	}

	t.Setenv("PLEX_DATABASE_FILE", "/tmp/com.plexapp.plugins.library.db")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.ReadOnly {
		t.Error("READ_ONLY should be false")
	}
}

func TestLoadRejectsUnknownEpisodeSource(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("EPISODE_RATINGS_SOURCE", "tvdb")

	if _, err := Load(); err == nil {
		t.Fatal("Expected an error for an unknown episode ratings source")
	}
}

func TestSplitNames(t *testing.T) {
	got := splitNames(" Movies , ,TV Shows,")
	want := []string{"Movies", "TV Shows"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("splitNames = %v, want %v", got, want)
	}
}
