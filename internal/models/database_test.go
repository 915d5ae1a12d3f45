package models

import (
	"errors"
	"path/filepath"
	"testing"
	"time"
)

func testDatabase(t *testing.T) *Database {
	t.Helper()
	db, err := NewDatabase(filepath.Join(t.TempDir(), "ratingsync.db"))
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestCreateAndGetRecord(t *testing.T) {
	db := testDatabase(t)

	rating := 9.3
	rec := &MediaRecord{
		Kind:   KindMovie,
		PlexID: 42,
		Title:  "The Shawshank Redemption",
		IMDBID: "tt0111161",
		Rating: &rating,
	}
	if err := db.CreateRecord(rec); err != nil {
		t.Fatalf("CreateRecord failed: %v", err)
	}
	if rec.LastUpdate.IsZero() {
		t.Error("CreateRecord should stamp LastUpdate")
	}

	got, err := db.GetRecord(KindMovie, 42)
	if err != nil {
		t.Fatalf("GetRecord failed: %v", err)
	}
	if got.Title != rec.Title || got.IMDBID != rec.IMDBID {
		t.Errorf("Unexpected record: %+v", got)
	}
	if got.Rating == nil || *got.Rating != 9.3 {
		t.Errorf("Unexpected rating: %v", got.Rating)
	}
}

func TestGetRecordDistinguishesKinds(t *testing.T) {
	db := testDatabase(t)

	// A show and an episode can share a Plex id in theory; kind disambiguates.
	if err := db.CreateRecord(&MediaRecord{Kind: KindShow, PlexID: 7, Title: "Show"}); err != nil {
		t.Fatalf("CreateRecord failed: %v", err)
	}
	if err := db.CreateRecord(&MediaRecord{Kind: KindEpisode, PlexID: 7, Title: "Episode"}); err != nil {
		t.Fatalf("CreateRecord failed: %v", err)
	}

	show, err := db.GetRecord(KindShow, 7)
	if err != nil {
		t.Fatalf("GetRecord failed: %v", err)
	}
	if show.Title != "Show" {
		t.Errorf("Expected the show record, got %+v", show)
	}

	if _, err := db.GetRecord(KindSeason, 7); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound for an absent kind, got %v", err)
	}
}

func TestUpdateRecordRefreshesLastUpdate(t *testing.T) {
	db := testDatabase(t)

	rec := &MediaRecord{Kind: KindMovie, PlexID: 42, Title: "Heat"}
	if err := db.CreateRecord(rec); err != nil {
		t.Fatalf("CreateRecord failed: %v", err)
	}

	before := rec.LastUpdate
	time.Sleep(5 * time.Millisecond)
	rec.Title = "Heat (1995)"
	if err := db.UpdateRecord(rec); err != nil {
		t.Fatalf("UpdateRecord failed: %v", err)
	}
	if !rec.LastUpdate.After(before) {
		t.Error("UpdateRecord should move LastUpdate forward")
	}

	got, err := db.GetRecord(KindMovie, 42)
	if err != nil {
		t.Fatalf("GetRecord failed: %v", err)
	}
	if got.Title != "Heat (1995)" {
		t.Errorf("Update not persisted: %+v", got)
	}
}

func TestHasAndCountRecords(t *testing.T) {
	db := testDatabase(t)

	for plexID := int64(1); plexID <= 3; plexID++ {
		if err := db.CreateRecord(&MediaRecord{Kind: KindEpisode, PlexID: plexID}); err != nil {
			t.Fatalf("CreateRecord failed: %v", err)
		}
	}

	ok, err := db.HasRecord(KindEpisode, 2)
	if err != nil || !ok {
		t.Errorf("Expected HasRecord true, got %v / %v", ok, err)
	}
	ok, err = db.HasRecord(KindMovie, 2)
	if err != nil || ok {
		t.Errorf("Expected HasRecord false, got %v / %v", ok, err)
	}

	count, err := db.CountRecords(KindEpisode)
	if err != nil {
		t.Fatalf("CountRecords failed: %v", err)
	}
	if count != 3 {
		t.Errorf("Expected 3 episode records, got %d", count)
	}
}
