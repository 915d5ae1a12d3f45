package controllers

import (
	"time"

	"github.com/amaumene/ratingsync/internal/models"
)

const (
	// Items released within this window are re-checked on the short
	// interval, everything older on the long one.
	recentWindow   = 14 * 24 * time.Hour
	recentInterval = 24 * time.Hour
	normalInterval = 14 * 24 * time.Hour
)

// NeedsUpdate decides whether a cached record is due for a refresh. A
// rating drift between the cache and the live item forces a refresh
// regardless of the interval when checkRating is set, since it means the
// Plex rating was changed outside this tool or the field lock failed.
// Callers treat a missing record as an unconditional "needs update".
func NeedsUpdate(rec *models.MediaRecord, liveRating *float64, checkRating bool) bool {
	return needsUpdateAt(rec, liveRating, checkRating, time.Now())
}

func needsUpdateAt(rec *models.MediaRecord, liveRating *float64, checkRating bool, now time.Time) bool {
	if checkRating && ratingsDiffer(rec.Rating, liveRating) {
		return true
	}

	interval := normalInterval
	if isRecent(rec.ReleaseDate, now) {
		interval = recentInterval
	}
	return now.Sub(rec.LastUpdate) > interval
}

// isRecent reports whether the release falls within the recency window.
// Future release dates count as recent.
func isRecent(release *time.Time, now time.Time) bool {
	return release != nil && release.After(now.Add(-recentWindow))
}

func ratingsDiffer(a, b *float64) bool {
	if a == nil || b == nil {
		return (a == nil) != (b == nil)
	}
	return *a != *b
}
