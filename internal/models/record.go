package models

import "time"

// MediaRecord is the cached rating state for one Plex item. All four kinds
// (movie, show, season, episode) share this shape; kind-specific fields are
// zero for the kinds that don't carry them.
type MediaRecord struct {
	ID   uint64    `boltholdKey:"ID"`
	Kind MediaKind `boltholdIndex:"Kind"`

	// PlexID is the rating key of the item in the Plex library and the only
	// join key back to it. Unique within a kind.
	PlexID int64 `boltholdIndex:"PlexID"`

	Title string

	// Resolved identifiers. An empty IMDBID means the item could not be
	// resolved; such records never carry a rating.
	IMDBID string
	TMDBID int64 // movies and shows
	TVDBID int64 // shows

	// Rating is the last known rating. nil means no rating available.
	Rating *float64

	// LastUpdate never moves backwards for a given record.
	LastUpdate  time.Time
	ReleaseDate *time.Time

	// Episode fields.
	ParentPlexID  int64
	SeasonNumber  int // also set on season records
	EpisodeNumber int
}
