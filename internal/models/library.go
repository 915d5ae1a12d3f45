package models

import (
	"context"
	"errors"
	"time"
)

// ErrSectionNotFound is returned when a configured library section does not
// exist on the server.
var ErrSectionNotFound = errors.New("library section not found")

// Library is one library section as enumerated by the media server.
type Library interface {
	Name() string
	Items(ctx context.Context) ([]LibraryItem, error)
}

// LibraryItem is the narrow view of a movie or show the reconciliation
// engine needs. The real Plex client and test doubles both implement it.
type LibraryItem interface {
	PlexID() int64
	Title() string
	Kind() MediaKind
	GUID() string
	ReleaseDate() *time.Time
	Rating() *float64
	Seasons(ctx context.Context) ([]LibrarySeason, error)
}

// LibrarySeason is one season of a show, in enumeration order.
type LibrarySeason interface {
	PlexID() int64
	Title() string
	Index() int
	Episodes(ctx context.Context) ([]LibraryEpisode, error)
}

// LibraryEpisode is one episode of a season, in enumeration order.
type LibraryEpisode interface {
	PlexID() int64
	Title() string
	Index() int
	ReleaseDate() *time.Time
	Rating() *float64
}

// EpisodeRating is one entry of a season rating batch: the episode's rating
// (nil when the provider marks it unrated) and its own IMDB id when the
// provider embeds one.
type EpisodeRating struct {
	Rating *float64
	IMDBID string
}
