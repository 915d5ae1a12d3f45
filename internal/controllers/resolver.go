package controllers

import (
	"context"
	"strconv"
	"strings"

	"github.com/amaumene/ratingsync/internal/models"
	"github.com/sirupsen/logrus"
)

// GUID schemes Plex agents embed, in resolution priority order.
const (
	imdbScheme = "imdb://"
	tmdbScheme = "themoviedb://"
	tvdbScheme = "thetvdb://"
)

// CrossResolver resolves alternate catalog ids to IMDB ids.
type CrossResolver interface {
	IMDBFromTMDB(ctx context.Context, tmdbID int64, isMovie bool) (string, error)
	IMDBFromTVDB(ctx context.Context, tvdbID int64) (string, error)
	ResetCounter()
}

// Resolver maps library items to provider identifiers.
type Resolver struct {
	db     *models.Database
	cross  CrossResolver
	logger *logrus.Logger
}

// NewResolver creates a new identity resolver
func NewResolver(db *models.Database, cross CrossResolver, logger *logrus.Logger) *Resolver {
	return &Resolver{
		db:     db,
		cross:  cross,
		logger: logger,
	}
}

// ResetCounters clears the cross-resolver's rate-limit counter, typically
// at the start of a pass.
func (r *Resolver) ResetCounters() {
	r.cross.ResetCounter()
}

// Resolve returns the IMDB, TMDB and TVDB ids for an item. A cached record
// always wins over re-derivation unless forceRefresh is set. An empty IMDB
// id is a valid terminal outcome meaning the item cannot be rated; it is
// never an error. Resolve itself persists nothing.
func (r *Resolver) Resolve(ctx context.Context, item models.LibraryItem, isMovie, forceRefresh bool) (imdbID string, tmdbID, tvdbID int64) {
	if !forceRefresh {
		kind := models.KindShow
		if isMovie {
			kind = models.KindMovie
		}
		if rec, err := r.db.GetRecord(kind, item.PlexID()); err == nil {
			return rec.IMDBID, rec.TMDBID, rec.TVDBID
		}
	}

	guid := item.GUID()
	switch {
	case strings.Contains(guid, imdbScheme):
		return schemeValue(guid, imdbScheme), 0, 0

	case strings.Contains(guid, tmdbScheme):
		tmdbID = parseCatalogID(schemeValue(guid, tmdbScheme))
		if tmdbID == 0 {
			return "", 0, 0
		}
		imdbID, err := r.cross.IMDBFromTMDB(ctx, tmdbID, isMovie)
		if err != nil {
			r.logger.WithError(err).WithField("tmdb_id", tmdbID).Warn("Failed to resolve TMDB id")
			return "", tmdbID, 0
		}
		return imdbID, tmdbID, 0

	case strings.Contains(guid, tvdbScheme):
		tvdbID = parseCatalogID(schemeValue(guid, tvdbScheme))
		if tvdbID == 0 {
			return "", 0, 0
		}
		imdbID, err := r.cross.IMDBFromTVDB(ctx, tvdbID)
		if err != nil {
			r.logger.WithError(err).WithField("tvdb_id", tvdbID).Warn("Failed to resolve TVDB id")
			return "", 0, tvdbID
		}
		return imdbID, 0, tvdbID
	}

	return "", 0, 0
}

// schemeValue extracts the value from "scheme://value?query".
func schemeValue(guid, scheme string) string {
	_, rest, _ := strings.Cut(guid, scheme)
	value, _, _ := strings.Cut(rest, "?")
	return value
}

func parseCatalogID(s string) int64 {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0
	}
	return id
}
