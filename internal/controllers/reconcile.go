package controllers

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/amaumene/ratingsync/internal/config"
	"github.com/amaumene/ratingsync/internal/models"
	"github.com/sirupsen/logrus"
)

const (
	idlePollDelay = 10 * time.Second
	maxIdlePolls  = 30
)

// LibraryBrowser is the media server surface the engine needs: reachability,
// section lookup by name and the session count used by the pre-commit wait.
type LibraryBrowser interface {
	Ping(ctx context.Context) error
	Section(ctx context.Context, name string) (models.Library, error)
	ActiveSessions(ctx context.Context) (int, error)
}

// RatingWriter applies ratings to the external store. One Begin/Commit pair
// brackets each library section.
type RatingWriter interface {
	Begin(ctx context.Context) error
	Commit(ctx context.Context) error
	SetRating(ctx context.Context, plexID int64, rating float64) error
	ResetRating(ctx context.Context, plexID int64) error
	LockRatingField(ctx context.Context, plexID int64) error
}

// ReconcileController drives one reconciliation pass: per item it resolves
// identity, evaluates staleness, runs the rating source chain and applies
// the result to both stores, then recurses into seasons and episodes.
type ReconcileController struct {
	db       *models.Database
	browser  LibraryBrowser
	resolver *Resolver
	chain    *SourceChain
	writer   RatingWriter // nil in read-only mode
	cfg      *config.Config
	logger   *logrus.Logger

	updated int
	created int
	failed  int

	idleDelay time.Duration
}

// NewReconcileController creates a new reconciliation controller
func NewReconcileController(db *models.Database, browser LibraryBrowser, resolver *Resolver, chain *SourceChain, writer RatingWriter, cfg *config.Config, logger *logrus.Logger) *ReconcileController {
	return &ReconcileController{
		db:        db,
		browser:   browser,
		resolver:  resolver,
		chain:     chain,
		writer:    writer,
		cfg:       cfg,
		logger:    logger,
		idleDelay: idlePollDelay,
	}
}

// Run executes one bounded pass over the configured library sections.
// targetID, when non-zero, restricts the pass to that single item and
// forces re-resolution and re-check regardless of staleness.
func (c *ReconcileController) Run(ctx context.Context, targetID int64) error {
	c.logger.WithField("url", c.cfg.PlexURL).Info("Connecting to the Plex server")
	if err := c.browser.Ping(ctx); err != nil {
		return fmt.Errorf("no Plex server found at %s: %w", c.cfg.PlexURL, err)
	}

	c.updated, c.created, c.failed = 0, 0, 0
	c.chain.ResetCounters()
	c.resolver.ResetCounters()

	for _, name := range c.cfg.LibraryNames {
		library, err := c.browser.Section(ctx, name)
		if err != nil {
			if errors.Is(err, models.ErrSectionNotFound) {
				c.logger.WithField("library", name).Warn("Library does not exist in Plex, skipping")
				continue
			}
			return fmt.Errorf("failed to look up library %q: %w", name, err)
		}

		if err := c.processLibrary(ctx, library, targetID); err != nil {
			return err
		}
	}

	c.logger.WithFields(logrus.Fields{
		"updated": c.updated,
		"created": c.created,
		"failed":  c.failed,
	}).Info("Finished updating")
	return nil
}

// processLibrary processes every item of one section inside a single
// external-store transaction, committed after the section completes.
func (c *ReconcileController) processLibrary(ctx context.Context, library models.Library, targetID int64) error {
	c.logger.WithField("library", library.Name()).Info("Processing library")

	items, err := library.Items(ctx)
	if err != nil {
		c.logger.WithError(err).WithField("library", library.Name()).Error("Failed to enumerate library, skipping")
		return nil
	}

	if c.writer != nil {
		if err := c.writer.Begin(ctx); err != nil {
			return fmt.Errorf("library %q: %w", library.Name(), err)
		}
	}

	for _, item := range items {
		c.processItem(ctx, item, targetID)
	}

	if c.writer != nil {
		c.waitForIdle(ctx)
		if err := c.writer.Commit(ctx); err != nil {
			return fmt.Errorf("library %q: %w", library.Name(), err)
		}
	}
	return nil
}

// processItem runs the full decision flow for one movie or show.
func (c *ReconcileController) processItem(ctx context.Context, item models.LibraryItem, targetID int64) models.Outcome {
	if targetID != 0 && item.PlexID() != targetID {
		return models.OutcomeSkippedNotDue
	}
	force := targetID != 0

	isMovie := item.Kind() == models.KindMovie
	kind := models.KindShow
	if isMovie {
		kind = models.KindMovie
	}

	rec, err := c.db.GetRecord(kind, item.PlexID())
	exists := err == nil

	if !force && exists && !NeedsUpdate(rec, item.Rating(), true) {
		c.logger.WithField("title", item.Title()).Debug("Rating still fresh, skipping")
		return models.OutcomeSkippedNotDue
	}

	imdbID, tmdbID, tvdbID := c.resolver.Resolve(ctx, item, isMovie, force)
	if imdbID == "" {
		c.logger.WithField("title", item.Title()).Warn("Missing IMDB id, skipping media object")
		c.resetRating(ctx, kind, item, rec, exists, "", tmdbID, tvdbID)
		c.failed++
		return models.OutcomeSkippedNoID
	}

	c.logger.WithFields(logrus.Fields{
		"title":   item.Title(),
		"imdb_id": imdbID,
	}).Debug("Getting ratings")

	rating := c.chain.FetchRating(ctx, imdbID)
	if rating == nil {
		c.logger.WithFields(logrus.Fields{
			"title":   item.Title(),
			"imdb_id": imdbID,
		}).Warn("Media not found on any rating source, skipping")
		c.resetRating(ctx, kind, item, rec, exists, imdbID, tmdbID, tvdbID)
		c.failed++
		return models.OutcomeFailedNoRating
	}

	outcome := c.applyRating(ctx, kind, item, rec, exists, imdbID, tmdbID, tvdbID, rating)

	if !isMovie && c.cfg.EpisodeRatings {
		c.processSeasons(ctx, item, imdbID, force)
	}
	return outcome
}

// applyRating persists a fetched rating: cache first, then the external
// store (rating, image source and field lock) unless in read-only mode.
func (c *ReconcileController) applyRating(ctx context.Context, kind models.MediaKind, item models.LibraryItem, rec *models.MediaRecord, exists bool, imdbID string, tmdbID, tvdbID int64, rating *float64) models.Outcome {
	if !exists {
		rec = &models.MediaRecord{Kind: kind, PlexID: item.PlexID()}
	}
	rec.Title = item.Title()
	rec.IMDBID = imdbID
	rec.TMDBID = tmdbID
	rec.TVDBID = tvdbID
	rec.Rating = rating
	rec.ReleaseDate = item.ReleaseDate()

	if err := c.saveRecord(rec, exists); err != nil {
		c.logger.WithError(err).WithField("title", item.Title()).Error("Failed to save cache record")
		c.failed++
		return models.OutcomeFailedNoRating
	}

	if c.writer != nil {
		if err := c.writer.SetRating(ctx, item.PlexID(), *rating); err != nil {
			c.logger.WithError(err).WithField("title", item.Title()).Error("Failed to write rating to Plex database")
			c.failed++
			return models.OutcomeFailedNoRating
		}
		if err := c.writer.LockRatingField(ctx, item.PlexID()); err != nil {
			c.logger.WithError(err).WithField("title", item.Title()).Error("Failed to lock rating field")
		}
	}

	c.logger.WithFields(logrus.Fields{
		"title":  item.Title(),
		"rating": *rating,
	}).Info("Rating updated")

	if exists {
		c.updated++
		return models.OutcomeUpdated
	}
	c.created++
	return models.OutcomeCreated
}

// resetRating records "no rating available" in the cache and clears the
// external rating field. The lock metadata is left alone. imdbID is kept
// when resolution succeeded, so the item is retried with its known id on
// the next pass instead of falling into the unresolvable path.
func (c *ReconcileController) resetRating(ctx context.Context, kind models.MediaKind, item models.LibraryItem, rec *models.MediaRecord, exists bool, imdbID string, tmdbID, tvdbID int64) {
	if !exists {
		rec = &models.MediaRecord{Kind: kind, PlexID: item.PlexID()}
	}
	rec.Title = item.Title()
	rec.IMDBID = imdbID
	rec.TMDBID = tmdbID
	rec.TVDBID = tvdbID
	rec.Rating = nil
	rec.ReleaseDate = item.ReleaseDate()

	if err := c.saveRecord(rec, exists); err != nil {
		c.logger.WithError(err).WithField("title", item.Title()).Error("Failed to save cache record")
	}

	if c.writer != nil {
		if err := c.writer.ResetRating(ctx, item.PlexID()); err != nil {
			c.logger.WithError(err).WithField("title", item.Title()).Error("Failed to reset rating in Plex database")
		}
	}
}

func (c *ReconcileController) saveRecord(rec *models.MediaRecord, exists bool) error {
	if exists {
		return c.db.UpdateRecord(rec)
	}
	return c.db.CreateRecord(rec)
}

// processSeasons walks a show's seasons, skipping specials, and refreshes
// episode ratings for every season that is due.
func (c *ReconcileController) processSeasons(ctx context.Context, show models.LibraryItem, imdbID string, force bool) {
	seasons, err := show.Seasons(ctx)
	if err != nil {
		c.logger.WithError(err).WithField("title", show.Title()).Error("Failed to list seasons")
		return
	}

	for _, season := range seasons {
		// Specials lack reliable cross-provider numbering.
		if season.Index() == 0 {
			c.logger.WithField("title", show.Title()).Debug("Skipping specials")
			continue
		}

		if !force {
			seasonRec, err := c.db.GetRecord(models.KindSeason, season.PlexID())
			// Seasons carry no directly observed rating, so drift cannot
			// be checked at this level.
			if err == nil && !NeedsUpdate(seasonRec, nil, false) {
				continue
			}
		}

		c.logger.WithFields(logrus.Fields{
			"title":  show.Title(),
			"season": season.Index(),
		}).Debug("Getting episodes for season")

		c.processEpisodes(ctx, show, season, imdbID, force)
		c.touchSeason(show, season)
	}
}

// processEpisodes applies the per-item create-or-update flow to every due
// episode of a season, fetching the season's rating batch lazily on the
// first episode that needs it.
func (c *ReconcileController) processEpisodes(ctx context.Context, show models.LibraryItem, season models.LibrarySeason, imdbID string, force bool) {
	episodes, err := season.Episodes(ctx)
	if err != nil {
		c.logger.WithError(err).WithFields(logrus.Fields{
			"title":  show.Title(),
			"season": season.Index(),
		}).Error("Failed to list episodes")
		return
	}

	var batch map[int]models.EpisodeRating
	batchFetched := false

	for _, episode := range episodes {
		rec, err := c.db.GetRecord(models.KindEpisode, episode.PlexID())
		exists := err == nil

		if !force && exists && !NeedsUpdate(rec, episode.Rating(), true) {
			continue
		}

		if !batchFetched {
			batch = c.chain.FetchSeasonRatings(ctx, imdbID, season.Index())
			batchFetched = true
		}

		entry, found := batch[episode.Index()]
		if !found || entry.Rating == nil {
			c.logger.WithFields(logrus.Fields{
				"title":   episode.Title(),
				"episode": episode.Index(),
			}).Warn("Episode has no rating available")
			c.resetEpisode(ctx, show, season, episode, rec, exists, entry.IMDBID)
			c.failed++
			continue
		}

		c.applyEpisodeRating(ctx, show, season, episode, rec, exists, entry)
	}
}

func (c *ReconcileController) applyEpisodeRating(ctx context.Context, show models.LibraryItem, season models.LibrarySeason, episode models.LibraryEpisode, rec *models.MediaRecord, exists bool, entry models.EpisodeRating) {
	if !exists {
		rec = &models.MediaRecord{Kind: models.KindEpisode, PlexID: episode.PlexID()}
	}
	rec.Title = episode.Title()
	rec.IMDBID = entry.IMDBID
	rec.Rating = entry.Rating
	rec.ReleaseDate = episode.ReleaseDate()
	rec.ParentPlexID = show.PlexID()
	rec.SeasonNumber = season.Index()
	rec.EpisodeNumber = episode.Index()

	if err := c.saveRecord(rec, exists); err != nil {
		c.logger.WithError(err).WithField("title", episode.Title()).Error("Failed to save episode record")
		c.failed++
		return
	}

	if c.writer != nil {
		if err := c.writer.SetRating(ctx, episode.PlexID(), *entry.Rating); err != nil {
			c.logger.WithError(err).WithField("title", episode.Title()).Error("Failed to write episode rating to Plex database")
			c.failed++
			return
		}
		if err := c.writer.LockRatingField(ctx, episode.PlexID()); err != nil {
			c.logger.WithError(err).WithField("title", episode.Title()).Error("Failed to lock rating field")
		}
	}

	if exists {
		c.logger.WithFields(logrus.Fields{
			"title":   episode.Title(),
			"episode": episode.Index(),
		}).Info("Updated episode with new ratings")
		c.updated++
	} else {
		c.logger.WithFields(logrus.Fields{
			"title":   episode.Title(),
			"episode": episode.Index(),
		}).Info("Created episode with new ratings")
		c.created++
	}
}

func (c *ReconcileController) resetEpisode(ctx context.Context, show models.LibraryItem, season models.LibrarySeason, episode models.LibraryEpisode, rec *models.MediaRecord, exists bool, imdbID string) {
	if !exists {
		rec = &models.MediaRecord{Kind: models.KindEpisode, PlexID: episode.PlexID()}
	}
	rec.Title = episode.Title()
	rec.IMDBID = imdbID
	rec.Rating = nil
	rec.ReleaseDate = episode.ReleaseDate()
	rec.ParentPlexID = show.PlexID()
	rec.SeasonNumber = season.Index()
	rec.EpisodeNumber = episode.Index()

	if err := c.saveRecord(rec, exists); err != nil {
		c.logger.WithError(err).WithField("title", episode.Title()).Error("Failed to save episode record")
	}

	if c.writer != nil {
		if err := c.writer.ResetRating(ctx, episode.PlexID()); err != nil {
			c.logger.WithError(err).WithField("title", episode.Title()).Error("Failed to reset episode rating in Plex database")
		}
	}
}

// touchSeason creates or refreshes the season's bookkeeping record so the
// season-level staleness gate works on the next pass.
func (c *ReconcileController) touchSeason(show models.LibraryItem, season models.LibrarySeason) {
	rec, err := c.db.GetRecord(models.KindSeason, season.PlexID())
	if err != nil {
		rec = &models.MediaRecord{
			Kind:         models.KindSeason,
			PlexID:       season.PlexID(),
			Title:        season.Title(),
			ParentPlexID: show.PlexID(),
			SeasonNumber: season.Index(),
		}
		if err := c.db.CreateRecord(rec); err != nil {
			c.logger.WithError(err).WithField("title", season.Title()).Error("Failed to create season record")
		}
		return
	}

	rec.Title = season.Title()
	rec.SeasonNumber = season.Index()
	if err := c.db.UpdateRecord(rec); err != nil {
		c.logger.WithError(err).WithField("title", season.Title()).Error("Failed to update season record")
	}
}

// waitForIdle defers the commit while the server reports active playback
// sessions. Best effort: bounded polling, not a real lock.
func (c *ReconcileController) waitForIdle(ctx context.Context) {
	if !c.cfg.WaitForIdle {
		return
	}

	for i := 0; i < maxIdlePolls; i++ {
		sessions, err := c.browser.ActiveSessions(ctx)
		if err != nil {
			c.logger.WithError(err).Warn("Failed to check active sessions")
			return
		}
		if sessions == 0 {
			return
		}
		c.logger.WithField("sessions", sessions).Info("Active Plex sessions, deferring commit")
		time.Sleep(c.idleDelay)
	}
}
