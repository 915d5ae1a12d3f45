package controllers

import (
	"context"
	"fmt"
	"time"

	"github.com/amaumene/ratingsync/internal/models"
	"github.com/cenkalti/backoff/v4"
	"github.com/patrickmn/go-cache"
	"github.com/sirupsen/logrus"
)

const (
	// Preemptive pause threshold per provider, to respect rate limits.
	providerCallLimit = 30
	providerDelay     = 10 * time.Second
)

// AggregatorProvider is the fast rating source consulted first (OMDB).
type AggregatorProvider interface {
	Rating(ctx context.Context, imdbID string) (*float64, error)
}

// DirectProvider is the authoritative source consulted only when the
// aggregator yields nothing and the title is confirmed to exist (IMDB).
type DirectProvider interface {
	TitleExists(ctx context.Context, imdbID string) (bool, error)
	TitleRating(ctx context.Context, imdbID string) (*float64, error)
}

// SeasonProvider serves whole-season episode rating batches.
type SeasonProvider interface {
	SeasonRatings(ctx context.Context, imdbID string, season int) (map[int]models.EpisodeRating, error)
}

// SourceChain tries rating providers in fixed priority order with fallback.
// Call counters live on the instance rather than in package state so chains
// are independently instantiable.
type SourceChain struct {
	aggregator AggregatorProvider
	direct     DirectProvider
	seasons    SeasonProvider
	logger     *logrus.Logger

	ratingsTable map[string]float64
	seasonCache  *cache.Cache

	aggregatorCalls int
	directCalls     int
	delay           time.Duration
}

// NewSourceChain creates a new rating source chain
func NewSourceChain(aggregator AggregatorProvider, direct DirectProvider, seasons SeasonProvider, logger *logrus.Logger) *SourceChain {
	return &SourceChain{
		aggregator:  aggregator,
		direct:      direct,
		seasons:     seasons,
		logger:      logger,
		seasonCache: cache.New(cache.NoExpiration, cache.NoExpiration),
		delay:       providerDelay,
	}
}

// SetRatingsTable installs a global IMDB id to rating table. When an
// episode batch entry carries an id present in the table, the table rating
// wins over the batch-embedded one.
func (c *SourceChain) SetRatingsTable(table map[string]float64) {
	c.ratingsTable = table
}

// ResetCounters clears the per-provider call counters, typically at the
// start of a pass.
func (c *SourceChain) ResetCounters() {
	c.aggregatorCalls = 0
	c.directCalls = 0
}

// FetchRating returns the best available rating for an IMDB id, nil when no
// provider has one. The aggregator wins outright; the direct provider is
// consulted only when the aggregator yields nothing and confirms the title
// exists. Provider errors are retried once with a fixed delay, then treated
// as "no rating".
func (c *SourceChain) FetchRating(ctx context.Context, imdbID string) *float64 {
	var rating *float64
	err := c.withRetry(ctx, func() error {
		c.throttle(&c.aggregatorCalls)
		var err error
		rating, err = c.aggregator.Rating(ctx, imdbID)
		return err
	})
	if err != nil {
		c.logger.WithError(err).WithField("imdb_id", imdbID).Warn("Aggregator lookup failed")
	}
	if rating != nil {
		return rating
	}

	var exists bool
	err = c.withRetry(ctx, func() error {
		c.throttle(&c.directCalls)
		var err error
		exists, err = c.direct.TitleExists(ctx, imdbID)
		return err
	})
	if err != nil {
		c.logger.WithError(err).WithField("imdb_id", imdbID).Warn("Title existence check failed")
		return nil
	}
	if !exists {
		return nil
	}

	err = c.withRetry(ctx, func() error {
		c.throttle(&c.directCalls)
		var err error
		rating, err = c.direct.TitleRating(ctx, imdbID)
		return err
	})
	if err != nil {
		c.logger.WithError(err).WithField("imdb_id", imdbID).Warn("Direct lookup failed")
		return nil
	}
	return rating
}

// FetchSeasonRatings returns the episode rating batch for one season of a
// show, fetching it at most once per pass and reusing the result for every
// episode of the season. nil means the provider has nothing for the season.
func (c *SourceChain) FetchSeasonRatings(ctx context.Context, imdbID string, season int) map[int]models.EpisodeRating {
	key := fmt.Sprintf("%s/%d", imdbID, season)
	if cached, found := c.seasonCache.Get(key); found {
		episodes, _ := cached.(map[int]models.EpisodeRating)
		return episodes
	}

	var episodes map[int]models.EpisodeRating
	err := c.withRetry(ctx, func() error {
		c.throttle(&c.directCalls)
		var err error
		episodes, err = c.seasons.SeasonRatings(ctx, imdbID, season)
		return err
	})
	if err != nil {
		c.logger.WithError(err).WithFields(logrus.Fields{
			"imdb_id": imdbID,
			"season":  season,
		}).Warn("Season ratings lookup failed")
		episodes = nil
	}

	for number, entry := range episodes {
		if entry.IMDBID == "" {
			continue
		}
		if tableRating, ok := c.ratingsTable[entry.IMDBID]; ok {
			rating := tableRating
			entry.Rating = &rating
			episodes[number] = entry
		}
	}

	// Failed lookups are cached too: at most one fetch per season per pass.
	c.seasonCache.Set(key, episodes, cache.DefaultExpiration)
	return episodes
}

// throttle pauses before the next call once a provider's counter reaches
// the limit, then resets it.
func (c *SourceChain) throttle(calls *int) {
	if *calls >= providerCallLimit {
		c.logger.Debug("Provider call limit reached, pausing")
		time.Sleep(c.delay)
		*calls = 0
	}
	*calls++
}

// withRetry runs op, retrying exactly once after a fixed delay.
func (c *SourceChain) withRetry(ctx context.Context, op func() error) error {
	b := backoff.WithContext(backoff.WithMaxRetries(backoff.NewConstantBackOff(c.delay), 1), ctx)
	return backoff.Retry(op, b)
}
