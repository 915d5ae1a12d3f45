package tmdb

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/amaumene/ratingsync/internal/config"
	"github.com/patrickmn/go-cache"
	"github.com/sirupsen/logrus"
)

const (
	baseURL = "https://api.themoviedb.org/3"

	// TMDB allows bursts of roughly this many requests before throttling.
	callLimit   = 30
	rateDelay   = 10 * time.Second
	resolveTTL  = 24 * time.Hour
	sweepPeriod = 48 * time.Hour
)

// Client resolves TMDB and TVDB catalog ids to IMDB ids. The manual
// override table (TVDB id -> IMDB id) is injected at construction and
// consulted before any network call.
type Client struct {
	apiKey     string
	overrides  map[string]string
	httpClient *http.Client
	logger     *logrus.Logger

	resolved *cache.Cache
	calls    int
	delay    time.Duration
}

// NewClient creates a new TMDB API client
func NewClient(cfg *config.Config, overrides map[string]string, logger *logrus.Logger) *Client {
	if overrides == nil {
		overrides = map[string]string{}
	}
	return &Client{
		apiKey:     cfg.TMDBAPIKey,
		overrides:  overrides,
		httpClient: &http.Client{Timeout: 15 * time.Second},
		logger:     logger,
		resolved:   cache.New(resolveTTL, sweepPeriod),
		delay:      rateDelay,
	}
}

// ResetCounter clears the rate-limit call counter.
func (c *Client) ResetCounter() { c.calls = 0 }

// IMDBFromTMDB resolves a TMDB id to an IMDB id. Empty means unresolvable.
func (c *Client) IMDBFromTMDB(ctx context.Context, tmdbID int64, isMovie bool) (string, error) {
	if c.apiKey == "" {
		return "", nil
	}

	cacheKey := "tmdb:" + strconv.FormatInt(tmdbID, 10)
	if id, ok := c.resolved.Get(cacheKey); ok {
		return id.(string), nil
	}

	var path string
	if isMovie {
		path = fmt.Sprintf("/movie/%d", tmdbID)
	} else {
		path = fmt.Sprintf("/tv/%d/external_ids", tmdbID)
	}
	c.logger.WithField("tmdb_id", tmdbID).Debug("Fetching IMDB id from TMDB")

	var resp struct {
		ImdbID string `json:"imdb_id"`
	}
	if err := c.get(ctx, path, &resp); err != nil {
		return "", err
	}

	c.resolved.Set(cacheKey, resp.ImdbID, cache.DefaultExpiration)
	return resp.ImdbID, nil
}

// IMDBFromTVDB resolves a TVDB id to an IMDB id via TMDB's find endpoint,
// then a second hop for the external ids. The override table short-circuits
// both hops.
func (c *Client) IMDBFromTVDB(ctx context.Context, tvdbID int64) (string, error) {
	key := strconv.FormatInt(tvdbID, 10)
	if id, ok := c.overrides[key]; ok {
		c.logger.WithField("tvdb_id", tvdbID).Info("Got an override for TVDB id")
		return id, nil
	}

	if c.apiKey == "" {
		return "", nil
	}

	cacheKey := "tvdb:" + key
	if id, ok := c.resolved.Get(cacheKey); ok {
		return id.(string), nil
	}

	c.logger.WithField("tvdb_id", tvdbID).Debug("Fetching from TMDB with TVDB id")
	var findResp struct {
		TVResults []struct {
			ID int64 `json:"id"`
		} `json:"tv_results"`
	}
	path := fmt.Sprintf("/find/%d?external_source=tvdb_id", tvdbID)
	if err := c.get(ctx, path, &findResp); err != nil {
		return "", err
	}

	if len(findResp.TVResults) == 0 {
		c.logger.WithField("tvdb_id", tvdbID).Debug("Found no tv results for TVDB id")
		return "", nil
	}

	var idsResp struct {
		ImdbID string `json:"imdb_id"`
	}
	path = fmt.Sprintf("/tv/%d/external_ids", findResp.TVResults[0].ID)
	if err := c.get(ctx, path, &idsResp); err != nil {
		return "", err
	}

	c.resolved.Set(cacheKey, idsResp.ImdbID, cache.DefaultExpiration)
	return idsResp.ImdbID, nil
}

func (c *Client) get(ctx context.Context, path string, result interface{}) error {
	// Preemptive pause to respect the TMDB rate limit.
	if c.calls >= callLimit {
		c.logger.Debug("TMDB call limit reached, pausing")
		time.Sleep(c.delay)
		c.calls = 0
	}
	c.calls++

	sep := "?"
	if u, err := url.Parse(path); err == nil && u.RawQuery != "" {
		sep = "&"
	}
	fullURL := baseURL + path + sep + "api_key=" + url.QueryEscape(c.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("API request failed with status %d: %s", resp.StatusCode, string(bodyBytes))
	}

	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
