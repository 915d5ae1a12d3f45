package omdb

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
	"github.com/amaumene/ratingsync/internal/models"
	"github.com/sirupsen/logrus"
)

const (
	baseURL = "https://www.omdbapi.com/"

	// OMDB marks titles without a rating with this literal value.
	unratedSentinel = "N/A"
)

// Client handles communication with the OMDB API. OMDB serves as the
// aggregator rating source: fast, keyed by IMDB id, consulted first.
type Client struct {
	apiKey     string
	httpClient *http.Client
	logger     *logrus.Logger
}

// NewClient creates a new OMDB API client. An empty API key is allowed; the
// client then reports no ratings at all and the chain falls through to the
// direct provider.
func NewClient(cfg *config.Config, logger *logrus.Logger) *Client {
	return &Client{
		apiKey:     cfg.OMDBAPIKey,
		httpClient: &http.Client{Timeout: 15 * time.Second},
		logger:     logger,
	}
}

// Configured reports whether an API key is available.
func (c *Client) Configured() bool { return c.apiKey != "" }

type titleResponse struct {
	Response   string `json:"Response"`
	ImdbRating string `json:"imdbRating"`
}

type seasonResponse struct {
	Response string `json:"Response"`
	Episodes []struct {
		Episode    string `json:"Episode"`
		ImdbRating string `json:"imdbRating"`
		ImdbID     string `json:"imdbID"`
	} `json:"Episodes"`
}

// Rating returns the IMDB rating OMDB reports for an id. nil means OMDB has
// no rating for it (including the unrated sentinel) or no key is configured.
func (c *Client) Rating(ctx context.Context, imdbID string) (*float64, error) {
	if !c.Configured() {
		return nil, nil
	}

	var resp titleResponse
	if err := c.get(ctx, url.Values{"i": {imdbID}}, &resp); err != nil {
		return nil, err
	}

	if resp.Response != "True" {
		return nil, nil
	}
	return parseRating(resp.ImdbRating), nil
}

// SeasonRatings returns the per-episode ratings OMDB reports for one season
// of a show. OMDB season responses do not embed per-episode IMDB ids beyond
// the episode's own id, which is carried through.
func (c *Client) SeasonRatings(ctx context.Context, imdbID string, season int) (map[int]models.EpisodeRating, error) {
	if !c.Configured() {
		return nil, nil
	}

	var resp seasonResponse
	params := url.Values{"i": {imdbID}, "Season": {strconv.Itoa(season)}}
	if err := c.get(ctx, params, &resp); err != nil {
		return nil, err
	}

	if resp.Response != "True" || len(resp.Episodes) == 0 {
		return nil, nil
	}

	episodes := make(map[int]models.EpisodeRating, len(resp.Episodes))
	for _, ep := range resp.Episodes {
		number, err := strconv.Atoi(ep.Episode)
		if err != nil {
			continue
		}
		episodes[number] = models.EpisodeRating{
			Rating: parseRating(ep.ImdbRating),
			IMDBID: ep.ImdbID,
		}
	}
	return episodes, nil
}

func (c *Client) get(ctx context.Context, params url.Values, result interface{}) error {
	params.Set("apikey", c.apiKey)
	fullURL := baseURL + "?" + params.Encode()
	c.logger.WithField("url", baseURL).Debug("Making OMDB API request")

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

// parseRating converts OMDB's string rating to a value, mapping the unrated
// sentinel and unparseable values to nil.
func parseRating(s string) *float64 {
	if s == "" || s == unratedSentinel {
		return nil
	}
	rating, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil
	}
	return &rating
}
