package imdb

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/amaumene/ratingsync/internal/models"
	"github.com/sirupsen/logrus"
)

const (
	appBaseURL = "https://app.imdb.com"
	webBaseURL = "https://www.imdb.com"
)

// Client handles communication with IMDB's unauthenticated mobile API. It
// serves as the direct-lookup rating source: slower than the aggregator but
// authoritative, consulted only when the aggregator yields nothing.
type Client struct {
	httpClient *http.Client
	logger     *logrus.Logger
}

// NewClient creates a new IMDB client
func NewClient(logger *logrus.Logger) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: 15 * time.Second},
		logger:     logger,
	}
}

// TitleExists checks whether a title page exists for the id.
func (c *Client) TitleExists(ctx context.Context, imdbID string) (bool, error) {
	fullURL := fmt.Sprintf("%s/title/%s/", webBaseURL, url.PathEscape(imdbID))
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, fullURL, nil)
	if err != nil {
		return false, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	switch resp.StatusCode {
	case http.StatusOK:
		return true, nil
	case http.StatusNotFound:
		return false, nil
	default:
		return false, fmt.Errorf("title check failed with status %d", resp.StatusCode)
	}
}

// TitleRating returns the rating for a title, nil when IMDB carries none.
func (c *Client) TitleRating(ctx context.Context, imdbID string) (*float64, error) {
	var resp struct {
		Data struct {
			Rating *float64 `json:"rating"`
		} `json:"data"`
	}

	params := url.Values{"tconst": {imdbID}}
	if err := c.get(ctx, "/title/maindetails", params, &resp); err != nil {
		return nil, err
	}
	return resp.Data.Rating, nil
}

// SeasonRatings returns per-episode ratings for one season of a show,
// including each episode's own IMDB id as embedded in the response.
func (c *Client) SeasonRatings(ctx context.Context, imdbID string, season int) (map[int]models.EpisodeRating, error) {
	var resp struct {
		Data struct {
			Episodes []struct {
				ID            string   `json:"id"`
				EpisodeNumber int      `json:"episodeNumber"`
				Rating        *float64 `json:"rating"`
			} `json:"episodes"`
		} `json:"data"`
	}

	params := url.Values{"tconst": {imdbID}, "season": {strconv.Itoa(season)}}
	if err := c.get(ctx, "/title/episodes/detailed", params, &resp); err != nil {
		return nil, err
	}

	if len(resp.Data.Episodes) == 0 {
		return nil, nil
	}

	episodes := make(map[int]models.EpisodeRating, len(resp.Data.Episodes))
	for _, ep := range resp.Data.Episodes {
		episodes[ep.EpisodeNumber] = models.EpisodeRating{
			Rating: ep.Rating,
			IMDBID: episodeID(ep.ID),
		}
	}
	return episodes, nil
}

func (c *Client) get(ctx context.Context, path string, params url.Values, result interface{}) error {
	fullURL := appBaseURL + path + "?" + params.Encode()
	c.logger.WithField("path", path).Debug("Making IMDB API request")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

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

// episodeID extracts a bare tt id from the path form ("/title/tt0959621/")
// the episodes endpoint uses.
func episodeID(id string) string {
	id = strings.ReplaceAll(id, "title", "")
	return strings.ReplaceAll(id, "/", "")
}
