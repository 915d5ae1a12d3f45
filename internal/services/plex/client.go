package plex

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/amaumene/ratingsync/internal/config"
	"github.com/amaumene/ratingsync/internal/models"
	"github.com/sirupsen/logrus"
)

// Client handles communication with the Plex Media Server HTTP API
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	logger     *logrus.Logger
}

// NewClient creates a new Plex API client
func NewClient(cfg *config.Config, logger *logrus.Logger) *Client {
	return &Client{
		baseURL:    strings.TrimRight(cfg.PlexURL, "/"),
		token:      cfg.PlexToken,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     logger,
	}
}

// get performs an authenticated GET request and decodes the JSON response
func (c *Client) get(ctx context.Context, path string, result interface{}) error {
	fullURL := c.baseURL + path
	c.logger.WithField("url", fullURL).Debug("Making Plex API request")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Plex-Token", c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("API request failed with status %d: %s", resp.StatusCode, string(bodyBytes))
	}

	if result != nil {
		if err := decodeJSON(resp.Body, result); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}

	return nil
}

// Ping verifies the server is reachable before a pass starts.
func (c *Client) Ping(ctx context.Context) error {
	var resp struct {
		MediaContainer struct {
			MachineIdentifier string `json:"machineIdentifier"`
		} `json:"MediaContainer"`
	}
	return c.get(ctx, "/identity", &resp)
}

// Section finds a library section by name. Returns models.ErrSectionNotFound
// (wrapped) when no section with that name exists.
func (c *Client) Section(ctx context.Context, name string) (models.Library, error) {
	var resp struct {
		MediaContainer struct {
			Directory []struct {
				Key   string `json:"key"`
				Title string `json:"title"`
				Type  string `json:"type"`
			} `json:"Directory"`
		} `json:"MediaContainer"`
	}
	if err := c.get(ctx, "/library/sections", &resp); err != nil {
		return nil, fmt.Errorf("failed to list library sections: %w", err)
	}

	for _, dir := range resp.MediaContainer.Directory {
		if dir.Title == name {
			return &Section{client: c, key: dir.Key, name: dir.Title}, nil
		}
	}

	return nil, fmt.Errorf("%q: %w", name, models.ErrSectionNotFound)
}

// ActiveSessions returns the number of playback sessions the server reports.
func (c *Client) ActiveSessions(ctx context.Context) (int, error) {
	var resp struct {
		MediaContainer struct {
			Size int `json:"size"`
		} `json:"MediaContainer"`
	}
	if err := c.get(ctx, "/status/sessions", &resp); err != nil {
		return 0, err
	}
	return resp.MediaContainer.Size, nil
}

// Section is one library section of the server.
type Section struct {
	client *Client
	key    string
	name   string
}

// Name returns the section title as configured in Plex.
func (s *Section) Name() string { return s.name }

// Items enumerates all movies or shows of the section, in server order.
func (s *Section) Items(ctx context.Context) ([]models.LibraryItem, error) {
	var resp metadataResponse
	if err := s.client.get(ctx, "/library/sections/"+s.key+"/all", &resp); err != nil {
		return nil, fmt.Errorf("failed to list items of %q: %w", s.name, err)
	}

	items := make([]models.LibraryItem, 0, len(resp.MediaContainer.Metadata))
	for _, md := range resp.MediaContainer.Metadata {
		items = append(items, &Item{client: s.client, md: md})
	}
	return items, nil
}
