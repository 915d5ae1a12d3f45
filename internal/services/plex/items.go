package plex

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/amaumene/ratingsync/internal/models"
)

const releaseDateLayout = "2006-01-02"

// metadataResponse is the MediaContainer envelope shared by the item and
// children endpoints.
type metadataResponse struct {
	MediaContainer struct {
		Metadata []metadataItem `json:"Metadata"`
	} `json:"MediaContainer"`
}

type metadataItem struct {
	RatingKey             string   `json:"ratingKey"`
	Title                 string   `json:"title"`
	Type                  string   `json:"type"`
	GUID                  string   `json:"guid"`
	Index                 int      `json:"index"`
	Rating                *float64 `json:"rating"`
	OriginallyAvailableAt string   `json:"originallyAvailableAt"`
}

func (md metadataItem) plexID() int64 {
	id, err := strconv.ParseInt(md.RatingKey, 10, 64)
	if err != nil {
		return 0
	}
	return id
}

func (md metadataItem) releaseDate() *time.Time {
	if md.OriginallyAvailableAt == "" {
		return nil
	}
	t, err := time.Parse(releaseDateLayout, md.OriginallyAvailableAt)
	if err != nil {
		return nil
	}
	return &t
}

func decodeJSON(r io.Reader, result interface{}) error {
	return json.NewDecoder(r).Decode(result)
}

// Item is a movie or show of a library section.
type Item struct {
	client *Client
	md     metadataItem
}

func (i *Item) PlexID() int64 { return i.md.plexID() }

func (i *Item) Title() string { return i.md.Title }

func (i *Item) GUID() string { return i.md.GUID }

func (i *Item) Rating() *float64 { return i.md.Rating }

func (i *Item) ReleaseDate() *time.Time { return i.md.releaseDate() }

// Kind maps the Plex type tag to a record kind. Anything that is not a
// movie comes from a show library.
func (i *Item) Kind() models.MediaKind {
	if i.md.Type == "movie" {
		return models.KindMovie
	}
	return models.KindShow
}

// Seasons enumerates the show's seasons in server order.
func (i *Item) Seasons(ctx context.Context) ([]models.LibrarySeason, error) {
	var resp metadataResponse
	path := fmt.Sprintf("/library/metadata/%s/children", i.md.RatingKey)
	if err := i.client.get(ctx, path, &resp); err != nil {
		return nil, fmt.Errorf("failed to list seasons of %q: %w", i.md.Title, err)
	}

	seasons := make([]models.LibrarySeason, 0, len(resp.MediaContainer.Metadata))
	for _, md := range resp.MediaContainer.Metadata {
		seasons = append(seasons, &Season{client: i.client, md: md})
	}
	return seasons, nil
}

// Season is one season of a show.
type Season struct {
	client *Client
	md     metadataItem
}

func (s *Season) PlexID() int64 { return s.md.plexID() }

func (s *Season) Title() string { return s.md.Title }

func (s *Season) Index() int { return s.md.Index }

// Episodes enumerates the season's episodes in server order.
func (s *Season) Episodes(ctx context.Context) ([]models.LibraryEpisode, error) {
	var resp metadataResponse
	path := fmt.Sprintf("/library/metadata/%s/children", s.md.RatingKey)
	if err := s.client.get(ctx, path, &resp); err != nil {
		return nil, fmt.Errorf("failed to list episodes of %q: %w", s.md.Title, err)
	}

	episodes := make([]models.LibraryEpisode, 0, len(resp.MediaContainer.Metadata))
	for _, md := range resp.MediaContainer.Metadata {
		episodes = append(episodes, &Episode{md: md})
	}
	return episodes, nil
}

// Episode is one episode of a season.
type Episode struct {
	md metadataItem
}

func (e *Episode) PlexID() int64 { return e.md.plexID() }

func (e *Episode) Title() string { return e.md.Title }

func (e *Episode) Index() int { return e.md.Index }

func (e *Episode) Rating() *float64 { return e.md.Rating }

func (e *Episode) ReleaseDate() *time.Time { return e.md.releaseDate() }
