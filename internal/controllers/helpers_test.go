package controllers

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/amaumene/ratingsync/internal/models"
	"github.com/sirupsen/logrus"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logger
}

func testDB(t *testing.T) *models.Database {
	t.Helper()
	db, err := models.NewDatabase(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func floatPtr(v float64) *float64 { return &v }

func timePtr(t time.Time) *time.Time { return &t }

// Library fakes

type fakeLibrary struct {
	name  string
	items []models.LibraryItem
}

func (l *fakeLibrary) Name() string { return l.name }

func (l *fakeLibrary) Items(ctx context.Context) ([]models.LibraryItem, error) {
	return l.items, nil
}

type fakeBrowser struct {
	libraries map[string]*fakeLibrary
	pingErr   error
	sessions  int
}

func (b *fakeBrowser) Ping(ctx context.Context) error { return b.pingErr }

func (b *fakeBrowser) Section(ctx context.Context, name string) (models.Library, error) {
	if library, ok := b.libraries[name]; ok {
		return library, nil
	}
	return nil, fmt.Errorf("%q: %w", name, models.ErrSectionNotFound)
}

func (b *fakeBrowser) ActiveSessions(ctx context.Context) (int, error) {
	return b.sessions, nil
}

type fakeItem struct {
	id      int64
	title   string
	kind    models.MediaKind
	guid    string
	release *time.Time
	rating  *float64

	seasons     []models.LibrarySeason
	seasonCalls int
}

func (i *fakeItem) PlexID() int64          { return i.id }
func (i *fakeItem) Title() string          { return i.title }
func (i *fakeItem) Kind() models.MediaKind { return i.kind }
func (i *fakeItem) GUID() string           { return i.guid }
func (i *fakeItem) ReleaseDate() *time.Time {
	return i.release
}
func (i *fakeItem) Rating() *float64 { return i.rating }

func (i *fakeItem) Seasons(ctx context.Context) ([]models.LibrarySeason, error) {
	i.seasonCalls++
	return i.seasons, nil
}

type fakeSeason struct {
	id       int64
	title    string
	index    int
	episodes []models.LibraryEpisode
}

func (s *fakeSeason) PlexID() int64 { return s.id }
func (s *fakeSeason) Title() string { return s.title }
func (s *fakeSeason) Index() int    { return s.index }

func (s *fakeSeason) Episodes(ctx context.Context) ([]models.LibraryEpisode, error) {
	return s.episodes, nil
}

type fakeEpisode struct {
	id      int64
	title   string
	index   int
	release *time.Time
	rating  *float64
}

func (e *fakeEpisode) PlexID() int64           { return e.id }
func (e *fakeEpisode) Title() string           { return e.title }
func (e *fakeEpisode) Index() int              { return e.index }
func (e *fakeEpisode) ReleaseDate() *time.Time { return e.release }
func (e *fakeEpisode) Rating() *float64        { return e.rating }

// Provider fakes

type fakeAggregator struct {
	ratings map[string]float64
	err     error
	calls   int
}

func (a *fakeAggregator) Rating(ctx context.Context, imdbID string) (*float64, error) {
	a.calls++
	if a.err != nil {
		return nil, a.err
	}
	if rating, ok := a.ratings[imdbID]; ok {
		return &rating, nil
	}
	return nil, nil
}

type fakeDirect struct {
	exists  map[string]bool
	ratings map[string]float64

	existsCalls int
	ratingCalls int
}

func (d *fakeDirect) TitleExists(ctx context.Context, imdbID string) (bool, error) {
	d.existsCalls++
	return d.exists[imdbID], nil
}

func (d *fakeDirect) TitleRating(ctx context.Context, imdbID string) (*float64, error) {
	d.ratingCalls++
	if rating, ok := d.ratings[imdbID]; ok {
		return &rating, nil
	}
	return nil, nil
}

type fakeSeasonProvider struct {
	batches map[string]map[int]models.EpisodeRating
	err     error
	calls   []string
}

func (p *fakeSeasonProvider) SeasonRatings(ctx context.Context, imdbID string, season int) (map[int]models.EpisodeRating, error) {
	key := fmt.Sprintf("%s/%d", imdbID, season)
	p.calls = append(p.calls, key)
	if p.err != nil {
		return nil, p.err
	}
	return p.batches[key], nil
}

type fakeCross struct {
	tmdb map[int64]string
	tvdb map[int64]string

	tmdbCalls  int
	tvdbCalls  int
	resetCalls int
}

func (c *fakeCross) ResetCounter() { c.resetCalls++ }

func (c *fakeCross) IMDBFromTMDB(ctx context.Context, tmdbID int64, isMovie bool) (string, error) {
	c.tmdbCalls++
	return c.tmdb[tmdbID], nil
}

func (c *fakeCross) IMDBFromTVDB(ctx context.Context, tvdbID int64) (string, error) {
	c.tvdbCalls++
	return c.tvdb[tvdbID], nil
}

// Writer fake

type writerOp struct {
	op     string
	plexID int64
	rating float64
}

type fakeWriter struct {
	ops     []writerOp
	begins  int
	commits int
}

func (w *fakeWriter) Begin(ctx context.Context) error {
	w.begins++
	return nil
}

func (w *fakeWriter) Commit(ctx context.Context) error {
	w.commits++
	return nil
}

func (w *fakeWriter) SetRating(ctx context.Context, plexID int64, rating float64) error {
	w.ops = append(w.ops, writerOp{op: "set", plexID: plexID, rating: rating})
	return nil
}

func (w *fakeWriter) ResetRating(ctx context.Context, plexID int64) error {
	w.ops = append(w.ops, writerOp{op: "reset", plexID: plexID})
	return nil
}

func (w *fakeWriter) LockRatingField(ctx context.Context, plexID int64) error {
	w.ops = append(w.ops, writerOp{op: "lock", plexID: plexID})
	return nil
}
