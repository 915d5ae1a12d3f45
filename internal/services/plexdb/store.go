package plexdb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"

	_ "modernc.org/sqlite"
)

const (
	// Marker written into extra_data so the Plex front-end shows the IMDB
	// rating image for ratings this tool maintains.
	imdbRatingImageMarker = "at%3AratingImage=imdb%3A%2F%2Fimage%2Erating&"

	// Field code Plex uses for the rating field inside lockedFields.
	ratingFieldCode = "5"

	retryDelay = 10 * time.Second

	// One initial attempt plus this many retries, 3 attempts in total.
	maxRetries = 2
)

// ratingImagePattern matches any prior rating-image-source segment, with or
// without its trailing separator.
var ratingImagePattern = regexp.MustCompile(`at%3AratingImage=[^&]*&?|at%3AaudienceRatingImage=[^&]*&?`)

// Store writes ratings directly into the Plex library SQLite database. One
// transaction spans the processing of a library section and is committed
// after the section completes.
type Store struct {
	db     *sql.DB
	tx     *sql.Tx
	logger *logrus.Logger

	delay time.Duration
}

// Open connects to the Plex library database file.
func Open(path string, logger *logrus.Logger) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open plex database: %w", err)
	}

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply pragma: %w", err)
	}

	return &Store{db: db, logger: logger, delay: retryDelay}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Begin opens the transaction for one library section.
func (s *Store) Begin(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	s.tx = tx
	return nil
}

// Commit commits the section's transaction.
func (s *Store) Commit(ctx context.Context) error {
	if s.tx == nil {
		return nil
	}
	err := s.tx.Commit()
	s.tx = nil
	if err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}
	return nil
}

// SetRating sets the rating of a metadata item and rewrites its extra_data
// so the only rating-image-source marker left points at IMDB.
func (s *Store) SetRating(ctx context.Context, plexID int64, rating float64) error {
	if err := s.exec(ctx, "UPDATE metadata_items SET rating = ? WHERE id = ?", rating, plexID); err != nil {
		return err
	}

	var extra sql.NullString
	err := s.tx.QueryRowContext(ctx, "SELECT extra_data FROM metadata_items WHERE id = ?", plexID).Scan(&extra)
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read extra_data: %w", err)
	}

	stripped := ""
	if extra.Valid {
		stripped = ratingImagePattern.ReplaceAllString(extra.String, "")
	}
	// Trailing separators confuse the Plex front-end.
	newExtra := strings.TrimRight(imdbRatingImageMarker+stripped, "&")

	return s.exec(ctx, "UPDATE metadata_items SET extra_data = ? WHERE id = ?", newExtra, plexID)
}

// ResetRating clears the rating of a metadata item. Image-source markers and
// lock metadata are left untouched.
func (s *Store) ResetRating(ctx context.Context, plexID int64) error {
	return s.exec(ctx, "UPDATE metadata_items SET rating = null WHERE id = ?", plexID)
}

// LockRatingField marks the rating field as locked so Plex's own metadata
// refresh does not overwrite it. Idempotent: rows already carrying the
// rating lock are filtered out by the query.
func (s *Store) LockRatingField(ctx context.Context, plexID int64) error {
	var userFields string
	err := s.tx.QueryRowContext(ctx,
		"SELECT user_fields FROM metadata_items WHERE id = ? AND user_fields NOT LIKE ?",
		plexID, "%lockedFields=%"+ratingFieldCode+"%",
	).Scan(&userFields)
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read user_fields: %w", err)
	}

	segments := strings.Split(userFields, ",")
	for i, segment := range segments {
		if !strings.Contains(segment, "lockedFields=") {
			continue
		}

		s.logger.WithField("plex_id", plexID).Debug("Locking rating field")
		rest := append(segments[:i:i], segments[i+1:]...)
		locked := []string{segment + "|" + ratingFieldCode}
		newFields := strings.Join(append(locked, rest...), ",")

		return s.exec(ctx, "UPDATE metadata_items SET user_fields = ? WHERE id = ?", newFields, plexID)
	}

	return nil
}

// exec runs one parameterized statement, retrying transient errors with a
// fixed delay a bounded number of times before giving up.
func (s *Store) exec(ctx context.Context, query string, args ...interface{}) error {
	op := func() error {
		if _, err := s.tx.ExecContext(ctx, query, args...); err != nil {
			s.logger.WithError(err).Error("Database error, retrying")
			return err
		}
		return nil
	}

	b := backoff.WithContext(backoff.WithMaxRetries(backoff.NewConstantBackOff(s.delay), maxRetries), ctx)
	if err := backoff.Retry(op, b); err != nil {
		return fmt.Errorf("statement failed after retries: %w", err)
	}
	return nil
}
