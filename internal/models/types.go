package models

// MediaKind distinguishes the four record variants stored in the cache.
type MediaKind string

const (
	KindMovie   MediaKind = "movie"
	KindShow    MediaKind = "show"
	KindSeason  MediaKind = "season"
	KindEpisode MediaKind = "episode"
)

// Outcome is the terminal state of processing one item during a pass.
type Outcome string

const (
	OutcomeUpdated        Outcome = "updated"
	OutcomeCreated        Outcome = "created"
	OutcomeSkippedNoID    Outcome = "skipped-no-id"
	OutcomeSkippedNotDue  Outcome = "skipped-not-due"
	OutcomeFailedNoRating Outcome = "failed-no-rating"
)
