// Package feature assembles per-candidate feature records for the scorer.
// It joins the attribute stores and the statistics store for one user
// against a candidate set, applying the cold-start fallback. Assembly is a
// pure function of its inputs and the immutable stores.
package feature

import (
	"github.com/feed-hub/feed-recommender/internal/domain/shared"
)

// Record is the flattened attribute+statistic bundle for one
// (user, candidate) pair. It is the scorer's sole input unit and is never
// persisted. Identifiers and raw text are already stripped: the record
// carries no user ID, post ID, or post text.
type Record struct {
	// User attributes.
	Gender  string
	Age     shared.Age
	Country string
	City    string
	OS      string
	Source  string

	// Post attributes.
	Topic                 shared.Topic
	TFIDFMean             float64
	TFIDFMax              float64
	TextLength            int
	PostLikesToViewsRatio float64

	// Resolved statistics (personal or age-bucket fallback).
	UserLikesToViewsRatio        float64
	UserProportionOfLikesByTopic float64
}

// Candidate is the identity kept alongside each record so the ranker can
// map scores back to posts. It never reaches the scorer.
type Candidate struct {
	PostID shared.PostID
	Text   string
	Topic  shared.Topic
}
