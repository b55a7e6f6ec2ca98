package catalog

import (
	"github.com/feed-hub/feed-recommender/internal/domain/shared"
)

// ═══════════════════════════════════════════════════════════════════════════
// POST ATTRIBUTES
// ═══════════════════════════════════════════════════════════════════════════

// PostAttributes holds the static per-post attributes from the post table,
// including the text statistics derived offline by the feature pipeline.
type PostAttributes struct {
	// PostID is the unique post identifier.
	PostID shared.PostID

	// Text is the raw post text. Carried for the response payload only;
	// it is stripped before any record reaches the scorer.
	Text string

	// Topic is the post topic label.
	Topic shared.Topic

	// TFIDFMean is the mean TF-IDF weight of the post text over the corpus
	// vocabulary (zeros included, matching the offline vectorizer).
	TFIDFMean float64

	// TFIDFMax is the maximum TF-IDF weight of the post text.
	TFIDFMax float64

	// TextLength is the raw text length in bytes.
	TextLength int

	// LikesToViewsRatio is the post's historical like rate, topic-mean
	// filled for posts never seen in the interaction log.
	LikesToViewsRatio float64
}

// Validate checks the loaded attributes for consistency.
func (p PostAttributes) Validate() error {
	if !p.PostID.IsValid() {
		return shared.ErrInvalidPostID
	}
	if p.TextLength < 0 {
		return shared.WrapError("catalog", "Validate", shared.ErrNegativeValue,
			"text length cannot be negative", nil)
	}
	return nil
}
