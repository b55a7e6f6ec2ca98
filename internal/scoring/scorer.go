// Package scoring holds the trained scoring function and the model
// artifact it is loaded from. The core depends only on the Scorer
// contract: one probability per feature record, same order, values in
// [0,1], deterministic, pure, no I/O. How the function was trained is
// outside this repository.
package scoring

import (
	"context"

	"github.com/feed-hub/feed-recommender/internal/domain/feature"
	"github.com/feed-hub/feed-recommender/internal/domain/shared"
)

// Scorer maps feature records to engagement probabilities.
type Scorer interface {
	// Score returns one probability per record, aligned with the input.
	// Any error is fatal for the whole request; callers never build a
	// partial ranking from a failed scoring pass.
	Score(ctx context.Context, records []feature.Record) ([]shared.Score, error)

	// Variant names the model generation this scorer was loaded as.
	Variant() Variant
}

// Variant is a named model generation. The variant is selected by explicit
// configuration at load time, never inferred from serialized data.
type Variant string

const (
	// VariantV1 scores on raw user and post attributes only.
	VariantV1 Variant = "v1"

	// VariantV2 additionally uses text statistics and engagement ratios.
	VariantV2 Variant = "v2"
)

// ParseVariant validates a configured variant name.
func ParseVariant(s string) (Variant, error) {
	switch Variant(s) {
	case VariantV1:
		return VariantV1, nil
	case VariantV2:
		return VariantV2, nil
	default:
		return "", shared.ErrUnknownVariant
	}
}
