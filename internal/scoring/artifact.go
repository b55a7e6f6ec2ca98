package scoring

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/feed-hub/feed-recommender/internal/domain/shared"
	"github.com/feed-hub/feed-recommender/internal/domain/stats"
)

// ErrEmptyArtifactPath is returned when no artifact path is configured.
var ErrEmptyArtifactPath = errors.New("scoring: artifact path is empty")

// ═══════════════════════════════════════════════════════════════════════════
// MODEL ARTIFACT
// ═══════════════════════════════════════════════════════════════════════════

// Bundle is the serialized model artifact: the trained scorer parameters
// together with the fitted statistics tables. Written by the offline
// pipeline, read exactly once at process start (and on explicit reload).
// The serving path never writes it.
type Bundle struct {
	// Variant records which model generation the bundle was built for.
	// Loading checks it against the configured variant: the configuration
	// decides, the recorded value only guards against pointing the config
	// at the wrong file.
	Variant Variant `json:"variant"`

	// BuiltAt is when the pipeline produced the bundle.
	BuiltAt time.Time `json:"built_at"`

	// Scorer holds the trained ensemble parameters.
	Scorer Ensemble `json:"scorer"`

	// Stats holds the fitted statistics store.
	Stats stats.Snapshot `json:"stats"`
}

// LoadBundle reads and validates an artifact, returning the scorer and the
// statistics store it carries. The want variant comes from configuration.
func LoadBundle(path string, want Variant) (*TreeScorer, *stats.Store, error) {
	if _, err := ParseVariant(string(want)); err != nil {
		return nil, nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("scoring: failed to read artifact %s: %w", path, err)
	}

	var bundle Bundle
	if err := json.Unmarshal(data, &bundle); err != nil {
		return nil, nil, shared.WrapError("scoring", "Load", shared.ErrInvalidFormat,
			"artifact is not valid JSON", err)
	}

	if bundle.Variant != want {
		return nil, nil, shared.ErrArtifactMismatch
	}

	scorer, err := NewTreeScorer(bundle.Scorer, bundle.Variant)
	if err != nil {
		return nil, nil, err
	}

	store, err := stats.FromSnapshot(bundle.Stats)
	if err != nil {
		return nil, nil, err
	}

	return scorer, store, nil
}

// LoadEnsemble reads pre-trained scorer parameters (the training step is
// outside this system; its output is exported as plain JSON trees).
func LoadEnsemble(path string) (Ensemble, error) {
	if path == "" {
		return Ensemble{}, ErrEmptyArtifactPath
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Ensemble{}, fmt.Errorf("scoring: failed to read scorer parameters %s: %w", path, err)
	}

	var e Ensemble
	if err := json.Unmarshal(data, &e); err != nil {
		return Ensemble{}, shared.WrapError("scoring", "LoadEnsemble", shared.ErrInvalidFormat,
			"scorer parameters are not valid JSON", err)
	}
	if err := e.Validate(); err != nil {
		return Ensemble{}, err
	}
	return e, nil
}

// SaveBundle writes the artifact atomically (temp file + rename) so a
// reload never observes a half-written bundle.
func SaveBundle(path string, bundle Bundle) error {
	if _, err := ParseVariant(string(bundle.Variant)); err != nil {
		return err
	}
	if err := bundle.Scorer.Validate(); err != nil {
		return err
	}

	data, err := json.MarshalIndent(bundle, "", "  ")
	if err != nil {
		return fmt.Errorf("scoring: failed to marshal artifact: %w", err)
	}

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".artifact-*.json")
	if err != nil {
		return fmt.Errorf("scoring: failed to create temp artifact: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("scoring: failed to write artifact: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("scoring: failed to close artifact: %w", err)
	}

	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("scoring: failed to replace artifact: %w", err)
	}
	return nil
}
