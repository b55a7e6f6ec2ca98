// Package catalog contains the immutable attribute stores for users and
// posts. Both are built once at startup from offline-prepared tables and
// are read-only for the lifetime of the process; a rebuild requires a full
// reload. The serving path never mutates them, so concurrent lookups need
// no locking.
package catalog

import (
	"github.com/feed-hub/feed-recommender/internal/domain/shared"
)

// ═══════════════════════════════════════════════════════════════════════════
// USER ATTRIBUTES
// ═══════════════════════════════════════════════════════════════════════════

// UserAttributes holds the static per-user attributes from the user table.
// All fields are set at load time and never change.
type UserAttributes struct {
	// UserID is the unique user identifier.
	UserID shared.UserID

	// Gender as recorded by the feed product ("M"/"F" or empty when unknown).
	Gender string

	// Age in whole years, shared.AgeUnknown when not recorded.
	Age shared.Age

	// Country of registration.
	Country string

	// City of registration.
	City string

	// OS of the user's primary device ("iOS"/"Android").
	OS string

	// Source is the acquisition channel ("ads"/"organic").
	Source string
}

// Validate checks the loaded attributes for consistency.
func (u UserAttributes) Validate() error {
	if !u.UserID.IsValid() {
		return shared.ErrInvalidUserID
	}
	if !u.Age.IsValid() {
		return shared.WrapError("catalog", "Validate", shared.ErrValueOutOfRange,
			"age must be non-negative or unknown", nil)
	}
	return nil
}

// UnknownUserAttributes returns the cold-start sentinel record for a user
// absent from the store: every attribute takes its declared unknown value.
// Cold start is a supported path, not an error.
func UnknownUserAttributes(id shared.UserID) UserAttributes {
	return UserAttributes{
		UserID: id,
		Age:    shared.AgeUnknown,
	}
}
