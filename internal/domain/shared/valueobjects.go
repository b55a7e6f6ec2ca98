// Package shared contains common domain types, errors, and value objects
// that are used across all domain packages.
package shared

import (
	"fmt"
)

// ═══════════════════════════════════════════════════════════════════════════
// ID Value Objects
// ═══════════════════════════════════════════════════════════════════════════

// UserID represents a unique feed user identifier.
type UserID int64

// IsValid checks if the user ID is valid (positive number).
func (u UserID) IsValid() bool {
	return u > 0
}

// Int64 returns the underlying int64 value.
func (u UserID) Int64() int64 {
	return int64(u)
}

// String returns the string representation.
func (u UserID) String() string {
	return fmt.Sprintf("%d", u)
}

// NewUserID creates a new UserID with validation.
func NewUserID(id int64) (UserID, error) {
	if id <= 0 {
		return 0, ErrInvalidUserID
	}
	return UserID(id), nil
}

// PostID represents a unique feed post identifier.
type PostID int64

// IsValid checks if the post ID is valid (positive number).
func (p PostID) IsValid() bool {
	return p > 0
}

// Int64 returns the underlying int64 value.
func (p PostID) Int64() int64 {
	return int64(p)
}

// String returns the string representation.
func (p PostID) String() string {
	return fmt.Sprintf("%d", p)
}

// NewPostID creates a new PostID with validation.
func NewPostID(id int64) (PostID, error) {
	if id <= 0 {
		return 0, ErrInvalidPostID
	}
	return PostID(id), nil
}

// ═══════════════════════════════════════════════════════════════════════════
// Age
// ═══════════════════════════════════════════════════════════════════════════

// AgeClampFloor is the minimum age used for age-bucket statistics lookups.
// Younger users share the youngest populated bucket.
const AgeClampFloor = 14

// AgeUnknown is the sentinel for a user whose age is not in the attribute
// store. It is a feature value, never a bucket lookup key: resolving
// statistics for an unknown age is a hard precondition failure.
const AgeUnknown = -1

// Age represents a user age in whole years.
type Age int

// IsKnown reports whether the age carries a real value.
func (a Age) IsKnown() bool {
	return a != AgeUnknown
}

// IsValid checks that a known age is non-negative.
func (a Age) IsValid() bool {
	return a == AgeUnknown || a >= 0
}

// Clamped returns the age clamped to the bucket-lookup floor.
// Calling Clamped on an unknown age is a programming error; callers must
// check IsKnown first.
func (a Age) Clamped() Age {
	if a < AgeClampFloor {
		return AgeClampFloor
	}
	return a
}

// Int returns the underlying int value.
func (a Age) Int() int {
	return int(a)
}

// ═══════════════════════════════════════════════════════════════════════════
// Scores and Limits
// ═══════════════════════════════════════════════════════════════════════════

// Score is an engagement probability produced by the scorer.
type Score float64

// IsValid checks that the score is a probability.
func (s Score) IsValid() bool {
	return s >= 0 && s <= 1
}

// Float64 returns the underlying float64 value.
func (s Score) Float64() float64 {
	return float64(s)
}

// DefaultLimit is the number of recommendations returned when the caller
// does not specify one.
const DefaultLimit = 5

// Topic is a post topic label (e.g. "sport", "tech").
type Topic string

// IsEmpty checks if the topic is empty.
func (t Topic) IsEmpty() bool {
	return t == ""
}

// String returns the string representation.
func (t Topic) String() string {
	return string(t)
}
