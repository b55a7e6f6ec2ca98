package stats

import (
	"github.com/feed-hub/feed-recommender/internal/domain/shared"
)

// ═══════════════════════════════════════════════════════════════════════════
// STATISTICS STORE
// ═══════════════════════════════════════════════════════════════════════════

// Reader is the lookup side of the statistics store. Implementations are
// immutable after construction; concurrent lookups need no locking.
type Reader interface {
	// UserStat returns the user's personal statistics. The second return is
	// false when the user has no historical interactions.
	UserStat(id shared.UserID) (UserStat, bool)

	// AgeStat resolves the age-bucket fallback: the age is clamped to the
	// floor, then decremented until a populated bucket is found. It fails
	// only when no bucket exists at or below the floor, which the build
	// guarantees against.
	AgeStat(age shared.Age) (AgeBucketStat, error)
}

// Store is the immutable statistics store.
type Store struct {
	userStats map[shared.UserID]UserStat
	ageStats  map[shared.Age]AgeBucketStat
	minAge    shared.Age
}

// newStore wires the aggregates and enforces the fallback-termination
// precondition: at least one populated bucket at or below the clamp floor.
func newStore(userStats map[shared.UserID]UserStat, ageStats map[shared.Age]AgeBucketStat) (*Store, error) {
	minAge := shared.Age(-1)
	for age := range ageStats {
		if minAge < 0 || age < minAge {
			minAge = age
		}
	}
	if minAge < 0 || minAge > shared.AgeClampFloor {
		return nil, shared.ErrStatisticsUnavailable
	}
	return &Store{
		userStats: userStats,
		ageStats:  ageStats,
		minAge:    minAge,
	}, nil
}

// UserStat returns the user's personal statistics, present only if the
// user has at least one historical interaction.
func (s *Store) UserStat(id shared.UserID) (UserStat, bool) {
	stat, ok := s.userStats[id]
	return stat, ok
}

// AgeStat applies the floor-then-decrement fallback. Decrementing never
// increases the age and the build precondition guarantees termination.
func (s *Store) AgeStat(age shared.Age) (AgeBucketStat, error) {
	for a := age.Clamped(); a >= s.minAge; a-- {
		if stat, ok := s.ageStats[a]; ok {
			return stat, nil
		}
	}
	// Unreachable when the store was built through Build; kept as a guard
	// for snapshots restored from a foreign artifact.
	return AgeBucketStat{}, shared.ErrStatisticsUnavailable
}

// UserCount returns the number of users with personal statistics.
func (s *Store) UserCount() int {
	return len(s.userStats)
}

// BucketCount returns the number of populated age buckets.
func (s *Store) BucketCount() int {
	return len(s.ageStats)
}

// ═══════════════════════════════════════════════════════════════════════════
// SNAPSHOTS
// ═══════════════════════════════════════════════════════════════════════════

// Snapshot is the serialized form of the store, embedded in the model
// artifact alongside the trained scorer parameters.
type Snapshot struct {
	UserStats []UserStat      `json:"user_stats"`
	AgeStats  []AgeBucketStat `json:"age_stats"`
}

// Snapshot exports the store for artifact serialization.
func (s *Store) Snapshot() Snapshot {
	snap := Snapshot{
		UserStats: make([]UserStat, 0, len(s.userStats)),
		AgeStats:  make([]AgeBucketStat, 0, len(s.ageStats)),
	}
	for _, stat := range s.userStats {
		snap.UserStats = append(snap.UserStats, stat)
	}
	for _, stat := range s.ageStats {
		snap.AgeStats = append(snap.AgeStats, stat)
	}
	return snap
}

// FromSnapshot rebuilds a store from its serialized form. The same
// integrity precondition applies: an artifact whose buckets all sit above
// the clamp floor is corrupt and is rejected at load time.
func FromSnapshot(snap Snapshot) (*Store, error) {
	userStats := make(map[shared.UserID]UserStat, len(snap.UserStats))
	for _, stat := range snap.UserStats {
		userStats[stat.UserID] = stat
	}
	ageStats := make(map[shared.Age]AgeBucketStat, len(snap.AgeStats))
	for _, stat := range snap.AgeStats {
		ageStats[stat.Age] = stat
	}
	return newStore(userStats, ageStats)
}
