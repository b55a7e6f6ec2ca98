package catalog

import (
	"github.com/feed-hub/feed-recommender/internal/domain/shared"
)

// ═══════════════════════════════════════════════════════════════════════════
// ATTRIBUTE STORES
// ═══════════════════════════════════════════════════════════════════════════

// UserReader is the read side of the user attribute store.
type UserReader interface {
	// User returns the attributes for the given user.
	// The second return is false when the user is absent (cold start).
	User(id shared.UserID) (UserAttributes, bool)

	// Len returns the number of users in the store.
	Len() int
}

// PostReader is the read side of the post attribute store.
type PostReader interface {
	// Post returns the attributes for the given post.
	// The second return is false when the post is absent.
	Post(id shared.PostID) (PostAttributes, bool)

	// PostIDs returns all post identifiers in the store, in load order.
	PostIDs() []shared.PostID

	// Len returns the number of posts in the store.
	Len() int
}

// UserStore is the immutable in-memory user attribute store.
type UserStore struct {
	users map[shared.UserID]UserAttributes
}

// NewUserStore builds a UserStore from loaded rows. Each user ID must be
// unique; a duplicate is a corrupt source table and fails the build.
func NewUserStore(rows []UserAttributes) (*UserStore, error) {
	users := make(map[shared.UserID]UserAttributes, len(rows))
	for _, row := range rows {
		if err := row.Validate(); err != nil {
			return nil, err
		}
		if _, exists := users[row.UserID]; exists {
			return nil, shared.ErrDuplicateUser
		}
		users[row.UserID] = row
	}
	return &UserStore{users: users}, nil
}

// User returns the attributes for the given user.
func (s *UserStore) User(id shared.UserID) (UserAttributes, bool) {
	u, ok := s.users[id]
	return u, ok
}

// Len returns the number of users in the store.
func (s *UserStore) Len() int {
	return len(s.users)
}

// PostStore is the immutable in-memory post attribute store.
type PostStore struct {
	posts map[shared.PostID]PostAttributes
	order []shared.PostID
}

// NewPostStore builds a PostStore from loaded rows. Each post ID must be
// unique; load order is preserved for full-catalog iteration (evaluation
// uses it as the candidate universe).
func NewPostStore(rows []PostAttributes) (*PostStore, error) {
	posts := make(map[shared.PostID]PostAttributes, len(rows))
	order := make([]shared.PostID, 0, len(rows))
	for _, row := range rows {
		if err := row.Validate(); err != nil {
			return nil, err
		}
		if _, exists := posts[row.PostID]; exists {
			return nil, shared.ErrDuplicatePost
		}
		posts[row.PostID] = row
		order = append(order, row.PostID)
	}
	return &PostStore{posts: posts, order: order}, nil
}

// Post returns the attributes for the given post.
func (s *PostStore) Post(id shared.PostID) (PostAttributes, bool) {
	p, ok := s.posts[id]
	return p, ok
}

// PostIDs returns all post identifiers in load order. The returned slice
// is a copy; callers may reorder it freely.
func (s *PostStore) PostIDs() []shared.PostID {
	ids := make([]shared.PostID, len(s.order))
	copy(ids, s.order)
	return ids
}

// Len returns the number of posts in the store.
func (s *PostStore) Len() int {
	return len(s.posts)
}
