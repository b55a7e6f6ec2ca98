package tabular

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feed-hub/feed-recommender/internal/domain/catalog"
	"github.com/feed-hub/feed-recommender/internal/domain/shared"
	"github.com/feed-hub/feed-recommender/internal/domain/stats"
)

func TestUsers_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "user_data.csv")
	in := []catalog.UserAttributes{
		{UserID: 1, Gender: "M", Age: 25, Country: "Russia", City: "Moscow", OS: "iOS", Source: "ads"},
		{UserID: 2, Age: shared.AgeUnknown, OS: "Android", Source: "organic"},
	}
	require.NoError(t, WriteUsers(path, in))

	out, err := ReadUsers(path)
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, in[0], out[0])
	// Empty age round-trips as the unknown sentinel.
	assert.Equal(t, shared.Age(shared.AgeUnknown), out[1].Age)
}

func TestReadUsers_RawExtractWithExtraColumns(t *testing.T) {
	path := filepath.Join(t.TempDir(), "raw.csv")
	raw := "user_id;gender;age;country;city;exp_group;os;source\n" +
		"7;F;31;Belarus;Minsk;3;Android;organic\n"
	require.NoError(t, os.WriteFile(path, []byte(raw), 0o644))

	out, err := ReadUsers(path)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, shared.UserID(7), out[0].UserID)
	assert.Equal(t, shared.Age(31), out[0].Age)
	assert.Equal(t, "Minsk", out[0].City)
}

func TestPosts_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "post_data.csv")
	in := []catalog.PostAttributes{
		{PostID: 101, Text: "match report; full time", Topic: "sport", TFIDFMean: 0.123, TFIDFMax: 0.9, TextLength: 23, LikesToViewsRatio: 0.25},
		{PostID: 102, Text: "gadget news", Topic: "tech"},
	}
	require.NoError(t, WritePosts(path, in))

	out, err := ReadPosts(path)
	require.NoError(t, err)
	require.Len(t, out, 2)
	// The text contains the separator; quoting must preserve it.
	assert.Equal(t, in[0], out[0])
	assert.Equal(t, in[1], out[1])
}

func TestReadPosts_RawExtractWithoutStatsColumns(t *testing.T) {
	path := filepath.Join(t.TempDir(), "raw_posts.csv")
	raw := "post_id;text;topic\n101;hello world;covid\n"
	require.NoError(t, os.WriteFile(path, []byte(raw), 0o644))

	out, err := ReadPosts(path)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, shared.Topic("covid"), out[0].Topic)
	assert.Zero(t, out[0].TFIDFMean)
	assert.Zero(t, out[0].TextLength)
}

func TestInteractions_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "feed_data.csv")
	ts := time.Date(2021, 11, 5, 12, 30, 45, 0, time.UTC)
	in := []stats.InteractionRecord{
		{UserID: 1, PostID: 101, Timestamp: ts, Action: stats.ActionView, Target: 1},
		{UserID: 2, PostID: 102, Timestamp: ts.Add(time.Hour), Action: stats.ActionLike, Target: 0},
	}
	require.NoError(t, WriteInteractions(path, in))

	out, err := ReadInteractions(path)
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, in[0].UserID, out[0].UserID)
	assert.True(t, in[0].Timestamp.Equal(out[0].Timestamp))
	assert.Equal(t, stats.ActionView, out[0].Action)
	assert.Equal(t, 1, out[0].Target)
	assert.Equal(t, stats.ActionLike, out[1].Action)
}

func TestValidation_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "validation.csv")
	in := []ValidationRow{
		{UserID: 1, LikedPosts: []shared.PostID{101, 102, 103}},
		{UserID: 2, LikedPosts: nil},
	}
	require.NoError(t, WriteValidation(path, in))

	out, err := ReadValidation(path)
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, []shared.PostID{101, 102, 103}, out[0].LikedPosts)
	assert.Empty(t, out[1].LikedPosts)
}

func TestParsePostIDList(t *testing.T) {
	ids, err := parsePostIDList("[101, 102,103]")
	require.NoError(t, err)
	assert.Equal(t, []shared.PostID{101, 102, 103}, ids)

	ids, err = parsePostIDList("[]")
	require.NoError(t, err)
	assert.Empty(t, ids)

	_, err = parsePostIDList("[12, abc]")
	assert.Error(t, err)
}

func TestReadUsers_MissingRequiredColumn(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.csv")
	require.NoError(t, os.WriteFile(path, []byte("id;age\n1;20\n"), 0o644))

	_, err := ReadUsers(path)
	assert.ErrorContains(t, err, "user_id")
}
