// Package tabular reads and writes the flat ';'-separated tables that the
// offline pipeline exchanges with the serving process: the user table, the
// post table (raw and processed), the interaction log snapshot, and the
// validation set. One row per entity, stable header-named columns.
package tabular

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/feed-hub/feed-recommender/internal/domain/catalog"
	"github.com/feed-hub/feed-recommender/internal/domain/shared"
	"github.com/feed-hub/feed-recommender/internal/domain/stats"
)

// Separator used by every table in the exchange format.
const Separator = ';'

// timestampLayout matches the interaction log export.
const timestampLayout = "2006-01-02 15:04:05"

// ══════════════════════════════════════════════════════════════════════════════
// LOW-LEVEL TABLE ACCESS
// ══════════════════════════════════════════════════════════════════════════════

// table is a header-indexed view over one parsed file. Columns are looked
// up by name so extra columns (e.g. exp_group from the source extract) are
// carried through reads without breaking them.
type table struct {
	header map[string]int
	rows   [][]string
}

func readTable(path string) (*table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("tabular: failed to open %s: %w", path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.Comma = Separator
	r.FieldsPerRecord = -1

	headerRow, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("tabular: failed to read header of %s: %w", path, err)
	}
	header := make(map[string]int, len(headerRow))
	for i, name := range headerRow {
		header[strings.TrimSpace(name)] = i
	}

	var rows [][]string
	for {
		row, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("tabular: failed to read %s: %w", path, err)
		}
		rows = append(rows, row)
	}

	return &table{header: header, rows: rows}, nil
}

func (t *table) col(name string) (int, error) {
	idx, ok := t.header[name]
	if !ok {
		return 0, fmt.Errorf("tabular: missing column %q", name)
	}
	return idx, nil
}

func writeTable(path string, header []string, rows [][]string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("tabular: failed to create %s: %w", path, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	w.Comma = Separator
	if err := w.Write(header); err != nil {
		return fmt.Errorf("tabular: failed to write header of %s: %w", path, err)
	}
	for _, row := range rows {
		if err := w.Write(row); err != nil {
			return fmt.Errorf("tabular: failed to write %s: %w", path, err)
		}
	}
	w.Flush()
	return w.Error()
}

// ══════════════════════════════════════════════════════════════════════════════
// USER TABLE
// ══════════════════════════════════════════════════════════════════════════════

// ReadUsers parses the user table. An empty or missing age value becomes
// the unknown-age sentinel.
func ReadUsers(path string) ([]catalog.UserAttributes, error) {
	t, err := readTable(path)
	if err != nil {
		return nil, err
	}

	idIdx, err := t.col("user_id")
	if err != nil {
		return nil, err
	}
	users := make([]catalog.UserAttributes, 0, len(t.rows))
	for _, row := range t.rows {
		id, err := strconv.ParseInt(row[idIdx], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("tabular: bad user_id %q: %w", row[idIdx], err)
		}
		u := catalog.UserAttributes{
			UserID:  shared.UserID(id),
			Gender:  t.stringField(row, "gender"),
			Age:     shared.AgeUnknown,
			Country: t.stringField(row, "country"),
			City:    t.stringField(row, "city"),
			OS:      t.stringField(row, "os"),
			Source:  t.stringField(row, "source"),
		}
		if raw := t.stringField(row, "age"); raw != "" {
			age, err := strconv.Atoi(raw)
			if err != nil {
				return nil, fmt.Errorf("tabular: bad age %q for user %d: %w", raw, id, err)
			}
			u.Age = shared.Age(age)
		}
		users = append(users, u)
	}
	return users, nil
}

// WriteUsers writes the user table in the exchange format.
func WriteUsers(path string, users []catalog.UserAttributes) error {
	header := []string{"user_id", "gender", "age", "country", "city", "os", "source"}
	rows := make([][]string, len(users))
	for i, u := range users {
		age := ""
		if u.Age.IsKnown() {
			age = strconv.Itoa(u.Age.Int())
		}
		rows[i] = []string{
			strconv.FormatInt(u.UserID.Int64(), 10),
			u.Gender, age, u.Country, u.City, u.OS, u.Source,
		}
	}
	return writeTable(path, header, rows)
}

// stringField returns a named column value, empty when the column is
// absent from the file.
func (t *table) stringField(row []string, name string) string {
	idx, ok := t.header[name]
	if !ok || idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx])
}

// ══════════════════════════════════════════════════════════════════════════════
// POST TABLE
// ══════════════════════════════════════════════════════════════════════════════

// ReadPosts parses the processed post table. The text-statistics columns
// are optional so the same reader handles the raw extract (pipeline input)
// and the processed table (serving input).
func ReadPosts(path string) ([]catalog.PostAttributes, error) {
	t, err := readTable(path)
	if err != nil {
		return nil, err
	}

	idIdx, err := t.col("post_id")
	if err != nil {
		return nil, err
	}

	posts := make([]catalog.PostAttributes, 0, len(t.rows))
	for _, row := range t.rows {
		id, err := strconv.ParseInt(row[idIdx], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("tabular: bad post_id %q: %w", row[idIdx], err)
		}
		p := catalog.PostAttributes{
			PostID: shared.PostID(id),
			Text:   t.stringField(row, "text"),
			Topic:  shared.Topic(t.stringField(row, "topic")),
		}
		if p.TFIDFMean, err = t.floatField(row, "tfidf_mean"); err != nil {
			return nil, err
		}
		if p.TFIDFMax, err = t.floatField(row, "tfidf_max"); err != nil {
			return nil, err
		}
		length, err := t.floatField(row, "text_length")
		if err != nil {
			return nil, err
		}
		p.TextLength = int(length)
		if p.LikesToViewsRatio, err = t.floatField(row, "post_likes_to_views_ratio"); err != nil {
			return nil, err
		}
		posts = append(posts, p)
	}
	return posts, nil
}

// WritePosts writes the processed post table.
func WritePosts(path string, posts []catalog.PostAttributes) error {
	header := []string{"post_id", "text", "topic", "tfidf_mean", "tfidf_max", "text_length", "post_likes_to_views_ratio"}
	rows := make([][]string, len(posts))
	for i, p := range posts {
		rows[i] = []string{
			strconv.FormatInt(p.PostID.Int64(), 10),
			p.Text,
			p.Topic.String(),
			formatFloat(p.TFIDFMean),
			formatFloat(p.TFIDFMax),
			strconv.Itoa(p.TextLength),
			formatFloat(p.LikesToViewsRatio),
		}
	}
	return writeTable(path, header, rows)
}

// floatField returns a named float column, 0 when the column is absent or
// the value is empty.
func (t *table) floatField(row []string, name string) (float64, error) {
	raw := t.stringField(row, name)
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("tabular: bad %s value %q: %w", name, raw, err)
	}
	return v, nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// ══════════════════════════════════════════════════════════════════════════════
// INTERACTION LOG
// ══════════════════════════════════════════════════════════════════════════════

// ReadInteractions parses the interaction log snapshot.
func ReadInteractions(path string) ([]stats.InteractionRecord, error) {
	t, err := readTable(path)
	if err != nil {
		return nil, err
	}

	userIdx, err := t.col("user_id")
	if err != nil {
		return nil, err
	}
	postIdx, err := t.col("post_id")
	if err != nil {
		return nil, err
	}
	actionIdx, err := t.col("action")
	if err != nil {
		return nil, err
	}
	targetIdx, err := t.col("target")
	if err != nil {
		return nil, err
	}

	records := make([]stats.InteractionRecord, 0, len(t.rows))
	for _, row := range t.rows {
		userID, err := strconv.ParseInt(row[userIdx], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("tabular: bad user_id %q: %w", row[userIdx], err)
		}
		postID, err := strconv.ParseInt(row[postIdx], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("tabular: bad post_id %q: %w", row[postIdx], err)
		}
		target, err := strconv.Atoi(strings.TrimSpace(row[targetIdx]))
		if err != nil {
			return nil, fmt.Errorf("tabular: bad target %q: %w", row[targetIdx], err)
		}

		rec := stats.InteractionRecord{
			UserID: shared.UserID(userID),
			PostID: shared.PostID(postID),
			Action: strings.TrimSpace(row[actionIdx]),
			Target: target,
		}
		if raw := t.stringField(row, "timestamp"); raw != "" {
			ts, err := parseTimestamp(raw)
			if err != nil {
				return nil, err
			}
			rec.Timestamp = ts
		}
		records = append(records, rec)
	}
	return records, nil
}

// WriteInteractions writes the interaction log snapshot.
func WriteInteractions(path string, records []stats.InteractionRecord) error {
	header := []string{"timestamp", "user_id", "post_id", "action", "target"}
	rows := make([][]string, len(records))
	for i, r := range records {
		rows[i] = []string{
			r.Timestamp.Format(timestampLayout),
			strconv.FormatInt(r.UserID.Int64(), 10),
			strconv.FormatInt(r.PostID.Int64(), 10),
			r.Action,
			strconv.Itoa(r.Target),
		}
	}
	return writeTable(path, header, rows)
}

func parseTimestamp(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if ts, err := time.Parse(timestampLayout, raw); err == nil {
		return ts, nil
	}
	ts, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("tabular: bad timestamp %q: %w", raw, err)
	}
	return ts, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// VALIDATION SET
// ══════════════════════════════════════════════════════════════════════════════

// ValidationRow is one user of the held-out validation set: the posts they
// went on to like, aggregated by the extraction query.
type ValidationRow struct {
	UserID     shared.UserID
	LikedPosts []shared.PostID
}

// ReadValidation parses the validation table. The liked_posts column is an
// aggregated list in the form "[101, 102, 103]".
func ReadValidation(path string) ([]ValidationRow, error) {
	t, err := readTable(path)
	if err != nil {
		return nil, err
	}

	userIdx, err := t.col("user_id")
	if err != nil {
		return nil, err
	}
	likedIdx, err := t.col("liked_posts")
	if err != nil {
		return nil, err
	}

	rows := make([]ValidationRow, 0, len(t.rows))
	for _, row := range t.rows {
		userID, err := strconv.ParseInt(row[userIdx], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("tabular: bad user_id %q: %w", row[userIdx], err)
		}
		liked, err := parsePostIDList(row[likedIdx])
		if err != nil {
			return nil, err
		}
		rows = append(rows, ValidationRow{
			UserID:     shared.UserID(userID),
			LikedPosts: liked,
		})
	}
	return rows, nil
}

// WriteValidation writes the validation table.
func WriteValidation(path string, rows []ValidationRow) error {
	header := []string{"user_id", "liked_posts"}
	out := make([][]string, len(rows))
	for i, r := range rows {
		parts := make([]string, len(r.LikedPosts))
		for j, id := range r.LikedPosts {
			parts[j] = strconv.FormatInt(id.Int64(), 10)
		}
		out[i] = []string{
			strconv.FormatInt(r.UserID.Int64(), 10),
			"[" + strings.Join(parts, ", ") + "]",
		}
	}
	return writeTable(path, header, out)
}

func parsePostIDList(raw string) ([]shared.PostID, error) {
	raw = strings.Trim(strings.TrimSpace(raw), "[]{}")
	if raw == "" {
		return nil, nil
	}
	parts := strings.Split(raw, ",")
	ids := make([]shared.PostID, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		id, err := strconv.ParseInt(p, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("tabular: bad post id %q in liked_posts: %w", p, err)
		}
		ids = append(ids, shared.PostID(id))
	}
	return ids, nil
}
