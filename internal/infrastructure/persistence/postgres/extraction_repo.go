package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/feed-hub/feed-recommender/internal/domain/catalog"
	"github.com/feed-hub/feed-recommender/internal/domain/shared"
	"github.com/feed-hub/feed-recommender/internal/domain/stats"
	"github.com/feed-hub/feed-recommender/internal/infrastructure/persistence/tabular"
	"github.com/feed-hub/feed-recommender/pkg/logger"
	"github.com/feed-hub/feed-recommender/pkg/retry"
)

// ══════════════════════════════════════════════════════════════════════════════
// EXTRACTION REPOSITORY
// ══════════════════════════════════════════════════════════════════════════════

// DefaultChunkSize bounds how many interaction rows one query pulls. The
// interaction log is by far the largest table, so it is read in chunks.
const DefaultChunkSize = 200000

// ExtractionRepository reads the source-of-truth tables the offline
// pipeline consumes: user attributes, post texts, the interaction log and
// the held-out validation set.
type ExtractionRepository struct {
	conn         *Connection
	q            Querier
	retrier      *retry.Retrier
	chunkSize    int
	queryTimeout time.Duration
	log          *logger.Logger
}

// NewExtractionRepository creates a new ExtractionRepository.
func NewExtractionRepository(conn *Connection, log *logger.Logger) *ExtractionRepository {
	return &ExtractionRepository{
		conn:      conn,
		q:         conn,
		retrier:   retry.ExtractionRetrier(),
		chunkSize: DefaultChunkSize,
		log:       log.With(logger.Component("extraction")),
	}
}

// WithChunkSize overrides the interaction-log chunk size.
func (r *ExtractionRepository) WithChunkSize(size int) *ExtractionRepository {
	if size > 0 {
		r.chunkSize = size
	}
	return r
}

// WithQueryTimeout caps how long any single extraction query may run.
// Zero means no cap.
func (r *ExtractionRepository) WithQueryTimeout(d time.Duration) *ExtractionRepository {
	r.queryTimeout = d
	return r
}

func (r *ExtractionRepository) queryCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if r.queryTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, r.queryTimeout)
}

// Snapshot runs fn against a repository view bound to a single
// repeatable-read transaction, so every table read sees the same committed
// state. A statement failure aborts the whole snapshot; per-query retries
// cannot help inside an aborted transaction, which is the trade for
// consistency across tables.
func (r *ExtractionRepository) Snapshot(ctx context.Context, fn func(*ExtractionRepository) error) error {
	return r.conn.WithTx(ctx, ReadOnlyTxOptions(), func(tx pgx.Tx) error {
		snap := *r
		snap.q = tx
		return fn(&snap)
	})
}

// LatestInteractionAt returns the timestamp of the newest interaction row.
// The pipeline logs it so operators can see how fresh the snapshot is.
func (r *ExtractionRepository) LatestInteractionAt(ctx context.Context) (time.Time, error) {
	row := r.q.QueryRow(ctx, `SELECT timestamp FROM public.feed_data ORDER BY timestamp DESC LIMIT 1`)

	var ts time.Time
	if err := row.Scan(&ts); err != nil {
		switch {
		case IsNoRows(err):
			return time.Time{}, fmt.Errorf("feed_data is empty: %w", err)
		case IsUndefinedTable(err):
			return time.Time{}, fmt.Errorf("feed_data table does not exist, wrong database?: %w", err)
		default:
			return time.Time{}, fmt.Errorf("failed to read latest interaction: %w", err)
		}
	}
	return ts, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// User table
// ─────────────────────────────────────────────────────────────────────────────

// Users reads the full user attribute table.
func (r *ExtractionRepository) Users(ctx context.Context) ([]catalog.UserAttributes, error) {
	query := `
		SELECT user_id, gender, age, country, city, os, source
		FROM public.user_data
		ORDER BY user_id
	`

	return retry.RetrierDoWithData(ctx, r.retrier, func(ctx context.Context) ([]catalog.UserAttributes, error) {
		ctx, cancel := r.queryCtx(ctx)
		defer cancel()

		rows, err := r.q.Query(ctx, query)
		if err != nil {
			return nil, fmt.Errorf("failed to query user_data: %w", err)
		}
		defer rows.Close()

		var users []catalog.UserAttributes
		for rows.Next() {
			var u catalog.UserAttributes
			var id int64
			var age *int
			if err := rows.Scan(&id, &u.Gender, &age, &u.Country, &u.City, &u.OS, &u.Source); err != nil {
				return nil, fmt.Errorf("failed to scan user row: %w", err)
			}
			u.UserID = shared.UserID(id)
			u.Age = shared.AgeUnknown
			if age != nil {
				u.Age = shared.Age(*age)
			}
			users = append(users, u)
		}
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("failed to read user_data: %w", err)
		}

		r.log.Info("user table extracted",
			logger.TableName("user_data"),
			logger.RowCount(len(users)),
		)
		return users, nil
	})
}

// ─────────────────────────────────────────────────────────────────────────────
// Post table
// ─────────────────────────────────────────────────────────────────────────────

// Posts reads the raw post table. Text statistics and like ratios are
// filled in later by the feature pipeline; here only the source columns
// are populated.
func (r *ExtractionRepository) Posts(ctx context.Context) ([]catalog.PostAttributes, error) {
	query := `
		SELECT post_id, text, topic
		FROM public.post_text_df
		ORDER BY post_id
	`

	return retry.RetrierDoWithData(ctx, r.retrier, func(ctx context.Context) ([]catalog.PostAttributes, error) {
		ctx, cancel := r.queryCtx(ctx)
		defer cancel()

		rows, err := r.q.Query(ctx, query)
		if err != nil {
			return nil, fmt.Errorf("failed to query post_text_df: %w", err)
		}
		defer rows.Close()

		var posts []catalog.PostAttributes
		for rows.Next() {
			var p catalog.PostAttributes
			var id int64
			var topic string
			if err := rows.Scan(&id, &p.Text, &topic); err != nil {
				return nil, fmt.Errorf("failed to scan post row: %w", err)
			}
			p.PostID = shared.PostID(id)
			p.Topic = shared.Topic(topic)
			posts = append(posts, p)
		}
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("failed to read post_text_df: %w", err)
		}

		r.log.Info("post table extracted",
			logger.TableName("post_text_df"),
			logger.RowCount(len(posts)),
		)
		return posts, nil
	})
}

// ─────────────────────────────────────────────────────────────────────────────
// Interaction log
// ─────────────────────────────────────────────────────────────────────────────

// Interactions reads up to maxRows of the interaction log, newest first,
// in chunks of the configured size. maxRows <= 0 reads the whole table.
// Each chunk is retried independently so a transient failure late in the
// extraction does not restart it.
func (r *ExtractionRepository) Interactions(ctx context.Context, maxRows int) ([]stats.InteractionRecord, error) {
	query := `
		SELECT timestamp, user_id, post_id, action, target
		FROM public.feed_data
		ORDER BY timestamp DESC
		LIMIT $1 OFFSET $2
	`

	var records []stats.InteractionRecord
	for offset := 0; ; offset += r.chunkSize {
		limit := r.chunkSize
		if maxRows > 0 && offset+limit > maxRows {
			limit = maxRows - offset
		}
		if limit <= 0 {
			break
		}

		chunk, err := retry.RetrierDoWithData(ctx, r.retrier, func(ctx context.Context) ([]stats.InteractionRecord, error) {
			return r.interactionChunk(ctx, query, limit, offset)
		})
		if err != nil {
			return nil, err
		}

		records = append(records, chunk...)
		r.log.Debug("interaction chunk extracted",
			logger.TableName("feed_data"),
			logger.RowCount(len(records)),
		)
		if len(chunk) < limit {
			break
		}
	}

	r.log.Info("interaction log extracted",
		logger.TableName("feed_data"),
		logger.RowCount(len(records)),
	)
	return records, nil
}

func (r *ExtractionRepository) interactionChunk(ctx context.Context, query string, limit, offset int) ([]stats.InteractionRecord, error) {
	ctx, cancel := r.queryCtx(ctx)
	defer cancel()

	rows, err := r.q.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query feed_data: %w", err)
	}
	defer rows.Close()

	chunk := make([]stats.InteractionRecord, 0, limit)
	for rows.Next() {
		var rec stats.InteractionRecord
		var userID, postID int64
		if err := rows.Scan(&rec.Timestamp, &userID, &postID, &rec.Action, &rec.Target); err != nil {
			return nil, fmt.Errorf("failed to scan interaction row: %w", err)
		}
		rec.UserID = shared.UserID(userID)
		rec.PostID = shared.PostID(postID)
		chunk = append(chunk, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read feed_data: %w", err)
	}
	return chunk, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Validation set
// ─────────────────────────────────────────────────────────────────────────────

// Validation reads the held-out validation set: for up to limit users,
// the posts they liked. Used by hitrate evaluation, never by serving.
func (r *ExtractionRepository) Validation(ctx context.Context, limit int) ([]tabular.ValidationRow, error) {
	query := `
		SELECT user_id, array_agg(DISTINCT post_id)
		FROM public.feed_data
		WHERE action = 'like'
		GROUP BY user_id
		ORDER BY user_id
		LIMIT $1
	`

	return retry.RetrierDoWithData(ctx, r.retrier, func(ctx context.Context) ([]tabular.ValidationRow, error) {
		ctx, cancel := r.queryCtx(ctx)
		defer cancel()

		rows, err := r.q.Query(ctx, query, limit)
		if err != nil {
			return nil, fmt.Errorf("failed to query validation set: %w", err)
		}
		defer rows.Close()

		var out []tabular.ValidationRow
		for rows.Next() {
			var userID int64
			var liked []int64
			if err := rows.Scan(&userID, &liked); err != nil {
				return nil, fmt.Errorf("failed to scan validation row: %w", err)
			}
			row := tabular.ValidationRow{
				UserID:     shared.UserID(userID),
				LikedPosts: make([]shared.PostID, len(liked)),
			}
			for i, id := range liked {
				row.LikedPosts[i] = shared.PostID(id)
			}
			out = append(out, row)
		}
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("failed to read validation set: %w", err)
		}

		r.log.Info("validation set extracted", logger.RowCount(len(out)))
		return out, nil
	})
}
