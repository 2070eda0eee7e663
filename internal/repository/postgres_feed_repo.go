package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"github.com/hitoshi/feedpulse/internal/model"
)

// feedColumns はfeedsテーブルのSELECT対象カラム。scanFeedの引数順と一致させること。
const feedColumns = `id, feed_url, site_url, title, etag, last_modified,
	       active, auto_disabled, ttl_override_minutes, health_score,
	       consecutive_failures, last_error, last_checked_at,
	       last_successful_refresh_at, created_at, updated_at`

// PostgresFeedRepo はPostgreSQLを使用したフィードリポジトリ。
type PostgresFeedRepo struct {
	db *sql.DB
}

// NewPostgresFeedRepo はPostgresFeedRepoを生成する。
func NewPostgresFeedRepo(db *sql.DB) *PostgresFeedRepo {
	return &PostgresFeedRepo{db: db}
}

// rowScanner は*sql.Rowと*sql.Rowsの共通スキャンインターフェース。
type rowScanner interface {
	Scan(dest ...interface{}) error
}

// scanFeed は1行分のフィードを読み取る。カラム順はfeedColumnsと一致させること。
func scanFeed(s rowScanner) (*model.Feed, error) {
	feed := &model.Feed{}
	var siteURL, etag, lastModified, lastError sql.NullString
	var ttlOverride sql.NullInt64
	var lastCheckedAt, lastSuccessfulRefreshAt sql.NullTime

	if err := s.Scan(
		&feed.ID, &feed.FeedURL, &siteURL, &feed.Title, &etag, &lastModified,
		&feed.Active, &feed.AutoDisabled, &ttlOverride, &feed.HealthScore,
		&feed.ConsecutiveFailures, &lastError, &lastCheckedAt,
		&lastSuccessfulRefreshAt, &feed.CreatedAt, &feed.UpdatedAt,
	); err != nil {
		return nil, err
	}

	feed.SiteURL = nullStringValue(siteURL)
	feed.ETag = nullStringValue(etag)
	feed.LastModified = nullStringValue(lastModified)
	feed.LastError = nullStringValue(lastError)
	if ttlOverride.Valid {
		minutes := int(ttlOverride.Int64)
		feed.TTLOverrideMinutes = &minutes
	}
	if lastCheckedAt.Valid {
		feed.LastCheckedAt = &lastCheckedAt.Time
	}
	if lastSuccessfulRefreshAt.Valid {
		feed.LastSuccessfulRefreshAt = &lastSuccessfulRefreshAt.Time
	}

	return feed, nil
}

// FindByID は指定IDのフィードを取得する。見つからない場合はnilを返す。
func (r *PostgresFeedRepo) FindByID(ctx context.Context, id string) (*model.Feed, error) {
	feed, err := scanFeed(r.db.QueryRowContext(ctx,
		`SELECT `+feedColumns+` FROM feeds WHERE id = $1`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("フィードの取得に失敗しました: %w", err)
	}
	return feed, nil
}

// FindByFeedURL はフィードURLでフィードを検索する。見つからない場合はnilを返す。
func (r *PostgresFeedRepo) FindByFeedURL(ctx context.Context, feedURL string) (*model.Feed, error) {
	feed, err := scanFeed(r.db.QueryRowContext(ctx,
		`SELECT `+feedColumns+` FROM feeds WHERE feed_url = $1`, feedURL))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("フィードURLによるフィードの検索に失敗しました: %w", err)
	}
	return feed, nil
}

// Create はフィードを作成する。
func (r *PostgresFeedRepo) Create(ctx context.Context, feed *model.Feed) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO feeds (id, feed_url, site_url, title, etag, last_modified,
		                    active, auto_disabled, ttl_override_minutes, health_score,
		                    consecutive_failures, last_error, last_checked_at,
		                    last_successful_refresh_at, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`,
		feed.ID, feed.FeedURL, nullString(feed.SiteURL), feed.Title,
		nullString(feed.ETag), nullString(feed.LastModified),
		feed.Active, feed.AutoDisabled, feed.TTLOverrideMinutes, feed.HealthScore,
		feed.ConsecutiveFailures, nullString(feed.LastError), feed.LastCheckedAt,
		feed.LastSuccessfulRefreshAt, feed.CreatedAt, feed.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("フィードの作成に失敗しました: %w", err)
	}
	return nil
}

// listFeeds は条件付きクエリを実行して複数行のフィードを読み取る。
func (r *PostgresFeedRepo) listFeeds(ctx context.Context, query string, args ...interface{}) ([]*model.Feed, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("フィード一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var feeds []*model.Feed
	for rows.Next() {
		feed, err := scanFeed(rows)
		if err != nil {
			return nil, fmt.Errorf("フィード行の読み取りに失敗しました: %w", err)
		}
		feeds = append(feeds, feed)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("フィード一覧の走査に失敗しました: %w", err)
	}

	return feeds, nil
}

// ListAll は全フィードを作成日時昇順で返す。
func (r *PostgresFeedRepo) ListAll(ctx context.Context) ([]*model.Feed, error) {
	return r.listFeeds(ctx,
		`SELECT `+feedColumns+` FROM feeds ORDER BY created_at ASC`)
}

// ListActive は更新サイクルの対象となるactiveなフィードを返す。
func (r *PostgresFeedRepo) ListActive(ctx context.Context) ([]*model.Feed, error) {
	return r.listFeeds(ctx,
		`SELECT `+feedColumns+` FROM feeds WHERE active = TRUE ORDER BY created_at ASC`)
}

// ListByIDs は指定IDのフィードを返す。存在しないIDは無視される。
func (r *PostgresFeedRepo) ListByIDs(ctx context.Context, ids []string) ([]*model.Feed, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	return r.listFeeds(ctx,
		`SELECT `+feedColumns+` FROM feeds WHERE id = ANY($1) ORDER BY created_at ASC`,
		pq.Array(ids))
}

// UpdateRefreshState は更新試行後のスケジュール状態を保存する。
func (r *PostgresFeedRepo) UpdateRefreshState(ctx context.Context, feed *model.Feed) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE feeds SET
		    active = $2,
		    auto_disabled = $3,
		    health_score = $4,
		    consecutive_failures = $5,
		    last_error = $6,
		    last_checked_at = $7,
		    last_successful_refresh_at = $8,
		    etag = $9,
		    last_modified = $10,
		    updated_at = now()
		 WHERE id = $1`,
		feed.ID,
		feed.Active,
		feed.AutoDisabled,
		feed.HealthScore,
		feed.ConsecutiveFailures,
		nullString(feed.LastError),
		feed.LastCheckedAt,
		feed.LastSuccessfulRefreshAt,
		nullString(feed.ETag),
		nullString(feed.LastModified),
	)
	if err != nil {
		return fmt.Errorf("更新状態の保存に失敗しました: %w", err)
	}
	return nil
}

// UpdateMetadata はパース結果から得られたタイトルとサイトURLを保存する。
func (r *PostgresFeedRepo) UpdateMetadata(ctx context.Context, feedID, title, siteURL string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE feeds SET title = $2, site_url = $3, updated_at = now() WHERE id = $1`,
		feedID, title, nullString(siteURL),
	)
	if err != nil {
		return fmt.Errorf("フィードメタデータの更新に失敗しました: %w", err)
	}
	return nil
}

// SetTTLOverride はユーザー指定の更新間隔を設定する。nilで解除。
func (r *PostgresFeedRepo) SetTTLOverride(ctx context.Context, feedID string, minutes *int) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE feeds SET ttl_override_minutes = $2, updated_at = now() WHERE id = $1`,
		feedID, minutes,
	)
	if err != nil {
		return fmt.Errorf("更新間隔の上書き設定に失敗しました: %w", err)
	}
	return nil
}

// Enable はフィードを再有効化する。
func (r *PostgresFeedRepo) Enable(ctx context.Context, feedID string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE feeds SET
		    active = TRUE,
		    auto_disabled = FALSE,
		    consecutive_failures = 0,
		    last_error = NULL,
		    updated_at = now()
		 WHERE id = $1`,
		feedID,
	)
	if err != nil {
		return fmt.Errorf("フィードの再有効化に失敗しました: %w", err)
	}
	return nil
}

// ListWithUnreadCounts は全フィードを未読数付きで返す。一覧表示用。
func (r *PostgresFeedRepo) ListWithUnreadCounts(ctx context.Context) ([]FeedWithUnread, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT f.id, f.feed_url, f.site_url, f.title, f.etag, f.last_modified,
		        f.active, f.auto_disabled, f.ttl_override_minutes, f.health_score,
		        f.consecutive_failures, f.last_error, f.last_checked_at,
		        f.last_successful_refresh_at, f.created_at, f.updated_at,
		        COALESCE(u.unread, 0) AS unread_count
		 FROM feeds f
		 LEFT JOIN (
		     SELECT feed_id, count(*) AS unread
		     FROM articles
		     WHERE is_read = FALSE
		     GROUP BY feed_id
		 ) u ON u.feed_id = f.id
		 ORDER BY f.created_at ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("未読数付きフィード一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var results []FeedWithUnread
	for rows.Next() {
		var fw FeedWithUnread
		var siteURL, etag, lastModified, lastError sql.NullString
		var ttlOverride sql.NullInt64
		var lastCheckedAt, lastSuccessfulRefreshAt sql.NullTime

		if err := rows.Scan(
			&fw.ID, &fw.FeedURL, &siteURL, &fw.Title, &etag, &lastModified,
			&fw.Active, &fw.AutoDisabled, &ttlOverride, &fw.HealthScore,
			&fw.ConsecutiveFailures, &lastError, &lastCheckedAt,
			&lastSuccessfulRefreshAt, &fw.CreatedAt, &fw.UpdatedAt,
			&fw.UnreadCount,
		); err != nil {
			return nil, fmt.Errorf("未読数付きフィード行の読み取りに失敗しました: %w", err)
		}

		fw.SiteURL = nullStringValue(siteURL)
		fw.ETag = nullStringValue(etag)
		fw.LastModified = nullStringValue(lastModified)
		fw.LastError = nullStringValue(lastError)
		if ttlOverride.Valid {
			minutes := int(ttlOverride.Int64)
			fw.TTLOverrideMinutes = &minutes
		}
		if lastCheckedAt.Valid {
			fw.LastCheckedAt = &lastCheckedAt.Time
		}
		if lastSuccessfulRefreshAt.Valid {
			fw.LastSuccessfulRefreshAt = &lastSuccessfulRefreshAt.Time
		}

		results = append(results, fw)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("未読数付きフィード一覧の走査に失敗しました: %w", err)
	}

	return results, nil
}

// nullString は空文字列をsql.NullStringに変換する。
func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

// nullStringValue はsql.NullStringから文字列を取得する。
func nullStringValue(ns sql.NullString) string {
	if ns.Valid {
		return ns.String
	}
	return ""
}

// compile-time interface check
var _ FeedRepository = (*PostgresFeedRepo)(nil)
