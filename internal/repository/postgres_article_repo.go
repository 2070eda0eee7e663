package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/hitoshi/feedpulse/internal/model"
)

// articleColumns はarticlesテーブルのSELECT対象カラム。scanArticleの引数順と一致させること。
const articleColumns = `id, feed_id, guid_or_id, title, link, content, summary, author,
	       published_at, is_date_estimated, is_read, is_starred, read_at, starred_at,
	       fetched_at, content_hash, created_at, updated_at`

// PostgresArticleRepo はPostgreSQLを使用した記事リポジトリ。
type PostgresArticleRepo struct {
	db *sql.DB
}

// NewPostgresArticleRepo はPostgresArticleRepoを生成する。
func NewPostgresArticleRepo(db *sql.DB) *PostgresArticleRepo {
	return &PostgresArticleRepo{db: db}
}

// scanArticle は1行分の記事を読み取る。カラム順はarticleColumnsと一致させること。
func scanArticle(s rowScanner) (*model.Article, error) {
	article := &model.Article{}
	var guidOrID, link, content, summary, author sql.NullString
	var publishedAt, readAt, starredAt sql.NullTime

	if err := s.Scan(
		&article.ID, &article.FeedID, &guidOrID, &article.Title, &link,
		&content, &summary, &author,
		&publishedAt, &article.IsDateEstimated, &article.IsRead, &article.IsStarred,
		&readAt, &starredAt, &article.FetchedAt, &article.ContentHash,
		&article.CreatedAt, &article.UpdatedAt,
	); err != nil {
		return nil, err
	}

	article.GuidOrID = nullStringValue(guidOrID)
	article.Link = nullStringValue(link)
	article.Content = nullStringValue(content)
	article.Summary = nullStringValue(summary)
	article.Author = nullStringValue(author)
	if publishedAt.Valid {
		article.PublishedAt = &publishedAt.Time
	}
	if readAt.Valid {
		article.ReadAt = &readAt.Time
	}
	if starredAt.Valid {
		article.StarredAt = &starredAt.Time
	}

	return article, nil
}

// FindByID は指定IDの記事を取得する。見つからない場合はnilを返す。
func (r *PostgresArticleRepo) FindByID(ctx context.Context, id string) (*model.Article, error) {
	article, err := scanArticle(r.db.QueryRowContext(ctx,
		`SELECT `+articleColumns+` FROM articles WHERE id = $1`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("記事の取得に失敗しました: %w", err)
	}
	return article, nil
}

// FindByFeedAndGUID はfeed_idとguid_or_idで記事を検索する。
func (r *PostgresArticleRepo) FindByFeedAndGUID(ctx context.Context, feedID, guid string) (*model.Article, error) {
	article, err := scanArticle(r.db.QueryRowContext(ctx,
		`SELECT `+articleColumns+` FROM articles WHERE feed_id = $1 AND guid_or_id = $2`,
		feedID, guid))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("GUID による記事の検索に失敗しました: %w", err)
	}
	return article, nil
}

// FindByFeedAndLink はfeed_idとlinkで記事を検索する。
func (r *PostgresArticleRepo) FindByFeedAndLink(ctx context.Context, feedID, link string) (*model.Article, error) {
	article, err := scanArticle(r.db.QueryRowContext(ctx,
		`SELECT `+articleColumns+` FROM articles WHERE feed_id = $1 AND link = $2`,
		feedID, link))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("link による記事の検索に失敗しました: %w", err)
	}
	return article, nil
}

// FindByContentHash はfeed_idとcontent_hashで記事を検索する。
func (r *PostgresArticleRepo) FindByContentHash(ctx context.Context, feedID, contentHash string) (*model.Article, error) {
	article, err := scanArticle(r.db.QueryRowContext(ctx,
		`SELECT `+articleColumns+` FROM articles WHERE feed_id = $1 AND content_hash = $2`,
		feedID, contentHash))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("content_hash による記事の検索に失敗しました: %w", err)
	}
	return article, nil
}

// ListByFeed はフィードの記事一覧をpublished_at降順で取得する。
// cursorがゼロ値の場合は先頭から取得する。
// filter: "all"=全件, "unread"=未読のみ, "starred"=スターのみ
func (r *PostgresArticleRepo) ListByFeed(
	ctx context.Context,
	feedID string,
	filter model.ArticleFilter,
	cursor time.Time,
	limit int,
) ([]model.Article, error) {
	baseQuery := `SELECT ` + articleColumns + ` FROM articles WHERE feed_id = $1`

	args := []interface{}{feedID}
	argIndex := 2

	// カーソルベースページネーション
	if !cursor.IsZero() {
		baseQuery += fmt.Sprintf(" AND published_at < $%d", argIndex)
		args = append(args, cursor)
		argIndex++
	}

	// フィルタ条件
	switch filter {
	case model.ArticleFilterUnread:
		baseQuery += " AND is_read = FALSE"
	case model.ArticleFilterStarred:
		baseQuery += " AND is_starred = TRUE"
	case model.ArticleFilterAll:
		// 全件: 追加条件なし
	}

	baseQuery += fmt.Sprintf(" ORDER BY published_at DESC LIMIT $%d", argIndex)
	args = append(args, limit)

	rows, err := r.db.QueryContext(ctx, baseQuery, args...)
	if err != nil {
		return nil, fmt.Errorf("記事一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var articles []model.Article
	for rows.Next() {
		article, err := scanArticle(rows)
		if err != nil {
			return nil, fmt.Errorf("記事行の読み取りに失敗しました: %w", err)
		}
		articles = append(articles, *article)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("記事一覧の走査に失敗しました: %w", err)
	}

	return articles, nil
}

// Create は新規記事を作成する。
func (r *PostgresArticleRepo) Create(ctx context.Context, article *model.Article) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO articles (id, feed_id, guid_or_id, title, link, content, summary, author,
		                       published_at, is_date_estimated, is_read, is_starred,
		                       read_at, starred_at, fetched_at, content_hash,
		                       created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)`,
		article.ID, article.FeedID, nullString(article.GuidOrID), article.Title,
		nullString(article.Link), nullString(article.Content), nullString(article.Summary),
		nullString(article.Author), article.PublishedAt, article.IsDateEstimated,
		article.IsRead, article.IsStarred, article.ReadAt, article.StarredAt,
		article.FetchedAt, article.ContentHash, article.CreatedAt, article.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("記事の作成に失敗しました: %w", err)
	}
	return nil
}

// Update は既存記事のコンテンツを上書き更新する。既読/スター状態は変更しない。
func (r *PostgresArticleRepo) Update(ctx context.Context, article *model.Article) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE articles SET
		    guid_or_id = $2, title = $3, link = $4, content = $5,
		    summary = $6, author = $7, published_at = $8,
		    is_date_estimated = $9, content_hash = $10, updated_at = $11
		 WHERE id = $1`,
		article.ID, nullString(article.GuidOrID), article.Title, nullString(article.Link),
		nullString(article.Content), nullString(article.Summary), nullString(article.Author),
		article.PublishedAt, article.IsDateEstimated, article.ContentHash,
		article.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("記事の更新に失敗しました: %w", err)
	}
	return nil
}

// UpdateState は既読/スター状態を部分更新する。nilのフィールドは変更しない。
// 既読化/スター付与の時刻も同時に記録する。見つからない場合はnilを返す。
func (r *PostgresArticleRepo) UpdateState(ctx context.Context, articleID string, isRead, isStarred *bool) (*model.Article, error) {
	setClauses := "updated_at = now()"
	args := []interface{}{articleID}
	argIndex := 2

	if isRead != nil {
		setClauses += fmt.Sprintf(", is_read = $%d", argIndex)
		args = append(args, *isRead)
		argIndex++
		if *isRead {
			setClauses += ", read_at = now()"
		} else {
			setClauses += ", read_at = NULL"
		}
	}
	if isStarred != nil {
		setClauses += fmt.Sprintf(", is_starred = $%d", argIndex)
		args = append(args, *isStarred)
		argIndex++
		if *isStarred {
			setClauses += ", starred_at = now()"
		} else {
			setClauses += ", starred_at = NULL"
		}
	}

	result, err := r.db.ExecContext(ctx,
		"UPDATE articles SET "+setClauses+" WHERE id = $1", args...)
	if err != nil {
		return nil, fmt.Errorf("記事状態の更新に失敗しました: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("更新件数の取得に失敗しました: %w", err)
	}
	if affected == 0 {
		return nil, nil
	}

	return r.FindByID(ctx, articleID)
}

// CountTotals は取得済み・既読・スター付きの累計件数を返す。
func (r *PostgresArticleRepo) CountTotals(ctx context.Context, feedID string) (fetched, read, starred int, err error) {
	err = r.db.QueryRowContext(ctx,
		`SELECT count(*),
		        count(*) FILTER (WHERE is_read = TRUE),
		        count(*) FILTER (WHERE is_starred = TRUE)
		 FROM articles WHERE feed_id = $1`,
		feedID,
	).Scan(&fetched, &read, &starred)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("記事件数の集計に失敗しました: %w", err)
	}
	return fetched, read, starred, nil
}

// CountPublishedSince は指定時刻以降に公開された記事数を返す。
func (r *PostgresArticleRepo) CountPublishedSince(ctx context.Context, feedID string, since time.Time) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		`SELECT count(*) FROM articles WHERE feed_id = $1 AND published_at >= $2`,
		feedID, since,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("期間内記事数の集計に失敗しました: %w", err)
	}
	return count, nil
}

// CountUnreadByFeedIDs は複数フィードの未読数をまとめて返す。
// 未読が0件のフィードはマップに含まれない。
func (r *PostgresArticleRepo) CountUnreadByFeedIDs(ctx context.Context, feedIDs []string) (map[string]int, error) {
	result := make(map[string]int)
	if len(feedIDs) == 0 {
		return result, nil
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT feed_id, count(*)
		 FROM articles
		 WHERE feed_id = ANY($1) AND is_read = FALSE
		 GROUP BY feed_id`,
		pq.Array(feedIDs),
	)
	if err != nil {
		return nil, fmt.Errorf("未読数の集計に失敗しました: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var feedID string
		var count int
		if err := rows.Scan(&feedID, &count); err != nil {
			return nil, fmt.Errorf("未読数行の読み取りに失敗しました: %w", err)
		}
		result[feedID] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("未読数の走査に失敗しました: %w", err)
	}

	return result, nil
}

// compile-time interface check
var _ ArticleRepository = (*PostgresArticleRepo)(nil)
