// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"time"

	"github.com/hitoshi/feedpulse/internal/model"
)

// FeedRepository はフィードデータの永続化インターフェース。
type FeedRepository interface {
	// FindByID は指定IDのフィードを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Feed, error)

	// FindByFeedURL はフィードURLでフィードを検索する。見つからない場合はnilを返す。
	FindByFeedURL(ctx context.Context, feedURL string) (*model.Feed, error)

	// Create はフィードを作成する。
	Create(ctx context.Context, feed *model.Feed) error

	// ListAll は全フィードを作成日時昇順で返す。
	ListAll(ctx context.Context) ([]*model.Feed, error)

	// ListActive は更新サイクルの対象となるactiveなフィードを返す。
	ListActive(ctx context.Context) ([]*model.Feed, error)

	// ListByIDs は指定IDのフィードを返す。存在しないIDは無視される。
	ListByIDs(ctx context.Context, ids []string) ([]*model.Feed, error)

	// UpdateRefreshState は更新試行後のスケジュール状態を保存する。
	// active、auto_disabled、health_score、consecutive_failures、last_error、
	// last_checked_at、last_successful_refresh_at、etag、last_modifiedを更新する。
	UpdateRefreshState(ctx context.Context, feed *model.Feed) error

	// UpdateMetadata はパース結果から得られたタイトルとサイトURLを保存する。
	UpdateMetadata(ctx context.Context, feedID, title, siteURL string) error

	// SetTTLOverride はユーザー指定の更新間隔を設定する。nilで解除。
	SetTTLOverride(ctx context.Context, feedID string, minutes *int) error

	// Enable はフィードを再有効化する。
	// active=true、auto_disabled=false、consecutive_failures=0、last_errorクリア。
	Enable(ctx context.Context, feedID string) error

	// ListWithUnreadCounts は全フィードを未読数付きで返す。一覧表示用。
	ListWithUnreadCounts(ctx context.Context) ([]FeedWithUnread, error)
}

// StatisticsRepository はフィード統計の永続化インターフェース。
type StatisticsRepository interface {
	// Get は指定フィードの統計を取得する。まだ計算されていない場合はnilを返す。
	Get(ctx context.Context, feedID string) (*model.FeedStatistics, error)

	// GetByFeedIDs は複数フィードの統計をまとめて取得する。
	// 統計が存在しないフィードはマップに含まれない。
	GetByFeedIDs(ctx context.Context, feedIDs []string) (map[string]*model.FeedStatistics, error)

	// Upsert は統計行を作成または上書きする。再計算の競合はlast-write-wins。
	Upsert(ctx context.Context, stats *model.FeedStatistics) error

	// ListStaleFeedIDs は統計が古い、または未計算のフィードIDを返す。
	ListStaleFeedIDs(ctx context.Context, olderThan time.Time, limit int) ([]string, error)
}

// PostingHistoryRepository は投稿イベント履歴の永続化インターフェース。
type PostingHistoryRepository interface {
	// RecordEvents は投稿イベントを記録する。同一(feed_id, posted_at)は無視される。
	RecordEvents(ctx context.Context, feedID string, postedAt []time.Time) error

	// ListEventTimes は指定時刻以降の投稿イベント時刻を昇順で返す。
	ListEventTimes(ctx context.Context, feedID string, since time.Time) ([]time.Time, error)

	// DeleteOlderThan は指定時刻より古い投稿イベントを削除し、削除件数を返す。
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// ArticleRepository は記事データの永続化インターフェース。
// 記事の同一性判定（3段階の優先順位）とCRUD操作、統計用の集計を提供する。
type ArticleRepository interface {
	// FindByID は指定IDの記事を取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Article, error)

	// FindByFeedAndGUID はfeed_idとguid_or_idで記事を検索する。
	// 同一性判定の最優先手段。見つからない場合はnilを返す。
	FindByFeedAndGUID(ctx context.Context, feedID, guid string) (*model.Article, error)

	// FindByFeedAndLink はfeed_idとlinkで記事を検索する。
	// 同一性判定の第2優先手段。見つからない場合はnilを返す。
	FindByFeedAndLink(ctx context.Context, feedID, link string) (*model.Article, error)

	// FindByContentHash はfeed_idとcontent_hashで記事を検索する。
	// 同一性判定の第3優先手段（hash(title+published+summary)）。見つからない場合はnilを返す。
	FindByContentHash(ctx context.Context, feedID, contentHash string) (*model.Article, error)

	// ListByFeed はフィードの記事一覧をpublished_at降順で取得する。
	// cursorがゼロ値の場合は先頭から取得する。
	// filter: "all"=全件, "unread"=未読のみ, "starred"=スターのみ
	ListByFeed(ctx context.Context, feedID string, filter model.ArticleFilter, cursor time.Time, limit int) ([]model.Article, error)

	// Create は新規記事を作成する。
	Create(ctx context.Context, article *model.Article) error

	// Update は既存記事を上書き更新する。履歴は保持しない。
	Update(ctx context.Context, article *model.Article) error

	// UpdateState は既読/スター状態を部分更新する。nilのフィールドは変更しない。
	// 更新後の記事を返す。見つからない場合はnilを返す。
	UpdateState(ctx context.Context, articleID string, isRead, isStarred *bool) (*model.Article, error)

	// CountTotals は取得済み・既読・スター付きの累計件数を返す。
	CountTotals(ctx context.Context, feedID string) (fetched, read, starred int, err error)

	// CountPublishedSince は指定時刻以降に公開された記事数を返す。
	CountPublishedSince(ctx context.Context, feedID string, since time.Time) (int, error)

	// CountUnreadByFeedIDs は複数フィードの未読数をまとめて返す。
	// 未読が0件のフィードはマップに含まれない。
	CountUnreadByFeedIDs(ctx context.Context, feedIDs []string) (map[string]int, error)
}

// FeedWithUnread はフィードと未読数を結合した構造体。一覧表示用。
type FeedWithUnread struct {
	model.Feed
	UnreadCount int
}
