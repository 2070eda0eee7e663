// Package model はドメインモデルを定義する。
package model

import "time"

// FeedStatistics はフィードごとの投稿・閲覧統計と算出済みTTLを表す。
// 統計トラッカーが再計算する派生データであり、手動では編集されない。
type FeedStatistics struct {
	FeedID               string
	TotalArticlesFetched int
	TotalArticlesRead    int
	TotalArticlesStarred int
	ArticlesLast7Days    int
	ArticlesLast30Days   int
	AvgArticlesPerDay    float64
	// AvgPublishGapHours は直近の投稿イベント間隔の平均（時間）。
	// 投稿イベントが2件未満の場合はnil。
	AvgPublishGapHours *float64
	// ReadRate は取得済み記事に対する既読率（0.0〜1.0）。
	// 取得済み記事が0件の場合は「未知」としてnil。
	ReadRate *float64
	// CalculatedTTLMinutes は算出された更新間隔（分）。常にフロア〜シーリングの範囲内。
	CalculatedTTLMinutes int
	// TTLCalculationReason はどの算出ルールが適用されたかの説明文。
	TTLCalculationReason string
	LastCalculatedAt     time.Time
}

// PostingHistoryEntry は新着記事が観測された投稿イベントの記録を表す。
// 投稿間隔の算出に使われ、対象ウィンドウを過ぎるとハウスキーピングで削除される。
type PostingHistoryEntry struct {
	ID       int64
	FeedID   string
	PostedAt time.Time
}
