// Package priority はフィード更新の優先度スコアリングを提供する。
package priority

import (
	"time"

	"github.com/hitoshi/feedpulse/internal/model"
)

// Weights は優先度スコアを構成する各ファクターの重み。
// 合計が1.0のときスコアは0〜1に収まる。
type Weights struct {
	// Unread は未読プレッシャーの重み。
	Unread float64
	// Engagement は既読率・スター率による関与度の重み。
	Engagement float64
	// Urgency は投稿間隔に対する経過時間（次の投稿が近いか）の重み。
	Urgency float64
	// Read は既読率そのものの重み。読まれないフィードを後回しにする。
	Read float64
}

// Config はスコアラーの調整パラメータ。
type Config struct {
	Weights Weights
	// UnreadSaturation は未読プレッシャーが1.0で飽和する未読数。
	UnreadSaturation int
}

// Scorer はフィードの更新優先度を算出する。
// Score は同一入力に対して常に同一の値を返す純粋関数で、副作用を持たない。
type Scorer struct {
	config Config
}

// NewScorer はScorerを生成する。
func NewScorer(config Config) *Scorer {
	if config.UnreadSaturation <= 0 {
		config.UnreadSaturation = 1
	}
	return &Scorer{config: config}
}

// Score はフィードの更新優先度を返す。値が大きいほど緊急度が高い。
// 統計が未計算のファクターは中立値0.5として扱い、
// 新規フィードが極端に後回しにも優遇にもならないようにする。
func (s *Scorer) Score(feed *model.Feed, stats *model.FeedStatistics, unreadCount int, now time.Time) float64 {
	w := s.config.Weights
	return w.Unread*s.unreadPressure(unreadCount) +
		w.Engagement*engagementFactor(stats) +
		w.Urgency*urgencyFactor(feed, stats, now) +
		w.Read*readFactor(stats)
}

// unreadPressure は未読数を0〜1に正規化する。飽和値以上は1.0で頭打ち。
func (s *Scorer) unreadPressure(unreadCount int) float64 {
	if unreadCount <= 0 {
		return 0
	}
	return clamp01(float64(unreadCount) / float64(s.config.UnreadSaturation))
}

// engagementFactor は既読率にスター率を加算した関与度を返す。
// スターは既読より強い関与シグナルとして上乗せし、1.0で飽和させる。
func engagementFactor(stats *model.FeedStatistics) float64 {
	if stats == nil || stats.ReadRate == nil {
		return 0.5
	}
	starRate := 0.0
	if stats.TotalArticlesFetched > 0 {
		starRate = float64(stats.TotalArticlesStarred) / float64(stats.TotalArticlesFetched)
	}
	return clamp01(*stats.ReadRate + starRate)
}

// urgencyFactor は平均投稿間隔に対する前回チェックからの経過割合を返す。
// 未チェックのフィードは最大緊急度、間隔が未知なら中立とする。
func urgencyFactor(feed *model.Feed, stats *model.FeedStatistics, now time.Time) float64 {
	if feed.LastCheckedAt == nil {
		return 1.0
	}
	if stats == nil || stats.AvgPublishGapHours == nil || *stats.AvgPublishGapHours <= 0 {
		return 0.5
	}
	elapsed := now.Sub(*feed.LastCheckedAt).Hours()
	return clamp01(elapsed / *stats.AvgPublishGapHours)
}

// readFactor は既読率を返す。確実に読まれないフィードを後回しにする。
func readFactor(stats *model.FeedStatistics) float64 {
	if stats == nil || stats.ReadRate == nil {
		return 0.5
	}
	return clamp01(*stats.ReadRate)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
