package stats

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/feedpulse/internal/model"
	"github.com/hitoshi/feedpulse/internal/repository"
)

// 集計ウィンドウ（日数）。avg_articles_per_dayは長期ウィンドウから算出する。
const (
	shortWindowDays = 7
	longWindowDays  = 30
)

// TTLMetricsRecorder はTTL再計算のメトリクス記録インターフェース。
type TTLMetricsRecorder interface {
	RecordTTLCalculation()
}

// Tracker はフィード統計の再計算を行う。
// 記事履歴と投稿イベント履歴から集計値とTTLを算出し、統計行をUPSERTする。
// 同一フィードへの並行再計算はlast-write-winsで解決される。
type Tracker struct {
	feedRepo    repository.FeedRepository
	statsRepo   repository.StatisticsRepository
	articleRepo repository.ArticleRepository
	postingRepo repository.PostingHistoryRepository
	metrics     TTLMetricsRecorder
	ttlConfig   TTLConfig
	// postingWindowDays は投稿間隔算出に使う投稿イベントの参照期間（日数）。
	postingWindowDays int
}

// NewTracker はTrackerの新しいインスタンスを生成する。
func NewTracker(
	feedRepo repository.FeedRepository,
	statsRepo repository.StatisticsRepository,
	articleRepo repository.ArticleRepository,
	postingRepo repository.PostingHistoryRepository,
	metrics TTLMetricsRecorder,
	ttlConfig TTLConfig,
	postingWindowDays int,
) *Tracker {
	return &Tracker{
		feedRepo:          feedRepo,
		statsRepo:         statsRepo,
		articleRepo:       articleRepo,
		postingRepo:       postingRepo,
		metrics:           metrics,
		ttlConfig:         ttlConfig,
		postingWindowDays: postingWindowDays,
	}
}

// Recompute は指定フィードの統計を記事履歴から再計算し、UPSERTして返す。
// 記事ストアが読めない場合は中断し、既存の統計行には触れない。
func (t *Tracker) Recompute(ctx context.Context, feedID string) (*model.FeedStatistics, error) {
	now := time.Now()

	feed, err := t.feedRepo.FindByID(ctx, feedID)
	if err != nil {
		return nil, fmt.Errorf("フィードの取得に失敗しました: %w", err)
	}
	if feed == nil {
		return nil, model.NewFeedNotFoundError(feedID)
	}

	fetched, read, starred, err := t.articleRepo.CountTotals(ctx, feedID)
	if err != nil {
		return nil, fmt.Errorf("記事集計の取得に失敗しました: %w", err)
	}

	last7, err := t.articleRepo.CountPublishedSince(ctx, feedID, now.AddDate(0, 0, -shortWindowDays))
	if err != nil {
		return nil, fmt.Errorf("7日間の記事数取得に失敗しました: %w", err)
	}

	last30, err := t.articleRepo.CountPublishedSince(ctx, feedID, now.AddDate(0, 0, -longWindowDays))
	if err != nil {
		return nil, fmt.Errorf("30日間の記事数取得に失敗しました: %w", err)
	}

	eventTimes, err := t.postingRepo.ListEventTimes(ctx, feedID, now.AddDate(0, 0, -t.postingWindowDays))
	if err != nil {
		return nil, fmt.Errorf("投稿イベント履歴の取得に失敗しました: %w", err)
	}

	statistics := &model.FeedStatistics{
		FeedID:               feedID,
		TotalArticlesFetched: fetched,
		TotalArticlesRead:    read,
		TotalArticlesStarred: starred,
		ArticlesLast7Days:    last7,
		ArticlesLast30Days:   last30,
		AvgArticlesPerDay:    float64(last30) / float64(longWindowDays),
		LastCalculatedAt:     now,
	}

	// 取得済み記事が0件のフィードは「未読」ではなく「未知」
	if fetched > 0 {
		rate := float64(read) / float64(fetched)
		statistics.ReadRate = &rate
	}

	if gap, ok := meanGapHours(eventTimes); ok {
		statistics.AvgPublishGapHours = &gap
	}

	minutes, reason := CalculateTTL(feed.TTLOverrideMinutes, statistics, t.ttlConfig)
	statistics.CalculatedTTLMinutes = minutes
	statistics.TTLCalculationReason = reason
	t.metrics.RecordTTLCalculation()

	if err := t.statsRepo.Upsert(ctx, statistics); err != nil {
		return nil, fmt.Errorf("統計の保存に失敗しました: %w", err)
	}

	slog.Debug("フィード統計を再計算しました",
		"feed_id", feedID,
		"avg_articles_per_day", statistics.AvgArticlesPerDay,
		"ttl_minutes", minutes,
		"ttl_reason", reason,
	)

	return statistics, nil
}

// RecordPostingEvents は新着記事の公開時刻を投稿イベントとして記録する。
// 同一(feed_id, posted_at)の重複は永続化層で無視される。
func (t *Tracker) RecordPostingEvents(ctx context.Context, feedID string, postedAt []time.Time) error {
	if len(postedAt) == 0 {
		return nil
	}
	if err := t.postingRepo.RecordEvents(ctx, feedID, postedAt); err != nil {
		return fmt.Errorf("投稿イベントの記録に失敗しました: %w", err)
	}
	return nil
}

// meanGapHours は連続する投稿イベント時刻の間隔の平均（時間）を返す。
// イベントが2件未満の場合、または間隔が正にならない場合は未知としてfalseを返す。
func meanGapHours(times []time.Time) (float64, bool) {
	if len(times) < 2 {
		return 0, false
	}
	var total time.Duration
	for i := 1; i < len(times); i++ {
		total += times[i].Sub(times[i-1])
	}
	hours := total.Hours() / float64(len(times)-1)
	if hours <= 0 {
		return 0, false
	}
	return hours, true
}
