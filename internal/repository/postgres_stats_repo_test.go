package repository

import (
	"testing"
	"time"

	"github.com/hitoshi/feedpulse/internal/model"
)

// PostgresStatisticsRepoはStatisticsRepositoryインターフェースを満たすことを検証
func TestPostgresStatisticsRepo_ImplementsInterface(t *testing.T) {
	var _ StatisticsRepository = (*PostgresStatisticsRepo)(nil)
}

// PostgresPostingHistoryRepoはPostingHistoryRepositoryインターフェースを満たすことを検証
func TestPostgresPostingHistoryRepo_ImplementsInterface(t *testing.T) {
	var _ PostingHistoryRepository = (*PostgresPostingHistoryRepo)(nil)
}

// NewPostgresStatisticsRepoが正しく初期化されることを検証
func TestNewPostgresStatisticsRepo_Initializes(t *testing.T) {
	repo := NewPostgresStatisticsRepo(nil)
	if repo == nil {
		t.Fatal("expected non-nil repo")
	}
}

// NewPostgresPostingHistoryRepoが正しく初期化されることを検証
func TestNewPostgresPostingHistoryRepo_Initializes(t *testing.T) {
	repo := NewPostgresPostingHistoryRepo(nil)
	if repo == nil {
		t.Fatal("expected non-nil repo")
	}
}

// FeedStatisticsモデルのnil許容フィールドがデフォルトでnilであることを検証
func TestFeedStatisticsModel_NilDefaults(t *testing.T) {
	stats := &model.FeedStatistics{
		FeedID:               "feed-id-1",
		CalculatedTTLMinutes: 60,
		LastCalculatedAt:     time.Now(),
	}

	if stats.AvgPublishGapHours != nil {
		t.Error("avg_publish_gap_hours should be nil by default")
	}
	if stats.ReadRate != nil {
		t.Error("read_rate should be nil by default")
	}
}

// FeedStatisticsモデルのフィールドが正しく構築されることを検証
func TestFeedStatisticsModel_Fields(t *testing.T) {
	gapHours := 12.5
	readRate := 0.8
	stats := &model.FeedStatistics{
		FeedID:               "feed-id-2",
		TotalArticlesFetched: 100,
		TotalArticlesRead:    80,
		TotalArticlesStarred: 5,
		ArticlesLast7Days:    14,
		ArticlesLast30Days:   60,
		AvgArticlesPerDay:    2.0,
		AvgPublishGapHours:   &gapHours,
		ReadRate:             &readRate,
		CalculatedTTLMinutes: 180,
		TTLCalculationReason: "投稿間隔から算出",
	}

	if stats.TotalArticlesFetched != 100 {
		t.Errorf("stats.TotalArticlesFetched = %d, want 100", stats.TotalArticlesFetched)
	}
	if *stats.ReadRate != 0.8 {
		t.Errorf("stats.ReadRate = %v, want 0.8", *stats.ReadRate)
	}
	if *stats.AvgPublishGapHours != 12.5 {
		t.Errorf("stats.AvgPublishGapHours = %v, want 12.5", *stats.AvgPublishGapHours)
	}
}
