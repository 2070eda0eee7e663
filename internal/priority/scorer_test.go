package priority

import (
	"math"
	"testing"
	"time"

	"github.com/hitoshi/feedpulse/internal/model"
)

func defaultConfig() Config {
	return Config{
		Weights: Weights{
			Unread:     0.4,
			Engagement: 0.3,
			Urgency:    0.2,
			Read:       0.1,
		},
		UnreadSaturation: 20,
	}
}

// singleFactorConfig は1つのファクターだけを重み1.0で有効にする。
// ファクター単体の値をScore経由で検証するために使う。
func singleFactorConfig(w Weights) Config {
	return Config{Weights: w, UnreadSaturation: 20}
}

func floatPtr(f float64) *float64 { return &f }

func timePtr(t time.Time) *time.Time { return &t }

func scoreNear(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

// TestScore_NilStatistics_NeutralMidpoints は統計未計算のフィードが
// 中立値で扱われることをテストする。
func TestScore_NilStatistics_NeutralMidpoints(t *testing.T) {
	scorer := NewScorer(defaultConfig())
	now := time.Now()

	// 未チェックの新規フィード: 緊急度は最大、他は中立
	newFeed := &model.Feed{ID: "feed-new"}
	got := scorer.Score(newFeed, nil, 0, now)
	// 0.4*0 + 0.3*0.5 + 0.2*1.0 + 0.1*0.5 = 0.40
	if !scoreNear(got, 0.40) {
		t.Errorf("Score(新規フィード) = %f, want 0.40", got)
	}

	// チェック済みだが統計なし: 緊急度も中立
	checkedFeed := &model.Feed{ID: "feed-checked", LastCheckedAt: timePtr(now.Add(-1 * time.Hour))}
	got = scorer.Score(checkedFeed, nil, 0, now)
	// 0.4*0 + 0.3*0.5 + 0.2*0.5 + 0.1*0.5 = 0.30
	if !scoreNear(got, 0.30) {
		t.Errorf("Score(統計なし) = %f, want 0.30", got)
	}
}

// TestScore_UnreadPressure は未読プレッシャーの正規化と飽和をテストする。
func TestScore_UnreadPressure(t *testing.T) {
	scorer := NewScorer(singleFactorConfig(Weights{Unread: 1.0}))
	now := time.Now()
	feed := &model.Feed{ID: "feed-1", LastCheckedAt: timePtr(now)}

	tests := []struct {
		name   string
		unread int
		want   float64
	}{
		{name: "未読なし", unread: 0, want: 0.0},
		{name: "飽和値の半分", unread: 10, want: 0.5},
		{name: "飽和値ちょうど", unread: 20, want: 1.0},
		{name: "飽和値超過は頭打ち", unread: 100, want: 1.0},
		{name: "負数は0扱い", unread: -5, want: 0.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := scorer.Score(feed, nil, tt.unread, now)
			if !scoreNear(got, tt.want) {
				t.Errorf("Score(unread=%d) = %f, want %f", tt.unread, got, tt.want)
			}
		})
	}
}

// TestScore_Engagement は既読率とスター率からの関与度をテストする。
func TestScore_Engagement(t *testing.T) {
	scorer := NewScorer(singleFactorConfig(Weights{Engagement: 1.0}))
	now := time.Now()
	feed := &model.Feed{ID: "feed-1", LastCheckedAt: timePtr(now)}

	tests := []struct {
		name  string
		stats *model.FeedStatistics
		want  float64
	}{
		{
			name: "既読率にスター率を上乗せ",
			stats: &model.FeedStatistics{
				TotalArticlesFetched: 20,
				TotalArticlesStarred: 2,
				ReadRate:             floatPtr(0.5),
			},
			want: 0.6, // 0.5 + 2/20
		},
		{
			name: "スターなしは既読率そのまま",
			stats: &model.FeedStatistics{
				TotalArticlesFetched: 10,
				ReadRate:             floatPtr(0.3),
			},
			want: 0.3,
		},
		{
			name: "高既読率×スターは1.0で飽和",
			stats: &model.FeedStatistics{
				TotalArticlesFetched: 10,
				TotalArticlesStarred: 5,
				ReadRate:             floatPtr(0.9),
			},
			want: 1.0,
		},
		{
			name:  "既読率が未知なら中立",
			stats: &model.FeedStatistics{TotalArticlesFetched: 0},
			want:  0.5,
		},
		{
			name:  "統計なしは中立",
			stats: nil,
			want:  0.5,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := scorer.Score(feed, tt.stats, 0, now)
			if !scoreNear(got, tt.want) {
				t.Errorf("Score = %f, want %f", got, tt.want)
			}
		})
	}
}

// TestScore_Urgency は投稿間隔に対する経過時間の緊急度をテストする。
func TestScore_Urgency(t *testing.T) {
	scorer := NewScorer(singleFactorConfig(Weights{Urgency: 1.0}))
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	gapStats := &model.FeedStatistics{AvgPublishGapHours: floatPtr(4.0)}

	tests := []struct {
		name  string
		feed  *model.Feed
		stats *model.FeedStatistics
		want  float64
	}{
		{
			name:  "未チェックは最大緊急度",
			feed:  &model.Feed{ID: "f"},
			stats: gapStats,
			want:  1.0,
		},
		{
			name:  "間隔の半分経過",
			feed:  &model.Feed{ID: "f", LastCheckedAt: timePtr(now.Add(-2 * time.Hour))},
			stats: gapStats,
			want:  0.5,
		},
		{
			name:  "間隔を超過したら最大",
			feed:  &model.Feed{ID: "f", LastCheckedAt: timePtr(now.Add(-8 * time.Hour))},
			stats: gapStats,
			want:  1.0,
		},
		{
			name:  "チェック直後は0",
			feed:  &model.Feed{ID: "f", LastCheckedAt: timePtr(now)},
			stats: gapStats,
			want:  0.0,
		},
		{
			name:  "間隔未知は中立",
			feed:  &model.Feed{ID: "f", LastCheckedAt: timePtr(now.Add(-2 * time.Hour))},
			stats: &model.FeedStatistics{},
			want:  0.5,
		},
		{
			name:  "間隔0以下は中立",
			feed:  &model.Feed{ID: "f", LastCheckedAt: timePtr(now.Add(-2 * time.Hour))},
			stats: &model.FeedStatistics{AvgPublishGapHours: floatPtr(-1.0)},
			want:  0.5,
		},
		{
			name:  "チェック時刻が未来でも0を下回らない",
			feed:  &model.Feed{ID: "f", LastCheckedAt: timePtr(now.Add(1 * time.Hour))},
			stats: gapStats,
			want:  0.0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := scorer.Score(tt.feed, tt.stats, 0, now)
			if !scoreNear(got, tt.want) {
				t.Errorf("Score = %f, want %f", got, tt.want)
			}
		})
	}
}

// TestScore_ReadFactor は既読率ファクターをテストする。
func TestScore_ReadFactor(t *testing.T) {
	scorer := NewScorer(singleFactorConfig(Weights{Read: 1.0}))
	now := time.Now()
	feed := &model.Feed{ID: "feed-1", LastCheckedAt: timePtr(now)}

	got := scorer.Score(feed, &model.FeedStatistics{ReadRate: floatPtr(0.25)}, 0, now)
	if !scoreNear(got, 0.25) {
		t.Errorf("Score = %f, want 0.25", got)
	}

	got = scorer.Score(feed, nil, 0, now)
	if !scoreNear(got, 0.5) {
		t.Errorf("Score(統計なし) = %f, want 0.5", got)
	}
}

// TestScore_CombinedWeights は全ファクターの重み付き合成をテストする。
func TestScore_CombinedWeights(t *testing.T) {
	scorer := NewScorer(defaultConfig())
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	feed := &model.Feed{
		ID:            "feed-1",
		LastCheckedAt: timePtr(now.Add(-1 * time.Hour)),
	}
	stats := &model.FeedStatistics{
		TotalArticlesFetched: 50,
		ReadRate:             floatPtr(0.6),
		AvgPublishGapHours:   floatPtr(4.0),
	}

	got := scorer.Score(feed, stats, 10, now)
	// 0.4*(10/20) + 0.3*0.6 + 0.2*(1/4) + 0.1*0.6 = 0.2 + 0.18 + 0.05 + 0.06
	if !scoreNear(got, 0.49) {
		t.Errorf("Score = %f, want 0.49", got)
	}
}

// TestScore_Deterministic は同一入力に対するスコアの決定性をテストする。
func TestScore_Deterministic(t *testing.T) {
	scorer := NewScorer(defaultConfig())
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	feed := &model.Feed{ID: "feed-1", LastCheckedAt: timePtr(now.Add(-3 * time.Hour))}
	stats := &model.FeedStatistics{
		TotalArticlesFetched: 30,
		TotalArticlesStarred: 3,
		ReadRate:             floatPtr(0.4),
		AvgPublishGapHours:   floatPtr(6.0),
	}

	first := scorer.Score(feed, stats, 7, now)
	for i := 0; i < 10; i++ {
		if got := scorer.Score(feed, stats, 7, now); got != first {
			t.Fatalf("Score is not deterministic: %f != %f", got, first)
		}
	}
}

// TestScore_OrderingByUnread は未読数が多いほどスコアが高いことをテストする。
func TestScore_OrderingByUnread(t *testing.T) {
	scorer := NewScorer(defaultConfig())
	now := time.Now()
	feed := &model.Feed{ID: "feed-1", LastCheckedAt: timePtr(now.Add(-1 * time.Hour))}

	low := scorer.Score(feed, nil, 2, now)
	high := scorer.Score(feed, nil, 15, now)
	if high <= low {
		t.Errorf("未読15件(%f)は未読2件(%f)より高スコアであるべき", high, low)
	}
}

// TestScore_RangeUnderGarbage は異常な入力でもスコアが0〜1に収まることをテストする。
func TestScore_RangeUnderGarbage(t *testing.T) {
	scorer := NewScorer(defaultConfig())
	now := time.Now()

	inputs := []struct {
		feed   *model.Feed
		stats  *model.FeedStatistics
		unread int
	}{
		{
			feed:   &model.Feed{ID: "f"},
			stats:  &model.FeedStatistics{ReadRate: floatPtr(5.0)}, // 範囲外の既読率
			unread: math.MaxInt32,
		},
		{
			feed: &model.Feed{ID: "f", LastCheckedAt: timePtr(now.Add(-10000 * time.Hour))},
			stats: &model.FeedStatistics{
				TotalArticlesFetched: 1,
				TotalArticlesStarred: 100, // 取得数を超えるスター
				ReadRate:             floatPtr(1.0),
				AvgPublishGapHours:   floatPtr(0.0001),
			},
			unread: -100,
		},
		{
			feed:   &model.Feed{ID: "f", LastCheckedAt: timePtr(now.Add(24 * time.Hour))},
			stats:  &model.FeedStatistics{ReadRate: floatPtr(-3.0)},
			unread: 1,
		},
	}

	for i, in := range inputs {
		got := scorer.Score(in.feed, in.stats, in.unread, now)
		if got < 0 || got > 1 {
			t.Errorf("inputs[%d]: Score = %f, 0〜1の範囲を外れた", i, got)
		}
	}
}

// TestNewScorer_SaturationGuard は飽和値0でもゼロ除算しないことをテストする。
func TestNewScorer_SaturationGuard(t *testing.T) {
	scorer := NewScorer(Config{Weights: Weights{Unread: 1.0}, UnreadSaturation: 0})
	now := time.Now()
	feed := &model.Feed{ID: "f", LastCheckedAt: timePtr(now)}

	got := scorer.Score(feed, nil, 1, now)
	if !scoreNear(got, 1.0) {
		t.Errorf("Score = %f, want 1.0", got)
	}
}
