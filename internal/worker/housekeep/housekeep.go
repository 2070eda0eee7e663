// Package housekeep は統計まわりの定期保守ジョブを提供する。
// 対象ウィンドウを過ぎた投稿イベントの削除と、長期間再計算されていない
// フィード統計の再計算を定期バッチで行う。削除・再計算とも冪等で、
// 対象がない場合は何もしない。
package housekeep

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/feedpulse/internal/model"
	"github.com/hitoshi/feedpulse/internal/repository"
)

// StatsRecomputer は統計再計算のインターフェース。
type StatsRecomputer interface {
	Recompute(ctx context.Context, feedID string) (*model.FeedStatistics, error)
}

// Job は統計データの保守ジョブ。
type Job struct {
	postingRepo repository.PostingHistoryRepository
	statsRepo   repository.StatisticsRepository
	statsSvc    StatsRecomputer
	logger      *slog.Logger
	// RetentionDays は投稿イベントの保持日数（デフォルト: 14）。
	// 間隔算出ウィンドウと同じ日数を保持すれば十分。
	RetentionDays int
	// StaleAfter は統計を再計算対象とみなす経過時間（デフォルト: 6時間）。
	StaleAfter time.Duration
	// SweepLimit は1回の実行で再計算するフィード数の上限（デフォルト: 100）。
	SweepLimit int
}

// NewJob は新しいJobを生成する。
func NewJob(
	postingRepo repository.PostingHistoryRepository,
	statsRepo repository.StatisticsRepository,
	statsSvc StatsRecomputer,
	logger *slog.Logger,
) *Job {
	return &Job{
		postingRepo:   postingRepo,
		statsRepo:     statsRepo,
		statsSvc:      statsSvc,
		logger:        logger,
		RetentionDays: 14,
		StaleAfter:    6 * time.Hour,
		SweepLimit:    100,
	}
}

// Start は指定間隔で保守処理を実行する。
// 起動直後に1回実行し、コンテキストがキャンセルされるまで継続する。
func (j *Job) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	j.logger.Info("統計保守ジョブを開始しました",
		slog.Duration("interval", interval),
		slog.Int("retention_days", j.RetentionDays),
	)

	if err := j.Run(ctx); err != nil {
		j.logger.Error("統計保守ジョブの実行に失敗しました",
			slog.String("error", err.Error()),
		)
	}

	for {
		select {
		case <-ctx.Done():
			j.logger.Info("統計保守ジョブを停止しました")
			return
		case <-ticker.C:
			if err := j.Run(ctx); err != nil {
				j.logger.Error("統計保守ジョブの実行に失敗しました",
					slog.String("error", err.Error()),
				)
			}
		}
	}
}

// Run は1回分の保守処理を実行する。
// 保持期間を過ぎた投稿イベントを削除し、古くなった統計を再計算する。
// 個別フィードの再計算失敗は記録するだけで処理を続行する。
func (j *Job) Run(ctx context.Context) error {
	start := time.Now()

	cutoff := start.AddDate(0, 0, -j.RetentionDays)
	deleted, err := j.postingRepo.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("投稿イベントの削除に失敗しました: %w", err)
	}

	staleIDs, err := j.statsRepo.ListStaleFeedIDs(ctx, start.Add(-j.StaleAfter), j.SweepLimit)
	if err != nil {
		return fmt.Errorf("再計算対象フィードの取得に失敗しました: %w", err)
	}

	recomputed := 0
	for _, feedID := range staleIDs {
		if ctx.Err() != nil {
			break
		}
		if _, err := j.statsSvc.Recompute(ctx, feedID); err != nil {
			j.logger.Warn("統計の再計算に失敗しました",
				slog.String("feed_id", feedID),
				slog.String("error", err.Error()),
			)
			continue
		}
		recomputed++
	}

	duration := time.Since(start)
	j.logger.Info("統計保守ジョブが完了しました",
		slog.Int64("deleted_posting_events", deleted),
		slog.Int("stale_feeds", len(staleIDs)),
		slog.Int("recomputed", recomputed),
		slog.Float64("duration_ms", float64(duration.Milliseconds())),
	)

	return nil
}
