// Package health はフィードのヘルススコア管理、指数バックオフ、
// 連続失敗による自動停止を提供する。
package health

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/feedpulse/internal/model"
	"github.com/hitoshi/feedpulse/internal/repository"
)

// AutoDisableRecorder は連続失敗による自動停止の発生を記録する。
type AutoDisableRecorder interface {
	RecordAutoDisable(feedID string)
}

// Config はヘルスモニターの調整パラメータ。
type Config struct {
	// EMAAlpha はヘルススコア指数移動平均の平滑化係数（0〜1）。
	EMAAlpha float64
	// AutoDisableThreshold は自動停止に至る連続失敗回数。
	AutoDisableThreshold int
	// BackoffBase はバックオフ計算の基準待機時間。
	BackoffBase time.Duration
	// BackoffMax はバックオフ待機時間の上限。
	BackoffMax time.Duration
}

// Monitor はフィードの更新成否を記録し、ヘルススコアと連続失敗カウンタ、
// 自動停止状態を管理する。エンジン内でフィードを自動停止するのはここだけ。
type Monitor struct {
	feedRepo repository.FeedRepository
	metrics  AutoDisableRecorder
	config   Config
}

// NewMonitor はMonitorを生成する。
func NewMonitor(feedRepo repository.FeedRepository, metrics AutoDisableRecorder, config Config) *Monitor {
	return &Monitor{
		feedRepo: feedRepo,
		metrics:  metrics,
		config:   config,
	}
}

// RecordSuccess は更新成功を記録する。連続失敗カウンタとエラーをクリアし、
// ヘルススコアを1.0に向けて更新して永続化する。
// 自動停止済みフィードの再有効化は行わない（ユーザー操作でのみ解除される）。
func (m *Monitor) RecordSuccess(ctx context.Context, feed *model.Feed) error {
	now := time.Now()
	feed.ConsecutiveFailures = 0
	feed.LastError = ""
	feed.LastCheckedAt = &now
	feed.LastSuccessfulRefreshAt = &now
	feed.HealthScore = m.moveScore(feed.HealthScore, 1.0)

	if err := m.feedRepo.UpdateRefreshState(ctx, feed); err != nil {
		return fmt.Errorf("フィード状態の保存に失敗しました: %w", err)
	}
	return nil
}

// RecordFailure は更新失敗を記録する。連続失敗カウンタを増やし、
// エラーメッセージを不透明なテキストとして保存し、ヘルススコアを
// 0.0に向けて更新する。連続失敗がしきい値に達したフィードは自動停止する。
func (m *Monitor) RecordFailure(ctx context.Context, feed *model.Feed, cause error) error {
	now := time.Now()
	feed.ConsecutiveFailures++
	feed.LastCheckedAt = &now
	feed.HealthScore = m.moveScore(feed.HealthScore, 0.0)

	// エラーメッセージの中身は解釈しない
	if cause != nil {
		feed.LastError = cause.Error()
	} else {
		feed.LastError = "不明なエラー"
	}

	if feed.ConsecutiveFailures >= m.config.AutoDisableThreshold && !feed.AutoDisabled {
		feed.Active = false
		feed.AutoDisabled = true
		m.metrics.RecordAutoDisable(feed.ID)
		slog.Warn("連続失敗によりフィードを自動停止しました",
			"feed_id", feed.ID,
			"consecutive_failures", feed.ConsecutiveFailures,
			"last_error", feed.LastError,
		)
	}

	if err := m.feedRepo.UpdateRefreshState(ctx, feed); err != nil {
		return fmt.Errorf("フィード状態の保存に失敗しました: %w", err)
	}
	return nil
}

// BackoffDelay は連続失敗回数に応じた指数バックオフの待機時間を返す。
// base×2^failures をBackoffMaxで打ち切る。
func (m *Monitor) BackoffDelay(failures int) time.Duration {
	delay := m.config.BackoffBase
	for i := 0; i < failures; i++ {
		delay *= 2
		if delay >= m.config.BackoffMax {
			return m.config.BackoffMax
		}
	}
	if delay > m.config.BackoffMax {
		return m.config.BackoffMax
	}
	return delay
}

// moveScore は指数移動平均でスコアをtargetへ近づける。
func (m *Monitor) moveScore(current, target float64) float64 {
	return m.config.EMAAlpha*target + (1-m.config.EMAAlpha)*current
}
