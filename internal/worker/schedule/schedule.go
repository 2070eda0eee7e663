// Package schedule は更新サイクルの定期トリガーを提供する。
// 一定間隔でコントローラに更新セッションの開始を要求し、
// どのフィードを実際に更新するかの判断はコントローラに委ねる。
package schedule

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/hitoshi/feedpulse/internal/model"
)

// SessionStarter は更新セッション開始のインターフェース。
type SessionStarter interface {
	StartSession(ctx context.Context, feedIDs []string, force bool) (*model.RefreshSession, error)
}

// Trigger は定期的に更新セッションを起動するワーカー。
// 前のセッションがまだ実行中のサイクルはスキップする。
type Trigger struct {
	controller SessionStarter
	logger     *slog.Logger
}

// NewTrigger はTriggerの新しいインスタンスを生成する。
func NewTrigger(controller SessionStarter, logger *slog.Logger) *Trigger {
	return &Trigger{
		controller: controller,
		logger:     logger,
	}
}

// Start は指定間隔で更新サイクルを起動する。
// 起動直後に1回実行し、コンテキストがキャンセルされるまで継続する。
func (t *Trigger) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	t.logger.Info("更新サイクルトリガーを開始しました",
		slog.Duration("interval", interval),
	)

	t.RunOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			t.logger.Info("更新サイクルトリガーを停止しました")
			return
		case <-ticker.C:
			t.RunOnce(ctx)
		}
	}
}

// RunOnce は1サイクル分のセッション開始を試みる。
// 実行中セッションとの競合（REFRESH_IN_PROGRESS）は正常系として扱い、
// その他の失敗もログに残すだけでトリガー自体は止めない。
func (t *Trigger) RunOnce(ctx context.Context) {
	session, err := t.controller.StartSession(ctx, nil, false)
	if err != nil {
		var apiErr *model.APIError
		if errors.As(err, &apiErr) && apiErr.Code == model.ErrCodeRefreshInProgress {
			t.logger.Debug("前回のセッションが実行中のためサイクルをスキップします")
			return
		}
		t.logger.Error("更新サイクルの開始に失敗しました",
			slog.String("error", err.Error()),
		)
		return
	}

	t.logger.Debug("更新サイクルを開始しました",
		slog.String("session_id", session.ID),
		slog.Int("target_count", session.TotalCount),
		slog.Int("skipped_count", session.SkippedCount),
	)
}
