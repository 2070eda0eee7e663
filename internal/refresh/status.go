// Package refresh は更新セッションの制御と進捗追跡を提供する。
// コントローラが対象フィードの選定と優先度順のバッチ処理を行い、
// ステータストラッカーが実行中・完了済みセッションの状態をインメモリで保持する。
package refresh

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/hitoshi/feedpulse/internal/model"
)

// StatusTracker は更新セッションの状態を保持するインメモリストア。
// セッションへの変更はすべてこのトラッカーのロック下で行われ、
// Getは独立したスナップショットを返すため、進行中のセッションを
// 別ゴルーチンから安全にポーリングできる。
type StatusTracker struct {
	mu        sync.RWMutex
	sessions  map[string]*model.RefreshSession
	retention time.Duration
	logger    *slog.Logger
}

// NewStatusTracker はStatusTrackerを生成する。
// retentionは終端状態に達したセッションを保持する期間。
func NewStatusTracker(retention time.Duration, logger *slog.Logger) *StatusTracker {
	return &StatusTracker{
		sessions:  make(map[string]*model.RefreshSession),
		retention: retention,
		logger:    logger,
	}
}

// Put はセッションを登録する。
func (t *StatusTracker) Put(session *model.RefreshSession) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sessions[session.ID] = session
}

// Get はセッションのスナップショットを返す。
// 破棄済み・未登録のセッションはSESSION_NOT_FOUNDエラーを返す。
func (t *StatusTracker) Get(sessionID string) (*model.RefreshSession, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	session, ok := t.sessions[sessionID]
	if !ok {
		return nil, model.NewSessionNotFoundError(sessionID)
	}
	return snapshotSession(session), nil
}

// RequestCancel はセッションのキャンセルを要求する。
// キャンセルは協調的で、実行中バッチの完了後に反映される。
// 終端状態のセッションへの要求は何もしない。
func (t *StatusTracker) RequestCancel(sessionID string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	session, ok := t.sessions[sessionID]
	if !ok {
		return model.NewSessionNotFoundError(sessionID)
	}
	if session.State.Terminal() {
		return nil
	}
	session.CancelRequested = true
	return nil
}

// IsCancelRequested はキャンセル要求済みかどうかを返す。
// 未登録のセッションはfalseを返す。
func (t *StatusTracker) IsCancelRequested(sessionID string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	session, ok := t.sessions[sessionID]
	return ok && session.CancelRequested
}

// RecordOutcome は1フィードの処理結果を記録し、進捗カウンタを進める。
// completed_countは単調増加でtotal_countを超えない。
// 終端状態のセッションへの記録は無視される。
func (t *StatusTracker) RecordOutcome(sessionID string, outcome model.RefreshOutcome) {
	t.mu.Lock()
	defer t.mu.Unlock()
	session, ok := t.sessions[sessionID]
	if !ok || session.State.Terminal() {
		return
	}
	session.Outcomes = append(session.Outcomes, outcome)
	if session.CompletedCount < session.TotalCount {
		session.CompletedCount++
	}
	session.CurrentFeedID = outcome.FeedID
	switch outcome.Status {
	case model.OutcomeSuccess:
		session.SuccessCount++
	case model.OutcomeFailure:
		session.FailureCount++
	}
}

// Finish はセッションを終端状態へ遷移させる。
// 既に終端状態の場合は何もしない（終端状態は不変）。
func (t *StatusTracker) Finish(sessionID string, state model.SessionState, errorMessage string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	session, ok := t.sessions[sessionID]
	if !ok || session.State.Terminal() {
		return
	}
	now := time.Now()
	session.State = state
	session.CompletedAt = &now
	session.ErrorMessage = errorMessage
}

// Delete はセッションを削除する。実行中のセッションは削除できない。
func (t *StatusTracker) Delete(sessionID string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	session, ok := t.sessions[sessionID]
	if !ok {
		return model.NewSessionNotFoundError(sessionID)
	}
	if !session.State.Terminal() {
		return model.NewRefreshInProgressError(sessionID)
	}
	delete(t.sessions, sessionID)
	return nil
}

// EvictExpired は保持期間を過ぎた終端状態のセッションを破棄し、件数を返す。
func (t *StatusTracker) EvictExpired(now time.Time) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	evicted := 0
	for id, session := range t.sessions {
		if session.State.Terminal() && session.CompletedAt != nil &&
			now.Sub(*session.CompletedAt) >= t.retention {
			delete(t.sessions, id)
			evicted++
		}
	}
	return evicted
}

// RunJanitor は一定間隔で期限切れセッションを破棄するループを実行する。
// コンテキストがキャンセルされるまで実行を継続する。
func (t *StatusTracker) RunJanitor(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	t.logger.Info("セッションジャニターを開始しました",
		slog.Duration("interval", interval),
		slog.Duration("retention", t.retention),
	)

	for {
		select {
		case <-ctx.Done():
			t.logger.Info("セッションジャニターを停止しました")
			return
		case <-ticker.C:
			if evicted := t.EvictExpired(time.Now()); evicted > 0 {
				t.logger.Debug("期限切れセッションを破棄しました",
					slog.Int("evicted", evicted),
				)
			}
		}
	}
}

// snapshotSession はセッションの独立したコピーを返す。
func snapshotSession(s *model.RefreshSession) *model.RefreshSession {
	copied := *s
	if s.CompletedAt != nil {
		completedAt := *s.CompletedAt
		copied.CompletedAt = &completedAt
	}
	copied.Outcomes = make([]model.RefreshOutcome, len(s.Outcomes))
	copy(copied.Outcomes, s.Outcomes)
	return &copied
}
