// Package model はドメインモデルを定義する。
package model

import "time"

// SessionState は更新セッションの状態を表す。
// runningから completed / failed / cancelled のいずれかの終端状態へ遷移する。
type SessionState string

const (
	// SessionStateRunning は実行中のセッション状態。
	SessionStateRunning SessionState = "running"
	// SessionStateCompleted は全対象フィードの処理を終えた状態。
	SessionStateCompleted SessionState = "completed"
	// SessionStateFailed はコントローラレベルの障害で中断された状態。
	// 個別フィードの失敗ではこの状態にならない。
	SessionStateFailed SessionState = "failed"
	// SessionStateCancelled はキャンセル要求により中断された状態。
	SessionStateCancelled SessionState = "cancelled"
)

// Terminal は終端状態かどうかを返す。終端状態のセッションは以後変更されない。
func (s SessionState) Terminal() bool {
	return s == SessionStateCompleted || s == SessionStateFailed || s == SessionStateCancelled
}

// OutcomeStatus は個別フィードの更新結果種別を表す。
type OutcomeStatus string

const (
	// OutcomeSuccess は更新成功を表す。
	OutcomeSuccess OutcomeStatus = "success"
	// OutcomeFailure は更新失敗を表す。
	OutcomeFailure OutcomeStatus = "failure"
)

// RefreshOutcome はセッション内の1フィードの更新結果を表す。
type RefreshOutcome struct {
	FeedID      string
	FeedTitle   string
	Status      OutcomeStatus
	NewArticles int
	// ErrorKind は失敗時のエラー分類（timeout, http_status, parse, blocked, unknown）。
	ErrorKind    string
	ErrorMessage string
	Duration     time.Duration
	FinishedAt   time.Time
}

// RefreshSession は更新セッションの進捗と結果を表す。
// 完了後も一定期間ステータストラッカーに保持され、期限後に破棄される。
type RefreshSession struct {
	ID    string
	State SessionState
	// Force は期限前・無効化済みのフィードも強制的に対象へ含めたかどうか。
	Force     bool
	StartedAt time.Time
	// CompletedAt は終端状態へ遷移した時刻。実行中はnil。
	CompletedAt *time.Time
	// TotalCount はセッション対象フィード数。開始後は不変。
	TotalCount int
	// CompletedCount は処理済みフィード数。単調増加でTotalCountを超えない。
	CompletedCount int
	SuccessCount   int
	FailureCount   int
	// SkippedCount は期限前または停止中のため対象から除外されたフィード数。
	SkippedCount int
	// CurrentFeedID は直近に処理が完了したフィードのID。進捗観測用。
	CurrentFeedID string
	// CancelRequested はキャンセル要求済みかどうか。要求後も実行中バッチの
	// 完了まではStateはrunningのまま維持される。
	CancelRequested bool
	// ErrorMessage はfailed状態の原因。それ以外の状態では空。
	ErrorMessage string
	Outcomes     []RefreshOutcome
}
