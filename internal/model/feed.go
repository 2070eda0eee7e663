// Package model はドメインモデルを定義する。
package model

import "time"

// Feed はRSS/Atomフィードと更新スケジュール状態を表す。
type Feed struct {
	ID           string
	FeedURL      string
	SiteURL      string
	Title        string
	ETag         string
	LastModified string
	// Active は更新サイクルの対象かどうか。falseのフィードは
	// 明示的な強制更新を除き選択されない。
	Active bool
	// AutoDisabled は連続失敗によりヘルスモニターが自動停止したかどうか。
	// trueの場合Activeは必ずfalse。ユーザーの再有効化で解除される。
	AutoDisabled bool
	// TTLOverrideMinutes はユーザーが明示した更新間隔（分）。
	// 設定されている場合、統計による算出より常に優先される。
	TTLOverrideMinutes  *int
	HealthScore         float64
	ConsecutiveFailures int
	LastError           string
	// LastCheckedAt は成否を問わず最後に更新を試みた時刻。未試行の場合はnil。
	LastCheckedAt *time.Time
	// LastSuccessfulRefreshAt は最後に更新が成功した時刻。成功歴がない場合はnil。
	LastSuccessfulRefreshAt *time.Time
	CreatedAt               time.Time
	UpdatedAt               time.Time
}
