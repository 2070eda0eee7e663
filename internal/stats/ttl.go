// Package stats はフィード統計の集計とTTL（更新間隔）の算出を提供する。
package stats

import (
	"math"

	"github.com/hitoshi/feedpulse/internal/model"
)

// TTL算出理由。どのルールが適用されたかをそのまま保存・表示する。
const (
	// ReasonUserOverride はユーザー設定の更新間隔をそのまま採用したことを表す。
	ReasonUserOverride = "ユーザー設定による上書き"
	// ReasonPublishGap は平均投稿間隔の1/4から算出したことを表す。
	ReasonPublishGap = "投稿間隔から算出"
	// ReasonHighFrequency は高頻度フィード（1日5件以上）の固定間隔を表す。
	ReasonHighFrequency = "高頻度フィード（1日5件以上）"
	// ReasonMediumFrequency は中頻度フィード（1日1〜5件）の固定間隔を表す。
	ReasonMediumFrequency = "中頻度フィード（1日1〜5件）"
	// ReasonLowFrequency は低頻度フィード（1日1件未満）の固定間隔を表す。
	ReasonLowFrequency = "低頻度フィード（1日1件未満）"
	// ReasonNoData は統計データがなく既定値を採用したことを表す。
	ReasonNoData = "統計データなしのため既定値"
)

// 投稿頻度バケットのしきい値と対応する更新間隔（分）。
const (
	highFrequencyPerDay   = 5.0
	mediumFrequencyPerDay = 1.0

	highFrequencyTTLMinutes   = 15
	mediumFrequencyTTLMinutes = 60
	lowFrequencyTTLMinutes    = 360
)

// gapFraction は平均投稿間隔に対する更新間隔の割合。
// 間隔の1/4で確認することで、投稿直後の取りこぼしを短く抑える。
const gapFraction = 0.25

// TTLConfig はTTL算出の設定値。
type TTLConfig struct {
	// FloorMinutes は算出結果の下限（分）。
	FloorMinutes int
	// CeilingMinutes は算出結果の上限（分）。
	CeilingMinutes int
	// DefaultMinutes は統計データがない場合の既定値（分）。
	DefaultMinutes int
}

// CalculateTTL はフィードの実効更新間隔（分）と算出理由を返す純粋関数。
// 優先順位:
//  1. ユーザー上書き（検証済みの値をそのまま返す。範囲検証はAPI側）
//  2. 平均投稿間隔の1/4（投稿間隔自体を上限とする）
//  3. 1日あたり記事数のバケット表
//
// 2と3の結果は[FloorMinutes, CeilingMinutes]にクランプされる。
// statsがnilの場合は統計未計算として扱う。
func CalculateTTL(override *int, stats *model.FeedStatistics, cfg TTLConfig) (int, string) {
	if override != nil {
		return *override, ReasonUserOverride
	}

	if stats != nil && stats.AvgPublishGapHours != nil && *stats.AvgPublishGapHours > 0 {
		gapMinutes := *stats.AvgPublishGapHours * 60
		interval := gapMinutes * gapFraction
		// 投稿間隔より長く放置しない
		if interval > gapMinutes {
			interval = gapMinutes
		}
		return clampTTL(int(math.Round(interval)), cfg), ReasonPublishGap
	}

	if stats == nil || stats.TotalArticlesFetched == 0 {
		return clampTTL(cfg.DefaultMinutes, cfg), ReasonNoData
	}

	switch {
	case stats.AvgArticlesPerDay >= highFrequencyPerDay:
		return clampTTL(highFrequencyTTLMinutes, cfg), ReasonHighFrequency
	case stats.AvgArticlesPerDay >= mediumFrequencyPerDay:
		return clampTTL(mediumFrequencyTTLMinutes, cfg), ReasonMediumFrequency
	default:
		return clampTTL(lowFrequencyTTLMinutes, cfg), ReasonLowFrequency
	}
}

// clampTTL は算出結果を[FloorMinutes, CeilingMinutes]に収める。
func clampTTL(minutes int, cfg TTLConfig) int {
	if minutes < cfg.FloorMinutes {
		return cfg.FloorMinutes
	}
	if minutes > cfg.CeilingMinutes {
		return cfg.CeilingMinutes
	}
	return minutes
}
