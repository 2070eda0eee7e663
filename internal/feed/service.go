// Package feed はフィード登録・管理のドメインロジックを提供する。
package feed

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hitoshi/feedpulse/internal/model"
	"github.com/hitoshi/feedpulse/internal/repository"
	"github.com/hitoshi/feedpulse/internal/stats"
)

// URLValidator はフィードURLの安全性検証のインターフェース。
// テスタビリティのためSSRFガードを抽象化する。
type URLValidator interface {
	Validate(rawURL string) error
}

// Overview はフィード一覧表示用の1フィード分のビュー。
// スケジュール状態と統計、実効更新間隔をまとめて返す。
type Overview struct {
	Feed        model.Feed
	UnreadCount int
	// Stats は統計行。まだ計算されていないフィードはnil。
	Stats      *model.FeedStatistics
	TTLMinutes int
	TTLReason  string
}

// StatsView はフィード統計表示用のビュー。
type StatsView struct {
	Feed *model.Feed
	// Stats は統計行。まだ計算されていないフィードはnil。
	Stats      *model.FeedStatistics
	TTLMinutes int
	TTLReason  string
}

// FeedService はフィード登録・管理のサービス層。
// 登録時のURL検証と重複チェック、一覧・統計ビューの組み立て、
// 更新間隔の上書きと再有効化を担う。
type FeedService struct {
	feedRepo  repository.FeedRepository
	statsRepo repository.StatisticsRepository
	validator URLValidator
	ttlConfig stats.TTLConfig
}

// NewFeedService はFeedServiceの新しいインスタンスを生成する。
func NewFeedService(
	feedRepo repository.FeedRepository,
	statsRepo repository.StatisticsRepository,
	validator URLValidator,
	ttlConfig stats.TTLConfig,
) *FeedService {
	return &FeedService{
		feedRepo:  feedRepo,
		statsRepo: statsRepo,
		validator: validator,
		ttlConfig: ttlConfig,
	}
}

// Register はフィードURLを検証して新規フィードを登録する。
// フロー: URL安全性検証 → 重複チェック → フィード保存
// タイトルとサイトURLは初回更新成功時にパース結果で上書きされる。
func (s *FeedService) Register(ctx context.Context, feedURL string) (*model.Feed, error) {
	if err := s.validator.Validate(feedURL); err != nil {
		return nil, model.NewInvalidRequestError(fmt.Sprintf("フィードURLが不正です: %v", err))
	}

	existing, err := s.feedRepo.FindByFeedURL(ctx, feedURL)
	if err != nil {
		return nil, fmt.Errorf("フィードの検索に失敗しました: %w", err)
	}
	if existing != nil {
		return nil, model.NewDuplicateFeedError(feedURL)
	}

	now := time.Now()
	feed := &model.Feed{
		ID:      uuid.New().String(),
		FeedURL: feedURL,
		// 初期タイトルはフィードURL（パース時に更新される）
		Title:       feedURL,
		Active:      true,
		HealthScore: 1.0,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := s.feedRepo.Create(ctx, feed); err != nil {
		return nil, fmt.Errorf("フィードの保存に失敗しました: %w", err)
	}

	return feed, nil
}

// Overview は全フィードの一覧ビューを返す。
// 未読数・統計・実効更新間隔を各フィードに結合する。
func (s *FeedService) Overview(ctx context.Context) ([]Overview, error) {
	feeds, err := s.feedRepo.ListWithUnreadCounts(ctx)
	if err != nil {
		return nil, fmt.Errorf("フィード一覧の取得に失敗しました: %w", err)
	}

	feedIDs := make([]string, len(feeds))
	for i, f := range feeds {
		feedIDs[i] = f.ID
	}

	statsByID, err := s.statsRepo.GetByFeedIDs(ctx, feedIDs)
	if err != nil {
		return nil, fmt.Errorf("フィード統計の取得に失敗しました: %w", err)
	}

	overviews := make([]Overview, len(feeds))
	for i, f := range feeds {
		stat := statsByID[f.ID]
		ttl, reason := stats.CalculateTTL(f.TTLOverrideMinutes, stat, s.ttlConfig)
		overviews[i] = Overview{
			Feed:        f.Feed,
			UnreadCount: f.UnreadCount,
			Stats:       stat,
			TTLMinutes:  ttl,
			TTLReason:   reason,
		}
	}

	return overviews, nil
}

// GetStats は1フィードの統計ビューを返す。
// フィードが存在しない場合はFEED_NOT_FOUNDエラーを返す。
func (s *FeedService) GetStats(ctx context.Context, feedID string) (*StatsView, error) {
	feed, err := s.feedRepo.FindByID(ctx, feedID)
	if err != nil {
		return nil, fmt.Errorf("フィードの取得に失敗しました: %w", err)
	}
	if feed == nil {
		return nil, model.NewFeedNotFoundError(feedID)
	}

	stat, err := s.statsRepo.Get(ctx, feedID)
	if err != nil {
		return nil, fmt.Errorf("フィード統計の取得に失敗しました: %w", err)
	}

	ttl, reason := stats.CalculateTTL(feed.TTLOverrideMinutes, stat, s.ttlConfig)

	return &StatsView{
		Feed:       feed,
		Stats:      stat,
		TTLMinutes: ttl,
		TTLReason:  reason,
	}, nil
}

// SetTTLOverride はユーザー指定の更新間隔を設定する。minutesがnilの場合は解除。
// 値の範囲検証はAPI側で行われ、ここでは永続化のみを担う。
func (s *FeedService) SetTTLOverride(ctx context.Context, feedID string, minutes *int) (*model.Feed, error) {
	feed, err := s.feedRepo.FindByID(ctx, feedID)
	if err != nil {
		return nil, fmt.Errorf("フィードの取得に失敗しました: %w", err)
	}
	if feed == nil {
		return nil, model.NewFeedNotFoundError(feedID)
	}

	if err := s.feedRepo.SetTTLOverride(ctx, feedID, minutes); err != nil {
		return nil, fmt.Errorf("更新間隔の保存に失敗しました: %w", err)
	}

	feed.TTLOverrideMinutes = minutes
	return feed, nil
}

// Enable は停止中のフィードを再有効化する。
// 自動停止の解除はユーザーの明示操作のみが行える。
func (s *FeedService) Enable(ctx context.Context, feedID string) (*model.Feed, error) {
	feed, err := s.feedRepo.FindByID(ctx, feedID)
	if err != nil {
		return nil, fmt.Errorf("フィードの取得に失敗しました: %w", err)
	}
	if feed == nil {
		return nil, model.NewFeedNotFoundError(feedID)
	}

	if err := s.feedRepo.Enable(ctx, feedID); err != nil {
		return nil, fmt.Errorf("フィードの再有効化に失敗しました: %w", err)
	}

	feed.Active = true
	feed.AutoDisabled = false
	feed.ConsecutiveFailures = 0
	feed.LastError = ""
	return feed, nil
}
