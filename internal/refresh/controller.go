package refresh

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/feedpulse/internal/article"
	"github.com/hitoshi/feedpulse/internal/fetcher"
	"github.com/hitoshi/feedpulse/internal/metrics"
	"github.com/hitoshi/feedpulse/internal/model"
	"github.com/hitoshi/feedpulse/internal/repository"
	"github.com/hitoshi/feedpulse/internal/stats"
)

// Fetcher はフィードの取得とパースのインターフェース。
type Fetcher interface {
	Fetch(ctx context.Context, feed *model.Feed) (*fetcher.Result, error)
}

// ArticleUpserter は取得した記事の永続化のインターフェース。
type ArticleUpserter interface {
	Upsert(ctx context.Context, feedID string, articles []model.ParsedArticle) (*article.UpsertResult, error)
}

// StatsRecomputer は統計再計算と投稿イベント記録のインターフェース。
type StatsRecomputer interface {
	Recompute(ctx context.Context, feedID string) (*model.FeedStatistics, error)
	RecordPostingEvents(ctx context.Context, feedID string, postedAt []time.Time) error
}

// HealthRecorder は更新成否のヘルス状態への反映とバックオフ判定のインターフェース。
type HealthRecorder interface {
	RecordSuccess(ctx context.Context, feed *model.Feed) error
	RecordFailure(ctx context.Context, feed *model.Feed, cause error) error
	BackoffDelay(failures int) time.Duration
}

// PriorityScorer はフィードの更新優先度算出のインターフェース。
type PriorityScorer interface {
	Score(feed *model.Feed, stats *model.FeedStatistics, unreadCount int, now time.Time) float64
}

// Config はコントローラの調整パラメータ。
type Config struct {
	// BatchSize はバッチ内の同時フェッチ数。バッチ間は厳密に逐次処理される。
	BatchSize int
	// TTL は期限判定に使うTTL算出設定。
	TTL stats.TTLConfig
}

// Controller は更新セッションを実行する。
// 対象フィードの選定、優先度順のランキング、バッチ単位の逐次処理、
// フェッチ結果の記事保存・ヘルス反映・統計再計算までを統括する。
// システム全体で同時に実行できるセッションは1つだけ。
type Controller struct {
	feedRepo    repository.FeedRepository
	statsRepo   repository.StatisticsRepository
	articleRepo repository.ArticleRepository
	fetcher     Fetcher
	upserter    ArticleUpserter
	statsSvc    StatsRecomputer
	health      HealthRecorder
	scorer      PriorityScorer
	status      *StatusTracker
	metrics     metrics.MetricsCollector
	logger      *slog.Logger
	config      Config

	mu               sync.Mutex
	runningSessionID string
}

// NewController はControllerを生成する。
// BatchSizeが0以下の場合はデフォルト値5を使用する。
func NewController(
	feedRepo repository.FeedRepository,
	statsRepo repository.StatisticsRepository,
	articleRepo repository.ArticleRepository,
	feedFetcher Fetcher,
	upserter ArticleUpserter,
	statsSvc StatsRecomputer,
	healthMonitor HealthRecorder,
	scorer PriorityScorer,
	status *StatusTracker,
	collector metrics.MetricsCollector,
	logger *slog.Logger,
	config Config,
) *Controller {
	if config.BatchSize <= 0 {
		config.BatchSize = 5
	}
	return &Controller{
		feedRepo:    feedRepo,
		statsRepo:   statsRepo,
		articleRepo: articleRepo,
		fetcher:     feedFetcher,
		upserter:    upserter,
		statsSvc:    statsSvc,
		health:      healthMonitor,
		scorer:      scorer,
		status:      status,
		metrics:     collector,
		logger:      logger,
		config:      config,
	}
}

// rankedFeed は優先度スコア付きの処理対象フィード。
type rankedFeed struct {
	feed  *model.Feed
	stats *model.FeedStatistics
	score float64
}

// StartSession は更新セッションを開始する。
// feedIDsが空の場合は全フィードが対象。forceの場合は停止中・期限前の
// フィードも対象に含める。対象選定は同期的に行い、フィードの処理は
// バックグラウンドで進行する。進捗はステータストラッカーで観測できる。
// 別のセッションが実行中の場合はREFRESH_IN_PROGRESSエラーを返す。
func (c *Controller) StartSession(ctx context.Context, feedIDs []string, force bool) (*model.RefreshSession, error) {
	sessionID := uuid.New().String()

	c.mu.Lock()
	if c.runningSessionID != "" {
		running := c.runningSessionID
		c.mu.Unlock()
		return nil, model.NewRefreshInProgressError(running)
	}
	c.runningSessionID = sessionID
	c.mu.Unlock()

	now := time.Now()
	targets, skipped, err := c.selectTargets(ctx, feedIDs, force, now)
	if err != nil {
		c.release()
		return nil, err
	}

	if skipped > 0 {
		c.metrics.RecordFeedsSkipped(skipped)
	}

	session := &model.RefreshSession{
		ID:           sessionID,
		State:        model.SessionStateRunning,
		Force:        force,
		StartedAt:    now,
		TotalCount:   len(targets),
		SkippedCount: skipped,
	}
	c.status.Put(session)

	c.logger.Info("更新セッションを開始します",
		slog.String("session_id", sessionID),
		slog.Int("target_count", len(targets)),
		slog.Int("skipped_count", skipped),
		slog.Bool("force", force),
	)

	go c.run(session, targets)

	return c.status.Get(sessionID)
}

// release は実行中セッションのスロットを解放する。
func (c *Controller) release() {
	c.mu.Lock()
	c.runningSessionID = ""
	c.mu.Unlock()
}

// selectTargets は対象フィードを選定し、優先度降順に並べて返す。
// forceでない場合、停止中のフィードと期限前のフィードは除外され、
// 除外数がskippedとして返る。
func (c *Controller) selectTargets(ctx context.Context, feedIDs []string, force bool, now time.Time) ([]rankedFeed, int, error) {
	var feeds []*model.Feed
	var err error
	switch {
	case len(feedIDs) > 0:
		feeds, err = c.feedRepo.ListByIDs(ctx, feedIDs)
	case force:
		feeds, err = c.feedRepo.ListAll(ctx)
	default:
		feeds, err = c.feedRepo.ListActive(ctx)
	}
	if err != nil {
		return nil, 0, fmt.Errorf("対象フィードの取得に失敗しました: %w", err)
	}
	if len(feeds) == 0 {
		return nil, 0, nil
	}

	ids := make([]string, 0, len(feeds))
	for _, feed := range feeds {
		ids = append(ids, feed.ID)
	}

	statsMap, err := c.statsRepo.GetByFeedIDs(ctx, ids)
	if err != nil {
		return nil, 0, fmt.Errorf("フィード統計の取得に失敗しました: %w", err)
	}
	unreadMap, err := c.articleRepo.CountUnreadByFeedIDs(ctx, ids)
	if err != nil {
		return nil, 0, fmt.Errorf("未読数の取得に失敗しました: %w", err)
	}

	targets := make([]rankedFeed, 0, len(feeds))
	skipped := 0
	for _, feed := range feeds {
		feedStats := statsMap[feed.ID]
		if !force {
			if !feed.Active || !c.isDue(feed, feedStats, now) {
				skipped++
				continue
			}
		}
		targets = append(targets, rankedFeed{
			feed:  feed,
			stats: feedStats,
			score: c.scorer.Score(feed, feedStats, unreadMap[feed.ID], now),
		})
	}

	// 優先度降順。同点はフィードIDで安定させる
	sort.Slice(targets, func(i, j int) bool {
		if targets[i].score != targets[j].score {
			return targets[i].score > targets[j].score
		}
		return targets[i].feed.ID < targets[j].feed.ID
	})

	return targets, skipped, nil
}

// isDue はフィードが更新期限に達しているかを判定する。
// 未チェックのフィードは常に期限到達。連続失敗中のフィードは
// TTLの代わりに短い指数バックオフで再試行し、回復を早く検出する。
func (c *Controller) isDue(feed *model.Feed, feedStats *model.FeedStatistics, now time.Time) bool {
	if feed.LastCheckedAt == nil {
		return true
	}
	var wait time.Duration
	if feed.ConsecutiveFailures > 0 {
		wait = c.health.BackoffDelay(feed.ConsecutiveFailures)
	} else {
		minutes, _ := stats.CalculateTTL(feed.TTLOverrideMinutes, feedStats, c.config.TTL)
		wait = time.Duration(minutes) * time.Minute
	}
	return !now.Before(feed.LastCheckedAt.Add(wait))
}

// run はセッション本体を実行する。バッチ間は逐次、バッチ内は並行。
// キャンセル要求はバッチ境界で確認し、実行中のフェッチは完了まで待つ。
func (c *Controller) run(session *model.RefreshSession, targets []rankedFeed) {
	defer c.release()

	// セッションはトリガー元のリクエストより長く生きる
	ctx := context.Background()

	state := model.SessionStateCompleted
	errorMessage := ""

	for start := 0; start < len(targets); start += c.config.BatchSize {
		if c.status.IsCancelRequested(session.ID) {
			state = model.SessionStateCancelled
			break
		}

		end := min(start+c.config.BatchSize, len(targets))

		var wg sync.WaitGroup
		var mu sync.Mutex
		var fatal error
		for _, target := range targets[start:end] {
			wg.Add(1)
			go func(f *model.Feed) {
				defer wg.Done()
				if err := c.processFeed(ctx, session.ID, f); err != nil {
					mu.Lock()
					if fatal == nil {
						fatal = err
					}
					mu.Unlock()
				}
			}(target.feed)
		}
		wg.Wait()

		if fatal != nil {
			state = model.SessionStateFailed
			errorMessage = fatal.Error()
			c.logger.Error("更新セッションがコントローラ障害で中断しました",
				slog.String("session_id", session.ID),
				slog.String("error", fatal.Error()),
			)
			break
		}
	}

	c.status.Finish(session.ID, state, errorMessage)

	duration := time.Since(session.StartedAt)
	c.metrics.RecordSessionFinished(string(state), duration)
	c.logger.Info("更新セッションが終了しました",
		slog.String("session_id", session.ID),
		slog.String("state", string(state)),
		slog.Float64("duration_ms", float64(duration.Milliseconds())),
	)
}

// processFeed は1フィードの更新を実行し、結果をセッションに記録する。
// 個別フィードの失敗はヘルスモニターへの記録と結果記録で完結し、
// エラーとしては返さない。ヘルス状態の保存自体が失敗した場合のみ
// コントローラ障害としてエラーを返す。
func (c *Controller) processFeed(ctx context.Context, sessionID string, feed *model.Feed) error {
	startedAt := time.Now()

	result, err := c.fetcher.Fetch(ctx, feed)
	c.metrics.RecordFetchLatency(time.Since(startedAt))

	if err != nil {
		return c.recordFailure(ctx, sessionID, feed, err, startedAt)
	}

	c.metrics.RecordHTTPStatus(result.StatusCode)

	// 記事を永続化してから成功を記録する。フェッチと永続化の間で
	// 落ちた場合、次回の試行では失敗として扱われる（無音の欠落にしない）
	upserted, err := c.upserter.Upsert(ctx, feed.ID, result.Articles)
	if err != nil {
		return c.recordFailure(ctx, sessionID, feed, err, startedAt)
	}

	if err := c.statsSvc.RecordPostingEvents(ctx, feed.ID, upserted.NewPostingTimes); err != nil {
		c.logger.Warn("投稿イベントの記録に失敗しました",
			slog.String("feed_id", feed.ID),
			slog.String("error", err.Error()),
		)
	}

	title := feed.Title
	if !result.NotModified && result.Title != "" {
		title = result.Title
		if err := c.feedRepo.UpdateMetadata(ctx, feed.ID, result.Title, result.SiteURL); err != nil {
			c.logger.Warn("フィードメタデータの更新に失敗しました",
				slog.String("feed_id", feed.ID),
				slog.String("error", err.Error()),
			)
		}
	}

	feed.ETag = result.ETag
	feed.LastModified = result.LastModified
	if err := c.health.RecordSuccess(ctx, feed); err != nil {
		return fmt.Errorf("ヘルス状態の保存に失敗しました: %w", err)
	}

	c.metrics.RecordFetchSuccess(feed.ID)
	c.metrics.RecordArticlesUpserted(upserted.Inserted)

	// 統計再計算の失敗は更新自体の成否に影響させない
	if _, err := c.statsSvc.Recompute(ctx, feed.ID); err != nil {
		c.logger.Warn("統計の再計算に失敗しました",
			slog.String("feed_id", feed.ID),
			slog.String("error", err.Error()),
		)
	}

	c.status.RecordOutcome(sessionID, model.RefreshOutcome{
		FeedID:      feed.ID,
		FeedTitle:   title,
		Status:      model.OutcomeSuccess,
		NewArticles: upserted.Inserted,
		Duration:    time.Since(startedAt),
		FinishedAt:  time.Now(),
	})
	return nil
}

// recordFailure は1フィードの失敗をヘルスモニターとセッションに記録する。
func (c *Controller) recordFailure(ctx context.Context, sessionID string, feed *model.Feed, cause error, startedAt time.Time) error {
	kind := fetcher.KindOf(cause)
	c.metrics.RecordFetchFailure(feed.ID, string(kind))

	var fetchErr *fetcher.FetchError
	if errors.As(cause, &fetchErr) && fetchErr.Kind == fetcher.KindHTTPStatus {
		c.metrics.RecordHTTPStatus(fetchErr.StatusCode)
	}

	if err := c.health.RecordFailure(ctx, feed, cause); err != nil {
		return fmt.Errorf("ヘルス状態の保存に失敗しました: %w", err)
	}

	c.status.RecordOutcome(sessionID, model.RefreshOutcome{
		FeedID:       feed.ID,
		FeedTitle:    feed.Title,
		Status:       model.OutcomeFailure,
		ErrorKind:    string(kind),
		ErrorMessage: cause.Error(),
		Duration:     time.Since(startedAt),
		FinishedAt:   time.Now(),
	})
	return nil
}
