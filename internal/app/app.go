package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/time/rate"

	"github.com/hitoshi/feedpulse/internal/article"
	"github.com/hitoshi/feedpulse/internal/config"
	"github.com/hitoshi/feedpulse/internal/database"
	"github.com/hitoshi/feedpulse/internal/feed"
	"github.com/hitoshi/feedpulse/internal/fetcher"
	"github.com/hitoshi/feedpulse/internal/handler"
	"github.com/hitoshi/feedpulse/internal/health"
	"github.com/hitoshi/feedpulse/internal/logger"
	"github.com/hitoshi/feedpulse/internal/metrics"
	"github.com/hitoshi/feedpulse/internal/middleware"
	"github.com/hitoshi/feedpulse/internal/priority"
	"github.com/hitoshi/feedpulse/internal/refresh"
	"github.com/hitoshi/feedpulse/internal/repository"
	"github.com/hitoshi/feedpulse/internal/stats"
	"github.com/hitoshi/feedpulse/internal/worker/housekeep"
	"github.com/hitoshi/feedpulse/internal/worker/schedule"
)

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. 設定読み込み前に暫定レベルでログを使えるようにする
	logger.SetupDefault(w, slog.LevelInfo)

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	// 3. 設定されたレベルでログを再セットアップする
	logger.SetupDefault(w, logger.ParseLevel(cfg.LogLevel))

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "8080"
		}
		return runHealthcheck(port)
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("port", cfg.ServerPort),
	)

	switch cmd {
	case CommandMigrate:
		return runMigrate(cfg)
	default:
		return runServe(cfg)
	}
}

// runServe はAPIサーバーモードで起動する。
// DB接続を開き、全依存関係をワイヤリングし、HTTPサーバーと
// バックグラウンドワーカー（更新サイクルトリガー、統計保守ジョブ、
// セッションジャニター）を起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	// 1. DB接続
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	slog.Info("database connection established")

	// 2. リポジトリの初期化
	feedRepo := repository.NewPostgresFeedRepo(db)
	statsRepo := repository.NewPostgresStatisticsRepo(db)
	articleRepo := repository.NewPostgresArticleRepo(db)
	postingRepo := repository.NewPostgresPostingHistoryRepo(db)

	// 3. メトリクスの初期化
	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(registry)

	// 4. フェッチ層の初期化
	guard := fetcher.NewSSRFGuard()
	feedFetcher := fetcher.NewHTTPFetcher(guard, cfg.FetchTimeout, cfg.FetchMaxSize, slog.Default())

	// 5. ドメインサービスの初期化
	sanitizer := article.NewSanitizer()
	upserter := article.NewUpsertService(articleRepo, sanitizer)
	stateService := article.NewStateService(articleRepo)

	ttlConfig := stats.TTLConfig{
		FloorMinutes:   cfg.TTLFloorMinutes,
		CeilingMinutes: cfg.TTLCeilingMinutes,
		DefaultMinutes: cfg.TTLDefaultMinutes,
	}
	statsTracker := stats.NewTracker(
		feedRepo, statsRepo, articleRepo, postingRepo,
		collector, ttlConfig, cfg.PostingWindowDays,
	)

	healthMonitor := health.NewMonitor(feedRepo, collector, health.Config{
		EMAAlpha:             cfg.HealthEMAAlpha,
		AutoDisableThreshold: cfg.AutoDisableThreshold,
		BackoffBase:          cfg.BackoffBase,
		BackoffMax:           cfg.BackoffMax,
	})

	scorer := priority.NewScorer(priority.Config{
		Weights: priority.Weights{
			Unread:     cfg.PriorityWeightUnread,
			Engagement: cfg.PriorityWeightEngagement,
			Urgency:    cfg.PriorityWeightUrgency,
			Read:       cfg.PriorityWeightRead,
		},
		UnreadSaturation: cfg.PriorityUnreadSaturation,
	})

	feedService := feed.NewFeedService(feedRepo, statsRepo, guard, ttlConfig)

	// 6. 更新セッション制御の初期化
	statusTracker := refresh.NewStatusTracker(cfg.SessionRetention, slog.Default())
	controller := refresh.NewController(
		feedRepo, statsRepo, articleRepo,
		feedFetcher, upserter, statsTracker, healthMonitor, scorer,
		statusTracker, collector, slog.Default(),
		refresh.Config{
			BatchSize: cfg.RefreshBatchSize,
			TTL:       ttlConfig,
		},
	)

	// 7. ルーターの構築
	rateLimiter := middleware.NewRateLimiter(middleware.RateLimiterConfig{
		GeneralRate:     rateLimitPerSecond(cfg.RateLimitGeneral),
		GeneralBurst:    cfg.RateLimitGeneral,
		RefreshRate:     rateLimitPerSecond(cfg.RateLimitRefresh),
		RefreshBurst:    cfg.RateLimitRefresh,
		CleanupInterval: 5 * time.Minute,
	})
	defer rateLimiter.Stop()

	deps := &handler.RouterDeps{
		Logger:        slog.Default(),
		RateLimiter:   rateLimiter,
		HealthChecker: db,
		Metrics:       metrics.Handler(registry),

		RefreshController: controller,
		SessionStatus:     statusTracker,

		FeedService: feedService,

		ArticleLister: articleRepo,
		ArticleState:  stateService,
	}

	router := handler.NewRouter(deps)

	// 8. バックグラウンドワーカーの起動
	workerCtx, cancelWorkers := context.WithCancel(context.Background())
	defer cancelWorkers()

	trigger := schedule.NewTrigger(controller, slog.Default())
	housekeepJob := housekeep.NewJob(postingRepo, statsRepo, statsTracker, slog.Default())
	housekeepJob.RetentionDays = cfg.PostingWindowDays
	housekeepJob.StaleAfter = cfg.StatsMaxAge

	var wg sync.WaitGroup
	wg.Add(3)
	go func() {
		defer wg.Done()
		trigger.Start(workerCtx, cfg.RefreshCycleInterval)
	}()
	go func() {
		defer wg.Done()
		housekeepJob.Start(workerCtx, cfg.HousekeepInterval)
	}()
	go func() {
		defer wg.Done()
		statusTracker.RunJanitor(workerCtx, cfg.SessionJanitorInterval)
	}()

	// 9. HTTPサーバーの起動
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// グレースフルシャットダウンのためのシグナルハンドリング
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		slog.Info("API server starting",
			slog.String("addr", server.Addr),
			slog.Duration("refresh_cycle_interval", cfg.RefreshCycleInterval),
			slog.Int("refresh_batch_size", cfg.RefreshBatchSize),
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server listen error", slog.String("error", err.Error()))
		}
	}()

	<-stop
	slog.Info("shutting down...")

	// ワーカーを先に止めて新しいセッションの開始を防ぐ
	cancelWorkers()
	wg.Wait()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("server stopped gracefully")
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config) error {
	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	version, err := database.RunMigrations(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed successfully",
		slog.Uint64("schema_version", uint64(version)),
	)
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	url := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// rateLimitPerSecond はreq/min単位の設定値をreq/sec単位のレートに変換する。
func rateLimitPerSecond(perMinute int) rate.Limit {
	return rate.Limit(float64(perMinute) / 60.0)
}

// maskDatabaseURL はデータベースURLの認証情報をマスクする。
func maskDatabaseURL(url string) string {
	if len(url) > 20 {
		return url[:12] + "***@..."
	}
	return "***"
}
