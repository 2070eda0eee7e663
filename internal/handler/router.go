package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/feedpulse/internal/middleware"
)

// HealthChecker はデータベース到達性の確認インターフェース。
// *sql.DB がこのインターフェースを満たす。
type HealthChecker interface {
	PingContext(ctx context.Context) error
}

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	Logger      *slog.Logger
	RateLimiter *middleware.RateLimiter

	// 稼働確認・メトリクス
	HealthChecker HealthChecker
	Metrics       http.Handler

	// 更新セッション
	RefreshController RefreshControllerInterface
	SessionStatus     SessionStatusInterface

	// フィード
	FeedService FeedServiceInterface

	// 記事
	ArticleLister ArticleListerInterface
	ArticleState  ArticleStateInterface
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	RecoveryMiddleware → LoggingMiddleware → RateLimitMiddleware(GeneralMiddleware)
//
// 稼働確認ルート（/health、/metrics）はレート制限の外に配置する。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	// パニック回復とアクセスログを最上位に適用（全ルートに効く）
	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewLoggingMiddleware(deps.Logger))

	refreshHandler := NewRefreshHandler(deps.RefreshController, deps.SessionStatus)
	feedHandler := NewFeedHandler(deps.FeedService)
	articleHandler := NewArticleHandler(deps.ArticleLister, deps.ArticleState)

	// --- レート制限不要のルート ---

	r.Get("/health", healthHandler(deps.HealthChecker))
	if deps.Metrics != nil {
		r.Handle("/metrics", deps.Metrics)
	}

	// --- APIルート ---
	// ミドルウェアスタック: RateLimit(General)
	r.Group(func(r chi.Router) {
		r.Use(deps.RateLimiter.GeneralMiddleware())

		// 更新セッション管理
		r.Route("/api/refresh", func(r chi.Router) {
			// POST /api/refresh - セッション開始（開始専用レート制限を追加）
			r.With(deps.RateLimiter.RefreshMiddleware()).Post("/", refreshHandler.StartRefresh)

			r.Route("/sessions/{id}", func(r chi.Router) {
				r.Get("/", refreshHandler.GetSession)
				r.Delete("/", refreshHandler.DeleteSession)
				r.Post("/cancel", refreshHandler.CancelSession)
			})
		})

		// フィード管理
		r.Route("/api/feeds", func(r chi.Router) {
			r.Get("/", feedHandler.ListFeeds)
			r.Post("/", feedHandler.RegisterFeed)

			r.Route("/{id}", func(r chi.Router) {
				r.Put("/ttl", feedHandler.SetTTLOverride)
				r.Post("/enable", feedHandler.EnableFeed)
				r.Get("/stats", feedHandler.GetFeedStats)

				// GET /api/feeds/{id}/articles - フィードごとの記事一覧
				r.Get("/articles", articleHandler.ListArticles)
			})
		})

		// 記事管理
		r.Route("/api/articles/{id}", func(r chi.Router) {
			r.Put("/state", articleHandler.UpdateArticleState)
		})
	})

	return r
}

// healthHandler は/healthエンドポイントのハンドラーを返す。
// データベースに到達できない場合は503を返す。
func healthHandler(checker HealthChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()

		w.Header().Set("Content-Type", "application/json")
		if err := checker.PingContext(ctx); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			json.NewEncoder(w).Encode(map[string]string{"status": "unhealthy"})
			return
		}

		json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	}
}
