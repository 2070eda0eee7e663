package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/feedpulse/internal/feed"
	"github.com/hitoshi/feedpulse/internal/model"
)

// FeedServiceInterface はフィードハンドラーが必要とするサービスインターフェース。
type FeedServiceInterface interface {
	// Register はフィードURLを検証して新規フィードを登録する。
	Register(ctx context.Context, feedURL string) (*model.Feed, error)
	// Overview は全フィードの一覧ビューを返す。
	Overview(ctx context.Context) ([]feed.Overview, error)
	// GetStats は1フィードの統計ビューを返す。
	GetStats(ctx context.Context, feedID string) (*feed.StatsView, error)
	// SetTTLOverride はユーザー指定の更新間隔を設定する。nilで解除。
	SetTTLOverride(ctx context.Context, feedID string, minutes *int) (*model.Feed, error)
	// Enable は停止中のフィードを再有効化する。
	Enable(ctx context.Context, feedID string) (*model.Feed, error)
}

// FeedHandler はフィード管理のHTTPハンドラー。
type FeedHandler struct {
	service FeedServiceInterface
}

// NewFeedHandler はFeedHandlerを生成する。
func NewFeedHandler(service FeedServiceInterface) *FeedHandler {
	return &FeedHandler{service: service}
}

// registerFeedRequest はフィード登録リクエストのボディ。
type registerFeedRequest struct {
	URL string `json:"url"`
}

// ttlOverrideRequest は更新間隔上書きリクエストのボディ。
// ttl_minutesがnullの場合は上書きを解除する。
type ttlOverrideRequest struct {
	TTLMinutes *int `json:"ttl_minutes"`
}

// feedResponse はフィード情報のAPIレスポンス。
type feedResponse struct {
	ID                      string     `json:"id"`
	FeedURL                 string     `json:"feed_url"`
	SiteURL                 string     `json:"site_url,omitempty"`
	Title                   string     `json:"title"`
	Active                  bool       `json:"active"`
	AutoDisabled            bool       `json:"auto_disabled"`
	TTLOverrideMinutes      *int       `json:"ttl_override_minutes,omitempty"`
	HealthScore             float64    `json:"health_score"`
	ConsecutiveFailures     int        `json:"consecutive_failures"`
	LastError               string     `json:"last_error,omitempty"`
	LastCheckedAt           *time.Time `json:"last_checked_at,omitempty"`
	LastSuccessfulRefreshAt *time.Time `json:"last_successful_refresh_at,omitempty"`
}

// feedOverviewResponse はフィード一覧の1件分のレスポンス。
type feedOverviewResponse struct {
	feedResponse
	UnreadCount int    `json:"unread_count"`
	TTLMinutes  int    `json:"ttl_minutes"`
	TTLReason   string `json:"ttl_reason"`
}

// statisticsResponse はフィード統計のレスポンス。
type statisticsResponse struct {
	TotalArticlesFetched int       `json:"total_articles_fetched"`
	TotalArticlesRead    int       `json:"total_articles_read"`
	TotalArticlesStarred int       `json:"total_articles_starred"`
	ArticlesLast7Days    int       `json:"articles_last_7_days"`
	ArticlesLast30Days   int       `json:"articles_last_30_days"`
	AvgArticlesPerDay    float64   `json:"avg_articles_per_day"`
	AvgPublishGapHours   *float64  `json:"avg_publish_gap_hours,omitempty"`
	ReadRate             *float64  `json:"read_rate,omitempty"`
	LastCalculatedAt     time.Time `json:"last_calculated_at"`
}

// feedStatsResponse はフィード統計ビューのレスポンス。
type feedStatsResponse struct {
	FeedID string `json:"feed_id"`
	// Statistics は統計行。まだ計算されていない場合はnull。
	Statistics *statisticsResponse `json:"statistics"`
	TTLMinutes int                 `json:"ttl_minutes"`
	TTLReason  string              `json:"ttl_reason"`
}

// ListFeeds はフィード一覧を未読数・統計・実効更新間隔付きで取得する。
// GET /api/feeds
func (h *FeedHandler) ListFeeds(w http.ResponseWriter, r *http.Request) {
	overviews, err := h.service.Overview(r.Context())
	if err != nil {
		handleServiceError(w, err)
		return
	}

	responses := make([]feedOverviewResponse, len(overviews))
	for i, o := range overviews {
		responses[i] = feedOverviewResponse{
			feedResponse: toFeedResponse(&o.Feed),
			UnreadCount:  o.UnreadCount,
			TTLMinutes:   o.TTLMinutes,
			TTLReason:    o.TTLReason,
		}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(responses)
}

// RegisterFeed はフィード登録を処理する。
// POST /api/feeds
func (h *FeedHandler) RegisterFeed(w http.ResponseWriter, r *http.Request) {
	var req registerFeedRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest,
			model.NewInvalidRequestError("リクエストボディの解析に失敗しました"))
		return
	}

	if req.URL == "" {
		writeAPIErrorResponse(w, http.StatusBadRequest,
			model.NewInvalidRequestError("URLが空です"))
		return
	}

	registered, err := h.service.Register(r.Context(), req.URL)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(toFeedResponse(registered))
}

// GetFeedStats はフィードの統計と実効更新間隔を取得する。
// GET /api/feeds/:id/stats
func (h *FeedHandler) GetFeedStats(w http.ResponseWriter, r *http.Request) {
	feedID := chi.URLParam(r, "id")

	view, err := h.service.GetStats(r.Context(), feedID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	resp := feedStatsResponse{
		FeedID:     view.Feed.ID,
		TTLMinutes: view.TTLMinutes,
		TTLReason:  view.TTLReason,
	}
	if view.Stats != nil {
		resp.Statistics = &statisticsResponse{
			TotalArticlesFetched: view.Stats.TotalArticlesFetched,
			TotalArticlesRead:    view.Stats.TotalArticlesRead,
			TotalArticlesStarred: view.Stats.TotalArticlesStarred,
			ArticlesLast7Days:    view.Stats.ArticlesLast7Days,
			ArticlesLast30Days:   view.Stats.ArticlesLast30Days,
			AvgArticlesPerDay:    view.Stats.AvgArticlesPerDay,
			AvgPublishGapHours:   view.Stats.AvgPublishGapHours,
			ReadRate:             view.Stats.ReadRate,
			LastCalculatedAt:     view.Stats.LastCalculatedAt,
		}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// SetTTLOverride はユーザー指定の更新間隔を設定または解除する。
// PUT /api/feeds/:id/ttl
func (h *FeedHandler) SetTTLOverride(w http.ResponseWriter, r *http.Request) {
	feedID := chi.URLParam(r, "id")

	var req ttlOverrideRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest,
			model.NewInvalidRequestError("リクエストボディの解析に失敗しました"))
		return
	}

	// 上書き値のバリデーション: 30分-1440分（24時間）。nullは解除なので検証不要
	if req.TTLMinutes != nil && !isValidTTLOverride(*req.TTLMinutes) {
		writeAPIErrorResponse(w, http.StatusBadRequest,
			model.NewInvalidTTLOverrideError(*req.TTLMinutes))
		return
	}

	updated, err := h.service.SetTTLOverride(r.Context(), feedID, req.TTLMinutes)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(toFeedResponse(updated))
}

// EnableFeed は停止中のフィードを再有効化する。
// POST /api/feeds/:id/enable
func (h *FeedHandler) EnableFeed(w http.ResponseWriter, r *http.Request) {
	feedID := chi.URLParam(r, "id")

	enabled, err := h.service.Enable(r.Context(), feedID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(toFeedResponse(enabled))
}

// --- ヘルパー関数 ---

// toFeedResponse はmodel.FeedからAPIレスポンスに変換する。
func toFeedResponse(f *model.Feed) feedResponse {
	return feedResponse{
		ID:                      f.ID,
		FeedURL:                 f.FeedURL,
		SiteURL:                 f.SiteURL,
		Title:                   f.Title,
		Active:                  f.Active,
		AutoDisabled:            f.AutoDisabled,
		TTLOverrideMinutes:      f.TTLOverrideMinutes,
		HealthScore:             f.HealthScore,
		ConsecutiveFailures:     f.ConsecutiveFailures,
		LastError:               f.LastError,
		LastCheckedAt:           f.LastCheckedAt,
		LastSuccessfulRefreshAt: f.LastSuccessfulRefreshAt,
	}
}

// isValidTTLOverride は更新間隔上書き値のバリデーションを行う。
// 30分-1440分（24時間）の範囲であることを検証する。
func isValidTTLOverride(minutes int) bool {
	return minutes >= 30 && minutes <= 1440
}

// writeAPIErrorResponse は統一エラーフォーマットでエラーレスポンスを書き込む。
func writeAPIErrorResponse(w http.ResponseWriter, statusCode int, apiErr *model.APIError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(map[string]string{
		"code":     apiErr.Code,
		"message":  apiErr.Message,
		"category": apiErr.Category,
		"action":   apiErr.Action,
	})
}

// handleServiceError はサービス層から返されたエラーを適切なHTTPステータスコードに変換する。
func handleServiceError(w http.ResponseWriter, err error) {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		writeAPIErrorResponse(w, mapAPIErrorToHTTPStatus(apiErr), apiErr)
		return
	}

	// APIError以外のエラーは内部サーバーエラーとして扱う
	slog.Error("internal server error", slog.String("error", err.Error()))
	writeAPIErrorResponse(w, http.StatusInternalServerError, model.NewInternalError())
}

// mapAPIErrorToHTTPStatus はAPIErrorコードからHTTPステータスコードにマッピングする。
func mapAPIErrorToHTTPStatus(apiErr *model.APIError) int {
	switch apiErr.Code {
	case model.ErrCodeFeedNotFound, model.ErrCodeArticleNotFound, model.ErrCodeSessionNotFound:
		return http.StatusNotFound
	case model.ErrCodeRefreshInProgress, model.ErrCodeDuplicateFeed:
		return http.StatusConflict
	case model.ErrCodeInvalidTTLOverride, model.ErrCodeInvalidRequest:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
