package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/feedpulse/internal/model"
)

// RefreshControllerInterface は更新セッション開始のインターフェース。
type RefreshControllerInterface interface {
	// StartSession は更新セッションを開始する。実行中セッションがある場合は
	// REFRESH_IN_PROGRESSエラーを返す。
	StartSession(ctx context.Context, feedIDs []string, force bool) (*model.RefreshSession, error)
}

// SessionStatusInterface はセッション状態の参照・操作のインターフェース。
type SessionStatusInterface interface {
	// Get はセッションのスナップショットを返す。
	Get(sessionID string) (*model.RefreshSession, error)
	// RequestCancel はセッションにキャンセルを要求する。
	RequestCancel(sessionID string) error
	// Delete は終端状態のセッション記録を破棄する。
	Delete(sessionID string) error
}

// RefreshHandler は更新セッション管理のHTTPハンドラー。
type RefreshHandler struct {
	controller RefreshControllerInterface
	status     SessionStatusInterface
}

// NewRefreshHandler はRefreshHandlerを生成する。
func NewRefreshHandler(controller RefreshControllerInterface, status SessionStatusInterface) *RefreshHandler {
	return &RefreshHandler{
		controller: controller,
		status:     status,
	}
}

// startRefreshRequest は手動更新トリガーリクエストのボディ。
// ボディ省略時は全アクティブフィードを対象とする通常の更新になる。
type startRefreshRequest struct {
	// FeedIDs は対象フィードの明示指定。空の場合は全フィードが対象。
	FeedIDs []string `json:"feed_ids,omitempty"`
	// Force は期限前・停止中のフィードも対象に含めるかどうか。
	Force bool `json:"force,omitempty"`
}

// refreshOutcomeResponse はセッション内の1フィードの結果レスポンス。
type refreshOutcomeResponse struct {
	FeedID       string    `json:"feed_id"`
	FeedTitle    string    `json:"feed_title,omitempty"`
	Status       string    `json:"status"`
	NewArticles  int       `json:"new_articles"`
	ErrorKind    string    `json:"error_kind,omitempty"`
	ErrorMessage string    `json:"error_message,omitempty"`
	DurationMs   float64   `json:"duration_ms"`
	FinishedAt   time.Time `json:"finished_at"`
}

// sessionResponse は更新セッションのAPIレスポンス。
type sessionResponse struct {
	ID              string                   `json:"id"`
	State           string                   `json:"state"`
	Force           bool                     `json:"force"`
	StartedAt       time.Time                `json:"started_at"`
	CompletedAt     *time.Time               `json:"completed_at,omitempty"`
	TotalCount      int                      `json:"total_count"`
	CompletedCount  int                      `json:"completed_count"`
	SuccessCount    int                      `json:"success_count"`
	FailureCount    int                      `json:"failure_count"`
	SkippedCount    int                      `json:"skipped_count"`
	CurrentFeedID   string                   `json:"current_feed_id,omitempty"`
	CancelRequested bool                     `json:"cancel_requested"`
	ErrorMessage    string                   `json:"error_message,omitempty"`
	Outcomes        []refreshOutcomeResponse `json:"outcomes"`
}

// StartRefresh は手動更新セッションを開始する。
// POST /api/refresh
func (h *RefreshHandler) StartRefresh(w http.ResponseWriter, r *http.Request) {
	var req startRefreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeAPIErrorResponse(w, http.StatusBadRequest,
			model.NewInvalidRequestError("リクエストボディの解析に失敗しました"))
		return
	}

	session, err := h.controller.StartSession(r.Context(), req.FeedIDs, req.Force)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(toSessionResponse(session))
}

// GetSession は更新セッションの進捗を取得する。
// GET /api/refresh/sessions/:id
func (h *RefreshHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "id")

	session, err := h.status.Get(sessionID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(toSessionResponse(session))
}

// CancelSession は実行中セッションのキャンセルを要求する。
// 実行中バッチの完了後にセッションが停止するため、レスポンスは受理のみを表す。
// POST /api/refresh/sessions/:id/cancel
func (h *RefreshHandler) CancelSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "id")

	if err := h.status.RequestCancel(sessionID); err != nil {
		handleServiceError(w, err)
		return
	}

	session, err := h.status.Get(sessionID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(toSessionResponse(session))
}

// DeleteSession は終端状態のセッション記録を破棄する。
// DELETE /api/refresh/sessions/:id
func (h *RefreshHandler) DeleteSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "id")

	if err := h.status.Delete(sessionID); err != nil {
		handleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// toSessionResponse はmodel.RefreshSessionからAPIレスポンスに変換する。
func toSessionResponse(s *model.RefreshSession) sessionResponse {
	outcomes := make([]refreshOutcomeResponse, len(s.Outcomes))
	for i, o := range s.Outcomes {
		outcomes[i] = refreshOutcomeResponse{
			FeedID:       o.FeedID,
			FeedTitle:    o.FeedTitle,
			Status:       string(o.Status),
			NewArticles:  o.NewArticles,
			ErrorKind:    o.ErrorKind,
			ErrorMessage: o.ErrorMessage,
			DurationMs:   float64(o.Duration.Nanoseconds()) / float64(time.Millisecond),
			FinishedAt:   o.FinishedAt,
		}
	}

	return sessionResponse{
		ID:              s.ID,
		State:           string(s.State),
		Force:           s.Force,
		StartedAt:       s.StartedAt,
		CompletedAt:     s.CompletedAt,
		TotalCount:      s.TotalCount,
		CompletedCount:  s.CompletedCount,
		SuccessCount:    s.SuccessCount,
		FailureCount:    s.FailureCount,
		SkippedCount:    s.SkippedCount,
		CurrentFeedID:   s.CurrentFeedID,
		CancelRequested: s.CancelRequested,
		ErrorMessage:    s.ErrorMessage,
		Outcomes:        outcomes,
	}
}
