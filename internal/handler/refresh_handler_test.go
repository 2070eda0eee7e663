package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/hitoshi/feedpulse/internal/model"
)

// --- モック定義 ---

// mockRefreshController はRefreshControllerInterfaceのモック実装。
type mockRefreshController struct {
	startSessionFn func(ctx context.Context, feedIDs []string, force bool) (*model.RefreshSession, error)
}

func (m *mockRefreshController) StartSession(ctx context.Context, feedIDs []string, force bool) (*model.RefreshSession, error) {
	if m.startSessionFn != nil {
		return m.startSessionFn(ctx, feedIDs, force)
	}
	return nil, nil
}

// mockSessionStatus はSessionStatusInterfaceのモック実装。
type mockSessionStatus struct {
	getFn           func(sessionID string) (*model.RefreshSession, error)
	requestCancelFn func(sessionID string) error
	deleteFn        func(sessionID string) error
}

func (m *mockSessionStatus) Get(sessionID string) (*model.RefreshSession, error) {
	if m.getFn != nil {
		return m.getFn(sessionID)
	}
	return nil, nil
}

func (m *mockSessionStatus) RequestCancel(sessionID string) error {
	if m.requestCancelFn != nil {
		return m.requestCancelFn(sessionID)
	}
	return nil
}

func (m *mockSessionStatus) Delete(sessionID string) error {
	if m.deleteFn != nil {
		return m.deleteFn(sessionID)
	}
	return nil
}

// --- POST /api/refresh テスト ---

func TestRefreshHandler_StartRefresh_EmptyBody_StartsFullRefresh(t *testing.T) {
	var gotFeedIDs []string
	gotForce := true
	ctrl := &mockRefreshController{
		startSessionFn: func(ctx context.Context, feedIDs []string, force bool) (*model.RefreshSession, error) {
			gotFeedIDs = feedIDs
			gotForce = force
			return &model.RefreshSession{
				ID:         "session-1",
				State:      model.SessionStateRunning,
				StartedAt:  time.Now(),
				TotalCount: 10,
			}, nil
		},
	}

	h := NewRefreshHandler(ctrl, &mockSessionStatus{})

	req := httptest.NewRequest(http.MethodPost, "/api/refresh", nil)
	w := httptest.NewRecorder()

	h.StartRefresh(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusAccepted {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusAccepted)
	}

	if gotFeedIDs != nil {
		t.Errorf("feedIDs = %v, want nil", gotFeedIDs)
	}
	if gotForce {
		t.Error("force = true, want false")
	}

	var result map[string]interface{}
	if err := json.NewDecoder(w.Body).Decode(&result); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if result["id"] != "session-1" {
		t.Errorf("id = %v, want %q", result["id"], "session-1")
	}
	if result["state"] != "running" {
		t.Errorf("state = %v, want %q", result["state"], "running")
	}
	if result["total_count"] != float64(10) {
		t.Errorf("total_count = %v, want 10", result["total_count"])
	}
}

func TestRefreshHandler_StartRefresh_WithFeedIDsAndForce(t *testing.T) {
	var gotFeedIDs []string
	var gotForce bool
	ctrl := &mockRefreshController{
		startSessionFn: func(ctx context.Context, feedIDs []string, force bool) (*model.RefreshSession, error) {
			gotFeedIDs = feedIDs
			gotForce = force
			return &model.RefreshSession{
				ID:         "session-2",
				State:      model.SessionStateRunning,
				StartedAt:  time.Now(),
				TotalCount: 2,
				Force:      force,
			}, nil
		},
	}

	h := NewRefreshHandler(ctrl, &mockSessionStatus{})

	body := `{"feed_ids": ["feed-1", "feed-2"], "force": true}`
	req := httptest.NewRequest(http.MethodPost, "/api/refresh", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	h.StartRefresh(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusAccepted {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusAccepted)
	}

	if len(gotFeedIDs) != 2 || gotFeedIDs[0] != "feed-1" || gotFeedIDs[1] != "feed-2" {
		t.Errorf("feedIDs = %v, want [feed-1 feed-2]", gotFeedIDs)
	}
	if !gotForce {
		t.Error("force = false, want true")
	}
}

func TestRefreshHandler_StartRefresh_InvalidJSON_ReturnsBadRequest(t *testing.T) {
	called := false
	ctrl := &mockRefreshController{
		startSessionFn: func(ctx context.Context, feedIDs []string, force bool) (*model.RefreshSession, error) {
			called = true
			return nil, nil
		},
	}

	h := NewRefreshHandler(ctrl, &mockSessionStatus{})

	body := `{invalid`
	req := httptest.NewRequest(http.MethodPost, "/api/refresh", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	h.StartRefresh(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusBadRequest)
	}
	if called {
		t.Error("expected controller not to be called")
	}
}

func TestRefreshHandler_StartRefresh_InProgress_ReturnsConflict(t *testing.T) {
	ctrl := &mockRefreshController{
		startSessionFn: func(ctx context.Context, feedIDs []string, force bool) (*model.RefreshSession, error) {
			return nil, model.NewRefreshInProgressError("session-running")
		},
	}

	h := NewRefreshHandler(ctrl, &mockSessionStatus{})

	req := httptest.NewRequest(http.MethodPost, "/api/refresh", nil)
	w := httptest.NewRecorder()

	h.StartRefresh(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusConflict)
	}

	errResp := parseAPIErrorResponse(t, w)
	if errResp["code"] != model.ErrCodeRefreshInProgress {
		t.Errorf("code = %q, want %q", errResp["code"], model.ErrCodeRefreshInProgress)
	}
}

// --- GET /api/refresh/sessions/:id テスト ---

func TestRefreshHandler_GetSession_Success(t *testing.T) {
	completedAt := time.Date(2025, 6, 1, 12, 5, 0, 0, time.UTC)
	status := &mockSessionStatus{
		getFn: func(sessionID string) (*model.RefreshSession, error) {
			if sessionID != "session-1" {
				t.Errorf("sessionID = %q, want %q", sessionID, "session-1")
			}
			return &model.RefreshSession{
				ID:             "session-1",
				State:          model.SessionStateCompleted,
				StartedAt:      time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
				CompletedAt:    &completedAt,
				TotalCount:     3,
				CompletedCount: 3,
				SuccessCount:   2,
				FailureCount:   1,
				Outcomes: []model.RefreshOutcome{
					{
						FeedID:      "feed-1",
						FeedTitle:   "Example Feed",
						Status:      model.OutcomeSuccess,
						NewArticles: 5,
						Duration:    1500 * time.Millisecond,
						FinishedAt:  time.Date(2025, 6, 1, 12, 1, 0, 0, time.UTC),
					},
					{
						FeedID:       "feed-2",
						Status:       model.OutcomeFailure,
						ErrorKind:    "timeout",
						ErrorMessage: "context deadline exceeded",
						FinishedAt:   time.Date(2025, 6, 1, 12, 2, 0, 0, time.UTC),
					},
				},
			}, nil
		},
	}

	h := NewRefreshHandler(&mockRefreshController{}, status)

	req := httptest.NewRequest(http.MethodGet, "/api/refresh/sessions/session-1", nil)
	req = withChiURLParam(req, "id", "session-1")
	w := httptest.NewRecorder()

	h.GetSession(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}

	var result map[string]interface{}
	if err := json.NewDecoder(w.Body).Decode(&result); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}

	if result["state"] != "completed" {
		t.Errorf("state = %v, want %q", result["state"], "completed")
	}
	if result["success_count"] != float64(2) {
		t.Errorf("success_count = %v, want 2", result["success_count"])
	}
	if result["failure_count"] != float64(1) {
		t.Errorf("failure_count = %v, want 1", result["failure_count"])
	}

	outcomes, ok := result["outcomes"].([]interface{})
	if !ok {
		t.Fatalf("outcomes = %v, want array", result["outcomes"])
	}
	if len(outcomes) != 2 {
		t.Fatalf("len(outcomes) = %d, want 2", len(outcomes))
	}

	first := outcomes[0].(map[string]interface{})
	if first["feed_id"] != "feed-1" {
		t.Errorf("feed_id = %v, want %q", first["feed_id"], "feed-1")
	}
	if first["status"] != "success" {
		t.Errorf("status = %v, want %q", first["status"], "success")
	}
	if first["new_articles"] != float64(5) {
		t.Errorf("new_articles = %v, want 5", first["new_articles"])
	}
	if first["duration_ms"] != float64(1500) {
		t.Errorf("duration_ms = %v, want 1500", first["duration_ms"])
	}

	second := outcomes[1].(map[string]interface{})
	if second["status"] != "failure" {
		t.Errorf("status = %v, want %q", second["status"], "failure")
	}
	if second["error_kind"] != "timeout" {
		t.Errorf("error_kind = %v, want %q", second["error_kind"], "timeout")
	}
}

func TestRefreshHandler_GetSession_NotFound_ReturnsNotFound(t *testing.T) {
	status := &mockSessionStatus{
		getFn: func(sessionID string) (*model.RefreshSession, error) {
			return nil, model.NewSessionNotFoundError(sessionID)
		},
	}

	h := NewRefreshHandler(&mockRefreshController{}, status)

	req := httptest.NewRequest(http.MethodGet, "/api/refresh/sessions/missing", nil)
	req = withChiURLParam(req, "id", "missing")
	w := httptest.NewRecorder()

	h.GetSession(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusNotFound)
	}

	errResp := parseAPIErrorResponse(t, w)
	if errResp["code"] != model.ErrCodeSessionNotFound {
		t.Errorf("code = %q, want %q", errResp["code"], model.ErrCodeSessionNotFound)
	}
}

// --- POST /api/refresh/sessions/:id/cancel テスト ---

func TestRefreshHandler_CancelSession_ReturnsAccepted(t *testing.T) {
	cancelRequested := false
	status := &mockSessionStatus{
		requestCancelFn: func(sessionID string) error {
			cancelRequested = true
			return nil
		},
		getFn: func(sessionID string) (*model.RefreshSession, error) {
			return &model.RefreshSession{
				ID:              sessionID,
				State:           model.SessionStateRunning,
				StartedAt:       time.Now(),
				CancelRequested: true,
			}, nil
		},
	}

	h := NewRefreshHandler(&mockRefreshController{}, status)

	req := httptest.NewRequest(http.MethodPost, "/api/refresh/sessions/session-1/cancel", nil)
	req = withChiURLParam(req, "id", "session-1")
	w := httptest.NewRecorder()

	h.CancelSession(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusAccepted {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusAccepted)
	}
	if !cancelRequested {
		t.Error("expected RequestCancel to be called")
	}

	var result map[string]interface{}
	if err := json.NewDecoder(w.Body).Decode(&result); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if result["cancel_requested"] != true {
		t.Errorf("cancel_requested = %v, want true", result["cancel_requested"])
	}
}

func TestRefreshHandler_CancelSession_NotFound_ReturnsNotFound(t *testing.T) {
	status := &mockSessionStatus{
		requestCancelFn: func(sessionID string) error {
			return model.NewSessionNotFoundError(sessionID)
		},
	}

	h := NewRefreshHandler(&mockRefreshController{}, status)

	req := httptest.NewRequest(http.MethodPost, "/api/refresh/sessions/missing/cancel", nil)
	req = withChiURLParam(req, "id", "missing")
	w := httptest.NewRecorder()

	h.CancelSession(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusNotFound)
	}
}

// --- DELETE /api/refresh/sessions/:id テスト ---

func TestRefreshHandler_DeleteSession_ReturnsNoContent(t *testing.T) {
	deleted := false
	status := &mockSessionStatus{
		deleteFn: func(sessionID string) error {
			deleted = true
			if sessionID != "session-1" {
				t.Errorf("sessionID = %q, want %q", sessionID, "session-1")
			}
			return nil
		},
	}

	h := NewRefreshHandler(&mockRefreshController{}, status)

	req := httptest.NewRequest(http.MethodDelete, "/api/refresh/sessions/session-1", nil)
	req = withChiURLParam(req, "id", "session-1")
	w := httptest.NewRecorder()

	h.DeleteSession(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusNoContent)
	}
	if !deleted {
		t.Error("expected Delete to be called")
	}
	if w.Body.Len() != 0 {
		t.Errorf("body = %q, want empty", w.Body.String())
	}
}

func TestRefreshHandler_DeleteSession_NotFound_ReturnsNotFound(t *testing.T) {
	status := &mockSessionStatus{
		deleteFn: func(sessionID string) error {
			return model.NewSessionNotFoundError(sessionID)
		},
	}

	h := NewRefreshHandler(&mockRefreshController{}, status)

	req := httptest.NewRequest(http.MethodDelete, "/api/refresh/sessions/missing", nil)
	req = withChiURLParam(req, "id", "missing")
	w := httptest.NewRecorder()

	h.DeleteSession(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusNotFound)
	}
}

func TestRefreshHandler_DeleteSession_Running_ReturnsConflict(t *testing.T) {
	status := &mockSessionStatus{
		deleteFn: func(sessionID string) error {
			return model.NewRefreshInProgressError(sessionID)
		},
	}

	h := NewRefreshHandler(&mockRefreshController{}, status)

	req := httptest.NewRequest(http.MethodDelete, "/api/refresh/sessions/session-1", nil)
	req = withChiURLParam(req, "id", "session-1")
	w := httptest.NewRecorder()

	h.DeleteSession(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusConflict)
	}
}
