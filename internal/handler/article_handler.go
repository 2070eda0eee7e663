package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/feedpulse/internal/model"
)

// defaultArticlesPerPage は記事一覧の1回の取得件数。
const defaultArticlesPerPage = 50

// ArticleListerInterface は記事一覧取得のインターフェース。
type ArticleListerInterface interface {
	// ListByFeed はフィードの記事一覧をpublished_at降順で取得する。
	ListByFeed(ctx context.Context, feedID string, filter model.ArticleFilter, cursor time.Time, limit int) ([]model.Article, error)
}

// ArticleStateInterface は記事状態管理サービスのインターフェース。
type ArticleStateInterface interface {
	// UpdateState は記事の既読・スター状態を冪等に更新する。
	// nilフィールドは変更しない部分更新を行う。
	UpdateState(ctx context.Context, articleID string, isRead *bool, isStarred *bool) (*model.Article, error)
}

// ArticleHandler は記事のHTTPハンドラー。
type ArticleHandler struct {
	lister ArticleListerInterface
	state  ArticleStateInterface
}

// NewArticleHandler はArticleHandlerを生成する。
func NewArticleHandler(lister ArticleListerInterface, state ArticleStateInterface) *ArticleHandler {
	return &ArticleHandler{
		lister: lister,
		state:  state,
	}
}

// articleSummaryResponse は記事一覧の1件分のレスポンス。
type articleSummaryResponse struct {
	ID              string     `json:"id"`
	FeedID          string     `json:"feed_id"`
	Title           string     `json:"title"`
	Link            string     `json:"link"`
	Summary         string     `json:"summary,omitempty"`
	Author          string     `json:"author,omitempty"`
	PublishedAt     *time.Time `json:"published_at,omitempty"`
	IsDateEstimated bool       `json:"is_date_estimated"`
	IsRead          bool       `json:"is_read"`
	IsStarred       bool       `json:"is_starred"`
}

// articleListResponse は記事一覧のレスポンス。
type articleListResponse struct {
	Articles   []articleSummaryResponse `json:"articles"`
	NextCursor string                   `json:"next_cursor,omitempty"`
	HasMore    bool                     `json:"has_more"`
}

// articleStateRequest は記事状態更新リクエストのボディ。
type articleStateRequest struct {
	IsRead    *bool `json:"is_read,omitempty"`
	IsStarred *bool `json:"is_starred,omitempty"`
}

// articleStateResponse は記事状態のレスポンス。
type articleStateResponse struct {
	ArticleID string `json:"article_id"`
	IsRead    bool   `json:"is_read"`
	IsStarred bool   `json:"is_starred"`
}

// ListArticles はフィードの記事一覧を取得する。
// GET /api/feeds/:id/articles?cursor=RFC3339&filter=all|unread|starred
func (h *ArticleHandler) ListArticles(w http.ResponseWriter, r *http.Request) {
	feedID := chi.URLParam(r, "id")

	filter := model.ArticleFilterAll
	if filterStr := r.URL.Query().Get("filter"); filterStr != "" {
		filter = model.ArticleFilter(filterStr)
		if filter != model.ArticleFilterAll && filter != model.ArticleFilterUnread && filter != model.ArticleFilterStarred {
			writeAPIErrorResponse(w, http.StatusBadRequest,
				model.NewInvalidRequestError("filterはall、unread、starredのいずれかを指定してください"))
			return
		}
	}

	var cursor time.Time
	if cursorStr := r.URL.Query().Get("cursor"); cursorStr != "" {
		parsed, err := time.Parse(time.RFC3339, cursorStr)
		if err != nil {
			writeAPIErrorResponse(w, http.StatusBadRequest,
				model.NewInvalidRequestError("cursorはRFC3339形式で指定してください"))
			return
		}
		cursor = parsed
	}

	// 次ページの有無を判定するため1件多く取得する
	articles, err := h.lister.ListByFeed(r.Context(), feedID, filter, cursor, defaultArticlesPerPage+1)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	hasMore := len(articles) > defaultArticlesPerPage
	if hasMore {
		articles = articles[:defaultArticlesPerPage]
	}

	resp := articleListResponse{
		Articles: make([]articleSummaryResponse, len(articles)),
		HasMore:  hasMore,
	}
	for i, a := range articles {
		resp.Articles[i] = articleSummaryResponse{
			ID:              a.ID,
			FeedID:          a.FeedID,
			Title:           a.Title,
			Link:            a.Link,
			Summary:         a.Summary,
			Author:          a.Author,
			PublishedAt:     a.PublishedAt,
			IsDateEstimated: a.IsDateEstimated,
			IsRead:          a.IsRead,
			IsStarred:       a.IsStarred,
		}
	}
	if hasMore && len(articles) > 0 {
		if last := articles[len(articles)-1].PublishedAt; last != nil {
			resp.NextCursor = last.Format(time.RFC3339)
		}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// UpdateArticleState は記事の既読・スター状態を更新する。
// PUT /api/articles/:id/state
func (h *ArticleHandler) UpdateArticleState(w http.ResponseWriter, r *http.Request) {
	articleID := chi.URLParam(r, "id")

	var req articleStateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest,
			model.NewInvalidRequestError("リクエストボディの解析に失敗しました"))
		return
	}

	// is_readとis_starredの両方がnilの場合はバリデーションエラー
	if req.IsRead == nil && req.IsStarred == nil {
		writeAPIErrorResponse(w, http.StatusBadRequest,
			model.NewInvalidRequestError("is_readまたはis_starredのいずれかを指定してください"))
		return
	}

	updated, err := h.state.UpdateState(r.Context(), articleID, req.IsRead, req.IsStarred)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(articleStateResponse{
		ArticleID: updated.ID,
		IsRead:    updated.IsRead,
		IsStarred: updated.IsStarred,
	})
}
