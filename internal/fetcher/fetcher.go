// Package fetcher はフィードのHTTPフェッチとパースを提供する。
// SSRF防止付きクライアント、ETag/Last-Modifiedによる条件付きGET、
// gofeedによるRSS/Atomパース、種別付きフェッチエラーを含む。
package fetcher

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"

	"github.com/hitoshi/feedpulse/internal/model"
)

// userAgent はフェッチリクエストのUser-Agentヘッダー。
const userAgent = "FeedPulse/1.0 RSS Reader"

// Result はフェッチ成功の結果。
// NotModifiedがtrueの場合（304）、Articlesは空でETag/LastModifiedは従来値を保持する。
type Result struct {
	Articles     []model.ParsedArticle
	Title        string
	SiteURL      string
	ETag         string
	LastModified string
	StatusCode   int
	NotModified  bool
}

// HTTPFetcher はSSRF防止付きHTTPクライアントによるフェッチ実装。
type HTTPFetcher struct {
	guard       Guard
	client      *http.Client
	logger      *slog.Logger
	maxBodySize int64
}

// NewHTTPFetcher はHTTPFetcherを生成する。
// timeoutはリクエスト全体の制限時間、maxBodySizeはレスポンスの最大読み取りバイト数。
func NewHTTPFetcher(guard Guard, timeout time.Duration, maxBodySize int64, logger *slog.Logger) *HTTPFetcher {
	return &HTTPFetcher{
		guard:       guard,
		client:      guard.NewClient(timeout),
		logger:      logger,
		maxBodySize: maxBodySize,
	}
}

// Fetch はフィードをフェッチしてパース済みの記事一覧を返す。
// 失敗時は*FetchErrorを返し、呼び出し側はKindで分岐できる。
// 304応答は新着0件の成功として扱う（NotModified=true）。
func (f *HTTPFetcher) Fetch(ctx context.Context, feed *model.Feed) (*Result, error) {
	if err := f.guard.Validate(feed.FeedURL); err != nil {
		f.logger.Warn("フィードURLの検証に失敗しました",
			slog.String("feed_id", feed.ID),
			slog.String("feed_url", feed.FeedURL),
			slog.String("error", err.Error()),
		)
		return nil, NewBlockedError(err.Error())
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, feed.FeedURL, nil)
	if err != nil {
		return nil, NewUnknownError(err.Error())
	}

	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/rss+xml, application/atom+xml, application/xml, text/xml, */*")

	// 条件付きGET: ETag
	if feed.ETag != "" {
		req.Header.Set("If-None-Match", feed.ETag)
	}
	// 条件付きGET: Last-Modified
	if feed.LastModified != "" {
		req.Header.Set("If-Modified-Since", feed.LastModified)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		fetchErr := ClassifyTransportError(err)
		f.logger.Warn("HTTPリクエストに失敗しました",
			slog.String("feed_id", feed.ID),
			slog.String("feed_url", feed.FeedURL),
			slog.String("kind", string(fetchErr.Kind)),
			slog.String("error", err.Error()),
		)
		return nil, fetchErr
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotModified {
		f.logger.Debug("フィードは未変更です（304）",
			slog.String("feed_id", feed.ID),
			slog.String("feed_url", feed.FeedURL),
		)
		return &Result{
			StatusCode:   resp.StatusCode,
			NotModified:  true,
			ETag:         feed.ETag,
			LastModified: feed.LastModified,
		}, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, NewHTTPStatusError(resp.StatusCode)
	}

	// レスポンスボディを読み込み（最大サイズ制限付き）
	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBodySize))
	if err != nil {
		return nil, ClassifyTransportError(err)
	}

	result := &Result{
		StatusCode:   resp.StatusCode,
		ETag:         feed.ETag,
		LastModified: feed.LastModified,
	}
	if etag := resp.Header.Get("ETag"); etag != "" {
		result.ETag = etag
	}
	if lastMod := resp.Header.Get("Last-Modified"); lastMod != "" {
		result.LastModified = lastMod
	}

	parsedFeed, err := gofeed.NewParser().ParseString(string(body))
	if err != nil {
		f.logger.Warn("フィードのパースに失敗しました",
			slog.String("feed_id", feed.ID),
			slog.String("feed_url", feed.FeedURL),
			slog.String("error", err.Error()),
		)
		return nil, NewParseError(err.Error())
	}

	result.Title = parsedFeed.Title
	result.SiteURL = parsedFeed.Link
	result.Articles = convertItems(parsedFeed.Items)

	f.logger.Debug("フィードのフェッチが完了しました",
		slog.String("feed_id", feed.ID),
		slog.Int("http_status", resp.StatusCode),
		slog.Int("article_count", len(result.Articles)),
	)

	return result, nil
}

// convertItems はgofeedの記事をmodel.ParsedArticleに変換する。
func convertItems(items []*gofeed.Item) []model.ParsedArticle {
	articles := make([]model.ParsedArticle, 0, len(items))

	for _, item := range items {
		if item == nil {
			continue
		}

		parsed := model.ParsedArticle{
			Title:   item.Title,
			Link:    item.Link,
			Content: item.Content,
			Summary: item.Description,
		}

		// GUIDの設定: gofeedはGUIDをitem.GUIDに格納
		if item.GUID != "" {
			parsed.GuidOrID = item.GUID
		}

		// 著者情報
		if item.Author != nil {
			parsed.Author = item.Author.Name
		}
		if parsed.Author == "" && len(item.Authors) > 0 && item.Authors[0] != nil {
			parsed.Author = item.Authors[0].Name
		}

		// 公開日時: published優先、なければupdatedを使用
		if item.PublishedParsed != nil {
			t := *item.PublishedParsed
			parsed.PublishedAt = &t
		} else if item.UpdatedParsed != nil {
			t := *item.UpdatedParsed
			parsed.PublishedAt = &t
		}

		// Contentが空の場合はDescriptionを使用
		if parsed.Content == "" && item.Description != "" {
			parsed.Content = item.Description
		}

		// LinkがなくGUIDがURL形式の場合はGUIDをLinkとして使用
		if parsed.Link == "" && parsed.GuidOrID != "" &&
			(strings.HasPrefix(parsed.GuidOrID, "http://") || strings.HasPrefix(parsed.GuidOrID, "https://")) {
			parsed.Link = parsed.GuidOrID
		}

		articles = append(articles, parsed)
	}

	return articles
}
