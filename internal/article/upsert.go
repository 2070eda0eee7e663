package article

import (
	"context"
	"crypto/sha256"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/feedpulse/internal/model"
	"github.com/hitoshi/feedpulse/internal/repository"
)

// UpsertResult は記事アップサート処理の結果。
// NewPostingTimesは新規記事の公開時刻で、投稿履歴の記録に使用される。
// 既存記事の更新は新しい投稿イベントではないため含まれない。
type UpsertResult struct {
	Inserted        int
	Updated         int
	NewPostingTimes []time.Time
}

// UpsertService は記事の同一性判定とアップサート処理を提供する。
// 3段階の同一性判定ロジックにより、重複登録を防ぎつつ既存記事の上書き更新を行う。
type UpsertService struct {
	articleRepo repository.ArticleRepository
	sanitizer   Sanitizer
}

// NewUpsertService はUpsertServiceの新しいインスタンスを生成する。
func NewUpsertService(articleRepo repository.ArticleRepository, sanitizer Sanitizer) *UpsertService {
	return &UpsertService{
		articleRepo: articleRepo,
		sanitizer:   sanitizer,
	}
}

// Upsert はフィードから取得した記事をアップサートする。
// 3段階の同一性判定ロジック:
//  1. (feed_id, guid_or_id) - 最優先
//  2. (feed_id, link) - 第2優先
//  3. hash(title + published + summary) - 第3優先
func (s *UpsertService) Upsert(
	ctx context.Context,
	feedID string,
	articles []model.ParsedArticle,
) (*UpsertResult, error) {
	result := &UpsertResult{}
	if len(articles) == 0 {
		return result, nil
	}

	now := time.Now()

	for _, parsed := range articles {
		// コンテンツとサマリーにサニタイズ処理を適用
		sanitizedContent := s.sanitizer.Sanitize(parsed.Content)
		sanitizedSummary := s.sanitizer.Sanitize(parsed.Summary)

		// content_hashを計算（サニタイズ後のサマリーを使用）
		contentHash := computeContentHash(parsed.Title, parsed.PublishedAt, sanitizedSummary)

		// 3段階の同一性判定で既存記事を検索
		existing, findErr := s.findExisting(ctx, feedID, parsed, contentHash)
		if findErr != nil {
			return result, fmt.Errorf("記事の同一性判定に失敗しました: %w", findErr)
		}

		if existing != nil {
			if err := s.updateExisting(ctx, existing, parsed, sanitizedContent, sanitizedSummary, contentHash, now); err != nil {
				return result, fmt.Errorf("記事の更新に失敗しました: %w", err)
			}
			result.Updated++
		} else {
			postedAt, err := s.createNew(ctx, feedID, parsed, sanitizedContent, sanitizedSummary, contentHash, now)
			if err != nil {
				return result, fmt.Errorf("記事の挿入に失敗しました: %w", err)
			}
			result.Inserted++
			result.NewPostingTimes = append(result.NewPostingTimes, postedAt)
		}
	}

	slog.Debug("記事アップサート完了",
		"feed_id", feedID,
		"inserted", result.Inserted,
		"updated", result.Updated,
	)

	return result, nil
}

// findExisting は3段階の同一性判定で既存記事を検索する。
// 優先順位: (feed_id, guid_or_id) > (feed_id, link) > hash(title+published+summary)
func (s *UpsertService) findExisting(
	ctx context.Context,
	feedID string,
	parsed model.ParsedArticle,
	contentHash string,
) (*model.Article, error) {
	// 第1優先: feed_id + guid_or_id
	if parsed.GuidOrID != "" {
		article, err := s.articleRepo.FindByFeedAndGUID(ctx, feedID, parsed.GuidOrID)
		if err != nil {
			return nil, err
		}
		if article != nil {
			return article, nil
		}
	}

	// 第2優先: feed_id + link
	if parsed.Link != "" {
		article, err := s.articleRepo.FindByFeedAndLink(ctx, feedID, parsed.Link)
		if err != nil {
			return nil, err
		}
		if article != nil {
			return article, nil
		}
	}

	// 第3優先: content_hash
	if contentHash != "" {
		article, err := s.articleRepo.FindByContentHash(ctx, feedID, contentHash)
		if err != nil {
			return nil, err
		}
		if article != nil {
			return article, nil
		}
	}

	return nil, nil
}

// updateExisting は既存記事を上書き更新する。既読/スター状態と履歴は保持する。
func (s *UpsertService) updateExisting(
	ctx context.Context,
	existing *model.Article,
	parsed model.ParsedArticle,
	sanitizedContent, sanitizedSummary, contentHash string,
	now time.Time,
) error {
	existing.GuidOrID = parsed.GuidOrID
	existing.Title = parsed.Title
	existing.Link = parsed.Link
	existing.Content = sanitizedContent
	existing.Summary = sanitizedSummary
	existing.Author = parsed.Author
	existing.ContentHash = contentHash
	existing.UpdatedAt = now

	// parsed.PublishedAtがnilの場合は既存の値を維持する
	if parsed.PublishedAt != nil {
		existing.PublishedAt = parsed.PublishedAt
		existing.IsDateEstimated = false
	}

	return s.articleRepo.Update(ctx, existing)
}

// createNew は新規記事を作成し、投稿履歴用の公開時刻を返す。
// published_at未設定の場合はfetched_atを代用し、推定フラグを付与する。
func (s *UpsertService) createNew(
	ctx context.Context,
	feedID string,
	parsed model.ParsedArticle,
	sanitizedContent, sanitizedSummary, contentHash string,
	now time.Time,
) (time.Time, error) {
	article := &model.Article{
		ID:          uuid.New().String(),
		FeedID:      feedID,
		GuidOrID:    parsed.GuidOrID,
		Title:       parsed.Title,
		Link:        parsed.Link,
		Content:     sanitizedContent,
		Summary:     sanitizedSummary,
		Author:      parsed.Author,
		ContentHash: contentHash,
		FetchedAt:   now,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if parsed.PublishedAt != nil {
		article.PublishedAt = parsed.PublishedAt
		article.IsDateEstimated = false
	} else {
		article.PublishedAt = &now
		article.IsDateEstimated = true
	}

	if err := s.articleRepo.Create(ctx, article); err != nil {
		return time.Time{}, err
	}

	return *article.PublishedAt, nil
}

// computeContentHash はtitle + published + summaryのSHA-256ハッシュを計算する。
// 同一性判定の第3優先手段として使用される。
func computeContentHash(title string, publishedAt *time.Time, summary string) string {
	pubStr := ""
	if publishedAt != nil {
		pubStr = publishedAt.UTC().Format(time.RFC3339)
	}
	data := fmt.Sprintf("%s|%s|%s", title, pubStr, summary)
	hash := sha256.Sum256([]byte(data))
	return fmt.Sprintf("%x", hash)
}
