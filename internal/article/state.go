package article

import (
	"context"

	"github.com/hitoshi/feedpulse/internal/model"
	"github.com/hitoshi/feedpulse/internal/repository"
)

// StateService は記事の既読・スター状態の管理サービス。
// 冪等な明示的更新（トグルではない）で状態を変更する。
type StateService struct {
	articleRepo repository.ArticleRepository
}

// NewStateService はStateServiceの新しいインスタンスを生成する。
func NewStateService(articleRepo repository.ArticleRepository) *StateService {
	return &StateService{articleRepo: articleRepo}
}

// UpdateState は記事の既読・スター状態を冪等に更新する。
// nilフィールドは変更せず、既存の値を維持する部分更新を行う。
// 記事が存在しない場合はARTICLE_NOT_FOUNDエラーを返す。
func (s *StateService) UpdateState(
	ctx context.Context,
	articleID string,
	isRead *bool,
	isStarred *bool,
) (*model.Article, error) {
	updated, err := s.articleRepo.UpdateState(ctx, articleID, isRead, isStarred)
	if err != nil {
		return nil, err
	}
	if updated == nil {
		return nil, model.NewArticleNotFoundError(articleID)
	}

	return updated, nil
}
