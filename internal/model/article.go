// Package model はドメインモデルを定義する。
package model

import "time"

// Article はフィードから取得した記事を表す。
type Article struct {
	ID              string
	FeedID          string
	GuidOrID        string
	Title           string
	Link            string
	Content         string // サニタイズ済みHTML
	Summary         string // サニタイズ済み
	Author          string
	PublishedAt     *time.Time
	IsDateEstimated bool
	IsRead          bool
	IsStarred       bool
	ReadAt          *time.Time
	StarredAt       *time.Time
	FetchedAt       time.Time
	ContentHash     string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// ArticleFilter は記事一覧のフィルタ種別を表す。
type ArticleFilter string

const (
	// ArticleFilterAll は全記事を表示するフィルタ。
	ArticleFilterAll ArticleFilter = "all"
	// ArticleFilterUnread は未読記事のみを表示するフィルタ。
	ArticleFilterUnread ArticleFilter = "unread"
	// ArticleFilterStarred はスター付き記事のみを表示するフィルタ。
	ArticleFilterStarred ArticleFilter = "starred"
)

// ParsedArticle はフィードパーサーから取得した未保存の記事データを表す。
// フェッチャーがフィードをパースした後、ArticleUpsertServiceに渡される。
type ParsedArticle struct {
	GuidOrID    string
	Title       string
	Link        string
	Content     string // 未サニタイズのHTML
	Summary     string // 未サニタイズ
	Author      string
	PublishedAt *time.Time
}
