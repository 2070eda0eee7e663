package repository

import (
	"database/sql"
	"testing"
	"time"

	"github.com/hitoshi/feedpulse/internal/model"
)

// PostgresFeedRepoはFeedRepositoryインターフェースを満たすことを検証
func TestPostgresFeedRepo_ImplementsInterface(t *testing.T) {
	var _ FeedRepository = (*PostgresFeedRepo)(nil)
}

// NewPostgresFeedRepoが正しく初期化されることを検証
func TestNewPostgresFeedRepo_Initializes(t *testing.T) {
	repo := NewPostgresFeedRepo(nil)
	if repo == nil {
		t.Fatal("expected non-nil repo")
	}
}

// Feedモデルのフィールドが正しく構築されることを検証
func TestPostgresFeedRepo_FeedModel_Fields(t *testing.T) {
	now := time.Now()
	feed := &model.Feed{
		ID:          "feed-id-1",
		FeedURL:     "https://example.com/feed.xml",
		SiteURL:     "https://example.com",
		Title:       "テストフィード",
		Active:      true,
		HealthScore: 1.0,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if feed.ID != "feed-id-1" {
		t.Errorf("feed.ID = %q, want %q", feed.ID, "feed-id-1")
	}
	if feed.FeedURL != "https://example.com/feed.xml" {
		t.Errorf("feed.FeedURL = %q, want %q", feed.FeedURL, "https://example.com/feed.xml")
	}
	if !feed.Active {
		t.Error("feed.Active = false, want true")
	}
	if feed.HealthScore != 1.0 {
		t.Errorf("feed.HealthScore = %v, want 1.0", feed.HealthScore)
	}
}

// Feedのnil許容フィールドがデフォルトでnilであることを検証
func TestPostgresFeedRepo_FeedModel_NilDefaults(t *testing.T) {
	feed := &model.Feed{
		ID:      "feed-id-2",
		FeedURL: "https://example.com/feed.xml",
		Title:   "テストフィード",
	}

	if feed.TTLOverrideMinutes != nil {
		t.Error("ttl_override_minutes should be nil by default")
	}
	if feed.LastCheckedAt != nil {
		t.Error("last_checked_at should be nil by default")
	}
	if feed.LastSuccessfulRefreshAt != nil {
		t.Error("last_successful_refresh_at should be nil by default")
	}
}

// nullStringが空文字列と非空文字列を正しく変換することを検証
func TestNullString_Conversion(t *testing.T) {
	empty := nullString("")
	if empty.Valid {
		t.Error("nullString(\"\") should be invalid")
	}

	nonEmpty := nullString("value")
	if !nonEmpty.Valid {
		t.Error("nullString(\"value\") should be valid")
	}
	if nonEmpty.String != "value" {
		t.Errorf("nullString(\"value\").String = %q, want %q", nonEmpty.String, "value")
	}
}

// nullStringValueがValid/Invalidの両方を正しく変換することを検証
func TestNullStringValue_Conversion(t *testing.T) {
	valid := nullStringValue(sql.NullString{String: "value", Valid: true})
	if valid != "value" {
		t.Errorf("nullStringValue(valid) = %q, want %q", valid, "value")
	}

	invalid := nullStringValue(sql.NullString{})
	if invalid != "" {
		t.Errorf("nullStringValue(invalid) = %q, want empty string", invalid)
	}
}

// FeedWithUnreadがFeedのフィールドを埋め込みで継承することを検証
func TestFeedWithUnread_Embedding(t *testing.T) {
	fw := FeedWithUnread{
		Feed: model.Feed{
			ID:    "feed-id-3",
			Title: "埋め込みテスト",
		},
		UnreadCount: 7,
	}

	if fw.ID != "feed-id-3" {
		t.Errorf("fw.ID = %q, want %q", fw.ID, "feed-id-3")
	}
	if fw.UnreadCount != 7 {
		t.Errorf("fw.UnreadCount = %d, want 7", fw.UnreadCount)
	}
}
