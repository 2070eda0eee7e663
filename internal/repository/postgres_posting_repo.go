package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// PostgresPostingHistoryRepo はPostgreSQLを使用した投稿履歴リポジトリ。
type PostgresPostingHistoryRepo struct {
	db *sql.DB
}

// NewPostgresPostingHistoryRepo はPostgresPostingHistoryRepoを生成する。
func NewPostgresPostingHistoryRepo(db *sql.DB) *PostgresPostingHistoryRepo {
	return &PostgresPostingHistoryRepo{db: db}
}

// RecordEvents は投稿イベントを記録する。同一時刻の重複は無視される。
func (r *PostgresPostingHistoryRepo) RecordEvents(ctx context.Context, feedID string, times []time.Time) error {
	if len(times) == 0 {
		return nil
	}

	// フィードあたりの件数は高々数件なので1件ずつINSERTで十分
	for _, t := range times {
		_, err := r.db.ExecContext(ctx,
			`INSERT INTO posting_history (feed_id, posted_at)
			 VALUES ($1, $2)
			 ON CONFLICT (feed_id, posted_at) DO NOTHING`,
			feedID, t,
		)
		if err != nil {
			return fmt.Errorf("投稿イベントの記録に失敗しました: %w", err)
		}
	}

	return nil
}

// ListEventTimes は指定日時以降の投稿時刻を昇順で返す。
func (r *PostgresPostingHistoryRepo) ListEventTimes(ctx context.Context, feedID string, since time.Time) ([]time.Time, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT posted_at FROM posting_history
		 WHERE feed_id = $1 AND posted_at >= $2
		 ORDER BY posted_at ASC`,
		feedID, since,
	)
	if err != nil {
		return nil, fmt.Errorf("投稿履歴の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var times []time.Time
	for rows.Next() {
		var t time.Time
		if err := rows.Scan(&t); err != nil {
			return nil, fmt.Errorf("投稿時刻の読み取りに失敗しました: %w", err)
		}
		times = append(times, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("投稿履歴の走査に失敗しました: %w", err)
	}

	return times, nil
}

// DeleteOlderThan は指定日時より古い投稿イベントを削除し、削除件数を返す。
func (r *PostgresPostingHistoryRepo) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM posting_history WHERE posted_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("投稿履歴の削除に失敗しました: %w", err)
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("削除件数の取得に失敗しました: %w", err)
	}

	return deleted, nil
}

// compile-time interface check
var _ PostingHistoryRepository = (*PostgresPostingHistoryRepo)(nil)
