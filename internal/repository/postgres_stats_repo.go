package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/hitoshi/feedpulse/internal/model"
)

// statsColumns はfeed_statisticsテーブルのSELECT対象カラム。
const statsColumns = `feed_id, total_articles_fetched, total_articles_read,
	       total_articles_starred, articles_last_7_days, articles_last_30_days,
	       avg_articles_per_day, avg_publish_gap_hours, read_rate,
	       calculated_ttl_minutes, ttl_calculation_reason, last_calculated_at`

// PostgresStatisticsRepo はPostgreSQLを使用したフィード統計リポジトリ。
type PostgresStatisticsRepo struct {
	db *sql.DB
}

// NewPostgresStatisticsRepo はPostgresStatisticsRepoを生成する。
func NewPostgresStatisticsRepo(db *sql.DB) *PostgresStatisticsRepo {
	return &PostgresStatisticsRepo{db: db}
}

// scanStatistics は1行分のフィード統計を読み取る。
func scanStatistics(s rowScanner) (*model.FeedStatistics, error) {
	stats := &model.FeedStatistics{}
	var avgGapHours, readRate sql.NullFloat64

	if err := s.Scan(
		&stats.FeedID, &stats.TotalArticlesFetched, &stats.TotalArticlesRead,
		&stats.TotalArticlesStarred, &stats.ArticlesLast7Days, &stats.ArticlesLast30Days,
		&stats.AvgArticlesPerDay, &avgGapHours, &readRate,
		&stats.CalculatedTTLMinutes, &stats.TTLCalculationReason, &stats.LastCalculatedAt,
	); err != nil {
		return nil, err
	}

	if avgGapHours.Valid {
		stats.AvgPublishGapHours = &avgGapHours.Float64
	}
	if readRate.Valid {
		stats.ReadRate = &readRate.Float64
	}

	return stats, nil
}

// Get は指定フィードの統計を取得する。未計算の場合はnilを返す。
func (r *PostgresStatisticsRepo) Get(ctx context.Context, feedID string) (*model.FeedStatistics, error) {
	stats, err := scanStatistics(r.db.QueryRowContext(ctx,
		`SELECT `+statsColumns+` FROM feed_statistics WHERE feed_id = $1`, feedID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("フィード統計の取得に失敗しました: %w", err)
	}
	return stats, nil
}

// GetByFeedIDs は複数フィードの統計をまとめて取得する。
// 統計が存在しないフィードはマップに含まれない。
func (r *PostgresStatisticsRepo) GetByFeedIDs(ctx context.Context, feedIDs []string) (map[string]*model.FeedStatistics, error) {
	result := make(map[string]*model.FeedStatistics)
	if len(feedIDs) == 0 {
		return result, nil
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT `+statsColumns+` FROM feed_statistics WHERE feed_id = ANY($1)`,
		pq.Array(feedIDs))
	if err != nil {
		return nil, fmt.Errorf("フィード統計一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		stats, err := scanStatistics(rows)
		if err != nil {
			return nil, fmt.Errorf("フィード統計行の読み取りに失敗しました: %w", err)
		}
		result[stats.FeedID] = stats
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("フィード統計一覧の走査に失敗しました: %w", err)
	}

	return result, nil
}

// Upsert はフィード統計を保存する。既存行があれば全項目を上書きする。
func (r *PostgresStatisticsRepo) Upsert(ctx context.Context, stats *model.FeedStatistics) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO feed_statistics (feed_id, total_articles_fetched, total_articles_read,
		                              total_articles_starred, articles_last_7_days,
		                              articles_last_30_days, avg_articles_per_day,
		                              avg_publish_gap_hours, read_rate,
		                              calculated_ttl_minutes, ttl_calculation_reason,
		                              last_calculated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		 ON CONFLICT (feed_id) DO UPDATE SET
		    total_articles_fetched = EXCLUDED.total_articles_fetched,
		    total_articles_read = EXCLUDED.total_articles_read,
		    total_articles_starred = EXCLUDED.total_articles_starred,
		    articles_last_7_days = EXCLUDED.articles_last_7_days,
		    articles_last_30_days = EXCLUDED.articles_last_30_days,
		    avg_articles_per_day = EXCLUDED.avg_articles_per_day,
		    avg_publish_gap_hours = EXCLUDED.avg_publish_gap_hours,
		    read_rate = EXCLUDED.read_rate,
		    calculated_ttl_minutes = EXCLUDED.calculated_ttl_minutes,
		    ttl_calculation_reason = EXCLUDED.ttl_calculation_reason,
		    last_calculated_at = EXCLUDED.last_calculated_at`,
		stats.FeedID, stats.TotalArticlesFetched, stats.TotalArticlesRead,
		stats.TotalArticlesStarred, stats.ArticlesLast7Days, stats.ArticlesLast30Days,
		stats.AvgArticlesPerDay, stats.AvgPublishGapHours, stats.ReadRate,
		stats.CalculatedTTLMinutes, stats.TTLCalculationReason, stats.LastCalculatedAt,
	)
	if err != nil {
		return fmt.Errorf("フィード統計の保存に失敗しました: %w", err)
	}
	return nil
}

// ListStaleFeedIDs は統計が未計算、または指定日時より古いactiveなフィードのIDを返す。
func (r *PostgresStatisticsRepo) ListStaleFeedIDs(ctx context.Context, olderThan time.Time, limit int) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT f.id
		 FROM feeds f
		 LEFT JOIN feed_statistics s ON s.feed_id = f.id
		 WHERE f.active = TRUE
		   AND (s.feed_id IS NULL OR s.last_calculated_at < $1)
		 ORDER BY s.last_calculated_at ASC NULLS FIRST
		 LIMIT $2`,
		olderThan, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("統計が古いフィードの取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("フィードIDの読み取りに失敗しました: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("統計が古いフィードの走査に失敗しました: %w", err)
	}

	return ids, nil
}

// compile-time interface check
var _ StatisticsRepository = (*PostgresStatisticsRepo)(nil)
