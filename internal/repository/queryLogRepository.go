package repository

import (
	"context"
	"time"

	"github.com/aman-churiwal/leetquery/internal/models"
	"github.com/aman-churiwal/leetquery/internal/storage"
)

type QueryLogRepository struct {
	db *storage.Postgres
}

func NewQueryLogRepository(db *storage.Postgres) *QueryLogRepository {
	return &QueryLogRepository{db: db}
}

// Inserts multiple query logs (for batch insertion)
func (r *QueryLogRepository) CreateBatch(ctx context.Context, logs []models.QueryLog) error {
	if len(logs) == 0 {
		return nil
	}

	return r.db.DB.WithContext(ctx).Create(&logs).Error
}

// QueryLogFilter narrows FindByTimeRange. Empty fields are ignored.
type QueryLogFilter struct {
	QueryType string
	Subject   string
	Success   *bool
}

// Retrieves logs within a time range, newest first
func (r *QueryLogRepository) FindByTimeRange(ctx context.Context, from, to time.Time, filter QueryLogFilter, limit, offset int) ([]models.QueryLog, error) {
	var logs []models.QueryLog

	q := r.db.DB.WithContext(ctx).
		Where("timestamp BETWEEN ? AND ?", from, to)

	if filter.QueryType != "" {
		q = q.Where("query_type = ?", filter.QueryType)
	}
	if filter.Subject != "" {
		q = q.Where("subject = ?", filter.Subject)
	}
	if filter.Success != nil {
		q = q.Where("success = ?", *filter.Success)
	}

	err := q.Order("timestamp DESC").
		Limit(limit).
		Offset(offset).
		Find(&logs).Error

	return logs, err
}

// Counts logs in a time range
func (r *QueryLogRepository) CountByTimeRange(ctx context.Context, from, to time.Time) (int64, error) {
	var count int64

	err := r.db.DB.WithContext(ctx).
		Model(&models.QueryLog{}).
		Where("timestamp BETWEEN ? AND ?", from, to).
		Count(&count).Error

	return count, err
}

func (r *QueryLogRepository) CountSuccessful(ctx context.Context, from, to time.Time) (int64, error) {
	var count int64

	err := r.db.DB.WithContext(ctx).
		Model(&models.QueryLog{}).
		Where("success = ? AND timestamp BETWEEN ? AND ?", true, from, to).
		Count(&count).Error

	return count, err
}

// Calculates average execution time
func (r *QueryLogRepository) GetAverageDuration(ctx context.Context, from, to time.Time) (float64, error) {
	var avg float64

	err := r.db.DB.WithContext(ctx).
		Model(&models.QueryLog{}).
		Where("timestamp BETWEEN ? AND ?", from, to).
		Select("COALESCE(AVG(duration_ms), 0)").
		Scan(&avg).Error

	return avg, err
}

// Calculates execution time percentile
func (r *QueryLogRepository) GetPercentile(ctx context.Context, from, to time.Time, percentile float64) (int, error) {
	var result float64
	query := `
		SELECT COALESCE(PERCENTILE_CONT(?) WITHIN GROUP (ORDER BY duration_ms), 0)
		FROM query_logs
		WHERE timestamp BETWEEN ? AND ?
	`

	err := r.db.DB.WithContext(ctx).Raw(query, percentile, from, to).Scan(&result).Error
	return int(result), err
}

// Returns statement counts grouped by query type, most frequent first
func (r *QueryLogRepository) CountByQueryType(ctx context.Context, from, to time.Time) (map[string]int64, error) {
	rows, err := r.db.DB.WithContext(ctx).
		Model(&models.QueryLog{}).
		Select("query_type, COUNT(*) as count").
		Where("timestamp BETWEEN ? AND ?", from, to).
		Group("query_type").
		Rows()

	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int64)
	for rows.Next() {
		var queryType string
		var count int64

		if err := rows.Scan(&queryType, &count); err != nil {
			return nil, err
		}
		counts[queryType] = count
	}

	return counts, rows.Err()
}

// Returns the clients that submitted the most statements
func (r *QueryLogRepository) GetTopClients(ctx context.Context, from, to time.Time, limit int) ([]ClientCount, error) {
	var results []ClientCount

	err := r.db.DB.WithContext(ctx).
		Model(&models.QueryLog{}).
		Select("client_key, COUNT(*) as count").
		Where("timestamp BETWEEN ? AND ?", from, to).
		Group("client_key").
		Order("count DESC").
		Limit(limit).
		Scan(&results).Error

	return results, err
}

type ClientCount struct {
	ClientKey string `json:"client_key"`
	Count     int64  `json:"count"`
}

// Deletes logs older than the specified time
func (r *QueryLogRepository) DeleteOldLogs(ctx context.Context, before time.Time) (int64, error) {
	result := r.db.DB.WithContext(ctx).
		Where("timestamp < ?", before).
		Delete(&models.QueryLog{})

	return result.RowsAffected, result.Error
}
