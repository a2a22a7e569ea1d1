package service

import (
	"context"
	"time"

	"github.com/aman-churiwal/leetquery/internal/models"
	"github.com/aman-churiwal/leetquery/internal/repository"
	"github.com/rs/zerolog/log"
)

type QueryLogStore interface {
	FindByTimeRange(ctx context.Context, from, to time.Time, filter repository.QueryLogFilter, limit, offset int) ([]models.QueryLog, error)
	CountByTimeRange(ctx context.Context, from, to time.Time) (int64, error)
	CountSuccessful(ctx context.Context, from, to time.Time) (int64, error)
	GetAverageDuration(ctx context.Context, from, to time.Time) (float64, error)
	GetPercentile(ctx context.Context, from, to time.Time, percentile float64) (int, error)
	CountByQueryType(ctx context.Context, from, to time.Time) (map[string]int64, error)
	GetTopClients(ctx context.Context, from, to time.Time, limit int) ([]repository.ClientCount, error)
	DeleteOldLogs(ctx context.Context, before time.Time) (int64, error)
}

type QueryAnalyticsService struct {
	repository QueryLogStore
	now        func() time.Time
}

func NewQueryAnalyticsService(repo QueryLogStore) *QueryAnalyticsService {
	return &QueryAnalyticsService{repository: repo, now: time.Now}
}

// Holds query statistics for a time range
type QuerySummary struct {
	TotalQueries  int64                    `json:"total_queries"`
	SuccessRate   float64                  `json:"success_rate"`
	ErrorRate     float64                  `json:"error_rate"`
	AvgDurationMs float64                  `json:"avg_duration_ms"`
	P50DurationMs int                      `json:"p50_duration_ms"`
	P95DurationMs int                      `json:"p95_duration_ms"`
	P99DurationMs int                      `json:"p99_duration_ms"`
	CountsByType  map[string]int64         `json:"counts_by_type"`
	TopClients    []repository.ClientCount `json:"top_clients"`
}

func (s *QueryAnalyticsService) GetSummary(ctx context.Context, from, to time.Time) (*QuerySummary, error) {
	summary := &QuerySummary{
		CountsByType: map[string]int64{},
		TopClients:   []repository.ClientCount{},
	}

	total, err := s.repository.CountByTimeRange(ctx, from, to)
	if err != nil {
		return nil, err
	}
	summary.TotalQueries = total

	if total == 0 {
		return summary, nil
	}

	successful, err := s.repository.CountSuccessful(ctx, from, to)
	if err != nil {
		return nil, err
	}
	summary.SuccessRate = float64(successful) / float64(total) * 100
	summary.ErrorRate = 100 - summary.SuccessRate

	avg, err := s.repository.GetAverageDuration(ctx, from, to)
	if err != nil {
		return nil, err
	}
	summary.AvgDurationMs = avg

	// Percentiles are best effort
	summary.P50DurationMs, _ = s.repository.GetPercentile(ctx, from, to, 0.50)
	summary.P95DurationMs, _ = s.repository.GetPercentile(ctx, from, to, 0.95)
	summary.P99DurationMs, _ = s.repository.GetPercentile(ctx, from, to, 0.99)

	counts, err := s.repository.CountByQueryType(ctx, from, to)
	if err != nil {
		return nil, err
	}
	summary.CountsByType = counts

	top, err := s.repository.GetTopClients(ctx, from, to, 10)
	if err != nil {
		return nil, err
	}
	if top != nil {
		summary.TopClients = top
	}

	return summary, nil
}

func (s *QueryAnalyticsService) GetLogs(ctx context.Context, from, to time.Time, filter repository.QueryLogFilter, limit, offset int) ([]models.QueryLog, error) {
	logs, err := s.repository.FindByTimeRange(ctx, from, to, filter, limit, offset)
	if err != nil {
		return nil, err
	}
	if logs == nil {
		logs = []models.QueryLog{}
	}
	return logs, nil
}

// Deletes logs older than the retention period
func (s *QueryAnalyticsService) CleanupOldLogs(ctx context.Context, retentionDays int) (int64, error) {
	cutOffDate := s.now().AddDate(0, 0, -retentionDays)
	return s.repository.DeleteOldLogs(ctx, cutOffDate)
}

// StartRetention runs CleanupOldLogs every interval until ctx is done
func (s *QueryAnalyticsService) StartRetention(ctx context.Context, retentionDays int, interval time.Duration) {
	if retentionDays <= 0 || interval <= 0 {
		return
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				n, err := s.CleanupOldLogs(ctx, retentionDays)
				if err != nil {
					log.Error().Err(err).Msg("query log retention failed")
					continue
				}
				if n > 0 {
					log.Info().Int64("deleted", n).Msg("old query logs removed")
				}
			}
		}
	}()
}
