package service

import (
	"context"
	"errors"
	"time"

	"github.com/aman-churiwal/leetquery/internal/metrics"
	"github.com/aman-churiwal/leetquery/internal/models"
	"github.com/aman-churiwal/leetquery/internal/query"
	"github.com/aman-churiwal/leetquery/internal/validation"
	"github.com/rs/zerolog/log"
)

// Executor runs one end-user statement
type Executor interface {
	Execute(ctx context.Context, raw string) (*query.Result, error)
}

// QueryRecorder receives one audit record per execution
type QueryRecorder interface {
	Record(entry models.QueryLog)
}

type QueryService struct {
	executor     Executor
	recorder     QueryRecorder
	maxLength    int
	storedLength int
	now          func() time.Time
}

type QueryServiceOptions struct {
	MaxLength         int
	StoredQueryLength int
}

func NewQueryService(executor Executor, recorder QueryRecorder, opts QueryServiceOptions) *QueryService {
	if opts.MaxLength <= 0 {
		opts.MaxLength = 50000
	}
	if opts.StoredQueryLength <= 0 {
		opts.StoredQueryLength = 2000
	}

	return &QueryService{
		executor:     executor,
		recorder:     recorder,
		maxLength:    opts.MaxLength,
		storedLength: opts.StoredQueryLength,
		now:          time.Now,
	}
}

// Caller identifies who submitted a statement for the audit trail
type Caller struct {
	ClientKey string
	Subject   string
}

// Execute validates the request shape and runs raw. Store rejections come
// back as a successful call carrying a success:false result. The returned
// error is a *validation.Error, the caller's context error, or a store
// availability failure.
func (s *QueryService) Execute(ctx context.Context, caller Caller, raw string) (*query.Result, error) {
	if err := validation.NotBlank(raw, "query"); err != nil {
		return nil, err
	}
	if err := validation.Length(raw, 1, s.maxLength, "query"); err != nil {
		return nil, err
	}

	stmt := query.Classify(raw)
	start := s.now()

	result, err := s.executor.Execute(ctx, raw)
	elapsed := s.now().Sub(start)

	var qe *query.QueryError
	switch {
	case err == nil:
		metrics.RecordQueryExecution(result.QueryType, stmt.Category.String(), "success", elapsed)
	case errors.As(err, &qe):
		result = query.ErrorResult(qe)
		err = nil
		metrics.RecordQueryExecution(stmt.Keyword, stmt.Category.String(), "rejected", elapsed)
		log.Debug().Str("sql_state", qe.SQLState).Str("query_type", stmt.Keyword).Msg("statement rejected by store")
	default:
		metrics.RecordQueryExecution(stmt.Keyword, stmt.Category.String(), "failed", elapsed)
	}

	s.record(caller, raw, result, err, start, elapsed)

	return result, err
}

func (s *QueryService) record(caller Caller, raw string, result *query.Result, err error, start time.Time, elapsed time.Duration) {
	if s.recorder == nil {
		return
	}

	entry := models.QueryLog{
		Timestamp:  start.UTC(),
		ClientKey:  caller.ClientKey,
		Subject:    caller.Subject,
		DurationMs: int(elapsed.Milliseconds()),
		Query:      truncate(raw, s.storedLength),
	}

	switch {
	case result != nil:
		entry.QueryType = result.QueryType
		entry.Success = result.Success
		entry.RowCount = int(result.RowCount)
		entry.SQLState = result.SQLState
	case errors.Is(err, query.ErrStoreUnavailable):
		entry.QueryType = "UNAVAILABLE"
	default:
		entry.QueryType = "CANCELED"
	}

	s.recorder.Record(entry)
}

func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max])
}
