package query

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/aman-churiwal/leetquery/internal/circuitbreaker"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rs/zerolog/log"
)

const (
	nullText = "NULL"

	// query_canceled, reported when the per-query deadline fires before
	// the store answers.
	sqlStateQueryCanceled = "57014"
)

// DB is the part of *sql.DB the executor needs.
type DB interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

type Executor struct {
	db      DB
	timeout time.Duration
	breaker *circuitbreaker.CircuitBreaker
}

type ExecutorOptions struct {
	// Timeout bounds each statement. Zero disables the bound.
	Timeout time.Duration
	Breaker *circuitbreaker.CircuitBreaker
}

func NewExecutor(db DB, opts ExecutorOptions) *Executor {
	return &Executor{
		db:      db,
		timeout: opts.Timeout,
		breaker: opts.Breaker,
	}
}

// IsStoreFailure reports whether err should count against the store's
// circuit breaker.
func IsStoreFailure(err error) bool {
	return errors.Is(err, ErrStoreUnavailable)
}

// Execute runs raw exactly as given and shapes the outcome by its leading
// keyword. It returns a *QueryError when the store rejects the statement,
// an error wrapping ErrStoreUnavailable when the store cannot be reached,
// and the context error when the caller went away.
func (e *Executor) Execute(ctx context.Context, raw string) (*Result, error) {
	stmt := Classify(raw)

	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	var result *Result
	run := func() error {
		var err error
		switch stmt.Category {
		case CategoryRead:
			result, err = e.read(ctx, stmt, raw)
		case CategoryWrite:
			result, err = e.write(ctx, stmt, raw)
		default:
			result, err = e.exec(ctx, stmt, raw)
		}
		if err != nil {
			return e.translate(ctx, err)
		}
		return nil
	}

	var err error
	if e.breaker != nil {
		err = e.breaker.Call(run)
		if errors.Is(err, circuitbreaker.ErrCircuitOpen) {
			err = fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
	} else {
		err = run()
	}

	if err != nil {
		return nil, err
	}
	return result, nil
}

func (e *Executor) read(ctx context.Context, stmt Statement, raw string) (*Result, error) {
	rows, err := e.db.QueryContext(ctx, raw)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	// Type names pick the text form of temporal values; drivers that do
	// not report them leave the names empty.
	typeNames := make([]string, len(columns))
	if types, err := rows.ColumnTypes(); err == nil {
		for i, ct := range types {
			typeNames[i] = strings.ToUpper(ct.DatabaseTypeName())
		}
	}

	values := make([]any, len(columns))
	dest := make([]any, len(columns))
	for i := range values {
		dest[i] = &values[i]
	}

	data := [][]string{}
	for rows.Next() {
		if err := rows.Scan(dest...); err != nil {
			return nil, err
		}

		row := make([]string, len(values))
		for i, v := range values {
			row[i] = render(v, typeNames[i])
		}
		data = append(data, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	n := int64(len(data))
	return &Result{
		Success:   true,
		QueryType: stmt.Keyword,
		Category:  stmt.Category,
		Headers:   uniqueHeaders(columns),
		Rows:      data,
		RowCount:  n,
		Message:   fmt.Sprintf("%d row(s) returned", n),
	}, nil
}

func (e *Executor) write(ctx context.Context, stmt Statement, raw string) (*Result, error) {
	res, err := e.db.ExecContext(ctx, raw)
	if err != nil {
		return nil, err
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}

	return singleCellResult(stmt, affected, fmt.Sprintf("%d row(s) affected", affected)), nil
}

func (e *Executor) exec(ctx context.Context, stmt Statement, raw string) (*Result, error) {
	if _, err := e.db.ExecContext(ctx, raw); err != nil {
		return nil, err
	}

	message := "Query executed successfully"
	if stmt.Category == CategorySchema {
		message = stmt.Keyword + " statement executed successfully"
	}

	return singleCellResult(stmt, 0, message), nil
}

// translate maps a driver error into the executor's error taxonomy.
func (e *Executor) translate(ctx context.Context, err error) error {
	// Drivers report cancellation in their own words; the context is
	// the reliable source.
	switch ctxErr := ctx.Err(); {
	case errors.Is(ctxErr, context.DeadlineExceeded):
		return &QueryError{
			Message:  fmt.Sprintf("ERROR: statement exceeded the %s time limit", e.timeout),
			SQLState: sqlStateQueryCanceled,
		}
	case ctxErr != nil:
		return ctxErr
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		msg := pgErr.Message
		if pgErr.Severity != "" {
			msg = pgErr.Severity + ": " + msg
		}
		return &QueryError{Message: msg, SQLState: pgErr.Code}
	}

	if isConnectionFailure(err) {
		log.Error().Err(err).Msg("query store call failed")
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	// Client-side rejections (argument count, unsupported syntax) are a
	// property of the statement, not of the store.
	return &QueryError{Message: "ERROR: " + err.Error()}
}

// isConnectionFailure reports whether err means the statement never got a
// usable connection. Only these count against the store breaker.
func isConnectionFailure(err error) bool {
	var (
		connectErr *pgconn.ConnectError
		netErr     net.Error
	)

	switch {
	case errors.Is(err, driver.ErrBadConn), errors.Is(err, sql.ErrConnDone):
		return true
	case errors.As(err, &connectErr), errors.As(err, &netErr):
		return true
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
		return true
	case pgconn.SafeToRetry(err), pgconn.Timeout(err):
		return true
	}
	return false
}

// render formats one scanned value. typeName is the column's upper-cased
// database type name, possibly empty.
func render(v any, typeName string) string {
	switch val := v.(type) {
	case nil:
		return nullText
	case []byte:
		return string(val)
	case string:
		return val
	case time.Time:
		switch typeName {
		case "DATE":
			return val.Format("2006-01-02")
		case "TIME", "TIMETZ":
			return val.Format("15:04:05")
		}
		return val.Format("2006-01-02 15:04:05")
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(val), 'f', -1, 32)
	case fmt.Stringer:
		return val.String()
	default:
		return fmt.Sprint(val)
	}
}

// uniqueHeaders suffixes repeated column names ("id", "id_2") so each
// header identifies exactly one column.
func uniqueHeaders(columns []string) []string {
	headers := make([]string, len(columns))
	seen := make(map[string]int, len(columns))
	taken := make(map[string]bool, len(columns))
	for _, c := range columns {
		taken[c] = true
	}

	for i, c := range columns {
		seen[c]++
		if seen[c] == 1 {
			headers[i] = c
			continue
		}

		n := seen[c]
		name := fmt.Sprintf("%s_%d", c, n)
		for taken[name] {
			n++
			name = fmt.Sprintf("%s_%d", c, n)
		}
		seen[c] = n
		taken[name] = true
		headers[i] = name
	}
	return headers
}
