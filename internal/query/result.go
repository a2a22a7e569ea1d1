package query

import (
	"errors"
	"fmt"
)

// QueryTypeError is reported in-band when the store rejects a statement.
const QueryTypeError = "ERROR"

// ResultHeader is the synthetic column used for WRITE, SCHEMA and UNKNOWN
// statements.
const ResultHeader = "Result"

// Result is the uniform response shape for every statement. It is built
// once per execution and not modified afterwards.
type Result struct {
	Success   bool       `json:"success"`
	QueryType string     `json:"queryType"`
	Category  Category   `json:"-"`
	Headers   []string   `json:"headers"`
	Rows      [][]string `json:"rows"`
	RowCount  int64      `json:"rowCount"`
	Message   string     `json:"message"`
	SQLState  string     `json:"sqlState,omitempty"`
}

// ErrStoreUnavailable means the statement never reached a healthy store
// connection. It is a server-side condition, not a property of the SQL.
var ErrStoreUnavailable = errors.New("query store unavailable")

// QueryError carries the store's own rejection of a statement: syntax
// errors, missing relations, constraint violations, timeouts.
type QueryError struct {
	Message  string
	SQLState string
}

func (e *QueryError) Error() string {
	if e.SQLState == "" {
		return e.Message
	}
	return fmt.Sprintf("%s (SQLSTATE %s)", e.Message, e.SQLState)
}

// ErrorResult renders err as an in-band failure payload.
func ErrorResult(err *QueryError) *Result {
	return &Result{
		Success:   false,
		QueryType: QueryTypeError,
		Headers:   []string{},
		Rows:      [][]string{},
		Message:   err.Message,
		SQLState:  err.SQLState,
	}
}

func singleCellResult(stmt Statement, rowCount int64, message string) *Result {
	return &Result{
		Success:   true,
		QueryType: stmt.Keyword,
		Category:  stmt.Category,
		Headers:   []string{ResultHeader},
		Rows:      [][]string{{message}},
		RowCount:  rowCount,
		Message:   message,
	}
}
