package models

import "time"

// QueryLog records the outcome of one /query/execute call
type QueryLog struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	Timestamp  time.Time `gorm:"index" json:"timestamp"`
	ClientKey  string    `gorm:"index" json:"client_key"`
	Subject    string    `gorm:"index" json:"subject,omitempty"`
	QueryType  string    `gorm:"index" json:"query_type"`
	Success    bool      `json:"success"`
	RowCount   int       `json:"row_count"`
	DurationMs int       `json:"duration_ms"`
	SQLState   string    `json:"sql_state,omitempty"`
	Query      string    `gorm:"type:text" json:"query"`
}

func (QueryLog) TableName() string {
	return "query_logs"
}
