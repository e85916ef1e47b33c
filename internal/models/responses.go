package models

import "time"

// UploadResponse is returned after a successful dataset upload
type UploadResponse struct {
	SessionID   string   `json:"session_id"`
	Message     string   `json:"message"`
	Rows        int      `json:"rows"`
	Columns     int      `json:"columns"`
	ColumnNames []string `json:"column_names"`
}

// StatusResponse is returned by /api/status
type StatusResponse struct {
	SessionID    string `json:"session_id"`
	Phase        string `json:"phase"`
	Loaded       bool   `json:"loaded"`
	Filename     string `json:"filename"`
	Rows         int    `json:"rows"`
	Columns      int    `json:"columns"`
	CurrentQuery string `json:"current_query,omitempty"`
	HasChart     bool   `json:"has_chart"`
	LastError    string `json:"last_error,omitempty"`
}

// QueryRequest for /api/query
type QueryRequest struct {
	Query string `json:"query"`
}

// ResolveRequest for /api/resolve
type ResolveRequest struct {
	XAxisLabel string `json:"x_axis_label"`
	YAxisLabel string `json:"y_axis_label"`
	PlotType   string `json:"plot_type"`
}

// ColumnInfo describes one dataset column for /api/columns
type ColumnInfo struct {
	Name string `json:"name"`
	Kind string `json:"kind"`
}

// PredictorConfig for /config/predictor
type PredictorConfig struct {
	BaseURL string `json:"baseUrl"`
	Path    string `json:"path"`
}

// Query outcomes recorded in history.
const (
	HistoryOK    = "ok"
	HistoryStale = "stale"
	HistoryError = "error"
)

// HistoryEntry is one recorded query.
type HistoryEntry struct {
	ID        int64           `json:"id"`
	SessionID string          `json:"session_id"`
	Query     string          `json:"query"`
	Status    string          `json:"status"`
	Error     string          `json:"error,omitempty"`
	Resolved  *ResolvedIntent `json:"resolved,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

// DBConnectRequest for /api/db/connect
type DBConnectRequest struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	DBName   string `json:"dbname"`
	SSLMode  string `json:"sslmode"`
}

// DBImportRequest for /api/db/import
type DBImportRequest struct {
	TableName string `json:"table_name"`
	Limit     int    `json:"limit"`
}
