package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"

	"github.com/go-chi/chi/v5"

	"chartbot/internal/models"
	"chartbot/internal/observability"
	"chartbot/internal/service"
	"chartbot/internal/state"
	"chartbot/internal/storage"
	"chartbot/internal/tabular"
)

const (
	// SessionHeader carries the session id between requests.
	SessionHeader = "X-Session-ID"
	// MaxFileSize bounds multipart uploads unless configured otherwise.
	MaxFileSize = 32 * 1024 * 1024
)

// HistoryLister reads recorded queries.
type HistoryLister interface {
	List(ctx context.Context, sessionID string, limit int) ([]models.HistoryEntry, error)
}

// PredictorEndpoint is the runtime-configurable predictor address.
type PredictorEndpoint interface {
	Endpoint() (string, string)
	SetEndpoint(baseURL, path string)
}

// ConnectFunc opens a database for table import.
type ConnectFunc func(ctx context.Context, cfg storage.DataSourceConfig) (storage.DataSource, error)

// Handler serves the chartbot HTTP API.
type Handler struct {
	Pipeline    *service.Pipeline
	Sessions    *state.Store
	History     HistoryLister
	Predictor   PredictorEndpoint
	Connect     ConnectFunc
	MaxFileSize int64
	Logger      *observability.Logger

	dbMu      sync.RWMutex // held for reading while a connection is in use
	currentDB storage.DataSource
}

// NewHandler creates a handler. history, predictor and connect may be nil;
// the matching endpoints then report the feature as unavailable.
func NewHandler(pipeline *service.Pipeline, sessions *state.Store, history HistoryLister, predictor PredictorEndpoint, connect ConnectFunc, logger *observability.Logger) *Handler {
	if logger == nil {
		logger = observability.Nop()
	}
	return &Handler{
		Pipeline:    pipeline,
		Sessions:    sessions,
		History:     history,
		Predictor:   predictor,
		Connect:     connect,
		MaxFileSize: MaxFileSize,
		Logger:      logger.WithOperation("api"),
	}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/health", h.HealthCheck)

	r.Route("/api", func(r chi.Router) {
		r.Post("/upload", h.Upload)
		r.Post("/query", h.Query)
		r.Post("/regenerate", h.Regenerate)
		r.Post("/resolve", h.Resolve)
		r.Get("/chart", h.GetChart)
		r.Get("/status", h.GetStatus)
		r.Get("/columns", h.GetColumns)
		r.Get("/queries", h.GetQueries)

		// DB Routes
		r.Post("/db/connect", h.ConnectDB)
		r.Get("/db/tables", h.ListTables)
		r.Post("/db/import", h.ImportTable)
	})

	r.Get("/config/predictor", h.GetPredictorConfig)
	r.Post("/config/predictor", h.SavePredictorConfig)
}

// Close releases the active database connection.
func (h *Handler) Close() error {
	h.dbMu.Lock()
	defer h.dbMu.Unlock()
	if h.currentDB == nil {
		return nil
	}
	err := h.currentDB.Close()
	h.currentDB = nil
	return err
}

// ============================================================================
// Health
// ============================================================================

func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	w.Write([]byte("OK"))
}

// ============================================================================
// Dataset
// ============================================================================

// Upload parses a multipart file into the caller's session. A session is
// created when the request does not name a known one.
func (h *Handler) Upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.MaxFileSize)
	if err := r.ParseMultipartForm(h.MaxFileSize); err != nil {
		writeError(w, http.StatusBadRequest, "File too large or malformed form")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "No file uploaded")
		return
	}
	defer file.Close()

	sess := h.Sessions.GetOrCreate(r.Header.Get(SessionHeader))
	ds, err := h.Pipeline.Upload(r.Context(), sess, header.Filename, file)
	if err != nil {
		h.writePipelineError(w, err)
		return
	}

	w.Header().Set(SessionHeader, sess.ID)
	writeJSON(w, http.StatusOK, uploadResponse(sess.ID, header.Filename, ds))
}

func (h *Handler) GetColumns(w http.ResponseWriter, r *http.Request) {
	sess := h.session(r)
	ds := sess.Dataset()
	if ds == nil {
		h.writePipelineError(w, state.ErrNoDataset)
		return
	}

	kinds := tabular.Classify(ds)
	columns := make([]models.ColumnInfo, len(ds.Columns))
	for i, name := range ds.Columns {
		columns[i] = models.ColumnInfo{Name: name, Kind: string(kinds[i])}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"columns": columns})
}

func (h *Handler) GetStatus(w http.ResponseWriter, r *http.Request) {
	sess := h.session(r)

	resp := models.StatusResponse{
		SessionID:    sess.ID,
		Phase:        string(sess.Phase()),
		Filename:     sess.FileName(),
		CurrentQuery: sess.CurrentQuery(),
		HasChart:     sess.Chart() != nil,
	}
	if ds := sess.Dataset(); ds != nil {
		resp.Loaded = true
		resp.Rows = ds.NumRows()
		resp.Columns = ds.NumColumns()
	}
	if err := sess.LastError(); err != nil {
		resp.LastError = err.Error()
	}
	writeJSON(w, http.StatusOK, resp)
}

// ============================================================================
// Charts
// ============================================================================

func (h *Handler) Query(w http.ResponseWriter, r *http.Request) {
	var req models.QueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}
	if req.Query == "" {
		writeError(w, http.StatusBadRequest, "Query is required")
		return
	}

	chart, err := h.Pipeline.Query(r.Context(), h.session(r), req.Query)
	if err != nil {
		h.writePipelineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, chart)
}

func (h *Handler) Regenerate(w http.ResponseWriter, r *http.Request) {
	chart, err := h.Pipeline.Regenerate(r.Context(), h.session(r))
	if err != nil {
		h.writePipelineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, chart)
}

// Resolve builds a chart from caller-supplied labels without asking the
// predictor.
func (h *Handler) Resolve(w http.ResponseWriter, r *http.Request) {
	var req models.ResolveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}

	intent := models.VisualizationIntent{
		XAxisLabel: req.XAxisLabel,
		YAxisLabel: req.YAxisLabel,
		PlotType:   req.PlotType,
	}
	chart, err := h.Pipeline.ResolveIntent(r.Context(), h.session(r), intent)
	if err != nil {
		h.writePipelineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, chart)
}

func (h *Handler) GetChart(w http.ResponseWriter, r *http.Request) {
	chart := h.session(r).Chart()
	if chart == nil {
		writeError(w, http.StatusNotFound, "No chart available")
		return
	}
	writeJSON(w, http.StatusOK, chart)
}

func (h *Handler) GetQueries(w http.ResponseWriter, r *http.Request) {
	sess := h.session(r)

	resp := map[string]interface{}{
		"current_query": sess.CurrentQuery(),
		"queries":       sess.Queries(),
	}
	if h.History != nil && sess.ID != "" {
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		entries, err := h.History.List(r.Context(), sess.ID, limit)
		if err != nil {
			h.Logger.Error().Err(err).Msg("listing query history failed")
			writeError(w, http.StatusInternalServerError, "Error reading history")
			return
		}
		resp["history"] = entries
	}
	writeJSON(w, http.StatusOK, resp)
}

// ============================================================================
// Database import
// ============================================================================

// ConnectDB establishes a database connection
func (h *Handler) ConnectDB(w http.ResponseWriter, r *http.Request) {
	if h.Connect == nil {
		writeError(w, http.StatusNotImplemented, "Database import is disabled")
		return
	}

	var req models.DBConnectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}

	ds, err := h.Connect(r.Context(), storage.DataSourceConfig{
		Host:     req.Host,
		Port:     req.Port,
		User:     req.User,
		Password: req.Password,
		DBName:   req.DBName,
		SSLMode:  req.SSLMode,
	})
	if err != nil {
		h.Logger.Warn().Err(err).Str("host", req.Host).Msg("database connect failed")
		writeError(w, http.StatusBadGateway, fmt.Sprintf("Failed to connect: %v", err))
		return
	}

	// Waits for imports still reading from the previous connection.
	h.dbMu.Lock()
	if h.currentDB != nil {
		h.currentDB.Close()
	}
	h.currentDB = ds
	h.dbMu.Unlock()

	writeJSON(w, http.StatusOK, map[string]string{"status": "connected"})
}

// ListTables returns tables from connected DB
func (h *Handler) ListTables(w http.ResponseWriter, r *http.Request) {
	db, release := h.acquireDatabase()
	defer release()
	if db == nil {
		writeError(w, http.StatusBadRequest, "No database connection")
		return
	}

	tables, err := db.ListTables(r.Context())
	if err != nil {
		writeError(w, http.StatusBadGateway, fmt.Sprintf("Error listing tables: %v", err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"tables": tables})
}

// ImportTable loads a table into the caller's session as its dataset.
func (h *Handler) ImportTable(w http.ResponseWriter, r *http.Request) {
	db, release := h.acquireDatabase()
	defer release()
	if db == nil {
		writeError(w, http.StatusBadRequest, "No database connection")
		return
	}

	var req models.DBImportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}
	if req.TableName == "" {
		writeError(w, http.StatusBadRequest, "table_name is required")
		return
	}

	sess := h.Sessions.GetOrCreate(r.Header.Get(SessionHeader))
	ds, err := h.Pipeline.Load(r.Context(), sess, req.TableName, func() (*models.Dataset, error) {
		return db.LoadDataset(r.Context(), req.TableName, req.Limit)
	})
	if err != nil {
		h.writePipelineError(w, err)
		return
	}

	w.Header().Set(SessionHeader, sess.ID)
	writeJSON(w, http.StatusOK, uploadResponse(sess.ID, req.TableName, ds))
}

// acquireDatabase returns the active connection and a release func. A
// reconnect waits for every acquired connection to be released before it
// closes the old one.
func (h *Handler) acquireDatabase() (storage.DataSource, func()) {
	h.dbMu.RLock()
	return h.currentDB, h.dbMu.RUnlock
}

// ============================================================================
// Predictor config
// ============================================================================

func (h *Handler) GetPredictorConfig(w http.ResponseWriter, r *http.Request) {
	if h.Predictor == nil {
		writeError(w, http.StatusNotImplemented, "Predictor is not configurable")
		return
	}
	baseURL, path := h.Predictor.Endpoint()
	writeJSON(w, http.StatusOK, models.PredictorConfig{BaseURL: baseURL, Path: path})
}

func (h *Handler) SavePredictorConfig(w http.ResponseWriter, r *http.Request) {
	if h.Predictor == nil {
		writeError(w, http.StatusNotImplemented, "Predictor is not configurable")
		return
	}

	var cfg models.PredictorConfig
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}

	h.Predictor.SetEndpoint(cfg.BaseURL, cfg.Path)
	baseURL, path := h.Predictor.Endpoint()
	h.Logger.Info().Str("base_url", baseURL).Str("path", path).Msg("predictor endpoint updated")

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": "Predictor configuration saved successfully",
		"config":  models.PredictorConfig{BaseURL: baseURL, Path: path},
	})
}

// ============================================================================
// Helpers
// ============================================================================

// session returns the caller's session. Unknown callers get an empty,
// unregistered session so that reads report "nothing loaded".
func (h *Handler) session(r *http.Request) *state.Session {
	if id := r.Header.Get(SessionHeader); id != "" {
		if sess, ok := h.Sessions.Get(id); ok {
			return sess
		}
	}
	return state.NewSession("")
}

func uploadResponse(sessionID, name string, ds *models.Dataset) models.UploadResponse {
	return models.UploadResponse{
		SessionID:   sessionID,
		Message:     fmt.Sprintf("File '%s' uploaded successfully", name),
		Rows:        ds.NumRows(),
		Columns:     ds.NumColumns(),
		ColumnNames: ds.Columns,
	}
}

func (h *Handler) writePipelineError(w http.ResponseWriter, err error) {
	status := StatusFor(err)
	if status >= http.StatusInternalServerError {
		h.Logger.Error().Err(err).Int("status", status).Msg("request failed")
	}

	var parseErr *tabular.ParseError
	if errors.As(err, &parseErr) {
		writeJSON(w, status, map[string]interface{}{
			"error": err.Error(),
			"line":  parseErr.Line,
			"row":   parseErr.Row,
		})
		return
	}
	writeError(w, status, err.Error())
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
