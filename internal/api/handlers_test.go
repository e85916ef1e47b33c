package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chartbot/internal/models"
	"chartbot/internal/service"
	"chartbot/internal/state"
	"chartbot/internal/storage"
	"chartbot/internal/tabular"
)

type stubPredictor struct {
	intent models.VisualizationIntent
	err    error
}

func (s *stubPredictor) Predict(ctx context.Context, query string) (models.VisualizationIntent, error) {
	return s.intent, s.err
}

type stubEndpoint struct {
	base, path string
}

func (s *stubEndpoint) Endpoint() (string, string) { return s.base, s.path }

func (s *stubEndpoint) SetEndpoint(base, path string) {
	if base != "" {
		s.base = base
	}
	if path != "" {
		s.path = path
	}
}

type stubDataSource struct {
	tables []string
	closed atomic.Bool

	// loading and release, when set, hold LoadDataset open.
	loading chan struct{}
	release chan struct{}
}

func (s *stubDataSource) ListTables(ctx context.Context) ([]string, error) { return s.tables, nil }

func (s *stubDataSource) LoadDataset(ctx context.Context, table string, limit int) (*models.Dataset, error) {
	if s.loading != nil {
		close(s.loading)
		<-s.release
	}
	if s.closed.Load() {
		return nil, errors.New("sql: database is closed")
	}
	return tabular.FromRecords(table, [][]string{{"id", "a", "b"}, {"r1", "1", "2"}})
}

func (s *stubDataSource) Close() error {
	s.closed.Store(true)
	return nil
}

type testServer struct {
	router    chi.Router
	handler   *Handler
	predictor *stubPredictor
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	predictor := &stubPredictor{intent: models.VisualizationIntent{XAxisLabel: "acox 2", YAxisLabel: "kcne4", PlotType: "scater"}}
	pipeline := service.NewPipeline(predictor, service.NewIntentResolver(nil, 0), service.NewChartSpecBuilder(service.NaNExclude), nil, nil)

	history, err := storage.OpenHistory(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { history.Close() })

	h := NewHandler(pipeline, state.NewStore(), history, &stubEndpoint{base: "http://127.0.0.1:5000", path: "/process"}, nil, nil)
	r := chi.NewRouter()
	h.RegisterRoutes(r)
	return &testServer{router: r, handler: h, predictor: predictor}
}

func (s *testServer) do(t *testing.T, method, path, session string, body []byte, contentType string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if session != "" {
		req.Header.Set(SessionHeader, session)
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func (s *testServer) upload(t *testing.T, session, name, content string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", name)
	require.NoError(t, err)
	_, err = fw.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	return s.do(t, http.MethodPost, "/api/upload", session, buf.Bytes(), mw.FormDataContentType())
}

func (s *testServer) uploadGenes(t *testing.T) string {
	t.Helper()
	rec := s.upload(t, "", "genes.csv", "id,ACOX2,KCNE4\nr1,1.5,2.0\nr2,3.0,4.0\n")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp models.UploadResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.SessionID)
	assert.Equal(t, resp.SessionID, rec.Header().Get(SessionHeader))
	assert.Equal(t, 2, resp.Rows)
	assert.Equal(t, []string{"id", "ACOX2", "KCNE4"}, resp.ColumnNames)
	return resp.SessionID
}

func jsonBody(t *testing.T, v interface{}) []byte {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return data
}

func TestHealthCheck(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(t, http.MethodGet, "/health", "", nil, "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())
}

func TestQueryFlow(t *testing.T) {
	s := newTestServer(t)
	session := s.uploadGenes(t)

	rec := s.do(t, http.MethodPost, "/api/query", session, jsonBody(t, models.QueryRequest{Query: "acox2 vs kcne4"}), "application/json")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var chart models.ChartSpec
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &chart))
	assert.Equal(t, "ACOX2", chart.XAxisColumn)
	assert.Equal(t, "KCNE4", chart.YAxisColumn)
	assert.Equal(t, "scatter", chart.PlotType)
	require.Len(t, chart.Points, 2)
	assert.Equal(t, 1.5, chart.Points[0].X)
	assert.Equal(t, 4.0, chart.Points[1].Y)

	rec = s.do(t, http.MethodGet, "/api/chart", session, nil, "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(t, http.MethodGet, "/api/status", session, nil, "")
	var status models.StatusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.True(t, status.Loaded)
	assert.True(t, status.HasChart)
	assert.Equal(t, "genes.csv", status.Filename)
	assert.Equal(t, string(state.PhaseReady), status.Phase)
	assert.Equal(t, "acox2 vs kcne4", status.CurrentQuery)

	rec = s.do(t, http.MethodGet, "/api/queries", session, nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var queries struct {
		CurrentQuery string                `json:"current_query"`
		Queries      []string              `json:"queries"`
		History      []models.HistoryEntry `json:"history"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &queries))
	assert.Equal(t, []string{"acox2 vs kcne4"}, queries.Queries)
}

func TestQueryWithoutUpload(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/api/query", "", jsonBody(t, models.QueryRequest{Query: "x"}), "application/json")
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = s.do(t, http.MethodGet, "/api/status", "", nil, "")
	var status models.StatusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.False(t, status.Loaded)
	assert.Equal(t, state.NoFileName, status.Filename)
}

func TestQueryValidation(t *testing.T) {
	s := newTestServer(t)
	session := s.uploadGenes(t)

	rec := s.do(t, http.MethodPost, "/api/query", session, []byte("{not json"), "application/json")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/query", session, jsonBody(t, models.QueryRequest{}), "application/json")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUploadParseError(t *testing.T) {
	s := newTestServer(t)

	rec := s.upload(t, "", "bad.csv", "id,a,b\nr1,1\n")
	require.Equal(t, http.StatusBadRequest, rec.Code)

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.EqualValues(t, 2, resp["line"])
	assert.EqualValues(t, 1, resp["row"])
	assert.Contains(t, resp["error"], "parse error")
}

func TestUploadCorruptWorkbook(t *testing.T) {
	s := newTestServer(t)

	rec := s.upload(t, "", "genes.xlsx", "gene,Liver\ng1,1\n")
	require.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Contains(t, resp["error"], "not a readable workbook")
}

func TestPredictorFailureIsBadGateway(t *testing.T) {
	s := newTestServer(t)
	session := s.uploadGenes(t)
	s.predictor.err = errors.New("connection refused")

	rec := s.do(t, http.MethodPost, "/api/query", session, jsonBody(t, models.QueryRequest{Query: "q"}), "application/json")
	assert.Equal(t, http.StatusBadGateway, rec.Code)

	rec = s.do(t, http.MethodGet, "/api/chart", session, nil, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestResolveAndColumns(t *testing.T) {
	s := newTestServer(t)
	session := s.uploadGenes(t)

	rec := s.do(t, http.MethodPost, "/api/resolve", session,
		jsonBody(t, models.ResolveRequest{XAxisLabel: "kcne4", YAxisLabel: "ACOX (2)", PlotType: "bar"}), "application/json")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var chart models.ChartSpec
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &chart))
	assert.Equal(t, "KCNE4 vs ACOX2", chart.Label)

	rec = s.do(t, http.MethodPost, "/api/resolve", session,
		jsonBody(t, models.ResolveRequest{XAxisLabel: "id", YAxisLabel: "kcne4", PlotType: "bar"}), "application/json")
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = s.do(t, http.MethodGet, "/api/columns", session, nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var cols struct {
		Columns []models.ColumnInfo `json:"columns"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &cols))
	require.Len(t, cols.Columns, 3)
	assert.Equal(t, string(tabular.KindKey), cols.Columns[0].Kind)
	assert.Equal(t, string(tabular.KindNumeric), cols.Columns[1].Kind)
}

func TestRegenerate(t *testing.T) {
	s := newTestServer(t)
	session := s.uploadGenes(t)

	rec := s.do(t, http.MethodPost, "/api/regenerate", session, nil, "")
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/query", session, jsonBody(t, models.QueryRequest{Query: "q"}), "application/json")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/regenerate", session, nil, "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestPredictorConfig(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodGet, "/config/predictor", "", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var cfg models.PredictorConfig
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &cfg))
	assert.Equal(t, "http://127.0.0.1:5000", cfg.BaseURL)

	rec = s.do(t, http.MethodPost, "/config/predictor", "", jsonBody(t, models.PredictorConfig{BaseURL: "http://predictor:9000"}), "application/json")
	require.Equal(t, http.StatusOK, rec.Code)

	base, path := s.handler.Predictor.Endpoint()
	assert.Equal(t, "http://predictor:9000", base)
	assert.Equal(t, "/process", path)
}

func TestDatabaseImport(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/api/db/connect", "", jsonBody(t, models.DBConnectRequest{Host: "db"}), "application/json")
	assert.Equal(t, http.StatusNotImplemented, rec.Code)

	rec = s.do(t, http.MethodGet, "/api/db/tables", "", nil, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	first := &stubDataSource{tables: []string{"genes"}}
	second := &stubDataSource{tables: []string{"genes", "samples"}}
	sources := []*stubDataSource{first, second}
	s.handler.Connect = func(ctx context.Context, cfg storage.DataSourceConfig) (storage.DataSource, error) {
		if cfg.Host != "db" {
			return nil, fmt.Errorf("unknown host %s", cfg.Host)
		}
		ds := sources[0]
		sources = sources[1:]
		return ds, nil
	}

	rec = s.do(t, http.MethodPost, "/api/db/connect", "", jsonBody(t, models.DBConnectRequest{Host: "elsewhere"}), "application/json")
	assert.Equal(t, http.StatusBadGateway, rec.Code)

	for i := 0; i < 2; i++ {
		rec = s.do(t, http.MethodPost, "/api/db/connect", "", jsonBody(t, models.DBConnectRequest{Host: "db"}), "application/json")
		require.Equal(t, http.StatusOK, rec.Code)
	}
	assert.True(t, first.closed.Load(), "previous connection is closed on reconnect")

	rec = s.do(t, http.MethodGet, "/api/db/tables", "", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "samples"))

	rec = s.do(t, http.MethodPost, "/api/db/import", "", jsonBody(t, models.DBImportRequest{TableName: "genes"}), "application/json")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	session := rec.Header().Get(SessionHeader)
	require.NotEmpty(t, session)

	rec = s.do(t, http.MethodPost, "/api/resolve", session,
		jsonBody(t, models.ResolveRequest{XAxisLabel: "a", YAxisLabel: "b", PlotType: "line"}), "application/json")
	assert.Equal(t, http.StatusOK, rec.Code)

	require.NoError(t, s.handler.Close())
	assert.True(t, second.closed.Load())
}

func TestReconnectWaitsForRunningImport(t *testing.T) {
	s := newTestServer(t)

	first := &stubDataSource{loading: make(chan struct{}), release: make(chan struct{})}
	second := &stubDataSource{}
	sources := []*stubDataSource{first, second}
	s.handler.Connect = func(ctx context.Context, cfg storage.DataSourceConfig) (storage.DataSource, error) {
		ds := sources[0]
		sources = sources[1:]
		return ds, nil
	}
	connect := func() *httptest.ResponseRecorder {
		return s.do(t, http.MethodPost, "/api/db/connect", "", jsonBody(t, models.DBConnectRequest{Host: "db"}), "application/json")
	}
	require.Equal(t, http.StatusOK, connect().Code)

	imported := make(chan *httptest.ResponseRecorder, 1)
	go func() {
		imported <- s.do(t, http.MethodPost, "/api/db/import", "", jsonBody(t, models.DBImportRequest{TableName: "genes"}), "application/json")
	}()
	<-first.loading

	reconnected := make(chan int, 1)
	go func() { reconnected <- connect().Code }()

	time.Sleep(20 * time.Millisecond)
	assert.False(t, first.closed.Load(), "connection closed while an import was reading from it")

	close(first.release)
	rec := <-imported
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	select {
	case code := <-reconnected:
		assert.Equal(t, http.StatusOK, code)
	case <-time.After(2 * time.Second):
		t.Fatal("reconnect did not finish")
	}
	assert.True(t, first.closed.Load())
	assert.False(t, second.closed.Load())
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected int
	}{
		{"nil", nil, http.StatusOK},
		{"parse", &tabular.ParseError{Line: 2, Reason: "x"}, http.StatusBadRequest},
		{"no dataset", state.ErrNoDataset, http.StatusConflict},
		{"stale", state.ErrStaleRun, http.StatusConflict},
		{"key column", &service.AxisError{Axis: "x", Column: "id", Err: service.ErrKeyColumnAxis}, http.StatusUnprocessableEntity},
		{"axis missing", &service.AxisError{Axis: "x", Column: "q", Err: service.ErrAxisNotFound}, http.StatusInternalServerError},
		{"no candidates", fmt.Errorf("resolve x axis: %w", service.ErrNoCandidates), http.StatusInternalServerError},
		{"prediction", fmt.Errorf("%w: boom", service.ErrPrediction), http.StatusBadGateway},
		{"unknown", errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, StatusFor(tc.err))
		})
	}
}
