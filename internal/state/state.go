// Package state owns per-user pipeline state. A Session replaces the old
// process-wide AppState: it holds the current dataset and chart and tags
// every pipeline run with an increasing id so that a slow run can never
// overwrite the result of a newer one.
package state

import (
	"errors"
	"sync"
	"time"

	"chartbot/internal/models"
)

// NoFileName is reported before the first upload.
const NoFileName = "No File Uploaded"

var (
	// ErrNoDataset is returned when a query arrives before any upload.
	ErrNoDataset = errors.New("no dataset loaded")
	// ErrNoQuery is returned when regenerating without a previous query.
	ErrNoQuery = errors.New("no query to regenerate")
	// ErrStaleRun is returned when a newer run started after this one.
	ErrStaleRun = errors.New("run superseded by a newer run")
)

// Phase is the pipeline state of a session.
type Phase string

const (
	PhaseIdle      Phase = "idle"
	PhaseParsing   Phase = "parsing"
	PhaseResolving Phase = "resolving"
	PhaseBuilding  Phase = "building"
	PhaseReady     Phase = "ready"
)

// Session holds the dataset and chart of one user. Values handed out are
// never mutated afterwards; updates replace them whole.
type Session struct {
	ID string

	mu        sync.RWMutex
	dataset   *models.Dataset
	fileName  string
	chart     *models.ChartSpec
	queries   []string
	phase     Phase
	run       uint64
	lastErr   error
	updatedAt time.Time
}

// NewSession creates an idle session.
func NewSession(id string) *Session {
	return &Session{
		ID:        id,
		fileName:  NoFileName,
		phase:     PhaseIdle,
		updatedAt: time.Now(),
	}
}

// BeginUpload starts a parse run. Any in-flight run becomes stale.
func (s *Session) BeginUpload() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.run++
	s.phase = PhaseParsing
	s.lastErr = nil
	s.touch()
	return s.run
}

// PublishDataset installs a parsed dataset and drops the current chart.
func (s *Session) PublishDataset(run uint64, fileName string, ds *models.Dataset) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if run != s.run {
		return ErrStaleRun
	}
	s.dataset = ds
	s.fileName = fileName
	s.chart = nil
	s.phase = PhaseIdle
	s.touch()
	return nil
}

// BeginQuery starts a resolve run against the current dataset. A non-empty
// query becomes the current query. The chart of the previous run is
// discarded, and an upload still parsing will fail to publish.
func (s *Session) BeginQuery(query string) (uint64, *models.Dataset, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.dataset == nil {
		return 0, nil, ErrNoDataset
	}
	if query != "" {
		s.queries = append(s.queries, query)
	}
	s.run++
	s.chart = nil
	s.phase = PhaseResolving
	s.lastErr = nil
	s.touch()
	return s.run, s.dataset, nil
}

// BeginRegenerate starts a new run for the current query.
func (s *Session) BeginRegenerate() (uint64, string, *models.Dataset, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.dataset == nil {
		return 0, "", nil, ErrNoDataset
	}
	if len(s.queries) == 0 {
		return 0, "", nil, ErrNoQuery
	}
	s.run++
	s.chart = nil
	s.phase = PhaseResolving
	s.lastErr = nil
	s.touch()
	return s.run, s.queries[len(s.queries)-1], s.dataset, nil
}

// Advance moves the run to phase. It reports false when the run is stale.
func (s *Session) Advance(run uint64, phase Phase) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if run != s.run {
		return false
	}
	s.phase = phase
	s.touch()
	return true
}

// Publish installs chart as the result of run.
func (s *Session) Publish(run uint64, chart *models.ChartSpec) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if run != s.run {
		return ErrStaleRun
	}
	s.chart = chart
	s.phase = PhaseReady
	s.touch()
	return nil
}

// Fail ends run with err and returns the session to idle. Failures of
// stale runs are ignored.
func (s *Session) Fail(run uint64, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if run != s.run {
		return
	}
	s.phase = PhaseIdle
	s.lastErr = err
	s.touch()
}

// Dataset returns the current dataset, or nil.
func (s *Session) Dataset() *models.Dataset {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dataset
}

// Chart returns the current chart, or nil.
func (s *Session) Chart() *models.ChartSpec {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.chart
}

// FileName returns the name of the current upload.
func (s *Session) FileName() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.fileName
}

// Phase returns the pipeline phase.
func (s *Session) Phase() Phase {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.phase
}

// Queries returns a copy of the submitted queries, oldest first.
func (s *Session) Queries() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.queries...)
}

// CurrentQuery returns the latest query or "".
func (s *Session) CurrentQuery() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.queries) == 0 {
		return ""
	}
	return s.queries[len(s.queries)-1]
}

// LastError returns the error of the latest failed run.
func (s *Session) LastError() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastErr
}

// UpdatedAt returns the time of the last state change.
func (s *Session) UpdatedAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.updatedAt
}

func (s *Session) touch() {
	s.updatedAt = time.Now()
}
