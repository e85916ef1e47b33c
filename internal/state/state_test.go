package state

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chartbot/internal/models"
)

func testDataset() *models.Dataset {
	return &models.Dataset{
		Columns: []string{"id", "a"},
		Rows:    [][]string{{"r1", "1"}},
	}
}

func TestSession_NewIsIdle(t *testing.T) {
	s := NewSession("s1")
	assert.Equal(t, PhaseIdle, s.Phase())
	assert.Equal(t, NoFileName, s.FileName())
	assert.Nil(t, s.Dataset())
	assert.Nil(t, s.Chart())
	assert.Equal(t, "", s.CurrentQuery())
}

func TestSession_QueryWithoutDataset(t *testing.T) {
	s := NewSession("s1")
	_, _, err := s.BeginQuery("plot a")
	assert.ErrorIs(t, err, ErrNoDataset)
}

func TestSession_FullCycle(t *testing.T) {
	s := NewSession("s1")

	run := s.BeginUpload()
	assert.Equal(t, PhaseParsing, s.Phase())
	require.NoError(t, s.PublishDataset(run, "data.csv", testDataset()))
	assert.Equal(t, PhaseIdle, s.Phase())
	assert.Equal(t, "data.csv", s.FileName())

	run, ds, err := s.BeginQuery("plot a")
	require.NoError(t, err)
	assert.Same(t, s.Dataset(), ds)
	assert.Equal(t, PhaseResolving, s.Phase())

	assert.True(t, s.Advance(run, PhaseBuilding))
	chart := &models.ChartSpec{PlotType: "bar"}
	require.NoError(t, s.Publish(run, chart))
	assert.Equal(t, PhaseReady, s.Phase())
	assert.Same(t, chart, s.Chart())
	assert.Equal(t, []string{"plot a"}, s.Queries())

	// Next query discards the chart.
	_, _, err = s.BeginQuery("plot b")
	require.NoError(t, err)
	assert.Nil(t, s.Chart())
	assert.Equal(t, "plot b", s.CurrentQuery())
}

func TestSession_StaleRunCannotPublish(t *testing.T) {
	s := NewSession("s1")
	require.NoError(t, s.PublishDataset(s.BeginUpload(), "d.csv", testDataset()))

	older, _, err := s.BeginQuery("first")
	require.NoError(t, err)
	newer, _, err := s.BeginQuery("second")
	require.NoError(t, err)

	newChart := &models.ChartSpec{PlotType: "line"}
	require.NoError(t, s.Publish(newer, newChart))

	assert.False(t, s.Advance(older, PhaseBuilding))
	assert.ErrorIs(t, s.Publish(older, &models.ChartSpec{PlotType: "bar"}), ErrStaleRun)
	assert.Same(t, newChart, s.Chart())

	s.Fail(older, assert.AnError)
	assert.NoError(t, s.LastError())
	assert.Equal(t, PhaseReady, s.Phase())
}

func TestSession_UploadSupersedesQuery(t *testing.T) {
	s := NewSession("s1")
	require.NoError(t, s.PublishDataset(s.BeginUpload(), "d.csv", testDataset()))

	run, _, err := s.BeginQuery("q")
	require.NoError(t, err)

	require.NoError(t, s.PublishDataset(s.BeginUpload(), "e.csv", testDataset()))
	assert.ErrorIs(t, s.Publish(run, &models.ChartSpec{}), ErrStaleRun)
	assert.Nil(t, s.Chart())
}

func TestSession_QuerySupersedesParsingUpload(t *testing.T) {
	s := NewSession("s1")
	old := testDataset()
	require.NoError(t, s.PublishDataset(s.BeginUpload(), "d.csv", old))

	upload := s.BeginUpload()
	run, ds, err := s.BeginQuery("q")
	require.NoError(t, err)
	assert.Same(t, old, ds, "query runs against the dataset already published")

	assert.ErrorIs(t, s.PublishDataset(upload, "e.csv", testDataset()), ErrStaleRun)
	assert.Equal(t, "d.csv", s.FileName())
	assert.Same(t, old, s.Dataset())

	require.NoError(t, s.Publish(run, &models.ChartSpec{}))
}

func TestSession_FailReturnsToIdle(t *testing.T) {
	s := NewSession("s1")
	require.NoError(t, s.PublishDataset(s.BeginUpload(), "d.csv", testDataset()))
	run, _, err := s.BeginQuery("q")
	require.NoError(t, err)

	s.Fail(run, assert.AnError)
	assert.Equal(t, PhaseIdle, s.Phase())
	assert.ErrorIs(t, s.LastError(), assert.AnError)
	assert.Nil(t, s.Chart())
}

func TestSession_Regenerate(t *testing.T) {
	s := NewSession("s1")
	_, _, _, err := s.BeginRegenerate()
	assert.ErrorIs(t, err, ErrNoDataset)

	require.NoError(t, s.PublishDataset(s.BeginUpload(), "d.csv", testDataset()))
	_, _, _, err = s.BeginRegenerate()
	assert.ErrorIs(t, err, ErrNoQuery)

	_, _, err = s.BeginQuery("q1")
	require.NoError(t, err)
	_, query, ds, err := s.BeginRegenerate()
	require.NoError(t, err)
	assert.Equal(t, "q1", query)
	assert.NotNil(t, ds)
	assert.Equal(t, []string{"q1"}, s.Queries())
}

func TestStore(t *testing.T) {
	st := NewStore()
	a := st.Create()
	require.NotEmpty(t, a.ID)

	got, ok := st.Get(a.ID)
	require.True(t, ok)
	assert.Same(t, a, got)

	assert.Same(t, a, st.GetOrCreate(a.ID))
	b := st.GetOrCreate("unknown")
	assert.NotEqual(t, a.ID, b.ID)
	assert.Equal(t, 2, st.Len())

	st.Delete(a.ID)
	_, ok = st.Get(a.ID)
	assert.False(t, ok)

	time.Sleep(5 * time.Millisecond)
	assert.Equal(t, 1, st.Prune(time.Millisecond))
	assert.Equal(t, 0, st.Len())
}
