package worker

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gilby125/flight-offers-harvester/harvest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockIngester struct {
	mock.Mock
}

func (m *mockIngester) Ingest(ctx context.Context, env harvest.Envelope) (harvest.Result, error) {
	args := m.Called(ctx, env)
	return args.Get(0).(harvest.Result), args.Error(1)
}

const textEnvelope = `{"mode":"text","context":{"origin":"LAX","destination":"JFK","departure_date":"2025-06-01"},"cards":["card"]}`

func writeSpoolFile(t *testing.T, dir, name, body string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644))
}

func newTestSpooler(t *testing.T, ing Ingester) (*Spooler, *Ledger, string) {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "inbox")
	l := newTestLedger(t)
	return NewSpooler(dir, l, ing), l, dir
}

func TestSpooler_IngestsOncePerContent(t *testing.T) {
	ing := &mockIngester{}
	ing.On("Ingest", mock.Anything, mock.AnythingOfType("harvest.Envelope")).
		Return(harvest.Result{RunID: "r1", Written: 2}, nil)

	s, l, dir := newTestSpooler(t, ing)
	writeSpoolFile(t, dir, "a.json", textEnvelope)
	writeSpoolFile(t, dir, "notes.txt", "ignored")

	report, err := s.Scan(context.Background())
	require.NoError(t, err)
	assert.Equal(t, ScanReport{Files: 1, Ingested: 1, Written: 2}, report)

	report, err = s.Scan(context.Background())
	require.NoError(t, err)
	assert.Equal(t, ScanReport{Files: 1, AlreadySeen: 1}, report)
	ing.AssertNumberOfCalls(t, "Ingest", 1)

	e, err := l.Get("a.json", sha256Hex(textEnvelope))
	require.NoError(t, err)
	assert.Equal(t, "r1", e.RunID)
	assert.Equal(t, "text", e.Mode)

	// Same name, new content is a new file.
	writeSpoolFile(t, dir, "a.json", textEnvelope+"\n")
	report, err = s.Scan(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Ingested)
}

func TestSpooler_RejectsMalformedOnce(t *testing.T) {
	ing := &mockIngester{}
	s, l, dir := newTestSpooler(t, ing)
	writeSpoolFile(t, dir, "bad.json", `{"mode":"fax"}`)

	report, err := s.Scan(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Rejected)

	report, err = s.Scan(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.AlreadySeen)
	ing.AssertNotCalled(t, "Ingest", mock.Anything, mock.Anything)

	entries, err := l.List()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.NotEmpty(t, entries[0].Error)
}

func TestSpooler_RetriesStorageFailures(t *testing.T) {
	ing := &mockIngester{}
	ing.On("Ingest", mock.Anything, mock.Anything).
		Return(harvest.Result{}, errors.New("disk full")).Once()
	ing.On("Ingest", mock.Anything, mock.Anything).
		Return(harvest.Result{Written: 1}, nil).Once()

	s, _, dir := newTestSpooler(t, ing)
	writeSpoolFile(t, dir, "a.json", textEnvelope)

	report, err := s.Scan(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Failed)

	report, err = s.Scan(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Ingested)
	ing.AssertExpectations(t)
}

func TestSpooler_MissingDirectory(t *testing.T) {
	s, _, _ := newTestSpooler(t, &mockIngester{})
	report, err := s.Scan(context.Background())
	require.NoError(t, err)
	assert.Zero(t, report.Files)
}

func TestSpooler_StartRunsOnSchedule(t *testing.T) {
	var calls atomic.Int32
	ing := &mockIngester{}
	ing.On("Ingest", mock.Anything, mock.Anything).
		Run(func(mock.Arguments) { calls.Add(1) }).
		Return(harvest.Result{}, nil)

	s, _, dir := newTestSpooler(t, ing)
	require.NoError(t, s.Start(context.Background(), "@every 1s"))
	defer s.Stop()

	writeSpoolFile(t, dir, "a.json", textEnvelope)
	assert.Eventually(t, func() bool { return calls.Load() == 1 }, 5*time.Second, 50*time.Millisecond)
}

func TestSpooler_StartRejectsBadSchedule(t *testing.T) {
	s, _, _ := newTestSpooler(t, &mockIngester{})
	require.Error(t, s.Start(context.Background(), "not a schedule"))
}

func TestSpooler_OnReport(t *testing.T) {
	s, _, dir := newTestSpooler(t, &mockIngester{})
	var reports []ScanReport
	s.OnReport(func(_ context.Context, r ScanReport) { reports = append(reports, r) })

	_, err := s.Scan(context.Background())
	require.NoError(t, err)
	assert.Empty(t, reports)

	writeSpoolFile(t, dir, "bad.json", `{"mode":"fax"}`)
	_, err = s.Scan(context.Background())
	require.NoError(t, err)
	require.Len(t, reports, 1)
	assert.Equal(t, 1, reports[0].Rejected)

	// already seen files do not alert again
	_, err = s.Scan(context.Background())
	require.NoError(t, err)
	assert.Len(t, reports, 1)
}
