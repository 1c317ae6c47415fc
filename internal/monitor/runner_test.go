package monitor

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"DormWatch/internal/campus"
	"DormWatch/internal/config"
	"DormWatch/internal/metrics"
	"DormWatch/internal/model"
	"DormWatch/internal/notifier"
	"DormWatch/internal/recorder"
	"DormWatch/internal/retry"
	"DormWatch/internal/series"
)

type fakeSource struct {
	reading model.Reading
	err     error
	calls   int
}

func (f *fakeSource) Fetch(context.Context) (model.Reading, error) {
	f.calls++
	return f.reading, f.err
}

type stubChannel struct {
	name   string
	bodies []string
	titles []string
}

func (s *stubChannel) Name() string  { return s.name }
func (s *stubChannel) Enabled() bool { return true }

func (s *stubChannel) Send(_ context.Context, title, body string) error {
	s.titles = append(s.titles, title)
	s.bodies = append(s.bodies, body)
	return nil
}

type harness struct {
	runner  *Runner
	source  *fakeSource
	push    *stubChannel
	email   *stubChannel
	chat    *stubChannel
	store   *series.Store
	rec     *recorder.SQLiteRecorder
	metrics *metrics.Metrics
}

func validConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Campus.Account, cfg.Campus.Password = "20240001", "secret"
	cfg.Campus.LightRoom, cfg.Campus.ACRoom = "3-101", "3-101-ac"
	cfg.Storage.Timezone = "UTC"
	return cfg
}

func newHarness(t *testing.T, cfg *config.Config, dataDir string) *harness {
	t.Helper()
	h := &harness{
		source: &fakeSource{},
		push:   &stubChannel{name: "serverchan"},
		email:  &stubChannel{name: "email"},
		chat:   &stubChannel{name: "telegram"},
		store:  series.NewStore(dataDir, zerolog.Nop()),
	}
	rec, err := recorder.NewSQLiteRecorder(filepath.Join(t.TempDir(), "history.db"), zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { rec.Close() })
	h.rec = rec
	h.metrics = metrics.New("", "dormwatch")

	sleeps := &retry.Recorder{}
	d := notifier.NewDispatcher(h.push, h.email, h.chat, zerolog.Nop(), notifier.WithSleeper(sleeps.Sleep))
	h.runner = NewRunner(cfg, Deps{
		Source:   h.source,
		Notifier: d,
		Store:    h.store,
		Recorder: rec,
		Metrics:  h.metrics,
	}, zerolog.Nop())
	return h
}

func at(month time.Month, day int) time.Time {
	return time.Date(2024, month, day, 8, 30, 0, 0, time.UTC)
}

func TestRun_LowBalanceEndToEnd(t *testing.T) {
	dir := t.TempDir()
	h := newHarness(t, validConfig(), dir)
	for day := 1; day <= 3; day++ {
		_, err := h.store.Append(model.NewReading(at(time.February, day), time.UTC, 40, 60))
		require.NoError(t, err)
	}
	h.source.reading = model.NewReading(at(time.March, 15), time.UTC, 5, 50)

	out, err := h.runner.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, StateDone, out.State)
	assert.True(t, out.Low)
	assert.Equal(t, notifier.TitleLow, out.Title)
	assert.NotEmpty(t, out.RunID)

	require.Len(t, h.push.titles, 1)
	require.Len(t, h.email.titles, 1)
	require.Len(t, h.chat.bodies, 1)
	assert.Equal(t, notifier.TitleLow, h.push.titles[0])
	assert.Contains(t, h.chat.bodies[0], "light: warning")
	assert.Contains(t, h.chat.bodies[0], `5\.0`)

	march, err := h.store.Load("2024-03")
	require.NoError(t, err)
	require.Len(t, march, 1)
	assert.Equal(t, "03-15 08:30:00", march[0].Time)

	index, err := h.store.Index()
	require.NoError(t, err)
	assert.Equal(t, []string{"2024-03", "2024-02"}, index)

	window, err := h.store.Window()
	require.NoError(t, err)
	require.Len(t, window, 4)
	assert.Equal(t, 5.0, window[3].Light)

	deliveries, err := h.rec.Deliveries(out.RunID)
	require.NoError(t, err)
	assert.Len(t, deliveries, 3)
	readings, err := h.rec.Readings(10)
	require.NoError(t, err)
	require.Len(t, readings, 1)
	assert.True(t, readings[0].Low)

	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.Low))
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.RunsTotal.WithLabelValues("done")))
}

func TestRun_NotLowOnlyChat(t *testing.T) {
	h := newHarness(t, validConfig(), t.TempDir())
	h.source.reading = model.NewReading(at(time.March, 15), time.UTC, 150, 50)

	out, err := h.runner.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, StateDone, out.State)
	assert.False(t, out.Low)
	assert.Empty(t, h.push.titles)
	assert.Empty(t, h.email.titles)
	require.Len(t, h.chat.titles, 1)
	assert.Equal(t, notifier.TitleOK, h.chat.titles[0])

	var skipped int
	for _, d := range out.Deliveries {
		if d.Status == notifier.StatusSkipped {
			skipped++
		}
	}
	assert.Equal(t, 2, skipped)
}

func TestRun_FetchFailureStopsEarly(t *testing.T) {
	dir := t.TempDir()
	h := newHarness(t, validConfig(), dir)
	h.source.err = &campus.AuthError{Err: errors.New("bad password")}

	out, err := h.runner.Run(context.Background())

	assert.Equal(t, StateAbortFetchFailed, out.State)
	var authErr *campus.AuthError
	require.ErrorAs(t, err, &authErr)
	assert.Empty(t, h.push.titles)
	assert.Empty(t, h.email.titles)
	assert.Empty(t, h.chat.titles)
	assert.Empty(t, out.Deliveries)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.RunsTotal.WithLabelValues("abort_fetch_failed")))
}

func TestRun_MissingConfigAborts(t *testing.T) {
	cfg := validConfig()
	cfg.Campus.Password = ""
	h := newHarness(t, cfg, t.TempDir())

	out, err := h.runner.Run(context.Background())

	assert.Equal(t, StateAbortMissingConfig, out.State)
	var cerr *config.Error
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, []string{"PASSWORD"}, cerr.Missing)
	assert.Zero(t, h.source.calls)
	assert.Empty(t, h.chat.titles)
}

func TestRun_NilConfigAborts(t *testing.T) {
	h := newHarness(t, nil, t.TempDir())
	out, err := h.runner.Run(context.Background())
	assert.Equal(t, StateAbortMissingConfig, out.State)
	assert.Error(t, err)
}

func TestRun_StorageFailureStillCompletes(t *testing.T) {
	file := filepath.Join(t.TempDir(), "not-a-dir")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o644))
	h := newHarness(t, validConfig(), file)
	h.source.reading = model.NewReading(at(time.March, 15), time.UTC, 5, 5)

	out, err := h.runner.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StateDone, out.State)
	assert.Len(t, h.chat.titles, 1)
}

func TestRun_EachRunHasOwnID(t *testing.T) {
	h := newHarness(t, validConfig(), t.TempDir())
	h.source.reading = model.NewReading(at(time.March, 15), time.UTC, 50, 50)

	a, err := h.runner.Run(context.Background())
	require.NoError(t, err)
	b, err := h.runner.Run(context.Background())
	require.NoError(t, err)
	assert.NotEqual(t, a.RunID, b.RunID)

	march, err := h.store.Load("2024-03")
	require.NoError(t, err)
	assert.Len(t, march, 2)
}

func TestStateTerminal(t *testing.T) {
	assert.True(t, StateDone.Terminal())
	assert.True(t, StateAbortFetchFailed.Terminal())
	assert.False(t, StateNotify.Terminal())
}
