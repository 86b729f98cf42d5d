package survey

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teslashibe/signal-splat/pkg/heatmap"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "survey.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestOpen_MigratesToLatest(t *testing.T) {
	s := openTestStore(t)

	version, dirty, err := s.SchemaVersion()
	require.NoError(t, err)
	assert.Equal(t, uint(2), version)
	assert.False(t, dirty)
}

func TestOpen_Reopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "survey.db")
	ctx := context.Background()

	s, err := Open(path, nil)
	require.NoError(t, err)
	sess, err := s.StartSession(ctx, "Splat", "Step Counter", "Home")
	require.NoError(t, err)
	require.NoError(t, s.Record(ctx, sess.ID, heatmap.SignalPoint{X: 1, Y: 2, SignalDBm: -50}))
	require.NoError(t, s.Close())

	s, err = Open(path, nil)
	require.NoError(t, err)
	defer s.Close()

	got, err := s.Session(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.Points)
	assert.Equal(t, "Home", got.SSID)
}

func TestOpen_Memory(t *testing.T) {
	s, err := Open(":memory:", nil)
	require.NoError(t, err)
	defer s.Close()

	_, err = s.StartSession(context.Background(), "Splat", "", "")
	assert.NoError(t, err)
}

func TestStore_RecordAndPoints(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	sess, err := s.StartSession(ctx, "Splat", "AR Bridge", "")
	require.NoError(t, err)
	assert.Len(t, sess.ID, 36)

	want := []heatmap.SignalPoint{
		{X: 400, Y: 300, SignalDBm: -45},
		{X: 410, Y: 300, SignalDBm: -60},
		{X: 420, Y: 290, SignalDBm: -82},
	}
	require.NoError(t, s.Record(ctx, sess.ID, want[0]))
	require.NoError(t, s.RecordBatch(ctx, sess.ID, want[1:]))

	got, err := s.Points(ctx, sess.ID)
	require.NoError(t, err)
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Points() mismatch (-want +got):\n%s", diff)
	}
}

func TestStore_UnknownSession(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	_, err := s.Points(ctx, "nope")
	assert.ErrorIs(t, err, ErrSessionNotFound)

	err = s.Record(ctx, "nope", heatmap.SignalPoint{})
	assert.Error(t, err, "foreign key rejects orphan points")

	assert.ErrorIs(t, s.DeleteSession(ctx, "nope"), ErrSessionNotFound)
}

func TestStore_SessionsNewestFirst(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	first, err := s.StartSession(ctx, "Splat", "", "")
	require.NoError(t, err)
	time.Sleep(2 * time.Millisecond)
	second, err := s.StartSession(ctx, "Interpolated", "", "")
	require.NoError(t, err)
	require.NoError(t, s.Record(ctx, second.ID, heatmap.SignalPoint{SignalDBm: -70}))

	list, err := s.Sessions(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, second.ID, list[0].ID)
	assert.Equal(t, 1, list[0].Points)
	assert.Equal(t, first.ID, list[1].ID)
	assert.Equal(t, 0, list[1].Points)

	require.NoError(t, s.DeleteSession(ctx, second.ID))
	list, err = s.Sessions(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestRecorder_WritesAndFlushesOnStop(t *testing.T) {
	s := openTestStore(t)
	sess, err := s.StartSession(context.Background(), "Splat", "", "")
	require.NoError(t, err)

	acc := heatmap.NewAccumulator(100)
	rec := NewRecorder(s, sess.ID, RecorderConfig{BatchSize: 2, FlushInterval: time.Hour})
	rec.Attach(acc)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		rec.Run(ctx)
		close(done)
	}()

	acc.Append(1, 1, -40)
	acc.Append(2, 2, -50)
	acc.Append(3, 3, -60) // pending until stop

	assert.Eventually(t, func() bool {
		written, _ := rec.Stats()
		return written == 2
	}, time.Second, 5*time.Millisecond)

	cancel()
	<-done

	written, dropped := rec.Stats()
	assert.Equal(t, int64(3), written)
	assert.Zero(t, dropped)

	points, err := s.Points(context.Background(), sess.ID)
	require.NoError(t, err)
	assert.Equal(t, acc.Points(), points)
}

func TestRecorder_DropsWhenBufferFull(t *testing.T) {
	rec := NewRecorder(nil, "x", RecorderConfig{Buffer: 1})
	rec.Enqueue(heatmap.SignalPoint{})
	rec.Enqueue(heatmap.SignalPoint{})

	_, dropped := rec.Stats()
	assert.Equal(t, int64(1), dropped)
}

func TestReplay_StopsWhenFull(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	sess, err := s.StartSession(ctx, "Splat", "", "")
	require.NoError(t, err)
	require.NoError(t, s.RecordBatch(ctx, sess.ID, []heatmap.SignalPoint{
		{X: 1, SignalDBm: -40}, {X: 2, SignalDBm: -50}, {X: 3, SignalDBm: -60},
	}))

	acc := heatmap.NewAccumulator(2)
	n, err := Replay(ctx, s, sess.ID, acc)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.True(t, acc.Full())
}

func TestPlotSignal(t *testing.T) {
	points := []heatmap.SignalPoint{{SignalDBm: -45}, {SignalDBm: -70}, {SignalDBm: -88}}

	png, err := PlotSignal("walk", points, -75, PlotWidth, PlotHeight)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(png, []byte("\x89PNG\r\n\x1a\n")))

	_, err = PlotSignal("walk", nil, -75, PlotWidth, PlotHeight)
	assert.ErrorIs(t, err, ErrNoPoints)
}
