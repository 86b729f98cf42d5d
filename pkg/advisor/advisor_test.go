package advisor

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teslashibe/signal-splat/pkg/heatmap"
	"github.com/teslashibe/signal-splat/pkg/inference"
)

func TestRollingWindow_EvictsOldest(t *testing.T) {
	w := NewRollingWindow(3)
	for _, v := range []float64{-50, -51, -52, -53, -54} {
		w.Add(v)
	}

	assert.Equal(t, 3, w.Len())
	assert.Equal(t, []float64{-52, -53, -54}, w.Values())
}

func TestRollingWindow_PartiallyFilled(t *testing.T) {
	w := NewRollingWindow(5)
	w.Add(-60)
	w.Add(-61)

	assert.Equal(t, []float64{-60, -61}, w.Values())
	assert.Equal(t, 5, w.Cap())
}

func TestDeadZoneCentroid(t *testing.T) {
	tests := []struct {
		name   string
		points []heatmap.SignalPoint
		wantX  float64
		wantY  float64
		wantOK bool
	}{
		{
			name:   "two dead samples",
			points: []heatmap.SignalPoint{{X: 0, Y: 0, SignalDBm: -80}, {X: 10, Y: 0, SignalDBm: -80}, {X: 5, Y: 5, SignalDBm: -40}},
			wantX:  5, wantY: 0, wantOK: true,
		},
		{
			name:   "all above threshold",
			points: []heatmap.SignalPoint{{X: 0, Y: 0, SignalDBm: -60}, {X: 10, Y: 10, SignalDBm: -75}},
			wantOK: false,
		},
		{
			name:   "empty",
			wantOK: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			x, y, ok := DeadZoneCentroid(tt.points, DefaultDeadZoneDBm)
			require.Equal(t, tt.wantOK, ok)
			if ok {
				assert.InDelta(t, tt.wantX, x, 1e-9)
				assert.InDelta(t, tt.wantY, y, 1e-9)
			}
		})
	}
}

func TestSummarize(t *testing.T) {
	s := Summarize([]float64{-60, -62, -75, -70})

	assert.Equal(t, 4, s.Count)
	assert.InDelta(t, -66.75, s.Mean, 1e-9)
	assert.Equal(t, -75.0, s.Min)
	assert.Equal(t, -60.0, s.Max)
	assert.Equal(t, 13.0, s.LargestDrop)
	assert.Greater(t, s.StdDev, 0.0)

	assert.Equal(t, Summary{}, Summarize(nil))
	assert.Equal(t, 0.0, Summarize([]float64{-50}).StdDev)
}

func fastConfig() Config {
	cfg := DefaultConfig()
	cfg.WarmUp = 0
	cfg.Interval = 10 * time.Millisecond
	cfg.RequestTimeout = time.Second
	return cfg
}

func fill(a *Advisor, n int, v float64) {
	for i := 0; i < n; i++ {
		a.AddReading(v)
	}
}

func TestAdvisor_InitialStatus(t *testing.T) {
	a := New(DefaultConfig(), inference.NewMock())
	assert.Equal(t, StatusInitializing, a.Status())
}

func TestAdvisor_DiagnoseNeedsMoreThanMinReadings(t *testing.T) {
	mock := inference.Reply("Strong stable signal, no issues.")
	a := New(fastConfig(), mock)

	fill(a, DefaultMinReadings, -60)
	a.Diagnose(context.Background())
	assert.Equal(t, 0, mock.CallCount("Chat"))
	assert.Equal(t, StatusInitializing, a.Status())

	a.AddReading(-61)
	a.Diagnose(context.Background())
	assert.Equal(t, 1, mock.CallCount("Chat"))
	assert.Equal(t, "Strong stable signal, no issues.", a.Status())

	req := mock.LastRequest()
	require.NotNil(t, req)
	require.Len(t, req.Messages, 2)
	assert.Equal(t, DiagnosisInstruction, req.Messages[0].Content)
	assert.True(t, strings.HasPrefix(req.Messages[1].Content, "Data: [-60, -60"))
}

func TestAdvisor_DiagnoseOffline(t *testing.T) {
	a := New(fastConfig(), inference.WithError(errors.New("connection refused")))
	fill(a, 15, -70)

	a.Diagnose(context.Background())
	assert.Equal(t, StatusOffline, a.Status())
}

func TestAdvisor_RunStopsOnCancel(t *testing.T) {
	mock := inference.Reply("Moderate signal with drops.")
	a := New(fastConfig(), mock)
	fill(a, 12, -72)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		a.Run(ctx)
		close(done)
	}()

	assert.Eventually(t, func() bool { return mock.CallCount("Chat") >= 2 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, "Moderate signal with drops.", a.Status())

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("advisor did not stop after cancel")
	}
}

func TestAdvisor_RunHonoursWarmUp(t *testing.T) {
	mock := inference.NewMock()
	cfg := fastConfig()
	cfg.WarmUp = time.Hour
	a := New(cfg, mock)
	fill(a, 20, -60)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		a.Run(ctx)
		close(done)
	}()
	time.Sleep(30 * time.Millisecond)
	cancel()
	<-done

	assert.Equal(t, 0, mock.CallCount("Chat"))
}

var deadZonePoints = []heatmap.SignalPoint{
	{X: 0, Y: 0, SignalDBm: -80},
	{X: 10, Y: 0, SignalDBm: -80},
	{X: 5, Y: 5, SignalDBm: -40},
}

func TestAdvisor_RecommendPerfectCoverage(t *testing.T) {
	mock := inference.NewMock()
	a := New(fastConfig(), mock)

	rec, err := a.Recommend(context.Background(), []heatmap.SignalPoint{{X: 1, Y: 1, SignalDBm: -50}}, heatmap.MarkerSet{})
	require.NoError(t, err)

	assert.False(t, rec.Found)
	assert.Equal(t, StatusPerfect, a.Status())
	assert.Equal(t, 0, mock.CallCount("Chat"), "no model call without a dead zone")
}

func TestAdvisor_RecommendTruncatesAdvice(t *testing.T) {
	advice := strings.Repeat("Move router two toward the north-east corner. ", 4)
	mock := inference.Reply(advice)
	a := New(fastConfig(), mock)

	markers := heatmap.MarkerSet{}
	markers.Routers[0] = heatmap.RouterMarker{X: 120, Y: 340, Active: true}

	rec, err := a.Recommend(context.Background(), deadZonePoints, markers)
	require.NoError(t, err)

	assert.True(t, rec.Found)
	assert.InDelta(t, 5, rec.X, 1e-9)
	assert.InDelta(t, 0, rec.Y, 1e-9)
	assert.Equal(t, 2, rec.DeadZones)
	assert.Equal(t, strings.TrimSpace(advice), rec.Advice)

	status := []rune(a.Status())
	assert.Len(t, status, 83)
	assert.True(t, strings.HasSuffix(a.Status(), "..."))

	prompt := mock.LastRequest().Messages[0].Content
	assert.Contains(t, prompt, "Router 1 at (120, 340)")
	assert.Contains(t, prompt, "Router 2 at Not Set")
	assert.Contains(t, prompt, "(X:5, Y:0)")
}

func TestAdvisor_RecommendOfflineKeepsCentroid(t *testing.T) {
	a := New(fastConfig(), inference.WithError(errors.New("dial tcp: connection refused")))

	rec, err := a.Recommend(context.Background(), deadZonePoints, heatmap.MarkerSet{})
	require.NoError(t, err)

	assert.True(t, rec.Found)
	assert.True(t, rec.Offline)
	assert.InDelta(t, 5, rec.X, 1e-9)
	assert.Equal(t, StatusCoreOffline, a.Status())
}

func TestAdvisor_NilProvider(t *testing.T) {
	a := New(fastConfig(), nil)
	fill(a, 11, -80)

	a.Diagnose(context.Background())
	assert.Equal(t, StatusOffline, a.Status())
}
