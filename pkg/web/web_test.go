package web

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image"
	"io"
	"net"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teslashibe/signal-splat/pkg/advisor"
	"github.com/teslashibe/signal-splat/pkg/heatmap"
	"github.com/teslashibe/signal-splat/pkg/motion"
	"github.com/teslashibe/signal-splat/pkg/survey"
)

type fakeBackend struct {
	mu        sync.Mutex
	samples   []motion.Sample
	mode      heatmap.Mode
	markers   *heatmap.Markers
	recommend func(ctx context.Context) (advisor.Recommendation, error)
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{markers: heatmap.NewMarkers()}
}

func (f *fakeBackend) Status() Status {
	return Status{X: 400, Y: 300, Tracking: "Tracking (AR Bridge)", SignalDBm: -55, Points: 2, Mode: f.mode.String()}
}

func (f *fakeBackend) Submit(s motion.Sample) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.samples = append(f.samples, s)
	return true
}

func (f *fakeBackend) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.samples)
}

func (f *fakeBackend) ToggleMode() heatmap.Mode {
	f.mode = 1 - f.mode
	return f.mode
}

func (f *fakeBackend) PlaceRouter(n int) (heatmap.RouterMarker, error) {
	if err := f.markers.Place(n, 400, 300); err != nil {
		return heatmap.RouterMarker{}, err
	}
	return f.markers.Snapshot().Routers[n-1], nil
}

func (f *fakeBackend) Recommend(ctx context.Context) (advisor.Recommendation, error) {
	if f.recommend != nil {
		return f.recommend(ctx)
	}
	return advisor.Recommendation{Found: true, X: 10, Y: 20, DeadZones: 3, Advice: "Move router 1 north."}, nil
}

func (f *fakeBackend) Frame() *image.RGBA {
	return image.NewRGBA(image.Rect(0, 0, 8, 6))
}

func (f *fakeBackend) Readings() []float64 { return []float64{-50, -60, -80} }

func (f *fakeBackend) Points() []heatmap.SignalPoint {
	return []heatmap.SignalPoint{{X: 1, Y: 2, SignalDBm: -50}, {X: 3, Y: 4, SignalDBm: -85}}
}

func newTestServer(t *testing.T, cfg Config) (*Server, *fakeBackend) {
	t.Helper()
	b := newFakeBackend()
	return NewServer(cfg, b), b
}

func do(t *testing.T, app *fiber.App, method, path string, body string) (int, []byte) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := app.Test(req, 10_000)
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, data
}

func TestHandleData(t *testing.T) {
	s, b := newTestServer(t, Config{})

	body := `{"payload":[
		{"name":"accelerometer","time":1,"values":{"x":0,"y":0,"z":9.8}},
		{"name":"pose","time":2,"values":{"x":1,"z":2}},
		{"name":"battery","time":3,"values":{"level":0.5}}
	]}`
	code, resp := do(t, s.App(), "POST", "/data", body)
	assert.Equal(t, 200, code)
	assert.Equal(t, "Success", string(resp))
	assert.Equal(t, 2, b.count())

	code, _ = do(t, s.App(), "POST", "/data", "{nope")
	assert.Equal(t, 400, code)
}

func TestHandleStatusAndToggle(t *testing.T) {
	s, _ := newTestServer(t, Config{})

	code, body := do(t, s.App(), "GET", "/api/status", "")
	require.Equal(t, 200, code)
	var st Status
	require.NoError(t, json.Unmarshal(body, &st))
	assert.Equal(t, "Tracking (AR Bridge)", st.Tracking)
	assert.Equal(t, "splat", st.Mode)

	code, body = do(t, s.App(), "POST", "/api/mode/toggle", "")
	require.Equal(t, 200, code)
	assert.JSONEq(t, `{"mode":"interpolated"}`, string(body))
}

func TestHandlePlaceRouter(t *testing.T) {
	s, _ := newTestServer(t, Config{})

	code, body := do(t, s.App(), "POST", "/api/markers/2", "")
	require.Equal(t, 200, code)
	assert.JSONEq(t, `{"router":2,"x":400,"y":300}`, string(body))

	code, _ = do(t, s.App(), "POST", "/api/markers/3", "")
	assert.Equal(t, 400, code)
	code, _ = do(t, s.App(), "POST", "/api/markers/x", "")
	assert.Equal(t, 400, code)
}

func TestHandleRecommend(t *testing.T) {
	s, b := newTestServer(t, Config{})

	code, body := do(t, s.App(), "POST", "/api/recommend", "")
	require.Equal(t, 200, code)
	var rec advisor.Recommendation
	require.NoError(t, json.Unmarshal(body, &rec))
	assert.True(t, rec.Found)
	assert.Equal(t, 3, rec.DeadZones)

	b.recommend = func(context.Context) (advisor.Recommendation, error) {
		return advisor.Recommendation{}, errors.New("cancelled")
	}
	code, _ = do(t, s.App(), "POST", "/api/recommend", "")
	assert.Equal(t, 503, code)
}

func TestHandleHeatmapAndChart(t *testing.T) {
	s, _ := newTestServer(t, Config{})

	code, body := do(t, s.App(), "GET", "/api/heatmap.png", "")
	require.Equal(t, 200, code)
	assert.True(t, bytes.HasPrefix(body, []byte("\x89PNG")))

	code, body = do(t, s.App(), "GET", "/api/chart", "")
	require.Equal(t, 200, code)
	assert.Contains(t, string(body), "echarts")
	assert.Contains(t, string(body), "Walked path")
}

func TestSessionsRoutes(t *testing.T) {
	s, _ := newTestServer(t, Config{})
	for _, path := range []string{"/api/sessions", "/api/sessions/abc/plot.png"} {
		code, body := do(t, s.App(), "GET", path, "")
		assert.Equal(t, 404, code, "no store configured: %s", path)
		assert.Contains(t, string(body), "recording is disabled")
	}

	store, err := survey.Open(filepath.Join(t.TempDir(), "s.db"), nil)
	require.NoError(t, err)
	defer store.Close()
	ctx := context.Background()
	sess, err := store.StartSession(ctx, "Splat", "Step Counter", "Home")
	require.NoError(t, err)
	require.NoError(t, store.RecordBatch(ctx, sess.ID, []heatmap.SignalPoint{{SignalDBm: -50}, {SignalDBm: -80}}))

	s, _ = newTestServer(t, Config{Store: store})
	code, body := do(t, s.App(), "GET", "/api/sessions", "")
	require.Equal(t, 200, code)
	var list []survey.Session
	require.NoError(t, json.Unmarshal(body, &list))
	require.Len(t, list, 1)
	assert.Equal(t, 2, list[0].Points)

	code, body = do(t, s.App(), "GET", "/api/sessions/"+sess.ID+"/plot.png", "")
	require.Equal(t, 200, code)
	assert.True(t, bytes.HasPrefix(body, []byte("\x89PNG")))

	code, _ = do(t, s.App(), "GET", "/api/sessions/missing/plot.png", "")
	assert.Equal(t, 404, code)
}

func TestWebsocketRoutesRequireUpgrade(t *testing.T) {
	s, _ := newTestServer(t, Config{})
	for _, path := range []string{"/ws/status", "/ws/frames", "/ws/sensors"} {
		code, _ := do(t, s.App(), "GET", path, "")
		assert.Equal(t, fiber.StatusUpgradeRequired, code, path)
	}
}

func TestPhoneHub_StreamsSamples(t *testing.T) {
	s, b := newTestServer(t, Config{})

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go s.App().Listener(ln)
	defer s.App().Shutdown()

	url := "ws://" + ln.Addr().String() + "/ws/sensors/pixel"
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer ws.Close()

	require.NoError(t, ws.WriteMessage(websocket.TextMessage,
		[]byte(`{"payload":[{"name":"orientation","values":{"yaw":1.2}}]}`)))
	require.NoError(t, ws.WriteMessage(websocket.TextMessage, []byte(`garbage`)))

	assert.Eventually(t, func() bool { return b.count() == 1 }, 2*time.Second, 5*time.Millisecond)
	assert.Eventually(t, func() bool {
		_, rejected := s.Phones().Stats()
		return rejected == 1
	}, 2*time.Second, 5*time.Millisecond)

	phones := s.Phones().Phones()
	require.Len(t, phones, 1)
	assert.Equal(t, "pixel", phones[0].ID)
	assert.Equal(t, int64(1), phones[0].Samples)

	ws.Close()
	assert.Eventually(t, func() bool { return len(s.Phones().Phones()) == 0 }, 2*time.Second, 5*time.Millisecond)
}

func TestServer_StatusBroadcast(t *testing.T) {
	s, _ := newTestServer(t, Config{StatusInterval: 10 * time.Millisecond, FrameInterval: 10 * time.Millisecond})

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.statusHub.Run(ctx)
	go s.frameHub.Run(ctx)
	go s.broadcastLoop(ctx)
	go s.App().Listener(ln)
	defer s.App().Shutdown()

	base := "ws://" + ln.Addr().String()
	status, _, err := websocket.DefaultDialer.Dial(base+"/ws/status", nil)
	require.NoError(t, err)
	defer status.Close()
	frames, _, err := websocket.DefaultDialer.Dial(base+"/ws/frames", nil)
	require.NoError(t, err)
	defer frames.Close()

	status.SetReadDeadline(time.Now().Add(2 * time.Second))
	kind, data, err := status.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, websocket.TextMessage, kind)
	assert.Contains(t, string(data), `"signal_dbm":-55`)

	frames.SetReadDeadline(time.Now().Add(2 * time.Second))
	kind, data, err = frames.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, websocket.BinaryMessage, kind)
	assert.True(t, bytes.HasPrefix(data, []byte("\x89PNG")))
}

func TestServer_SubscriberChurn(t *testing.T) {
	s, _ := newTestServer(t, Config{StatusInterval: time.Millisecond, FrameInterval: 5 * time.Millisecond})

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.statusHub.Run(ctx)
	go s.frameHub.Run(ctx)
	go s.broadcastLoop(ctx)
	go s.App().Listener(ln)
	defer s.App().Shutdown()

	base := "ws://" + ln.Addr().String()
	var wg sync.WaitGroup
	for i := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			path := "/ws/status"
			if i%2 == 1 {
				path = "/ws/frames"
			}
			for range 25 {
				ws, _, err := websocket.DefaultDialer.Dial(base+path, nil)
				if err != nil {
					t.Errorf("dial %s: %v", path, err)
					return
				}
				ws.SetReadDeadline(time.Now().Add(2 * time.Second))
				ws.ReadMessage()
				ws.Close()
			}
		}()
	}
	wg.Wait()

	assert.Eventually(t, func() bool {
		return s.statusHub.ClientCount() == 0 && s.frameHub.ClientCount() == 0
	}, 3*time.Second, 10*time.Millisecond)
}
