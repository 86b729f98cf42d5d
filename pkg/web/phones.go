package web

import (
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/teslashibe/signal-splat/pkg/motion"
	"github.com/teslashibe/signal-splat/pkg/sensors"
)

// Phone describes one connected sensor stream.
type Phone struct {
	ID        string    `json:"id"`
	Addr      string    `json:"addr"`
	Connected time.Time `json:"connected"`
	LastSeen  time.Time `json:"last_seen"`
	Batches   int64     `json:"batches"`
	Samples   int64     `json:"samples"`
}

type phoneConn struct {
	mu    sync.Mutex
	phone Phone
}

// PhoneHub accepts phones that stream Sensor Logger batches over a
// websocket instead of posting them.
type PhoneHub struct {
	submit func(motion.Sample) bool
	logger *slog.Logger

	mu     sync.RWMutex
	phones map[string]*phoneConn

	received atomic.Int64
	rejected atomic.Int64
}

// NewPhoneHub creates a hub that hands decoded samples to submit.
func NewPhoneHub(submit func(motion.Sample) bool, logger *slog.Logger) *PhoneHub {
	if logger == nil {
		logger = slog.Default()
	}
	return &PhoneHub{
		submit: submit,
		logger: logger.With("component", "web.phones"),
		phones: make(map[string]*phoneConn),
	}
}

// RegisterRoutes mounts /ws/sensors and /ws/sensors/:id. Mount it behind
// the /ws upgrade check.
func (p *PhoneHub) RegisterRoutes(app *fiber.App) {
	app.Get("/ws/sensors", websocket.New(p.handle))
	app.Get("/ws/sensors/:id", websocket.New(p.handle))
}

// Phones lists connected phones by id.
func (p *PhoneHub) Phones() []Phone {
	p.mu.RLock()
	out := make([]Phone, 0, len(p.phones))
	for _, pc := range p.phones {
		pc.mu.Lock()
		out = append(out, pc.phone)
		pc.mu.Unlock()
	}
	p.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Stats returns accepted and rejected batch counts.
func (p *PhoneHub) Stats() (received, rejected int64) {
	return p.received.Load(), p.rejected.Load()
}

func (p *PhoneHub) handle(c *websocket.Conn) {
	id := c.Params("id")
	if id == "" {
		id = uuid.NewString()
	}
	now := time.Now()
	pc := &phoneConn{phone: Phone{
		ID:        id,
		Addr:      c.RemoteAddr().String(),
		Connected: now,
		LastSeen:  now,
	}}

	p.mu.Lock()
	p.phones[id] = pc
	total := len(p.phones)
	p.mu.Unlock()
	p.logger.Info("phone connected", "phone", id, "addr", pc.phone.Addr, "phones", total)

	defer func() {
		p.mu.Lock()
		if p.phones[id] == pc {
			delete(p.phones, id)
		}
		total := len(p.phones)
		p.mu.Unlock()
		p.logger.Info("phone disconnected", "phone", id, "phones", total)
	}()

	for {
		_, data, err := c.ReadMessage()
		if err != nil {
			return
		}

		samples, err := sensors.ParsePayload(data)
		if err != nil {
			p.rejected.Add(1)
			p.logger.Debug("bad sensor batch", "phone", id, "error", err)
			continue
		}
		p.received.Add(1)
		for _, s := range samples {
			p.submit(s)
		}

		pc.mu.Lock()
		pc.phone.LastSeen = time.Now()
		pc.phone.Batches++
		pc.phone.Samples += int64(len(samples))
		pc.mu.Unlock()
	}
}
