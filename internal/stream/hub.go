// Package stream pushes live arrival boards to websocket subscribers.
package stream

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"mtd-arrivals/internal/arrivals"
	mmetrics "mtd-arrivals/internal/metrics"
)

const writeWait = 10 * time.Second

// Watcher starts and stops the board refresher of a stop.
type Watcher interface {
	Watch(ctx context.Context, stopID string) error
	Unwatch(stopID string)
}

type client struct {
	id     uuid.UUID
	stopID string
	conn   *websocket.Conn

	writeMu sync.Mutex // one writer per conn
}

func (c *client) write(data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.writeLocked(data)
}

func (c *client) writeLocked(data []byte) error {
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// Hub tracks subscribers per stop. The first subscriber of a stop starts its
// refresher and the last one leaving stops it.
type Hub struct {
	ctx      context.Context
	logger   *zap.Logger
	watcher  Watcher
	metrics  *mmetrics.Collector
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[string]map[*client]struct{}
	latest  map[string]arrivals.Board
	total   int
}

// NewHub returns a hub whose refreshers live until ctx is done.
func NewHub(ctx context.Context, logger *zap.Logger, w Watcher, m *mmetrics.Collector) *Hub {
	return &Hub{
		ctx:     ctx,
		logger:  logger,
		watcher: w,
		metrics: m,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		clients: make(map[string]map[*client]struct{}),
		latest:  make(map[string]arrivals.Board),
	}
}

// ServeStop upgrades the request and streams boards of stopID until the peer
// goes away. The caller is expected to have checked that the stop exists.
func (h *Hub) ServeStop(w http.ResponseWriter, r *http.Request, stopID string) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("ws upgrade failed", zap.String("stop_id", stopID), zap.Error(err))
		return
	}
	c := &client{id: uuid.New(), stopID: stopID, conn: conn}
	if err := h.add(c); err != nil {
		h.logger.Warn("ws watch failed", zap.String("stop_id", stopID), zap.Error(err))
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseInternalServerErr, "stop unavailable"),
			time.Now().Add(writeWait))
		_ = conn.Close()
		return
	}
	h.logger.Debug("ws client connected", zap.String("client_id", c.id.String()), zap.String("stop_id", stopID))
	h.readPump(c)
}

func (h *Hub) add(c *client) error {
	h.mu.Lock()
	set, ok := h.clients[c.stopID]
	if !ok {
		if err := h.watcher.Watch(h.ctx, c.stopID); err != nil {
			h.mu.Unlock()
			return err
		}
		set = make(map[*client]struct{})
		h.clients[c.stopID] = set
	}
	set[c] = struct{}{}
	h.total++
	h.setGauge()
	latest, hasLatest := h.latest[c.stopID]
	// held until the initial board is out so broadcasts cannot overtake it
	c.writeMu.Lock()
	h.mu.Unlock()
	defer c.writeMu.Unlock()

	if hasLatest {
		data, err := json.Marshal(latest)
		if err == nil {
			err = c.writeLocked(data)
		}
		if err != nil {
			h.logger.Debug("ws initial write failed", zap.String("client_id", c.id.String()), zap.Error(err))
		}
	}
	return nil
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	set, ok := h.clients[c.stopID]
	if !ok {
		return
	}
	if _, ok := set[c]; !ok {
		return
	}
	delete(set, c)
	h.total--
	h.setGauge()
	if len(set) == 0 {
		delete(h.clients, c.stopID)
		delete(h.latest, c.stopID)
		h.watcher.Unwatch(c.stopID)
	}
}

func (h *Hub) readPump(c *client) {
	defer func() {
		h.remove(c)
		_ = c.conn.Close()
		h.logger.Debug("ws client disconnected", zap.String("client_id", c.id.String()))
	}()
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

// PublishBoard remembers b as the latest board of its stop and sends it to
// every subscriber of that stop.
func (h *Hub) PublishBoard(b arrivals.Board) error {
	data, err := json.Marshal(b)
	if err != nil {
		return err
	}
	h.mu.Lock()
	set, ok := h.clients[b.StopID]
	if !ok {
		h.mu.Unlock()
		return nil
	}
	h.latest[b.StopID] = b
	targets := make([]*client, 0, len(set))
	for c := range set {
		targets = append(targets, c)
	}
	h.mu.Unlock()

	for _, c := range targets {
		if err := c.write(data); err != nil {
			// readPump notices the closed conn and unregisters it
			_ = c.conn.Close()
		}
	}
	return nil
}

// Clients returns the number of connected subscribers.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.total
}

// Close disconnects every subscriber.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, set := range h.clients {
		for c := range set {
			_ = c.conn.Close()
		}
	}
}

func (h *Hub) setGauge() {
	if h.metrics != nil {
		h.metrics.WSClients.Set(float64(h.total))
	}
}
