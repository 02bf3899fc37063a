package main

import (
	"context"
	"encoding/json"
	"html/template"
	"net/http"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/ocupoint/sdrrx/pkg/dsp"
	"github.com/ocupoint/sdrrx/pkg/receiver"
	"github.com/ocupoint/sdrrx/pkg/record"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Display range used to quantize spectrum rows for the browser.
const (
	displayMinDB = dsp.FloorDB
	displayMaxDB = 0
)

const writeWait = 2 * time.Second

// Client is one WebSocket connection.
type Client struct {
	id   uuid.UUID
	conn *websocket.Conn
	send chan any
}

// writePump pumps messages from the hub to the websocket connection.
func (c *Client) writePump() {
	defer c.conn.Close()
	for msg := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		var err error
		switch v := msg.(type) {
		case []byte:
			err = c.conn.WriteMessage(websocket.BinaryMessage, v)
		default:
			err = c.conn.WriteJSON(v)
		}
		if err != nil {
			return
		}
	}
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	c.conn.WriteMessage(websocket.CloseMessage, []byte{})
}

// hub tracks connected clients. Sends never block: a client whose queue
// is full misses the frame.
type hub struct {
	mu      sync.RWMutex
	clients map[*Client]bool
}

func newHub() *hub { return &hub{clients: make(map[*Client]bool)} }

func (h *hub) add(c *Client) {
	h.mu.Lock()
	h.clients[c] = true
	h.mu.Unlock()
}

func (h *hub) remove(c *Client) {
	h.mu.Lock()
	if h.clients[c] {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()
}

func (h *hub) len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *hub) broadcast(msg any) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		select {
		case c.send <- msg:
		default:
		}
	}
}

// commandSender is the pipeline's command entry point.
type commandSender interface {
	Send(cmd receiver.Command) error
}

type ServerOptions struct {
	State    *receiver.State
	Commands commandSender
	// Stats may be nil.
	Stats func() receiver.StatsSnapshot
	// Recorder may be nil when recording is disabled.
	Recorder *record.Recorder
	// RecordExt is the extension used for generated recording names.
	RecordExt string
	Gatherer  prometheus.Gatherer
	FPS       int
	Logger    *log.Logger
}

// Server is the web UI: a JSON control API, a Prometheus endpoint and a
// WebSocket feed of spectrum rows and status.
type Server struct {
	opts   ServerOptions
	logger *log.Logger
	hub    *hub
	index  *template.Template
	mux    *http.ServeMux

	upgrader websocket.Upgrader
}

func NewServer(opts ServerOptions) *Server {
	if opts.FPS <= 0 {
		opts.FPS = 20
	}
	if opts.RecordExt == "" {
		opts.RecordExt = string(record.FormatCU8)
	}
	if opts.Gatherer == nil {
		opts.Gatherer = prometheus.DefaultGatherer
	}
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	s := &Server{
		opts:   opts,
		logger: opts.Logger.WithPrefix("server"),
		hub:    newHub(),
		index:  template.Must(template.ParseFS(templatesFS, "templates/index.html")),
		mux:    http.NewServeMux(),
		upgrader: websocket.Upgrader{
			CheckOrigin:     func(r *http.Request) bool { return true },
			ReadBufferSize:  1024,
			WriteBufferSize: 65536,
		},
	}
	s.routes()
	return s
}

func (s *Server) Handler() http.Handler { return s.mux }

func (s *Server) routes() {
	s.mux.HandleFunc("/", s.handleIndex)
	s.mux.HandleFunc("/api/state", s.handleState)
	s.mux.HandleFunc("/api/presets", s.handlePresets)
	s.mux.HandleFunc("/api/messages", s.handleMessages)
	s.mux.HandleFunc("/api/control/next", s.handleControl(receiver.ControlID.Next))
	s.mux.HandleFunc("/api/control/prev", s.handleControl(receiver.ControlID.Prev))
	for _, action := range actions {
		s.mux.HandleFunc("/api/"+action, s.handleCommand(action))
	}
	s.mux.Handle("/metrics", promhttp.HandlerFor(s.opts.Gatherer, promhttp.HandlerOpts{}))
	s.mux.HandleFunc("/ws", s.handleWS)
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" && r.URL.Path != "/index.html" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/html")
	data := struct {
		Presets []Preset
		Modes   []receiver.Mode
		FPS     int
	}{presets, receiver.Modes(), s.opts.FPS}
	if err := s.index.Execute(w, data); err != nil {
		s.logger.Error("render index", "err", err)
	}
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("upgrade", "err", err)
		return
	}

	client := &Client{id: uuid.New(), conn: conn, send: make(chan any, 64)}
	s.hub.add(client)
	s.logger.Info("client connected", "id", client.id, "remote", r.RemoteAddr)
	go client.writePump()

	defer func() {
		s.hub.remove(client)
		s.logger.Info("client disconnected", "id", client.id)
	}()

	client.send <- s.status()

	// Read pump: clients send the same requests as the HTTP API with an
	// "action" field naming the endpoint.
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var req apiRequest
		if err := json.Unmarshal(msg, &req); err != nil {
			s.hub.sendTo(client, errorMessage(err))
			continue
		}
		if _, err := s.dispatch(req.Action, req); err != nil {
			s.hub.sendTo(client, errorMessage(err))
		}
	}
}

func (h *hub) sendTo(c *Client, msg any) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if !h.clients[c] {
		return
	}
	select {
	case c.send <- msg:
	default:
	}
}

func errorMessage(err error) map[string]any {
	return map[string]any{"type": "error", "error": err.Error()}
}

// Run pushes spectrum rows at the configured rate and a status message
// once a second until ctx is done.
func (s *Server) Run(ctx context.Context) {
	ticker := time.NewTicker(time.Second / time.Duration(s.opts.FPS))
	defer ticker.Stop()
	frames := 0

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		if s.hub.len() == 0 {
			continue
		}
		latest, _ := s.opts.State.Spectrum(0)
		if len(latest) > 0 {
			s.hub.broadcast(dsp.NormalizeDB(latest, displayMinDB, displayMaxDB))
		}
		if frames%s.opts.FPS == 0 {
			s.hub.broadcast(s.status())
		}
		frames++
	}
}

// statusMessage is the JSON status frame and the /api/state body.
type statusMessage struct {
	Type      string                  `json:"type"`
	State     receiver.Snapshot       `json:"state"`
	Stats     *receiver.StatsSnapshot `json:"stats,omitempty"`
	Recording *record.Metadata        `json:"recording,omitempty"`
}

func (s *Server) status() statusMessage {
	msg := statusMessage{Type: "status", State: s.opts.State.Snapshot()}
	if s.opts.Stats != nil {
		st := s.opts.Stats()
		msg.Stats = &st
	}
	if s.opts.Recorder != nil {
		if meta, ok := s.opts.Recorder.Active(); ok {
			msg.Recording = &meta
		}
	}
	return msg
}
