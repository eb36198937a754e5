// Package httpapi exposes the operational HTTP surface: health, metrics, and
// the websocket live preview of the stream.
package httpapi

import (
	"bytes"
	"encoding/json"
	"image"
	"image/png"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/antoniostano/crowdplay/internal/config"
	"github.com/antoniostano/crowdplay/internal/observability"
	"github.com/antoniostano/crowdplay/internal/stream"
)

// Session is the view of the orchestrator the HTTP surface needs.
type Session interface {
	Running() bool
	Paused() bool
	PreviewEnabled() bool
	Engine() *stream.Engine
}

type Server struct {
	cfg      config.Config
	session  Session
	metrics  *observability.Metrics
	upgrader websocket.Upgrader
}

func New(cfg config.Config, session Session, metrics *observability.Metrics) *Server {
	return &Server{
		cfg:     cfg,
		session: session,
		metrics: metrics,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				// Default: only allow browser websocket connections from the
				// same origin, so a random website cannot attach itself to
				// the preview if the service is ever exposed beyond localhost.
				if cfg.AllowAnyOrigin {
					return true
				}
				origin := strings.TrimSpace(r.Header.Get("Origin"))
				if origin == "" {
					// Non-browser clients often omit Origin. Allow them.
					return true
				}
				u, err := url.Parse(origin)
				if err != nil {
					return false
				}
				if u.Scheme != "http" && u.Scheme != "https" {
					return false
				}
				return strings.EqualFold(u.Host, r.Host)
			},
		},
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleHealth)
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		observability.MetricsHandler().ServeHTTP(w, r)
	})

	r.Get("/v1/stream/ws", s.handlePreviewWS)

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"running": s.session.Running(),
		"paused":  s.session.Paused(),
		"preview": s.session.PreviewEnabled(),
	})
}

// previewConsumer forwards rendered frames to one websocket client. A slow
// client drops frames instead of stalling the render loop.
type previewConsumer struct {
	frames chan []byte
}

func (p *previewConsumer) AcceptFrame(frame *image.RGBA) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, frame); err != nil {
		return
	}
	select {
	case p.frames <- buf.Bytes():
	default:
	}
}

func (p *previewConsumer) AcceptBatch([]byte) {}

func (s *Server) handlePreviewWS(w http.ResponseWriter, r *http.Request) {
	if !s.session.PreviewEnabled() {
		respondError(w, http.StatusForbidden, "preview_disabled", "enable the local display first")
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	consumer := &previewConsumer{frames: make(chan []byte, 4)}
	s.session.Engine().AddConsumer(consumer)
	defer s.session.Engine().RemoveConsumer(consumer)

	done := make(chan struct{})
	go func() {
		defer close(done)
		// Drain the read side so close frames and pings are processed.
		conn.SetReadLimit(1 << 10)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-done:
			return
		case <-r.Context().Done():
			return
		case frame := <-consumer.frames:
			_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := conn.WriteMessage(websocket.BinaryMessage, frame); err != nil {
				return
			}
		}
	}
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("httpapi: encoding response: %v", err)
	}
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, errorResponse{Error: message, Code: code})
}
