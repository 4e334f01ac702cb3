package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"
	"github.com/wricardo/obs-http-relay/relay/auth"
	"github.com/wricardo/obs-http-relay/relay/obsws"
	"github.com/wricardo/obs-http-relay/relay/service"
	"github.com/wricardo/obs-http-relay/transport/websocket"
)

// maxBodySize caps request bodies read by the relay handlers.
const maxBodySize = 1 << 20

// Error messages returned in {"status":"error"} bodies.
const (
	MsgTimeout          = "The upstream request timed out."
	MsgMalformedPayload = "Request body must be a JSON object."
	MsgNotConnected     = "Not connected to the upstream service."
	MsgConnectionClosed = "The upstream connection was closed."
	MsgBadBody          = "Failed to read request body."
	MsgBodyTooLarge     = "Request body too large."
)

// Server represents the relay HTTP server
type Server struct {
	relay     service.RelayService
	gate      *auth.Gate
	hub       *websocket.Hub
	staticDir string
	router    *mux.Router
}

// Option configures a Server.
type Option func(*Server)

// WithHub enables the /ws event stream.
func WithHub(hub *websocket.Hub) Option {
	return func(s *Server) {
		s.hub = hub
	}
}

// WithStaticDir serves files from dir for every path no other route handles.
func WithStaticDir(dir string) Option {
	return func(s *Server) {
		s.staticDir = dir
	}
}

// NewServer creates a new API server. A nil relay behaves like a relay with no
// upstream connection; a nil gate disables authentication.
func NewServer(relay service.RelayService, gate *auth.Gate, opts ...Option) *Server {
	if relay == nil {
		relay = service.NewRelayService(nil)
	}

	s := &Server{
		relay:  relay,
		gate:   gate,
		router: mux.NewRouter(),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.setupRoutes()
	return s
}

// setupRoutes configures all routes
func (s *Server) setupRoutes() {
	authorized := s.gate.Middleware(Deny)

	// Relay operations
	s.router.Handle("/emit/{type}", authorized(http.HandlerFunc(s.handleEmit))).Methods("POST")
	s.router.Handle("/call/{type}", authorized(http.HandlerFunc(s.handleCall))).Methods("POST")

	// Monitoring
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
	if s.hub != nil {
		s.router.HandleFunc("/ws", s.handleWebSocket)
	}

	// Static files
	if s.staticDir != "" {
		s.router.PathPrefix("/").Handler(http.FileServer(publicDir(s.staticDir)))
	}
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Response helpers
func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.Encode(data)
}

// respondPayload writes an upstream response without re-encoding its values.
func respondPayload(w http.ResponseWriter, p *obsws.Payload) {
	data, err := obsws.EncodePayload(p)
	if err != nil {
		log.Printf("Failed to encode response: %v", err)
		RespondError(w, err.Error())
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(append(data, '\n'))
}

// RespondError writes {"status":"error","error":message} with status 200.
func RespondError(w http.ResponseWriter, message string) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status": "error",
		"error":  message,
	})
}

// Deny reports an authorization failure in the relay's error format.
func Deny(w http.ResponseWriter, r *http.Request, err error) {
	log.Debugf("Rejected %s %s from %s: %v", r.Method, r.URL.Path, r.RemoteAddr, err)
	RespondError(w, err.Error())
}

func readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	if r.Body == nil {
		return nil, nil
	}
	defer r.Body.Close()
	return io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodySize))
}

// bodyErrorMessage maps a readBody failure to the message shown to HTTP clients.
func bodyErrorMessage(err error) string {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return MsgBodyTooLarge
	}
	return MsgBadBody
}

// Relay Handlers

func (s *Server) handleEmit(w http.ResponseWriter, r *http.Request) {
	requestType := mux.Vars(r)["type"]

	body, err := readBody(w, r)
	if err != nil {
		log.Warnf("emit %s not forwarded: %v", requestType, err)
		RespondError(w, bodyErrorMessage(err))
		return
	}

	s.relay.Emit(r.Context(), requestType, body)

	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleCall(w http.ResponseWriter, r *http.Request) {
	requestType := mux.Vars(r)["type"]

	body, err := readBody(w, r)
	if err != nil {
		log.Warnf("call %s not forwarded: %v", requestType, err)
		RespondError(w, bodyErrorMessage(err))
		return
	}

	resp, err := s.relay.Call(r.Context(), requestType, body)
	if err != nil {
		if r.Context().Err() != nil {
			log.Debugf("call %s abandoned by client: %v", requestType, err)
			return
		}
		log.Printf("call %s failed: %v", requestType, err)
		RespondError(w, callErrorMessage(err))
		return
	}

	respondPayload(w, resp)
}

// callErrorMessage maps relay errors to the message shown to HTTP clients.
func callErrorMessage(err error) string {
	switch {
	case obsws.IsTimeout(err):
		return MsgTimeout
	case errors.Is(err, service.ErrMalformedPayload):
		return MsgMalformedPayload
	case errors.Is(err, service.ErrUpstreamUnavailable):
		return MsgNotConnected
	case errors.Is(err, obsws.ErrConnectionClosed):
		return MsgConnectionClosed
	default:
		return err.Error()
	}
}

// Health check
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := s.relay.Status(r.Context())

	health := "healthy"
	if !status.Connected() {
		health = "degraded"
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":   health,
		"upstream": status.Upstream,
		"address":  status.Address,
		"pending":  status.Pending,
	})
}

// WebSocket Handler

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if err := s.gate.CheckRequest(r); err != nil {
		Deny(w, r, err)
		return
	}

	s.hub.ServeWS(w, r, websocket.ParseEventFilter(r.URL.Query().Get("events")))
}
