package server

import (
	"context"
	"net/http"
	"time"

	"github.com/bytedance/sonic"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/sirupsen/logrus"

	"github.com/room4-2/voicerelay/config"
	"github.com/room4-2/voicerelay/session"
)

// Server exposes the chat socket, the transcription endpoint and a health probe.
type Server struct {
	httpServer  *http.Server
	router      chi.Router
	registry    *session.Registry
	relay       *session.Relay
	transcriber Transcriber
	config      *config.Config
	logger      *logrus.Entry
}

func New(cfg *config.Config, registry *session.Registry, relay *session.Relay, transcriber Transcriber, logger *logrus.Entry) *Server {
	s := &Server{
		registry:    registry,
		relay:       relay,
		transcriber: transcriber,
		config:      cfg,
		logger:      logger,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.RequestLogger(&middleware.DefaultLogFormatter{Logger: logger, NoColor: true}))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/ws", relay.ServeHTTP)
	r.Post("/transcribe/", s.handleTranscribe)
	r.Post("/transcribe", s.handleTranscribe)
	r.Get("/health", s.handleHealth)
	s.router = r

	s.httpServer = &http.Server{
		Addr:    cfg.Addr(),
		Handler: r,
		// No ReadTimeout/WriteTimeout, they would cut long-lived WebSocket connections.
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	return s
}

// Handler returns the routed handler, without the listener.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start begins listening for connections
func (s *Server) Start() error {
	s.logger.WithFields(logrus.Fields{
		"addr":       s.httpServer.Addr,
		"websocket":  "/ws",
		"transcribe": "/transcribe/",
	}).Info("server starting")
	return s.httpServer.ListenAndServe()
}

// Shutdown closes every session, then stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down server")
	s.registry.Shutdown()
	return s.httpServer.Shutdown(ctx)
}

type healthResponse struct {
	Status   string `json:"status"`
	Sessions int    `json:"sessions"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, healthResponse{Status: "ok", Sessions: s.registry.Count()})
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	body, err := sonic.Marshal(payload)
	if err != nil {
		s.logger.WithError(err).Error("failed to encode response")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}
