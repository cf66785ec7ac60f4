package api

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"babelchat/internal/config"
	"babelchat/internal/server"

	"github.com/gorilla/handlers"
)

type ChatApp struct {
	log            *log.Logger
	mux            *http.Server
	cs             *server.ChatServer
	allowedOrigins []string
}

func NewChatApp(mux *http.ServeMux, logger *log.Logger, cs *server.ChatServer, cfg *config.Config) *ChatApp {
	s := &ChatApp{
		log:            logger,
		cs:             cs,
		allowedOrigins: cfg.AllowedOrigins,
	}

	mux.HandleFunc("GET /api/rooms", s.listRooms)
	mux.HandleFunc("GET /ws", s.serveWs)
	mux.HandleFunc("GET /{$}", s.index)

	h := handlers.CORS(
		handlers.MaxAge(3600),
		handlers.AllowedOrigins(cfg.AllowedOrigins),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"Origin", "Content-Type", "Accept"}),
	)(mux)

	srv := &http.Server{
		Addr:    cfg.ServerAddr,
		Handler: h,
	}

	s.mux = srv
	return s
}

func (s *ChatApp) Start() error {
	s.log.Printf("starting server on %s\n", s.mux.Addr)
	return s.mux.ListenAndServe()
}

func (s *ChatApp) Shutdown(ctx context.Context) error {
	s.log.Println("shutting down HTTP server...")
	if err := s.mux.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	return nil
}
