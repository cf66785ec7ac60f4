package api

import (
	_ "embed"
	"encoding/json"
	"net/http"
	"slices"

	"babelchat/internal/server"

	"github.com/gorilla/websocket"
)

//go:embed index.html
var indexHTML []byte

func (s *ChatApp) writeJson(w http.ResponseWriter, statusCode int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if v == nil {
		return
	}

	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Printf("json encode: %v", err)
	}
}

func (s *ChatApp) listRooms(w http.ResponseWriter, r *http.Request) {
	s.writeJson(w, http.StatusOK, s.cs.ListRooms())
}

func (s *ChatApp) index(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(indexHTML)
}

func (s *ChatApp) serveWs(w http.ResponseWriter, r *http.Request) {
	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" || len(s.allowedOrigins) == 0 {
				return true
			}

			return slices.Contains(s.allowedOrigins, origin)
		},
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Println("error upgrading connection:", err)
		return
	}

	client := server.NewClient(conn, s.cs, s.log)
	s.cs.RegisterChan <- client

	go client.Write()
	go client.Read()
}
