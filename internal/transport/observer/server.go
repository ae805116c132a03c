// Package observer is the loopback debug endpoint: a small HTTP server
// with a websocket stream of per-tick engine stats, the pick buffer, and
// drained diagnostics. It reads the engine between frames and affects
// nothing the simulation computes.
package observer

import (
	"encoding/json"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"log"

	"github.com/gorilla/websocket"
)

// Version of the observer protocol.
const Version = "1.0"

// Stats is one published frame record.
type Stats struct {
	Type         string    `json:"type"`
	Tick         uint64    `json:"tick"`
	ActiveChunks int       `json:"active_chunks"`
	LoadedChunks int       `json:"loaded_chunks"`
	FreeSlots    int       `json:"free_slots"`
	DroppedCmds  uint64    `json:"dropped_cmds"`
	Pick         [8]uint32 `json:"pick"`
	WorldDigest  string    `json:"world_digest,omitempty"`
}

// StatsSource is what the engine exposes to the observer.
type StatsSource interface {
	ObserverStats() Stats
}

// Server publishes engine stats to subscribed loopback websockets.
type Server struct {
	source StatsSource
	log    *log.Logger

	upgrader websocket.Upgrader

	mu   sync.Mutex
	subs map[*websocket.Conn]struct{}
}

// NewServer builds an observer over a stats source.
func NewServer(source StatsSource, logger *log.Logger) *Server {
	return &Server{
		source: source,
		log:    logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  16 * 1024,
			WriteBufferSize: 16 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // loopback only
		},
		subs: map[*websocket.Conn]struct{}{},
	}
}

// StatsHandler serves a one-shot JSON stats document.
func (s *Server) StatsHandler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			rw.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}
		rw.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(rw).Encode(s.source.ObserverStats())
	}
}

// WSHandler upgrades a loopback connection and registers it for the
// per-frame stats stream.
func (s *Server) WSHandler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}
		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}

		s.mu.Lock()
		s.subs[conn] = struct{}{}
		s.mu.Unlock()

		// Reader loop exists only to notice the close.
		go func() {
			defer s.drop(conn)
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()
	}
}

// Publish pushes the current stats to every subscriber; called by the
// engine loop after each frame. Slow subscribers are dropped.
func (s *Server) Publish() {
	stats := s.source.ObserverStats()
	stats.Type = "STATS"
	payload, err := json.Marshal(stats)
	if err != nil {
		return
	}

	s.mu.Lock()
	conns := make([]*websocket.Conn, 0, len(s.subs))
	for c := range s.subs {
		conns = append(conns, c)
	}
	s.mu.Unlock()

	for _, c := range conns {
		_ = c.SetWriteDeadline(time.Now().Add(200 * time.Millisecond))
		if err := c.WriteMessage(websocket.TextMessage, payload); err != nil {
			s.drop(c)
		}
	}
}

func (s *Server) drop(conn *websocket.Conn) {
	s.mu.Lock()
	if _, ok := s.subs[conn]; ok {
		delete(s.subs, conn)
		_ = conn.Close()
	}
	s.mu.Unlock()
}

func isLoopbackRemote(remote string) bool {
	host, _, err := net.SplitHostPort(remote)
	if err != nil {
		host = remote
	}
	if strings.EqualFold(host, "localhost") {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
