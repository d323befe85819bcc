package main

import (
	"encoding/json"
	"net/http"
	"net/url"

	"github.com/charmbracelet/log"
	"github.com/gorilla/websocket"
	"github.com/skip2/go-qrcode"
)

const inviteSize = 256

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true // Non-browser clients don't send Origin
		}
		u, err := url.Parse(origin)
		if err != nil {
			return false
		}
		return u.Host == r.Host
	},
}

// statsResponse is the body of GET /stats
type statsResponse struct {
	StatsSnapshot
	Sessions []SessionInfo `json:"sessions"`
}

// SetupRoutes configures HTTP routes. Static files are served only when
// clientDir is non-empty.
func SetupRoutes(hub *Hub, stats *Stats, clientDir string) *http.ServeMux {
	mux := http.NewServeMux()

	if clientDir != "" {
		fs := http.FileServer(http.Dir(clientDir))
		mux.Handle("/", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Cache-Control", "no-cache")
			fs.ServeHTTP(w, r)
		}))
	}

	ws := func(w http.ResponseWriter, r *http.Request) {
		ip := extractIP(r)
		if !hub.CanAccept(ip) {
			http.Error(w, "too many connections", http.StatusServiceUnavailable)
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Warn("upgrade", "addr", ip, "err", err)
			return
		}

		hub.TrackConnect(ip)

		client := NewClient(hub, conn, ip, r.URL.Query().Get("codec") == "msgpack")
		hub.Register(client)

		go client.WritePump()
		go client.ReadPump()
	}
	mux.HandleFunc("/pong/", ws)
	mux.HandleFunc("/ws", ws)

	mux.HandleFunc("/stats", func(w http.ResponseWriter, r *http.Request) {
		resp := statsResponse{
			StatsSnapshot: stats.Snapshot(),
			Sessions:      hub.sessions.ListSessions(),
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(resp); err != nil {
			log.Warn("write stats", "err", err)
		}
	})

	mux.HandleFunc("/invite.png", func(w http.ResponseWriter, r *http.Request) {
		png, err := qrcode.Encode(joinURL(r), qrcode.Medium, inviteSize)
		if err != nil {
			http.Error(w, "qr encode failed", http.StatusInternalServerError)
			log.Error("qr encode", "err", err)
			return
		}
		w.Header().Set("Content-Type", "image/png")
		w.Header().Set("Cache-Control", "no-cache")
		w.Write(png)
	})

	return mux
}

// joinURL is the WebSocket address a second player connects to, as seen by
// the requester.
func joinURL(r *http.Request) string {
	scheme := "ws"
	if r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https" {
		scheme = "wss"
	}
	u := url.URL{Scheme: scheme, Host: r.Host, Path: "/pong/"}
	return u.String()
}
