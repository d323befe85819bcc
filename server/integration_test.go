package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/vmihailenco/msgpack/v5"
)

// ---------- helpers ----------

// startTestServer spins up an httptest.Server with a Hub and returns the
// server and its WebSocket join URL. Everything is torn down with the test.
func startTestServer(t *testing.T, clientDir string) (*httptest.Server, string) {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	stats := NewStats()
	hub := NewHub(fastProfile(), stats)
	go hub.Run(ctx)

	srv := httptest.NewServer(SetupRoutes(hub, stats, clientDir))
	t.Cleanup(func() {
		hub.Shutdown()
		cancel()
		srv.Close()
		stats.Stop()
	})

	return srv, "ws" + strings.TrimPrefix(srv.URL, "http") + "/pong/"
}

// dialWS opens a WebSocket connection to the test server.
func dialWS(t *testing.T, wsURL string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial WS: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

// frame is one decoded server message
type frame struct {
	binary bool
	fields map[string]any
}

func (f frame) typ() string {
	s, _ := f.fields["type"].(string)
	return s
}

// readFrame reads one message, decoding binary frames as msgpack.
func readFrame(t *testing.T, conn *websocket.Conn) frame {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	msgType, raw, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read WS: %v", err)
	}
	f := frame{binary: msgType == websocket.BinaryMessage}
	if f.binary {
		err = msgpack.Unmarshal(raw, &f.fields)
	} else {
		err = json.Unmarshal(raw, &f.fields)
	}
	if err != nil {
		t.Fatalf("decode %q: %v", raw, err)
	}
	return f
}

// readUntil skips frames until one of type typ arrives.
func readUntil(t *testing.T, conn *websocket.Conn, typ string) frame {
	t.Helper()
	for i := 0; i < 2000; i++ {
		if f := readFrame(t, conn); f.typ() == typ {
			return f
		}
	}
	t.Fatalf("no %s message received", typ)
	return frame{}
}

func sendJSON(t *testing.T, conn *websocket.Conn, msg any) {
	t.Helper()
	raw, _ := json.Marshal(msg)
	if err := conn.WriteMessage(websocket.TextMessage, raw); err != nil {
		t.Fatalf("write WS: %v", err)
	}
}

func number(t *testing.T, f frame, key string) float64 {
	t.Helper()
	switch v := f.fields[key].(type) {
	case float64:
		return v
	case int8:
		return float64(v)
	case uint8:
		return float64(v)
	case int64:
		return float64(v)
	}
	t.Fatalf("%s: not a number: %#v", key, f.fields[key])
	return 0
}

func vecField(t *testing.T, f frame, key string) Vec3 {
	t.Helper()
	arr, ok := f.fields[key].([]any)
	if !ok || len(arr) != 3 {
		t.Fatalf("%s: not a 3-vector: %#v", key, f.fields[key])
	}
	var v Vec3
	for i, x := range arr {
		fx, ok := x.(float64)
		if !ok {
			t.Fatalf("%s[%d]: not a float: %#v", key, i, x)
		}
		v[i] = fx
	}
	return v
}

// pair connects two players and consumes their player_num messages.
func pair(t *testing.T, wsURL string) (*websocket.Conn, *websocket.Conn) {
	t.Helper()
	a := dialWS(t, wsURL)
	if f := readFrame(t, a); f.typ() != MsgPlayerNum || number(t, f, "player_num") != 1 {
		t.Fatalf("expected player_num 1, got %+v", f.fields)
	}
	b := dialWS(t, wsURL)
	if f := readFrame(t, b); f.typ() != MsgPlayerNum || number(t, f, "player_num") != 2 {
		t.Fatalf("expected player_num 2, got %+v", f.fields)
	}
	return a, b
}

// ---------- tests ----------

func TestPairingOverWebSocket(t *testing.T) {
	_, wsURL := startTestServer(t, "")
	a, b := pair(t, wsURL)

	for _, conn := range []*websocket.Conn{a, b} {
		f := readUntil(t, conn, MsgPositions)
		if f.binary {
			t.Error("JSON clients should get text frames")
		}
		if vecField(t, f, "p1_bar_position") != (Vec3{-2.5, 0, 0}) {
			t.Errorf("unexpected p1 bar: %v", f.fields["p1_bar_position"])
		}
		vecField(t, f, "sphere_position")
	}
}

func TestMsgpackPositions(t *testing.T) {
	_, wsURL := startTestServer(t, "")

	a := dialWS(t, wsURL+"?codec=msgpack")
	if f := readFrame(t, a); f.binary || f.typ() != MsgPlayerNum {
		t.Fatalf("player_num should stay JSON text, got %+v", f)
	}
	b := dialWS(t, wsURL)
	readFrame(t, b)

	f := readUntil(t, a, MsgPositions)
	if !f.binary {
		t.Fatal("msgpack client should get binary positions")
	}
	if vecField(t, f, "p2_bar_position") != (Vec3{2.5, 0, 0}) {
		t.Errorf("unexpected p2 bar: %v", f.fields["p2_bar_position"])
	}

	if f := readUntil(t, b, MsgPositions); f.binary {
		t.Error("JSON client got a binary frame")
	}
}

func TestKeydownMovesPaddle(t *testing.T) {
	_, wsURL := startTestServer(t, "")
	_, b := pair(t, wsURL)

	sendJSON(t, b, InMessage{Type: MsgKeydown, PlayerNum: 2, Keycode: "ArrowRight"})

	for i := 0; i < 2000; i++ {
		f := readUntil(t, b, MsgPositions)
		if vecField(t, f, "p2_bar_position")[2] > 0 {
			return
		}
	}
	t.Fatal("paddle 2 never moved")
}

func TestMalformedInputIgnored(t *testing.T) {
	_, wsURL := startTestServer(t, "")
	a, _ := pair(t, wsURL)

	if err := a.WriteMessage(websocket.TextMessage, []byte("{not json")); err != nil {
		t.Fatal(err)
	}
	sendJSON(t, a, map[string]string{"type": "chat", "text": "hi"})

	// the connection stays up and keeps streaming
	readUntil(t, a, MsgPositions)
	readUntil(t, a, MsgPositions)
}

func TestCloseAwardsOpponent(t *testing.T) {
	_, wsURL := startTestServer(t, "")
	a, b := pair(t, wsURL)
	readUntil(t, b, MsgPositions)

	a.Close()

	f := readUntil(t, b, MsgGameOver)
	if number(t, f, "winner") != 2 || f.fields["detail"] != DetailDisconnected {
		t.Errorf("unexpected game over: %+v", f.fields)
	}
}

func TestDisconnectMessageLeaves(t *testing.T) {
	_, wsURL := startTestServer(t, "")
	a, b := pair(t, wsURL)
	readUntil(t, a, MsgPositions)

	sendJSON(t, b, InMessage{Type: MsgDisconnect})

	f := readUntil(t, a, MsgGameOver)
	if number(t, f, "winner") != 1 {
		t.Errorf("expected player 1 to win, got %+v", f.fields)
	}

	// the server closes the leaver's connection
	b.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		if _, _, err := b.ReadMessage(); err != nil {
			break
		}
	}
}

func TestStatsEndpoint(t *testing.T) {
	srv, wsURL := startTestServer(t, "")
	pair(t, wsURL)

	var body struct {
		StatsSnapshot
		Sessions []SessionInfo `json:"sessions"`
	}
	waitFor(t, "stats to see the match", func() bool {
		resp, err := http.Get(srv.URL + "/stats")
		if err != nil {
			t.Fatalf("GET /stats: %v", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("expected 200, got %d", resp.StatusCode)
		}
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
			t.Fatalf("decode stats: %v", err)
		}
		return body.MatchesStarted == 1 && body.ConnectedPeers == 2
	})
	if len(body.Sessions) != 1 || body.Sessions[0].Phase != "running" || len(body.Sessions[0].Members) != 2 {
		t.Errorf("unexpected sessions: %+v", body.Sessions)
	}
}

func TestInviteQR(t *testing.T) {
	srv, _ := startTestServer(t, "")

	resp, err := http.Get(srv.URL + "/invite.png")
	if err != nil {
		t.Fatalf("GET /invite.png: %v", err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "image/png" {
		t.Errorf("expected image/png, got %s", ct)
	}
	var buf bytes.Buffer
	buf.ReadFrom(resp.Body)
	if !bytes.HasPrefix(buf.Bytes(), []byte("\x89PNG")) {
		t.Error("body is not a PNG")
	}
}

func TestJoinURL(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "http://pong.example:8000/invite.png", nil)
	if got := joinURL(r); got != "ws://pong.example:8000/pong/" {
		t.Errorf("got %s", got)
	}
	r.Header.Set("X-Forwarded-Proto", "https")
	if got := joinURL(r); got != "wss://pong.example:8000/pong/" {
		t.Errorf("got %s", got)
	}
}

func TestStaticFiles(t *testing.T) {
	srv, _ := startTestServer(t, "")
	resp, err := http.Get(srv.URL + "/index.html")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("no client dir: expected 404, got %d", resp.StatusCode)
	}

	dir := t.TempDir()
	os.WriteFile(filepath.Join(dir, "index.html"), []byte("<html>pong</html>"), 0o644)
	srv, _ = startTestServer(t, dir)
	resp, err = http.Get(srv.URL + "/")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected 200, got %d", resp.StatusCode)
	}
	if resp.Header.Get("Cache-Control") != "no-cache" {
		t.Error("static files should be served with no-cache")
	}
}

func TestPerIPConnectionLimit(t *testing.T) {
	_, wsURL := startTestServer(t, "")

	for i := 0; i < maxConnsPerIP; i++ {
		conn := dialWS(t, wsURL)
		// player_num arrives only after the connection is counted
		readUntil(t, conn, MsgPlayerNum)
	}
	_, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err == nil {
		t.Fatal("expected the connection to be refused")
	}
	if resp == nil || resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("expected 503, got %+v", resp)
	}
}
