package ws

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"marketmelee.ai/internal/animation"
	"marketmelee.ai/internal/protocol"
	"marketmelee.ai/internal/sim/boxer"
)

func dial(t *testing.T, srv *httptest.Server, hello protocol.HelloMsg) (*websocket.Conn, protocol.WelcomeMsg) {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	if err := conn.WriteJSON(hello); err != nil {
		t.Fatalf("write hello: %v", err)
	}
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var welcome protocol.WelcomeMsg
	if err := conn.ReadJSON(&welcome); err != nil {
		t.Fatalf("read welcome: %v", err)
	}
	return conn, welcome
}

func waitSubscribers(t *testing.T, s *Server, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for s.Subscribers() != n {
		if time.Now().After(deadline) {
			t.Fatalf("subscribers=%d want %d", s.Subscribers(), n)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestServer_HelloWelcomeAndFilteredAnimation(t *testing.T) {
	s := NewServer(nil)
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	all, w1 := dial(t, srv, protocol.HelloMsg{Type: protocol.TypeHello, ProtocolVersion: protocol.Version, RendererName: "all"})
	defer all.Close()
	btc, w2 := dial(t, srv, protocol.HelloMsg{Type: protocol.TypeHello, ProtocolVersion: protocol.Version, RendererName: "btc", Tokens: []string{"BTC"}})
	defer btc.Close()
	if w1.Type != protocol.TypeWelcome || w1.SessionID == "" || w1.SessionID == w2.SessionID {
		t.Fatalf("welcomes %+v %+v", w1, w2)
	}
	waitSubscribers(t, s, 2)

	at := time.UnixMilli(1_700_000_000_000)
	_ = s.Deliver(context.Background(), animation.Request{Token: "ETH", Move: boxer.MoveDodge, Revision: 4, At: at})
	_ = s.Deliver(context.Background(), animation.Request{Token: "BTC", Move: boxer.MoveCombo, Revision: 2, At: at})

	var got protocol.AnimationMsg
	_ = btc.SetReadDeadline(time.Now().Add(2 * time.Second))
	if err := btc.ReadJSON(&got); err != nil {
		t.Fatalf("read: %v", err)
	}
	if got.Token != "BTC" || got.Move != "Combo" || got.Revision != 2 || got.TS != at.UnixMilli() {
		t.Fatalf("btc renderer got %+v", got)
	}

	_ = all.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, raw, err := all.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if err := protocol.Validate(protocol.SchemaAnimation, raw); err != nil {
		t.Fatalf("animation message fails schema: %v", err)
	}
	if err := json.Unmarshal(raw, &got); err != nil || got.Token != "ETH" {
		t.Fatalf("all renderer got %s", raw)
	}

	all.Close()
	waitSubscribers(t, s, 1)
}

func TestServer_RejectsNonHello(t *testing.T) {
	s := NewServer(nil)
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	_ = conn.WriteJSON(map[string]string{"type": "ANIMATION"})
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Fatalf("expected close after bad handshake")
	}
	if s.Subscribers() != 0 {
		t.Fatalf("subscriber registered without HELLO")
	}
}

func TestServer_DeliverWithoutSubscribers(t *testing.T) {
	s := NewServer(nil)
	if err := s.Deliver(context.Background(), animation.Request{Token: "X", Move: boxer.MoveJab, Revision: 2}); err != nil {
		t.Fatalf("Deliver: %v", err)
	}
}

func TestServer_IdleRendererKeptAliveByPings(t *testing.T) {
	s := NewServer(nil)
	s.pingEvery = 40 * time.Millisecond
	s.pongWait = 150 * time.Millisecond
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	conn, _ := dial(t, srv, protocol.HelloMsg{Type: protocol.TypeHello, ProtocolVersion: protocol.Version, RendererName: "idle"})
	defer conn.Close()
	_ = conn.SetReadDeadline(time.Time{})

	// The renderer only reads; gorilla answers pings while reading.
	frames := make(chan []byte, 4)
	go func() {
		for {
			_, b, err := conn.ReadMessage()
			if err != nil {
				close(frames)
				return
			}
			frames <- b
		}
	}()
	waitSubscribers(t, s, 1)

	time.Sleep(4 * s.pongWait)
	if n := s.Subscribers(); n != 1 {
		t.Fatalf("idle renderer disconnected: subscribers=%d", n)
	}

	_ = s.Deliver(context.Background(), animation.Request{Token: "BTC", Move: boxer.MoveHook, Revision: 3, At: time.Now()})
	select {
	case b, ok := <-frames:
		if !ok {
			t.Fatalf("connection closed before animation arrived")
		}
		var got protocol.AnimationMsg
		if err := json.Unmarshal(b, &got); err != nil || got.Move != "Hook" || got.Revision != 3 {
			t.Fatalf("got %s", b)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("animation not delivered to idle renderer")
	}
}

func TestServer_UnresponsiveRendererDropped(t *testing.T) {
	s := NewServer(nil)
	s.pingEvery = 20 * time.Millisecond
	s.pongWait = 100 * time.Millisecond
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	// Never reads after WELCOME, so pings go unanswered.
	conn, _ := dial(t, srv, protocol.HelloMsg{Type: protocol.TypeHello, ProtocolVersion: protocol.Version, RendererName: "stuck"})
	defer conn.Close()
	waitSubscribers(t, s, 1)
	waitSubscribers(t, s, 0)
}
