package bridge

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nupi-ai/comfort/internal/geometry"
	"github.com/nupi-ai/comfort/internal/i18n"
	"github.com/nupi-ai/comfort/internal/page"
	"github.com/nupi-ai/comfort/internal/session"
	"github.com/nupi-ai/comfort/internal/sites"
)

type testPage struct {
	t    *testing.T
	conn *websocket.Conn
}

func startHub(t *testing.T, originAllowed func(string) bool) (*Hub, *session.Manager, string) {
	t.Helper()
	return startHubWith(t, sites.NewRegistry(), originAllowed)
}

func startHubWith(t *testing.T, registry *sites.Registry, originAllowed func(string) bool) (*Hub, *session.Manager, string) {
	t.Helper()
	catalog, err := i18n.LoadEmbedded("en")
	if err != nil {
		t.Fatalf("load catalog: %v", err)
	}
	manager := session.NewManager(session.Config{})
	hub := NewHub(manager, registry, catalog, originAllowed)

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", hub.HandleWebSocket)
	srv := httptest.NewServer(mux)
	t.Cleanup(func() {
		hub.Shutdown()
		srv.Close()
		manager.CloseAll()
	})
	return hub, manager, "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
}

func dial(t *testing.T, url string) *testPage {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return &testPage{t: t, conn: conn}
}

func (p *testPage) sendMsg(msgType string, data any) {
	p.t.Helper()
	raw, err := json.Marshal(data)
	if err != nil {
		p.t.Fatalf("marshal: %v", err)
	}
	if err := p.conn.WriteJSON(Message{Type: msgType, Data: raw, Timestamp: time.Now()}); err != nil {
		p.t.Fatalf("write %s: %v", msgType, err)
	}
}

// expect reads until a message of msgType arrives and decodes its payload.
func (p *testPage) expect(msgType string, out any) {
	p.t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	p.conn.SetReadDeadline(deadline)
	for {
		var msg Message
		if err := p.conn.ReadJSON(&msg); err != nil {
			p.t.Fatalf("waiting for %s: %v", msgType, err)
		}
		if msg.Type != msgType {
			continue
		}
		if out != nil {
			if err := json.Unmarshal(msg.Data, out); err != nil {
				p.t.Fatalf("decode %s: %v", msgType, err)
			}
		}
		return
	}
}

func TestBridgeToggleRoundTrip(t *testing.T) {
	_, manager, url := startHub(t, nil)
	p := dial(t, url)

	p.sendMsg(TypeHello, Hello{
		PageID:   "tab-1",
		Origin:   "https://www.youtube.com",
		Locale:   "ja-JP",
		Viewport: geometry.Size{Width: 800, Height: 800},
	})
	var ready readyPayload
	p.expect(TypeReady, &ready)
	if ready.PageID != "tab-1" || ready.Site != string(sites.KindYouTube) || ready.Locale != "ja" {
		t.Fatalf("ready = %+v", ready)
	}

	original := page.Style{Position: "absolute", Width: "640px", Height: "360px"}
	p.sendMsg(TypeVideos, videosPayload{Videos: []VideoState{{
		ID:     "v1",
		Width:  1920,
		Height: 1080,
		Rect:   geometry.Rect{Width: 640, Height: 360},
		Style:  original,
	}}})

	p.sendMsg(TypeToggle, requestPayload{RequestID: "r1"})
	var applied stylePayload
	p.expect(TypeStyle, &applied)
	if applied.VideoID != "v1" || applied.Style != page.FittedStyle(geometry.Rect{Top: 175, Width: 800, Height: 450}) {
		t.Fatalf("applied style = %+v", applied)
	}
	var exit exitAffordancePayload
	p.expect(TypeExitAffordance, &exit)
	if !exit.Visible || exit.Tooltip == "" || exit.Tooltip == i18n.KeyExitTooltip {
		t.Fatalf("exit affordance = %+v", exit)
	}
	var ack Ack
	p.expect(TypeAck, &ack)
	if ack.RequestID != "r1" || !ack.Success || !ack.Active {
		t.Fatalf("ack = %+v", ack)
	}

	st, err := manager.Get("tab-1")
	if err != nil {
		t.Fatalf("get page: %v", err)
	}
	if !st.Status().Active {
		t.Fatal("manager should report the page active")
	}

	p.sendMsg(TypeKeyDown, keyPayload{Key: "Escape"})
	var restored stylePayload
	p.expect(TypeStyle, &restored)
	if restored.Style != original {
		t.Fatalf("restored style = %+v, want %+v", restored.Style, original)
	}
}

func TestBridgeToggleWithoutVideos(t *testing.T) {
	_, _, url := startHub(t, nil)
	p := dial(t, url)

	p.sendMsg(TypeHello, Hello{Origin: "https://example.com", Viewport: geometry.Size{Width: 100, Height: 100}})
	var ready readyPayload
	p.expect(TypeReady, &ready)
	if ready.PageID == "" || ready.Site != "" {
		t.Fatalf("ready = %+v", ready)
	}

	p.sendMsg(TypeToggle, requestPayload{RequestID: "r"})
	var alert alertPayload
	p.expect(TypeAlert, &alert)
	if alert.Message == "" {
		t.Fatal("expected a localized alert")
	}
	var ack Ack
	p.expect(TypeAck, &ack)
	if !ack.Success || ack.Active || !ack.NoVideo {
		t.Fatalf("ack = %+v", ack)
	}
}

func TestBridgeReadyCarriesControlsSelector(t *testing.T) {
	dir := t.TempDir()
	adapter := `module.exports = { kind: "vimeo", hosts: ["player.vimeo.com"], selector: ".vp-controls" };`
	if err := os.WriteFile(filepath.Join(dir, "vimeo.js"), []byte(adapter), 0o644); err != nil {
		t.Fatalf("write adapter: %v", err)
	}
	registry := sites.NewRegistry()
	if n, err := registry.LoadAdapters(dir); err != nil || n != 1 {
		t.Fatalf("load adapters: n=%d err=%v", n, err)
	}
	_, _, url := startHubWith(t, registry, nil)

	tests := []struct {
		origin       string
		wantSite     string
		wantSelector string
	}{
		{origin: "https://www.youtube.com", wantSite: string(sites.KindYouTube), wantSelector: ".ytp-right-controls"},
		{origin: "https://www.primevideo.com", wantSite: string(sites.KindPrimeVideo), wantSelector: "div.atvwebplayersdk-hideabletopbuttons-container"},
		{origin: "https://player.vimeo.com", wantSite: "vimeo", wantSelector: ".vp-controls"},
		{origin: "https://example.com", wantSite: "", wantSelector: ""},
	}
	for _, tt := range tests {
		t.Run(tt.origin, func(t *testing.T) {
			p := dial(t, url)
			p.sendMsg(TypeHello, Hello{Origin: tt.origin})
			var ready readyPayload
			p.expect(TypeReady, &ready)
			if ready.Site != tt.wantSite || ready.ControlsSelector != tt.wantSelector {
				t.Fatalf("ready = %+v", ready)
			}
		})
	}
}

func TestBridgeRequiresHello(t *testing.T) {
	_, _, url := startHub(t, nil)
	p := dial(t, url)

	p.sendMsg(TypeCursorMove, pointPayload{X: 1, Y: 1})
	var e errorPayload
	p.expect(TypeError, &e)
	if !strings.Contains(e.Message, "hello") {
		t.Fatalf("error = %q", e.Message)
	}

	p.sendMsg(TypeSettingsUpdated, requestPayload{RequestID: "s"})
	p.expect(TypeError, &e)
}

func TestBridgeSettingsUpdatedAcks(t *testing.T) {
	_, _, url := startHub(t, nil)
	p := dial(t, url)
	p.sendMsg(TypeHello, Hello{Origin: "https://www.youtube.com"})
	p.expect(TypeReady, nil)

	p.sendMsg(TypeSettingsUpdated, requestPayload{RequestID: "s1"})
	var ack Ack
	p.expect(TypeAck, &ack)
	if ack.RequestID != "s1" || !ack.Success {
		t.Fatalf("ack = %+v", ack)
	}
}

func TestBridgeDisconnectClosesPage(t *testing.T) {
	hub, manager, url := startHub(t, nil)
	p := dial(t, url)
	p.sendMsg(TypeHello, Hello{PageID: "gone", Origin: "https://www.primevideo.com"})
	p.expect(TypeReady, nil)

	if hub.ClientCount() != 1 {
		t.Fatalf("clients = %d", hub.ClientCount())
	}
	p.conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for {
		if _, err := manager.Get("gone"); err != nil && hub.ClientCount() == 0 {
			return
		}
		if time.Now().After(deadline) {
			t.Fatal("page still registered after disconnect")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestBridgeRejectsDisallowedOrigin(t *testing.T) {
	_, _, url := startHub(t, AllowOrigins([]string{"https://www.youtube.com"}))

	header := http.Header{}
	header.Set("Origin", "https://evil.example")
	if _, _, err := websocket.DefaultDialer.Dial(url, header); err == nil {
		t.Fatal("expected handshake to fail")
	}

	header.Set("Origin", "https://WWW.youtube.com")
	conn, _, err := websocket.DefaultDialer.Dial(url, header)
	if err != nil {
		t.Fatalf("allowed origin rejected: %v", err)
	}
	conn.Close()
}

func TestAllowOrigins(t *testing.T) {
	tests := []struct {
		name    string
		allowed []string
		origin  string
		want    bool
	}{
		{name: "empty list", allowed: nil, origin: "https://anything", want: true},
		{name: "match", allowed: []string{"https://www.amazon.com"}, origin: "https://www.amazon.com", want: true},
		{name: "scheme differs", allowed: []string{"https://www.amazon.com"}, origin: "http://www.amazon.com", want: false},
		{name: "garbage", allowed: []string{"https://www.amazon.com"}, origin: "::", want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := AllowOrigins(tt.allowed)(tt.origin); got != tt.want {
				t.Fatalf("AllowOrigins(%v)(%q) = %v, want %v", tt.allowed, tt.origin, got, tt.want)
			}
		})
	}
}

func TestRemotePageReplaceDetachesMissing(t *testing.T) {
	var out recordingSender
	p := newRemotePage(&out, geometry.Size{Width: 10, Height: 10})
	p.replace([]VideoState{{ID: "a", Width: 1, Height: 1}, {ID: "b", Width: 1, Height: 1}})
	a, _ := p.video("a")

	p.replace([]VideoState{{ID: "b", Width: 1, Height: 1}})
	if a.Connected() {
		t.Fatal("video missing from the inventory should be detached")
	}
	if got := p.FindPlayableVideos(); len(got) != 1 || got[0].ID() != "b" {
		t.Fatalf("videos = %v", got)
	}

	b, _ := p.video("b")
	b.SetMarked(true)
	b.SetStyle(page.Style{Position: "fixed", Width: "10px", Height: "10px", Top: "0px", Left: "0px"})
	p.replace([]VideoState{{ID: "b", Width: 1, Height: 1, Style: page.Style{Position: "static"}}})
	if b.Style().Position != "fixed" {
		t.Fatal("reported style must not override a maximised video")
	}
	if len(out.types) != 2 || out.types[0] != TypeMark || out.types[1] != TypeStyle {
		t.Fatalf("outbound = %v", out.types)
	}
}

type recordingSender struct {
	types []string
}

func (r *recordingSender) send(msgType string, _ any) {
	r.types = append(r.types, msgType)
}
