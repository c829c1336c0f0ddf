package web

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/teslashibe/go-respeaker/internal/log"
	"github.com/teslashibe/go-respeaker/pkg/pixelring"
	"github.com/teslashibe/go-respeaker/pkg/session"
)

type fakeStates struct {
	mu   sync.Mutex
	reqs []pixelring.State
}

func (f *fakeStates) RequestState(s pixelring.State) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reqs = append(f.reqs, s)
}

func (f *fakeStates) requested() []pixelring.State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]pixelring.State(nil), f.reqs...)
}

func newTestServer(addr string) (*Server, *fakeStates) {
	states := &fakeStates{}
	status := func() Status {
		return Status{
			State:        pixelring.Idle,
			ASRConnected: true,
			Session:      session.Session{Active: true, Direction: 45},
		}
	}
	return NewServer(addr, states, status, log.Discard()), states
}

func TestHandleStatus(t *testing.T) {
	s, _ := newTestServer(":0")

	resp, err := s.app.Test(httptest.NewRequest(http.MethodGet, "/api/status", nil))
	if err != nil {
		t.Fatalf("Test: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}

	var got map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got["state"] != "idle" || got["asr_connected"] != true {
		t.Errorf("status body = %v", got)
	}
	sess, _ := got["session"].(map[string]any)
	if sess["direction"] != float64(45) {
		t.Errorf("session = %v", sess)
	}
	if _, ok := got["subscribers"].(map[string]any); !ok {
		t.Errorf("subscribers missing from %v", got)
	}
}

func TestHandleRequestState(t *testing.T) {
	tests := []struct {
		name       string
		path       string
		wantStatus int
		wantState  pixelring.State
	}{
		{"canonical", "/api/state/listening", http.StatusOK, pixelring.Listening},
		{"alias", "/api/state/to_mute", http.StatusOK, pixelring.EnteringMuted},
		{"unknown", "/api/state/dancing", http.StatusBadRequest, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, states := newTestServer(":0")
			resp, err := s.app.Test(httptest.NewRequest(http.MethodPost, tt.path, nil))
			if err != nil {
				t.Fatalf("Test: %v", err)
			}
			if resp.StatusCode != tt.wantStatus {
				body, _ := io.ReadAll(resp.Body)
				t.Fatalf("status = %d, body %s", resp.StatusCode, body)
			}

			reqs := states.requested()
			if tt.wantStatus != http.StatusOK {
				if len(reqs) != 0 {
					t.Errorf("unexpected requests %v", reqs)
				}
				return
			}
			if len(reqs) != 1 || reqs[0] != tt.wantState {
				t.Errorf("requests = %v, want [%v]", reqs, tt.wantState)
			}
		})
	}
}

func TestHandleHotword(t *testing.T) {
	tests := []struct {
		name       string
		trigger    bool
		path       string
		wantStatus int
		wantCall   [2]int
	}{
		{"angle", true, "/api/hotword?angle=270", http.StatusOK, [2]int{1, 270}},
		{"defaults", true, "/api/hotword", http.StatusOK, [2]int{1, 0}},
		{"index", true, "/api/hotword?index=2&angle=90", http.StatusOK, [2]int{2, 90}},
		{"bad angle", true, "/api/hotword?angle=400", http.StatusBadRequest, [2]int{}},
		{"sidecar source", false, "/api/hotword?angle=90", http.StatusConflict, [2]int{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, _ := newTestServer(":0")
			var calls [][2]int
			if tt.trigger {
				s.SetHotwordTrigger(func(index, angle int) {
					calls = append(calls, [2]int{index, angle})
				})
			}

			resp, err := s.app.Test(httptest.NewRequest(http.MethodPost, tt.path, nil))
			if err != nil {
				t.Fatalf("Test: %v", err)
			}
			if resp.StatusCode != tt.wantStatus {
				body, _ := io.ReadAll(resp.Body)
				t.Fatalf("status = %d, body %s", resp.StatusCode, body)
			}

			if tt.wantStatus != http.StatusOK {
				if len(calls) != 0 {
					t.Errorf("unexpected trigger calls %v", calls)
				}
				return
			}
			if len(calls) != 1 || calls[0] != tt.wantCall {
				t.Errorf("calls = %v, want [%v]", calls, tt.wantCall)
			}
		})
	}
}

func TestHandleListStates(t *testing.T) {
	s, _ := newTestServer(":0")
	resp, err := s.app.Test(httptest.NewRequest(http.MethodGet, "/api/states", nil))
	if err != nil {
		t.Fatalf("Test: %v", err)
	}
	var names []string
	if err := json.NewDecoder(resp.Body).Decode(&names); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(names) != int(pixelring.NumStates) {
		t.Errorf("names = %v", names)
	}
}

func TestStatusWS_RequiresUpgrade(t *testing.T) {
	s, _ := newTestServer(":0")
	resp, err := s.app.Test(httptest.NewRequest(http.MethodGet, "/ws/status", nil))
	if err != nil {
		t.Fatalf("Test: %v", err)
	}
	if resp.StatusCode != http.StatusUpgradeRequired {
		t.Errorf("status = %d, want 426", resp.StatusCode)
	}
}

func TestStatusWS_Stream(t *testing.T) {
	s, _ := newTestServer("127.0.0.1:0")
	if err := s.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer s.Shutdown(context.Background())

	conn, _, err := websocket.DefaultDialer.Dial("ws://"+s.Addr()+"/ws/status", nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(3 * time.Second))

	var first map[string]any
	if err := conn.ReadJSON(&first); err != nil {
		t.Fatalf("read initial status: %v", err)
	}
	if first["state"] != "idle" {
		t.Errorf("initial status = %v", first)
	}

	s.NotifyState(pixelring.Idle, pixelring.EnteringUnmuted)

	var ev map[string]any
	if err := conn.ReadJSON(&ev); err != nil {
		t.Fatalf("read event: %v", err)
	}
	if ev["type"] != "state" || ev["state"] != "unmuting" || ev["prev"] != "idle" {
		t.Errorf("event = %v", ev)
	}

	s.NotifySession(session.Event{Kind: session.EventStarted, Session: session.Session{Active: true}})
	if err := conn.ReadJSON(&ev); err != nil {
		t.Fatalf("read session event: %v", err)
	}
	if ev["type"] != "session" || ev["kind"] != "started" {
		t.Errorf("session event = %v", ev)
	}
}
