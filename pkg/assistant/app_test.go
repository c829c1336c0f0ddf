package assistant

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/teslashibe/go-respeaker/internal/config"
	"github.com/teslashibe/go-respeaker/internal/httpc"
	"github.com/teslashibe/go-respeaker/internal/log"
	"github.com/teslashibe/go-respeaker/pkg/hardware"
	"github.com/teslashibe/go-respeaker/pkg/pixelring"
	"github.com/teslashibe/go-respeaker/pkg/web"
)

// recognizer answers the first audio frame it sees with a final transcript.
type recognizer struct {
	srv    *httptest.Server
	frames atomic.Int64
}

func newRecognizer(t *testing.T) *recognizer {
	t.Helper()
	r := &recognizer{}
	upgrader := websocket.Upgrader{}
	r.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		conn, err := upgrader.Upgrade(w, req, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			kind, _, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if kind != websocket.BinaryMessage {
				continue
			}
			if r.frames.Add(1) == 1 {
				msg := `{"result": [{"conf": 1.0, "start": 0.0, "end": 0.5, "word": "hello"}], "text": "hello"}`
				if err := conn.WriteMessage(websocket.TextMessage, []byte(msg)); err != nil {
					return
				}
			}
		}
	}))
	t.Cleanup(r.srv.Close)
	return r
}

func (r *recognizer) url() string {
	return "ws" + strings.TrimPrefix(r.srv.URL, "http")
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func testConfig(asrURL string) config.Config {
	cfg := config.Default()
	cfg.WebSocketAddress = asrURL
	cfg.Hardware.Model = "emulated"
	cfg.MQTT.Address = ""
	cfg.Audio.Source = config.SourceMock
	cfg.Status.Address = "127.0.0.1:0"
	return cfg
}

func TestApp_SessionLifecycle(t *testing.T) {
	rec := newRecognizer(t)
	strip := hardware.NewEmulatedStrip(log.Discard())

	app, err := New(testConfig(rec.url()), Options{Logger: log.Discard(), Strip: strip})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := app.Init(context.Background()); err != nil {
		t.Fatalf("Init: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	runErr := make(chan error, 1)
	go func() { runErr <- app.Run(ctx) }()

	ctrl := app.Engine().Controller()
	hotword := "http://" + app.StatusAddr() + "/api/hotword?angle=90"
	if err := httpc.PostJSON(context.Background(), hotword, nil, nil); err != nil {
		t.Fatalf("POST hotword: %v", err)
	}

	waitFor(t, "wake request", func() bool { return ctrl.Requests(pixelring.EnteringUnmuted) >= 1 })
	waitFor(t, "audio streamed", func() bool { return rec.frames.Load() >= 1 })
	waitFor(t, "mute request", func() bool { return ctrl.Requests(pixelring.EnteringMuted) >= 1 })

	var st web.Status
	if err := httpc.GetJSON(context.Background(), "http://"+app.StatusAddr()+"/api/status", &st); err != nil {
		t.Fatalf("GET status: %v", err)
	}
	if !st.ASRConnected {
		t.Error("status should report the recognizer connected")
	}
	if st.Sessions.Started != 1 || st.Sessions.EndedByTranscript != 1 {
		t.Errorf("sessions = %+v, want one started and ended by transcript", st.Sessions)
	}
	if st.Session.Active {
		t.Error("session should be inactive after the final transcript")
	}


	cancel()
	select {
	case err := <-runErr:
		if err != nil {
			t.Errorf("Run = %v, want nil", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}

	if err := app.Shutdown(); err != nil {
		t.Errorf("Shutdown: %v", err)
	}
	if !strip.Closed() {
		t.Error("strip should be closed after shutdown")
	}
	if err := app.Shutdown(); err != nil {
		t.Errorf("second Shutdown: %v", err)
	}
}

func TestApp_StateOverHTTP(t *testing.T) {
	rec := newRecognizer(t)
	app, err := New(testConfig(rec.url()), Options{Logger: log.Discard()})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := app.Init(context.Background()); err != nil {
		t.Fatalf("Init: %v", err)
	}
	t.Cleanup(func() { app.Shutdown() })

	url := "http://" + app.StatusAddr() + "/api/state/listening"
	if err := httpc.PostJSON(context.Background(), url, nil, nil); err != nil {
		t.Fatalf("POST state: %v", err)
	}
	waitFor(t, "listening", func() bool { return app.Engine().State() == pixelring.Listening })
}

func TestApp_InitFailureReleasesHardware(t *testing.T) {
	rec := newRecognizer(t)
	url := rec.url()
	rec.srv.Close()

	strip := hardware.NewEmulatedStrip(log.Discard())
	app, err := New(testConfig(url), Options{Logger: log.Discard(), Strip: strip})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	err = app.Init(context.Background())
	if err == nil {
		t.Fatal("Init should fail with the recognizer down")
	}
	if !strings.Contains(err.Error(), "init asr") {
		t.Errorf("error = %v, want the asr step named", err)
	}
	if !strip.Closed() {
		t.Error("strip should be released after a failed init")
	}
}

func TestApp_RunBeforeInit(t *testing.T) {
	app, err := New(testConfig("ws://127.0.0.1:1"), Options{Logger: log.Discard()})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := app.Run(context.Background()); err == nil {
		t.Error("Run before Init should fail")
	}
}

func TestNew_InvalidConfig(t *testing.T) {
	cfg := testConfig("http://not-a-websocket")
	_, err := New(cfg, Options{})
	if !errors.Is(err, config.ErrInvalid) {
		t.Errorf("err = %v, want ErrInvalid", err)
	}
}
