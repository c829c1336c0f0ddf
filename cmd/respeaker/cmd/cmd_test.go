package cmd

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/teslashibe/go-respeaker/pkg/pixelring"
	"github.com/teslashibe/go-respeaker/pkg/web"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	t.Cleanup(func() { cfgFile = "" })
	err := rootCmd.Execute()
	return out.String(), err
}

func TestCheckConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	doc := "webSocketAddress: ws://asr.local:2700\naudio:\n  source: mock\nmqtt:\n  address: \"\"\n"
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatal(err)
	}

	out, err := execute(t, "check-config", "--config", path)
	if err != nil {
		t.Fatalf("check-config: %v", err)
	}
	if !strings.Contains(out, "ws://asr.local:2700") || !strings.Contains(out, "configuration OK") {
		t.Errorf("output = %q", out)
	}
}

func TestCheckConfig_Invalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(`{"webSocketAddress": "http://nope"}`), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := execute(t, "check-config", "--config", path); err == nil {
		t.Error("check-config should reject a non-websocket address")
	}
}

func TestStateAndStatus(t *testing.T) {
	var requested, hotwords []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && strings.HasPrefix(r.URL.Path, "/api/state/"):
			requested = append(requested, strings.TrimPrefix(r.URL.Path, "/api/state/"))
			w.Write([]byte(`{}`))
		case r.Method == http.MethodPost && r.URL.Path == "/api/hotword":
			hotwords = append(hotwords, r.URL.RawQuery)
			if r.URL.Query().Get("angle") == "999" {
				w.WriteHeader(http.StatusConflict)
				return
			}
			w.Write([]byte(`{}`))
		case r.URL.Path == "/api/status":
			json.NewEncoder(w).Encode(web.Status{State: pixelring.Listening, ASRConnected: true, Uptime: "1m0s"})
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	if _, err := execute(t, "state", "to_mute", "--addr", srv.URL); err != nil {
		t.Fatalf("state: %v", err)
	}
	if len(requested) != 1 || requested[0] != pixelring.EnteringMuted.String() {
		t.Errorf("requested = %v, want [%s]", requested, pixelring.EnteringMuted)
	}

	if _, err := execute(t, "state", "blinking", "--addr", srv.URL); err == nil {
		t.Error("unknown state should fail before any request")
	}
	if len(requested) != 1 {
		t.Errorf("unexpected request for an unknown state: %v", requested)
	}

	if _, err := execute(t, "hotword", "--angle", "270", "--addr", srv.URL); err != nil {
		t.Fatalf("hotword: %v", err)
	}
	if len(hotwords) != 1 || hotwords[0] != "index=1&angle=270" {
		t.Errorf("hotword queries = %v", hotwords)
	}
	if _, err := execute(t, "hotword", "--angle", "999", "--addr", srv.URL); err == nil {
		t.Error("hotword should fail on a 409")
	}
	hotwordAngle = 0

	out, err := execute(t, "status", "--addr", srv.URL)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if !strings.Contains(out, pixelring.Listening.String()) || !strings.Contains(out, "connected") {
		t.Errorf("status output = %q", out)
	}
}
