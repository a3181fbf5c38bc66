package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gm-agent-org/neuralmap-bridge/pkg/agent/tools"
	"github.com/gm-agent-org/neuralmap-bridge/pkg/bridge"
	"github.com/gm-agent-org/neuralmap-bridge/pkg/config"
	"github.com/gm-agent-org/neuralmap-bridge/pkg/controlplane"
	"github.com/gm-agent-org/neuralmap-bridge/pkg/types"
)

type stubBridge struct {
	state     bridge.ConnectionState
	snapshot  *types.ApplicationSnapshot
	result    json.RawMessage
	err       error
	refreshed bool
	lastName  string
}

func (b *stubBridge) OnSnapshot(bridge.SnapshotHandler) {}
func (b *stubBridge) OnStateChange(bridge.StateHandler) {}
func (b *stubBridge) State() bridge.ConnectionState     { return b.state }
func (b *stubBridge) Attempts() int                     { return 3 }
func (b *stubBridge) RequestStateRefresh()              { b.refreshed = true }

func (b *stubBridge) Snapshot() (types.ApplicationSnapshot, bool) {
	if b.snapshot == nil {
		return types.ApplicationSnapshot{}, false
	}
	return *b.snapshot, true
}

func (b *stubBridge) SendCommand(_ context.Context, name string, _ any) (json.RawMessage, error) {
	b.lastName = name
	return b.result, b.err
}

func newTestServer(t *testing.T, b *stubBridge, httpCfg config.HTTPConfig) *Server {
	t.Helper()
	syncCfg := config.Default().Sync
	syncCfg.Enable = false
	cp, err := controlplane.New(syncCfg, b, tools.Config{
		Files: []types.ProjectFile{{Path: "a.ts", Content: "const x = 1"}},
	}, nil)
	if err != nil {
		t.Fatalf("controlplane.New: %v", err)
	}
	return NewServer(httpCfg, cp, nil)
}

func do(srv *Server, method, path, body string, header ...string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req, _ = http.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req, _ = http.NewRequest(method, path, nil)
	}
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	w := httptest.NewRecorder()
	srv.Engine.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var resp map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("parse response: %v (%s)", err, w.Body.String())
	}
	return resp
}

func TestHealthAndMetrics(t *testing.T) {
	srv := newTestServer(t, &stubBridge{}, config.HTTPConfig{APIKey: "secret"})
	for _, p := range []string{"/health", "/healthz", "/metrics", "/api/openapi.json"} {
		if w := do(srv, http.MethodGet, p, ""); w.Code != http.StatusOK {
			t.Errorf("%s returned %d", p, w.Code)
		}
	}
}

func TestAPIKeyRequired(t *testing.T) {
	srv := newTestServer(t, &stubBridge{}, config.HTTPConfig{APIKey: "secret"})
	if w := do(srv, http.MethodGet, "/api/v1/tools", ""); w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
	if w := do(srv, http.MethodGet, "/api/v1/tools", "", "X-API-Key", "secret"); w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
}

func TestExecuteEditAndUndo(t *testing.T) {
	srv := newTestServer(t, &stubBridge{}, config.HTTPConfig{})

	w := do(srv, http.MethodPost, "/api/v1/tools/execute",
		`{"name":"edit_file","arguments":{"path":"a.ts","old_content":"const x = 1","new_content":"const x = 2"}}`)
	if w.Code != http.StatusOK {
		t.Fatalf("execute returned %d", w.Code)
	}
	resp := decode(t, w)
	if resp["success"] != true || resp["tool_name"] != "edit_file" || resp["tool_call_id"] == "" {
		t.Fatalf("unexpected execute response: %v", resp)
	}

	w = do(srv, http.MethodGet, "/api/v1/modifications", "")
	mods := decode(t, w)["modifications"].([]any)
	if len(mods) != 1 {
		t.Fatalf("expected one modification, got %v", mods)
	}

	w = do(srv, http.MethodPost, "/api/v1/undo", "")
	if resp := decode(t, w); resp["success"] != true {
		t.Fatalf("undo failed: %v", resp)
	}
	w = do(srv, http.MethodPost, "/api/v1/undo", "")
	if resp := decode(t, w); resp["success"] != false || resp["error"] == "" {
		t.Fatalf("second undo should fail: %v", resp)
	}

	w = do(srv, http.MethodPost, "/api/v1/tools/execute", `{"name":"read_file","arguments":{"path":"a.ts"}}`)
	result := decode(t, w)["result"].(map[string]any)
	if result["content"] != "const x = 1" {
		t.Fatalf("content not restored: %v", result)
	}
}

func TestExecuteBadRequest(t *testing.T) {
	srv := newTestServer(t, &stubBridge{}, config.HTTPConfig{})
	if w := do(srv, http.MethodPost, "/api/v1/tools/execute", `{"arguments":{}}`); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
	w := do(srv, http.MethodPost, "/api/v1/tools/execute", `{"name":"nope"}`)
	if resp := decode(t, w); w.Code != http.StatusOK || resp["success"] != false {
		t.Fatalf("unknown tool should be a failed result: %d %v", w.Code, resp)
	}
}

func TestBridgeEndpoints(t *testing.T) {
	b := &stubBridge{state: bridge.Connected, result: json.RawMessage(`{"selected":true}`)}
	srv := newTestServer(t, b, config.HTTPConfig{})

	status := decode(t, do(srv, http.MethodGet, "/api/v1/bridge", ""))
	if status["state"] != "connected" || status["files"] != float64(1) {
		t.Fatalf("unexpected status: %v", status)
	}

	if w := do(srv, http.MethodGet, "/api/v1/bridge/snapshot", ""); w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 before any snapshot, got %d", w.Code)
	}
	b.snapshot = &types.ApplicationSnapshot{ActiveView: "graph", RootPath: "/repo"}
	snap := decode(t, do(srv, http.MethodGet, "/api/v1/bridge/snapshot", ""))
	if snap["activeView"] != "graph" {
		t.Fatalf("unexpected snapshot: %v", snap)
	}

	if w := do(srv, http.MethodPost, "/api/v1/bridge/refresh", ""); w.Code != http.StatusAccepted || !b.refreshed {
		t.Fatalf("refresh not forwarded: %d", w.Code)
	}

	w := do(srv, http.MethodPost, "/api/v1/bridge/commands", `{"command":"select_node","params":{"id":"n1"}}`)
	if w.Code != http.StatusOK || b.lastName != "select_node" {
		t.Fatalf("command not forwarded: %d", w.Code)
	}
	if res := decode(t, w)["result"].(map[string]any); res["selected"] != true {
		t.Fatalf("unexpected command result: %v", res)
	}
}

func TestCommandErrorStatus(t *testing.T) {
	tests := []struct {
		err  error
		code int
	}{
		{bridge.ErrNotConnected, http.StatusServiceUnavailable},
		{bridge.ErrCommandTimeout, http.StatusGatewayTimeout},
		{&bridge.RemoteError{Command: "x", Message: "unknown command"}, http.StatusBadGateway},
		{errors.New("write: broken pipe"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		srv := newTestServer(t, &stubBridge{state: bridge.Connected, err: tt.err}, config.HTTPConfig{})
		w := do(srv, http.MethodPost, "/api/v1/bridge/commands", `{"command":"x"}`)
		if w.Code != tt.code {
			t.Errorf("%v: got %d, want %d", tt.err, w.Code, tt.code)
		}
	}
}

func TestProviderFormats(t *testing.T) {
	srv := newTestServer(t, &stubBridge{}, config.HTTPConfig{})

	w := do(srv, http.MethodGet, "/api/v1/tools?format=openai", "")
	tools := decode(t, w)["tools"].([]any)
	first := tools[0].(map[string]any)
	if first["type"] != "function" || first["function"].(map[string]any)["name"] == "" {
		t.Fatalf("unexpected openai catalog entry: %v", first)
	}
	if w := do(srv, http.MethodGet, "/api/v1/tools?format=bogus", ""); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown format, got %d", w.Code)
	}

	payload := `[{"id":"call_9","type":"function","function":{"name":"read_file","arguments":"{\"path\":\"a.ts\"}"}}]`
	w = do(srv, http.MethodPost, "/api/v1/tools/answer?format=openai", payload)
	if w.Code != http.StatusOK {
		t.Fatalf("answer returned %d: %s", w.Code, w.Body.String())
	}
	var msgs []map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &msgs); err != nil {
		t.Fatalf("parse reply: %v", err)
	}
	if len(msgs) != 1 || msgs[0]["tool_call_id"] != "call_9" || !strings.Contains(msgs[0]["content"].(string), "const x = 1") {
		t.Fatalf("unexpected reply: %v", msgs)
	}
}
